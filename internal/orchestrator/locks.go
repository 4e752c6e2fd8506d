package orchestrator

import "sync"

// keyedLocks serializes grading passes per submission id: a re-grade after a
// new answer-key version must not interleave with an in-flight pass for the
// same submission. The per-key mutex is held for the whole pipeline run but
// never across unrelated submissions.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[uint]*sync.Mutex)}
}

func (k *keyedLocks) lock(id uint) func() {
	k.mu.Lock()
	lock, ok := k.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[id] = lock
	}
	k.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
