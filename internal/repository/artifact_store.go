package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/gradewise/gradewise-api/internal/evaluation"
)

// ErrArtifactNotFound indicates no artifact is stored under the key.
var ErrArtifactNotFound = fmt.Errorf("artifact not found")

// ArtifactStore is the key-value side of persistence: decomposed structures,
// score vectors and rendered result documents keyed by submission. The
// relational store owns lifecycle state; this store owns derived blobs that
// are recomputed whole on every grading pass.
type ArtifactStore interface {
	PutRawArtifact(ctx context.Context, submissionID uint, artifact []byte) error
	GetRawArtifact(ctx context.Context, submissionID uint) ([]byte, error)
	PutAnswers(ctx context.Context, submissionID uint, answers map[string]string) error
	GetAnswers(ctx context.Context, submissionID uint) (map[string]string, error)
	PutStructure(ctx context.Context, submissionID uint, questionID string, structure evaluation.ComponentMap) error
	GetStructure(ctx context.Context, submissionID uint, questionID string) (evaluation.ComponentMap, error)
	PutScores(ctx context.Context, submissionID uint, questionID string, vector evaluation.ScoreVector) error
	GetScores(ctx context.Context, submissionID uint, questionID string) (evaluation.ScoreVector, error)
	PutResult(ctx context.Context, submissionID uint, payload []byte) error
	GetResult(ctx context.Context, submissionID uint) ([]byte, error)
}

type redisArtifactStore struct {
	client *redis.Client
}

// NewArtifactStore instantiates the redis-backed store.
func NewArtifactStore(client *redis.Client) ArtifactStore {
	return &redisArtifactStore{client: client}
}

func structureKey(submissionID uint, questionID string) string {
	return fmt.Sprintf("grading:structure:%d:%s", submissionID, questionID)
}

func scoresKey(submissionID uint, questionID string) string {
	return fmt.Sprintf("grading:scores:%d:%s", submissionID, questionID)
}

func resultKey(submissionID uint) string {
	return fmt.Sprintf("grading:result:%d", submissionID)
}

func rawArtifactKey(submissionID uint) string {
	return fmt.Sprintf("grading:artifact:%d", submissionID)
}

func answersKey(submissionID uint) string {
	return fmt.Sprintf("grading:answers:%d", submissionID)
}

func (s *redisArtifactStore) PutRawArtifact(ctx context.Context, submissionID uint, artifact []byte) error {
	return s.client.Set(ctx, rawArtifactKey(submissionID), artifact, 0).Err()
}

func (s *redisArtifactStore) GetRawArtifact(ctx context.Context, submissionID uint) ([]byte, error) {
	payload, err := s.client.Get(ctx, rawArtifactKey(submissionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, err
	}

	return payload, nil
}

func (s *redisArtifactStore) PutAnswers(ctx context.Context, submissionID uint, answers map[string]string) error {
	return s.putJSON(ctx, answersKey(submissionID), answers)
}

func (s *redisArtifactStore) GetAnswers(ctx context.Context, submissionID uint) (map[string]string, error) {
	answers := make(map[string]string)
	if err := s.getJSON(ctx, answersKey(submissionID), &answers); err != nil {
		return nil, err
	}

	return answers, nil
}

func (s *redisArtifactStore) PutStructure(ctx context.Context, submissionID uint, questionID string, structure evaluation.ComponentMap) error {
	return s.putJSON(ctx, structureKey(submissionID, questionID), structure)
}

func (s *redisArtifactStore) GetStructure(ctx context.Context, submissionID uint, questionID string) (evaluation.ComponentMap, error) {
	var structure evaluation.ComponentMap
	err := s.getJSON(ctx, structureKey(submissionID, questionID), &structure)
	return structure, err
}

func (s *redisArtifactStore) PutScores(ctx context.Context, submissionID uint, questionID string, vector evaluation.ScoreVector) error {
	return s.putJSON(ctx, scoresKey(submissionID, questionID), vector)
}

func (s *redisArtifactStore) GetScores(ctx context.Context, submissionID uint, questionID string) (evaluation.ScoreVector, error) {
	var vector evaluation.ScoreVector
	err := s.getJSON(ctx, scoresKey(submissionID, questionID), &vector)
	return vector, err
}

func (s *redisArtifactStore) PutResult(ctx context.Context, submissionID uint, payload []byte) error {
	return s.client.Set(ctx, resultKey(submissionID), payload, 0).Err()
}

func (s *redisArtifactStore) GetResult(ctx context.Context, submissionID uint) ([]byte, error) {
	payload, err := s.client.Get(ctx, resultKey(submissionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, err
	}

	return payload, nil
}

func (s *redisArtifactStore) putJSON(ctx context.Context, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}

	return s.client.Set(ctx, key, payload, 0).Err()
}

func (s *redisArtifactStore) getJSON(ctx context.Context, key string, out interface{}) error {
	payload, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return ErrArtifactNotFound
	}
	if err != nil {
		return err
	}

	return json.Unmarshal(payload, out)
}
