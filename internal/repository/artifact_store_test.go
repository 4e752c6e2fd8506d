package repository

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/gradewise/gradewise-api/internal/evaluation"
)

func newTestArtifactStore(t *testing.T) ArtifactStore {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewArtifactStore(client)
}

func TestArtifactStoreRawArtifact(t *testing.T) {
	store := newTestArtifactStore(t)

	payload := []byte(`{"q1": "The capital of France is Paris."}`)
	require.NoError(t, store.PutRawArtifact(context.Background(), 7, payload))

	stored, err := store.GetRawArtifact(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, payload, stored)

	_, err = store.GetRawArtifact(context.Background(), 8)
	require.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestArtifactStoreAnswers(t *testing.T) {
	store := newTestArtifactStore(t)

	answers := map[string]string{
		"q1": "Paris is the capital of France.",
		"q2": "42",
	}
	require.NoError(t, store.PutAnswers(context.Background(), 7, answers))

	stored, err := store.GetAnswers(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, answers, stored)

	_, err = store.GetAnswers(context.Background(), 8)
	require.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestArtifactStoreStructureAndScores(t *testing.T) {
	store := newTestArtifactStore(t)

	structure := evaluation.ComponentMap{
		Components: []evaluation.Component{
			{Label: "definition", Content: "Paris is the capital."},
			{Label: "example", Content: "", RequiresQualitative: true},
		},
	}
	require.NoError(t, store.PutStructure(context.Background(), 7, "q1", structure))

	storedStructure, err := store.GetStructure(context.Background(), 7, "q1")
	require.NoError(t, err)
	require.Equal(t, structure, storedStructure)

	vector := evaluation.ScoreVector{
		LexicalSimilarity:       0.81,
		EmbeddingSimilarity:     0.92,
		ComponentScores:         []float64{0.88, 0},
		MeanComponentSimilarity: 0.44,
	}
	require.NoError(t, store.PutScores(context.Background(), 7, "q1", vector))

	storedVector, err := store.GetScores(context.Background(), 7, "q1")
	require.NoError(t, err)
	require.Equal(t, vector, storedVector)

	// Artifacts are keyed per question.
	_, err = store.GetScores(context.Background(), 7, "q2")
	require.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestArtifactStoreResultDocument(t *testing.T) {
	store := newTestArtifactStore(t)

	doc := []byte(`{"q1":{"score":0.9}}`)
	require.NoError(t, store.PutResult(context.Background(), 7, doc))

	stored, err := store.GetResult(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, doc, stored)

	_, err = store.GetResult(context.Background(), 9)
	require.ErrorIs(t, err, ErrArtifactNotFound)
}
