package consultation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexRecentNewestFirst(t *testing.T) {
	idx, err := OpenIndex(":memory:")
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	base := time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, idx.Add(ctx, Entry{
			ID:            id,
			SessionID:     "s-" + id,
			FilePath:      "/tmp/" + id + ".json",
			PromptVersion: "v1",
			Utterances:    i,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}))
	}

	entries, err := idx.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].ID)
	assert.Equal(t, "b", entries[1].ID)
	assert.Equal(t, 2, entries[0].Utterances)
	assert.True(t, entries[0].CreatedAt.Equal(base.Add(2*time.Minute)))
	assert.Empty(t, entries[0].RecordingPath)

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestIndexRejectsDuplicateID(t *testing.T) {
	idx, err := OpenIndex(":memory:")
	require.NoError(t, err)
	defer idx.Close()

	e := Entry{ID: "x", SessionID: "s", FilePath: "f", PromptVersion: "v1", CreatedAt: time.Now()}
	require.NoError(t, idx.Add(context.Background(), e))
	assert.Error(t, idx.Add(context.Background(), e))
}

func TestIndexPersistsOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "index.sqlite")

	idx, err := OpenIndex(path)
	require.NoError(t, err)
	require.NoError(t, idx.Add(context.Background(), Entry{
		ID: "x", SessionID: "s", FilePath: "f", PromptVersion: "v1",
		Goal: "Sleep better", CreatedAt: time.Now(),
	}))
	require.NoError(t, idx.Close())

	idx, err = OpenIndex(path)
	require.NoError(t, err)
	defer idx.Close()

	entries, err := idx.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Sleep better", entries[0].Goal)
}
