package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchUpsertRejectsOversizedBatch(t *testing.T) {
	s := &Store{ceiling: 3}

	patches := make([]Patch, 4)
	for i := range patches {
		patches[i] = Patch{ID: "m"}
	}

	_, err := s.BatchUpsertMetadata(context.Background(), patches)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestBatchUpsertEmptyBatchIsNoop(t *testing.T) {
	s := &Store{ceiling: 3}

	res, err := s.BatchUpsertMetadata(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Applied)
	assert.Empty(t, res.Failed)
}
