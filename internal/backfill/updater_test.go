package backfill

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hale-dev/chainfill/internal/store"
)

// fakeStore records batch calls and fails on demand.
type fakeStore struct {
	mu      sync.Mutex
	ceiling int
	batches [][]store.Patch
	failFor map[int]int // call index -> remaining failures
	calls   int
}

func newFakeStore(ceiling int) *fakeStore {
	return &fakeStore{ceiling: ceiling, failFor: make(map[int]int)}
}

func (f *fakeStore) Ceiling() int { return f.ceiling }

func (f *fakeStore) BatchUpsertMetadata(_ context.Context, patches []store.Patch) (store.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(patches) > f.ceiling {
		return store.BatchResult{}, fmt.Errorf("%d patches: %w", len(patches), store.ErrBatchTooLarge)
	}

	call := f.calls
	f.calls++
	if remaining := f.failFor[call]; remaining > 0 {
		f.failFor[call]--
		return store.BatchResult{}, errors.New("transient store error")
	}

	batch := make([]store.Patch, len(patches))
	copy(batch, patches)
	f.batches = append(f.batches, batch)
	return store.BatchResult{Applied: len(patches)}, nil
}

func makePatches(n int) []store.Patch {
	patches := make([]store.Patch, n)
	for i := range patches {
		patches[i] = store.Patch{ID: fmt.Sprintf("m%03d", i)}
	}
	return patches
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUpdaterSplitsAtCeiling(t *testing.T) {
	fs := newFakeStore(166)
	u := NewUpdater(fs, 0, testLogger())

	res := u.Apply(context.Background(), "s1", makePatches(500))

	assert.Equal(t, 500, res.Applied)
	assert.Equal(t, 0, res.FailedBatches)
	require.Len(t, fs.batches, 4)
	for _, b := range fs.batches {
		assert.LessOrEqual(t, len(b), 166)
	}
	assert.Len(t, fs.batches[3], 500-3*166)
}

func TestUpdaterRetriesTransientFailure(t *testing.T) {
	fs := newFakeStore(10)
	fs.failFor[0] = 1 // first call fails once
	u := NewUpdater(fs, 2, testLogger())

	res := u.Apply(context.Background(), "s1", makePatches(5))

	assert.Equal(t, 5, res.Applied)
	assert.Equal(t, 0, res.FailedBatches)
}

func TestUpdaterIsolatesFailedBatch(t *testing.T) {
	fs := newFakeStore(10)
	// Second batch fails on every attempt (initial + no retries).
	fs.failFor[1] = 1
	u := NewUpdater(fs, 0, testLogger())

	res := u.Apply(context.Background(), "s1", makePatches(25))

	// Batches one and three applied; the failed middle batch neither rolls
	// them back nor blocks them.
	assert.Equal(t, 20, res.Applied)
	assert.Equal(t, 10, res.FailedPatches)
	assert.Equal(t, 1, res.FailedBatches)
	require.Len(t, fs.batches, 2)
	assert.Equal(t, "m000", fs.batches[0][0].ID)
	assert.Equal(t, "m020", fs.batches[1][0].ID)
}

func TestUpdaterEmptyPatchSet(t *testing.T) {
	fs := newFakeStore(10)
	u := NewUpdater(fs, 0, testLogger())

	res := u.Apply(context.Background(), "s1", nil)
	assert.Equal(t, ApplyResult{}, res)
	assert.Equal(t, 0, fs.calls)
}
