package backfill

import (
	"context"
	"log/slog"
	"time"

	"github.com/hale-dev/chainfill/internal/store"
)

// MetadataStore is the slice of the store client the updater needs.
type MetadataStore interface {
	BatchUpsertMetadata(ctx context.Context, patches []store.Patch) (store.BatchResult, error)
	Ceiling() int
}

// Updater applies a session's computed patch set to the external store. It
// splits the set into batches at the store's per-call ceiling and applies
// each batch independently: a failed batch is retried up to the configured
// count, then reported, without rolling back or blocking other batches.
// Re-applying an identical patch set is a no-op in effect.
type Updater struct {
	store   MetadataStore
	retries int
	logger  *slog.Logger
}

func NewUpdater(s MetadataStore, retries int, logger *slog.Logger) *Updater {
	return &Updater{store: s, retries: retries, logger: logger}
}

// ApplyResult summarizes one patch set application.
type ApplyResult struct {
	Applied       int
	FailedPatches int
	FailedBatches int
}

// Apply writes the patch set in ceiling-sized batches.
func (u *Updater) Apply(ctx context.Context, sessionID string, patches []store.Patch) ApplyResult {
	var res ApplyResult
	ceiling := u.store.Ceiling()

	for start := 0; start < len(patches); start += ceiling {
		end := start + ceiling
		if end > len(patches) {
			end = len(patches)
		}
		batch := patches[start:end]

		applied, failed, ok := u.applyBatch(ctx, sessionID, batch)
		res.Applied += applied
		res.FailedPatches += failed
		if !ok {
			res.FailedBatches++
		}
	}
	return res
}

func (u *Updater) applyBatch(ctx context.Context, sessionID string, batch []store.Patch) (applied, failed int, ok bool) {
	var lastErr error
	for attempt := 0; attempt <= u.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, len(batch), false
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		res, err := u.store.BatchUpsertMetadata(ctx, batch)
		if err == nil {
			if len(res.Failed) > 0 {
				u.logger.Warn("batch applied with per-patch failures",
					"session_id", sessionID,
					"applied", res.Applied,
					"failed", len(res.Failed),
				)
			}
			return res.Applied, len(res.Failed), len(res.Failed) == 0
		}
		lastErr = err
		u.logger.Warn("batch upsert failed",
			"session_id", sessionID,
			"attempt", attempt+1,
			"batch_size", len(batch),
			"error", err,
		)
	}

	u.logger.Error("batch upsert exhausted retries",
		"session_id", sessionID,
		"batch_size", len(batch),
		"error", lastErr,
	)
	return 0, len(batch), false
}
