//go:build integration

package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL, 166)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func strp(s string) *string     { return &s }
func boolp(b bool) *bool        { return &b }
func floatp(f float64) *float64 { return &f }

func TestIntegration_UpsertAndGetMetadata(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id := "itest-" + uuid.New().String()
	prev := "itest-prev-" + uuid.New().String()

	res, err := s.BatchUpsertMetadata(ctx, []Patch{{
		ID: id,
		Fields: Metadata{
			PreviousMessageID: strp(prev),
			IsSolutionAttempt: boolp(true),
			TechnicalDomain:   strp("testing"),
		},
	}})
	if err != nil {
		t.Fatalf("BatchUpsertMetadata failed: %v", err)
	}
	if res.Applied != 1 || len(res.Failed) != 0 {
		t.Fatalf("unexpected batch result: %+v", res)
	}

	m, err := s.GetMetadata(ctx, id)
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if m.PreviousMessageID == nil || *m.PreviousMessageID != prev {
		t.Errorf("previous_message_id not persisted: %+v", m)
	}

	// A second upsert with nil fields must leave stored values untouched.
	if _, err := s.BatchUpsertMetadata(ctx, []Patch{{
		ID:     id,
		Fields: Metadata{ValidationStrength: floatp(0.9)},
	}}); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	m, err = s.GetMetadata(ctx, id)
	if err != nil {
		t.Fatalf("GetMetadata after update failed: %v", err)
	}
	if m.PreviousMessageID == nil || *m.PreviousMessageID != prev {
		t.Error("nil field overwrote existing previous_message_id")
	}
	if m.ValidationStrength == nil || *m.ValidationStrength != 0.9 {
		t.Error("validation_strength not persisted")
	}
}

func TestIntegration_GetMetadataNotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetMetadata(context.Background(), "itest-missing-"+uuid.New().String())
	if !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}
