package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Metadata holds the back-filled fields for one message. Pointer fields
// distinguish "not computed" (nil, leaves the stored value untouched) from
// an explicit value, including explicit false/zero.
type Metadata struct {
	PreviousMessageID     *string
	NextMessageID         *string
	RelatedSolutionID     *string
	FeedbackMessageID     *string
	IsSolutionAttempt     *bool
	TechnicalDomain       *string
	SolutionQualityScore  *float64
	UserFeedbackSentiment *string
	ValidationStrength    *float64
	IsValidatedSolution   *bool
	IsRefutedAttempt      *bool
}

// Patch is one message's metadata update.
type Patch struct {
	ID     string
	Fields Metadata
}

// BatchResult reports per-patch outcomes of one batch upsert call.
type BatchResult struct {
	Applied int
	Failed  []string
}

const upsertMetadataSQL = `
	INSERT INTO message_metadata (
		message_id, previous_message_id, next_message_id, related_solution_id,
		feedback_message_id, is_solution_attempt, technical_domain,
		solution_quality_score, user_feedback_sentiment, validation_strength,
		is_validated_solution, is_refuted_attempt, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
	ON CONFLICT (message_id) DO UPDATE SET
		previous_message_id    = COALESCE(EXCLUDED.previous_message_id, message_metadata.previous_message_id),
		next_message_id        = COALESCE(EXCLUDED.next_message_id, message_metadata.next_message_id),
		related_solution_id    = COALESCE(EXCLUDED.related_solution_id, message_metadata.related_solution_id),
		feedback_message_id    = COALESCE(EXCLUDED.feedback_message_id, message_metadata.feedback_message_id),
		is_solution_attempt    = COALESCE(EXCLUDED.is_solution_attempt, message_metadata.is_solution_attempt),
		technical_domain       = COALESCE(EXCLUDED.technical_domain, message_metadata.technical_domain),
		solution_quality_score = COALESCE(EXCLUDED.solution_quality_score, message_metadata.solution_quality_score),
		user_feedback_sentiment = COALESCE(EXCLUDED.user_feedback_sentiment, message_metadata.user_feedback_sentiment),
		validation_strength    = COALESCE(EXCLUDED.validation_strength, message_metadata.validation_strength),
		is_validated_solution  = COALESCE(EXCLUDED.is_validated_solution, message_metadata.is_validated_solution),
		is_refuted_attempt     = COALESCE(EXCLUDED.is_refuted_attempt, message_metadata.is_refuted_attempt),
		updated_at             = now()`

// BatchUpsertMetadata applies up to Ceiling patches in one round trip.
// Writing a value identical to the stored one is a safe no-op; nil fields
// leave existing values in place. Individual patch failures are collected
// in the result, not fatal to the call.
func (s *Store) BatchUpsertMetadata(ctx context.Context, patches []Patch) (BatchResult, error) {
	if len(patches) > s.ceiling {
		return BatchResult{}, fmt.Errorf("%d patches: %w", len(patches), ErrBatchTooLarge)
	}
	if len(patches) == 0 {
		return BatchResult{}, nil
	}

	b := &pgx.Batch{}
	for _, p := range patches {
		f := p.Fields
		b.Queue(upsertMetadataSQL,
			p.ID, f.PreviousMessageID, f.NextMessageID, f.RelatedSolutionID,
			f.FeedbackMessageID, f.IsSolutionAttempt, f.TechnicalDomain,
			f.SolutionQualityScore, f.UserFeedbackSentiment, f.ValidationStrength,
			f.IsValidatedSolution, f.IsRefutedAttempt,
		)
	}

	br := s.pool.SendBatch(ctx, b)
	defer br.Close()

	var res BatchResult
	for _, p := range patches {
		if _, err := br.Exec(); err != nil {
			res.Failed = append(res.Failed, p.ID)
			continue
		}
		res.Applied++
	}
	return res, nil
}

// GetMetadata fetches the stored metadata row for one message.
func (s *Store) GetMetadata(ctx context.Context, messageID string) (Metadata, error) {
	var m Metadata
	err := s.pool.QueryRow(ctx, `
		SELECT previous_message_id, next_message_id, related_solution_id,
		       feedback_message_id, is_solution_attempt, technical_domain,
		       solution_quality_score, user_feedback_sentiment,
		       validation_strength, is_validated_solution, is_refuted_attempt
		FROM message_metadata WHERE message_id = $1`,
		messageID,
	).Scan(
		&m.PreviousMessageID, &m.NextMessageID, &m.RelatedSolutionID,
		&m.FeedbackMessageID, &m.IsSolutionAttempt, &m.TechnicalDomain,
		&m.SolutionQualityScore, &m.UserFeedbackSentiment,
		&m.ValidationStrength, &m.IsValidatedSolution, &m.IsRefutedAttempt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Metadata{}, fmt.Errorf("message %s: %w", messageID, ErrMessageNotFound)
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("get metadata: %w", err)
	}
	return m, nil
}

// MetadataFieldStats returns per-field population counts across all rows.
// Monitoring only; never used for control flow.
func (s *Store) MetadataFieldStats(ctx context.Context) (map[string]int64, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(previous_message_id), count(next_message_id),
		       count(related_solution_id), count(feedback_message_id),
		       count(is_solution_attempt), count(technical_domain),
		       count(user_feedback_sentiment), count(validation_strength),
		       count(is_validated_solution), count(is_refuted_attempt)
		FROM message_metadata`)

	var total, prev, next, related, feedback, solution, domain, sentiment, strength, validated, refuted int64
	if err := row.Scan(&total, &prev, &next, &related, &feedback, &solution, &domain, &sentiment, &strength, &validated, &refuted); err != nil {
		return nil, fmt.Errorf("metadata field stats: %w", err)
	}

	return map[string]int64{
		"total_rows":              total,
		"previous_message_id":     prev,
		"next_message_id":         next,
		"related_solution_id":     related,
		"feedback_message_id":     feedback,
		"is_solution_attempt":     solution,
		"technical_domain":        domain,
		"user_feedback_sentiment": sentiment,
		"validation_strength":     strength,
		"is_validated_solution":   validated,
		"is_refuted_attempt":      refuted,
	}, nil
}
