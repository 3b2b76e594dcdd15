// Package backfill orchestrates the post-processing pipeline: read a
// completed transcript, rebuild chain relationships, validate solution
// feedback, and write the computed metadata back to the external store.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/hale-dev/chainfill/internal/analysis"
	"github.com/hale-dev/chainfill/internal/cache"
	"github.com/hale-dev/chainfill/internal/chain"
	"github.com/hale-dev/chainfill/internal/fusion"
	"github.com/hale-dev/chainfill/internal/store"
	"github.com/hale-dev/chainfill/internal/transcript"
)

// Config holds the runner's tunables.
type Config struct {
	StatePath           string
	SessionWorkers      int
	PairWorkers         int
	ValidationThreshold float64
}

// TranscriptSource yields completed session transcripts.
type TranscriptSource interface {
	ListSessions() ([]string, error)
	ReadSession(sessionID string) ([]transcript.Message, error)
	SessionPath(sessionID string) string
}

// SemanticClassifier is the embedding-backed feedback classifier.
type SemanticClassifier interface {
	AnalyzeFeedback(ctx context.Context, text string) (analysis.Outcome, map[analysis.Sentiment]float64)
}

// ReviewRequest flags one low-consistency pair for a human.
type ReviewRequest struct {
	SessionID         string  `json:"session_id"`
	SolutionMessageID string  `json:"solution_message_id"`
	FeedbackMessageID string  `json:"feedback_message_id"`
	ConsistencyScore  float64 `json:"consistency_score"`
	Reason            string  `json:"reason"`
}

// Publisher pushes run results onto the event bus. Optional; a nil publisher
// disables publishing.
type Publisher interface {
	PublishRunSummary(ctx context.Context, s Summary) error
	PublishReviewRequest(ctx context.Context, req ReviewRequest) error
}

// Metrics receives pipeline counters. Optional; nil disables collection.
type Metrics interface {
	AddSessions(n int)
	AddMessages(n int)
	AddValidations(resolved, review int)
	AddStoreFailures(n int)
	SetCacheEntries(cache string, n int)
}

// Summary is the structured result of one back-fill invocation. It is always
// produced, even on partial failure. RunID correlates log lines, published
// events, and the API response for one invocation.
type Summary struct {
	RunID                      string `json:"run_id"`
	SessionsProcessed          int    `json:"sessions_processed"`
	SessionsDeferred           int    `json:"sessions_deferred"`
	MessagesProcessed          int    `json:"messages_processed"`
	RelationshipsBuilt         int    `json:"relationships_built"`
	ValidationsResolved        int    `json:"validations_resolved"`
	ValidationsRequiringReview int    `json:"validations_requiring_review"`
	StoreUpdateFailures        int    `json:"store_update_failures"`
}

func (s *Summary) add(o Summary) {
	s.SessionsProcessed += o.SessionsProcessed
	s.SessionsDeferred += o.SessionsDeferred
	s.MessagesProcessed += o.MessagesProcessed
	s.RelationshipsBuilt += o.RelationshipsBuilt
	s.ValidationsResolved += o.ValidationsResolved
	s.ValidationsRequiringReview += o.ValidationsRequiringReview
	s.StoreUpdateFailures += o.StoreUpdateFailures
}

// Runner drives back-fill over sessions. Sessions are independent units of
// work; the only shared mutable state is the content-hash caches.
type Runner struct {
	cfg       Config
	source    TranscriptSource
	pattern   *analysis.PatternAnalyzer
	technical *analysis.TechnicalContextAnalyzer
	semantic  SemanticClassifier
	engine    *fusion.Engine
	updater   *Updater
	publisher Publisher
	metrics   Metrics
	results   *cache.Store[fusion.ValidationResult]
	logger    *slog.Logger
}

func NewRunner(
	cfg Config,
	source TranscriptSource,
	semantic SemanticClassifier,
	updater *Updater,
	publisher Publisher,
	metrics Metrics,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		cfg:       cfg,
		source:    source,
		pattern:   analysis.NewPatternAnalyzer(),
		technical: analysis.NewTechnicalContextAnalyzer(),
		semantic:  semantic,
		engine:    fusion.NewEngine(),
		updater:   updater,
		publisher: publisher,
		metrics:   metrics,
		results:   cache.New[fusion.ValidationResult](),
		logger:    logger,
	}
}

// Run back-fills every eligible session: not yet completed, or completed
// against a transcript that has since changed. Sessions run concurrently up
// to the configured worker limit; cross-session ordering is irrelevant.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	state, err := LoadState(r.cfg.StatePath)
	if err != nil {
		return Summary{}, fmt.Errorf("load state: %w", err)
	}

	sessions, err := r.source.ListSessions()
	if err != nil {
		return Summary{}, fmt.Errorf("list sessions: %w", err)
	}

	runID := uuid.NewString()
	r.logger.Info("sessions discovered", "run_id", runID, "count", len(sessions))

	var (
		mu      sync.Mutex
		summary Summary
		wg      sync.WaitGroup
	)
	summary.RunID = runID
	jobs := make(chan string)

	workers := r.cfg.SessionWorkers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sessionID := range jobs {
				sum := r.runOne(ctx, state, &mu, sessionID, false)
				mu.Lock()
				summary.add(sum)
				mu.Unlock()
			}
		}()
	}

drain:
	for _, sessionID := range sessions {
		select {
		case <-ctx.Done():
			break drain
		case jobs <- sessionID:
		}
	}
	close(jobs)
	wg.Wait()

	mu.Lock()
	if err := state.Save(); err != nil {
		r.logger.Warn("save state failed", "error", err)
	}
	mu.Unlock()

	r.report(ctx, summary)
	if ctx.Err() != nil {
		return summary, ctx.Err()
	}
	return summary, nil
}

// RunSession back-fills a single session, honoring the completion state.
func (r *Runner) RunSession(ctx context.Context, sessionID string) (Summary, error) {
	return r.runSingle(ctx, sessionID, false)
}

// Reprocess recomputes a single session from scratch, ignoring the
// completion state. Used after a heuristic change: previously-written values
// (including explicit false flags) are overwritten with freshly computed
// ones. Never triggered implicitly by ordinary runs.
func (r *Runner) Reprocess(ctx context.Context, sessionID string) (Summary, error) {
	return r.runSingle(ctx, sessionID, true)
}

func (r *Runner) runSingle(ctx context.Context, sessionID string, force bool) (Summary, error) {
	state, err := LoadState(r.cfg.StatePath)
	if err != nil {
		return Summary{}, fmt.Errorf("load state: %w", err)
	}

	var mu sync.Mutex
	summary := r.runOne(ctx, state, &mu, sessionID, force)
	summary.RunID = uuid.NewString()
	if err := state.Save(); err != nil {
		r.logger.Warn("save state failed", "error", err)
	}

	r.report(ctx, summary)
	return summary, nil
}

// runOne processes one session and returns its summary slice. State access
// goes through mu; everything else is session-local.
func (r *Runner) runOne(ctx context.Context, state *State, mu *sync.Mutex, sessionID string, force bool) Summary {
	var sum Summary
	log := r.logger.With("session_id", sessionID)

	fingerprint, err := FingerprintFile(r.source.SessionPath(sessionID))
	if err != nil {
		log.Error("fingerprint transcript", "error", err)
		return sum
	}

	if !force {
		mu.Lock()
		done := state.IsCompleted(sessionID, fingerprint)
		mu.Unlock()
		if done {
			log.Debug("session unchanged, skipping")
			return sum
		}
	}

	msgs, err := r.source.ReadSession(sessionID)
	if err != nil {
		if errors.Is(err, transcript.ErrTranscriptNotStable) {
			log.Info("transcript still being written, deferring")
			sum.SessionsDeferred++
			return sum
		}
		log.Error("read session", "error", err)
		return sum
	}
	if len(msgs) == 0 {
		log.Info("empty session, marking complete")
		mu.Lock()
		state.MarkCompleted(sessionID, fingerprint)
		mu.Unlock()
		sum.SessionsProcessed++
		return sum
	}

	builder := chain.NewBuilder(func(m transcript.Message) bool {
		return r.pattern.IsSolutionAttempt(m.Content) ||
			r.technical.IsSolutionAttempt(m.Content, m.ToolsUsed)
	})
	links, pairs := builder.Build(msgs)

	results := r.analyzePairs(ctx, sessionID, pairs)

	patches := r.buildPatches(msgs, links, pairs, results)
	applied := r.updater.Apply(ctx, sessionID, patches)

	sum.SessionsProcessed++
	sum.MessagesProcessed = len(msgs)
	sum.RelationshipsBuilt = len(msgs) - 1 + len(pairs)
	for _, pr := range results {
		sum.ValidationsResolved++
		if pr.result.RequiresManualReview {
			sum.ValidationsRequiringReview++
			r.publishReview(ctx, sessionID, pr)
		}
	}
	sum.StoreUpdateFailures = applied.FailedBatches

	// Only a fully clean session is marked complete, so failed or aborted
	// writes are retried on the next run. Idempotent upserts make the
	// re-run cheap.
	if applied.FailedBatches == 0 && ctx.Err() == nil {
		mu.Lock()
		state.MarkCompleted(sessionID, fingerprint)
		mu.Unlock()
	}

	log.Info("session back-filled",
		"messages", len(msgs),
		"pairs", len(pairs),
		"patches_applied", applied.Applied,
		"patches_failed", applied.FailedPatches,
		"review_flagged", sum.ValidationsRequiringReview,
	)
	return sum
}

type pairResult struct {
	pair   chain.Pair
	domain analysis.Domain
	result fusion.ValidationResult
}

// analyzePairs runs the three classifiers and fusion per pair, concurrently
// up to the pair worker limit. Fusion for a given pair always sees all three
// outcomes; concurrency is across pairs only.
func (r *Runner) analyzePairs(ctx context.Context, sessionID string, pairs []chain.Pair) []pairResult {
	if len(pairs) == 0 {
		return nil
	}

	results := make([]pairResult, len(pairs))
	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := r.cfg.PairWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > len(pairs) {
		workers = len(pairs)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = r.analyzePair(ctx, sessionID, pairs[idx])
			}
		}()
	}
	for i := range pairs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

func (r *Runner) analyzePair(ctx context.Context, sessionID string, p chain.Pair) pairResult {
	domain := r.technical.ClassifyDomain(p.Solution.Content, p.Solution.ToolsUsed)

	key := analysis.ContentHash(p.Solution.Content + "\x00" + p.Feedback.Content)
	if cached, ok := r.results.Get(key); ok {
		return pairResult{pair: p, domain: domain, result: cached}
	}

	patternOut := analysis.OK(r.pattern.AnalyzeFeedback(p.Feedback.Content))
	semanticOut, _ := r.semantic.AnalyzeFeedback(ctx, p.Feedback.Content)
	technicalOut := analysis.OK(r.technical.AnalyzeFeedback(domain, p.Feedback.Content))

	result := r.engine.Resolve(patternOut, semanticOut, technicalOut)

	if semanticOut.Status == analysis.StatusDeferred {
		// A deferred signal is transient; caching its fallback result
		// would pin the pair to manual review forever.
		r.logger.Warn("semantic signal deferred",
			"session_id", sessionID,
			"feedback_id", p.Feedback.ID,
			"reason", semanticOut.Reason,
		)
	} else {
		r.results.Set(key, result)
	}

	return pairResult{pair: p, domain: domain, result: result}
}

// buildPatches translates links and validation results into store patches,
// one per message, in sequence order for deterministic batching.
func (r *Runner) buildPatches(msgs []transcript.Message, links map[string]*chain.Links, pairs []chain.Pair, results []pairResult) []store.Patch {
	byID := make(map[string]*store.Patch, len(msgs))
	patches := make([]store.Patch, 0, len(msgs))
	for _, m := range msgs {
		l := links[m.ID]
		p := store.Patch{
			ID: m.ID,
			Fields: store.Metadata{
				PreviousMessageID: l.PreviousMessageID,
				NextMessageID:     l.NextMessageID,
				RelatedSolutionID: l.RelatedSolutionID,
				FeedbackMessageID: l.FeedbackMessageID,
			},
		}
		if m.Role == transcript.RoleAssistant {
			flagged := l.IsSolutionAttempt
			p.Fields.IsSolutionAttempt = &flagged
			if flagged {
				domain := string(r.technical.ClassifyDomain(m.Content, m.ToolsUsed))
				quality := r.pattern.QualityScore(m.Content)
				p.Fields.TechnicalDomain = &domain
				p.Fields.SolutionQualityScore = &quality
			}
		}
		patches = append(patches, p)
		byID[m.ID] = &patches[len(patches)-1]
	}

	for _, pr := range results {
		patch, ok := byID[pr.pair.Solution.ID]
		if !ok {
			continue
		}
		sentiment := string(pr.result.Sentiment)
		strength := pr.result.Confidence
		validated := pr.result.Sentiment == analysis.SentimentPositive && strength >= r.cfg.ValidationThreshold
		refuted := pr.result.Sentiment == analysis.SentimentNegative && strength >= r.cfg.ValidationThreshold

		patch.Fields.UserFeedbackSentiment = &sentiment
		patch.Fields.ValidationStrength = &strength
		patch.Fields.IsValidatedSolution = &validated
		patch.Fields.IsRefutedAttempt = &refuted
	}

	return patches
}

func (r *Runner) publishReview(ctx context.Context, sessionID string, pr pairResult) {
	if r.publisher == nil {
		return
	}
	req := ReviewRequest{
		SessionID:         sessionID,
		SolutionMessageID: pr.pair.Solution.ID,
		FeedbackMessageID: pr.pair.Feedback.ID,
		ConsistencyScore:  pr.result.ConsistencyScore,
		Reason:            pr.result.PrimaryMethod,
	}
	if err := r.publisher.PublishReviewRequest(ctx, req); err != nil {
		r.logger.Warn("publish review request failed", "session_id", sessionID, "error", err)
	}
}

func (r *Runner) report(ctx context.Context, sum Summary) {
	if r.metrics != nil {
		r.metrics.AddSessions(sum.SessionsProcessed)
		r.metrics.AddMessages(sum.MessagesProcessed)
		r.metrics.AddValidations(sum.ValidationsResolved, sum.ValidationsRequiringReview)
		r.metrics.AddStoreFailures(sum.StoreUpdateFailures)
		r.metrics.SetCacheEntries("results", r.results.Len())
	}
	if r.publisher != nil {
		if err := r.publisher.PublishRunSummary(ctx, sum); err != nil {
			r.logger.Warn("publish run summary failed", "error", err)
		}
	}
	r.logger.Info("back-fill complete",
		"run_id", sum.RunID,
		"sessions_processed", sum.SessionsProcessed,
		"sessions_deferred", sum.SessionsDeferred,
		"messages_processed", sum.MessagesProcessed,
		"relationships_built", sum.RelationshipsBuilt,
		"validations_resolved", sum.ValidationsResolved,
		"validations_requiring_review", sum.ValidationsRequiringReview,
		"store_update_failures", sum.StoreUpdateFailures,
	)
}
