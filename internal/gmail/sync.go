package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"unclutter/internal/analysis"
	"unclutter/internal/model"
)

// Defaults sized against Gmail's 250 units/user/second quota.
const (
	DefaultPageSize    = 100
	DefaultBatchSize   = 10
	DefaultPageDelay   = 200 * time.Millisecond
	DefaultBatchDelay  = 500 * time.Millisecond
	DefaultItemDelay   = 100 * time.Millisecond
	DefaultDeleteDelay = 500 * time.Millisecond
	// MaxBatchDelete is the provider's limit for one batchDelete call.
	MaxBatchDelete = 1000
	// LabelInbox is the default sync label.
	LabelInbox = "INBOX"
)

// Options tunes paging, batching and pacing.
type Options struct {
	PageSize    int
	BatchSize   int
	PageDelay   time.Duration
	BatchDelay  time.Duration
	ItemDelay   time.Duration
	DeleteDelay time.Duration
	DeleteChunk int
	// Sequential fetches batch items one at a time with ItemDelay between them.
	Sequential bool
	SyncQuery  Query
}

// DefaultOptions returns the quota-safe defaults.
func DefaultOptions() Options {
	return Options{
		PageSize:    DefaultPageSize,
		BatchSize:   DefaultBatchSize,
		PageDelay:   DefaultPageDelay,
		BatchDelay:  DefaultBatchDelay,
		ItemDelay:   DefaultItemDelay,
		DeleteDelay: DefaultDeleteDelay,
		DeleteChunk: MaxBatchDelete,
		SyncQuery:   Query{LabelIDs: []string{LabelInbox}},
	}
}

// Pacer waits out fixed pacing delays.
type Pacer interface {
	Pause(ctx context.Context, d time.Duration) error
}

// SleepPacer pauses on a real timer.
type SleepPacer struct{}

func (SleepPacer) Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ResultStore persists the latest analysis result.
type ResultStore interface {
	SaveAnalysis(ctx context.Context, r model.AnalysisResult) error
	// UpdateAnalysis applies fn to the stored result and saves it. It is a
	// no-op when nothing is stored.
	UpdateAnalysis(ctx context.Context, fn func(*model.AnalysisResult) error) error
}

// Syncer drives the sync and delete flows.
type Syncer struct {
	API     API
	Store   ResultStore
	Pacer   Pacer
	Logger  *slog.Logger
	Options Options
	Clock   func() time.Time
}

// NewSyncer returns a Syncer with default options and real pacing.
func NewSyncer(api API, store ResultStore, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Syncer{
		API:     api,
		Store:   store,
		Pacer:   SleepPacer{},
		Logger:  logger,
		Options: DefaultOptions(),
		Clock:   time.Now,
	}
}

// Sync lists up to maxResults messages (maxResults <= 0 lists everything),
// fetches their metadata, aggregates by sender and stores the result.
func (s *Syncer) Sync(ctx context.Context, maxResults int, progress model.ProgressFunc) (model.AnalysisResult, error) {
	report := newReporter(progress)
	report("Listing messages", 0)

	ids, err := s.listIDs(ctx, s.Options.SyncQuery, maxResults, func(collected int, more bool) {
		pct := 5
		if maxResults > 0 {
			pct = 30 * collected / maxResults
		} else if !more {
			pct = 30
		}
		report("Listing messages", pct)
	})
	if err != nil {
		return model.AnalysisResult{}, err
	}
	s.logger().InfoContext(ctx, "listed messages", "count", len(ids))
	report("Fetching details", 30)

	summaries, skipped, err := s.fetchDetails(ctx, ids, s.Options.BatchSize, func(done int) {
		report("Fetching details", 30+60*done/len(ids))
	})
	if err != nil {
		return model.AnalysisResult{}, fmt.Errorf("fetch details: %w", err)
	}
	if skipped > 0 {
		s.logger().WarnContext(ctx, "some messages could not be read", "skipped", skipped)
	}

	report("Analyzing senders", 90)
	res := analysis.Aggregate(summaries)
	res.Stats.SkippedMessages = skipped
	res.GeneratedAt = s.now()

	if s.Store != nil {
		if err := s.Store.SaveAnalysis(ctx, res); err != nil {
			return res, fmt.Errorf("save analysis: %w", err)
		}
	}
	report("Done", 100)
	s.logger().InfoContext(ctx, "sync complete",
		"senders", res.Stats.TotalSenders,
		"messages", res.Stats.TotalMessages,
		"skipped", skipped)
	return res, nil
}

func (s *Syncer) pause(ctx context.Context, d time.Duration) error {
	if s.Pacer == nil {
		return SleepPacer{}.Pause(ctx, d)
	}
	return s.Pacer.Pause(ctx, d)
}

func (s *Syncer) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}

func (s *Syncer) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// newReporter wraps fn so reported percentages never decrease and stay
// within 0..100.
func newReporter(fn model.ProgressFunc) func(stage string, pct int) {
	last := 0
	return func(stage string, pct int) {
		if fn == nil {
			return
		}
		pct = min(max(pct, last), 100)
		last = pct
		fn(model.Progress{Stage: stage, Percent: pct})
	}
}
