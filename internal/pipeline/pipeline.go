package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/NewsTopics/internal/collect"
	"github.com/TobiSchelling/NewsTopics/internal/database"
	"github.com/TobiSchelling/NewsTopics/internal/fetch"
	"github.com/TobiSchelling/NewsTopics/internal/textproc"
	"github.com/TobiSchelling/NewsTopics/internal/topic"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	RunID        string
	AnalysisDate time.Time
	Steps        []StepResult
	// Skipped is set when the window held nothing to model. No run is
	// written in that case.
	Skipped   bool
	Degraded  bool
	Persisted *database.PersistResult
}

// Collector gathers in-window articles anchored at a run timestamp.
type Collector interface {
	CollectAt(ctx context.Context, terms []string, now time.Time) *collect.Result
}

// Enricher replaces search snippets with full article text in place.
type Enricher interface {
	Enrich(ctx context.Context, articles []collect.Article) *fetch.Result
}

// Analyzer assigns normalized documents to topics.
type Analyzer interface {
	Analyze(ctx context.Context, docs []string) (*topic.Result, error)
}

// Store is the write side of the database.
type Store interface {
	PersistRun(ctx context.Context, run *database.Run) (*database.PersistResult, error)
	RecordFailedRun(ctx context.Context, runID string, analysisDate time.Time, articleCount int, runErr error) error
}

// Deps are the collaborators of one pipeline. Enricher may be nil.
type Deps struct {
	Collector    Collector
	Enricher     Enricher
	Preprocessor textproc.Preprocessor
	Analyzer     Analyzer
	Store        Store
	Terms        []string
	Location     *time.Location
}

// Pipeline runs collect, fetch, preprocess, model and persist for one
// analysis timestamp.
type Pipeline struct {
	deps       Deps
	logger     *slog.Logger
	newRunID   func() string
	retryDelay time.Duration
}

// New creates a pipeline from explicit collaborators.
func New(deps Deps, logger *slog.Logger) *Pipeline {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		deps:       deps,
		logger:     logger.With("component", "pipeline"),
		newRunID:   uuid.NewString,
		retryDelay: 5 * time.Second,
	}
}

// document is an article that survived preprocessing.
type document struct {
	article   collect.Article
	processed string
}

// Run executes the pipeline once with its window anchored at at. An empty
// window is a skip, not an error.
func (p *Pipeline) Run(ctx context.Context, at time.Time) (*Result, error) {
	at = at.In(p.deps.Location).Truncate(time.Second)
	r := &Result{RunID: p.newRunID(), AnalysisDate: at}
	logger := p.logger.With("run_id", r.RunID, "analysis_date", database.FormatAnalysisDate(at))

	// Step 1: Collect
	logger.Info("step 1/5: collecting articles", "terms", len(p.deps.Terms))
	collected := p.deps.Collector.CollectAt(ctx, p.deps.Terms, at)
	r.Steps = append(r.Steps, StepResult{
		Name: "Collect",
		Summary: fmt.Sprintf("Found %d articles (%d in window, %d duplicates, %d failed fetches)",
			len(collected.Articles), collected.TotalFound, collected.Duplicates, len(collected.Failures)),
	})
	if len(collected.Articles) == 0 {
		logger.Info("no articles in window, skipping run")
		r.Skipped = true
		return r, nil
	}

	// Step 2: Fetch content
	if p.deps.Enricher != nil {
		logger.Info("step 2/5: fetching article content")
		fetched := p.deps.Enricher.Enrich(ctx, collected.Articles)
		r.Steps = append(r.Steps, StepResult{
			Name:    "Fetch",
			Summary: fmt.Sprintf("Fetched %d articles, %d skipped, %d failed", fetched.Fetched, fetched.Skipped, fetched.Failed),
		})
	}

	// Step 3: Preprocess
	logger.Info("step 3/5: preprocessing")
	docs := p.preprocess(collected.Articles)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Preprocess",
		Summary: fmt.Sprintf("%d of %d articles have modelable text", len(docs), len(collected.Articles)),
	})
	if len(docs) == 0 {
		logger.Info("no article survived preprocessing, skipping run")
		r.Skipped = true
		return r, nil
	}

	// Step 4: Model
	logger.Info("step 4/5: assigning topics", "documents", len(docs))
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.processed
	}
	modeled, err := p.deps.Analyzer.Analyze(ctx, texts)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Model", Err: err})
		logger.Error("topic assignment failed", "error", err)
		p.recordFailure(ctx, logger, r, len(docs), err)
		return r, fmt.Errorf("topic assignment: %w", err)
	}
	r.Degraded = modeled.Degraded
	r.Steps = append(r.Steps, StepResult{
		Name:    "Model",
		Summary: modelSummary(modeled),
	})

	// Step 5: Persist
	logger.Info("step 5/5: persisting run")
	run := &database.Run{
		RunID:        r.RunID,
		AnalysisDate: at,
		Articles:     make([]database.NewArticle, len(docs)),
		Assignments:  modeled.Assignments,
		Topics:       modeled.Topics,
		Degraded:     modeled.Degraded,
	}
	for i, d := range docs {
		run.Articles[i] = database.NewArticle{
			Link:          d.article.Link,
			Title:         d.article.Title,
			Description:   d.article.Description,
			Published:     d.article.Published,
			RawText:       d.article.RawText,
			ProcessedText: d.processed,
		}
	}

	persisted, err := p.deps.Store.PersistRun(ctx, run)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Persist", Err: err})
		var perr *database.PersistError
		if errors.As(err, &perr) {
			logger.Error("persisting run failed", "stage", perr.Stage, "error", perr.Err)
		} else {
			logger.Error("persisting run failed", "error", err)
		}
		p.recordFailure(ctx, logger, r, len(docs), err)
		return r, err
	}
	r.Persisted = persisted
	r.Steps = append(r.Steps, StepResult{
		Name: "Persist",
		Summary: fmt.Sprintf("Stored %d articles (%d new, %d updated), %d assignments, %d topics",
			persisted.Inserted+persisted.Updated, persisted.Inserted, persisted.Updated,
			persisted.Assignments, persisted.Topics),
	})
	logger.Info("run complete", "articles", len(docs), "topics", len(modeled.Topics), "degraded", modeled.Degraded)
	return r, nil
}

// RunWithRetry re-executes the whole pipeline for the same timestamp after a
// persistence failure. Other failures are returned immediately.
func (p *Pipeline) RunWithRetry(ctx context.Context, at time.Time, attempts int) (*Result, error) {
	if attempts < 1 {
		attempts = 1
	}
	var (
		r   *Result
		err error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		r, err = p.Run(ctx, at)
		var perr *database.PersistError
		if err == nil || !errors.As(err, &perr) {
			return r, err
		}
		if attempt < attempts {
			p.logger.Warn("run failed while persisting, retrying",
				"attempt", attempt, "of", attempts, "stage", perr.Stage)
			select {
			case <-ctx.Done():
				return r, ctx.Err()
			case <-time.After(p.retryDelay):
			}
		}
	}
	return r, err
}

// DryRun collects and preprocesses without modeling or writing anything.
func (p *Pipeline) DryRun(ctx context.Context, at time.Time) *Result {
	at = at.In(p.deps.Location).Truncate(time.Second)
	r := &Result{AnalysisDate: at}

	collected := p.deps.Collector.CollectAt(ctx, p.deps.Terms, at)
	r.Steps = append(r.Steps, StepResult{
		Name: "Collect",
		Summary: fmt.Sprintf("[dry-run] %d articles in window since %s (%d duplicates, %d failed fetches)",
			len(collected.Articles), collected.WindowStart.Format(time.RFC3339), collected.Duplicates, len(collected.Failures)),
	})

	docs := p.preprocess(collected.Articles)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Preprocess",
		Summary: fmt.Sprintf("[dry-run] %d articles would be modeled", len(docs)),
	})
	r.Steps = append(r.Steps, StepResult{
		Name:    "Persist",
		Summary: fmt.Sprintf("[dry-run] Would write run for %s", database.FormatAnalysisDate(at)),
	})
	r.Skipped = len(docs) == 0
	return r
}

func (p *Pipeline) preprocess(articles []collect.Article) []document {
	docs := make([]document, 0, len(articles))
	for _, a := range articles {
		processed := p.deps.Preprocessor.Normalize(a.RawText)
		if processed == "" {
			continue
		}
		docs = append(docs, document{article: a, processed: processed})
	}
	return docs
}

func (p *Pipeline) recordFailure(ctx context.Context, logger *slog.Logger, r *Result, articleCount int, runErr error) {
	if err := p.deps.Store.RecordFailedRun(ctx, r.RunID, r.AnalysisDate, articleCount, runErr); err != nil {
		logger.Error("recording failed run", "error", err)
	}
}

func modelSummary(res *topic.Result) string {
	topics, noise := 0, 0
	for _, t := range res.Topics {
		if t.TopicID != topic.NoiseTopic {
			topics++
		}
	}
	for _, a := range res.Assignments {
		if a.TopicID == topic.NoiseTopic {
			noise++
		}
	}
	s := fmt.Sprintf("Assigned %d articles to %d topics (%d noise)", len(res.Assignments), topics, noise)
	if res.Degraded {
		s += ", refinement failed"
	}
	return s
}
