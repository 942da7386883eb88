package topic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/TobiSchelling/NewsTopics/internal/llm"
)

// ErrNoDocuments is returned when Analyze is called with an empty batch.
var ErrNoDocuments = errors.New("no documents to analyze")

// Result is one batch's topic assignment.
type Result struct {
	Assignments []Assignment // one per input document, in input order
	Topics      []Info
	// Degraded is set when refinement failed and the initial assignments
	// were kept. Probabilities are then not meaningful.
	Degraded  bool
	RefineErr error
}

// ClientOptions configures the assignment client.
type ClientOptions struct {
	Refine bool
}

// Client runs embedding, assignment, refinement and description for a batch
// of normalized documents. It holds no state between calls.
type Client struct {
	embedder llm.Embedder
	model    Model
	labeler  Labeler
	opts     ClientOptions
	logger   *slog.Logger
}

// NewClient creates a topic assignment client. labeler may be nil.
func NewClient(embedder llm.Embedder, model Model, labeler Labeler, opts ClientOptions, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		embedder: embedder,
		model:    model,
		labeler:  labeler,
		opts:     opts,
		logger:   logger,
	}
}

// Analyze assigns every document to a topic. A refinement failure falls back
// to the initial assignments; every other failure aborts the batch.
func (c *Client) Analyze(ctx context.Context, docs []string) (*Result, error) {
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}

	c.logger.Info("generating embeddings", "documents", len(docs))
	embeddings, err := c.embedder.Embed(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("embedding documents: %w", err)
	}
	if len(embeddings) != len(docs) {
		return nil, fmt.Errorf("embedding documents: expected %d vectors, got %d", len(docs), len(embeddings))
	}
	if err := checkDimensions(embeddings); err != nil {
		return nil, fmt.Errorf("embedding documents: %w", err)
	}

	assignments, err := c.model.Assign(ctx, docs, embeddings)
	if err != nil {
		return nil, fmt.Errorf("assigning topics: %w", err)
	}
	if err := checkAssignments(assignments, len(docs)); err != nil {
		return nil, fmt.Errorf("assigning topics: %w", err)
	}

	result := &Result{Assignments: assignments}

	if c.opts.Refine {
		refined, err := c.refine(ctx, docs, embeddings, assignments)
		if err != nil {
			result.Degraded = true
			result.RefineErr = err
			c.logger.Warn("refinement failed, keeping initial assignments", "error", err)
		} else {
			result.Assignments = refined
		}
	}

	topics, err := c.model.Describe(ctx, docs, result.Assignments)
	if err != nil {
		return nil, fmt.Errorf("describing topics: %w", err)
	}
	c.label(ctx, topics)
	result.Topics = topics

	noise := 0
	for _, a := range result.Assignments {
		if a.TopicID == NoiseTopic {
			noise++
		}
	}
	c.logger.Info("topic assignment complete",
		"documents", len(docs), "topics", len(topics), "noise", noise, "degraded", result.Degraded)
	return result, nil
}

func (c *Client) refine(ctx context.Context, docs []string, embeddings [][]float64, initial []Assignment) (out []Assignment, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrRefine, r)
		}
	}()

	refined, err := c.model.Refine(ctx, docs, embeddings, initial)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefine, err)
	}
	if err := checkAssignments(refined, len(docs)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefine, err)
	}
	return refined, nil
}

// label replaces topic names with LLM labels where available. Keywords are
// never touched; a labeling failure keeps the default name.
func (c *Client) label(ctx context.Context, topics []Info) {
	if c.labeler == nil {
		return
	}
	for i := range topics {
		if topics[i].TopicID == NoiseTopic {
			continue
		}
		name, err := c.labeler.Label(ctx, topics[i])
		if err != nil {
			c.logger.Debug("topic labeling failed", "topic_id", topics[i].TopicID, "error", err)
			continue
		}
		topics[i].Name = name
	}
}
