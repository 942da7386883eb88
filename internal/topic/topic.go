// Package topic assigns documents to discovered topic clusters and describes
// each topic with a label and representative keywords.
package topic

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// NoiseTopic is the reserved id for documents that fit no topic.
const NoiseTopic = -1

// ErrRefine marks a failed refinement pass. The run continues with the
// initial assignments.
var ErrRefine = errors.New("topic refinement failed")

// Assignment is one document's topic and membership probability.
type Assignment struct {
	TopicID     int     `json:"topic_id"`
	Probability float64 `json:"probability"`
}

// Info describes one topic of a batch.
type Info struct {
	TopicID        int      `json:"topic_id"`
	Count          int      `json:"count"`
	Name           string   `json:"name"`
	Representation []string `json:"representation"`
}

// Model is the clustering collaborator. Implementations must return exactly
// one assignment per document, in input order.
type Model interface {
	Assign(ctx context.Context, docs []string, embeddings [][]float64) ([]Assignment, error)
	// Refine reassigns noise documents to their best-fitting topic.
	Refine(ctx context.Context, docs []string, embeddings [][]float64, initial []Assignment) ([]Assignment, error)
	// Describe summarises the final assignments per topic id.
	Describe(ctx context.Context, docs []string, assignments []Assignment) ([]Info, error)
}

// FormatName builds the default "<id>_<kw1>_<kw2>_<kw3>_<kw4>" topic name.
func FormatName(topicID int, keywords []string) string {
	name := fmt.Sprintf("%d", topicID)
	for i, kw := range keywords {
		if i == 4 {
			break
		}
		name += "_" + kw
	}
	return name
}

func checkAssignments(assignments []Assignment, n int) error {
	if len(assignments) != n {
		return fmt.Errorf("expected %d assignments, got %d", n, len(assignments))
	}
	for i, a := range assignments {
		if a.TopicID < NoiseTopic {
			return fmt.Errorf("assignment %d: invalid topic id %d", i, a.TopicID)
		}
		if math.IsNaN(a.Probability) || a.Probability < 0 || a.Probability > 1 {
			return fmt.Errorf("assignment %d: probability %v outside [0,1]", i, a.Probability)
		}
	}
	return nil
}

// checkDimensions rejects empty or ragged embedding matrices.
func checkDimensions(embeddings [][]float64) error {
	if len(embeddings) == 0 {
		return nil
	}
	dim := len(embeddings[0])
	if dim == 0 {
		return errors.New("embedding 0 is empty")
	}
	for i, e := range embeddings {
		if len(e) != dim {
			return fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(e), dim)
		}
	}
	return nil
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// centroids returns the mean embedding of each non-noise topic.
func centroids(embeddings [][]float64, assignments []Assignment) map[int][]float64 {
	sums := make(map[int][]float64)
	counts := make(map[int]int)
	for i, a := range assignments {
		if a.TopicID == NoiseTopic {
			continue
		}
		s, ok := sums[a.TopicID]
		if !ok {
			s = make([]float64, len(embeddings[i]))
			sums[a.TopicID] = s
		}
		for k, v := range embeddings[i] {
			if k < len(s) {
				s[k] += v
			}
		}
		counts[a.TopicID]++
	}
	for id, s := range sums {
		for k := range s {
			s[k] /= float64(counts[id])
		}
	}
	return sums
}
