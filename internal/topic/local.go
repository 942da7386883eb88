package topic

import (
	"context"
	"fmt"
	"sort"
)

const DefaultDistanceThreshold = 1.2

// WardOptions tunes the local model.
type WardOptions struct {
	DistanceThreshold float64
	MinTopicSize      int
	TopNWords         int
	RefineThreshold   float64
}

// WardModel is an in-process Model: Ward clustering over embeddings, small
// clusters folded into noise, and class-based TF-IDF keywords.
type WardModel struct {
	opts WardOptions
}

var _ Model = (*WardModel)(nil)

// NewWardModel creates a local model.
func NewWardModel(opts WardOptions) *WardModel {
	if opts.DistanceThreshold <= 0 {
		opts.DistanceThreshold = DefaultDistanceThreshold
	}
	if opts.MinTopicSize <= 0 {
		opts.MinTopicSize = 10
	}
	if opts.TopNWords <= 0 {
		opts.TopNWords = 10
	}
	return &WardModel{opts: opts}
}

// Assign clusters the embeddings. Topic ids run 0..k-1 by descending size,
// ties broken by earliest member; clusters below MinTopicSize become noise.
func (m *WardModel) Assign(ctx context.Context, docs []string, embeddings [][]float64) ([]Assignment, error) {
	if len(docs) != len(embeddings) {
		return nil, fmt.Errorf("got %d documents but %d embeddings", len(docs), len(embeddings))
	}
	if err := checkDimensions(embeddings); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	labels := clusterEmbeddings(embeddings, m.opts.DistanceThreshold)

	type group struct {
		label, first, size int
	}
	byLabel := make(map[int]*group)
	var groups []*group
	for i, l := range labels {
		g, ok := byLabel[l]
		if !ok {
			g = &group{label: l, first: i}
			byLabel[l] = g
			groups = append(groups, g)
		}
		g.size++
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].size != groups[j].size {
			return groups[i].size > groups[j].size
		}
		return groups[i].first < groups[j].first
	})

	topicOf := make(map[int]int, len(groups))
	next := 0
	for _, g := range groups {
		if g.size < m.opts.MinTopicSize {
			topicOf[g.label] = NoiseTopic
			continue
		}
		topicOf[g.label] = next
		next++
	}

	out := make([]Assignment, len(labels))
	for i, l := range labels {
		out[i] = Assignment{TopicID: topicOf[l]}
	}

	cents := centroids(embeddings, out)
	for i := range out {
		if c, ok := cents[out[i].TopicID]; ok {
			out[i].Probability = clamp01(cosine(embeddings[i], c))
		}
	}
	return out, nil
}

// Refine moves each noise document to the topic whose centroid is most
// similar, when that similarity reaches RefineThreshold.
func (m *WardModel) Refine(ctx context.Context, docs []string, embeddings [][]float64, initial []Assignment) ([]Assignment, error) {
	if len(initial) != len(embeddings) {
		return nil, fmt.Errorf("got %d assignments but %d embeddings", len(initial), len(embeddings))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cents := centroids(embeddings, initial)
	ids := make([]int, 0, len(cents))
	for id := range cents {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]Assignment, len(initial))
	copy(out, initial)
	if len(ids) == 0 {
		return out, nil
	}

	for i, a := range initial {
		if a.TopicID != NoiseTopic {
			continue
		}
		best, bestSim := NoiseTopic, -2.0
		for _, id := range ids {
			if sim := cosine(embeddings[i], cents[id]); sim > bestSim {
				best, bestSim = id, sim
			}
		}
		if bestSim >= m.opts.RefineThreshold {
			out[i] = Assignment{TopicID: best, Probability: clamp01(bestSim)}
		}
	}
	return out, nil
}

// Describe counts members and extracts keywords per topic id. The noise
// topic is listed first when it has members, then topics in id order.
func (m *WardModel) Describe(ctx context.Context, docs []string, assignments []Assignment) ([]Info, error) {
	if len(docs) != len(assignments) {
		return nil, fmt.Errorf("got %d documents but %d assignments", len(docs), len(assignments))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	counts := make(map[int]int)
	for _, a := range assignments {
		counts[a.TopicID]++
	}
	keywords := keywordsByTopic(docs, assignments, m.opts.TopNWords)

	ids := make([]int, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	infos := make([]Info, 0, len(ids))
	for _, id := range ids {
		kws := keywords[id]
		if kws == nil {
			kws = []string{}
		}
		infos = append(infos, Info{
			TopicID:        id,
			Count:          counts[id],
			Name:           FormatName(id, kws),
			Representation: kws,
		})
	}
	return infos, nil
}
