package topic

import (
	"math"
	"sort"
	"strings"
)

// keywordsByTopic ranks each topic's terms with class-based TF-IDF: term
// frequency within the topic, normalised by topic length, weighted by
// log(1 + avgWords / frequency across all topics).
func keywordsByTopic(docs []string, assignments []Assignment, topN int) map[int][]string {
	classTerms := make(map[int]map[string]int)
	classTotal := make(map[int]int)
	corpus := make(map[string]int)

	for i, doc := range docs {
		id := assignments[i].TopicID
		terms, ok := classTerms[id]
		if !ok {
			terms = make(map[string]int)
			classTerms[id] = terms
		}
		for _, tok := range strings.Fields(doc) {
			if len([]rune(tok)) <= 1 {
				continue
			}
			terms[tok]++
			classTotal[id]++
			corpus[tok]++
		}
	}
	if len(classTerms) == 0 {
		return nil
	}

	var totalWords int
	for _, n := range classTotal {
		totalWords += n
	}
	avgWords := float64(totalWords) / float64(len(classTerms))

	type scored struct {
		term  string
		score float64
	}

	out := make(map[int][]string, len(classTerms))
	for id, terms := range classTerms {
		if classTotal[id] == 0 {
			out[id] = nil
			continue
		}
		list := make([]scored, 0, len(terms))
		for term, n := range terms {
			tf := float64(n) / float64(classTotal[id])
			idf := math.Log(1 + avgWords/float64(corpus[term]))
			list = append(list, scored{term: term, score: tf * idf})
		}
		sort.Slice(list, func(i, j int) bool {
			if list[i].score != list[j].score {
				return list[i].score > list[j].score
			}
			return list[i].term < list[j].term
		})
		if topN > 0 && len(list) > topN {
			list = list[:topN]
		}
		kws := make([]string, len(list))
		for i, s := range list {
			kws[i] = s.term
		}
		out[id] = kws
	}
	return out
}
