// Package textproc turns raw article text into the normalized token strings
// fed to embedding and keyword extraction.
package textproc

import (
	"strings"
	"unicode"

	"github.com/TobiSchelling/NewsTopics/internal/collect"
)

// Preprocessor maps raw text to a space-separated token string. An empty
// result means the document has nothing to model.
type Preprocessor interface {
	Normalize(text string) string
}

// DefaultStopwords are particles, auxiliaries and newsroom boilerplate that
// carry no topical signal in Korean news text.
var DefaultStopwords = []string{
	"은", "는", "이", "가", "을", "를", "에", "에서", "와", "과", "하다", "이다", "되다", "되",
	"것", "수", "고", "다", "습니다", "등", "있다", "있", "으로", "에게", "하여", "이번", "지난",
	"말", "기자", "사진", "씨", "명", "년", "월", "일", "오전", "오후", "시", "분", "초", "지난달",
	"이번달", "새로운", "각각", "오직", "특히", "점", "또한", "통해", "그간", "따라", "대한",
	"관련", "때문", "로부터", "까지", "바로", "물론", "대비", "위해",
}

// Trailing postpositions removed from Hangul tokens, longest first.
var particles = []string{
	"으로부터", "로부터", "에서는", "에게서", "까지", "에서", "에게", "으로", "보다", "부터",
	"은", "는", "이", "가", "을", "를", "에", "의", "와", "과", "도", "로", "만",
}

// Normalizer is a dictionary-free tokenizer for mixed Hangul/Latin text.
type Normalizer struct {
	minLen    int
	stopwords map[string]struct{}
}

// NewNormalizer builds a normalizer with the default stopwords plus extra.
func NewNormalizer(minTokenLength int, extra []string) *Normalizer {
	if minTokenLength <= 0 {
		minTokenLength = 2
	}
	stop := make(map[string]struct{}, len(DefaultStopwords)+len(extra))
	for _, w := range DefaultStopwords {
		stop[w] = struct{}{}
	}
	for _, w := range extra {
		stop[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return &Normalizer{minLen: minTokenLength, stopwords: stop}
}

// Normalize strips markup, keeps only Hangul and Latin letters, lowercases,
// trims particles and drops stopwords and short tokens.
func (n *Normalizer) Normalize(text string) string {
	text = collect.CleanText(text)

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.Is(unicode.Hangul, r):
			return r
		case r < unicode.MaxASCII && unicode.IsLetter(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, text)

	var tokens []string
	for _, word := range strings.Fields(cleaned) {
		word = n.trimParticle(word)
		if _, ok := n.stopwords[word]; ok {
			continue
		}
		if len([]rune(word)) < n.minLen {
			continue
		}
		tokens = append(tokens, word)
	}
	return strings.Join(tokens, " ")
}

func (n *Normalizer) trimParticle(word string) string {
	if _, ok := n.stopwords[word]; ok {
		return word
	}
	for _, p := range particles {
		if !strings.HasSuffix(word, p) {
			continue
		}
		stem := strings.TrimSuffix(word, p)
		if len([]rune(stem)) >= 2 && isHangul(stem) {
			return stem
		}
	}
	return word
}

func isHangul(s string) bool {
	for _, r := range s {
		if !unicode.Is(unicode.Hangul, r) {
			return false
		}
	}
	return true
}
