// Package query is the read-only surface over stored runs. Every front end
// (CLI, HTTP) goes through Service so filters, validation and noise
// exclusion behave the same everywhere.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/TobiSchelling/NewsTopics/internal/database"
	"github.com/TobiSchelling/NewsTopics/internal/topic"
)

// ErrInvalidInput matches every Error of kind KindInvalid.
var ErrInvalidInput = errors.New("invalid input")

type Kind string

const (
	KindInvalid     Kind = "invalid"
	KindUnavailable Kind = "unavailable"
)

// Error is returned by every Service operation that fails. An empty result
// is never an error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error {
	if e.Kind == KindInvalid {
		return ErrInvalidInput
	}
	return e.Err
}

func invalid(format string, args ...any) error {
	return &Error{Kind: KindInvalid, Message: fmt.Sprintf(format, args...)}
}

func unavailable(op string, err error) error {
	return &Error{Kind: KindUnavailable, Message: fmt.Sprintf("%s: storage unavailable: %v", op, err), Err: err}
}

// Reader is the storage surface the service reads from.
type Reader interface {
	AnalysisDays(ctx context.Context, limit int) ([]string, error)
	ArticlesInRange(ctx context.Context, f database.RangeFilter) ([]database.ArticleTopic, error)
	TopicForDay(ctx context.Context, day string, topicID int) (*database.TopicSummary, error)
	ProcessedTexts(ctx context.Context, day string, topicID int) ([]string, error)
	TopicTrends(ctx context.Context, startDay, endDay string, topicID *int, minCount int) ([]database.TrendPoint, error)
	GetStats(ctx context.Context) (*database.Stats, error)
}

type Options struct {
	TrendMinCount int
	KeywordTopN   int
	Location      *time.Location
}

type Service struct {
	reader Reader
	opts   Options
	now    func() time.Time
	logger *slog.Logger
}

func NewService(reader Reader, opts Options, logger *slog.Logger) *Service {
	if opts.TrendMinCount <= 0 {
		opts.TrendMinCount = 10
	}
	if opts.KeywordTopN <= 0 {
		opts.KeywordTopN = 20
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Service{reader: reader, opts: opts, now: time.Now, logger: logger.With("component", "query")}
}

// SetClock overrides the clock used to anchor trend windows.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// ArticleQuery filters Articles. Days are YYYY-MM-DD and inclusive.
type ArticleQuery struct {
	Start   string
	End     string
	TopicID *int
	Keyword string
}

// KeywordFrequency is one token and how often it occurs.
type KeywordFrequency struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// KeywordReport describes one topic on one day. Representation holds the
// stored keywords; TopKeywords is only set when they were missing and the
// frequencies had to be computed from article texts.
type KeywordReport struct {
	Date           string             `json:"date"`
	TopicID        int                `json:"topic_id"`
	TopicName      string             `json:"topic_name,omitempty"`
	TopicCount     int                `json:"topic_count,omitempty"`
	Representation []string           `json:"representation,omitempty"`
	TopKeywords    []KeywordFrequency `json:"top_keywords,omitempty"`
	Computed       bool               `json:"computed"`
	TotalArticles  int                `json:"total_articles,omitempty"`
}

// TrendReport is the trailing-window trend view.
type TrendReport struct {
	Start  string                `json:"start_date"`
	End    string                `json:"end_date"`
	Days   int                   `json:"days"`
	Points []database.TrendPoint `json:"trends"`
}

// Dates lists run days, most recent first. limit <= 0 returns every day.
func (s *Service) Dates(ctx context.Context, limit int) ([]string, error) {
	if limit < 0 {
		return nil, invalid("limit must not be negative, got %d", limit)
	}
	days, err := s.reader.AnalysisDays(ctx, limit)
	if err != nil {
		return nil, unavailable("listing dates", err)
	}
	if days == nil {
		days = []string{}
	}
	return days, nil
}

// Articles returns the assignments in a day range, newest day first.
func (s *Service) Articles(ctx context.Context, q ArticleQuery) ([]database.ArticleTopic, error) {
	start, err := database.ParseDay(q.Start)
	if err != nil {
		return nil, invalid("start: %v", err)
	}
	end, err := database.ParseDay(q.End)
	if err != nil {
		return nil, invalid("end: %v", err)
	}
	if start.After(end) {
		return nil, invalid("start %s is after end %s", q.Start, q.End)
	}
	if err := checkTopic(q.TopicID); err != nil {
		return nil, err
	}

	rows, err := s.reader.ArticlesInRange(ctx, database.RangeFilter{
		StartDay: q.Start,
		EndDay:   q.End,
		TopicID:  q.TopicID,
		Keyword:  strings.TrimSpace(q.Keyword),
	})
	if err != nil {
		return nil, unavailable("fetching articles", err)
	}
	if rows == nil {
		rows = []database.ArticleTopic{}
	}
	s.logger.Debug("articles fetched", "start", q.Start, "end", q.End, "rows", len(rows))
	return rows, nil
}

// KeywordFrequency returns the keywords of one topic on one day. Stored
// representative keywords win; without them the topic's article texts of
// that day are counted.
func (s *Service) KeywordFrequency(ctx context.Context, date string, topicID int) (*KeywordReport, error) {
	if _, err := database.ParseDay(date); err != nil {
		return nil, invalid("date: %v", err)
	}
	if err := checkTopic(&topicID); err != nil {
		return nil, err
	}

	report := &KeywordReport{Date: date, TopicID: topicID}

	info, err := s.reader.TopicForDay(ctx, date, topicID)
	if err != nil {
		return nil, unavailable("loading topic info", err)
	}
	if info != nil {
		report.TopicName = info.Name
		report.TopicCount = info.Count
		if len(info.Representation) > 0 {
			report.Representation = info.Representation
			return report, nil
		}
	}

	texts, err := s.reader.ProcessedTexts(ctx, date, topicID)
	if err != nil {
		return nil, unavailable("loading article texts", err)
	}
	report.Computed = true
	report.TotalArticles = len(texts)
	report.TopKeywords = TokenFrequency(texts, s.opts.KeywordTopN)
	return report, nil
}

// Trends returns per-day topic counts over the trailing days ending today.
// Without a topic filter, topic/day pairs under the minimum count are left out.
func (s *Service) Trends(ctx context.Context, days int, topicID *int) (*TrendReport, error) {
	if days < 1 {
		return nil, invalid("days must be at least 1, got %d", days)
	}
	if err := checkTopic(topicID); err != nil {
		return nil, err
	}

	start, end := database.TrailingDays(s.now().In(s.opts.Location), days)
	points, err := s.reader.TopicTrends(ctx, start, end, topicID, s.opts.TrendMinCount)
	if err != nil {
		return nil, unavailable("aggregating trends", err)
	}
	if points == nil {
		points = []database.TrendPoint{}
	}
	return &TrendReport{Start: start, End: end, Days: days, Points: points}, nil
}

// Status returns storage totals and the latest run.
func (s *Service) Status(ctx context.Context) (*database.Stats, error) {
	stats, err := s.reader.GetStats(ctx)
	if err != nil {
		return nil, unavailable("reading status", err)
	}
	return stats, nil
}

func checkTopic(topicID *int) error {
	if topicID == nil {
		return nil
	}
	if *topicID == topic.NoiseTopic {
		return invalid("topic %d is the noise topic and is never reported", topic.NoiseTopic)
	}
	if *topicID < 0 {
		return invalid("topic id must not be negative, got %d", *topicID)
	}
	return nil
}

// TokenFrequency counts whitespace-separated tokens longer than one rune and
// returns the topN most frequent. Ties keep first-seen order.
func TokenFrequency(texts []string, topN int) []KeywordFrequency {
	counts := make(map[string]int)
	var order []string
	for _, text := range texts {
		for _, tok := range strings.Fields(text) {
			if utf8.RuneCountInString(tok) <= 1 {
				continue
			}
			if _, seen := counts[tok]; !seen {
				order = append(order, tok)
			}
			counts[tok]++
		}
	}

	out := make([]KeywordFrequency, len(order))
	for i, tok := range order {
		out[i] = KeywordFrequency{Keyword: tok, Count: counts[tok]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}
