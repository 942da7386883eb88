package database

import (
	"time"

	"github.com/TobiSchelling/NewsTopics/internal/topic"
)

// NewArticle is an article as handed to PersistRun.
type NewArticle struct {
	Link          string
	Title         string
	Description   string
	Published     time.Time
	RawText       string
	ProcessedText string
}

// Run is one completed pipeline run ready to be written. Assignments are
// parallel to Articles.
type Run struct {
	RunID        string
	AnalysisDate time.Time
	Articles     []NewArticle
	Assignments  []topic.Assignment
	Topics       []topic.Info
	Degraded     bool
}

// PersistResult summarises a committed run.
type PersistResult struct {
	Inserted    int
	Updated     int
	Assignments int
	Topics      int
}

// Article is a stored article.
type Article struct {
	ID            int64
	Link          string
	Title         string
	Description   string
	PubDate       string
	RawText       string
	ProcessedText string
	AnalysisDate  string
	CreatedAt     string
	UpdatedAt     string
}

// TopicSummary is a stored topic_info row.
type TopicSummary struct {
	AnalysisDate   string   `json:"analysis_date"`
	AnalysisDay    string   `json:"analysis_day"`
	TopicID        int      `json:"topic_id"`
	Count          int      `json:"topic_count"`
	Name           string   `json:"topic_name"`
	Representation []string `json:"representation"`
}

// ArticleTopic joins an article with one of its assignments and, when
// present, the topic's info for that run.
type ArticleTopic struct {
	ArticleID      int64    `json:"article_id"`
	Title          string   `json:"title"`
	Link           string   `json:"link"`
	Description    string   `json:"description"`
	PubDate        string   `json:"pub_date"`
	TopicID        int      `json:"topic_id"`
	Probability    float64  `json:"probability"`
	AnalysisDate   string   `json:"analysis_date"`
	AnalysisDay    string   `json:"analysis_day"`
	TopicName      string   `json:"topic_name,omitempty"`
	TopicCount     int      `json:"topic_count,omitempty"`
	Representation []string `json:"representation,omitempty"`
}

// RangeFilter selects ArticlesInRange rows. Days are YYYY-MM-DD, inclusive.
type RangeFilter struct {
	StartDay string
	EndDay   string
	TopicID  *int
	Keyword  string
}

// TrendPoint is one topic's member count on one day.
type TrendPoint struct {
	Day       string `json:"date"`
	TopicID   int    `json:"topic_id"`
	TopicName string `json:"topic_name"`
	Count     int    `json:"topic_count"`
}

// RunReport holds metadata about a pipeline run.
type RunReport struct {
	ID           int64  `json:"-"`
	RunID        string `json:"run_id"`
	AnalysisDate string `json:"analysis_date"`
	AnalysisDay  string `json:"analysis_day"`
	ArticleCount int    `json:"article_count"`
	TopicCount   int    `json:"topic_count"`
	NoiseCount   int    `json:"noise_count"`
	Degraded     bool   `json:"degraded"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
	CreatedAt    string `json:"created_at"`
}

const (
	RunSuccess = "success"
	RunFailed  = "failed"
)

// Stats contains aggregate database statistics.
type Stats struct {
	TotalArticles    int        `json:"total_articles"`
	TotalAssignments int        `json:"total_assignments"`
	AnalysisDays     int        `json:"analysis_days"`
	SuccessfulRuns   int        `json:"successful_runs"`
	FailedRuns       int        `json:"failed_runs"`
	LatestRun        *RunReport `json:"latest_run,omitempty"`
}
