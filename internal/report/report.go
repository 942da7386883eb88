// Package report renders one day's topics as a markdown digest.
package report

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/NewsTopics/internal/database"
	"github.com/TobiSchelling/NewsTopics/internal/llm"
)

// articlesPerTopic is how many top articles each topic section lists.
const articlesPerTopic = 5

const summaryPrompt = `다음은 오늘 뉴스에서 발견된 주요 토픽과 대표 키워드입니다.

%s

Write 3-5 bullet points in Korean that capture the most important takeaways across all topics. Each bullet is one sentence.

Respond with ONLY this JSON:
{
    "summary_bullets": [
        "First takeaway",
        "Second takeaway"
    ]
}`

var md = goldmark.New()

// Reader is the storage surface the composer reads from.
type Reader interface {
	TopicsForDay(ctx context.Context, day string) ([]database.TopicSummary, error)
	TopicArticles(ctx context.Context, analysisDate string, topicID, limit int) ([]database.ArticleTopic, error)
}

// Report is a composed daily digest.
type Report struct {
	Date         string
	Markdown     string
	TopicCount   int
	ArticleCount int
}

// Composer builds daily reports. provider may be nil, in which case the
// summary lists topic names.
type Composer struct {
	reader   Reader
	provider llm.Provider
	logger   *slog.Logger
}

func NewComposer(reader Reader, provider llm.Provider, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{reader: reader, provider: provider, logger: logger.With("component", "report")}
}

// Compose builds the report for day from that day's latest run.
func (c *Composer) Compose(ctx context.Context, day string) (*Report, error) {
	if _, err := database.ParseDay(day); err != nil {
		return nil, err
	}

	topics, err := c.reader.TopicsForDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("loading topics for %s: %w", day, err)
	}

	r := &Report{Date: day, TopicCount: len(topics)}
	var b strings.Builder
	fmt.Fprintf(&b, "# News topics: %s\n\n", database.FormatDayDisplay(day))

	if len(topics) == 0 {
		b.WriteString("No topics recorded for this day.\n")
		r.Markdown = b.String()
		c.logger.Info("no topics for day", "date", day)
		return r, nil
	}

	sections := make([]string, 0, len(topics))
	for _, t := range topics {
		articles, err := c.reader.TopicArticles(ctx, t.AnalysisDate, t.TopicID, articlesPerTopic)
		if err != nil {
			return nil, fmt.Errorf("loading articles for topic %d: %w", t.TopicID, err)
		}
		r.ArticleCount += t.Count
		sections = append(sections, topicSection(t, articles))
	}

	b.WriteString("## Summary\n\n")
	b.WriteString(c.summary(ctx, topics))
	b.WriteString("\n\n")
	b.WriteString(strings.Join(sections, "\n\n---\n\n"))
	b.WriteString("\n")

	r.Markdown = b.String()
	c.logger.Info("report composed", "date", day, "topics", r.TopicCount, "articles", r.ArticleCount)
	return r, nil
}

func (c *Composer) summary(ctx context.Context, topics []database.TopicSummary) string {
	if c.provider == nil {
		return fallbackSummary(topics)
	}

	var parts []string
	for _, t := range topics {
		parts = append(parts, fmt.Sprintf("- %s (%d건): %s", t.Name, t.Count, strings.Join(t.Representation, ", ")))
	}

	text, err := c.provider.Generate(ctx, fmt.Sprintf(summaryPrompt, strings.Join(parts, "\n")), 512)
	if err != nil || strings.TrimSpace(text) == "" {
		c.logger.Debug("summary generation failed, using topic list", "error", err)
		return fallbackSummary(topics)
	}

	var reply struct {
		SummaryBullets []string `json:"summary_bullets"`
	}
	if err := llm.DecodeJSON(text, &reply); err == nil {
		var lines []string
		for _, s := range reply.SummaryBullets {
			if s = strings.TrimSpace(s); s != "" {
				lines = append(lines, "- "+s)
			}
		}
		if len(lines) > 0 {
			return strings.Join(lines, "\n")
		}
	}
	return strings.TrimSpace(text)
}

func fallbackSummary(topics []database.TopicSummary) string {
	bullets := make([]string, len(topics))
	for i, t := range topics {
		bullets[i] = fmt.Sprintf("- %s (%d articles)", t.Name, t.Count)
	}
	return strings.Join(bullets, "\n")
}

func topicSection(t database.TopicSummary, articles []database.ArticleTopic) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", t.Name)
	fmt.Fprintf(&b, "Topic %d, %d articles.", t.TopicID, t.Count)
	if len(t.Representation) > 0 {
		fmt.Fprintf(&b, " Keywords: %s", strings.Join(t.Representation, ", "))
	}
	if len(articles) > 0 {
		b.WriteString("\n\n**Top articles:**\n")
		for _, a := range articles {
			fmt.Fprintf(&b, "\n- [%s](%s) (%.2f)", escapeLinkText(a.Title), a.Link, a.Probability)
		}
	}
	return b.String()
}

func escapeLinkText(s string) string {
	return strings.NewReplacer("[", `\[`, "]", `\]`).Replace(s)
}

// RenderHTML converts report markdown to an HTML fragment.
func RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
