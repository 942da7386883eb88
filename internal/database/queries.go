package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/TobiSchelling/NewsTopics/internal/topic"
)

// latestRun restricts an aliased table to the most recent run of each day.
func latestRun(alias string) string {
	return fmt.Sprintf(
		"%[1]s.analysis_date = (SELECT MAX(r.analysis_date) FROM topic_results r WHERE r.analysis_day = %[1]s.analysis_day)",
		alias)
}

// ArticlesInRange returns non-noise assignments from the latest run of each
// day within the filter's days, newest day first and most confident first
// within a day.
func (db *DB) ArticlesInRange(ctx context.Context, f RangeFilter) ([]ArticleTopic, error) {
	qb := db.builder().
		Select("a.id", "a.title", "a.link", "a.description", "a.pub_date",
			"tr.topic_id", "tr.probability", "tr.analysis_date", "tr.analysis_day",
			"ti.topic_name", "ti.topic_count", "ti.representation").
		From("articles a").
		Join("topic_results tr ON tr.article_id = a.id").
		LeftJoin("topic_info ti ON ti.analysis_date = tr.analysis_date AND ti.topic_id = tr.topic_id").
		Where(sq.Expr("tr.analysis_day BETWEEN ? AND ?", f.StartDay, f.EndDay)).
		Where(latestRun("tr")).
		Where(sq.NotEq{"tr.topic_id": topic.NoiseTopic}).
		OrderBy("tr.analysis_day DESC", "tr.probability DESC", "a.id ASC")

	if f.TopicID != nil {
		qb = qb.Where(sq.Eq{"tr.topic_id": *f.TopicID})
	}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		pattern := "%" + escapeLike(strings.ToLower(kw)) + "%"
		qb = qb.Where(sq.Or{
			sq.Expr(`LOWER(a.title) LIKE ? ESCAPE '\'`, pattern),
			sq.Expr(`LOWER(a.description) LIKE ? ESCAPE '\'`, pattern),
		})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticleTopics(rows)
}

// TopicArticles returns the most confident articles of one topic in one run.
func (db *DB) TopicArticles(ctx context.Context, analysisDate string, topicID, limit int) ([]ArticleTopic, error) {
	qb := db.builder().
		Select("a.id", "a.title", "a.link", "a.description", "a.pub_date",
			"tr.topic_id", "tr.probability", "tr.analysis_date", "tr.analysis_day",
			"ti.topic_name", "ti.topic_count", "ti.representation").
		From("articles a").
		Join("topic_results tr ON tr.article_id = a.id").
		LeftJoin("topic_info ti ON ti.analysis_date = tr.analysis_date AND ti.topic_id = tr.topic_id").
		Where(sq.Eq{"tr.analysis_date": analysisDate, "tr.topic_id": topicID}).
		OrderBy("tr.probability DESC", "a.id ASC")
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticleTopics(rows)
}

// AnalysisDays lists distinct run days, most recent first. limit <= 0 means all.
func (db *DB) AnalysisDays(ctx context.Context, limit int) ([]string, error) {
	qb := db.builder().
		Select("DISTINCT analysis_day").
		From("topic_results").
		OrderBy("analysis_day DESC")
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// LatestRunOfDay returns the most recent run timestamp on a day, or "" if
// the day has no runs.
func (db *DB) LatestRunOfDay(ctx context.Context, day string) (string, error) {
	var latest sql.NullString
	err := db.conn.QueryRowContext(ctx, db.rebind(
		`SELECT MAX(analysis_date) FROM topic_results WHERE analysis_day = ?`), day,
	).Scan(&latest)
	if err != nil {
		return "", err
	}
	return latest.String, nil
}

// TopicsForDay returns the non-noise topics of the day's latest run, largest first.
func (db *DB) TopicsForDay(ctx context.Context, day string) ([]TopicSummary, error) {
	qb := db.builder().
		Select("ti.analysis_date", "ti.analysis_day", "ti.topic_id", "ti.topic_count", "ti.topic_name", "ti.representation").
		From("topic_info ti").
		Where(sq.Eq{"ti.analysis_day": day}).
		Where(sq.NotEq{"ti.topic_id": topic.NoiseTopic}).
		Where(latestRun("ti")).
		OrderBy("ti.topic_count DESC", "ti.topic_id ASC")

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTopicSummaries(rows)
}

// TopicForDay returns one topic from the day's latest run, or nil.
func (db *DB) TopicForDay(ctx context.Context, day string, topicID int) (*TopicSummary, error) {
	qb := db.builder().
		Select("ti.analysis_date", "ti.analysis_day", "ti.topic_id", "ti.topic_count", "ti.topic_name", "ti.representation").
		From("topic_info ti").
		Where(sq.Eq{"ti.analysis_day": day, "ti.topic_id": topicID}).
		Where(latestRun("ti"))

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	topics, err := scanTopicSummaries(rows)
	if err != nil || len(topics) == 0 {
		return nil, err
	}
	return &topics[0], nil
}

// ProcessedTexts returns the normalized texts of the articles assigned to a
// topic in the day's latest run, in article id order.
func (db *DB) ProcessedTexts(ctx context.Context, day string, topicID int) ([]string, error) {
	qb := db.builder().
		Select("a.processed_text").
		From("articles a").
		Join("topic_results tr ON tr.article_id = a.id").
		Where(sq.Eq{"tr.analysis_day": day, "tr.topic_id": topicID}).
		Where(latestRun("tr")).
		OrderBy("a.id ASC")

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		texts = append(texts, s)
	}
	return texts, rows.Err()
}

// TopicTrends returns per-day topic counts between two days, using the latest
// run of each day. With no topic filter only counts >= minCount are kept.
func (db *DB) TopicTrends(ctx context.Context, startDay, endDay string, topicID *int, minCount int) ([]TrendPoint, error) {
	qb := db.builder().
		Select("ti.analysis_day", "ti.topic_id", "ti.topic_name", "ti.topic_count").
		From("topic_info ti").
		Where(sq.Expr("ti.analysis_day BETWEEN ? AND ?", startDay, endDay)).
		Where(sq.NotEq{"ti.topic_id": topic.NoiseTopic}).
		Where(latestRun("ti")).
		OrderBy("ti.analysis_day ASC", "ti.topic_count DESC", "ti.topic_id ASC")

	if topicID != nil {
		qb = qb.Where(sq.Eq{"ti.topic_id": *topicID})
	} else {
		qb = qb.Where(sq.GtOrEq{"ti.topic_count": minCount})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []TrendPoint
	for rows.Next() {
		var p TrendPoint
		if err := rows.Scan(&p.Day, &p.TopicID, &p.TopicName, &p.Count); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// GetArticleByLink returns a stored article, or nil.
func (db *DB) GetArticleByLink(ctx context.Context, link string) (*Article, error) {
	row := db.conn.QueryRowContext(ctx, db.rebind(
		`SELECT id, link, title, description, pub_date, raw_text, processed_text,
		analysis_date, created_at, updated_at
		FROM articles WHERE link = ?`), link,
	)
	var a Article
	err := row.Scan(&a.ID, &a.Link, &a.Title, &a.Description, &a.PubDate, &a.RawText,
		&a.ProcessedText, &a.AnalysisDate, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanArticleTopics(rows *sql.Rows) ([]ArticleTopic, error) {
	var out []ArticleTopic
	for rows.Next() {
		var at ArticleTopic
		var name, rep sql.NullString
		var count sql.NullInt64
		if err := rows.Scan(&at.ArticleID, &at.Title, &at.Link, &at.Description, &at.PubDate,
			&at.TopicID, &at.Probability, &at.AnalysisDate, &at.AnalysisDay,
			&name, &count, &rep); err != nil {
			return nil, err
		}
		at.TopicName = name.String
		at.TopicCount = int(count.Int64)
		at.Representation = decodeRepresentation(rep.String)
		out = append(out, at)
	}
	return out, rows.Err()
}

func scanTopicSummaries(rows *sql.Rows) ([]TopicSummary, error) {
	var out []TopicSummary
	for rows.Next() {
		var t TopicSummary
		var rep string
		if err := rows.Scan(&t.AnalysisDate, &t.AnalysisDay, &t.TopicID, &t.Count, &t.Name, &rep); err != nil {
			return nil, err
		}
		t.Representation = decodeRepresentation(rep)
		out = append(out, t)
	}
	return out, rows.Err()
}

func decodeRepresentation(s string) []string {
	if s == "" {
		return nil
	}
	var rep []string
	if err := json.Unmarshal([]byte(s), &rep); err != nil {
		return nil
	}
	return rep
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
