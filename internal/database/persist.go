package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/TobiSchelling/NewsTopics/internal/topic"
)

// assignmentChunk bounds rows per multi-row insert to stay under bind limits.
const assignmentChunk = 500

// PersistError reports the write stage at which a run failed. Nothing from
// the run is committed when it is returned.
type PersistError struct {
	Stage string
	Err   error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persisting run (%s): %v", e.Stage, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// articleStore is the identity-resolution surface of the articles table.
type articleStore interface {
	// insertArticle inserts a new row and returns its id. ok is false when
	// the link already exists.
	insertArticle(ctx context.Context, a NewArticle, analysisDate string) (id int64, ok bool, err error)
	updateArticle(ctx context.Context, a NewArticle, analysisDate string) error
	articleID(ctx context.Context, link string) (int64, error)
}

// resolveOrCreate writes an article keyed by link and returns its stable id.
// An existing row keeps its id and has its mutable fields updated.
func resolveOrCreate(ctx context.Context, s articleStore, a NewArticle, analysisDate string) (int64, bool, error) {
	id, ok, err := s.insertArticle(ctx, a, analysisDate)
	if err != nil {
		return 0, false, fmt.Errorf("inserting %s: %w", a.Link, err)
	}
	if ok {
		return id, true, nil
	}
	if err := s.updateArticle(ctx, a, analysisDate); err != nil {
		return 0, false, fmt.Errorf("updating %s: %w", a.Link, err)
	}
	id, err = s.articleID(ctx, a.Link)
	if err != nil {
		return 0, false, fmt.Errorf("resolving id for %s: %w", a.Link, err)
	}
	return id, false, nil
}

// resolveArticleIDs resolves every article in order. ids[i] belongs to arts[i].
func resolveArticleIDs(ctx context.Context, s articleStore, arts []NewArticle, analysisDate string) (ids []int64, inserted, updated int, err error) {
	ids = make([]int64, len(arts))
	for i, a := range arts {
		id, created, err := resolveOrCreate(ctx, s, a, analysisDate)
		if err != nil {
			return nil, 0, 0, err
		}
		ids[i] = id
		if created {
			inserted++
		} else {
			updated++
		}
	}
	return ids, inserted, updated, nil
}

// txArticles implements articleStore inside a run transaction.
type txArticles struct {
	db  *DB
	tx  *sql.Tx
	now string
}

func (s txArticles) insertArticle(ctx context.Context, a NewArticle, analysisDate string) (int64, bool, error) {
	var id int64
	err := s.tx.QueryRowContext(ctx, s.db.rebind(
		`INSERT INTO articles (link, title, description, pub_date, raw_text, processed_text, analysis_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (link) DO NOTHING
		RETURNING id`),
		a.Link, a.Title, a.Description, formatPubDate(a.Published), a.RawText, a.ProcessedText,
		analysisDate, s.now, s.now,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (s txArticles) updateArticle(ctx context.Context, a NewArticle, analysisDate string) error {
	_, err := s.tx.ExecContext(ctx, s.db.rebind(
		`UPDATE articles SET title = ?, description = ?, pub_date = ?, raw_text = ?,
		processed_text = ?, analysis_date = ?, updated_at = ?
		WHERE link = ?`),
		a.Title, a.Description, formatPubDate(a.Published), a.RawText, a.ProcessedText,
		analysisDate, s.now, a.Link,
	)
	return err
}

func (s txArticles) articleID(ctx context.Context, link string) (int64, error) {
	var id int64
	err := s.tx.QueryRowContext(ctx, s.db.rebind(`SELECT id FROM articles WHERE link = ?`), link).Scan(&id)
	return id, err
}

func formatPubDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// PersistRun commits one run's articles, assignments, topic info and run
// report in a single transaction. Re-persisting the same run upserts.
func (db *DB) PersistRun(ctx context.Context, run *Run) (*PersistResult, error) {
	if len(run.Assignments) != len(run.Articles) {
		return nil, &PersistError{Stage: "validate", Err: fmt.Errorf(
			"%d articles but %d assignments", len(run.Articles), len(run.Assignments))}
	}

	analysisDate := FormatAnalysisDate(run.AnalysisDate)
	day := AnalysisDay(run.AnalysisDate)
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, &PersistError{Stage: "begin", Err: err}
	}
	defer tx.Rollback()

	ids, inserted, updated, err := resolveArticleIDs(ctx, txArticles{db: db, tx: tx, now: now}, run.Articles, analysisDate)
	if err != nil {
		return nil, &PersistError{Stage: "articles", Err: err}
	}

	if err := db.insertAssignments(ctx, tx, ids, run.Assignments, analysisDate, day); err != nil {
		return nil, &PersistError{Stage: "assignments", Err: err}
	}

	if err := db.upsertTopicInfo(ctx, tx, run.Topics, analysisDate, day); err != nil {
		return nil, &PersistError{Stage: "topic_info", Err: err}
	}

	report := successReport(run, analysisDate, day, now)
	if err := db.upsertRunReport(ctx, tx, report); err != nil {
		return nil, &PersistError{Stage: "run_report", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, &PersistError{Stage: "commit", Err: err}
	}

	return &PersistResult{
		Inserted:    inserted,
		Updated:     updated,
		Assignments: len(ids),
		Topics:      len(run.Topics),
	}, nil
}

func (db *DB) insertAssignments(ctx context.Context, tx *sql.Tx, ids []int64, assignments []topic.Assignment, analysisDate, day string) error {
	for start := 0; start < len(ids); start += assignmentChunk {
		end := min(start+assignmentChunk, len(ids))

		ib := db.builder().
			Insert("topic_results").
			Columns("article_id", "topic_id", "probability", "analysis_date", "analysis_day")
		for i := start; i < end; i++ {
			ib = ib.Values(ids[i], assignments[i].TopicID, assignments[i].Probability, analysisDate, day)
		}
		ib = ib.Suffix(`ON CONFLICT (article_id, analysis_date) DO UPDATE
			SET topic_id = excluded.topic_id, probability = excluded.probability`)

		query, args, err := ib.ToSql()
		if err != nil {
			return fmt.Errorf("building assignment insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) upsertTopicInfo(ctx context.Context, tx *sql.Tx, topics []topic.Info, analysisDate, day string) error {
	if len(topics) == 0 {
		return nil
	}

	ib := db.builder().
		Insert("topic_info").
		Columns("analysis_date", "analysis_day", "topic_id", "topic_count", "topic_name", "representation")
	for _, t := range topics {
		rep := t.Representation
		if rep == nil {
			rep = []string{}
		}
		repJSON, err := json.Marshal(rep)
		if err != nil {
			return fmt.Errorf("encoding representation for topic %d: %w", t.TopicID, err)
		}
		ib = ib.Values(analysisDate, day, t.TopicID, t.Count, t.Name, string(repJSON))
	}
	ib = ib.Suffix(`ON CONFLICT (analysis_date, topic_id) DO UPDATE
		SET topic_count = excluded.topic_count, topic_name = excluded.topic_name,
		representation = excluded.representation`)

	query, args, err := ib.ToSql()
	if err != nil {
		return fmt.Errorf("building topic info upsert: %w", err)
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

func successReport(run *Run, analysisDate, day, now string) RunReport {
	noise := 0
	for _, a := range run.Assignments {
		if a.TopicID == topic.NoiseTopic {
			noise++
		}
	}
	topics := 0
	for _, t := range run.Topics {
		if t.TopicID != topic.NoiseTopic {
			topics++
		}
	}
	return RunReport{
		RunID:        run.RunID,
		AnalysisDate: analysisDate,
		AnalysisDay:  day,
		ArticleCount: len(run.Articles),
		TopicCount:   topics,
		NoiseCount:   noise,
		Degraded:     run.Degraded,
		Status:       RunSuccess,
		CreatedAt:    now,
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (db *DB) upsertRunReport(ctx context.Context, ex execer, r RunReport) error {
	degraded := 0
	if r.Degraded {
		degraded = 1
	}
	_, err := ex.ExecContext(ctx, db.rebind(
		`INSERT INTO run_reports (run_id, analysis_date, analysis_day, article_count, topic_count,
			noise_count, degraded, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			article_count = excluded.article_count, topic_count = excluded.topic_count,
			noise_count = excluded.noise_count, degraded = excluded.degraded,
			status = excluded.status, error = excluded.error, created_at = excluded.created_at`),
		r.RunID, r.AnalysisDate, r.AnalysisDay, r.ArticleCount, r.TopicCount,
		r.NoiseCount, degraded, r.Status, r.Error, r.CreatedAt,
	)
	return err
}

// RecordFailedRun stores a failed run's report outside any run transaction.
func (db *DB) RecordFailedRun(ctx context.Context, runID string, analysisDate time.Time, articleCount int, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	return db.upsertRunReport(ctx, db.conn, RunReport{
		RunID:        runID,
		AnalysisDate: FormatAnalysisDate(analysisDate),
		AnalysisDay:  AnalysisDay(analysisDate),
		ArticleCount: articleCount,
		Status:       RunFailed,
		Error:        msg,
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
	})
}
