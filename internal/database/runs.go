package database

import (
	"context"
	"database/sql"
	"errors"
)

const runReportColumns = `id, run_id, analysis_date, analysis_day, article_count, topic_count,
	noise_count, degraded, status, error, created_at`

// GetLatestRun returns the most recent run report, or nil if none exist.
func (db *DB) GetLatestRun(ctx context.Context) (*RunReport, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+runReportColumns+` FROM run_reports ORDER BY analysis_date DESC, id DESC LIMIT 1`)
	r, err := scanRunReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// GetRecentRuns returns up to limit run reports, newest first.
func (db *DB) GetRecentRuns(ctx context.Context, limit int) ([]RunReport, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(
		`SELECT `+runReportColumns+` FROM run_reports ORDER BY analysis_date DESC, id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []RunReport
	for rows.Next() {
		r, err := scanRunReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	s := &Stats{}
	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM articles", &s.TotalArticles},
		{"SELECT COUNT(*) FROM topic_results", &s.TotalAssignments},
		{"SELECT COUNT(DISTINCT analysis_day) FROM topic_results", &s.AnalysisDays},
		{"SELECT COUNT(*) FROM run_reports WHERE status = 'success'", &s.SuccessfulRuns},
		{"SELECT COUNT(*) FROM run_reports WHERE status = 'failed'", &s.FailedRuns},
	}
	for _, q := range queries {
		if err := db.conn.QueryRowContext(ctx, q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	latest, err := db.GetLatestRun(ctx)
	if err != nil {
		return nil, err
	}
	s.LatestRun = latest
	return s, nil
}

// Ping checks storage connectivity.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRunReport(row rowScanner) (*RunReport, error) {
	var r RunReport
	var degraded int
	if err := row.Scan(&r.ID, &r.RunID, &r.AnalysisDate, &r.AnalysisDay, &r.ArticleCount,
		&r.TopicCount, &r.NoiseCount, &degraded, &r.Status, &r.Error, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Degraded = degraded != 0
	return &r, nil
}
