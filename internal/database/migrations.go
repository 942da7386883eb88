package database

import "database/sql"

// Migration represents a single schema migration step. SQL holds the DDL
// per dialect.
type Migration struct {
	Version     int
	Description string
	SQL         map[Dialect]string
}

// Up applies the migration for the given dialect.
func (m Migration) Up(tx *sql.Tx, d Dialect) error {
	_, err := tx.Exec(m.SQL[d])
	return err
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "articles, topic results and topic info",
		SQL: map[Dialect]string{
			SQLite: `
CREATE TABLE IF NOT EXISTS articles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    link TEXT UNIQUE NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    pub_date TEXT NOT NULL DEFAULT '',
    raw_text TEXT NOT NULL DEFAULT '',
    processed_text TEXT NOT NULL DEFAULT '',
    analysis_date TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS topic_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    article_id INTEGER NOT NULL REFERENCES articles(id),
    topic_id INTEGER NOT NULL,
    probability REAL NOT NULL,
    analysis_date TEXT NOT NULL,
    analysis_day TEXT NOT NULL,
    UNIQUE (article_id, analysis_date)
);

CREATE TABLE IF NOT EXISTS topic_info (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    analysis_date TEXT NOT NULL,
    analysis_day TEXT NOT NULL,
    topic_id INTEGER NOT NULL,
    topic_count INTEGER NOT NULL,
    topic_name TEXT NOT NULL,
    representation TEXT NOT NULL DEFAULT '[]',
    UNIQUE (analysis_date, topic_id)
);

CREATE INDEX IF NOT EXISTS idx_topic_results_day ON topic_results(analysis_day, topic_id);
CREATE INDEX IF NOT EXISTS idx_topic_results_article ON topic_results(article_id);
CREATE INDEX IF NOT EXISTS idx_topic_info_day ON topic_info(analysis_day, topic_id);
`,
			Postgres: `
CREATE TABLE IF NOT EXISTS articles (
    id BIGSERIAL PRIMARY KEY,
    link TEXT UNIQUE NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    pub_date TEXT NOT NULL DEFAULT '',
    raw_text TEXT NOT NULL DEFAULT '',
    processed_text TEXT NOT NULL DEFAULT '',
    analysis_date TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS topic_results (
    id BIGSERIAL PRIMARY KEY,
    article_id BIGINT NOT NULL REFERENCES articles(id),
    topic_id INTEGER NOT NULL,
    probability DOUBLE PRECISION NOT NULL,
    analysis_date TEXT NOT NULL,
    analysis_day TEXT NOT NULL,
    UNIQUE (article_id, analysis_date)
);

CREATE TABLE IF NOT EXISTS topic_info (
    id BIGSERIAL PRIMARY KEY,
    analysis_date TEXT NOT NULL,
    analysis_day TEXT NOT NULL,
    topic_id INTEGER NOT NULL,
    topic_count INTEGER NOT NULL,
    topic_name TEXT NOT NULL,
    representation TEXT NOT NULL DEFAULT '[]',
    UNIQUE (analysis_date, topic_id)
);

CREATE INDEX IF NOT EXISTS idx_topic_results_day ON topic_results(analysis_day, topic_id);
CREATE INDEX IF NOT EXISTS idx_topic_results_article ON topic_results(article_id);
CREATE INDEX IF NOT EXISTS idx_topic_info_day ON topic_info(analysis_day, topic_id);
`,
		},
	},
	{
		Version:     2,
		Description: "run reports",
		SQL: map[Dialect]string{
			SQLite: `
CREATE TABLE IF NOT EXISTS run_reports (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT UNIQUE NOT NULL,
    analysis_date TEXT NOT NULL,
    analysis_day TEXT NOT NULL,
    article_count INTEGER NOT NULL DEFAULT 0,
    topic_count INTEGER NOT NULL DEFAULT 0,
    noise_count INTEGER NOT NULL DEFAULT 0,
    degraded INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL CHECK(status IN ('success', 'failed')),
    error TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_reports_day ON run_reports(analysis_day);
`,
			Postgres: `
CREATE TABLE IF NOT EXISTS run_reports (
    id BIGSERIAL PRIMARY KEY,
    run_id TEXT UNIQUE NOT NULL,
    analysis_date TEXT NOT NULL,
    analysis_day TEXT NOT NULL,
    article_count INTEGER NOT NULL DEFAULT 0,
    topic_count INTEGER NOT NULL DEFAULT 0,
    noise_count INTEGER NOT NULL DEFAULT 0,
    degraded INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL CHECK(status IN ('success', 'failed')),
    error TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_reports_day ON run_reports(analysis_day);
`,
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
