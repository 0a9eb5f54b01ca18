package result

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/lukemcguire/linkwalk/outcome"
)

// RunInfo describes the crawl an Analysis came from.
type RunInfo struct {
	StartURL    string
	LandingURL  string
	StartedAt   time.Time
	FinishedAt  time.Time
	Interrupted bool
}

// SQLiteWriter appends analyses to a SQLite database, one crawl per call.
type SQLiteWriter struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and initializes its schema.
func OpenSQLite(path string) (*SQLiteWriter, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	w := &SQLiteWriter{db: db}
	if err := w.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return w, nil
}

func (w *SQLiteWriter) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS crawls (
		crawl_id TEXT PRIMARY KEY,
		start_url TEXT NOT NULL,
		landing_url TEXT,
		started_at TIMESTAMP,
		finished_at TIMESTAMP,
		interrupted INTEGER NOT NULL DEFAULT 0,
		ok_count INTEGER NOT NULL,
		failed_count INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS link_results (
		link_id INTEGER PRIMARY KEY AUTOINCREMENT,
		crawl_id TEXT NOT NULL,
		page_url TEXT NOT NULL,
		href TEXT NOT NULL,
		target_url TEXT NOT NULL,
		ok INTEGER NOT NULL,
		error_type TEXT,
		chain TEXT NOT NULL,
		FOREIGN KEY (crawl_id) REFERENCES crawls(crawl_id)
	);

	CREATE TABLE IF NOT EXISTS chain_outcomes (
		link_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		type TEXT NOT NULL,
		status_code INTEGER,
		location TEXT,
		url TEXT,
		message TEXT,
		PRIMARY KEY (link_id, position),
		FOREIGN KEY (link_id) REFERENCES link_results(link_id)
	);

	CREATE INDEX IF NOT EXISTS idx_link_results_crawl ON link_results(crawl_id);
	CREATE INDEX IF NOT EXISTS idx_link_results_target ON link_results(target_url);
	`

	_, err := w.db.Exec(schema)
	return err
}

// Write stores a in a single transaction and returns the generated crawl id.
func (w *SQLiteWriter) Write(ctx context.Context, a *Analysis, run RunInfo) (string, error) {
	crawlID := uuid.NewString()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO crawls (crawl_id, start_url, landing_url, started_at, finished_at, interrupted, ok_count, failed_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, crawlID, run.StartURL, run.LandingURL, run.StartedAt, run.FinishedAt, run.Interrupted, a.Stats.OK, a.Stats.Failed)
	if err != nil {
		return "", fmt.Errorf("insert crawl: %w", err)
	}

	linkStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO link_results (crawl_id, page_url, href, target_url, ok, error_type, chain)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("prepare link insert: %w", err)
	}
	defer func() { _ = linkStmt.Close() }()

	outcomeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chain_outcomes (link_id, position, type, status_code, location, url, message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("prepare outcome insert: %w", err)
	}
	defer func() { _ = outcomeStmt.Close() }()

	for _, page := range a.Pages {
		for _, link := range page.Links {
			res, err := linkStmt.ExecContext(ctx,
				crawlID, page.URL.String(), link.Href, link.Target.String(),
				link.OK(), nullString(errorType(link.Chain.Final())), link.Describe())
			if err != nil {
				return "", fmt.Errorf("insert link %s: %w", link.Target, err)
			}
			linkID, err := res.LastInsertId()
			if err != nil {
				return "", fmt.Errorf("retrieve link_id: %w", err)
			}

			for pos, o := range link.Chain {
				if err := insertOutcome(ctx, outcomeStmt, linkID, pos, o); err != nil {
					return "", err
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return crawlID, nil
}

func insertOutcome(ctx context.Context, stmt *sql.Stmt, linkID int64, pos int, o outcome.Outcome) error {
	row := toJSONOutcome(o)
	var code sql.NullInt64
	if row.StatusCode != nil {
		code = sql.NullInt64{Int64: int64(*row.StatusCode), Valid: true}
	}
	_, err := stmt.ExecContext(ctx, linkID, pos, row.Type, code,
		nullString(row.Value), nullString(row.URL), nullString(row.Message))
	if err != nil {
		return fmt.Errorf("insert outcome %d of link %d: %w", pos, linkID, err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Close closes the database connection.
func (w *SQLiteWriter) Close() error {
	return w.db.Close()
}

// WriteSQLite stores a in the database at path and returns the crawl id.
func WriteSQLite(ctx context.Context, path string, a *Analysis, run RunInfo) (string, error) {
	w, err := OpenSQLite(path)
	if err != nil {
		return "", err
	}
	crawlID, err := w.Write(ctx, a, run)
	if closeErr := w.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("close database: %w", closeErr)
	}
	return crawlID, err
}
