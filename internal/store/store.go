// Package store persists experiment runs and their detected issues in
// SQLite so techniques can be compared across sessions.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"defectlab/internal/experiment"
	"defectlab/internal/logging"
	"defectlab/internal/model"
)

// ErrRunNotFound is returned when a run ID has no record.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one persisted experiment run with its aggregate metrics.
type RunRecord struct {
	RunID           string
	ExperimentID    string
	Technique       string
	Model           string
	DatasetPath     string
	CreatedAt       time.Time
	Precision       float64
	Recall          float64
	F1              float64
	TokenEfficiency float64
	AvgLatency      float64
	TotalTokens     int
	TruePositives   int
	FalsePositives  int
	FalseNegatives  int
}

// IssueRecord is one detected issue tied to a run and example.
type IssueRecord struct {
	RunID     string
	ExampleID string
	Issue     model.Issue
}

// ResultsStore is a SQLite-backed store for experiment results.
type ResultsStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewResultsStore opens (and initializes if needed) the database at path.
func NewResultsStore(path string) (*ResultsStore, error) {
	logging.Store("opening results store at %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("failed to enable foreign_keys: %v", err)
	}

	s := &ResultsStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *ResultsStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id           TEXT PRIMARY KEY,
		experiment_id    TEXT NOT NULL,
		technique        TEXT NOT NULL,
		model            TEXT,
		dataset_path     TEXT,
		created_at       DATETIME NOT NULL,
		precision        REAL NOT NULL,
		recall           REAL NOT NULL,
		f1               REAL NOT NULL,
		token_efficiency REAL NOT NULL,
		avg_latency      REAL NOT NULL,
		total_tokens     INTEGER NOT NULL,
		true_positives   INTEGER NOT NULL,
		false_positives  INTEGER NOT NULL,
		false_negatives  INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS category_metrics (
		run_id    TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		category  TEXT NOT NULL,
		precision REAL NOT NULL,
		recall    REAL NOT NULL,
		f1        REAL NOT NULL,
		PRIMARY KEY (run_id, category)
	);

	CREATE TABLE IF NOT EXISTS issues (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		example_id  TEXT NOT NULL,
		category    TEXT NOT NULL,
		severity    TEXT NOT NULL,
		line        INTEGER NOT NULL,
		description TEXT NOT NULL,
		reasoning   TEXT NOT NULL,
		confidence  REAL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_technique ON runs(technique);
	CREATE INDEX IF NOT EXISTS idx_issues_run ON issues(run_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// SaveRun persists a run's configuration and aggregate metrics.
func (s *ResultsStore) SaveRun(cfg experiment.RunConfig, metrics experiment.MetricsResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (
			run_id, experiment_id, technique, model, dataset_path, created_at,
			precision, recall, f1, token_efficiency, avg_latency, total_tokens,
			true_positives, false_positives, false_negatives
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.RunID, cfg.ExperimentID, cfg.TechniqueName, cfg.ModelName, cfg.DatasetPath,
		time.Now().UTC(), metrics.Precision, metrics.Recall, metrics.F1,
		metrics.TokenEfficiency, metrics.AvgLatency, metrics.TotalTokens,
		metrics.Confusion.TruePositives, metrics.Confusion.FalsePositives,
		metrics.Confusion.FalseNegatives,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for category, cm := range metrics.PerCategory {
		_, err = tx.Exec(`
			INSERT INTO category_metrics (run_id, category, precision, recall, f1)
			VALUES (?, ?, ?, ?, ?)`,
			cfg.RunID, string(category), cm.Precision, cm.Recall, cm.F1,
		)
		if err != nil {
			return fmt.Errorf("insert category metrics: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	logging.Store("saved run %s (technique=%s f1=%.3f)", cfg.RunID, cfg.TechniqueName, metrics.F1)
	return nil
}

// SaveIssues persists the issues detected for one example in a run.
func (s *ResultsStore) SaveIssues(runID, exampleID string, issues []model.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO issues (run_id, example_id, category, severity, line, description, reasoning, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, issue := range issues {
		var confidence any
		if issue.Confidence != nil {
			confidence = *issue.Confidence
		}
		if _, err := stmt.Exec(
			runID, exampleID, string(issue.Category), string(issue.Severity),
			issue.Line, issue.Description, issue.Reasoning, confidence,
		); err != nil {
			return fmt.Errorf("insert issue: %w", err)
		}
	}
	return tx.Commit()
}

// GetRun fetches one run by ID.
func (s *ResultsStore) GetRun(runID string) (RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT run_id, experiment_id, technique, model, dataset_path, created_at,
		       precision, recall, f1, token_efficiency, avg_latency, total_tokens,
		       true_positives, false_positives, false_negatives
		FROM runs WHERE run_id = ?`, runID)

	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return rec, err
}

// ListRuns returns the most recent runs, newest first. A non-empty
// technique filters to that technique.
func (s *ResultsStore) ListRuns(technique string, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT run_id, experiment_id, technique, model, dataset_path, created_at,
		       precision, recall, f1, token_efficiency, avg_latency, total_tokens,
		       true_positives, false_positives, false_negatives
		FROM runs`
	args := []any{}
	if technique != "" {
		query += " WHERE technique = ?"
		args = append(args, technique)
	}
	query += " ORDER BY created_at DESC, run_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// BestRun returns the highest-F1 run, optionally restricted to one
// technique.
func (s *ResultsStore) BestRun(technique string) (RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT run_id, experiment_id, technique, model, dataset_path, created_at,
		       precision, recall, f1, token_efficiency, avg_latency, total_tokens,
		       true_positives, false_positives, false_negatives
		FROM runs`
	args := []any{}
	if technique != "" {
		query += " WHERE technique = ?"
		args = append(args, technique)
	}
	query += " ORDER BY f1 DESC, created_at DESC LIMIT 1"

	rec, err := scanRun(s.db.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, ErrRunNotFound
	}
	return rec, err
}

// CategoryMetrics returns the per-category metrics of a run.
func (s *ResultsStore) CategoryMetrics(runID string) (map[model.Category]experiment.CategoryMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT category, precision, recall, f1
		FROM category_metrics WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("category metrics: %w", err)
	}
	defer rows.Close()

	out := make(map[model.Category]experiment.CategoryMetrics)
	for rows.Next() {
		var category string
		var cm experiment.CategoryMetrics
		if err := rows.Scan(&category, &cm.Precision, &cm.Recall, &cm.F1); err != nil {
			return nil, err
		}
		out[model.Category(category)] = cm
	}
	return out, rows.Err()
}

// IssuesForRun returns all persisted issues of a run, ordered by example
// and line.
func (s *ResultsStore) IssuesForRun(runID string) ([]IssueRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT example_id, category, severity, line, description, reasoning, confidence
		FROM issues WHERE run_id = ?
		ORDER BY example_id, line`, runID)
	if err != nil {
		return nil, fmt.Errorf("issues for run: %w", err)
	}
	defer rows.Close()

	var records []IssueRecord
	for rows.Next() {
		var rec IssueRecord
		var category, severity string
		var confidence sql.NullFloat64
		if err := rows.Scan(&rec.ExampleID, &category, &severity, &rec.Issue.Line,
			&rec.Issue.Description, &rec.Issue.Reasoning, &confidence); err != nil {
			return nil, err
		}
		rec.RunID = runID
		rec.Issue.Category = model.Category(category)
		rec.Issue.Severity = model.Severity(severity)
		if confidence.Valid {
			v := confidence.Float64
			rec.Issue.Confidence = &v
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteRun removes a run and, via cascade, its metrics and issues.
func (s *ResultsStore) DeleteRun(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM runs WHERE run_id = ?", runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// Close closes the underlying database.
func (s *ResultsStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var rec RunRecord
	err := row.Scan(
		&rec.RunID, &rec.ExperimentID, &rec.Technique, &rec.Model, &rec.DatasetPath,
		&rec.CreatedAt, &rec.Precision, &rec.Recall, &rec.F1, &rec.TokenEfficiency,
		&rec.AvgLatency, &rec.TotalTokens, &rec.TruePositives, &rec.FalsePositives,
		&rec.FalseNegatives,
	)
	if err != nil {
		return RunRecord{}, err
	}
	return rec, nil
}
