package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/milesync/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Let a concurrent `milesync history` wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Runs ---

const runColumns = `id, source, target, mode, dry_run, bidirectional,
	milestones_synced, milestones_total, issues_synced, issues_total,
	placeholders_created, reverse_milestones, reverse_issues, mapping_file,
	started_at, finished_at`

// SaveRun inserts run with its mappings and anomalies in one transaction.
// An empty ID is filled with a new ULID.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *models.Run) error {
	if run.ID == "" {
		run.ID = ulid.Make().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = run.StartedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.Target, string(run.Mode), boolToInt(run.DryRun), boolToInt(run.Bidirectional),
		run.MilestonesSynced, run.MilestonesTotal, run.IssuesSynced, run.IssuesTotal,
		run.PlaceholdersCreated, run.ReverseMilestones, run.ReverseIssues, run.MappingFile,
		run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	if err := insertMapping(ctx, tx, "milestone_mappings", run.ID, run.Milestones); err != nil {
		return err
	}
	if err := insertMapping(ctx, tx, "issue_mappings", run.ID, run.Issues); err != nil {
		return err
	}

	for i := range run.Anomalies {
		a := &run.Anomalies[i]
		if a.CreatedAt.IsZero() {
			a.CreatedAt = run.FinishedAt
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO anomalies (run_id, kind, source_number, intended, actual, message, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, string(a.Kind), a.SourceNumber, a.Intended, a.Actual, a.Message, a.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("save anomaly: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func insertMapping(ctx context.Context, tx *sql.Tx, table, runID string, m models.NumberMap) error {
	for _, src := range m.SortedKeys() {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO "+table+" (run_id, source_number, target_number) VALUES (?, ?, ?)",
			runID, src, m[src],
		)
		if err != nil {
			return fmt.Errorf("save %s: %w", table, err)
		}
	}
	return nil
}

// GetRun returns a run with its mappings and anomalies. id may be a unique
// prefix of a run id.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	runs, err := s.scanRuns(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ? OR id LIKE ? ORDER BY started_at DESC LIMIT 2`,
		id, id+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	switch {
	case len(runs) == 0:
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	case len(runs) > 1 && runs[0].ID != id && runs[1].ID != id:
		return nil, fmt.Errorf("run id prefix %q is ambiguous", id)
	}
	run := runs[0]
	if len(runs) > 1 && runs[1].ID == id {
		run = runs[1]
	}

	if run.Milestones, err = s.loadMapping(ctx, "milestone_mappings", run.ID); err != nil {
		return nil, err
	}
	if run.Issues, err = s.loadMapping(ctx, "issue_mappings", run.ID); err != nil {
		return nil, err
	}
	if run.Anomalies, err = s.ListAnomalies(ctx, run.ID); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns runs newest first. Mappings and anomalies are not loaded.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunListFilter) ([]*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Source != "" {
		query += " AND source = ?"
		args = append(args, filter.Source)
	}
	if filter.Target != "" {
		query += " AND target = ?"
		args = append(args, filter.Target)
	}
	query += " ORDER BY started_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	runs, err := s.scanRuns(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) scanRuns(ctx context.Context, query string, args ...any) ([]*models.Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []*models.Run
	for rows.Next() {
		run := &models.Run{}
		var mode string
		if err := rows.Scan(&run.ID, &run.Source, &run.Target, &mode, &run.DryRun, &run.Bidirectional,
			&run.MilestonesSynced, &run.MilestonesTotal, &run.IssuesSynced, &run.IssuesTotal,
			&run.PlaceholdersCreated, &run.ReverseMilestones, &run.ReverseIssues, &run.MappingFile,
			&run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Mode = models.SyncMode(mode)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// --- Mappings ---

func (s *SQLiteStore) loadMapping(ctx context.Context, table, runID string) (models.NumberMap, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT source_number, target_number FROM "+table+" WHERE run_id = ?", runID)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	m := models.NumberMap{}
	for rows.Next() {
		var src, dst int
		if err := rows.Scan(&src, &dst); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		m[src] = dst
	}
	return m, rows.Err()
}

// LatestIssueMapping returns the issue mapping of the most recent non-dry
// run between source and target that synced issues. It returns an empty
// map when there is none.
func (s *SQLiteStore) LatestIssueMapping(ctx context.Context, source, target string) (models.NumberMap, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM runs
		WHERE source = ? AND target = ? AND dry_run = 0 AND mode != ?
		ORDER BY started_at DESC, id DESC LIMIT 1`,
		source, target, string(models.SyncModeMilestones),
	).Scan(&id)
	if err == sql.ErrNoRows {
		return models.NumberMap{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest issue mapping: %w", err)
	}
	return s.loadMapping(ctx, "issue_mappings", id)
}

// --- Anomalies ---

func (s *SQLiteStore) ListAnomalies(ctx context.Context, runID string) ([]models.Anomaly, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, source_number, intended, actual, message, created_at
		FROM anomalies WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list anomalies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Anomaly
	for rows.Next() {
		var a models.Anomaly
		var kind string
		if err := rows.Scan(&kind, &a.SourceNumber, &a.Intended, &a.Actual, &a.Message, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		a.Kind = models.AnomalyKind(kind)
		out = append(out, a)
	}
	return out, rows.Err()
}
