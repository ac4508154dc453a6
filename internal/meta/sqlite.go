package meta

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/HendryAvila/ctxkeeper/internal/ctxerr"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// DBFile is the database filename inside the data directory.
const DBFile = "meta.db"

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// SQLite is the Store backed by a local SQLite file.
type SQLite struct {
	db      *sql.DB
	timeout time.Duration
	logger  *zap.Logger
}

var _ Store = (*SQLite)(nil)

// Open creates dataDir if needed and opens <dataDir>/meta.db. Every query
// runs under timeout.
func Open(dataDir string, timeout time.Duration, logger *zap.Logger) (*SQLite, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("meta: create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFile)
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("meta: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("meta: pragma %q: %w", p, err)
		}
	}

	s := &SQLite{db: db, timeout: timeout, logger: logger}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("meta: migration: %w", err)
	}
	logger.Debug("metadata store opened", zap.String("path", dbPath))
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *SQLite) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS theme_flows (
			theme      TEXT NOT NULL,
			flow_id    TEXT NOT NULL,
			rank       INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (theme, flow_id)
		);

		CREATE TABLE IF NOT EXISTS directory_meta (
			path        TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS flow_status (
			flow_id    TEXT PRIMARY KEY,
			status     TEXT NOT NULL,
			completion INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS usage_log (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			operation  TEXT NOT NULL,
			subject    TEXT NOT NULL,
			detail     TEXT,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_usage_created ON usage_log(created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ─── Queries ─────────────────────────────────────────────────────────────────

// bound applies the per-call timeout. A non-positive timeout leaves ctx alone.
func (s *SQLite) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// classify turns driver failures into Unavailable and misses into NotFound.
func classify(subject string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ctxerr.NotFound(subject, nil)
	}
	return ctxerr.Unavailable(subject, err)
}

func (s *SQLite) ThemeFlows(ctx context.Context, theme string) ([]string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT flow_id FROM theme_flows WHERE theme = ? ORDER BY rank ASC, flow_id ASC`, theme)
	if err != nil {
		return nil, classify("theme flows "+theme, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classify("theme flows "+theme, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("theme flows "+theme, err)
	}
	return ids, nil
}

func (s *SQLite) LinkThemeFlow(ctx context.Context, theme, flowID string, rank int) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO theme_flows (theme, flow_id, rank) VALUES (?, ?, ?)
		 ON CONFLICT(theme, flow_id) DO UPDATE SET rank = excluded.rank`,
		theme, flowID, rank)
	return classify("theme flows "+theme, err)
}

func (s *SQLite) DirectoryDescription(ctx context.Context, path string) (string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var desc string
	err := s.db.QueryRowContext(ctx,
		`SELECT description FROM directory_meta WHERE path = ?`, filepath.ToSlash(path)).Scan(&desc)
	if err != nil {
		return "", classify("directory description "+path, err)
	}
	return desc, nil
}

func (s *SQLite) SetDirectoryDescription(ctx context.Context, path, description string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO directory_meta (path, description, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET description = excluded.description, updated_at = excluded.updated_at`,
		filepath.ToSlash(path), description, now())
	return classify("directory description "+path, err)
}

func (s *SQLite) FlowStatus(ctx context.Context, flowID string) (FlowStatus, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	st := FlowStatus{FlowID: flowID}
	err := s.db.QueryRowContext(ctx,
		`SELECT status, completion, updated_at FROM flow_status WHERE flow_id = ?`, flowID).
		Scan(&st.Status, &st.Completion, &st.UpdatedAt)
	if err != nil {
		return FlowStatus{}, classify("flow status "+flowID, err)
	}
	return st, nil
}

func (s *SQLite) SetFlowStatus(ctx context.Context, st FlowStatus) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if st.UpdatedAt == "" {
		st.UpdatedAt = now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO flow_status (flow_id, status, completion, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(flow_id) DO UPDATE SET
		   status = excluded.status, completion = excluded.completion, updated_at = excluded.updated_at`,
		st.FlowID, st.Status, st.Completion, st.UpdatedAt)
	return classify("flow status "+st.FlowID, err)
}

func (s *SQLite) LogUsage(ctx context.Context, ev UsageEvent) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_log (operation, subject, detail, created_at) VALUES (?, ?, ?, ?)`,
		ev.Operation, ev.Subject, nullableString(ev.Detail), now())
	return classify("usage log", err)
}

// RecentUsage returns the newest usage events first.
func (s *SQLite) RecentUsage(ctx context.Context, limit int) ([]UsageEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT operation, subject, detail, created_at FROM usage_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, classify("usage log", err)
	}
	defer rows.Close()

	var out []UsageEvent
	for rows.Next() {
		var ev UsageEvent
		var detail sql.NullString
		if err := rows.Scan(&ev.Operation, &ev.Subject, &detail, &ev.CreatedAt); err != nil {
			return nil, classify("usage log", err)
		}
		ev.Detail = detail.String
		out = append(out, ev)
	}
	return out, classify("usage log", rows.Err())
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
