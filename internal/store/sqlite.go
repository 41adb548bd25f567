package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/firefly-engineering/modhost/internal/route"
)

const schema = `
CREATE TABLE IF NOT EXISTS port_allocations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	external_port INTEGER NOT NULL,
	internal_port INTEGER NOT NULL,
	module_id TEXT NOT NULL,
	install_id TEXT NOT NULL,
	allocated_at TEXT NOT NULL,
	released_at TEXT,
	status TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_alloc_active_port
	ON port_allocations(external_port) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_alloc_module ON port_allocations(module_id);
CREATE INDEX IF NOT EXISTS idx_alloc_install ON port_allocations(install_id);

CREATE TABLE IF NOT EXISTS modules (
	module_id TEXT PRIMARY KEY,
	image TEXT NOT NULL,
	internal_ports TEXT NOT NULL,
	route TEXT,
	container_id TEXT NOT NULL DEFAULT '',
	container_name TEXT NOT NULL DEFAULT '',
	network TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL,
	install_id TEXT NOT NULL,
	last_error TEXT NOT NULL DEFAULT '',
	installed_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_modules_state ON modules(state);
`

const allocationColumns = `id, external_port, internal_port, module_id, install_id, allocated_at, released_at, status`

const moduleColumns = `module_id, image, internal_ports, route, container_id, container_name, network, state, install_id, last_error, installed_at, updated_at`

// SQLiteStore implements Store on a single sqlite database file.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens the database at path and initializes the schema.
func Open(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	// The path is a URI path; '?' or '#' in a directory name would
	// otherwise end it early.
	dsn := "file:" + (&url.URL{Path: path}).EscapedPath() + "?_busy_timeout=5000&_txlock=immediate&_journal_mode=WAL"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite has a single writer.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// InTx runs fn inside an immediate transaction.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&sqliteTx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) RecordedPorts(ctx context.Context, from, to int, activeOnly bool) (map[int]bool, error) {
	query := "SELECT DISTINCT external_port FROM port_allocations WHERE external_port BETWEEN ? AND ?"
	if activeOnly {
		query += " AND status = 'active'"
	}

	rows, err := t.tx.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query ports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	used := make(map[int]bool)
	for rows.Next() {
		var port int
		if err := rows.Scan(&port); err != nil {
			return nil, err
		}
		used[port] = true
	}
	return used, rows.Err()
}

func (t *sqliteTx) InsertAllocation(ctx context.Context, a *PortAllocation) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO port_allocations (external_port, internal_port, module_id, install_id, allocated_at, released_at, status)
		VALUES (?, ?, ?, ?, ?, NULL, 'active')
	`, a.ExternalPort, a.InternalPort, a.ModuleID, a.InstallID, formatTime(a.AllocatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert allocation for port %d: %w", a.ExternalPort, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = id
	a.Status = AllocationActive
	a.ReleasedAt = nil
	return nil
}

// ReleaseAllocations flips the module's active rows to released.
func (s *SQLiteStore) ReleaseAllocations(ctx context.Context, moduleID string, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE port_allocations SET status = 'released', released_at = ? WHERE module_id = ? AND status = 'active'",
		formatTime(at), moduleID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to release ports: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ReleaseInstall flips the active rows of one install attempt to released.
func (s *SQLiteStore) ReleaseInstall(ctx context.Context, installID string, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE port_allocations SET status = 'released', released_at = ? WHERE install_id = ? AND status = 'active'",
		formatTime(at), installID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to release ports of install %s: %w", installID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ListAllocations returns allocations matching filter, ordered by external port.
func (s *SQLiteStore) ListAllocations(ctx context.Context, filter AllocationFilter) ([]PortAllocation, error) {
	var (
		where []string
		args  []any
	)
	if filter.ModuleID != "" {
		where = append(where, "module_id = ?")
		args = append(args, filter.ModuleID)
	}
	if filter.InstallID != "" {
		where = append(where, "install_id = ?")
		args = append(args, filter.InstallID)
	}
	if filter.ActiveOnly {
		where = append(where, "status = 'active'")
	}

	query := "SELECT " + allocationColumns + " FROM port_allocations"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY external_port, id"

	return s.queryAllocations(ctx, query, args...)
}

func (s *SQLiteStore) queryAllocations(ctx context.Context, query string, args ...any) ([]PortAllocation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var allocations []PortAllocation
	for rows.Next() {
		var (
			a           PortAllocation
			allocatedAt string
			releasedAt  sql.NullString
			status      string
		)
		if err := rows.Scan(&a.ID, &a.ExternalPort, &a.InternalPort, &a.ModuleID, &a.InstallID, &allocatedAt, &releasedAt, &status); err != nil {
			return nil, err
		}
		a.AllocatedAt = parseTime(allocatedAt)
		if releasedAt.Valid {
			t := parseTime(releasedAt.String)
			a.ReleasedAt = &t
		}
		a.Status = AllocationStatus(status)
		allocations = append(allocations, a)
	}

	return allocations, rows.Err()
}

const upsertModule = `
	INSERT INTO modules (` + moduleColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(module_id) DO UPDATE SET
		image = excluded.image,
		internal_ports = excluded.internal_ports,
		route = excluded.route,
		container_id = excluded.container_id,
		container_name = excluded.container_name,
		network = excluded.network,
		state = excluded.state,
		install_id = excluded.install_id,
		last_error = excluded.last_error,
		installed_at = excluded.installed_at,
		updated_at = excluded.updated_at`

// UpsertModule inserts or replaces the record keyed by its module id.
func (s *SQLiteStore) UpsertModule(ctx context.Context, rec *ModuleRecord) error {
	args, err := moduleArgs(rec)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, upsertModule, args...); err != nil {
		return fmt.Errorf("failed to upsert module %s: %w", rec.ModuleID, err)
	}
	return nil
}

// ClaimModule is a conditional upsert: the update branch only fires while
// the stored state is one of from.
func (s *SQLiteStore) ClaimModule(ctx context.Context, rec *ModuleRecord, from ...ModuleState) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("claim of module %s names no states", rec.ModuleID)
	}
	args, err := moduleArgs(rec)
	if err != nil {
		return false, err
	}

	placeholders := make([]string, len(from))
	for i, st := range from {
		placeholders[i] = "?"
		args = append(args, string(st))
	}
	query := upsertModule + "\n\tWHERE modules.state IN (" + strings.Join(placeholders, ", ") + ")"

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to claim module %s: %w", rec.ModuleID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func moduleArgs(rec *ModuleRecord) ([]any, error) {
	ports, err := json.Marshal(rec.InternalPorts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode internal ports: %w", err)
	}

	var routeJSON sql.NullString
	if rec.Route != nil {
		data, err := json.Marshal(rec.Route)
		if err != nil {
			return nil, fmt.Errorf("failed to encode route: %w", err)
		}
		routeJSON = sql.NullString{String: string(data), Valid: true}
	}

	return []any{
		rec.ModuleID, rec.Image, string(ports), routeJSON,
		rec.ContainerID, rec.ContainerName, rec.Network, string(rec.State),
		rec.InstallID, rec.LastError, formatTime(rec.InstalledAt), formatTime(rec.UpdatedAt),
	}, nil
}

// GetModule returns the record for moduleID with the allocations of its
// latest install attempt, or ErrNotFound.
func (s *SQLiteStore) GetModule(ctx context.Context, moduleID string) (*ModuleRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+moduleColumns+" FROM modules WHERE module_id = ?", moduleID)

	rec, err := scanModule(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("module %s: %w", moduleID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get module %s: %w", moduleID, err)
	}

	rec.Ports, err = s.ListAllocations(ctx, AllocationFilter{InstallID: rec.InstallID})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListModules returns every record ordered by module id.
func (s *SQLiteStore) ListModules(ctx context.Context) ([]ModuleRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+moduleColumns+" FROM modules ORDER BY module_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query modules: %w", err)
	}

	var records []ModuleRecord
	for rows.Next() {
		rec, err := scanModule(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	// Rows must be closed before the follow-up query: the pool holds one connection.
	allocations, err := s.ListAllocations(ctx, AllocationFilter{})
	if err != nil {
		return nil, err
	}
	byInstall := make(map[string][]PortAllocation)
	for _, a := range allocations {
		byInstall[a.InstallID] = append(byInstall[a.InstallID], a)
	}
	for i := range records {
		records[i].Ports = byInstall[records[i].InstallID]
	}

	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanModule(row scanner) (*ModuleRecord, error) {
	var (
		rec         ModuleRecord
		ports       string
		routeJSON   sql.NullString
		state       string
		installedAt string
		updatedAt   string
	)
	err := row.Scan(
		&rec.ModuleID, &rec.Image, &ports, &routeJSON,
		&rec.ContainerID, &rec.ContainerName, &rec.Network, &state,
		&rec.InstallID, &rec.LastError, &installedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(ports), &rec.InternalPorts); err != nil {
		return nil, fmt.Errorf("corrupt internal_ports for %s: %w", rec.ModuleID, err)
	}
	if routeJSON.Valid {
		var def route.Definition
		if err := json.Unmarshal([]byte(routeJSON.String), &def); err != nil {
			return nil, fmt.Errorf("corrupt route for %s: %w", rec.ModuleID, err)
		}
		rec.Route = &def
	}
	rec.State = ModuleState(state)
	rec.InstalledAt = parseTime(installedAt)
	rec.UpdatedAt = parseTime(updatedAt)

	return &rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

var _ Store = (*SQLiteStore)(nil)
