package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Veraticus/idlewatch/pkg/interfaces"
	"github.com/Veraticus/idlewatch/pkg/types"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// writeTimeout bounds the context-free Record and SaveSession calls.
const writeTimeout = 5 * time.Second

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ Store                      = (*SQLiteStore)(nil)
	_ interfaces.Recorder        = (*SQLiteStore)(nil)
	_ interfaces.SessionRecorder = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection serializes the supervisor's and the session's writes.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// newULID generates a new ULID string.
func newULID(at time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), entropy).String()
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

// --- Incidents ---

func (s *SQLiteStore) CreateIncident(ctx context.Context, incident *types.Incident) error {
	if incident.Time.IsZero() {
		incident.Time = time.Now()
	}
	incident.Time = incident.Time.UTC()
	if incident.ID == "" {
		incident.ID = newULID(incident.Time)
	}

	var exitCode sql.NullInt64
	if incident.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*incident.ExitCode), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO incidents (id, occurred_at, kind, category, message, exit_code)
		VALUES (?, ?, ?, ?, ?, ?)`,
		incident.ID, incident.Time, incident.Kind, incident.Category.String(), incident.Message, exitCode,
	)
	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

// ListIncidents returns the most recent incidents first. A non-positive
// limit returns all of them.
func (s *SQLiteStore) ListIncidents(ctx context.Context, limit int) ([]*types.Incident, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, occurred_at, kind, category, message, exit_code
		FROM incidents ORDER BY occurred_at DESC, id DESC LIMIT ?`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var incidents []*types.Incident
	for rows.Next() {
		var (
			inc      types.Incident
			category string
			exitCode sql.NullInt64
		)
		if err := rows.Scan(&inc.ID, &inc.Time, &inc.Kind, &category, &inc.Message, &exitCode); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		if inc.Category, err = types.ParseCategory(category); err != nil {
			return nil, fmt.Errorf("scan incident %s: %w", inc.ID, err)
		}
		if exitCode.Valid {
			code := int(exitCode.Int64)
			inc.ExitCode = &code
		}
		incidents = append(incidents, &inc)
	}
	return incidents, rows.Err()
}

// Record implements interfaces.Recorder.
func (s *SQLiteStore) Record(incident types.Incident) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return s.CreateIncident(ctx, &incident)
}

// --- Sessions ---

func (s *SQLiteStore) CreateSession(ctx context.Context, session *types.SessionRecord) error {
	session.StartedAt = session.StartedAt.UTC()
	session.StoppedAt = session.StoppedAt.UTC()
	if session.ID == "" {
		session.ID = newULID(session.StartedAt)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at, stopped_at, active_ms, activity)
		VALUES (?, ?, ?, ?, ?)`,
		session.ID, session.StartedAt, session.StoppedAt, session.Active.Milliseconds(), session.Activity,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// ListSessions returns the most recent sessions first. A non-positive limit
// returns all of them.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]*types.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, stopped_at, active_ms, activity
		FROM sessions ORDER BY started_at DESC, id DESC LIMIT ?`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.SessionRecord
	for rows.Next() {
		var (
			rec      types.SessionRecord
			activeMS int64
		)
		if err := rows.Scan(&rec.ID, &rec.StartedAt, &rec.StoppedAt, &activeMS, &rec.Activity); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		rec.Active = time.Duration(activeMS) * time.Millisecond
		sessions = append(sessions, &rec)
	}
	return sessions, rows.Err()
}

// SaveSession implements interfaces.SessionRecorder.
func (s *SQLiteStore) SaveSession(record types.SessionRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return s.CreateSession(ctx, &record)
}

// sqlLimit maps "no limit" to SQLite's -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
