package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/duelsync-server/internal/store"
)

// Schema creates the tables used by SQLiteStore. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS matches (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id   TEXT NOT NULL,
	winner_id TEXT NOT NULL,
	loser_id  TEXT NOT NULL,
	note      TEXT,
	ended_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_matches_room ON matches(room_id, id);
CREATE INDEX IF NOT EXISTS idx_matches_winner ON matches(winner_id, id);
CREATE INDEX IF NOT EXISTS idx_matches_loser ON matches(loser_id, id);
`

const defaultListLimit = 50

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New opens the database at dbPath and applies Schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, ApplySchema)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// ApplySchema creates the tables if they do not exist.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordMatch persists a result and sets m.ID.
func (s *SQLiteStore) RecordMatch(ctx context.Context, m *store.Match) error {
	query := `
		INSERT INTO matches (room_id, winner_id, loser_id, note, ended_at)
		VALUES (?, ?, ?, ?, ?)
	`
	var note sql.NullString
	if len(m.Note) > 0 {
		note = sql.NullString{String: string(m.Note), Valid: true}
	}
	endedAt := m.EndedAt
	if endedAt.IsZero() {
		endedAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, query, m.RoomID, m.WinnerID, m.LoserID, note, endedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	m.ID = id
	m.EndedAt = endedAt
	return nil
}

// GetMatch retrieves a result by ID.
func (s *SQLiteStore) GetMatch(ctx context.Context, id int64) (*store.Match, error) {
	query := `
		SELECT id, room_id, winner_id, loser_id, note, ended_at
		FROM matches
		WHERE id = ?
	`
	m, err := scanMatch(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("match %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query match: %w", err)
	}
	return m, nil
}

// ListMatchesByRoom lists results of a room, newest first.
func (s *SQLiteStore) ListMatchesByRoom(ctx context.Context, roomID string, limit int) ([]*store.Match, error) {
	query := `
		SELECT id, room_id, winner_id, loser_id, note, ended_at
		FROM matches
		WHERE room_id = ?
		ORDER BY id DESC
		LIMIT ?
	`
	return s.listMatches(ctx, query, roomID, normalizeLimit(limit))
}

// ListMatchesByClient lists results the client won or lost, newest first.
func (s *SQLiteStore) ListMatchesByClient(ctx context.Context, clientID string, limit int) ([]*store.Match, error) {
	query := `
		SELECT id, room_id, winner_id, loser_id, note, ended_at
		FROM matches
		WHERE winner_id = ? OR loser_id = ?
		ORDER BY id DESC
		LIMIT ?
	`
	return s.listMatches(ctx, query, clientID, clientID, normalizeLimit(limit))
}

func (s *SQLiteStore) listMatches(ctx context.Context, query string, args ...any) ([]*store.Match, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	var matches []*store.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return matches, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMatch(row scanner) (*store.Match, error) {
	var (
		m    store.Match
		note sql.NullString
	)
	if err := row.Scan(&m.ID, &m.RoomID, &m.WinnerID, &m.LoserID, &note, &m.EndedAt); err != nil {
		return nil, err
	}
	if note.Valid {
		m.Note = []byte(note.String)
	}
	return &m, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
