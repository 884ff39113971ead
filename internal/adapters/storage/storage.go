// Package storage is the SQLite-backed identity directory and play history.
//
// The score index is never persisted; it is rebuilt from game_records.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/okian/besttime/internal/adapters/repository"
	"github.com/okian/besttime/internal/domain/model"
	"github.com/okian/besttime/pkg/metrics"
)

//go:embed schema.sql
var schema string

// Store provides database access.
type Store struct {
	db          *sql.DB
	now         func() time.Time
	busyTimeout time.Duration
}

// New opens (or creates) the database at path and applies the schema.
func New(ctx context.Context, path string, opts ...Option) (*Store, error) {
	s := &Store{now: time.Now, busyTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(s)
	}

	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := fmt.Sprintf("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL; PRAGMA busy_timeout = %d;",
		s.busyTimeout.Milliseconds())
	if _, err := db.ExecContext(ctx, pragmas); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s.db = db
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- Players ---

// SignIn returns the player registered under phone, creating one named
// name on first use. created reports whether a new player was inserted.
// An existing player keeps the name it registered with.
func (s *Store) SignIn(ctx context.Context, name, phone string) (model.Player, bool, error) {
	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)
	if name == "" || phone == "" {
		return model.Player{}, false, fmt.Errorf("%w: name and phone are required", ErrInvalidInput)
	}

	p, err := s.playerByPhone(ctx, phone)
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return model.Player{}, false, err
	}

	p = model.Player{
		ID:        uuid.NewString(),
		Name:      name,
		Phone:     phone,
		CreatedAt: s.now().UTC(),
	}
	// ON CONFLICT covers two first-time sign-ins racing on the same phone.
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO players (id, name, phone, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(phone) DO NOTHING
	`, p.ID, p.Name, p.Phone, p.CreatedAt.UnixMilli())
	if err != nil {
		metrics.RecordErrorByComponent("storage", "insert_player")
		return model.Player{}, false, fmt.Errorf("inserting player: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		p, err = s.playerByPhone(ctx, phone)
		return p, false, err
	}
	return p, true, nil
}

// Resolve returns the display name of a player.
func (s *Store) Resolve(ctx context.Context, playerID string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM players WHERE id = ?`, playerID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("player %s: %w", playerID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("resolving player name: %w", err)
	}
	return name, nil
}

func (s *Store) playerByPhone(ctx context.Context, phone string) (model.Player, error) {
	return s.scanPlayer(s.db.QueryRowContext(ctx,
		`SELECT id, name, phone, created_at FROM players WHERE phone = ?`, phone))
}

func (s *Store) scanPlayer(row *sql.Row) (model.Player, error) {
	var p model.Player
	var createdAt int64
	err := row.Scan(&p.ID, &p.Name, &p.Phone, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Player{}, ErrNotFound
	}
	if err != nil {
		return model.Player{}, fmt.Errorf("scanning player: %w", err)
	}
	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	return p, nil
}

// --- Play history ---

// Record appends one accepted play attempt. A zero at means now.
func (s *Store) Record(ctx context.Context, playerID string, ms int64, at time.Time) error {
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO game_records (player_id, clear_time_ms, played_at)
		VALUES (?, ?, ?)
	`, playerID, ms, at.UTC().UnixMilli())
	if err != nil {
		metrics.RecordErrorByComponent("storage", "insert_record")
		return fmt.Errorf("recording play: %w", err)
	}
	return nil
}

// LastPlayed returns the time of the player's most recent recorded play.
func (s *Store) LastPlayed(ctx context.Context, playerID string) (time.Time, error) {
	var playedAt sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(played_at) FROM game_records WHERE player_id = ?`, playerID).Scan(&playedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("reading last play: %w", err)
	}
	if !playedAt.Valid {
		return time.Time{}, fmt.Errorf("player %s: %w", playerID, ErrNotFound)
	}
	return time.UnixMilli(playedAt.Int64).UTC(), nil
}

// Profiles returns the name and latest play time of every id that exists,
// in one query. Players that never played have a zero LastPlayed.
func (s *Store) Profiles(ctx context.Context, ids []string) (map[string]model.Profile, error) {
	out := make(map[string]model.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `
		SELECT p.id, p.name, MAX(g.played_at)
		FROM players p LEFT JOIN game_records g ON g.player_id = p.id
		WHERE p.id IN (?` + strings.Repeat(", ?", len(ids)-1) + `)
		GROUP BY p.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reading profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			id       string
			p        model.Profile
			playedAt sql.NullInt64
		)
		if err := rows.Scan(&id, &p.Name, &playedAt); err != nil {
			return nil, fmt.Errorf("scanning profile: %w", err)
		}
		if playedAt.Valid {
			p.LastPlayed = time.UnixMilli(playedAt.Int64).UTC()
		}
		out[id] = p
	}
	return out, rows.Err()
}

// BestTimes returns every player's minimum recorded clear time, the input
// to an index rebuild.
func (s *Store) BestTimes(ctx context.Context) ([]repository.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT player_id, MIN(clear_time_ms) FROM game_records GROUP BY player_id
	`)
	if err != nil {
		return nil, fmt.Errorf("scanning best times: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []repository.Entry
	for rows.Next() {
		var e repository.Entry
		if err := rows.Scan(&e.PlayerID, &e.BestMs); err != nil {
			return nil, fmt.Errorf("scanning best time: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
