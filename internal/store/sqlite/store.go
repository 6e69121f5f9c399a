// Package sqlite is the embedded snipe store. The database file is opened and
// migrated on first use and then kept open for the life of the process.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/example/resy-sniper/internal/migrate"
	"github.com/example/resy-sniper/internal/snipe"
	"github.com/example/resy-sniper/internal/store"
)

type Store struct {
	path string
	now  func() time.Time

	// mu serialises every statement; SQLite allows one writer at a time.
	mu sync.Mutex
	db *sql.DB
}

var _ snipe.Store = (*Store)(nil)

func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

func dsn(path string) string {
	return "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(FULL)"
}

// openLocked opens the database the first time any method needs it.
func (s *Store) openLocked(ctx context.Context) error {
	if s.db != nil {
		return nil
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(s.path))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate.Up(ctx, execer{db}, migrate.SQLite); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	s.db = db
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) Create(ctx context.Context, p snipe.Params) (snipe.Snipe, error) {
	rec := snipe.New(p, s.now())
	args, err := store.Args(rec)
	if err != nil {
		return snipe.Snipe{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openLocked(ctx); err != nil {
		return snipe.Snipe{}, err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO snipes (`+store.Columns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`, args...); err != nil {
		return snipe.Snipe{}, fmt.Errorf("insert snipe: %w", err)
	}
	return rec, nil
}

func (s *Store) Get(ctx context.Context, id string) (snipe.Snipe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openLocked(ctx); err != nil {
		return snipe.Snipe{}, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+store.Columns+` FROM snipes WHERE id = ?`, id)
	rec, err := store.ScanSnipe(row)
	if errors.Is(err, sql.ErrNoRows) {
		return snipe.Snipe{}, snipe.ErrNotFound
	}
	if err != nil {
		return snipe.Snipe{}, fmt.Errorf("get snipe %s: %w", id, err)
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context, status *snipe.Status) ([]snipe.Snipe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openLocked(ctx); err != nil {
		return nil, err
	}

	q := `SELECT ` + store.Columns + ` FROM snipes`
	var args []any
	if status != nil {
		q += ` WHERE status = ?`
		args = append(args, string(*status))
	}
	q += ` ORDER BY release_at ASC, created_at ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list snipes: %w", err)
	}
	defer rows.Close()

	var out []snipe.Snipe
	for rows.Next() {
		rec, err := store.ScanSnipe(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Pending(ctx context.Context) ([]snipe.Snipe, error) {
	st := snipe.StatusPending
	return s.List(ctx, &st)
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status snipe.Status, result string) error {
	n, err := s.exec(ctx, `UPDATE snipes SET status = ?, result = ? WHERE id = ?`, string(status), result, id)
	if err != nil {
		return fmt.Errorf("update snipe %s: %w", id, err)
	}
	if n == 0 {
		return snipe.ErrNotFound
	}
	return nil
}

func (s *Store) Transition(ctx context.Context, id string, from, to snipe.Status, result string) (bool, error) {
	n, err := s.exec(ctx, `UPDATE snipes SET status = ?, result = ? WHERE id = ? AND status = ?`,
		string(to), result, id, string(from))
	if err != nil {
		return false, fmt.Errorf("transition snipe %s: %w", id, err)
	}
	return n == 1, nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.exec(ctx, `DELETE FROM snipes WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete snipe %s: %w", id, err)
	}
	return n > 0, nil
}

func (s *Store) exec(ctx context.Context, q string, args ...any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openLocked(ctx); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// execer adapts *sql.DB to migrate.Execer.
type execer struct{ db *sql.DB }

func (e execer) Exec(ctx context.Context, q string, args ...any) error {
	_, err := e.db.ExecContext(ctx, q, args...)
	return err
}

func (e execer) QueryRow(ctx context.Context, q string, args ...any) migrate.Row {
	return e.db.QueryRowContext(ctx, q, args...)
}
