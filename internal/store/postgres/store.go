// Package postgres stores snipes in PostgreSQL for deployments that share one
// database between the server and the CLI.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/example/resy-sniper/internal/db"
	"github.com/example/resy-sniper/internal/logger"
	"github.com/example/resy-sniper/internal/migrate"
	"github.com/example/resy-sniper/internal/snipe"
	"github.com/example/resy-sniper/internal/store"
)

type Store struct {
	db  *db.DB
	now func() time.Time
}

var _ snipe.Store = (*Store)(nil)

// Open connects to databaseURL and applies pending migrations.
func Open(ctx context.Context, databaseURL string, log logger.Logger) (*Store, error) {
	d, err := db.Open(ctx, databaseURL, db.Options{Log: log})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := migrate.Up(ctx, d, migrate.Postgres); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &Store{db: d, now: time.Now}, nil
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

func (s *Store) Create(ctx context.Context, p snipe.Params) (snipe.Snipe, error) {
	rec := snipe.New(p, s.now())
	args, err := store.Args(rec)
	if err != nil {
		return snipe.Snipe{}, err
	}
	err = s.db.Exec(ctx,
		`INSERT INTO snipes (`+store.Columns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`, args...)
	if err != nil {
		return snipe.Snipe{}, fmt.Errorf("insert snipe: %w", err)
	}
	return rec, nil
}

func (s *Store) Get(ctx context.Context, id string) (snipe.Snipe, error) {
	row := s.db.QueryRow(ctx, `SELECT `+store.Columns+` FROM snipes WHERE id = $1`, id)
	rec, err := store.ScanSnipe(row)
	if db.IsNotFound(err) {
		return snipe.Snipe{}, snipe.ErrNotFound
	}
	if err != nil {
		return snipe.Snipe{}, fmt.Errorf("get snipe %s: %w", id, err)
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context, status *snipe.Status) ([]snipe.Snipe, error) {
	q := `SELECT ` + store.Columns + ` FROM snipes`
	var args []any
	if status != nil {
		q += ` WHERE status = $1`
		args = append(args, string(*status))
	}
	q += ` ORDER BY release_at ASC, created_at ASC`

	rows, err := s.db.Query(ctx, q, args...)
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
	n, err := s.db.ExecCount(ctx, `UPDATE snipes SET status = $1, result = $2 WHERE id = $3`,
		string(status), result, id)
	if err != nil {
		return fmt.Errorf("update snipe %s: %w", id, err)
	}
	if n == 0 {
		return snipe.ErrNotFound
	}
	return nil
}

func (s *Store) Transition(ctx context.Context, id string, from, to snipe.Status, result string) (bool, error) {
	n, err := s.db.ExecCount(ctx,
		`UPDATE snipes SET status = $1, result = $2 WHERE id = $3 AND status = $4`,
		string(to), result, id, string(from))
	if err != nil {
		return false, fmt.Errorf("transition snipe %s: %w", id, err)
	}
	return n == 1, nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.db.ExecCount(ctx, `DELETE FROM snipes WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete snipe %s: %w", id, err)
	}
	return n > 0, nil
}
