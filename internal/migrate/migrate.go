package migrate

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

// Execer is the slice of a database handle migrations need. Both the pgx
// wrapper in internal/db and the SQLite store satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) error
	QueryRow(ctx context.Context, sql string, args ...any) Row
}

// Row is an alias so handles declaring their own alias of the same
// interface satisfy Execer.
type Row = interface {
	Scan(dest ...any) error
}

// Dialect selects the embedded migration directory and placeholder style.
type Dialect struct {
	Dir         string
	Placeholder string
}

var (
	SQLite   = Dialect{Dir: "sqlite", Placeholder: "?"}
	Postgres = Dialect{Dir: "postgres", Placeholder: "$1"}
)

// Files lists the migrations for d in the order Up applies them.
func Files(d Dialect) ([]string, error) {
	sub, err := fs.Sub(files, d.Dir)
	if err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(sub, ".")
	if err != nil {
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".sql") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Up applies every migration for d that is not yet recorded in
// schema_migrations. It is safe to call on every start.
func Up(ctx context.Context, ex Execer, d Dialect) error {
	names, err := Files(d)
	if err != nil {
		return err
	}

	if err := ex.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY);`); err != nil {
		return err
	}

	for _, f := range names {
		var applied bool
		q := `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=` + d.Placeholder + `)`
		if err := ex.QueryRow(ctx, q, f).Scan(&applied); err != nil {
			return err
		}
		if applied {
			continue
		}

		b, err := files.ReadFile(d.Dir + "/" + f)
		if err != nil {
			return err
		}

		if err := ex.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("apply %s: %w", f, err)
		}
		if err := ex.Exec(ctx, `INSERT INTO schema_migrations(version) VALUES (`+d.Placeholder+`)`, f); err != nil {
			return err
		}
	}

	return nil
}
