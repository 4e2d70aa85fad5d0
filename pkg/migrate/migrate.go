package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where new migrations are written.
const DefaultDir = "pkg/migrate/migrations"

// The escrow schema relies on enum types, numeric columns and partial
// indexes, so migrations only target Postgres.
const dialect = "postgres"

//go:embed migrations/*.sql
var embedded embed.FS

// Source picks where goose reads migrations from. An empty Dir means the
// copy compiled into the binary.
type Source struct {
	Dir string
}

func (s Source) fs() (fs.FS, string) {
	if s.Dir == "" {
		return embedded, "migrations"
	}
	return os.DirFS(s.Dir), "."
}

func (s Source) String() string {
	if s.Dir == "" {
		return "embedded"
	}
	return s.Dir
}

func prepare(db *sql.DB, src Source) (string, error) {
	if db == nil {
		return "", fmt.Errorf("db is required")
	}
	if err := goose.SetDialect(dialect); err != nil {
		return "", fmt.Errorf("set goose dialect: %w", err)
	}
	fsys, dir := src.fs()
	goose.SetBaseFS(fsys)
	return dir, nil
}

// Run executes a goose command (up, down, status, redo, ...) against db.
func Run(ctx context.Context, db *sql.DB, src Source, command string, args ...string) error {
	dir, err := prepare(db, src)
	if err != nil {
		return err
	}
	if command == "up" {
		if err := validateFS(mustSub(src)); err != nil {
			return err
		}
	}
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion moves the schema up or down to target.
func MigrateToVersion(ctx context.Context, db *sql.DB, src Source, target int64) error {
	if target <= 0 {
		return fmt.Errorf("target version must be positive")
	}
	dir, err := prepare(db, src)
	if err != nil {
		return err
	}

	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil
	case current < target:
		if err := goose.UpToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
	default:
		if err := goose.DownToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
	}
	return nil
}

func mustSub(src Source) fs.FS {
	fsys, dir := src.fs()
	if dir == "." {
		return fsys
	}
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
