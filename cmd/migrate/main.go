// Command migrate applies the SQL schema for the gateway's backing store.
// Each file under migrations/ runs once, inside its own transaction, and is
// recorded in schema_migrations so reruns are no-ops.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"lumen/pkg/store"
)

type migrationDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type migrateDBCloser interface {
	migrationDB
	Close()
}

// Testable variables for main()
var (
	logFatalf = log.Fatalf
	openDBFn  = func(ctx context.Context) (migrateDBCloser, error) {
		return store.NewPostgresPool(ctx)
	}
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	pool, err := openDBFn(ctx)
	if err != nil {
		logFatalf("db: %v", err)
		return
	}
	defer pool.Close()

	dir := os.Getenv("MIGRATIONS_DIR")
	if dir == "" {
		dir = "migrations"
	}
	if err := applyMigrations(ctx, pool, dir, nil, nil, log.Printf); err != nil {
		logFatalf("migration: %v", err)
	}
}

func confineToDir(dir, file string) (string, error) {
	cleanDir := filepath.Clean(dir)
	cleanFile := filepath.Clean(file)
	if !strings.HasPrefix(cleanFile, cleanDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes migrations dir %q", file, dir)
	}
	return cleanFile, nil
}

func applyMigrations(
	ctx context.Context,
	db migrationDB,
	dir string,
	readFile func(name string) ([]byte, error),
	glob func(pattern string) ([]string, error),
	logf func(format string, args ...any),
) error {
	if db == nil {
		return fmt.Errorf("db required")
	}
	if readFile == nil {
		// #nosec G304 -- file paths are confined to the migrations dir before reading.
		readFile = os.ReadFile
	}
	if glob == nil {
		glob = filepath.Glob
	}
	if logf == nil {
		logf = log.Printf
	}

	if _, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	dir = filepath.Clean(dir)
	files, err := glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(files)

	applied := 0
	for _, file := range files {
		cleanFile, err := confineToDir(dir, file)
		if err != nil {
			return err
		}
		name := filepath.Base(cleanFile)
		var exists bool
		if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE filename=$1)`, name).Scan(&exists); err != nil {
			return fmt.Errorf("migration lookup: %w", err)
		}
		if exists {
			continue
		}
		sqlBytes, err := readFile(cleanFile)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		tx, err := db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin migration tx: %w", err)
		}
		if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations(filename) VALUES($1)`, name); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("mark migration %s: %w", name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
		applied++
		logf("applied migration %s", name)
	}

	logf("migrations up to date: %d applied, %d total", applied, len(files))
	return nil
}
