package msgdispatch

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
)

// MigrationFiles contains the outbox schema for every supported driver,
// laid out as migrations/<driver>/NNNN_name.sql. Users can hand the files
// to their preferred migration tool (goose, golang-migrate, atlas, etc.)
// or apply them with ApplyMigrations.
//
// Example with goose:
//
//	goose.SetBaseFS(msgdispatch.MigrationFiles)
//	if err := goose.Up(db, "migrations/mysql"); err != nil {
//	    log.Fatal(err)
//	}
//
//go:embed migrations
var MigrationFiles embed.FS

// MigrationDrivers lists the drivers MigrationFiles has a schema for.
var MigrationDrivers = []string{"mysql", "postgres", "sqlite3"}

// ApplyMigrations executes the embedded migrations of driver against db in
// file name order. Statements use IF NOT EXISTS, so applying twice is safe.
func ApplyMigrations(ctx context.Context, db *sql.DB, driver string) error {
	if db == nil {
		return NewError(ErrCodeArgument, "db is required")
	}
	if !slices.Contains(MigrationDrivers, driver) {
		return NewError(ErrCodeConfiguration, fmt.Sprintf("unsupported migration driver: %q", driver))
	}

	dir := path.Join("migrations", driver)
	entries, err := fs.ReadDir(MigrationFiles, dir)
	if err != nil {
		return NewErrorWithCause(ErrCodeConfiguration, "failed to read migrations", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		content, err := fs.ReadFile(MigrationFiles, path.Join(dir, entry.Name()))
		if err != nil {
			return NewErrorWithCause(ErrCodeConfiguration, "failed to read migration "+entry.Name(), err)
		}

		for _, stmt := range statements(string(content)) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return NewErrorWithCause(ErrCodeDatabase, "failed to apply migration "+entry.Name(), err)
			}
		}
	}

	return nil
}

// statements splits a migration file on ';'. The schema files contain no
// string literals or procedures holding semicolons.
func statements(script string) []string {
	var out []string
	for _, part := range strings.Split(script, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
