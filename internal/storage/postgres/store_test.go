package postgres

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505"}
	if !IsUniqueViolation(dup) {
		t.Fatalf("expected duplicate key to be detected")
	}
	if !IsUniqueViolation(fmt.Errorf("insert: %w", dup)) {
		t.Fatalf("expected wrapped duplicate key to be detected")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatalf("foreign key violation is not a duplicate")
	}
	if IsUniqueViolation(errors.New("connection reset")) {
		t.Fatalf("plain error is not a duplicate")
	}
}

func TestNullableAndNumeric(t *testing.T) {
	if nullable("") != nil {
		t.Fatalf("empty string should map to NULL")
	}
	if nullable("0xabc") != "0xabc" {
		t.Fatalf("value should pass through")
	}
	if numeric("") != "0" {
		t.Fatalf("empty numeric should be zero")
	}
	if numeric("123") != "123" {
		t.Fatalf("numeric should pass through")
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	if len(ups) == 0 {
		t.Fatalf("no migrations embedded")
	}
	for name := range ups {
		if !downs[name] {
			t.Fatalf("migration %s has no down file", name)
		}
	}

	driver, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		t.Fatalf("open source: %v", err)
	}
	defer driver.Close()

	first, err := driver.First()
	if err != nil {
		t.Fatalf("first migration: %v", err)
	}
	if first != 1 {
		t.Fatalf("first version mismatch: %d", first)
	}
	count := 1
	for version := first; ; count++ {
		next, err := driver.Next(version)
		if err != nil {
			break
		}
		version = next
	}
	if count != len(ups) {
		t.Fatalf("version chain length %d, want %d", count, len(ups))
	}
}

func TestMigrationsCreateAllTables(t *testing.T) {
	var schema strings.Builder
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		data, err := fs.ReadFile(migrationFiles, "migrations/"+entry.Name())
		if err != nil {
			t.Fatalf("read %s: %v", entry.Name(), err)
		}
		schema.Write(data)
	}
	for _, table := range []string{
		"blocks", "transactions", "accounts", "contracts", "token_transfers",
		"token_holders", "scan_progress", "block_stats", "markets",
	} {
		if !strings.Contains(schema.String(), "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Fatalf("missing table %s", table)
		}
	}
}
