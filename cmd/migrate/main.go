package main

import (
	"database/sql"
	"embed"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"time"

	_ "github.com/lib/pq"

	"model-marketplace/internal/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

func main() {
	pruneDays := flag.Int("prune-days", 0, "delete FAILED and EXPIRED transaction log rows older than this many days")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		log.Fatalf("migrate only supports DB_DRIVER=postgres, got %q", cfg.Database.Driver)
	}

	// Connect to database
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database successfully")

	applied, err := migrate(db)
	if err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}
	log.Printf("Migrations up to date (%d applied)", applied)

	if *pruneDays > 0 {
		removed, err := prune(db, time.Duration(*pruneDays)*24*time.Hour)
		if err != nil {
			log.Fatalf("Failed to prune transaction log: %v", err)
		}
		log.Printf("Pruned %d transaction log rows", removed)
	}
}

// migrate applies every embedded migration not yet recorded in schema_migrations
func migrate(db *sql.DB) (int, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		name       TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return 0, err
	}

	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return 0, err
	}
	sort.Strings(names)

	applied := 0
	for _, name := range names {
		var exists bool
		if err := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, name).Scan(&exists); err != nil {
			return applied, err
		}
		if exists {
			continue
		}

		body, err := migrations.ReadFile(name)
		if err != nil {
			return applied, err
		}

		log.Printf("Applying migration: %s", name)
		tx, err := db.Begin()
		if err != nil {
			return applied, err
		}
		if _, err := tx.Exec(string(body)); err != nil {
			tx.Rollback() //nolint:errcheck
			return applied, fmt.Errorf("%s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
			tx.Rollback() //nolint:errcheck
			return applied, err
		}
		if err := tx.Commit(); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// prune removes unsuccessful transaction log rows older than maxAge
func prune(db *sql.DB, maxAge time.Duration) (int64, error) {
	result, err := db.Exec(`
		DELETE FROM marketplace_transactions
		WHERE status IN ('FAILED', 'EXPIRED')
		AND created_at < $1
	`, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
