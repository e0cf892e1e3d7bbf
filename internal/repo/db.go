// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and PostgreSQL, plus schema migrations.
package repo

import (
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-sitegen-backend/internal/domain"
)

// ChangeChannel is the PostgreSQL NOTIFY channel that carries row changes of
// the website_generations table.
const ChangeChannel = "website_generations_changes"

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA busy_timeout=5000;")

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// OpenPostgres connects to PostgreSQL through the pgx-backed GORM driver.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// Open picks the driver by name ("sqlite" or "postgres") and enables
// OpenTelemetry query spans on the returned handle.
func Open(driver, sqlitePath, dsn string) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	if driver == "postgres" {
		db, err = OpenPostgres(dsn)
	} else {
		db, err = OpenSQLite(sqlitePath)
	}
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}
	return db, nil
}

// AutoMigrate creates or updates the schema. On PostgreSQL it also installs
// a trigger that publishes every insert, update, and delete on
// website_generations to ChangeChannel as "op:id:user_id".
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.Generation{},
		&domain.Idempotency{},
	); err != nil {
		return err
	}
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	return db.Exec(notifyTriggerSQL).Error
}

const notifyTriggerSQL = `
CREATE OR REPLACE FUNCTION website_generations_notify() RETURNS trigger AS $$
DECLARE
  rec RECORD;
BEGIN
  IF TG_OP = 'DELETE' THEN
    rec := OLD;
  ELSE
    rec := NEW;
  END IF;
  PERFORM pg_notify('` + ChangeChannel + `', lower(TG_OP) || ':' || rec.id || ':' || rec.user_id);
  RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS website_generations_notify_trg ON website_generations;
CREATE TRIGGER website_generations_notify_trg
AFTER INSERT OR UPDATE OR DELETE ON website_generations
FOR EACH ROW EXECUTE FUNCTION website_generations_notify();
`
