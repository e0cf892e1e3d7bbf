package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-sitegen-backend/internal/domain"
)

func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	// Unique DB per test to avoid schema leaking across tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestGenerationsStats_CountError_NoTable(t *testing.T) {
	db := newTestDB(t)
	if _, _, err := GenerationsStats(context.Background(), db, "u1"); err == nil {
		t.Fatalf("expected error due to missing table")
	}
}

func TestGenerationsStats_ZeroRows(t *testing.T) {
	db := newTestDB(t, &domain.Generation{})
	count, newest, err := GenerationsStats(context.Background(), db, "u1")
	if err != nil || count != 0 || newest != nil {
		t.Fatalf("expected (0, nil, nil), got (%d, %v, %v)", count, newest, err)
	}
}

func TestGenerationsStats_FilterAndNewest(t *testing.T) {
	db := newTestDB(t, &domain.Generation{})

	t1 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC) // newest for u1
	t3 := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)   // other user

	for _, g := range []domain.Generation{
		{ID: "g1", UserID: "u1", Prompt: "a", GeneratedCode: "x", CreatedAt: t1},
		{ID: "g2", UserID: "u1", Prompt: "b", GeneratedCode: "x", CreatedAt: t2},
		{ID: "g3", UserID: "u2", Prompt: "c", GeneratedCode: "x", CreatedAt: t3},
	} {
		g := g
		if err := db.Create(&g).Error; err != nil {
			t.Fatalf("seed %s: %v", g.ID, err)
		}
	}

	count, newest, err := GenerationsStats(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("GenerationsStats error: %v", err)
	}
	if count != 2 || newest == nil || !newest.Equal(t2) {
		t.Fatalf("expected (2, %v), got (%d, %v)", t2, count, newest)
	}
}

// Force the second query to fail by renaming the column.
func TestGenerationsStats_SelectNewest_ErrorPath(t *testing.T) {
	db := newTestDB(t, &domain.Generation{})
	if err := db.Create(&domain.Generation{ID: "gx", UserID: "uerr", Prompt: "p", GeneratedCode: "x", CreatedAt: time.Now().UTC()}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := db.Exec(`DROP INDEX IF EXISTS idx_user_generations`).Error; err != nil {
		t.Fatalf("drop index: %v", err)
	}
	if err := db.Exec(`ALTER TABLE website_generations RENAME COLUMN created_at TO created_at_old`).Error; err != nil {
		t.Fatalf("rename column: %v", err)
	}
	if _, _, err := GenerationsStats(context.Background(), db, "uerr"); err == nil {
		t.Fatalf("expected error from newest select after column rename")
	}
}
