package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-sitegen-backend/internal/domain"
)

func newIdemDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
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

func TestGetIdempotency_BlankKey_ReturnsNotFound(t *testing.T) {
	db := newIdemDB(t, &domain.Idempotency{})

	rec, err := GetIdempotency(context.Background(), db, "u1", "   ", time.Now().UTC())
	if rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for blank key, got (%v, %v)", rec, err)
	}
}

func TestGetIdempotency_ExpiredOrMissing_ReturnsNotFound(t *testing.T) {
	db := newIdemDB(t, &domain.Idempotency{})
	now := time.Now().UTC()

	exp := &domain.Idempotency{
		ID:           "expired",
		UserID:       "u1",
		Key:          "k1",
		GenerationID: "g1",
		Status:       200,
		CreatedAt:    now.Add(-2 * time.Hour),
		ExpiresAt:    now.Add(-time.Hour),
	}
	if err := db.Create(exp).Error; err != nil {
		t.Fatalf("seed expired: %v", err)
	}

	if rec, err := GetIdempotency(context.Background(), db, "u1", "k1", now); rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for expired, got (%v, %v)", rec, err)
	}
	if rec, err := GetIdempotency(context.Background(), db, "u1", "missing", now); rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for missing, got (%v, %v)", rec, err)
	}
}

func TestGetIdempotency_ScopedToUser(t *testing.T) {
	db := newIdemDB(t, &domain.Idempotency{})
	now := time.Now().UTC()

	if err := db.Create(&domain.Idempotency{
		ID: "ok", UserID: "u1", Key: "k2", GenerationID: "g7", Status: 200,
		CreatedAt: now.Add(-time.Minute), ExpiresAt: now.Add(time.Hour),
	}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec, err := GetIdempotency(context.Background(), db, "u1", "k2", now)
	if err != nil || rec == nil || rec.GenerationID != "g7" || rec.Status != 200 {
		t.Fatalf("unexpected (%+v, %v)", rec, err)
	}
	if _, err := GetIdempotency(context.Background(), db, "u2", "k2", now); err != ErrNotFound {
		t.Fatalf("other user must not see the key, got %v", err)
	}
}

func TestCreateIdempotency_SuccessAndDuplicate(t *testing.T) {
	db := newIdemDB(t, &domain.Idempotency{})
	ttl := 90 * time.Minute
	start := time.Now().UTC()

	rec, err := CreateIdempotency(context.Background(), db, "u9", "k9", "g9", 200, ttl)
	if err != nil {
		t.Fatalf("CreateIdempotency error: %v", err)
	}
	if rec.ID == "" || rec.UserID != "u9" || rec.Key != "k9" || rec.GenerationID != "g9" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !(rec.ExpiresAt.After(start) && rec.ExpiresAt.Before(start.Add(2*time.Hour))) {
		t.Fatalf("unexpected ExpiresAt: %v", rec.ExpiresAt)
	}

	if _, err := CreateIdempotency(context.Background(), db, "u9", "k9", "gX", 200, ttl); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestCreateIdempotency_Error_NoTable(t *testing.T) {
	db := newIdemDB(t)
	_, err := CreateIdempotency(context.Background(), db, "uX", "kX", "gX", 200, time.Minute)
	if err == nil || err == ErrDuplicate {
		t.Fatalf("expected plain error when table is missing, got %v", err)
	}
}

func TestPurgeExpiredIdempotency(t *testing.T) {
	db := newIdemDB(t, &domain.Idempotency{})
	now := time.Now().UTC()
	seed := []domain.Idempotency{
		{ID: "a", UserID: "u", Key: "k1", GenerationID: "g", Status: 200, CreatedAt: now, ExpiresAt: now.Add(-time.Second)},
		{ID: "b", UserID: "u", Key: "k2", GenerationID: "g", Status: 200, CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	}
	if err := db.Create(&seed).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	n, err := PurgeExpiredIdempotency(context.Background(), db, now)
	if err != nil || n != 1 {
		t.Fatalf("purge = (%d, %v), want (1, nil)", n, err)
	}
}
