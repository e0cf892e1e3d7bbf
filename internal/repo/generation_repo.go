// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Generation history record.
//
// All functions are context-aware and accept a *gorm.DB handle, so they can
// run inside transactions. They follow the "thin repository" approach: no
// business logic, only persistence and query composition.
//
// Error semantics:
//   - A missing record yields gorm.ErrRecordNotFound (exported as ErrNotFound).
//   - Any other database error is returned as-is.
//
// Records are immutable: after CreateGeneration the only mutation is
// DeleteGeneration.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-sitegen-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for consistency across the service
// layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// NewGenerationID returns a time-ordered UUIDv7, falling back to a random
// UUID if the clock source fails.
func NewGenerationID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// CreateGeneration inserts one history record. CreatedAt is always assigned
// here; ID is assigned only when the caller left it empty.
func CreateGeneration(ctx context.Context, db *gorm.DB, g *domain.Generation) error {
	if g.ID == "" {
		g.ID = NewGenerationID()
	}
	g.CreatedAt = time.Now().UTC()
	return db.WithContext(ctx).Create(g).Error
}

// ListGenerations returns every record owned by userID, newest first.
// Ties on created_at are broken by id so the order is stable.
func ListGenerations(ctx context.Context, db *gorm.DB, userID string) ([]domain.Generation, error) {
	out := []domain.Generation{}
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Order("id desc").
		Find(&out).Error
	return out, err
}

// CountGenerations returns the number of records owned by userID.
func CountGenerations(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Generation{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListGenerationsPage returns one page of userID's records, newest first.
// The caller computes offset and limit.
func ListGenerationsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Generation, error) {
	out := []domain.Generation{}
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Order("id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetGeneration fetches a record by id scoped to its owner.
func GetGeneration(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Generation, error) {
	var g domain.Generation
	if err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&g).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

// DeleteGeneration removes the record with the given id owned by userID.
// The row is loaded first so delete callbacks observe its owner. It returns
// ErrNotFound when no such record exists for userID.
//
// Change callbacks run after GORM's per-statement commit. Do not wrap this
// in an outer transaction or they fire before the delete is visible.
func DeleteGeneration(ctx context.Context, db *gorm.DB, id, userID string) error {
	var g domain.Generation
	if err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&g).Error; err != nil {
		return err
	}
	res := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&g)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
