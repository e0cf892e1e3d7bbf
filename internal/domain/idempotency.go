package domain

import "time"

// Idempotency remembers which generation a client-supplied Idempotency-Key
// produced, keyed by (user_id, key). A retried POST replays the stored
// record instead of calling the model again.
type Idempotency struct {
	ID           string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_idem_user_key,priority:1"`
	Key          string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_idem_user_key,priority:2"`
	GenerationID string    `gorm:"type:TEXT NOT NULL"`
	Status       int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt    time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt    time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
