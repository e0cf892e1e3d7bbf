// Package domain defines the persistence models and value types of the
// website generator. These types are mapped with GORM and shared across
// the repository, service, and transport layers.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// EdgeFunction names one serverless function produced alongside a
// generated backend.
type EdgeFunction struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// GenerationRequest is the transient input of one generation. It is built
// once per call and never persisted as its own entity.
type GenerationRequest struct {
	Prompt         string
	IncludeBackend bool
	HasImages      bool
	HasVideos      bool
	HasFiles       bool
}

// GenerationResult is the negotiated output of one model call. When
// HasBackend is false the backend fields are normally nil; the
// negotiator copies what the model sent and does not enforce that.
type GenerationResult struct {
	Markup         string
	HasBackend     bool
	BackendCode    *string
	DatabaseSchema *string
	EdgeFunctions  []EdgeFunction
}

// Generation is an immutable history record of one successful generation.
// Rows are created once by the record store and only ever hard-deleted.
//
// Fields:
//   - ID: server-assigned UUID (char(36)).
//   - UserID: owning principal; indexed together with CreatedAt for newest-first listing.
//   - Prompt / GeneratedCode: the request text and the produced markup.
//   - HasBackend, BackendCode, DatabaseSchema, EdgeFunctions: flattened backend artifacts.
//   - WebsiteURL: set when the markup was published to object storage.
//   - Structured: response shape of the original call; not part of the API payload.
type Generation struct {
	ID             string                            `json:"id"              gorm:"type:char(36);primaryKey"`
	UserID         string                            `json:"user_id"         gorm:"type:varchar(64);not null;index:idx_user_generations,priority:1"`
	Prompt         string                            `json:"prompt"          gorm:"type:text;not null"`
	GeneratedCode  string                            `json:"generated_code"  gorm:"type:text;not null"`
	HasBackend     bool                              `json:"has_backend"     gorm:"not null;default:false"`
	BackendCode    *string                           `json:"backend_code"    gorm:"type:text"`
	DatabaseSchema *string                           `json:"database_schema" gorm:"type:text"`
	EdgeFunctions  datatypes.JSONSlice[EdgeFunction] `json:"edge_functions"`
	CreatedAt      time.Time                         `json:"created_at"      gorm:"not null;index:idx_user_generations,priority:2"`
	WebsiteURL     *string                           `json:"website_url"     gorm:"type:text"`

	// Structured records whether the model delivered structured output, so a
	// replayed response keeps the shape of the original one.
	Structured bool `json:"-" gorm:"not null;default:false"`
}

// TableName returns the database table name for Generation.
func (Generation) TableName() string { return "website_generations" }

// Result rebuilds the GenerationResult embedded in the record.
func (g Generation) Result() GenerationResult {
	var efs []EdgeFunction
	if g.EdgeFunctions != nil {
		efs = []EdgeFunction(g.EdgeFunctions)
	}
	return GenerationResult{
		Markup:         g.GeneratedCode,
		HasBackend:     g.HasBackend,
		BackendCode:    g.BackendCode,
		DatabaseSchema: g.DatabaseSchema,
		EdgeFunctions:  efs,
	}
}
