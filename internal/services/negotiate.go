package services

import (
	"encoding/json"

	"github.com/tbourn/go-sitegen-backend/internal/domain"
)

// ShapeKind tells which branch produced a negotiated result.
type ShapeKind int

const (
	// ShapeMarkup: backend output was not requested, the raw text is markup.
	ShapeMarkup ShapeKind = iota
	// ShapeStructured: the raw text was a JSON object with usable html.
	ShapeStructured
	// ShapeFallback: structured output was requested but not delivered.
	ShapeFallback
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeMarkup:
		return "markup"
	case ShapeStructured:
		return "structured"
	case ShapeFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Negotiation is the tagged outcome of Negotiate.
type Negotiation struct {
	Kind   ShapeKind
	Result domain.GenerationResult
}

// Negotiate interprets raw model text. It never fails: when structured
// output was requested but raw is not a JSON object carrying a non-empty
// string "html", the whole raw text becomes the markup.
//
// Optional fields are taken one by one. A field that is missing, null, an
// empty string, or of the wrong type is treated as absent. An empty
// edgeFunctions array stays an empty, non-nil slice.
func Negotiate(raw string, includeBackend bool) Negotiation {
	if !includeBackend {
		return Negotiation{Kind: ShapeMarkup, Result: domain.GenerationResult{Markup: raw}}
	}
	if res, ok := parseStructured(raw); ok {
		return Negotiation{Kind: ShapeStructured, Result: res}
	}
	return Negotiation{Kind: ShapeFallback, Result: domain.GenerationResult{Markup: raw}}
}

func parseStructured(raw string) (domain.GenerationResult, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return domain.GenerationResult{}, false
	}

	var html string
	if f, ok := obj["html"]; !ok || json.Unmarshal(f, &html) != nil || html == "" {
		return domain.GenerationResult{}, false
	}

	res := domain.GenerationResult{Markup: html}
	if f, ok := obj["hasBackend"]; ok {
		_ = json.Unmarshal(f, &res.HasBackend)
	}
	res.BackendCode = optionalString(obj["backendCode"])
	res.DatabaseSchema = optionalString(obj["databaseSchema"])
	if f, ok := obj["edgeFunctions"]; ok {
		var efs []domain.EdgeFunction
		if err := json.Unmarshal(f, &efs); err == nil {
			res.EdgeFunctions = efs
		}
	}
	return res, true
}

func optionalString(f json.RawMessage) *string {
	if f == nil {
		return nil
	}
	var s string
	if err := json.Unmarshal(f, &s); err != nil || s == "" {
		return nil
	}
	return &s
}
