// Package services – GenerationService
//
// GenerationService runs one generation end to end: build the request, call
// the model gateway once, negotiate the result shape, optionally publish the
// markup, and append a history record. The steps are sequential; nothing
// here runs concurrently within a single call.
package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-sitegen-backend/internal/domain"
	"github.com/tbourn/go-sitegen-backend/internal/gateway"
	"github.com/tbourn/go-sitegen-backend/internal/repo"
)

// Publisher uploads generated markup and returns its public URL.
type Publisher interface {
	Publish(ctx context.Context, ownerID, generationID, markup string) (string, error)
}

// Recorder persists a prepared history record.
type Recorder interface {
	Save(ctx context.Context, g *domain.Generation) error
}

// GenerationService wires the gateway, the negotiator, and history.
type GenerationService struct {
	Gateway   gateway.Generator
	History   Recorder
	Publisher Publisher // optional

	MaxPromptRunes int
}

// GenerationOutcome is what a caller receives after a successful model call.
// Record is nil and SaveErr is set when history persistence failed; the
// Result is still valid and must be delivered.
type GenerationOutcome struct {
	Result  domain.GenerationResult
	Shape   ShapeKind
	Record  *domain.Generation
	SaveErr error
}

// Saved reports whether the outcome reached history.
func (o *GenerationOutcome) Saved() bool { return o.Record != nil && o.SaveErr == nil }

// Generate runs the pipeline for ownerID. Validation errors (ErrInvalidInput)
// and gateway failures (gateway.Err*) are returned as-is and nothing is
// persisted. A persistence failure is not an error of Generate.
func (s *GenerationService) Generate(ctx context.Context, ownerID, prompt string, opts GenerateOptions) (*GenerationOutcome, error) {
	tr := otel.Tracer("services/GenerationService")
	ctx, span := tr.Start(ctx, "Generate",
		trace.WithAttributes(
			attribute.String("user.id", ownerID),
			attribute.Bool("generation.include_backend", opts.IncludeBackend),
		),
	)
	defer span.End()

	req, err := BuildRequest(prompt, opts, s.MaxPromptRunes)
	if err != nil {
		span.SetStatus(codes.Error, "invalid input")
		return nil, err
	}

	raw, err := s.Gateway.Generate(ctx, req)
	if err != nil {
		gatewayFailures.WithLabelValues(gatewayKind(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway failed")
		return nil, err
	}

	neg := Negotiate(raw, req.IncludeBackend)
	generationsTotal.WithLabelValues(neg.Kind.String()).Inc()
	span.SetAttributes(attribute.String("generation.shape", neg.Kind.String()))
	if neg.Kind == ShapeFallback {
		log.Info().Str("user_id", ownerID).Msg("generation: structured output not parseable, delivering raw markup")
	}

	out := &GenerationOutcome{Result: neg.Result, Shape: neg.Kind}
	if s.History == nil {
		return out, nil
	}

	rec := NewRecord(ownerID, prompt, neg.Result)
	rec.ID = repo.NewGenerationID()
	rec.Structured = neg.Kind == ShapeStructured
	if s.Publisher != nil {
		url, perr := s.Publisher.Publish(ctx, ownerID, rec.ID, neg.Result.Markup)
		if perr != nil {
			log.Warn().Err(perr).Str("user_id", ownerID).Str("generation_id", rec.ID).Msg("generation: publish failed")
		} else {
			rec.WebsiteURL = &url
		}
	}

	if err := s.History.Save(ctx, rec); err != nil {
		historySaveFailures.Inc()
		span.RecordError(err)
		log.Error().Err(err).Str("user_id", ownerID).Msg("generation: history save failed, result still delivered")
		out.SaveErr = err
		return out, nil
	}
	out.Record = rec
	return out, nil
}

func gatewayKind(err error) string {
	switch {
	case errors.Is(err, gateway.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, gateway.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, gateway.ErrPaymentRequired):
		return "payment_required"
	case errors.Is(err, gateway.ErrTransport):
		return "transport"
	default:
		return "gateway"
	}
}
