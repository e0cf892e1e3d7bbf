package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	genai "google.golang.org/genai"

	"github.com/tbourn/go-sitegen-backend/internal/domain"
)

// GeminiClient calls the Gemini API directly through the official genai SDK.
// It honors the same contract as Client: one request, no retries, and the
// same failure kinds.
type GeminiClient struct {
	cli   *genai.Client
	model string
}

var _ Generator = (*GeminiClient)(nil)

// NewGeminiClient builds a GeminiClient from the same Options as Client.
// opts.URL, when set, overrides the API base URL. With an empty APIKey it
// returns a client whose Generate always fails with ErrUnauthorized.
func NewGeminiClient(ctx context.Context, opts Options) (*GeminiClient, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return &GeminiClient{model: opts.Model}, nil
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  hc,
		HTTPOptions: genai.HTTPOptions{BaseURL: opts.URL},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiClient{cli: cli, model: opts.Model}, nil
}

// Generate sends the system template as a system instruction and the prompt
// as the single user turn, returning the text of the first candidate.
func (g *GeminiClient) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	ctx, span := otel.Tracer("gateway").Start(ctx, "Gemini.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("gateway.model", g.model),
		attribute.Bool("generation.include_backend", req.IncludeBackend),
	)

	if g.cli == nil {
		err := fail(ErrUnauthorized, 0, errors.New("api key is not configured"))
		span.RecordError(err)
		span.SetStatus(codes.Error, "no credential")
		return "", err
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: req.Prompt}}}},
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: SystemPrompt(req)}}},
		},
	)
	if err != nil {
		err = classifyGenAI(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate failed")
		return "", err
	}
	return candidateText(resp), nil
}

// classifyGenAI maps SDK errors onto failure kinds. API errors carry an
// HTTP status; anything else never produced a response.
func classifyGenAI(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiFailure(apiErr)
	}
	var apiPtr *genai.APIError
	if errors.As(err, &apiPtr) && apiPtr != nil {
		return apiFailure(*apiPtr)
	}
	return fail(ErrTransport, 0, err)
}

func apiFailure(e genai.APIError) error {
	kind := kindForStatus(e.Code)
	log.Warn().
		Int("status", e.Code).
		Str("kind", kind.Error()).
		Str("upstream_status", e.Status).
		Str("body", truncate(e.Message, maxLoggedBody)).
		Msg("gateway: gemini rejected completion")
	return fail(kind, e.Code, nil)
}

func candidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
