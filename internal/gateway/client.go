// Package gateway calls the hosted chat-completion service that produces
// website markup. A Client sends exactly one completion request per
// Generate call and maps every failure onto one of the kinds declared in
// errors.go. Retries are left to the caller.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tbourn/go-sitegen-backend/internal/domain"
)

// Generator produces raw model text for a request.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (string, error)
}

// maxLoggedBody caps how much of an upstream error body is logged.
const maxLoggedBody = 2048

// Options configures a Client.
type Options struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration

	// HTTPClient overrides the default instrumented client (tests).
	HTTPClient *http.Client
}

// Client talks to an OpenAI-compatible /chat/completions endpoint with
// bearer-token auth.
type Client struct {
	http   *http.Client
	url    string
	apiKey string
	model  string
}

var _ Generator = (*Client)(nil)

// NewClient builds a Client. An empty APIKey is accepted; every Generate
// call then fails with ErrUnauthorized without touching the network.
func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		hc = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{
		http:   hc,
		url:    opts.URL,
		apiKey: strings.TrimSpace(opts.APIKey),
		model:  opts.Model,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate sends one system message and one user message holding the
// prompt verbatim, and returns the first choice's content ("" when the
// upstream returned no content).
func (c *Client) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	ctx, span := otel.Tracer("gateway").Start(ctx, "Gateway.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("gateway.model", c.model),
		attribute.Bool("generation.include_backend", req.IncludeBackend),
		attribute.Bool("generation.has_images", req.HasImages),
		attribute.Bool("generation.has_videos", req.HasVideos),
		attribute.Bool("generation.has_files", req.HasFiles),
		attribute.Int("generation.prompt_len", len(req.Prompt)),
	)

	out, err := c.generate(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate failed")
		return "", err
	}
	return out, nil
}

func (c *Client) generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	if c.apiKey == "" {
		return "", fail(ErrUnauthorized, 0, errors.New("api key is not configured"))
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt(req)},
			{Role: "user", Content: req.Prompt},
		},
	})
	if err != nil {
		return "", fail(ErrGateway, 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fail(ErrTransport, 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fail(ErrTransport, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody))
		kind := kindForStatus(resp.StatusCode)
		log.Warn().
			Int("status", resp.StatusCode).
			Str("kind", kind.Error()).
			Str("body", string(raw)).
			Msg("gateway: upstream rejected completion")
		return "", fail(kind, resp.StatusCode, nil)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fail(ErrGateway, resp.StatusCode, err)
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return out.Choices[0].Message.Content, nil
}
