package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tbourn/go-sitegen-backend/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	c := NewClient(Options{URL: srv.URL, APIKey: "secret", Model: "google/gemini-2.5-flash", HTTPClient: srv.Client()})
	return c, &calls
}

func TestGenerate_SendsSingleChatExchange(t *testing.T) {
	var got chatRequest
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"<html>ok</html>"}}]}`))
	})

	req := domain.GenerationRequest{Prompt: "  A landing page for a bakery  ", HasImages: true}
	out, err := c.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "<html>ok</html>" {
		t.Fatalf("out = %q", out)
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Fatalf("expected exactly one upstream call, got %d", *calls)
	}
	if got.Model != "google/gemini-2.5-flash" || len(got.Messages) != 2 {
		t.Fatalf("unexpected request: %+v", got)
	}
	if got.Messages[0].Role != "system" || got.Messages[0].Content != markupOnlyPrompt {
		t.Fatalf("system message should be the markup-only template")
	}
	if got.Messages[1].Role != "user" || got.Messages[1].Content != req.Prompt {
		t.Fatalf("user message should carry the prompt verbatim, got %q", got.Messages[1].Content)
	}
}

func TestGenerate_FullStackTemplate(t *testing.T) {
	var got chatRequest
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	})
	if _, err := c.Generate(context.Background(), domain.GenerationRequest{Prompt: "todo", IncludeBackend: true}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got.Messages[0].Content != fullStackPrompt {
		t.Fatalf("expected full-stack template")
	}
}

func TestGenerate_EmptyChoicesYieldsEmptyText(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	out, err := c.Generate(context.Background(), domain.GenerationRequest{Prompt: "x"})
	if err != nil || out != "" {
		t.Fatalf("expected (\"\", nil), got (%q, %v)", out, err)
	}
}

func TestGenerate_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusPaymentRequired, ErrPaymentRequired},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusInternalServerError, ErrGateway},
		{http.StatusBadRequest, ErrGateway},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"detail":"upstream secret detail"}`))
			})
			_, err := c.Generate(context.Background(), domain.GenerationRequest{Prompt: "x"})
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			var ge *Error
			if !errors.As(err, &ge) || ge.StatusCode != tc.status {
				t.Fatalf("expected *Error with status %d, got %#v", tc.status, err)
			}
			if strings.Contains(err.Error(), "upstream secret detail") {
				t.Fatalf("upstream body must not be surfaced: %v", err)
			}
			if atomic.LoadInt32(calls) != 1 {
				t.Fatalf("no retries expected, got %d calls", *calls)
			}
		})
	}
}

func TestGenerate_MissingKey_NoNetwork(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	c.apiKey = ""
	_, err := c.Generate(context.Background(), domain.GenerationRequest{Prompt: "x"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if atomic.LoadInt32(calls) != 0 {
		t.Fatalf("no request expected without a key")
	}
}

func TestGenerate_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(Options{URL: url, APIKey: "k", Model: "m", Timeout: time.Second})
	_, err := c.Generate(context.Background(), domain.GenerationRequest{Prompt: "x"})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestGenerate_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	c := NewClient(Options{URL: srv.URL, APIKey: "k", Model: "m", Timeout: 20 * time.Millisecond})
	if _, err := c.Generate(context.Background(), domain.GenerationRequest{Prompt: "x"}); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport on timeout, got %v", err)
	}
}

func TestGenerate_UndecodableBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})
	if _, err := c.Generate(context.Background(), domain.GenerationRequest{Prompt: "x"}); !errors.Is(err, ErrGateway) {
		t.Fatalf("expected ErrGateway, got %v", err)
	}
}

func TestSystemPrompt_IgnoresMediaFlags(t *testing.T) {
	a := SystemPrompt(domain.GenerationRequest{IncludeBackend: true})
	b := SystemPrompt(domain.GenerationRequest{IncludeBackend: true, HasImages: true, HasVideos: true, HasFiles: true})
	if a != b {
		t.Fatalf("media flags must not change the system prompt")
	}
	if !strings.Contains(a, `"html"`) || !strings.Contains(a, "edgeFunctions") {
		t.Fatalf("full-stack template must describe the JSON shape")
	}
	if SystemPrompt(domain.GenerationRequest{}) == a {
		t.Fatalf("templates should differ")
	}
}

func TestError_Formatting(t *testing.T) {
	e := &Error{Kind: ErrGateway, StatusCode: 500}
	if e.Error() != "gateway error (status 500)" {
		t.Fatalf("Error() = %q", e.Error())
	}
	cause := errors.New("boom")
	e = &Error{Kind: ErrTransport, Err: cause}
	if !errors.Is(e, cause) || !errors.Is(e, ErrTransport) {
		t.Fatalf("Unwrap should expose kind and cause")
	}
}
