package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-sitegen-backend/internal/domain"
	"github.com/tbourn/go-sitegen-backend/internal/gateway"
	"github.com/tbourn/go-sitegen-backend/internal/http/middleware"
	"github.com/tbourn/go-sitegen-backend/internal/services"
)

//
// DTOs
//

// GenerateRequest is the JSON payload for one generation.
type GenerateRequest struct {
	Prompt         string `json:"prompt" example:"A landing page for a bakery"`
	IncludeBackend bool   `json:"includeBackend" example:"false"`
	HasImages      bool   `json:"hasImages" example:"false"`
	HasVideos      bool   `json:"hasVideos" example:"false"`
	HasFiles       bool   `json:"hasFiles" example:"false"`
}

// BackendArtifacts is present in a GenerateResponse only when the model
// delivered structured output. Absent values are encoded as null.
type BackendArtifacts struct {
	HasBackend     bool                  `json:"hasBackend"`
	BackendCode    *string               `json:"backendCode"`
	DatabaseSchema *string               `json:"databaseSchema"`
	EdgeFunctions  []domain.EdgeFunction `json:"edgeFunctions"`
}

// GenerateResponse carries the generated markup in Code.
type GenerateResponse struct {
	Code string `json:"code" example:"<html>...</html>"`
	*BackendArtifacts

	// ID of the saved history record; empty when Saved is false.
	ID         string  `json:"id,omitempty"`
	WebsiteURL *string `json:"websiteUrl,omitempty"`
	Saved      bool    `json:"saved"`
	SaveError  string  `json:"saveError,omitempty"`
}

func newGenerateResponse(res domain.GenerationResult, structured bool) GenerateResponse {
	out := GenerateResponse{Code: res.Markup}
	if structured {
		out.BackendArtifacts = &BackendArtifacts{
			HasBackend:     res.HasBackend,
			BackendCode:    res.BackendCode,
			DatabaseSchema: res.DatabaseSchema,
			EdgeFunctions:  res.EdgeFunctions,
		}
	}
	return out
}

//
// Handlers
//

// Generate godoc
// @ID          generateWebsite
// @Summary     Generate a website
// @Description Sends the prompt to the model gateway once and returns the generated markup.
// @Description With includeBackend the model is asked for structured output; when it does not comply the raw text is returned as markup.
// @Description The result is appended to the caller's history; a failed save is reported in saved/saveError and does not fail the request.
// @Tags        Generations
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "Owner id (set by the auth proxy)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Replays the stored record for a repeated key"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.GenerateRequest  true  "Generation payload"
//
// @Success     200  {object}  handlers.GenerateResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Empty or oversized prompt"
// @Failure     402  {object}  handlers.ErrorResponse  "Payment required"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Gateway or internal error"
// @Router      /generations [post]
func (h *Handlers) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	owner := userID(c)

	if id, replay := middleware.ReplayID(c); replay {
		if rec, err := h.hist.Get(c.Request.Context(), owner, id); err == nil {
			c.Header("Idempotency-Replayed", "true")
			resp := newGenerateResponse(rec.Result(), rec.Structured)
			resp.ID, resp.WebsiteURL, resp.Saved = rec.ID, rec.WebsiteURL, true
			ok(c, http.StatusOK, resp)
			return
		}
	}

	// The model call is not tied to the client connection: an abandoned
	// request still runs to completion (bounded by the gateway timeout) and
	// is saved to history.
	ctx := context.WithoutCancel(c.Request.Context())
	out, err := h.gen.Generate(ctx, owner, req.Prompt, services.GenerateOptions{
		IncludeBackend: req.IncludeBackend,
		HasImages:      req.HasImages,
		HasVideos:      req.HasVideos,
		HasFiles:       req.HasFiles,
	})
	if err != nil {
		status, code, msg := generationFailure(err)
		fail(c, status, code, msg)
		return
	}

	resp := newGenerateResponse(out.Result, out.Shape == services.ShapeStructured)
	if out.Saved() {
		resp.ID, resp.WebsiteURL, resp.Saved = out.Record.ID, out.Record.WebsiteURL, true
		if key, has := middleware.GetIdempotencyKey(c); has && h.idem != nil {
			if err := h.idem.Remember(ctx, owner, key, out.Record.ID); err != nil {
				middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency: could not remember key")
			}
		}
	} else if out.SaveErr != nil {
		resp.SaveError = "generation was not saved to history"
	}
	ok(c, http.StatusOK, resp)
}

// generationFailure maps a Generate error to (status, code, message). The
// upstream response body never reaches the client.
func generationFailure(err error) (int, string, string) {
	switch {
	case errors.Is(err, services.ErrEmptyPrompt):
		return http.StatusBadRequest, ErrCodeBadRequest, "prompt is required"
	case errors.Is(err, services.ErrTooLong):
		return http.StatusBadRequest, ErrCodeBadRequest, "prompt is too long"
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest, ErrCodeBadRequest, err.Error()
	case errors.Is(err, gateway.ErrRateLimited):
		return http.StatusTooManyRequests, ErrCodeRateLimited, "Rate limits exceeded, please try again later."
	case errors.Is(err, gateway.ErrPaymentRequired):
		return http.StatusPaymentRequired, ErrCodePaymentRequired, "Payment required, please add funds to your AI gateway workspace."
	case errors.Is(err, gateway.ErrUnauthorized):
		return http.StatusInternalServerError, ErrCodeGatewayAuth, "AI gateway credential is missing or was rejected"
	case errors.Is(err, gateway.ErrTransport):
		return http.StatusInternalServerError, ErrCodeGateway, "AI gateway unreachable"
	case errors.Is(err, gateway.ErrGateway):
		return http.StatusInternalServerError, ErrCodeGateway, "AI gateway error"
	default:
		return http.StatusInternalServerError, ErrCodeInternal, fmt.Sprintf("generation failed: %v", err)
	}
}
