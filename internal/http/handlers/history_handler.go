package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-sitegen-backend/internal/domain"
	"github.com/tbourn/go-sitegen-backend/internal/services"
	"github.com/tbourn/go-sitegen-backend/internal/utils"
)

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListGenerationsResponse wraps a page of history records, newest first, or
// the ranked hits of a search.
type ListGenerationsResponse struct {
	Generations []domain.Generation `json:"generations"`
	Pagination  Pagination          `json:"pagination"`
}

// ListGenerations godoc
// @ID          listGenerations
// @Summary     List generation history
// @Description Returns the caller's history records, newest first. Supports weak ETag via If-None-Match.
// @Description With q the records are ranked by prompt similarity instead; page_size bounds the hits.
// @Tags        Generations
// @Produce     json
//
// @Param       X-User-ID      header  string  false "Owner id"                     example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"   example(W/\"generations:user123:3:1718000000\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
// @Param       q              query   string  false "Prompt search text"
//
// @Success     200  {object} handlers.ListGenerationsResponse
// @Header      200  {string} ETag  "Weak ETag for the owner's history"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /generations [get]
func (h *Handlers) ListGenerations(c *gin.Context) {
	ctx := c.Request.Context()
	owner := userID(c)
	page, pageSize := utils.ClampPage(c.Query("page"), c.Query("page_size"))

	if q := strings.TrimSpace(c.Query("q")); q != "" {
		hits, err := h.hist.Search(ctx, owner, q, pageSize)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not search history")
			return
		}
		if hits == nil {
			hits = []domain.Generation{}
		}
		n := int64(len(hits))
		ok(c, http.StatusOK, ListGenerationsResponse{
			Generations: hits,
			Pagination:  Pagination{Page: 1, PageSize: pageSize, Total: n, TotalPages: utils.TotalPages(n, pageSize)},
		})
		return
	}

	// ETag pre-check (best effort).
	if count, newest, err := h.hist.Stats(ctx, owner); err == nil {
		var ts int64
		if newest != nil {
			ts = newest.UnixNano()
		}
		etag := fmt.Sprintf(`W/"generations:%s:%d:%d:%d:%d"`, owner, count, ts, page, pageSize)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.hist.ListPage(ctx, owner, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not load history")
		return
	}
	if items == nil {
		items = []domain.Generation{}
	}
	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListGenerationsResponse{
		Generations: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetGeneration godoc
// @ID          getGeneration
// @Summary     Get one history record
// @Tags        Generations
// @Produce     json
//
// @Param       X-User-ID  header  string  false "Owner id"  example(user123)
// @Param       id         path    string  true  "Record id"
//
// @Success     200  {object} domain.Generation
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /generations/{id} [get]
func (h *Handlers) GetGeneration(c *gin.Context) {
	g, err := h.hist.Get(c.Request.Context(), userID(c), c.Param("id"))
	switch {
	case errors.Is(err, services.ErrGenerationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "generation not found")
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load generation")
	default:
		ok(c, http.StatusOK, g)
	}
}

// DeleteGeneration godoc
// @ID          deleteGeneration
// @Summary     Delete one history record
// @Description Deleting an id that does not exist for the caller is a 404, not a no-op.
// @Tags        Generations
//
// @Param       X-User-ID  header  string  false "Owner id"  example(user123)
// @Param       id         path    string  true  "Record id"
//
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /generations/{id} [delete]
func (h *Handlers) DeleteGeneration(c *gin.Context) {
	err := h.hist.Remove(c.Request.Context(), userID(c), c.Param("id"))
	switch {
	case errors.Is(err, services.ErrGenerationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "generation not found")
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeDeleteFailed, "could not delete generation")
	default:
		noContent(c)
	}
}
