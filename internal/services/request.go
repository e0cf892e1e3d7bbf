package services

import (
	"strings"
	"unicode/utf8"

	"github.com/tbourn/go-sitegen-backend/internal/domain"
)

// GenerateOptions are the caller-supplied flags of one generation.
// Only IncludeBackend affects the model instructions; the media flags are
// carried along for tracing and logging.
type GenerateOptions struct {
	IncludeBackend bool `json:"includeBackend"`
	HasImages      bool `json:"hasImages"`
	HasVideos      bool `json:"hasVideos"`
	HasFiles       bool `json:"hasFiles"`
}

// BuildRequest validates prompt and assembles the outbound request. The
// prompt is kept verbatim; trimming is only used to detect blank input.
// maxRunes <= 0 disables the length check.
func BuildRequest(prompt string, opts GenerateOptions, maxRunes int) (domain.GenerationRequest, error) {
	if strings.TrimSpace(prompt) == "" {
		return domain.GenerationRequest{}, ErrEmptyPrompt
	}
	if maxRunes > 0 && utf8.RuneCountInString(prompt) > maxRunes {
		return domain.GenerationRequest{}, ErrTooLong
	}
	return domain.GenerationRequest{
		Prompt:         prompt,
		IncludeBackend: opts.IncludeBackend,
		HasImages:      opts.HasImages,
		HasVideos:      opts.HasVideos,
		HasFiles:       opts.HasFiles,
	}, nil
}
