// Package services defines the business logic of the website generator:
// request building, result negotiation, history persistence, and search.
// This file centralizes service-level error values so that handlers can map
// them to HTTP results consistently.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is the umbrella for request validation failures. No
	// network call is made when it is returned.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyPrompt is returned when the prompt is empty or whitespace-only.
	ErrEmptyPrompt = fmt.Errorf("%w: prompt is empty", ErrInvalidInput)

	// ErrTooLong is returned when the prompt exceeds the configured rune limit.
	ErrTooLong = fmt.Errorf("%w: prompt too long", ErrInvalidInput)

	// ErrGenerationNotFound indicates that the history record does not exist
	// for the caller.
	ErrGenerationNotFound = errors.New("generation not found")

	// ErrPersistence wraps record store failures.
	ErrPersistence = errors.New("persistence failure")
)

// persistence tags a store error with ErrPersistence while keeping the cause.
func persistence(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
