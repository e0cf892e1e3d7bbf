// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import "strconv"

// Page bounds applied by ClampPage.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AtoiDefault converts s with strconv.Atoi, returning def when s is empty or
// not an integer.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampPage parses raw page and page_size query values. page is at least 1;
// size falls back to DefaultPageSize when missing and is kept in
// [1, MaxPageSize].
func ClampPage(pageRaw, sizeRaw string) (page, size int) {
	page = AtoiDefault(pageRaw, 1)
	if page < 1 {
		page = 1
	}
	size = AtoiDefault(sizeRaw, DefaultPageSize)
	if size < 1 {
		size = 1
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// TotalPages returns how many pages of size hold total items.
func TotalPages(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
