// Package clienterr defines the three-way error taxonomy shared by
// every external HTTP client shim (STT, TTS, generator): a failure to
// make the request, a non-2xx response from the provider, or a
// response shape the client could not parse. Mirrors the sentinel-
// error idiom the orchestrator package used, generalized across
// client packages instead of duplicated in each.
package clienterr

import (
	"errors"
	"fmt"
)

var (
	// ErrRequest means the HTTP request itself could not be made or
	// completed (DNS, TLS, connection reset, context cancellation).
	ErrRequest = errors.New("client: request failed")
	// ErrAPI means the provider responded but with a non-2xx status.
	ErrAPI = errors.New("client: provider returned an error response")
	// ErrParse means the response body did not have the expected shape.
	ErrParse = errors.New("client: could not parse provider response")
)

// Request wraps err as a request-class failure.
func Request(provider string, err error) error {
	return fmt.Errorf("%s: %w: %v", provider, ErrRequest, err)
}

// API wraps a non-2xx response as an API-class failure.
func API(provider string, status int, body any) error {
	return fmt.Errorf("%s: %w (status %d): %v", provider, ErrAPI, status, body)
}

// Parse wraps err as a parse-class failure.
func Parse(provider string, err error) error {
	return fmt.Errorf("%s: %w: %v", provider, ErrParse, err)
}
