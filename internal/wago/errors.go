package wago

import (
	"errors"
	"fmt"
)

// Sentinel errors for wago operations.
var (
	// ErrAuthentication indicates an upload was attempted without an API key.
	ErrAuthentication = errors.New("a Wago Addons API key is required to upload an addon")

	// ErrFileNotFound indicates the release file does not exist locally.
	ErrFileNotFound = errors.New("file not found")

	// ErrTransport indicates the API call failed or returned a non-2xx status.
	ErrTransport = errors.New("transport error")

	// ErrDecode indicates the API returned a body that is not valid JSON.
	ErrDecode = errors.New("failed to decode response")

	// ErrNilMetadata indicates metadata was not provided.
	ErrNilMetadata = errors.New("metadata cannot be nil")

	// ErrEmptyProjectID indicates an upload without a project id.
	ErrEmptyProjectID = errors.New("project id cannot be empty")

	// ErrInvalidProjectID indicates a project id that is not a single URL path segment.
	ErrInvalidProjectID = errors.New("invalid project id")
)

// ValidationError reports a patch the API does not recognise for a flavor.
type ValidationError struct {
	Flavor Flavor
	Patch  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid patch version for flavor '%s': %s", e.Flavor, e.Patch)
}

// APIError is returned when the API answers with a non-2xx status, or when
// the request never got an answer (StatusCode 0).
type APIError struct {
	Endpoint   string
	StatusCode int
	Status     string
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("request to %s failed: %v", e.Endpoint, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("API error for %s: %s: %s", e.Endpoint, e.Status, e.Body)
	}
	return fmt.Sprintf("API error for %s: %s", e.Endpoint, e.Status)
}

func (e *APIError) Is(target error) bool {
	return target == ErrTransport
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// DecodeError is returned when a response body is not the expected JSON.
type DecodeError struct {
	Endpoint string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode response from %s: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
