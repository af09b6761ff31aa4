// Package apperr holds the error types shared by the upstream adapters and
// the HTTP layer, plus the mapping from error to response status.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// maxBodyInMessage bounds how much of an upstream error body is echoed back.
const maxBodyInMessage = 2048

// UpstreamError reports a failed call to an external AI or speech service.
type UpstreamError struct {
	// Service names the upstream, e.g. "Claude API" or "Gemini".
	Service string
	// Status is the HTTP status returned upstream, 0 when no response arrived.
	Status int
	// Body is the upstream error body or a short reason.
	Body string
	// Err is the transport error, if any.
	Err error
}

func (e *UpstreamError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > maxBodyInMessage {
		body = body[:maxBodyInMessage] + "..."
	}
	switch {
	case e.Status > 0 && body != "":
		return fmt.Sprintf("%s HTTP %d: %s", e.Service, e.Status, body)
	case e.Status > 0:
		return fmt.Sprintf("%s HTTP %d: Request failed", e.Service, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s request failed: %v", e.Service, e.Err)
	case body != "":
		return e.Service + " " + body
	default:
		return e.Service + " request failed"
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// CredentialError reports a missing operator credential.
type CredentialError struct {
	// Env is the environment variable that must be set.
	Env string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("Missing %s. Add it to .env (see .env.template) and restart the server.", e.Env)
}

// MissingCredential returns a *CredentialError for env.
func MissingCredential(env string) error {
	return &CredentialError{Env: env}
}

// ErrBadRequest is matched by every error created with NewBadRequest.
var ErrBadRequest = errors.New("bad request")

type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func (e *badRequestError) Is(target error) bool { return target == ErrBadRequest }

// NewBadRequest returns a sentinel error for caller mistakes. The message is
// shown to the caller verbatim.
func NewBadRequest(msg string) error {
	return &badRequestError{msg: msg}
}

// HTTPStatus maps err to the status code the HTTP layer should return.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var credErr *CredentialError
	if errors.As(err, &credErr) {
		return http.StatusInternalServerError
	}

	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		return http.StatusBadGateway
	}

	if errors.Is(err, ErrBadRequest) {
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}
