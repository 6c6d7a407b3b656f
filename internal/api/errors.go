package api

import (
	"errors"
	"net/http"

	"configforge/internal/assistant"
	"configforge/internal/blob"
	"configforge/internal/core"
	"configforge/pkg/domain"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidLevel),
		errors.Is(err, domain.ErrInvalidField),
		errors.Is(err, domain.ErrInvalidValue),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidStep),
		errors.Is(err, domain.ErrRollbackOutOfRange),
		errors.Is(err, core.ErrInvalidDraft),
		errors.Is(err, blob.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, blob.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, assistant.ErrMissingCredential),
		errors.Is(err, core.ErrNoBlobStore):
		return http.StatusServiceUnavailable
	case errors.Is(err, assistant.ErrAssistantUnavailable),
		errors.Is(err, assistant.ErrNoChoices):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
