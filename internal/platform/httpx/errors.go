package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/backoffice/internal/platform/backend"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Sentinel errors for the HTTP layer; they alias the shared domain sentinels.
var (
	ErrNotFound     = shared.ErrNotFound
	ErrValidation   = shared.ErrValidation
	ErrUnauthorized = shared.ErrSessionMissing
	ErrForbidden    = errors.New("forbidden")
)

// RespondError maps domain and backend errors to problem responses. Backend
// rejections keep their status and message so the console can show them as is.
func RespondError(w http.ResponseWriter, err error) {
	var apiErr *backend.APIError
	var transportErr *backend.TransportError
	switch {
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.As(err, &apiErr):
		status := apiErr.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		Problem(w, status, http.StatusText(status), apiErr.Message)
	case errors.As(err, &transportErr):
		Problem(w, http.StatusBadGateway, "Bad Gateway", backend.MessageFrom(err))
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
