package httpx

import (
	"errors"
	"net/http"

	"github.com/rollcall-app/rollcall/internal/account"
)

// RespondError maps account domain errors to RFC7807 responses. Forbidden
// answers are constant-shape: they never disclose whether the target
// account exists.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, account.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", "")
	case errors.Is(err, account.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", "account does not exist")
	case errors.Is(err, account.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", "a concurrent change won the race, retry")
	case errors.Is(err, account.ErrUnsupportedTransition):
		Problem(w, http.StatusUnprocessableEntity, "Unsupported Transition", err.Error())
	case errors.Is(err, account.ErrInvalidIdentity):
		Problem(w, http.StatusBadRequest, "Invalid Identity", "")
	case errors.Is(err, account.ErrUnknownAccount), errors.Is(err, account.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "")
	case errors.Is(err, account.ErrStoreUnavailable), errors.Is(err, account.ErrStoreCorrupt):
		Problem(w, http.StatusServiceUnavailable, "Store Unavailable", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
