package server

import (
	"net/http"

	apperrors "github.com/pacerhq/pacer/internal/errors"
)

// HandleError writes err as an error envelope. Every handler and the router's
// 404/405 responses go through it.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}
