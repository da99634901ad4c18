package handlers

import (
	"net/http"

	apperrors "github.com/pacerhq/pacer/internal/errors"
)

// httpErrorResponder writes error envelopes. The server swaps in its
// central handler; handlers used alone fall back to internal/errors.
var httpErrorResponder = apperrors.RespondWithError

// SetHTTPErrorResponder installs responder, or restores the default for nil.
func SetHTTPErrorResponder(responder func(http.ResponseWriter, *http.Request, error)) {
	if responder == nil {
		responder = apperrors.RespondWithError
	}
	httpErrorResponder = responder
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErrorResponder(w, r, err)
}
