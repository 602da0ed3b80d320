package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/confidential-ledger/internal/ledger"
	"github.com/example/confidential-ledger/internal/proofs"
	"github.com/example/confidential-ledger/internal/scheme"
	"github.com/example/confidential-ledger/internal/security"
	"github.com/example/confidential-ledger/internal/settlement"
	"github.com/example/confidential-ledger/internal/signing"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	cid := security.CorrelationIDFromContext(r.Context())
	if cid != "" {
		w.Header().Set(security.CorrelationIDHeader, cid)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to stable API error codes. Anything
// unrecognized is an internal_error; the concrete error is never sent to
// the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var notFound *ledger.NotFoundError
	var transition *settlement.InvalidTransitionError
	var rejected *settlement.ChainRejectedError

	switch {
	case errors.As(err, &notFound):
		security.WriteJSONError(w, r, http.StatusNotFound, "not_found")
	case errors.Is(err, signing.ErrNotFound):
		security.WriteJSONError(w, r, http.StatusNotFound, "not_found")
	case errors.Is(err, scheme.ErrInsufficientBalance):
		security.WriteJSONError(w, r, http.StatusBadRequest, "insufficient_balance")
	case errors.Is(err, ledger.ErrStaleBalance):
		security.WriteJSONError(w, r, http.StatusConflict, "stale_balance")
	case errors.As(err, &transition):
		security.WriteJSONError(w, r, http.StatusConflict, "invalid_transition")
	case errors.As(err, &rejected):
		security.WriteJSONError(w, r, http.StatusBadGateway, "chain_rejected")
	case errors.Is(err, scheme.ErrDecryptionFailed):
		security.WriteJSONError(w, r, http.StatusBadRequest, "decryption_failed")
	case errors.Is(err, proofs.ErrOverflow):
		security.WriteJSONError(w, r, http.StatusBadRequest, "overflow")
	default:
		security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
	}
}
