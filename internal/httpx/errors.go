package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/ariefcatur/go-inventory-trades/internal/orders"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch orders.KindOf(err) {
	case orders.KindValidation:
		return http.StatusBadRequest
	case orders.KindNotFound:
		return http.StatusNotFound
	case orders.KindConflict:
		return http.StatusConflict
	case orders.KindAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a domain error kind to its status code. Internal errors are
// logged and their text is not sent to the client.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		if log != nil {
			log.Error("request failed", zap.Error(err))
		}
		msg = "internal error"
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}
