package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shifa-clinics/booking-gateway/internal/booking"
	"github.com/shifa-clinics/booking-gateway/internal/upstream"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeFlowError maps booking and upstream failures onto HTTP statuses the
// way the browser flow expects them: login bounces are 401, field-level
// validation is 422 with the field named, and upstream rejections carry the
// server's own message verbatim.
func writeFlowError(w http.ResponseWriter, err error, fallback string) {
	if errors.Is(err, booking.ErrLoginRequired) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "login_required"})
		return
	}
	var vErr *booking.ValidationError
	if errors.As(err, &vErr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":   "validation",
			"field":   vErr.Field,
			"message": vErr.Reason,
		})
		return
	}
	if apiErr, ok := upstream.AsAPIError(err); ok {
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":   "upstream",
			"message": upstream.UserMessage(apiErr, fallback),
		})
		return
	}
	writeJSON(w, http.StatusBadGateway, map[string]string{
		"error":   "upstream",
		"message": fallback,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return false
	}
	return true
}
