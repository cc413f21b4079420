package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shifa-clinics/booking-gateway/internal/cart"
	"github.com/shifa-clinics/booking-gateway/internal/http/middleware"
	"github.com/shifa-clinics/booking-gateway/internal/session"
	"github.com/shifa-clinics/booking-gateway/internal/upstream"
	"github.com/shifa-clinics/booking-gateway/pkg/logging"
)

// AuthHandler drives the phone/OTP login and the logout. Verifying a code
// stores the issued bearer token and immediately pushes the anonymous cart to
// the remote one, so a returning patient sees a single merged cart.
type AuthHandler struct {
	api      *upstream.Client
	sessions *session.Store
	carts    *cart.Reconciler
	logger   *logging.Logger
}

// NewAuthHandler creates the auth handler.
func NewAuthHandler(api *upstream.Client, sessions *session.Store, carts *cart.Reconciler, logger *logging.Logger) *AuthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AuthHandler{api: api, sessions: sessions, carts: carts, logger: logger}
}

// Routes returns the chi router for /auth.
func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/send-code", h.SendCode)
	r.Post("/verify", h.Verify)
	r.Post("/logout", h.Logout)
	r.Get("/me", h.Me)
	return r
}

// SendCode asks the upstream API to text a login code.
// POST /auth/send-code
func (h *AuthHandler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Phone == "" {
		http.Error(w, `{"error": "phone required"}`, http.StatusBadRequest)
		return
	}
	if err := h.api.SendLoginCode(r.Context(), req.Phone); err != nil {
		writeFlowError(w, err, "could not send the login code")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// Verify exchanges phone and code for a bearer token, stores it for the
// visitor and syncs the local cart. A failed sync still logs the user in; the
// local items stay put for a later retry.
// POST /auth/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
		OTP   string `json:"otp"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Phone == "" || req.OTP == "" {
		http.Error(w, `{"error": "phone and otp required"}`, http.StatusBadRequest)
		return
	}

	res, err := h.api.VerifyLoginCode(r.Context(), req.Phone, req.OTP)
	if err != nil {
		writeFlowError(w, err, "could not verify the code")
		return
	}

	visitorID := middleware.VisitorID(r.Context())
	if err := h.sessions.SetToken(r.Context(), visitorID, res.Token); err != nil {
		h.logger.Error("failed to store session token", "visitor_id", visitorID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	sync, syncErr := h.carts.SyncLocal(r.Context(), visitorID, res.Token)
	resp := map[string]any{
		"user":      res.User,
		"cart_sync": sync.String(),
	}
	if syncErr != nil {
		resp["cart_sync_error"] = upstream.UserMessage(syncErr, "cart sync failed")
	}
	writeJSON(w, http.StatusOK, resp)
}

// Logout drops the visitor's token. The local cart is untouched.
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	visitorID := middleware.VisitorID(r.Context())
	if err := h.sessions.Clear(r.Context(), visitorID); err != nil {
		h.logger.Error("failed to clear session", "visitor_id", visitorID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// Me reports whether the visitor currently holds a session.
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	token, err := h.sessions.Token(r.Context(), middleware.VisitorID(r.Context()))
	if err != nil {
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": token != ""})
}
