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

// CartHandler exposes the merged cart view plus the two mutation surfaces:
// the anonymous local cart (per visitor, no login) and the grouped remote
// cart (quantity edits and group removal, login required).
type CartHandler struct {
	carts    *cart.Reconciler
	sessions *session.Store
	logger   *logging.Logger
}

// NewCartHandler creates the cart handler.
func NewCartHandler(carts *cart.Reconciler, sessions *session.Store, logger *logging.Logger) *CartHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &CartHandler{carts: carts, sessions: sessions, logger: logger}
}

// Routes returns the chi router for /cart.
func (h *CartHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.View)
	r.Post("/local", h.AddLocal)
	r.Delete("/local/{localID}", h.RemoveLocal)
	r.Put("/groups/{groupKey}/quantity", h.SetQuantity)
	r.Delete("/groups/{groupKey}", h.RemoveGroup)
	return r
}

// View returns the local items, the grouped remote cart when a session
// exists, and the aggregated total.
// GET /cart
func (h *CartHandler) View(w http.ResponseWriter, r *http.Request) {
	visitorID := middleware.VisitorID(r.Context())
	token, err := h.sessions.Token(r.Context(), visitorID)
	if err != nil {
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	view, err := h.carts.View(r.Context(), visitorID, token)
	if err != nil {
		h.logger.Error("failed to build cart view", "visitor_id", visitorID, "error", err)
		writeFlowError(w, err, "could not load the cart")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// AddLocal records one intended purchase for an anonymous visitor.
// POST /cart/local
func (h *CartHandler) AddLocal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ServiceID upstream.ID    `json:"service_id"`
		StaffID   upstream.ID    `json:"staff_id"`
		Title     string         `json:"title"`
		Price     upstream.Money `json:"price"`
		Image     string         `json:"image"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := h.carts.Local().Add(r.Context(), middleware.VisitorID(r.Context()), cart.LocalItem{
		ServiceID: req.ServiceID,
		StaffID:   req.StaffID,
		Title:     req.Title,
		Price:     req.Price,
		Image:     req.Image,
	})
	if err != nil {
		http.Error(w, `{"error": "service_id or staff_id required"}`, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// RemoveLocal drops one local item. Unknown ids are a no-op.
// DELETE /cart/local/{localID}
func (h *CartHandler) RemoveLocal(w http.ResponseWriter, r *http.Request) {
	visitorID := middleware.VisitorID(r.Context())
	items, err := h.carts.Local().Remove(r.Context(), visitorID, chi.URLParam(r, "localID"))
	if err != nil {
		h.logger.Error("failed to remove local item", "visitor_id", visitorID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"local": items})
}

// SetQuantity moves a remote cart group to the requested quantity. The
// response always carries the refreshed groups so the client renders server
// truth even when part of the batch failed.
// PUT /cart/groups/{groupKey}/quantity
func (h *CartHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	token, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Quantity int `json:"quantity"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Quantity < 1 {
		http.Error(w, `{"error": "quantity must be at least 1"}`, http.StatusUnprocessableEntity)
		return
	}
	groups, err := h.carts.SetQuantity(r.Context(), token, chi.URLParam(r, "groupKey"), req.Quantity)
	h.writeGroups(w, groups, err)
}

// RemoveGroup deletes every row of a group.
// DELETE /cart/groups/{groupKey}
func (h *CartHandler) RemoveGroup(w http.ResponseWriter, r *http.Request) {
	token, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	groups, err := h.carts.RemoveGroup(r.Context(), token, chi.URLParam(r, "groupKey"))
	h.writeGroups(w, groups, err)
}

func (h *CartHandler) requireSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	token, err := h.sessions.Token(r.Context(), middleware.VisitorID(r.Context()))
	if err != nil {
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return "", false
	}
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "login_required"})
		return "", false
	}
	return token, true
}

// writeGroups reports a mutation outcome. Groups present means the re-fetch
// succeeded and the client should render them; the error rides along so a
// partial failure is still surfaced.
func (h *CartHandler) writeGroups(w http.ResponseWriter, groups []cart.Group, err error) {
	if err != nil && groups == nil {
		writeFlowError(w, err, "could not update the cart")
		return
	}
	resp := map[string]any{"groups": groups}
	if err != nil {
		resp["error"] = upstream.UserMessage(err, "part of the cart update failed")
	}
	writeJSON(w, http.StatusOK, resp)
}
