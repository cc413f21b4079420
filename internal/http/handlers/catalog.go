package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shifa-clinics/booking-gateway/internal/slug"
	"github.com/shifa-clinics/booking-gateway/internal/upstream"
	"github.com/shifa-clinics/booking-gateway/pkg/logging"
)

// CatalogHandler serves the browsable clinic and doctor listings. Every entry
// carries a slug so the front end can build stable, readable URLs.
type CatalogHandler struct {
	api    *upstream.Client
	logger *logging.Logger
}

// NewCatalogHandler creates the catalog handler.
func NewCatalogHandler(api *upstream.Client, logger *logging.Logger) *CatalogHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &CatalogHandler{api: api, logger: logger}
}

// Routes returns the chi router for /clinics.
func (h *CatalogHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListClinics)
	r.Get("/{clinicSlug}/staff", h.ListStaff)
	return r
}

type clinicResponse struct {
	upstream.Clinic
	Slug string `json:"slug"`
}

type staffResponse struct {
	upstream.Staff
	Slug string `json:"slug"`
}

// ListClinics returns all clinics.
// GET /clinics
func (h *CatalogHandler) ListClinics(w http.ResponseWriter, r *http.Request) {
	clinics, err := h.api.ListClinics(r.Context())
	if err != nil {
		h.logger.Error("failed to list clinics", "error", err)
		writeFlowError(w, err, "could not load clinics")
		return
	}
	out := make([]clinicResponse, 0, len(clinics))
	for _, c := range clinics {
		out = append(out, clinicResponse{Clinic: c, Slug: makeSlug(c.Name, c.ID)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"clinics": out})
}

// ListStaff returns the doctors of one clinic, addressed by its slug.
// GET /clinics/{clinicSlug}/staff
func (h *CatalogHandler) ListStaff(w http.ResponseWriter, r *http.Request) {
	_, clinicID, err := slug.Parse(chi.URLParam(r, "clinicSlug"))
	if err != nil {
		http.Error(w, `{"error": "invalid clinic slug"}`, http.StatusBadRequest)
		return
	}
	staff, err := h.api.ListStaff(r.Context(), upstream.ID(strconv.FormatInt(clinicID, 10)))
	if err != nil {
		h.logger.Error("failed to list staff", "clinic_id", clinicID, "error", err)
		writeFlowError(w, err, "could not load doctors")
		return
	}
	out := make([]staffResponse, 0, len(staff))
	for _, s := range staff {
		out = append(out, staffResponse{Staff: s, Slug: makeSlug(s.Name, s.ID)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"staff": out})
}

// makeSlug builds the URL segment for an entity. Non-numeric upstream ids
// cannot round trip through a slug, so those fall back to the raw id.
func makeSlug(name string, id upstream.ID) string {
	n, err := strconv.ParseInt(id.String(), 10, 64)
	if err != nil {
		return id.String()
	}
	return slug.Make(name, n)
}
