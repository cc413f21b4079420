package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shifa-clinics/booking-gateway/internal/booking"
	"github.com/shifa-clinics/booking-gateway/internal/http/middleware"
	"github.com/shifa-clinics/booking-gateway/internal/session"
	"github.com/shifa-clinics/booking-gateway/internal/upstream"
	"github.com/shifa-clinics/booking-gateway/pkg/logging"
)

// BookingHandler maps the per-visitor booking flow onto HTTP. Every mutation
// responds with the refreshed draft so the client never needs a second round
// trip to render.
type BookingHandler struct {
	flows    *booking.Registry
	sessions *session.Store
	logger   *logging.Logger
}

// NewBookingHandler creates the booking flow handler.
func NewBookingHandler(flows *booking.Registry, sessions *session.Store, logger *logging.Logger) *BookingHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingHandler{flows: flows, sessions: sessions, logger: logger}
}

// Routes returns the chi router for /booking.
func (h *BookingHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/draft", h.GetDraft)
	r.Post("/start", h.Start)
	r.Post("/month/next", h.NextMonth)
	r.Post("/month/prev", h.PrevMonth)
	r.Post("/day", h.SelectDay)
	r.Post("/slot", h.SelectSlot)
	r.Post("/continue", h.Continue)
	r.Post("/identity", h.SubmitIdentity)
	r.Post("/otp/digit", h.TypeOTPDigit)
	r.Post("/otp/backspace", h.BackspaceOTP)
	r.Post("/otp/paste", h.PasteOTP)
	r.Post("/confirm", h.Confirm)
	r.Post("/back", h.Back)
	r.Post("/close", h.Close)
	return r
}

type otpView struct {
	Cells    [booking.OTPLength]string `json:"cells"`
	Cursor   int                       `json:"cursor"`
	Complete bool                      `json:"complete"`
}

type draftView struct {
	Step          string          `json:"step"`
	ClinicID      upstream.ID     `json:"clinic_id,omitempty"`
	DoctorID      upstream.ID     `json:"doctor_id,omitempty"`
	CalendarMonth int             `json:"calendar_month"`
	CalendarYear  int             `json:"calendar_year"`
	SelectedDay   int             `json:"selected_day,omitempty"`
	Slots         []upstream.Slot `json:"slots"`
	SelectedSlot  string          `json:"selected_slot,omitempty"`
	SlotsLoading  bool            `json:"slots_loading"`
	UserName      string          `json:"user_name,omitempty"`
	UserPhone     string          `json:"user_phone,omitempty"`
	OTP           otpView         `json:"otp"`
	BookingID     upstream.ID     `json:"booking_id,omitempty"`
}

func newDraftView(d booking.Draft) draftView {
	slots := d.AvailableSlots
	if slots == nil {
		slots = []upstream.Slot{}
	}
	return draftView{
		Step:          d.Step.String(),
		ClinicID:      d.ClinicID,
		DoctorID:      d.DoctorID,
		CalendarMonth: d.CalendarMonth,
		CalendarYear:  d.CalendarYear,
		SelectedDay:   d.SelectedDay,
		Slots:         slots,
		SelectedSlot:  d.SelectedSlotValue,
		SlotsLoading:  d.SlotsLoading,
		UserName:      d.UserName,
		UserPhone:     d.UserPhone,
		OTP: otpView{
			Cells:    d.OTP.Digits(),
			Cursor:   d.OTP.Cursor(),
			Complete: d.OTP.Complete(),
		},
		BookingID: d.BookingID,
	}
}

func (h *BookingHandler) flow(r *http.Request) *booking.Flow {
	return h.flows.Get(middleware.VisitorID(r.Context()))
}

func (h *BookingHandler) writeDraft(w http.ResponseWriter, f *booking.Flow) {
	writeJSON(w, http.StatusOK, newDraftView(f.Draft()))
}

// GetDraft returns the current state of the visitor's booking attempt.
// GET /booking/draft
func (h *BookingHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	h.writeDraft(w, h.flow(r))
}

// Start opens the flow for a doctor. With a date in the body the calendar is
// pre-seeded on that day and its times pre-fetched.
// POST /booking/start
func (h *BookingHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClinicID upstream.ID `json:"clinic_id"`
		DoctorID upstream.ID `json:"doctor_id"`
		Date     string      `json:"date"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	token, err := h.sessions.Token(r.Context(), middleware.VisitorID(r.Context()))
	if err != nil {
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	f := h.flow(r)
	if req.Date != "" {
		date, parseErr := time.Parse("2006-01-02", req.Date)
		if parseErr != nil {
			http.Error(w, `{"error": "date must be YYYY-MM-DD"}`, http.StatusBadRequest)
			return
		}
		err = f.StartAt(r.Context(), req.ClinicID, req.DoctorID, token != "", date)
	} else {
		err = f.Start(req.ClinicID, req.DoctorID, token != "")
	}
	if err != nil {
		writeFlowError(w, err, "could not open the booking flow")
		return
	}
	h.writeDraft(w, f)
}

// NextMonth navigates the calendar forward.
// POST /booking/month/next
func (h *BookingHandler) NextMonth(w http.ResponseWriter, r *http.Request) {
	f := h.flow(r)
	if err := f.NextMonth(); err != nil {
		writeFlowError(w, err, "could not change month")
		return
	}
	h.writeDraft(w, f)
}

// PrevMonth navigates the calendar backward.
// POST /booking/month/prev
func (h *BookingHandler) PrevMonth(w http.ResponseWriter, r *http.Request) {
	f := h.flow(r)
	if err := f.PrevMonth(); err != nil {
		writeFlowError(w, err, "could not change month")
		return
	}
	h.writeDraft(w, f)
}

// SelectDay picks a day and fetches its available times.
// POST /booking/day
func (h *BookingHandler) SelectDay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Day int `json:"day"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	f := h.flow(r)
	if err := f.SelectDay(r.Context(), req.Day); err != nil {
		writeFlowError(w, err, "could not load available times")
		return
	}
	h.writeDraft(w, f)
}

// SelectSlot picks one of the fetched times.
// POST /booking/slot
func (h *BookingHandler) SelectSlot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value string `json:"value"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	f := h.flow(r)
	if err := f.SelectSlot(req.Value); err != nil {
		writeFlowError(w, err, "could not select the time")
		return
	}
	h.writeDraft(w, f)
}

// Continue advances to the identity step.
// POST /booking/continue
func (h *BookingHandler) Continue(w http.ResponseWriter, r *http.Request) {
	f := h.flow(r)
	if err := f.ContinueToIdentity(); err != nil {
		writeFlowError(w, err, "could not continue")
		return
	}
	h.writeDraft(w, f)
}

// SubmitIdentity validates name and phone, then sends the booking OTP.
// POST /booking/identity
func (h *BookingHandler) SubmitIdentity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	f := h.flow(r)
	if err := f.SubmitIdentity(r.Context(), req.Name, req.Phone); err != nil {
		writeFlowError(w, err, "could not send the verification code")
		return
	}
	h.writeDraft(w, f)
}

// TypeOTPDigit enters one digit into the focused cell.
// POST /booking/otp/digit
func (h *BookingHandler) TypeOTPDigit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Digit string `json:"digit"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	f := h.flow(r)
	for _, ch := range req.Digit {
		f.TypeOTPDigit(ch)
		break
	}
	h.writeDraft(w, f)
}

// BackspaceOTP applies the backspace rule to the focused cell.
// POST /booking/otp/backspace
func (h *BookingHandler) BackspaceOTP(w http.ResponseWriter, r *http.Request) {
	f := h.flow(r)
	f.BackspaceOTP()
	h.writeDraft(w, f)
}

// PasteOTP distributes pasted text over the cells.
// POST /booking/otp/paste
func (h *BookingHandler) PasteOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	f := h.flow(r)
	f.PasteOTP(req.Text)
	h.writeDraft(w, f)
}

// Confirm submits the booking. Failures keep the visitor on the OTP step with
// the digits intact so they can retry.
// POST /booking/confirm
func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	f := h.flow(r)
	bookingID, err := f.Confirm(r.Context())
	if err != nil {
		writeFlowError(w, err, "could not confirm the booking")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"booking_id": bookingID,
		"draft":      newDraftView(f.Draft()),
	})
}

// Back moves one step backward, keeping data entered ahead.
// POST /booking/back
func (h *BookingHandler) Back(w http.ResponseWriter, r *http.Request) {
	f := h.flow(r)
	f.Back()
	h.writeDraft(w, f)
}

// Close abandons the attempt and wipes the draft.
// POST /booking/close
func (h *BookingHandler) Close(w http.ResponseWriter, r *http.Request) {
	f := h.flow(r)
	f.Close()
	h.writeDraft(w, f)
}
