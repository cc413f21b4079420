package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shifa-clinics/booking-gateway/internal/observability/metrics"
	"github.com/shifa-clinics/booking-gateway/internal/upstream"
	"github.com/shifa-clinics/booking-gateway/pkg/logging"
)

var flowTracer = otel.Tracer("shifa.internal.booking")

// Step is the position of a booking attempt in the flow. Steps advance
// strictly forward; only explicit Back transitions move the other way.
type Step int

const (
	StepSelection Step = iota
	StepCalendarTime
	StepIdentity
	StepOtp
)

func (s Step) String() string {
	switch s {
	case StepSelection:
		return "selection"
	case StepCalendarTime:
		return "calendar_time"
	case StepIdentity:
		return "identity"
	case StepOtp:
		return "otp"
	default:
		return "unknown"
	}
}

// ErrLoginRequired is returned when an anonymous visitor tries to open the
// booking flow; no upstream call is issued in that case.
var ErrLoginRequired = errors.New("booking: login required")

// ValidationError is a field-level precondition failure caught before any
// network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("booking: invalid %s: %s", e.Field, e.Reason)
}

// Draft is the complete transient state of one booking attempt. It never
// outlives the flow: Close wipes it entirely.
type Draft struct {
	ClinicID upstream.ID
	DoctorID upstream.ID

	CalendarMonth int
	CalendarYear  int
	SelectedDay   int // 0 when no day is picked

	AvailableSlots    []upstream.Slot
	SelectedSlotValue string
	SlotsLoading      bool

	Step Step

	UserName  string
	UserPhone string
	OTP       OTPInput

	BookingID upstream.ID
}

// bookingAPI is the slice of the upstream client the flow consumes.
type bookingAPI interface {
	AvailableSlots(ctx context.Context, clinicID, staffID upstream.ID, date string) ([]upstream.Slot, error)
	SendBookingOTP(ctx context.Context, phone string) error
	ConfirmBooking(ctx context.Context, req upstream.ConfirmBookingRequest) (upstream.ID, error)
}

// Flow drives one visitor from doctor/date selection to a confirmed
// appointment. Every slot fetch is tagged with a sequence number; a response
// arriving after a newer day selection is discarded so stale slots never
// render.
type Flow struct {
	mu       sync.Mutex
	api      bookingAPI
	draft    Draft
	fetchSeq uint64

	metrics *metrics.FlowMetrics
	logger  *logging.Logger
	now     func() time.Time
}

// Option customizes a Flow.
type Option func(*Flow)

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(f *Flow) {
		if now != nil {
			f.now = now
		}
	}
}

// NewFlow creates an idle flow at the Selection step.
func NewFlow(api bookingAPI, m *metrics.FlowMetrics, logger *logging.Logger, opts ...Option) *Flow {
	if api == nil {
		panic("booking: api required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	f := &Flow{
		api:     api,
		metrics: m,
		logger:  logger.Component("booking"),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	f.reset()
	return f
}

// Draft returns a snapshot of the current attempt state.
func (f *Flow) Draft() Draft {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.draft
	d.AvailableSlots = append([]upstream.Slot(nil), f.draft.AvailableSlots...)
	return d
}

// Start opens the flow for a specific doctor. Anonymous visitors are bounced
// to login before any upstream traffic happens.
func (f *Flow) Start(clinicID, doctorID upstream.ID, hasSession bool) error {
	if !hasSession {
		return ErrLoginRequired
	}
	if clinicID.IsZero() || doctorID.IsZero() {
		return &ValidationError{Field: "selection", Reason: "clinic and doctor are required"}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset()
	f.draft.ClinicID = clinicID
	f.draft.DoctorID = doctorID
	f.draft.Step = StepCalendarTime
	return nil
}

// StartAt opens the flow with a date already chosen upstream (e.g. a search
// form): the matching month, year and day are pre-seeded and the available
// times pre-fetched.
func (f *Flow) StartAt(ctx context.Context, clinicID, doctorID upstream.ID, hasSession bool, date time.Time) error {
	if err := f.Start(clinicID, doctorID, hasSession); err != nil {
		return err
	}
	f.mu.Lock()
	f.draft.CalendarMonth = int(date.Month())
	f.draft.CalendarYear = date.Year()
	f.mu.Unlock()
	return f.SelectDay(ctx, date.Day())
}

// NextMonth navigates forward, rolling the year over at December. The picked
// day and fetched slots are cleared immediately; nothing is fetched until a
// day is re-picked.
func (f *Flow) NextMonth() error {
	return f.shiftMonth(nextMonth)
}

// PrevMonth navigates backward, rolling the year over at January.
func (f *Flow) PrevMonth() error {
	return f.shiftMonth(prevMonth)
}

func (f *Flow) shiftMonth(shift func(m, y int) (int, int)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.draft.Step != StepCalendarTime {
		return &ValidationError{Field: "step", Reason: "calendar is not open"}
	}
	f.draft.CalendarMonth, f.draft.CalendarYear = shift(f.draft.CalendarMonth, f.draft.CalendarYear)
	f.clearDaySelection()
	return nil
}

// SelectDay picks a day of the displayed month and fetches the available
// times for (clinic, doctor, date). The previous slot selection and list are
// cleared before the fetch so stale slots never show. A response that loses
// the race to a newer selection is dropped.
func (f *Flow) SelectDay(ctx context.Context, day int) error {
	f.mu.Lock()
	if f.draft.Step != StepCalendarTime {
		f.mu.Unlock()
		return &ValidationError{Field: "step", Reason: "calendar is not open"}
	}
	date := time.Date(f.draft.CalendarYear, time.Month(f.draft.CalendarMonth), day, 0, 0, 0, 0, time.UTC)
	if day < 1 || date.Day() != day {
		f.mu.Unlock()
		return &ValidationError{Field: "day", Reason: "not a day of the displayed month"}
	}
	if date.Before(f.today()) {
		f.mu.Unlock()
		return &ValidationError{Field: "day", Reason: "day is in the past"}
	}

	f.clearDaySelection()
	f.draft.SelectedDay = day
	f.draft.SlotsLoading = true
	f.fetchSeq++
	seq := f.fetchSeq
	clinicID, doctorID := f.draft.ClinicID, f.draft.DoctorID
	isoDate := formatISODate(f.draft.CalendarYear, f.draft.CalendarMonth, day)
	f.mu.Unlock()

	slots, err := f.api.AvailableSlots(ctx, clinicID, doctorID, isoDate)

	f.mu.Lock()
	defer f.mu.Unlock()
	if seq != f.fetchSeq {
		// A newer selection superseded this fetch.
		return nil
	}
	f.draft.SlotsLoading = false
	if err != nil {
		f.draft.AvailableSlots = nil
		return fmt.Errorf("booking: fetch slots for %s: %w", isoDate, err)
	}
	f.draft.AvailableSlots = slots
	return nil
}

// SelectSlot picks one of the fetched times by its opaque value.
func (f *Flow) SelectSlot(value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.draft.Step != StepCalendarTime || f.draft.SelectedDay == 0 {
		return &ValidationError{Field: "slot", Reason: "pick a day first"}
	}
	for _, s := range f.draft.AvailableSlots {
		if s.Value == value {
			f.draft.SelectedSlotValue = value
			return nil
		}
	}
	return &ValidationError{Field: "slot", Reason: "not an available time"}
}

// ContinueToIdentity advances to the name/phone step; it is enabled only when
// both a day and a slot are selected.
func (f *Flow) ContinueToIdentity() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.draft.Step != StepCalendarTime {
		return &ValidationError{Field: "step", Reason: "calendar is not open"}
	}
	if f.draft.SelectedDay == 0 || f.draft.SelectedSlotValue == "" {
		return &ValidationError{Field: "slot", Reason: "day and time are required"}
	}
	f.draft.Step = StepIdentity
	return nil
}

// SubmitIdentity validates name and phone, and on success sends the booking
// OTP for that phone. Validation failures surface as field errors and issue
// no network call; only a successful OTP send advances to the Otp step.
func (f *Flow) SubmitIdentity(ctx context.Context, name, phone string) error {
	f.mu.Lock()
	if f.draft.Step != StepIdentity {
		f.mu.Unlock()
		return &ValidationError{Field: "step", Reason: "identity step is not open"}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		f.mu.Unlock()
		return &ValidationError{Field: "name", Reason: "name is required"}
	}
	if !IsValidPhone(phone) {
		f.mu.Unlock()
		return &ValidationError{Field: "phone", Reason: "phone must be 10 digits starting with 05"}
	}
	f.mu.Unlock()

	if err := f.api.SendBookingOTP(ctx, phone); err != nil {
		f.metrics.ObserveOTPSend(false)
		f.logger.Warn("booking otp send failed", "error", err)
		return fmt.Errorf("booking: send otp: %w", err)
	}
	f.metrics.ObserveOTPSend(true)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.draft.UserName = name
	f.draft.UserPhone = phone
	f.draft.Step = StepOtp
	f.draft.OTP.Reset()
	return nil
}

// TypeOTPDigit enters one digit into the focused cell.
func (f *Flow) TypeOTPDigit(ch rune) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.draft.Step != StepOtp {
		return false
	}
	return f.draft.OTP.Type(ch)
}

// BackspaceOTP applies the backspace rule to the focused cell.
func (f *Flow) BackspaceOTP() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.draft.Step != StepOtp {
		return
	}
	f.draft.OTP.Backspace()
}

// PasteOTP distributes pasted digits over the cells.
func (f *Flow) PasteOTP(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.draft.Step != StepOtp {
		return
	}
	f.draft.OTP.Paste(s)
}

// Confirm submits the booking. On failure the user stays on the Otp step with
// the entered digits preserved, able to retry.
func (f *Flow) Confirm(ctx context.Context) (upstream.ID, error) {
	f.mu.Lock()
	if f.draft.Step != StepOtp {
		f.mu.Unlock()
		return "", &ValidationError{Field: "step", Reason: "otp step is not open"}
	}
	if !f.draft.OTP.Complete() {
		f.mu.Unlock()
		return "", &ValidationError{Field: "otp", Reason: "enter all 6 digits"}
	}
	if f.draft.ClinicID.IsZero() || f.draft.DoctorID.IsZero() ||
		f.draft.SelectedDay == 0 || f.draft.SelectedSlotValue == "" ||
		f.draft.UserName == "" || f.draft.UserPhone == "" {
		f.mu.Unlock()
		return "", &ValidationError{Field: "draft", Reason: "booking attempt is incomplete"}
	}
	req := upstream.ConfirmBookingRequest{
		FullName:  f.draft.UserName,
		Phone:     f.draft.UserPhone,
		OTP:       f.draft.OTP.Code(),
		ClinicID:  f.draft.ClinicID,
		StaffID:   f.draft.DoctorID,
		Date:      formatISODate(f.draft.CalendarYear, f.draft.CalendarMonth, f.draft.SelectedDay),
		SlotValue: f.draft.SelectedSlotValue,
	}
	f.mu.Unlock()

	ctx, span := flowTracer.Start(ctx, "booking.confirm")
	defer span.End()
	span.SetAttributes(
		attribute.String("shifa.clinic_id", req.ClinicID.String()),
		attribute.String("shifa.staff_id", req.StaffID.String()),
		attribute.String("shifa.date", req.Date),
	)

	bookingID, err := f.api.ConfirmBooking(ctx, req)
	if err != nil {
		span.RecordError(err)
		f.logger.Warn("booking confirm failed", "date", req.Date, "error", err)
		return "", fmt.Errorf("booking: confirm: %w", err)
	}

	f.mu.Lock()
	f.draft.BookingID = bookingID
	f.mu.Unlock()

	f.metrics.ObserveBookingConfirmed()
	f.logger.Info("booking confirmed", "booking_id", bookingID, "date", req.Date)
	return bookingID, nil
}

// Back moves one step backward without clearing data captured ahead: coming
// back from Otp keeps name and phone, coming back from Identity keeps the
// picked day and slot.
func (f *Flow) Back() {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.draft.Step {
	case StepOtp:
		f.draft.Step = StepIdentity
	case StepIdentity:
		f.draft.Step = StepCalendarTime
	}
}

// Close cancels the attempt and wipes the whole draft so nothing leaks into a
// later booking for a different doctor.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchSeq++
	f.reset()
}

func (f *Flow) reset() {
	now := f.now()
	f.draft = Draft{
		CalendarMonth: int(now.Month()),
		CalendarYear:  now.Year(),
		Step:          StepSelection,
	}
}

func (f *Flow) clearDaySelection() {
	f.draft.SelectedDay = 0
	f.draft.SelectedSlotValue = ""
	f.draft.AvailableSlots = nil
	f.draft.SlotsLoading = false
	f.fetchSeq++
}

// today is the clock's calendar date, normalized to UTC midnight so it
// compares at day granularity against the displayed-month dates. The date is
// taken in the clock's own location; converting to UTC first would shift the
// day near midnight for non-UTC clinics.
func (f *Flow) today() time.Time {
	now := f.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func formatISODate(year, month, day int) string {
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}
