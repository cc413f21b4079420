package booking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shifa-clinics/booking-gateway/internal/upstream"
)

type slotCall struct {
	clinicID upstream.ID
	staffID  upstream.ID
	date     string
}

// fakeAPI scripts the three upstream endpoints the flow talks to.
type fakeAPI struct {
	mu          sync.Mutex
	slotCalls   []slotCall
	slotsByDate map[string][]upstream.Slot
	slotErr     error
	gates       map[string]chan struct{} // date -> release gate

	otpCalls []string
	otpErr   error

	confirmReqs []upstream.ConfirmBookingRequest
	confirmErr  error
	bookingID   upstream.ID
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		slotsByDate: map[string][]upstream.Slot{},
		gates:       map[string]chan struct{}{},
		bookingID:   "bk_1",
	}
}

func (f *fakeAPI) AvailableSlots(_ context.Context, clinicID, staffID upstream.ID, date string) ([]upstream.Slot, error) {
	f.mu.Lock()
	f.slotCalls = append(f.slotCalls, slotCall{clinicID, staffID, date})
	gate := f.gates[date]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.slotErr != nil {
		return nil, f.slotErr
	}
	return f.slotsByDate[date], nil
}

func (f *fakeAPI) SendBookingOTP(_ context.Context, phone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.otpCalls = append(f.otpCalls, phone)
	return f.otpErr
}

func (f *fakeAPI) ConfirmBooking(_ context.Context, req upstream.ConfirmBookingRequest) (upstream.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmReqs = append(f.confirmReqs, req)
	if f.confirmErr != nil {
		return "", f.confirmErr
	}
	return f.bookingID, nil
}

var testNow = time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)

func newTestFlow(api *fakeAPI) *Flow {
	return NewFlow(api, nil, nil, WithClock(func() time.Time { return testNow }))
}

func startedFlow(t *testing.T, api *fakeAPI) *Flow {
	t.Helper()
	f := newTestFlow(api)
	require.NoError(t, f.Start("C1", "D1", true))
	return f
}

func TestStartRequiresSession(t *testing.T) {
	api := newFakeAPI()
	f := newTestFlow(api)
	err := f.Start("C1", "D1", false)
	require.ErrorIs(t, err, ErrLoginRequired)
	assert.Empty(t, api.slotCalls)
	assert.Empty(t, api.otpCalls)
	assert.Equal(t, StepSelection, f.Draft().Step)
}

func TestStartRequiresSelection(t *testing.T) {
	f := newTestFlow(newFakeAPI())
	var verr *ValidationError
	require.ErrorAs(t, f.Start("", "D1", true), &verr)
}

func TestStartDefaultsCalendarToCurrentMonth(t *testing.T) {
	f := startedFlow(t, newFakeAPI())
	d := f.Draft()
	assert.Equal(t, StepCalendarTime, d.Step)
	assert.Equal(t, 8, d.CalendarMonth)
	assert.Equal(t, 2026, d.CalendarYear)
	assert.Zero(t, d.SelectedDay)
}

func TestMonthNavigationClearsSelection(t *testing.T) {
	api := newFakeAPI()
	api.slotsByDate["2026-08-15"] = []upstream.Slot{{Time: "09:00", Value: "1"}}
	f := startedFlow(t, api)

	require.NoError(t, f.SelectDay(context.Background(), 15))
	require.NoError(t, f.SelectSlot("1"))

	require.NoError(t, f.NextMonth())
	d := f.Draft()
	assert.Equal(t, 9, d.CalendarMonth)
	assert.Equal(t, 2026, d.CalendarYear)
	assert.Zero(t, d.SelectedDay)
	assert.Empty(t, d.SelectedSlotValue)
	assert.Empty(t, d.AvailableSlots)
	// Navigation alone never fetches.
	assert.Len(t, api.slotCalls, 1)
}

func TestMonthNavigationYearRollover(t *testing.T) {
	f := startedFlow(t, newFakeAPI())
	for i := 0; i < 5; i++ { // 8 -> 13 => 1/2027
		require.NoError(t, f.NextMonth())
	}
	d := f.Draft()
	assert.Equal(t, 1, d.CalendarMonth)
	assert.Equal(t, 2027, d.CalendarYear)

	require.NoError(t, f.PrevMonth())
	d = f.Draft()
	assert.Equal(t, 12, d.CalendarMonth)
	assert.Equal(t, 2026, d.CalendarYear)
}

func TestSelectDayRejectsPast(t *testing.T) {
	api := newFakeAPI()
	f := startedFlow(t, api)
	var verr *ValidationError
	require.ErrorAs(t, f.SelectDay(context.Background(), 9), &verr)
	assert.Equal(t, "day", verr.Field)
	assert.Empty(t, api.slotCalls)
}

func TestSelectDayAcceptsToday(t *testing.T) {
	api := newFakeAPI()
	f := startedFlow(t, api)
	require.NoError(t, f.SelectDay(context.Background(), 10))
	require.Len(t, api.slotCalls, 1)
	assert.Equal(t, "2026-08-10", api.slotCalls[0].date)
}

func TestSelectDayUsesClinicLocalDate(t *testing.T) {
	// 05:00 on Aug 11 in Riyadh (UTC+3) is still Aug 10 in UTC. The local
	// calendar date decides what "today" is: Aug 10 is already over there.
	riyadh := time.FixedZone("AST", 3*60*60)
	localNow := time.Date(2026, 8, 11, 5, 0, 0, 0, riyadh)
	api := newFakeAPI()
	f := NewFlow(api, nil, nil, WithClock(func() time.Time { return localNow }))
	require.NoError(t, f.Start("C1", "D1", true))

	var verr *ValidationError
	require.ErrorAs(t, f.SelectDay(context.Background(), 10), &verr)
	assert.Equal(t, "day", verr.Field)
	assert.Empty(t, api.slotCalls)

	require.NoError(t, f.SelectDay(context.Background(), 11))
	require.Len(t, api.slotCalls, 1)
	assert.Equal(t, "2026-08-11", api.slotCalls[0].date)
}

func TestSelectDayRejectsNonexistentDay(t *testing.T) {
	f := startedFlow(t, newFakeAPI())
	var verr *ValidationError
	require.ErrorAs(t, f.SelectDay(context.Background(), 32), &verr)
	require.ErrorAs(t, f.SelectDay(context.Background(), 0), &verr)
}

func TestSelectDayFetchFailureYieldsEmptySlots(t *testing.T) {
	api := newFakeAPI()
	api.slotErr = fmt.Errorf("upstream down")
	f := startedFlow(t, api)

	err := f.SelectDay(context.Background(), 15)
	require.Error(t, err)
	d := f.Draft()
	assert.Empty(t, d.AvailableSlots)
	assert.False(t, d.SlotsLoading, "failed fetch must not leave loading state stuck")
	assert.Equal(t, 15, d.SelectedDay)
}

func TestDayChangeClearsSlotStateBeforeFetchResolves(t *testing.T) {
	api := newFakeAPI()
	api.slotsByDate["2026-08-15"] = []upstream.Slot{{Time: "09:00", Value: "1"}}
	gate := make(chan struct{})
	f := startedFlow(t, api)

	require.NoError(t, f.SelectDay(context.Background(), 15))
	require.NoError(t, f.SelectSlot("1"))

	api.mu.Lock()
	api.gates["2026-08-16"] = gate
	api.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- f.SelectDay(context.Background(), 16) }()

	// While the new fetch is in flight the old selection must already be gone.
	require.Eventually(t, func() bool {
		d := f.Draft()
		return d.SelectedDay == 16 && d.SlotsLoading
	}, time.Second, 5*time.Millisecond)
	d := f.Draft()
	assert.Empty(t, d.SelectedSlotValue)
	assert.Empty(t, d.AvailableSlots)

	close(gate)
	require.NoError(t, <-done)
}

func TestStaleSlotResponseDiscarded(t *testing.T) {
	api := newFakeAPI()
	api.slotsByDate["2026-08-15"] = []upstream.Slot{{Time: "09:00", Value: "1"}}
	api.slotsByDate["2026-08-16"] = []upstream.Slot{{Time: "10:00", Value: "2"}}
	gate := make(chan struct{})
	api.gates["2026-08-15"] = gate
	f := startedFlow(t, api)

	slow := make(chan error, 1)
	go func() { slow <- f.SelectDay(context.Background(), 15) }()

	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return len(api.slotCalls) == 1
	}, time.Second, 5*time.Millisecond)

	// A newer selection supersedes the in-flight fetch for day 15.
	require.NoError(t, f.SelectDay(context.Background(), 16))
	close(gate)
	require.NoError(t, <-slow)

	d := f.Draft()
	assert.Equal(t, 16, d.SelectedDay)
	require.Len(t, d.AvailableSlots, 1)
	assert.Equal(t, "10:00", d.AvailableSlots[0].Time)
}

func TestSelectSlotRequiresFetchedValue(t *testing.T) {
	api := newFakeAPI()
	api.slotsByDate["2026-08-15"] = []upstream.Slot{{Time: "09:00", Value: "1"}}
	f := startedFlow(t, api)
	require.NoError(t, f.SelectDay(context.Background(), 15))

	var verr *ValidationError
	require.ErrorAs(t, f.SelectSlot("99"), &verr)
	require.NoError(t, f.SelectSlot("1"))
}

func TestContinueToIdentityNeedsDayAndSlot(t *testing.T) {
	api := newFakeAPI()
	api.slotsByDate["2026-08-15"] = []upstream.Slot{{Time: "09:00", Value: "1"}}
	f := startedFlow(t, api)

	var verr *ValidationError
	require.ErrorAs(t, f.ContinueToIdentity(), &verr)

	require.NoError(t, f.SelectDay(context.Background(), 15))
	require.ErrorAs(t, f.ContinueToIdentity(), &verr)

	require.NoError(t, f.SelectSlot("1"))
	require.NoError(t, f.ContinueToIdentity())
	assert.Equal(t, StepIdentity, f.Draft().Step)
}

func identityFlow(t *testing.T, api *fakeAPI) *Flow {
	t.Helper()
	api.slotsByDate["2026-08-15"] = []upstream.Slot{{Time: "09:00", Value: "1"}}
	f := startedFlow(t, api)
	require.NoError(t, f.SelectDay(context.Background(), 15))
	require.NoError(t, f.SelectSlot("1"))
	require.NoError(t, f.ContinueToIdentity())
	return f
}

func TestSubmitIdentityInvalidPhoneNoNetworkCall(t *testing.T) {
	api := newFakeAPI()
	f := identityFlow(t, api)

	var verr *ValidationError
	require.ErrorAs(t, f.SubmitIdentity(context.Background(), "Ali", "12345"), &verr)
	assert.Equal(t, "phone", verr.Field)
	assert.Empty(t, api.otpCalls)
	assert.Equal(t, StepIdentity, f.Draft().Step)
}

func TestSubmitIdentityBlankNameNoNetworkCall(t *testing.T) {
	api := newFakeAPI()
	f := identityFlow(t, api)

	var verr *ValidationError
	require.ErrorAs(t, f.SubmitIdentity(context.Background(), "   ", "0512345678"), &verr)
	assert.Equal(t, "name", verr.Field)
	assert.Empty(t, api.otpCalls)
}

func TestSubmitIdentityOTPSendFailureStaysOnIdentity(t *testing.T) {
	api := newFakeAPI()
	api.otpErr = fmt.Errorf("sms gateway down")
	f := identityFlow(t, api)

	require.Error(t, f.SubmitIdentity(context.Background(), "Ali", "0512345678"))
	d := f.Draft()
	assert.Equal(t, StepIdentity, d.Step)
	assert.Len(t, api.otpCalls, 1)
}

func TestSubmitIdentityAdvancesOnSuccess(t *testing.T) {
	api := newFakeAPI()
	f := identityFlow(t, api)

	require.NoError(t, f.SubmitIdentity(context.Background(), " Ali ", "0512345678"))
	d := f.Draft()
	assert.Equal(t, StepOtp, d.Step)
	assert.Equal(t, "Ali", d.UserName)
	assert.Equal(t, "0512345678", d.UserPhone)
	require.Equal(t, []string{"0512345678"}, api.otpCalls)
}

func otpFlow(t *testing.T, api *fakeAPI) *Flow {
	t.Helper()
	f := identityFlow(t, api)
	require.NoError(t, f.SubmitIdentity(context.Background(), "Ali", "0512345678"))
	return f
}

func TestConfirmIncompleteOTP(t *testing.T) {
	api := newFakeAPI()
	f := otpFlow(t, api)
	f.PasteOTP("123")

	_, err := f.Confirm(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "otp", verr.Field)
	assert.Empty(t, api.confirmReqs)
}

func TestConfirmSendsFullPayload(t *testing.T) {
	api := newFakeAPI()
	f := otpFlow(t, api)
	for _, ch := range "123456" {
		require.True(t, f.TypeOTPDigit(ch))
	}

	id, err := f.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, upstream.ID("bk_1"), id)

	require.Len(t, api.confirmReqs, 1)
	req := api.confirmReqs[0]
	assert.Equal(t, "Ali", req.FullName)
	assert.Equal(t, "0512345678", req.Phone)
	assert.Equal(t, "123456", req.OTP)
	assert.Equal(t, upstream.ID("C1"), req.ClinicID)
	assert.Equal(t, upstream.ID("D1"), req.StaffID)
	assert.Equal(t, "2026-08-15", req.Date)
	assert.Equal(t, "1", req.SlotValue)
}

func TestConfirmFailureKeepsDigits(t *testing.T) {
	api := newFakeAPI()
	api.confirmErr = fmt.Errorf("otp mismatch")
	f := otpFlow(t, api)
	f.PasteOTP("123456")

	_, err := f.Confirm(context.Background())
	require.Error(t, err)
	d := f.Draft()
	assert.Equal(t, StepOtp, d.Step)
	assert.Equal(t, "123456", d.OTP.Code())
}

func TestBackKeepsAheadState(t *testing.T) {
	api := newFakeAPI()
	f := otpFlow(t, api)

	f.Back()
	d := f.Draft()
	assert.Equal(t, StepIdentity, d.Step)
	assert.Equal(t, "Ali", d.UserName)
	assert.Equal(t, "0512345678", d.UserPhone)

	f.Back()
	d = f.Draft()
	assert.Equal(t, StepCalendarTime, d.Step)
	assert.Equal(t, 15, d.SelectedDay)
	assert.Equal(t, "1", d.SelectedSlotValue)
	// Data captured ahead survives the round trip.
	assert.Equal(t, "Ali", d.UserName)
}

func TestCloseResetsDraft(t *testing.T) {
	api := newFakeAPI()
	f := otpFlow(t, api)
	f.PasteOTP("123456")

	f.Close()
	d := f.Draft()
	assert.Equal(t, StepSelection, d.Step)
	assert.Zero(t, d.SelectedDay)
	assert.Empty(t, d.UserName)
	assert.Empty(t, d.UserPhone)
	assert.Empty(t, d.OTP.Code())
	assert.True(t, d.ClinicID.IsZero())
	assert.Equal(t, 8, d.CalendarMonth)
}

func TestStartAtPreseedsDateAndFetches(t *testing.T) {
	api := newFakeAPI()
	api.slotsByDate["2026-09-03"] = []upstream.Slot{{Time: "11:00", Value: "4"}}
	f := newTestFlow(api)

	date := time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.StartAt(context.Background(), "C1", "D1", true, date))

	d := f.Draft()
	assert.Equal(t, StepCalendarTime, d.Step)
	assert.Equal(t, 9, d.CalendarMonth)
	assert.Equal(t, 2026, d.CalendarYear)
	assert.Equal(t, 3, d.SelectedDay)
	require.Len(t, d.AvailableSlots, 1)
	assert.Equal(t, "11:00", d.AvailableSlots[0].Time)
	require.Len(t, api.slotCalls, 1)
	assert.Equal(t, "2026-09-03", api.slotCalls[0].date)
}
