package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shifa-clinics/booking-gateway/internal/observability/metrics"
	"github.com/shifa-clinics/booking-gateway/pkg/logging"
)

const defaultTimeout = 20 * time.Second

// Client is a lightweight JSON client for the medical-center REST API. All
// state lives upstream; the client only shapes requests and normalizes the
// API's envelope variants.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
	metrics    *metrics.UpstreamMetrics
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client (used in tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithMetrics attaches upstream request metrics.
func WithMetrics(m *metrics.UpstreamMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a client for the given API base URL.
func New(baseURL string, logger *logging.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger.Component("upstream"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// ListClinics returns all clinics of the center.
func (c *Client) ListClinics(ctx context.Context) ([]Clinic, error) {
	var out struct {
		Data []Clinic `json:"data"`
	}
	if err := c.do(ctx, "list_clinics", http.MethodGet, "/clinics", "", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// ListStaff returns the doctors attached to one clinic.
func (c *Client) ListStaff(ctx context.Context, clinicID ID) ([]Staff, error) {
	var out struct {
		Staff []Staff `json:"staff"`
	}
	path := fmt.Sprintf("/clinics/%s/staff", url.PathEscape(clinicID.String()))
	if err := c.do(ctx, "list_staff", http.MethodGet, path, "", nil, &out); err != nil {
		return nil, err
	}
	return out.Staff, nil
}

// AvailableSlots returns the bookable times for (clinic, doctor, date). The
// API responds with an object of "HH:MM" -> value pairs; the result is a list
// sorted ascending by numeric slot value.
func (c *Client) AvailableSlots(ctx context.Context, clinicID, staffID ID, date string) ([]Slot, error) {
	var raw map[string]ID
	path := fmt.Sprintf("/clinics/available_times/%s?staff_id=%s&date=%s",
		url.PathEscape(clinicID.String()), url.QueryEscape(staffID.String()), url.QueryEscape(date))
	if err := c.do(ctx, "available_slots", http.MethodGet, path, "", nil, &raw); err != nil {
		return nil, err
	}
	slots := make([]Slot, 0, len(raw))
	for t, v := range raw {
		slots = append(slots, Slot{Time: t, Value: v.String()})
	}
	sort.Slice(slots, func(i, j int) bool {
		vi, erri := strconv.ParseFloat(slots[i].Value, 64)
		vj, errj := strconv.ParseFloat(slots[j].Value, 64)
		if erri == nil && errj == nil {
			return vi < vj
		}
		return slots[i].Value < slots[j].Value
	})
	return slots, nil
}

// SendBookingOTP asks the API to text a booking confirmation code.
func (c *Client) SendBookingOTP(ctx context.Context, phone string) error {
	body := map[string]string{"phone_number": phone}
	return c.do(ctx, "send_booking_otp", http.MethodPost, "/user/bookings/send-otp", "", body, nil)
}

// ConfirmBooking creates the booking and returns its id.
func (c *Client) ConfirmBooking(ctx context.Context, req ConfirmBookingRequest) (ID, error) {
	var out struct {
		BookingID ID `json:"booking_id"`
	}
	if err := c.do(ctx, "confirm_booking", http.MethodPost, "/user/bookings", "", req, &out); err != nil {
		return "", err
	}
	return out.BookingID, nil
}

// FetchCart returns the raw remote cart rows for the authenticated user.
// The endpoint is served with three historical payload shapes (bare array,
// {items: []}, {cart: []}); all are tolerated here so shape ambiguity never
// leaks past this boundary.
func (c *Client) FetchCart(ctx context.Context, token string) ([]CartRow, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "fetch_cart", http.MethodGet, "/user/cart", token, nil, &raw); err != nil {
		return nil, err
	}
	return normalizeCartPayload(raw)
}

// AddCartRow adds one unit row to the remote cart.
func (c *Client) AddCartRow(ctx context.Context, token string, row NewCartRow) error {
	return c.do(ctx, "add_cart_row", http.MethodPost, "/user/cart", token, row, nil)
}

// AddCartRows batch-adds rows in a single request ({carts: [...]}).
func (c *Client) AddCartRows(ctx context.Context, token string, rows []NewCartRow) error {
	if len(rows) == 0 {
		return nil
	}
	body := map[string][]NewCartRow{"carts": rows}
	return c.do(ctx, "add_cart_rows", http.MethodPost, "/user/cart", token, body, nil)
}

// RemoveCartRow deletes one remote cart row by id.
func (c *Client) RemoveCartRow(ctx context.Context, token string, id ID) error {
	path := fmt.Sprintf("/user/cart/%s", url.PathEscape(id.String()))
	return c.do(ctx, "remove_cart_row", http.MethodDelete, path, token, nil, nil)
}

// SendLoginCode asks the API to text a login code.
func (c *Client) SendLoginCode(ctx context.Context, phone string) error {
	body := map[string]string{"phone_number": phone}
	return c.do(ctx, "send_login_code", http.MethodPost, "/user/send-login-code", "", body, nil)
}

// VerifyLoginCode exchanges phone+otp for a bearer token.
func (c *Client) VerifyLoginCode(ctx context.Context, phone, otp string) (*LoginResult, error) {
	body := map[string]string{"phone_number": phone, "otp": otp}
	var out LoginResult
	if err := c.do(ctx, "verify_login_code", http.MethodPost, "/user/login-bycode", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// envelope is the common response wrapper. Status arrives as true, "success"
// or "error" depending on endpoint generation.
type envelope struct {
	Status  json.RawMessage `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) ok() bool {
	s := strings.Trim(strings.TrimSpace(string(e.Status)), `"`)
	return s == "true" || strings.EqualFold(s, "success") || strings.EqualFold(s, "ok")
}

func (c *Client) do(ctx context.Context, op, method, path, token string, body, out any) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveRequest(op, err == nil, time.Since(start))
	}()

	var reqBody io.Reader
	if body != nil {
		data, merr := json.Marshal(body)
		if merr != nil {
			return fmt.Errorf("upstream: marshal %s request: %w", op, merr)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("upstream: create %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upstream: %s: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("upstream: read %s response: %w", op, err)
	}

	var env envelope
	if jerr := json.Unmarshal(respBody, &env); jerr != nil {
		if resp.StatusCode >= 300 {
			return &APIError{HTTPStatus: resp.StatusCode}
		}
		return fmt.Errorf("upstream: decode %s response: %w", op, jerr)
	}

	if resp.StatusCode >= 300 || !env.ok() {
		c.logger.Warn("upstream call rejected",
			"op", op,
			"http_status", resp.StatusCode,
			"message", env.Message,
		)
		return &APIError{HTTPStatus: resp.StatusCode, Message: env.Message}
	}

	if out != nil && len(env.Data) > 0 {
		if jerr := json.Unmarshal(env.Data, out); jerr != nil {
			return fmt.Errorf("upstream: decode %s data: %w", op, jerr)
		}
	}
	return nil
}

// normalizeCartPayload accepts the three cart payload shapes and returns the
// row list in server order.
func normalizeCartPayload(raw json.RawMessage) ([]CartRow, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '[' {
		var rows []CartRow
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("upstream: decode cart rows: %w", err)
		}
		return rows, nil
	}
	var wrapped struct {
		Items []CartRow `json:"items"`
		Cart  []CartRow `json:"cart"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("upstream: decode cart payload: %w", err)
	}
	if wrapped.Items != nil {
		return wrapped.Items, nil
	}
	return wrapped.Cart, nil
}
