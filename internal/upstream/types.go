package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID tolerates identifiers that arrive as JSON numbers or strings.
type ID string

// UnmarshalJSON accepts "17", 17 and 17.0 style identifiers.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("upstream: parse id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("upstream: parse id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// IsZero reports whether the identifier is absent.
func (id ID) IsZero() bool { return id == "" }

// Money tolerates prices that arrive as JSON numbers or numeric strings.
type Money float64

func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*m = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("upstream: parse price: %w", err)
		}
		if s == "" {
			*m = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("upstream: parse price %q: %w", s, err)
		}
		*m = Money(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("upstream: parse price: %w", err)
	}
	*m = Money(v)
	return nil
}

// Clinic is a bookable department of the medical center.
type Clinic struct {
	ID    ID     `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Staff is a doctor attached to a clinic.
type Staff struct {
	ID         ID     `json:"id"`
	Name       string `json:"name"`
	Title      string `json:"title,omitempty"`
	Image      string `json:"image,omitempty"`
	ClinicID   ID     `json:"clinic_id,omitempty"`
	Price      Money  `json:"price,omitempty"`
	GhaimPrice Money  `json:"ghaim_price,omitempty"`
}

// Service is a purchasable medical service.
type Service struct {
	ID    ID     `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
	Price Money  `json:"price,omitempty"`
}

// Slot is one bookable time for a (clinic, doctor, date) triple. Value is the
// opaque identifier the booking endpoint expects back.
type Slot struct {
	Time  string `json:"time"`
	Value string `json:"value"`
}

// CartRow is one unit-quantity row of the remote cart.
type CartRow struct {
	ID        ID       `json:"id"`
	ServiceID ID       `json:"service_id,omitempty"`
	StaffID   ID       `json:"staff_id,omitempty"`
	Service   *Service `json:"service,omitempty"`
	Staff     *Staff   `json:"staff,omitempty"`
}

// NewCartRow is the payload for adding one row to the remote cart. Exactly one
// of ServiceID/StaffID should be set; staff rows are sent without a quantity
// field, service rows always carry quantity 1.
type NewCartRow struct {
	ServiceID ID
	StaffID   ID
}

// MarshalJSON emits the wire shape the cart endpoint expects.
func (r NewCartRow) MarshalJSON() ([]byte, error) {
	if !r.StaffID.IsZero() {
		return json.Marshal(map[string]string{"staff_id": r.StaffID.String()})
	}
	if !r.ServiceID.IsZero() {
		return json.Marshal(map[string]any{"service_id": r.ServiceID.String(), "quantity": 1})
	}
	return nil, fmt.Errorf("upstream: cart row needs a service or staff id")
}

// ConfirmBookingRequest bundles everything the booking endpoint needs.
type ConfirmBookingRequest struct {
	FullName  string `json:"full_name"`
	Phone     string `json:"phone"`
	OTP       string `json:"otp"`
	ClinicID  ID     `json:"clinics_id"`
	StaffID   ID     `json:"staff_id"`
	Date      string `json:"date"`
	SlotValue string `json:"time"`
}

// MarshalJSON sends the slot value back in the shape the availability
// endpoint delivered it: values that arrived as numbers go out as numbers.
func (r ConfirmBookingRequest) MarshalJSON() ([]byte, error) {
	slot, err := json.Marshal(r.SlotValue)
	if err != nil {
		return nil, err
	}
	if _, numErr := strconv.ParseInt(r.SlotValue, 10, 64); numErr == nil {
		slot = []byte(r.SlotValue)
	}
	return json.Marshal(struct {
		FullName string          `json:"full_name"`
		Phone    string          `json:"phone"`
		OTP      string          `json:"otp"`
		ClinicID ID              `json:"clinics_id"`
		StaffID  ID              `json:"staff_id"`
		Date     string          `json:"date"`
		Time     json.RawMessage `json:"time"`
	}{
		FullName: r.FullName,
		Phone:    r.Phone,
		OTP:      r.OTP,
		ClinicID: r.ClinicID,
		StaffID:  r.StaffID,
		Date:     r.Date,
		Time:     slot,
	})
}

// User is the authenticated account returned by login verification.
type User struct {
	ID    ID     `json:"id"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone_number,omitempty"`
}

// LoginResult carries the bearer token issued after OTP verification.
type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
