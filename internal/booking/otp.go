package booking

import "strings"

// OTPLength is the number of digit cells in a confirmation code.
const OTPLength = 6

// OTPInput models the six single-digit cells of the code entry widget,
// including the focus cursor the UI mirrors. Only single digits mutate state;
// any other input is rejected without side effects.
type OTPInput struct {
	digits [OTPLength]string
	cursor int
}

// Digits returns the cells left to right; empty cells are "".
func (o *OTPInput) Digits() [OTPLength]string { return o.digits }

// Cursor returns the index of the focused cell.
func (o *OTPInput) Cursor() int { return o.cursor }

// Type enters one digit at the focused cell and advances focus unless the
// cursor already sits on the last cell.
func (o *OTPInput) Type(ch rune) bool {
	if ch < '0' || ch > '9' {
		return false
	}
	o.digits[o.cursor] = string(ch)
	if o.cursor < OTPLength-1 {
		o.cursor++
	}
	return true
}

// Backspace clears the focused cell; on an already-empty cell it moves focus
// one cell back instead.
func (o *OTPInput) Backspace() {
	if o.digits[o.cursor] == "" {
		if o.cursor > 0 {
			o.cursor--
		}
		return
	}
	o.digits[o.cursor] = ""
}

// Paste distributes up to six digits of s left to right starting at cell 0,
// ignoring every non-digit rune. Focus lands on the first empty cell, or the
// last cell when all six are filled.
func (o *OTPInput) Paste(s string) {
	i := 0
	for _, ch := range s {
		if i >= OTPLength {
			break
		}
		if ch < '0' || ch > '9' {
			continue
		}
		o.digits[i] = string(ch)
		i++
	}
	o.cursor = OTPLength - 1
	for idx, d := range o.digits {
		if d == "" {
			o.cursor = idx
			break
		}
	}
}

// Code joins the cells into the submitted string.
func (o *OTPInput) Code() string {
	return strings.Join(o.digits[:], "")
}

// Complete reports whether all six cells hold a digit.
func (o *OTPInput) Complete() bool {
	for _, d := range o.digits {
		if d == "" {
			return false
		}
	}
	return true
}

// Reset clears all cells and returns focus to the first one.
func (o *OTPInput) Reset() {
	*o = OTPInput{}
}
