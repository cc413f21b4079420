package booking

import "regexp"

// Saudi mobile numbers as the center's API accepts them: exactly ten digits
// with the 05 prefix.
var phonePattern = regexp.MustCompile(`^05\d{8}$`)

// IsValidPhone reports whether s is a phone number the booking and login
// endpoints will accept. Invalid numbers are rejected before any network call.
func IsValidPhone(s string) bool {
	return phonePattern.MatchString(s)
}
