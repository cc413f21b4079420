package upstream

import (
	"errors"
	"fmt"
)

// APIError is a business error reported by the upstream API (status false or
// "error"). Message carries the server-provided text verbatim when present.
type APIError struct {
	HTTPStatus int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream: api error: %s", e.Message)
	}
	return fmt.Sprintf("upstream: api error (http %d)", e.HTTPStatus)
}

// AsAPIError unwraps err into an *APIError when it is one.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// UserMessage returns the server-provided business message, or the supplied
// fallback for transport-level failures.
func UserMessage(err error, fallback string) string {
	if apiErr, ok := AsAPIError(err); ok && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
