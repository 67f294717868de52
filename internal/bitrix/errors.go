package bitrix

import (
	"errors"
	"fmt"
)

// APIError is returned when the CRM answers with a non-success status or an
// error envelope.
type APIError struct {
	Method      string
	StatusCode  int
	Code        string
	Description string
	Body        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Method, e.StatusCode, e.Body)
}

func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr, true
	}
	return nil, false
}
