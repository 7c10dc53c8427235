package lending

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"yeifinance/services/lending/api"
)

// APIError is a non-2xx answer from the service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("lending: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("lending: %d: %s", e.Status, e.Message)
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// IsCode reports whether err is an APIError carrying code, for example
// "InsufficientCollateral".
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func decodeError(res *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	out := &APIError{Status: res.StatusCode}
	var body api.ErrorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		out.Code, out.Message = body.Code, body.Error
		return out
	}
	out.Message = strings.TrimSpace(string(raw))
	if out.Message == "" {
		out.Message = http.StatusText(res.StatusCode)
	}
	return out
}
