package warehouse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"
)

// ErrNotFound is returned when a referenced dataset or table does not exist.
var ErrNotFound = errors.New("not found")

// ErrTimeout is returned when a query exceeds the configured timeout.
var ErrTimeout = errors.New("query timed out")

// QueryError carries the warehouse's native error message for a failed
// query, such as a syntax error or permission denial.
type QueryError struct {
	Code    int
	Message string
}

func (e *QueryError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("bigquery: %s (code %d)", e.Message, e.Code)
	}
	return fmt.Sprintf("bigquery: %s", e.Message)
}

// translate maps client errors into the package's error taxonomy. The
// native message is preserved so callers see what the warehouse reported.
func translate(err error, timeout time.Duration) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, gerr.Message)
		}
		return &QueryError{Code: gerr.Code, Message: gerr.Message}
	}
	return &QueryError{Message: err.Error()}
}
