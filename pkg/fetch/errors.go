package fetch

import (
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/sriram-pr/article-scraper/pkg/utils"
)

// HTTPError reports a terminal non-2xx HTTP response. It unwraps to the
// matching class sentinel (client/server/other) so callers can branch with
// errors.Is, while errors.As keeps the exact status code available.
type HTTPError struct {
	StatusCode int
	Status     string // e.g. "404 Not Found"; may be empty
}

// NewHTTPError builds an HTTPError for the given status line.
func NewHTTPError(statusCode int, status string) *HTTPError {
	return &HTTPError{StatusCode: statusCode, Status: status}
}

func (e *HTTPError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("HTTP %s", e.Status)
	}
	return fmt.Sprintf("HTTP status %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	switch {
	case e.StatusCode >= 500:
		return utils.ErrServerHTTPError
	case e.StatusCode >= 400:
		return utils.ErrClientHTTPError
	default:
		return utils.ErrOtherHTTPError
	}
}

// retryableStatus reports whether a status code is worth another attempt.
// 429 and all 5xx are transient; everything else non-2xx is terminal.
func retryableStatus(statusCode int) bool {
	return statusCode == 429 || statusCode >= 500
}

// classifyNetworkError tags transport-level failures with the sentinel the
// rest of the app branches on. Unrecognized errors pass through unchanged.
func classifyNetworkError(err error) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w: %v", utils.ErrConnectionRefused, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", utils.ErrFetchTimeout, err)
	}
	return err
}
