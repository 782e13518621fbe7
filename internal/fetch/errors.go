package fetch

// #region imports
import (
	"errors"
	"fmt"
)

// #endregion

// #region rate-limit
// RateLimitError reports that the upstream throttled the request.
// The only retryable failure class.
type RateLimitError struct {
	URL string
	Err error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited fetching %s: %v", e.URL, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// #endregion rate-limit

// #region network
// NetworkError reports a timeout or connection failure. Not retried: the
// resource may be transiently unreachable and will be revisited on a
// later run once the cached failure expires.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error fetching %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// #endregion network

// #region parse
// ParseError reports a malformed structured reply from a networked
// validator's upstream.
type ParseError struct {
	Detail string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed response: %s: %v", e.Detail, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// #endregion parse

// #region classify
// IsRateLimit reports whether err is (or wraps) a RateLimitError.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsNetwork reports whether err is (or wraps) a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// #endregion classify
