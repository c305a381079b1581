package httperrors

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/txix-open/isp-kit/json"
)

// RateLimitError carries the 429 contract: a JSON body with the limit and
// retry delay plus a Retry-After header in whole seconds, rounded up.
type RateLimitError struct {
	userMessage string
	retryAfter  time.Duration
	limit       int
	err         error
}

func NewRateLimit(userMessage string, retryAfter time.Duration, limit int, internalError error) RateLimitError {
	return RateLimitError{
		userMessage: userMessage,
		retryAfter:  retryAfter,
		limit:       limit,
		err:         internalError,
	}
}

func (e RateLimitError) Error() string {
	return e.err.Error()
}

func (e RateLimitError) WriteError(w http.ResponseWriter) error {
	retryAfterSec := int(math.Ceil(e.retryAfter.Seconds()))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.WriteHeader(http.StatusTooManyRequests)
	data := map[string]interface{}{
		"error":        e.userMessage,
		"retryAfterMs": e.retryAfter.Milliseconds(),
		"limit":        e.limit,
	}
	return json.NewEncoder(w).Encode(data)
}
