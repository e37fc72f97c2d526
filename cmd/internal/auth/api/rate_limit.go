package authapi

import (
	"net/http"
	"strconv"
	"time"
)

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if s := retryAfterSeconds(retryAfter); s > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(s, 10))
	}
	writeError(w, http.StatusTooManyRequests, codeRateLimited, "too many login links requested, retry later")
}

// retryAfterSeconds rounds up so clients never retry early.
func retryAfterSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}
