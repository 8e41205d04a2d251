package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"
)

var rateLimitPatterns = []string{
	"rate limit",
	"too many requests",
	"quota exceeded",
	"throttled",
}

var retryablePatterns = []string{
	"temporary",
	"timeout",
	"connection",
	"network",
}

// messageFields are probed in order when extracting an error message.
var messageFields = []string{
	"error_description",
	"message",
	"error",
	"error_message",
	"detail",
}

// Classify turns a non-2xx platform response into an *Error.
// A body that is not a JSON object is used verbatim as the message.
func Classify(status int, header http.Header, body []byte) *Error {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil || parsed == nil {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fallbackMessage(status)
		}
		return classify(status, msg, header, nil)
	}
	return ClassifyBody(status, header, parsed)
}

// ClassifyBody classifies an already-decoded response body.
func ClassifyBody(status int, header http.Header, body map[string]any) *Error {
	msg := ExtractMessage(body)
	if msg == "" {
		msg = fallbackMessage(status)
	}
	return classify(status, msg, header, body)
}

func classify(status int, msg string, header http.Header, body map[string]any) *Error {
	lower := strings.ToLower(msg)
	rateLimit := status == http.StatusTooManyRequests || containsAny(lower, rateLimitPatterns)
	retryable := rateLimit || IsRetryableStatus(status) || containsAny(lower, retryablePatterns)

	e := New(status, msg, rateLimit, retryable)
	if d, ok := retryAfter(header, body); ok {
		e = e.WithRetryAfter(d)
	}
	return e
}

// IsRetryableStatus reports whether a status code alone marks a failure retryable.
func IsRetryableStatus(status int) bool {
	switch status {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// ExtractMessage finds the most specific error message in a response body.
// A probed field holding an object yields its "message"; when nothing
// matches, the whole body is serialized.
func ExtractMessage(body map[string]any) string {
	if len(body) == 0 {
		return ""
	}
	for _, field := range messageFields {
		switch v := body[field].(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any:
			if nested, ok := v["message"].(string); ok && nested != "" {
				return nested
			}
			if raw, err := json.Marshal(v); err == nil {
				return string(raw)
			}
		}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return string(raw)
}

// retryAfter prefers the Retry-After header, then a retry_after body field.
func retryAfter(header http.Header, body map[string]any) (time.Duration, bool) {
	if header != nil {
		if v := strings.TrimSpace(header.Get("Retry-After")); v != "" {
			if secs, err := strconv.Atoi(v); err == nil {
				return time.Duration(secs) * time.Second, true
			}
			if at, err := http.ParseTime(v); err == nil {
				return max(time.Until(at), 0), true
			}
		}
	}

	switch v := body["retry_after"].(type) {
	case float64:
		return time.Duration(v * float64(time.Second)), true
	case string:
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(secs * float64(time.Second)), true
		}
	}
	return 0, false
}

// ClassifyErr classifies an error that did not come with a platform response.
// Only transport failures are retryable; anything else (malformed input,
// decoding errors, cancellation) is fatal.
func ClassifyErr(err error) *Error {
	if err == nil {
		return nil
	}
	if apiErr, ok := As(err); ok {
		return apiErr
	}
	return New(0, err.Error(), false, isTransportError(err)).WithCause(err)
}

func isTransportError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// fallbackMessage omits the status text; keyword rules only see platform text.
func fallbackMessage(status int) string {
	return "request failed with status " + strconv.Itoa(status)
}
