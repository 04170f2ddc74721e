package errs

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"
)

// Normalize classifies any failure into a *NormalizedError.
// Already-normalized errors are returned unchanged.
func Normalize(err error) *NormalizedError {
	if err == nil {
		return nil
	}

	var ne *NormalizedError
	if errors.As(err, &ne) {
		return ne
	}

	var se *StatusError
	if errors.As(err, &se) {
		out := FromStatus(se.StatusCode, se.Body)
		out.cause = err
		return out
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Wrap(KindNetwork, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Wrap(KindNetwork, err)
	}

	return Wrap(classifyMessage(err.Error()), err)
}

// FromStatus maps an HTTP status code and error body to a NormalizedError.
func FromStatus(status int, body []byte) *NormalizedError {
	ne := &NormalizedError{
		Kind:       KindForStatus(status),
		StatusCode: status,
		Timestamp:  time.Now(),
	}
	ne.Code = string(ne.Kind)
	ne.Message = http.StatusText(status)

	var payload map[string]any
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		ne.Details = payload
		if msg, ok := payload["message"].(string); ok && msg != "" {
			ne.Message = msg
		}
		if code, ok := payload["code"].(string); ok && code != "" {
			ne.Code = code
		}
	}
	return ne
}

// KindForStatus maps an HTTP status code to a Kind.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 400 && status < 500:
		return KindClient
	case status >= 500:
		return KindServer
	}
	return KindUnknown
}

// classifyMessage is the fallback for transport errors that carry no type.
func classifyMessage(msg string) Kind {
	m := strings.ToLower(msg)

	switch {
	case strings.Contains(m, "too many requests") || strings.Contains(m, "rate limit"):
		return KindRateLimit
	case strings.Contains(m, "connection refused") ||
		strings.Contains(m, "connection reset") ||
		strings.Contains(m, "no such host") ||
		strings.Contains(m, "timeout") ||
		strings.Contains(m, "eof") ||
		strings.Contains(m, "network"):
		return KindNetwork
	case strings.Contains(m, "unauthorized") || strings.Contains(m, "forbidden"):
		return KindAuth
	case strings.Contains(m, "validation") || strings.Contains(m, "invalid"):
		return KindValidation
	}
	return KindUnknown
}
