package ai

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

type Kind string

const (
	KindRateLimit          Kind = "RATE_LIMIT"
	KindServerError        Kind = "SERVER_ERROR"
	KindTimeout            Kind = "TIMEOUT"
	KindResourceNotFound   Kind = "RESOURCE_NOT_FOUND"
	KindAuthError          Kind = "AUTH_ERROR"
	KindCapabilityMismatch Kind = "CAPABILITY_MISMATCH"
	KindNetworkError       Kind = "NETWORK_ERROR"
	KindSafetyRejected     Kind = "SAFETY_REJECTED"
	KindBackendError       Kind = "BACKEND_ERROR"
	KindUnknown            Kind = "UNKNOWN"
)

// Classification maps a backend failure to a fixed user-facing message
// and a retry recommendation. Raw error text never reaches the user.
type Classification struct {
	Kind        Kind
	UserMessage string
	Retryable   bool
	RetryAfter  time.Duration
}

var userMessages = map[Kind]string{
	KindRateLimit: "⚠️ Gemini servers are currently busy.\n\n" +
		"Please wait a few minutes and try again.",
	KindServerError: "⚠️ Gemini servers are currently unavailable.\n\n" +
		"Please wait a few minutes and try again.",
	KindTimeout: "⏱️ Your request timed out.\n\n" +
		"Please try again.",
	KindResourceNotFound: "❌ The requested model is not available.\n\n" +
		"Please contact an administrator.",
	KindAuthError: "🔐 Authentication error.\n\n" +
		"Please contact an administrator.",
	KindCapabilityMismatch: "⚠️ The model used does not support image generation.\n\n" +
		"Please contact an administrator.",
	KindNetworkError: "🌐 Connection error to Gemini servers.\n\n" +
		"Please check your internet connection and try again.",
	KindSafetyRejected: "🚫 Your request was blocked by safety filters.\n\n" +
		"Please modify your prompt and try again.",
	KindBackendError: "⚠️ An error occurred with the Gemini service.\n\n" +
		"Please wait a few minutes and try again.",
	KindUnknown: "❌ An error occurred.\n\n" +
		"Please try again or contact an administrator.",
}

// Classify matches the failure against a fixed ordered rule set,
// most specific first. The first matching rule wins.
func Classify(err error) Classification {
	text := strings.ToLower(err.Error())

	var apiErr *APIError
	statusCode := 0
	status := ""
	if errors.As(err, &apiErr) {
		statusCode = apiErr.StatusCode
		status = strings.ToUpper(apiErr.Status)
	}

	switch {
	case statusCode == 429 || status == "RESOURCE_EXHAUSTED" ||
		containsAny(text, "quota", "rate limit", "429", "resource_exhausted", "quota_exceeded"):
		return classification(KindRateLimit, true, 60*time.Second)

	case statusCode == 500 || statusCode == 502 || statusCode == 503 || status == "UNAVAILABLE" ||
		containsAny(text, "503", "502", "500", "service unavailable", "internal server error", "unavailable", "server_error"):
		return classification(KindServerError, true, 120*time.Second)

	case isTimeout(err) || containsAny(text, "timeout", "timed out", "deadline exceeded"):
		return classification(KindTimeout, true, 30*time.Second)

	case statusCode == 404 || status == "NOT_FOUND" || strings.Contains(text, "not found"):
		return classification(KindResourceNotFound, false, 0)

	case statusCode == 401 || statusCode == 403 || status == "PERMISSION_DENIED" ||
		containsAny(text, "api key", "401", "unauthorized", "permission denied", "invalid_api_key", "authentication"):
		return classification(KindAuthError, false, 0)

	case containsAny(text, "may not support image generation", "returned text instead of image", "no image data found"):
		return classification(KindCapabilityMismatch, false, 0)

	case isNetworkError(err) ||
		containsAny(text, "network", "connection refused", "no such host", "connection reset", "broken pipe"):
		return classification(KindNetworkError, true, 30*time.Second)

	case containsAny(text, "safety", "content filter", "blocked", "prohibited_content"):
		return classification(KindSafetyRejected, false, 0)

	case containsAny(text, "google", "gemini", "generative"):
		return classification(KindBackendError, true, 60*time.Second)

	default:
		return classification(KindUnknown, true, 30*time.Second)
	}
}

func classification(kind Kind, retryable bool, retryAfter time.Duration) Classification {
	return Classification{
		Kind:        kind,
		UserMessage: userMessages[kind],
		Retryable:   retryable,
		RetryAfter:  retryAfter,
	}
}

func containsAny(text string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isNetworkError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
