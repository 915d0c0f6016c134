// ai/provider.go
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a provider failure for the orchestrator's retry
// decision. Only rate_limited and timeout are transient.
type ErrorKind string

const (
	KindRateLimited ErrorKind = "rate_limited"
	KindTimeout     ErrorKind = "timeout"
	KindAuth        ErrorKind = "auth"
	KindOther       ErrorKind = "other"
)

// ProviderError is a typed failure of the remote generation endpoint.
type ProviderError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s: %s", e.Kind, e.Message)
}

// Provider is the remote generative-AI endpoint consumed by the
// orchestrator.
type Provider interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// resource-exhaustion phrasings seen across providers; a match means the
// failure is a rate limit regardless of its status code.
var exhaustionPatterns = []string{
	"rate limit",
	"too many requests",
	"quota",
	"resource exhausted",
	"resource_exhausted",
	"overloaded",
	"capacity",
}

// KindOf extracts the error kind of any provider failure.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	msg := strings.ToLower(err.Error())
	for _, p := range exhaustionPatterns {
		if strings.Contains(msg, p) {
			return KindRateLimited
		}
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return KindTimeout
	}
	return KindOther
}

// IsTransient reports whether the orchestrator may retry after this failure.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindTimeout:
		return true
	}
	return false
}
