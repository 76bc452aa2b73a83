package resilience

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestIsTransient_MarkedError(t *testing.T) {
	err := MarkTransient(errors.New("server overloaded"), 503)
	if !IsTransient(err) {
		t.Error("expected marked error to be transient")
	}
}

func TestIsTransient_WrappedMarkedError(t *testing.T) {
	inner := MarkTransient(errors.New("rate limited"), 429)
	wrapped := fmt.Errorf("backend call failed: %w", inner)
	if !IsTransient(wrapped) {
		t.Error("expected wrapped marked error to be transient")
	}
}

func TestIsTransient_NilError(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
}

func TestIsTransient_RegularError(t *testing.T) {
	if IsTransient(errors.New("invalid input: missing field")) {
		t.Error("regular error should not be transient")
	}
}

func TestIsTransient_ConnectionReset(t *testing.T) {
	err := fmt.Errorf("write tcp: %w", syscall.ECONNRESET)
	if !IsTransient(err) {
		t.Error("expected ECONNRESET to be transient")
	}
}

func TestIsTransient_StringPatterns(t *testing.T) {
	for _, msg := range []string{
		"Post http://localhost:11434: connection reset by peer",
		"dial tcp: lookup ollama: no such host",
		"net/http: TLS handshake timeout",
		"read tcp: i/o timeout",
	} {
		if !IsTransient(errors.New(msg)) {
			t.Errorf("expected %q to be transient", msg)
		}
	}
}

func TestRetryableStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !RetryableStatus(code) {
			t.Errorf("expected status %d to be retryable", code)
		}
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404, 422} {
		if RetryableStatus(code) {
			t.Errorf("status %d should not be retryable", code)
		}
	}
}

func TestTransient_UnwrapPreservesChain(t *testing.T) {
	sentinel := errors.New("root cause")
	err := MarkTransient(fmt.Errorf("outer: %w", sentinel), 500)
	if !errors.Is(err, sentinel) {
		t.Error("expected sentinel to survive wrapping")
	}
}
