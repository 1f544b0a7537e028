//go:build !integration

package generation

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/genai"

	"video-batch-orchestrator/internal/domain"
)

func TestClassifyVeoErr(t *testing.T) {
	t.Run("rate limit comes back transient", func(t *testing.T) {
		// --- Arrange ---
		err := genai.APIError{Code: 429, Message: "quota exceeded", Status: "RESOURCE_EXHAUSTED"}

		// --- Act ---
		got := classifyVeoErr(err)

		// --- Assert ---
		var transient *domain.TransientExternalError
		if !errors.As(got, &transient) {
			t.Fatalf("expected TransientExternalError, got %T (%v)", got, got)
		}
		if transient.Service != "veo" {
			t.Errorf("expected service veo, got %q", transient.Service)
		}
	})

	t.Run("server errors come back transient", func(t *testing.T) {
		// --- Arrange ---
		err := genai.APIError{Code: 503, Message: "backend unavailable", Status: "UNAVAILABLE"}

		// --- Act ---
		got := classifyVeoErr(err)

		// --- Assert ---
		var transient *domain.TransientExternalError
		if !errors.As(got, &transient) {
			t.Fatalf("expected TransientExternalError, got %T (%v)", got, got)
		}
	})

	t.Run("rejected requests come back permanent", func(t *testing.T) {
		for _, code := range []int{400, 403, 404} {
			t.Run(fmt.Sprintf("status %d", code), func(t *testing.T) {
				// --- Arrange ---
				err := genai.APIError{Code: code, Message: "request rejected", Status: "INVALID_ARGUMENT"}

				// --- Act ---
				got := classifyVeoErr(err)

				// --- Assert ---
				var permanent *domain.PermanentExternalError
				if !errors.As(got, &permanent) {
					t.Fatalf("expected PermanentExternalError, got %T (%v)", got, got)
				}
				if permanent.Reason != "request rejected" {
					t.Errorf("expected API message as reason, got %q", permanent.Reason)
				}
			})
		}
	})

	t.Run("rejection without a message still carries a reason", func(t *testing.T) {
		// --- Arrange ---
		err := genai.APIError{Code: 403, Status: "PERMISSION_DENIED"}

		// --- Act ---
		got := classifyVeoErr(err)

		// --- Assert ---
		var permanent *domain.PermanentExternalError
		if !errors.As(got, &permanent) {
			t.Fatalf("expected PermanentExternalError, got %T (%v)", got, got)
		}
		if permanent.Reason == "" {
			t.Error("expected a non-empty reason")
		}
	})

	t.Run("plain network errors come back transient", func(t *testing.T) {
		// --- Arrange ---
		err := errors.New("dial tcp: connection refused")

		// --- Act ---
		got := classifyVeoErr(err)

		// --- Assert ---
		var transient *domain.TransientExternalError
		if !errors.As(got, &transient) {
			t.Fatalf("expected TransientExternalError, got %T (%v)", got, got)
		}
		if !errors.Is(got, err) {
			t.Error("expected the original error to stay wrapped")
		}
	})
}
