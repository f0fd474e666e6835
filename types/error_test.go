package types

import (
	"errors"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrProviderTransient, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("openai").
		WithCorrelationID("corr-1")

	if GetErrorKind(err) != ErrProviderTransient {
		t.Fatalf("expected kind %s, got %s", ErrProviderTransient, GetErrorKind(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if err.CorrelationID != "corr-1" {
		t.Fatalf("expected correlation id to stick")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestNewError_DefaultsHTTPStatusFromTaxonomy(t *testing.T) {
	t.Parallel()

	err := NewError(ErrNoEligibleProvider, "no provider")
	if err.HTTPStatus != 503 {
		t.Fatalf("expected 503, got %d", err.HTTPStatus)
	}
}
