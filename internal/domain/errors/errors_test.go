package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSyncError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *SyncError
		want string
	}{
		{
			name: "with cause",
			err:  NewError(CodeAuth, "source login failed", ErrLoginRejected),
			want: "[AUTH] source login failed: login rejected",
		},
		{
			name: "without cause",
			err:  NewError(CodeConfiguration, "missing username", nil),
			want: "[CONFIG] missing username",
		},
		{
			name: "transfer error",
			err:  NewError(CodeTransfer, "upload failed", ErrFileUnavailable),
			want: "[TRANSFER] upload failed: activity file unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSyncError_Unwrap(t *testing.T) {
	err := NewError(CodeState, "write failed", ErrStateCorrupt)

	if err.Unwrap() != ErrStateCorrupt {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), ErrStateCorrupt)
	}
	if !errors.Is(err, ErrStateCorrupt) {
		t.Error("errors.Is should find wrapped sentinel")
	}
}

func TestWithContext_NilContext(t *testing.T) {
	err := &SyncError{Code: CodeValidation, Message: "test"}

	err = WithContext(err, "activity_id", "42")

	if err.Context["activity_id"] != "42" {
		t.Errorf("Context[activity_id] = %v, want 42", err.Context["activity_id"])
	}
}

func TestCodeOf(t *testing.T) {
	inner := NewError(CodeTransient, "HTTP 503", nil)
	wrapped := fmt.Errorf("listing page 2: %w", inner)

	if got := CodeOf(wrapped); got != CodeTransient {
		t.Errorf("CodeOf() = %q, want %q", got, CodeTransient)
	}
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Errorf("CodeOf(plain) = %q, want empty", got)
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"auth", NewError(CodeAuth, "x", nil), true},
		{"listing", NewError(CodeListing, "x", nil), true},
		{"config", NewError(CodeConfiguration, "x", nil), true},
		{"state", NewError(CodeState, "x", nil), true},
		{"transfer", NewError(CodeTransfer, "x", nil), false},
		{"transient", NewError(CodeTransient, "x", nil), false},
		{"plain", errors.New("x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.want {
				t.Errorf("IsFatal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", NewError(CodeTransient, "HTTP 429", nil), true},
		{"unauthorized", NewError(CodePermanent, "HTTP 401", ErrUnauthorized), true},
		{"permanent", NewError(CodePermanent, "HTTP 400", nil), false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
