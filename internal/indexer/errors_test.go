package indexer

import (
	"errors"
	"fmt"
	"testing"
)

func TestIndexerErrorIsMatchesByCode(t *testing.T) {
	a := NewNetworkError("yts", "YTS", fmt.Errorf("boom"))
	if !errors.Is(a, ErrNetwork) {
		t.Fatal("expected network error to match ErrNetwork by code")
	}
	if errors.Is(a, ErrParse) {
		t.Fatal("expected network error not to match ErrParse")
	}
}

func TestIndexerErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("dial tcp: timeout")
	err := NewNetworkError("yts", "YTS", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected Unwrap to expose the underlying cause")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(NewNetworkError("yts", "YTS", nil)) {
		t.Fatal("expected network errors to be retryable")
	}
	if IsRetryable(NewAuthError("yts", "YTS", nil)) {
		t.Fatal("expected auth errors not to be retryable")
	}
	if IsRetryable(fmt.Errorf("plain error")) {
		t.Fatal("expected a non-IndexerError to be non-retryable")
	}
}

func TestIsNetworkErrorAndIsAuthError(t *testing.T) {
	if !IsNetworkError(NewNetworkError("", "", nil)) {
		t.Fatal("expected network error classification")
	}
	if IsNetworkError(NewParseError("", "", "bad html", nil)) {
		t.Fatal("expected parse error not to classify as network")
	}
	if !IsAuthError(NewAuthError("", "", nil)) {
		t.Fatal("expected auth error classification")
	}
}

func TestGetErrorCode(t *testing.T) {
	if code := GetErrorCode(NewParseError("", "", "bad html", nil)); code != ErrCodeParse {
		t.Fatalf("expected %q, got %q", ErrCodeParse, code)
	}
	if code := GetErrorCode(fmt.Errorf("plain error")); code != "" {
		t.Fatalf("expected empty code for a non-IndexerError, got %q", code)
	}
}

func TestIndexerErrorMessageFormatting(t *testing.T) {
	withName := NewAuthError("torrentleech", "TorrentLeech", nil)
	if got, want := withName.Error(), "[AUTH_ERROR] TorrentLeech: authentication failed"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	noName := NewNotFoundError("definition not found: ghost")
	if got, want := noName.Error(), "[NOT_FOUND_ERROR] definition not found: ghost"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
