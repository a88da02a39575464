package apierr

import (
	"errors"
	"net/http"
	"testing"
)

func TestErrorMessagePrecedence(t *testing.T) {
	cause := errors.New("row not found")
	cases := []struct {
		name string
		err  *Error
		want string
	}{
		{"wrapped cause wins", New(http.StatusNotFound, "session_not_found", cause), "row not found"},
		{"code when no cause", New(http.StatusForbidden, "forbidden", nil), "forbidden"},
		{"status when nothing else", &Error{Status: http.StatusBadGateway}, "api error (502)"},
		{"bare error", &Error{}, "api error"},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("pq: deadlock")
	err := New(http.StatusInternalServerError, "internal", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is must reach the wrapped cause")
	}
}
