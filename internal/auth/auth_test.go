package auth

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"mentorchat/pkg/types"
)

func TestIssueAndVerify(t *testing.T) {
	a := New("test-secret", time.Hour)

	token, err := a.Issue("alice", "mentor")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	claims, err := a.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.UserID() != "alice" {
		t.Errorf("user ID = %q, want alice", claims.UserID())
	}
	if claims.Role != "mentor" {
		t.Errorf("role = %q, want mentor", claims.Role)
	}
}

func TestIssueRejectsInvalidUserID(t *testing.T) {
	a := New("test-secret", time.Hour)

	if _, err := a.Issue("not a valid id!", "mentor"); !errors.Is(err, types.ErrInvalidUserID) {
		t.Errorf("got %v, want ErrInvalidUserID", err)
	}
}

func TestVerifyFailures(t *testing.T) {
	a := New("test-secret", time.Hour)
	other := New("other-secret", time.Hour)
	expired := New("test-secret", -time.Hour)

	goodFromOther, err := other.Issue("alice", "mentor")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	expiredToken, err := expired.Issue("alice", "mentor")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	cases := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"garbage", "not.a.token"},
		{"wrong secret", goodFromOther},
		{"expired", expiredToken},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := a.Verify(tc.token); !errors.Is(err, types.ErrUnauthorized) {
				t.Errorf("got %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestBearerFromHeader(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   string
	}{
		{"normal", "Bearer abc123", "abc123"},
		{"lowercase scheme", "bearer abc123", "abc123"},
		{"missing header", "", ""},
		{"wrong scheme", "Basic abc123", ""},
		{"no token", "Bearer", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, _ := http.NewRequest(http.MethodGet, "/chat/connections", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			if got := BearerFromHeader(r); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTokenFromRequest(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "/ws/chat?token=query-token", nil)
	r.Header.Set("Authorization", "Bearer header-token")
	if got := TokenFromRequest(r); got != "query-token" {
		t.Errorf("query token should win: got %q", got)
	}

	r, _ = http.NewRequest(http.MethodGet, "/ws/chat", nil)
	r.Header.Set("Authorization", "Bearer header-token")
	if got := TokenFromRequest(r); got != "header-token" {
		t.Errorf("header fallback: got %q", got)
	}
}
