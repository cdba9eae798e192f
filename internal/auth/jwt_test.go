package auth

import (
	"errors"
	"testing"
	"time"
)

func newTestIssuer(ttl time.Duration) *TokenIssuer {
	return NewTokenIssuer([]byte("test-secret"), ttl)
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(time.Hour)

	token, err := issuer.Issue("user-123")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	userID, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if userID != "user-123" {
		t.Errorf("expected user-123, got %s", userID)
	}
}

func TestTokenIssuer_Expired(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(time.Minute)

	issuedAt := time.Now().Add(-2 * time.Hour)
	issuer.now = func() time.Time { return issuedAt }

	token, err := issuer.Issue("user-123")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	issuer.now = time.Now
	if _, err := issuer.Validate(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenIssuer_Malformed(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"truncated", "eyJhbGciOiJIUzI1NiJ9"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := issuer.Validate(tt.token); !errors.Is(err, ErrTokenMalformed) {
				t.Errorf("expected ErrTokenMalformed, got %v", err)
			}
		})
	}
}

func TestTokenIssuer_WrongSecret(t *testing.T) {
	t.Parallel()

	token, err := newTestIssuer(time.Hour).Issue("user-123")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	other := NewTokenIssuer([]byte("different-secret"), time.Hour)
	if _, err := other.Validate(token); !errors.Is(err, ErrTokenMalformed) {
		t.Errorf("expected ErrTokenMalformed for wrong secret, got %v", err)
	}
}

func TestTokenIssuer_EmptySubject(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(time.Hour)

	token, err := issuer.Issue("")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if _, err := issuer.Validate(token); !errors.Is(err, ErrTokenSubjectInvalid) {
		t.Errorf("expected ErrTokenSubjectInvalid, got %v", err)
	}
}

func TestGenerateRefreshToken(t *testing.T) {
	t.Parallel()

	plaintext, hash, err := GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken failed: %v", err)
	}
	if plaintext == "" || hash == "" {
		t.Fatal("expected non-empty token and hash")
	}
	if HashToken(plaintext) != hash {
		t.Error("hash should be the SHA-256 of the plaintext")
	}

	plaintext2, _, err := GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken failed: %v", err)
	}
	if plaintext == plaintext2 {
		t.Error("tokens should be unique")
	}
}
