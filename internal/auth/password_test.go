package auth

import (
	"strings"
	"testing"
)

func TestHashPassword_Format(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("Str0ng!Pass")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if !strings.HasPrefix(hash, "$argon2id$v=") {
		t.Errorf("hash should be in PHC format, got: %s", hash)
	}

	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		t.Fatalf("hash should have 6 parts, got %d", len(parts))
	}
	if parts[3] != "m=65536,t=3,p=4" {
		t.Errorf("expected m=65536,t=3,p=4, got: %s", parts[3])
	}
}

func TestHashPassword_SaltsAreUnique(t *testing.T) {
	t.Parallel()

	const password = "the_same_password_12345"

	hash1, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	hash2, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if hash1 == hash2 {
		t.Error("same password should produce different hashes due to random salt")
	}

	match1, _ := VerifyPassword(password, hash1)
	match2, _ := VerifyPassword(password, hash2)
	if !match1 || !match2 {
		t.Error("both hashes should verify correctly")
	}
}

func TestVerifyPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("Str0ng!Pass")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	match, err := VerifyPassword("Str0ng!Pass", hash)
	if err != nil {
		t.Fatalf("VerifyPassword failed: %v", err)
	}
	if !match {
		t.Error("correct password should match")
	}

	match, err = VerifyPassword("Wr0ng!Pass", hash)
	if err != nil {
		t.Fatalf("VerifyPassword should not error on mismatch: %v", err)
	}
	if match {
		t.Error("wrong password should not match")
	}
}

func TestVerifyPassword_InvalidHashFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		hash    string
		wantErr error
	}{
		{"empty", "", ErrInvalidHash},
		{"not a hash", "plaintext", ErrInvalidHash},
		{"wrong algorithm", "$bcrypt$v=19$m=65536,t=3,p=4$salt$hash", ErrInvalidHash},
		{"missing parts", "$argon2id$v=19$m=65536", ErrInvalidHash},
		{"bad salt encoding", "$argon2id$v=19$m=65536,t=3,p=4$!!!$aGFzaA", ErrInvalidHash},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := VerifyPassword("password", tt.hash); err != tt.wantErr {
				t.Errorf("VerifyPassword error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerifyPassword_IncompatibleVersion(t *testing.T) {
	t.Parallel()

	staleHash := "$argon2id$v=18$m=65536,t=3,p=4$c29tZXNhbHRoZXJl$c29tZWhhc2hoZXJl"

	match, err := VerifyPassword("password", staleHash)
	if err != ErrIncompatibleVersion {
		t.Errorf("expected ErrIncompatibleVersion, got: %v", err)
	}
	if match {
		t.Error("should not match with incompatible version")
	}
}
