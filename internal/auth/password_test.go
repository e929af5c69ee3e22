package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("clear-skies")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=1$") {
		t.Errorf("hash = %q, want argon2id PHC prefix", hash)
	}

	ok, err := VerifyPassword("clear-skies", hash)
	if err != nil || !ok {
		t.Errorf("VerifyPassword(correct) = %v, %v, want true", ok, err)
	}
	ok, err = VerifyPassword("cloudy", hash)
	if err != nil || ok {
		t.Errorf("VerifyPassword(wrong) = %v, %v, want false", ok, err)
	}
}

func TestHashPassword_UniqueSalt(t *testing.T) {
	a, err := HashPassword("same")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	b, err := HashPassword("same")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if a == b {
		t.Error("two hashes of the same password are identical")
	}
}

func TestHashPassword_Empty(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Error("HashPassword(\"\") error = nil")
	}
}

func TestValidateHash(t *testing.T) {
	tests := []struct {
		name    string
		hash    string
		wantErr bool
	}{
		{"dummy hash", dummyHash, false},
		{"empty", "", true},
		{"bcrypt", "$2a$10$abcdefghijklmnopqrstuv", true},
		{"argon2i", "$argon2i$v=19$m=65536,t=3,p=1$c2FsdA$aGFzaA", true},
		{"old version", "$argon2id$v=16$m=65536,t=3,p=1$c2FsdA$aGFzaA", true},
		{"bad params", "$argon2id$v=19$memory$c2FsdA$aGFzaA", true},
		{"zero threads", "$argon2id$v=19$m=65536,t=3,p=0$c2FsdA$aGFzaA", true},
		{"zero time", "$argon2id$v=19$m=65536,t=0,p=1$c2FsdA$aGFzaA", true},
		{"bad salt", "$argon2id$v=19$m=65536,t=3,p=1$!!!$aGFzaA", true},
		{"empty hash", "$argon2id$v=19$m=65536,t=3,p=1$c2FsdA$", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHash(tt.hash)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidHash) {
					t.Errorf("ValidateHash() error = %v, want ErrInvalidHash", err)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateHash() error = %v", err)
			}
		})
	}
}

func TestVerifyPassword_InvalidHash(t *testing.T) {
	if _, err := VerifyPassword("x", "plaintext"); !errors.Is(err, ErrInvalidHash) {
		t.Errorf("VerifyPassword(plaintext hash) error = %v, want ErrInvalidHash", err)
	}
}
