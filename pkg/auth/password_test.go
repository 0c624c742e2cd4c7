package auth

import (
	"testing"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name       string
		password   string
		shouldFail bool
	}{
		{
			name:       "valid strong password",
			password:   "SecureP@ss123",
			shouldFail: false,
		},
		{
			name:       "too short",
			password:   "Pass@1",
			shouldFail: true,
		},
		{
			name:       "missing uppercase",
			password:   "securepass@123",
			shouldFail: true,
		},
		{
			name:       "missing lowercase",
			password:   "SECUREPASS@123",
			shouldFail: true,
		},
		{
			name:       "missing digit",
			password:   "SecurePass@xyz",
			shouldFail: true,
		},
		{
			name:       "missing special character",
			password:   "SecurePass123",
			shouldFail: true,
		},
		{
			name:       "valid with symbols",
			password:   "MyP@ssw0rd!",
			shouldFail: false,
		},
		{
			name:       "too long",
			password:   "Aa1@" + string(make([]byte, 150)),
			shouldFail: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)

			if tt.shouldFail && err == nil {
				t.Errorf("expected error, got nil")
			}
			if !tt.shouldFail && err != nil {
				t.Errorf("expected nil, got %v", err)
			}
		})
	}
}

func TestValidatePassword_CollectsAllViolations(t *testing.T) {
	err := ValidatePassword("abc")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	ve, ok := err.(*PasswordValidationError)
	if !ok {
		t.Fatalf("expected *PasswordValidationError, got %T", err)
	}

	// "abc": too short, no upper, no digit, no special
	if len(ve.Errors) != 4 {
		t.Errorf("expected 4 violations, got %d: %v", len(ve.Errors), ve.Errors)
	}
}

func TestHashAndComparePassword(t *testing.T) {
	password := "SecureP@ss123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() = %v", err)
	}

	if hash == password {
		t.Error("hash should not equal the plaintext password")
	}

	if err := ComparePassword(hash, password); err != nil {
		t.Errorf("ComparePassword() with correct password = %v", err)
	}

	if err := ComparePassword(hash, "WrongP@ss123"); err == nil {
		t.Error("ComparePassword() with wrong password should fail")
	}
}

func TestHashPassword_EmptyFails(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Error("HashPassword(\"\") should fail")
	}
}

func TestGenerateSecret_Unique(t *testing.T) {
	a, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret() = %v", err)
	}
	b, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret() = %v", err)
	}

	if a == b {
		t.Error("two generated secrets should not be equal")
	}
	if len(a) < 40 {
		t.Errorf("secret too short: %d chars", len(a))
	}
}
