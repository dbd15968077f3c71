package validator

import (
	"strings"
	"testing"
)

func TestValidateAccount(t *testing.T) {
	valid := []string{"bob", "3kBx2h5Y8vE7xNL6CZpL8k4fw8YfZbG1wUTQbaR9YwbkS7LiJr"}
	for _, account := range valid {
		if err := ValidateAccount(account); err != nil {
			t.Fatalf("expected %q to be valid, got %v", account, err)
		}
	}
	invalid := []string{"", "<7,0>", "has space", "0OIl", strings.Repeat("a", 65)}
	for _, account := range invalid {
		if err := ValidateAccount(account); err != ErrInvalidAccount {
			t.Fatalf("expected %q to be invalid", account)
		}
	}
}

func TestValidateTokenID(t *testing.T) {
	valid := []string{"", "01", "aaBB", strings.Repeat("ff", 255)}
	for _, tokenID := range valid {
		if err := ValidateTokenID(tokenID); err != nil {
			t.Fatalf("expected %q to be valid, got %v", tokenID, err)
		}
	}
	invalid := []string{"1", "zz", "0x01", strings.Repeat("ff", 256)}
	for _, tokenID := range invalid {
		if err := ValidateTokenID(tokenID); err != ErrInvalidTokenID {
			t.Fatalf("expected %q to be invalid", tokenID)
		}
	}
}
