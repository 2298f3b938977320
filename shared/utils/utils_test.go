package utils

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword("s3cret", hash) {
		t.Error("expected password to match its hash")
	}
	if CheckPassword("wrong", hash) {
		t.Error("expected wrong password to be rejected")
	}
	if CheckPassword("s3cret", "") {
		t.Error("expected empty hash to be rejected")
	}
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID("evt"), GenerateID("evt")
	if !strings.HasPrefix(a, "evt-") {
		t.Errorf("expected evt- prefix, got %s", a)
	}
	if a == b {
		t.Error("expected unique IDs")
	}
}
