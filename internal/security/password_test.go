package security

import (
	"context"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasherRoundTrip(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost, 2)
	ctx := context.Background()

	hash, err := hasher.Hash(ctx, "correct horse battery staple")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("hash must not equal the plaintext")
	}
	if !hasher.Verify(ctx, hash, "correct horse battery staple") {
		t.Fatal("verify must accept the original password")
	}
	if hasher.Verify(ctx, hash, "wrong password") {
		t.Fatal("verify must reject a wrong password")
	}
}

func TestPasswordHasherCanceledContext(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := hasher.Hash(ctx, "whatever"); err == nil {
		t.Fatal("hash with canceled context must fail")
	}
}
