package domain

import (
	"testing"
	"time"
)

func TestNonceExpired(t *testing.T) {
	deadline := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	nonce := Nonce{Token: "n", ExpiresAt: &deadline}

	if nonce.Expired(deadline.Add(-time.Second)) {
		t.Error("nonce must be valid before its deadline")
	}
	if !nonce.Expired(deadline) {
		t.Error("nonce must be invalid exactly at its deadline")
	}
	if !nonce.Expired(deadline.Add(time.Second)) {
		t.Error("nonce must be invalid after its deadline")
	}

	unbounded := Nonce{Token: "n"}
	if unbounded.Expired(deadline.Add(24 * time.Hour)) {
		t.Error("nonce without a deadline never expires")
	}
}
