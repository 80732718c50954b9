// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import (
	"testing"
	"time"
)

func TestParseVendor(t *testing.T) {
	for _, v := range AllVendors {
		got, err := ParseVendor(string(v))
		if err != nil || got != v {
			t.Fatalf("ParseVendor(%q) = %v, %v", v, got, err)
		}
	}
	if _, err := ParseVendor("ledger"); err == nil {
		t.Fatal("expected error for unknown vendor")
	}
	if _, err := ParseVendor(""); err == nil {
		t.Fatal("expected error for empty vendor")
	}
}

func TestParseAlgorithm(t *testing.T) {
	for _, alg := range []string{"ed25519", "secp256k1"} {
		if _, err := ParseAlgorithm(alg); err != nil {
			t.Fatalf("ParseAlgorithm(%q) failed: %v", alg, err)
		}
	}
	if _, err := ParseAlgorithm("rsa"); err == nil {
		t.Fatal("expected error for unknown algorithm")
	}
}

func TestRequestStatusIsTerminal(t *testing.T) {
	terminal := []RequestStatus{StatusVerified, StatusRejected, StatusExpired}
	open := []RequestStatus{StatusPending, StatusDelivered, StatusSigned}

	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range open {
		if s.IsTerminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestSigningRequestExpired(t *testing.T) {
	now := time.Now().UTC()
	r := &SigningRequest{ExpiresAt: now.Add(time.Minute)}
	if r.Expired(now) {
		t.Fatal("request should not be expired before its deadline")
	}
	if !r.Expired(now.Add(2 * time.Minute)) {
		t.Fatal("request should be expired after its deadline")
	}

	// No deadline means it never expires.
	forever := &SigningRequest{}
	if forever.Expired(now.Add(1000 * time.Hour)) {
		t.Fatal("request without a deadline must not expire")
	}
}

func TestVaultProfileString(t *testing.T) {
	v := VaultProfile{Label: "cold-1", Vendor: VendorKeystone}
	if got := v.String(); got != "cold-1 (keystone)" {
		t.Fatalf("String() = %q", got)
	}
}
