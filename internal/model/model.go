// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

// package model defines the core data structures for Vaultbridge.
// These types are shared between the database layer, the vault drivers,
// the QR codec and the user interfaces.
package model // import "github.com/hakoryn/vaultbridge/internal/model"

import (
	"fmt"
	"time"
)

// VaultVendor identifies a supported hardware vault product line.
type VaultVendor string

const (
	// VendorEllipal is the Ellipal Titan family (large single-frame QR codes).
	VendorEllipal VaultVendor = "ellipal"

	// VendorKeystone is the Keystone family (animated, UR-style QR codes).
	VendorKeystone VaultVendor = "keystone"

	// VendorTrezor is the Trezor family (connect-style JSON envelopes).
	VendorTrezor VaultVendor = "trezor"
)

// AllVendors lists every vendor Vaultbridge knows about, in display order.
var AllVendors = []VaultVendor{VendorEllipal, VendorKeystone, VendorTrezor}

// ParseVendor converts a user-supplied string into a VaultVendor.
func ParseVendor(s string) (VaultVendor, error) {
	for _, v := range AllVendors {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown vault vendor: %q", s)
}

// Algorithm identifies a signature scheme a vault can produce.
type Algorithm string

const (
	// AlgoEd25519 is Ed25519 over the canonical request digest.
	AlgoEd25519 Algorithm = "ed25519"

	// AlgoSecp256k1 is ECDSA over secp256k1, as used by most chains.
	AlgoSecp256k1 Algorithm = "secp256k1"
)

// ParseAlgorithm converts a user-supplied string into an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case AlgoEd25519, AlgoSecp256k1:
		return Algorithm(s), nil
	}
	return "", fmt.Errorf("unknown signature algorithm: %q", s)
}

// VaultProfile represents a registered hardware vault in the database.
// The public key is the device's signing key, captured at registration
// time; round-trip validation checks responses against it.
type VaultProfile struct {
	ID        int
	Vendor    VaultVendor
	Label     string
	PublicKey string // lowercase hex
	Algorithm Algorithm
	Priority  int // higher wins ties during selection
	IsActive  bool
	CreatedAt time.Time
}

// String returns a human-readable identifier, e.g. "cold-1 (keystone)".
func (v VaultProfile) String() string {
	return fmt.Sprintf("%s (%s)", v.Label, v.Vendor)
}

// RequestStatus tracks a signing request through its lifecycle.
type RequestStatus string

const (
	// StatusPending means the request exists but no frames were rendered yet.
	StatusPending RequestStatus = "pending"

	// StatusDelivered means QR frames were rendered for the vault to scan.
	StatusDelivered RequestStatus = "delivered"

	// StatusSigned means a response was ingested but not yet validated.
	StatusSigned RequestStatus = "signed"

	// StatusVerified means the round-trip validator accepted the result.
	StatusVerified RequestStatus = "verified"

	// StatusRejected means a validation hook refused the result.
	StatusRejected RequestStatus = "rejected"

	// StatusExpired means the request aged out before a valid result arrived.
	StatusExpired RequestStatus = "expired"
)

// IsTerminal reports whether the status permits no further transitions.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case StatusVerified, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// SigningRequest is a transaction payload queued for a vault to sign.
// Digest is computed once at creation over the canonical encoding and
// never changes afterwards; the round-trip validator relies on that.
type SigningRequest struct {
	ID        string // uuid
	VaultID   int
	Algorithm Algorithm
	Payload   []byte
	Digest    string // lowercase hex sha256 of the canonical encoding
	Status    RequestStatus
	Note      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the request has aged out at the given instant.
func (r *SigningRequest) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// SignedResult is what comes back from the vault after scanning the
// response QR: the signature over the request digest plus the identity
// the device claims to have signed with.
type SignedResult struct {
	ID        int
	RequestID string
	VaultID   int
	PublicKey string // lowercase hex
	Signature string // lowercase hex
	Digest    string // echo of the request digest, lowercase hex
	SignedAt  time.Time
}

// AuditLogEntry represents a single entry in the audit log.
type AuditLogEntry struct {
	ID        int
	Timestamp string
	Username  string
	Action    string
	Details   string
}

// Preferences describe what the user wants from vault selection.
// Zero values mean "no constraint".
type Preferences struct {
	Vendor          VaultVendor // pin a vendor
	Algorithm       Algorithm   // require this signature scheme
	RequireAnimated bool        // only vaults that scan animated sequences
	MaxFrameLen     int         // optional: payload must fit frames this short
	MinPriority     int         // optional: ignore profiles below this priority
}
