// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

// package roundtrip validates that what came back from a vault matches
// what was sent to it. Validation is a chain of hooks; each hook checks
// one property of the request/result pair. A result may only be recorded
// as verified once every hook in the chain has passed.
package roundtrip // import "github.com/hakoryn/vaultbridge/internal/roundtrip"

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hakoryn/vaultbridge/internal/crypto/sig"
	"github.com/hakoryn/vaultbridge/internal/model"
)

// Hook checks one property of a signing round trip.
type Hook interface {
	// Name identifies the hook in errors and audit entries.
	Name() string

	// Check returns nil when the property holds.
	Check(ctx context.Context, req *model.SigningRequest, res *model.SignedResult) error
}

// ValidationError reports which hook refused the result and why.
type ValidationError struct {
	Hook string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("round-trip validation failed at %s: %v", e.Hook, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ProfileSource resolves vault profiles for identity checks. The db
// package's store satisfies this.
type ProfileSource interface {
	GetVault(id int) (*model.VaultProfile, error)
}

// Validator runs a hook chain in order, fail-fast.
type Validator struct {
	hooks []Hook
}

// NewValidator builds the default chain: digest match, freshness, vault
// identity, then the actual signature check. Identity runs before the
// signature so a stolen-but-valid signature from the wrong device is
// reported as an identity failure, not a crypto one.
func NewValidator(profiles ProfileSource) *Validator {
	return &Validator{hooks: []Hook{
		DigestMatch{},
		RequestFresh{Now: time.Now},
		VaultIdentity{Profiles: profiles},
		SignatureValid{},
	}}
}

// NewValidatorWithHooks builds a validator from an explicit chain.
func NewValidatorWithHooks(hooks ...Hook) *Validator {
	return &Validator{hooks: hooks}
}

// Validate runs every hook against the pair. The first failure stops the
// chain and is returned as a *ValidationError.
func (v *Validator) Validate(ctx context.Context, req *model.SigningRequest, res *model.SignedResult) error {
	for _, h := range v.hooks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.Check(ctx, req, res); err != nil {
			return &ValidationError{Hook: h.Name(), Err: err}
		}
	}
	return nil
}

// DigestMatch checks that the device echoed back the digest of the
// request it was shown, and that it signed for the right request and
// vault at all.
type DigestMatch struct{}

func (DigestMatch) Name() string { return "digest-match" }

func (DigestMatch) Check(_ context.Context, req *model.SigningRequest, res *model.SignedResult) error {
	if res.RequestID != req.ID {
		return fmt.Errorf("result is for request %s, not %s", res.RequestID, req.ID)
	}
	if res.VaultID != 0 && res.VaultID != req.VaultID {
		return fmt.Errorf("result names vault %d, request was sent to vault %d", res.VaultID, req.VaultID)
	}
	if !strings.EqualFold(res.Digest, req.Digest) {
		return errors.New("response digest does not match request digest")
	}
	// Belt and braces: recompute the digest from the stored payload.
	if got := sig.DigestHex(req.ID, req.VaultID, req.Algorithm, req.Payload); got != strings.ToLower(req.Digest) {
		return errors.New("stored request digest does not match its payload")
	}
	return nil
}

// RequestFresh checks that the request is still open for a result.
type RequestFresh struct {
	Now func() time.Time
}

func (RequestFresh) Name() string { return "request-fresh" }

func (h RequestFresh) Check(_ context.Context, req *model.SigningRequest, _ *model.SignedResult) error {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	if req.Status.IsTerminal() {
		return fmt.Errorf("request is already %s", req.Status)
	}
	if req.Expired(now()) {
		return fmt.Errorf("request expired at %s", req.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return nil
}

// VaultIdentity checks that the key the device signed with is the key
// registered for the vault the request was sent to.
type VaultIdentity struct {
	Profiles ProfileSource
}

func (VaultIdentity) Name() string { return "vault-identity" }

func (h VaultIdentity) Check(_ context.Context, req *model.SigningRequest, res *model.SignedResult) error {
	if h.Profiles == nil {
		return errors.New("no profile source configured")
	}
	profile, err := h.Profiles.GetVault(req.VaultID)
	if err != nil {
		return fmt.Errorf("failed to load vault profile %d: %w", req.VaultID, err)
	}
	if profile == nil {
		return fmt.Errorf("vault profile %d no longer exists", req.VaultID)
	}
	if !strings.EqualFold(res.PublicKey, profile.PublicKey) {
		return fmt.Errorf("response signed by an unregistered key (vault %s)", profile)
	}
	return nil
}

// SignatureValid performs the cryptographic verification of the
// signature over the request digest.
type SignatureValid struct{}

func (SignatureValid) Name() string { return "signature-valid" }

func (SignatureValid) Check(_ context.Context, req *model.SigningRequest, res *model.SignedResult) error {
	return sig.Verify(req.Algorithm, res.PublicKey, req.Digest, res.Signature)
}
