// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

package roundtrip

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakoryn/vaultbridge/internal/crypto/sig"
	"github.com/hakoryn/vaultbridge/internal/model"
)

// fakeProfiles is an in-memory ProfileSource.
type fakeProfiles map[int]*model.VaultProfile

func (f fakeProfiles) GetVault(id int) (*model.VaultProfile, error) {
	return f[id], nil
}

// fixture builds a matching request/result pair signed with a fresh key.
func fixture(t *testing.T, alg model.Algorithm) (*model.SigningRequest, *model.SignedResult, fakeProfiles) {
	t.Helper()

	pub, priv, err := sig.GenerateKeypair(alg)
	require.NoError(t, err)

	now := time.Now().UTC()
	req := &model.SigningRequest{
		ID:        "req-roundtrip",
		VaultID:   7,
		Algorithm: alg,
		Payload:   []byte(`{"to":"0xabc"}`),
		Status:    model.StatusDelivered,
		CreatedAt: now,
		ExpiresAt: now.Add(15 * time.Minute),
	}
	req.Digest = sig.DigestHex(req.ID, req.VaultID, req.Algorithm, req.Payload)

	signature, err := sig.Sign(alg, priv, req.Digest)
	require.NoError(t, err)

	res := &model.SignedResult{
		RequestID: req.ID,
		VaultID:   req.VaultID,
		PublicKey: pub,
		Signature: signature,
		Digest:    req.Digest,
		SignedAt:  now,
	}
	profiles := fakeProfiles{7: {ID: 7, Vendor: model.VendorKeystone, Label: "cold-1", PublicKey: pub, Algorithm: alg, IsActive: true}}
	return req, res, profiles
}

func TestValidateFullChainPasses(t *testing.T) {
	for _, alg := range []model.Algorithm{model.AlgoEd25519, model.AlgoSecp256k1} {
		t.Run(string(alg), func(t *testing.T) {
			req, res, profiles := fixture(t, alg)
			v := NewValidator(profiles)
			assert.NoError(t, v.Validate(context.Background(), req, res))
		})
	}
}

func TestDigestMatchFailures(t *testing.T) {
	req, res, profiles := fixture(t, model.AlgoEd25519)
	v := NewValidator(profiles)

	res.Digest = "00" + res.Digest[2:]
	err := v.Validate(context.Background(), req, res)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "digest-match", verr.Hook)
}

func TestDigestMatchCatchesRequestMismatch(t *testing.T) {
	req, res, profiles := fixture(t, model.AlgoEd25519)
	res.RequestID = "someone-elses-request"

	err := NewValidator(profiles).Validate(context.Background(), req, res)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "digest-match", verr.Hook)
}

func TestDigestMatchCatchesTamperedPayload(t *testing.T) {
	req, res, profiles := fixture(t, model.AlgoEd25519)
	// The stored payload no longer matches the stored digest.
	req.Payload = []byte(`{"to":"0xevil"}`)

	err := NewValidator(profiles).Validate(context.Background(), req, res)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "digest-match", verr.Hook)
}

func TestRequestFreshRejectsExpiredAndTerminal(t *testing.T) {
	req, res, profiles := fixture(t, model.AlgoEd25519)
	v := NewValidatorWithHooks(
		DigestMatch{},
		RequestFresh{Now: func() time.Time { return req.ExpiresAt.Add(time.Second) }},
		VaultIdentity{Profiles: profiles},
		SignatureValid{},
	)
	err := v.Validate(context.Background(), req, res)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "request-fresh", verr.Hook)

	req2, res2, profiles2 := fixture(t, model.AlgoEd25519)
	req2.Status = model.StatusRejected
	err = NewValidator(profiles2).Validate(context.Background(), req2, res2)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "request-fresh", verr.Hook)
}

func TestVaultIdentityRejectsUnregisteredKey(t *testing.T) {
	req, res, profiles := fixture(t, model.AlgoEd25519)

	// A different, internally consistent keypair signs the digest. The
	// signature is valid crypto but the key is not the registered one.
	otherPub, otherPriv, err := sig.GenerateKeypair(model.AlgoEd25519)
	require.NoError(t, err)
	res.PublicKey = otherPub
	res.Signature, err = sig.Sign(model.AlgoEd25519, otherPriv, req.Digest)
	require.NoError(t, err)

	verr := validateErr(t, NewValidator(profiles).Validate(context.Background(), req, res))
	assert.Equal(t, "vault-identity", verr.Hook)
}

func TestVaultIdentityRejectsMissingProfile(t *testing.T) {
	req, res, _ := fixture(t, model.AlgoEd25519)

	verr := validateErr(t, NewValidator(fakeProfiles{}).Validate(context.Background(), req, res))
	assert.Equal(t, "vault-identity", verr.Hook)
}

func TestSignatureValidRejectsForgery(t *testing.T) {
	req, res, profiles := fixture(t, model.AlgoSecp256k1)

	// Flip a byte in the signature.
	b := []byte(res.Signature)
	if b[10] == 'a' {
		b[10] = 'b'
	} else {
		b[10] = 'a'
	}
	res.Signature = string(b)

	verr := validateErr(t, NewValidator(profiles).Validate(context.Background(), req, res))
	assert.Equal(t, "signature-valid", verr.Hook)
	assert.True(t, errors.Is(verr.Err, sig.ErrVerifyFailed) || errors.Is(verr.Err, sig.ErrBadSignature))
}

func TestValidateHonorsContext(t *testing.T) {
	req, res, profiles := fixture(t, model.AlgoEd25519)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewValidator(profiles).Validate(ctx, req, res)
	assert.ErrorIs(t, err, context.Canceled)
}

func validateErr(t *testing.T, err error) *ValidationError {
	t.Helper()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	return verr
}
