// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

package keystone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakoryn/vaultbridge/internal/model"
	"github.com/hakoryn/vaultbridge/internal/vault"
)

func TestRequestDialectRoundTrip(t *testing.T) {
	d := &driver{}
	req := &model.SigningRequest{
		ID:        "4f2c9a6e-0001-4b7e-9c3d-7e8f1a2b3c4d",
		VaultID:   3,
		Algorithm: model.AlgoEd25519,
		Payload:   []byte(`{"to":"0xabc"}`),
		Digest:    "aabbcc",
		Note:      "ops payout",
		ExpiresAt: time.Unix(1767225600, 0).UTC(),
	}

	envelope, err := d.EncodeRequest(req)
	require.NoError(t, err)
	assert.Contains(t, envelope, "ur:vb-sign-request/")

	got, err := DecodeRequest(envelope)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)
	assert.Equal(t, req.VaultID, got.VaultID)
	assert.Equal(t, req.Algorithm, got.Algorithm)
	assert.Equal(t, req.Payload, got.Payload)
	assert.Equal(t, req.Digest, got.Digest)
	assert.Equal(t, req.Note, got.Note)
	assert.True(t, req.ExpiresAt.Equal(got.ExpiresAt))
}

func TestResponseDialectRoundTrip(t *testing.T) {
	d := &driver{}
	res := &model.SignedResult{
		RequestID: "4f2c9a6e-0001-4b7e-9c3d-7e8f1a2b3c4d",
		VaultID:   3,
		PublicKey: "ab01",
		Signature: "cd02",
		Digest:    "aabbcc",
		SignedAt:  time.Unix(1767225700, 0).UTC(),
	}

	envelope, err := EncodeResponse(res)
	require.NoError(t, err)

	got, err := d.DecodeResponse(envelope)
	require.NoError(t, err)
	assert.Equal(t, res.RequestID, got.RequestID)
	assert.Equal(t, res.VaultID, got.VaultID)
	assert.Equal(t, res.PublicKey, got.PublicKey)
	assert.Equal(t, res.Signature, got.Signature)
	assert.Equal(t, res.Digest, got.Digest)
	assert.True(t, res.SignedAt.Equal(got.SignedAt))
}

func TestDecodeRejectsForeignDialects(t *testing.T) {
	d := &driver{}
	_, err := d.DecodeResponse("ELLIPAL:SIGNED:v1:a:1:b:c:d:0")
	assert.ErrorIs(t, err, vault.ErrWrongDialect)

	_, err = DecodeRequest(`{"method":"vaultbridge.signRequest"}`)
	assert.ErrorIs(t, err, vault.ErrWrongDialect)

	// A request envelope is not a response.
	req := &model.SigningRequest{ID: "x", Algorithm: model.AlgoEd25519, Digest: "aa"}
	envelope, err := d.EncodeRequest(req)
	require.NoError(t, err)
	_, err = d.DecodeResponse(envelope)
	assert.ErrorIs(t, err, vault.ErrWrongDialect)
}

func TestCapabilities(t *testing.T) {
	d := &driver{}
	caps := d.Capabilities()
	assert.True(t, caps.SupportsAnimated)
	assert.Equal(t, 200, caps.MaxFrameLen)
	assert.True(t, caps.SupportsAlgorithm(model.AlgoEd25519))
	assert.True(t, caps.SupportsAlgorithm(model.AlgoSecp256k1))
}
