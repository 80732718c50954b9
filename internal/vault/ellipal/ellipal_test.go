// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

package ellipal

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
		ID:        "4f2c9a6e-0002-4b7e-9c3d-7e8f1a2b3c4d",
		VaultID:   1,
		Algorithm: model.AlgoSecp256k1,
		Payload:   []byte(`{"to":"0xabc","nonce":42}`),
		Digest:    "aabbcc",
		ExpiresAt: time.Unix(1767225600, 0).UTC(),
	}

	envelope, err := d.EncodeRequest(req)
	require.NoError(t, err)
	assert.Contains(t, envelope, "ELLIPAL:SIGN:v1:")

	got, err := DecodeRequest(envelope)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)
	assert.Equal(t, req.VaultID, got.VaultID)
	assert.Equal(t, req.Algorithm, got.Algorithm)
	assert.Equal(t, req.Payload, got.Payload)
	assert.Equal(t, req.Digest, got.Digest)
	assert.True(t, req.ExpiresAt.Equal(got.ExpiresAt))
}

func TestEncodeRequestRejectsEd25519(t *testing.T) {
	d := &driver{}
	req := &model.SigningRequest{
		ID:        "x",
		Algorithm: model.AlgoEd25519,
		Digest:    "aa",
	}
	_, err := d.EncodeRequest(req)
	assert.ErrorIs(t, err, vault.ErrAlgorithmUnsupported)
}

func TestResponseDialectRoundTrip(t *testing.T) {
	d := &driver{}
	res := &model.SignedResult{
		RequestID: "4f2c9a6e-0002-4b7e-9c3d-7e8f1a2b3c4d",
		VaultID:   1,
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

func TestDecodeRejectsForeignAndMalformed(t *testing.T) {
	d := &driver{}
	_, err := d.DecodeResponse("ur:vb-sign-response/abc")
	assert.ErrorIs(t, err, vault.ErrWrongDialect)

	_, err = DecodeRequest("ur:vb-sign-request/abc")
	assert.ErrorIs(t, err, vault.ErrWrongDialect)

	// Right header, wrong field count.
	_, err = d.DecodeResponse("ELLIPAL:SIGNED:v1:only:three")
	require.Error(t, err)
	assert.NotErrorIs(t, err, vault.ErrWrongDialect)
}

func TestCapabilities(t *testing.T) {
	d := &driver{}
	caps := d.Capabilities()
	assert.False(t, caps.SupportsAnimated)
	assert.Equal(t, 2300, caps.MaxFrameLen)
	assert.False(t, caps.SupportsAlgorithm(model.AlgoEd25519))
	assert.True(t, caps.SupportsAlgorithm(model.AlgoSecp256k1))
}
