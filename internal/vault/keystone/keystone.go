// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

// package keystone implements the Keystone vault driver. Keystone devices
// scan animated sequences of short frames, so the dialect is a compact
// UR-inspired envelope: a type tag followed by base64url JSON.
package keystone // import "github.com/hakoryn/vaultbridge/internal/vault/keystone"

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hakoryn/vaultbridge/internal/model"
	"github.com/hakoryn/vaultbridge/internal/vault"
)

const (
	requestPrefix  = "ur:vb-sign-request/"
	responsePrefix = "ur:vb-sign-response/"
)

// Keystone cameras are tuned for dense animated sequences of small codes.
const maxFrameLen = 200

func init() {
	vault.Register(&driver{})
}

type driver struct{}

var _ vault.Driver = (*driver)(nil)

func (d *driver) Vendor() model.VaultVendor { return model.VendorKeystone }

func (d *driver) Capabilities() vault.Capabilities {
	return vault.Capabilities{
		MaxFrameLen:      maxFrameLen,
		SupportsAnimated: true,
		Algorithms:       []model.Algorithm{model.AlgoEd25519, model.AlgoSecp256k1},
	}
}

// requestEnvelope is the JSON body inside a sign-request UR.
type requestEnvelope struct {
	RequestID string `json:"requestId"`
	VaultID   int    `json:"vaultId"`
	Algorithm string `json:"algorithm"`
	Payload   string `json:"payload"` // base64url
	Digest    string `json:"digest"`
	ExpiresAt int64  `json:"expiresAt,omitempty"` // unix seconds
	Note      string `json:"note,omitempty"`
}

// responseEnvelope is the JSON body inside a sign-response UR.
type responseEnvelope struct {
	RequestID string `json:"requestId"`
	VaultID   int    `json:"vaultId"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
	Digest    string `json:"digest"`
	SignedAt  int64  `json:"signedAt"` // unix seconds
}

func (d *driver) EncodeRequest(req *model.SigningRequest) (string, error) {
	if !d.Capabilities().SupportsAlgorithm(req.Algorithm) {
		return "", fmt.Errorf("%w: %s", vault.ErrAlgorithmUnsupported, req.Algorithm)
	}
	env := requestEnvelope{
		RequestID: req.ID,
		VaultID:   req.VaultID,
		Algorithm: string(req.Algorithm),
		Payload:   base64.RawURLEncoding.EncodeToString(req.Payload),
		Digest:    req.Digest,
		Note:      req.Note,
	}
	if !req.ExpiresAt.IsZero() {
		env.ExpiresAt = req.ExpiresAt.Unix()
	}
	body, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to marshal keystone request: %w", err)
	}
	return requestPrefix + base64.RawURLEncoding.EncodeToString(body), nil
}

func (d *driver) DecodeResponse(payload string) (*model.SignedResult, error) {
	payload = strings.TrimSpace(payload)
	if !strings.HasPrefix(payload, responsePrefix) {
		return nil, vault.ErrWrongDialect
	}
	body, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(payload, responsePrefix))
	if err != nil {
		return nil, fmt.Errorf("malformed keystone response body: %w", err)
	}
	var env responseEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("malformed keystone response JSON: %w", err)
	}
	if env.RequestID == "" || env.Signature == "" {
		return nil, fmt.Errorf("keystone response missing required fields")
	}
	return &model.SignedResult{
		RequestID: env.RequestID,
		VaultID:   env.VaultID,
		PublicKey: strings.ToLower(env.PublicKey),
		Signature: strings.ToLower(env.Signature),
		Digest:    strings.ToLower(env.Digest),
		SignedAt:  time.Unix(env.SignedAt, 0).UTC(),
	}, nil
}

// DecodeRequest parses a sign-request UR back into a request. The device
// side of the conversation; Vaultbridge uses it for the simulator and to
// round-trip its own encodings in tests.
func DecodeRequest(payload string) (*model.SigningRequest, error) {
	payload = strings.TrimSpace(payload)
	if !strings.HasPrefix(payload, requestPrefix) {
		return nil, vault.ErrWrongDialect
	}
	body, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(payload, requestPrefix))
	if err != nil {
		return nil, fmt.Errorf("malformed keystone request body: %w", err)
	}
	var env requestEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("malformed keystone request JSON: %w", err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("malformed keystone request payload: %w", err)
	}
	req := &model.SigningRequest{
		ID:        env.RequestID,
		VaultID:   env.VaultID,
		Algorithm: model.Algorithm(env.Algorithm),
		Payload:   raw,
		Digest:    strings.ToLower(env.Digest),
		Note:      env.Note,
	}
	if env.ExpiresAt != 0 {
		req.ExpiresAt = time.Unix(env.ExpiresAt, 0).UTC()
	}
	return req, nil
}

// EncodeResponse renders a result in the keystone response dialect. The
// device does this on its screen in production; the simulator and tests
// use it to produce responses Vaultbridge can ingest.
func EncodeResponse(res *model.SignedResult) (string, error) {
	env := responseEnvelope{
		RequestID: res.RequestID,
		VaultID:   res.VaultID,
		PublicKey: res.PublicKey,
		Signature: res.Signature,
		Digest:    res.Digest,
		SignedAt:  res.SignedAt.Unix(),
	}
	body, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to marshal keystone response: %w", err)
	}
	return responsePrefix + base64.RawURLEncoding.EncodeToString(body), nil
}
