// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

// package trezor implements the Trezor vault driver. The dialect follows
// the connect-style convention of a JSON document with a method name and
// a params object.
package trezor // import "github.com/hakoryn/vaultbridge/internal/vault/trezor"

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
	methodSignRequest  = "vaultbridge.signRequest"
	methodSignResponse = "vaultbridge.signResponse"
)

// Mid-sized static codes; Trezor companions can page through a short
// sequence but animation is not required.
const maxFrameLen = 800

func init() {
	vault.Register(&driver{})
}

type driver struct{}

var _ vault.Driver = (*driver)(nil)

func (d *driver) Vendor() model.VaultVendor { return model.VendorTrezor }

func (d *driver) Capabilities() vault.Capabilities {
	return vault.Capabilities{
		MaxFrameLen:      maxFrameLen,
		SupportsAnimated: true,
		Algorithms:       []model.Algorithm{model.AlgoEd25519, model.AlgoSecp256k1},
	}
}

type message struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type requestParams struct {
	RequestID string `json:"request_id"`
	VaultID   int    `json:"vault_id"`
	Algorithm string `json:"algorithm"`
	Payload   string `json:"payload"` // base64url
	Digest    string `json:"digest"`
	ExpiresAt string `json:"expires_at,omitempty"` // RFC 3339
	Note      string `json:"note,omitempty"`
}

type responseParams struct {
	RequestID string `json:"request_id"`
	VaultID   int    `json:"vault_id"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
	Digest    string `json:"digest"`
	SignedAt  string `json:"signed_at"` // RFC 3339
}

func (d *driver) EncodeRequest(req *model.SigningRequest) (string, error) {
	if !d.Capabilities().SupportsAlgorithm(req.Algorithm) {
		return "", fmt.Errorf("%w: %s", vault.ErrAlgorithmUnsupported, req.Algorithm)
	}
	params := requestParams{
		RequestID: req.ID,
		VaultID:   req.VaultID,
		Algorithm: string(req.Algorithm),
		Payload:   base64.RawURLEncoding.EncodeToString(req.Payload),
		Digest:    req.Digest,
		Note:      req.Note,
	}
	if !req.ExpiresAt.IsZero() {
		params.ExpiresAt = req.ExpiresAt.UTC().Format(time.RFC3339)
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to marshal trezor params: %w", err)
	}
	out, err := json.Marshal(message{Method: methodSignRequest, Params: raw})
	if err != nil {
		return "", fmt.Errorf("failed to marshal trezor request: %w", err)
	}
	return string(out), nil
}

func (d *driver) DecodeResponse(payload string) (*model.SignedResult, error) {
	payload = strings.TrimSpace(payload)
	var msg message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return nil, vault.ErrWrongDialect
	}
	if msg.Method != methodSignResponse {
		return nil, vault.ErrWrongDialect
	}
	var params responseParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil, fmt.Errorf("malformed trezor response params: %w", err)
	}
	if params.RequestID == "" || params.Signature == "" {
		return nil, fmt.Errorf("trezor response missing required fields")
	}
	signedAt := time.Time{}
	if params.SignedAt != "" {
		t, err := time.Parse(time.RFC3339, params.SignedAt)
		if err != nil {
			return nil, fmt.Errorf("trezor response has bad signed_at: %w", err)
		}
		signedAt = t.UTC()
	}
	return &model.SignedResult{
		RequestID: params.RequestID,
		VaultID:   params.VaultID,
		PublicKey: strings.ToLower(params.PublicKey),
		Signature: strings.ToLower(params.Signature),
		Digest:    strings.ToLower(params.Digest),
		SignedAt:  signedAt,
	}, nil
}

// DecodeRequest parses a signRequest message, the device side of the
// conversation; used by the simulator and round-trip tests.
func DecodeRequest(payload string) (*model.SigningRequest, error) {
	payload = strings.TrimSpace(payload)
	var msg message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return nil, vault.ErrWrongDialect
	}
	if msg.Method != methodSignRequest {
		return nil, vault.ErrWrongDialect
	}
	var params requestParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil, fmt.Errorf("malformed trezor request params: %w", err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(params.Payload)
	if err != nil {
		return nil, fmt.Errorf("trezor request has bad payload: %w", err)
	}
	req := &model.SigningRequest{
		ID:        params.RequestID,
		VaultID:   params.VaultID,
		Algorithm: model.Algorithm(params.Algorithm),
		Payload:   raw,
		Digest:    strings.ToLower(params.Digest),
		Note:      params.Note,
	}
	if params.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, params.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("trezor request has bad expires_at: %w", err)
		}
		req.ExpiresAt = t.UTC()
	}
	return req, nil
}

// EncodeResponse renders a result in the trezor response dialect, for
// the simulator and tests.
func EncodeResponse(res *model.SignedResult) (string, error) {
	raw, err := json.Marshal(responseParams{
		RequestID: res.RequestID,
		VaultID:   res.VaultID,
		PublicKey: res.PublicKey,
		Signature: res.Signature,
		Digest:    res.Digest,
		SignedAt:  res.SignedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal trezor response params: %w", err)
	}
	out, err := json.Marshal(message{Method: methodSignResponse, Params: raw})
	if err != nil {
		return "", fmt.Errorf("failed to marshal trezor response: %w", err)
	}
	return string(out), nil
}
