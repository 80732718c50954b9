// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

// package ellipal implements the Ellipal vault driver. Ellipal devices
// prefer one large static QR code over animation, so the dialect is a
// flat, colon-delimited record with generous frame capacity.
package ellipal // import "github.com/hakoryn/vaultbridge/internal/vault/ellipal"

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hakoryn/vaultbridge/internal/model"
	"github.com/hakoryn/vaultbridge/internal/vault"
)

const (
	requestHeader  = "ELLIPAL:SIGN:v1"
	responseHeader = "ELLIPAL:SIGNED:v1"
)

// Large static codes: roughly the capacity of a version-40 QR at medium
// error correction.
const maxFrameLen = 2300

func init() {
	vault.Register(&driver{})
}

type driver struct{}

var _ vault.Driver = (*driver)(nil)

func (d *driver) Vendor() model.VaultVendor { return model.VendorEllipal }

func (d *driver) Capabilities() vault.Capabilities {
	return vault.Capabilities{
		MaxFrameLen:      maxFrameLen,
		SupportsAnimated: false,
		Algorithms:       []model.Algorithm{model.AlgoSecp256k1},
	}
}

// EncodeRequest renders the record:
//
//	ELLIPAL:SIGN:v1:<id>:<vault>:<alg>:<digest>:<expires-unix>:<payload-b64>
//
// The payload goes last so the fixed fields survive even a truncated scan.
func (d *driver) EncodeRequest(req *model.SigningRequest) (string, error) {
	if !d.Capabilities().SupportsAlgorithm(req.Algorithm) {
		return "", fmt.Errorf("%w: %s", vault.ErrAlgorithmUnsupported, req.Algorithm)
	}
	expires := int64(0)
	if !req.ExpiresAt.IsZero() {
		expires = req.ExpiresAt.Unix()
	}
	return strings.Join([]string{
		requestHeader,
		req.ID,
		strconv.Itoa(req.VaultID),
		string(req.Algorithm),
		req.Digest,
		strconv.FormatInt(expires, 10),
		base64.RawURLEncoding.EncodeToString(req.Payload),
	}, ":"), nil
}

// DecodeResponse parses:
//
//	ELLIPAL:SIGNED:v1:<request-id>:<vault>:<pubkey>:<signature>:<digest>:<signed-unix>
func (d *driver) DecodeResponse(payload string) (*model.SignedResult, error) {
	payload = strings.TrimSpace(payload)
	if !strings.HasPrefix(payload, responseHeader+":") {
		return nil, vault.ErrWrongDialect
	}
	fields := strings.Split(strings.TrimPrefix(payload, responseHeader+":"), ":")
	if len(fields) != 6 {
		return nil, fmt.Errorf("ellipal response has %d fields, want 6", len(fields))
	}
	vaultID, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("ellipal response has bad vault id: %w", err)
	}
	signedAt, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("ellipal response has bad timestamp: %w", err)
	}
	if fields[0] == "" || fields[3] == "" {
		return nil, fmt.Errorf("ellipal response missing required fields")
	}
	return &model.SignedResult{
		RequestID: fields[0],
		VaultID:   vaultID,
		PublicKey: strings.ToLower(fields[2]),
		Signature: strings.ToLower(fields[3]),
		Digest:    strings.ToLower(fields[4]),
		SignedAt:  time.Unix(signedAt, 0).UTC(),
	}, nil
}

// DecodeRequest parses a sign-request record, the device side of the
// conversation; used by the simulator and round-trip tests.
func DecodeRequest(payload string) (*model.SigningRequest, error) {
	payload = strings.TrimSpace(payload)
	if !strings.HasPrefix(payload, requestHeader+":") {
		return nil, vault.ErrWrongDialect
	}
	fields := strings.Split(strings.TrimPrefix(payload, requestHeader+":"), ":")
	if len(fields) != 6 {
		return nil, fmt.Errorf("ellipal request has %d fields, want 6", len(fields))
	}
	vaultID, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("ellipal request has bad vault id: %w", err)
	}
	expires, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("ellipal request has bad expiry: %w", err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(fields[5])
	if err != nil {
		return nil, fmt.Errorf("ellipal request has bad payload: %w", err)
	}
	req := &model.SigningRequest{
		ID:        fields[0],
		VaultID:   vaultID,
		Algorithm: model.Algorithm(fields[2]),
		Payload:   raw,
		Digest:    strings.ToLower(fields[3]),
	}
	if expires != 0 {
		req.ExpiresAt = time.Unix(expires, 0).UTC()
	}
	return req, nil
}

// EncodeResponse renders a result in the ellipal response dialect, for
// the simulator and tests.
func EncodeResponse(res *model.SignedResult) (string, error) {
	for name, v := range map[string]string{"request id": res.RequestID, "signature": res.Signature} {
		if v == "" {
			return "", fmt.Errorf("ellipal response needs a %s", name)
		}
	}
	return strings.Join([]string{
		responseHeader,
		res.RequestID,
		strconv.Itoa(res.VaultID),
		res.PublicKey,
		res.Signature,
		res.Digest,
		strconv.FormatInt(res.SignedAt.Unix(), 10),
	}, ":"), nil
}
