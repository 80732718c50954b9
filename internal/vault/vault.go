// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

// package vault defines the abstraction over hardware signing devices.
// A Driver knows one vendor's QR dialect: how to encode a signing request
// into the text a device expects to scan, and how to decode the response
// text the device displays back. Drivers register themselves at init time;
// the selector picks the best registered profile for a job.
package vault // import "github.com/hakoryn/vaultbridge/internal/vault"

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hakoryn/vaultbridge/internal/model"
)

var (
	// ErrUnknownVendor is returned when no driver is registered for a vendor.
	ErrUnknownVendor = errors.New("no driver registered for vendor")

	// ErrWrongDialect is returned when a response payload does not belong
	// to the driver asked to decode it.
	ErrWrongDialect = errors.New("payload is not in this vendor's dialect")

	// ErrAlgorithmUnsupported is returned when a driver is asked to encode
	// a request for a scheme the device cannot sign.
	ErrAlgorithmUnsupported = errors.New("algorithm not supported by this vault")
)

// Capabilities describe what a vendor's devices can handle on the QR channel.
type Capabilities struct {
	// MaxFrameLen is the longest frame text the device camera reliably scans.
	MaxFrameLen int

	// SupportsAnimated reports whether the device can scan multi-frame
	// animated sequences.
	SupportsAnimated bool

	// Algorithms lists the signature schemes the device produces.
	Algorithms []model.Algorithm
}

// SupportsAlgorithm reports whether alg is in the capability set.
func (c Capabilities) SupportsAlgorithm(alg model.Algorithm) bool {
	for _, a := range c.Algorithms {
		if a == alg {
			return true
		}
	}
	return false
}

// Driver is the per-vendor integration point.
type Driver interface {
	// Vendor identifies which product line this driver speaks for.
	Vendor() model.VaultVendor

	// Capabilities returns the static limits of the vendor's devices.
	Capabilities() Capabilities

	// EncodeRequest renders a signing request into the vendor's QR dialect.
	EncodeRequest(req *model.SigningRequest) (string, error)

	// DecodeResponse parses a scanned response payload back into a result.
	DecodeResponse(payload string) (*model.SignedResult, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[model.VaultVendor]Driver)
)

// Register makes a driver available by its vendor name. It panics on a
// duplicate registration, mirroring database/sql's driver registry.
func Register(d Driver) {
	registryMu.Lock()
	defer registryMu.Unlock()
	vendor := d.Vendor()
	if _, dup := registry[vendor]; dup {
		panic(fmt.Sprintf("vault: Register called twice for vendor %q", vendor))
	}
	registry[vendor] = d
}

// Get returns the driver for a vendor.
func Get(vendor model.VaultVendor) (Driver, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[vendor]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVendor, vendor)
	}
	return d, nil
}

// Vendors lists the registered vendors in stable order.
func Vendors() []model.VaultVendor {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]model.VaultVendor, 0, len(registry))
	for v := range registry {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DecodeAny tries every registered driver against a response payload and
// returns the first successful decode along with the driver that produced
// it. Useful when the operator scans a response without saying which
// device it came from.
func DecodeAny(payload string) (*model.SignedResult, Driver, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	for _, d := range registry {
		res, err := d.DecodeResponse(payload)
		if err == nil {
			return res, d, nil
		}
		if !errors.Is(err, ErrWrongDialect) {
			return nil, d, err
		}
	}
	return nil, nil, ErrWrongDialect
}
