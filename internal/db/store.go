// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"time"

	"github.com/hakoryn/vaultbridge/internal/model"
)

// Store defines the interface for all database operations in Vaultbridge.
// This allows for multiple database backends to be implemented.
type Store interface {
	// Vault profile methods
	AddVault(vendor model.VaultVendor, label, publicKey string, alg model.Algorithm, priority int) (int, error)
	GetVault(id int) (*model.VaultProfile, error)
	GetVaultByLabel(label string) (*model.VaultProfile, error)
	GetAllVaults() ([]model.VaultProfile, error)
	GetActiveVaults() ([]model.VaultProfile, error)
	DeleteVault(id int) error
	ToggleVaultStatus(id int) error
	SetVaultPriority(id, priority int) error
	SetSelectedVault(id int) error
	GetSelectedVault() (*model.VaultProfile, error)

	// Signing request methods
	CreateSigningRequest(req *model.SigningRequest) error
	GetSigningRequest(id string) (*model.SigningRequest, error)
	GetSigningRequestsByStatus(status model.RequestStatus) ([]model.SigningRequest, error)
	GetAllSigningRequests() ([]model.SigningRequest, error)
	UpdateRequestStatus(id string, status model.RequestStatus) error
	ExpireStaleRequests(now time.Time) (int, error)

	// Signed result methods
	SaveSignedResult(res *model.SignedResult) (int, error)
	GetSignedResult(requestID string) (*model.SignedResult, error)

	// Audit log methods
	GetAllAuditLogEntries() ([]model.AuditLogEntry, error)
	LogAction(action string, details string) error
}
