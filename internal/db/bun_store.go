// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/hakoryn/vaultbridge/internal/model"
)

// bunStore implements Store over a *bun.DB. The dialect-specific store
// types embed it; everything Vaultbridge needs is expressible in
// dialect-neutral Bun queries, so the per-dialect types only exist to
// keep engine-specific behavior (see RunDBMaintenance) addressable.
type bunStore struct {
	bun *bun.DB
}

// AddVault registers a new vault profile and audits the registration.
func (s *bunStore) AddVault(vendor model.VaultVendor, label, publicKey string, alg model.Algorithm, priority int) (int, error) {
	id, err := AddVaultBun(s.bun, vendor, label, publicKey, alg, priority)
	if err == nil {
		_ = s.LogAction("ADD_VAULT", fmt.Sprintf("vault: %s (%s), algorithm: %s", label, vendor, alg))
	}
	return id, err
}

// GetVault retrieves a vault profile by ID.
func (s *bunStore) GetVault(id int) (*model.VaultProfile, error) {
	return GetVaultBun(s.bun, id)
}

// GetVaultByLabel retrieves a vault profile by its unique label.
func (s *bunStore) GetVaultByLabel(label string) (*model.VaultProfile, error) {
	return GetVaultByLabelBun(s.bun, label)
}

// GetAllVaults retrieves every registered vault profile.
func (s *bunStore) GetAllVaults() ([]model.VaultProfile, error) {
	return GetAllVaultsBun(s.bun)
}

// GetActiveVaults retrieves the vault profiles eligible for selection.
func (s *bunStore) GetActiveVaults() ([]model.VaultProfile, error) {
	return GetActiveVaultsBun(s.bun)
}

// DeleteVault removes a vault profile by its ID.
func (s *bunStore) DeleteVault(id int) error {
	// Get details before deleting for logging.
	profile, _ := GetVaultBun(s.bun, id)
	err := DeleteVaultBun(s.bun, id)
	if err == nil {
		details := fmt.Sprintf("id: %d", id)
		if profile != nil {
			details = fmt.Sprintf("vault: %s", profile)
		}
		_ = s.LogAction("DELETE_VAULT", details)
	}
	return err
}

// ToggleVaultStatus flips the active status of a vault profile.
func (s *bunStore) ToggleVaultStatus(id int) error {
	err := ToggleVaultStatusBun(s.bun, id)
	if err == nil {
		_ = s.LogAction("TOGGLE_VAULT_STATUS", fmt.Sprintf("vault_id: %d", id))
	}
	return err
}

// SetVaultPriority updates a profile's selection priority.
func (s *bunStore) SetVaultPriority(id, priority int) error {
	err := SetVaultPriorityBun(s.bun, id, priority)
	if err == nil {
		_ = s.LogAction("SET_VAULT_PRIORITY", fmt.Sprintf("vault_id: %d, priority: %d", id, priority))
	}
	return err
}

// SetSelectedVault marks one vault as the current selection.
func (s *bunStore) SetSelectedVault(id int) error {
	err := SetSelectedVaultBun(s.bun, id)
	if err == nil {
		_ = s.LogAction("SELECT_VAULT", fmt.Sprintf("vault_id: %d", id))
	}
	return err
}

// GetSelectedVault returns the currently selected vault, or nil.
func (s *bunStore) GetSelectedVault() (*model.VaultProfile, error) {
	return GetSelectedVaultBun(s.bun)
}

// CreateSigningRequest persists a new signing request.
func (s *bunStore) CreateSigningRequest(req *model.SigningRequest) error {
	err := CreateSigningRequestBun(s.bun, req)
	if err == nil {
		_ = s.LogAction("CREATE_REQUEST", fmt.Sprintf("request: %s, vault_id: %d", req.ID, req.VaultID))
	}
	return err
}

// GetSigningRequest retrieves a signing request by its UUID.
func (s *bunStore) GetSigningRequest(id string) (*model.SigningRequest, error) {
	return GetSigningRequestBun(s.bun, id)
}

// GetSigningRequestsByStatus lists requests in a given lifecycle state.
func (s *bunStore) GetSigningRequestsByStatus(status model.RequestStatus) ([]model.SigningRequest, error) {
	return GetSigningRequestsByStatusBun(s.bun, status)
}

// GetAllSigningRequests lists every signing request, newest first.
func (s *bunStore) GetAllSigningRequests() ([]model.SigningRequest, error) {
	return GetAllSigningRequestsBun(s.bun)
}

// UpdateRequestStatus transitions a request to a new lifecycle state.
// Status changes are audited at the operation level (ingest/verify), not here.
func (s *bunStore) UpdateRequestStatus(id string, status model.RequestStatus) error {
	return UpdateRequestStatusBun(s.bun, id, status)
}

// ExpireStaleRequests marks aged-out open requests as expired.
func (s *bunStore) ExpireStaleRequests(now time.Time) (int, error) {
	n, err := ExpireStaleRequestsBun(s.bun, now)
	if err == nil && n > 0 {
		_ = s.LogAction("EXPIRE_REQUESTS", fmt.Sprintf("count: %d", n))
	}
	return n, err
}

// SaveSignedResult persists a vault's response.
func (s *bunStore) SaveSignedResult(res *model.SignedResult) (int, error) {
	id, err := SaveSignedResultBun(s.bun, res)
	if err == nil {
		_ = s.LogAction("SAVE_RESULT", fmt.Sprintf("request: %s, vault_id: %d", res.RequestID, res.VaultID))
	}
	return id, err
}

// GetSignedResult retrieves the stored result for a request, or nil.
func (s *bunStore) GetSignedResult(requestID string) (*model.SignedResult, error) {
	return GetSignedResultBun(s.bun, requestID)
}

// GetAllAuditLogEntries retrieves the audit log, most recent first.
func (s *bunStore) GetAllAuditLogEntries() ([]model.AuditLogEntry, error) {
	return GetAllAuditLogEntriesBun(s.bun)
}

// LogAction records an audit trail event.
func (s *bunStore) LogAction(action string, details string) error {
	return LogActionBun(s.bun, action, details)
}
