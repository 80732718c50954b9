// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/hakoryn/vaultbridge/internal/model"

	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) string {
	t.Helper()
	dsn := "file:test_" + t.Name() + "?mode=memory&cache=shared"
	if err := InitDB("sqlite", dsn); err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	return dsn
}

func addTestVault(t *testing.T, label, pubKey string) int {
	t.Helper()
	id, err := AddVault(model.VendorKeystone, label, pubKey, model.AlgoSecp256k1, 0)
	if err != nil {
		t.Fatalf("AddVault failed: %v", err)
	}
	return id
}

func TestInitDB_Migrations_Applied(t *testing.T) {
	dsn := newTestDB(t)

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("failed to open sql.DB for inspection: %v", err)
	}
	defer func() { _ = sqlDB.Close() }()

	for _, table := range []string{"vaults", "signing_requests", "signed_results", "audit_log", "schema_migrations"} {
		var name string
		err := sqlDB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Fatalf("expected table %s to exist after migrations: %v", table, err)
		}
	}
}

func TestVaultRegistryCRUD(t *testing.T) {
	_ = newTestDB(t)

	id := addTestVault(t, "cold-1", "aa01")

	// Duplicate label must be refused.
	if _, err := AddVault(model.VendorKeystone, "cold-1", "bb02", model.AlgoSecp256k1, 0); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for duplicate label, got %v", err)
	}

	v, err := GetVault(id)
	if err != nil {
		t.Fatalf("GetVault failed: %v", err)
	}
	if v == nil || v.Label != "cold-1" || v.Vendor != model.VendorKeystone || !v.IsActive {
		t.Fatalf("unexpected vault: %+v", v)
	}

	byLabel, err := GetVaultByLabel("cold-1")
	if err != nil {
		t.Fatalf("GetVaultByLabel failed: %v", err)
	}
	if byLabel == nil || byLabel.ID != id {
		t.Fatalf("GetVaultByLabel returned %+v, want id %d", byLabel, id)
	}

	if err := SetVaultPriority(id, 9); err != nil {
		t.Fatalf("SetVaultPriority failed: %v", err)
	}
	v, _ = GetVault(id)
	if v.Priority != 9 {
		t.Fatalf("priority not persisted, got %d", v.Priority)
	}

	if err := ToggleVaultStatus(id); err != nil {
		t.Fatalf("ToggleVaultStatus failed: %v", err)
	}
	active, err := GetActiveVaults()
	if err != nil {
		t.Fatalf("GetActiveVaults failed: %v", err)
	}
	for _, a := range active {
		if a.ID == id {
			t.Fatalf("disabled vault %d still listed as active", id)
		}
	}

	if err := DeleteVault(id); err != nil {
		t.Fatalf("DeleteVault failed: %v", err)
	}
	gone, err := GetVault(id)
	if err != nil {
		t.Fatalf("GetVault after delete failed: %v", err)
	}
	if gone != nil {
		t.Fatalf("expected nil after delete, got %+v", gone)
	}
}

func TestSelectedVaultIsSingleton(t *testing.T) {
	_ = newTestDB(t)

	id1 := addTestVault(t, "cold-1", "aa01")
	id2 := addTestVault(t, "cold-2", "bb02")

	if err := SetSelectedVault(id1); err != nil {
		t.Fatalf("SetSelectedVault failed: %v", err)
	}
	if err := SetSelectedVault(id2); err != nil {
		t.Fatalf("SetSelectedVault failed: %v", err)
	}

	selected, err := GetSelectedVault()
	if err != nil {
		t.Fatalf("GetSelectedVault failed: %v", err)
	}
	if selected == nil || selected.ID != id2 {
		t.Fatalf("expected vault %d selected, got %+v", id2, selected)
	}
}

func TestSigningRequestLifecycle(t *testing.T) {
	_ = newTestDB(t)

	vaultID := addTestVault(t, "cold-1", "aa01")

	now := time.Now().UTC().Truncate(time.Second)
	req := &model.SigningRequest{
		ID:        "11111111-2222-3333-4444-555555555555",
		VaultID:   vaultID,
		Algorithm: model.AlgoSecp256k1,
		Payload:   []byte(`{"to":"0xabc"}`),
		Digest:    "aabbcc",
		Status:    model.StatusPending,
		Note:      "payroll",
		CreatedAt: now,
		ExpiresAt: now.Add(15 * time.Minute),
	}
	if err := CreateSigningRequest(req); err != nil {
		t.Fatalf("CreateSigningRequest failed: %v", err)
	}
	if err := CreateSigningRequest(req); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for repeated request id, got %v", err)
	}

	got, err := GetSigningRequest(req.ID)
	if err != nil {
		t.Fatalf("GetSigningRequest failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetSigningRequest returned nil")
	}
	if got.Digest != req.Digest || string(got.Payload) != string(req.Payload) || got.Note != req.Note {
		t.Fatalf("request did not round-trip: %+v", got)
	}
	if got.Status != model.StatusPending {
		t.Fatalf("expected pending status, got %s", got.Status)
	}

	if err := UpdateRequestStatus(req.ID, model.StatusDelivered); err != nil {
		t.Fatalf("UpdateRequestStatus failed: %v", err)
	}
	delivered, err := GetSigningRequestsByStatus(model.StatusDelivered)
	if err != nil {
		t.Fatalf("GetSigningRequestsByStatus failed: %v", err)
	}
	if len(delivered) != 1 || delivered[0].ID != req.ID {
		t.Fatalf("expected one delivered request, got %+v", delivered)
	}

	res := &model.SignedResult{
		RequestID: req.ID,
		VaultID:   vaultID,
		PublicKey: "aa01",
		Signature: "cd02",
		Digest:    req.Digest,
		SignedAt:  now,
	}
	if _, err := SaveSignedResult(res); err != nil {
		t.Fatalf("SaveSignedResult failed: %v", err)
	}
	// A second result for the same request must be refused.
	if _, err := SaveSignedResult(res); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for second result, got %v", err)
	}

	stored, err := GetSignedResult(req.ID)
	if err != nil {
		t.Fatalf("GetSignedResult failed: %v", err)
	}
	if stored == nil || stored.Signature != "cd02" {
		t.Fatalf("result did not round-trip: %+v", stored)
	}

	missing, err := GetSignedResult("no-such-request")
	if err != nil {
		t.Fatalf("GetSignedResult for unknown id failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil result for unknown request, got %+v", missing)
	}
}

func TestExpireStaleRequests(t *testing.T) {
	_ = newTestDB(t)

	vaultID := addTestVault(t, "cold-1", "aa01")
	now := time.Now().UTC()

	mkReq := func(id string, status model.RequestStatus, expires time.Time) {
		t.Helper()
		req := &model.SigningRequest{
			ID:        id,
			VaultID:   vaultID,
			Algorithm: model.AlgoSecp256k1,
			Payload:   []byte("x"),
			Digest:    "dd",
			Status:    status,
			CreatedAt: now.Add(-time.Hour),
			ExpiresAt: expires,
		}
		if err := CreateSigningRequest(req); err != nil {
			t.Fatalf("CreateSigningRequest(%s) failed: %v", id, err)
		}
		if status != model.StatusPending {
			if err := UpdateRequestStatus(id, status); err != nil {
				t.Fatalf("UpdateRequestStatus(%s) failed: %v", id, err)
			}
		}
	}

	mkReq("stale-pending", model.StatusPending, now.Add(-time.Minute))
	mkReq("stale-delivered", model.StatusDelivered, now.Add(-time.Minute))
	mkReq("fresh", model.StatusPending, now.Add(time.Hour))
	mkReq("already-verified", model.StatusVerified, now.Add(-time.Minute))

	n, err := ExpireStaleRequests(now)
	if err != nil {
		t.Fatalf("ExpireStaleRequests failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 expired requests, got %d", n)
	}

	for id, want := range map[string]model.RequestStatus{
		"stale-pending":    model.StatusExpired,
		"stale-delivered":  model.StatusExpired,
		"fresh":            model.StatusPending,
		"already-verified": model.StatusVerified,
	} {
		r, err := GetSigningRequest(id)
		if err != nil || r == nil {
			t.Fatalf("GetSigningRequest(%s) failed: %v", id, err)
		}
		if r.Status != want {
			t.Fatalf("request %s: expected status %s, got %s", id, want, r.Status)
		}
	}
}

func TestAuditTrailRecordsMutations(t *testing.T) {
	_ = newTestDB(t)

	id := addTestVault(t, "cold-1", "aa01")
	if err := SetSelectedVault(id); err != nil {
		t.Fatalf("SetSelectedVault failed: %v", err)
	}

	entries, err := GetAllAuditLogEntries()
	if err != nil {
		t.Fatalf("GetAllAuditLogEntries failed: %v", err)
	}
	actions := make(map[string]bool, len(entries))
	for _, e := range entries {
		actions[e.Action] = true
		if e.Username == "" {
			t.Fatalf("audit entry missing username: %+v", e)
		}
	}
	for _, want := range []string{"ADD_VAULT", "SELECT_VAULT"} {
		if !actions[want] {
			t.Fatalf("expected audit action %s, got %v", want, actions)
		}
	}
}
