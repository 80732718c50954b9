// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"fmt"
	"os/user"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/hakoryn/vaultbridge/internal/model"
)

// VaultModel maps the `vaults` table for Bun queries.
type VaultModel struct {
	bun.BaseModel `bun:"table:vaults"`
	ID            int       `bun:"id,pk,autoincrement"`
	Vendor        string    `bun:"vendor"`
	Label         string    `bun:"label"`
	PublicKey     string    `bun:"public_key"`
	Algorithm     string    `bun:"algorithm"`
	Priority      int       `bun:"priority"`
	IsActive      bool      `bun:"is_active"`
	IsSelected    bool      `bun:"is_selected"`
	CreatedAt     time.Time `bun:"created_at,nullzero"`
}

// SigningRequestModel maps the `signing_requests` table.
type SigningRequestModel struct {
	bun.BaseModel `bun:"table:signing_requests"`
	ID            string         `bun:"id,pk"`
	VaultID       int            `bun:"vault_id"`
	Algorithm     string         `bun:"algorithm"`
	Payload       []byte         `bun:"payload"`
	Digest        string         `bun:"digest"`
	Status        string         `bun:"status"`
	Note          sql.NullString `bun:"note"`
	CreatedAt     time.Time      `bun:"created_at"`
	ExpiresAt     time.Time      `bun:"expires_at,nullzero"`
}

// SignedResultModel maps the `signed_results` table.
type SignedResultModel struct {
	bun.BaseModel `bun:"table:signed_results"`
	ID            int       `bun:"id,pk,autoincrement"`
	RequestID     string    `bun:"request_id"`
	VaultID       int       `bun:"vault_id"`
	PublicKey     string    `bun:"public_key"`
	Signature     string    `bun:"signature"`
	Digest        string    `bun:"digest"`
	SignedAt      time.Time `bun:"signed_at"`
}

// AuditLogModel maps the `audit_log` table.
type AuditLogModel struct {
	bun.BaseModel `bun:"table:audit_log"`
	ID            int    `bun:"id,pk,autoincrement"`
	Timestamp     string `bun:"timestamp"`
	Username      string `bun:"username"`
	Action        string `bun:"action"`
	Details       string `bun:"details"`
}

// --- Mapping helpers (centralized conversions) ---

func vaultModelToModel(v VaultModel) model.VaultProfile {
	return model.VaultProfile{
		ID:        v.ID,
		Vendor:    model.VaultVendor(v.Vendor),
		Label:     v.Label,
		PublicKey: v.PublicKey,
		Algorithm: model.Algorithm(v.Algorithm),
		Priority:  v.Priority,
		IsActive:  v.IsActive,
		CreatedAt: v.CreatedAt,
	}
}

func requestModelToModel(r SigningRequestModel) model.SigningRequest {
	req := model.SigningRequest{
		ID:        r.ID,
		VaultID:   r.VaultID,
		Algorithm: model.Algorithm(r.Algorithm),
		Payload:   r.Payload,
		Digest:    r.Digest,
		Status:    model.RequestStatus(r.Status),
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
	}
	if r.Note.Valid {
		req.Note = r.Note.String
	}
	return req
}

func resultModelToModel(r SignedResultModel) model.SignedResult {
	return model.SignedResult{
		ID:        r.ID,
		RequestID: r.RequestID,
		VaultID:   r.VaultID,
		PublicKey: r.PublicKey,
		Signature: r.Signature,
		Digest:    r.Digest,
		SignedAt:  r.SignedAt,
	}
}

// --- Vault profiles ---

// AddVaultBun inserts a vault profile and returns its new ID.
func AddVaultBun(bdb *bun.DB, vendor model.VaultVendor, label, publicKey string, alg model.Algorithm, priority int) (int, error) {
	ctx := context.Background()
	m := &VaultModel{
		Vendor:    string(vendor),
		Label:     label,
		PublicKey: strings.ToLower(publicKey),
		Algorithm: string(alg),
		Priority:  priority,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := bdb.NewInsert().Model(m).Exec(ctx); err != nil {
		return 0, MapDBError(err)
	}
	return m.ID, nil
}

// GetVaultBun fetches a profile by ID; (nil, nil) when absent.
func GetVaultBun(bdb *bun.DB, id int) (*model.VaultProfile, error) {
	ctx := context.Background()
	var v VaultModel
	err := bdb.NewSelect().Model(&v).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	m := vaultModelToModel(v)
	return &m, nil
}

// GetVaultByLabelBun fetches a profile by label; (nil, nil) when absent.
func GetVaultByLabelBun(bdb *bun.DB, label string) (*model.VaultProfile, error) {
	ctx := context.Background()
	var v VaultModel
	err := bdb.NewSelect().Model(&v).Where("label = ?", label).Limit(1).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	m := vaultModelToModel(v)
	return &m, nil
}

// GetAllVaultsBun lists every profile, highest priority first.
func GetAllVaultsBun(bdb *bun.DB) ([]model.VaultProfile, error) {
	ctx := context.Background()
	var vs []VaultModel
	if err := bdb.NewSelect().Model(&vs).OrderExpr("priority DESC, id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.VaultProfile, 0, len(vs))
	for _, v := range vs {
		out = append(out, vaultModelToModel(v))
	}
	return out, nil
}

// GetActiveVaultsBun lists profiles eligible for selection.
func GetActiveVaultsBun(bdb *bun.DB) ([]model.VaultProfile, error) {
	ctx := context.Background()
	var vs []VaultModel
	if err := bdb.NewSelect().Model(&vs).Where("is_active = ?", true).OrderExpr("priority DESC, id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.VaultProfile, 0, len(vs))
	for _, v := range vs {
		out = append(out, vaultModelToModel(v))
	}
	return out, nil
}

// DeleteVaultBun removes a profile by ID.
func DeleteVaultBun(bdb *bun.DB, id int) error {
	ctx := context.Background()
	res, err := bdb.NewDelete().Model((*VaultModel)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ToggleVaultStatusBun flips a profile's active flag.
func ToggleVaultStatusBun(bdb *bun.DB, id int) error {
	ctx := context.Background()
	res, err := ExecRaw(ctx, bdb, "UPDATE vaults SET is_active = NOT is_active WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetVaultPriorityBun updates a profile's selection priority.
func SetVaultPriorityBun(bdb *bun.DB, id, priority int) error {
	ctx := context.Background()
	res, err := ExecRaw(ctx, bdb, "UPDATE vaults SET priority = ? WHERE id = ?", priority, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetSelectedVaultBun marks one vault as selected inside a transaction so
// there is never more than one selected profile.
func SetSelectedVaultBun(bdb *bun.DB, id int) error {
	ctx := context.Background()
	tx, err := bdb.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Bun requires a WHERE clause on updates; raw SQL clears the flag table-wide.
	if _, err := ExecRaw(ctx, tx, "UPDATE vaults SET is_selected = FALSE"); err != nil {
		return fmt.Errorf("failed to clear previous selection: %w", err)
	}
	res, err := ExecRaw(ctx, tx, "UPDATE vaults SET is_selected = TRUE WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to mark vault %d selected: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// GetSelectedVaultBun returns the selected profile; (nil, nil) when none.
func GetSelectedVaultBun(bdb *bun.DB) (*model.VaultProfile, error) {
	ctx := context.Background()
	var v VaultModel
	err := bdb.NewSelect().Model(&v).Where("is_selected = ?", true).Limit(1).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	m := vaultModelToModel(v)
	return &m, nil
}

// --- Signing requests ---

// CreateSigningRequestBun inserts a new request row.
func CreateSigningRequestBun(bdb *bun.DB, req *model.SigningRequest) error {
	ctx := context.Background()
	m := &SigningRequestModel{
		ID:        req.ID,
		VaultID:   req.VaultID,
		Algorithm: string(req.Algorithm),
		Payload:   req.Payload,
		Digest:    req.Digest,
		Status:    string(req.Status),
		CreatedAt: req.CreatedAt,
		ExpiresAt: req.ExpiresAt,
	}
	if req.Note != "" {
		m.Note = sql.NullString{String: req.Note, Valid: true}
	}
	_, err := bdb.NewInsert().Model(m).Exec(ctx)
	return MapDBError(err)
}

// GetSigningRequestBun fetches a request by UUID; (nil, nil) when absent.
func GetSigningRequestBun(bdb *bun.DB, id string) (*model.SigningRequest, error) {
	ctx := context.Background()
	var r SigningRequestModel
	err := bdb.NewSelect().Model(&r).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	m := requestModelToModel(r)
	return &m, nil
}

// GetSigningRequestsByStatusBun lists requests in one state, newest first.
func GetSigningRequestsByStatusBun(bdb *bun.DB, status model.RequestStatus) ([]model.SigningRequest, error) {
	ctx := context.Background()
	var rs []SigningRequestModel
	if err := bdb.NewSelect().Model(&rs).Where("status = ?", string(status)).OrderExpr("created_at DESC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.SigningRequest, 0, len(rs))
	for _, r := range rs {
		out = append(out, requestModelToModel(r))
	}
	return out, nil
}

// GetAllSigningRequestsBun lists every request, newest first.
func GetAllSigningRequestsBun(bdb *bun.DB) ([]model.SigningRequest, error) {
	ctx := context.Background()
	var rs []SigningRequestModel
	if err := bdb.NewSelect().Model(&rs).OrderExpr("created_at DESC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.SigningRequest, 0, len(rs))
	for _, r := range rs {
		out = append(out, requestModelToModel(r))
	}
	return out, nil
}

// UpdateRequestStatusBun transitions a request's lifecycle state.
func UpdateRequestStatusBun(bdb *bun.DB, id string, status model.RequestStatus) error {
	ctx := context.Background()
	res, err := ExecRaw(ctx, bdb, "UPDATE signing_requests SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpireStaleRequestsBun sweeps open requests past their expiry.
func ExpireStaleRequestsBun(bdb *bun.DB, now time.Time) (int, error) {
	ctx := context.Background()
	res, err := ExecRaw(ctx, bdb,
		"UPDATE signing_requests SET status = ? WHERE status IN (?, ?) AND expires_at IS NOT NULL AND expires_at < ?",
		string(model.StatusExpired), string(model.StatusPending), string(model.StatusDelivered), now.UTC())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// --- Signed results ---

// SaveSignedResultBun inserts a vault response and returns its ID. The
// unique constraint on request_id enforces one result per request.
func SaveSignedResultBun(bdb *bun.DB, res *model.SignedResult) (int, error) {
	ctx := context.Background()
	m := &SignedResultModel{
		RequestID: res.RequestID,
		VaultID:   res.VaultID,
		PublicKey: strings.ToLower(res.PublicKey),
		Signature: strings.ToLower(res.Signature),
		Digest:    strings.ToLower(res.Digest),
		SignedAt:  res.SignedAt.UTC(),
	}
	if _, err := bdb.NewInsert().Model(m).Exec(ctx); err != nil {
		return 0, MapDBError(err)
	}
	return m.ID, nil
}

// GetSignedResultBun fetches the result for a request; (nil, nil) when absent.
func GetSignedResultBun(bdb *bun.DB, requestID string) (*model.SignedResult, error) {
	ctx := context.Background()
	var r SignedResultModel
	err := bdb.NewSelect().Model(&r).Where("request_id = ?", requestID).Limit(1).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	m := resultModelToModel(r)
	return &m, nil
}

// --- Audit log ---

// GetAllAuditLogEntriesBun retrieves audit log entries ordered by timestamp desc.
func GetAllAuditLogEntriesBun(bdb *bun.DB) ([]model.AuditLogEntry, error) {
	ctx := context.Background()
	var am []AuditLogModel
	if err := bdb.NewSelect().Model(&am).OrderExpr("timestamp DESC, id DESC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.AuditLogEntry, 0, len(am))
	for _, a := range am {
		out = append(out, model.AuditLogEntry{ID: a.ID, Timestamp: a.Timestamp, Username: a.Username, Action: a.Action, Details: a.Details})
	}
	return out, nil
}

// LogActionBun inserts an audit log entry with the current OS user.
func LogActionBun(bdb *bun.DB, action string, details string) error {
	ctx := context.Background()
	curUser, err := user.Current()
	username := "unknown"
	if err == nil {
		if parts := strings.Split(curUser.Username, `\`); len(parts) > 1 {
			username = parts[1]
		} else {
			username = curUser.Username
		}
	}
	_, err = ExecRaw(ctx, bdb, "INSERT INTO audit_log (username, action, details) VALUES (?, ?, ?)", username, action, details)
	return MapDBError(err)
}
