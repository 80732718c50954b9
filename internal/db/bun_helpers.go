// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"
)

// rawExecer abstracts over *bun.DB and *bun.Tx, both of which can run
// raw SQL via NewRaw. The selected-vault singleton update needs the
// transaction form; everything else runs on the DB directly.
type rawExecer interface {
	NewRaw(query string, args ...interface{}) *bun.RawQuery
}

// ExecRaw runs a raw SQL statement on a bun DB or transaction and
// returns the sql.Result so callers can check RowsAffected.
func ExecRaw(ctx context.Context, exec rawExecer, query string, args ...interface{}) (sql.Result, error) {
	return exec.NewRaw(query, args...).Exec(ctx)
}
