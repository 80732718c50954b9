// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

// This file contains the SQLite implementation of the database store.
package db

import (
	"github.com/uptrace/bun"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SqliteStore is the SQLite implementation of the Store interface.
// SQLite is the default backend: a single file, no server.
type SqliteStore struct {
	bunStore
}

var _ Store = (*SqliteStore)(nil)

// newSqliteStore wraps an initialized *bun.DB.
func newSqliteStore(bdb *bun.DB) *SqliteStore {
	return &SqliteStore{bunStore{bun: bdb}}
}
