// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

// This file contains the PostgreSQL implementation of the database store.
package db

import (
	"github.com/uptrace/bun"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
)

// PostgresStore is the PostgreSQL implementation of the Store interface.
type PostgresStore struct {
	bunStore
}

var _ Store = (*PostgresStore)(nil)

// newPostgresStore wraps an initialized *bun.DB.
func newPostgresStore(bdb *bun.DB) *PostgresStore {
	return &PostgresStore{bunStore{bun: bdb}}
}
