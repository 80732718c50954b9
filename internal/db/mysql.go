// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

// This file contains the MySQL implementation of the database store.
package db

import (
	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/uptrace/bun"
)

// MySQLStore is the MySQL implementation of the Store interface.
type MySQLStore struct {
	bunStore
}

var _ Store = (*MySQLStore)(nil)

// newMySQLStore wraps an initialized *bun.DB.
func newMySQLStore(bdb *bun.DB) *MySQLStore {
	return &MySQLStore{bunStore{bun: bdb}}
}
