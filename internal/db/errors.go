// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"errors"
	"strings"
)

// ErrDuplicate is returned when an insert collides with an existing row:
// a reused vault label or public key, a repeated request ID, or a second
// signed result for the same request.
var ErrDuplicate = errors.New("duplicate record")

// ErrNotFound is returned when an update or delete targets a row that
// does not exist.
var ErrNotFound = errors.New("record not found")

// MapDBError folds the dialect-specific constraint violations of the
// three supported backends into the package sentinels. The match is on
// error text so this file stays free of driver imports: SQLite and
// Postgres both say "unique", Postgres also carries SQLSTATE 23505,
// MySQL reports error 1062 ("Duplicate entry").
func MapDBError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique") ||
		strings.Contains(msg, "23505") || strings.Contains(msg, "1062") {
		return ErrDuplicate
	}
	return err
}
