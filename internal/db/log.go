// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import "log"

// debugEnabled gates the chatty storage-layer diagnostics (connection
// setup, migrations, maintenance). Off unless --debug is set.
var debugEnabled bool

// SetDebug toggles storage-layer debug logging.
func SetDebug(enabled bool) {
	debugEnabled = enabled
}

func dbLogf(format string, v ...any) {
	if debugEnabled {
		log.Printf(format, v...)
	}
}
