// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"strings"
	"testing"

	"github.com/hakoryn/vaultbridge/internal/db"
	"github.com/hakoryn/vaultbridge/internal/model"

	_ "modernc.org/sqlite"
)

// Error messages are fully formatted by the time they reach the caller;
// a request ID carrying printf verbs must come through literally instead
// of being reinterpreted as a format string.
func TestIngestResultErrorKeepsLiteralPercent(t *testing.T) {
	dsn := "file:test_" + t.Name() + "?mode=memory&cache=shared"
	if err := db.InitDB("sqlite", dsn); err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}

	res := &model.SignedResult{RequestID: "req-50%v-escaped"}
	_, err := ingestResult(res)
	if err == nil {
		t.Fatal("expected an error for an unknown request")
	}
	if !strings.Contains(err.Error(), "req-50%v-escaped") {
		t.Fatalf("request ID was mangled in the error message: %q", err)
	}
	if strings.Contains(err.Error(), "MISSING") || strings.Contains(err.Error(), "NOVERB") {
		t.Fatalf("error message was re-interpreted as a format string: %q", err)
	}
}
