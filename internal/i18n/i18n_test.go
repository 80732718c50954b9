// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

package i18n

import (
	"strings"
	"testing"
)

func TestTranslationLookup(t *testing.T) {
	Init("en")
	if got := T("dashboard.title"); got != "Vaultbridge" {
		t.Fatalf("T(dashboard.title) = %q", got)
	}
}

func TestTranslationWithArgs(t *testing.T) {
	Init("en")
	got := T("vault.added", 3, "cold-1", "keystone")
	if !strings.Contains(got, "3") || !strings.Contains(got, "cold-1") {
		t.Fatalf("T(vault.added, ...) = %q", got)
	}
}

func TestMissingKeyFallsBackToID(t *testing.T) {
	Init("en")
	if got := T("no.such.key"); got != "no.such.key" {
		t.Fatalf("missing key returned %q", got)
	}
}

func TestGermanLocale(t *testing.T) {
	SetLang("de")
	defer SetLang("en")

	if got := T("menu.manage_vaults"); got != "Vaults verwalten" {
		t.Fatalf("German lookup returned %q", got)
	}
}

func TestUnknownLanguageFallsBackToEnglish(t *testing.T) {
	SetLang("fr")
	defer SetLang("en")

	if got := T("menu.manage_vaults"); got != "Manage Vaults" {
		t.Fatalf("fallback lookup returned %q", got)
	}
}
