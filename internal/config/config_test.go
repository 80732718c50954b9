// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

func TestDefaults(t *testing.T) {
	d := Defaults()
	if d["database.type"] != "sqlite" {
		t.Fatalf("default database.type = %v", d["database.type"])
	}
	if d["language"] != "en" {
		t.Fatalf("default language = %v", d["language"])
	}
	if d["signing.expiry"] != "15m" {
		t.Fatalf("default signing.expiry = %v", d["signing.expiry"])
	}
}

func TestLoadConfigDefaultsOnly(t *testing.T) {
	// Point the config search path at an empty directory so no real
	// config file on the machine leaks into the test.
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())

	c, err := LoadConfig(nil, nil)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if c.Database.Type != "sqlite" || c.Language != "en" || c.Signing.Expiry != "15m" {
		t.Fatalf("unexpected defaults: %+v", c)
	}
}

func TestLoadConfigExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	content := "database:\n  type: postgres\n  dsn: postgres://vb\nlanguage: de\ndebug: true\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	c, err := LoadConfig(nil, &path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if c.Database.Type != "postgres" || c.Database.DSN != "postgres://vb" {
		t.Fatalf("file values not applied: %+v", c)
	}
	if c.Language != "de" || !c.Debug {
		t.Fatalf("file values not applied: %+v", c)
	}
	// Keys the file omits keep their defaults.
	if c.Signing.Expiry != "15m" {
		t.Fatalf("expected default expiry, got %q", c.Signing.Expiry)
	}
}

func TestLoadConfigFlagOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(path, []byte("language: de\n"), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("language", "en", "")
	if err := cmd.Flags().Set("language", "en"); err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}

	c, err := LoadConfig(cmd, &path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if c.Language != "en" {
		t.Fatalf("flag did not override file, got %q", c.Language)
	}
}

func TestWriteConfigFileRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	var c Config
	c.Database.Type = "sqlite"
	c.Database.DSN = "./vaultbridge.db"
	c.Language = "de"
	c.Signing.Expiry = "30m"

	if err := WriteConfigFile(&c, false); err != nil {
		t.Fatalf("WriteConfigFile failed: %v", err)
	}

	loaded, err := LoadConfig(nil, nil)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Language != "de" || loaded.Signing.Expiry != "30m" {
		t.Fatalf("written config did not round-trip: %+v", loaded)
	}
}
