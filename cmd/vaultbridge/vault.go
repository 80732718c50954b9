// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

// vault.go holds the vault registry subcommands: registering devices,
// listing them, toggling and prioritizing them, and picking the vault
// that signing requests go to.

package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hakoryn/vaultbridge/internal/db"
	"github.com/hakoryn/vaultbridge/internal/i18n"
	"github.com/hakoryn/vaultbridge/internal/model"
	"github.com/hakoryn/vaultbridge/internal/vault"
)

// newVaultCmd groups the vault registry subcommands.
func newVaultCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Manage the registry of hardware vaults",
	}
	cmd.AddCommand(vaultAddCmd)
	cmd.AddCommand(vaultListCmd)
	cmd.AddCommand(vaultRemoveCmd)
	cmd.AddCommand(vaultToggleCmd)
	cmd.AddCommand(vaultPreferCmd)
	return cmd
}

// vaultAddCmd registers a new hardware vault with its signing identity.
var vaultAddCmd = &cobra.Command{
	Use:   "add <vendor> <label> <public-key-hex>",
	Short: "Register a hardware vault",
	Long: `Registers a hardware vault by vendor, label and the device's signing
public key (lowercase hex). The key is captured once at registration and
round-trip validation checks every response against it.`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		vendor, err := model.ParseVendor(args[0])
		if err != nil {
			log.Fatal(i18n.T("vault.error_vendor", err))
		}
		if _, err := vault.Get(vendor); err != nil {
			log.Fatal(i18n.T("vault.error_vendor", err))
		}

		algStr, _ := cmd.Flags().GetString("algorithm")
		alg, err := model.ParseAlgorithm(algStr)
		if err != nil {
			log.Fatal(i18n.T("vault.error_algorithm", err))
		}
		driver, _ := vault.Get(vendor)
		if !driver.Capabilities().SupportsAlgorithm(alg) {
			log.Fatal(i18n.T("vault.error_algorithm", vault.ErrAlgorithmUnsupported))
		}

		priority, _ := cmd.Flags().GetInt("priority")
		id, err := db.AddVault(vendor, args[1], args[2], alg, priority)
		if err != nil {
			if err == db.ErrDuplicate {
				log.Fatal(i18n.T("vault.error_duplicate", args[1]))
			}
			log.Fatal(i18n.T("vault.error_add", err))
		}
		fmt.Println(i18n.T("vault.added", id, args[1], vendor))
	},
}

// vaultListCmd prints the vault registry as a table.
var vaultListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered vaults",
	Run: func(cmd *cobra.Command, args []string) {
		vaults, err := db.GetAllVaults()
		if err != nil {
			log.Fatal(i18n.T("vault.error_list", err))
		}
		if len(vaults) == 0 {
			fmt.Println(i18n.T("vault.none_registered"))
			return
		}

		selected, _ := db.GetSelectedVault()

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, i18n.T("vault.list_header"))
		for _, v := range vaults {
			status := i18n.T("vault.status_active")
			if !v.IsActive {
				status = i18n.T("vault.status_disabled")
			}
			marker := " "
			if selected != nil && selected.ID == v.ID {
				marker = "*"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%d\t%s\n",
				marker, v.ID, v.Label, v.Vendor, v.Algorithm, v.Priority, status)
		}
		w.Flush()
	},
}

// vaultRemoveCmd deletes a vault from the registry.
var vaultRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a vault from the registry",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			log.Fatal(i18n.T("vault.error_id", args[0]))
		}
		if err := db.DeleteVault(id); err != nil {
			log.Fatal(i18n.T("vault.error_remove", err))
		}
		fmt.Println(i18n.T("vault.removed", id))
	},
}

// vaultToggleCmd flips a vault between active and disabled.
var vaultToggleCmd = &cobra.Command{
	Use:   "toggle <id>",
	Short: "Enable or disable a vault",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			log.Fatal(i18n.T("vault.error_id", args[0]))
		}
		if err := db.ToggleVaultStatus(id); err != nil {
			log.Fatal(i18n.T("vault.error_toggle", err))
		}
		fmt.Println(i18n.T("vault.toggled", id))
	},
}

// vaultPreferCmd sets a vault's selection priority.
var vaultPreferCmd = &cobra.Command{
	Use:   "prefer <id> <priority>",
	Short: "Set a vault's selection priority (higher wins ties)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			log.Fatal(i18n.T("vault.error_id", args[0]))
		}
		priority, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatal(i18n.T("vault.error_priority", args[1]))
		}
		if err := db.SetVaultPriority(id, priority); err != nil {
			log.Fatal(i18n.T("vault.error_prefer", err))
		}
		fmt.Println(i18n.T("vault.priority_set", id, priority))
	},
}

// selectCmd scores the active vaults against the given preferences and
// persists the winner as the selected vault.
var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Pick the vault that signing requests go to",
	Long: `Scores every active vault against the given preferences and marks the
winner as the selected vault. The 'sign' command sends requests to the
selected vault unless told otherwise with --vault.`,
	Run: func(cmd *cobra.Command, args []string) {
		prefs, err := preferencesFromFlags(cmd)
		if err != nil {
			log.Fatalf("%v", err)
		}

		profiles, err := db.GetActiveVaults()
		if err != nil {
			log.Fatal(i18n.T("select.error_load", err))
		}

		chosen, err := vault.Select(profiles, prefs)
		if err != nil {
			log.Fatal(i18n.T("select.error_no_match", err))
		}

		if err := db.SetSelectedVault(chosen.ID); err != nil {
			log.Fatal(i18n.T("select.error_persist", err))
		}
		fmt.Println(i18n.T("select.done", chosen.String(), chosen.ID))
	},
}

// preferencesFromFlags translates the select command's flags into a
// Preferences value, validating vendor and algorithm names.
func preferencesFromFlags(cmd *cobra.Command) (model.Preferences, error) {
	var prefs model.Preferences

	if vendorStr, _ := cmd.Flags().GetString("vendor"); vendorStr != "" {
		vendor, err := model.ParseVendor(vendorStr)
		if err != nil {
			return prefs, errors.New(i18n.T("vault.error_vendor", err))
		}
		prefs.Vendor = vendor
	}
	if algStr, _ := cmd.Flags().GetString("algorithm"); algStr != "" {
		alg, err := model.ParseAlgorithm(algStr)
		if err != nil {
			return prefs, errors.New(i18n.T("vault.error_algorithm", err))
		}
		prefs.Algorithm = alg
	}
	prefs.RequireAnimated, _ = cmd.Flags().GetBool("animated")
	prefs.MaxFrameLen, _ = cmd.Flags().GetInt("max-frame-len")
	prefs.MinPriority, _ = cmd.Flags().GetInt("min-priority")
	return prefs, nil
}

// resolveVault returns the vault a signing request should go to: the one
// named by --vault if given, otherwise the persisted selection.
func resolveVault(cmd *cobra.Command) (*model.VaultProfile, error) {
	if label, _ := cmd.Flags().GetString("vault"); label != "" {
		profile, err := db.GetVaultByLabel(label)
		if err != nil {
			return nil, errors.New(i18n.T("sign.error_load_vault", err))
		}
		if profile == nil {
			return nil, errors.New(i18n.T("sign.error_unknown_vault", label))
		}
		if !profile.IsActive {
			return nil, errors.New(i18n.T("sign.error_vault_disabled", profile.String()))
		}
		return profile, nil
	}

	profile, err := db.GetSelectedVault()
	if err != nil {
		return nil, errors.New(i18n.T("sign.error_load_vault", err))
	}
	if profile == nil {
		return nil, errors.New(i18n.T("sign.error_no_selection"))
	}
	if !profile.IsActive {
		return nil, errors.New(i18n.T("sign.error_vault_disabled", profile.String()))
	}
	return profile, nil
}

func init() {
	vaultAddCmd.Flags().String("algorithm", string(model.AlgoSecp256k1), `Signature scheme the device signs with ("ed25519", "secp256k1")`)
	vaultAddCmd.Flags().Int("priority", 0, "Selection priority (higher wins ties)")

	selectCmd.Flags().String("vendor", "", "Only consider vaults from this vendor")
	selectCmd.Flags().String("algorithm", "", "Require this signature scheme")
	selectCmd.Flags().Bool("animated", false, "Only consider vaults that scan animated QR sequences")
	selectCmd.Flags().Int("max-frame-len", 0, "Only consider vaults whose frames fit this length")
	selectCmd.Flags().Int("min-priority", 0, "Ignore vaults below this priority")
}
