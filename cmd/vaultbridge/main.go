// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the command-line interface (CLI) for the Vaultbridge
// application using the Cobra library. It defines the root command,
// subcommands (like sign, ingest, verify), flags, and the main entry
// point for execution.

package main

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/hakoryn/vaultbridge/internal/config"
	"github.com/hakoryn/vaultbridge/internal/crypto/sig"
	"github.com/hakoryn/vaultbridge/internal/db"
	"github.com/hakoryn/vaultbridge/internal/i18n"
	"github.com/hakoryn/vaultbridge/internal/logging"
	"github.com/hakoryn/vaultbridge/internal/model"
	"github.com/hakoryn/vaultbridge/internal/qr"
	"github.com/hakoryn/vaultbridge/internal/state"
	"github.com/hakoryn/vaultbridge/internal/tui"
	"github.com/hakoryn/vaultbridge/internal/vault"

	// Vendor drivers register themselves on import.
	_ "github.com/hakoryn/vaultbridge/internal/vault/ellipal"
	_ "github.com/hakoryn/vaultbridge/internal/vault/keystone"
	_ "github.com/hakoryn/vaultbridge/internal/vault/trezor"
)

var version = "dev" // this will be set by the linker
var cfgFile string

// main is the entry point of the application.
func main() {
	if err := rootCmd.Execute(); err != nil {
		// The error is already printed by Cobra on failure.
		os.Exit(1)
	}
}

var rootCmd *cobra.Command

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd = newRootCmd()

	// Set defaults in viper. These are used if not set in the config file or by flags.
	for key, value := range config.Defaults() {
		viper.SetDefault(key, value)
	}
}

// newRootCmd creates and configures a new root cobra command.
// This function is used to create the main application command as well as
// fresh instances for isolated testing.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vaultbridge",
		Short: "Vaultbridge is an air-gap bridge to hardware signing vaults.",
		Long: `Vaultbridge manages a registry of hardware signing devices (vaults),
selects the right vault for a job, carries transaction signing requests
to the device as QR codes, and validates the signed response round-trip.
A database is the source of truth for vaults, requests and results.

Running without a subcommand will launch the interactive TUI.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Initialize i18n and the database for all commands.
			// Viper has already read the config by this point.
			i18n.Init(viper.GetString("language"))
			logging.SetDebug(viper.GetBool("debug"))
			db.SetDebug(viper.GetBool("debug"))
			dbType := viper.GetString("database.type")
			dsn := viper.GetString("database.dsn")
			if err := db.InitDB(dbType, dsn); err != nil {
				return errors.New(i18n.T("config.error_init_db", err))
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			// The database is already initialized by PersistentPreRunE.
			tui.Run()
		},
	}

	// Add subcommands to the newly created root command.
	cmd.AddCommand(newVaultCmd())
	cmd.AddCommand(selectCmd)
	cmd.AddCommand(signCmd)
	cmd.AddCommand(ingestCmd)
	cmd.AddCommand(verifyCmd)
	cmd.AddCommand(requestsCmd)
	cmd.AddCommand(auditCmd)
	cmd.AddCommand(expireCmd)
	cmd.AddCommand(simulateCmd)
	cmd.AddCommand(maintenanceCmd)

	// Set version
	cmd.Version = version

	// Define flags
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is vaultbridge.yaml in the user config dir or the current dir)")
	cmd.PersistentFlags().String("db-type", "sqlite", "Database type (e.g., sqlite, postgres, mysql)")
	cmd.PersistentFlags().String("db-dsn", "./vaultbridge.db", "Database connection string (DSN)")
	cmd.PersistentFlags().String("lang", "en", `UI language ("en", "de")`)
	cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	// Bind flags to viper
	_ = viper.BindPFlag("database.type", cmd.PersistentFlags().Lookup("db-type"))
	_ = viper.BindPFlag("database.dsn", cmd.PersistentFlags().Lookup("db-dsn"))
	_ = viper.BindPFlag("language", cmd.PersistentFlags().Lookup("lang"))
	_ = viper.BindPFlag("debug", cmd.PersistentFlags().Lookup("debug"))

	return cmd
}

// initConfig reads in a configuration file and environment variables.
// It uses Viper to search for a config file in the standard locations.
// If no config file is found, a default one is written to make
// configuration discoverable for the user.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if userDir, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(userDir + "/vaultbridge")
		}
		viper.AddConfigPath("/etc/vaultbridge")
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("vaultbridge")
	}

	viper.SetEnvPrefix("VAULTBRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
			// Write the defaults to the user config location so the
			// configuration is discoverable. If writing fails (e.g. due
			// to permissions), the app simply runs with the in-memory
			// defaults.
			var c config.Config
			c.Database.Type = viper.GetString("database.type")
			c.Database.DSN = viper.GetString("database.dsn")
			c.Language = viper.GetString("language")
			c.Debug = viper.GetBool("debug")
			c.Signing.Expiry = viper.GetString("signing.expiry")
			if err := config.WriteConfigFile(&c, false); err == nil {
				fmt.Println(i18n.T("config.created_default"))
			}
		}
	}
}

// signCmd represents the 'sign' command. It builds a signing request for
// the selected vault, encodes it in the vault's QR dialect, and renders
// the frames for the device to scan.
var signCmd = &cobra.Command{
	Use:   "sign <payload-file>",
	Short: "Create a signing request and render it as QR frames",
	Long: `Reads a transaction payload from a file, builds a signing request against
the selected vault (or the one named with --vault), encodes it in the
vault's QR dialect, and renders the frames to the terminal or to PNG files.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		payload, err := os.ReadFile(args[0])
		if err != nil {
			log.Fatal(i18n.T("sign.error_read_payload", err))
		}

		profile, err := resolveVault(cmd)
		if err != nil {
			log.Fatalf("%v", err)
		}

		driver, err := vault.Get(profile.Vendor)
		if err != nil {
			log.Fatal(i18n.T("sign.error_no_driver", profile.Vendor, err))
		}

		expiry := viper.GetDuration("signing.expiry")
		if flagExpiry, _ := cmd.Flags().GetDuration("expiry"); flagExpiry > 0 {
			expiry = flagExpiry
		}
		if expiry <= 0 {
			expiry = 15 * time.Minute
		}

		note, _ := cmd.Flags().GetString("note")
		req := newSigningRequest(profile, payload, note, expiry)

		if err := db.CreateSigningRequest(req); err != nil {
			log.Fatal(i18n.T("sign.error_save_request", err))
		}

		envelope, err := driver.EncodeRequest(req)
		if err != nil {
			log.Fatal(i18n.T("sign.error_encode", err))
		}

		frames, err := buildFrames(cmd, []byte(envelope), driver.Capabilities().MaxFrameLen)
		if err != nil {
			log.Fatal(i18n.T("sign.error_frames", err))
		}

		if outDir, _ := cmd.Flags().GetString("out"); outDir != "" {
			paths, err := qr.WritePNGFrames(frames, outDir, req.ID[:8])
			if err != nil {
				log.Fatal(i18n.T("sign.error_render", err))
			}
			fmt.Println(i18n.T("sign.wrote_pngs", len(paths), outDir))
		} else {
			for i, f := range frames {
				art, err := qr.TerminalString(f)
				if err != nil {
					log.Fatal(i18n.T("sign.error_render", err))
				}
				fmt.Printf("%s\n%s\n", i18n.T("sign.frame_header", i+1, len(frames)), art)
			}
		}

		if doCopy, _ := cmd.Flags().GetBool("copy"); doCopy {
			if err := clipboard.WriteAll(strings.Join(frames, "\n")); err != nil {
				logging.Warnf("clipboard copy failed: %v", err)
			} else {
				fmt.Println(i18n.T("sign.copied_clipboard"))
			}
		}

		if err := db.UpdateRequestStatus(req.ID, model.StatusDelivered); err != nil {
			log.Fatal(i18n.T("sign.error_update_status", err))
		}
		_ = db.LogAction("SIGN_REQUEST_DELIVERED", fmt.Sprintf("request: %s, vault: %s, frames: %d", req.ID, profile, len(frames)))

		fmt.Println(i18n.T("sign.done", req.ID, profile.String()))
	},
}

// newSigningRequest builds a pending request for a vault, stamping the
// canonical digest that the round-trip validator will check against.
func newSigningRequest(profile *model.VaultProfile, payload []byte, note string, expiry time.Duration) *model.SigningRequest {
	now := time.Now().UTC()
	req := &model.SigningRequest{
		ID:        uuid.NewString(),
		VaultID:   profile.ID,
		Algorithm: profile.Algorithm,
		Payload:   payload,
		Status:    model.StatusPending,
		Note:      note,
		CreatedAt: now,
		ExpiresAt: now.Add(expiry),
	}
	req.Digest = sig.DigestHex(req.ID, req.VaultID, req.Algorithm, req.Payload)
	return req
}

// buildFrames seals the envelope when --seal is set and splits it into
// QR frames within the device's frame budget.
func buildFrames(cmd *cobra.Command, envelope []byte, maxFrameLen int) ([]string, error) {
	doSeal, _ := cmd.Flags().GetBool("seal")
	if !doSeal {
		return qr.Split(envelope, maxFrameLen)
	}

	pass := state.PassphraseCache.Get()
	if pass == nil {
		var err error
		pass, err = promptPassphrase(i18n.T("sign.passphrase_prompt"))
		if err != nil {
			return nil, err
		}
		state.PassphraseCache.Set(pass)
	}
	defer func() {
		for i := range pass {
			pass[i] = 0
		}
	}()

	sealed, err := sig.Seal(envelope, pass)
	if err != nil {
		return nil, err
	}
	return qr.SplitSealed(sealed, maxFrameLen)
}

// promptPassphrase reads a passphrase without echo when stdin is a
// terminal, falling back to a plain line read otherwise (tests, pipes).
func promptPassphrase(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		pass, err := term.ReadPassword(fd)
		fmt.Println()
		return pass, err
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

// ingestCmd represents the 'ingest' command. It reassembles scanned
// response frames, decodes them, runs round-trip validation, and stores
// the result.
var ingestCmd = &cobra.Command{
	Use:   "ingest [frame-file...]",
	Short: "Ingest scanned response frames and validate the round trip",
	Long: `Reads scanned response frames from the given files (one or more frames per
file, one frame per line) or from stdin when no files are given, decodes the
response in whichever vendor dialect it is in, validates the signing round
trip, and stores the result.`,
	Run: func(cmd *cobra.Command, args []string) {
		frames, err := collectFrames(args)
		if err != nil {
			log.Fatal(i18n.T("ingest.error_read_frames", err))
		}
		if len(frames) == 0 {
			log.Fatal(i18n.T("ingest.error_no_frames"))
		}

		reasm := qr.NewReassembler()
		for _, f := range frames {
			if err := reasm.Add(f); err != nil {
				log.Fatal(i18n.T("ingest.error_bad_frame", err))
			}
		}
		if !reasm.Complete() {
			log.Fatal(i18n.T("ingest.error_missing_frames", formatInts(reasm.Missing())))
		}
		payload, sealed, err := reasm.Payload()
		if err != nil {
			log.Fatal(i18n.T("ingest.error_reassemble", err))
		}
		if sealed {
			pass := state.PassphraseCache.Get()
			if pass == nil {
				pass, err = promptPassphrase(i18n.T("ingest.passphrase_prompt"))
				if err != nil {
					log.Fatal(i18n.T("ingest.error_passphrase", err))
				}
			}
			payload, err = sig.Open(payload, pass)
			for i := range pass {
				pass[i] = 0
			}
			if err != nil {
				log.Fatal(i18n.T("ingest.error_unseal", err))
			}
		}

		result, _, err := vault.DecodeAny(string(payload))
		if err != nil {
			log.Fatal(i18n.T("ingest.error_decode", err))
		}

		outcome, err := ingestResult(result)
		if err != nil {
			log.Fatalf("%v", err)
		}
		fmt.Println(outcome)
	},
}

// ingestResult persists and validates a decoded response. It is shared
// by the CLI flow and exercised directly in tests.
func ingestResult(result *model.SignedResult) (string, error) {
	req, err := db.GetSigningRequest(result.RequestID)
	if err != nil {
		return "", errors.New(i18n.T("ingest.error_load_request", err))
	}
	if req == nil {
		return "", errors.New(i18n.T("ingest.error_unknown_request", result.RequestID))
	}
	if req.Status.IsTerminal() {
		return "", errors.New(i18n.T("ingest.error_request_closed", req.ID, req.Status))
	}

	if result.SignedAt.IsZero() {
		result.SignedAt = time.Now().UTC()
	}
	if _, err := db.SaveSignedResult(result); err != nil {
		if err == db.ErrDuplicate {
			return "", errors.New(i18n.T("ingest.error_duplicate_result", req.ID))
		}
		return "", errors.New(i18n.T("ingest.error_save_result", err))
	}
	if err := db.UpdateRequestStatus(req.ID, model.StatusSigned); err != nil {
		return "", errors.New(i18n.T("ingest.error_update_status", err))
	}

	if err := validateRoundTrip(req, result); err != nil {
		_ = db.UpdateRequestStatus(req.ID, model.StatusRejected)
		_ = db.LogAction("ROUNDTRIP_REJECTED", fmt.Sprintf("request: %s, reason: %v", req.ID, err))
		return "", errors.New(i18n.T("ingest.rejected", req.ID, err))
	}

	if err := db.UpdateRequestStatus(req.ID, model.StatusVerified); err != nil {
		return "", errors.New(i18n.T("ingest.error_update_status", err))
	}
	_ = db.LogAction("ROUNDTRIP_VERIFIED", fmt.Sprintf("request: %s, vault_id: %d", req.ID, req.VaultID))
	return i18n.T("ingest.verified", req.ID), nil
}

// collectFrames gathers frame strings from files or stdin.
func collectFrames(paths []string) ([]string, error) {
	var frames []string
	appendLines := func(data string) {
		for _, line := range strings.Split(data, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				frames = append(frames, line)
			}
		}
	}

	if len(paths) == 0 {
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			appendLines(scanner.Text())
		}
		return frames, scanner.Err()
	}

	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		appendLines(string(data))
	}
	return frames, nil
}

// formatInts renders a list of frame numbers for error messages.
func formatInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return strings.Join(parts, ", ")
}

func init() {
	signCmd.Flags().String("vault", "", "Label of the vault to sign with (default: the selected vault)")
	signCmd.Flags().String("out", "", "Directory to write PNG frames into (default: render to terminal)")
	signCmd.Flags().Bool("copy", false, "Copy the raw frame text to the clipboard")
	signCmd.Flags().Bool("seal", false, "Seal the QR payload with a passphrase")
	signCmd.Flags().String("note", "", "Free-form note stored with the request")
	signCmd.Flags().Duration("expiry", 0, "Override how long the request stays open")
}
