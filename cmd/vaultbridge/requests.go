// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

// requests.go holds the request lifecycle subcommands: re-verifying
// stored results, listing requests, dumping the audit trail, expiring
// stale requests and database maintenance.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hakoryn/vaultbridge/internal/db"
	"github.com/hakoryn/vaultbridge/internal/i18n"
	"github.com/hakoryn/vaultbridge/internal/model"
	"github.com/hakoryn/vaultbridge/internal/roundtrip"
)

// dbProfiles adapts the db package to the validator's profile lookup.
type dbProfiles struct{}

func (dbProfiles) GetVault(id int) (*model.VaultProfile, error) {
	return db.GetVault(id)
}

// validateRoundTrip runs the default hook chain over a request/result pair.
func validateRoundTrip(req *model.SigningRequest, res *model.SignedResult) error {
	v := roundtrip.NewValidator(dbProfiles{})
	return v.Validate(context.Background(), req, res)
}

// verifyOutcome is the per-request result of a re-verification run.
type verifyOutcome struct {
	RequestID string
	Err       error
}

// verifyCmd re-runs round-trip validation over stored results. With
// --all it fans out over every request that has a result.
var verifyCmd = &cobra.Command{
	Use:   "verify [request-id]",
	Short: "Re-run round-trip validation over stored results",
	Long: `Re-runs the round-trip validation hooks over a stored result, for example
after a vault's registration was corrected. With --all, every request that
carries a result is re-checked in parallel. A request whose result no longer
validates is moved to rejected; one that validates again is moved to verified.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")
		if !all && len(args) == 0 {
			log.Fatal(i18n.T("verify.error_no_target"))
		}

		var ids []string
		if all {
			requests, err := db.GetAllSigningRequests()
			if err != nil {
				log.Fatal(i18n.T("verify.error_load", err))
			}
			for _, r := range requests {
				switch r.Status {
				case model.StatusSigned, model.StatusVerified, model.StatusRejected:
					ids = append(ids, r.ID)
				}
			}
			if len(ids) == 0 {
				fmt.Println(i18n.T("verify.nothing_to_check"))
				return
			}
		} else {
			ids = args
		}

		outcomes := verifyRequests(ids)
		failed := 0
		for _, o := range outcomes {
			if o.Err != nil {
				failed++
				fmt.Println(i18n.T("verify.rejected", o.RequestID, o.Err))
			} else {
				fmt.Println(i18n.T("verify.verified", o.RequestID))
			}
		}
		if failed > 0 {
			fmt.Println(i18n.T("verify.summary_failed", len(outcomes)-failed, failed))
			os.Exit(1)
		}
		fmt.Println(i18n.T("verify.summary_ok", len(outcomes)))
	},
}

// verifyRequests re-validates the given requests concurrently and
// updates their status to match the outcome.
func verifyRequests(ids []string) []verifyOutcome {
	var wg sync.WaitGroup
	results := make(chan verifyOutcome, len(ids))

	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			results <- verifyOutcome{RequestID: id, Err: reverifyOne(id)}
		}(id)
	}

	wg.Wait()
	close(results)

	outcomes := make([]verifyOutcome, 0, len(ids))
	for o := range results {
		outcomes = append(outcomes, o)
	}
	return outcomes
}

// reverifyOne loads a request and its stored result, re-runs the hook
// chain minus the freshness check (the request may legitimately be past
// its expiry by now), and records the outcome.
func reverifyOne(id string) error {
	req, err := db.GetSigningRequest(id)
	if err != nil {
		return errors.New(i18n.T("verify.error_load", err))
	}
	if req == nil {
		return errors.New(i18n.T("verify.error_unknown_request", id))
	}
	res, err := db.GetSignedResult(id)
	if err != nil {
		return errors.New(i18n.T("verify.error_load", err))
	}
	if res == nil {
		return errors.New(i18n.T("verify.error_no_result", id))
	}

	v := roundtrip.NewValidatorWithHooks(
		roundtrip.DigestMatch{},
		roundtrip.VaultIdentity{Profiles: dbProfiles{}},
		roundtrip.SignatureValid{},
	)
	if verr := v.Validate(context.Background(), req, res); verr != nil {
		_ = db.UpdateRequestStatus(id, model.StatusRejected)
		_ = db.LogAction("REVERIFY_REJECTED", fmt.Sprintf("request: %s, reason: %v", id, verr))
		return verr
	}
	if err := db.UpdateRequestStatus(id, model.StatusVerified); err != nil {
		return err
	}
	_ = db.LogAction("REVERIFY_OK", fmt.Sprintf("request: %s", id))
	return nil
}

// requestsCmd lists signing requests, optionally filtered by status.
var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "List signing requests",
	Run: func(cmd *cobra.Command, args []string) {
		var (
			requests []model.SigningRequest
			err      error
		)
		if statusStr, _ := cmd.Flags().GetString("status"); statusStr != "" {
			requests, err = db.GetSigningRequestsByStatus(model.RequestStatus(statusStr))
		} else {
			requests, err = db.GetAllSigningRequests()
		}
		if err != nil {
			log.Fatal(i18n.T("requests.error_list", err))
		}
		if len(requests) == 0 {
			fmt.Println(i18n.T("requests.none"))
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, i18n.T("requests.list_header"))
		for _, r := range requests {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
				r.ID, r.VaultID, r.Algorithm, r.Status,
				r.CreatedAt.UTC().Format(time.RFC3339),
				r.ExpiresAt.UTC().Format(time.RFC3339))
		}
		w.Flush()
	},
}

// auditCmd dumps the audit trail.
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the audit log",
	Run: func(cmd *cobra.Command, args []string) {
		entries, err := db.GetAllAuditLogEntries()
		if err != nil {
			log.Fatal(i18n.T("audit.error_list", err))
		}
		if len(entries) == 0 {
			fmt.Println(i18n.T("audit.none"))
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, i18n.T("audit.list_header"))
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Timestamp, e.Username, e.Action, e.Details)
		}
		w.Flush()
	},
}

// expireCmd moves requests past their expiry to the expired status.
var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Expire requests that aged out without a verified result",
	Run: func(cmd *cobra.Command, args []string) {
		n, err := db.ExpireStaleRequests(time.Now().UTC())
		if err != nil {
			log.Fatal(i18n.T("expire.error", err))
		}
		fmt.Println(i18n.T("expire.done", n))
	},
}

// maintenanceCmd runs engine-specific housekeeping on the database.
var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Run database maintenance (vacuum, analyze, optimize)",
	Run: func(cmd *cobra.Command, args []string) {
		dbType := viper.GetString("database.type")
		dsn := viper.GetString("database.dsn")
		if err := db.RunDBMaintenance(dbType, dsn); err != nil {
			log.Fatal(i18n.T("maintenance.error", err))
		}
		fmt.Println(i18n.T("maintenance.done"))
	},
}

func init() {
	verifyCmd.Flags().Bool("all", false, "Re-check every request that has a stored result")
	requestsCmd.Flags().String("status", "", "Only show requests with this status (pending, delivered, signed, verified, rejected, expired)")
}
