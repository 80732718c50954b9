// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

// simulate.go plays the device side of the QR round trip. It exists so
// the full flow can be exercised end to end without hardware: scan the
// request frames, sign the digest with a provided key, and emit the
// response frames in the same vendor dialect.

package main

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/hakoryn/vaultbridge/internal/crypto/sig"
	"github.com/hakoryn/vaultbridge/internal/i18n"
	"github.com/hakoryn/vaultbridge/internal/model"
	"github.com/hakoryn/vaultbridge/internal/qr"
	"github.com/hakoryn/vaultbridge/internal/state"
	"github.com/hakoryn/vaultbridge/internal/vault"
	"github.com/hakoryn/vaultbridge/internal/vault/ellipal"
	"github.com/hakoryn/vaultbridge/internal/vault/keystone"
	"github.com/hakoryn/vaultbridge/internal/vault/trezor"
)

// decodeAnyRequest tries every vendor dialect against a request envelope.
func decodeAnyRequest(payload string) (*model.SigningRequest, model.VaultVendor, error) {
	type decoder struct {
		vendor model.VaultVendor
		fn     func(string) (*model.SigningRequest, error)
	}
	decoders := []decoder{
		{model.VendorEllipal, ellipal.DecodeRequest},
		{model.VendorKeystone, keystone.DecodeRequest},
		{model.VendorTrezor, trezor.DecodeRequest},
	}
	for _, d := range decoders {
		req, err := d.fn(payload)
		if err == nil {
			return req, d.vendor, nil
		}
		if !errors.Is(err, vault.ErrWrongDialect) {
			return nil, d.vendor, err
		}
	}
	return nil, "", vault.ErrWrongDialect
}

// encodeResponseFor renders a result in the given vendor's dialect.
func encodeResponseFor(vendor model.VaultVendor, res *model.SignedResult) (string, error) {
	switch vendor {
	case model.VendorEllipal:
		return ellipal.EncodeResponse(res)
	case model.VendorKeystone:
		return keystone.EncodeResponse(res)
	case model.VendorTrezor:
		return trezor.EncodeResponse(res)
	}
	return "", fmt.Errorf("%w: %q", vault.ErrUnknownVendor, vendor)
}

// simulateCmd acts as a hardware vault for testing: it decodes request
// frames, signs the digest with the given private key, and prints the
// response frames.
var simulateCmd = &cobra.Command{
	Use:   "simulate [frame-file...]",
	Short: "Act as a hardware vault (sign a request without a device)",
	Long: `Reads request frames from the given files or from stdin, signs the request
digest with the private key from --key, and prints the response frames in the
same vendor dialect. Intended for testing the round trip without hardware;
the key never touches the database.`,
	Run: func(cmd *cobra.Command, args []string) {
		privHex, _ := cmd.Flags().GetString("key")
		if privHex == "" {
			log.Fatal(i18n.T("simulate.error_no_key"))
		}

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

		req, vendor, err := decodeAnyRequest(string(payload))
		if err != nil {
			log.Fatal(i18n.T("simulate.error_decode", err))
		}

		signature, err := sig.Sign(req.Algorithm, privHex, req.Digest)
		if err != nil {
			log.Fatal(i18n.T("simulate.error_sign", err))
		}
		pubHex, _ := cmd.Flags().GetString("pub")
		res := &model.SignedResult{
			RequestID: req.ID,
			VaultID:   req.VaultID,
			PublicKey: pubHex,
			Signature: signature,
			Digest:    req.Digest,
			SignedAt:  time.Now().UTC(),
		}

		envelope, err := encodeResponseFor(vendor, res)
		if err != nil {
			log.Fatal(i18n.T("simulate.error_encode", err))
		}

		driver, err := vault.Get(vendor)
		if err != nil {
			log.Fatal(i18n.T("simulate.error_encode", err))
		}
		respFrames, err := qr.Split([]byte(envelope), driver.Capabilities().MaxFrameLen)
		if err != nil {
			log.Fatal(i18n.T("simulate.error_encode", err))
		}
		for _, f := range respFrames {
			fmt.Println(f)
		}
	},
}

func init() {
	simulateCmd.Flags().String("key", "", "Private key hex to sign with (required)")
	simulateCmd.Flags().String("pub", "", "Public key hex to claim in the response")
	_ = simulateCmd.MarkFlagRequired("key")
}
