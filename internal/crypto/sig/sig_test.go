// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

package sig

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/hakoryn/vaultbridge/internal/model"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	for _, alg := range []model.Algorithm{model.AlgoEd25519, model.AlgoSecp256k1} {
		t.Run(string(alg), func(t *testing.T) {
			pub, priv, err := GenerateKeypair(alg)
			if err != nil {
				t.Fatalf("GenerateKeypair failed: %v", err)
			}

			digest := DigestHex("req-1", 7, alg, []byte("payload"))
			signature, err := Sign(alg, priv, digest)
			if err != nil {
				t.Fatalf("Sign failed: %v", err)
			}

			if err := Verify(alg, pub, digest, signature); err != nil {
				t.Fatalf("Verify failed on a valid signature: %v", err)
			}

			// A signature over one digest must not verify another.
			otherDigest := DigestHex("req-2", 7, alg, []byte("payload"))
			if err := Verify(alg, pub, otherDigest, signature); !errors.Is(err, ErrVerifyFailed) {
				t.Fatalf("expected ErrVerifyFailed for wrong digest, got %v", err)
			}
		})
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	pub1, _, err := GenerateKeypair(model.AlgoEd25519)
	if err != nil {
		t.Fatalf("GenerateKeypair failed: %v", err)
	}
	_, priv2, err := GenerateKeypair(model.AlgoEd25519)
	if err != nil {
		t.Fatalf("GenerateKeypair failed: %v", err)
	}

	digest := DigestHex("req-1", 1, model.AlgoEd25519, []byte("payload"))
	signature, err := Sign(model.AlgoEd25519, priv2, digest)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if err := Verify(model.AlgoEd25519, pub1, digest, signature); !errors.Is(err, ErrVerifyFailed) {
		t.Fatalf("expected ErrVerifyFailed for wrong key, got %v", err)
	}
}

func TestVerifyRejectsMalformedInputs(t *testing.T) {
	digest := DigestHex("req-1", 1, model.AlgoEd25519, []byte("payload"))

	if err := Verify(model.AlgoEd25519, "not-hex", digest, "00"); !errors.Is(err, ErrBadPublicKey) {
		t.Fatalf("expected ErrBadPublicKey, got %v", err)
	}
	pub, priv, err := GenerateKeypair(model.AlgoEd25519)
	if err != nil {
		t.Fatalf("GenerateKeypair failed: %v", err)
	}
	if err := Verify(model.AlgoEd25519, pub, digest, "zz"); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature for bad hex, got %v", err)
	}
	if err := Verify(model.AlgoEd25519, pub, "deadbeef", "00"); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature for short digest, got %v", err)
	}
	signature, err := Sign(model.AlgoEd25519, priv, digest)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if err := Verify("rsa", pub, digest, signature); err == nil {
		t.Fatal("expected error for unsupported algorithm")
	}
}

func TestVerifyAcceptsCompactSecp256k1(t *testing.T) {
	pub, priv, err := GenerateKeypair(model.AlgoSecp256k1)
	if err != nil {
		t.Fatalf("GenerateKeypair failed: %v", err)
	}
	privBytes, err := hex.DecodeString(priv)
	if err != nil {
		t.Fatalf("failed to decode private key: %v", err)
	}
	privKey, _ := btcec.PrivKeyFromBytes(privBytes)

	digest := DigestHex("req-1", 7, model.AlgoSecp256k1, []byte("payload"))
	digestBytes, err := hex.DecodeString(digest)
	if err != nil {
		t.Fatalf("failed to decode digest: %v", err)
	}

	// 65-byte recovery-flagged compact form, as hardware wallets emit it.
	compact := btcecdsa.SignCompact(privKey, digestBytes, true)
	if len(compact) != 65 {
		t.Fatalf("expected 65-byte compact signature, got %d", len(compact))
	}
	if err := Verify(model.AlgoSecp256k1, pub, digest, hex.EncodeToString(compact)); err != nil {
		t.Fatalf("Verify rejected a 65-byte compact signature: %v", err)
	}

	// Raw 64-byte r||s without the recovery header.
	if err := Verify(model.AlgoSecp256k1, pub, digest, hex.EncodeToString(compact[1:])); err != nil {
		t.Fatalf("Verify rejected a 64-byte compact signature: %v", err)
	}

	// A compact signature over a different digest must still fail cleanly.
	otherDigest := DigestHex("req-2", 7, model.AlgoSecp256k1, []byte("payload"))
	if err := Verify(model.AlgoSecp256k1, pub, otherDigest, hex.EncodeToString(compact)); !errors.Is(err, ErrVerifyFailed) {
		t.Fatalf("expected ErrVerifyFailed for wrong digest, got %v", err)
	}

	// Neither DER nor compact: reject as malformed, not as a mismatch.
	if err := Verify(model.AlgoSecp256k1, pub, digest, hex.EncodeToString(compact[:40])); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature for a 40-byte blob, got %v", err)
	}

	// All-zero r is out of range even at the right length.
	zeroR := make([]byte, 64)
	copy(zeroR[32:], compact[33:])
	if err := Verify(model.AlgoSecp256k1, pub, digest, hex.EncodeToString(zeroR)); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature for zero r, got %v", err)
	}
}

func TestCanonicalDigestBindsAllFields(t *testing.T) {
	base := DigestHex("req-1", 1, model.AlgoEd25519, []byte("payload"))

	variants := []string{
		DigestHex("req-2", 1, model.AlgoEd25519, []byte("payload")),
		DigestHex("req-1", 2, model.AlgoEd25519, []byte("payload")),
		DigestHex("req-1", 1, model.AlgoSecp256k1, []byte("payload")),
		DigestHex("req-1", 1, model.AlgoEd25519, []byte("payloae")),
	}
	for i, v := range variants {
		if v == base {
			t.Fatalf("variant %d collided with the base digest", i)
		}
	}

	// Field boundaries matter: shifting a byte between fields must change
	// the digest even when the concatenation stays the same.
	a := DigestHex("ab", 1, model.AlgoEd25519, []byte("c"))
	b := DigestHex("a", 1, model.AlgoEd25519, []byte("bc"))
	if a == b {
		t.Fatal("digest does not separate field boundaries")
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	plaintext := []byte("ur:vb-sign-request/abc123")
	passphrase := []byte("correct horse battery staple")

	sealed, err := Seal(plaintext, passphrase)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if len(sealed) <= len(plaintext) {
		t.Fatal("sealed payload should carry salt, nonce and tag overhead")
	}

	got, err := Open(sealed, passphrase)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("Open returned %q, want %q", got, plaintext)
	}
}

func TestOpenRejectsWrongPassphrase(t *testing.T) {
	sealed, err := Seal([]byte("secret"), []byte("right"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if _, err := Open(sealed, []byte("wrong")); !errors.Is(err, ErrWrongPassphrase) {
		t.Fatalf("expected ErrWrongPassphrase, got %v", err)
	}
	if _, err := Open(sealed[:10], []byte("right")); !errors.Is(err, ErrWrongPassphrase) {
		t.Fatalf("expected ErrWrongPassphrase for truncated payload, got %v", err)
	}
}

func TestSealRejectsEmptyPassphrase(t *testing.T) {
	if _, err := Seal([]byte("secret"), nil); err == nil {
		t.Fatal("expected error for empty passphrase")
	}
}

func TestSealIsSalted(t *testing.T) {
	a, err := Seal([]byte("secret"), []byte("pass"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	b, err := Seal([]byte("secret"), []byte("pass"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if string(a) == string(b) {
		t.Fatal("two seals of the same plaintext must differ")
	}
}
