// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

// package sig implements the signature primitives for Vaultbridge:
// canonical request digesting, signature verification for the supported
// schemes, and key generation for bootstrapping and tests.
package sig // import "github.com/hakoryn/vaultbridge/internal/crypto/sig"

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/hakoryn/vaultbridge/internal/model"
)

// domainTag prefixes every canonical encoding so digests can never be
// confused with digests of raw transaction payloads.
const domainTag = "vb1"

var (
	// ErrBadPublicKey is returned when a public key cannot be decoded
	// or has the wrong length for the algorithm.
	ErrBadPublicKey = errors.New("malformed public key")

	// ErrBadSignature is returned when a signature cannot be decoded.
	ErrBadSignature = errors.New("malformed signature")

	// ErrVerifyFailed is returned when a well-formed signature does not
	// verify against the digest and public key.
	ErrVerifyFailed = errors.New("signature verification failed")
)

// CanonicalEncode produces the byte string that gets digested for a
// signing request. Every field is length-prefixed with a big-endian
// uint32 so no two distinct requests can collide by concatenation.
func CanonicalEncode(requestID string, vaultID int, alg model.Algorithm, payload []byte) []byte {
	var buf []byte
	buf = append(buf, domainTag...)
	appendField := func(b []byte) {
		var l [4]byte
		binary.BigEndian.PutUint32(l[:], uint32(len(b)))
		buf = append(buf, l[:]...)
		buf = append(buf, b...)
	}
	appendField([]byte(requestID))
	var vid [4]byte
	binary.BigEndian.PutUint32(vid[:], uint32(vaultID))
	appendField(vid[:])
	appendField([]byte(alg))
	appendField(payload)
	return buf
}

// CanonicalDigest returns the sha256 digest of the canonical encoding.
func CanonicalDigest(requestID string, vaultID int, alg model.Algorithm, payload []byte) [32]byte {
	return sha256.Sum256(CanonicalEncode(requestID, vaultID, alg, payload))
}

// DigestHex is CanonicalDigest rendered as lowercase hex, the form the
// database and the wire envelopes carry.
func DigestHex(requestID string, vaultID int, alg model.Algorithm, payload []byte) string {
	d := CanonicalDigest(requestID, vaultID, alg, payload)
	return hex.EncodeToString(d[:])
}

// Verify checks sigHex over digestHex with pubKeyHex under the given
// algorithm. It distinguishes malformed inputs from honest mismatches.
func Verify(alg model.Algorithm, pubKeyHex, digestHex, sigHex string) error {
	digest, err := hex.DecodeString(digestHex)
	if err != nil || len(digest) != sha256.Size {
		return fmt.Errorf("%w: digest must be %d hex-encoded bytes", ErrBadSignature, sha256.Size)
	}
	pub, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadPublicKey, err)
	}
	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	switch alg {
	case model.AlgoEd25519:
		if len(pub) != ed25519.PublicKeySize {
			return fmt.Errorf("%w: ed25519 public key must be %d bytes, got %d", ErrBadPublicKey, ed25519.PublicKeySize, len(pub))
		}
		if len(sigBytes) != ed25519.SignatureSize {
			return fmt.Errorf("%w: ed25519 signature must be %d bytes, got %d", ErrBadSignature, ed25519.SignatureSize, len(sigBytes))
		}
		if !ed25519.Verify(ed25519.PublicKey(pub), digest, sigBytes) {
			return ErrVerifyFailed
		}
		return nil
	case model.AlgoSecp256k1:
		pubKey, err := btcec.ParsePubKey(pub)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadPublicKey, err)
		}
		sig, err := parseSecpSignature(sigBytes)
		if err != nil {
			return err
		}
		if !sig.Verify(digest, pubKey) {
			return ErrVerifyFailed
		}
		return nil
	}
	return fmt.Errorf("unsupported algorithm: %q", alg)
}

// parseSecpSignature accepts both secp256k1 signature encodings devices
// emit: DER, and the compact form, either raw 64-byte r||s or the
// 65-byte recovery-flagged layout (header byte, then r||s).
func parseSecpSignature(sigBytes []byte) (*btcecdsa.Signature, error) {
	if sig, err := btcecdsa.ParseDERSignature(sigBytes); err == nil {
		return sig, nil
	}

	raw := sigBytes
	switch len(raw) {
	case 65:
		// The recovery header is only needed to recover the public key;
		// plain verification ignores it.
		raw = raw[1:]
	case 64:
	default:
		return nil, fmt.Errorf("%w: secp256k1 signature must be DER or 64/65-byte compact, got %d bytes", ErrBadSignature, len(sigBytes))
	}

	var r, s btcec.ModNScalar
	if overflow := r.SetByteSlice(raw[:32]); overflow || r.IsZero() {
		return nil, fmt.Errorf("%w: compact signature r out of range", ErrBadSignature)
	}
	if overflow := s.SetByteSlice(raw[32:]); overflow || s.IsZero() {
		return nil, fmt.Errorf("%w: compact signature s out of range", ErrBadSignature)
	}
	return btcecdsa.NewSignature(&r, &s), nil
}

// Sign produces a signature over digestHex with privKeyHex. Vaults do
// this on-device in production; Vaultbridge uses it for the simulator
// and for tests.
func Sign(alg model.Algorithm, privKeyHex, digestHex string) (string, error) {
	digest, err := hex.DecodeString(digestHex)
	if err != nil || len(digest) != sha256.Size {
		return "", fmt.Errorf("digest must be %d hex-encoded bytes", sha256.Size)
	}
	priv, err := hex.DecodeString(privKeyHex)
	if err != nil {
		return "", fmt.Errorf("malformed private key: %w", err)
	}

	switch alg {
	case model.AlgoEd25519:
		if len(priv) != ed25519.PrivateKeySize {
			return "", fmt.Errorf("ed25519 private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
		}
		return hex.EncodeToString(ed25519.Sign(ed25519.PrivateKey(priv), digest)), nil
	case model.AlgoSecp256k1:
		privKey, _ := btcec.PrivKeyFromBytes(priv)
		sig := btcecdsa.Sign(privKey, digest)
		return hex.EncodeToString(sig.Serialize()), nil
	}
	return "", fmt.Errorf("unsupported algorithm: %q", alg)
}

// GenerateKeypair creates a fresh keypair for the given algorithm and
// returns both halves as lowercase hex.
func GenerateKeypair(alg model.Algorithm) (pubHex, privHex string, err error) {
	switch alg {
	case model.AlgoEd25519:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return "", "", fmt.Errorf("failed to generate ed25519 key: %w", err)
		}
		return hex.EncodeToString(pub), hex.EncodeToString(priv), nil
	case model.AlgoSecp256k1:
		priv, err := btcec.NewPrivateKey()
		if err != nil {
			return "", "", fmt.Errorf("failed to generate secp256k1 key: %w", err)
		}
		return hex.EncodeToString(priv.PubKey().SerializeCompressed()),
			hex.EncodeToString(priv.Serialize()), nil
	}
	return "", "", fmt.Errorf("unsupported algorithm: %q", alg)
}
