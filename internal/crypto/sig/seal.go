// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

package sig

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// sealSaltSize is the random salt prepended to every sealed payload.
const sealSaltSize = 16

// hkdfInfo binds derived keys to this use so a passphrase reused
// elsewhere never yields the same key material.
const hkdfInfo = "vaultbridge-qr-seal-v1"

// ErrWrongPassphrase is returned when a sealed payload fails to open,
// which almost always means the passphrase does not match.
var ErrWrongPassphrase = errors.New("cannot open sealed payload (wrong passphrase?)")

// deriveSealKey stretches a passphrase into a chacha20poly1305 key via
// HKDF-SHA256 with the given salt.
func deriveSealKey(passphrase, salt []byte) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, passphrase, salt, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive seal key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext under a passphrase-derived key. Layout of the
// output: salt || nonce || ciphertext. The QR codec marks sealed
// payloads with its own flag byte, so Seal stays format-agnostic.
func Seal(plaintext, passphrase []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("empty passphrase")
	}
	salt := make([]byte, sealSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	key, err := deriveSealKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, sealSaltSize+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, nil), nil
}

// Open decrypts a payload produced by Seal with the same passphrase.
func Open(sealed, passphrase []byte) ([]byte, error) {
	if len(sealed) < sealSaltSize+chacha20poly1305.NonceSize {
		return nil, ErrWrongPassphrase
	}
	salt := sealed[:sealSaltSize]
	nonce := sealed[sealSaltSize : sealSaltSize+chacha20poly1305.NonceSize]
	ciphertext := sealed[sealSaltSize+chacha20poly1305.NonceSize:]

	key, err := deriveSealKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plaintext, nil
}
