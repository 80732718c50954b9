// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

package qr

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitReassembleRoundTrip(t *testing.T) {
	payload := []byte(`{"to":"0xabc","value":"1000000000000000000"}`)

	frames, err := Split(payload, 200)
	require.NoError(t, err)
	require.NotEmpty(t, frames)

	r := NewReassembler()
	for _, f := range frames {
		require.NoError(t, r.Add(f))
	}
	require.True(t, r.Complete())

	got, sealed, err := r.Payload()
	require.NoError(t, err)
	assert.False(t, sealed)
	assert.Equal(t, payload, got)
}

func TestSplitMultiFrameOutOfOrderWithDuplicates(t *testing.T) {
	// Random data does not compress, so this forces multiple frames.
	payload := make([]byte, 2000)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	frames, err := Split(payload, 128)
	require.NoError(t, err)
	require.Greater(t, len(frames), 1)

	r := NewReassembler()
	// Feed frames back to front, each one twice, as an animated scan would.
	for i := len(frames) - 1; i >= 0; i-- {
		require.NoError(t, r.Add(frames[i]))
		require.NoError(t, r.Add(frames[i]))
	}
	require.True(t, r.Complete())

	got, sealed, err := r.Payload()
	require.NoError(t, err)
	assert.False(t, sealed)
	assert.True(t, bytes.Equal(payload, got))
}

func TestSplitRefusesPayloadsPastTheCounterBudget(t *testing.T) {
	// At the minimum frame length each frame carries 18 raw bytes, so a
	// random (incompressible) payload past 9999*18 bytes cannot fit the
	// counter field. It must be refused, not silently overflowed.
	payload := make([]byte, maxFrameTotal*18+1)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	_, err = Split(payload, MinFrameLen)
	assert.ErrorIs(t, err, ErrTooManyFrames)

	// Just under the budget still splits, and every frame fits.
	payload = payload[:maxFrameTotal*18-18]
	frames, err := Split(payload, MinFrameLen)
	require.NoError(t, err)
	for _, f := range frames {
		assert.LessOrEqual(t, len(f), MinFrameLen)
	}
}

func TestSplitCompressesRepetitivePayloads(t *testing.T) {
	payload := bytes.Repeat([]byte("vaultbridge"), 500)

	frames, err := Split(payload, 200)
	require.NoError(t, err)

	incompressible := make([]byte, len(payload))
	_, err = rand.Read(incompressible)
	require.NoError(t, err)
	rawFrames, err := Split(incompressible, 200)
	require.NoError(t, err)

	assert.Less(t, len(frames), len(rawFrames))

	r := NewReassembler()
	for _, f := range frames {
		require.NoError(t, r.Add(f))
	}
	got, _, err := r.Payload()
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, got))
}

func TestSplitSealedFlagSurvivesTransport(t *testing.T) {
	sealedBlob := []byte("not really ciphertext but opaque enough")

	frames, err := SplitSealed(sealedBlob, 200)
	require.NoError(t, err)

	r := NewReassembler()
	for _, f := range frames {
		require.NoError(t, r.Add(f))
	}
	got, sealed, err := r.Payload()
	require.NoError(t, err)
	assert.True(t, sealed)
	assert.Equal(t, sealedBlob, got)
}

func TestSplitRejectsTinyFrameBudget(t *testing.T) {
	_, err := Split([]byte("x"), MinFrameLen-1)
	assert.ErrorIs(t, err, ErrFrameTooShort)
}

func TestAddDetectsMisreadFrame(t *testing.T) {
	payload := make([]byte, 500)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	frames, err := Split(payload, 128)
	require.NoError(t, err)

	// Corrupt one character in the middle of the data field.
	f := frames[0]
	idx := strings.LastIndex(f, ":") + (len(f)-strings.LastIndex(f, ":"))/2
	corrupted := []byte(f)
	if corrupted[idx] == 'A' {
		corrupted[idx] = 'B'
	} else {
		corrupted[idx] = 'A'
	}

	r := NewReassembler()
	err = r.Add(string(corrupted))
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestAddRejectsForeignFrames(t *testing.T) {
	framesA, err := Split([]byte("payload A, long enough to matter"), 128)
	require.NoError(t, err)
	framesB, err := Split([]byte("payload B, a different one entirely"), 128)
	require.NoError(t, err)

	r := NewReassembler()
	require.NoError(t, r.Add(framesA[0]))
	assert.ErrorIs(t, r.Add(framesB[0]), ErrFrameMixup)
}

func TestAddRejectsGarbage(t *testing.T) {
	r := NewReassembler()
	assert.ErrorIs(t, r.Add("https://example.com/not-a-frame"), ErrNotAFrame)
	assert.ErrorIs(t, r.Add(""), ErrNotAFrame)
	assert.ErrorIs(t, r.Add("VB:zz:1/1:00:data"), ErrNotAFrame)
}

func TestMissingAndIncomplete(t *testing.T) {
	payload := make([]byte, 1500)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	frames, err := Split(payload, 128)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(frames), 3)

	r := NewReassembler()
	require.NoError(t, r.Add(frames[0]))
	require.NoError(t, r.Add(frames[2]))

	assert.False(t, r.Complete())
	assert.Contains(t, r.Missing(), 2)

	_, _, err = r.Payload()
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestFramesRespectLengthBudget(t *testing.T) {
	payload := make([]byte, 3000)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	for _, maxLen := range []int{64, 128, 200, 800, 2300} {
		frames, err := Split(payload, maxLen)
		require.NoError(t, err)
		for _, f := range frames {
			assert.LessOrEqual(t, len(f), maxLen, "frame exceeds budget %d", maxLen)
		}
	}
}
