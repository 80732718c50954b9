// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

// package qr implements the Vaultbridge QR transport: splitting an opaque
// payload into scannable text frames and reassembling scanned frames back
// into the payload. Frames carry a payload tag so frames from different
// payloads can never be mixed, and a per-frame checksum so a misread is
// detected instead of silently corrupting the payload.
//
// Frame format:
//
//	VB:<tag>:<seq>/<total>:<sum>:<data>
//
// where tag is 8 hex chars identifying the payload, seq is 1-based,
// sum is the xxhash64 of the raw chunk (16 hex chars) and data is
// base64url without padding.
package qr // import "github.com/hakoryn/vaultbridge/internal/qr"

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
)

// framePrefix marks every Vaultbridge frame.
const framePrefix = "VB"

// Payload flag bits, carried in the first byte of the flagged payload.
const (
	flagZstd   byte = 1 << 0 // remaining bytes are zstd-compressed
	flagSealed byte = 1 << 1 // remaining bytes are passphrase-sealed
)

// MinFrameLen is the smallest usable frame length: prefix, tag, counters,
// checksum and at least a few data characters.
const MinFrameLen = 64

// maxFrameTotal is the largest frame count the overhead budget reserves
// counter digits for.
const maxFrameTotal = 9999

var (
	// ErrFrameTooShort is returned by Split when maxFrameLen leaves no
	// room for payload data.
	ErrFrameTooShort = fmt.Errorf("max frame length must be at least %d", MinFrameLen)

	// ErrTooManyFrames is returned by Split when the payload would need
	// more frames than the counter field can carry.
	ErrTooManyFrames = fmt.Errorf("payload needs more than %d frames", maxFrameTotal)

	// ErrNotAFrame is returned when a scanned string is not a Vaultbridge frame.
	ErrNotAFrame = errors.New("not a vaultbridge frame")

	// ErrChecksumMismatch is returned when a frame's data does not match
	// its checksum, i.e. the scan was misread.
	ErrChecksumMismatch = errors.New("frame checksum mismatch")

	// ErrFrameMixup is returned when a frame belongs to a different
	// payload than the frames already collected.
	ErrFrameMixup = errors.New("frame belongs to a different payload")

	// ErrIncomplete is returned when asking for the payload before all
	// frames have arrived.
	ErrIncomplete = errors.New("payload incomplete")
)

var b64 = base64.RawURLEncoding

// Shared zstd coders; EncodeAll/DecodeAll on these are safe for
// concurrent use.
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// Split encodes a payload into frames no longer than maxFrameLen. The
// payload is zstd-compressed when that actually shrinks it.
func Split(payload []byte, maxFrameLen int) ([]string, error) {
	return split(payload, maxFrameLen, 0)
}

// SplitSealed is Split for payloads that were passphrase-sealed by the
// caller; the sealed flag travels with the payload so the receiving side
// knows to prompt before decoding.
func SplitSealed(payload []byte, maxFrameLen int) ([]string, error) {
	return split(payload, maxFrameLen, flagSealed)
}

func split(payload []byte, maxFrameLen int, flags byte) ([]string, error) {
	if maxFrameLen < MinFrameLen {
		return nil, ErrFrameTooShort
	}

	body := payload
	if compressed := zstdEncoder.EncodeAll(payload, nil); len(compressed) < len(payload) {
		body = compressed
		flags |= flagZstd
	}
	flagged := make([]byte, 0, len(body)+1)
	flagged = append(flagged, flags)
	flagged = append(flagged, body...)

	tag := payloadTag(flagged)

	// Everything but the data is fixed-width except the seq/total counters;
	// budget for maxFrameTotal-digit counters and refuse payloads past it.
	overhead := len(framePrefix) + 1 + len(tag) + 1 + 9 + 1 + 16 + 1
	dataLen := maxFrameLen - overhead
	rawChunk := (dataLen / 4) * 3
	if rawChunk <= 0 {
		return nil, ErrFrameTooShort
	}

	total := (len(flagged) + rawChunk - 1) / rawChunk
	if total == 0 {
		total = 1
	}
	if total > maxFrameTotal {
		return nil, fmt.Errorf("%w: %d frames of %d chars", ErrTooManyFrames, total, maxFrameLen)
	}

	frames := make([]string, 0, total)
	for i := 0; i < total; i++ {
		start := i * rawChunk
		end := start + rawChunk
		if end > len(flagged) {
			end = len(flagged)
		}
		chunk := flagged[start:end]
		frames = append(frames, fmt.Sprintf("%s:%s:%d/%d:%016x:%s",
			framePrefix, tag, i+1, total, xxhash.Sum64(chunk), b64.EncodeToString(chunk)))
	}
	return frames, nil
}

// payloadTag derives the 8-hex-char payload identifier.
func payloadTag(flagged []byte) string {
	sum := xxhash.Sum64(flagged)
	var b [8]byte
	b[0] = byte(sum >> 56)
	b[1] = byte(sum >> 48)
	b[2] = byte(sum >> 40)
	b[3] = byte(sum >> 32)
	b[4] = byte(sum >> 24)
	b[5] = byte(sum >> 16)
	b[6] = byte(sum >> 8)
	b[7] = byte(sum)
	return hex.EncodeToString(b[:4])
}

// frame is one parsed frame.
type frame struct {
	tag   string
	seq   int
	total int
	chunk []byte
}

// parseFrame validates and decodes a single scanned frame string.
func parseFrame(s string) (*frame, error) {
	s = strings.TrimSpace(s)
	parts := strings.SplitN(s, ":", 5)
	if len(parts) != 5 || parts[0] != framePrefix {
		return nil, ErrNotAFrame
	}
	tag := parts[1]
	if len(tag) != 8 {
		return nil, ErrNotAFrame
	}

	counters := strings.SplitN(parts[2], "/", 2)
	if len(counters) != 2 {
		return nil, ErrNotAFrame
	}
	seq, err := strconv.Atoi(counters[0])
	if err != nil {
		return nil, ErrNotAFrame
	}
	total, err := strconv.Atoi(counters[1])
	if err != nil {
		return nil, ErrNotAFrame
	}
	if total < 1 || seq < 1 || seq > total {
		return nil, fmt.Errorf("%w: frame %d/%d out of range", ErrNotAFrame, seq, total)
	}

	chunk, err := b64.DecodeString(parts[4])
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64 data", ErrNotAFrame)
	}
	sum, err := strconv.ParseUint(parts[3], 16, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad checksum field", ErrNotAFrame)
	}
	if xxhash.Sum64(chunk) != sum {
		return nil, ErrChecksumMismatch
	}

	return &frame{tag: tag, seq: seq, total: total, chunk: chunk}, nil
}

// Reassembler collects scanned frames, in any order, until the payload
// is complete. Duplicate frames are ignored; frames from a different
// payload or with a conflicting total are rejected.
type Reassembler struct {
	tag    string
	total  int
	chunks map[int][]byte
}

// NewReassembler returns an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{chunks: make(map[int][]byte)}
}

// Add ingests one scanned frame string.
func (r *Reassembler) Add(s string) error {
	f, err := parseFrame(s)
	if err != nil {
		return err
	}
	if r.total == 0 {
		r.tag = f.tag
		r.total = f.total
	} else if f.tag != r.tag || f.total != r.total {
		return ErrFrameMixup
	}
	// Duplicate scans are the normal case with animated QR; keep the first.
	if _, ok := r.chunks[f.seq]; !ok {
		r.chunks[f.seq] = f.chunk
	}
	return nil
}

// Complete reports whether every frame has arrived.
func (r *Reassembler) Complete() bool {
	return r.total > 0 && len(r.chunks) == r.total
}

// Missing lists the sequence numbers still outstanding, ascending.
func (r *Reassembler) Missing() []int {
	if r.total == 0 {
		return nil
	}
	var missing []int
	for i := 1; i <= r.total; i++ {
		if _, ok := r.chunks[i]; !ok {
			missing = append(missing, i)
		}
	}
	sort.Ints(missing)
	return missing
}

// Payload reconstructs the original payload. The sealed return tells the
// caller whether the bytes still need a passphrase to open.
func (r *Reassembler) Payload() (payload []byte, sealed bool, err error) {
	if !r.Complete() {
		return nil, false, ErrIncomplete
	}
	var flagged []byte
	for i := 1; i <= r.total; i++ {
		flagged = append(flagged, r.chunks[i]...)
	}
	if len(flagged) == 0 {
		return nil, false, ErrNotAFrame
	}
	flags := flagged[0]
	body := flagged[1:]

	if flags&flagZstd != 0 {
		body, err = zstdDecoder.DecodeAll(body, nil)
		if err != nil {
			return nil, false, fmt.Errorf("failed to decompress payload: %w", err)
		}
	}
	return body, flags&flagSealed != 0, nil
}
