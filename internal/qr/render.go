// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

package qr

import (
	"fmt"
	"os"
	"path/filepath"

	qrcode "github.com/skip2/go-qrcode"
)

// pngSize is the edge length in pixels for rendered PNG frames.
const pngSize = 512

// WritePNGFrames renders each frame as a PNG under dir, named
// <base>-0001.png, <base>-0002.png, ... so an animated viewer plays
// them in order. It returns the written file paths.
func WritePNGFrames(frames []string, dir, base string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	paths := make([]string, 0, len(frames))
	for i, f := range frames {
		path := filepath.Join(dir, fmt.Sprintf("%s-%04d.png", base, i+1))
		if err := qrcode.WriteFile(f, qrcode.Medium, pngSize, path); err != nil {
			return nil, fmt.Errorf("failed to render frame %d: %w", i+1, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// TerminalString renders a single frame as a block-character QR code
// suitable for printing to a terminal.
func TerminalString(frame string) (string, error) {
	code, err := qrcode.New(frame, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to build QR code: %w", err)
	}
	return code.ToSmallString(false), nil
}
