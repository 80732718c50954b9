// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

package vault

import (
	"errors"

	"github.com/hakoryn/vaultbridge/internal/model"
)

// ErrNoVaultMatches is returned when no registered profile satisfies the
// user's preferences.
var ErrNoVaultMatches = errors.New("no vault matches the given preferences")

// Scoring weights. A vendor the user asked for by name outranks every
// soft criterion combined.
const (
	scoreVendorMatch = 100
	scoreAnimated    = 10
	scoreFrameFit    = 5
)

// Select picks the best vault profile for the given preferences.
//
// Hard requirements: the profile is active, a driver exists for its
// vendor, the driver supports the requested algorithm, the profile's key
// algorithm matches, and any pinned vendor / animation / frame-length /
// priority constraints hold. Among the qualifiers the highest score wins;
// ties break on profile priority, then on lowest ID so the result is
// deterministic for fixed inputs.
func Select(profiles []model.VaultProfile, prefs model.Preferences) (*model.VaultProfile, error) {
	var best *model.VaultProfile
	bestScore := -1

	for i := range profiles {
		p := &profiles[i]
		if !p.IsActive {
			continue
		}
		if p.Priority < prefs.MinPriority {
			continue
		}
		if prefs.Vendor != "" && p.Vendor != prefs.Vendor {
			continue
		}
		if prefs.Algorithm != "" && p.Algorithm != prefs.Algorithm {
			continue
		}

		d, err := Get(p.Vendor)
		if err != nil {
			continue // profile for a vendor this build doesn't speak
		}
		caps := d.Capabilities()
		if prefs.Algorithm != "" && !caps.SupportsAlgorithm(prefs.Algorithm) {
			continue
		}
		if prefs.RequireAnimated && !caps.SupportsAnimated {
			continue
		}
		if prefs.MaxFrameLen > 0 && caps.MaxFrameLen > 0 && caps.MaxFrameLen > prefs.MaxFrameLen {
			continue
		}

		score := 0
		if prefs.Vendor != "" && p.Vendor == prefs.Vendor {
			score += scoreVendorMatch
		}
		if caps.SupportsAnimated {
			score += scoreAnimated
		}
		if prefs.MaxFrameLen > 0 && caps.MaxFrameLen <= prefs.MaxFrameLen {
			score += scoreFrameFit
		}

		if best == nil ||
			score > bestScore ||
			(score == bestScore && (p.Priority > best.Priority ||
				(p.Priority == best.Priority && p.ID < best.ID))) {
			best = p
			bestScore = score
		}
	}

	if best == nil {
		return nil, ErrNoVaultMatches
	}
	return best, nil
}
