// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

// Package render displays snapshots on a [RenderTarget] and keeps
// frame statistics. The renderer enforces latest-wins frame ordering:
// a frame arriving while another is being drawn replaces any queued
// frame, and stale frames are never played back over newer ones.
//
// RenderTarget abstracts the drawing surface behind image and
// hit-region primitives, so the same renderer drives the terminal
// target, the in-memory test target, or any future backend.
package render

import (
	"image"

	"github.com/periscope-project/periscope/snapshot"
	"github.com/periscope-project/periscope/zone"
)

// RenderTarget is a drawing surface for mirrored frames. Implementations
// are not required to be goroutine safe; the renderer serializes all
// calls.
type RenderTarget interface {
	// Bounds returns the surface's drawable size in pixels. A zero
	// size means layout has not happened yet; the renderer then
	// skips hit-region mapping for the frame (the mapper treats it
	// as a no-op).
	Bounds() snapshot.Size

	// DrawImage draws a decoded frame, replacing the previous one.
	// The target scales the image to its own bounds.
	DrawImage(img image.Image)

	// DrawHitRegions overlays the interactive zones, already mapped
	// to the surface's coordinate space. active, when non-nil, is
	// the zone currently capturing keystrokes and should be marked
	// distinctly.
	DrawHitRegions(zones []zone.Zone, active *zone.Zone)

	// Clear resets the surface to empty.
	Clear()
}
