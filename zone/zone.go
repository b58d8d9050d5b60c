// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

// Package zone derives the interactive regions of a snapshot and maps
// them onto the live viewport.
//
// Extraction is a pure flatten-then-classify pipeline: the element
// tree is first flattened into an indexed arena in document order,
// then classified and filtered in a second pass. The input tree is
// never annotated or mutated, so extracting twice from the same tree
// yields the same zones.
//
// The [Mapper] rescales zone rectangles between the snapshot's native
// resolution and the rendered surface's actual dimensions. Scaling is
// purely multiplicative; there is no clipping and no rounding beyond
// what the render target does at pixel boundaries.
package zone

import "github.com/periscope-project/periscope/snapshot"

// Zone is a flattened, classified interactive rectangle derived from
// an element node. Zones are recomputed whole on every new snapshot,
// never patched in place.
type Zone struct {
	// Bounds in snapshot-space coordinates.
	Bounds snapshot.Rect

	// Selector addresses the originating element on the remote side.
	Selector string

	// Type is the classified element type, never empty.
	Type snapshot.ElementType
}

// Typeable reports whether clicking this zone should enter typing
// mode. Chat zones are deliberately excluded: their text arrives via
// the direct-submit path, not per-keystroke dispatch.
func (z Zone) Typeable() bool {
	switch z.Type {
	case snapshot.ElementEditor, snapshot.ElementTerminal, snapshot.ElementInput:
		return true
	}
	return false
}
