// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"image"
	"sync"

	"github.com/periscope-project/periscope/snapshot"
	"github.com/periscope-project/periscope/zone"
)

// MemoryTarget is an in-process RenderTarget for tests. It records
// every draw call so tests can assert on what reached the surface
// without a terminal attached.
type MemoryTarget struct {
	mu     sync.Mutex
	bounds snapshot.Size
	images []image.Image
	zones  [][]zone.Zone
	active []*zone.Zone
	clears int

	// BlockDraw, when non-nil, turns DrawImage into a gate: the
	// call sends one value to announce it started, then blocks
	// until it receives one. Tests use it to hold a render in
	// flight while more frames arrive.
	BlockDraw chan struct{}
}

// NewMemoryTarget creates a MemoryTarget with the given bounds.
func NewMemoryTarget(bounds snapshot.Size) *MemoryTarget {
	return &MemoryTarget{bounds: bounds}
}

// Bounds implements RenderTarget.
func (t *MemoryTarget) Bounds() snapshot.Size {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bounds
}

// SetBounds changes the reported bounds, simulating a resize.
func (t *MemoryTarget) SetBounds(bounds snapshot.Size) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bounds = bounds
}

// DrawImage implements RenderTarget.
func (t *MemoryTarget) DrawImage(img image.Image) {
	if t.BlockDraw != nil {
		t.BlockDraw <- struct{}{}
		<-t.BlockDraw
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.images = append(t.images, img)
}

// DrawHitRegions implements RenderTarget.
func (t *MemoryTarget) DrawHitRegions(zones []zone.Zone, active *zone.Zone) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.zones = append(t.zones, append([]zone.Zone(nil), zones...))
	t.active = append(t.active, active)
}

// Clear implements RenderTarget.
func (t *MemoryTarget) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clears++
	t.images = nil
	t.zones = nil
	t.active = nil
}

// Images returns the drawn images in order.
func (t *MemoryTarget) Images() []image.Image {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]image.Image(nil), t.images...)
}

// LastRegions returns the most recently drawn hit regions and active
// zone marker.
func (t *MemoryTarget) LastRegions() ([]zone.Zone, *zone.Zone, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.zones) == 0 {
		return nil, nil, false
	}
	return t.zones[len(t.zones)-1], t.active[len(t.active)-1], true
}
