// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

package zone

import "github.com/periscope-project/periscope/snapshot"

// Mapper rescales zones from snapshot-space to the rendered surface's
// coordinate space. It must be fed the rendered dimensions once the
// image has actually been laid out, and again whenever the surface is
// resized. Until then (or when fed zero dimensions) it keeps the
// previously mapped positions intact — a defensive no-op, not an
// error.
type Mapper struct {
	native   snapshot.Size
	rendered snapshot.Size
	zones    []Zone // snapshot-space, document order
	mapped   []Zone // rendered-space, same order
}

// NewMapper creates a Mapper for a snapshot with the given native
// viewport.
func NewMapper(native snapshot.Size) *Mapper {
	return &Mapper{native: native}
}

// SetNative replaces the native viewport (a new snapshot may change
// resolution) and remaps the cached zones.
func (m *Mapper) SetNative(native snapshot.Size) {
	m.native = native
	m.remap()
}

// SetZones replaces the cached zone list and remaps it against the
// current rendered dimensions.
func (m *Mapper) SetZones(zones []Zone) {
	m.zones = zones
	m.remap()
}

// SetRenderedSize records the rendered surface's actual dimensions
// and remaps the cached zones. Zero dimensions mean layout has not
// happened yet; the mapper leaves prior positions untouched.
func (m *Mapper) SetRenderedSize(rendered snapshot.Size) {
	if rendered.Zero() {
		return
	}
	m.rendered = rendered
	m.remap()
}

// ScaleX returns renderedWidth / nativeWidth, or 1 when the rendered
// size is not yet known.
func (m *Mapper) ScaleX() float64 {
	if m.rendered.Zero() || m.native.Zero() {
		return 1
	}
	return float64(m.rendered.Width) / float64(m.native.Width)
}

// ScaleY returns renderedHeight / nativeHeight, or 1 when the
// rendered size is not yet known.
func (m *Mapper) ScaleY() float64 {
	if m.rendered.Zero() || m.native.Zero() {
		return 1
	}
	return float64(m.rendered.Height) / float64(m.native.Height)
}

// Mapped returns the zones in rendered-space coordinates, in the same
// document order they were extracted in.
func (m *Mapper) Mapped() []Zone { return m.mapped }

// ZoneAt hit-tests a point in rendered-space coordinates and returns
// the matching zone in snapshot-space (the shape commands are
// dispatched with). When zones nest, the last match wins: children
// follow parents in document order, so the deepest element takes the
// click.
func (m *Mapper) ZoneAt(x, y float64) (Zone, bool) {
	for i := len(m.mapped) - 1; i >= 0; i-- {
		if m.mapped[i].Bounds.Contains(x, y) {
			return m.zones[i], true
		}
	}
	return Zone{}, false
}

func (m *Mapper) remap() {
	scaleX, scaleY := m.ScaleX(), m.ScaleY()
	m.mapped = make([]Zone, len(m.zones))
	for i, z := range m.zones {
		z.Bounds = ScaleRect(z.Bounds, scaleX, scaleY)
		m.mapped[i] = z
	}
}

// ScaleRect multiplies a rectangle by independent horizontal and
// vertical scale factors. Purely multiplicative: no clipping, no
// rounding.
func ScaleRect(r snapshot.Rect, scaleX, scaleY float64) snapshot.Rect {
	return snapshot.Rect{
		X:      r.X * scaleX,
		Y:      r.Y * scaleY,
		Width:  r.Width * scaleX,
		Height: r.Height * scaleY,
	}
}
