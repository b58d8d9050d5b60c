// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/periscope-project/periscope/snapshot"
	"github.com/periscope-project/periscope/zone"
)

// Zone border colors by element type. The active zone overrides its
// type color so the typing target is unmistakable.
var (
	editorBorder   = lipgloss.Color("39")  // blue
	chatBorder     = lipgloss.Color("135") // purple
	terminalBorder = lipgloss.Color("71")  // green
	inputBorder    = lipgloss.Color("179") // amber
	unknownBorder  = lipgloss.Color("244") // gray
	activeBorder   = lipgloss.Color("203") // bright red
)

// TerminalTarget renders frames as colored half-block cells for a
// terminal viewer. Each character cell shows two vertically stacked
// pixels (the upper-half-block glyph with independent foreground and
// background), so a cols×rows grid gives a cols×(rows·2) pixel
// surface. Zone borders are drawn over the image with box characters
// colored by element type.
//
// TerminalTarget is driven by the renderer goroutine and read by the
// TUI's View; the mutex covers that handoff.
type TerminalTarget struct {
	mu     sync.Mutex
	cols   int
	rows   int
	raster []color.RGBA // cols × rows·2, row-major
	drawn  bool
	zones  []zone.Zone
	active *zone.Zone
}

// NewTerminalTarget creates a target sized cols×rows character cells.
func NewTerminalTarget(cols, rows int) *TerminalTarget {
	target := &TerminalTarget{}
	target.Resize(cols, rows)
	return target
}

// Resize adjusts the cell grid, dropping the drawn image (the next
// frame repaints at the new size).
func (t *TerminalTarget) Resize(cols, rows int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cols < 0 {
		cols = 0
	}
	if rows < 0 {
		rows = 0
	}
	t.cols = cols
	t.rows = rows
	t.raster = make([]color.RGBA, cols*rows*2)
	t.drawn = false
}

// Bounds implements RenderTarget. The surface's pixel space is the
// half-block raster: cols wide, rows·2 tall.
func (t *TerminalTarget) Bounds() snapshot.Size {
	t.mu.Lock()
	defer t.mu.Unlock()
	return snapshot.Size{Width: t.cols, Height: t.rows * 2}
}

// DrawImage implements RenderTarget with nearest-neighbor
// downsampling into the half-block raster.
func (t *TerminalTarget) DrawImage(img image.Image) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cols == 0 || t.rows == 0 {
		return
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	rasterHeight := t.rows * 2
	for y := 0; y < rasterHeight; y++ {
		sourceY := bounds.Min.Y + y*height/rasterHeight
		for x := 0; x < t.cols; x++ {
			sourceX := bounds.Min.X + x*width/t.cols
			r, g, b, _ := img.At(sourceX, sourceY).RGBA()
			t.raster[y*t.cols+x] = color.RGBA{
				R: uint8(r >> 8),
				G: uint8(g >> 8),
				B: uint8(b >> 8),
				A: 0xff,
			}
		}
	}
	t.drawn = true
}

// DrawHitRegions implements RenderTarget. Zones arrive already mapped
// to raster coordinates.
func (t *TerminalTarget) DrawHitRegions(zones []zone.Zone, active *zone.Zone) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.zones = append([]zone.Zone(nil), zones...)
	t.active = active
}

// Clear implements RenderTarget.
func (t *TerminalTarget) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.raster {
		t.raster[i] = color.RGBA{}
	}
	t.drawn = false
	t.zones = nil
	t.active = nil
}

// View renders the current surface as styled terminal lines for the
// TUI.
func (t *TerminalTarget) View() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cols == 0 || t.rows == 0 {
		return ""
	}

	borders := t.borderCells()

	var out strings.Builder
	for row := 0; row < t.rows; row++ {
		for col := 0; col < t.cols; col++ {
			if cell, ok := borders[row*t.cols+col]; ok {
				out.WriteString(cell.style.Render(cell.glyph))
				continue
			}
			top := t.raster[(row*2)*t.cols+col]
			bottom := t.raster[(row*2+1)*t.cols+col]
			cell := lipgloss.NewStyle().
				Foreground(lipgloss.Color(hexColor(top))).
				Background(lipgloss.Color(hexColor(bottom)))
			out.WriteString(cell.Render("▀"))
		}
		if row < t.rows-1 {
			out.WriteByte('\n')
		}
	}
	return out.String()
}

// borderCell describes one overlay cell of a zone border.
type borderCell struct {
	style lipgloss.Style
	glyph string
}

// borderCells computes the zone border overlay, active zone last so
// its color wins where borders overlap.
func (t *TerminalTarget) borderCells() map[int]borderCell {
	cells := make(map[int]borderCell)

	put := func(col, row int, glyph string, tint lipgloss.Color) {
		if col < 0 || col >= t.cols || row < 0 || row >= t.rows {
			return
		}
		cells[row*t.cols+col] = borderCell{
			style: lipgloss.NewStyle().Foreground(tint),
			glyph: glyph,
		}
	}

	outline := func(z zone.Zone, tint lipgloss.Color) {
		left := int(z.Bounds.X)
		right := int(z.Bounds.X + z.Bounds.Width - 1)
		top := int(z.Bounds.Y) / 2
		bottom := int(z.Bounds.Y+z.Bounds.Height-1) / 2

		for col := left; col <= right; col++ {
			put(col, top, "─", tint)
			put(col, bottom, "─", tint)
		}
		for row := top; row <= bottom; row++ {
			put(left, row, "│", tint)
			put(right, row, "│", tint)
		}
		put(left, top, "┌", tint)
		put(right, top, "┐", tint)
		put(left, bottom, "└", tint)
		put(right, bottom, "┘", tint)
	}

	for _, z := range t.zones {
		outline(z, borderColor(z.Type))
	}
	if t.active != nil {
		outline(*t.active, activeBorder)
	}
	return cells
}

func borderColor(elementType snapshot.ElementType) lipgloss.Color {
	switch elementType {
	case snapshot.ElementEditor:
		return editorBorder
	case snapshot.ElementChat:
		return chatBorder
	case snapshot.ElementTerminal:
		return terminalBorder
	case snapshot.ElementInput:
		return inputBorder
	default:
		return unknownBorder
	}
}

func hexColor(c color.RGBA) string {
	const digits = "0123456789abcdef"
	return string([]byte{
		'#',
		digits[c.R>>4], digits[c.R&0xf],
		digits[c.G>>4], digits[c.G&0xf],
		digits[c.B>>4], digits[c.B&0xf],
	})
}
