// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"bytes"
	"fmt"
	"image"
	"log/slog"
	"sync"

	// Frame payloads from current hosts are PNG; JPEG is accepted
	// for hosts that recompress aggressively.
	_ "image/jpeg"
	_ "image/png"

	"github.com/periscope-project/periscope/lib/clock"
	"github.com/periscope-project/periscope/snapshot"
	"github.com/periscope-project/periscope/zone"
)

// Config configures a Renderer.
type Config struct {
	// Target is the drawing surface. Required.
	Target RenderTarget

	// Mapper rescales zones against the target's actual bounds.
	// Required.
	Mapper *zone.Mapper

	// Clock drives frame statistics. Nil means the real clock.
	Clock clock.Clock

	// Logger for render diagnostics. Nil means slog.Default().
	Logger *slog.Logger

	// OnError, when set, receives decode failures. The previous
	// frame stays on screen; the render loop continues either way.
	OnError func(error)
}

// frame pairs a snapshot with its extracted zones for display.
type frame struct {
	snap  *snapshot.Snapshot
	zones []zone.Zone
}

// Renderer displays snapshots on its target. Present never draws two
// frames concurrently for the same target: a frame arriving mid-render
// is queued, and a newer arrival replaces the queued one (latest-wins,
// not latest-plus-in-flight).
type Renderer struct {
	target  RenderTarget
	mapper  *zone.Mapper
	logger  *slog.Logger
	onError func(error)
	stats   *FrameStats

	mu        sync.Mutex
	rendering bool
	pending   *frame
	lastSeq   uint64
	lastHash  snapshot.Hash
	havePrior bool
	active    *zone.Zone
}

// NewRenderer creates a Renderer.
func NewRenderer(cfg Config) (*Renderer, error) {
	if cfg.Target == nil {
		return nil, fmt.Errorf("render: Target is required")
	}
	if cfg.Mapper == nil {
		return nil, fmt.Errorf("render: Mapper is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		target:  cfg.Target,
		mapper:  cfg.Mapper,
		logger:  logger,
		onError: cfg.OnError,
		stats:   NewFrameStats(cfg.Clock),
	}, nil
}

// Stats returns the renderer's frame statistics.
func (r *Renderer) Stats() *FrameStats { return r.stats }

// Present displays a snapshot with its extracted zones. When a render
// is already in flight the frame is queued, replacing any frame queued
// earlier; the in-flight render finishes and then draws only the
// newest arrival.
func (r *Renderer) Present(snap *snapshot.Snapshot, zones []zone.Zone) {
	r.stats.Record()

	r.mu.Lock()
	if r.rendering {
		// Latest wins: the previously queued frame is superseded.
		r.pending = &frame{snap: snap, zones: zones}
		r.mu.Unlock()
		return
	}
	r.rendering = true
	r.mu.Unlock()

	next := &frame{snap: snap, zones: zones}
	for next != nil {
		r.renderOne(next)

		r.mu.Lock()
		next = r.pending
		r.pending = nil
		if next == nil {
			r.rendering = false
		}
		r.mu.Unlock()
	}
}

// SetActiveZone changes which zone is highlighted as the typing
// target and redraws the hit regions. Pass nil to clear.
func (r *Renderer) SetActiveZone(active *zone.Zone) {
	r.mu.Lock()
	r.active = active
	r.mu.Unlock()

	r.target.DrawHitRegions(r.mapper.Mapped(), r.mapActive(active))
}

// Resize tells the renderer the target's bounds changed. Cached zones
// are remapped and redrawn against the new dimensions.
func (r *Renderer) Resize() {
	r.mapper.SetRenderedSize(r.target.Bounds())

	r.mu.Lock()
	active := r.active
	r.mu.Unlock()

	r.target.DrawHitRegions(r.mapper.Mapped(), r.mapActive(active))
}

// renderOne draws one frame: decode, stale/duplicate checks, image,
// hit regions. Decode failures are reported and leave the previous
// frame visible.
func (r *Renderer) renderOne(f *frame) {
	r.mu.Lock()
	if r.havePrior && f.snap.Sequence <= r.lastSeq {
		// Out-of-order arrival: an older frame never paints over a
		// newer one.
		r.mu.Unlock()
		r.logger.Debug("discarding stale frame", "sequence", f.snap.Sequence, "displayed", r.lastSeq)
		return
	}
	duplicate := r.havePrior && f.snap.ImageHash == r.lastHash
	r.mu.Unlock()

	if duplicate {
		// Same pixels as the displayed frame: skip decode and
		// redraw, but the zones may still have moved.
		r.finishFrame(f, "duplicate")
		return
	}

	img, format, err := image.Decode(bytes.NewReader(f.snap.Image))
	if err != nil {
		r.reportError(&snapshot.DecodeError{
			Reason: fmt.Sprintf("frame %d image decode", f.snap.Sequence),
			Err:    err,
		})
		return
	}
	if bounds := img.Bounds(); bounds.Dx() == 0 || bounds.Dy() == 0 {
		r.reportError(&snapshot.DecodeError{
			Reason: fmt.Sprintf("frame %d decoded to an empty %s image", f.snap.Sequence, format),
		})
		return
	}

	r.target.DrawImage(img)
	r.finishFrame(f, format)
}

// finishFrame updates the mapper with the frame's viewport and zones,
// draws the hit regions, and records the frame as displayed.
func (r *Renderer) finishFrame(f *frame, format string) {
	r.mapper.SetNative(f.snap.Viewport)
	r.mapper.SetZones(f.zones)
	r.mapper.SetRenderedSize(r.target.Bounds())

	r.mu.Lock()
	r.lastSeq = f.snap.Sequence
	r.lastHash = f.snap.ImageHash
	r.havePrior = true
	active := r.active
	r.mu.Unlock()

	r.target.DrawHitRegions(r.mapper.Mapped(), r.mapActive(active))
	r.logger.Debug("frame displayed", "sequence", f.snap.Sequence, "format", format)
}

// mapActive rescales the active zone into target coordinates.
func (r *Renderer) mapActive(active *zone.Zone) *zone.Zone {
	if active == nil {
		return nil
	}
	mapped := *active
	mapped.Bounds = zone.ScaleRect(mapped.Bounds, r.mapper.ScaleX(), r.mapper.ScaleY())
	return &mapped
}

func (r *Renderer) reportError(err error) {
	r.logger.Warn("render error", "error", err)
	if r.onError != nil {
		r.onError(err)
	}
}
