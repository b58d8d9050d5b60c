// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/periscope-project/periscope/lib/clock"
	"github.com/periscope-project/periscope/snapshot"
	"github.com/periscope-project/periscope/zone"
)

// encodePNG produces a small solid-color frame payload.
func encodePNG(t *testing.T, width, height int, fill color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func frameSnapshot(t *testing.T, sequence uint64, payload []byte) *snapshot.Snapshot {
	t.Helper()
	return &snapshot.Snapshot{
		Sequence:  sequence,
		Viewport:  snapshot.Size{Width: 1920, Height: 1080},
		Image:     payload,
		ImageHash: snapshot.HashFrame(payload),
	}
}

func newTestRenderer(t *testing.T, target RenderTarget) *Renderer {
	t.Helper()
	mapper := zone.NewMapper(snapshot.Size{Width: 1920, Height: 1080})
	renderer, err := NewRenderer(Config{
		Target: target,
		Mapper: mapper,
		Clock:  clock.Fake(time.Unix(0, 0)),
	})
	if err != nil {
		t.Fatal(err)
	}
	return renderer
}

func TestPresentDrawsImageAndRegions(t *testing.T) {
	t.Parallel()
	target := NewMemoryTarget(snapshot.Size{Width: 960, Height: 540})
	renderer := newTestRenderer(t, target)

	payload := encodePNG(t, 8, 8, color.RGBA{R: 0xff, A: 0xff})
	zones := []zone.Zone{{
		Bounds:   snapshot.Rect{X: 100, Y: 100, Width: 200, Height: 50},
		Selector: "#editor",
		Type:     snapshot.ElementEditor,
	}}

	renderer.Present(frameSnapshot(t, 1, payload), zones)

	if got := len(target.Images()); got != 1 {
		t.Fatalf("images drawn: got %d, want 1", got)
	}
	regions, active, ok := target.LastRegions()
	if !ok || len(regions) != 1 {
		t.Fatalf("regions: got %v ok=%v", regions, ok)
	}
	if active != nil {
		t.Error("active zone set without typing mode")
	}
	// Zones arrive at the target mapped to the rendered surface
	// (half scale).
	want := snapshot.Rect{X: 50, Y: 50, Width: 100, Height: 25}
	if regions[0].Bounds != want {
		t.Errorf("mapped region: got %+v, want %+v", regions[0].Bounds, want)
	}
	if renderer.Stats().Total() != 1 {
		t.Errorf("stats total: got %d, want 1", renderer.Stats().Total())
	}
}

func TestLatestWinsWhileRenderInFlight(t *testing.T) {
	t.Parallel()
	target := NewMemoryTarget(snapshot.Size{Width: 960, Height: 540})
	target.BlockDraw = make(chan struct{})
	renderer := newTestRenderer(t, target)

	first := frameSnapshot(t, 1, encodePNG(t, 4, 4, color.RGBA{R: 0xff, A: 0xff}))
	second := frameSnapshot(t, 2, encodePNG(t, 4, 4, color.RGBA{G: 0xff, A: 0xff}))
	third := frameSnapshot(t, 3, encodePNG(t, 4, 4, color.RGBA{B: 0xff, A: 0xff}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		renderer.Present(first, nil) // blocks in DrawImage
	}()

	// Wait until the first render is parked inside DrawImage.
	<-target.BlockDraw

	// Two more frames arrive while the first is in flight; the
	// middle one is superseded before it is ever drawn.
	renderer.Present(second, nil)
	renderer.Present(third, nil)

	// Release the first render, then the queued render of the
	// third frame.
	target.BlockDraw <- struct{}{}
	<-target.BlockDraw
	target.BlockDraw <- struct{}{}
	wg.Wait()

	images := target.Images()
	if len(images) != 2 {
		t.Fatalf("images drawn: got %d, want 2 (first and third)", len(images))
	}
	if renderer.Stats().Total() != 3 {
		t.Errorf("stats total: got %d, want 3 (every arrival counts)", renderer.Stats().Total())
	}
}

func TestStaleFrameNeverOverwritesNewer(t *testing.T) {
	t.Parallel()
	target := NewMemoryTarget(snapshot.Size{Width: 960, Height: 540})
	renderer := newTestRenderer(t, target)

	newer := frameSnapshot(t, 5, encodePNG(t, 4, 4, color.RGBA{G: 0xff, A: 0xff}))
	older := frameSnapshot(t, 4, encodePNG(t, 4, 4, color.RGBA{R: 0xff, A: 0xff}))

	renderer.Present(newer, nil)
	renderer.Present(older, nil)

	if got := len(target.Images()); got != 1 {
		t.Errorf("images drawn: got %d, want 1 (stale frame discarded)", got)
	}
}

func TestDecodeFailureKeepsPreviousFrame(t *testing.T) {
	t.Parallel()
	target := NewMemoryTarget(snapshot.Size{Width: 960, Height: 540})

	var renderErr error
	mapper := zone.NewMapper(snapshot.Size{Width: 1920, Height: 1080})
	renderer, err := NewRenderer(Config{
		Target:  target,
		Mapper:  mapper,
		Clock:   clock.Fake(time.Unix(0, 0)),
		OnError: func(e error) { renderErr = e },
	})
	if err != nil {
		t.Fatal(err)
	}

	good := frameSnapshot(t, 1, encodePNG(t, 4, 4, color.RGBA{R: 0xff, A: 0xff}))
	corrupt := frameSnapshot(t, 2, []byte("definitely not a png"))

	renderer.Present(good, nil)
	renderer.Present(corrupt, nil)

	var decodeErr *snapshot.DecodeError
	if !errors.As(renderErr, &decodeErr) {
		t.Errorf("render error: got %v, want *snapshot.DecodeError", renderErr)
	}
	if got := len(target.Images()); got != 1 {
		t.Errorf("images drawn: got %d, want 1 (previous frame retained)", got)
	}

	// The loop survives: the next good frame still renders.
	recovered := frameSnapshot(t, 3, encodePNG(t, 4, 4, color.RGBA{B: 0xff, A: 0xff}))
	renderer.Present(recovered, nil)
	if got := len(target.Images()); got != 2 {
		t.Errorf("images after recovery: got %d, want 2", got)
	}
}

func TestDuplicateFrameSkipsDecode(t *testing.T) {
	t.Parallel()
	target := NewMemoryTarget(snapshot.Size{Width: 960, Height: 540})
	renderer := newTestRenderer(t, target)

	payload := encodePNG(t, 4, 4, color.RGBA{R: 0xff, A: 0xff})
	renderer.Present(frameSnapshot(t, 1, payload), nil)
	renderer.Present(frameSnapshot(t, 2, payload), nil)

	if got := len(target.Images()); got != 1 {
		t.Errorf("images drawn: got %d, want 1 (duplicate skipped decode)", got)
	}
	if got := renderer.Stats().Total(); got != 2 {
		t.Errorf("stats total: got %d, want 2", got)
	}
}

func TestSetActiveZoneRemapsHighlight(t *testing.T) {
	t.Parallel()
	target := NewMemoryTarget(snapshot.Size{Width: 960, Height: 540})
	renderer := newTestRenderer(t, target)

	z := zone.Zone{
		Bounds:   snapshot.Rect{X: 100, Y: 100, Width: 200, Height: 50},
		Selector: "#editor",
		Type:     snapshot.ElementEditor,
	}
	renderer.Present(frameSnapshot(t, 1, encodePNG(t, 4, 4, color.RGBA{A: 0xff})), []zone.Zone{z})
	renderer.SetActiveZone(&z)

	_, active, ok := target.LastRegions()
	if !ok || active == nil {
		t.Fatal("no active zone drawn")
	}
	want := snapshot.Rect{X: 50, Y: 50, Width: 100, Height: 25}
	if active.Bounds != want {
		t.Errorf("active bounds: got %+v, want %+v", active.Bounds, want)
	}

	renderer.SetActiveZone(nil)
	if _, active, _ := target.LastRegions(); active != nil {
		t.Error("active zone survived clearing")
	}
}

func TestFrameStatsRollingFPS(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(time.Unix(0, 0))
	stats := NewFrameStats(fake)

	if stats.FPS() != 0 {
		t.Errorf("FPS before frames: got %v, want 0", stats.FPS())
	}

	// 90 frames at 30 per second; the rolling window covers the
	// last 60.
	for i := 0; i < 90; i++ {
		stats.Record()
		fake.Advance(time.Second / 30)
	}

	if got := stats.Total(); got != 90 {
		t.Errorf("total: got %d, want 90", got)
	}
	fps := stats.FPS()
	if fps < 29 || fps > 31 {
		t.Errorf("rolling FPS: got %.2f, want ≈30", fps)
	}
}
