// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

package zone

import (
	"testing"

	"github.com/periscope-project/periscope/snapshot"
)

func TestMapperHalvesCoordinates(t *testing.T) {
	t.Parallel()
	mapper := NewMapper(snapshot.Size{Width: 1920, Height: 1080})
	mapper.SetZones([]Zone{{
		Bounds:   snapshot.Rect{X: 100, Y: 100, Width: 200, Height: 50},
		Selector: "#editor",
		Type:     snapshot.ElementEditor,
	}})
	mapper.SetRenderedSize(snapshot.Size{Width: 960, Height: 540})

	mapped := mapper.Mapped()
	if len(mapped) != 1 {
		t.Fatalf("mapped: got %d zones, want 1", len(mapped))
	}
	want := snapshot.Rect{X: 50, Y: 50, Width: 100, Height: 25}
	if mapped[0].Bounds != want {
		t.Errorf("mapped bounds: got %+v, want %+v", mapped[0].Bounds, want)
	}
}

func TestMapperIdentityScale(t *testing.T) {
	t.Parallel()
	native := snapshot.Size{Width: 1280, Height: 720}
	bounds := snapshot.Rect{X: 31.5, Y: 7, Width: 200.25, Height: 50}

	mapper := NewMapper(native)
	mapper.SetZones([]Zone{{Bounds: bounds, Selector: "#z"}})
	mapper.SetRenderedSize(native)

	if got := mapper.Mapped()[0].Bounds; got != bounds {
		t.Errorf("identity scale altered bounds: got %+v, want %+v", got, bounds)
	}
	if mapper.ScaleX() != 1 || mapper.ScaleY() != 1 {
		t.Errorf("scale: got %v×%v, want 1×1", mapper.ScaleX(), mapper.ScaleY())
	}
}

func TestMapperScalesAxesIndependently(t *testing.T) {
	t.Parallel()
	mapper := NewMapper(snapshot.Size{Width: 1000, Height: 500})
	bounds := snapshot.Rect{X: 10, Y: 10, Width: 100, Height: 100}
	mapper.SetZones([]Zone{{Bounds: bounds}})
	mapper.SetRenderedSize(snapshot.Size{Width: 2000, Height: 250})

	got := mapper.Mapped()[0].Bounds
	want := snapshot.Rect{X: 20, Y: 5, Width: 200, Height: 50}
	if got != want {
		t.Errorf("mapped bounds: got %+v, want %+v", got, want)
	}
}

func TestMapperIgnoresZeroRenderedSize(t *testing.T) {
	t.Parallel()
	mapper := NewMapper(snapshot.Size{Width: 1920, Height: 1080})
	mapper.SetZones([]Zone{{Bounds: snapshot.Rect{X: 100, Y: 100, Width: 200, Height: 50}}})
	mapper.SetRenderedSize(snapshot.Size{Width: 960, Height: 540})

	before := mapper.Mapped()[0].Bounds

	// Layout not ready: zero dimensions must leave positions intact.
	mapper.SetRenderedSize(snapshot.Size{})
	mapper.SetRenderedSize(snapshot.Size{Width: 100})

	if got := mapper.Mapped()[0].Bounds; got != before {
		t.Errorf("zero-size update moved zones: got %+v, want %+v", got, before)
	}
}

func TestMapperZoneAtPrefersDeepestMatch(t *testing.T) {
	t.Parallel()
	parent := Zone{Bounds: snapshot.Rect{Width: 1000, Height: 1000}, Selector: "#parent"}
	child := Zone{Bounds: snapshot.Rect{X: 100, Y: 100, Width: 100, Height: 100}, Selector: "#child"}

	mapper := NewMapper(snapshot.Size{Width: 1000, Height: 1000})
	mapper.SetZones([]Zone{parent, child})
	mapper.SetRenderedSize(snapshot.Size{Width: 500, Height: 500})

	// (75, 75) in rendered-space is (150, 150) native: inside both.
	hit, ok := mapper.ZoneAt(75, 75)
	if !ok || hit.Selector != "#child" {
		t.Errorf("ZoneAt(75,75): got %+v ok=%v, want #child", hit, ok)
	}

	// Returned zone is in snapshot-space, ready for dispatch.
	if hit.Bounds != child.Bounds {
		t.Errorf("ZoneAt returned rendered-space bounds: %+v", hit.Bounds)
	}

	hit, ok = mapper.ZoneAt(10, 10)
	if !ok || hit.Selector != "#parent" {
		t.Errorf("ZoneAt(10,10): got %+v ok=%v, want #parent", hit, ok)
	}

	if _, ok := mapper.ZoneAt(499, 499); !ok {
		t.Error("ZoneAt inside parent returned no hit")
	}
	if _, ok := mapper.ZoneAt(600, 600); ok {
		t.Error("ZoneAt outside every zone reported a hit")
	}
}

func TestScaleRectPureMultiplication(t *testing.T) {
	t.Parallel()
	r := snapshot.Rect{X: 3, Y: 5, Width: 7, Height: 11}
	got := ScaleRect(r, 2.5, 0.5)
	want := snapshot.Rect{X: 7.5, Y: 2.5, Width: 17.5, Height: 5.5}
	if got != want {
		t.Errorf("ScaleRect: got %+v, want %+v", got, want)
	}
}
