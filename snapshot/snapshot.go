// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapshot defines the data model for one capture of the
// remote application's visual state: an encoded image of the surface
// plus the element tree describing its structure. Snapshots are
// immutable after decode; each state update supersedes the previous
// snapshot entirely and no history is retained.
//
// The package is organized around the snapshot data flow:
//
//   - snapshot.go: the Snapshot and ElementNode model
//   - compress.go: image payload compression tags (none, lz4, zstd)
//   - hash.go: BLAKE3 content hashing for frame deduplication
//   - wire.go: the CBOR frame envelope carried on the push channel
package snapshot

import "time"

// ElementType classifies what kind of interactive surface an element
// is. The IDE host may assign a type directly; elements without one
// are classified by the zone package's pattern heuristics.
type ElementType string

const (
	// ElementEditor is a code editor pane.
	ElementEditor ElementType = "editor"

	// ElementChat is a chat composer region. Chat elements never
	// receive per-keystroke dispatch; text reaches them through the
	// direct-submit path.
	ElementChat ElementType = "chat"

	// ElementTerminal is an embedded terminal pane.
	ElementTerminal ElementType = "terminal"

	// ElementInput is a plain text input field.
	ElementInput ElementType = "input"

	// ElementUnknown is anything the classifier could not identify.
	ElementUnknown ElementType = "unknown"
)

// Rect is a rectangle in snapshot-space coordinates (pixels of the
// remote surface's native viewport).
type Rect struct {
	X      float64 `json:"x" cbor:"x"`
	Y      float64 `json:"y" cbor:"y"`
	Width  float64 `json:"w" cbor:"w"`
	Height float64 `json:"h" cbor:"h"`
}

// Empty reports whether the rectangle has no positive area.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Contains reports whether the point (x, y) lies within the rectangle.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

// Size is a viewport dimension in pixels.
type Size struct {
	Width  int `json:"width" cbor:"width"`
	Height int `json:"height" cbor:"height"`
}

// Zero reports whether either dimension is missing.
func (s Size) Zero() bool { return s.Width <= 0 || s.Height <= 0 }

// ElementNode is one node of the remote surface's element tree. The
// tree is acyclic, ordered, and owned exclusively by the Snapshot that
// produced it. Treat nodes as immutable: the zone extractor flattens
// the tree into its own arena instead of annotating nodes in place.
type ElementNode struct {
	// Kind is the tag-like discriminator from the remote structure
	// (e.g., "div", "textarea").
	Kind string `json:"kind" cbor:"kind"`

	// Selector uniquely addresses this node on the remote side.
	// Commands dispatched against a zone carry its selector.
	Selector string `json:"selector" cbor:"selector"`

	// Classes are the node's class-like tags, used by the pattern
	// classifier when the host assigned no element type.
	Classes []string `json:"classes,omitempty" cbor:"classes,omitempty"`

	// Bounds is the node's rectangle in snapshot-space.
	Bounds Rect `json:"bounds" cbor:"bounds"`

	// Interactive marks nodes that accept input.
	Interactive bool `json:"interactive,omitempty" cbor:"interactive,omitempty"`

	// Type is the host-assigned element type. Empty when the host
	// did not classify the node.
	Type ElementType `json:"type,omitempty" cbor:"type,omitempty"`

	// Children in document order.
	Children []ElementNode `json:"children,omitempty" cbor:"children,omitempty"`
}

// CountNodes returns the total number of nodes in the tree rooted at n,
// including n itself.
func CountNodes(n *ElementNode) int {
	count := 1
	for i := range n.Children {
		count += CountNodes(&n.Children[i])
	}
	return count
}

// Snapshot is one immutable capture of the remote application's state.
type Snapshot struct {
	// Sequence is the host-assigned monotonic frame number. The
	// renderer uses it to discard frames that arrive out of order.
	Sequence uint64

	// CapturedAt is the host-side capture timestamp.
	CapturedAt time.Time

	// Viewport is the native resolution the image and element
	// bounds are expressed in.
	Viewport Size

	// Image is the encoded surface image (PNG from current hosts).
	// The engine never interprets it beyond decoding for display.
	Image []byte

	// ImageHash is the BLAKE3 content hash of the uncompressed
	// image payload. Consecutive frames with equal hashes skip
	// decode and render.
	ImageHash Hash

	// Root of the element tree.
	Root ElementNode
}
