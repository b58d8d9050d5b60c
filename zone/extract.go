// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

package zone

import (
	"strings"

	"github.com/periscope-project/periscope/snapshot"
)

// Extract flattens the element tree rooted at root into the ordered
// list of interactive zones, visiting nodes in document order (parent
// before children). A node becomes a zone when it is marked
// interactive — or textually matches the chat pattern, which
// overrides an upstream non-interactive flag so chat composers are
// never missed — and its rectangle has positive area inside the
// native viewport.
//
// Extract has no side effects and never mutates the tree. The number
// of zones is at most the number of nodes.
func Extract(root *snapshot.ElementNode, viewport snapshot.Size) []Zone {
	arena := flatten(root)

	zones := make([]Zone, 0, len(arena))
	for _, node := range arena {
		if !node.Interactive && !matchesAny(patternText(node), chatTokens) {
			continue
		}
		bounds, ok := clampToViewport(node.Bounds, viewport)
		if !ok {
			continue
		}
		zones = append(zones, Zone{
			Bounds:   bounds,
			Selector: node.Selector,
			Type:     Classify(node),
		})
	}
	return zones
}

// flatten returns the tree's nodes in pre-order as an indexed arena of
// pointers into the original tree. No copies, no mutation.
func flatten(root *snapshot.ElementNode) []*snapshot.ElementNode {
	arena := make([]*snapshot.ElementNode, 0, 16)
	var walk func(n *snapshot.ElementNode)
	walk = func(n *snapshot.ElementNode) {
		arena = append(arena, n)
		for i := range n.Children {
			walk(&n.Children[i])
		}
	}
	walk(root)
	return arena
}

// clampToViewport intersects a rectangle with the native viewport.
// Returns false when the intersection has no positive area, which
// covers both zero-sized nodes and nodes positioned entirely outside
// the visible surface.
func clampToViewport(r snapshot.Rect, viewport snapshot.Size) (snapshot.Rect, bool) {
	if r.Empty() {
		return snapshot.Rect{}, false
	}

	left := max(r.X, 0)
	top := max(r.Y, 0)
	right := min(r.X+r.Width, float64(viewport.Width))
	bottom := min(r.Y+r.Height, float64(viewport.Height))

	if right <= left || bottom <= top {
		return snapshot.Rect{}, false
	}
	return snapshot.Rect{X: left, Y: top, Width: right - left, Height: bottom - top}, true
}

// Classification token lists. Matching is case-insensitive substring
// search over the node's selector and class strings. Precedence:
// host-assigned type, then editor, chat, terminal, input tag,
// unknown.
var (
	editorTokens   = []string{"editor", "monaco", "codemirror"}
	chatTokens     = []string{"chat", "composer", "input", "message", "send"}
	terminalTokens = []string{"terminal", "xterm", "console", "tty"}
)

// Classify determines the element type of a node. A host-assigned
// type always wins; otherwise the textual pattern heuristics run over
// the node's class and selector strings.
func Classify(n *snapshot.ElementNode) snapshot.ElementType {
	if n.Type != "" {
		return n.Type
	}

	text := patternText(n)
	switch {
	case matchesAny(text, editorTokens):
		return snapshot.ElementEditor
	case matchesAny(text, chatTokens):
		return snapshot.ElementChat
	case matchesAny(text, terminalTokens):
		return snapshot.ElementTerminal
	case n.Kind == "input" || n.Kind == "textarea":
		return snapshot.ElementInput
	default:
		return snapshot.ElementUnknown
	}
}

func patternText(n *snapshot.ElementNode) string {
	if len(n.Classes) == 0 {
		return strings.ToLower(n.Selector)
	}
	return strings.ToLower(n.Selector + " " + strings.Join(n.Classes, " "))
}

func matchesAny(text string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(text, token) {
			return true
		}
	}
	return false
}
