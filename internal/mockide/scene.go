// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

// Package mockide is a synthetic IDE host for development and tests.
// It serves the full viewer API and push stream against a generated
// element tree and rendered PNG frames, with no real IDE behind it.
package mockide

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/periscope-project/periscope/snapshot"
)

// scene is the mutable state the synthetic IDE renders: editor text,
// terminal lines, and the chat transcript. All input endpoints mutate
// the scene; every mutation bumps the snapshot sequence.
type scene struct {
	viewport snapshot.Size
	editor   []string
	terminal []string
	chat     []string
	focused  string
}

func newScene(viewport snapshot.Size) *scene {
	return &scene{
		viewport: viewport,
		editor:   []string{"package main", "", "func main() {}"},
		terminal: []string{"$ "},
		chat:     []string{"assistant: ready"},
	}
}

// Fixed layout: editor on the left, chat on the right, terminal along
// the bottom. Bounds are fractions of the viewport so any size works.
func (s *scene) layout() (editor, chat, terminal snapshot.Rect) {
	width := float64(s.viewport.Width)
	height := float64(s.viewport.Height)
	editor = snapshot.Rect{X: 0, Y: 0, Width: width * 0.65, Height: height * 0.75}
	chat = snapshot.Rect{X: width * 0.65, Y: 0, Width: width * 0.35, Height: height}
	terminal = snapshot.Rect{X: 0, Y: height * 0.75, Width: width * 0.65, Height: height * 0.25}
	return editor, chat, terminal
}

// tree builds the element tree for the current scene.
func (s *scene) tree() snapshot.ElementNode {
	editorRect, chatRect, terminalRect := s.layout()
	chatComposer := snapshot.Rect{
		X:      chatRect.X + 8,
		Y:      chatRect.Y + chatRect.Height - 48,
		Width:  chatRect.Width - 16,
		Height: 40,
	}
	return snapshot.ElementNode{
		Kind:     "div",
		Selector: "#workbench",
		Bounds:   snapshot.Rect{Width: float64(s.viewport.Width), Height: float64(s.viewport.Height)},
		Children: []snapshot.ElementNode{
			{
				Kind:        "div",
				Selector:    "#editor",
				Classes:     []string{"monaco-editor"},
				Bounds:      editorRect,
				Interactive: true,
				Type:        snapshot.ElementEditor,
			},
			{
				Kind:     "div",
				Selector: "#chat",
				Classes:  []string{"chat-panel"},
				Bounds:   chatRect,
				Children: []snapshot.ElementNode{
					{
						Kind:        "textarea",
						Selector:    "#chat-composer",
						Classes:     []string{"chat-composer"},
						Bounds:      chatComposer,
						Interactive: true,
						Type:        snapshot.ElementChat,
					},
				},
			},
			{
				Kind:        "div",
				Selector:    "#terminal",
				Classes:     []string{"xterm"},
				Bounds:      terminalRect,
				Interactive: true,
				Type:        snapshot.ElementTerminal,
			},
		},
	}
}

// applyText appends batch text to the focused surface.
func (s *scene) applyText(text, selector string) {
	switch selector {
	case "#terminal":
		last := len(s.terminal) - 1
		s.terminal[last] += text
	default:
		if len(s.editor) == 0 {
			s.editor = []string{""}
		}
		last := len(s.editor) - 1
		s.editor[last] += text
	}
}

// applyKey interprets the handful of control keys the synthetic
// surfaces react to.
func (s *scene) applyKey(key, selector string) {
	if key != "Enter" {
		return
	}
	switch selector {
	case "#terminal":
		s.terminal = append(s.terminal, "$ ")
	default:
		s.editor = append(s.editor, "")
	}
}

// applyChat appends a message to the transcript with a canned reply.
func (s *scene) applyChat(text string) {
	s.chat = append(s.chat, "user: "+text, "assistant: ack")
}

// Panel fill colors for the rendered frame.
var (
	sceneBackground = color.RGBA{R: 0x1e, G: 0x1e, B: 0x2e, A: 0xff}
	editorFill      = color.RGBA{R: 0x28, G: 0x28, B: 0x3c, A: 0xff}
	chatFill        = color.RGBA{R: 0x23, G: 0x30, B: 0x2a, A: 0xff}
	terminalFill    = color.RGBA{R: 0x14, G: 0x14, B: 0x1e, A: 0xff}
	textStripe      = color.RGBA{R: 0x8a, G: 0x8a, B: 0xa8, A: 0xff}
)

// render draws the scene to a PNG. Panels are flat fills with one
// stripe per text line; enough for the viewer's downsampler to show a
// recognizable layout, cheap enough to regenerate per mutation.
func (s *scene) render(sequence uint64) ([]byte, error) {
	frame := image.NewRGBA(image.Rect(0, 0, s.viewport.Width, s.viewport.Height))
	draw.Draw(frame, frame.Bounds(), image.NewUniform(sceneBackground), image.Point{}, draw.Src)

	editorRect, chatRect, terminalRect := s.layout()
	fillPanel(frame, editorRect, editorFill, len(s.editor))
	fillPanel(frame, chatRect, chatFill, len(s.chat))
	fillPanel(frame, terminalRect, terminalFill, len(s.terminal))

	// A sequence-keyed pixel in the corner keeps consecutive frames
	// distinct so hash dedup only fires for true repeats.
	frame.SetRGBA(0, 0, color.RGBA{R: uint8(sequence), G: uint8(sequence >> 8), A: 0xff})

	var buf bytes.Buffer
	if err := png.Encode(&buf, frame); err != nil {
		return nil, fmt.Errorf("render scene: %w", err)
	}
	return buf.Bytes(), nil
}

func fillPanel(frame *image.RGBA, bounds snapshot.Rect, fill color.RGBA, lines int) {
	rect := image.Rect(int(bounds.X), int(bounds.Y), int(bounds.X+bounds.Width), int(bounds.Y+bounds.Height))
	draw.Draw(frame, rect, image.NewUniform(fill), image.Point{}, draw.Src)

	// One stripe per line of content, clipped to the panel.
	const lineHeight = 18
	for line := 0; line < lines; line++ {
		y := rect.Min.Y + 8 + line*lineHeight
		if y+4 > rect.Max.Y {
			break
		}
		stripe := image.Rect(rect.Min.X+8, y, rect.Max.X-8, y+4)
		draw.Draw(frame, stripe, image.NewUniform(textStripe), image.Point{}, draw.Src)
	}
}
