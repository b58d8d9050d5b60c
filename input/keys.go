// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

package input

import "unicode/utf8"

// Key names used by the engine itself. Everything else passes through
// to the host verbatim.
const (
	// KeyEscape cancels typing mode.
	KeyEscape = "Escape"

	// KeyEnter is dispatched immediately like every control key.
	KeyEnter = "Enter"
)

// IsControlKey reports whether a key event is a control or navigation
// key rather than a printable character. Control keys carry
// multi-rune names ("Enter", "Backspace", "ArrowLeft", "F5"); a
// printable character is exactly one rune.
func IsControlKey(key string) bool {
	return utf8.RuneCountInString(key) != 1
}
