// Package lineedit provides the CLI prompt's line buffer and the cursor
// word-motion logic. Movement math lives in pure functions over the buffer
// contents so it can be exercised without a terminal.
package lineedit

import "unicode"

// LineEditor is the surface word motion needs from a line buffer. Positions
// are rune indices into BufferContents.
type LineEditor interface {
	CursorPosition() int
	SetCursorPosition(pos int)
	BufferContents() string
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// PrevWordBoundary returns the position of the start of the word at or
// before pos: separators to the left are skipped first, then the word
// itself.
func PrevWordBoundary(s string, pos int) int {
	runes := []rune(s)
	if pos > len(runes) {
		pos = len(runes)
	}
	for pos > 0 && !isWordRune(runes[pos-1]) {
		pos--
	}
	for pos > 0 && isWordRune(runes[pos-1]) {
		pos--
	}
	return pos
}

// NextWordBoundary returns the position just past the end of the word at or
// after pos.
func NextWordBoundary(s string, pos int) int {
	runes := []rune(s)
	if pos < 0 {
		pos = 0
	}
	for pos < len(runes) && !isWordRune(runes[pos]) {
		pos++
	}
	for pos < len(runes) && isWordRune(runes[pos]) {
		pos++
	}
	return pos
}

// MoveWordLeft moves the editor's cursor one word backward.
func MoveWordLeft(e LineEditor) {
	e.SetCursorPosition(PrevWordBoundary(e.BufferContents(), e.CursorPosition()))
}

// MoveWordRight moves the editor's cursor one word forward.
func MoveWordRight(e LineEditor) {
	e.SetCursorPosition(NextWordBoundary(e.BufferContents(), e.CursorPosition()))
}
