package lineedit

// Line is the prompt's line buffer. All positions are rune indices, so
// multi-byte input edits correctly.
type Line struct {
	runes  []rune
	cursor int
}

// NewLine returns an empty buffer.
func NewLine() *Line {
	return &Line{}
}

func (l *Line) CursorPosition() int { return l.cursor }

func (l *Line) SetCursorPosition(pos int) {
	if pos < 0 {
		pos = 0
	}
	if pos > len(l.runes) {
		pos = len(l.runes)
	}
	l.cursor = pos
}

func (l *Line) BufferContents() string { return string(l.runes) }

// Len reports the buffer length in runes.
func (l *Line) Len() int { return len(l.runes) }

// Insert places r at the cursor and advances past it.
func (l *Line) Insert(r rune) {
	l.runes = append(l.runes, 0)
	copy(l.runes[l.cursor+1:], l.runes[l.cursor:])
	l.runes[l.cursor] = r
	l.cursor++
}

// InsertString inserts s at the cursor.
func (l *Line) InsertString(s string) {
	for _, r := range s {
		l.Insert(r)
	}
}

// Backspace removes the rune before the cursor.
func (l *Line) Backspace() {
	if l.cursor == 0 {
		return
	}
	l.runes = append(l.runes[:l.cursor-1], l.runes[l.cursor:]...)
	l.cursor--
}

// Delete removes the rune under the cursor.
func (l *Line) Delete() {
	if l.cursor >= len(l.runes) {
		return
	}
	l.runes = append(l.runes[:l.cursor], l.runes[l.cursor+1:]...)
}

// Home moves the cursor to the start of the line.
func (l *Line) Home() { l.cursor = 0 }

// End moves the cursor past the last rune.
func (l *Line) End() { l.cursor = len(l.runes) }

// MoveLeft steps the cursor one rune back.
func (l *Line) MoveLeft() { l.SetCursorPosition(l.cursor - 1) }

// MoveRight steps the cursor one rune forward.
func (l *Line) MoveRight() { l.SetCursorPosition(l.cursor + 1) }

// Reset clears the buffer for the next prompt.
func (l *Line) Reset() {
	l.runes = l.runes[:0]
	l.cursor = 0
}
