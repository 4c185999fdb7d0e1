package main

import (
	"io"
	"unicode/utf8"
)

type keyKind int

const (
	keyNone keyKind = iota
	keyRune
	keyEnter
	keyBackspace
	keyDelete
	keyLeft
	keyRight
	keyUp
	keyDown
	keyHome
	keyEnd
	keyWordLeft
	keyWordRight
	keyKillWord
	keyKillLine
	keyClear
	keyInterrupt
	keyEOF
)

type key struct {
	kind keyKind
	r    rune
}

// nextByte pulls one byte from the stdin channel, buffering leftovers so
// escape sequences split across reads still parse.
func (r *repl) nextByte() (byte, error) {
	for len(r.pending) == 0 {
		chunk, ok := <-r.stdinCh
		if !ok {
			return 0, io.EOF
		}
		r.pending = chunk
	}
	b := r.pending[0]
	r.pending = r.pending[1:]
	return b, nil
}

// readKey decodes one keypress, looping past sequences it does not know.
func (r *repl) readKey() (key, error) {
	for {
		b, err := r.nextByte()
		if err != nil {
			return key{}, err
		}
		switch b {
		case 0x03:
			return key{kind: keyInterrupt}, nil
		case 0x04:
			return key{kind: keyEOF}, nil
		case '\r', '\n':
			return key{kind: keyEnter}, nil
		case 0x7f, 0x08:
			return key{kind: keyBackspace}, nil
		case 0x01:
			return key{kind: keyHome}, nil
		case 0x05:
			return key{kind: keyEnd}, nil
		case 0x15:
			return key{kind: keyKillLine}, nil
		case 0x17:
			return key{kind: keyKillWord}, nil
		case 0x0c:
			return key{kind: keyClear}, nil
		case 0x1b:
			k, err := r.readEscape()
			if err != nil {
				return key{}, err
			}
			if k.kind != keyNone {
				return k, nil
			}
		default:
			if b < 0x20 {
				continue
			}
			ru, err := r.readRune(b)
			if err != nil {
				return key{}, err
			}
			return key{kind: keyRune, r: ru}, nil
		}
	}
}

func (r *repl) readEscape() (key, error) {
	b, err := r.nextByte()
	if err != nil {
		return key{}, err
	}
	switch b {
	case 'b':
		return key{kind: keyWordLeft}, nil
	case 'f':
		return key{kind: keyWordRight}, nil
	case '[':
	default:
		return key{kind: keyNone}, nil
	}

	b, err = r.nextByte()
	if err != nil {
		return key{}, err
	}
	switch b {
	case 'A':
		return key{kind: keyUp}, nil
	case 'B':
		return key{kind: keyDown}, nil
	case 'C':
		return key{kind: keyRight}, nil
	case 'D':
		return key{kind: keyLeft}, nil
	case 'H':
		return key{kind: keyHome}, nil
	case 'F':
		return key{kind: keyEnd}, nil
	case '3':
		if t, err := r.nextByte(); err != nil {
			return key{}, err
		} else if t == '~' {
			return key{kind: keyDelete}, nil
		}
		return key{kind: keyNone}, nil
	case '1':
		// Ctrl+arrow arrives as ESC [ 1 ; 5 C/D.
		for _, want := range []byte{';', '5'} {
			got, err := r.nextByte()
			if err != nil {
				return key{}, err
			}
			if got != want {
				return key{kind: keyNone}, nil
			}
		}
		got, err := r.nextByte()
		if err != nil {
			return key{}, err
		}
		switch got {
		case 'C':
			return key{kind: keyWordRight}, nil
		case 'D':
			return key{kind: keyWordLeft}, nil
		}
	}
	return key{kind: keyNone}, nil
}

// readRune completes a possibly multi-byte UTF-8 sequence starting with b.
func (r *repl) readRune(b byte) (rune, error) {
	if b < utf8.RuneSelf {
		return rune(b), nil
	}
	buf := []byte{b}
	for !utf8.FullRune(buf) && len(buf) < utf8.UTFMax {
		next, err := r.nextByte()
		if err != nil {
			return 0, err
		}
		buf = append(buf, next)
	}
	ru, _ := utf8.DecodeRune(buf)
	return ru, nil
}
