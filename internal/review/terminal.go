// Copyright (C) 2020  Lukas Dietrich <lukas@lukasdietrich.com>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package review

import (
	"errors"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"
)

// ErrNotInteractive is returned when the review loop is started without a terminal.
var ErrNotInteractive = errors.New("the review loop requires an interactive terminal")

const clearScreen = "\x1b[H\x1b[2J"

var escapeSequences = map[string]Key{
	"\x1b[A":   KeyUp,
	"\x1bOA":   KeyUp,
	"\x1b[B":   KeyDown,
	"\x1bOB":   KeyDown,
	"\x1b[5~":  KeyPageUp,
	"\x1b[6~":  KeyPageDown,
	"\x1b[H":   KeyHome,
	"\x1bOH":   KeyHome,
	"\x1b[1~":  KeyHome,
	"\x1b[F":   KeyEnd,
	"\x1bOF":   KeyEnd,
	"\x1b[4~":  KeyEnd,
	"\x1b[3~":  KeyDelete,
	"\x1bOP":   KeyF1,
	"\x1b[11~": KeyF1,
	"\x1b[15~": KeyF5,
}

// RawTerminal is a Terminal on a tty in raw mode.
type RawTerminal struct {
	in      io.Reader
	out     io.Writer
	fd      int
	state   *readline.State
	buf     [32]byte
	pending []KeyPress
}

// OpenTerminal switches stdin into raw mode. Close restores the previous mode.
func OpenTerminal() (*RawTerminal, error) {
	fd := os.Stdin.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return nil, ErrNotInteractive
	}

	state, err := readline.MakeRaw(int(fd))
	if err != nil {
		return nil, err
	}

	return &RawTerminal{
		in:    os.Stdin,
		out:   os.Stdout,
		fd:    int(fd),
		state: state,
	}, nil
}

// ReadKey blocks until a key is pressed. A single read may carry several keys, for example
// pasted text, those are returned one by one before the terminal is read again.
func (t *RawTerminal) ReadKey() (KeyPress, error) {
	for len(t.pending) == 0 {
		n, err := t.in.Read(t.buf[:])
		if n > 0 {
			t.pending = DecodeKeys(t.buf[:n])
		}

		if err != nil && len(t.pending) == 0 {
			return KeyPress{}, err
		}
	}

	key := t.pending[0]
	t.pending = t.pending[1:]
	return key, nil
}

// Draw clears the screen and writes the frame. Raw mode needs explicit carriage returns.
func (t *RawTerminal) Draw(frame string) error {
	_, err := io.WriteString(t.out, clearScreen+strings.ReplaceAll(frame, "\n", "\r\n"))
	return err
}

// Close restores the terminal.
func (t *RawTerminal) Close() error {
	_, _ = io.WriteString(t.out, clearScreen)
	return readline.Restore(t.fd, t.state)
}

// DecodeKeys decodes the bytes of a single read from a raw terminal. Unknown escape sequences
// and invalid utf-8 are skipped.
func DecodeKeys(b []byte) []KeyPress {
	var keys []KeyPress

	for len(b) > 0 {
		key, size, ok := decodeKey(b)
		if ok {
			keys = append(keys, key)
		}

		b = b[size:]
	}

	return keys
}

// decodeKey decodes the key at the start of b and returns the number of bytes it spans.
func decodeKey(b []byte) (KeyPress, int, bool) {
	if b[0] == 0x1b {
		return decodeEscape(b)
	}

	switch b[0] {
	case 0x03:
		return KeyPress{Key: KeyCtrlC}, 1, true
	case '\r', '\n':
		return KeyPress{Key: KeyEnter}, 1, true
	case 0x7f, 0x08:
		return KeyPress{Key: KeyBackspace}, 1, true
	}

	if b[0] < 0x20 {
		return KeyPress{Key: KeyRune, Rune: rune('a' + b[0] - 1), Ctrl: true}, 1, true
	}

	r, size := utf8.DecodeRune(b)
	if r == utf8.RuneError {
		return KeyPress{}, size, false
	}

	return KeyPress{Key: KeyRune, Rune: r}, size, true
}

func decodeEscape(b []byte) (KeyPress, int, bool) {
	if len(b) == 1 || (b[1] != '[' && b[1] != 'O') {
		return KeyPress{Key: KeyEsc}, 1, true
	}

	// Control sequences end with a final byte in the range 0x40 to 0x7e, SS3 sequences after
	// a single byte.
	end := 2
	if b[1] == '[' {
		for end < len(b) && (b[end] < 0x40 || b[end] > 0x7e) {
			end++
		}
	}

	if end < len(b) {
		end++
	}

	key, ok := escapeSequences[string(b[:end])]
	return KeyPress{Key: key}, end, ok
}
