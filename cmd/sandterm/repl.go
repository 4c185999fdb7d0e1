package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/term"

	"github.com/choonkeat/sandterm/internal/client"
	"github.com/choonkeat/sandterm/internal/lineedit"
)

const (
	prompt   = "sandbox$ "
	ansiRed  = "\x1b[31m"
	ansiDim  = "\x1b[2m"
	ansiNone = "\x1b[0m"
)

type repl struct {
	conn           *client.Conn
	runner         *client.Runner
	ptyURL         string
	commandTimeout time.Duration
	line           *lineedit.Line
	out            io.Writer

	raw     bool
	stdinCh chan []byte
	pending []byte
	history []string
	histIdx int
}

// run drives the prompt. Without a terminal on stdin it degrades to a
// line-at-a-time batch mode.
func (r *repl) run(ctx context.Context) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return r.runBatch(ctx)
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)
	r.raw = true

	// One reader goroutine owns stdin for the whole process; both the
	// prompt and interactive attach consume from the channel.
	r.stdinCh = make(chan []byte, 1)
	go func() {
		defer close(r.stdinCh)
		for {
			buf := make([]byte, 1024)
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				r.stdinCh <- buf[:n]
			}
			if err != nil {
				return
			}
		}
	}()

	r.print(ansiDim + "connected commands run in your sandbox; exit to quit" + ansiNone + "\n")
	r.redraw()
	for {
		k, err := r.readKey()
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.print("\n")
				return nil
			}
			return err
		}
		quit, err := r.handleKey(ctx, k)
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
	}
}

func (r *repl) runBatch(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		command := strings.TrimSpace(scanner.Text())
		if command == "" {
			continue
		}
		if command == "exit" || command == "quit" {
			return nil
		}
		r.dispatch(ctx, command)
	}
	return scanner.Err()
}

func (r *repl) handleKey(ctx context.Context, k key) (quit bool, err error) {
	switch k.kind {
	case keyRune:
		r.line.Insert(k.r)
	case keyEnter:
		r.print("\n")
		command := strings.TrimSpace(r.line.BufferContents())
		r.line.Reset()
		if command == "" {
			r.redraw()
			return false, nil
		}
		r.history = append(r.history, command)
		r.histIdx = len(r.history)
		if command == "exit" || command == "quit" {
			return true, nil
		}
		r.dispatch(ctx, command)
	case keyBackspace:
		r.line.Backspace()
	case keyDelete:
		r.line.Delete()
	case keyLeft:
		r.line.MoveLeft()
	case keyRight:
		r.line.MoveRight()
	case keyHome:
		r.line.Home()
	case keyEnd:
		r.line.End()
	case keyWordLeft:
		lineedit.MoveWordLeft(r.line)
	case keyWordRight:
		lineedit.MoveWordRight(r.line)
	case keyKillWord:
		// Delete back to the previous word boundary.
		to := lineedit.PrevWordBoundary(r.line.BufferContents(), r.line.CursorPosition())
		for r.line.CursorPosition() > to {
			r.line.Backspace()
		}
	case keyKillLine:
		r.line.Reset()
	case keyUp:
		if r.histIdx > 0 {
			r.histIdx--
			r.line.Reset()
			r.line.InsertString(r.history[r.histIdx])
		}
	case keyDown:
		r.line.Reset()
		if r.histIdx < len(r.history)-1 {
			r.histIdx++
			r.line.InsertString(r.history[r.histIdx])
		} else {
			r.histIdx = len(r.history)
		}
	case keyClear:
		r.print("\x1b[2J\x1b[H")
	case keyInterrupt:
		r.print("^C\n")
		r.line.Reset()
	case keyEOF:
		if r.line.Len() == 0 {
			r.print("\n")
			return true, nil
		}
	}
	r.redraw()
	return false, nil
}

// dispatch routes a command to its transport.
func (r *repl) dispatch(ctx context.Context, command string) {
	switch r.runner.Classify(command) {
	case client.KindInteractive:
		if err := r.attach(command); err != nil {
			r.print(ansiRed + "interactive session failed: " + err.Error() + ansiNone + "\n")
		}
	case client.KindStreaming:
		if err := r.runner.ExecStream(ctx, command, &replEvents{r: r}); err != nil {
			r.print(ansiRed + "stream failed: " + err.Error() + ansiNone + "\n")
		}
	default:
		r.runSimple(ctx, command)
	}
}

// runSimple prefers the command channel and falls back to plain HTTP when
// the socket is down.
func (r *repl) runSimple(ctx context.Context, command string) {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	res, err := r.conn.Exec(ctx, command)
	if err != nil {
		if errors.Is(err, client.ErrConnectionClosed) || errors.Is(err, client.ErrConnectTimeout) {
			httpRes, httpErr := r.runner.Exec(ctx, command)
			if httpErr != nil {
				r.print(ansiRed + httpErr.Error() + ansiNone + "\n")
				return
			}
			r.printResult(httpRes.Stdout, httpRes.Stderr, httpRes.ExitCode)
			return
		}
		r.print(ansiRed + err.Error() + ansiNone + "\n")
		return
	}
	r.printResult(res.Stdout, res.Stderr, res.ExitCode)
}

func (r *repl) printResult(stdout, stderr string, exitCode int) {
	if stdout != "" {
		r.print(stdout)
	}
	if stderr != "" {
		r.print(ansiRed + stderr + ansiNone)
	}
	if exitCode != 0 {
		r.print(fmt.Sprintf(ansiDim+"[process exited with code %d]"+ansiNone+"\n", exitCode))
	}
}

// replEvents renders streamed exec output as it arrives.
type replEvents struct {
	r *repl
}

func (h *replEvents) OnStart()             {}
func (h *replEvents) OnStdout(data string) { h.r.print(data) }
func (h *replEvents) OnStderr(data string) { h.r.print(ansiRed + data + ansiNone) }
func (h *replEvents) OnComplete(exitCode int) {
	if exitCode != 0 {
		h.r.print(fmt.Sprintf(ansiDim+"[process exited with code %d]"+ansiNone+"\n", exitCode))
	}
}
func (h *replEvents) OnError(msg string) {
	h.r.print(ansiRed + "error: " + msg + ansiNone + "\n")
}

// print writes to the terminal, translating newlines while in raw mode.
func (r *repl) print(s string) {
	if r.raw {
		s = strings.ReplaceAll(s, "\n", "\r\n")
	}
	io.WriteString(r.out, s)
}

// redraw repaints the prompt line and positions the cursor.
func (r *repl) redraw() {
	if !r.raw {
		return
	}
	fmt.Fprintf(r.out, "\r\x1b[K%s%s\r", prompt, r.line.BufferContents())
	col := utf8.RuneCountInString(prompt) + r.line.CursorPosition()
	if col > 0 {
		fmt.Fprintf(r.out, "\x1b[%dC", col)
	}
}
