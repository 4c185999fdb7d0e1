package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/term"

	"github.com/choonkeat/sandterm/internal/protocol"
)

// attach bridges the local terminal to a remote PTY and runs command inside
// it. It returns when the remote process exits or the socket drops; the
// prompt resumes afterwards.
func (r *repl) attach(command string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.Dial(r.ptyURL, nil)
	if err != nil {
		return fmt.Errorf("dial pty bridge: %w", err)
	}
	defer ws.Close()

	var ready protocol.Ready
	ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	if err := ws.ReadJSON(&ready); err != nil || ready.Type != protocol.TypeReady {
		return fmt.Errorf("pty bridge never became ready: %v", err)
	}
	ws.SetReadDeadline(time.Time{})

	var writeMu sync.Mutex
	send := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return ws.WriteJSON(v)
	}
	sendInput := func(data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return ws.WriteMessage(websocket.BinaryMessage, data)
	}

	fd := int(os.Stdin.Fd())
	cols, rows, err := term.GetSize(fd)
	if err != nil {
		cols, rows = 0, 0 // let the server pick its defaults
	}
	if err := send(protocol.PTYControl{Type: protocol.TypeInit, Cols: cols, Rows: rows}); err != nil {
		return fmt.Errorf("send init: %w", err)
	}
	// The shell runs the requested command as its first input line.
	if command != "" {
		if err := sendInput([]byte(command + "\n")); err != nil {
			return fmt.Errorf("send command: %w", err)
		}
	}

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)

	done := make(chan struct{})

	// Remote output and exit handling.
	go func() {
		defer close(done)
		for {
			msgType, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			switch msgType {
			case websocket.BinaryMessage:
				os.Stdout.Write(data)
			case websocket.TextMessage:
				var exit protocol.ProcessExit
				if json.Unmarshal(data, &exit) == nil && exit.Type == protocol.TypeProcessExit {
					if exit.ExitCode != 0 || exit.Signal != "" {
						fmt.Printf("\r\n"+ansiDim+"[process exited with code %d]"+ansiNone+"\r\n", exit.ExitCode)
					}
					return
				}
			}
		}
	}()

	for {
		select {
		case <-done:
			return nil
		case <-winch:
			if c, rws, err := term.GetSize(fd); err == nil {
				send(protocol.PTYControl{Type: protocol.TypeResize, Cols: c, Rows: rws})
			}
		case chunk, ok := <-r.stdinCh:
			if !ok {
				return nil
			}
			if err := sendInput(chunk); err != nil {
				return nil
			}
		}
	}
}
