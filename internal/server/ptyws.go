package server

import (
	"log"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kballard/go-shellquote"
	"golang.org/x/sys/unix"

	"github.com/choonkeat/sandterm/internal/config"
	"github.com/choonkeat/sandterm/internal/protocol"
)

type ptyState int

const (
	ptyIdle ptyState = iota
	ptyReady
	ptyClosed
)

// ptyConn holds everything belonging to one PTY bridge connection. All
// per-connection state lives here; the handler never keys shared maps by
// socket.
type ptyConn struct {
	id      string
	ws      *websocket.Conn
	writeMu sync.Mutex
	cfg     config.Settings
	limiter *tokenBucket

	mu    sync.Mutex
	state ptyState
	ptmx  *os.File
	proc  *exec.Cmd
	out   *outputBuffer
	cols  int
	rows  int
}

// handlePTY upgrades an interactive terminal connection. The socket starts
// idle; the client's init frame spawns the shell.
func (s *Server) handlePTY(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[pty] upgrade: %v", err)
		return
	}

	conn := &ptyConn{
		id:  uuid.NewString()[:8],
		ws:  ws,
		cfg: s.cfg,
	}
	if s.cfg.Production {
		// Generous for humans typing, tight enough to stop a runaway
		// client from flooding the shell.
		conn.limiter = newTokenBucket(200, 100)
	}

	log.Printf("[pty] %s: connected", conn.id)
	conn.sendJSON(protocol.Ready{Type: protocol.TypeReady})

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			log.Printf("[pty] %s: disconnected: %v", conn.id, err)
			break
		}
		switch msgType {
		case websocket.TextMessage:
			if ctl, ok := protocol.DecodePTYControl(data); ok {
				conn.control(ctl)
			} else {
				// Anything that isn't a control frame is keystrokes.
				conn.input(data)
			}
		case websocket.BinaryMessage:
			conn.input(data)
		}
	}
	conn.shutdown()
	ws.Close()
}

func (c *ptyConn) control(ctl protocol.PTYControl) {
	switch ctl.Type {
	case protocol.TypeInit:
		c.handleInit(ctl)
	case protocol.TypeResize:
		c.handleResize(ctl)
	case protocol.TypePing:
		c.sendJSON(protocol.Pong{Type: protocol.TypePong})
	}
}

func (c *ptyConn) handleInit(ctl protocol.PTYControl) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != ptyIdle {
		// Reconnecting clients re-send init; the running shell stays.
		log.Printf("[pty] %s: init ignored, shell already running", c.id)
		return
	}

	cols, rows := ctl.Cols, ctl.Rows
	if cols <= 0 {
		cols = c.cfg.Cols
	}
	if rows <= 0 {
		rows = c.cfg.Rows
	}
	shellLine := ctl.Shell
	if shellLine == "" {
		shellLine = c.cfg.Shell
	}
	words, err := shellquote.Split(shellLine)
	if err != nil || len(words) == 0 {
		log.Printf("[pty] %s: bad shell %q: %v", c.id, shellLine, err)
		c.sendJSON(protocol.ErrorFrame{Type: protocol.TypeError, Error: "invalid shell command"})
		return
	}

	cmd := exec.Command(words[0], words[1:]...)
	cmd.Env = append(os.Environ(),
		"TERM=xterm-256color",
		"COLORTERM=truecolor",
		"FORCE_COLOR=1",
	)
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
	if err != nil {
		log.Printf("[pty] %s: start %q: %v", c.id, words[0], err)
		c.sendJSON(protocol.ErrorFrame{Type: protocol.TypeError, Error: "failed to start shell"})
		return
	}

	c.proc = cmd
	c.ptmx = ptmx
	c.cols, c.rows = cols, rows
	c.out = newOutputBuffer(c.cfg.FlushDelay.Std(), c.cfg.FlushHighWater, c.sendOutput)
	c.state = ptyReady
	log.Printf("[pty] %s: started %s (%dx%d)", c.id, words[0], cols, rows)

	go c.readLoop(ptmx, cmd)
}

func (c *ptyConn) handleResize(ctl protocol.PTYControl) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != ptyReady {
		return
	}
	if ctl.Cols <= 0 || ctl.Rows <= 0 {
		return
	}
	if err := pty.Setsize(c.ptmx, &pty.Winsize{
		Rows: uint16(ctl.Rows),
		Cols: uint16(ctl.Cols),
	}); err != nil {
		log.Printf("[pty] %s: resize: %v", c.id, err)
		return
	}
	c.cols, c.rows = ctl.Cols, ctl.Rows
}

func (c *ptyConn) input(data []byte) {
	c.mu.Lock()
	state, ptmx, out := c.state, c.ptmx, c.out
	c.mu.Unlock()

	if state != ptyReady {
		log.Printf("[pty] %s: dropping %d bytes of input before init", c.id, len(data))
		return
	}
	if c.limiter != nil && !c.limiter.allow() {
		log.Printf("[pty] %s: input rate limited", c.id)
		return
	}
	out.NoteInput()
	if _, err := ptmx.Write(data); err != nil {
		log.Printf("[pty] %s: write to pty: %v", c.id, err)
	}
}

// readLoop pumps PTY output into the flush scheduler until the child dies,
// then reports the exit and closes the socket cleanly.
func (c *ptyConn) readLoop(ptmx *os.File, cmd *exec.Cmd) {
	buf := make([]byte, 4096)
	for {
		n, err := ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.out.Write(chunk)
		}
		if err != nil {
			// EIO here means the child exited and the slave side closed.
			break
		}
	}
	cmd.Wait()

	exitCode := 0
	signalName := ""
	if state := cmd.ProcessState; state != nil {
		if code := state.ExitCode(); code >= 0 {
			exitCode = code
		}
		if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			exitCode = 128 + int(ws.Signal())
			signalName = unix.SignalName(ws.Signal())
		}
	}

	c.mu.Lock()
	alreadyClosed := c.state == ptyClosed
	c.state = ptyClosed
	out := c.out
	c.mu.Unlock()

	if alreadyClosed {
		// Socket went first; shutdown already tore everything down.
		return
	}

	// Drain buffered output before the exit notice so the client renders
	// the process's last words in order.
	out.Flush()
	out.Stop()
	ptmx.Close()

	log.Printf("[pty] %s: process exited code=%d signal=%s", c.id, exitCode, signalName)
	c.sendJSON(protocol.ProcessExit{
		Type:     protocol.TypeProcessExit,
		ExitCode: exitCode,
		Signal:   signalName,
	})

	c.writeMu.Lock()
	c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	c.ws.Close()
}

// shutdown tears down the PTY after the socket dies.
func (c *ptyConn) shutdown() {
	c.mu.Lock()
	if c.state == ptyClosed {
		c.mu.Unlock()
		return
	}
	c.state = ptyClosed
	ptmx, proc, out := c.ptmx, c.proc, c.out
	c.mu.Unlock()

	if out != nil {
		out.Stop()
	}
	if proc != nil && proc.Process != nil {
		proc.Process.Kill()
	}
	if ptmx != nil {
		ptmx.Close()
	}
	log.Printf("[pty] %s: cleaned up", c.id)
}

func (c *ptyConn) sendJSON(v any) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(v); err != nil {
		log.Printf("[pty] %s: write: %v", c.id, err)
	}
}

func (c *ptyConn) sendOutput(data []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		log.Printf("[pty] %s: write output: %v", c.id, err)
	}
}
