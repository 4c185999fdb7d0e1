package server

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/choonkeat/sandterm/internal/protocol"
	"github.com/choonkeat/sandterm/internal/sandbox"
)

// cmdConn is one command channel connection. Writes go through writeMu
// because exec results complete on their own goroutines and gorilla
// connections do not allow concurrent writers.
type cmdConn struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	sessionID string
}

func (c *cmdConn) send(v any) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(v); err != nil {
		log.Printf("[ws] %s: write: %v", c.sessionID, err)
	}
}

// handleCommandWS upgrades the command channel. The session id comes from
// the query string or the X-Session-ID header; without one there is no
// sandbox to run against, so the request is rejected before the upgrade.
func (s *Server) handleCommandWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		sessionID = r.Header.Get("X-Session-ID")
	}
	if sessionID == "" {
		http.Error(w, "missing sessionId", http.StatusBadRequest)
		return
	}

	exec, _, err := s.resolveSandbox(sessionID, "")
	if err != nil {
		log.Printf("[ws] resolve %s: %v", sessionID, err)
		http.Error(w, "sandbox unavailable", http.StatusInternalServerError)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade: %v", err)
		return
	}
	defer ws.Close()

	conn := &cmdConn{ws: ws, sessionID: sessionID}
	log.Printf("[ws] %s: command channel open", sessionID)

	// Greeting pong so the client can tell the channel is live before it
	// sends anything.
	conn.send(protocol.Pong{Type: protocol.TypePong})

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			log.Printf("[ws] %s: command channel closed: %v", sessionID, err)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		frame, err := protocol.DecodeCommandFrame(data)
		if err != nil {
			log.Printf("[ws] %s: %v", sessionID, err)
			conn.send(protocol.ErrorFrame{Type: protocol.TypeError, Error: "invalid payload"})
			continue
		}

		switch frame.Type {
		case protocol.TypePing:
			conn.send(protocol.Pong{Type: protocol.TypePong, ID: frame.ID})
		case protocol.TypeExec:
			if frame.Command == "" {
				conn.send(protocol.ErrorFrame{Type: protocol.TypeError, ID: frame.ID, Error: "missing command"})
				continue
			}
			// Each command runs on its own goroutine: a slow command must
			// not block pings or later commands. The client correlates by
			// frame id, not arrival order.
			go s.runCommand(r.Context(), conn, exec, frame)
		}
	}
}

func (s *Server) runCommand(ctx context.Context, conn *cmdConn, exec sandbox.Executor, frame protocol.CommandFrame) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CommandTimeout.Std())
	defer cancel()

	res, err := exec.Exec(ctx, frame.Command)
	if err != nil {
		log.Printf("[ws] %s: exec %s: %v", conn.sessionID, frame.ID, err)
		conn.send(protocol.ErrorFrame{Type: protocol.TypeError, ID: frame.ID, Error: err.Error()})
		return
	}
	conn.send(protocol.ExecResult{
		Type:     protocol.TypeExecResult,
		ID:       frame.ID,
		Success:  res.Success,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
	})
}
