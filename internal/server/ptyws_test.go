package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/choonkeat/sandterm/internal/config"
	"github.com/choonkeat/sandterm/internal/protocol"
	"github.com/choonkeat/sandterm/internal/sandbox"
	"github.com/choonkeat/sandterm/internal/session"
)

func dialPTY(t *testing.T, mutate func(*config.Settings)) *websocket.Conn {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	if mutate != nil {
		mutate(&cfg)
	}
	srv := New(cfg, session.NewMemoryStore(), sandbox.NewManager(cfg.DataDir))
	ts := httptest.NewServer(srv.PTYRouter())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/terminal"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { ws.Close() })

	var ready protocol.Ready
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := ws.ReadJSON(&ready); err != nil {
		t.Fatalf("read ready: %v", err)
	}
	if ready.Type != protocol.TypeReady {
		t.Fatalf("first frame type = %q, want ready", ready.Type)
	}
	return ws
}

func sendText(t *testing.T, ws *websocket.Conn, s string) {
	t.Helper()
	if err := ws.WriteMessage(websocket.TextMessage, []byte(s)); err != nil {
		t.Fatal(err)
	}
}

func sendControl(t *testing.T, ws *websocket.Conn, ctl protocol.PTYControl) {
	t.Helper()
	if err := ws.WriteJSON(ctl); err != nil {
		t.Fatal(err)
	}
}

// readOutputUntil accumulates binary output frames until substr appears.
func readOutputUntil(t *testing.T, ws *websocket.Conn, timeout time.Duration, substr string) string {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var out strings.Builder
	for time.Now().Before(deadline) {
		ws.SetReadDeadline(deadline)
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %q, got error after %q: %v", substr, out.String(), err)
		}
		if msgType == websocket.BinaryMessage {
			out.Write(data)
			if strings.Contains(out.String(), substr) {
				return out.String()
			}
		}
	}
	t.Fatalf("timed out waiting for %q in %q", substr, out.String())
	return ""
}

// readUntilExit accumulates output until the process-exit frame arrives.
func readUntilExit(t *testing.T, ws *websocket.Conn, timeout time.Duration) (protocol.ProcessExit, string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var out strings.Builder
	for {
		ws.SetReadDeadline(deadline)
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for process-exit, got error after %q: %v", out.String(), err)
		}
		switch msgType {
		case websocket.BinaryMessage:
			out.Write(data)
		case websocket.TextMessage:
			var exit protocol.ProcessExit
			if err := json.Unmarshal(data, &exit); err == nil && exit.Type == protocol.TypeProcessExit {
				return exit, out.String()
			}
		}
	}
}

// TestPTYSessionLifecycle runs the full interactive flow: init, a typed
// command, shell exit, process-exit frame, then a clean close.
func TestPTYSessionLifecycle(t *testing.T) {
	ws := dialPTY(t, nil)

	sendControl(t, ws, protocol.PTYControl{Type: protocol.TypeInit})
	sendText(t, ws, "echo marker-$((40+2))\n")
	readOutputUntil(t, ws, 10*time.Second, "marker-42")

	sendText(t, ws, "exit\n")
	exit, _ := readUntilExit(t, ws, 10*time.Second)
	if exit.ExitCode != 0 || exit.Signal != "" {
		t.Errorf("exit = %+v, want code 0 no signal", exit)
	}

	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := ws.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal closure after exit, got %v", err)
	}
}

// TestPTYInitIdempotent verifies a duplicate init does not restart or kill
// the running shell.
func TestPTYInitIdempotent(t *testing.T) {
	ws := dialPTY(t, nil)

	sendControl(t, ws, protocol.PTYControl{Type: protocol.TypeInit})
	sendText(t, ws, "echo first-shell\n")
	readOutputUntil(t, ws, 10*time.Second, "first-shell")

	sendControl(t, ws, protocol.PTYControl{Type: protocol.TypeInit, Shell: "/bin/sh"})
	sendText(t, ws, "echo still-alive\n")
	readOutputUntil(t, ws, 10*time.Second, "still-alive")
}

// TestPTYResize verifies a valid resize reaches the terminal and that
// non-positive dimensions are ignored without killing the session.
func TestPTYResize(t *testing.T) {
	ws := dialPTY(t, nil)

	sendControl(t, ws, protocol.PTYControl{Type: protocol.TypeInit})
	sendText(t, ws, "echo booted\n")
	readOutputUntil(t, ws, 10*time.Second, "booted")

	sendControl(t, ws, protocol.PTYControl{Type: protocol.TypeResize, Cols: 0, Rows: 10})
	sendControl(t, ws, protocol.PTYControl{Type: protocol.TypeResize, Cols: 100, Rows: -1})
	sendControl(t, ws, protocol.PTYControl{Type: protocol.TypeResize, Cols: 100, Rows: 24})

	sendText(t, ws, "stty size\n")
	out := readOutputUntil(t, ws, 10*time.Second, "24 100")
	if strings.Contains(out, "10 ") {
		t.Errorf("zero-col resize appears to have been applied: %q", out)
	}
}

// TestPTYPreInitInputDropped verifies keystrokes before init never reach a
// later shell.
func TestPTYPreInitInputDropped(t *testing.T) {
	ws := dialPTY(t, nil)

	sendText(t, ws, "echo leaked\n")
	sendControl(t, ws, protocol.PTYControl{Type: protocol.TypeInit})
	sendText(t, ws, "echo sentinel\n")
	out := readOutputUntil(t, ws, 10*time.Second, "sentinel")
	if strings.Contains(out, "leaked") {
		t.Errorf("pre-init input reached the shell: %q", out)
	}
}

// TestPTYPing verifies the keepalive answer works before and after init.
func TestPTYPing(t *testing.T) {
	ws := dialPTY(t, nil)

	sendControl(t, ws, protocol.PTYControl{Type: protocol.TypePing})
	var pong protocol.Pong
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := ws.ReadJSON(&pong); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if pong.Type != protocol.TypePong {
		t.Errorf("reply type = %q, want pong", pong.Type)
	}
}

// TestPTYBurstCoalesced verifies a large burst arrives in far fewer socket
// messages than output chunks, without losing bytes.
func TestPTYBurstCoalesced(t *testing.T) {
	ws := dialPTY(t, nil)

	sendControl(t, ws, protocol.PTYControl{Type: protocol.TypeInit})
	sendText(t, ws, "for i in $(seq 1 200); do echo line-$i; done; echo burst-done\n")

	deadline := time.Now().Add(10 * time.Second)
	var out strings.Builder
	messages := 0
	for !strings.Contains(out.String(), "burst-done") {
		ws.SetReadDeadline(deadline)
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if msgType == websocket.BinaryMessage {
			messages++
			out.Write(data)
		}
	}
	for _, want := range []string{"line-1", "line-200"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output lost %q", want)
		}
	}
	if messages > 100 {
		t.Errorf("burst arrived in %d messages, coalescing not effective", messages)
	}
}
