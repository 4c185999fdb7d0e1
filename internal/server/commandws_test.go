package server

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/choonkeat/sandterm/internal/config"
	"github.com/choonkeat/sandterm/internal/protocol"
)

func dialCommandWS(t *testing.T, httpURL, sessionID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + "/api/ws?sessionId=" + sessionID
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { ws.Close() })

	// The server greets with a pong before anything else.
	var greeting protocol.Pong
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := ws.ReadJSON(&greeting); err != nil {
		t.Fatalf("read greeting: %v", err)
	}
	if greeting.Type != protocol.TypePong {
		t.Fatalf("greeting type = %q, want pong", greeting.Type)
	}
	return ws
}

func readServerFrame(t *testing.T, ws *websocket.Conn, timeout time.Duration) protocol.ServerFrame {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	frame, err := protocol.DecodeServerFrame(data)
	if err != nil {
		t.Fatalf("decode frame %q: %v", data, err)
	}
	return frame
}

// TestCommandChannelExec covers the basic path: an exec frame comes back as
// an execResult with matching id and the command's output.
func TestCommandChannelExec(t *testing.T) {
	_, ts := newTestServer(t, nil)
	ws := dialCommandWS(t, ts.URL, "session-a")

	if err := ws.WriteJSON(protocol.CommandFrame{
		Type: protocol.TypeExec, ID: "cmd-1", Command: "echo hi",
	}); err != nil {
		t.Fatal(err)
	}

	frame := readServerFrame(t, ws, 10*time.Second)
	if frame.Result == nil {
		t.Fatalf("expected execResult, got %+v", frame)
	}
	res := frame.Result
	if res.ID != "cmd-1" {
		t.Errorf("id = %q, want cmd-1", res.ID)
	}
	if !res.Success || res.ExitCode != 0 || res.Stdout != "hi\n" {
		t.Errorf("result = %+v", res)
	}
}

// TestCommandChannelTimeout verifies a command past the timeout is killed
// and reported as a failure with a non-zero exit code.
func TestCommandChannelTimeout(t *testing.T) {
	_, ts := newTestServer(t, func(c *config.Settings) {
		c.CommandTimeout = config.Duration(300 * time.Millisecond)
	})
	ws := dialCommandWS(t, ts.URL, "session-a")

	if err := ws.WriteJSON(protocol.CommandFrame{
		Type: protocol.TypeExec, ID: "cmd-slow", Command: "sleep 30",
	}); err != nil {
		t.Fatal(err)
	}

	frame := readServerFrame(t, ws, 10*time.Second)
	if frame.Result == nil {
		t.Fatalf("expected execResult, got %+v", frame)
	}
	if frame.Result.Success {
		t.Error("success=true for timed-out command")
	}
	if frame.Result.ExitCode == 0 {
		t.Error("exitCode = 0 for timed-out command")
	}
}

// TestCommandChannelConcurrent sends a slow and a fast command and checks
// both resolve under their own ids, whatever the completion order.
func TestCommandChannelConcurrent(t *testing.T) {
	_, ts := newTestServer(t, nil)
	ws := dialCommandWS(t, ts.URL, "session-a")

	for _, f := range []protocol.CommandFrame{
		{Type: protocol.TypeExec, ID: "slow", Command: "sleep 0.3; echo slow-done"},
		{Type: protocol.TypeExec, ID: "fast", Command: "echo fast-done"},
	} {
		if err := ws.WriteJSON(f); err != nil {
			t.Fatal(err)
		}
	}

	results := map[string]*protocol.ExecResult{}
	for len(results) < 2 {
		frame := readServerFrame(t, ws, 10*time.Second)
		if frame.Result == nil {
			t.Fatalf("unexpected frame %+v", frame)
		}
		if _, seen := results[frame.Result.ID]; seen {
			t.Fatalf("id %q resolved twice", frame.Result.ID)
		}
		results[frame.Result.ID] = frame.Result
	}
	if results["fast"].Stdout != "fast-done\n" || results["slow"].Stdout != "slow-done\n" {
		t.Errorf("results: fast=%+v slow=%+v", results["fast"], results["slow"])
	}
}

// TestCommandChannelErrors covers the in-band error frames: malformed
// payloads stay non-fatal and an empty command is rejected per id.
func TestCommandChannelErrors(t *testing.T) {
	_, ts := newTestServer(t, nil)
	ws := dialCommandWS(t, ts.URL, "session-a")

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	frame := readServerFrame(t, ws, 5*time.Second)
	if frame.Err == nil || frame.Err.Error != "invalid payload" {
		t.Fatalf("malformed payload: %+v", frame)
	}

	if err := ws.WriteJSON(protocol.CommandFrame{Type: protocol.TypeExec, ID: "e1"}); err != nil {
		t.Fatal(err)
	}
	frame = readServerFrame(t, ws, 5*time.Second)
	if frame.Err == nil || frame.Err.ID != "e1" || frame.Err.Error != "missing command" {
		t.Fatalf("empty command: %+v", frame)
	}

	// The connection survived both errors.
	if err := ws.WriteJSON(protocol.CommandFrame{Type: protocol.TypePing, ID: "p1"}); err != nil {
		t.Fatal(err)
	}
	frame = readServerFrame(t, ws, 5*time.Second)
	if frame.PongFrame == nil || frame.PongFrame.ID != "p1" {
		t.Fatalf("ping reply: %+v", frame)
	}
}

// TestCommandChannelRequiresSession verifies the handshake is refused
// without a session id.
func TestCommandChannelRequiresSession(t *testing.T) {
	_, ts := newTestServer(t, nil)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial succeeded without sessionId")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("handshake response: %+v", resp)
	}
}

// TestCommandChannelHeaderSession verifies the X-Session-ID header works as
// the query parameter's fallback.
func TestCommandChannelHeaderSession(t *testing.T) {
	_, ts := newTestServer(t, nil)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	header := http.Header{"X-Session-Id": []string{"session-h"}}
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial with header: %v", err)
	}
	defer ws.Close()

	var greeting protocol.Pong
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := ws.ReadJSON(&greeting); err != nil {
		t.Fatalf("read greeting: %v", err)
	}
}
