// Package protocol defines the wire frames shared by the sandterm server and
// client: the command/control WebSocket channel, the interactive PTY bridge
// control frames, and the HTTP exec channel payloads (JSON and SSE).
//
// All frames are JSON objects discriminated by a "type" field. Decoding is
// done once at the connection boundary; code past the boundary works with
// typed frames only.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Command channel frame types.
const (
	TypeExec       = "exec"
	TypePing       = "ping"
	TypePong       = "pong"
	TypeExecResult = "execResult"
	TypeError      = "error"
)

// PTY bridge frame types.
const (
	TypeReady       = "ready"
	TypeInit        = "init"
	TypeResize      = "resize"
	TypeProcessExit = "process-exit"
)

// Stream event types on the SSE exec channel.
const (
	EventStart    = "start"
	EventStdout   = "stdout"
	EventStderr   = "stderr"
	EventComplete = "complete"
	EventError    = "error"
)

// CommandFrame is a client-to-server frame on the command channel:
// exec requests and keepalive pings.
type CommandFrame struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Command string `json:"command,omitempty"`
}

// ExecResult is the server's terminal response to an exec frame,
// correlated by ID. ExitCode is meaningful only when the process ran.
type ExecResult struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Success  bool   `json:"success"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// ErrorFrame reports a failure on either channel. ID is set when the error
// terminates a specific in-flight command, empty for connection-level errors.
type ErrorFrame struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
}

// Pong answers a ping, echoing the ping's ID when one was given. The server
// also sends an unsolicited pong as a greeting when the command channel opens.
type Pong struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

// ServerFrame is the decoded union of server-to-client command channel
// frames. Exactly one of Result, Err, or PongFrame is non-nil.
type ServerFrame struct {
	Result    *ExecResult
	Err       *ErrorFrame
	PongFrame *Pong
}

// envelope sniffs the discriminator before the typed decode.
type envelope struct {
	Type string `json:"type"`
}

// DecodeCommandFrame parses and validates a client frame on the command
// channel. Unknown or missing types are rejected here so handlers never see
// an unvalidated tag.
func DecodeCommandFrame(data []byte) (CommandFrame, error) {
	var f CommandFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return CommandFrame{}, fmt.Errorf("decode command frame: %w", err)
	}
	switch f.Type {
	case TypeExec, TypePing:
		return f, nil
	default:
		return CommandFrame{}, fmt.Errorf("decode command frame: unknown type %q", f.Type)
	}
}

// DecodeServerFrame parses a server frame on the command channel.
func DecodeServerFrame(data []byte) (ServerFrame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ServerFrame{}, fmt.Errorf("decode server frame: %w", err)
	}
	switch env.Type {
	case TypeExecResult:
		var r ExecResult
		if err := json.Unmarshal(data, &r); err != nil {
			return ServerFrame{}, fmt.Errorf("decode execResult: %w", err)
		}
		return ServerFrame{Result: &r}, nil
	case TypeError:
		var e ErrorFrame
		if err := json.Unmarshal(data, &e); err != nil {
			return ServerFrame{}, fmt.Errorf("decode error frame: %w", err)
		}
		return ServerFrame{Err: &e}, nil
	case TypePong:
		var p Pong
		if err := json.Unmarshal(data, &p); err != nil {
			return ServerFrame{}, fmt.Errorf("decode pong: %w", err)
		}
		return ServerFrame{PongFrame: &p}, nil
	default:
		return ServerFrame{}, fmt.Errorf("decode server frame: unknown type %q", env.Type)
	}
}

// PTYControl is a client control frame on the PTY bridge: init, resize,
// or ping. Cols/Rows of zero on init mean "use the server default".
type PTYControl struct {
	Type  string `json:"type"`
	Cols  int    `json:"cols,omitempty"`
	Rows  int    `json:"rows,omitempty"`
	Shell string `json:"shell,omitempty"`
}

// DecodePTYControl parses a text frame from the PTY bridge. ok is false when
// the payload is not a recognized control frame, in which case the bytes are
// raw terminal input and must be written to the PTY verbatim.
func DecodePTYControl(data []byte) (PTYControl, bool) {
	var c PTYControl
	if err := json.Unmarshal(data, &c); err != nil {
		return PTYControl{}, false
	}
	switch c.Type {
	case TypeInit, TypeResize, TypePing:
		return c, true
	default:
		return PTYControl{}, false
	}
}

// Ready is the first frame the PTY bridge sends after the socket opens.
type Ready struct {
	Type string `json:"type"`
}

// ProcessExit announces the PTY child's death. Exactly one of ExitCode or
// Signal is meaningful; Signal is the name of the terminating signal, empty
// for a normal exit.
type ProcessExit struct {
	Type     string `json:"type"`
	ExitCode int    `json:"exitCode"`
	Signal   string `json:"signal,omitempty"`
}

// ExecRequest is the body of POST /api/exec.
type ExecRequest struct {
	Command   string `json:"command"`
	SessionID string `json:"sessionId"`
}

// ExecResponse is the single-JSON reply of POST /api/exec, and the shape a
// streaming client reconstructs from SSE events.
type ExecResponse struct {
	Success  bool   `json:"success"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
	Error    string `json:"error,omitempty"`
}

// StreamEvent is one SSE event on the streaming exec channel.
type StreamEvent struct {
	Type     string `json:"type"`
	Data     string `json:"data,omitempty"`
	ExitCode int    `json:"exitCode,omitempty"`
	Error    string `json:"error,omitempty"`
}

// HealthRequest is the body of POST /api/health.
type HealthRequest struct {
	SessionID string `json:"sessionId"`
	TabID     string `json:"tabId,omitempty"`
}

// ResetRequest is the body of POST /api/reset. GET carries the same fields
// as query parameters.
type ResetRequest struct {
	SessionID string `json:"sessionId"`
	TabID     string `json:"tabId,omitempty"`
}

// APIResponse is the generic JSON reply of the health and reset endpoints.
type APIResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	ActiveTabs int    `json:"activeTabs,omitempty"`
}
