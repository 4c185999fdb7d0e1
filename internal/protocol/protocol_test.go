package protocol

import (
	"encoding/json"
	"testing"
)

// TestDecodeCommandFrame verifies that exec and ping frames decode and that
// unknown or malformed payloads are rejected at the boundary.
func TestDecodeCommandFrame(t *testing.T) {
	f, err := DecodeCommandFrame([]byte(`{"type":"exec","id":"abc","command":"ls"}`))
	if err != nil {
		t.Fatalf("decode exec: %v", err)
	}
	if f.Type != TypeExec || f.ID != "abc" || f.Command != "ls" {
		t.Errorf("unexpected frame: %+v", f)
	}

	f, err = DecodeCommandFrame([]byte(`{"type":"ping"}`))
	if err != nil {
		t.Fatalf("decode ping: %v", err)
	}
	if f.Type != TypePing {
		t.Errorf("expected ping, got %q", f.Type)
	}

	if _, err := DecodeCommandFrame([]byte(`{"type":"shutdown"}`)); err == nil {
		t.Error("expected error for unknown type")
	}
	if _, err := DecodeCommandFrame([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed payload")
	}
	if _, err := DecodeCommandFrame([]byte(`{}`)); err == nil {
		t.Error("expected error for missing type")
	}
}

// TestDecodeServerFrame verifies the server frame union decodes into exactly
// one branch per type.
func TestDecodeServerFrame(t *testing.T) {
	sf, err := DecodeServerFrame([]byte(`{"type":"execResult","id":"1","success":true,"stdout":"hi\n","stderr":"","exitCode":0}`))
	if err != nil {
		t.Fatalf("decode execResult: %v", err)
	}
	if sf.Result == nil || sf.Err != nil || sf.PongFrame != nil {
		t.Fatalf("expected result branch, got %+v", sf)
	}
	if sf.Result.Stdout != "hi\n" || !sf.Result.Success {
		t.Errorf("unexpected result: %+v", sf.Result)
	}

	sf, err = DecodeServerFrame([]byte(`{"type":"error","id":"1","error":"missing command"}`))
	if err != nil {
		t.Fatalf("decode error frame: %v", err)
	}
	if sf.Err == nil || sf.Err.Error != "missing command" {
		t.Errorf("unexpected error branch: %+v", sf)
	}

	sf, err = DecodeServerFrame([]byte(`{"type":"pong","id":"7"}`))
	if err != nil {
		t.Fatalf("decode pong: %v", err)
	}
	if sf.PongFrame == nil || sf.PongFrame.ID != "7" {
		t.Errorf("unexpected pong branch: %+v", sf)
	}

	if _, err := DecodeServerFrame([]byte(`{"type":"exec"}`)); err == nil {
		t.Error("client frame type must not decode as server frame")
	}
}

// TestDecodePTYControl verifies that init, resize, and ping decode as control
// frames while everything else falls through as raw terminal input.
func TestDecodePTYControl(t *testing.T) {
	c, ok := DecodePTYControl([]byte(`{"type":"init","cols":80,"rows":24,"shell":"/bin/sh"}`))
	if !ok {
		t.Fatal("init did not decode as control")
	}
	if c.Cols != 80 || c.Rows != 24 || c.Shell != "/bin/sh" {
		t.Errorf("unexpected init: %+v", c)
	}

	c, ok = DecodePTYControl([]byte(`{"type":"resize","cols":100,"rows":30}`))
	if !ok || c.Cols != 100 || c.Rows != 30 {
		t.Errorf("unexpected resize: %+v ok=%v", c, ok)
	}

	if _, ok := DecodePTYControl([]byte(`{"type":"ping"}`)); !ok {
		t.Error("ping did not decode as control")
	}

	// Typed keystrokes that happen to look JSON-ish stay raw input.
	for _, raw := range []string{"ls -la\n", `{"type":"exit"}`, "{", `{"cols":1}`} {
		if _, ok := DecodePTYControl([]byte(raw)); ok {
			t.Errorf("%q decoded as control, want raw input", raw)
		}
	}
}

// TestExecResultJSON pins the exact field names the browser client depends on.
func TestExecResultJSON(t *testing.T) {
	b, err := json.Marshal(ExecResult{Type: TypeExecResult, ID: "x", Success: false, ExitCode: 127})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"type", "id", "success", "stdout", "stderr", "exitCode"} {
		if _, present := m[k]; !present {
			t.Errorf("execResult missing field %q", k)
		}
	}
	if m["success"] != false {
		t.Error("success:false must serialize explicitly")
	}
}
