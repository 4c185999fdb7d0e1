package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/choonkeat/sandterm/internal/protocol"
	"github.com/choonkeat/sandterm/internal/sandbox"
	"github.com/choonkeat/sandterm/internal/session"
)

// handleExec runs one command in the session's sandbox. The default reply is
// a single JSON body; clients that send Accept: text/event-stream get the
// output incrementally as SSE events instead.
func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	var req protocol.ExecRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Command == "" || req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, protocol.ExecResponse{
			Success: false,
			Error:   "missing command or sessionId",
		})
		return
	}

	exec, _, err := s.resolveSandbox(req.SessionID, "")
	if err != nil {
		log.Printf("[exec] resolve %s: %v", req.SessionID, err)
		writeJSON(w, http.StatusInternalServerError, protocol.ExecResponse{
			Success: false,
			Error:   "sandbox unavailable",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.CommandTimeout.Std())
	defer cancel()

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		s.streamExec(ctx, w, exec, req.Command)
		return
	}

	res, err := exec.Exec(ctx, req.Command)
	if err != nil {
		log.Printf("[exec] %s: %v", req.SessionID, err)
		writeJSON(w, http.StatusInternalServerError, protocol.ExecResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, protocol.ExecResponse{
		Success:  res.Success,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
	})
}

// sseWriter emits stream events as `data: {...}` frames, flushing after
// each one so output reaches the client as it happens.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseWriter) event(ev protocol.StreamEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[exec] marshal stream event: %v", err)
		return
	}
	fmt.Fprintf(s.w, "data: %s\n\n", data)
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

func (s *sseWriter) Start()             { s.event(protocol.StreamEvent{Type: protocol.EventStart}) }
func (s *sseWriter) Stdout(data []byte) {
	s.event(protocol.StreamEvent{Type: protocol.EventStdout, Data: string(data)})
}
func (s *sseWriter) Stderr(data []byte) {
	s.event(protocol.StreamEvent{Type: protocol.EventStderr, Data: string(data)})
}

func (s *Server) streamExec(ctx context.Context, w http.ResponseWriter, exec sandbox.Executor, command string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sink := &sseWriter{w: w}
	if f, ok := w.(http.Flusher); ok {
		sink.flusher = f
	}

	res, err := exec.ExecStream(ctx, command, sink)
	if err != nil {
		sink.event(protocol.StreamEvent{Type: protocol.EventError, Error: err.Error()})
		return
	}
	sink.event(protocol.StreamEvent{Type: protocol.EventComplete, ExitCode: res.ExitCode})
}

// handleHealth is the warmup endpoint: it registers the tab, verifies the
// sandbox can run a command, and reports the tab count.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var req protocol.HealthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, protocol.APIResponse{
			Success: false,
			Error:   "missing sessionId",
		})
		return
	}

	exec, activeTabs, err := s.resolveSandbox(req.SessionID, req.TabID)
	if err != nil {
		log.Printf("[warmup] resolve %s: %v", req.SessionID, err)
		writeJSON(w, http.StatusInternalServerError, protocol.APIResponse{
			Success: false,
			Error:   "sandbox warmup failed",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthTimeout.Std())
	defer cancel()

	res, err := exec.Exec(ctx, "true")
	if err != nil || !res.Success {
		log.Printf("[warmup] %s: health exec failed: %v", req.SessionID, err)
		writeJSON(w, http.StatusInternalServerError, protocol.APIResponse{
			Success: false,
			Error:   "sandbox warmup failed",
		})
		return
	}
	writeJSON(w, http.StatusOK, protocol.APIResponse{
		Success:    true,
		ActiveTabs: activeTabs,
	})
}

// handleReset releases one tab from a session. The last tab out destroys
// the sandbox. GET carries query parameters so closing pages can fire it as
// a beacon; POST takes a JSON body.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req protocol.ResetRequest
	if r.Method == http.MethodGet {
		req.SessionID = r.URL.Query().Get("sessionId")
		req.TabID = r.URL.Query().Get("tabId")
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.APIResponse{
			Success: false,
			Error:   "invalid request body",
		})
		return
	}
	if req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, protocol.APIResponse{
			Success: false,
			Error:   "missing sessionId",
		})
		return
	}

	remaining, found := s.store.Release(req.SessionID, req.TabID)
	switch {
	case !found:
		writeJSON(w, http.StatusOK, protocol.APIResponse{
			Success: true,
			Message: "session already destroyed",
		})
	case remaining > 0:
		log.Printf("[session] %s: tab %s released, %d remaining", req.SessionID, req.TabID, remaining)
		writeJSON(w, http.StatusOK, protocol.APIResponse{
			Success:    true,
			Message:    fmt.Sprintf("sandbox kept alive (%d tabs remaining)", remaining),
			ActiveTabs: remaining,
		})
	default:
		if err := s.sandboxes.Destroy(session.SandboxID(req.SessionID)); err != nil {
			log.Printf("[session] %s: destroy sandbox: %v", req.SessionID, err)
			writeJSON(w, http.StatusInternalServerError, protocol.APIResponse{
				Success: false,
				Message: "failed to destroy sandbox",
			})
			return
		}
		s.store.Destroy(req.SessionID)
		log.Printf("[session] %s: destroyed (last tab closed)", req.SessionID)
		writeJSON(w, http.StatusOK, protocol.APIResponse{
			Success: true,
			Message: "sandbox destroyed (last tab closed)",
		})
	}
}
