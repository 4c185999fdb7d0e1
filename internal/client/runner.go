package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/choonkeat/sandterm/internal/protocol"
)

// ErrMalformedResponse marks a non-streaming exec reply that was not valid
// JSON. It is distinct from transport errors so callers can tell a broken
// server from an unreachable one.
var ErrMalformedResponse = errors.New("malformed response")

// Kind classifies a command line by its first token.
type Kind int

const (
	// KindSimple runs over the command channel or plain HTTP exec.
	KindSimple Kind = iota
	// KindStreaming runs over HTTP exec with SSE output.
	KindStreaming
	// KindInteractive attaches a PTY bridge session.
	KindInteractive
)

// EventHandler receives streamed execution events in arrival order.
type EventHandler interface {
	OnStart()
	OnStdout(data string)
	OnStderr(data string)
	OnComplete(exitCode int)
	OnError(msg string)
}

// Runner executes commands against the HTTP API for one session.
type Runner struct {
	baseURL     string
	sessionID   string
	httpc       *http.Client
	streaming   map[string]bool
	interactive map[string]bool
}

// NewRunner builds a runner. streaming and interactive name the commands
// (first tokens) that get the SSE channel and the PTY bridge respectively.
func NewRunner(baseURL, sessionID string, streaming, interactive []string) *Runner {
	r := &Runner{
		baseURL:     strings.TrimRight(baseURL, "/"),
		sessionID:   sessionID,
		httpc:       &http.Client{},
		streaming:   make(map[string]bool),
		interactive: make(map[string]bool),
	}
	for _, c := range streaming {
		r.streaming[c] = true
	}
	for _, c := range interactive {
		r.interactive[c] = true
	}
	return r
}

// Classify picks the transport for a command line.
func (r *Runner) Classify(command string) Kind {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return KindSimple
	}
	switch {
	case r.interactive[fields[0]]:
		return KindInteractive
	case r.streaming[fields[0]]:
		return KindStreaming
	default:
		return KindSimple
	}
}

func (r *Runner) post(ctx context.Context, path string, body any, accept string) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return r.httpc.Do(req)
}

// Exec runs a command through the plain JSON exec endpoint.
func (r *Runner) Exec(ctx context.Context, command string) (protocol.ExecResponse, error) {
	resp, err := r.post(ctx, "/api/exec", protocol.ExecRequest{
		Command:   command,
		SessionID: r.sessionID,
	}, "")
	if err != nil {
		return protocol.ExecResponse{}, fmt.Errorf("exec request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return protocol.ExecResponse{}, fmt.Errorf("read exec response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var res protocol.ExecResponse
		if json.Unmarshal(body, &res) == nil && res.Error != "" {
			return res, fmt.Errorf("exec failed: %s", res.Error)
		}
		return protocol.ExecResponse{}, fmt.Errorf("exec failed: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var res protocol.ExecResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return protocol.ExecResponse{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return res, nil
}

// ExecStream runs a command with SSE output, dispatching events to h as
// they arrive. Servers that answer without an event-stream content type
// fall back to the single-JSON parse, so a handler always sees a coherent
// start/.../terminal sequence.
func (r *Runner) ExecStream(ctx context.Context, command string, h EventHandler) error {
	resp, err := r.post(ctx, "/api/exec", protocol.ExecRequest{
		Command:   command,
		SessionID: r.sessionID,
	}, "text/event-stream")
	if err != nil {
		return fmt.Errorf("exec request: %w", err)
	}
	defer resp.Body.Close()

	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		return r.fallbackJSON(resp, h)
	}

	parser := &sseParser{}
	chunk := make([]byte, 4096)
	total := 0
	for {
		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			total += n
			for _, ev := range parser.feed(chunk[:n]) {
				dispatch(ev, h)
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				return fmt.Errorf("read stream: %w", readErr)
			}
			break
		}
	}
	if total == 0 {
		// An empty body is not a stream no matter what the header says.
		return r.fallbackJSON(resp, h)
	}
	for _, ev := range parser.flush() {
		dispatch(ev, h)
	}
	return nil
}

func (r *Runner) fallbackJSON(resp *http.Response, h EventHandler) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read exec response: %w", err)
	}
	var res protocol.ExecResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	h.OnStart()
	if res.Stdout != "" {
		h.OnStdout(res.Stdout)
	}
	if res.Stderr != "" {
		h.OnStderr(res.Stderr)
	}
	if res.Error != "" && !res.Success {
		h.OnError(res.Error)
		return nil
	}
	h.OnComplete(res.ExitCode)
	return nil
}

func dispatch(ev protocol.StreamEvent, h EventHandler) {
	switch ev.Type {
	case protocol.EventStart:
		h.OnStart()
	case protocol.EventStdout:
		h.OnStdout(ev.Data)
	case protocol.EventStderr:
		h.OnStderr(ev.Data)
	case protocol.EventComplete:
		h.OnComplete(ev.ExitCode)
	case protocol.EventError:
		h.OnError(ev.Error)
	default:
		log.Printf("[exec] unknown stream event type %q", ev.Type)
	}
}

// Warmup pings the health endpoint, registering the tab and keeping the
// sandbox hot.
func (r *Runner) Warmup(ctx context.Context, tabID string) error {
	resp, err := r.post(ctx, "/api/health", protocol.HealthRequest{
		SessionID: r.sessionID,
		TabID:     tabID,
	}, "")
	if err != nil {
		return fmt.Errorf("warmup request: %w", err)
	}
	defer resp.Body.Close()

	var res protocol.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if !res.Success {
		return fmt.Errorf("warmup failed: %s", res.Error)
	}
	return nil
}

// Release is the fire-and-forget tab teardown used on exit, the CLI's
// equivalent of the page-close beacon. Errors are logged, never returned.
func (r *Runner) Release(tabID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := r.post(ctx, "/api/reset", protocol.ResetRequest{
		SessionID: r.sessionID,
		TabID:     tabID,
	}, "")
	if err != nil {
		log.Printf("[session] release: %v", err)
		return
	}
	resp.Body.Close()
}
