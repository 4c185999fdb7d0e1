// Package client implements the sandterm CLI's side of the protocol: the
// reconnecting command channel, the HTTP exec runner with SSE consumption,
// the warmup loop, and durable session identity.
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/choonkeat/sandterm/internal/protocol"
)

var (
	// ErrConnectionClosed rejects commands that were in flight when the
	// socket died. Callers may retry after the reconnect.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrConnectTimeout reports a dial that did not complete in time.
	ErrConnectTimeout = errors.New("connect timeout")
)

// Status is reported to the OnStatus callback as the connection moves
// through its lifecycle.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

// ConnOptions tunes the command channel connection.
type ConnOptions struct {
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	ConnectTimeout time.Duration
	OnStatus       func(Status)
}

type execResult struct {
	res *protocol.ExecResult
	err error
}

// Conn is a command channel client. It dials lazily, de-duplicates
// concurrent connection attempts, correlates results by message id, and
// schedules a single fixed-delay reconnect when the socket drops.
type Conn struct {
	url  string
	opts ConnOptions

	writeMu sync.Mutex

	mu        sync.Mutex
	ws        *websocket.Conn
	connDone  chan struct{} // per-connection, closed when the socket dies
	attempt   chan struct{} // non-nil while a dial is in flight
	dialErr   error
	pending   map[string]chan execResult
	reconnect *time.Timer
	closed    bool
}

// NewConn prepares a client for the command channel at url (a ws:// or
// wss:// URL that already carries the sessionId). No I/O happens until the
// first Exec or an explicit Connect.
func NewConn(url string, opts ConnOptions) *Conn {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 2 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	return &Conn{
		url:     url,
		opts:    opts,
		pending: make(map[string]chan execResult),
	}
}

func (c *Conn) status(s Status) {
	if c.opts.OnStatus != nil {
		c.opts.OnStatus(s)
	}
}

// Connect ensures a live socket, sharing any attempt already in flight so
// concurrent callers never open duplicate connections.
func (c *Conn) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	if c.ws != nil {
		c.mu.Unlock()
		return nil
	}
	if c.attempt == nil {
		c.attempt = make(chan struct{})
		go c.dial()
	}
	attempt := c.attempt
	c.mu.Unlock()

	<-attempt

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws != nil {
		return nil
	}
	if c.dialErr != nil {
		return c.dialErr
	}
	return ErrConnectionClosed
}

func (c *Conn) dial() {
	c.status(StatusConnecting)
	dialer := websocket.Dialer{HandshakeTimeout: c.opts.ConnectTimeout}
	ws, _, err := dialer.Dial(c.url, nil)

	c.mu.Lock()
	attempt := c.attempt
	c.attempt = nil
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) {
			c.dialErr = fmt.Errorf("dial %s: %w", c.url, err)
		} else {
			c.dialErr = fmt.Errorf("dial %s: %w: %v", c.url, ErrConnectTimeout, err)
		}
		c.mu.Unlock()
		close(attempt)
		c.status(StatusDisconnected)
		c.scheduleReconnect()
		return
	}
	if c.closed {
		c.mu.Unlock()
		close(attempt)
		ws.Close()
		return
	}
	c.ws = ws
	c.dialErr = nil
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	done := make(chan struct{})
	c.connDone = done
	c.mu.Unlock()
	close(attempt)

	c.status(StatusConnected)
	log.Printf("[conn] connected to %s", c.url)
	go c.pingLoop(ws, done)
	go c.readLoop(ws)
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.handleDisconnect(ws, err)
			return
		}
		frame, err := protocol.DecodeServerFrame(data)
		if err != nil {
			log.Printf("[conn] %v", err)
			continue
		}
		switch {
		case frame.Result != nil:
			c.resolve(frame.Result.ID, execResult{res: frame.Result})
		case frame.Err != nil:
			if frame.Err.ID == "" {
				log.Printf("[conn] server error: %s", frame.Err.Error)
				continue
			}
			c.resolve(frame.Err.ID, execResult{err: errors.New(frame.Err.Error)})
		case frame.PongFrame != nil:
			// Keepalive answer, or the server's greeting.
		}
	}
}

// resolve delivers a terminal result for id. The pending entry is removed
// before delivery so nothing can resolve the same id twice.
func (c *Conn) resolve(id string, r execResult) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		log.Printf("[conn] result for unknown id %s dropped", id)
		return
	}
	ch <- r
}

func (c *Conn) handleDisconnect(ws *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.ws != ws {
		// A newer connection already replaced this one.
		c.mu.Unlock()
		return
	}
	c.ws = nil
	if c.connDone != nil {
		close(c.connDone)
		c.connDone = nil
	}
	orphaned := c.pending
	c.pending = make(map[string]chan execResult)
	closed := c.closed
	c.mu.Unlock()

	ws.Close()
	log.Printf("[conn] disconnected: %v", cause)
	for _, ch := range orphaned {
		ch <- execResult{err: ErrConnectionClosed}
	}
	c.status(StatusDisconnected)
	if !closed {
		c.scheduleReconnect()
	}
}

// scheduleReconnect arms the fixed-delay retry. At most one timer is ever
// pending, and a successful connect cancels it.
func (c *Conn) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.reconnect != nil {
		return
	}
	c.reconnect = time.AfterFunc(c.opts.ReconnectDelay, func() {
		c.mu.Lock()
		c.reconnect = nil
		if c.closed || c.ws != nil || c.attempt != nil {
			c.mu.Unlock()
			return
		}
		c.attempt = make(chan struct{})
		c.mu.Unlock()
		c.dial()
	})
}

func (c *Conn) pingLoop(ws *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := ws.WriteJSON(protocol.CommandFrame{Type: protocol.TypePing, ID: uuid.NewString()})
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Exec sends a command over the channel and waits for its correlated
// result. Each call resolves exactly once: with the server's result, with a
// server error frame, with ErrConnectionClosed, or with ctx's error.
func (c *Conn) Exec(ctx context.Context, command string) (*protocol.ExecResult, error) {
	if err := c.Connect(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	ch := make(chan execResult, 1)

	c.mu.Lock()
	ws := c.ws
	if ws == nil {
		c.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err := ws.WriteJSON(protocol.CommandFrame{Type: protocol.TypeExec, ID: id, Command: command})
	c.writeMu.Unlock()
	if err != nil {
		c.abandon(id)
		return nil, fmt.Errorf("send exec: %w", ErrConnectionClosed)
	}

	select {
	case r := <-ch:
		return r.res, r.err
	case <-ctx.Done():
		c.abandon(id)
		return nil, ctx.Err()
	}
}

func (c *Conn) abandon(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Close tears the connection down for good; no reconnect follows.
func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	ws := c.ws
	c.mu.Unlock()

	if ws != nil {
		c.writeMu.Lock()
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		ws.Close()
	}
}
