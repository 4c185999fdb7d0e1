package server

import (
	"bytes"
	"sync"
	"time"
)

// outputBuffer coalesces PTY output into batched socket messages. Chunks
// accumulate until the flush delay elapses, the high-water mark is crossed,
// or user input is pending (keystroke echo must not wait out the delay).
// Bytes leave in exactly the order they arrived.
type outputBuffer struct {
	delay     time.Duration
	highWater int
	sink      func([]byte)

	mu           sync.Mutex
	buf          bytes.Buffer
	timer        *time.Timer
	inputPending bool
	stopped      bool
}

func newOutputBuffer(delay time.Duration, highWater int, sink func([]byte)) *outputBuffer {
	return &outputBuffer{delay: delay, highWater: highWater, sink: sink}
}

// Write appends a chunk and either flushes immediately or arms the flush
// timer. Only one timer is ever pending.
func (b *outputBuffer) Write(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.buf.Write(p)
	if b.inputPending || b.buf.Len() > b.highWater {
		b.flushLocked()
		return
	}
	if b.timer == nil {
		b.timer = time.AfterFunc(b.delay, b.timerFired)
	}
}

// NoteInput marks that the user just typed. The next output chunk flushes
// without waiting for the timer.
func (b *outputBuffer) NoteInput() {
	b.mu.Lock()
	b.inputPending = true
	b.mu.Unlock()
}

// Flush forces out whatever is buffered. Used before process-exit so the
// tail of the output is never lost behind a pending timer.
func (b *outputBuffer) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.flushLocked()
}

// Stop cancels the timer and drops anything still buffered.
func (b *outputBuffer) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.buf.Reset()
}

func (b *outputBuffer) timerFired() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timer = nil
	if b.stopped {
		return
	}
	b.flushLocked()
}

func (b *outputBuffer) flushLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.inputPending = false
	if b.buf.Len() == 0 {
		return
	}
	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	b.buf.Reset()
	b.sink(out)
}
