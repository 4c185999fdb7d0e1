// Package sandbox runs commands on behalf of a session. The server only
// depends on the Executor interface; the local implementation runs commands
// under bash in a per-sandbox working directory, which is what the tests and
// the single-host deployment use.
package sandbox

import "context"

// Result is the outcome of one command execution. Success mirrors the
// process exit status; ExitCode is non-zero on failure, including kills.
type Result struct {
	Success  bool
	Stdout   string
	Stderr   string
	ExitCode int
}

// StreamSink receives incremental output during ExecStream. Calls are
// serialized; a sink never sees interleaved concurrent callbacks.
type StreamSink interface {
	// Start fires once, after the process has spawned.
	Start()
	Stdout(data []byte)
	Stderr(data []byte)
}

// Executor is one sandbox: a place where commands run and accumulate state
// (files in the working directory) until the sandbox is destroyed.
type Executor interface {
	// Exec runs command to completion, buffering all output. The context
	// deadline bounds wall-clock time; on expiry the process group is
	// killed and the result reports the failure.
	Exec(ctx context.Context, command string) (Result, error)

	// ExecStream is Exec with incremental output delivery through sink.
	// The returned Result repeats the full buffered output.
	ExecStream(ctx context.Context, command string, sink StreamSink) (Result, error)

	// Destroy releases everything the sandbox holds.
	Destroy() error
}
