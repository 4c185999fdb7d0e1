package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
	"syscall"
)

// Local executes commands with `bash -lc` inside a dedicated working
// directory. Each Exec is a fresh shell; state persists only through the
// filesystem.
type Local struct {
	id  string
	dir string
}

// NewLocal creates the working directory for a sandbox.
func NewLocal(id, dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sandbox dir: %w", err)
	}
	return &Local{id: id, dir: dir}, nil
}

// Dir returns the sandbox working directory.
func (l *Local) Dir() string { return l.dir }

func (l *Local) Exec(ctx context.Context, command string) (Result, error) {
	return l.ExecStream(ctx, command, nil)
}

func (l *Local) ExecStream(ctx context.Context, command string, sink StreamSink) (Result, error) {
	cmd := exec.Command("/bin/bash", "-lc", command)
	cmd.Dir = l.dir
	cmd.Env = append(os.Environ(), "HOME="+l.dir)
	// Own process group so a timeout kill reaches the whole pipeline,
	// not just bash.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start command: %w", err)
	}
	if sink != nil {
		sink.Start()
	}

	var sinkMu sync.Mutex
	var stdoutBuf, stderrBuf bytes.Buffer

	drain := func(r io.Reader, buf *bytes.Buffer, emit func([]byte)) {
		chunk := make([]byte, 4096)
		for {
			n, err := r.Read(chunk)
			if n > 0 {
				sinkMu.Lock()
				buf.Write(chunk[:n])
				if emit != nil {
					emit(chunk[:n])
				}
				sinkMu.Unlock()
			}
			if err != nil {
				return
			}
		}
	}

	var emitOut, emitErr func([]byte)
	if sink != nil {
		emitOut, emitErr = sink.Stdout, sink.Stderr
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); drain(stdoutPipe, &stdoutBuf, emitOut) }()
	go func() { defer wg.Done(); drain(stderrPipe, &stderrBuf, emitErr) }()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			log.Printf("[sandbox] %s: killing process group (deadline)", l.id)
			syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		case <-done:
		}
	}()

	wg.Wait()
	waitErr := cmd.Wait()
	close(done)

	res := Result{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
	}
	res.ExitCode = exitCode(cmd, waitErr)
	res.Success = waitErr == nil && ctx.Err() == nil
	if !res.Success && res.ExitCode == 0 {
		res.ExitCode = 1
	}
	return res, nil
}

// Destroy removes the working directory and everything the sandbox wrote.
func (l *Local) Destroy() error {
	if err := os.RemoveAll(l.dir); err != nil {
		return fmt.Errorf("remove sandbox dir: %w", err)
	}
	return nil
}

// exitCode maps a finished command to a shell-style exit code. A signaled
// process reports 128+signal, matching what bash itself would say.
func exitCode(cmd *exec.Cmd, waitErr error) int {
	state := cmd.ProcessState
	if state == nil {
		return 1
	}
	if code := state.ExitCode(); code >= 0 {
		return code
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	if waitErr != nil {
		return 1
	}
	return 0
}
