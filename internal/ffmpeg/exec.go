package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// RunOutput executes FFmpeg and returns its combined stdout and stderr.
// Output is returned even when the command fails, since FFmpeg exits
// non-zero for several informational invocations.
func RunOutput(ctx context.Context, ffmpegPath string, args []string) (string, error) {
	// #nosec G204 -- ffmpegPath comes from Resolve, args are built internally
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

// Process is a running FFmpeg with piped stdin and stdout. Closing Stdin
// signals end of input; FFmpeg then flushes the container and exits.
type Process interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	// Wait blocks until the process exits. Diagnostic output is included
	// in the error.
	Wait() error
	Kill() error
}

// Start launches FFmpeg with stdin and stdout connected to pipes.
func Start(ctx context.Context, ffmpegPath string, args []string) (Process, error) {
	// #nosec G204 -- ffmpegPath comes from Resolve, args are built internally
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	p := &process{cmd: cmd}
	cmd.Stderr = &p.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %w", ErrProcess, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("%w: stdout pipe: %w", ErrProcess, err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("%w: start: %w", ErrProcess, err)
	}
	p.stdin, p.stdout = stdin, stdout
	return p, nil
}

type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stderr syncBuffer
}

func (p *process) Stdin() io.WriteCloser { return p.stdin }
func (p *process) Stdout() io.Reader     { return p.stdout }

func (p *process) Wait() error {
	if err := p.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg: %w\nOutput: %s", err, p.stderr.String())
	}
	return nil
}

func (p *process) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// syncBuffer is a bytes.Buffer safe for the exec copier goroutine and
// readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
