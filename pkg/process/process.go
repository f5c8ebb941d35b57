// Package process wraps an external program a processor runs: foreground or
// background execution, captured standard output and error, exit code
// tracking and best-effort cancellation.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrEmptyCommand is returned when a process is created without a command.
	ErrEmptyCommand = errors.New("process: command is required")

	// ErrAlreadyRunning is returned when the process is started while it is
	// still running.
	ErrAlreadyRunning = errors.New("process: already running")
)

// DefaultWaitDelay is how long output is still read after the process has
// exited.
const DefaultWaitDelay = time.Second

// ExitCodeUnknown is the exit code before the process has exited, and of
// processes terminated by a signal.
const ExitCodeUnknown = -1

// SystemProcess runs a command, one execution at a time. It is safe for
// concurrent use: output and state can be read while it runs.
type SystemProcess struct {
	command string
	dir     string
	env     []string
	logger  zerolog.Logger

	waitDelay time.Duration

	// mu makes the running check and the start of a new execution atomic.
	// cmd is set while the spawned process is alive, proc until the
	// execution has ended.
	mu   sync.Mutex
	cmd  *exec.Cmd
	proc *os.Process
	done chan struct{}

	exitCode atomic.Int32
	stdout   lineBuffer
	stderr   lineBuffer
}

// Option configures a SystemProcess.
type Option func(*SystemProcess)

// WithDirectory sets the working directory of the process.
func WithDirectory(dir string) Option {
	return func(p *SystemProcess) { p.dir = dir }
}

// WithEnv sets the environment as KEY=value pairs. The process inherits
// the host environment when none is set.
func WithEnv(env []string) Option {
	return func(p *SystemProcess) { p.env = append([]string(nil), env...) }
}

// WithWaitDelay bounds how long the output is read after the process has
// exited while descendants still hold it open.
func WithWaitDelay(d time.Duration) Option {
	return func(p *SystemProcess) {
		if d >= 0 {
			p.waitDelay = d
		}
	}
}

// WithLogger sets the logger for process lifecycle messages.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *SystemProcess) { p.logger = logger }
}

// New creates a process for the command. The command is trimmed and must
// not be blank.
func New(command string, opts ...Option) (*SystemProcess, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, ErrEmptyCommand
	}

	p := &SystemProcess{
		command:   command,
		logger:    zerolog.Nop(),
		waitDelay: DefaultWaitDelay,
	}
	p.exitCode.Store(ExitCodeUnknown)
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Command returns the command the process runs.
func (p *SystemProcess) Command() string {
	return p.command
}

// Execute runs the command in the foreground and returns once it has exited
// and its output is captured. A non-zero exit status is not an error; it is
// reported by ExitCode. Cancelling the context terminates the process.
func (p *SystemProcess) Execute(ctx context.Context, args ...string) error {
	done, err := p.start(ctx, args)
	if err != nil {
		return err
	}
	<-done
	return nil
}

// ExecuteBackground starts the command and returns immediately. Two
// goroutines drain standard output and error while a third waits for the
// exit. The context bounds the lifetime of the process and its process
// group.
func (p *SystemProcess) ExecuteBackground(ctx context.Context, args ...string) error {
	_, err := p.start(ctx, args)
	return err
}

func (p *SystemProcess) start(ctx context.Context, args []string) (<-chan struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.proc != nil {
		return nil, ErrAlreadyRunning
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", p.command, err)
	}

	cmd := exec.Command(p.command, args...)
	cmd.Dir = p.dir
	if len(p.env) > 0 {
		cmd.Env = p.env
	}
	setProcessGroup(cmd)

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open standard output of %s: %w", p.command, err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		return nil, fmt.Errorf("failed to open standard error of %s: %w", p.command, err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	p.stdout.reset()
	p.stderr.reset()
	p.exitCode.Store(ExitCodeUnknown)

	err = cmd.Start()
	// The child holds its own copies of the write ends.
	closeAll(stdoutW, stderrW)
	if err != nil {
		closeAll(stdoutR, stderrR)
		return nil, fmt.Errorf("failed to start %s: %w", p.command, err)
	}

	p.cmd = cmd
	p.proc = cmd.Process
	p.done = make(chan struct{})
	done := p.done

	p.logger.Debug().
		Str("command", p.command).
		Strs("args", args).
		Int("pid", cmd.Process.Pid).
		Msg("Process started")

	var drains sync.WaitGroup
	drains.Add(2)
	go p.drain(&drains, stdoutR, &p.stdout)
	go p.drain(&drains, stderrR, &p.stderr)

	stop := context.AfterFunc(ctx, p.Cancel)

	go func() {
		err := cmd.Wait()
		p.exited(cmd, err)

		// Descendants may still hold the output open.
		drained := make(chan struct{})
		go func() {
			drains.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(p.waitDelay):
			p.logger.Debug().Str("command", p.command).Msg("Output still open after exit, closing")
			closeAll(stdoutR, stderrR)
			<-drained
		}
		closeAll(stdoutR, stderrR)
		stop()

		p.mu.Lock()
		p.proc = nil
		p.mu.Unlock()
		close(done)
	}()

	return done, nil
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

// drain appends every line of r to the buffer. Read errors end the drain
// like a normal end of stream.
func (p *SystemProcess) drain(wg *sync.WaitGroup, r io.Reader, buf *lineBuffer) {
	defer wg.Done()

	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			buf.appendLine(strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				p.logger.Debug().Err(err).Str("command", p.command).Msg("Output drain stopped")
			}
			return
		}
	}
}

// exited records the exit of the spawned process. The execution ends once
// its output is captured.
func (p *SystemProcess) exited(cmd *exec.Cmd, err error) {
	code := ExitCodeUnknown
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}
	p.exitCode.Store(int32(code))

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		p.logger.Debug().Err(err).Str("command", p.command).Msg("Process wait failed")
	}
	p.logger.Debug().
		Str("command", p.command).
		Int("exit_code", code).
		Msg("Process exited")

	p.mu.Lock()
	p.cmd = nil
	p.mu.Unlock()
}

// Wait blocks until the current execution has exited or the context is
// done. It returns immediately if nothing was started.
func (p *SystemProcess) Wait(ctx context.Context) error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when the current execution has exited and
// its output is captured, nil if nothing was started.
func (p *SystemProcess) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// IsRunning returns true while the spawned process is alive. Descendants
// left behind by the process are not tracked.
func (p *SystemProcess) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd != nil
}

// Cancel asks the process and its descendants to terminate. It does not
// wait for the exit and does nothing once the execution has ended.
func (p *SystemProcess) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.proc == nil {
		return
	}
	if err := terminate(p.proc); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Debug().Err(err).Str("command", p.command).Msg("Failed to terminate process")
	}
}

// ExitCode returns the exit code of the last execution, ExitCodeUnknown
// while running or if it was terminated by a signal.
func (p *SystemProcess) ExitCode() int {
	return int(p.exitCode.Load())
}

// StandardOutput returns the captured standard output, one line per
// newline terminated entry.
func (p *SystemProcess) StandardOutput() string {
	return p.stdout.String()
}

// StandardError returns the captured standard error.
func (p *SystemProcess) StandardError() string {
	return p.stderr.String()
}

type lineBuffer struct {
	mu sync.Mutex
	b  strings.Builder
}

func (l *lineBuffer) appendLine(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.b.WriteString(line)
	l.b.WriteByte('\n')
}

func (l *lineBuffer) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.b.Reset()
}

func (l *lineBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}
