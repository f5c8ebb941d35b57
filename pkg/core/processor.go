package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ocr4all/spi/pkg/env"
	"github.com/ocr4all/spi/pkg/model"
	"github.com/ocr4all/spi/pkg/process"
)

// State is the outcome of a processor execution.
type State string

const (
	// StateCompleted indicates the processor finished its work.
	StateCompleted State = "completed"

	// StateCanceled indicates the execution stopped on a cancel request.
	StateCanceled State = "canceled"

	// StateInterrupted indicates the execution failed.
	StateInterrupted State = "interrupted"
)

// Validate checks if the state is valid.
func (s State) Validate() error {
	switch s {
	case StateCompleted, StateCanceled, StateInterrupted:
		return nil
	default:
		return fmt.Errorf("invalid processor state: %s", s)
	}
}

// Callback receives the progress of an execution. Output updates carry the
// whole output accumulated so far, not the increment.
type Callback interface {
	UpdatedProgress(progress float32)
	UpdatedStandardOutput(output string)
	UpdatedStandardError(output string)

	// LockSnapshot asks the host to lock the output snapshot before the
	// processor commits durable results.
	LockSnapshot(comment string)
}

// NopCallback ignores every update.
type NopCallback struct{}

func (NopCallback) UpdatedProgress(float32)      {}
func (NopCallback) UpdatedStandardOutput(string) {}
func (NopCallback) UpdatedStandardError(string)  {}
func (NopCallback) LockSnapshot(string)          {}

// Processor performs one execution of a process service provider.
type Processor interface {
	// Execute runs the processor and reports its outcome. Cancelling the
	// context has the same effect as Cancel.
	Execute(ctx context.Context, callback Callback, framework *env.Framework, arguments *model.ModelArgument) State

	// Cancel requests the execution to stop. It may be called from any
	// goroutine, before or during Execute.
	Cancel()
}

// CoreProcessor implements the bookkeeping shared by processors: the cancel
// flag, cumulative timestamped output and progress reporting. Processors
// embed it and implement Execute:
//
//	func (p *myProcessor) Execute(ctx context.Context, cb core.Callback, fw *env.Framework, args *model.ModelArgument) core.State {
//	    if !p.Begin(ctx, "my-provider", cb, fw) {
//	        return p.Canceled()
//	    }
//	    ...
//	    return p.Complete()
//	}
type CoreProcessor struct {
	canceled atomic.Bool

	mu         sync.Mutex
	identifier string
	callback   Callback
	framework  *env.Framework
	process    *process.SystemProcess
	stopWatch  func() bool
	stdout     strings.Builder
	stderr     strings.Builder
}

// Begin records the execution context, reports progress 0 and logs the
// start. It returns false if the processor was canceled before.
func (c *CoreProcessor) Begin(ctx context.Context, identifier string, callback Callback, framework *env.Framework) bool {
	if callback == nil {
		callback = NopCallback{}
	}

	c.mu.Lock()
	c.identifier = identifier
	c.callback = callback
	c.framework = framework
	c.stdout.Reset()
	c.stderr.Reset()
	c.stopWatch = context.AfterFunc(ctx, c.Cancel)
	c.mu.Unlock()

	callback.UpdatedProgress(0)
	c.UpdatedStandardOutput("Start spi '" + identifier + "'.")
	return !c.IsCanceled()
}

// Cancel sets the cancel flag and terminates a bound external process.
func (c *CoreProcessor) Cancel() {
	c.canceled.Store(true)

	c.mu.Lock()
	p := c.process
	c.mu.Unlock()
	if p != nil {
		p.Cancel()
	}
}

// IsCanceled returns true once Cancel was called.
func (c *CoreProcessor) IsCanceled() bool {
	return c.canceled.Load()
}

// Bind attaches the external process the processor runs, so that Cancel
// terminates it. A processor canceled before terminates the process
// immediately.
func (c *CoreProcessor) Bind(p *process.SystemProcess) {
	c.mu.Lock()
	c.process = p
	c.mu.Unlock()

	if c.IsCanceled() && p != nil {
		p.Cancel()
	}
}

// Identifier returns the identifier passed to Begin.
func (c *CoreProcessor) Identifier() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identifier
}

// Framework returns the framework passed to Begin.
func (c *CoreProcessor) Framework() *env.Framework {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.framework
}

func (c *CoreProcessor) currentCallback() Callback {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.callback == nil {
		return NopCallback{}
	}
	return c.callback
}

// UpdatedProgress reports the progress, clamped to [0, 1].
func (c *CoreProcessor) UpdatedProgress(progress float32) {
	switch {
	case progress < 0:
		progress = 0
	case progress > 1:
		progress = 1
	}
	c.currentCallback().UpdatedProgress(progress)
}

// UpdatedStandardOutput appends a timestamped message to the standard
// output and reports the whole output.
func (c *CoreProcessor) UpdatedStandardOutput(message string) {
	c.mu.Lock()
	c.stdout.WriteString(c.framework.FormatLogMessage(message))
	output := c.stdout.String()
	c.mu.Unlock()

	c.currentCallback().UpdatedStandardOutput(output)
}

// UpdatedStandardError appends a timestamped message to the standard error
// and reports the whole error output.
func (c *CoreProcessor) UpdatedStandardError(message string) {
	c.mu.Lock()
	c.stderr.WriteString(c.framework.FormatLogMessage(message))
	output := c.stderr.String()
	c.mu.Unlock()

	c.currentCallback().UpdatedStandardError(output)
}

// LockSnapshot forwards the lock request to the host.
func (c *CoreProcessor) LockSnapshot(comment string) {
	c.currentCallback().LockSnapshot(comment)
}

// StandardOutput returns the output accumulated so far.
func (c *CoreProcessor) StandardOutput() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stdout.String()
}

// StandardError returns the error output accumulated so far.
func (c *CoreProcessor) StandardError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stderr.String()
}

func (c *CoreProcessor) end() {
	c.mu.Lock()
	stop := c.stopWatch
	c.stopWatch = nil
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Complete logs the completion, reports progress 1 and returns
// StateCompleted.
func (c *CoreProcessor) Complete() State {
	c.end()
	c.UpdatedStandardOutput(c.Identifier() + " completed.")
	c.UpdatedProgress(1)
	return StateCompleted
}

// Canceled logs the cancellation and returns StateCanceled.
func (c *CoreProcessor) Canceled() State {
	c.end()
	c.UpdatedStandardOutput(c.Identifier() + " canceled.")
	return StateCanceled
}

// Interrupted reports the error on the standard error and returns
// StateInterrupted.
func (c *CoreProcessor) Interrupted(err error) State {
	c.end()
	if err != nil {
		c.UpdatedStandardError(err.Error())
	}
	c.UpdatedStandardOutput(c.Identifier() + " interrupted.")
	return StateInterrupted
}
