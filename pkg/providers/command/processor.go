package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/ocr4all/spi/pkg/core"
	"github.com/ocr4all/spi/pkg/env"
	"github.com/ocr4all/spi/pkg/model"
	"github.com/ocr4all/spi/pkg/process"
)

// ErrMissingArguments is returned when required fields have no value.
var ErrMissingArguments = errors.New("missing required arguments")

// Processor runs the command of a provider once.
type Processor struct {
	core.CoreProcessor

	provider *Provider
	exitCode *int
}

// ExitCode returns the exit code of the command once Execute returned, nil
// if the command did not run.
func (p *Processor) ExitCode() *int {
	return p.exitCode
}

// Execute expands the command against the framework and the arguments,
// runs it and forwards its output while it runs. A non-zero exit code
// interrupts the execution.
func (p *Processor) Execute(ctx context.Context, callback core.Callback, framework *env.Framework, arguments *model.ModelArgument) core.State {
	provider := p.provider
	if !p.Begin(ctx, provider.cfg.ID, callback, framework) {
		return p.Canceled()
	}
	if framework == nil {
		return p.Interrupted(errors.New("the framework is required"))
	}

	vars, err := provider.variables(framework, arguments)
	if err != nil {
		return p.Interrupted(err)
	}
	// Unknown names stay for the shell of the command.
	expand := func(s string) string {
		return os.Expand(s, func(name string) string {
			if value, ok := vars[name]; ok {
				return value
			}
			return "$" + name
		})
	}

	args := make([]string, len(provider.command.Args))
	for i, arg := range provider.command.Args {
		args[i] = expand(arg)
	}

	dir := expand(provider.command.Directory)
	if dir == "" {
		dir = framework.ProcessorWorkspace()
	}
	if framework.Output != "" {
		if err := os.MkdirAll(framework.Output, 0o755); err != nil {
			return p.Interrupted(fmt.Errorf("failed to create output directory: %w", err))
		}
	}

	opts := []process.Option{process.WithLogger(provider.logger)}
	if dir != "" {
		opts = append(opts, process.WithDirectory(dir))
	}
	if len(provider.command.Env) > 0 {
		environ := os.Environ()
		keys := make([]string, 0, len(provider.command.Env))
		for k := range provider.command.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			environ = append(environ, k+"="+expand(provider.command.Env[k]))
		}
		opts = append(opts, process.WithEnv(environ))
	}

	proc, err := process.New(provider.command.Path, opts...)
	if err != nil {
		return p.Interrupted(err)
	}
	p.Bind(proc)

	p.UpdatedStandardOutput("Run " + provider.command.Path + " " + strings.Join(args, " "))
	if err := proc.ExecuteBackground(ctx, args...); err != nil {
		if p.IsCanceled() {
			return p.Canceled()
		}
		return p.Interrupted(err)
	}
	if p.IsCanceled() {
		proc.Cancel()
	}

	p.follow(proc)

	code := proc.ExitCode()
	p.exitCode = &code
	if provider.metrics != nil {
		provider.metrics.RecordProcessExit(provider.command.Path, code)
	}

	if p.IsCanceled() {
		return p.Canceled()
	}
	if code != 0 {
		return p.Interrupted(fmt.Errorf("%s exited with code %d", provider.command.Path, code))
	}

	p.LockSnapshot(provider.Name(language.Und) + " completed")
	return p.Complete()
}

// follow forwards the new output lines of the process until it exits.
func (p *Processor) follow(proc *process.SystemProcess) {
	var stdout, stderr int
	forward := func() {
		stdout = forwardLines(proc.StandardOutput(), stdout, p.UpdatedStandardOutput)
		stderr = forwardLines(proc.StandardError(), stderr, p.UpdatedStandardError)
	}

	ticker := time.NewTicker(p.provider.poll)
	defer ticker.Stop()

	done := proc.Done()
	for {
		select {
		case <-done:
			forward()
			return
		case <-ticker.C:
			forward()
		}
	}
}

// forwardLines reports the complete lines of output after offset and
// returns the new offset.
func forwardLines(output string, offset int, report func(string)) int {
	if len(output) < offset {
		offset = 0
	}
	pending := output[offset:]
	end := strings.LastIndexByte(pending, '\n')
	if end < 0 {
		return offset
	}
	for _, line := range strings.Split(pending[:end], "\n") {
		report(line)
	}
	return offset + end + 1
}

// variables resolves the placeholders of the command.
func (p *Provider) variables(framework *env.Framework, arguments *model.ModelArgument) (map[string]string, error) {
	fileGroup := framework.FileGroup()
	vars := map[string]string{
		"workspace":        framework.ProcessorWorkspace(),
		"mets":             framework.Mets(),
		"input":            fileGroup.Input(),
		"output":           fileGroup.Output(),
		"output_directory": framework.Output,
	}

	parameters := make(map[string]any)
	for _, a := range arguments.Arguments() {
		if value, ok := a.Value(); ok {
			parameters[a.Name()] = value
		}
	}

	var missing []string
	for _, fc := range p.command.Fields {
		kind := model.Kind(fc.Kind)
		if a, ok := arguments.Argument(fc.Argument); ok && a.IsSet() {
			if a.Kind() != kind {
				return nil, &model.TypeMismatchError{Name: fc.Argument, Want: kind, Got: a.Kind()}
			}
			value, _ := a.Value()
			vars[fc.Argument] = placeholderValue(value)
			continue
		}
		if fc.Default != nil {
			value, err := fieldValue(kind, fc.Default)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", fc.Argument, err)
			}
			vars[fc.Argument] = placeholderValue(value)
			parameters[fc.Argument] = value
			continue
		}
		if fc.Required {
			missing = append(missing, fc.Argument)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingArguments, strings.Join(missing, ", "))
	}

	raw, err := json.Marshal(parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parameters: %w", err)
	}
	vars["parameters"] = string(raw)
	return vars, nil
}

// placeholderValue renders a value for a ${name} placeholder. Multiple
// values are comma separated, as they are given on the command line.
func placeholderValue(value any) string {
	switch v := value.(type) {
	case []string:
		return strings.Join(v, ",")
	case []int:
		ids := make([]string, len(v))
		for i, id := range v {
			ids[i] = strconv.Itoa(id)
		}
		return strings.Join(ids, ",")
	default:
		return fmt.Sprint(v)
	}
}
