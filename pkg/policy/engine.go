package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"

	"github.com/ocr4all/spi/pkg/env"
)

// Engine evaluates the premise policies of service providers.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

type compiledPolicy struct {
	policy   Policy
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates an engine with the built-in policies.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	if err := e.loadBuiltinPolicies(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load built-in policies: %w", err)
	}

	return e, nil
}

// Evaluate runs the enabled policies that apply to the provider of the
// input. A policy that fails to evaluate is logged and skipped.
func (e *Engine) Evaluate(ctx context.Context, input Input) (*Result, error) {
	start := time.Now()

	e.mu.RLock()
	policies := make([]*compiledPolicy, 0, len(e.policies))
	for _, cp := range e.policies {
		if cp.policy.Enabled && cp.policy.AppliesTo(input.Provider.ID) {
			policies = append(policies, cp)
		}
	}
	e.mu.RUnlock()
	sort.Slice(policies, func(i, j int) bool { return policies[i].policy.Name < policies[j].policy.Name })

	result := &Result{State: env.PremiseRelease, Evaluated: []string{}}
	for _, cp := range policies {
		findings, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Error().Err(err).
				Str("policy", cp.policy.Name).
				Str("provider", input.Provider.ID).
				Msg("Policy evaluation failed")
			continue
		}

		result.Evaluated = append(result.Evaluated, cp.policy.Name)
		for _, f := range findings {
			if f.State.Severity() > result.State.Severity() {
				result.State = f.State
			}
		}
		result.Findings = append(result.Findings, findings...)
	}

	e.logger.Debug().
		Str("provider", input.Provider.ID).
		Str("state", string(result.State)).
		Int("findings", len(result.Findings)).
		Dur("duration", time.Since(start)).
		Msg("Premise evaluation completed")

	return result, nil
}

// Premise evaluates the policies and converts the result. Evaluation errors
// block the provider.
func (e *Engine) Premise(ctx context.Context, input Input) env.Premise {
	result, err := e.Evaluate(ctx, input)
	if err != nil {
		return env.NewPremise(env.PremiseBlock, env.Text("premise evaluation failed: "+err.Error()))
	}
	return result.Premise()
}

var ruleStates = map[string]env.PremiseState{
	"block": env.PremiseBlock,
	"warn":  env.PremiseWarn,
	"info":  env.PremiseInfo,
}

func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input Input) ([]Finding, error) {
	rs, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var findings []Finding
	for _, r := range rs {
		for _, expr := range r.Expressions {
			doc, ok := expr.Value.(map[string]interface{})
			if !ok {
				continue
			}
			for rule, state := range ruleStates {
				members, _ := doc[rule].([]interface{})
				for _, m := range members {
					findings = append(findings, Finding{
						Policy:  cp.policy.Name,
						State:   state,
						Message: findingMessage(m),
					})
				}
			}
		}
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].State != findings[j].State {
			return findings[i].State.Severity() > findings[j].State.Severity()
		}
		return findings[i].Message < findings[j].Message
	})
	return findings, nil
}

func findingMessage(member interface{}) string {
	switch v := member.(type) {
	case string:
		return v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			return msg
		}
	}
	return fmt.Sprintf("%v", member)
}

// compile parses the policy and prepares its package query.
func (e *Engine) compile(ctx context.Context, policy Policy) (*compiledPolicy, error) {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}

	query, err := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Query(module.Package.Path.String()),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}

	return &compiledPolicy{policy: policy, query: query, compiled: time.Now()}, nil
}

func (e *Engine) loadBuiltinPolicies(ctx context.Context) error {
	builtins := BuiltinPolicies()
	for _, p := range builtins {
		cp, err := e.compile(ctx, p)
		if err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", p.Name, err)
		}
		e.policies[p.Name] = cp
	}

	e.logger.Debug().Int("count", len(builtins)).Msg("Built-in policies loaded")
	return nil
}

// LoadPolicies loads policy files and directories. Loaded policies replace
// policies of the same name. Nothing is replaced if any policy fails to
// compile.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := NewLoader(e.logger).LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	return e.apply(ctx, policies)
}

// ReloadPolicies drops all loaded policies and restores the built-in ones.
func (e *Engine) ReloadPolicies(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.policies = make(map[string]*compiledPolicy)
	return e.loadBuiltinPolicies(ctx)
}

func (e *Engine) apply(ctx context.Context, policies []Policy) error {
	compiled := make([]*compiledPolicy, 0, len(policies))
	for _, p := range policies {
		cp, err := e.compile(ctx, p)
		if err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", p.Name, err)
		}
		compiled = append(compiled, cp)
	}

	e.mu.Lock()
	for _, cp := range compiled {
		e.policies[cp.policy.Name] = cp
	}
	e.mu.Unlock()

	e.logger.Info().Int("count", len(compiled)).Msg("Policies loaded")
	return nil
}

// Watch loads the paths and reloads them whenever a policy file changes,
// until ctx is done.
func (e *Engine) Watch(ctx context.Context, paths []string) error {
	if err := e.LoadPolicies(ctx, paths); err != nil {
		return err
	}
	return NewLoader(e.logger).Watch(ctx, paths, func(policies []Policy) error {
		return e.apply(ctx, policies)
	})
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return Policy{}, fmt.Errorf("policy not found: %s", name)
	}
	return cp.policy, nil
}

// ListPolicies returns all policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		policies = append(policies, cp.policy)
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].Name < policies[j].Name })
	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy toggled")
	return nil
}
