package policy

import (
	"sort"
	"strings"

	"github.com/ocr4all/spi/pkg/env"
)

// Policy is a Rego module deciding the premise of service providers. The
// module may define the sets block, warn and info; every member is either a
// message string or an object with a message field.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	Description string `json:"description"`

	// Rego contains the policy module.
	Rego string `json:"rego"`

	Enabled bool `json:"enabled"`

	// Providers limits the policy to the given provider ids. An empty list
	// applies the policy to every provider.
	Providers []string `json:"providers,omitempty"`

	// Source is the file the policy was loaded from, empty for built-in
	// policies.
	Source string `json:"source,omitempty"`
}

// AppliesTo reports whether the policy is evaluated for the provider.
func (p *Policy) AppliesTo(provider string) bool {
	if len(p.Providers) == 0 {
		return true
	}
	for _, id := range p.Providers {
		if id == provider {
			return true
		}
	}
	return false
}

// Input is the document the policies evaluate.
type Input struct {
	Provider ProviderFacts `json:"provider"`
	Target   *TargetFacts  `json:"target,omitempty"`

	// SystemCommands maps the system command types to their availability.
	SystemCommands map[string]bool `json:"system_commands"`

	// Hosts are the ids of the microservice hosts.
	Hosts []string `json:"hosts"`
}

// ProviderFacts describes the provider a premise is requested for.
type ProviderFacts struct {
	ID               string   `json:"id"`
	Type             string   `json:"type"`
	Status           string   `json:"status,omitempty"`
	RequiredCommands []string `json:"required_commands"`
}

// TargetFacts describes the target of a premise request.
type TargetFacts struct {
	ExchangeDirectory bool          `json:"exchange_directory"`
	OptDirectory      bool          `json:"opt_directory"`
	ProjectRoot       string        `json:"project_root,omitempty"`
	ProjectDirectory  bool          `json:"project_directory"`
	FoliosEmpty       bool          `json:"folios_empty"`
	ImageFormat       string        `json:"image_format,omitempty"`
	Sandbox           *SandboxFacts `json:"sandbox,omitempty"`
}

// SandboxFacts describes the sandbox of a target.
type SandboxFacts struct {
	Root          string `json:"root"`
	Directory     bool   `json:"directory"`
	SnapshotTrack []int  `json:"snapshot_track"`
	Mets          bool   `json:"mets"`
}

// NewInput collects the facts about a target and the host configuration.
func NewInput(provider ProviderFacts, target *env.Target, configuration *env.Configuration, architecture *env.MicroserviceArchitecture) Input {
	in := Input{
		Provider:       provider,
		SystemCommands: make(map[string]bool),
		Hosts:          []string{},
	}
	if in.Provider.RequiredCommands == nil {
		in.Provider.RequiredCommands = []string{}
	}

	for _, t := range []env.SystemCommandType{env.SystemCommandDocker, env.SystemCommandConvert, env.SystemCommandIdentify} {
		in.SystemCommands[string(t)] = configuration.IsSystemCommandAvailable(t)
	}
	for _, h := range architecture.Hosts() {
		in.Hosts = append(in.Hosts, h.ID)
	}

	if target == nil {
		return in
	}

	facts := &TargetFacts{
		ExchangeDirectory: target.IsExchangeDirectory(),
		OptDirectory:      target.IsOptDirectory(),
	}
	if p := target.Project; p != nil {
		facts.ProjectRoot = p.Root
		facts.ProjectDirectory = p.IsRootDirectory()
		if p.Images != nil {
			empty, err := p.Images.IsFoliosEmpty()
			facts.FoliosEmpty = err != nil || empty
			if p.Images.Derivatives != nil {
				facts.ImageFormat = string(p.Images.Derivatives.Format)
			}
		}
	}
	if s := target.Sandbox; s != nil {
		facts.Sandbox = &SandboxFacts{
			Root:          s.Root,
			Directory:     s.IsRootDirectory(),
			SnapshotTrack: append([]int{}, s.SnapshotTrack...),
			Mets:          s.Mets != nil,
		}
	}
	in.Target = facts
	return in
}

// Finding is a message produced by a policy rule.
type Finding struct {
	Policy  string           `json:"policy"`
	State   env.PremiseState `json:"state"`
	Message string           `json:"message"`
}

// Result is the outcome of a premise evaluation.
type Result struct {
	// State is the most severe state of the findings, release if there
	// are none.
	State    env.PremiseState `json:"state"`
	Findings []Finding        `json:"findings,omitempty"`

	// Evaluated lists the names of the evaluated policies.
	Evaluated []string `json:"evaluated"`
}

// Premise converts the result into a provider premise. The message joins
// the findings of the resulting state.
func (r *Result) Premise() env.Premise {
	if r.State == env.PremiseRelease {
		return env.Release()
	}

	var messages []string
	for _, f := range r.Findings {
		if f.State == r.State {
			messages = append(messages, f.Message)
		}
	}
	sort.Strings(messages)
	return env.NewPremise(r.State, env.Text(strings.Join(messages, "; ")))
}
