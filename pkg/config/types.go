package config

import (
	"fmt"

	"github.com/ocr4all/spi/pkg/telemetry"
)

// HostConfig is the configuration of a service provider host.
type HostConfig struct {
	// Name identifies the host instance.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Properties are the provider configuration values handed over as
	// env.Configuration.
	Properties []PropertyConfig `yaml:"properties,omitempty" json:"properties,omitempty" validate:"dive"`

	SystemCommands []SystemCommandConfig `yaml:"system_commands,omitempty" json:"system_commands,omitempty" validate:"unique=Type,dive"`

	// Hosts are the microservice hosts providers may delegate to.
	Hosts []HostEntryConfig `yaml:"hosts,omitempty" json:"hosts,omitempty" validate:"unique=ID,dive"`

	Providers []ProviderConfig `yaml:"providers,omitempty" json:"providers,omitempty" validate:"unique=ID,dive"`

	Store    StoreConfig    `yaml:"store" json:"store"`
	Policies PoliciesConfig `yaml:"policies" json:"policies"`

	Telemetry telemetry.Config `yaml:"telemetry" json:"telemetry"`
}

// PropertyConfig is a value of a property collection. A missing value is
// distinct from an empty one.
type PropertyConfig struct {
	Collection string  `yaml:"collection" json:"collection" validate:"required"`
	Key        string  `yaml:"key" json:"key" validate:"required"`
	Value      *string `yaml:"value,omitempty" json:"value,omitempty"`
}

// SystemCommandConfig declares a host system command. Availability is
// probed on the search path unless set.
type SystemCommandConfig struct {
	Type      string `yaml:"type" json:"type" validate:"required,oneof=docker convert identify"`
	Command   string `yaml:"command" json:"command" validate:"required"`
	Available *bool  `yaml:"available,omitempty" json:"available,omitempty"`
}

// HostEntryConfig is a microservice host.
type HostEntryConfig struct {
	ID  string `yaml:"id" json:"id" validate:"required"`
	URL string `yaml:"url" json:"url" validate:"required,url"`
}

// ProviderConfig describes a service provider and its lifecycle settings.
type ProviderConfig struct {
	ID   string `yaml:"id" json:"id" validate:"required"`
	Type string `yaml:"type" json:"type" validate:"required,oneof=import launcher ocr olr postcorrection"`

	Name        string   `yaml:"name,omitempty" json:"name,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Version     float32  `yaml:"version,omitempty" json:"version,omitempty" validate:"gte=0"`
	Index       int      `yaml:"index,omitempty" json:"index,omitempty"`
	Categories  []string `yaml:"categories,omitempty" json:"categories,omitempty"`
	Steps       []string `yaml:"steps,omitempty" json:"steps,omitempty"`
	Icon        string   `yaml:"icon,omitempty" json:"icon,omitempty"`
	Advice      string   `yaml:"advice,omitempty" json:"advice,omitempty"`

	// Eager defaults to true.
	Eager      *bool  `yaml:"eager,omitempty" json:"eager,omitempty"`
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	ThreadPool string `yaml:"thread_pool,omitempty" json:"thread_pool,omitempty"`

	Command *CommandConfig `yaml:"command,omitempty" json:"command,omitempty" validate:"omitempty"`
}

// IsEager returns the eager setting, true if unset.
func (p *ProviderConfig) IsEager() bool {
	return p.Eager == nil || *p.Eager
}

// CommandConfig configures a provider running an external command.
//
// Arguments and environment values may reference ${workspace}, ${mets},
// ${input}, ${output}, ${output_directory}, ${parameters} and the names of
// the declared fields. Other references are passed on unchanged.
type CommandConfig struct {
	Path      string            `yaml:"path" json:"path" validate:"required"`
	Args      []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env       map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Directory string            `yaml:"directory,omitempty" json:"directory,omitempty"`

	// RequiredCommands are system commands the provider needs.
	RequiredCommands []string `yaml:"required_commands,omitempty" json:"required_commands,omitempty" validate:"dive,oneof=docker convert identify"`

	// Fields declare the parameters of the command.
	Fields []FieldConfig `yaml:"fields,omitempty" json:"fields,omitempty" validate:"unique=Argument,dive"`
}

// FieldConfig declares a command parameter.
type FieldConfig struct {
	Argument    string      `yaml:"argument" json:"argument" validate:"required"`
	Kind        string      `yaml:"kind" json:"kind" validate:"required,oneof=string integer decimal boolean"`
	Label       string      `yaml:"label,omitempty" json:"label,omitempty"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Default     interface{} `yaml:"default,omitempty" json:"default,omitempty"`
	Required    bool        `yaml:"required,omitempty" json:"required,omitempty"`
}

// StoreConfig configures the journal and execution archive.
type StoreConfig struct {
	// Path is the SQLite database file, ":memory:" for a transient store.
	Path string `yaml:"path" json:"path"`
}

// PoliciesConfig configures the premise policies.
type PoliciesConfig struct {
	// Paths are .rego and .json files or directories.
	Paths []string `yaml:"paths,omitempty" json:"paths,omitempty"`

	// Watch reloads the policies when the files change.
	Watch bool `yaml:"watch" json:"watch"`
}

// DefaultConfig returns the configuration used when no document is given.
func DefaultConfig() *HostConfig {
	return &HostConfig{
		Name:      "ocr4all-spi",
		Store:     StoreConfig{Path: "ocr4all-spi.db"},
		Telemetry: *telemetry.DefaultConfig(),
	}
}

// Provider returns the configuration of a provider.
func (c *HostConfig) Provider(id string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// ValidationError is a problem found in a configuration document.
type ValidationError struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) String() string {
	location := e.File
	if e.Line > 0 {
		location = fmt.Sprintf("%s:%d:%d", e.File, e.Line, e.Column)
	}
	switch {
	case location != "" && e.Path != "":
		return fmt.Sprintf("%s: %s: %s", location, e.Path, e.Message)
	case location != "":
		return fmt.Sprintf("%s: %s", location, e.Message)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is returned when a document is invalid.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return "invalid configuration: " + e[0].String()
	}
	return fmt.Sprintf("invalid configuration: %s (and %d more)", e[0].String(), len(e)-1)
}
