package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Format is the syntax of a configuration document.
type Format string

const (
	FormatCUE  Format = "cue"
	FormatYAML Format = "yaml"
)

// FormatOf derives the format from a file extension. JSON documents are
// read as YAML.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return FormatCUE, nil
	case ".yaml", ".yml", ".json":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported configuration file: %s", path)
	}
}

// Parser reads host configurations from CUE and YAML documents.
//
// All sources are unified into one value and unified with the host schema.
// Values missing from the documents keep the defaults of DefaultConfig.
type Parser struct {
	ctx       *cue.Context
	schema    cue.Value
	validator *validator.Validate
}

// NewParser creates a parser.
func NewParser() (*Parser, error) {
	ctx := cuecontext.New()
	schema, err := compileSchema(ctx)
	if err != nil {
		return nil, err
	}
	return &Parser{ctx: ctx, schema: schema, validator: validator.New()}, nil
}

// Load parses and validates files and directories. A directory contributes
// its .cue files as one instance and each of its YAML files.
func (p *Parser) Load(ctx context.Context, sources ...string) (*HostConfig, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	var (
		unified cue.Value
		errs    ValidationErrors
	)
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		var vals []cue.Value
		var verrs ValidationErrors
		if info.IsDir() {
			vals, verrs = p.loadDirectory(source)
		} else {
			var val cue.Value
			val, verrs = p.loadFile(source)
			vals = []cue.Value{val}
		}
		errs = append(errs, verrs...)

		for _, val := range vals {
			if !val.Exists() {
				continue
			}
			if unified.Exists() {
				unified = unified.Unify(val)
			} else {
				unified = val
			}
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}
	if !unified.Exists() {
		return nil, ValidationErrors{{Message: "no configuration found"}}
	}

	return p.decode(unified)
}

// ParseInline parses a configuration document held in memory.
func (p *Parser) ParseInline(content string, format Format) (*HostConfig, error) {
	val, errs := p.compile("inline", []byte(content), format)
	if len(errs) > 0 {
		return nil, errs
	}
	return p.decode(val)
}

func (p *Parser) loadFile(path string) (cue.Value, ValidationErrors) {
	format, err := FormatOf(path)
	if err != nil {
		return cue.Value{}, ValidationErrors{{File: path, Message: err.Error()}}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, ValidationErrors{{File: path, Message: fmt.Sprintf("failed to read file: %v", err)}}
	}
	return p.compile(path, content, format)
}

func (p *Parser) loadDirectory(dir string) ([]cue.Value, ValidationErrors) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, ValidationErrors{{File: dir, Message: fmt.Sprintf("failed to read directory: %v", err)}}
	}

	var cueFiles, yamlFiles []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch format, err := FormatOf(e.Name()); {
		case err != nil:
		case format == FormatCUE:
			cueFiles = append(cueFiles, e.Name())
		default:
			yamlFiles = append(yamlFiles, e.Name())
		}
	}
	sort.Strings(yamlFiles)

	var (
		vals []cue.Value
		errs ValidationErrors
	)
	if len(cueFiles) > 0 {
		instances := load.Instances(cueFiles, &load.Config{Dir: dir})
		inst := instances[0]
		if inst.Err != nil {
			errs = append(errs, convertCUEErrors(inst.Err)...)
		} else {
			val := p.ctx.BuildInstance(inst)
			if err := val.Err(); err != nil {
				errs = append(errs, convertCUEErrors(err)...)
			} else {
				vals = append(vals, val)
			}
		}
	}
	for _, name := range yamlFiles {
		val, verrs := p.loadFile(filepath.Join(dir, name))
		errs = append(errs, verrs...)
		vals = append(vals, val)
	}

	if len(vals) == 0 && len(errs) == 0 {
		errs = append(errs, ValidationError{File: dir, Message: "no configuration files found"})
	}
	return vals, errs
}

func (p *Parser) compile(name string, content []byte, format Format) (cue.Value, ValidationErrors) {
	switch format {
	case FormatCUE:
		val := p.ctx.CompileBytes(content, cue.Filename(name))
		if err := val.Err(); err != nil {
			return cue.Value{}, convertCUEErrors(err)
		}
		return val, nil

	case FormatYAML:
		var doc map[string]interface{}
		if err := yaml.Unmarshal(content, &doc); err != nil {
			return cue.Value{}, ValidationErrors{{File: name, Message: err.Error()}}
		}
		if doc == nil {
			return cue.Value{}, ValidationErrors{{File: name, Message: "empty document"}}
		}
		val := p.ctx.Encode(doc)
		if err := val.Err(); err != nil {
			return cue.Value{}, ValidationErrors{{File: name, Message: err.Error()}}
		}
		return val, nil

	default:
		return cue.Value{}, ValidationErrors{{File: name, Message: fmt.Sprintf("unsupported format: %s", format)}}
	}
}

// decode checks the value against the schema and the struct tags and
// overlays it on the defaults.
func (p *Parser) decode(val cue.Value) (*HostConfig, error) {
	val = p.schema.Unify(val)
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, convertCUEErrors(err)
	}

	var doc interface{}
	if err := val.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	// The YAML round trip reads durations like "5s" and keeps the
	// defaults of absent fields.
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode configuration: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, ValidationErrors{{Message: err.Error()}}
	}

	if err := p.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks a configuration against its struct tags and the
// telemetry rules.
func (p *Parser) Validate(cfg *HostConfig) error {
	var errs ValidationErrors

	if err := p.validator.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("failed to validate configuration: %w", err)
		}
		for _, fe := range fieldErrs {
			errs = append(errs, ValidationError{
				Path:    fe.Namespace(),
				Message: fmt.Sprintf("failed on the '%s' rule", fe.Tag()),
			})
		}
	}
	if err := cfg.Telemetry.Validate(); err != nil {
		errs = append(errs, ValidationError{Path: "telemetry", Message: err.Error()})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// convertCUEErrors converts CUE errors with their positions.
func convertCUEErrors(err error) ValidationErrors {
	var errs ValidationErrors
	for _, e := range cueerrors.Errors(err) {
		ve := ValidationError{Path: strings.Join(e.Path(), ".")}
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		format, args := e.Msg()
		ve.Message = fmt.Sprintf(format, args...)
		errs = append(errs, ve)
	}
	if len(errs) == 0 {
		errs = append(errs, ValidationError{Message: err.Error()})
	}
	return errs
}

// Marshal renders a configuration as YAML.
func Marshal(cfg *HostConfig) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// LoadFile loads a configuration with a new parser.
func LoadFile(ctx context.Context, sources ...string) (*HostConfig, error) {
	p, err := NewParser()
	if err != nil {
		return nil, err
	}
	return p.Load(ctx, sources...)
}
