package config

import (
	"fmt"

	"cuelang.org/go/cue"
)

// Schema returns the CUE schema host configuration documents are unified
// with. Documents are closed: unknown fields are errors.
func Schema() string {
	return hostSchema
}

func compileSchema(ctx *cue.Context) (cue.Value, error) {
	val := ctx.CompileString(hostSchema, cue.Filename("schema.cue"))
	if err := val.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("failed to compile schema: %w", err)
	}
	host := val.LookupPath(cue.ParsePath("#Host"))
	if !host.Exists() {
		return cue.Value{}, fmt.Errorf("schema has no #Host definition")
	}
	return host, nil
}

const hostSchema = `
#Host: {
	name: string & !=""

	properties?: [...#Property]
	system_commands?: [...#SystemCommand]
	hosts?: [...#Microservice]
	providers?: [...#Provider]

	store?: {
		path?: string
	}

	policies?: {
		paths?: [...string]
		watch?: bool
	}

	// Checked by the telemetry package.
	telemetry?: {...}
}

#Property: {
	collection: string & !=""
	key:        string & !=""
	value?:     string
}

#CommandType: "docker" | "convert" | "identify"

#SystemCommand: {
	type:       #CommandType
	command:    string & !=""
	available?: bool
}

#Microservice: {
	id:  string & !=""
	url: string & =~"^[a-z][a-z0-9+.-]*://"
}

#Provider: {
	id:   string & =~"^[a-zA-Z0-9._-]+$"
	type: "import" | "launcher" | "ocr" | "olr" | "postcorrection"

	name?:        string
	description?: string
	version?:     number & >=0
	index?:       int
	categories?: [...string]
	steps?: [...string]
	icon?:   string
	advice?: string

	eager?:       bool
	enabled?:     bool
	thread_pool?: string

	command?: #Command
}

#Command: {
	path: string & !=""
	args?: [...string]
	env?: {[string]: string}
	directory?: string
	required_commands?: [...#CommandType]
	fields?: [...#Field]
}

#Field: {
	argument:     string & =~"^[a-zA-Z_][a-zA-Z0-9_-]*$"
	kind:         "string" | "integer" | "decimal" | "boolean"
	label?:       string
	description?: string
	required?:    bool
	default?:     string | number | bool
}
`
