// Package policy decides provider premises with Open Policy Agent.
//
// A premise policy is a Rego module. Its package document may define the
// sets block, warn and info. Every member is a message, either a string or
// an object with a message field:
//
//	package ocr4all.premise.docker
//
//	import rego.v1
//
//	block contains msg if {
//		not input.system_commands.docker
//		msg := "docker is required"
//	}
//
// The engine evaluates every enabled policy that applies to a provider
// against an Input collected from the target and the host configuration.
// The most severe finding decides the premise state; a provider without
// findings is released.
//
// Policies are loaded from .rego and .json files and may be watched for
// changes:
//
//	engine, err := policy.NewEngine(logger)
//	if err != nil {
//		return err
//	}
//	if err := engine.Watch(ctx, []string{"/etc/ocr4all/policies"}); err != nil {
//		return err
//	}
//	premise := engine.Premise(ctx, policy.NewInput(facts, target, configuration, architecture))
package policy
