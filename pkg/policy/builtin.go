package policy

// BuiltinPolicies returns the policies every engine starts with.
func BuiltinPolicies() []Policy {
	return []Policy{
		systemCommandsPolicy(),
		foliosPolicy(),
		exchangePolicy(),
	}
}

// systemCommandsPolicy blocks providers whose required system commands are
// not available on the host.
func systemCommandsPolicy() Policy {
	return Policy{
		Name:        "system-commands",
		Description: "Blocks providers requiring unavailable system commands",
		Enabled:     true,
		Rego: `package ocr4all.premise.commands

import rego.v1

block contains msg if {
	some command in input.provider.required_commands
	not input.system_commands[command]
	msg := sprintf("the required system command '%s' is not available", [command])
}
`,
	}
}

// foliosPolicy warns if the project of the target has no folios yet.
func foliosPolicy() Policy {
	return Policy{
		Name:        "folios",
		Description: "Warns when the target project contains no folios",
		Enabled:     true,
		Rego: `package ocr4all.premise.folios

import rego.v1

warn contains msg if {
	input.target.project_directory
	input.target.folios_empty
	msg := "the project contains no folios"
}

block contains msg if {
	input.target.project_root
	not input.target.project_directory
	msg := sprintf("the project directory '%s' is not available", [input.target.project_root])
}
`,
	}
}

// exchangePolicy reports a missing exchange directory.
func exchangePolicy() Policy {
	return Policy{
		Name:        "exchange",
		Description: "Reports a missing exchange directory",
		Enabled:     true,
		Rego: `package ocr4all.premise.exchange

import rego.v1

info contains msg if {
	input.target
	not input.target.exchange_directory
	msg := "the exchange directory is not available"
}
`,
	}
}
