// Package command provides a process service provider running an external
// command declared in the host configuration.
//
// The arguments, environment and directory of the command reference the
// execution context with ${name} placeholders:
//
//	workspace         snapshots directory of the sandbox
//	mets              mets file in the workspace
//	input, output     file groups of the input and output snapshots
//	output_directory  directory of the output snapshot
//	parameters        all argument values as a JSON object
//
// and the declared fields by their argument name. The output of the command
// is forwarded line by line while it runs. A zero exit status locks the
// snapshot and completes the execution, any other status interrupts it.
package command
