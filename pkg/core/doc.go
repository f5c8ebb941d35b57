// Package core defines the contract between the host application and its
// service providers.
//
// # Lifecycle
//
// Every provider owns a Lifecycle, a small state machine the host drives:
//
//	loaded -> configured -> initializing -> active | inactive
//	                                        active <-> inactive
//
// Configure hands over the host settings, Initialize runs the provider's
// initialization hook and Start, Restart and Stop toggle between active and
// inactive. Enable, Disable, Eager, Lazy and the thread pool operations
// change flags without touching the status.
//
// Every attempted operation is recorded in the provider journal. Illegal
// transitions never fail loudly: they keep the status and append a warning
// whose source and target status are equal. Initialization failures are
// classified (see InitErrorClass) and leave the provider inactive.
//
// # Processors
//
// A ProcessServiceProvider creates a Processor per execution. Processors
// report progress and cumulative output through a Callback and end in one
// of three states: completed, canceled or interrupted. CoreProcessor carries
// the shared bookkeeping and can be bound to an external process so that a
// cancel request terminates it.
package core
