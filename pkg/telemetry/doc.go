// Package telemetry instruments a service provider host.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry),
// Prometheus metrics and an in-process event publisher. The host wires it
// into providers through two hooks:
//
//	lifecycle.AddJournalObserver(tel.JournalObserver())
//
// logs, counts and publishes every journal entry of the provider, and
//
//	exec := tel.StartExecution(ctx, provider)
//	state := processor.Execute(exec.Ctx, callback, framework, arguments)
//	exec.End(state)
//
// wraps a processor execution in a span and records its duration and final
// state.
//
// Lifecycle operations can be traced with InstrumentLifecycle, which marks
// the span as failed when the operation journals an unsuccessful entry.
package telemetry
