// Package registry keeps the service providers of a host.
//
// The registry configures every provider from the host configuration and
// initializes them: eager providers one after the other before
// InitializeAll returns, lazy enabled providers concurrently in the
// background. Journal observers given to the registry, and the telemetry
// observer, are attached to each registered provider.
package registry
