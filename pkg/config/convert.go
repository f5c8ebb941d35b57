package config

import (
	"os/exec"

	"github.com/ocr4all/spi/pkg/core"
	"github.com/ocr4all/spi/pkg/env"
)

// LookPath probes system commands without an explicit availability.
var LookPath = exec.LookPath

// Configuration builds the configuration snapshot handed to providers.
func (c *HostConfig) Configuration() *env.Configuration {
	properties := make([]env.Property, 0, len(c.Properties))
	for _, p := range c.Properties {
		property := env.Property{Collection: p.Collection, Key: p.Key}
		if p.Value != nil {
			value := *p.Value
			property.Value = &value
		}
		properties = append(properties, property)
	}

	commands := make([]env.SystemCommand, 0, len(c.SystemCommands))
	for _, sc := range c.SystemCommands {
		available := false
		if sc.Available != nil {
			available = *sc.Available
		} else if _, err := LookPath(sc.Command); err == nil {
			available = true
		}
		commands = append(commands, env.SystemCommand{
			Type:      env.SystemCommandType(sc.Type),
			Command:   sc.Command,
			Available: available,
		})
	}

	return env.NewConfiguration(properties, commands)
}

// Architecture builds the microservice architecture of the host.
func (c *HostConfig) Architecture() *env.MicroserviceArchitecture {
	hosts := make([]env.Host, 0, len(c.Hosts))
	for _, h := range c.Hosts {
		hosts = append(hosts, env.Host{ID: h.ID, URL: h.URL})
	}
	return env.NewMicroserviceArchitecture(hosts...)
}

// Settings returns the lifecycle settings of a provider. Providers missing
// from the configuration get the default settings.
func (c *HostConfig) Settings(provider string, configuration *env.Configuration, architecture *env.MicroserviceArchitecture) core.Settings {
	settings := core.DefaultSettings()
	if p, ok := c.Provider(provider); ok {
		settings.Eager = p.IsEager()
		settings.Enabled = p.Enabled
		settings.ThreadPool = p.ThreadPool
	}
	settings.Configuration = configuration
	settings.Architecture = architecture
	return settings
}
