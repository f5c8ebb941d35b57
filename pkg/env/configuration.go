package env

import (
	"fmt"
	"sort"
	"strings"
)

// Property is a configuration value of a provider collection.
type Property struct {
	Collection string
	Key        string
	Value      *string
}

// NewProperty creates a property with a value.
func NewProperty(collection, key, value string) Property {
	return Property{Collection: collection, Key: key, Value: &value}
}

// CollectionKey declares a typed configuration key of a provider with its
// default value.
type CollectionKey struct {
	// Collection is the property collection, typically the provider id.
	Collection string

	// Key is the property key inside the collection.
	Key string

	// Default is returned when the property is missing.
	Default string

	// AllowBlank accepts blank values instead of falling back to Default.
	AllowBlank bool

	// KeepWhitespace returns values untrimmed.
	KeepWhitespace bool
}

// SystemCommandType identifies a host system command.
type SystemCommandType string

const (
	SystemCommandDocker   SystemCommandType = "docker"
	SystemCommandConvert  SystemCommandType = "convert"
	SystemCommandIdentify SystemCommandType = "identify"
)

// Validate checks if the system command type is valid.
func (t SystemCommandType) Validate() error {
	switch t {
	case SystemCommandDocker, SystemCommandConvert, SystemCommandIdentify:
		return nil
	default:
		return fmt.Errorf("invalid system command type: %s", t)
	}
}

// SystemCommand is a command available on the host.
type SystemCommand struct {
	Type      SystemCommandType
	Command   string
	Available bool
}

// Configuration is the read-only configuration snapshot the host hands to a
// provider: two-level properties and the system command registry.
type Configuration struct {
	properties map[string]map[string]Property
	commands   map[SystemCommandType]SystemCommand
}

// NewConfiguration creates a configuration snapshot. Later properties with
// the same collection and key replace earlier ones.
func NewConfiguration(properties []Property, commands []SystemCommand) *Configuration {
	c := &Configuration{
		properties: make(map[string]map[string]Property),
		commands:   make(map[SystemCommandType]SystemCommand),
	}

	for _, p := range properties {
		collection, ok := c.properties[p.Collection]
		if !ok {
			collection = make(map[string]Property)
			c.properties[p.Collection] = collection
		}
		collection[p.Key] = p
	}

	for _, cmd := range commands {
		c.commands[cmd.Type] = cmd
	}

	return c
}

// Collections returns the sorted names of the property collections.
func (c *Configuration) Collections() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.properties))
	for name := range c.properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Keys returns the sorted keys of a collection.
func (c *Configuration) Keys(collection string) ([]string, bool) {
	if c == nil {
		return nil, false
	}
	properties, ok := c.properties[collection]
	if !ok {
		return nil, false
	}
	keys := make([]string, 0, len(properties))
	for key := range properties {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, true
}

// Property returns the property of a collection.
func (c *Configuration) Property(collection, key string) (Property, bool) {
	if c == nil {
		return Property{}, false
	}
	p, ok := c.properties[collection][key]
	return p, ok
}

// SystemCommand returns the registered system command of the type.
func (c *Configuration) SystemCommand(t SystemCommandType) (SystemCommand, bool) {
	if c == nil {
		return SystemCommand{}, false
	}
	cmd, ok := c.commands[t]
	return cmd, ok
}

// IsSystemCommandAvailable returns true if the command of the type is
// registered and available.
func (c *Configuration) IsSystemCommandAvailable(t SystemCommandType) bool {
	cmd, ok := c.SystemCommand(t)
	return ok && cmd.Available
}

// Value resolves a collection key. The default is returned when the
// configuration or the property is missing, the property has no value, or
// the value is blank and blank values are not allowed. Values are trimmed
// unless the key keeps whitespace.
func (c *Configuration) Value(key CollectionKey) string {
	p, ok := c.Property(key.Collection, key.Key)
	if !ok || p.Value == nil {
		return key.Default
	}

	value := *p.Value
	if !key.AllowBlank && strings.TrimSpace(value) == "" {
		return key.Default
	}
	if key.KeepWhitespace {
		return value
	}
	return strings.TrimSpace(value)
}
