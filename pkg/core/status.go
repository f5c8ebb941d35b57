package core

import (
	"fmt"
)

// Status is the lifecycle status of a service provider.
type Status string

const (
	// StatusLoaded indicates the provider was instantiated by the host.
	StatusLoaded Status = "loaded"

	// StatusConfigured indicates the host handed over settings and
	// configuration.
	StatusConfigured Status = "configured"

	// StatusInitializing indicates the provider initialization is running.
	StatusInitializing Status = "initializing"

	// StatusInactive indicates the provider is initialized but stopped.
	StatusInactive Status = "inactive"

	// StatusActive indicates the provider is serving requests.
	StatusActive Status = "active"
)

// Statuses returns every status in lifecycle order.
func Statuses() []Status {
	return []Status{StatusLoaded, StatusConfigured, StatusInitializing, StatusInactive, StatusActive}
}

// IsInitialized returns true once the provider left the initialization.
func (s Status) IsInitialized() bool {
	return s == StatusInactive || s == StatusActive
}

// Validate checks if the status is valid.
func (s Status) Validate() error {
	switch s {
	case StatusLoaded, StatusConfigured, StatusInitializing, StatusInactive, StatusActive:
		return nil
	default:
		return fmt.Errorf("invalid status: %s", s)
	}
}

// ParseStatus parses a status name.
func ParseStatus(name string) (Status, error) {
	s := Status(name)
	if err := s.Validate(); err != nil {
		return "", err
	}
	return s, nil
}

// Type is the category of work a service provider offers.
type Type string

const (
	TypeImport         Type = "import"
	TypeLauncher       Type = "launcher"
	TypeOCR            Type = "ocr"
	TypeOLR            Type = "olr"
	TypePostcorrection Type = "postcorrection"
)

// Validate checks if the provider type is valid.
func (t Type) Validate() error {
	switch t {
	case TypeImport, TypeLauncher, TypeOCR, TypeOLR, TypePostcorrection:
		return nil
	default:
		return fmt.Errorf("invalid provider type: %s", t)
	}
}
