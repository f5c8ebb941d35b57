package env

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// PremiseState is the outcome of a provider premise check, ordered by
// severity.
type PremiseState string

const (
	// PremiseRelease indicates the provider can run on the target.
	PremiseRelease PremiseState = "release"

	// PremiseInfo indicates the provider can run, with a note to the user.
	PremiseInfo PremiseState = "info"

	// PremiseWarn indicates the provider can run, but probably with problems.
	PremiseWarn PremiseState = "warn"

	// PremiseBlock indicates the provider cannot run on the target.
	PremiseBlock PremiseState = "block"
)

// Validate checks if the premise state is valid.
func (s PremiseState) Validate() error {
	switch s {
	case PremiseRelease, PremiseInfo, PremiseWarn, PremiseBlock:
		return nil
	default:
		return fmt.Errorf("invalid premise state: %s", s)
	}
}

// Severity orders the states from release (0) to block (3).
func (s PremiseState) Severity() int {
	switch s {
	case PremiseInfo:
		return 1
	case PremiseWarn:
		return 2
	case PremiseBlock:
		return 3
	default:
		return 0
	}
}

// Premise tells the host whether a provider can run on a target.
type Premise struct {
	state   PremiseState
	message Internationalization
}

// NewPremise creates a premise. An empty state is a release; a release
// premise carries no message.
func NewPremise(state PremiseState, message Internationalization) Premise {
	if state == "" {
		state = PremiseRelease
	}
	if state == PremiseRelease {
		message = nil
	}
	return Premise{state: state, message: message}
}

// Release returns a release premise.
func Release() Premise {
	return NewPremise(PremiseRelease, nil)
}

// State returns the premise state.
func (p Premise) State() PremiseState {
	if p.state == "" {
		return PremiseRelease
	}
	return p.state
}

// Message returns the localized message, empty for release premises.
func (p Premise) Message(locale language.Tag) string {
	return p.message.Message(locale)
}

// Host is a microservice host of the architecture.
type Host struct {
	ID  string
	URL string
}

// MicroserviceArchitecture lists the microservice hosts known to the host
// application.
type MicroserviceArchitecture struct {
	hosts map[string]Host
}

// NewMicroserviceArchitecture creates the architecture. Hosts with a blank
// id are skipped; later hosts replace earlier ones with the same id.
func NewMicroserviceArchitecture(hosts ...Host) *MicroserviceArchitecture {
	a := &MicroserviceArchitecture{hosts: make(map[string]Host)}
	for _, h := range hosts {
		h.ID = strings.TrimSpace(h.ID)
		if h.ID == "" {
			continue
		}
		a.hosts[h.ID] = h
	}
	return a
}

// Hosts returns the hosts sorted case-insensitively by id.
func (a *MicroserviceArchitecture) Hosts() []Host {
	if a == nil {
		return nil
	}
	hosts := make([]Host, 0, len(a.hosts))
	for _, h := range a.hosts {
		hosts = append(hosts, h)
	}
	sort.Slice(hosts, func(i, j int) bool {
		li, lj := strings.ToLower(hosts[i].ID), strings.ToLower(hosts[j].ID)
		if li == lj {
			return hosts[i].ID < hosts[j].ID
		}
		return li < lj
	})
	return hosts
}

// Host returns the host with the id.
func (a *MicroserviceArchitecture) Host(id string) (Host, bool) {
	if a == nil {
		return Host{}, false
	}
	h, ok := a.hosts[id]
	return h, ok
}
