package mets

import (
	"fmt"
	"strings"
)

// Role is the role of a mets agent.
type Role string

const (
	// RoleCreator is the role of the agent that created a file group.
	RoleCreator Role = "CREATOR"

	// RoleOther marks agents whose role is given as other role.
	RoleOther Role = "OTHER"
)

// Validate checks if the role is valid.
func (r Role) Validate() error {
	switch r {
	case RoleCreator, RoleOther:
		return nil
	default:
		return fmt.Errorf("invalid agent role: %s", r)
	}
}

// AgentRole resolves the effective role of an agent, taking the other role
// into account when the role is OTHER.
func AgentRole(role, otherRole string) (string, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(role)))
	if err := r.Validate(); err != nil {
		return "", err
	}
	if r == RoleOther {
		other := strings.TrimSpace(otherRole)
		if other == "" {
			return "", fmt.Errorf("agent role %s requires an other role", RoleOther)
		}
		return other, nil
	}
	return string(r), nil
}

// Note is the label of a mets agent note written by a processor.
type Note string

const (
	NoteInputFileGroup  Note = "input-file-grp"
	NoteOutputFileGroup Note = "output-file-grp"
	NoteParameter       Note = "parameter"
	NotePageID          Note = "page-id"
)

// Notes returns all known note labels.
func Notes() []Note {
	return []Note{NoteInputFileGroup, NoteOutputFileGroup, NoteParameter, NotePageID}
}

// ParseNote returns the note with the given label.
func ParseNote(label string) (Note, error) {
	label = strings.TrimSpace(label)
	for _, note := range Notes() {
		if string(note) == label {
			return note, nil
		}
	}
	return "", fmt.Errorf("unknown agent note: %q", label)
}

// Label returns the note label.
func (n Note) Label() string {
	return string(n)
}
