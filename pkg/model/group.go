package model

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/ocr4all/spi/pkg/env"
)

// SelectOption is a selectable value of a select field.
type SelectOption struct {
	value       string
	description env.Internationalization
	selected    bool
	disabled    bool
}

// NewSelectOption creates an option. The value is trimmed and must not be
// blank.
func NewSelectOption(value string, description env.Internationalization, selected, disabled bool) (SelectOption, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return SelectOption{}, errors.New("the option value cannot be blank")
	}
	return SelectOption{value: value, description: description, selected: selected, disabled: disabled}, nil
}

// Value returns the option value.
func (o SelectOption) Value() string { return o.value }

// Description returns the localized option text, if any.
func (o SelectOption) Description(locale language.Tag) (string, bool) {
	return optional(o.description, locale)
}

// IsSelected returns true if the option is preselected.
func (o SelectOption) IsSelected() bool { return o.selected }

// IsDisabled returns true if the option cannot be chosen.
func (o SelectOption) IsDisabled() bool { return o.disabled }

// SelectItem is either a single option or an association grouping options
// under a common description.
type SelectItem struct {
	option      *SelectOption
	options     []SelectOption
	association bool
	description env.Internationalization
}

// OptionItem wraps an option as a select item.
func OptionItem(option SelectOption) SelectItem {
	return SelectItem{option: &option, description: option.description}
}

// AssociationItem groups options under a description.
func AssociationItem(description env.Internationalization, options ...SelectOption) SelectItem {
	return SelectItem{options: options, association: true, description: description}
}

// IsAssociation returns true if the item groups several options.
func (i SelectItem) IsAssociation() bool { return i.association }

// Option returns the option of a single option item.
func (i SelectItem) Option() (SelectOption, bool) {
	if i.option == nil {
		return SelectOption{}, false
	}
	return *i.option, true
}

// Options returns a copy of the options of an association.
func (i SelectItem) Options() []SelectOption {
	return append([]SelectOption(nil), i.options...)
}

// Description returns the localized item description, if any.
func (i SelectItem) Description(locale language.Tag) (string, bool) {
	return optional(i.description, locale)
}

// Group nests entries under a common label.
type Group struct {
	label    env.Internationalization
	open     bool
	disabled bool
	entries  []Entry
}

// GroupOption configures a group.
type GroupOption func(*Group)

// Open shows the group expanded.
func Open() GroupOption {
	return func(g *Group) { g.open = true }
}

// DisabledGroup marks the group read-only.
func DisabledGroup() GroupOption {
	return func(g *Group) { g.disabled = true }
}

// NewGroup creates a group. Nil entries are rejected.
func NewGroup(label env.Internationalization, entries []Entry, opts ...GroupOption) (*Group, error) {
	if label == nil {
		return nil, fmt.Errorf("group: %w", ErrMissingLabel)
	}
	copied, err := copyEntries(entries)
	if err != nil {
		return nil, fmt.Errorf("group: %w", err)
	}

	g := &Group{label: label, entries: copied}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Group) entry() {}

// Label returns the localized label.
func (g *Group) Label(locale language.Tag) string { return g.label.Message(locale) }

// IsDisabled returns true if the group cannot be edited.
func (g *Group) IsDisabled() bool { return g.disabled }

// IsOpen returns true if the group is shown expanded.
func (g *Group) IsOpen() bool { return g.open }

// Entries returns a copy of the nested entries.
func (g *Group) Entries() []Entry {
	return append([]Entry(nil), g.entries...)
}

// Model is the parameter form of a provider.
type Model struct {
	entries []Entry
}

// NewModel creates a model. Nil entries are rejected.
func NewModel(entries ...Entry) (*Model, error) {
	copied, err := copyEntries(entries)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	return &Model{entries: copied}, nil
}

// Entries returns a copy of the top level entries.
func (m *Model) Entries() []Entry {
	return append([]Entry(nil), m.entries...)
}

// Fields returns every field of the model, depth first.
func (m *Model) Fields() []*Field {
	var fields []*Field
	var walk func(entries []Entry)
	walk = func(entries []Entry) {
		for _, e := range entries {
			switch v := e.(type) {
			case *Field:
				fields = append(fields, v)
			case *Group:
				walk(v.entries)
			}
		}
	}
	walk(m.entries)
	return fields
}

// Arguments returns the argument names of every field, depth first.
func (m *Model) Arguments() []string {
	fields := m.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.argument
	}
	return names
}

func copyEntries(entries []Entry) ([]Entry, error) {
	copied := make([]Entry, 0, len(entries))
	for i, e := range entries {
		if isNilEntry(e) {
			return nil, fmt.Errorf("the entry %d cannot be nil", i)
		}
		copied = append(copied, e)
	}
	return copied, nil
}

func isNilEntry(e Entry) bool {
	switch v := e.(type) {
	case nil:
		return true
	case *Field:
		return v == nil
	case *Group:
		return v == nil
	default:
		return false
	}
}
