package model

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrArgumentNotFound is returned when no argument has the name.
	ErrArgumentNotFound = errors.New("argument not found")

	// ErrValueNotSet is returned when the argument carries no value.
	ErrValueNotSet = errors.New("argument value not set")
)

// TypeMismatchError is returned by typed lookups when the argument has a
// different kind.
type TypeMismatchError struct {
	Name string
	Want Kind
	Got  Kind
}

// Error implements the error interface.
func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("argument %q is of kind %s, not %s", e.Name, e.Got, e.Want)
}

// Argument is a named, typed value the host passes to a processor.
type Argument struct {
	name  string
	kind  Kind
	value any
}

// StringArgument creates a string argument.
func StringArgument(name, value string) Argument {
	return Argument{name: name, kind: KindString, value: value}
}

// IntegerArgument creates an integer argument.
func IntegerArgument(name string, value int) Argument {
	return Argument{name: name, kind: KindInteger, value: value}
}

// DecimalArgument creates a decimal argument.
func DecimalArgument(name string, value float32) Argument {
	return Argument{name: name, kind: KindDecimal, value: value}
}

// BooleanArgument creates a boolean argument.
func BooleanArgument(name string, value bool) Argument {
	return Argument{name: name, kind: KindBoolean, value: value}
}

// SelectArgument creates a select argument. An empty selection is unset.
func SelectArgument(name string, values []string) Argument {
	return multiple(name, KindSelect, values)
}

// ImageArgument creates an image argument holding image ids. An empty
// selection is unset.
func ImageArgument(name string, values []int) Argument {
	return multiple(name, KindImage, values)
}

// RecognitionModelArgument creates a recognition model argument. An empty
// selection is unset.
func RecognitionModelArgument(name string, values []string) Argument {
	return multiple(name, KindRecognitionModel, values)
}

// UnsetArgument creates an argument of the kind without a value.
func UnsetArgument(name string, kind Kind) Argument {
	return Argument{name: name, kind: kind}
}

func multiple[V any](name string, kind Kind, values []V) Argument {
	a := Argument{name: name, kind: kind}
	if len(values) > 0 {
		a.value = append([]V(nil), values...)
	}
	return a
}

// Name returns the argument name.
func (a Argument) Name() string { return a.name }

// Kind returns the argument variant.
func (a Argument) Kind() Kind { return a.kind }

// IsSet returns true if the argument carries a value.
func (a Argument) IsSet() bool { return a.value != nil }

// IsMultipleValues returns true if the argument carries a list of values.
func (a Argument) IsMultipleValues() bool { return a.kind.IsMultipleValues() }

// Value returns the raw value: string, int, float32, bool, []string or
// []int depending on the kind.
func (a Argument) Value() (any, bool) { return a.value, a.value != nil }

// String renders the argument as name[kind: value].
func (a Argument) String() string {
	value := "<not set>"
	switch v := a.value.(type) {
	case nil:
	case []string:
		value = "[" + strings.Join(v, ", ") + "]"
	case []int:
		ids := make([]string, len(v))
		for i, id := range v {
			ids[i] = strconv.Itoa(id)
		}
		value = "[" + strings.Join(ids, ", ") + "]"
	default:
		value = fmt.Sprint(v)
	}
	return a.name + "[" + string(a.kind) + ": " + value + "]"
}

// ModelArgument is the bag of arguments of an execution, keyed by unique
// names.
type ModelArgument struct {
	arguments []Argument
	index     map[string]int
}

// NewModelArgument creates the bag. Blank and duplicate names are rejected.
func NewModelArgument(arguments ...Argument) (*ModelArgument, error) {
	m := &ModelArgument{index: make(map[string]int, len(arguments))}
	for _, a := range arguments {
		if strings.TrimSpace(a.name) == "" {
			return nil, errors.New("the argument name cannot be blank")
		}
		if err := a.kind.Validate(); err != nil {
			return nil, fmt.Errorf("argument %q: %w", a.name, err)
		}
		if _, ok := m.index[a.name]; ok {
			return nil, fmt.Errorf("duplicate argument %q", a.name)
		}
		m.index[a.name] = len(m.arguments)
		m.arguments = append(m.arguments, a)
	}
	return m, nil
}

// Argument returns the argument with the exact name.
func (m *ModelArgument) Argument(name string) (Argument, bool) {
	if m == nil {
		return Argument{}, false
	}
	i, ok := m.index[name]
	if !ok {
		return Argument{}, false
	}
	return m.arguments[i], true
}

// Arguments returns a copy of the arguments in insertion order.
func (m *ModelArgument) Arguments() []Argument {
	if m == nil {
		return nil
	}
	return append([]Argument(nil), m.arguments...)
}

// Names returns the sorted argument names.
func (m *ModelArgument) Names() []string {
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.arguments))
	for _, a := range m.arguments {
		names = append(names, a.name)
	}
	sort.Strings(names)
	return names
}

// MissedArguments returns the names that are not in the bag, in the given
// order.
func (m *ModelArgument) MissedArguments(names ...string) []string {
	var missed []string
	for _, name := range names {
		if _, ok := m.Argument(name); !ok {
			missed = append(missed, name)
		}
	}
	return missed
}

// String renders every argument separated by ", ".
func (m *ModelArgument) String() string {
	if m == nil {
		return ""
	}
	parts := make([]string, len(m.arguments))
	for i, a := range m.arguments {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

func lookup[V any](m *ModelArgument, name string, kind Kind) (V, error) {
	var zero V
	a, ok := m.Argument(name)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrArgumentNotFound, name)
	}
	if a.kind != kind {
		return zero, &TypeMismatchError{Name: name, Want: kind, Got: a.kind}
	}
	if a.value == nil {
		return zero, fmt.Errorf("%w: %s", ErrValueNotSet, name)
	}
	return a.value.(V), nil
}

// StringValue returns the value of a string argument.
func (m *ModelArgument) StringValue(name string) (string, error) {
	return lookup[string](m, name, KindString)
}

// IntegerValue returns the value of an integer argument.
func (m *ModelArgument) IntegerValue(name string) (int, error) {
	return lookup[int](m, name, KindInteger)
}

// DecimalValue returns the value of a decimal argument.
func (m *ModelArgument) DecimalValue(name string) (float32, error) {
	return lookup[float32](m, name, KindDecimal)
}

// BooleanValue returns the value of a boolean argument.
func (m *ModelArgument) BooleanValue(name string) (bool, error) {
	return lookup[bool](m, name, KindBoolean)
}

// SelectValues returns a copy of the values of a select argument.
func (m *ModelArgument) SelectValues(name string) ([]string, error) {
	v, err := lookup[[]string](m, name, KindSelect)
	return append([]string(nil), v...), err
}

// ImageValues returns a copy of the image ids of an image argument.
func (m *ModelArgument) ImageValues(name string) ([]int, error) {
	v, err := lookup[[]int](m, name, KindImage)
	return append([]int(nil), v...), err
}

// RecognitionModelValues returns a copy of the models of a recognition
// model argument.
func (m *ModelArgument) RecognitionModelValues(name string) ([]string, error) {
	v, err := lookup[[]string](m, name, KindRecognitionModel)
	return append([]string(nil), v...), err
}
