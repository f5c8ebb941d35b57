// Package model describes the parameter forms a provider offers the host
// and the typed arguments the host passes back for an execution.
//
// Forms are trees of entries: fields bound to an argument name and groups
// nesting further entries. A field is a closed variant over its Kind; the
// kind fixes the type of its default value and which of the kind-specific
// settings apply.
package model

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/ocr4all/spi/pkg/env"
)

// Kind identifies the variant of a field or argument.
type Kind string

const (
	KindString           Kind = "string"
	KindInteger          Kind = "integer"
	KindDecimal          Kind = "decimal"
	KindBoolean          Kind = "boolean"
	KindSelect           Kind = "select"
	KindImage            Kind = "image"
	KindRecognitionModel Kind = "recognition model"
)

// Validate checks if the kind is valid.
func (k Kind) Validate() error {
	switch k {
	case KindString, KindInteger, KindDecimal, KindBoolean,
		KindSelect, KindImage, KindRecognitionModel:
		return nil
	default:
		return fmt.Errorf("invalid kind: %s", k)
	}
}

// IsMultipleValues returns true if arguments of the kind carry a list of
// values.
func (k Kind) IsMultipleValues() bool {
	return k == KindSelect || k == KindImage || k == KindRecognitionModel
}

// Entry is an element of a form: a *Field or a *Group.
type Entry interface {
	// Label returns the localized label of the entry.
	Label(locale language.Tag) string

	// IsDisabled returns true if the entry is shown but cannot be edited.
	IsDisabled() bool

	entry()
}

// ErrMissingLabel is returned when an entry is created without a label.
var ErrMissingLabel = errors.New("the label cannot be nil")

// Number holds the settings of integer and decimal fields.
type Number struct {
	Step    *float64
	Minimum *float64
	Maximum *float64
	Unit    env.Internationalization
}

// Image holds the settings of image selection fields.
type Image struct {
	Workflow         bool
	HideCheckbox     bool
	Zoom             bool
	SelectType       bool
	SelectKeyword    bool
	SelectAltogether bool
}

// DefaultImage returns the image settings used when none are given.
func DefaultImage() Image {
	return Image{Zoom: true, SelectType: true, SelectKeyword: true, SelectAltogether: true}
}

// RecognitionModel holds the model sources offered by recognition model
// fields.
type RecognitionModel struct {
	ApplicationModels       bool
	ProjectModels           bool
	RemainderProjectsModels bool
	MultipleModels          bool
}

// DefaultRecognitionModel returns the recognition model settings used when
// none are given.
func DefaultRecognitionModel() RecognitionModel {
	return RecognitionModel{ApplicationModels: true, ProjectModels: true, MultipleModels: true}
}

// Field is a form field bound to an argument name.
type Field struct {
	kind        Kind
	argument    string
	value       any
	label       env.Internationalization
	description env.Internationalization
	placeholder env.Internationalization
	disabled    bool

	number           Number
	multipleOptions  bool
	items            []SelectItem
	image            Image
	recognitionModel RecognitionModel
}

// FieldOption configures a field.
type FieldOption func(*Field)

// WithValue sets the default value. The value must match the field kind:
// string for string fields, int for integer, float32 for decimal and bool
// for boolean fields.
func WithValue(value any) FieldOption {
	return func(f *Field) { f.value = value }
}

// WithDescription sets the help text shown below the field.
func WithDescription(description env.Internationalization) FieldOption {
	return func(f *Field) { f.description = description }
}

// WithPlaceholder sets the placeholder of text inputs.
func WithPlaceholder(placeholder env.Internationalization) FieldOption {
	return func(f *Field) { f.placeholder = placeholder }
}

// Disabled marks the field read-only.
func Disabled() FieldOption {
	return func(f *Field) { f.disabled = true }
}

// WithNumber sets the step, range and unit of a number field.
func WithNumber(number Number) FieldOption {
	return func(f *Field) { f.number = number }
}

// WithMultipleOptions allows selecting several options of a select field.
func WithMultipleOptions() FieldOption {
	return func(f *Field) { f.multipleOptions = true }
}

// WithImage sets the image selection settings.
func WithImage(image Image) FieldOption {
	return func(f *Field) { f.image = image }
}

// WithRecognitionModel sets the offered recognition model sources.
func WithRecognitionModel(rm RecognitionModel) FieldOption {
	return func(f *Field) { f.recognitionModel = rm }
}

// NewField creates a field of the kind. Select fields are created with
// NewSelectField.
func NewField(kind Kind, argument string, label env.Internationalization, opts ...FieldOption) (*Field, error) {
	if kind == KindSelect {
		return nil, fmt.Errorf("select field %q requires items", argument)
	}
	return newField(kind, argument, label, opts)
}

// NewSelectField creates a select field. Zero association options are
// dropped and associations left without options are skipped; at least one
// item must remain.
func NewSelectField(argument string, label env.Internationalization, items []SelectItem, opts ...FieldOption) (*Field, error) {
	f, err := newField(KindSelect, argument, label, opts)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		if item.IsAssociation() {
			var options []SelectOption
			for _, o := range item.options {
				if o.value != "" {
					options = append(options, o)
				}
			}
			if len(options) == 0 {
				continue
			}
			item.options = options
		} else if item.option == nil {
			continue
		}
		f.items = append(f.items, item)
	}
	if len(f.items) == 0 {
		return nil, fmt.Errorf("select field %q: the items cannot be empty", argument)
	}
	return f, nil
}

func newField(kind Kind, argument string, label env.Internationalization, opts []FieldOption) (*Field, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(argument) == "" {
		return nil, errors.New("the argument cannot be blank")
	}
	if label == nil {
		return nil, fmt.Errorf("field %q: %w", argument, ErrMissingLabel)
	}

	f := &Field{
		kind:             kind,
		argument:         argument,
		label:            label,
		image:            DefaultImage(),
		recognitionModel: DefaultRecognitionModel(),
	}
	for _, opt := range opts {
		opt(f)
	}

	if err := checkValue(kind, f.value); err != nil {
		return nil, fmt.Errorf("field %q: %w", argument, err)
	}
	return f, nil
}

func checkValue(kind Kind, value any) error {
	if value == nil {
		return nil
	}

	ok := false
	switch kind {
	case KindString:
		_, ok = value.(string)
	case KindInteger:
		_, ok = value.(int)
	case KindDecimal:
		_, ok = value.(float32)
	case KindBoolean:
		_, ok = value.(bool)
	}
	if !ok {
		return fmt.Errorf("default value of type %T does not match kind %s", value, kind)
	}
	return nil
}

func (f *Field) entry() {}

// Kind returns the field variant.
func (f *Field) Kind() Kind { return f.kind }

// Argument returns the argument name the field is bound to.
func (f *Field) Argument() string { return f.argument }

// Value returns the default value, if any.
func (f *Field) Value() (any, bool) { return f.value, f.value != nil }

// Label returns the localized label.
func (f *Field) Label(locale language.Tag) string { return f.label.Message(locale) }

// Description returns the localized description, if any.
func (f *Field) Description(locale language.Tag) (string, bool) {
	return optional(f.description, locale)
}

// Placeholder returns the localized placeholder, if any.
func (f *Field) Placeholder(locale language.Tag) (string, bool) {
	return optional(f.placeholder, locale)
}

// IsDisabled returns true if the field cannot be edited.
func (f *Field) IsDisabled() bool { return f.disabled }

// Number returns the number settings of integer and decimal fields.
func (f *Field) Number() (Number, bool) {
	return f.number, f.kind == KindInteger || f.kind == KindDecimal
}

// Items returns a copy of the select items.
func (f *Field) Items() []SelectItem {
	return append([]SelectItem(nil), f.items...)
}

// IsMultipleOptions returns true if several options can be selected.
func (f *Field) IsMultipleOptions() bool { return f.multipleOptions }

// Image returns the image selection settings of image fields.
func (f *Field) Image() (Image, bool) { return f.image, f.kind == KindImage }

// RecognitionModel returns the model sources of recognition model fields.
func (f *Field) RecognitionModel() (RecognitionModel, bool) {
	return f.recognitionModel, f.kind == KindRecognitionModel
}

func optional(i env.Internationalization, locale language.Tag) (string, bool) {
	if i == nil {
		return "", false
	}
	return i(locale), true
}
