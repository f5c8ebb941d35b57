// Package mets provides the addressing helpers shared by providers and the
// host for METS documents: snapshot track codecs for file groups, page id
// codecs, the mets date format and agent role/note helpers.
//
// A snapshot track is the path of a snapshot inside the snapshot tree of a
// sandbox, expressed as the sequence of child ids from the root. The empty
// track addresses the root snapshot. A file group is the textual form of a
// track bound to a prefix:
//
//	prefix           -> []
//	prefix-1-2-3     -> [1 2 3]
//
// Encoding and decoding are exact inverses for every group that decodes.
package mets

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// TrackSeparator separates the prefix and the ids of a file group.
	TrackSeparator = "-"
)

// ErrNoMatch is matched by every AddressingError returned from a decoder.
var ErrNoMatch = errors.New("mets: no match")

// Track is a snapshot track, the path of child ids from the root snapshot.
type Track []int

// Validate checks that every id of the track is non-negative.
func (t Track) Validate() error {
	for i, id := range t {
		if id < 0 {
			return fmt.Errorf("invalid track id %d at position %d: must be non-negative", id, i)
		}
	}
	return nil
}

// IsRoot returns true if the track addresses the root snapshot.
func (t Track) IsRoot() bool {
	return len(t) == 0
}

// Equal reports whether both tracks address the same snapshot.
func (t Track) Equal(other Track) bool {
	if len(t) != len(other) {
		return false
	}
	for i := range t {
		if t[i] != other[i] {
			return false
		}
	}
	return true
}

// Child returns a new track addressing the child with the given id.
func (t Track) Child(id int) Track {
	child := make(Track, len(t), len(t)+1)
	copy(child, t)
	return append(child, id)
}

// String renders the ids separated by the track separator.
func (t Track) String() string {
	ids := make([]string, len(t))
	for i, id := range t {
		ids[i] = strconv.Itoa(id)
	}
	return strings.Join(ids, TrackSeparator)
}

// AddressingError describes a group or page id that could not be decoded.
type AddressingError struct {
	// Value is the rejected input.
	Value string

	// Prefix is the prefix the decoder was bound to.
	Prefix string

	// Reason is a short description of the mismatch.
	Reason string
}

// Error implements the error interface.
func (e *AddressingError) Error() string {
	return fmt.Sprintf("mets: %q does not match prefix %q: %s", e.Value, e.Prefix, e.Reason)
}

// Is makes every addressing error match ErrNoMatch.
func (e *AddressingError) Is(target error) bool {
	return target == ErrNoMatch
}

// FileGroup encodes and decodes snapshot tracks bound to a prefix.
type FileGroup struct {
	prefix string
}

// NewFileGroup creates a file group codec. The prefix is trimmed.
func NewFileGroup(prefix string) FileGroup {
	return FileGroup{prefix: strings.TrimSpace(prefix)}
}

// Prefix returns the trimmed prefix of the codec.
func (g FileGroup) Prefix() string {
	return g.prefix
}

// Encode returns the file group of the track: the prefix followed by
// "-id" for every id of the track.
func (g FileGroup) Encode(track Track) (string, error) {
	if err := track.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(g.prefix)
	for _, id := range track {
		b.WriteString(TrackSeparator)
		b.WriteString(strconv.Itoa(id))
	}
	return b.String(), nil
}

// Decode returns the track of the file group. Groups without the prefix,
// with an empty id list after a separator or with an id that is not a
// canonical non-negative decimal integer yield an AddressingError.
func (g FileGroup) Decode(group string) (Track, error) {
	if !strings.HasPrefix(group, g.prefix) {
		return nil, g.mismatch(group, "missing prefix")
	}

	rest := group[len(g.prefix):]
	if rest == "" {
		return Track{}, nil
	}
	if !strings.HasPrefix(rest, TrackSeparator) {
		return nil, g.mismatch(group, "prefix is not followed by a separator")
	}

	rest = rest[len(TrackSeparator):]
	if rest == "" {
		return nil, g.mismatch(group, "empty track")
	}

	segments := strings.Split(rest, TrackSeparator)
	track := make(Track, 0, len(segments))
	for _, segment := range segments {
		id, err := parseID(segment)
		if err != nil {
			return nil, g.mismatch(group, err.Error())
		}
		track = append(track, id)
	}
	return track, nil
}

func (g FileGroup) mismatch(value, reason string) *AddressingError {
	return &AddressingError{Value: value, Prefix: g.prefix, Reason: reason}
}

// parseID accepts canonical non-negative decimal integers only, so that
// decoding stays the exact inverse of encoding.
func parseID(segment string) (int, error) {
	if segment == "" {
		return 0, errors.New("empty id")
	}
	for _, r := range segment {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("id %q is not a decimal integer", segment)
		}
	}
	if len(segment) > 1 && segment[0] == '0' {
		return 0, fmt.Errorf("id %q has leading zeros", segment)
	}

	id, err := strconv.Atoi(segment)
	if err != nil {
		return 0, fmt.Errorf("id %q is out of range", segment)
	}
	return id, nil
}

// FrameworkFileGroup holds the input and output file groups of a processor
// execution. The input group addresses the snapshot the processor reads, the
// output group the snapshot it writes.
type FrameworkFileGroup struct {
	codec  FileGroup
	input  string
	output string
}

// NewFrameworkFileGroup encodes the input and output tracks with the prefix.
// A track that cannot be encoded leaves its group empty.
func NewFrameworkFileGroup(prefix string, input, output Track) FrameworkFileGroup {
	codec := NewFileGroup(prefix)

	fg := FrameworkFileGroup{codec: codec}
	if input != nil {
		fg.input, _ = codec.Encode(input)
	}
	if output != nil {
		fg.output, _ = codec.Encode(output)
	}
	return fg
}

// Input returns the input file group, empty if not available.
func (f FrameworkFileGroup) Input() string {
	return f.input
}

// Output returns the output file group, empty if not available.
func (f FrameworkFileGroup) Output() string {
	return f.output
}

// Codec returns the file group codec bound to the framework prefix.
func (f FrameworkFileGroup) Codec() FileGroup {
	return f.codec
}
