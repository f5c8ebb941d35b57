package mets

import (
	"errors"
	"testing"
	"time"
)

func TestFileGroupEncode(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		track  Track
		want   string
	}{
		{"root", "OCR-D", Track{}, "OCR-D"},
		{"nil track is root", "OCR-D", nil, "OCR-D"},
		{"single", "OCR-D", Track{0}, "OCR-D-0"},
		{"nested", "OCR-D", Track{1, 2, 3}, "OCR-D-1-2-3"},
		{"trimmed prefix", "  OCR-D \t", Track{4}, "OCR-D-4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewFileGroup(tt.prefix).Encode(tt.track)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Encode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFileGroupEncodeRejectsNegativeIDs(t *testing.T) {
	if _, err := NewFileGroup("OCR-D").Encode(Track{1, -2}); err == nil {
		t.Error("expected error for negative id")
	}
}

func TestFileGroupDecode(t *testing.T) {
	codec := NewFileGroup("OCR-D")

	tests := []struct {
		name    string
		group   string
		want    Track
		wantErr bool
	}{
		{"root", "OCR-D", Track{}, false},
		{"single", "OCR-D-7", Track{7}, false},
		{"nested", "OCR-D-1-2-3", Track{1, 2, 3}, false},
		{"zero", "OCR-D-0-0", Track{0, 0}, false},
		{"other prefix", "OTHER-1", nil, true},
		{"trailing separator", "OCR-D-", nil, true},
		{"no separator", "OCR-Dx1", nil, true},
		{"non integer", "OCR-D-1-a", nil, true},
		{"empty segment", "OCR-D-1--2", nil, true},
		{"signed", "OCR-D-+1", nil, true},
		{"leading zero", "OCR-D-01", nil, true},
		{"overflow", "OCR-D-99999999999999999999999", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := codec.Decode(tt.group)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Decode(%q) expected error, got %v", tt.group, got)
				}
				if !errors.Is(err, ErrNoMatch) {
					t.Errorf("Decode(%q) error = %v, want ErrNoMatch", tt.group, err)
				}
				var addressing *AddressingError
				if !errors.As(err, &addressing) {
					t.Errorf("Decode(%q) error is not an AddressingError", tt.group)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode(%q) error = %v", tt.group, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Decode(%q) = %v, want %v", tt.group, got, tt.want)
			}
		})
	}
}

func TestFileGroupRoundTrip(t *testing.T) {
	codec := NewFileGroup("OCR-D-SNAPSHOT")

	tracks := []Track{{}, {0}, {12}, {1, 0, 5}, {3, 14, 15, 92, 65}}
	for _, track := range tracks {
		group, err := codec.Encode(track)
		if err != nil {
			t.Fatalf("Encode(%v) error = %v", track, err)
		}
		decoded, err := codec.Decode(group)
		if err != nil {
			t.Fatalf("Decode(%q) error = %v", group, err)
		}
		if !decoded.Equal(track) {
			t.Errorf("round trip of %v = %v", track, decoded)
		}
		again, _ := codec.Encode(decoded)
		if again != group {
			t.Errorf("Encode(Decode(%q)) = %q", group, again)
		}
	}
}

func TestTrackHelpers(t *testing.T) {
	track := Track{1, 2}
	child := track.Child(3)

	if !child.Equal(Track{1, 2, 3}) {
		t.Errorf("Child() = %v", child)
	}
	if !track.Equal(Track{1, 2}) {
		t.Errorf("Child() mutated the parent: %v", track)
	}
	if child.String() != "1-2-3" {
		t.Errorf("String() = %q", child.String())
	}
	if !(Track{}).IsRoot() || track.IsRoot() {
		t.Error("IsRoot() mismatch")
	}
}

func TestFrameworkFileGroup(t *testing.T) {
	fg := NewFrameworkFileGroup(" OCR-D ", Track{1}, Track{1, 2})

	if fg.Input() != "OCR-D-1" {
		t.Errorf("Input() = %q", fg.Input())
	}
	if fg.Output() != "OCR-D-1-2" {
		t.Errorf("Output() = %q", fg.Output())
	}

	missing := NewFrameworkFileGroup("OCR-D", nil, Track{-1})
	if missing.Input() != "" || missing.Output() != "" {
		t.Errorf("expected empty groups, got %q and %q", missing.Input(), missing.Output())
	}
}

func TestPage(t *testing.T) {
	page := NewPage(" PHYS ")

	id := page.ID(" 0001 ")
	if id != "PHYS-id_0001" {
		t.Fatalf("ID() = %q", id)
	}

	group, err := page.GroupID(id)
	if err != nil {
		t.Fatalf("GroupID() error = %v", err)
	}
	if group != "0001" {
		t.Errorf("GroupID() = %q", group)
	}

	if _, err := page.GroupID("OTHER-id_0001"); !errors.Is(err, ErrNoMatch) {
		t.Errorf("GroupID() error = %v, want ErrNoMatch", err)
	}
}

func TestDate(t *testing.T) {
	date := time.Date(2024, time.March, 5, 7, 8, 9, 123_000_000, time.Local)

	formatted := FormatDate(date)
	if formatted != "2024-03-05T07:08:09.123" {
		t.Fatalf("FormatDate() = %q", formatted)
	}

	parsed, err := ParseDate(formatted)
	if err != nil {
		t.Fatalf("ParseDate() error = %v", err)
	}
	if !parsed.Equal(date) {
		t.Errorf("ParseDate() = %v, want %v", parsed, date)
	}
}

func TestAgentRole(t *testing.T) {
	tests := []struct {
		role, other, want string
		wantErr           bool
	}{
		{"CREATOR", "", "CREATOR", false},
		{"creator", "ignored", "CREATOR", false},
		{"OTHER", "PROCESSOR", "PROCESSOR", false},
		{"OTHER", " ", "", true},
		{"EDITOR", "", "", true},
	}

	for _, tt := range tests {
		got, err := AgentRole(tt.role, tt.other)
		if (err != nil) != tt.wantErr {
			t.Errorf("AgentRole(%q, %q) error = %v, wantErr %v", tt.role, tt.other, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("AgentRole(%q, %q) = %q, want %q", tt.role, tt.other, got, tt.want)
		}
	}
}

func TestParseNote(t *testing.T) {
	for _, note := range Notes() {
		got, err := ParseNote(" " + note.Label())
		if err != nil || got != note {
			t.Errorf("ParseNote(%q) = %q, %v", note.Label(), got, err)
		}
	}
	if _, err := ParseNote("unknown"); err == nil {
		t.Error("expected error for unknown note")
	}
}
