package env

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ocr4all/spi/pkg/mets"
)

// ImageFormat is the file format of derived images.
type ImageFormat string

const (
	ImageFormatTIF ImageFormat = "tif"
	ImageFormatJPG ImageFormat = "jpg"
	ImageFormatPNG ImageFormat = "png"
)

// Validate checks if the image format is valid.
func (f ImageFormat) Validate() error {
	switch f {
	case ImageFormatTIF, ImageFormatJPG, ImageFormatPNG:
		return nil
	default:
		return fmt.Errorf("invalid image format: %s", f)
	}
}

// Extension returns the file name extension including the dot.
func (f ImageFormat) Extension() string {
	return "." + string(f)
}

// Target describes where a processor operates: the exchange and opt
// directories of the host, the project and the sandbox. Each part is
// optional.
type Target struct {
	// Exchange is the directory shared with the user for imports.
	Exchange string

	// Opt is the directory of optional provider resources.
	Opt string

	Project *Project
	Sandbox *Sandbox
}

// IsExchangeDirectory returns true if the exchange path is a directory.
func (t *Target) IsExchangeDirectory() bool {
	return t != nil && isDirectory(t.Exchange)
}

// IsOptDirectory returns true if the opt path is a directory.
func (t *Target) IsOptDirectory() bool {
	return t != nil && isDirectory(t.Opt)
}

// Project is the project the processor works on.
type Project struct {
	Root   string
	Folio  string
	Images *Images
}

// IsRootDirectory returns true if the project root is a directory.
func (p *Project) IsRootDirectory() bool {
	return p != nil && isDirectory(p.Root)
}

// RootRelative returns the path relative to the project root. It fails if
// the path does not lie inside the root.
func (p *Project) RootRelative(path string) (string, error) {
	if p == nil {
		return "", fmt.Errorf("project is not defined")
	}
	return RelativePath(p.Root, path)
}

// Images holds the folio images of a project and their derivatives.
type Images struct {
	Folios      string
	Derivatives *Derivatives
}

// IsFoliosEmpty returns true if the folios directory has no entries.
func (i *Images) IsFoliosEmpty() (bool, error) {
	entries, err := os.ReadDir(i.Folios)
	if err != nil {
		return false, fmt.Errorf("failed to read folios directory: %w", err)
	}
	return len(entries) == 0, nil
}

// Derivatives holds the derived image directories of a project.
type Derivatives struct {
	Format    ImageFormat
	Thumbnail string
	Detail    string
	Best      string
}

// Sandbox is a workflow sandbox of a project with its snapshot tree.
type Sandbox struct {
	Root      string
	Snapshots string
	Launched  bool

	// Input is the input directory of the sandbox.
	Input string

	// SnapshotTrack addresses the snapshot the processor reads.
	SnapshotTrack mets.Track

	Mets *Mets
}

// IsRootDirectory returns true if the sandbox root is a directory.
func (s *Sandbox) IsRootDirectory() bool {
	return s != nil && isDirectory(s.Root)
}

// RootRelative returns the path relative to the sandbox root.
func (s *Sandbox) RootRelative(path string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("sandbox is not defined")
	}
	return RelativePath(s.Root, path)
}

// SnapshotsRelative returns the path relative to the snapshots directory.
func (s *Sandbox) SnapshotsRelative(path string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("sandbox is not defined")
	}
	return RelativePath(s.Snapshots, path)
}

// Mets locates the mets file of a sandbox and its file group prefix.
type Mets struct {
	File  string
	Group string
}

// RelativePath returns path relative to root if path lies inside root.
func RelativePath(root, path string) (string, error) {
	root = filepath.Clean(root)
	path = filepath.Clean(path)

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("failed to relativize %s: %w", path, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is not inside %s", path, root)
	}
	return rel, nil
}

func isDirectory(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
