package env

import (
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ocr4all/spi/pkg/mets"
)

// OperatingSystem is the operating system family the host runs on.
type OperatingSystem string

const (
	OSUnix         OperatingSystem = "unix"
	OSMac          OperatingSystem = "mac"
	OSWindows      OperatingSystem = "windows"
	OSNotSupported OperatingSystem = "notSupported"
)

// CurrentOperatingSystem maps the runtime GOOS to an operating system family.
func CurrentOperatingSystem() OperatingSystem {
	switch runtime.GOOS {
	case "darwin":
		return OSMac
	case "windows":
		return OSWindows
	case "linux", "freebsd", "openbsd", "netbsd", "dragonfly", "solaris", "aix":
		return OSUnix
	default:
		return OSNotSupported
	}
}

// Application describes the host application.
type Application struct {
	Label string
	Name  string

	// DateLayout is the Go time layout used for log messages. An empty
	// layout falls back to time.UnixDate.
	DateLayout string
}

// Framework is the execution context the host hands to a processor. It is
// not mutated once handed over, apart from SnapshotTrack which the host sets
// once before the execution starts.
type Framework struct {
	OperatingSystem OperatingSystem

	// UID and GID are the ids processes should run as, negative if unset.
	UID int
	GID int

	Application *Application

	// User is the user launching the processor, empty if unset.
	User string

	Configuration *Configuration
	Target        *Target

	// Output is the directory the processor writes its snapshot to.
	Output string

	// SnapshotTrack addresses the snapshot the processor creates.
	SnapshotTrack mets.Track

	Temporary string
}

// IsUID returns true if a user id is set.
func (f *Framework) IsUID() bool {
	return f.UID >= 0
}

// IsGID returns true if a group id is set.
func (f *Framework) IsGID() bool {
	return f.GID >= 0
}

// IsUserSet returns true if the launching user is known.
func (f *Framework) IsUserSet() bool {
	return f.User != ""
}

// FormatLogMessage prefixes the message with the current date and appends a
// newline. Processors report their standard output and error with it.
func (f *Framework) FormatLogMessage(message string) string {
	return f.FormatCurrentDate() + ": " + message + "\n"
}

// FormatCurrentDate formats the current time with the application layout.
func (f *Framework) FormatCurrentDate() string {
	return f.Format(time.Now())
}

// Format formats the time with the application layout.
func (f *Framework) Format(t time.Time) string {
	if f == nil || f.Application == nil || f.Application.DateLayout == "" {
		return t.Format(time.UnixDate)
	}
	return t.Format(f.Application.DateLayout)
}

func (f *Framework) sandbox() *Sandbox {
	if f.Target == nil {
		return nil
	}
	return f.Target.Sandbox
}

// ProcessorWorkspace returns the snapshots directory of the sandbox, empty
// if no sandbox is targeted.
func (f *Framework) ProcessorWorkspace() string {
	if s := f.sandbox(); s != nil {
		return s.Snapshots
	}
	return ""
}

// Mets returns the path of the mets file inside the processor workspace,
// empty if unknown.
func (f *Framework) Mets() string {
	s := f.sandbox()
	if s == nil || s.Snapshots == "" || s.Mets == nil || s.Mets.File == "" {
		return ""
	}
	return filepath.Join(s.Snapshots, s.Mets.File)
}

// MetsGroup returns the mets file group prefix, empty if unknown.
func (f *Framework) MetsGroup() string {
	s := f.sandbox()
	if s == nil || s.Mets == nil {
		return ""
	}
	return s.Mets.Group
}

// OutputRelativeProcessorWorkspace returns the output directory relative
// to the processor workspace.
func (f *Framework) OutputRelativeProcessorWorkspace() (string, error) {
	s := f.sandbox()
	if s == nil {
		return "", fmt.Errorf("sandbox is not defined")
	}
	return s.SnapshotsRelative(f.Output)
}

// FileGroup returns the input and output file groups of the execution. The
// input group encodes the sandbox snapshot track, the output group the
// framework snapshot track.
func (f *Framework) FileGroup() mets.FrameworkFileGroup {
	var input mets.Track
	if s := f.sandbox(); s != nil {
		input = s.SnapshotTrack
	}
	return mets.NewFrameworkFileGroup(f.MetsGroup(), input, f.SnapshotTrack)
}

// Value resolves a collection key against the framework configuration.
func (f *Framework) Value(key CollectionKey) string {
	return f.Configuration.Value(key)
}
