package window

import (
	"github.com/bryanchriswhite/airmirror/internal/config"
)

// Handle is an opaque identifier for an on-screen window. It is a
// cached lookup result, not an ownership relation: a handle becomes
// stale the moment capture through it fails and must be re-resolved.
type Handle uint32

// Info describes a visible window, as reported by the list command.
type Info struct {
	ID       uint32          `json:"id"`
	Title    string          `json:"title"`
	Class    string          `json:"class"`
	Geometry config.Geometry `json:"geometry"`
}

// Backend abstracts the display server's window registry so the
// streaming core carries no dependency on a specific automation
// mechanism and tests can substitute deterministic doubles.
type Backend interface {
	// FindWindow returns the first visible window whose title contains
	// titleSubstring (case-insensitive). A failing registry query is
	// indistinguishable from "not found" so callers always have a
	// single fallback path.
	FindWindow(titleSubstring string) (Handle, bool)

	// MoveWindow moves and resizes a window to the given bounds.
	MoveWindow(h Handle, bounds config.Geometry) error

	// ListWindows returns all visible titled windows.
	ListWindows() ([]Info, error)

	// Close releases the display server connection.
	Close() error

	// Name returns the backend name (e.g. "x11").
	Name() string
}
