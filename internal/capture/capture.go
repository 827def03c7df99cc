package capture

import (
	"image"

	"github.com/bryanchriswhite/airmirror/internal/config"
	"github.com/bryanchriswhite/airmirror/internal/window"
)

// Capturer defines the interface for pixel acquisition backends.
// Every call returns a freshly allocated image owned exclusively by
// the caller; there are no shared frame buffers.
type Capturer interface {
	// Start initializes the capturer and any required resources
	Start() error

	// Stop releases resources
	Stop() error

	// CaptureWindow captures the contents of a specific window.
	// An error means the handle is stale (window closed, unmapped,
	// or otherwise uncapturable) and should be discarded.
	CaptureWindow(h window.Handle) (*image.RGBA, error)

	// CaptureRegion captures a fixed region of the screen in
	// root-window coordinates.
	CaptureRegion(bounds config.Geometry) (*image.RGBA, error)

	// Name returns a human-readable name for this capturer
	Name() string
}
