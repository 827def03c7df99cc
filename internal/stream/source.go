package stream

import (
	"errors"
	"image"
	"time"

	"github.com/bryanchriswhite/airmirror/internal/capture"
	"github.com/bryanchriswhite/airmirror/internal/config"
	"github.com/bryanchriswhite/airmirror/internal/logger"
	"github.com/bryanchriswhite/airmirror/internal/metrics"
	"github.com/bryanchriswhite/airmirror/internal/window"
)

// ErrSourceUnavailable means even the fallback region capture failed.
// It is fatal for the session that hit it and for nothing else.
var ErrSourceUnavailable = errors.New("source unavailable: fallback region capture failed")

// FrameSource produces one frame per Next call using a two-tier
// strategy: direct window capture through a cached handle when the
// receiver window is resolvable, fixed-region screen capture otherwise.
//
// A FrameSource is owned by a single stream session and is not safe
// for concurrent use. Sessions for the same source each carry their
// own FrameSource; the duplicated resolution work buys the absence of
// shared mutable state.
type FrameSource struct {
	src            config.Source
	backend        window.Backend
	capturer       capture.Capturer
	lookupInterval time.Duration
	metrics        *metrics.Metrics

	handle     window.Handle
	haveHandle bool
	lastLookup time.Time
}

// NewFrameSource creates a frame source for one session. metrics may be
// nil.
func NewFrameSource(src config.Source, backend window.Backend, capturer capture.Capturer, lookupInterval time.Duration, m *metrics.Metrics) *FrameSource {
	return &FrameSource{
		src:            src,
		backend:        backend,
		capturer:       capturer,
		lookupInterval: lookupInterval,
		metrics:        m,
	}
}

// SourceID returns the id of the configured source.
func (f *FrameSource) SourceID() string {
	return f.src.ID
}

// Next returns the next frame. It only fails when the fallback region
// capture itself fails, in which case it returns ErrSourceUnavailable.
func (f *FrameSource) Next() (*image.RGBA, error) {
	// Tier one: capture through the cached handle. A single failure
	// invalidates the handle; it is not reused until re-resolved.
	if f.haveHandle {
		img, err := f.capturer.CaptureWindow(f.handle)
		if err == nil {
			return img, nil
		}
		logger.WithComponent("source").Debug().
			Err(err).
			Str("source", f.src.ID).
			Msg("Window capture failed, handle invalidated")
		f.haveHandle = false
	}

	// Re-resolve at most once per lookup interval; enumeration is too
	// expensive to repeat on every frame at stream cadence.
	if !f.haveHandle && time.Since(f.lastLookup) >= f.lookupInterval {
		f.lastLookup = time.Now()
		if h, ok := f.backend.FindWindow(f.src.Title()); ok {
			f.handle = h
			f.haveHandle = true
			if img, err := f.capturer.CaptureWindow(h); err == nil {
				return img, nil
			}
			f.haveHandle = false
		}
	}

	// Tier two: the fixed fallback region keeps the stream alive while
	// the receiver window is missing, closed, or unmapped.
	img, err := f.capturer.CaptureRegion(f.src.Bounds)
	if err != nil {
		logger.WithComponent("source").Error().
			Err(err).
			Str("source", f.src.ID).
			Msg("Fallback region capture failed")
		return nil, ErrSourceUnavailable
	}
	if f.metrics != nil {
		f.metrics.IncFallback(f.src.ID)
	}
	return img, nil
}
