package stream

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/bryanchriswhite/airmirror/internal/logger"
	"github.com/bryanchriswhite/airmirror/internal/metrics"
)

// Boundary separates the parts of the multipart stream.
const Boundary = "frame"

// ContentType is the response content type for MJPEG streams.
const ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

// Producer yields frames for a session. *FrameSource is the production
// implementation; tests substitute scripted doubles.
type Producer interface {
	Next() (*image.RGBA, error)
}

// Session streams MJPEG to one connected client. It owns its producer
// exclusively and shares nothing mutable with other sessions, so a
// failure here ends exactly one stream.
type Session struct {
	sourceID      string
	producer      Producer
	quality       int
	maxWidth      int
	frameInterval time.Duration
	metrics       *metrics.Metrics
}

// NewSession creates a session for one client connection. metrics may
// be nil.
func NewSession(sourceID string, producer Producer, quality, maxWidth int, frameInterval time.Duration, m *metrics.Metrics) *Session {
	return &Session{
		sourceID:      sourceID,
		producer:      producer,
		quality:       quality,
		maxWidth:      maxWidth,
		frameInterval: frameInterval,
		metrics:       m,
	}
}

// Run streams frames to w until the client disconnects, the context is
// cancelled, or the producer reports the source unavailable. A write
// failure is the normal end of a stream and returns nil; only a dead
// source surfaces as an error.
func (s *Session) Run(ctx context.Context, w io.Writer) error {
	log := logger.WithComponent("session")
	flusher, _ := w.(http.Flusher)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		tickStart := time.Now()

		frame, err := s.producer.Next()
		if err != nil {
			return fmt.Errorf("source %s: %w", s.sourceID, err)
		}

		frame = Downscale(frame, s.maxWidth)

		data, err := EncodeJPEG(frame, s.quality)
		if err != nil {
			// One bad frame must not kill the stream: emit nothing
			// this tick and carry on.
			if s.metrics != nil {
				s.metrics.IncEncodeFailures()
			}
			log.Debug().
				Err(err).
				Str("source", s.sourceID).
				Msg("Encode failed, skipping tick")
			if !s.pace(ctx, tickStart) {
				return nil
			}
			continue
		}

		if err := writePart(w, data); err != nil {
			// Client went away.
			log.Debug().
				Str("source", s.sourceID).
				Msg("Client disconnected")
			return nil
		}
		if flusher != nil {
			flusher.Flush()
		}
		if s.metrics != nil {
			s.metrics.IncFrames(s.sourceID)
		}

		if !s.pace(ctx, tickStart) {
			return nil
		}
	}
}

// pace sleeps out the remainder of the frame interval, best effort.
// It returns false when the context was cancelled while waiting.
func (s *Session) pace(ctx context.Context, tickStart time.Time) bool {
	remaining := s.frameInterval - time.Since(tickStart)
	if remaining <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// writePart frames one encoded image for the multipart transport.
func writePart(w io.Writer, data []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", Boundary, len(data)); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}
