package window

import (
	"context"
	"sync"
	"time"

	"github.com/bryanchriswhite/airmirror/internal/config"
	"github.com/bryanchriswhite/airmirror/internal/logger"
	"github.com/bryanchriswhite/airmirror/internal/metrics"
)

// Reconciler moves each source's receiver window to its configured
// bounds. It is a single background loop shared across all sources,
// independent of any client stream.
//
// A source is retried until one move is confirmed, then never touched
// again for the rest of the run. A window the user drags away later is
// deliberately not re-corrected; this is a documented limitation, not
// an oversight.
type Reconciler struct {
	backend  Backend
	sources  []config.Source
	interval time.Duration
	metrics  *metrics.Metrics

	mu         sync.RWMutex
	positioned map[string]bool
}

// NewReconciler creates a reconciler for the given sources. metrics may
// be nil.
func NewReconciler(backend Backend, sources []config.Source, interval time.Duration, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		backend:    backend,
		sources:    sources,
		interval:   interval,
		metrics:    m,
		positioned: make(map[string]bool, len(sources)),
	}
}

// Run polls until every source window has been positioned once or the
// context is cancelled. It blocks; callers run it in a goroutine.
func (r *Reconciler) Run(ctx context.Context) {
	log := logger.WithComponent("reconciler")
	log.Info().
		Int("sources", len(r.sources)).
		Dur("interval", r.interval).
		Msg("Window positioning started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if r.reconcileOnce() {
			log.Info().Msg("All source windows positioned")
			return
		}

		select {
		case <-ctx.Done():
			log.Debug().Msg("Window positioning stopped")
			return
		case <-ticker.C:
		}
	}
}

// reconcileOnce attempts one positioning pass and reports whether every
// source is now positioned.
func (r *Reconciler) reconcileOnce() bool {
	log := logger.WithComponent("reconciler")
	done := true

	for _, src := range r.sources {
		if r.IsPositioned(src.ID) {
			continue
		}

		h, ok := r.backend.FindWindow(src.Title())
		if !ok {
			// Window doesn't exist yet; not an error, try next poll.
			done = false
			continue
		}

		if err := r.backend.MoveWindow(h, src.Bounds); err != nil {
			log.Warn().
				Err(err).
				Str("source", src.ID).
				Msg("Failed to position window, will retry")
			done = false
			continue
		}

		r.mu.Lock()
		r.positioned[src.ID] = true
		r.mu.Unlock()
		if r.metrics != nil {
			r.metrics.IncWindowMoves()
		}
		log.Info().
			Str("source", src.ID).
			Int("left", src.Bounds.Left).
			Int("top", src.Bounds.Top).
			Msg("Window positioned")
	}

	return done
}

// IsPositioned reports whether the source's window has been positioned.
func (r *Reconciler) IsPositioned(sourceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.positioned[sourceID]
}

// Snapshot returns the positioned flag per source.
func (r *Reconciler) Snapshot() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool, len(r.sources))
	for _, src := range r.sources {
		out[src.ID] = r.positioned[src.ID]
	}
	return out
}
