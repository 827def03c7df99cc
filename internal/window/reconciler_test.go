package window

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/airmirror/internal/config"
)

type fakeBackend struct {
	mu        sync.Mutex
	findFn    func(title string, call int) (Handle, bool)
	moveErrs  map[Handle][]error
	findCalls map[string]int
	moveCalls map[Handle]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		findCalls: make(map[string]int),
		moveCalls: make(map[Handle]int),
		moveErrs:  make(map[Handle][]error),
	}
}

func (b *fakeBackend) FindWindow(title string) (Handle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.findCalls[title]++
	if b.findFn == nil {
		return 0, false
	}
	return b.findFn(title, b.findCalls[title])
}

func (b *fakeBackend) MoveWindow(h Handle, bounds config.Geometry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.moveCalls[h]++
	if errs := b.moveErrs[h]; len(errs) > 0 {
		err := errs[0]
		b.moveErrs[h] = errs[1:]
		return err
	}
	return nil
}

func (b *fakeBackend) moves(h Handle) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.moveCalls[h]
}

func (b *fakeBackend) finds(title string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.findCalls[title]
}

func (b *fakeBackend) ListWindows() ([]Info, error) { return nil, nil }
func (b *fakeBackend) Close() error                 { return nil }
func (b *fakeBackend) Name() string                 { return "fake" }

func runReconciler(t *testing.T, r *Reconciler, timeout time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout + time.Second):
		t.Fatal("reconciler did not stop")
	}
}

func TestReconcilerPositionsWhenWindowAppears(t *testing.T) {
	backend := newFakeBackend()
	backend.findFn = func(title string, call int) (Handle, bool) {
		// Window does not exist for the first three polls.
		if call <= 3 {
			return 0, false
		}
		return 1, true
	}

	src := config.Source{ID: "iphone", Name: "Reflector-iPhone",
		Bounds: config.Geometry{Left: 80, Top: 80, Width: 430, Height: 930}}
	r := NewReconciler(backend, []config.Source{src}, 5*time.Millisecond, nil)

	runReconciler(t, r, 2*time.Second)

	if !r.IsPositioned("iphone") {
		t.Fatal("source never positioned")
	}
	if got := backend.moves(1); got != 1 {
		t.Errorf("expected exactly 1 move, got %d", got)
	}
}

func TestReconcilerStopsAfterPositioned(t *testing.T) {
	backend := newFakeBackend()
	backend.findFn = func(title string, call int) (Handle, bool) { return 2, true }

	src := config.Source{ID: "ipad", Name: "Reflector-iPad",
		Bounds: config.Geometry{Left: 560, Top: 80, Width: 820, Height: 930}}
	r := NewReconciler(backend, []config.Source{src}, 5*time.Millisecond, nil)

	runReconciler(t, r, 2*time.Second)

	// The run ends as soon as everything is positioned; a positioned
	// source is never moved again.
	if got := backend.moves(2); got != 1 {
		t.Errorf("expected exactly 1 move, got %d", got)
	}
	if !r.IsPositioned("ipad") {
		t.Error("source not positioned")
	}
}

func TestReconcilerRetriesFailedMoves(t *testing.T) {
	backend := newFakeBackend()
	backend.findFn = func(title string, call int) (Handle, bool) { return 3, true }
	backend.moveErrs[3] = []error{errors.New("busy"), errors.New("busy")}

	src := config.Source{ID: "iphone", Name: "Reflector-iPhone",
		Bounds: config.Geometry{Left: 0, Top: 0, Width: 100, Height: 100}}
	r := NewReconciler(backend, []config.Source{src}, 5*time.Millisecond, nil)

	runReconciler(t, r, 2*time.Second)

	if got := backend.moves(3); got != 3 {
		t.Errorf("expected 3 move attempts (2 failures + 1 success), got %d", got)
	}
	if !r.IsPositioned("iphone") {
		t.Error("source not positioned after retries")
	}
}

func TestReconcilerToleratesMissingWindows(t *testing.T) {
	backend := newFakeBackend() // windows never appear

	src := config.Source{ID: "iphone", Name: "Reflector-iPhone",
		Bounds: config.Geometry{Left: 0, Top: 0, Width: 100, Height: 100}}
	r := NewReconciler(backend, []config.Source{src}, 5*time.Millisecond, nil)

	// The loop keeps polling without error until cancelled.
	runReconciler(t, r, 50*time.Millisecond)

	if r.IsPositioned("iphone") {
		t.Error("source positioned without a window")
	}
	if backend.finds("Reflector-iPhone") == 0 {
		t.Error("reconciler never polled")
	}
}

func TestReconcilerSnapshot(t *testing.T) {
	backend := newFakeBackend()
	backend.findFn = func(title string, call int) (Handle, bool) {
		if title == "Reflector-iPhone" {
			return 1, true
		}
		return 0, false
	}

	sources := []config.Source{
		{ID: "iphone", Name: "Reflector-iPhone", Bounds: config.Geometry{Width: 10, Height: 10}},
		{ID: "ipad", Name: "Reflector-iPad", Bounds: config.Geometry{Width: 10, Height: 10}},
	}
	r := NewReconciler(backend, sources, 5*time.Millisecond, nil)

	runReconciler(t, r, 50*time.Millisecond)

	snap := r.Snapshot()
	if !snap["iphone"] {
		t.Error("iphone should be positioned")
	}
	if snap["ipad"] {
		t.Error("ipad should not be positioned")
	}
}
