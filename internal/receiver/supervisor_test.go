package receiver

import (
	"reflect"
	"testing"
	"time"

	"github.com/bryanchriswhite/airmirror/internal/config"
)

func TestReceiverArgs(t *testing.T) {
	src := config.Source{ID: "iphone", Name: "Reflector-iPhone", PortBase: 7100}

	got := receiverArgs(src, nil)
	want := []string{"-n", "Reflector-iPhone", "-p", "7100", "-m", "-vsync", "no", "-nc"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("receiverArgs = %v, want %v", got, want)
	}

	got = receiverArgs(src, []string{"-fps", "30"})
	if len(got) != len(want)+2 || got[len(got)-2] != "-fps" {
		t.Errorf("extra args not appended: %v", got)
	}
}

func TestSupervisorStartUnknownCommand(t *testing.T) {
	cfg := config.ReceiverConfig{Enabled: true, Command: "definitely-not-a-real-binary"}
	sources := []config.Source{{ID: "iphone", Name: "Reflector-iPhone", PortBase: 7100}}

	s := NewSupervisor(cfg, sources, nil)
	if err := s.Start(); err == nil {
		t.Error("expected error for missing receiver binary")
	}
}

func TestSupervisorObservesExit(t *testing.T) {
	// `true` ignores its arguments and exits immediately; liveness must
	// flip to false once the exit is reaped.
	cfg := config.ReceiverConfig{Enabled: true, Command: "true"}
	sources := []config.Source{{ID: "iphone", Name: "Reflector-iPhone", PortBase: 7100}}

	s := NewSupervisor(cfg, sources, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for s.Running("iphone") {
		if time.Now().After(deadline) {
			t.Fatal("Running still true after process exit")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSupervisorRunningUnknownSource(t *testing.T) {
	s := NewSupervisor(config.ReceiverConfig{}, nil, nil)
	if s.Running("nope") {
		t.Error("unknown source reported running")
	}
}

func TestSupervisorDoubleStart(t *testing.T) {
	cfg := config.ReceiverConfig{Enabled: true, Command: "true"}
	sources := []config.Source{{ID: "iphone", Name: "Reflector-iPhone", PortBase: 7100}}

	s := NewSupervisor(cfg, sources, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer s.Stop()

	if err := s.Start(); err == nil {
		t.Error("expected error on double start")
	}
}

func TestSupervisorSnapshot(t *testing.T) {
	cfg := config.ReceiverConfig{Enabled: true, Command: "true"}
	sources := []config.Source{
		{ID: "iphone", Name: "Reflector-iPhone", PortBase: 7100},
		{ID: "ipad", Name: "Reflector-iPad", PortBase: 7200},
	}

	s := NewSupervisor(cfg, sources, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	snap := s.Snapshot()
	if len(snap) != 2 {
		t.Errorf("expected 2 entries, got %d", len(snap))
	}
	if _, ok := snap["iphone"]; !ok {
		t.Error("missing iphone entry")
	}
	if _, ok := snap["ipad"]; !ok {
		t.Error("missing ipad entry")
	}
}
