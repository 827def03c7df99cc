package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if len(cfg.Sources) != 2 {
		t.Fatalf("expected 2 default sources, got %d", len(cfg.Sources))
	}
	if _, ok := cfg.SourceByID("iphone"); !ok {
		t.Error("missing iphone source")
	}
	if _, ok := cfg.SourceByID("ipad"); !ok {
		t.Error("missing ipad source")
	}
	if cfg.Stream.TargetFPS != 24 {
		t.Errorf("expected 24 fps, got %d", cfg.Stream.TargetFPS)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad quality", func(c *Config) { c.Stream.JPEGQuality = 101 }, true},
		{"no sources", func(c *Config) { c.Sources = nil }, true},
		{"empty id", func(c *Config) { c.Sources[0].ID = "" }, true},
		{"duplicate id", func(c *Config) { c.Sources[1].ID = c.Sources[0].ID }, true},
		{"zero bounds", func(c *Config) { c.Sources[0].Bounds.Width = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestSourceTitle(t *testing.T) {
	src := Source{Name: "Reflector-iPhone"}
	if got := src.Title(); got != "Reflector-iPhone" {
		t.Errorf("Title() = %q", got)
	}
	src.TitleMatch = "iPhone"
	if got := src.Title(); got != "iPhone" {
		t.Errorf("Title() = %q", got)
	}
}

func TestIntervalDefaults(t *testing.T) {
	var sc StreamConfig
	if got := sc.FrameInterval(); got != time.Second/24 {
		t.Errorf("FrameInterval() = %v", got)
	}
	if got := sc.LookupInterval(); got != 800*time.Millisecond {
		t.Errorf("LookupInterval() = %v", got)
	}

	sc = StreamConfig{TargetFPS: 10, LookupIntervalMS: 500}
	if got := sc.FrameInterval(); got != 100*time.Millisecond {
		t.Errorf("FrameInterval() = %v", got)
	}
	if got := sc.LookupInterval(); got != 500*time.Millisecond {
		t.Errorf("LookupInterval() = %v", got)
	}

	var pc PositioningConfig
	if got := pc.Interval(); got != 2*time.Second {
		t.Errorf("Interval() = %v", got)
	}
}

func TestManagerCreatesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	cfg := m.Get()
	if cfg.ServerPort != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.ServerPort)
	}
}

func TestManagerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	m.SetPort(9090)
	m.SetLogLevel("debug")
	if err := m.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := NewManager(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	cfg := reloaded.Get()
	if cfg.ServerPort != 9090 {
		t.Errorf("expected port 9090 after reload, got %d", cfg.ServerPort)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level debug after reload, got %s", cfg.LogLevel)
	}
}

func TestManagerRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("sources: []\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewManager(path); err == nil {
		t.Error("expected error for config without sources")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	cfg := m.Get()
	cfg.Sources[0].ID = "mutated"
	if m.Get().Sources[0].ID == "mutated" {
		t.Error("Get() exposed internal state")
	}
}
