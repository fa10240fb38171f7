package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/render/layer"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/style"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config is invalid: %v", err)
	}
	if cfg.View() != layer.ViewFront {
		t.Errorf("View() = %v, want %v", cfg.View(), layer.ViewFront)
	}
	if cfg.Palette() != style.DefaultPalette() {
		t.Errorf("Palette() differs from the default palette")
	}
}

func TestRoundTripFormats(t *testing.T) {
	dir := t.TempDir()
	want := Default()
	want.Theme = "Nord"
	want.ViewMode = "top"
	want.TubeSides = 8
	want.ThumbnailSize = 96
	want.ShowTravels = true
	want.LayerMode = LayerModeMarker
	want.FilamentColor = "#26A69A"

	for _, name := range []string{"config.json", "config.toml", "config.yaml", "config.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, "nested", name)
			if err := Save(path, want); err != nil {
				t.Fatalf("Failed to save: %v", err)
			}
			got, err := Load(path)
			if err != nil {
				t.Fatalf("Failed to load: %v", err)
			}
			if *got != *want {
				t.Errorf("Load() = %+v, want %+v", *got, *want)
			}
		})
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if *cfg != *Default() {
		t.Errorf("Load() = %+v, want defaults", *cfg)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("theme: Light\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Theme != "Light" {
		t.Errorf("Theme = %q, want Light", cfg.Theme)
	}
	if cfg.CanvasWidth != 800 || !cfg.GhostMode {
		t.Errorf("defaults not kept: %+v", *cfg)
	}
}

func TestUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.ini")
	if _, err := Load(path); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Load() error = %v, want ErrUnknownFormat", err)
	}
	if err := Save(path, Default()); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Save() error = %v, want ErrUnknownFormat", err)
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() succeeded on malformed JSON")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
		check   func(*Config) bool
	}{
		{"unknown theme", func(c *Config) { c.Theme = "Solarized" }, true, nil},
		{"unknown view", func(c *Config) { c.ViewMode = "side" }, true, nil},
		{"unknown layer mode", func(c *Config) { c.LayerMode = "height" }, true, nil},
		{"bad filament color", func(c *Config) { c.FilamentColor = "#12" }, true, nil},
		{"theme case", func(c *Config) { c.Theme = "nord" }, false, nil},
		{"tube sides", func(c *Config) { c.TubeSides = 7 }, false,
			func(c *Config) bool { return c.TubeSides == 16 }},
		{"canvas size", func(c *Config) { c.CanvasWidth, c.CanvasHeight = 0, -5 }, false,
			func(c *Config) bool { return c.CanvasWidth == 1 && c.CanvasHeight == 1 }},
		{"tolerance", func(c *Config) { c.SimplifyTolerance = 50 }, false,
			func(c *Config) bool { return c.SimplifyTolerance == 5 }},
		{"thumbnail size", func(c *Config) { c.ThumbnailSize = 2 }, false,
			func(c *Config) bool { return c.ThumbnailSize == 8 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil && !tt.check(cfg) {
				t.Errorf("Validate() left %+v", *cfg)
			}
		})
	}
}

func TestPaletteOverride(t *testing.T) {
	cfg := Default()
	cfg.FilamentColor = "#102030"
	p := cfg.Palette()
	if p.Extrusion.R != 0x10 || p.Extrusion.G != 0x20 || p.Extrusion.B != 0x30 {
		t.Errorf("Extrusion = %v, want #102030", p.Extrusion)
	}
	if p.Travel != style.DefaultPalette().Travel {
		t.Errorf("Travel = %v, want theme default", p.Travel)
	}
}

func TestParserOptions(t *testing.T) {
	cfg := Default()
	if n := len(cfg.ParserOptions()); n != 1 {
		t.Errorf("len(ParserOptions()) = %d, want 1", n)
	}
	if got := cfg.SimplifyOptions().ToleranceMM; got != cfg.SimplifyTolerance {
		t.Errorf("SimplifyOptions().ToleranceMM = %v, want %v", got, cfg.SimplifyTolerance)
	}
}
