// Package config holds the persistent settings shared by the CLI and the
// viewer.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode/geometry"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/render/layer"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/style"
)

// ErrUnknownFormat is returned for config files whose extension is not
// .json, .toml, .yaml or .yml
var ErrUnknownFormat = errors.New("unknown config format")

// Layer detection modes accepted in LayerMode
const (
	LayerModeZ      = "z"
	LayerModeMarker = "marker"
	LayerModeAuto   = "auto"
)

// Config stores persistent application settings
type Config struct {
	Theme        string `json:"theme" toml:"theme" yaml:"theme"`
	CanvasWidth  int    `json:"canvas_width" toml:"canvas_width" yaml:"canvas_width"`
	CanvasHeight int    `json:"canvas_height" toml:"canvas_height" yaml:"canvas_height"`
	ViewMode     string `json:"view_mode" toml:"view_mode" yaml:"view_mode"`

	TubeSides         int     `json:"tube_sides" toml:"tube_sides" yaml:"tube_sides"`
	SimplifyTolerance float64 `json:"simplify_tolerance" toml:"simplify_tolerance" yaml:"simplify_tolerance"`
	ThumbnailSize     int     `json:"thumbnail_size" toml:"thumbnail_size" yaml:"thumbnail_size"`

	GhostMode   bool   `json:"ghost_mode" toml:"ghost_mode" yaml:"ghost_mode"`
	ShowTravels bool   `json:"show_travels" toml:"show_travels" yaml:"show_travels"`
	LayerMode   string `json:"layer_mode" toml:"layer_mode" yaml:"layer_mode"`

	// FilamentColor overrides the theme extrusion color, "#RRGGBB"
	FilamentColor string `json:"filament_color,omitempty" toml:"filament_color,omitempty" yaml:"filament_color,omitempty"`
}

// Default returns the settings used when no config file exists
func Default() *Config {
	return &Config{
		Theme:             style.ThemeDark.String(),
		CanvasWidth:       800,
		CanvasHeight:      600,
		ViewMode:          layer.ViewFront.String(),
		TubeSides:         16,
		SimplifyTolerance: geometry.DefaultSimplifyOptions().ToleranceMM,
		ThumbnailSize:     64,
		GhostMode:         true,
		ShowTravels:       false,
		LayerMode:         LayerModeZ,
	}
}

// Validate clamps numeric settings into range and rejects unknown names
func (c *Config) Validate() error {
	if _, err := style.ParseTheme(c.Theme); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, ok := layer.ParseViewMode(c.ViewMode); !ok {
		return fmt.Errorf("invalid config: unknown view mode %q", c.ViewMode)
	}
	if _, err := parseLayerMode(c.LayerMode); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.FilamentColor != "" {
		if _, err := style.ParseHex(c.FilamentColor); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}

	c.CanvasWidth = max(c.CanvasWidth, 1)
	c.CanvasHeight = max(c.CanvasHeight, 1)
	switch c.TubeSides {
	case 4, 8, 16:
	default:
		c.TubeSides = 16
	}
	opts := geometry.SimplifyOptions{ToleranceMM: c.SimplifyTolerance}
	opts.Validate()
	c.SimplifyTolerance = opts.ToleranceMM
	c.ThumbnailSize = max(8, min(c.ThumbnailSize, 512))
	return nil
}

// Palette resolves the theme palette with the filament override applied
func (c *Config) Palette() style.Palette {
	t, err := style.ParseTheme(c.Theme)
	if err != nil {
		t = style.ThemeDark
	}
	var o style.Overrides
	if fc, err := style.ParseHex(c.FilamentColor); err == nil {
		o.Extrusion = style.Custom(fc)
	}
	return o.Apply(style.PaletteFor(t))
}

// View returns the configured 2D view mode
func (c *Config) View() layer.ViewMode {
	m, _ := layer.ParseViewMode(c.ViewMode)
	return m
}

// ParserOptions returns the parser options implied by the config
func (c *Config) ParserOptions() []gcode.Option {
	mode, err := parseLayerMode(c.LayerMode)
	if err != nil {
		mode = gcode.LayerByZ
	}
	return []gcode.Option{gcode.WithLayerMode(mode)}
}

// SimplifyOptions returns the geometry simplification settings
func (c *Config) SimplifyOptions() geometry.SimplifyOptions {
	opts := geometry.DefaultSimplifyOptions()
	opts.ToleranceMM = c.SimplifyTolerance
	opts.Validate()
	return opts
}

func parseLayerMode(s string) (gcode.LayerMode, error) {
	switch strings.ToLower(s) {
	case "", LayerModeZ:
		return gcode.LayerByZ, nil
	case LayerModeMarker:
		return gcode.LayerByMarker, nil
	case LayerModeAuto:
		return gcode.LayerAuto, nil
	}
	return gcode.LayerByZ, fmt.Errorf("unknown layer mode %q", s)
}

// DefaultPath returns the platform config file location
func DefaultPath() (string, error) {
	if appData := os.Getenv("APPDATA"); appData != "" {
		// Windows: %APPDATA%\OpenTraceGCode
		return filepath.Join(appData, "OpenTraceGCode", "config.json"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "opentracegcode", "config.json"), nil
}

type format int

const (
	formatJSON format = iota
	formatTOML
	formatYAML
)

func formatOf(path string) (format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON, nil
	case ".toml":
		return formatTOML, nil
	case ".yaml", ".yml":
		return formatYAML, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// Load reads the config at path. A missing file yields the defaults.
// Keys absent from the file keep their default values.
func Load(path string) (*Config, error) {
	f, err := formatOf(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	switch f {
	case formatTOML:
		err = toml.Unmarshal(data, cfg)
	case formatYAML:
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault reads the config from DefaultPath
func LoadDefault() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return Default(), err
	}
	return Load(path)
}

// Save writes cfg to path in the format selected by its extension,
// creating the directory when needed
func Save(path string, cfg *Config) error {
	f, err := formatOf(path)
	if err != nil {
		return err
	}

	var data []byte
	switch f {
	case formatTOML:
		data, err = toml.Marshal(cfg)
	case formatYAML:
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
