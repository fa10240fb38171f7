package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceGCode/internal/config"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// cfg is loaded before every command runs
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "otg",
	Short: "OpenTraceGCode - G-code toolpath inspection and rendering",
	Long: `OpenTraceGCode (otg) parses 3D printer G-code into layers and renders
the toolpaths as layer previews, shaded meshes and per-object thumbnails.

Examples:
  otg info part.gcode                          # Summarize a file
  otg layers part.gcode --from 10 --to 20      # List layers
  otg render part.gcode -o part.png --layer 40 # Render a layer preview
  otg shade part.gcode --camera top           # Shaded 3D render
  otg thumbs part.gcode -d thumbs/             # One PNG per object
  otg mesh part.gcode -o part.stl              # Export the toolpath mesh
  otg view part.gcode --watch                  # Interactive viewer`,
	Version:           "0.9.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (.json, .toml or .yaml); defaults to the user config")
}

// setup installs the logger and loads the config
func setup(cmd *cobra.Command, args []string) error {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	}
	cfg, err = config.LoadDefault()
	if err != nil {
		slog.Warn("[Config] Using defaults", "error", err)
		cfg = config.Default()
	}
	return nil
}

// parseFile parses path with the parser options of the loaded config
func parseFile(path string) (*gcode.File, error) {
	file, err := gcode.ParseFile(path, cfg.ParserOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}
	return file, nil
}
