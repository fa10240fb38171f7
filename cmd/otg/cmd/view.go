package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceGCode/internal/ui/viewer"
)

var (
	viewWatch bool
)

var viewCmd = &cobra.Command{
	Use:   "view [gcode-file]",
	Short: "Launch the interactive layer viewer",
	Long: `Open the Gio viewer window. The layer slider and the arrow keys move
through the layers; the thumbnail column shows every named object.

Keys:
  Up/Down, PageUp/PageDown, Home/End   select the layer
  Space / L                            fit the model / the current layer
  V                                    cycle front, top and isometric views
  G / T                                toggle the ghost / travel moves
  Escape / Q                           quit

Examples:
  otg view
  otg view part.gcode --watch    # Reload when the slicer rewrites the file`,
	Args: cobra.MaximumNArgs(1),
	RunE: runView,
}

func init() {
	rootCmd.AddCommand(viewCmd)

	viewCmd.Flags().BoolVarP(&viewWatch, "watch", "w", false, "reload the file when it changes on disk")
}

func runView(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	return viewer.Run(path, cfg,
		viewer.WithLogger(slog.Default()),
		viewer.WithWatch(viewWatch),
	)
}
