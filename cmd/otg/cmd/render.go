package cmd

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strings"
	"time"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/raster"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/render/layer"
)

var (
	renderOutput  string
	renderLayer   int
	renderView    string
	renderUpscale int
	renderGhost   bool
	renderTravels bool
)

// ghostPoll is how long the render command waits between frames while a
// ghost build is still running
const ghostPoll = 5 * time.Millisecond

var renderCmd = &cobra.Command{
	Use:   "render <gcode-file>",
	Short: "Render a layer preview to PNG",
	Long: `Render the layers up to the selected one with the 2D layer renderer and
write the result as a PNG image. The front view shades layers by height
and can overlay the faded ghost of the whole model.

Examples:
  otg render part.gcode
  otg render part.gcode -o layer40.png --layer 40 --ghost
  otg render part.gcode --view top --layer 0 --size 400x400 --upscale 2`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "output PNG (default <file>.png)")
	renderCmd.Flags().IntVarP(&renderLayer, "layer", "l", -1, "topmost layer to draw (-1 for the last layer)")
	renderCmd.Flags().StringVar(&renderView, "view", "", "view mode: front, top or isometric (default from config)")
	renderCmd.Flags().String("size", "", "canvas size WxH (default from config)")
	renderCmd.Flags().IntVar(&renderUpscale, "upscale", 1, "integer upscale factor for the output image")
	renderCmd.Flags().BoolVar(&renderGhost, "ghost", false, "overlay the ghost of the whole model (front view)")
	renderCmd.Flags().BoolVar(&renderTravels, "travels", false, "draw travel moves")
}

func runRender(cmd *cobra.Command, args []string) error {
	path := args[0]
	file, err := parseFile(path)
	if err != nil {
		return err
	}
	if file.LayerCount() == 0 {
		return fmt.Errorf("%s has no layers", path)
	}

	mode := cfg.View()
	if renderView != "" {
		m, ok := layer.ParseViewMode(renderView)
		if !ok {
			return fmt.Errorf("unknown view mode %q", renderView)
		}
		mode = m
	}
	width, height := cfg.CanvasWidth, cfg.CanvasHeight
	if size, _ := cmd.Flags().GetString("size"); size != "" {
		if width, height, err = parseSize(size); err != nil {
			return err
		}
	}
	ghost := cfg.GhostMode
	if cmd.Flags().Changed("ghost") {
		ghost = renderGhost
	}
	travels := cfg.ShowTravels
	if cmd.Flags().Changed("travels") {
		travels = renderTravels
	}

	palette := cfg.Palette()
	r := layer.New(palette,
		layer.WithViewMode(mode),
		layer.WithCanvasSize(width, height),
	)
	defer r.Close()
	r.SetGCode(file)
	r.SetGhostMode(ghost)
	r.SetShowTravels(travels)
	if renderLayer < 0 {
		r.SetCurrentLayer(file.LayerCount() - 1)
	} else {
		r.SetCurrentLayer(renderLayer)
	}

	canvas := raster.New(width, height)
	renderComplete(r, canvas, palette.Background)

	out := renderOutput
	if out == "" {
		out = outputName(path, ".png")
	}
	var img image.Image = canvas.ToNRGBA()
	if renderUpscale > 1 {
		img = raster.Upscale(canvas, renderUpscale)
	}
	if err := imgio.Save(out, img, imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	fmt.Printf("Rendered layer %d/%d (%s view) to %s\n", r.CurrentLayer()+1, file.LayerCount(), mode, out)
	return nil
}

// renderComplete drives the progressive renderer until both caches are
// complete. Every frame starts from a clean background.
func renderComplete(r *layer.Renderer, dst *raster.Buffer, bg color.NRGBA) {
	for {
		dst.Fill(bg)
		r.Render(dst)
		if !r.NeedsMoreFrames() {
			return
		}
		if r.IsGhostBuildRunning() {
			time.Sleep(ghostPoll)
		}
	}
}

// parseSize reads "WxH"
func parseSize(s string) (int, int, error) {
	var w, h int
	if _, err := fmt.Sscanf(strings.ToLower(s), "%dx%d", &w, &h); err != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid size %q, want WxH", s)
	}
	return w, h, nil
}

// outputName replaces the extension of path with ext
func outputName(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
