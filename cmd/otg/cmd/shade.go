package cmd

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/camera"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode/geometry"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/raster"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/render/scene"
)

var (
	shadeOutput      string
	shadeCamera      string
	shadePerspective bool
	shadeAzimuth     float64
	shadeElevation   float64
	shadeZoom        float64
	shadeFrom        int
	shadeTo          int
	shadeLines       bool
	shadeTravels     bool
	shadeLOD         int
	shadeHighlight   []string
	shadePick        []int
)

var shadeCmd = &cobra.Command{
	Use:   "shade <gcode-file>",
	Short: "Render the toolpath in 3D to PNG",
	Long: `Build the ribbon mesh of a G-code file and render it with the software
rasterizer through an orbit camera. With --lines the segments are drawn
as depth cued lines instead, which is much faster for large files.

Examples:
  otg shade part.gcode
  otg shade part.gcode -o top.png --camera top --from 0 --to 20
  otg shade part.gcode --perspective --azimuth 30 --elevation 25
  otg shade part.gcode --lines --travels --highlight part_A
  otg shade part.gcode --pick 400,300    # Print the object under a pixel`,
	Args: cobra.ExactArgs(1),
	RunE: runShade,
}

func init() {
	rootCmd.AddCommand(shadeCmd)

	shadeCmd.Flags().StringVarP(&shadeOutput, "output", "o", "", "output PNG (default <file>.3d.png)")
	shadeCmd.Flags().StringVar(&shadeCamera, "camera", "iso", "camera preset: iso, top, front or side")
	shadeCmd.Flags().BoolVar(&shadePerspective, "perspective", false, "use a perspective projection")
	shadeCmd.Flags().Float64Var(&shadeAzimuth, "azimuth", 0, "override the preset azimuth in degrees")
	shadeCmd.Flags().Float64Var(&shadeElevation, "elevation", 0, "override the preset elevation in degrees")
	shadeCmd.Flags().Float64Var(&shadeZoom, "zoom", 1, "zoom factor applied after fitting")
	shadeCmd.Flags().IntVar(&shadeFrom, "from", 0, "first layer to draw")
	shadeCmd.Flags().IntVar(&shadeTo, "to", -1, "last layer to draw (-1 for the last layer)")
	shadeCmd.Flags().BoolVar(&shadeLines, "lines", false, "draw depth cued lines instead of the shaded mesh")
	shadeCmd.Flags().BoolVar(&shadeTravels, "travels", false, "draw travel moves (lines only)")
	shadeCmd.Flags().IntVar(&shadeLOD, "lod", 0, "line level of detail: 0 full, 1 half, 2 quarter")
	shadeCmd.Flags().StringSliceVar(&shadeHighlight, "highlight", nil, "objects to highlight")
	shadeCmd.Flags().IntSliceVar(&shadePick, "pick", nil, "print the object under pixel X,Y")
}

func runShade(cmd *cobra.Command, args []string) error {
	path := args[0]
	file, err := parseFile(path)
	if err != nil {
		return err
	}
	if file.Bounds.IsEmpty() {
		return fmt.Errorf("%s has no toolpath", path)
	}

	cam, err := shadeCameraFor(cmd, file)
	if err != nil {
		return err
	}

	if len(shadePick) > 0 {
		if len(shadePick) != 2 {
			return fmt.Errorf("--pick wants X,Y")
		}
		name, ok := scene.PickObjectRay(file, cam, float64(shadePick[0]), float64(shadePick[1]))
		if !ok {
			fmt.Printf("No object at %d,%d\n", shadePick[0], shadePick[1])
			return nil
		}
		fmt.Printf("Object at %d,%d: %s\n", shadePick[0], shadePick[1], name)
		return nil
	}

	var img image.Image
	if shadeLines {
		img = renderLines(file, cam)
	} else {
		if img, err = renderMesh(file, cam); err != nil {
			return err
		}
	}

	out := shadeOutput
	if out == "" {
		out = outputName(path, ".3d.png")
	}
	if err := imgio.Save(out, img, imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	fmt.Printf("Rendered %s (%s camera) to %s\n", path, cam.Projection(), out)
	return nil
}

func shadeCameraFor(cmd *cobra.Command, file *gcode.File) (*camera.Camera, error) {
	cam := camera.New()
	cam.SetViewportSize(cfg.CanvasWidth, cfg.CanvasHeight)
	if shadePerspective {
		cam.SetProjection(camera.Perspective)
	}
	switch shadeCamera {
	case "iso", "isometric":
		cam.SetIsometricView()
	case "top":
		cam.SetTopView()
	case "front":
		cam.SetFrontView()
	case "side":
		cam.SetSideView()
	default:
		return nil, fmt.Errorf("unknown camera preset %q", shadeCamera)
	}
	if cmd.Flags().Changed("azimuth") {
		cam.SetAzimuth(shadeAzimuth)
	}
	if cmd.Flags().Changed("elevation") {
		cam.SetElevation(shadeElevation)
	}
	cam.FitToBounds(file.Bounds)
	if shadeZoom > 0 && shadeZoom != 1 {
		cam.Zoom(shadeZoom)
	}
	return cam, nil
}

func renderMesh(file *gcode.File, cam *camera.Camera) (image.Image, error) {
	palette := cfg.Palette()
	opts := []geometry.Option{
		geometry.WithTubeSides(cfg.TubeSides),
		geometry.WithHighlightedObjects(shadeHighlight...),
	}
	if cfg.FilamentColor != "" {
		opts = append(opts, geometry.WithFilamentColor(palette.Extrusion))
	} else {
		opts = append(opts, geometry.WithHeightGradient(true))
	}

	b := geometry.NewBuilder(opts...)
	geom := b.Build(file, cfg.SimplifyOptions())
	if geom.IsEmpty() {
		return nil, geometry.ErrEmptyGeometry
	}
	stats := b.Stats()
	slog.Debug("[Shade] Geometry built",
		"segments", stats.InputSegments,
		"simplified", stats.OutputSegments,
		"vertices", stats.Vertices,
		"triangles", stats.Triangles,
		"bytes", stats.MemoryBytes)

	// The mesh is self-contained; only layer metadata is needed from here on
	file.ClearSegments()

	s := scene.NewSoftware()
	var r scene.Renderer = s
	r.SetGeometry(geom)
	o := scene.DefaultOptions()
	o.FirstLayer, o.LastLayer = shadeFrom, shadeTo
	o.Background = palette.Background
	img := r.Render(cam, o)
	slog.Debug("[Shade] Mesh shaded", "back_faces", s.Culled())
	return img, nil
}

func renderLines(file *gcode.File, cam *camera.Camera) image.Image {
	palette := cfg.Palette()
	w, h := cam.ViewportSize()
	buf := raster.New(w, h)
	buf.Fill(palette.Background)

	o := scene.DefaultLineOptions()
	o.FirstLayer, o.LastLayer = shadeFrom, shadeTo
	o.ShowTravels = shadeTravels
	o.ShowObjectBounds = len(file.Objects) > 0
	o.LOD = scene.LOD(shadeLOD)
	o.Highlighted = make(map[string]bool, len(shadeHighlight))
	for _, name := range shadeHighlight {
		o.Highlighted[name] = true
	}

	r := scene.NewLineRenderer(palette)
	r.SetFile(file)
	r.Render(buf, cam, o)
	drawn, culled := r.Stats()
	slog.Debug("[Shade] Lines drawn", "segments", drawn, "culled", culled)
	return buf.ToNRGBA()
}
