package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode"
)

var (
	outputJSON bool
)

// FileInfo is the structured summary of one parsed file
type FileInfo struct {
	Filename        string       `json:"filename"`
	Slicer          string       `json:"slicer,omitempty"`
	FilamentType    string       `json:"filament_type,omitempty"`
	FilamentColor   string       `json:"filament_color,omitempty"`
	LayerHeightMM   float64      `json:"layer_height_mm,omitempty"`
	EstimatedMinute float64      `json:"estimated_minutes,omitempty"`
	Layers          int          `json:"layers"`
	Segments        int          `json:"segments"`
	Extrusions      int          `json:"extrusions"`
	Travels         int          `json:"travels"`
	InvalidWidths   int          `json:"invalid_widths,omitempty"`
	Size            [3]float64   `json:"size_mm"`
	Objects         []ObjectInfo `json:"objects,omitempty"`
	Thumbnails      int          `json:"embedded_thumbnails"`
}

// ObjectInfo describes one named object
type ObjectInfo struct {
	Name     string  `json:"name"`
	CenterX  float64 `json:"center_x"`
	CenterY  float64 `json:"center_y"`
	Vertices int     `json:"polygon_vertices"`
}

var infoCmd = &cobra.Command{
	Use:   "info <gcode-file>...",
	Short: "Summarize G-code files",
	Long: `Parse one or more G-code files and print slicer metadata, layer and
segment counts, model size and the named objects. Files are parsed in
parallel.

Examples:
  otg info part.gcode
  otg info --json plate1.gcode plate2.gcode`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)

	infoCmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
}

func runInfo(cmd *cobra.Command, args []string) error {
	infos := make([]FileInfo, len(args))

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, path := range args {
		g.Go(func() error {
			file, err := parseFile(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			thumbs, err := gcode.ExtractThumbnailsFromFile(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			infos[i] = summarize(file, len(thumbs))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}
	for _, info := range infos {
		printInfo(info)
	}
	return nil
}

func summarize(file *gcode.File, thumbnails int) FileInfo {
	md := file.Metadata
	size := file.Bounds.Size()
	if file.Bounds.IsEmpty() {
		size = gcode.Vec3{}
	}
	return FileInfo{
		Filename:        file.Filename,
		Slicer:          md.SlicerName,
		FilamentType:    md.FilamentType,
		FilamentColor:   md.FilamentColorHex,
		LayerHeightMM:   md.LayerHeightMM,
		EstimatedMinute: md.EstimatedPrintTimeMinutes,
		Layers:          file.LayerCount(),
		Segments:        file.TotalSegments,
		Extrusions:      lo.SumBy(file.Layers, func(l gcode.Layer) int { return l.ExtrusionCount }),
		Travels:         lo.SumBy(file.Layers, func(l gcode.Layer) int { return l.TravelCount }),
		InvalidWidths:   file.InvalidWidthCount,
		Size:            [3]float64{size.X, size.Y, size.Z},
		Objects: lo.Map(file.ObjectNames(), func(name string, _ int) ObjectInfo {
			obj := file.Objects[name]
			return ObjectInfo{Name: name, CenterX: obj.Center.X, CenterY: obj.Center.Y, Vertices: len(obj.Polygon)}
		}),
		Thumbnails: thumbnails,
	}
}

func printInfo(info FileInfo) {
	fmt.Printf("File: %s\n", info.Filename)
	if info.Slicer != "" {
		fmt.Printf("  Slicer:        %s\n", info.Slicer)
	}
	if info.FilamentType != "" || info.FilamentColor != "" {
		fmt.Printf("  Filament:      %s %s\n", info.FilamentType, info.FilamentColor)
	}
	if info.LayerHeightMM > 0 {
		fmt.Printf("  Layer height:  %.2f mm\n", info.LayerHeightMM)
	}
	if info.EstimatedMinute > 0 {
		fmt.Printf("  Print time:    %.0f min\n", info.EstimatedMinute)
	}
	fmt.Printf("  Layers:        %d\n", info.Layers)
	fmt.Printf("  Segments:      %d (%d extrusions, %d travels)\n", info.Segments, info.Extrusions, info.Travels)
	if info.InvalidWidths > 0 {
		fmt.Printf("  Invalid widths: %d\n", info.InvalidWidths)
	}
	fmt.Printf("  Size:          %.2f x %.2f x %.2f mm\n", info.Size[0], info.Size[1], info.Size[2])
	fmt.Printf("  Thumbnails:    %d embedded\n", info.Thumbnails)

	if len(info.Objects) > 0 {
		fmt.Printf("  Objects:       %d\n", len(info.Objects))
		for _, obj := range info.Objects {
			fmt.Printf("    %-24s center (%.1f, %.1f), %d polygon vertices\n", obj.Name, obj.CenterX, obj.CenterY, obj.Vertices)
		}
	}
	fmt.Println()
}
