package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	layersFrom int
	layersTo   int
	layersZ    float64
)

var layersCmd = &cobra.Command{
	Use:   "layers <gcode-file>",
	Short: "List the layers of a G-code file",
	Long: `Parse a G-code file and list its layers with height, segment counts and
the XY extent of each layer.

Examples:
  otg layers part.gcode
  otg layers part.gcode --from 10 --to 20
  otg layers part.gcode --z 1.2          # Find the layer nearest to Z=1.2`,
	Args: cobra.ExactArgs(1),
	RunE: runLayers,
}

func init() {
	rootCmd.AddCommand(layersCmd)

	layersCmd.Flags().IntVar(&layersFrom, "from", 0, "first layer to list")
	layersCmd.Flags().IntVar(&layersTo, "to", -1, "last layer to list (-1 for the last layer)")
	layersCmd.Flags().Float64Var(&layersZ, "z", -1, "only print the layer closest to this height")
}

func runLayers(cmd *cobra.Command, args []string) error {
	file, err := parseFile(args[0])
	if err != nil {
		return err
	}
	n := file.LayerCount()
	if n == 0 {
		fmt.Println("No layers")
		return nil
	}

	from, to := layersFrom, layersTo
	if cmd.Flags().Changed("z") {
		idx := file.FindLayerAtZ(layersZ)
		if idx < 0 {
			return fmt.Errorf("no layer near Z=%.3f", layersZ)
		}
		from, to = idx, idx
	}
	if to < 0 || to >= n {
		to = n - 1
	}
	from = max(from, 0)
	if from > to {
		return fmt.Errorf("invalid layer range %d..%d for %d layers", from, to, n)
	}

	fmt.Printf("%6s %9s %9s %11s %8s  %s\n", "Layer", "Z (mm)", "Segments", "Extrusions", "Travels", "Extent (mm)")
	for i := from; i <= to; i++ {
		l := file.Layer(i)
		extent := "-"
		if !l.Bounds.IsEmpty() {
			s := l.Bounds.Size()
			extent = fmt.Sprintf("%.1f x %.1f", s.X, s.Y)
		}
		fmt.Printf("%6d %9.3f %9d %11d %8d  %s\n", i, l.Z, l.SegmentCount(), l.ExtrusionCount, l.TravelCount, extent)
	}
	if verbose {
		fmt.Printf("\n%d of %d layers listed\n", to-from+1, n)
	}
	return nil
}
