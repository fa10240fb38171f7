package cmd

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/render/thumbnail"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/style"
)

var (
	thumbsDir      string
	thumbsSize     int
	thumbsColor    string
	thumbsEmbedded bool
	thumbsObjects  []string
)

var thumbsCmd = &cobra.Command{
	Use:   "thumbs <gcode-file>",
	Short: "Render one thumbnail per object",
	Long: `Render a small preview of every named object (EXCLUDE_OBJECT_DEFINE or
slicer object labels) and write one PNG per object. With --embedded the
largest slicer preview embedded in the file is extracted instead.

Examples:
  otg thumbs plate.gcode -d thumbs/
  otg thumbs plate.gcode --size 128 --color "#26A69A"
  otg thumbs plate.gcode --objects part_A,part_B
  otg thumbs plate.gcode --embedded -d previews/`,
	Args: cobra.ExactArgs(1),
	RunE: runThumbs,
}

func init() {
	rootCmd.AddCommand(thumbsCmd)

	thumbsCmd.Flags().StringVarP(&thumbsDir, "dir", "d", ".", "output directory")
	thumbsCmd.Flags().IntVar(&thumbsSize, "size", 0, "thumbnail size in pixels (default from config)")
	thumbsCmd.Flags().StringVar(&thumbsColor, "color", "", "filament color #RRGGBB (default from file or theme)")
	thumbsCmd.Flags().BoolVar(&thumbsEmbedded, "embedded", false, "extract the slicer's embedded preview")
	thumbsCmd.Flags().StringSliceVar(&thumbsObjects, "objects", nil, "only write these objects")
}

func runThumbs(cmd *cobra.Command, args []string) error {
	path := args[0]
	if err := os.MkdirAll(thumbsDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	if thumbsEmbedded {
		out := filepath.Join(thumbsDir, base+".preview.png")
		if err := gcode.SaveThumbnail(path, out); err != nil {
			if errors.Is(err, gcode.ErrNoThumbnail) {
				return fmt.Errorf("%s has no embedded preview", path)
			}
			return err
		}
		fmt.Printf("Wrote %s\n", out)
		return nil
	}

	file, err := parseFile(path)
	if err != nil {
		return err
	}
	if len(file.Objects) == 0 {
		fmt.Println("No named objects")
		return nil
	}

	size := cfg.ThumbnailSize
	if thumbsSize > 0 {
		size = thumbsSize
	}
	c, err := thumbnailColor(file)
	if err != nil {
		return err
	}

	r := thumbnail.NewRenderer()
	defer r.Close()
	set := r.RenderSync(file, size, size, c)

	thumbs := set.Thumbnails
	if len(thumbsObjects) > 0 {
		thumbs = lo.Filter(thumbs, func(t thumbnail.Thumbnail, _ int) bool {
			return lo.Contains(thumbsObjects, t.Object)
		})
	}

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i := range thumbs {
		t := &thumbs[i]
		out := filepath.Join(thumbsDir, base+"."+safeName(t.Object)+".png")
		g.Go(func() error {
			if err := imgio.Save(out, t.Image(), imgio.PNGEncoder()); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			if verbose {
				fmt.Printf("  %s -> %s\n", t.Object, out)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Printf("Wrote %d thumbnails (%dx%d) to %s\n", len(thumbs), size, size, thumbsDir)
	return nil
}

// thumbnailColor picks the --color flag, then the config override, then
// the slicer's filament color, then the theme
func thumbnailColor(file *gcode.File) (color.NRGBA, error) {
	if thumbsColor != "" {
		c, err := style.ParseHex(thumbsColor)
		if err != nil {
			return c, fmt.Errorf("invalid --color: %w", err)
		}
		return c, nil
	}
	if cfg.FilamentColor == "" {
		if fc, err := style.ParseHex(file.Metadata.FilamentColorHex); err == nil {
			return fc, nil
		}
	}
	return cfg.Palette().Extrusion, nil
}

// safeName maps an object name onto a portable file name
func safeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, name)
}
