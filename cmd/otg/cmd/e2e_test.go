package cmd

import (
	"bytes"
	"encoding/json"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// twoObjects prints two squares on two layers, labelled with
// EXCLUDE_OBJECT_DEFINE
const twoObjects = `; generated by PrusaSlicer 2.7.1
; filament_type = PETG
; filament_colour = #26A69A
; layer_height = 0.2
EXCLUDE_OBJECT_DEFINE NAME=part_A CENTER=5,5 POLYGON=[[0,0],[10,0],[10,10],[0,10]]
EXCLUDE_OBJECT_DEFINE NAME=part_B CENTER=35,5 POLYGON=[[30,0],[40,0],[40,10],[30,10]]
G90
M82
G1 Z0.2 F600
G1 X0 Y0 F3000
EXCLUDE_OBJECT_START NAME=part_A
G1 X10 Y0 E1
G1 X10 Y10 E2
G1 X0 Y10 E3
G1 X0 Y0 E4
EXCLUDE_OBJECT_END NAME=part_A
G1 X30 Y0
EXCLUDE_OBJECT_START NAME=part_B
G1 X40 Y0 E5
G1 X40 Y10 E6
G1 X30 Y10 E7
G1 X30 Y0 E8
EXCLUDE_OBJECT_END NAME=part_B
G1 Z0.4
G1 X0 Y0
EXCLUDE_OBJECT_START NAME=part_A
G1 X10 Y0 E9
G1 X10 Y10 E10
G1 X0 Y10 E11
G1 X0 Y0 E12
EXCLUDE_OBJECT_END NAME=part_A
`

// resetFlags restores every flag to its default so runs do not leak
// state into each other
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execute runs the root command with args and returns what it printed
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	// Read in background to prevent pipe buffer from blocking
	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		buf.ReadFrom(r)
		close(done)
	}()

	resetFlags(rootCmd)
	cfgFile := filepath.Join(t.TempDir(), "otg.json")
	rootCmd.SetArgs(append(args, "--config", cfgFile))
	err := rootCmd.Execute()

	w.Close()
	os.Stdout = old
	<-done
	return buf.String(), err
}

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plate.gcode")
	if err := os.WriteFile(path, []byte(twoObjects), 0o644); err != nil {
		t.Fatalf("Failed to write sample: %v", err)
	}
	return path
}

func TestInfoE2E(t *testing.T) {
	path := writeSample(t)

	output, err := execute(t, "info", path)
	if err != nil {
		t.Fatalf("Unexpected error: %v\nOutput: %s", err, output)
	}
	for _, want := range []string{
		"File: " + path,
		"Layers:        2",
		"part_A",
		"part_B",
		"Objects:       2",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Output missing expected string: %q\nGot:\n%s", want, output)
		}
	}

	output, err = execute(t, "info", "--json", path, path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	var infos []FileInfo
	if err := json.Unmarshal([]byte(output), &infos); err != nil {
		t.Fatalf("Invalid JSON output: %v\n%s", err, output)
	}
	if len(infos) != 2 {
		t.Fatalf("got %d entries, want 2", len(infos))
	}
	if infos[0].Extrusions != 12 || len(infos[0].Objects) != 2 {
		t.Errorf("info = %+v, want 12 extrusions and 2 objects", infos[0])
	}

	if _, err := execute(t, "info", filepath.Join(t.TempDir(), "missing.gcode")); err == nil {
		t.Errorf("Expected error for missing file")
	}
}

func TestLayersE2E(t *testing.T) {
	path := writeSample(t)

	tests := []struct {
		name        string
		args        []string
		wantErr     bool
		wantContain []string
		wantAbsent  []string
	}{
		{
			name:        "all layers",
			args:        []string{"layers", path},
			wantContain: []string{"Layer", "0.200", "0.400"},
		},
		{
			name:        "nearest z",
			args:        []string{"layers", path, "--z", "0.39"},
			wantContain: []string{"0.400"},
			wantAbsent:  []string{"0.200"},
		},
		{
			name:    "inverted range",
			args:    []string{"layers", path, "--from", "1", "--to", "0"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := execute(t, tt.args...)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v\nOutput: %s", err, output)
			}
			for _, want := range tt.wantContain {
				if !strings.Contains(output, want) {
					t.Errorf("Output missing expected string: %q\nGot:\n%s", want, output)
				}
			}
			for _, absent := range tt.wantAbsent {
				if strings.Contains(output, absent) {
					t.Errorf("Output contains unexpected string: %q\nGot:\n%s", absent, output)
				}
			}
		})
	}
}

func decodePNG(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Failed to decode %s: %v", path, err)
	}
	return img.Bounds().Dx(), img.Bounds().Dy()
}

func TestRenderE2E(t *testing.T) {
	path := writeSample(t)
	out := filepath.Join(t.TempDir(), "layer.png")

	output, err := execute(t, "render", path, "-o", out, "--size", "120x80", "--ghost", "--upscale", "2")
	if err != nil {
		t.Fatalf("Unexpected error: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(output, "Rendered layer 2/2") {
		t.Errorf("Unexpected output: %s", output)
	}
	if w, h := decodePNG(t, out); w != 240 || h != 160 {
		t.Errorf("image size = %dx%d, want 240x160", w, h)
	}

	if _, err := execute(t, "render", path, "--view", "side"); err == nil {
		t.Errorf("Expected error for unknown view")
	}
	if _, err := execute(t, "render", path, "--size", "12by8"); err == nil {
		t.Errorf("Expected error for malformed size")
	}
}

func TestShadeE2E(t *testing.T) {
	path := writeSample(t)
	dir := t.TempDir()

	for _, args := range [][]string{
		{"shade", path, "-o", filepath.Join(dir, "mesh.png")},
		{"shade", path, "-o", filepath.Join(dir, "lines.png"), "--lines", "--camera", "top", "--highlight", "part_B"},
		{"shade", path, "-o", filepath.Join(dir, "persp.png"), "--perspective", "--azimuth", "30"},
	} {
		output, err := execute(t, args...)
		if err != nil {
			t.Fatalf("%v: unexpected error: %v\nOutput: %s", args, err, output)
		}
		if w, h := decodePNG(t, args[3]); w != 800 || h != 600 {
			t.Errorf("%v: image size = %dx%d, want 800x600", args, w, h)
		}
	}

	output, err := execute(t, "shade", path, "--camera", "top", "--pick", "400,300")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(output, "No object at 400,300") {
		t.Errorf("pick between the parts = %q, want no object", output)
	}

	if _, err := execute(t, "shade", path, "--camera", "below"); err == nil {
		t.Errorf("Expected error for unknown camera preset")
	}
}

func TestThumbsE2E(t *testing.T) {
	path := writeSample(t)
	dir := filepath.Join(t.TempDir(), "thumbs")

	output, err := execute(t, "thumbs", path, "-d", dir, "--size", "32")
	if err != nil {
		t.Fatalf("Unexpected error: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(output, "Wrote 2 thumbnails (32x32)") {
		t.Errorf("Unexpected output: %s", output)
	}
	for _, name := range []string{"plate.part_A.png", "plate.part_B.png"} {
		if w, h := decodePNG(t, filepath.Join(dir, name)); w != 32 || h != 32 {
			t.Errorf("%s size = %dx%d, want 32x32", name, w, h)
		}
	}

	output, err = execute(t, "thumbs", path, "-d", filepath.Join(t.TempDir(), "one"), "--objects", "part_B")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(output, "Wrote 1 thumbnails") {
		t.Errorf("Unexpected output: %s", output)
	}

	if _, err := execute(t, "thumbs", path, "--embedded", "-d", dir); err == nil {
		t.Errorf("Expected error for a file without embedded preview")
	}
	if _, err := execute(t, "thumbs", path, "--color", "teal", "-d", dir); err == nil {
		t.Errorf("Expected error for invalid color")
	}
}

func TestMeshE2E(t *testing.T) {
	path := writeSample(t)
	out := filepath.Join(t.TempDir(), "plate.stl")

	output, err := execute(t, "mesh", path, "-o", out, "--tube-sides", "4")
	if err != nil {
		t.Fatalf("Unexpected error: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(output, "Wrote "+out) {
		t.Errorf("Unexpected output: %s", output)
	}
	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("STL not written: %v", err)
	}
	// binary STL: 80 byte header, count, 50 bytes per triangle
	if info.Size() <= 84 || (info.Size()-84)%50 != 0 {
		t.Errorf("STL size %d is not a binary STL with triangles", info.Size())
	}
}

func TestConfigE2E(t *testing.T) {
	path := filepath.Join(t.TempDir(), "otg.toml")

	output, err := execute(t, "config", "init", path)
	if err != nil {
		t.Fatalf("Unexpected error: %v\nOutput: %s", err, output)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if _, err := execute(t, "config", "init", path); err == nil {
		t.Errorf("Expected error when the config exists")
	}

	output, err = execute(t, "config", "show")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(output, "theme: Dark") {
		t.Errorf("config show missing theme:\n%s", output)
	}
}
