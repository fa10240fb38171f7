package gcode

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	maxHeaderLines = 500
	footerBytes    = 64 * 1024

	// grams per mm of 1.75 mm PLA, used when Cura only reports length
	plaGramsPerMM = 0.00298
)

// HeaderMetadata is the summary shown in file listings. It is read from
// the header comments and the footer of a file without parsing moves.
type HeaderMetadata struct {
	Filename             string
	FileSize             int64
	ModifiedTime         time.Time
	Slicer               string
	SlicerVersion        string
	EstimatedTimeSeconds float64
	FilamentUsedMM       float64
	FilamentUsedG        float64
	FilamentType         string
	LayerCount           int
	FirstLayerBedTemp    float64
	FirstLayerNozzleTemp float64
	ToolColors           []string
}

// ExtractHeaderMetadata scans the first 500 lines and the last 64 KiB of
// the file at path. OrcaSlicer and PrusaSlicer write computed totals at
// the end of the file, so both ends are needed.
func ExtractHeaderMetadata(path string) (*HeaderMetadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	md := &HeaderMetadata{
		Filename:     path,
		FileSize:     info.Size(),
		ModifiedTime: info.ModTime(),
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for lines := 0; lines < maxHeaderLines && scanner.Scan(); lines++ {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || line[0] != ';' {
			if line != "" && (line[0] == 'G' || line[0] == 'M' || line[0] == 'T') {
				break
			}
			continue
		}
		md.applyLine(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	footer, err := readFooter(file, info.Size(), footerBytes)
	if err != nil {
		return nil, err
	}
	for _, line := range footer {
		if line != "" && line[0] == ';' {
			md.applyLine(line)
		}
	}
	return md, nil
}

// readFooter returns the complete lines in the last n bytes of the file.
// A partial first line is dropped when the read starts mid-file.
func readFooter(file *os.File, size, n int64) ([]string, error) {
	if size <= 0 {
		return nil, nil
	}
	start := max(size-n, 0)
	if _, err := file.Seek(start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek footer: %w", err)
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read footer: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	if start > 0 && len(lines) > 0 {
		lines = lines[1:]
	}
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], "\r")
	}
	return lines, nil
}

func (md *HeaderMetadata) applyLine(line string) {
	switch {
	case strings.HasPrefix(line, "; generated by "):
		slicer := strings.TrimPrefix(line, "; generated by ")
		if i := strings.Index(slicer, " on "); i >= 0 {
			slicer = slicer[:i]
		}
		md.Slicer = slicer
		return
	case strings.HasPrefix(line, ";Generated with "):
		md.Slicer = strings.TrimPrefix(line, ";Generated with ")
		return
	case strings.HasPrefix(line, ";TIME:"):
		if v, ok := parseFloat(strings.TrimPrefix(line, ";TIME:")); ok {
			md.EstimatedTimeSeconds = v
		}
		return
	case strings.HasPrefix(line, ";Filament used: "):
		meters := strings.TrimSuffix(strings.TrimSpace(strings.TrimPrefix(line, ";Filament used: ")), "m")
		if v, ok := parseFloat(meters); ok {
			md.FilamentUsedMM = v * 1000
			md.FilamentUsedG = md.FilamentUsedMM * plaGramsPerMM
		}
		return
	}

	key, value, ok := splitMetadataComment(line)
	if !ok || key == "" {
		return
	}

	switch key {
	case "generated by", "slicer":
		md.Slicer = value
	case "slicer_version":
		md.SlicerVersion = value
	case "estimated printing time", "estimated printing time (normal mode)":
		if minutes := ParseDuration(value); minutes > 0 {
			md.EstimatedTimeSeconds = minutes * 60
		}
	case "total filament used [g]", "filament used [g]", "total filament weight":
		if v, ok := parseFloat(value); ok {
			md.FilamentUsedG = v
		}
	case "filament used [mm]", "total filament used [mm]":
		if v, ok := parseFloat(value); ok {
			md.FilamentUsedMM = v
		}
	case "total layers", "total layer number":
		if v, err := strconv.Atoi(value); err == nil && v >= 0 {
			md.LayerCount = v
		}
	case "first_layer_bed_temperature", "bed_temperature":
		if v, ok := parseFloat(firstListValue(value)); ok {
			md.FirstLayerBedTemp = v
		}
	case "first_layer_temperature", "nozzle_temperature":
		if v, ok := parseFloat(firstListValue(value)); ok {
			md.FirstLayerNozzleTemp = v
		}
	case "filament_type":
		md.FilamentType = firstListValue(value)
	case "extruder_colour", "filament_colour":
		md.ToolColors = splitHexColors(value)
	}
}

// splitHexColors extracts "#RGB" or longer hex colors from a list such as
// "#ED1C24;#00C1AE" or "#AA0000 , #00BB00"
func splitHexColors(value string) []string {
	var colors []string
	for _, field := range strings.FieldsFunc(value, func(r rune) bool {
		return r == ';' || r == ',' || r == ' '
	}) {
		if !strings.HasPrefix(field, "#") || len(field) < 4 {
			continue
		}
		if _, err := strconv.ParseUint(field[1:], 16, 32); err != nil {
			continue
		}
		colors = append(colors, field)
	}
	return colors
}
