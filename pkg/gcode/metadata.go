package gcode

import (
	"strconv"
	"strings"
)

// splitMetadataComment splits "; key = value" or ";key: value" into a
// lowercase key and trimmed value. The first of '=' or ':' wins.
func splitMetadataComment(comment string) (key, value string, ok bool) {
	content := strings.TrimSpace(strings.TrimPrefix(comment, ";"))
	eq := strings.IndexByte(content, '=')
	colon := strings.IndexByte(content, ':')

	sep := -1
	switch {
	case eq >= 0 && (colon < 0 || eq < colon):
		sep = eq
	case colon >= 0:
		sep = colon
	}
	if sep < 0 {
		return "", "", false
	}

	key = strings.ToLower(strings.TrimSpace(content[:sep]))
	value = strings.TrimSpace(content[sep+1:])
	return key, value, true
}

// isLayerMarker reports whether a comment is a slicer layer-change marker
// (";LAYER_CHANGE" or ";LAYER:n"). LAYER_COUNT style keys do not match.
func isLayerMarker(comment string) bool {
	content := strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(comment, ";")))
	return strings.HasPrefix(content, "LAYER_CHANGE") || strings.HasPrefix(content, "LAYER:")
}

func containsAll(s string, terms ...string) bool {
	for _, t := range terms {
		if !strings.Contains(s, t) {
			return false
		}
	}
	return true
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// applyMetadataComment updates md from a single comment. Keys are matched
// fuzzily so PrusaSlicer, OrcaSlicer, SuperSlicer and Cura spellings all
// land in the same fields.
func applyMetadataComment(md *Metadata, comment string) {
	content := strings.TrimSpace(strings.TrimPrefix(comment, ";"))
	if len(content) > len("generated by") && strings.EqualFold(content[:len("generated by")], "generated by") {
		md.SlicerName = strings.TrimSpace(content[len("generated by"):])
		return
	}

	key, value, ok := splitMetadataComment(comment)
	if !ok {
		return
	}

	switch {
	case strings.Contains(key, "extruder_colour") || strings.Contains(key, "extruder_color"):
		applyColorPalette(md, value)

	case containsAll(key, "filament", "col") && len(md.ToolColors) == 0:
		if strings.Contains(value, ";") {
			applyColorPalette(md, value)
		} else {
			md.FilamentColorHex = value
		}

	case containsAll(key, "filament", "type"):
		md.FilamentType = value

	case containsAll(key, "printer", "model") || containsAll(key, "printer", "name"):
		md.PrinterModel = value

	case containsAll(key, "nozzle", "diameter"):
		if v, ok := parseFloat(value); ok {
			md.NozzleDiameterMM = v
		}

	case containsAll(key, "filament", "diameter"):
		if v, ok := parseFloat(firstListValue(value)); ok && v > 0 {
			md.FilamentDiameterMM = v
		}

	case strings.Contains(key, "filament") && (strings.Contains(key, "[mm]") || strings.Contains(key, "length")):
		if v, ok := parseFloat(value); ok {
			md.FilamentLengthMM = v
		}

	case strings.Contains(key, "filament") && (strings.Contains(key, "[g]") || strings.Contains(key, "weight")):
		if v, ok := parseFloat(value); ok {
			md.FilamentWeightG = v
		}

	case containsAll(key, "filament", "cost") || containsAll(key, "material", "cost"):
		if v, ok := parseFloat(value); ok {
			md.FilamentCost = v
		}

	case containsAll(key, "layer", "total") &&
		(strings.Contains(key, "number") || strings.Contains(key, "count") || strings.Contains(key, "total layer")):
		if v, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			md.TotalLayerCount = v
		}

	case key == "time":
		// Cura reports seconds
		if secs, ok := parseFloat(value); ok && secs > 0 {
			md.EstimatedPrintTimeMinutes = secs / 60
		}

	case strings.Contains(key, "time") && (strings.Contains(key, "print") || strings.Contains(key, "estimated")):
		if minutes := ParseDuration(value); minutes > 0 {
			md.EstimatedPrintTimeMinutes = minutes
		}

	case strings.Contains(key, "generated") || strings.Contains(key, "slicer"):
		md.SlicerName = value

	case key == "layer_height" || key == "layer height":
		if v, ok := parseFloat(value); ok && v > 0 {
			md.LayerHeightMM = v
		}

	case containsAll(key, "extrusion", "width") || strings.Contains(key, "line_width") || strings.Contains(key, "linewidth"):
		applyExtrusionWidth(md, key, value)
	}
}

// applyColorPalette splits a ';' separated color list into the tool
// palette. Entries that are not '#' colors become empty placeholders.
func applyColorPalette(md *Metadata, value string) {
	for _, c := range strings.Split(value, ";") {
		c = strings.TrimSpace(c)
		switch {
		case c == "":
			continue
		case strings.HasPrefix(c, "#"):
			md.ToolColors = append(md.ToolColors, c)
		default:
			md.ToolColors = append(md.ToolColors, "")
		}
	}
	if len(md.ToolColors) > 0 && md.ToolColors[0] != "" {
		md.FilamentColorHex = md.ToolColors[0]
	}
}

func applyExtrusionWidth(md *Metadata, key, value string) {
	if i := strings.Index(value, "mm"); i >= 0 {
		value = value[:i]
	}
	width, ok := parseFloat(value)
	if !ok {
		return
	}

	switch {
	case containsAll(key, "first", "layer") || containsAll(key, "initial", "layer"):
		md.FirstLayerExtrusionWidthMM = width
	case strings.Contains(key, "perimeter") || strings.Contains(key, "wall"):
		md.PerimeterExtrusionWidthMM = width
	case strings.Contains(key, "infill"):
		md.InfillExtrusionWidthMM = width
	default:
		if md.ExtrusionWidthMM == 0 {
			md.ExtrusionWidthMM = width
		}
	}
}

// firstListValue returns the first entry of a ',' or ';' separated list
func firstListValue(value string) string {
	if i := strings.IndexAny(value, ",;"); i >= 0 {
		return value[:i]
	}
	return value
}

// ParseDuration converts slicer time strings such as "1h 23m 5s", "29m 25s",
// "1d 2h" or "45s" into minutes. A plain number is taken as seconds.
// Unparseable input yields 0.
func ParseDuration(value string) float64 {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return 0
	}
	if secs, ok := parseFloat(value); ok {
		return secs / 60
	}

	var minutes float64
	num := strings.Builder{}
	for _, r := range value {
		switch {
		case (r >= '0' && r <= '9') || r == '.':
			num.WriteRune(r)
		case r == 'd' || r == 'h' || r == 'm' || r == 's':
			v, ok := parseFloat(num.String())
			num.Reset()
			if !ok {
				continue
			}
			switch r {
			case 'd':
				minutes += v * 24 * 60
			case 'h':
				minutes += v * 60
			case 'm':
				minutes += v
			case 's':
				minutes += v / 60
			}
		default:
			num.Reset()
		}
	}
	return minutes
}
