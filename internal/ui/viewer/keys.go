package viewer

import (
	"math"

	"gioui.org/io/key"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/render/layer"
)

// pageLayers is the jump of PageUp and PageDown
const pageLayers = 10

// layerKeys are the keys that move through the layers
var layerKeys = []key.Name{
	key.NameUpArrow, key.NameDownArrow,
	key.NamePageUp, key.NamePageDown,
	key.NameHome, key.NameEnd,
}

// stepLayer returns the layer selected by a navigation key, clamped to
// [0, count). ok is false when the key does not navigate or the layer
// stays the same.
func stepLayer(name key.Name, current, count int) (int, bool) {
	if count <= 0 {
		return current, false
	}
	next := current
	switch name {
	case key.NameUpArrow:
		next++
	case key.NameDownArrow:
		next--
	case key.NamePageUp:
		next += pageLayers
	case key.NamePageDown:
		next -= pageLayers
	case key.NameHome:
		next = 0
	case key.NameEnd:
		next = count - 1
	default:
		return current, false
	}
	next = max(0, min(next, count-1))
	return next, next != current
}

// layerFraction maps a layer index onto the slider range [0, 1]
func layerFraction(idx, count int) float32 {
	if count <= 1 {
		return 1
	}
	return float32(idx) / float32(count-1)
}

// layerAt maps a slider value back to the nearest layer index
func layerAt(fraction float32, count int) int {
	if count <= 1 {
		return 0
	}
	f := max(0, min(float64(fraction), 1))
	return int(math.Round(f * float64(count-1)))
}

var viewModes = []layer.ViewMode{layer.ViewFront, layer.ViewTopDown, layer.ViewIsometric}

// nextViewMode cycles front, top and isometric
func nextViewMode(m layer.ViewMode) layer.ViewMode {
	for i, v := range viewModes {
		if v == m {
			return viewModes[(i+1)%len(viewModes)]
		}
	}
	return layer.ViewFront
}

// zoomFactor converts a scroll delta to a scale multiplier
func zoomFactor(scrollY float32) float64 {
	return max(0.5, min(1.5, 1.0-float64(scrollY)*0.01))
}
