package viewer

import (
	"testing"

	"gioui.org/io/key"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/render/layer"
)

func TestStepLayer(t *testing.T) {
	tests := []struct {
		name      string
		key       key.Name
		current   int
		count     int
		want      int
		wantMoved bool
	}{
		{"up", key.NameUpArrow, 3, 10, 4, true},
		{"down", key.NameDownArrow, 3, 10, 2, true},
		{"up at top", key.NameUpArrow, 9, 10, 9, false},
		{"down at bottom", key.NameDownArrow, 0, 10, 0, false},
		{"page up clamps", key.NamePageUp, 5, 10, 9, true},
		{"page down", key.NamePageDown, 25, 40, 15, true},
		{"home", key.NameHome, 7, 10, 0, true},
		{"end", key.NameEnd, 2, 10, 9, true},
		{"other key", key.NameSpace, 2, 10, 2, false},
		{"empty file", key.NameUpArrow, 0, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, moved := stepLayer(tt.key, tt.current, tt.count)
			if got != tt.want || moved != tt.wantMoved {
				t.Errorf("stepLayer() = %d, %v, want %d, %v", got, moved, tt.want, tt.wantMoved)
			}
		})
	}
}

func TestLayerSliderMapping(t *testing.T) {
	const count = 101
	for _, idx := range []int{0, 1, 50, 99, 100} {
		if got := layerAt(layerFraction(idx, count), count); got != idx {
			t.Errorf("layerAt(layerFraction(%d)) = %d", idx, got)
		}
	}
	if got := layerAt(-0.5, count); got != 0 {
		t.Errorf("layerAt(-0.5) = %d, want 0", got)
	}
	if got := layerAt(2, count); got != count-1 {
		t.Errorf("layerAt(2) = %d, want %d", got, count-1)
	}
	if got := layerFraction(0, 1); got != 1 {
		t.Errorf("layerFraction(0, 1) = %v, want 1", got)
	}
	if got := layerAt(0.7, 1); got != 0 {
		t.Errorf("layerAt(0.7, 1) = %d, want 0", got)
	}
}

func TestNextViewMode(t *testing.T) {
	m := layer.ViewFront
	seen := map[layer.ViewMode]bool{}
	for range viewModes {
		seen[m] = true
		m = nextViewMode(m)
	}
	if m != layer.ViewFront {
		t.Errorf("cycle ended at %v, want %v", m, layer.ViewFront)
	}
	if len(seen) != len(viewModes) {
		t.Errorf("visited %d modes, want %d", len(seen), len(viewModes))
	}
}

func TestZoomFactor(t *testing.T) {
	if f := zoomFactor(-10); f <= 1 {
		t.Errorf("zoomFactor(-10) = %v, want > 1", f)
	}
	if f := zoomFactor(10); f >= 1 {
		t.Errorf("zoomFactor(10) = %v, want < 1", f)
	}
	if f := zoomFactor(1000); f != 0.5 {
		t.Errorf("zoomFactor(1000) = %v, want 0.5", f)
	}
}
