package style

import "image/color"

// Override is a color that either inherits the palette default or replaces
// it. It is resolved once per render.
type Override struct {
	set   bool
	color color.NRGBA
}

// Inherit keeps the palette default
func Inherit() Override { return Override{} }

// Custom replaces the palette default with c
func Custom(c color.NRGBA) Override { return Override{set: true, color: c} }

// IsSet reports whether the override replaces the default
func (o Override) IsSet() bool { return o.set }

// Resolve returns the override color or def
func (o Override) Resolve(def color.NRGBA) color.NRGBA {
	if o.set {
		return o.color
	}
	return def
}

// Overrides collects the per-series overrides a renderer accepts
type Overrides struct {
	Extrusion Override
	Travel    Override
	Support   Override
}

// Apply resolves the overrides against p and returns the effective palette
func (o Overrides) Apply(p Palette) Palette {
	p.Extrusion = o.Extrusion.Resolve(p.Extrusion)
	p.Travel = o.Travel.Resolve(p.Travel)
	p.Support = o.Support.Resolve(p.Support)
	return p
}
