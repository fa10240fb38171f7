package geometry

import (
	"fmt"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// toVec converts a mesh position to an sdfx vector
func toVec(v Vec3) v3.Vec {
	return v3.Vec{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)}
}

// Mesh returns the geometry as sdfx triangles in millimeters
func (g *RibbonGeometry) Mesh() []*sdf.Triangle3 {
	tris := g.Triangles()
	mesh := make([]*sdf.Triangle3, 0, len(tris))
	for _, t := range tris {
		mesh = append(mesh, &sdf.Triangle3{toVec(t[0]), toVec(t[1]), toVec(t[2])})
	}
	return mesh
}

// WriteSTL exports the geometry as a binary STL file
func WriteSTL(path string, g *RibbonGeometry) error {
	mesh := g.Mesh()
	if len(mesh) == 0 {
		return ErrEmptyGeometry
	}
	if err := render.SaveSTL(path, mesh); err != nil {
		return fmt.Errorf("failed to write STL %s: %w", path, err)
	}
	return nil
}
