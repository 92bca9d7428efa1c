package scene

import (
	"math"
	"path/filepath"
	"strings"
)

// ObjectType classifies scene objects
type ObjectType string

const (
	TypeMesh  ObjectType = "MESH"
	TypeEmpty ObjectType = "EMPTY"
)

// Rigid body roles
const (
	RigidBodyNone    = ""
	RigidBodyActive  = "ACTIVE"
	RigidBodyPassive = "PASSIVE"
)

// DefaultUV is the UV centre of the unit tile; quadrant edits keep its fraction
var DefaultUV = [2]float64{0.5, 0.5}

// Face is one polygon of a mesh
type Face struct {
	Indices  []int      `json:"indices"`
	Color    [4]float64 `json:"color"`
	UV       [2]float64 `json:"uv"`
	Selected bool       `json:"selected"`
}

// Object is a node of the scene graph. Location is relative to the parent;
// the hierarchy carries translation only.
type Object struct {
	Name      string     `json:"name"`
	Type      ObjectType `json:"type"`
	Location  Vec3       `json:"location"`
	Rotation  Vec3       `json:"rotation"`
	Scale     Vec3       `json:"scale"`
	BoundsMin Vec3       `json:"bounds_min"`
	BoundsMax Vec3       `json:"bounds_max"`
	Parent    string     `json:"parent,omitempty"`
	Hidden    bool       `json:"hidden,omitempty"`
	Selected  bool       `json:"selected,omitempty"`
	AssetPath string     `json:"asset_path,omitempty"`
	Vertices  []Vec3     `json:"vertices,omitempty"`
	Faces     []Face     `json:"faces,omitempty"`
	RigidBody string     `json:"rigid_body,omitempty"`
}

// IsMesh reports whether the object carries geometry
func (o *Object) IsMesh() bool {
	return o.Type == TypeMesh
}

// Clone returns a deep copy
func (o *Object) Clone() *Object {
	c := *o
	c.Vertices = append([]Vec3(nil), o.Vertices...)
	if o.Faces != nil {
		c.Faces = make([]Face, len(o.Faces))
		for i, f := range o.Faces {
			f.Indices = append([]int(nil), f.Indices...)
			c.Faces[i] = f
		}
	}
	return &c
}

// LocalPivot is the centre of the local bounds on X/Y, resting on its lowest Z
func (o *Object) LocalPivot() Vec3 {
	return Vec3{
		(o.BoundsMin[0] + o.BoundsMax[0]) / 2,
		(o.BoundsMin[1] + o.BoundsMax[1]) / 2,
		o.BoundsMin[2],
	}
}

// Corners returns the eight corners of the local bounds
func (o *Object) Corners() [8]Vec3 {
	lo, hi := o.BoundsMin, o.BoundsMax
	return [8]Vec3{
		{lo[0], lo[1], lo[2]}, {lo[0], lo[1], hi[2]},
		{lo[0], hi[1], hi[2]}, {lo[0], hi[1], lo[2]},
		{hi[0], lo[1], lo[2]}, {hi[0], lo[1], hi[2]},
		{hi[0], hi[1], hi[2]}, {hi[0], hi[1], lo[2]},
	}
}

// RecomputeBounds derives the local bounds from the vertices
func (o *Object) RecomputeBounds() {
	if len(o.Vertices) == 0 {
		o.BoundsMin, o.BoundsMax = Vec3{}, Vec3{}
		return
	}
	lo := Vec3{math.Inf(1), math.Inf(1), math.Inf(1)}
	hi := Vec3{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for _, v := range o.Vertices {
		for i := 0; i < 3; i++ {
			lo[i] = math.Min(lo[i], v[i])
			hi[i] = math.Max(hi[i], v[i])
		}
	}
	o.BoundsMin, o.BoundsMax = lo, hi
}

// translateGeometry shifts all vertices, moving the origin by -offset
func (o *Object) translateGeometry(offset Vec3) {
	for i := range o.Vertices {
		o.Vertices[i] = o.Vertices[i].Add(offset)
	}
	o.RecomputeBounds()
}

// TrianglePositions lists the vertex positions of every face corner in order
func (o *Object) TrianglePositions() []Vec3 {
	var out []Vec3
	for _, f := range o.Faces {
		for _, idx := range f.Indices {
			if idx >= 0 && idx < len(o.Vertices) {
				out = append(out, o.Vertices[idx])
			}
		}
	}
	return out
}

// Triangulate splits every polygon with more than three corners into a fan
func (o *Object) Triangulate() {
	var faces []Face
	for _, f := range o.Faces {
		if len(f.Indices) <= 3 {
			faces = append(faces, f)
			continue
		}
		for i := 1; i+1 < len(f.Indices); i++ {
			tri := f
			tri.Indices = []int{f.Indices[0], f.Indices[i], f.Indices[i+1]}
			faces = append(faces, tri)
		}
	}
	o.Faces = faces
}

func newFace(indices ...int) Face {
	return Face{Indices: indices, Color: [4]float64{1, 1, 1, 1}, UV: DefaultUV, Selected: true}
}

// NewEmpty creates an empty (group) object
func NewEmpty(name string) *Object {
	return &Object{Name: name, Type: TypeEmpty, Scale: Vec3{1, 1, 1}}
}

// NewMesh creates a mesh object from vertices and polygons
func NewMesh(name string, vertices []Vec3, polygons [][]int) *Object {
	o := &Object{
		Name:     name,
		Type:     TypeMesh,
		Scale:    Vec3{1, 1, 1},
		Vertices: append([]Vec3(nil), vertices...),
	}
	for _, p := range polygons {
		o.Faces = append(o.Faces, newFace(append([]int(nil), p...)...))
	}
	o.RecomputeBounds()
	return o
}

// NewCube creates a cube of the given edge length whose origin sits at the
// centre of its bottom face
func NewCube(name string, size float64) *Object {
	h := size / 2
	verts := []Vec3{
		{-h, -h, -h}, {h, -h, -h}, {h, h, -h}, {-h, h, -h},
		{-h, -h, h}, {h, -h, h}, {h, h, h}, {-h, h, h},
	}
	faces := [][]int{
		{0, 3, 2, 1}, {4, 5, 6, 7},
		{0, 1, 5, 4}, {1, 2, 6, 5},
		{2, 3, 7, 6}, {3, 0, 4, 7},
	}
	o := NewMesh(name, verts, faces)
	o.translateGeometry(Vec3{0, 0, h})
	return o
}

// NewAssetProxy creates the stand-in mesh for a linked asset file. The
// headless backend does not parse asset formats; the proxy is a unit cube
// named after the file.
func NewAssetProxy(assetPath string) *Object {
	base := filepath.Base(assetPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" || name == "." {
		name = "Asset"
	}
	o := NewCube(name, 1)
	o.AssetPath = assetPath
	return o
}
