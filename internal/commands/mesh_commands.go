package commands

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/codefionn/promethean-bridge/internal/scene"
)

// objectSpec is one entry of an add_objects request
type objectSpec struct {
	Name          string     `json:"name"`
	Group         bool       `json:"group"`
	AssetPath     string     `json:"asset_path"`
	Location      scene.Vec3 `json:"location"`
	Rotation      scene.Vec3 `json:"rotation"`
	Scale         scene.Vec3 `json:"scale"`
	ParentDCCName string     `json:"parent_dcc_name"`
}

// transformSpec is the optional transform of generated geometry
type transformSpec struct {
	Translation scene.Vec3 `json:"translation"`
	Rotation    scene.Vec3 `json:"rotation"`
	Scale       scene.Vec3 `json:"scale"`
}

func (c *Commands) applyTransform(o *scene.Object, t *transformSpec) {
	if t == nil {
		return
	}
	o.Location = c.vecIn(t.Translation)
	o.Rotation = t.Rotation
	if t.Scale != (scene.Vec3{}) {
		o.Scale = t.Scale
	}
}

func (c *Commands) addObjects(params string) (string, error) {
	keys, entries, err := orderedObject(params)
	if err != nil {
		return "", err
	}

	result := make(map[string]string, len(keys))
	for _, key := range keys {
		var spec objectSpec
		if err := decode(string(entries[key]), &spec); err != nil {
			return "", err
		}
		if spec.Name == "" {
			spec.Name = key
		}
		result[key] = c.addObject(spec).Name
	}
	return toJSON(result)
}

func (c *Commands) addObject(spec objectSpec) *scene.Object {
	var o *scene.Object
	switch {
	case spec.Group:
		o = scene.NewEmpty(spec.Name)
	case spec.AssetPath != "":
		o = scene.NewAssetProxy(spec.AssetPath)
	default:
		o = scene.NewCube(spec.Name, c.convertIn(100))
	}

	o.Name = spec.Name
	o.Location = c.vecIn(spec.Location)
	o.Rotation = spec.Rotation
	o.Scale = spec.Scale
	o = c.backend.Add(o)

	if spec.ParentDCCName != "" {
		if _, ok := c.backend.Object(spec.ParentDCCName); ok {
			if err := c.backend.SetParent(spec.ParentDCCName, o.Name); err != nil {
				c.log.Warn("Failed to parent %s to %s: %v", o.Name, spec.ParentDCCName, err)
			}
		} else {
			c.log.Warn("Parent to attach was not found: %s", spec.ParentDCCName)
		}
	}
	return o
}

// addObjectsFromPolygons builds a quad mesh from a flat point list, four
// points per face; shared points are merged
func (c *Commands) addObjectsFromPolygons(params string) (string, error) {
	var req struct {
		Name      string         `json:"name"`
		Points    []scene.Vec3   `json:"points"`
		Transform *transformSpec `json:"transform"`
	}
	if err := decode(params, &req); err != nil {
		return "", err
	}

	const faceVerts = 4
	index := make(map[scene.Vec3]int)
	var verts []scene.Vec3
	var faces [][]int
	for f := 0; f+faceVerts <= len(req.Points); f += faceVerts {
		face := make([]int, faceVerts)
		for i, p := range req.Points[f : f+faceVerts] {
			idx, ok := index[p]
			if !ok {
				idx = len(verts)
				index[p] = idx
				verts = append(verts, c.vecIn(p))
			}
			face[i] = idx
		}
		faces = append(faces, face)
	}

	o := scene.NewMesh(req.Name, verts, faces)
	c.applyTransform(o, req.Transform)
	c.backend.Add(o)
	return "", nil
}

func (c *Commands) addObjectsFromTriangles(params string) (string, error) {
	keys, entries, err := orderedObject(params)
	if err != nil {
		return "", err
	}

	result := make(map[string]string, len(keys))
	for _, key := range keys {
		var geo struct {
			Name      string         `json:"name"`
			Verts     []scene.Vec3   `json:"verts"`
			TriIDs    [][]int        `json:"tri_ids"`
			Transform *transformSpec `json:"transform"`
		}
		if err := decode(string(entries[key]), &geo); err != nil {
			return "", err
		}
		for _, tri := range geo.TriIDs {
			for _, idx := range tri {
				if idx < 0 || idx >= len(geo.Verts) {
					return "", fmt.Errorf("%w: %s: vertex index %d out of range", ErrInvalidParams, key, idx)
				}
			}
		}

		verts := make([]scene.Vec3, len(geo.Verts))
		for i, v := range geo.Verts {
			verts[i] = c.vecIn(v)
		}
		o := scene.NewMesh(geo.Name, verts, geo.TriIDs)
		c.applyTransform(o, geo.Transform)
		result[key] = c.backend.Add(o).Name
	}
	return toJSON(result)
}

// replaceWithAsset links the asset once per target, copying its transform
func (c *Commands) replaceWithAsset(assetPath string, targets []*scene.Object) []*scene.Object {
	var created []*scene.Object
	for _, target := range targets {
		o := scene.NewAssetProxy(assetPath)
		o.Rotation = target.Rotation
		o.Scale = target.Scale
		o = c.backend.Add(o)
		c.backend.SetWorldLocation(o, c.backend.WorldLocation(target))
		created = append(created, o)
	}
	return created
}

func (c *Commands) setMesh(params string) (string, error) {
	var assetPath string
	var objectNames []string
	if err := decodeArgs(params, &assetPath, &objectNames); err != nil {
		return "", err
	}
	objects := c.backend.ObjectsByName(objectNames)
	c.replaceWithAsset(assetPath, objects)
	c.backend.Remove(names(objects)...)
	return "", nil
}

func (c *Commands) setMeshOnSelection(params string) (string, error) {
	assetPath := strings.TrimSpace(params)
	if assetPath == "" {
		return "", fmt.Errorf("%w: missing asset path", ErrInvalidParams)
	}
	objects := c.backend.SelectedMeshes()
	c.replaceWithAsset(assetPath, objects)
	c.backend.Remove(names(objects)...)
	return "", nil
}

func (c *Commands) addMeshOnSelection(params string) (string, error) {
	selected := c.backend.SelectedMeshes()
	for _, assetPath := range splitNames(params) {
		for _, o := range c.replaceWithAsset(assetPath, selected) {
			o.Selected = true
		}
	}
	return "", nil
}

// vertexPositions maps corner index to position, wrapped in a one element list
func vertexPositions(o *scene.Object) []map[string]scene.Vec3 {
	positions := make(map[string]scene.Vec3)
	for i, v := range o.TrianglePositions() {
		positions[strconv.Itoa(i)] = v
	}
	return []map[string]scene.Vec3{positions}
}

func (c *Commands) getVertexDataFromSceneObject(params string) (string, error) {
	name := strings.TrimSpace(params)
	o, ok := c.backend.Object(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", scene.ErrObjectNotFound, name)
	}
	return toJSON(map[string]any{"vertex_positions": vertexPositions(o)})
}

func (c *Commands) getVertexDataFromSceneObjects(params string) (string, error) {
	var objectNames []string
	if err := decode(params, &objectNames); err != nil {
		return "", err
	}
	out := make(map[string]any)
	for _, o := range c.backend.ObjectsByName(objectNames) {
		if !o.IsMesh() {
			continue
		}
		o.Triangulate()
		out[o.Name] = vertexPositions(o)
	}
	return toJSON(out)
}

func (c *Commands) activeMesh() (*scene.Object, error) {
	o, ok := c.backend.Active()
	if !ok || !o.IsMesh() {
		return nil, ErrNoActiveObject
	}
	return o, nil
}

// frac keeps the fractional part in [0, 1)
func frac(v float64) float64 {
	f := math.Mod(v, 1)
	if f < 0 {
		f++
	}
	return f
}

// setUVQuadrantOf moves the UVs of all selected faces of the active mesh into
// the given tile; a nil coordinate is left alone
func (c *Commands) setUVQuadrantOf(u, v *int) error {
	o, err := c.activeMesh()
	if err != nil {
		return err
	}
	for i := range o.Faces {
		f := &o.Faces[i]
		if !f.Selected {
			continue
		}
		if u != nil {
			f.UV[0] = float64(*u) + frac(f.UV[0])
		}
		if v != nil {
			f.UV[1] = float64(*v) + frac(f.UV[1])
		}
	}
	return nil
}

func (c *Commands) setUVQuadrant(params string) (string, error) {
	fields := strings.Fields(params)
	if len(fields) != 2 {
		return "", fmt.Errorf("%w: expected u v", ErrInvalidParams)
	}
	u, err := strconv.Atoi(fields[0])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	v, err := strconv.Atoi(fields[1])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return "", c.setUVQuadrantOf(&u, &v)
}

// setRoughness maps roughness 0..1 onto U tiles -5..5
func (c *Commands) setRoughness(params string) (string, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(params), 64)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	u := int(scene.Lerp(-5, 5, value))
	return "", c.setUVQuadrantOf(&u, nil)
}

// V tiles encode the material: -2 metallic, 0 textured, -1 plain
func (c *Commands) setMetallic(params string) (string, error) {
	fields := strings.Fields(params)
	if len(fields) != 2 {
		return "", fmt.Errorf("%w: expected is_metallic has_texture", ErrInvalidParams)
	}
	v := -1
	if parseBool(fields[0]) {
		v = -2
	} else if parseBool(fields[1]) {
		v = 0
	}
	return "", c.setUVQuadrantOf(nil, &v)
}

func (c *Commands) setTextureTiling(params string) (string, error) {
	fields := strings.Fields(params)
	if len(fields) != 2 {
		return "", fmt.Errorf("%w: expected has_texture is_metallic", ErrInvalidParams)
	}
	v := -1
	if parseBool(fields[0]) {
		v = 0
	} else if parseBool(fields[1]) {
		v = -2
	}
	return "", c.setUVQuadrantOf(nil, &v)
}

func parseColor(s string, divisor float64) ([4]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) < 3 {
		return [4]float64{}, fmt.Errorf("%w: expected r,g,b", ErrInvalidParams)
	}
	color := [4]float64{0, 0, 0, 1}
	for i := 0; i < 3; i++ {
		f, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return [4]float64{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		color[i] = f / divisor
	}
	return color, nil
}

func (c *Commands) setVertexColor(params string) (string, error) {
	color, err := parseColor(params, 1)
	if err != nil {
		return "", err
	}
	o, err := c.activeMesh()
	if err != nil {
		return "", err
	}
	for i := range o.Faces {
		if o.Faces[i].Selected {
			o.Faces[i].Color = color
		}
	}
	return "", nil
}

func colorsEqual(a, b [4]float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-3 {
			return false
		}
	}
	return true
}

// selectVertexColor selects exactly the faces painted with the given 0-255 colour
func (c *Commands) selectVertexColor(params string) (string, error) {
	objectName, rgb, ok := strings.Cut(strings.TrimSpace(params), " ")
	if !ok {
		return "", fmt.Errorf("%w: expected name r,g,b", ErrInvalidParams)
	}
	color, err := parseColor(rgb, 255)
	if err != nil {
		return "", err
	}
	for _, o := range c.backend.ObjectsByName([]string{objectName}) {
		for i := range o.Faces {
			o.Faces[i].Selected = colorsEqual(o.Faces[i].Color, color)
		}
	}
	return "", nil
}

// getVertexColors lists the distinct colour/material combinations per mesh as
// [r, g, b, a, roughness, metallic, has_texture]
func (c *Commands) getVertexColors(params string) (string, error) {
	out := make(map[string][][]any)
	for _, o := range c.backend.ObjectsByName(splitNames(params)) {
		seen := make(map[[4]float64]bool)
		var entries [][]any
		for _, f := range o.Faces {
			if seen[f.Color] {
				continue
			}
			seen[f.Color] = true

			v := f.UV[1]
			roughness := math.Floor(f.UV[0]+5) / 10
			hasTexture := v >= 0 && v <= 1
			metallic := !hasTexture && v < -1
			entries = append(entries, []any{f.Color[0], f.Color[1], f.Color[2], f.Color[3], roughness, metallic, hasTexture})
		}
		if len(entries) > 0 {
			out[o.Name] = entries
		}
	}
	return toJSON(out)
}
