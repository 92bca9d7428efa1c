package commands

import (
	"fmt"
	"strings"

	"github.com/codefionn/promethean-bridge/internal/consts"
	"github.com/codefionn/promethean-bridge/internal/scene"
)

func (c *Commands) getSelection(string) (string, error) {
	return pyList(names(c.backend.SelectedMeshes())), nil
}

func (c *Commands) getVisibleStaticMeshActors(string) (string, error) {
	return pyList(names(c.backend.InCamera())), nil
}

func referencePaths(objects []*scene.Object) map[string][]int {
	paths := make(map[string][]int)
	for i, o := range objects {
		paths[o.AssetPath] = append(paths[o.AssetPath], i)
	}
	return paths
}

func (c *Commands) getSelectedAndVisibleStaticMeshActors(string) (string, error) {
	selected := c.backend.SelectedMeshes()
	visible := c.backend.InCamera()

	sceneName := c.backend.Name()
	if sceneName == "" {
		sceneName = "Scene"
	}

	return toJSON(map[string]any{
		"selected_names": names(selected),
		"rendered_names": names(visible),
		"selected_paths": referencePaths(selected),
		"rendered_paths": referencePaths(visible),
		"scene_name":     sceneName,
	})
}

func (c *Commands) getLocationData(params string) (string, error) {
	data := make(map[string]scene.Vec3)
	for _, o := range c.backend.ObjectsByName(splitNames(params)) {
		data[o.Name] = c.vecOut(c.backend.WorldLocation(o))
	}
	return toJSON(data)
}

func (c *Commands) getPivotData(params string) (string, error) {
	data := make(map[string]scene.Vec3)
	for _, o := range c.backend.ObjectsByName(splitNames(params)) {
		data[o.Name] = c.vecOut(c.backend.WorldPivot(o))
	}
	return toJSON(data)
}

// transformData is translation, rotation, scale, size, pivot offset and the
// parent name, flattened
func (c *Commands) transformData(o *scene.Object) []any {
	translation := c.vecOut(c.backend.WorldLocation(o))
	size := c.vecOut(c.backend.Size(o))
	pivotOffset := c.vecOut(o.LocalPivot())

	var out []any
	for _, v := range []scene.Vec3{translation, o.Rotation, o.Scale, size, pivotOffset} {
		for _, f := range v {
			out = append(out, f)
		}
	}
	return append(out, c.parentName(o))
}

func (c *Commands) parentName(o *scene.Object) string {
	if o.Parent == "" {
		return consts.NoParent
	}
	return o.Parent
}

func (c *Commands) getTransformData(params string) (string, error) {
	data := make(map[string][]any)
	for _, name := range splitNames(params) {
		if o, ok := c.backend.Object(name); ok {
			data[name] = c.transformData(o)
		}
	}
	return toJSON(data)
}

func (c *Commands) parent(params string) (string, error) {
	objects := c.backend.ObjectsByName(splitNames(params))
	if len(objects) < 2 {
		return "", nil
	}
	parent := objects[0]
	for _, child := range objects[1:] {
		if err := c.backend.SetParent(parent.Name, child.Name); err != nil {
			return "", err
		}
	}
	return "", nil
}

func (c *Commands) unparent(params string) (string, error) {
	for _, o := range c.backend.ObjectsByName(splitNames(params)) {
		if err := c.backend.ClearParent(o.Name); err != nil {
			return "", err
		}
	}
	return "", nil
}

func (c *Commands) isolateSelection(string) (string, error) {
	for _, o := range c.backend.Unselected() {
		o.Hidden = true
	}
	return "", nil
}

// kill toggles the kill marker on every selected mesh
func (c *Commands) kill(string) (string, error) {
	for _, o := range c.backend.SelectedMeshes() {
		target := o.Name + consts.KillSuffix
		if strings.Contains(o.Name, consts.KillSuffix) {
			target = strings.ReplaceAll(o.Name, consts.KillSuffix, "")
		}
		if _, err := c.backend.Rename(o.Name, target); err != nil {
			return "", err
		}
	}
	return "", nil
}

func (c *Commands) rename(params string) (string, error) {
	source, target, ok := strings.Cut(params, ",")
	if !ok {
		return "", fmt.Errorf("%w: expected old,new", ErrInvalidParams)
	}
	return c.backend.Rename(source, target)
}

func (c *Commands) vectorAndObjects(params string) (scene.Vec3, []*scene.Object, error) {
	var value scene.Vec3
	var objectNames []string
	if err := decodeArgs(params, &value, &objectNames); err != nil {
		return scene.Vec3{}, nil, err
	}
	return value, c.backend.ObjectsByName(objectNames), nil
}

func (c *Commands) translate(params string) (string, error) {
	value, objects, err := c.vectorAndObjects(params)
	if err != nil {
		return "", err
	}
	for _, o := range objects {
		c.backend.SetWorldLocation(o, c.vecIn(value))
	}
	return "", nil
}

func (c *Commands) translateRelative(params string) (string, error) {
	value, objects, err := c.vectorAndObjects(params)
	if err != nil {
		return "", err
	}
	for _, o := range objects {
		o.Location = o.Location.Add(c.vecIn(value))
	}
	return "", nil
}

func (c *Commands) scale(params string) (string, error) {
	value, objects, err := c.vectorAndObjects(params)
	if err != nil {
		return "", err
	}
	for _, o := range objects {
		o.Scale = value
	}
	return "", nil
}

func (c *Commands) scaleRelative(params string) (string, error) {
	value, objects, err := c.vectorAndObjects(params)
	if err != nil {
		return "", err
	}
	for _, o := range objects {
		o.Scale = o.Scale.Mul(value)
	}
	return "", nil
}

func (c *Commands) rotate(params string) (string, error) {
	value, objects, err := c.vectorAndObjects(params)
	if err != nil {
		return "", err
	}
	for _, o := range objects {
		o.Rotation = value
	}
	return "", nil
}

func (c *Commands) rotateRelative(params string) (string, error) {
	value, objects, err := c.vectorAndObjects(params)
	if err != nil {
		return "", err
	}
	for _, o := range objects {
		o.Rotation = scene.RotateLocal(o.Rotation, value)
	}
	return "", nil
}

func (c *Commands) translateAndSnap(params string) (string, error) {
	var location []float64
	var distance, maxDeviation float64
	var objectNames, ignoreNames []string
	if err := decodeArgs(params, &location, &distance, &maxDeviation, &objectNames, &ignoreNames); err != nil {
		return "", err
	}
	return c.dropOnSurface(location, distance, maxDeviation, objectNames, ignoreNames)
}

func (c *Commands) translateAndRaytrace(params string) (string, error) {
	var location []float64
	var distance float64
	var objectNames, ignoreNames []string
	if err := decodeArgs(params, &location, &distance, &objectNames, &ignoreNames); err != nil {
		return "", err
	}
	return c.dropOnSurface(location, distance, 0, objectNames, ignoreNames)
}

// dropOnSurface casts down from location and moves the objects onto the
// surface hit. Objects are aligned to the surface normal when it is closer
// to up than maxDeviation. A zero distance leaves everything in place.
func (c *Commands) dropOnSurface(location []float64, distance, maxDeviation float64, objectNames, ignoreNames []string) (string, error) {
	if len(location) != 3 {
		return "", fmt.Errorf("%w: location needs three components", ErrInvalidParams)
	}
	maxDist := c.convertIn(distance)
	if maxDist == 0 {
		return "", nil
	}
	origin := c.vecIn(scene.Vec3{location[0], location[1], location[2]})

	objects := c.backend.ObjectsByName(objectNames)
	ignore := make(map[string]bool)
	for _, o := range c.backend.ObjectsByName(ignoreNames) {
		ignore[o.Name] = true
	}
	for _, o := range objects {
		ignore[o.Name] = true
	}

	up := scene.Vec3{0, 0, 1}
	for _, o := range objects {
		hit, ok := c.backend.RayCast(origin, scene.Vec3{0, 0, -1}, maxDist, ignore)
		if !ok {
			continue
		}
		if up.Dot(hit.Normal) > maxDeviation {
			o.Rotation = scene.NormalToEuler(hit.Normal)
		}
		c.backend.SetWorldLocation(o, hit.Location)
	}
	return "", nil
}

func (c *Commands) remove(params string) (string, error) {
	c.backend.Remove(names(c.backend.ObjectsByName(splitNames(params)))...)
	return "", nil
}

func (c *Commands) removeDescendents(params string) (string, error) {
	for _, o := range c.backend.ObjectsByName(splitNames(params)) {
		c.backend.RemoveDescendants(o.Name)
	}
	return "", nil
}

func (c *Commands) setHidden(params string) (string, error) {
	for _, o := range c.backend.ObjectsByName(splitNames(params)) {
		o.Hidden = true
	}
	return "", nil
}

func (c *Commands) setVisible(params string) (string, error) {
	for _, o := range c.backend.ObjectsByName(splitNames(params)) {
		o.Hidden = false
	}
	return "", nil
}

// selectObjects adds the named objects to the selection; the last one
// becomes the active object
func (c *Commands) selectObjects(params string) (string, error) {
	objects := c.backend.ObjectsByName(splitNames(params))
	for _, o := range objects {
		o.Selected = true
	}
	if len(objects) > 0 {
		if err := c.backend.SetActive(objects[len(objects)-1].Name); err != nil {
			return "", err
		}
	}
	return "", nil
}

func (c *Commands) clearSelection(string) (string, error) {
	c.backend.ClearSelection()
	return "", nil
}
