// Package scene is the headless host's object model: a flat store of named
// objects with a translation-only hierarchy, selection and visibility state,
// a viewport camera, an undo stack and SQLite persistence.
//
// A Scene is owned by the host goroutine and is not safe for concurrent use.
package scene

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/codefionn/promethean-bridge/internal/logger"
)

var (
	// ErrObjectNotFound is returned when a named object does not exist
	ErrObjectNotFound = errors.New("object not found")
	// ErrNoScenePath is returned when saving a scene that was never saved or opened
	ErrNoScenePath = errors.New("scene has no file path")
	// ErrNothingToUndo is returned when the undo stack is empty
	ErrNothingToUndo = errors.New("nothing to undo")
)

// MaxUndoSteps bounds the undo stack
const MaxUndoSteps = 32

// Camera is the viewport camera
type Camera struct {
	Location Vec3 `json:"location"`
	// Rotation in XYZ euler degrees; an unrotated camera looks down -Z
	Rotation Vec3 `json:"rotation"`
	// FOV is the full horizontal field of view in degrees
	FOV     float64 `json:"fov"`
	ClipEnd float64 `json:"clip_end"`
}

// DefaultCamera looks along +Y from ten units in front of the origin
func DefaultCamera() Camera {
	return Camera{
		Location: Vec3{0, -10, 1},
		Rotation: Vec3{90, 0, 0},
		FOV:      60,
		ClipEnd:  1000,
	}
}

// Checkpoint is a labelled snapshot on the undo stack
type Checkpoint struct {
	Label  string
	Digest uint64

	objects []*Object
	active  string
}

// Scene holds all objects of the host session
type Scene struct {
	objects  map[string]*Object
	order    []string
	active   string
	camera   Camera
	path     string
	snapping bool
	undo     []Checkpoint
	sim      simulation

	savedDigest uint64
	log         *logger.Logger
}

// New creates an empty, unsaved scene
func New() *Scene {
	return &Scene{
		objects: make(map[string]*Object),
		camera:  DefaultCamera(),
		log:     logger.Component("scene"),
	}
}

// Path returns the file the scene was last saved to or opened from
func (s *Scene) Path() string {
	return s.path
}

// Name returns the base name of the scene file, or "" for an unsaved scene
func (s *Scene) Name() string {
	if s.path == "" {
		return ""
	}
	return filepath.Base(s.path)
}

// Camera returns the viewport camera
func (s *Scene) Camera() Camera {
	return s.camera
}

// Objects returns all objects in creation order
func (s *Scene) Objects() []*Object {
	out := make([]*Object, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.objects[name])
	}
	return out
}

// Len returns the number of objects
func (s *Scene) Len() int {
	return len(s.order)
}

// Object returns the object with the given name
func (s *Scene) Object(name string) (*Object, bool) {
	o, ok := s.objects[name]
	return o, ok
}

// ObjectsByName resolves names, silently skipping unknown ones
func (s *Scene) ObjectsByName(names []string) []*Object {
	var out []*Object
	for _, name := range names {
		if o, ok := s.objects[name]; ok {
			out = append(out, o)
		}
	}
	return out
}

// Active returns the active object, if any
func (s *Scene) Active() (*Object, bool) {
	return s.Object(s.active)
}

// SetActive marks the named object active
func (s *Scene) SetActive(name string) error {
	if _, ok := s.objects[name]; !ok {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, name)
	}
	s.active = name
	return nil
}

// Filter returns objects matching fn in creation order
func (s *Scene) Filter(fn func(*Object) bool) []*Object {
	var out []*Object
	for _, name := range s.order {
		if o := s.objects[name]; fn(o) {
			out = append(out, o)
		}
	}
	return out
}

// SelectedMeshes returns all selected mesh objects
func (s *Scene) SelectedMeshes() []*Object {
	return s.Filter(func(o *Object) bool { return o.IsMesh() && o.Selected })
}

// Selected returns all selected objects
func (s *Scene) Selected() []*Object {
	return s.Filter(func(o *Object) bool { return o.Selected })
}

// Unselected returns all objects that are not selected
func (s *Scene) Unselected() []*Object {
	return s.Filter(func(o *Object) bool { return !o.Selected })
}

// VisibleMeshes returns all mesh objects that are not hidden
func (s *Scene) VisibleMeshes() []*Object {
	return s.Filter(func(o *Object) bool { return o.IsMesh() && !o.Hidden })
}

// ClearSelection deselects every object
func (s *Scene) ClearSelection() {
	for _, o := range s.objects {
		o.Selected = false
	}
}

// ToggleSnapping flips surface snapping and returns the new state
func (s *Scene) ToggleSnapping() bool {
	s.snapping = !s.snapping
	return s.snapping
}

// Snapping reports whether surface snapping is enabled
func (s *Scene) Snapping() bool {
	return s.snapping
}

var numericSuffix = regexp.MustCompile(`^(.*)\.(\d{3,})$`)

// uniqueName returns name, or name.NNN when it is already taken
func (s *Scene) uniqueName(name string) string {
	if _, taken := s.objects[name]; !taken {
		return name
	}
	base := name
	if m := numericSuffix.FindStringSubmatch(name); m != nil {
		base = m[1]
	}
	for i := 1; ; i++ {
		candidate := base + "." + fmt.Sprintf("%03d", i)
		if _, taken := s.objects[candidate]; !taken {
			return candidate
		}
	}
}

// Add links an object into the scene under a unique name and makes it
// active. The stored object is returned.
func (s *Scene) Add(o *Object) *Object {
	if o.Name == "" {
		o.Name = string(o.Type)
	}
	o.Name = s.uniqueName(o.Name)
	if o.Scale == (Vec3{}) {
		o.Scale = Vec3{1, 1, 1}
	}
	if o.Parent != "" {
		if _, ok := s.objects[o.Parent]; !ok {
			o.Parent = ""
		}
	}
	s.objects[o.Name] = o
	s.order = append(s.order, o.Name)
	s.active = o.Name
	return o
}

// Rename renames an object. A clashing target name gets a numeric suffix;
// the resulting name is returned.
func (s *Scene) Rename(oldName, newName string) (string, error) {
	o, ok := s.objects[oldName]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrObjectNotFound, oldName)
	}
	if newName == "" {
		return "", fmt.Errorf("empty name for %s", oldName)
	}
	if newName == oldName {
		return oldName, nil
	}

	delete(s.objects, oldName)
	name := s.uniqueName(newName)
	o.Name = name
	s.objects[name] = o

	for i, n := range s.order {
		if n == oldName {
			s.order[i] = name
		}
	}
	for _, other := range s.objects {
		if other.Parent == oldName {
			other.Parent = name
		}
	}
	if s.active == oldName {
		s.active = name
	}
	s.sim.rename(oldName, name)
	return name, nil
}

// Children returns the direct children of the named object
func (s *Scene) Children(name string) []*Object {
	return s.Filter(func(o *Object) bool { return o.Parent == name })
}

// Descendants returns all objects below the named object, depth first
func (s *Scene) Descendants(name string) []*Object {
	var out []*Object
	for _, child := range s.Children(name) {
		out = append(out, child)
		out = append(out, s.Descendants(child.Name)...)
	}
	return out
}

// Remove deletes objects. Children of removed objects are unparented and
// keep their world location.
func (s *Scene) Remove(names ...string) {
	doomed := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := s.objects[name]; ok {
			doomed[name] = true
		}
	}
	if len(doomed) == 0 {
		return
	}

	for _, o := range s.objects {
		if !doomed[o.Name] && doomed[o.Parent] {
			o.Location = s.WorldLocation(o)
			o.Parent = ""
		}
	}

	order := s.order[:0]
	for _, name := range s.order {
		if doomed[name] {
			delete(s.objects, name)
			s.sim.remove(name)
			continue
		}
		order = append(order, name)
	}
	s.order = order
	if doomed[s.active] {
		s.active = ""
	}
}

// RemoveDescendants deletes every object below the named object, keeping
// the object itself
func (s *Scene) RemoveDescendants(name string) {
	var names []string
	for _, o := range s.Descendants(name) {
		names = append(names, o.Name)
	}
	s.Remove(names...)
}

// SetParent parents child to parent without moving child in world space
func (s *Scene) SetParent(parentName, childName string) error {
	parent, ok := s.objects[parentName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, parentName)
	}
	child, ok := s.objects[childName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, childName)
	}
	for p := parent; p != nil; p = s.objects[p.Parent] {
		if p.Name == child.Name {
			return fmt.Errorf("cannot parent %s to its own descendant %s", childName, parentName)
		}
		if p.Parent == "" {
			break
		}
	}

	world := s.WorldLocation(child)
	child.Parent = parent.Name
	child.Location = world.Sub(s.WorldLocation(parent))
	return nil
}

// ClearParent unparents the object without moving it in world space
func (s *Scene) ClearParent(name string) error {
	o, ok := s.objects[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, name)
	}
	o.Location = s.WorldLocation(o)
	o.Parent = ""
	return nil
}

// WorldLocation resolves the object origin in world space
func (s *Scene) WorldLocation(o *Object) Vec3 {
	loc := o.Location
	seen := map[string]bool{o.Name: true}
	for p, ok := s.objects[o.Parent]; ok && !seen[p.Name]; p, ok = s.objects[p.Parent] {
		seen[p.Name] = true
		loc = loc.Add(p.Location)
	}
	return loc
}

// SetWorldLocation moves the object so its origin lands on world
func (s *Scene) SetWorldLocation(o *Object, world Vec3) {
	if p, ok := s.objects[o.Parent]; ok {
		o.Location = world.Sub(s.WorldLocation(p))
		return
	}
	o.Location = world
}

// snapshot deep-copies all objects in order
func (s *Scene) snapshot() []*Object {
	out := make([]*Object, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.objects[name].Clone())
	}
	return out
}

func (s *Scene) restore(objects []*Object, active string) {
	s.objects = make(map[string]*Object, len(objects))
	s.order = s.order[:0]
	for _, o := range objects {
		c := o.Clone()
		s.objects[c.Name] = c
		s.order = append(s.order, c.Name)
	}
	s.active = active
}

// Checkpoint pushes a labelled undo snapshot of the current state
func (s *Scene) Checkpoint(label string) error {
	objects := s.snapshot()
	digest, err := digestObjects(objects)
	if err != nil {
		return fmt.Errorf("failed to digest scene: %w", err)
	}

	s.undo = append(s.undo, Checkpoint{Label: label, Digest: digest, objects: objects, active: s.active})
	if len(s.undo) > MaxUndoSteps {
		s.undo = s.undo[len(s.undo)-MaxUndoSteps:]
	}
	s.log.Debug("Checkpoint %q (%016x)", label, digest)
	return nil
}

// Undo restores the most recent checkpoint and returns its label
func (s *Scene) Undo() (string, error) {
	if len(s.undo) == 0 {
		return "", ErrNothingToUndo
	}
	cp := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.restore(cp.objects, cp.active)
	s.log.Info("Undo %q", cp.Label)
	return cp.Label, nil
}

// Checkpoints returns the undo stack, oldest first
func (s *Scene) Checkpoints() []Checkpoint {
	return append([]Checkpoint(nil), s.undo...)
}

// String summarises the scene for logs
func (s *Scene) String() string {
	name := s.Name()
	if name == "" {
		name = "<unsaved>"
	}
	return name + " (" + strconv.Itoa(len(s.order)) + " objects)"
}
