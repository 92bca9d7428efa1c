// Package commands implements the Promethean command catalogue on top of a
// scene backend and assembles it into a dispatch table.
package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/codefionn/promethean-bridge/internal/consts"
	"github.com/codefionn/promethean-bridge/internal/dispatch"
	"github.com/codefionn/promethean-bridge/internal/logger"
	"github.com/codefionn/promethean-bridge/internal/scene"
)

var (
	// ErrInvalidParams is returned when a parameter string cannot be parsed
	ErrInvalidParams = errors.New("invalid parameters")
	// ErrUnsupported is returned by commands that need an interactive host
	ErrUnsupported = errors.New("not supported by the headless host")
	// ErrNoActiveObject is returned by face edits without an active mesh
	ErrNoActiveObject = errors.New("no active mesh object")
)

// Backend is the host object model the handlers operate on
type Backend interface {
	dispatch.Checkpointer

	Name() string
	Path() string
	Save() error
	Open(path string) error
	Camera() scene.Camera

	Objects() []*scene.Object
	Object(name string) (*scene.Object, bool)
	ObjectsByName(names []string) []*scene.Object
	Active() (*scene.Object, bool)
	SetActive(name string) error
	Selected() []*scene.Object
	SelectedMeshes() []*scene.Object
	Unselected() []*scene.Object
	ClearSelection()
	InCamera() []*scene.Object

	Add(o *scene.Object) *scene.Object
	Rename(oldName, newName string) (string, error)
	Remove(names ...string)
	RemoveDescendants(name string)
	SetParent(parentName, childName string) error
	ClearParent(name string) error

	WorldLocation(o *scene.Object) scene.Vec3
	SetWorldLocation(o *scene.Object, world scene.Vec3)
	WorldPivot(o *scene.Object) scene.Vec3
	Size(o *scene.Object) scene.Vec3
	RayCast(origin, direction scene.Vec3, maxDist float64, ignore map[string]bool) (scene.Hit, bool)

	EnableSimulation(names []string) []string
	StartSimulation()
	CancelSimulation()
	ToggleSnapping() bool
}

var _ Backend = (*scene.Scene)(nil)

// checkpointCommands push an undo checkpoint before they run
var checkpointCommands = map[string]bool{
	"add_objects":                  true,
	"add_objects_from_polygons":    true,
	"add_objects_from_triangles":   true,
	"parent":                       true,
	"unparent":                     true,
	"set_vertex_color":             true,
	"set_roughness":                true,
	"set_metallic":                 true,
	"set_texture_tiling":           true,
	"set_uv_quadrant":              true,
	"add_mesh_on_selection":        true,
	"translate":                    true,
	"scale":                        true,
	"rotate":                       true,
	"translate_relative":           true,
	"scale_relative":               true,
	"rotate_relative":              true,
	"translate_and_snap":           true,
	"translate_and_raytrace":       true,
	"set_mesh":                     true,
	"set_mesh_on_selection":        true,
	"remove":                       true,
	"remove_descendents":           true,
	"drop_asset":                   true,
	"asset_drop_finished":          true,
	"enable_simulation_on_objects": true,
	"clear_selection":              true,
}

// Commands holds the handler set bound to one backend
type Commands struct {
	backend Backend
	units   float64
	log     *logger.Logger
}

// New binds the catalogue to a backend. units is the number of Promethean
// units per host unit; values <= 0 select the default.
func New(backend Backend, units float64) *Commands {
	if units <= 0 {
		units = consts.UnitsMultiplier
	}
	return &Commands{
		backend: backend,
		units:   units,
		log:     logger.Component("commands"),
	}
}

// Table builds the dispatch table for the whole catalogue
func (c *Commands) Table() (*dispatch.Table, error) {
	handlers := map[string]dispatch.Handler{
		"get_scene_name":     c.getSceneName,
		"save_current_scene": c.saveCurrentScene,
		"open_scene":         c.openScene,

		"get_selection":                               c.getSelection,
		"get_visible_static_mesh_actors":              c.getVisibleStaticMeshActors,
		"get_selected_and_visible_static_mesh_actors": c.getSelectedAndVisibleStaticMeshActors,
		"get_location_data":                           c.getLocationData,
		"get_pivot_data":                              c.getPivotData,
		"get_transform_data":                          c.getTransformData,

		"add_objects":                c.addObjects,
		"add_objects_from_polygons":  c.addObjectsFromPolygons,
		"add_objects_from_triangles": c.addObjectsFromTriangles,
		"parent":                     c.parent,
		"unparent":                   c.unparent,
		"isolate_selection":          c.isolateSelection,
		"kill":                       c.kill,
		"rename":                     c.rename,

		"translate":              c.translate,
		"translate_relative":     c.translateRelative,
		"scale":                  c.scale,
		"scale_relative":         c.scaleRelative,
		"rotate":                 c.rotate,
		"rotate_relative":        c.rotateRelative,
		"translate_and_snap":     c.translateAndSnap,
		"translate_and_raytrace": c.translateAndRaytrace,
		"raytrace":               c.raytrace,
		"raytrace_bidirectional": c.raytraceBidirectional,

		"set_mesh":              c.setMesh,
		"set_mesh_on_selection": c.setMeshOnSelection,
		"add_mesh_on_selection": c.addMeshOnSelection,
		"remove":                c.remove,
		"remove_descendents":    c.removeDescendents,
		"set_hidden":            c.setHidden,
		"set_visible":           c.setVisible,
		"select":                c.selectObjects,
		"clear_selection":       c.clearSelection,

		"learn":                              c.learn,
		"learn_file":                         c.learnFile,
		"get_vertex_data_from_scene_object":  c.getVertexDataFromSceneObject,
		"get_vertex_data_from_scene_objects": c.getVertexDataFromSceneObjects,
		"set_vertex_color":                   c.setVertexColor,
		"set_roughness":                      c.setRoughness,
		"set_metallic":                       c.setMetallic,
		"set_texture_tiling":                 c.setTextureTiling,
		"set_uv_quadrant":                    c.setUVQuadrant,
		"get_vertex_colors":                  c.getVertexColors,
		"select_vertex_color":                c.selectVertexColor,

		"enable_simulation_on_objects":               c.enableSimulationOnObjects,
		"start_simulation":                           c.startSimulation,
		"cancel_simulation":                          c.cancelSimulation,
		"end_simulation":                             c.cancelSimulation,
		"get_simulation_on_actors_by_name":           returnNone,
		"get_transform_data_from_simulating_objects": returnNone,

		"toggle_surface_snapping": c.toggleSurfaceSnapping,
		"get_camera_info":         c.getCameraInfo,
		"report_done":             c.reportDone,

		consts.InternalServerErrorCommand: c.internalServerError,

		"screenshot":                   unsupported,
		"create_assets_from_selection": unsupported,
		"drop_asset":                   unsupported,
		"start_dragging_asset":         unsupported,
		"asset_drop_finished":          unsupported,
	}

	cmds := make([]dispatch.Command, 0, len(handlers))
	for name, handler := range handlers {
		cmds = append(cmds, dispatch.Command{
			Name:       name,
			Handler:    handler,
			Checkpoint: checkpointCommands[name],
		})
	}
	return dispatch.NewTable(cmds...)
}

// NewRouter builds a router that executes the catalogue against backend
func NewRouter(backend Backend, units float64) (*dispatch.Router, error) {
	table, err := New(backend, units).Table()
	if err != nil {
		return nil, fmt.Errorf("failed to build command table: %w", err)
	}
	return dispatch.NewRouter(table, backend), nil
}

func returnNone(string) (string, error) {
	return "", nil
}

func unsupported(string) (string, error) {
	return "", ErrUnsupported
}

func (c *Commands) convertIn(v float64) float64 {
	return v / c.units
}

func (c *Commands) convertOut(v float64) float64 {
	return v * c.units
}

func (c *Commands) vecIn(v scene.Vec3) scene.Vec3 {
	return scene.Vec3{v[0] / c.units, v[1] / c.units, v[2] / c.units}
}

func (c *Commands) vecOut(v scene.Vec3) scene.Vec3 {
	return v.Scale(c.units)
}

// splitNames splits a comma-separated name list
func splitNames(params string) []string {
	if params == "" {
		return nil
	}
	return strings.Split(params, ",")
}

func names(objects []*scene.Object) []string {
	out := make([]string, 0, len(objects))
	for _, o := range objects {
		out = append(out, o.Name)
	}
	return out
}

func toJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode response: %w", err)
	}
	return string(data), nil
}

func decode(params string, v any) error {
	if err := json.Unmarshal([]byte(params), v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

// decodeArgs decodes a JSON array into the given targets positionally
func decodeArgs(params string, targets ...any) error {
	var raw []json.RawMessage
	if err := decode(params, &raw); err != nil {
		return err
	}
	if len(raw) != len(targets) {
		return fmt.Errorf("%w: expected %d arguments, got %d", ErrInvalidParams, len(targets), len(raw))
	}
	for i, target := range targets {
		if err := decode(string(raw[i]), target); err != nil {
			return err
		}
	}
	return nil
}

// orderedObject decodes a JSON object keeping the key order of the payload
func orderedObject(params string) ([]string, map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(params)))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidParams)
	}

	var keys []string
	values := make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		key, _ := tok.(string)
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		if _, seen := values[key]; !seen {
			keys = append(keys, key)
		}
		values[key] = value
	}
	return keys, values, nil
}

// pyList renders names the way the Promethean client expects list replies
func pyList(items []string) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pyRepr(item))
	}
	b.WriteByte(']')
	return b.String()
}

func pyRepr(s string) string {
	quote := "'"
	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		quote = `"`
	}
	r := strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`, "\t", `\t`, quote, `\`+quote)
	return quote + r.Replace(s) + quote
}

func parseBool(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}
