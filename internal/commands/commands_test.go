package commands

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/codefionn/promethean-bridge/internal/dispatch"
	"github.com/codefionn/promethean-bridge/internal/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*scene.Scene, *dispatch.Router) {
	t.Helper()
	s := scene.New()
	router, err := NewRouter(s, 0)
	require.NoError(t, err)
	return s, router
}

func route(t *testing.T, router *dispatch.Router, payload string) string {
	t.Helper()
	resp, err := router.Route([]byte(payload))
	require.NoError(t, err, payload)
	return resp
}

func TestTableCoversCatalogue(t *testing.T) {
	table, err := New(scene.New(), 0).Table()
	require.NoError(t, err)

	for _, name := range []string{
		"get_scene_name", "add_objects", "translate", "rename", "get_selection",
		"raytrace_bidirectional", "learn_file", "internal_server_error", "screenshot",
	} {
		_, ok := table.Lookup(name)
		assert.True(t, ok, name)
	}

	checkpointed := table.CheckpointNames()
	assert.Len(t, checkpointed, len(checkpointCommands))
	for _, name := range checkpointed {
		assert.True(t, checkpointCommands[name], name)
	}
}

func TestAddObjectsRoundTrip(t *testing.T) {
	s, router := newTestRouter(t)

	resp := route(t, router, `add_objects {"Group111": {"group": true, "name": "Group111", "location": [0,100,200], "rotation": [3,4,5], "scale": [1,1,1]}, "NewMesh111": {"group": false, "name": "NewMesh111", "location": [10,11,12], "rotation": [0,0,90], "scale": [1,2,3], "parent_dcc_name": "Group111"}}`)

	var names map[string]string
	require.NoError(t, json.Unmarshal([]byte(resp), &names))
	assert.Equal(t, map[string]string{"Group111": "Group111", "NewMesh111": "NewMesh111"}, names)

	group, ok := s.Object("Group111")
	require.True(t, ok)
	assert.Equal(t, scene.TypeEmpty, group.Type)
	assert.True(t, group.Location.ApproxEqual(scene.Vec3{0, 1, 2}, 1e-9))

	mesh, ok := s.Object("NewMesh111")
	require.True(t, ok)
	assert.Equal(t, scene.TypeMesh, mesh.Type)
	assert.Equal(t, "Group111", mesh.Parent)
	assert.True(t, s.WorldLocation(mesh).ApproxEqual(scene.Vec3{0.1, 0.11, 0.12}, 1e-9))
	assert.Equal(t, scene.Vec3{1, 2, 3}, mesh.Scale)
	assert.True(t, s.Size(mesh).ApproxEqual(scene.Vec3{1, 2, 3}, 1e-9))

	// the names map back onto live objects
	for _, name := range names {
		_, ok := s.Object(name)
		assert.True(t, ok, name)
	}
	assert.Len(t, s.Checkpoints(), 1)
	assert.Equal(t, "Promethean AI: add_objects", s.Checkpoints()[0].Label)
}

func TestAddObjectsNameClash(t *testing.T) {
	s, router := newTestRouter(t)
	s.Add(scene.NewCube("Chair", 1))

	resp := route(t, router, `add_objects {"chair_a": {"name": "Chair", "location": [0,0,0], "rotation": [0,0,0], "scale": [1,1,1]}}`)
	assert.JSONEq(t, `{"chair_a": "Chair.001"}`, resp)
}

func TestAddObjectsFromAsset(t *testing.T) {
	s, router := newTestRouter(t)
	route(t, router, `add_objects {"a": {"name": "Monkey", "asset_path": "/assets/monkey.fbx", "location": [0,0,0], "rotation": [0,0,0], "scale": [1,1,1]}}`)

	o, ok := s.Object("Monkey")
	require.True(t, ok)
	assert.Equal(t, "/assets/monkey.fbx", o.AssetPath)
}

func TestTranslate(t *testing.T) {
	s, router := newTestRouter(t)
	cube := s.Add(scene.NewCube("Cube", 1))

	resp := route(t, router, `translate [[1,2,3],["Cube"]]`)
	assert.Equal(t, "None", resp)
	assert.True(t, cube.Location.ApproxEqual(scene.Vec3{0.01, 0.02, 0.03}, 1e-12), "%v", cube.Location)

	resp = route(t, router, `translate_relative [[100,0,0],["Cube","Missing"]]`)
	assert.Equal(t, "None", resp)
	assert.True(t, cube.Location.ApproxEqual(scene.Vec3{1.01, 0.02, 0.03}, 1e-12))

	require.Len(t, s.Checkpoints(), 2)
	assert.Equal(t, "Promethean AI: translate", s.Checkpoints()[0].Label)
}

func TestTranslateRejectsBadParams(t *testing.T) {
	_, router := newTestRouter(t)
	_, err := router.Route([]byte(`translate not-json`))
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestScaleAndRotate(t *testing.T) {
	s, router := newTestRouter(t)
	cube := s.Add(scene.NewCube("Cube", 1))

	route(t, router, `scale [[2,2,2],["Cube"]]`)
	route(t, router, `scale_relative [[1,0.5,3],["Cube"]]`)
	assert.Equal(t, scene.Vec3{2, 1, 6}, cube.Scale)

	route(t, router, `rotate [[0,0,30],["Cube"]]`)
	route(t, router, `rotate_relative [[0,0,15],["Cube"]]`)
	assert.True(t, cube.Rotation.ApproxEqual(scene.Vec3{0, 0, 45}, 1e-6), "%v", cube.Rotation)
}

func TestRename(t *testing.T) {
	s, router := newTestRouter(t)
	s.Add(scene.NewCube("Cube", 1))

	assert.Equal(t, "Box", route(t, router, "rename Cube,Box"))
	_, ok := s.Object("Cube")
	assert.False(t, ok)
	_, ok = s.Object("Box")
	assert.True(t, ok)

	_, err := router.Route([]byte("rename Missing,Other"))
	assert.ErrorIs(t, err, scene.ErrObjectNotFound)
}

func TestGetSelectionIdempotent(t *testing.T) {
	s, router := newTestRouter(t)
	s.Add(scene.NewCube("A", 1)).Selected = true
	s.Add(scene.NewCube("B", 1))
	s.Add(scene.NewCube("C's", 1)).Selected = true
	s.Add(scene.NewEmpty("Group")).Selected = true

	first := route(t, router, "get_selection")
	second := route(t, router, "get_selection")
	assert.Equal(t, `['A', "C's"]`, first)
	assert.Equal(t, first, second)
	assert.Empty(t, s.Checkpoints())
}

func TestSelectionCommands(t *testing.T) {
	s, router := newTestRouter(t)
	a := s.Add(scene.NewCube("A", 1))
	b := s.Add(scene.NewCube("B", 1))

	route(t, router, "select A,B")
	assert.Equal(t, "['A', 'B']", route(t, router, "get_selection"))
	active, ok := s.Active()
	require.True(t, ok)
	assert.Equal(t, "B", active.Name)

	route(t, router, "clear_selection")
	assert.Equal(t, "[]", route(t, router, "get_selection"))

	a.Selected = true
	route(t, router, "isolate_selection")
	assert.False(t, a.Hidden)
	assert.True(t, b.Hidden)

	route(t, router, "set_visible B")
	assert.False(t, b.Hidden)
	route(t, router, "set_hidden A,B")
	assert.True(t, a.Hidden)
}

func TestKillToggles(t *testing.T) {
	s, router := newTestRouter(t)
	s.Add(scene.NewCube("Lamp", 1)).Selected = true

	route(t, router, "kill")
	_, ok := s.Object("Lamp__kill__")
	assert.True(t, ok)

	route(t, router, "kill")
	_, ok = s.Object("Lamp")
	assert.True(t, ok)
}

func TestParentAndTransformData(t *testing.T) {
	s, router := newTestRouter(t)
	table := s.Add(scene.NewCube("Table", 1))
	table.Location = scene.Vec3{1, 0, 0}
	s.Add(scene.NewCube("Cup", 1))

	route(t, router, "parent Table,Cup")
	resp := route(t, router, "get_transform_data Cup,Missing")

	var data map[string][]any
	require.NoError(t, json.Unmarshal([]byte(resp), &data))
	require.Len(t, data["Cup"], 16)
	assert.Equal(t, "Table", data["Cup"][15])
	assert.Equal(t, 100.0, data["Cup"][9]) // size x
	assert.NotContains(t, data, "Missing")

	route(t, router, "unparent Cup")
	resp = route(t, router, "get_transform_data Cup")
	require.NoError(t, json.Unmarshal([]byte(resp), &data))
	assert.Equal(t, "no_parent", data["Cup"][15])
}

func TestLocationAndPivotData(t *testing.T) {
	s, router := newTestRouter(t)
	cube := s.Add(scene.NewCube("Cube", 1))
	cube.Location = scene.Vec3{1, 2, 3}

	assert.JSONEq(t, `{"Cube": [100, 200, 300]}`, route(t, router, "get_location_data Cube,Nope"))
	assert.JSONEq(t, `{"Cube": [100, 200, 300]}`, route(t, router, "get_pivot_data Cube"))
}

func TestRemoveCommands(t *testing.T) {
	s, router := newTestRouter(t)
	s.Add(scene.NewEmpty("Root"))
	s.Add(scene.NewCube("Leaf", 1))
	s.Add(scene.NewCube("Other", 1))
	require.NoError(t, s.SetParent("Root", "Leaf"))

	route(t, router, "remove_descendents Root")
	_, ok := s.Object("Leaf")
	assert.False(t, ok)
	_, ok = s.Object("Root")
	assert.True(t, ok)

	route(t, router, "remove Root,Other")
	assert.Equal(t, 0, s.Len())
}

func TestRaytrace(t *testing.T) {
	s, router := newTestRouter(t)
	floor := s.Add(scene.NewCube("floor", 10))
	floor.Location = scene.Vec3{0, 0, -9}
	cube := s.Add(scene.NewCube("Cube", 1))
	cube.Location = scene.Vec3{0, 0, 2}

	resp := route(t, router, `raytrace [[0,0,-1], 1000, ["Cube", "Missing"]]`)
	assert.JSONEq(t, `{"Cube": [0, 0, 100]}`, resp)

	resp = route(t, router, `raytrace [[0,0,1], 1000, ["Cube"]]`)
	assert.JSONEq(t, `{"Cube": [0, 0, 0]}`, resp)

	resp = route(t, router, `raytrace_bidirectional [[0,0,1], 1000, ["Cube"]]`)
	assert.JSONEq(t, `{"Cube": [0, 0, 100]}`, resp)

	resp = route(t, router, `raytrace [[0,0,-1], 50, ["Cube"]]`)
	assert.JSONEq(t, `{"Cube": [0, 0, 0]}`, resp)
}

func TestTranslateAndSnap(t *testing.T) {
	s, router := newTestRouter(t)
	floor := s.Add(scene.NewCube("floor", 10))
	floor.Location = scene.Vec3{0, 0, -10}
	cube := s.Add(scene.NewCube("Cube", 1))
	cube.Rotation = scene.Vec3{10, 0, 0}

	route(t, router, `translate_and_snap [[100, 100, 500], 10000, 0.5, ["Cube"], []]`)
	assert.True(t, cube.Location.ApproxEqual(scene.Vec3{1, 1, 0}, 1e-9), "%v", cube.Location)
	assert.True(t, cube.Rotation.ApproxEqual(scene.Vec3{0, 0, 0}, 1e-9), "%v", cube.Rotation)

	route(t, router, `translate_and_raytrace [[0, 0, 500], 0, ["Cube"], ["floor"]]`)
	assert.True(t, cube.Location.ApproxEqual(scene.Vec3{1, 1, 0}, 1e-9))
}

func TestSetMeshReplacesObjects(t *testing.T) {
	s, router := newTestRouter(t)
	old := s.Add(scene.NewCube("Old", 1))
	old.Location = scene.Vec3{3, 0, 0}

	route(t, router, `set_mesh ["/assets/sofa.fbx", ["Old"]]`)
	_, ok := s.Object("Old")
	assert.False(t, ok)
	sofa, ok := s.Object("sofa")
	require.True(t, ok)
	assert.Equal(t, scene.Vec3{3, 0, 0}, sofa.Location)

	sofa.Selected = true
	route(t, router, "add_mesh_on_selection /assets/lamp.obj,/assets/plant.obj")
	assert.Equal(t, "['sofa', 'lamp', 'plant']", route(t, router, "get_selection"))

	route(t, router, "set_mesh_on_selection /assets/box.fbx")
	assert.Equal(t, 3, s.Len())
	_, ok = s.Object("box.002")
	assert.True(t, ok)
}

func TestAddObjectsFromGeometry(t *testing.T) {
	s, router := newTestRouter(t)

	resp := route(t, router, `add_objects_from_triangles {"obj1": {"name": "Tri", "verts": [[0,0,0],[100,0,0],[100,100,0],[0,100,0]], "tri_ids": [[0,1,2],[0,2,3]]}}`)
	assert.JSONEq(t, `{"obj1": "Tri"}`, resp)
	tri, ok := s.Object("Tri")
	require.True(t, ok)
	assert.Len(t, tri.Faces, 2)
	assert.Equal(t, scene.Vec3{1, 1, 0}, tri.BoundsMax)

	_, err := router.Route([]byte(`add_objects_from_triangles {"bad": {"name": "Bad", "verts": [[0,0,0]], "tri_ids": [[0,1,2]]}}`))
	assert.ErrorIs(t, err, ErrInvalidParams)

	assert.Equal(t, "None", route(t, router, `add_objects_from_polygons {"name": "Closet", "points": [[0,0,0],[100,0,0],[100,0,60],[0,0,60],[0,0,0],[100,0,0],[100,60,0],[0,60,0]], "transform": {"translation": [900,0,100], "rotation": [0,0,0], "scale": [1,1,1]}}`))
	closet, ok := s.Object("Closet")
	require.True(t, ok)
	assert.Len(t, closet.Faces, 2)
	assert.Len(t, closet.Vertices, 6)
	assert.True(t, closet.Location.ApproxEqual(scene.Vec3{9, 0, 1}, 1e-9))
}

func TestVertexData(t *testing.T) {
	s, router := newTestRouter(t)
	s.Add(scene.NewMesh("Quad", []scene.Vec3{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}}, [][]int{{0, 1, 2, 3}}))

	var single struct {
		VertexPositions []map[string][]float64 `json:"vertex_positions"`
	}
	require.NoError(t, json.Unmarshal([]byte(route(t, router, "get_vertex_data_from_scene_object Quad")), &single))
	require.Len(t, single.VertexPositions, 1)
	assert.Len(t, single.VertexPositions[0], 4)

	var multi map[string][]map[string][]float64
	require.NoError(t, json.Unmarshal([]byte(route(t, router, `get_vertex_data_from_scene_objects ["Quad", "Missing"]`)), &multi))
	require.Contains(t, multi, "Quad")
	assert.Len(t, multi["Quad"][0], 6)

	_, err := router.Route([]byte("get_vertex_data_from_scene_object Missing"))
	assert.ErrorIs(t, err, scene.ErrObjectNotFound)
}

func TestMaterialCommands(t *testing.T) {
	s, router := newTestRouter(t)
	cube := s.Add(scene.NewCube("Cube", 1))

	route(t, router, "set_vertex_color 1,0,0")
	route(t, router, "set_roughness 0.8")
	route(t, router, "set_metallic True False")
	assert.JSONEq(t, `{"Cube": [[1, 0, 0, 1, 0.8, true, false]]}`, route(t, router, "get_vertex_colors Cube"))

	route(t, router, "set_texture_tiling True False")
	assert.JSONEq(t, `{"Cube": [[1, 0, 0, 1, 0.8, false, true]]}`, route(t, router, "get_vertex_colors Cube"))

	route(t, router, "set_uv_quadrant 0 -1")
	assert.InDelta(t, 0.5, cube.Faces[0].UV[0], 1e-9)
	assert.InDelta(t, -0.5, cube.Faces[0].UV[1], 1e-9)

	cube.Faces[0].Color = [4]float64{0, 1, 0, 1}
	route(t, router, "select_vertex_color Cube 0,255,0")
	assert.True(t, cube.Faces[0].Selected)
	assert.False(t, cube.Faces[1].Selected)
}

func TestMaterialCommandsNeedActiveMesh(t *testing.T) {
	s, router := newTestRouter(t)
	s.Add(scene.NewEmpty("Group"))

	_, err := router.Route([]byte("set_roughness 0.5"))
	assert.ErrorIs(t, err, ErrNoActiveObject)
}

func TestSceneCommands(t *testing.T) {
	s, router := newTestRouter(t)
	assert.Equal(t, "None", route(t, router, "get_scene_name"))

	_, err := router.Route([]byte("save_current_scene"))
	assert.ErrorIs(t, err, scene.ErrNoScenePath)

	path := filepath.Join(t.TempDir(), "office.scene")
	s.Add(scene.NewCube("Desk", 1))
	require.NoError(t, s.SaveAs(path))
	assert.Equal(t, "office.scene", route(t, router, "get_scene_name"))
	assert.Equal(t, "None", route(t, router, "save_current_scene"))

	other := scene.New()
	otherRouter := mustRouter(t, other)
	assert.Equal(t, "None", route(t, otherRouter, "open_scene "+path))
	assert.Equal(t, "office.scene", route(t, otherRouter, "get_scene_name"))
	_, ok := other.Object("Desk")
	assert.True(t, ok)
}

func mustRouter(t *testing.T, s *scene.Scene) *dispatch.Router {
	t.Helper()
	router, err := NewRouter(s, 0)
	require.NoError(t, err)
	return router
}

func TestCameraInfo(t *testing.T) {
	s, router := newTestRouter(t)
	s.Add(scene.NewCube("Visible", 1))
	behind := s.Add(scene.NewCube("Behind", 1))
	behind.Location = scene.Vec3{0, -50, 0}

	var info struct {
		Location []float64 `json:"camera_location"`
		FOV      float64   `json:"fov"`
		Objects  []string  `json:"objects_on_screen"`
	}
	require.NoError(t, json.Unmarshal([]byte(route(t, router, "get_camera_info")), &info))
	assert.Equal(t, []float64{0, -1000, 100}, info.Location)
	assert.Equal(t, 60.0, info.FOV)
	assert.Equal(t, []string{"Visible"}, info.Objects)

	assert.Equal(t, "['Visible']", route(t, router, "get_visible_static_mesh_actors"))
}

func TestSelectedAndVisible(t *testing.T) {
	s, router := newTestRouter(t)
	s.Add(scene.NewCube("Plain", 1)).Selected = true
	asset := s.Add(scene.NewAssetProxy("/assets/chair.fbx"))
	asset.Selected = true

	var out struct {
		SelectedNames []string         `json:"selected_names"`
		SelectedPaths map[string][]int `json:"selected_paths"`
		SceneName     string           `json:"scene_name"`
	}
	require.NoError(t, json.Unmarshal([]byte(route(t, router, "get_selected_and_visible_static_mesh_actors")), &out))
	assert.Equal(t, []string{"Plain", "chair"}, out.SelectedNames)
	assert.Equal(t, map[string][]int{"": {0}, "/assets/chair.fbx": {1}}, out.SelectedPaths)
	assert.Equal(t, "Scene", out.SceneName)
}

func TestSimulationCommands(t *testing.T) {
	s, router := newTestRouter(t)
	floor := s.Add(scene.NewCube("floor", 10))
	floor.Location = scene.Vec3{0, 0, -10}
	crate := s.Add(scene.NewCube("Crate", 1))
	crate.Location = scene.Vec3{0, 0, 2}

	route(t, router, "enable_simulation_on_objects Crate")
	route(t, router, "start_simulation")
	assert.InDelta(t, 0, crate.Location[2], 1e-9)
	assert.Equal(t, "None", route(t, router, "get_simulation_on_actors_by_name"))
	route(t, router, "end_simulation")
	assert.InDelta(t, 2, crate.Location[2], 1e-9)
	assert.Equal(t, scene.RigidBodyNone, crate.RigidBody)
}

func TestLearn(t *testing.T) {
	s, router := newTestRouter(t)
	s.Add(scene.NewCube("Keep", 1)).Selected = true
	s.Add(scene.NewCube("Skip", 1))
	s.Add(scene.NewCube("Gone__kill__", 1)).Selected = true

	out := filepath.Join(t.TempDir(), "learn dir", "data.json")
	assert.Equal(t, "None", route(t, router, "learn "+out+" True"))

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	var data learningData
	require.NoError(t, json.Unmarshal(raw, &data))
	require.Len(t, data.RawData, 1)
	assert.Equal(t, "Keep", data.RawData[0].RawName)
	assert.Equal(t, "no_parent", data.RawData[0].ParentName)
	assert.Len(t, data.RawData[0].Transform, 9)
	assert.Equal(t, "/", data.SceneID)
}

func TestLearnFile(t *testing.T) {
	s, router := newTestRouter(t)
	dir := t.TempDir()
	scenePath := filepath.Join(dir, "room.scene")
	s.Add(scene.NewCube("Bed", 1))
	require.NoError(t, s.SaveAs(scenePath))

	learnPath := filepath.Join(dir, "room.json")
	req, err := json.Marshal(map[string]any{
		"file_path":       scenePath,
		"learn_file_path": learnPath,
		"tags":            []string{"bedroom"},
		"project":         "demo",
	})
	require.NoError(t, err)

	assert.Equal(t, "true", route(t, router, "learn_file "+string(req)))

	raw, err := os.ReadFile(learnPath)
	require.NoError(t, err)
	var data learningData
	require.NoError(t, json.Unmarshal(raw, &data))
	assert.Equal(t, []string{"bedroom"}, data.ExtraTags)
	require.NotNil(t, data.Project)
	assert.Equal(t, "demo", *data.Project)
	assert.Equal(t, scenePath+"/", data.SceneID)
}

func TestUnsupportedCommands(t *testing.T) {
	_, router := newTestRouter(t)
	for _, name := range []string{"screenshot", "create_assets_from_selection", "start_dragging_asset"} {
		_, err := router.Route([]byte(name + " /tmp/x"))
		assert.ErrorIs(t, err, ErrUnsupported, name)
	}
}

func TestMiscCommands(t *testing.T) {
	s, router := newTestRouter(t)
	assert.Equal(t, "None", route(t, router, "toggle_surface_snapping"))
	assert.True(t, s.Snapping())
	assert.Equal(t, "None", route(t, router, "report_done"))
	assert.Equal(t, "None", route(t, router, "internal_server_error address already in use"))
}

func TestPyRepr(t *testing.T) {
	assert.Equal(t, "[]", pyList(nil))
	assert.Equal(t, `['a', 'b\\c']`, pyList([]string{"a", `b\c`}))
	assert.Equal(t, `['it\'s "x"']`, pyList([]string{`it's "x"`}))
}
