package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/codefionn/promethean-bridge/internal/consts"
	"github.com/codefionn/promethean-bridge/internal/scene"
)

// rawObject is the per-object record of a learning file
type rawObject struct {
	RawName      string     `json:"raw_name"`
	ParentName   string     `json:"parent_name"`
	IsGroup      bool       `json:"is_group"`
	Size         scene.Vec3 `json:"size"`
	Rotation     scene.Vec3 `json:"rotation"`
	Pivot        scene.Vec3 `json:"pivot"`
	PivotOffset  scene.Vec3 `json:"pivot_offset"`
	Transform    []float64  `json:"transform"`
	ArtAssetPath string     `json:"art_asset_path,omitempty"`
}

type learningData struct {
	RawData   []rawObject `json:"raw_data"`
	SceneID   string      `json:"scene_id"`
	ExtraTags []string    `json:"extra_tags,omitempty"`
	Project   *string     `json:"project,omitempty"`
}

func (c *Commands) rawData(fromSelection bool) []rawObject {
	objects := c.backend.Objects()
	if fromSelection {
		objects = c.backend.Selected()
	}

	var out []rawObject
	for _, o := range objects {
		if strings.Contains(o.Name, consts.KillSuffix) {
			continue
		}
		translation := c.vecOut(c.backend.WorldLocation(o))
		transform := make([]float64, 0, 9)
		transform = append(transform, translation[:]...)
		transform = append(transform, o.Rotation[:]...)
		transform = append(transform, o.Scale[:]...)

		out = append(out, rawObject{
			RawName:      o.Name,
			ParentName:   c.parentName(o),
			IsGroup:      o.Type == scene.TypeEmpty && c.hasChildren(o),
			Size:         c.vecOut(c.backend.Size(o)),
			Rotation:     o.Rotation,
			Pivot:        c.vecOut(c.backend.WorldPivot(o)),
			PivotOffset:  c.vecOut(o.LocalPivot()),
			Transform:    transform,
			ArtAssetPath: o.AssetPath,
		})
	}
	return out
}

func (c *Commands) hasChildren(o *scene.Object) bool {
	for _, other := range c.backend.Objects() {
		if other.Parent == o.Name {
			return true
		}
	}
	return false
}

// writeLearningData dumps the scene layout for Promethean's learning pipeline
func (c *Commands) writeLearningData(path string, fromSelection bool, tags []string, project *string) error {
	data := learningData{
		RawData:   c.rawData(fromSelection),
		SceneID:   c.backend.Path() + "/",
		ExtraTags: tags,
		Project:   project,
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode learning data: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create learning directory: %w", err)
		}
	}
	if err := os.WriteFile(path, encoded, 0644); err != nil {
		return fmt.Errorf("failed to write learning data: %w", err)
	}
	c.log.Info("Wrote learning data for %d objects to %s", len(data.RawData), path)
	return nil
}

// learn expects "<output path> <True|False>"; the flag limits the dump to the
// selection
func (c *Commands) learn(params string) (string, error) {
	idx := strings.LastIndex(params, " ")
	if idx <= 0 {
		return "", fmt.Errorf("%w: expected <path> <True|False>", ErrInvalidParams)
	}
	path, flag := params[:idx], params[idx+1:]
	if err := c.writeLearningData(path, parseBool(flag), nil, nil); err != nil {
		return "", err
	}
	return "", nil
}

func (c *Commands) learnFile(params string) (string, error) {
	var req struct {
		FilePath      string   `json:"file_path"`
		LearnFilePath string   `json:"learn_file_path"`
		Tags          []string `json:"tags"`
		LegacyTags    []string `json:"tagsg"`
		Project       *string  `json:"project"`
	}
	if err := decode(params, &req); err != nil {
		return "", err
	}
	if req.FilePath == "" || req.LearnFilePath == "" {
		return "", fmt.Errorf("%w: file_path and learn_file_path are required", ErrInvalidParams)
	}
	tags := req.Tags
	if len(tags) == 0 {
		tags = req.LegacyTags
	}

	if err := c.backend.Open(req.FilePath); err != nil {
		return "", err
	}
	if err := c.writeLearningData(req.LearnFilePath, false, tags, req.Project); err != nil {
		return "", err
	}
	return toJSON(true)
}
