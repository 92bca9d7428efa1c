package commands

import (
	"fmt"
	"math"
	"strings"

	"github.com/codefionn/promethean-bridge/internal/consts"
	"github.com/codefionn/promethean-bridge/internal/scene"
)

func (c *Commands) getSceneName(string) (string, error) {
	name := c.backend.Name()
	if name == "" {
		return consts.ResponseNone, nil
	}
	return name, nil
}

func (c *Commands) saveCurrentScene(string) (string, error) {
	if err := c.backend.Save(); err != nil {
		return "", fmt.Errorf("failed to save scene: %w", err)
	}
	return "", nil
}

func (c *Commands) openScene(params string) (string, error) {
	path := strings.TrimSpace(params)
	if path == "" {
		return "", fmt.Errorf("%w: missing scene path", ErrInvalidParams)
	}
	if err := c.backend.Open(path); err != nil {
		return "", err
	}
	return "", nil
}

func (c *Commands) toggleSurfaceSnapping(string) (string, error) {
	c.log.Info("Surface snapping: %v", c.backend.ToggleSnapping())
	return "", nil
}

func (c *Commands) getCameraInfo(string) (string, error) {
	cam := c.backend.Camera()
	direction := make([]float64, 3)
	for i, deg := range cam.Rotation {
		direction[i] = deg * math.Pi / 180
	}
	return toJSON(map[string]any{
		"camera_location":   c.vecOut(cam.Location),
		"camera_direction":  direction,
		"fov":               cam.FOV,
		"objects_on_screen": names(c.backend.InCamera()),
	})
}

func (c *Commands) reportDone(string) (string, error) {
	c.log.Info("Promethean reported done")
	return "", nil
}

func (c *Commands) internalServerError(params string) (string, error) {
	c.log.Error("Internal server error: %s", params)
	return "", nil
}

// raytrace casts from each object's pivot along a direction. The object
// itself is ignored. Misses report the origin.
func (c *Commands) raytrace(params string) (string, error) {
	return c.castFromObjects(params, false)
}

// raytraceBidirectional also casts against the direction and keeps the
// nearer hit
func (c *Commands) raytraceBidirectional(params string) (string, error) {
	return c.castFromObjects(params, true)
}

func (c *Commands) castFromObjects(params string, bidirectional bool) (string, error) {
	var direction scene.Vec3
	var distance float64
	var objectNames []string
	if err := decodeArgs(params, &direction, &distance, &objectNames); err != nil {
		return "", err
	}
	maxDist := c.convertIn(distance)

	result := make(map[string]scene.Vec3, len(objectNames))
	for _, name := range objectNames {
		o, ok := c.backend.Object(name)
		if !ok {
			continue
		}
		origin := c.backend.WorldPivot(o)
		ignore := map[string]bool{o.Name: true}

		hit, found := c.backend.RayCast(origin, direction, maxDist, ignore)
		if bidirectional {
			if back, ok := c.backend.RayCast(origin, direction.Scale(-1), maxDist, ignore); ok {
				if !found || back.Distance < hit.Distance {
					hit, found = back, true
				}
			}
		}

		if found {
			result[name] = c.vecOut(hit.Location)
		} else {
			result[name] = scene.Vec3{}
		}
	}
	return toJSON(result)
}
