package scene

import "math"

// WorldBounds returns the axis-aligned world bounds of the object.
// Rotation is not applied to the bounds.
func (s *Scene) WorldBounds(o *Object) (Vec3, Vec3) {
	origin := s.WorldLocation(o)
	a := origin.Add(o.BoundsMin.Mul(o.Scale))
	b := origin.Add(o.BoundsMax.Mul(o.Scale))
	lo := Vec3{math.Min(a[0], b[0]), math.Min(a[1], b[1]), math.Min(a[2], b[2])}
	hi := Vec3{math.Max(a[0], b[0]), math.Max(a[1], b[1]), math.Max(a[2], b[2])}
	return lo, hi
}

// Size returns the world-space extent of the object
func (s *Scene) Size(o *Object) Vec3 {
	lo, hi := s.WorldBounds(o)
	return hi.Sub(lo)
}

// WorldPivot returns the bottom-centre pivot in world space
func (s *Scene) WorldPivot(o *Object) Vec3 {
	return s.WorldLocation(o).Add(o.LocalPivot().Mul(o.Scale))
}

// WorldCorners returns the eight world-space corners of the object bounds
func (s *Scene) WorldCorners(o *Object) [8]Vec3 {
	origin := s.WorldLocation(o)
	corners := o.Corners()
	for i, c := range corners {
		corners[i] = origin.Add(c.Mul(o.Scale))
	}
	return corners
}

// Hit describes a ray intersection
type Hit struct {
	Object   *Object
	Location Vec3
	Normal   Vec3
	Distance float64
}

// RayCast intersects a ray with the bounds of all visible meshes except the
// ignored ones and returns the closest hit within maxDist. A maxDist <= 0
// means unlimited.
func (s *Scene) RayCast(origin, direction Vec3, maxDist float64, ignore map[string]bool) (Hit, bool) {
	dir := direction.Normalize()
	if dir == (Vec3{}) {
		return Hit{}, false
	}
	if maxDist <= 0 {
		maxDist = math.Inf(1)
	}

	var best Hit
	found := false
	for _, o := range s.VisibleMeshes() {
		if ignore[o.Name] {
			continue
		}
		lo, hi := s.WorldBounds(o)
		t, normal, ok := intersectBox(origin, dir, lo, hi)
		if !ok || t > maxDist {
			continue
		}
		if !found || t < best.Distance {
			best = Hit{Object: o, Location: origin.Add(dir.Scale(t)), Normal: normal, Distance: t}
			found = true
		}
	}
	return best, found
}

// intersectBox is the slab test. Rays starting inside a box report the exit
// face so an object never hits itself at distance zero.
func intersectBox(origin, dir, lo, hi Vec3) (float64, Vec3, bool) {
	tNear, tFar := math.Inf(-1), math.Inf(1)
	nearAxis, farAxis := -1, -1
	var nearSign, farSign float64

	for i := 0; i < 3; i++ {
		if dir[i] == 0 {
			if origin[i] < lo[i] || origin[i] > hi[i] {
				return 0, Vec3{}, false
			}
			continue
		}
		t1 := (lo[i] - origin[i]) / dir[i]
		t2 := (hi[i] - origin[i]) / dir[i]
		// sign of the face normal at entry
		sign := -1.0
		if t1 > t2 {
			t1, t2 = t2, t1
			sign = 1.0
		}
		if t1 > tNear {
			tNear, nearAxis, nearSign = t1, i, sign
		}
		if t2 < tFar {
			tFar, farAxis, farSign = t2, i, -sign
		}
		if tNear > tFar || tFar < 0 {
			return 0, Vec3{}, false
		}
	}

	if tNear >= 0 && nearAxis >= 0 {
		var n Vec3
		n[nearAxis] = nearSign
		return tNear, n, true
	}
	if farAxis >= 0 {
		var n Vec3
		n[farAxis] = farSign
		return tFar, n, true
	}
	return 0, Vec3{}, false
}

// PointVisible reports whether a world point lies inside the camera view cone
func (s *Scene) PointVisible(p Vec3) bool {
	c := s.camera
	to := p.Sub(c.Location)
	dist := to.Len()
	if dist == 0 {
		return false
	}
	if c.ClipEnd > 0 && dist > c.ClipEnd {
		return false
	}
	cos := to.Scale(1 / dist).Dot(Forward(c.Rotation).Normalize())
	return cos >= math.Cos(radians(c.FOV/2))
}

// InCamera returns visible meshes whose origin lies inside the view
func (s *Scene) InCamera() []*Object {
	return s.Filter(func(o *Object) bool {
		return o.IsMesh() && !o.Hidden && s.PointVisible(s.WorldLocation(o))
	})
}

// BoundsInCamera reports whether any corner of the object bounds is in view
func (s *Scene) BoundsInCamera(o *Object) bool {
	for _, corner := range s.WorldCorners(o) {
		if s.PointVisible(corner) {
			return true
		}
	}
	return false
}
