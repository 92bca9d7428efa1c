package scene

// StaticNodeNames are always offered as passive colliders when present
var StaticNodeNames = []string{"floor", "terrain"}

type simulation struct {
	active  []string
	passive []string
	running bool
	rest    map[string]Vec3
}

func (sim *simulation) rename(oldName, newName string) {
	for i, n := range sim.active {
		if n == oldName {
			sim.active[i] = newName
		}
	}
	for i, n := range sim.passive {
		if n == oldName {
			sim.passive[i] = newName
		}
	}
	if loc, ok := sim.rest[oldName]; ok {
		delete(sim.rest, oldName)
		sim.rest[newName] = loc
	}
}

func (sim *simulation) remove(name string) {
	sim.active = without(sim.active, name)
	sim.passive = without(sim.passive, name)
	delete(sim.rest, name)
}

func without(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

// EnableSimulation makes the visible, on-screen objects among names active
// rigid bodies. The static nodes and every other mesh in view become passive
// colliders. The names of the active bodies are returned.
func (s *Scene) EnableSimulation(names []string) []string {
	s.clearRigidBodies()

	isActive := make(map[string]bool)
	for _, o := range s.ObjectsByName(names) {
		if o.Hidden || !s.BoundsInCamera(o) {
			continue
		}
		o.RigidBody = RigidBodyActive
		isActive[o.Name] = true
		s.sim.active = append(s.sim.active, o.Name)
	}

	var passive []*Object
	for _, name := range StaticNodeNames {
		if o, ok := s.objects[name]; ok {
			passive = append(passive, o)
		}
	}
	passive = append(passive, s.InCamera()...)
	for _, o := range passive {
		if isActive[o.Name] || o.RigidBody == RigidBodyPassive {
			continue
		}
		o.RigidBody = RigidBodyPassive
		s.sim.passive = append(s.sim.passive, o.Name)
	}

	s.log.Info("Simulation enabled: %d active, %d passive", len(s.sim.active), len(s.sim.passive))
	return append([]string(nil), s.sim.active...)
}

// StartSimulation drops every active body straight down until it rests on a
// passive collider. Without a collider below, a body stays where it is.
// Rest positions are remembered so the run can be cancelled.
func (s *Scene) StartSimulation() {
	if s.sim.running {
		s.restoreRest()
	}
	s.sim.rest = make(map[string]Vec3, len(s.sim.active))
	s.sim.running = true

	ignore := make(map[string]bool)
	for _, o := range s.Objects() {
		if o.RigidBody != RigidBodyPassive {
			ignore[o.Name] = true
		}
	}

	for _, o := range s.ObjectsByName(s.sim.active) {
		s.sim.rest[o.Name] = o.Location
		lo, _ := s.WorldBounds(o)
		pivot := s.WorldPivot(o)
		start := Vec3{pivot[0], pivot[1], lo[2]}
		hit, ok := s.RayCast(start, Vec3{0, 0, -1}, 0, ignore)
		if !ok {
			continue
		}
		drop := lo[2] - hit.Location[2]
		s.SetWorldLocation(o, s.WorldLocation(o).Sub(Vec3{0, 0, drop}))
	}
}

// SimulationRunning reports whether a simulation run is in progress
func (s *Scene) SimulationRunning() bool {
	return s.sim.running
}

// SimulatedObjects returns the names of the active rigid bodies
func (s *Scene) SimulatedObjects() []string {
	return append([]string(nil), s.sim.active...)
}

// CancelSimulation stops the run, moves active bodies back to where they
// started and removes all rigid body roles
func (s *Scene) CancelSimulation() {
	if s.sim.running {
		s.restoreRest()
	}
	s.clearRigidBodies()
}

func (s *Scene) restoreRest() {
	for name, loc := range s.sim.rest {
		if o, ok := s.objects[name]; ok {
			o.Location = loc
		}
	}
	s.sim.rest = nil
	s.sim.running = false
}

func (s *Scene) clearRigidBodies() {
	for _, o := range s.objects {
		o.RigidBody = RigidBodyNone
	}
	s.sim = simulation{}
}
