package hostsim

import (
	"fmt"

	"github.com/golang/geo/r3"

	"prism/client/internal/lod"
	"prism/client/internal/telemetry"
)

// MeshSpec describes a synthetic mesh.
type MeshSpec struct {
	ID       string
	Position r3.Vector
	Vertices int
	Indices  int
	Bones    int
	Textures int
	// Cloneable meshes can host LOD proxies. Skinned or procedural meshes
	// in a real scene usually cannot.
	Cloneable bool
}

// Mesh is a scene object. Proxies created by Clone are Meshes too.
type Mesh struct {
	scene   *Scene
	spec    MeshSpec
	visible bool
	scale   float64
	proxy   bool
}

// ID implements lod.Object.
func (m *Mesh) ID() string { return m.spec.ID }

// Position implements lod.Object.
func (m *Mesh) Position() r3.Vector { return m.spec.Position }

// SetVisible implements lod.Object and lod.Proxy.
func (m *Mesh) SetVisible(visible bool) { m.visible = visible }

// Visible reports whether the mesh is drawn.
func (m *Mesh) Visible() bool { return m.visible }

// SetScale implements lod.ScalableProxy.
func (m *Mesh) SetScale(factor float64) { m.scale = factor }

// Scale reports the uniform scale.
func (m *Mesh) Scale() float64 { return m.scale }

// Dispose removes the mesh from its scene.
func (m *Mesh) Dispose() {
	if m.scene != nil {
		m.scene.remove(m.spec.ID)
	}
}

// Vertices reports the drawn vertex count. The synthetic host treats a
// proxy's scale as its detail fraction.
func (m *Mesh) Vertices() int {
	if m.proxy {
		return int(float64(m.spec.Vertices) * m.scale)
	}
	return m.spec.Vertices
}

func (m *Mesh) indices() int {
	if m.proxy {
		return int(float64(m.spec.Indices) * m.scale)
	}
	return m.spec.Indices
}

// CloneableMesh is a Mesh that implements lod.Cloner.
type CloneableMesh struct {
	*Mesh
}

// Clone adds a hidden copy of the mesh to the scene.
func (m CloneableMesh) Clone(name string) (lod.ScalableProxy, error) {
	if m.scene == nil {
		return nil, fmt.Errorf("mesh %s is not in a scene", m.spec.ID)
	}
	spec := m.spec
	spec.ID = m.scene.uniqueID(name)
	spec.Cloneable = false
	clone := &Mesh{scene: m.scene, spec: spec, scale: 1, proxy: true}
	m.scene.insert(clone)
	return clone, nil
}

// Scene holds every mesh of the synthetic world in insertion order. It is
// driven from the scheduler's thread only.
type Scene struct {
	meshes map[string]*Mesh
	order  []string
}

// NewScene constructs an empty scene.
func NewScene() *Scene {
	return &Scene{meshes: make(map[string]*Mesh)}
}

// Add inserts a visible mesh and returns it as an lod.Object whose dynamic
// type reflects spec.Cloneable.
func (s *Scene) Add(spec MeshSpec) lod.Object {
	mesh := &Mesh{scene: s, spec: spec, visible: true, scale: 1}
	s.insert(mesh)
	if spec.Cloneable {
		return CloneableMesh{Mesh: mesh}
	}
	return mesh
}

// Remove deletes a mesh by id.
func (s *Scene) Remove(id string) {
	s.remove(id)
}

// Get returns a mesh by id.
func (s *Scene) Get(id string) (*Mesh, bool) {
	mesh, ok := s.meshes[id]
	return mesh, ok
}

// Len reports the number of meshes, proxies included.
func (s *Scene) Len() int {
	return len(s.order)
}

// Objects implements telemetry.Scene.
func (s *Scene) Objects() []telemetry.SceneObject {
	objects := make([]telemetry.SceneObject, 0, len(s.order))
	for _, id := range s.order {
		mesh := s.meshes[id]
		objects = append(objects, telemetry.SceneObject{
			ID:       id,
			Visible:  mesh.visible,
			Vertices: mesh.Vertices(),
			Indices:  mesh.indices(),
			Bones:    mesh.spec.Bones,
			Textures: mesh.spec.Textures,
		})
	}
	return objects
}

// VisibleLoad reports the visible mesh count and vertex total.
func (s *Scene) VisibleLoad() (meshes, vertices int) {
	for _, id := range s.order {
		mesh := s.meshes[id]
		if !mesh.visible {
			continue
		}
		meshes++
		vertices += mesh.Vertices()
	}
	return meshes, vertices
}

// ForEachVisible calls fn for every visible mesh in insertion order.
func (s *Scene) ForEachVisible(fn func(id string, position r3.Vector, scale float64)) {
	for _, id := range s.order {
		mesh := s.meshes[id]
		if mesh.visible {
			fn(id, mesh.spec.Position, mesh.scale)
		}
	}
}

// TotalVertices sums the vertices of every mesh, hidden ones included.
func (s *Scene) TotalVertices() int {
	total := 0
	for _, id := range s.order {
		total += s.meshes[id].Vertices()
	}
	return total
}

func (s *Scene) insert(mesh *Mesh) {
	if _, exists := s.meshes[mesh.spec.ID]; !exists {
		s.order = append(s.order, mesh.spec.ID)
	}
	s.meshes[mesh.spec.ID] = mesh
}

func (s *Scene) uniqueID(name string) string {
	id := name
	for n := 2; ; n++ {
		if _, taken := s.meshes[id]; !taken {
			return id
		}
		id = fmt.Sprintf("%s#%d", name, n)
	}
}

func (s *Scene) remove(id string) {
	if _, ok := s.meshes[id]; !ok {
		return
	}
	delete(s.meshes, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
