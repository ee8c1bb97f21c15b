// Package gridmap holds the static, immutable-after-boot map data: nodes,
// obstacles and facilities, plus the pathfinding and cross-map routing that
// operate over them. Maps are loaded once at boot and shared read-only by
// every other component (spec.md S3/S4.2).
package gridmap

import "fmt"

// NodeType distinguishes the three kinds of navigation-graph vertex.
type NodeType string

const (
	NodeWaypoint NodeType = "waypoint"
	NodeSpawn    NodeType = "spawn"
	NodeEntrance NodeType = "entrance"
)

// Leads describes the symmetric cross-map link an entrance node carries.
type Leads struct {
	MapID  string
	NodeID string
}

// Node is a vertex in a map's navigation graph, referenced by other nodes
// only through its string ID — never a direct pointer — so the graph stays
// serializable and free of reference cycles (spec.md S9).
type Node struct {
	ID            string
	X, Y          float64
	Type          NodeType
	ConnectedTo   map[string]struct{}
	LeadsTo       *Leads
	Label         string
}

// ObstacleType distinguishes a building (blocks pathing outright) from a
// zone (wraps a sub-region, optionally with walled sides and a single door).
type ObstacleType string

const (
	ObstacleBuilding ObstacleType = "building"
	ObstacleZone     ObstacleType = "zone"
)

// TileBounds is an axis-aligned tile-space rectangle.
type TileBounds struct {
	MinX, MinY, MaxX, MaxY int
}

func (b TileBounds) Contains(x, y int) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// Door marks the single opening in a walled zone side.
type Door struct {
	Side string // "north", "south", "east", "west"
	At   int    // offset along that side where the opening sits
}

// Obstacle is a building or zone overlaid on the node grid.
type Obstacle struct {
	Type       ObstacleType
	Bounds     TileBounds
	WallSides  map[string]struct{} // zone only
	Door       *Door               // zone only, at most one opening per side
	FacilityID string              // optional facility bound to this obstacle
}

// Job describes employment tied to a facility.
type Job struct {
	JobID      string
	Title      string
	HourlyWage float64
	WorkStart  int // hour, 0-23
	WorkEnd    int // hour, 0-24, exclusive; WorkStart > WorkEnd means an overnight shift
}

// Facility is a tagged region that enables certain actions, optionally owned
// or metered by cost, optionally carrying a Job.
type Facility struct {
	ID    string
	Tags  map[string]struct{}
	Owner string // characterId, empty if unowned
	Cost  *int
	Job   *Job
}

// HasTag reports whether the facility carries the given action tag.
func (f Facility) HasTag(tag string) bool {
	_, ok := f.Tags[tag]
	return ok
}

// Accessible reports whether characterID may use this facility given its
// current money, per spec.md S4.4 admission rule 3.
func (f Facility) Accessible(characterID string, money float64) bool {
	if f.Owner != "" && f.Owner != characterID {
		return false
	}
	if f.Cost != nil && money < float64(*f.Cost) {
		return false
	}
	return true
}

// Map is one grid-of-rooms map: its nodes, obstacles and facilities.
type Map struct {
	ID              string
	Width, Height   int
	BackgroundColor string
	SpawnNodeID     string

	Nodes      map[string]*Node
	Obstacles  []Obstacle
	Facilities map[string]*Facility
}

// NewMap constructs an empty map shell; nodes/obstacles/facilities are
// populated by the config loader.
func NewMap(id string, width, height int, bg, spawnNodeID string) *Map {
	return &Map{
		ID:              id,
		Width:           width,
		Height:          height,
		BackgroundColor: bg,
		SpawnNodeID:     spawnNodeID,
		Nodes:           make(map[string]*Node),
		Facilities:      make(map[string]*Facility),
	}
}

// Node looks up a node by ID, returning (nil, false) if absent.
func (m *Map) Node(id string) (*Node, bool) {
	n, ok := m.Nodes[id]
	return n, ok
}

// FacilitiesWithTag returns every facility on this map carrying the tag.
func (m *Map) FacilitiesWithTag(tag string) []*Facility {
	var out []*Facility
	for _, f := range m.Facilities {
		if f.HasTag(tag) {
			out = append(out, f)
		}
	}
	return out
}

// FacilityAt returns the facility (if any) enclosing the given node, by
// membership of the node's position within the facility's bound obstacle.
func (m *Map) FacilityAt(nodeID string) (*Facility, bool) {
	n, ok := m.Node(nodeID)
	if !ok {
		return nil, false
	}
	for _, ob := range m.Obstacles {
		if ob.FacilityID == "" {
			continue
		}
		if ob.Bounds.Contains(int(n.X), int(n.Y)) {
			if f, ok := m.Facilities[ob.FacilityID]; ok {
				return f, true
			}
		}
	}
	return nil, false
}

func (m *Map) String() string {
	return fmt.Sprintf("Map(%s, %dx%d, nodes=%d)", m.ID, m.Width, m.Height, len(m.Nodes))
}
