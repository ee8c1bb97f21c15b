package gridmap_test

import (
	"testing"

	"github.com/fvdveen/townlife/internal/gridmap"
)

func makeTestMap() *gridmap.Map {
	m := gridmap.NewMap("town", 10, 10, "#222", "spawn")

	nodes := []struct {
		id   string
		x, y float64
		conn []string
	}{
		{"spawn", 0, 0, []string{"a"}},
		{"a", 1, 0, []string{"spawn", "b"}},
		{"b", 2, 0, []string{"a", "c"}},
		{"c", 3, 0, []string{"b"}},
	}
	for _, n := range nodes {
		node := &gridmap.Node{ID: n.id, X: n.x, Y: n.y, Type: gridmap.NodeWaypoint, ConnectedTo: map[string]struct{}{}}
		for _, c := range n.conn {
			node.ConnectedTo[c] = struct{}{}
		}
		m.Nodes[n.id] = node
	}
	return m
}

func TestPathfindSameNode(t *testing.T) {
	m := makeTestMap()
	path := m.Pathfind("spawn", "spawn", nil)
	if len(path) != 1 || path[0] != "spawn" {
		t.Fatalf("got %v, want [spawn]", path)
	}
}

func TestPathfindStraightLine(t *testing.T) {
	m := makeTestMap()
	path := m.Pathfind("spawn", "c", nil)
	expected := []string{"spawn", "a", "b", "c"}
	if len(path) != len(expected) {
		t.Fatalf("got %v, want %v", path, expected)
	}
	for i := range expected {
		if path[i] != expected[i] {
			t.Fatalf("got %v, want %v", path, expected)
		}
	}
}

func TestPathfindUnreachable(t *testing.T) {
	m := makeTestMap()
	m.Nodes["island"] = &gridmap.Node{ID: "island", X: 9, Y: 9, Type: gridmap.NodeWaypoint, ConnectedTo: map[string]struct{}{}}
	if path := m.Pathfind("spawn", "island", nil); path != nil {
		t.Fatalf("got %v, want nil", path)
	}
}

func TestPathfindBlockedNode(t *testing.T) {
	m := makeTestMap()
	blocked := map[string]struct{}{"b": {}}
	if path := m.Pathfind("spawn", "c", blocked); path != nil {
		t.Fatalf("got %v, want nil (b blocks the only route)", path)
	}
}

func TestPlanRouteCrossMap(t *testing.T) {
	w := gridmap.NewWorld()

	home := gridmap.NewMap("home", 5, 5, "#000", "home_spawn")
	home.Nodes["home_spawn"] = &gridmap.Node{ID: "home_spawn", X: 0, Y: 0, Type: gridmap.NodeWaypoint, ConnectedTo: map[string]struct{}{"door": {}}}
	home.Nodes["door"] = &gridmap.Node{
		ID: "door", X: 1, Y: 0, Type: gridmap.NodeEntrance,
		ConnectedTo: map[string]struct{}{"home_spawn": {}},
		LeadsTo:     &gridmap.Leads{MapID: "town", NodeID: "town_gate"},
	}

	town := gridmap.NewMap("town", 5, 5, "#111", "town_gate")
	town.Nodes["town_gate"] = &gridmap.Node{
		ID: "town_gate", X: 0, Y: 0, Type: gridmap.NodeEntrance,
		ConnectedTo: map[string]struct{}{"square": {}},
		LeadsTo:     &gridmap.Leads{MapID: "home", NodeID: "door"},
	}
	town.Nodes["square"] = &gridmap.Node{ID: "square", X: 1, Y: 0, Type: gridmap.NodeWaypoint, ConnectedTo: map[string]struct{}{"town_gate": {}}}

	w.Add(home)
	w.Add(town)

	segments := w.PlanRoute("home", "home_spawn", "town", "square")
	if segments == nil {
		t.Fatalf("expected a route, got nil")
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d: %+v", len(segments), segments)
	}
	if segments[0].MapID != "home" || segments[1].MapID != "town" {
		t.Fatalf("unexpected segment maps: %+v", segments)
	}
}

func TestFacilityAccessible(t *testing.T) {
	f := gridmap.Facility{ID: "cafe", Owner: "", Cost: nil}
	if !f.Accessible("anyone", 0) {
		t.Fatalf("unowned, free facility should be accessible")
	}

	cost := 10
	paid := gridmap.Facility{ID: "shop", Cost: &cost}
	if paid.Accessible("alice", 5) {
		t.Fatalf("alice with $5 should not afford a $10 facility")
	}
	if !paid.Accessible("alice", 10) {
		t.Fatalf("alice with $10 should afford a $10 facility")
	}

	owned := gridmap.Facility{ID: "house", Owner: "bob"}
	if owned.Accessible("alice", 1000) {
		t.Fatalf("alice should not access bob's owned facility")
	}
	if !owned.Accessible("bob", 0) {
		t.Fatalf("bob should access his own facility")
	}
}
