package simulator_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/fvdveen/townlife/internal/gridmap"
	"github.com/fvdveen/townlife/internal/simulator"
	"github.com/fvdveen/townlife/internal/worldstate"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func straightLineMap() *gridmap.World {
	m := gridmap.NewMap("town", 10, 10, "#000", "start")
	m.Nodes["start"] = &gridmap.Node{ID: "start", X: 0, Y: 0, Type: gridmap.NodeWaypoint, ConnectedTo: map[string]struct{}{"end": {}}}
	m.Nodes["end"] = &gridmap.Node{ID: "end", X: 100, Y: 0, Type: gridmap.NodeWaypoint, ConnectedTo: map[string]struct{}{"start": {}}}
	w := gridmap.NewWorld()
	w.Add(m)
	return w
}

func TestNavigateToNodeAlreadyThereReturnsTrueWithoutMoving(t *testing.T) {
	world := worldstate.New(testLogger())
	world.AddCharacter(&worldstate.Character{ID: "alice", CurrentMapID: "town", CurrentNodeID: "start"})
	sim := simulator.New(testLogger(), world, straightLineMap(), 0, simulator.Callbacks{})

	if !sim.NavigateToNode("alice", "start", nil) {
		t.Fatalf("expected navigating to the current node to return true immediately")
	}
	c, _ := world.Character("alice")
	if c.Navigation.IsMoving {
		t.Fatalf("expected no navigation to have started")
	}
}

func TestNavigateToNodeUnreachableReturnsFalse(t *testing.T) {
	world := worldstate.New(testLogger())
	world.AddCharacter(&worldstate.Character{ID: "alice", CurrentMapID: "town", CurrentNodeID: "start"})
	sim := simulator.New(testLogger(), world, straightLineMap(), 0, simulator.Callbacks{})

	if sim.NavigateToNode("alice", "nowhere", nil) {
		t.Fatalf("expected navigating to a nonexistent node to fail")
	}
}

func TestTickMovesCharacterAndCompletesOnArrival(t *testing.T) {
	world := worldstate.New(testLogger())
	world.AddCharacter(&worldstate.Character{ID: "alice", CurrentMapID: "town", CurrentNodeID: "start"})
	maps := straightLineMap()
	sim := simulator.New(testLogger(), world, maps, 120, simulator.Callbacks{})

	if !sim.NavigateToNode("alice", "end", nil) {
		t.Fatalf("expected navigation to start")
	}

	// At speed=120 over a 100-unit segment, one second covers the whole leg.
	sim.Tick(1.0, time.Now())

	c, _ := world.Character("alice")
	if c.Navigation.IsMoving {
		t.Fatalf("expected navigation to have completed, got %+v", c.Navigation)
	}
	if c.CurrentNodeID != "end" {
		t.Fatalf("expected alice to have arrived at end, got %q", c.CurrentNodeID)
	}
	if c.Position.X != 100 {
		t.Fatalf("expected alice's position to land on end, got %+v", c.Position)
	}
}

func TestTickPartialProgressDoesNotArrive(t *testing.T) {
	world := worldstate.New(testLogger())
	world.AddCharacter(&worldstate.Character{ID: "alice", CurrentMapID: "town", CurrentNodeID: "start"})
	maps := straightLineMap()
	sim := simulator.New(testLogger(), world, maps, 120, simulator.Callbacks{})

	if !sim.NavigateToNode("alice", "end", nil) {
		t.Fatalf("expected navigation to start")
	}

	sim.Tick(0.1, time.Now())

	c, _ := world.Character("alice")
	if !c.Navigation.IsMoving {
		t.Fatalf("expected navigation to still be in progress after a partial tick")
	}
	if c.Navigation.Progress <= 0 || c.Navigation.Progress >= 1 {
		t.Fatalf("expected progress strictly between 0 and 1, got %v", c.Navigation.Progress)
	}
}

func TestTickSkipsCharactersWithActiveActionOrConversation(t *testing.T) {
	world := worldstate.New(testLogger())
	world.AddCharacter(&worldstate.Character{
		ID: "alice", CurrentMapID: "town", CurrentNodeID: "start",
		CurrentAction: &worldstate.ActionState{ActionID: "eat"},
	})
	maps := straightLineMap()
	sim := simulator.New(testLogger(), world, maps, 120, simulator.Callbacks{})

	sim.Tick(1.0, time.Now())

	after, _ := world.Character("alice")
	if after.Navigation.IsMoving {
		t.Fatalf("expected a character with a current action to never be moved by Tick")
	}
}

func TestCrossMapTransitionTeleportsAndFiresCompletion(t *testing.T) {
	world := worldstate.New(testLogger())
	world.AddCharacter(&worldstate.Character{ID: "alice", CurrentMapID: "home", CurrentNodeID: "home_spawn"})

	home := gridmap.NewMap("home", 5, 5, "#000", "home_spawn")
	home.Nodes["home_spawn"] = &gridmap.Node{ID: "home_spawn", X: 0, Y: 0, Type: gridmap.NodeWaypoint, ConnectedTo: map[string]struct{}{"door": {}}}
	home.Nodes["door"] = &gridmap.Node{
		ID: "door", X: 1, Y: 0, Type: gridmap.NodeEntrance,
		ConnectedTo: map[string]struct{}{"home_spawn": {}},
		LeadsTo:     &gridmap.Leads{MapID: "town", NodeID: "town_gate"},
	}
	town := gridmap.NewMap("town", 5, 5, "#111", "town_gate")
	town.Nodes["town_gate"] = &gridmap.Node{ID: "town_gate", X: 0, Y: 0, Type: gridmap.NodeEntrance, ConnectedTo: map[string]struct{}{}}

	maps := gridmap.NewWorld()
	maps.Add(home)
	maps.Add(town)

	var completed string
	sim := simulator.New(testLogger(), world, maps, 120, simulator.Callbacks{
		OnNavigationComplete: func(characterID string) { completed = characterID },
	})

	if !sim.NavigateToNode("alice", "door", nil) {
		t.Fatalf("expected navigation to the door to start")
	}
	sim.Tick(1.0, time.Now())

	if _, transiting := world.Transition("alice"); !transiting {
		t.Fatalf("expected arriving at an entrance with LeadsTo to begin a transition")
	}

	// Drive the fadeOut -> teleport -> fadeIn -> idle FSM to completion; each
	// phase advances FadeSpeed(=2) progress/sec, so 1s covers each phase.
	for i := 0; i < 3; i++ {
		sim.Tick(1.0, time.Now())
	}

	if _, transiting := world.Transition("alice"); transiting {
		t.Fatalf("expected the transition to have ended")
	}
	after, _ := world.Character("alice")
	if after.CurrentMapID != "town" || after.CurrentNodeID != "town_gate" {
		t.Fatalf("expected alice to have teleported to town/town_gate, got map=%q node=%q", after.CurrentMapID, after.CurrentNodeID)
	}
	if completed != "alice" {
		t.Fatalf("expected OnNavigationComplete to fire for alice once the transition finished, got %q", completed)
	}
}
