package action_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/fvdveen/townlife/internal/action"
	"github.com/fvdveen/townlife/internal/gridmap"
	"github.com/fvdveen/townlife/internal/worldstate"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupWorld(t *testing.T) (*worldstate.WorldState, *gridmap.World) {
	t.Helper()
	world := worldstate.New(testLogger())
	world.AddCharacter(&worldstate.Character{
		ID: "alice", CurrentMapID: "town", CurrentNodeID: "n1",
		Satiety: 50, Energy: 50, Hygiene: 50, Mood: 50, Bladder: 50, Money: 20,
	})

	m := gridmap.NewMap("town", 10, 10, "#000", "n1")
	m.Nodes["n1"] = &gridmap.Node{ID: "n1", X: 0, Y: 0, Type: gridmap.NodeWaypoint, ConnectedTo: map[string]struct{}{}}
	cafeCost := 5
	m.Facilities["cafe"] = &gridmap.Facility{ID: "cafe", Cost: &cafeCost, Tags: map[string]struct{}{"food": {}}}
	m.Obstacles = append(m.Obstacles, gridmap.Obstacle{
		Type: gridmap.ObstacleZone, Bounds: gridmap.TileBounds{MinX: 0, MinY: 0, MaxX: 0, MaxY: 0}, FacilityID: "cafe",
	})

	maps := gridmap.NewWorld()
	maps.Add(m)

	return world, maps
}

func TestStartActionDeniedWithoutAccessibleFacility(t *testing.T) {
	world, maps := setupWorld(t)
	exec := action.New(testLogger(), world, maps, action.DefaultConfigs(), action.Callbacks{})

	ok, reason := exec.StartAction("alice", "sleep", "", "", 0, "tired", action.StartOptions{})
	if ok {
		t.Fatalf("expected sleep to be denied: no bed facility on map")
	}
	if reason == "" {
		t.Fatalf("expected a denial reason")
	}
}

func TestStartActionChargesFacilityCostAndSetsAction(t *testing.T) {
	world, maps := setupWorld(t)
	exec := action.New(testLogger(), world, maps, action.DefaultConfigs(), action.Callbacks{})

	ok, reason := exec.StartAction("alice", "eat", "cafe", "", 10, "hungry", action.StartOptions{})
	if !ok {
		t.Fatalf("expected eat to succeed, got reason %q", reason)
	}

	c, _ := world.Character("alice")
	if c.Money != 15 {
		t.Fatalf("expected money to drop to 15 after a $5 facility cost, got %v", c.Money)
	}
	if c.CurrentAction == nil || c.CurrentAction.ActionID != "eat" {
		t.Fatalf("expected an active eat action, got %+v", c.CurrentAction)
	}
}

func TestCompleteActionAppliesFixedEffectsAndFiresCallbacks(t *testing.T) {
	world, maps := setupWorld(t)

	var recorded *action.HistoryEntry
	var completedID string
	exec := action.New(testLogger(), world, maps, action.DefaultConfigs(), action.Callbacks{
		OnRecordHistory: func(e action.HistoryEntry) { recorded = &e },
		OnActionComplete: func(characterID, actionID string) {
			completedID = characterID
		},
	})

	m, _ := maps.Map("town")
	m.Facilities["restroom"] = &gridmap.Facility{ID: "restroom", Tags: map[string]struct{}{"toilet": {}}}

	ok, reason := exec.StartAction("alice", "toilet", "restroom", "", 0, "nature calls", action.StartOptions{})
	if !ok {
		t.Fatalf("expected toilet to start, got reason %q", reason)
	}

	exec.CompleteAction("alice")

	c, _ := world.Character("alice")
	if c.Bladder != 100 {
		t.Fatalf("expected bladder to be restored to 100, got %v", c.Bladder)
	}
	if c.CurrentAction != nil {
		t.Fatalf("expected current action to be cleared after completion")
	}
	if recorded == nil || recorded.ActionID != "toilet" {
		t.Fatalf("expected a recorded history entry for toilet, got %+v", recorded)
	}
	if completedID != "alice" {
		t.Fatalf("expected OnActionComplete to fire for alice, got %q", completedID)
	}
}

func TestTickNeverCompletesThinkingOrTalk(t *testing.T) {
	world, maps := setupWorld(t)
	exec := action.New(testLogger(), world, maps, action.DefaultConfigs(), action.Callbacks{})

	ok, _ := exec.StartAction("alice", action.ActionThinking, "", "", 0, "deciding", action.StartOptions{})
	if !ok {
		t.Fatalf("expected thinking to start")
	}

	exec.Tick(time.Now().Add(24 * time.Hour))

	c, _ := world.Character("alice")
	if c.CurrentAction == nil {
		t.Fatalf("expected thinking to still be active; it must never auto-complete")
	}
}

func TestWageAccrualOnWorkCompletion(t *testing.T) {
	world, maps := setupWorld(t)
	c, _ := world.Character("alice")
	c.Employment = &worldstate.Employment{JobID: "barista"}

	m, _ := maps.Map("town")
	m.Facilities["cafe"].Job = &gridmap.Job{JobID: "barista", Title: "Barista", HourlyWage: 10, WorkStart: 0, WorkEnd: 24}

	exec := action.New(testLogger(), world, maps, action.DefaultConfigs(), action.Callbacks{})

	ok, reason := exec.StartAction("alice", "work", "", "", 60, "shift", action.StartOptions{})
	if !ok {
		t.Fatalf("expected work to start, got reason %q", reason)
	}

	beforeMoney := c.Money
	exec.CompleteAction("alice")

	if c.Money != beforeMoney+10 {
		t.Fatalf("expected a $10 wage for 60 minutes at $10/hr, got balance %v (was %v)", c.Money, beforeMoney)
	}
}
