// Package worldstate is the single authoritative, in-process coordinator of
// every character and NPC record (spec.md S4.1, component C1). Every
// mutation goes through WorldState's API so its invariants hold atomically;
// it is the sole mutator, driven by the engine's single-threaded tick loop
// (spec.md S5).
package worldstate

import (
	"encoding/json"
	"errors"

	"github.com/fvdveen/townlife/internal/worldtime"
)

var (
	ErrCharacterNotFound = errors.New("worldstate: character not found")
	ErrNPCNotFound       = errors.New("worldstate: npc not found")
	ErrAlreadyMoving     = errors.New("worldstate: character already moving")
	ErrNotMoving         = errors.New("worldstate: character not moving")
	ErrAlreadyTransiting = errors.New("worldstate: character already mid-transition")
)

// Direction is one of the four cardinal facings a character can have.
type Direction string

const (
	DirUp    Direction = "up"
	DirDown  Direction = "down"
	DirLeft  Direction = "left"
	DirRight Direction = "right"
)

// Position is a floating-point location in map pixels.
type Position struct {
	X, Y float64
}

// NavigationState tracks in-map movement. Invariant: IsMoving implies
// len(Path) >= 2 and 0 <= Progress <= 1 (spec.md S8 invariant 1).
type NavigationState struct {
	IsMoving        bool
	Path            []string
	CurrentPathIdx  int
	Progress        float64
	StartPosition   Position
	TargetPosition  Position
}

// RouteSegment mirrors gridmap.RouteSegment without importing gridmap, so
// worldstate has no dependency on the map-loading package.
type RouteSegment struct {
	MapID          string
	Path           []string
	ExitEntranceID string
}

// CrossMapNav tracks a multi-map journey in progress.
type CrossMapNav struct {
	IsActive           bool
	TargetMapID        string
	TargetNodeID       string
	Route              []RouteSegment
	CurrentSegmentIdx  int
}

// ActionState describes the single action a character may currently be
// performing. Invariant: at most one non-nil ActionState per character, and
// its presence implies NavigationState.IsMoving is false and the character's
// conversation is not active (spec.md S8 invariant 2).
type ActionState struct {
	ActionID         string
	StartTime        int64 // unix millis
	TargetEndTime    int64 // unix millis
	FacilityID       string
	TargetNPCID      string
	DurationMinutes  int
	Reason           string
}

// ConversationRef is the minimal handle WorldState keeps on a character's
// conversation — the session contents themselves live in the conversation
// package; WorldState only needs to know whether one is active, to enforce
// invariant 2 and to fill the snapshot's Conversation field.
type ConversationRef struct {
	Active bool
	NPCID  string
}

// Employment ties a character to a job at a facility.
type Employment struct {
	JobID string
}

// Profile holds the optional LLM-steering fields for a character.
type Profile struct {
	Personality  string
	Tendencies   []string
	CustomPrompt string
}

// Character is the full in-memory record for one simulated person. Fields
// are split between persisted (survive restart) and runtime-only (re-
// initialized on load, per spec.md S3/S7/S9).
type Character struct {
	// Persisted fields.
	ID            string
	Name          string
	Sprite        json.RawMessage
	Money         float64
	Satiety       float64
	Energy        float64
	Hygiene       float64
	Mood          float64
	Bladder       float64
	CurrentMapID  string
	CurrentNodeID string
	Position      Position
	Direction     Direction
	Employment    *Employment
	Profile       *Profile

	// Runtime-only fields, re-initialized on load.
	Navigation        NavigationState
	CrossMapNav       CrossMapNav
	Conversation      ConversationRef
	CurrentAction     *ActionState
	PendingAction     *ActionState
	ActionCounter     uint64
	DisplayEmoji      string
}

// Stat returns one of the five decaying status bars by name (0 for an
// unknown name), for the decay subsystem to read generically.
func (c *Character) Stat(name string) float64 {
	switch name {
	case "satiety":
		return c.Satiety
	case "energy":
		return c.Energy
	case "hygiene":
		return c.Hygiene
	case "mood":
		return c.Mood
	case "bladder":
		return c.Bladder
	}
	return 0
}

func (c *Character) SetStat(name string, v float64) {
	switch name {
	case "satiety":
		c.Satiety = v
	case "energy":
		c.Energy = v
	case "hygiene":
		c.Hygiene = v
	case "mood":
		c.Mood = v
	case "bladder":
		c.Bladder = v
	}
}

// StatNames enumerates the five decaying stats in their spec.md S4.5
// interrupt-priority order: bladder > satiety > energy > hygiene. Mood is
// last because it never maps to a forced action.
var StatNames = []string{"bladder", "satiety", "energy", "hygiene", "mood"}

// NPCMood is one of the five moods an NPC's dynamic state can hold.
type NPCMood string

const (
	MoodHappy   NPCMood = "happy"
	MoodNeutral NPCMood = "neutral"
	MoodSad     NPCMood = "sad"
	MoodAngry   NPCMood = "angry"
	MoodExcited NPCMood = "excited"
)

// NPC is the dynamic part of a non-player character's state; its static
// profile (name, sprite, home map) lives in config.
type NPC struct {
	ID               string
	MapID            string
	NodeID           string
	Position         Position
	Direction        Direction
	Affinity         float64
	Mood             NPCMood
	Facts            []string
	ConversationCt   int
	LastConversation int64 // unix millis, 0 if never
	IsInConversation bool  // runtime-only
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampStat(v float64) float64   { return clamp(v, 0, 100) }
func clampAffinity(v float64) float64 { return clamp(v, -100, 100) }

// Time is re-exported for convenience so callers of WorldState don't also
// need to import worldtime directly.
type Time = worldtime.WorldTime
