package worldstate

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// WorldState is the single in-process coordinator described by spec.md S4.1.
// Every method is synchronous; the engine's single-threaded tick loop is its
// only caller (spec.md S5) so no internal locking is required.
type WorldState struct {
	log *slog.Logger

	characters map[string]*Character
	npcs       map[string]*NPC

	currentMapID string
	time         Time
	paused       bool
	tick         uint64

	transition transitionState
}

// transitionState tracks the single in-flight map-transition FSM per
// character (spec.md S4.3); kept here rather than on Character so the
// simulator can own its phase machinery without reaching into persisted
// fields.
type transitionState struct {
	active map[string]*Transition
}

// TransitionPhase is a step of the fadeOut -> teleport -> fadeIn -> idle FSM.
type TransitionPhase string

const (
	PhaseFadeOut TransitionPhase = "fadeOut"
	PhaseTeleport TransitionPhase = "teleport"
	PhaseFadeIn  TransitionPhase = "fadeIn"
	PhaseIdle    TransitionPhase = "idle"
)

// Transition is the per-character state of an in-progress map change.
type Transition struct {
	Phase      TransitionPhase
	Progress   float64 // 0..1 within the current phase
	FromMapID  string
	ToMapID    string
	ToNodeID   string
}

func New(log *slog.Logger) *WorldState {
	return &WorldState{
		log:        log,
		characters: make(map[string]*Character),
		npcs:       make(map[string]*NPC),
		transition: transitionState{active: make(map[string]*Transition)},
	}
}

// --- characters ---

func (w *WorldState) AddCharacter(c *Character) {
	w.characters[c.ID] = c
	w.log.Info("character_added", slog.String("character_id", c.ID))
}

func (w *WorldState) RemoveCharacter(id string) {
	delete(w.characters, id)
	delete(w.transition.active, id)
}

func (w *WorldState) Character(id string) (*Character, bool) {
	c, ok := w.characters[id]
	return c, ok
}

// MustCharacter is a convenience for callers that have already validated
// existence; it panics (a programmer-error invariant breach, per spec.md S7)
// if the character is missing.
func (w *WorldState) MustCharacter(id string) *Character {
	c, ok := w.characters[id]
	if !ok {
		panic(fmt.Sprintf("worldstate: MustCharacter(%q): not found", id))
	}
	return c
}

func (w *WorldState) Characters() map[string]*Character {
	return w.characters
}

func (w *WorldState) UpdatePosition(id string, pos Position) error {
	c, ok := w.characters[id]
	if !ok {
		return ErrCharacterNotFound
	}
	c.Position = pos
	return nil
}

func (w *WorldState) UpdateDirection(id string, dir Direction) error {
	c, ok := w.characters[id]
	if !ok {
		return ErrCharacterNotFound
	}
	c.Direction = dir
	return nil
}

func (w *WorldState) SetCharacterMap(id, mapID, nodeID string, pos Position) error {
	c, ok := w.characters[id]
	if !ok {
		return ErrCharacterNotFound
	}
	c.CurrentMapID = mapID
	c.CurrentNodeID = nodeID
	c.Position = pos
	return nil
}

// --- navigation ---

func (w *WorldState) StartNavigation(id string, path []string, start, target Position) error {
	c, ok := w.characters[id]
	if !ok {
		return ErrCharacterNotFound
	}
	if c.Navigation.IsMoving {
		return ErrAlreadyMoving
	}
	if len(path) < 2 {
		w.log.Warn("start_navigation_short_path", slog.String("character_id", id), slog.Int("len", len(path)))
		return fmt.Errorf("worldstate: path too short to navigate (%d nodes)", len(path))
	}
	c.Navigation = NavigationState{
		IsMoving:       true,
		Path:           path,
		CurrentPathIdx: 0,
		Progress:       0,
		StartPosition:  start,
		TargetPosition: target,
	}
	return nil
}

func (w *WorldState) AdvanceNavigation(id string, progress float64) error {
	c, ok := w.characters[id]
	if !ok {
		return ErrCharacterNotFound
	}
	if !c.Navigation.IsMoving {
		return ErrNotMoving
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	c.Navigation.Progress = progress
	return nil
}

// AdvanceSegment moves the navigation to the next path index with fresh
// start/target positions, used when a segment boundary is crossed but the
// path isn't finished.
func (w *WorldState) AdvanceSegment(id string, start, target Position) error {
	c, ok := w.characters[id]
	if !ok {
		return ErrCharacterNotFound
	}
	if !c.Navigation.IsMoving {
		return ErrNotMoving
	}
	c.Navigation.CurrentPathIdx++
	c.Navigation.Progress = 0
	c.Navigation.StartPosition = start
	c.Navigation.TargetPosition = target
	return nil
}

func (w *WorldState) CompleteNavigation(id string) error {
	c, ok := w.characters[id]
	if !ok {
		return ErrCharacterNotFound
	}
	c.Navigation = NavigationState{}
	return nil
}

// --- map transitions ---

func (w *WorldState) StartTransition(id string, t Transition) error {
	if _, ok := w.characters[id]; !ok {
		return ErrCharacterNotFound
	}
	if _, active := w.transition.active[id]; active {
		return ErrAlreadyTransiting
	}
	t.Phase = PhaseFadeOut
	t.Progress = 0
	w.transition.active[id] = &t
	return nil
}

func (w *WorldState) UpdateTransition(id string, phase TransitionPhase, progress float64) error {
	tr, ok := w.transition.active[id]
	if !ok {
		return fmt.Errorf("worldstate: no active transition for %q", id)
	}
	tr.Phase = phase
	tr.Progress = progress
	return nil
}

func (w *WorldState) EndTransition(id string) {
	delete(w.transition.active, id)
}

func (w *WorldState) Transition(id string) (*Transition, bool) {
	t, ok := w.transition.active[id]
	return t, ok
}

// --- cross-map navigation ---

func (w *WorldState) StartCrossMapNav(id string, nav CrossMapNav) error {
	c, ok := w.characters[id]
	if !ok {
		return ErrCharacterNotFound
	}
	nav.IsActive = true
	c.CrossMapNav = nav
	return nil
}

func (w *WorldState) AdvanceCrossMapNav(id string) error {
	c, ok := w.characters[id]
	if !ok {
		return ErrCharacterNotFound
	}
	if !c.CrossMapNav.IsActive {
		return fmt.Errorf("worldstate: no active cross-map nav for %q", id)
	}
	c.CrossMapNav.CurrentSegmentIdx++
	return nil
}

func (w *WorldState) CompleteCrossMapNav(id string) error {
	c, ok := w.characters[id]
	if !ok {
		return ErrCharacterNotFound
	}
	c.CrossMapNav = CrossMapNav{}
	return nil
}

// --- NPC conversation flag ---

func (w *WorldState) NPC(id string) (*NPC, bool) {
	n, ok := w.npcs[id]
	return n, ok
}

func (w *WorldState) NPCs() map[string]*NPC { return w.npcs }

func (w *WorldState) AddNPC(n *NPC) { w.npcs[n.ID] = n }

func (w *WorldState) SetNPCInConversation(id string, inConv bool) error {
	n, ok := w.npcs[id]
	if !ok {
		return ErrNPCNotFound
	}
	n.IsInConversation = inConv
	return nil
}

// SetCharacterConversation marks whether a character currently has an open
// conversation session, for invariant 2 and snapshot rendering.
func (w *WorldState) SetCharacterConversation(id string, active bool, npcID string) error {
	c, ok := w.characters[id]
	if !ok {
		return ErrCharacterNotFound
	}
	c.Conversation = ConversationRef{Active: active, NPCID: npcID}
	return nil
}

// --- time / tick ---

func (w *WorldState) SetTime(t Time) { w.time = t }
func (w *WorldState) Time() Time     { return w.time }

func (w *WorldState) SetCurrentMapID(id string) { w.currentMapID = id }
func (w *WorldState) CurrentMapID() string      { return w.currentMapID }

func (w *WorldState) Pause()         { w.paused = true }
func (w *WorldState) Unpause()       { w.paused = false }
func (w *WorldState) IsPaused() bool { return w.paused }

func (w *WorldState) IncrementTick() uint64 {
	return atomic.AddUint64(&w.tick, 1)
}

func (w *WorldState) Tick() uint64 { return w.tick }

// NextActionCounter returns a fresh, per-character monotonic epoch token,
// used to make behavior decisions cancellable per spec.md S5.
func (w *WorldState) NextActionCounter(id string) (uint64, error) {
	c, ok := w.characters[id]
	if !ok {
		return 0, ErrCharacterNotFound
	}
	c.ActionCounter++
	return c.ActionCounter, nil
}

func (w *WorldState) Logger() *slog.Logger { return w.log }
