// Package simulator implements the CharacterSimulator (spec.md S4.3,
// component C3): per-tick position/direction interpolation, segment
// advancement, entrance detection and the map-transition FSM.
package simulator

import (
	"log/slog"
	"math"
	"time"

	"github.com/fvdveen/townlife/internal/gridmap"
	"github.com/fvdveen/townlife/internal/worldstate"
)

// DefaultSpeed is the pixels/second used for in-map interpolation when the
// speed passed to New (from the world-config bundle) is not positive.
const DefaultSpeed = 120.0

// FadeSpeed is progress/sec for each map-transition phase, i.e. ~0.5s per
// phase (spec.md S4.3).
const FadeSpeed = 2.0

// Callbacks are fired from the engine's single tick goroutine.
type Callbacks struct {
	OnNavigationComplete func(characterID string)
}

type Simulator struct {
	log   *slog.Logger
	world *worldstate.WorldState
	maps  *gridmap.World
	speed float64
	cb    Callbacks
}

func New(log *slog.Logger, world *worldstate.WorldState, maps *gridmap.World, speed float64, cb Callbacks) *Simulator {
	if speed <= 0 {
		speed = DefaultSpeed
	}
	return &Simulator{log: log, world: world, maps: maps, speed: speed, cb: cb}
}

// Tick advances every character's movement and any in-flight map transition
// by deltaTime seconds.
func (s *Simulator) Tick(deltaTime float64, now time.Time) {
	for id, c := range s.world.Characters() {
		if _, transiting := s.world.Transition(id); transiting {
			s.tickTransition(id, deltaTime)
			continue
		}
		if c.CurrentAction != nil || c.Conversation.Active {
			continue
		}
		if c.Navigation.IsMoving {
			s.tickNavigation(id, c, deltaTime)
		}
	}
}

func (s *Simulator) tickNavigation(id string, c *worldstate.Character, deltaTime float64) {
	segLen := euclid(c.Navigation.StartPosition, c.Navigation.TargetPosition)
	var delta float64
	if segLen > 0 {
		delta = deltaTime * s.speed / segLen
	} else {
		delta = 1
	}

	progress := c.Navigation.Progress + delta
	if progress > 1 {
		progress = 1
	}
	_ = s.world.AdvanceNavigation(id, progress)

	pos := lerp(c.Navigation.StartPosition, c.Navigation.TargetPosition, progress)
	_ = s.world.UpdatePosition(id, pos)
	_ = s.world.UpdateDirection(id, directionFromDelta(
		c.Navigation.TargetPosition.X-c.Navigation.StartPosition.X,
		c.Navigation.TargetPosition.Y-c.Navigation.StartPosition.Y,
	))

	if progress < 1 {
		return
	}

	path := c.Navigation.Path
	idx := c.Navigation.CurrentPathIdx
	if idx+1 >= len(path)-1 {
		// Reached the last path node.
		finalNodeID := path[len(path)-1]
		finalPos := c.Navigation.TargetPosition
		_ = s.world.CompleteNavigation(id)
		_ = s.world.SetCharacterMap(id, c.CurrentMapID, finalNodeID, finalPos)
		s.onArrival(id, c, finalNodeID)
		return
	}

	// Advance to the next segment.
	m, ok := s.maps.Map(c.CurrentMapID)
	if !ok {
		_ = s.world.CompleteNavigation(id)
		return
	}
	// The segment just finished ended at path[idx+1]; the next one ends at
	// path[idx+2].
	nextNodeID := path[idx+2]
	nextNode, ok := m.Node(nextNodeID)
	if !ok {
		_ = s.world.CompleteNavigation(id)
		return
	}
	start := c.Navigation.TargetPosition
	target := worldstate.Position{X: nextNode.X, Y: nextNode.Y}
	_ = s.world.AdvanceSegment(id, start, target)
}

// onArrival implements spec.md S4.3's arrival handler: begin a map
// transition if the final node is an entrance with further travel to do,
// otherwise signal navigation completion to the engine.
func (s *Simulator) onArrival(id string, c *worldstate.Character, finalNodeID string) {
	m, ok := s.maps.Map(c.CurrentMapID)
	if !ok {
		s.fireNavigationComplete(id)
		return
	}
	node, ok := m.Node(finalNodeID)
	if !ok {
		s.fireNavigationComplete(id)
		return
	}

	hasMoreSegments := c.CrossMapNav.IsActive && c.CrossMapNav.CurrentSegmentIdx < len(c.CrossMapNav.Route)-1
	if node.Type == gridmap.NodeEntrance && (hasMoreSegments || node.LeadsTo != nil) {
		s.beginTransition(id, c, node)
		return
	}

	s.fireNavigationComplete(id)
}

func (s *Simulator) fireNavigationComplete(id string) {
	if s.cb.OnNavigationComplete != nil {
		s.cb.OnNavigationComplete(id)
	}
}

func (s *Simulator) beginTransition(id string, c *worldstate.Character, entrance *gridmap.Node) {
	var toMapID, toNodeID string
	if c.CrossMapNav.IsActive && c.CrossMapNav.CurrentSegmentIdx < len(c.CrossMapNav.Route)-1 {
		next := c.CrossMapNav.Route[c.CrossMapNav.CurrentSegmentIdx+1]
		toMapID = next.MapID
		if len(next.Path) > 0 {
			toNodeID = next.Path[0]
		}
	} else if entrance.LeadsTo != nil {
		toMapID = entrance.LeadsTo.MapID
		toNodeID = entrance.LeadsTo.NodeID
	}

	_ = s.world.StartTransition(id, worldstate.Transition{
		FromMapID: c.CurrentMapID,
		ToMapID:   toMapID,
		ToNodeID:  toNodeID,
	})
	s.log.Info("transition_start", slog.String("character_id", id), slog.String("to_map", toMapID), slog.String("to_node", toNodeID))
}

func (s *Simulator) tickTransition(id string, deltaTime float64) {
	tr, ok := s.world.Transition(id)
	if !ok {
		return
	}
	progress := tr.Progress + deltaTime*FadeSpeed
	if progress < 1 {
		_ = s.world.UpdateTransition(id, tr.Phase, progress)
		return
	}

	switch tr.Phase {
	case worldstate.PhaseFadeOut:
		_ = s.world.UpdateTransition(id, worldstate.PhaseTeleport, 0)
	case worldstate.PhaseTeleport:
		s.teleport(id, tr)
		_ = s.world.UpdateTransition(id, worldstate.PhaseFadeIn, 0)
	case worldstate.PhaseFadeIn:
		s.onTransitionComplete(id)
	default:
		s.world.EndTransition(id)
	}
}

func (s *Simulator) teleport(id string, tr *worldstate.Transition) {
	m, ok := s.maps.Map(tr.ToMapID)
	if !ok {
		return
	}
	node, ok := m.Node(tr.ToNodeID)
	if !ok {
		return
	}
	_ = s.world.SetCharacterMap(id, tr.ToMapID, tr.ToNodeID, worldstate.Position{X: node.X, Y: node.Y})
}

func (s *Simulator) onTransitionComplete(id string) {
	c, ok := s.world.Character(id)
	if !ok {
		s.world.EndTransition(id)
		return
	}
	s.world.EndTransition(id)

	if c.CrossMapNav.IsActive {
		_ = s.world.AdvanceCrossMapNav(id)
		if c.CrossMapNav.CurrentSegmentIdx >= len(c.CrossMapNav.Route) {
			_ = s.world.CompleteCrossMapNav(id)
			s.fireNavigationComplete(id)
			return
		}
		seg := c.CrossMapNav.Route[c.CrossMapNav.CurrentSegmentIdx]
		if len(seg.Path) < 2 {
			// Single-node segment: pure transition, chain immediately if
			// the node itself is an entrance and more segments remain.
			if len(seg.Path) == 1 {
				m, ok := s.maps.Map(seg.MapID)
				if ok {
					if node, ok := m.Node(seg.Path[0]); ok {
						s.onArrival(id, c, node.ID)
						return
					}
				}
			}
			s.fireNavigationComplete(id)
			return
		}
		s.startSegment(id, seg)
		return
	}

	s.fireNavigationComplete(id)
}

func (s *Simulator) startSegment(id string, seg worldstate.RouteSegment) {
	m, ok := s.maps.Map(seg.MapID)
	if !ok {
		return
	}
	startNode, ok := m.Node(seg.Path[0])
	if !ok {
		return
	}
	nextNode, ok := m.Node(seg.Path[1])
	if !ok {
		return
	}
	start := worldstate.Position{X: startNode.X, Y: startNode.Y}
	target := worldstate.Position{X: nextNode.X, Y: nextNode.Y}
	_ = s.world.StartNavigation(id, seg.Path, start, target)
}

// NavigateToNode starts movement toward a node on the character's current
// map. Returns true immediately if already there; false if already moving,
// the character/map is missing, or the target is unreachable (spec.md
// S4.3).
func (s *Simulator) NavigateToNode(characterID, nodeID string, blocked map[string]struct{}) bool {
	c, ok := s.world.Character(characterID)
	if !ok {
		return false
	}
	if c.Navigation.IsMoving {
		return false
	}
	if c.CurrentNodeID == nodeID {
		return true
	}
	m, ok := s.maps.Map(c.CurrentMapID)
	if !ok {
		return false
	}
	path := m.Pathfind(c.CurrentNodeID, nodeID, blocked)
	if path == nil {
		return false
	}
	return s.startFirstSegment(characterID, m, path)
}

func (s *Simulator) startFirstSegment(characterID string, m *gridmap.Map, path []string) bool {
	startNode, ok := m.Node(path[0])
	if !ok {
		return false
	}
	nextNode, ok := m.Node(path[1])
	if !ok {
		return false
	}
	start := worldstate.Position{X: startNode.X, Y: startNode.Y}
	target := worldstate.Position{X: nextNode.X, Y: nextNode.Y}
	return s.world.StartNavigation(characterID, path, start, target) == nil
}

// NavigateToMap plans a cross-map route and starts its first segment.
// Returns false if no route exists or the character is already moving.
func (s *Simulator) NavigateToMap(characterID, mapID, nodeID string) bool {
	c, ok := s.world.Character(characterID)
	if !ok {
		return false
	}
	if c.Navigation.IsMoving {
		return false
	}
	segments := s.maps.PlanRoute(c.CurrentMapID, c.CurrentNodeID, mapID, nodeID)
	if segments == nil {
		return false
	}
	wsSegments := make([]worldstate.RouteSegment, len(segments))
	for i, seg := range segments {
		wsSegments[i] = worldstate.RouteSegment{MapID: seg.MapID, Path: seg.Path, ExitEntranceID: seg.ExitEntranceID}
	}
	if err := s.world.StartCrossMapNav(characterID, worldstate.CrossMapNav{
		TargetMapID: mapID, TargetNodeID: nodeID, Route: wsSegments,
	}); err != nil {
		return false
	}
	first := wsSegments[0]
	if len(first.Path) < 2 {
		// First segment is already a pure transition.
		m, ok := s.maps.Map(first.MapID)
		if ok {
			if node, ok := m.Node(first.Path[0]); ok {
				s.onArrival(characterID, c, node.ID)
				return true
			}
		}
		return false
	}
	return s.startFirstSegment(characterID, mustMap(s.maps, first.MapID), first.Path)
}

func mustMap(w *gridmap.World, id string) *gridmap.Map {
	m, _ := w.Map(id)
	return m
}

func euclid(a, b worldstate.Position) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	return math.Sqrt(dx*dx + dy*dy)
}

func lerp(a, b worldstate.Position, t float64) worldstate.Position {
	return worldstate.Position{X: a.X + (b.X-a.X)*t, Y: a.Y + (b.Y-a.Y)*t}
}

// directionFromDelta derives facing from the component of largest absolute
// delta, per spec.md S9.
func directionFromDelta(dx, dy float64) worldstate.Direction {
	if math.Abs(dx) >= math.Abs(dy) {
		if dx >= 0 {
			return worldstate.DirRight
		}
		return worldstate.DirLeft
	}
	if dy >= 0 {
		return worldstate.DirDown
	}
	return worldstate.DirUp
}
