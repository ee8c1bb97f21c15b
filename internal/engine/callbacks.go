package engine

import (
	"context"
	"log/slog"

	"github.com/fvdveen/townlife/internal/action"
	"github.com/fvdveen/townlife/internal/behavior"
	"github.com/fvdveen/townlife/internal/logging"
	"github.com/fvdveen/townlife/internal/worldstate"
)

// onActionComplete and onNavigationComplete are the two events that leave a
// character idle and needing a fresh decision (spec.md S4.10 step 5).

func (e *Engine) onActionComplete(characterID, actionID string) {
	e.enqueueDecision(characterID)
}

func (e *Engine) onNavigationComplete(characterID string) {
	e.enqueueDecision(characterID)
}

func (e *Engine) onRecordHistory(entry action.HistoryEntry) {
	day := e.world.Time().Day
	e.schedule.RecordActionHistory(context.Background(), entry.CharacterID, day, entry)
}

// onStatusInterrupt is fired synchronously by the decay manager on the tick
// thread, so the interrupt decision is made with the rules path directly —
// no LLM round trip needed to pick the forced action (spec.md S4.7). A
// pending "thinking" placeholder is force-cleared first so the interrupt
// can preempt it; its eventual decision result still arrives but is dropped
// by the epoch check in drainDecisionResults.
func (e *Engine) onStatusInterrupt(characterID, statType string) {
	if c, ok := e.world.Character(characterID); ok && c.CurrentAction != nil && c.CurrentAction.ActionID == action.ActionThinking {
		e.action.ForceComplete(characterID)
		_, _ = e.world.NextActionCounter(characterID)
	}
	intent := e.decider.DecideInterrupt(characterID, statType)
	e.applyIntent(characterID, intent)
}

// enqueueDecision bumps the character's epoch token and posts a job to the
// decision worker; a superseded result (stale epoch) is dropped when drained
// (spec.md S5).
func (e *Engine) enqueueDecision(characterID string) {
	c, ok := e.world.Character(characterID)
	if !ok {
		return
	}
	if c.CurrentAction != nil || c.Navigation.IsMoving || c.Conversation.Active {
		return
	}
	if _, transiting := e.world.Transition(characterID); transiting {
		return
	}

	epoch, err := e.world.NextActionCounter(characterID)
	if err != nil {
		return
	}

	day := e.world.Time().Day
	stats := make(map[string]float64, len(worldstate.StatNames))
	for _, name := range worldstate.StatNames {
		stats[name] = c.Stat(name)
	}
	inputs := behavior.Inputs{
		CharacterID:   characterID,
		Stats:         stats,
		Profile:       c.Profile,
		Schedule:      e.schedule.Schedule(context.Background(), characterID, day),
		RecentHistory: e.schedule.History(context.Background(), characterID, day),
		ReachableMaps: e.reachableMaps(c.CurrentMapID, c.CurrentNodeID),
		CurrentTime:   e.world.Time(),
	}
	if actives, err := e.store.ActiveMidTermMemories(context.Background(), characterID, day); err == nil {
		inputs.ActiveMemories = actives
	}
	if recents, err := e.store.RecentConversationSummaries(context.Background(), characterID, 5); err == nil {
		inputs.RecentConversations = recents
	}
	inputs.NearbyNPCIDs = e.nearbyNPCs(c.CurrentMapID, c.CurrentNodeID)

	select {
	case e.decisionJobs <- decisionJob{characterID: characterID, epoch: epoch, inputs: inputs}:
		e.action.StartAction(characterID, action.ActionThinking, "", "", 0, "awaiting behavior decision", action.StartOptions{})
	default:
		logging.ForCharacter(e.log, characterID).Warn("decision_queue_full")
	}
}

// reachableMaps computes the distance (route length in nodes) from
// (mapID, nodeID) to every other loaded map's spawn point, per spec.md
// S4.7's "reachable maps with distance" decision input. Maps with no route
// (e.g. disconnected wings) are omitted rather than reported as infinite.
func (e *Engine) reachableMaps(mapID, nodeID string) map[string]float64 {
	out := make(map[string]float64, len(e.maps.Maps))
	for candidateID, candidate := range e.maps.Maps {
		if candidateID == mapID {
			continue
		}
		segments := e.maps.PlanRoute(mapID, nodeID, candidateID, candidate.SpawnNodeID)
		if segments == nil {
			continue
		}
		var dist float64
		for _, seg := range segments {
			dist += float64(len(seg.Path))
		}
		out[candidateID] = dist
	}
	return out
}

func (e *Engine) nearbyNPCs(mapID, nodeID string) []string {
	m, ok := e.maps.Map(mapID)
	if !ok {
		return nil
	}
	self, ok := m.Node(nodeID)
	if !ok {
		return nil
	}
	var out []string
	for id, n := range e.world.NPCs() {
		if n.MapID != mapID {
			continue
		}
		other, ok := m.Node(n.NodeID)
		if !ok {
			continue
		}
		dx, dy := self.X-other.X, self.Y-other.Y
		if dx < 0 {
			dx = -dx
		}
		if dy < 0 {
			dy = -dy
		}
		if dx <= 2 && dy <= 2 {
			out = append(out, id)
		}
	}
	return out
}

// runDecisionWorker drains decisionJobs off the tick goroutine, calling the
// (possibly LLM-backed) decider, and posts results to decisionResults for
// the tick loop to apply — the only place behavior.Decide may block on
// network I/O (spec.md S5).
func (e *Engine) runDecisionWorker() {
	for job := range e.decisionJobs {
		intent := e.decider.Decide(context.Background(), job.inputs)
		e.decisionResults <- decisionResult{characterID: job.characterID, epoch: job.epoch, intent: intent}
	}
}

// drainDecisionResults applies every decision result queued since the last
// tick, dropping any whose epoch no longer matches the character's current
// counter (superseded by a newer decision request).
func (e *Engine) drainDecisionResults(ctx context.Context) {
	for {
		select {
		case res := <-e.decisionResults:
			c, ok := e.world.Character(res.characterID)
			if !ok || c.ActionCounter != res.epoch {
				continue
			}
			if c.CurrentAction != nil && c.CurrentAction.ActionID == action.ActionThinking {
				e.action.ForceComplete(res.characterID)
			}
			e.applyIntent(res.characterID, res.intent)
		default:
			return
		}
	}
}

// drainConversationEvents folds every queued conversation event into
// WorldState via the manager, per spec.md S5.
func (e *Engine) drainConversationEvents() {
	for {
		select {
		case ev := <-e.conv.Events():
			e.conv.ApplyEvent(ev)
		default:
			return
		}
	}
}

// applyIntent executes a behavior.Intent against the appropriate subsystem
// (spec.md S4.7/S4.10).
func (e *Engine) applyIntent(characterID string, intent behavior.Intent) {
	clog := logging.ForCharacter(e.log, characterID)
	switch intent.Kind {
	case behavior.IntentIdle:
		// Nothing to do; the character stays idle until the next trigger.

	case behavior.IntentMoveToNode:
		if !e.sim.NavigateToNode(characterID, intent.NodeID, nil) {
			clog.Warn("navigate_to_node_failed", slog.String("node_id", intent.NodeID))
		}

	case behavior.IntentMoveToMap:
		if !e.sim.NavigateToMap(characterID, intent.MapID, intent.NodeID) {
			clog.Warn("navigate_to_map_failed", slog.String("map_id", intent.MapID))
		}

	case behavior.IntentStartAction:
		if ok, reason := e.action.StartAction(characterID, intent.ActionID, intent.FacilityID, "", intent.DurationMinutes, intent.Reason, action.StartOptions{}); !ok {
			clog.Warn("start_action_failed", slog.String("action_id", intent.ActionID), slog.String("reason", reason))
		}

	case behavior.IntentStartConversation:
		if err := e.conv.StartConversation(characterID, intent.NPCID, intent.Goal.Goal, intent.Goal.SuccessCriteria); err != nil {
			clog.Warn("start_conversation_failed", slog.String("npc_id", intent.NPCID), slog.Any("err", err))
		}
	}
}
