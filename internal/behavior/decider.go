package behavior

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/fvdveen/townlife/internal/action"
	"github.com/fvdveen/townlife/internal/decay"
	"github.com/fvdveen/townlife/internal/gridmap"
	"github.com/fvdveen/townlife/internal/llm"
	"github.com/fvdveen/townlife/internal/logging"
	"github.com/fvdveen/townlife/internal/memory"
	"github.com/fvdveen/townlife/internal/schedule"
	"github.com/fvdveen/townlife/internal/worldstate"
)

// Inputs bundles everything the engine assembles for one decision request,
// per spec.md S4.7.
type Inputs struct {
	CharacterID         string
	Stats               map[string]float64 // bladder/satiety/energy/hygiene/mood, per worldstate.StatNames
	Profile             *worldstate.Profile
	Schedule            []schedule.Entry
	RecentHistory       []action.HistoryEntry
	NearbyNPCIDs        []string
	ReachableMaps       map[string]float64 // mapId -> distance, via gridmap.PlanRoute
	ActiveMemories      []memory.MidTermMemory
	RecentConversations []memory.ConversationSummaryEntry
	CurrentTime         worldtime
}

// worldtime is a local alias for worldstate.Time, so this package needs no
// direct import of the worldtime package.
type worldtime = worldstate.Time

// Decider is the BehaviorDecider (component C7).
type Decider struct {
	log    *slog.Logger
	world  *worldstate.WorldState
	maps   *gridmap.World
	client llm.Client
}

func New(log *slog.Logger, world *worldstate.WorldState, maps *gridmap.World, client llm.Client) *Decider {
	return &Decider{log: log, world: world, maps: maps, client: client}
}

type llmIntent struct {
	Kind            string `json:"kind"`
	Reason          string `json:"reason"`
	MapID           string `json:"mapId"`
	NodeID          string `json:"nodeId"`
	ActionID        string `json:"actionId"`
	DurationMin     int    `json:"durationMin"`
	FacilityID      string `json:"facilityId"`
	NPCID           string `json:"npcId"`
	Goal            string `json:"goal"`
	SuccessCriteria string `json:"successCriteria"`
}

// Decide produces an Intent for an idle character. If the LLM is
// unavailable or errors, it falls back to rules: the lowest stat below
// threshold maps to a forced action, else advance to the next unfinished
// schedule entry (spec.md S4.7).
func (d *Decider) Decide(ctx context.Context, in Inputs) Intent {
	if d.client != nil && d.client.IsAvailable() {
		if intent, ok := d.decideWithLLM(ctx, in); ok {
			return intent
		}
	}
	return d.rulesFallback(in)
}

func (d *Decider) decideWithLLM(ctx context.Context, in Inputs) (Intent, bool) {
	prompt := d.renderPrompt(in)
	var out llmIntent
	if err := d.client.GenerateObject(ctx, prompt, llm.BehaviorIntentSchema, llm.Options{}, &out); err != nil {
		logging.ForCharacter(d.log, in.CharacterID).Warn("behavior_llm_failed", slog.Any("err", err))
		return Intent{}, false
	}
	return Intent{
		Kind:            IntentKind(out.Kind),
		Reason:          out.Reason,
		MapID:           out.MapID,
		NodeID:          out.NodeID,
		ActionID:        out.ActionID,
		DurationMinutes: out.DurationMin,
		FacilityID:      out.FacilityID,
		NPCID:           out.NPCID,
		Goal:            Goal{Goal: out.Goal, SuccessCriteria: out.SuccessCriteria},
	}, true
}

func (d *Decider) renderPrompt(in Inputs) string {
	b, _ := json.Marshal(in)
	return fmt.Sprintf("Decide the next action for character %q given state: %s", in.CharacterID, string(b))
}

// rulesFallback implements spec.md S4.7's deterministic fallback.
func (d *Decider) rulesFallback(in Inputs) Intent {
	c, ok := d.world.Character(in.CharacterID)
	if !ok {
		return Intent{Kind: IntentIdle, Reason: "character not found"}
	}

	if stat, forced, found := lowestStatBelowThreshold(c); found {
		return Intent{
			Kind:     IntentStartAction,
			ActionID: forced,
			Reason:   fmt.Sprintf("%s below threshold", stat),
		}
	}

	if entry, ok := nextUnfinishedEntry(in.Schedule, in.CurrentTime); ok {
		return Intent{
			Kind:       IntentStartAction,
			ActionID:   entry.Activity,
			Reason:     "following schedule",
			FacilityID: entry.Location,
		}
	}

	return Intent{Kind: IntentIdle, Reason: "nothing scheduled"}
}

func lowestStatBelowThreshold(c *worldstate.Character) (stat string, forced string, found bool) {
	type pair struct {
		name string
		val  float64
	}
	stats := []pair{
		{"bladder", c.Bladder},
		{"satiety", c.Satiety},
		{"energy", c.Energy},
		{"hygiene", c.Hygiene},
	}
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].val < stats[j].val })
	if len(stats) == 0 || stats[0].val >= decay.InterruptThreshold {
		return "", "", false
	}
	lowest := stats[0]
	return lowest.name, decay.ForcedAction[lowest.name], true
}

func nextUnfinishedEntry(entries []schedule.Entry, now worldtime) (schedule.Entry, bool) {
	nowMinutes := now.Hour*60 + now.Minute
	for _, e := range entries {
		h, m := 0, 0
		fmt.Sscanf(e.Time, "%d:%d", &h, &m)
		if h*60+m >= nowMinutes {
			return e, true
		}
	}
	return schedule.Entry{}, false
}

// DecideInterrupt implements spec.md S4.7's interrupt mode: ignore the
// schedule, pick the mapped forced action, and route the character to a
// facility offering it if not already co-located.
func (d *Decider) DecideInterrupt(characterID, statType string) Intent {
	forced := decay.ForcedAction[statType]
	c, ok := d.world.Character(characterID)
	if !ok {
		return Intent{Kind: IntentIdle, Reason: "character not found"}
	}
	cfg, ok := action.DefaultConfigs()[forced]
	if !ok || len(cfg.RequiredFacilityTags) == 0 {
		return Intent{Kind: IntentStartAction, ActionID: forced, Reason: "status interrupt: " + statType}
	}

	m, ok := d.maps.Map(c.CurrentMapID)
	if ok {
		for _, tag := range cfg.RequiredFacilityTags {
			for _, f := range m.FacilitiesWithTag(tag) {
				if f.Accessible(c.ID, c.Money) {
					return Intent{Kind: IntentStartAction, ActionID: forced, FacilityID: f.ID, Reason: "status interrupt: " + statType}
				}
			}
		}
	}

	// Not co-located: route to a map offering the facility.
	for mapID, candidate := range d.maps.Maps {
		if mapID == c.CurrentMapID {
			continue
		}
		if facilities := candidate.FacilitiesWithTag(cfg.RequiredFacilityTags[0]); len(facilities) > 0 {
			return Intent{Kind: IntentMoveToMap, MapID: mapID, NodeID: candidate.SpawnNodeID, Reason: "status interrupt: " + statType}
		}
	}

	return Intent{Kind: IntentStartAction, ActionID: forced, Reason: "status interrupt: " + statType}
}
