package action

import (
	"log/slog"
	"time"

	"github.com/fvdveen/townlife/internal/gridmap"
	"github.com/fvdveen/townlife/internal/logging"
	"github.com/fvdveen/townlife/internal/worldstate"
)

// HistoryEntry records one completed action for the
// schedule manager's append-only history, per spec.md S3.
type HistoryEntry struct {
	CharacterID     string
	Time            string // "HH:MM"
	ActionID        string
	Target          string
	DurationMinutes int
	Reason          string
}

// Callbacks are the engine-facing hooks fired by the executor, per spec.md
// S6. They must be pure or thread-safe and are always invoked from the
// engine's single tick goroutine (spec.md S5).
type Callbacks struct {
	OnActionStart    func(characterID string, a *worldstate.ActionState)
	OnActionComplete func(characterID, actionID string)
	OnRecordHistory  func(entry HistoryEntry)
}

// Executor is the ActionExecutor (component C4).
type Executor struct {
	log     *slog.Logger
	world   *worldstate.WorldState
	maps    *gridmap.World
	configs map[string]Config
	cb      Callbacks

	nowFn func() time.Time
}

func New(log *slog.Logger, world *worldstate.WorldState, maps *gridmap.World, configs map[string]Config, cb Callbacks) *Executor {
	return &Executor{
		log:     log,
		world:   world,
		maps:    maps,
		configs: configs,
		cb:      cb,
		nowFn:   time.Now,
	}
}

// StartOptions carries the optional CanExecuteAction override.
type StartOptions struct {
	IgnoreCurrentAction bool
}

// CanExecuteAction implements spec.md S4.4's five admission rules in order,
// returning a human-readable reason on failure. It never errors — callers
// choose another intent on a false result (spec.md S7).
func (e *Executor) CanExecuteAction(characterID, actionID string, opts StartOptions) (bool, string) {
	c, ok := e.world.Character(characterID)
	if !ok {
		return false, "character not found"
	}

	if !opts.IgnoreCurrentAction && c.CurrentAction != nil {
		return false, "character already has a current action"
	}

	cfg, ok := e.configs[actionID]
	if !ok {
		return false, "unknown action"
	}

	m, ok := e.maps.Map(c.CurrentMapID)
	if !ok {
		return false, "character's current map is unknown"
	}

	if len(cfg.RequiredFacilityTags) > 0 {
		if !e.hasAccessibleFacility(m, c, cfg.RequiredFacilityTags) {
			return false, "no accessible facility for this action on the current map"
		}
	}

	if cfg.RequiresEmployment {
		if ok, reason := e.checkEmployment(m, c); !ok {
			return false, reason
		}
	}

	if cfg.RequiresNearNPC {
		if !e.hasNearbyNPC(m, c) {
			return false, "no NPC nearby"
		}
	}

	return true, ""
}

func (e *Executor) hasAccessibleFacility(m *gridmap.Map, c *worldstate.Character, tags []string) bool {
	for _, tag := range tags {
		for _, f := range m.FacilitiesWithTag(tag) {
			if f.Accessible(c.ID, c.Money) {
				return true
			}
		}
	}
	return false
}

func (e *Executor) checkEmployment(m *gridmap.Map, c *worldstate.Character) (bool, string) {
	if c.Employment == nil {
		return false, "character has no employment"
	}
	f, ok := m.FacilityAt(c.CurrentNodeID)
	if !ok || f.Job == nil {
		return false, "current facility has no job"
	}
	if f.Job.JobID != c.Employment.JobID {
		return false, "facility job does not match character's employment"
	}
	hour := e.world.Time().Hour
	if !withinWorkHours(hour, f.Job.WorkStart, f.Job.WorkEnd) {
		return false, "outside work hours"
	}
	return true, ""
}

func withinWorkHours(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour < end
	}
	// Overnight shift wraps around midnight.
	return hour >= start || hour < end
}

func (e *Executor) hasNearbyNPC(m *gridmap.Map, c *worldstate.Character) bool {
	selfNode, ok := m.Node(c.CurrentNodeID)
	if !ok {
		return false
	}
	for _, n := range e.world.NPCs() {
		if n.MapID != c.CurrentMapID {
			continue
		}
		nNode, ok := m.Node(n.NodeID)
		if !ok {
			continue
		}
		if isCardinalNeighbor(selfNode, nNode) {
			return true
		}
	}
	return false
}

func isCardinalNeighbor(a, b *gridmap.Node) bool {
	dx := a.X - b.X
	dy := a.Y - b.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	return (dx <= 1 && dy == 0) || (dy <= 1 && dx == 0)
}

// StartAction performs admission, pays any facility cost, computes the
// duration, and sets the character's current action (spec.md S4.4).
func (e *Executor) StartAction(characterID, actionID, facilityID, targetNPCID string, requestedDuration int, reason string, opts StartOptions) (bool, string) {
	ok, reason2 := e.CanExecuteAction(characterID, actionID, opts)
	if !ok {
		return false, reason2
	}

	c := e.world.MustCharacter(characterID)
	cfg := e.configs[actionID]

	if facilityID != "" {
		if m, ok := e.maps.Map(c.CurrentMapID); ok {
			if f, ok := m.Facilities[facilityID]; ok && f.Cost != nil {
				c.Money -= float64(*f.Cost)
			}
		}
	}

	durationMinutes := cfg.Duration
	if !cfg.Fixed {
		durationMinutes = clampInt(requestedDuration, cfg.Range.Min, cfg.Range.Max)
		if requestedDuration <= 0 {
			durationMinutes = cfg.Range.Default
		}
	}

	now := e.nowFn()
	state := &worldstate.ActionState{
		ActionID:        actionID,
		StartTime:       now.UnixMilli(),
		TargetEndTime:   now.Add(time.Duration(durationMinutes) * time.Minute).UnixMilli(),
		FacilityID:      facilityID,
		TargetNPCID:     targetNPCID,
		DurationMinutes: durationMinutes,
		Reason:          reason,
	}
	c.CurrentAction = state
	c.DisplayEmoji = cfg.Emoji

	if actionID != ActionThinking && e.cb.OnActionStart != nil {
		e.cb.OnActionStart(characterID, state)
	}

	logging.ForCharacter(e.log, characterID).Info("action_start",
		slog.String("action_id", actionID),
		slog.Int("duration_minutes", durationMinutes),
	)

	return true, ""
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Tick completes every eligible action whose TargetEndTime has passed.
// "thinking" and "talk" never auto-complete (spec.md S4.4).
func (e *Executor) Tick(now time.Time) {
	for id, c := range e.world.Characters() {
		a := c.CurrentAction
		if a == nil {
			continue
		}
		cfg, ok := e.configs[a.ActionID]
		if ok && cfg.NeverAutoCompletes {
			continue
		}
		if now.UnixMilli() >= a.TargetEndTime {
			e.CompleteAction(id)
		}
	}
}

// CompleteAction applies fixed effects (perMinute effects already accrued
// in real time via the decay subsystem), handles wage accrual, clears
// current-action state, and fires the completion callbacks in order:
// onRecordHistory then onActionComplete (spec.md S4.4).
func (e *Executor) CompleteAction(characterID string) {
	c, ok := e.world.Character(characterID)
	if !ok || c.CurrentAction == nil {
		return
	}
	a := c.CurrentAction
	cfg, hasCfg := e.configs[a.ActionID]

	if hasCfg && cfg.Fixed {
		for stat, delta := range cfg.Effects.Fixed {
			if stat == "money" {
				c.Money += delta
				continue
			}
			c.SetStat(stat, clampStatValue(c.Stat(stat)+delta))
		}
	}

	if hasCfg && cfg.Effects.WageStat != "" && c.Employment != nil {
		if m, ok := e.maps.Map(c.CurrentMapID); ok {
			if f, ok := m.FacilityAt(c.CurrentNodeID); ok && f.Job != nil {
				hoursWorked := float64(a.DurationMinutes) / 60.0
				wage := floor(f.Job.HourlyWage * hoursWorked)
				if cfg.Effects.WageStat == "money" {
					c.Money += wage
				}
			}
		}
	}

	actionID := a.ActionID
	reason := a.Reason
	durationMinutes := a.DurationMinutes
	target := a.TargetNPCID
	if target == "" {
		target = a.FacilityID
	}

	c.CurrentAction = nil
	c.DisplayEmoji = ""

	if e.cb.OnRecordHistory != nil {
		e.cb.OnRecordHistory(HistoryEntry{
			CharacterID:     characterID,
			Time:            e.nowFn().Format("15:04"),
			ActionID:        actionID,
			Target:          target,
			DurationMinutes: durationMinutes,
			Reason:          reason,
		})
	}
	if e.cb.OnActionComplete != nil {
		e.cb.OnActionComplete(characterID, actionID)
	}

	logging.ForCharacter(e.log, characterID).Info("action_complete", slog.String("action_id", actionID))
}

// ForceComplete clears action state without applying effects or firing
// completion callbacks — used to close out "thinking" (spec.md S4.4).
func (e *Executor) ForceComplete(characterID string) {
	c, ok := e.world.Character(characterID)
	if !ok || c.CurrentAction == nil {
		return
	}
	c.CurrentAction = nil
	c.DisplayEmoji = ""
}

// GetActivePerMinuteEffects is the sole bridge into the decay pipeline
// (spec.md S4.4): it returns the current perMinute map for a variable-
// duration action, or nil if none is active.
func (e *Executor) GetActivePerMinuteEffects(characterID string) map[string]float64 {
	c, ok := e.world.Character(characterID)
	if !ok || c.CurrentAction == nil {
		return nil
	}
	cfg, ok := e.configs[c.CurrentAction.ActionID]
	if !ok || cfg.Fixed {
		return nil
	}
	return cfg.Effects.PerMinute
}

func clampStatValue(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func floor(v float64) float64 {
	i := int64(v)
	return float64(i)
}
