// Package engine implements the SimulationEngine (spec.md S4.10, component
// C10): the fixed-rate tick loop that drives every other component in a
// fixed order, plus restart-survival bootstrapping.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/fvdveen/townlife/internal/action"
	"github.com/fvdveen/townlife/internal/behavior"
	"github.com/fvdveen/townlife/internal/config"
	"github.com/fvdveen/townlife/internal/conversation"
	"github.com/fvdveen/townlife/internal/decay"
	"github.com/fvdveen/townlife/internal/gridmap"
	"github.com/fvdveen/townlife/internal/llm"
	"github.com/fvdveen/townlife/internal/logging"
	"github.com/fvdveen/townlife/internal/schedule"
	"github.com/fvdveen/townlife/internal/simulator"
	"github.com/fvdveen/townlife/internal/store"
	"github.com/fvdveen/townlife/internal/worldstate"
	"github.com/fvdveen/townlife/internal/worldtime"
)

// TickInterval is the engine's fixed real-time step, per spec.md S4.10.
const TickInterval = 1 * time.Second

// decisionJob/decisionResult ferry behavior decisions through a bounded
// queue so the LLM call never blocks the tick goroutine (spec.md S5).
type decisionJob struct {
	characterID string
	epoch       uint64
	inputs      behavior.Inputs
}

type decisionResult struct {
	characterID string
	epoch       uint64
	intent      behavior.Intent
}

// Engine wires every component together and owns the tick loop.
type Engine struct {
	log   *slog.Logger
	world *worldstate.WorldState
	maps  *gridmap.World
	clock *worldtime.Clock

	store    store.Store
	schedule *schedule.Manager
	action   *action.Executor
	decay    *decay.Manager
	sim      *simulator.Simulator
	decider  *behavior.Decider
	conv     *conversation.Manager

	roster *config.Roster

	saveInterval time.Duration
	lastSaveAt   time.Time

	decisionJobs    chan decisionJob
	decisionResults chan decisionResult
}

// Deps bundles everything New needs to wire the engine, assembled by the
// boot sequence in cmd/server.
type Deps struct {
	Log          *slog.Logger
	Roster       *config.Roster
	Store        store.Store
	LLM          llm.Client
	MovementSpeed float64
	DecayRates   decay.Rates
	SaveInterval time.Duration
}

// New constructs every component and wires their callbacks, but does not
// start ticking — call Bootstrap then Run.
func New(deps Deps) (*Engine, error) {
	world := worldstate.New(deps.Log)

	clock, err := worldtime.NewClock(deps.Roster.World.Timezone, time.Now())
	if err != nil {
		return nil, err
	}

	e := &Engine{
		log:             deps.Log,
		world:           world,
		maps:            deps.Roster.Maps,
		clock:           clock,
		store:           deps.Store,
		roster:          deps.Roster,
		saveInterval:    deps.SaveInterval,
		decisionJobs:    make(chan decisionJob, 64),
		decisionResults: make(chan decisionResult, 64),
	}

	e.action = action.New(logging.ForComponent(deps.Log, "action"), world, deps.Roster.Maps, config.ActionConfigs(), action.Callbacks{
		OnActionComplete: e.onActionComplete,
		OnRecordHistory:  e.onRecordHistory,
	})

	e.decay = decay.New(logging.ForComponent(deps.Log, "decay"), world, clock, deps.DecayRates, e.action.GetActivePerMinuteEffects, decay.Callbacks{
		OnStatusInterrupt: e.onStatusInterrupt,
	})

	e.sim = simulator.New(logging.ForComponent(deps.Log, "simulator"), world, deps.Roster.Maps, deps.MovementSpeed, simulator.Callbacks{
		OnNavigationComplete: e.onNavigationComplete,
	})

	e.decider = behavior.New(logging.ForComponent(deps.Log, "behavior"), world, deps.Roster.Maps, deps.LLM)

	e.schedule = schedule.New(logging.ForComponent(deps.Log, "schedule"), e.store, config.NewDefaultScheduleProvider(deps.Roster.Characters))

	e.conv = conversation.New(logging.ForComponent(deps.Log, "conversation"), world, e.action, deps.LLM, 64, turnIntervalOrDefault(deps.Roster.World.TurnIntervalMs))
	e.conv.SetStore(e.store, func() int { return world.Time().Day })

	go e.runDecisionWorker()

	return e, nil
}

// turnIntervalOrDefault resolves world.json's turnIntervalMs into a
// conversation pacing delay, falling back to conversation.DefaultTurnInterval
// when unset (spec.md S4.8: "default 60s").
func turnIntervalOrDefault(ms int) time.Duration {
	if ms <= 0 {
		return conversation.DefaultTurnInterval
	}
	return time.Duration(ms) * time.Millisecond
}

// Bootstrap restores WorldState from the durable store, or seeds it fresh
// from the roster on first boot (spec.md S4.9).
func (e *Engine) Bootstrap(ctx context.Context) error {
	has, err := e.store.HasWorldState(ctx)
	if err != nil {
		return err
	}
	if has {
		return e.restore(ctx)
	}
	return e.seedFresh(ctx)
}

func (e *Engine) seedFresh(ctx context.Context) error {
	for _, cb := range e.roster.Characters {
		e.world.AddCharacter(config.NewCharacter(cb))
	}
	for _, nb := range e.roster.NPCs {
		e.world.AddNPC(config.NewNPC(nb))
	}
	e.world.SetCurrentMapID(e.roster.World.StartMapID)

	now := time.Now()
	if err := e.store.SaveMeta(ctx, store.WorldMeta{
		CurrentMapID:    e.roster.World.StartMapID,
		ServerStartTime: now.UnixMilli(),
		Day:             1,
	}); err != nil {
		return err
	}
	clock, err := worldtime.NewClock(e.roster.World.Timezone, now)
	if err != nil {
		return err
	}
	e.clock = clock
	e.log.Info("engine_bootstrap_fresh", slog.Int("characters", len(e.roster.Characters)), slog.Int("npcs", len(e.roster.NPCs)))
	return nil
}

func (e *Engine) restore(ctx context.Context) error {
	meta, err := e.store.LoadMeta(ctx)
	if err != nil {
		return err
	}
	e.world.SetCurrentMapID(meta.CurrentMapID)

	clock, err := worldtime.NewClock(e.roster.World.Timezone, time.UnixMilli(meta.ServerStartTime))
	if err != nil {
		return err
	}
	e.clock = clock

	records, err := e.store.LoadCharacters(ctx)
	if err != nil {
		return err
	}
	for _, r := range records {
		c := &worldstate.Character{
			ID: r.ID, Name: r.Name, Sprite: r.Sprite,
			Money: r.Money, Satiety: r.Satiety, Energy: r.Energy, Hygiene: r.Hygiene, Mood: r.Mood, Bladder: r.Bladder,
			CurrentMapID: r.CurrentMapID, CurrentNodeID: r.CurrentNodeID,
			Position:   worldstate.Position{X: r.PositionX, Y: r.PositionY},
			Direction:  worldstate.Direction(r.Direction),
			Employment: r.Employment,
			Profile:    r.Profile,
		}
		e.world.AddCharacter(c)
	}
	// Any roster character absent from the store (newly added mid-run) still
	// needs a fresh runtime record.
	for _, cb := range e.roster.Characters {
		if _, ok := e.world.Character(cb.ID); !ok {
			e.world.AddCharacter(config.NewCharacter(cb))
		}
	}

	dyn, err := e.store.LoadNPCDynamics(ctx)
	if err != nil {
		return err
	}
	dynByID := make(map[string]store.NPCDynamicRecord, len(dyn))
	for _, d := range dyn {
		dynByID[d.ID] = d
	}
	for _, nb := range e.roster.NPCs {
		n := config.NewNPC(nb)
		if d, ok := dynByID[nb.ID]; ok {
			n.Affinity = d.Affinity
			n.Mood = worldstate.NPCMood(d.Mood)
			n.Facts = d.Facts
			n.ConversationCt = d.ConversationCt
			n.LastConversation = d.LastConversation
		}
		e.world.AddNPC(n)
	}

	e.log.Info("engine_bootstrap_restored", slog.Int("characters", len(records)), slog.Int("npcs", len(dyn)), slog.Int("day", meta.Day))
	return nil
}

// Run blocks, ticking at TickInterval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	e.lastSaveAt = time.Now()

	for {
		select {
		case <-ctx.Done():
			return e.saveState(context.Background())
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick runs one full engine pass in the fixed order spec.md S4.10 requires.
func (e *Engine) tick(ctx context.Context) {
	now := time.Now()
	prevDay := e.world.Time().Day

	e.decay.Tick()
	e.action.Tick(now)
	e.sim.Tick(TickInterval.Seconds(), now)

	e.drainDecisionResults(ctx)
	e.drainConversationEvents()

	newDay := e.world.Time().Day
	if newDay != prevDay {
		e.onDayRollover(newDay)
	}

	e.world.IncrementTick()

	if time.Since(e.lastSaveAt) >= e.saveInterval {
		if err := e.saveState(ctx); err != nil {
			e.log.Warn("save_state_failed", slog.Any("err", err))
		}
		e.lastSaveAt = now
	}
}

func (e *Engine) onDayRollover(day int) {
	e.schedule.ClearAll()
	e.log.Info("day_rollover", slog.Int("day", day))
	if _, err := e.store.PurgeExpiredMidTermMemories(context.Background(), day); err != nil {
		e.log.Warn("purge_memories_failed", slog.Any("err", err))
	}
}

// saveState persists every character and NPC's current snapshot, per
// spec.md S4.9. A failing NPC write is logged and skipped; a failing
// character or meta write is returned.
func (e *Engine) saveState(ctx context.Context) error {
	characters := make([]store.CharacterRecord, 0, len(e.world.Characters()))
	for _, c := range e.world.Characters() {
		characters = append(characters, store.CharacterRecord{
			ID: c.ID, Name: c.Name, Sprite: c.Sprite,
			Money: c.Money, Satiety: c.Satiety, Energy: c.Energy, Hygiene: c.Hygiene, Mood: c.Mood, Bladder: c.Bladder,
			CurrentMapID: c.CurrentMapID, CurrentNodeID: c.CurrentNodeID,
			PositionX: c.Position.X, PositionY: c.Position.Y,
			Direction:  string(c.Direction),
			Employment: c.Employment,
			Profile:    c.Profile,
		})
	}
	if err := e.store.SaveCharacters(ctx, characters); err != nil {
		return err
	}

	for _, n := range e.world.NPCs() {
		if err := e.store.SaveNPCDynamic(ctx, store.NPCDynamicRecord{
			ID: n.ID, Affinity: n.Affinity, Mood: string(n.Mood), Facts: n.Facts,
			ConversationCt: n.ConversationCt, LastConversation: n.LastConversation,
		}); err != nil {
			e.log.Warn("save_npc_dynamic_failed", slog.String("npc_id", n.ID), slog.Any("err", err))
		}
	}

	t := e.world.Time()
	return e.store.SaveMeta(ctx, store.WorldMeta{
		CurrentMapID:    e.world.CurrentMapID(),
		ServerStartTime: e.clock.ServerStart.UnixMilli(),
		Hour:            t.Hour,
		Minute:          t.Minute,
		Day:             t.Day,
	})
}
