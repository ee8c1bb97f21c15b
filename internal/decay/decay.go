// Package decay implements the TimeManager (spec.md S4.5, component C5):
// real-clock driven world time, scaled status decay, and low-status
// interrupt signaling.
package decay

import (
	"log/slog"
	"time"

	"github.com/fvdveen/townlife/internal/logging"
	"github.com/fvdveen/townlife/internal/worldstate"
	"github.com/fvdveen/townlife/internal/worldtime"
)

// Rates holds per-minute decay rates for the five decaying stats.
type Rates struct {
	SatietyPerMinute float64
	BladderPerMinute float64
	EnergyPerMinute  float64
	HygienePerMinute float64
	MoodPerMinute    float64
}

func (r Rates) forStat(stat string) float64 {
	switch stat {
	case "satiety":
		return r.SatietyPerMinute
	case "bladder":
		return r.BladderPerMinute
	case "energy":
		return r.EnergyPerMinute
	case "hygiene":
		return r.HygienePerMinute
	case "mood":
		return r.MoodPerMinute
	}
	return 0
}

// InterruptThreshold is the "low status" cutoff from spec.md S4.5.
const InterruptThreshold = 10.0

// ForcedAction maps a tripped stat to the action an interrupt should force.
var ForcedAction = map[string]string{
	"bladder": "toilet",
	"satiety": "eat",
	"energy":  "sleep",
	"hygiene": "bathe",
}

// PriorityOrder is the tie-break order when multiple stats trip in the same
// pass, per spec.md S4.5.
var PriorityOrder = []string{"bladder", "satiety", "energy", "hygiene"}

// ActiveEffects looks up a character's currently-accruing perMinute effects;
// the action executor is the sole implementation, injected as a function to
// avoid an import cycle between action and decay.
type ActiveEffectsFn func(characterID string) map[string]float64

// Callbacks fired from the engine's single tick goroutine.
type Callbacks struct {
	OnStatusInterrupt func(characterID, statType string)
}

// Manager is the TimeManager (component C5).
type Manager struct {
	log          *slog.Logger
	world        *worldstate.WorldState
	clock        *worldtime.Clock
	rates        Rates
	activeEffect ActiveEffectsFn
	cb           Callbacks

	lastDecayAt  time.Time
	wasBelow     map[string]map[string]bool // characterID -> stat -> was-below-threshold
}

func New(log *slog.Logger, world *worldstate.WorldState, clock *worldtime.Clock, rates Rates, activeEffects ActiveEffectsFn, cb Callbacks) *Manager {
	return &Manager{
		log:          log,
		world:        world,
		clock:        clock,
		rates:        rates,
		activeEffect: activeEffects,
		cb:           cb,
		lastDecayAt:  clock.RealNow(),
		wasBelow:     make(map[string]map[string]bool),
	}
}

// GetCurrentRealTime returns the clock-derived WorldTime.
func (m *Manager) GetCurrentRealTime() worldtime.WorldTime {
	return m.clock.Now()
}

// Tick applies decay for elapsed minutes since the last decay pass and
// pushes the derived WorldTime into WorldState (spec.md S4.5, engine step
// 1-2).
func (m *Manager) Tick() {
	m.world.SetTime(m.clock.Now())

	now := m.clock.RealNow()
	elapsedMinutes := now.Sub(m.lastDecayAt).Minutes()
	if elapsedMinutes <= 0 {
		return
	}
	m.lastDecayAt = now

	for id, c := range m.world.Characters() {
		active := m.activeEffect(id)
		tripped := map[string]bool{}

		for _, stat := range worldstate.StatNames {
			old := c.Stat(stat)
			rate := m.rates.forStat(stat)
			perMinute := 0.0
			if active != nil {
				perMinute = active[stat]
			}
			newVal := old - rate*elapsedMinutes + perMinute*elapsedMinutes
			if newVal < 0 {
				newVal = 0
			}
			if newVal > 100 {
				newVal = 100
			}
			c.SetStat(stat, newVal)

			wasBelow := old < InterruptThreshold
			isBelow := newVal < InterruptThreshold
			if !wasBelow && isBelow {
				tripped[stat] = true
			}
		}

		m.fireHighestPriorityInterrupt(id, tripped)
	}

	m.decayNPCMood()
}

func (m *Manager) fireHighestPriorityInterrupt(characterID string, tripped map[string]bool) {
	if len(tripped) == 0 {
		return
	}
	for _, stat := range PriorityOrder {
		if tripped[stat] {
			if m.cb.OnStatusInterrupt != nil {
				m.cb.OnStatusInterrupt(characterID, stat)
			}
			logging.ForCharacter(m.log, characterID).Info("status_interrupt", slog.String("stat", stat))
			return
		}
	}
}

// decayNPCMood relaxes NPC mood back toward neutral between conversations,
// a supplemented feature (see SPEC_FULL.md) absent from spec.md's core but
// not excluded by any Non-goal.
func (m *Manager) decayNPCMood() {
	for _, n := range m.world.NPCs() {
		if n.IsInConversation {
			continue
		}
		switch n.Mood {
		case worldstate.MoodHappy, worldstate.MoodExcited, worldstate.MoodSad, worldstate.MoodAngry:
			// A long enough gap since the last conversation relaxes
			// toward neutral; evaluated lazily rather than timer-driven.
			if n.LastConversation == 0 {
				continue
			}
			elapsed := m.clock.RealNow().Sub(time.UnixMilli(n.LastConversation))
			if elapsed > 24*time.Hour {
				n.Mood = worldstate.MoodNeutral
			}
		}
	}
}
