// Package action implements the ActionExecutor (spec.md S4.4, component
// C4): admission control, the timed action lifecycle, perMinute vs fixed
// effects, wage accrual and the emoji the client shows while an action runs.
package action

// Effects is a tagged union of the two shapes an ActionConfig's payoff can
// take, per spec.md S9 "Polymorphism": fixed actions apply their effects
// once on completion; variable-duration actions expose a perMinute map that
// the decay subsystem (C5) reads every tick while the action is active.
type Effects struct {
	Fixed     map[string]float64 // stat -> delta, applied once on completion
	PerMinute map[string]float64 // stat -> delta/min, applied by decay while active
	WageStat  string             // stat name that should receive hourlyWage * hoursWorked, usually "money"
}

// DurationRange bounds a variable-duration action's requested duration.
type DurationRange struct {
	Min, Max, Default int // minutes
}

// Config is one entry of the action taxonomy (spec.md S4.4's sentinel set,
// extensible by the implementer).
type Config struct {
	ID       string
	Fixed    bool
	Duration int // minutes, only meaningful when Fixed
	Range    DurationRange
	Effects  Effects
	Emoji    string

	RequiredFacilityTags []string
	RequiresEmployment   bool
	RequiresNearNPC      bool

	// NeverAutoCompletes marks actions the tick loop must never close on
	// its own — "thinking" and "talk" per spec.md S4.4 — they are closed
	// by the caller (behavior/conversation layers).
	NeverAutoCompletes bool
}

// ActionThinking is the sentinel scheduling placeholder used while a
// behavior decision is in flight (spec.md S4.7).
const ActionThinking = "thinking"

// ActionTalk is the sentinel action a character holds while in conversation.
const ActionTalk = "talk"

// DefaultConfigs is the baseline action taxonomy from spec.md S4.4.
func DefaultConfigs() map[string]Config {
	return map[string]Config{
		"eat": {
			ID: "eat", Fixed: false,
			Range:   DurationRange{Min: 5, Max: 30, Default: 15},
			Effects: Effects{PerMinute: map[string]float64{"satiety": 2.0, "money": -0.1}},
			Emoji:   "🍔",
			RequiredFacilityTags: []string{"food"},
		},
		"sleep": {
			ID: "sleep", Fixed: false,
			Range:   DurationRange{Min: 30, Max: 480, Default: 240},
			Effects: Effects{PerMinute: map[string]float64{"energy": 0.5}},
			Emoji:   "💤",
			RequiredFacilityTags: []string{"bed"},
		},
		"toilet": {
			ID: "toilet", Fixed: true, Duration: 5,
			Effects: Effects{Fixed: map[string]float64{"bladder": 100}},
			Emoji:   "🚽",
			RequiredFacilityTags: []string{"toilet"},
		},
		"bathe": {
			ID: "bathe", Fixed: false,
			Range:   DurationRange{Min: 10, Max: 30, Default: 15},
			Effects: Effects{PerMinute: map[string]float64{"hygiene": 6.0}},
			Emoji:   "🛁",
			RequiredFacilityTags: []string{"bath"},
		},
		"rest": {
			ID: "rest", Fixed: false,
			Range:   DurationRange{Min: 5, Max: 60, Default: 20},
			Effects: Effects{PerMinute: map[string]float64{"mood": 1.0}},
			Emoji:   "🧘",
		},
		"talk": {
			ID: "talk", Fixed: true, Duration: 0,
			NeverAutoCompletes: true,
			Emoji:              "💬",
			RequiresNearNPC:    true,
		},
		"work": {
			ID: "work", Fixed: false,
			Range:   DurationRange{Min: 30, Max: 480, Default: 240},
			Effects: Effects{PerMinute: map[string]float64{"mood": -0.2}, WageStat: "money"},
			Emoji:   "💼",
			RequiresEmployment: true,
		},
		"thinking": {
			ID: ActionThinking, Fixed: true, Duration: 0,
			NeverAutoCompletes: true,
		},
	}
}
