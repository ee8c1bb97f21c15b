package decay_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/fvdveen/townlife/internal/decay"
	"github.com/fvdveen/townlife/internal/worldstate"
	"github.com/fvdveen/townlife/internal/worldtime"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTickDecaysStatsAndFiresHighestPriorityInterrupt(t *testing.T) {
	world := worldstate.New(testLogger())
	world.AddCharacter(&worldstate.Character{
		ID: "alice", Satiety: 100, Energy: 100, Hygiene: 100, Mood: 100, Bladder: 100,
	})

	clock, err := worldtime.NewClock("UTC", time.Now().Add(-10*time.Minute))
	if err != nil {
		t.Fatalf("unexpected clock error: %v", err)
	}

	// Rates are scaled large enough that even a few milliseconds of elapsed
	// wall time clamps the stat to zero, so the test isn't sensitive to
	// scheduler jitter.
	rates := decay.Rates{
		SatietyPerMinute: 10_000_000,
		BladderPerMinute: 10_000_000,
		EnergyPerMinute:  0,
		HygienePerMinute: 0,
	}

	var interrupted []string
	m := decay.New(testLogger(), world, clock, rates, func(string) map[string]float64 { return nil }, decay.Callbacks{
		OnStatusInterrupt: func(characterID, statType string) { interrupted = append(interrupted, statType) },
	})

	time.Sleep(10 * time.Millisecond)
	m.Tick()

	c, _ := world.Character("alice")
	if c.Satiety != 0 {
		t.Fatalf("expected satiety clamped to 0, got %v", c.Satiety)
	}
	if c.Bladder != 0 {
		t.Fatalf("expected bladder clamped to 0, got %v", c.Bladder)
	}
	if c.Energy != 100 || c.Hygiene != 100 {
		t.Fatalf("expected energy/hygiene untouched with a zero rate, got energy=%v hygiene=%v", c.Energy, c.Hygiene)
	}
	if len(interrupted) == 0 {
		t.Fatalf("expected a status interrupt to fire once satiety/bladder tripped the threshold")
	}
	if interrupted[0] != "bladder" {
		t.Fatalf("expected bladder to win the tie-break (higher PriorityOrder) over satiety, got %q", interrupted[0])
	}
}

func TestPriorityOrderPicksBladderOverSatiety(t *testing.T) {
	world := worldstate.New(testLogger())
	world.AddCharacter(&worldstate.Character{
		ID: "alice", Satiety: 15, Energy: 100, Hygiene: 100, Mood: 100, Bladder: 15,
	})

	clock, err := worldtime.NewClock("UTC", time.Now())
	if err != nil {
		t.Fatalf("unexpected clock error: %v", err)
	}

	rates := decay.Rates{SatietyPerMinute: 10_000_000, BladderPerMinute: 10_000_000}

	var got string
	m := decay.New(testLogger(), world, clock, rates, func(string) map[string]float64 { return nil }, decay.Callbacks{
		OnStatusInterrupt: func(characterID, statType string) {
			if got == "" {
				got = statType
			}
		},
	})

	time.Sleep(10 * time.Millisecond)
	m.Tick()

	if got != "bladder" {
		t.Fatalf("expected bladder to win the tie-break over satiety, got %q", got)
	}
}

func TestForcedActionMapping(t *testing.T) {
	cases := map[string]string{
		"bladder": "toilet",
		"satiety": "eat",
		"energy":  "sleep",
		"hygiene": "bathe",
	}
	for stat, want := range cases {
		if got := decay.ForcedAction[stat]; got != want {
			t.Fatalf("ForcedAction[%q] = %q, want %q", stat, got, want)
		}
	}
}
