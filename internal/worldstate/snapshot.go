package worldstate

// ObservableCharacter is the broadcast-safe view of one character, per
// spec.md S6.
type ObservableCharacter struct {
	Position      Position
	Direction     Direction
	CurrentMapID  string
	CurrentNodeID string
	Stats         map[string]float64
	DisplayEmoji  string
	Conversation  *ConversationRef
	CurrentAction *ActionState
}

// ObservableNPC is the broadcast-safe view of one NPC.
type ObservableNPC struct {
	MapID            string
	Position         Position
	Direction        Direction
	IsInConversation bool
}

// ObservableTransition mirrors the in-flight map transition, if any.
type ObservableTransition struct {
	IsTransitioning bool
	FromMapID       string
	ToMapID         string
	Progress        float64
}

// ObservableWorld is the deep-copied, language-neutral snapshot clients
// consume (spec.md S6's "Observable world snapshot").
type ObservableWorld struct {
	Characters    map[string]ObservableCharacter
	NPCs          map[string]ObservableNPC
	CurrentMapID  string
	Time          Time
	IsPaused      bool
	Transition    ObservableTransition
	Tick          uint64
}

// Snapshot deep-copies the current world into an ObservableWorld, safe to
// hand to an adapter for broadcast (spec.md S4.1 serializedState()).
func (w *WorldState) Snapshot() ObservableWorld {
	chars := make(map[string]ObservableCharacter, len(w.characters))
	for id, c := range w.characters {
		stats := map[string]float64{
			"satiety": c.Satiety,
			"energy":  c.Energy,
			"hygiene": c.Hygiene,
			"mood":    c.Mood,
			"bladder": c.Bladder,
		}
		var convRef *ConversationRef
		if c.Conversation.Active {
			ref := c.Conversation
			convRef = &ref
		}
		var action *ActionState
		if c.CurrentAction != nil {
			a := *c.CurrentAction
			action = &a
		}
		chars[id] = ObservableCharacter{
			Position:      c.Position,
			Direction:     c.Direction,
			CurrentMapID:  c.CurrentMapID,
			CurrentNodeID: c.CurrentNodeID,
			Stats:         stats,
			DisplayEmoji:  c.DisplayEmoji,
			Conversation:  convRef,
			CurrentAction: action,
		}
	}

	npcs := make(map[string]ObservableNPC, len(w.npcs))
	for id, n := range w.npcs {
		npcs[id] = ObservableNPC{
			MapID:            n.MapID,
			Position:         n.Position,
			Direction:        n.Direction,
			IsInConversation: n.IsInConversation,
		}
	}

	var obsTransition ObservableTransition
	// Report the first active transition found; in practice transitions
	// are reported per-character by adapters, this aggregate mirrors the
	// teacher's single-player client assumption from spec.md S6.
	for _, tr := range w.transition.active {
		obsTransition = ObservableTransition{
			IsTransitioning: true,
			FromMapID:       tr.FromMapID,
			ToMapID:         tr.ToMapID,
			Progress:        tr.Progress,
		}
		break
	}

	return ObservableWorld{
		Characters:   chars,
		NPCs:         npcs,
		CurrentMapID: w.currentMapID,
		Time:         w.time,
		IsPaused:     w.paused,
		Transition:   obsTransition,
		Tick:         w.tick,
	}
}
