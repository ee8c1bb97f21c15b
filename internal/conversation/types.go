// Package conversation implements the conversation subsystem (spec.md S4.8,
// component C8): one active session per character, an alternating-utterance
// async executor, and a post-processor that extracts a summary, NPC dynamic-
// state updates and mid-term memories from a closed session.
package conversation

import "time"

// Speaker identifies which side of a session said an utterance.
type Speaker string

const (
	SpeakerCharacter Speaker = "character"
	SpeakerNPC       Speaker = "npc"
)

// Message is one line of dialogue in a session.
type Message struct {
	Speaker   Speaker
	Text      string
	Timestamp int64 // unix millis
}

// Session is an in-progress or just-closed conversation between one
// character and one NPC (spec.md S4.8). At most one session may be active
// per character at a time, keyed by CharacterID in the Manager's registry.
type Session struct {
	ID          string
	CharacterID string
	NPCID       string
	Goal        string
	Success     string

	Messages []Message

	StartedAt   time.Time
	GoalAchieved bool
	Ended       bool
	Aborted     bool // true if ended without the goal achieved (max turns or LLM unavailable)
}

// CurrentTurn is floor(len(messages)/2): how many full (character, npc)
// exchange pairs have happened, per spec.md S4.8.
func (s *Session) CurrentTurn() int {
	return len(s.Messages) / 2
}

// MaxTurns bounds a session length before it's force-ended, per spec.md S4.8.
const MaxTurns = 10

// DefaultTurnInterval is the pacing delay between turns when no world
// config overrides it (spec.md S4.8: "default 60s; configurable; 0 for
// tests").
const DefaultTurnInterval = 60 * time.Second
