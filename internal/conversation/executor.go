package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fvdveen/townlife/internal/llm"
	"github.com/fvdveen/townlife/internal/logging"
)

// participantContext is the read-only snapshot the async executor carries
// instead of touching WorldState, per spec.md S5's background-task rule.
type participantContext struct {
	characterName string
	personality   string
	npcName       string
	npcFacts      []string
	npcMood       string
}

type characterUtterance struct {
	Utterance    string
	GoalAchieved bool
}

type npcUtterance struct {
	Utterance string
}

// runExecutor is the alternating-utterance async loop (spec.md S4.8): the
// character speaks first, then the NPC, pausing turnIntervalMs between each
// line, until the character's utterance reports the goal achieved, MaxTurns
// is hit, or the LLM reports itself unavailable at the start of a turn.
func (m *Manager) runExecutor(session *Session, p participantContext) {
	ctx := context.Background()

	for turn := 0; turn < MaxTurns; turn++ {
		if m.client == nil || !m.client.IsAvailable() {
			break
		}
		characterLine := m.generateCharacterUtterance(ctx, session, p)
		m.events <- Event{Kind: EventMessage, CharacterID: session.CharacterID, Message: Message{
			Speaker: SpeakerCharacter, Text: characterLine.Utterance, Timestamp: time.Now().UnixMilli(),
		}}

		if characterLine.GoalAchieved {
			session.GoalAchieved = true
			break
		}

		time.Sleep(m.turnInterval)

		npcLine := m.generateNPCUtterance(ctx, session, p, characterLine.Utterance)
		m.events <- Event{Kind: EventMessage, CharacterID: session.CharacterID, Message: Message{
			Speaker: SpeakerNPC, Text: npcLine.Utterance, Timestamp: time.Now().UnixMilli(),
		}}

		time.Sleep(m.turnInterval)
	}

	if !session.GoalAchieved {
		session.Aborted = true
	}

	m.events <- Event{Kind: EventClosed, CharacterID: session.CharacterID, Session: session}
}

func (m *Manager) generateCharacterUtterance(ctx context.Context, session *Session, p participantContext) characterUtterance {
	fallback := characterUtterance{Utterance: "えっと...", GoalAchieved: false}
	if m.client == nil || !m.client.IsAvailable() {
		return fallback
	}

	prompt := fmt.Sprintf(
		"%s is talking with %s. Personality: %s. Goal of this conversation: %s (success means: %s). Conversation so far:\n%s\nWrite %s's next line and whether the goal has now been achieved.",
		p.characterName, p.npcName, p.personality, session.Goal, session.Success, renderTranscript(session.Messages), p.characterName,
	)

	var out characterUtterance
	if err := m.client.GenerateObject(ctx, prompt, llm.CharacterUtteranceSchema, llm.Options{}, &out); err != nil {
		logging.ForCharacter(m.log, session.CharacterID).Warn("conversation_llm_failed", "side", "character", "err", err)
		return fallback
	}
	return out
}

func (m *Manager) generateNPCUtterance(ctx context.Context, session *Session, p participantContext, lastCharacterLine string) npcUtterance {
	fallback := npcUtterance{Utterance: "そうですね..."}
	if m.client == nil || !m.client.IsAvailable() {
		return fallback
	}

	prompt := fmt.Sprintf(
		"%s (mood: %s, known facts: %s) is talking with %s. %s just said: %q. Conversation so far:\n%s\nWrite %s's reply.",
		p.npcName, p.npcMood, strings.Join(p.npcFacts, "; "), p.characterName, p.characterName, lastCharacterLine, renderTranscript(session.Messages), p.npcName,
	)

	var out npcUtterance
	if err := m.client.GenerateObject(ctx, prompt, llm.NPCUtteranceSchema, llm.Options{}, &out); err != nil {
		logging.ForCharacter(m.log, session.CharacterID).Warn("conversation_llm_failed", "side", "npc", "err", err)
		return fallback
	}
	return out
}

func renderTranscript(messages []Message) string {
	var b strings.Builder
	for _, msg := range messages {
		fmt.Fprintf(&b, "%s: %s\n", msg.Speaker, msg.Text)
	}
	return b.String()
}
