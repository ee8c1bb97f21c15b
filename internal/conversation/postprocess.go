package conversation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fvdveen/townlife/internal/llm"
	"github.com/fvdveen/townlife/internal/logging"
	"github.com/fvdveen/townlife/internal/memory"
)

// Store is the subset of the durable StateStore the post-processor writes
// to; defined here rather than importing internal/store directly, to avoid
// a dependency cycle (mirrors schedule.Store's pattern).
type Store interface {
	SaveConversationSummary(ctx context.Context, entry memory.ConversationSummaryEntry) error
	SaveMidTermMemory(ctx context.Context, m memory.MidTermMemory) error
}

// CurrentDayFn supplies the world day the post-processor stamps onto new
// records, without the conversation package importing worldstate's clock.
type CurrentDayFn func() int

// PostProcessResult is the NPC-facing half of extraction's output; the
// engine applies it to WorldState via ApplyEvent (spec.md S5).
type PostProcessResult struct {
	AffinityChange int
	UpdatedFacts   []string
	Mood           string
}

type extraction struct {
	Summary         string
	AffinityChange  int
	UpdatedFacts    []string
	Mood            string
	TopicsDiscussed []string
	Memories        []extractedMemory
}

type extractedMemory struct {
	Content    string
	Importance string
}

// SetStore wires the durable store and day source after construction, since
// both are built after the conversation Manager in the boot sequence.
func (m *Manager) SetStore(store Store, currentDay CurrentDayFn) {
	m.store = store
	m.currentDay = currentDay
}

// postprocess runs the single extraction LLM call on a closed session and
// persists its summary/memories, per spec.md S4.8. It runs off the tick
// thread; its only WorldState-visible effect is the EventPostProcessed it
// posts back for the engine to apply.
func (m *Manager) postprocess(session *Session) {
	ctx := context.Background()

	ex := m.extract(ctx, session)

	day := 0
	if m.currentDay != nil {
		day = m.currentDay()
	}

	if m.store != nil {
		if err := m.store.SaveConversationSummary(ctx, memory.ConversationSummaryEntry{
			CharacterID:     session.CharacterID,
			NPCID:           session.NPCID,
			Day:             day,
			Time:            session.StartedAt.Format("15:04"),
			Summary:         ex.Summary,
			TopicsDiscussed: ex.TopicsDiscussed,
			GoalAchieved:    session.GoalAchieved,
		}); err != nil {
			logging.ForCharacter(m.log, session.CharacterID).Warn("conversation_summary_write_failed", "err", err)
		}

		for _, mm := range ex.Memories {
			importance := memory.Importance(mm.Importance)
			if err := m.store.SaveMidTermMemory(ctx, memory.MidTermMemory{
				ID:          uuid.New().String(),
				CharacterID: session.CharacterID,
				Content:     mm.Content,
				Importance:  importance,
				CreatedDay:  day,
				ExpiresDay:  day + memory.ImportanceOffset(importance),
				SourceNPCID: session.NPCID,
			}); err != nil {
				logging.ForCharacter(m.log, session.CharacterID).Warn("mid_term_memory_write_failed", "err", err)
			}
		}
	}

	m.events <- Event{
		Kind:        EventPostProcessed,
		CharacterID: session.NPCID,
		PostProcess: &PostProcessResult{
			AffinityChange: ex.AffinityChange,
			UpdatedFacts:   ex.UpdatedFacts,
			Mood:           ex.Mood,
		},
	}
}

func (m *Manager) extract(ctx context.Context, session *Session) extraction {
	fallback := extraction{Summary: "A brief conversation took place.", Mood: "neutral"}
	if m.client == nil || !m.client.IsAvailable() {
		return fallback
	}

	prompt := fmt.Sprintf(
		"Summarize this conversation between a character and an NPC. Goal: %s. Transcript:\n%s",
		session.Goal, renderTranscript(session.Messages),
	)

	var out extraction
	if err := m.client.GenerateObject(ctx, prompt, llm.ConversationExtractionSchema, llm.Options{}, &out); err != nil {
		logging.ForCharacter(m.log, session.CharacterID).Warn("conversation_extraction_failed", "err", err)
		return fallback
	}
	return out
}
