package conversation_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/fvdveen/townlife/internal/action"
	"github.com/fvdveen/townlife/internal/conversation"
	"github.com/fvdveen/townlife/internal/gridmap"
	"github.com/fvdveen/townlife/internal/llm"
	"github.com/fvdveen/townlife/internal/memory"
	"github.com/fvdveen/townlife/internal/worldstate"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// unavailableLLM never produces a real completion, forcing the
// post-processor down its fallback summary path.
type unavailableLLM struct{}

func (unavailableLLM) GenerateObject(ctx context.Context, prompt string, schema llm.Schema, opts llm.Options, out any) error {
	return llm.ErrUnavailable
}

func (unavailableLLM) IsAvailable() bool { return false }

type fakeConvStore struct {
	summaries []memory.ConversationSummaryEntry
	memories  []memory.MidTermMemory
}

func (s *fakeConvStore) SaveConversationSummary(ctx context.Context, entry memory.ConversationSummaryEntry) error {
	s.summaries = append(s.summaries, entry)
	return nil
}

func (s *fakeConvStore) SaveMidTermMemory(ctx context.Context, m memory.MidTermMemory) error {
	s.memories = append(s.memories, m)
	return nil
}

// scriptedLLM drives the executor's alternating-utterance loop deterministically:
// the character achieves its goal on the configured turn, the NPC always replies.
type scriptedLLM struct {
	mu             sync.Mutex
	goalOnTurn     int
	characterCalls int
}

func (s *scriptedLLM) IsAvailable() bool { return true }

func (s *scriptedLLM) GenerateObject(ctx context.Context, prompt string, schema llm.Schema, opts llm.Options, out any) error {
	switch schema.Name {
	case llm.CharacterUtteranceSchema.Name:
		s.mu.Lock()
		s.characterCalls++
		turn := s.characterCalls
		s.mu.Unlock()
		achieved := turn >= s.goalOnTurn
		return json.Unmarshal([]byte(`{"utterance":"hello there","goalAchieved":`+boolJSON(achieved)+`}`), out)
	case llm.NPCUtteranceSchema.Name:
		return json.Unmarshal([]byte(`{"utterance":"hello yourself"}`), out)
	case llm.ConversationExtractionSchema.Name:
		return json.Unmarshal([]byte(`{"summary":"they exchanged greetings","affinityChange":5,"updatedFacts":["said hello"],"mood":"happy","topicsDiscussed":["greetings"],"memories":[]}`), out)
	}
	return llm.ErrUnavailable
}

func boolJSON(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func setupManager(t *testing.T) (*conversation.Manager, *worldstate.WorldState) {
	t.Helper()
	world := worldstate.New(testLogger())
	world.AddCharacter(&worldstate.Character{
		ID: "alice", Name: "Alice", CurrentMapID: "town", CurrentNodeID: "n1",
	})
	world.AddNPC(&worldstate.NPC{ID: "mara", MapID: "town", NodeID: "n2", Mood: worldstate.MoodNeutral})

	m := gridmap.NewMap("town", 10, 10, "#000", "n1")
	m.Nodes["n1"] = &gridmap.Node{ID: "n1", X: 0, Y: 0, Type: gridmap.NodeWaypoint, ConnectedTo: map[string]struct{}{}}
	m.Nodes["n2"] = &gridmap.Node{ID: "n2", X: 1, Y: 0, Type: gridmap.NodeWaypoint, ConnectedTo: map[string]struct{}{}}
	maps := gridmap.NewWorld()
	maps.Add(m)

	exec := action.New(testLogger(), world, maps, action.DefaultConfigs(), action.Callbacks{})
	mgr := conversation.New(testLogger(), world, exec, unavailableLLM{}, 8, 0)
	mgr.SetStore(&fakeConvStore{}, func() int { return 1 })
	return mgr, world
}

func TestStartConversationMarksBothSidesBusy(t *testing.T) {
	mgr, world := setupManager(t)

	if err := mgr.StartConversation("alice", "mara", "ask about the weather", "mara mentions the weather"); err != nil {
		t.Fatalf("unexpected error starting conversation: %v", err)
	}

	c, _ := world.Character("alice")
	if c.CurrentAction == nil || c.CurrentAction.ActionID != action.ActionTalk {
		t.Fatalf("expected alice's current action to be talk, got %+v", c.CurrentAction)
	}
	if !c.Conversation.Active || c.Conversation.NPCID != "mara" {
		t.Fatalf("expected alice's conversation ref to point at mara, got %+v", c.Conversation)
	}

	npc, _ := world.NPC("mara")
	if !npc.IsInConversation {
		t.Fatalf("expected mara to be marked in-conversation")
	}

	if _, ok := mgr.Active("alice"); !ok {
		t.Fatalf("expected an active session to be registered for alice")
	}
}

func TestStartConversationRejectsWhenAlreadyActive(t *testing.T) {
	mgr, _ := setupManager(t)

	if err := mgr.StartConversation("alice", "mara", "goal", "success"); err != nil {
		t.Fatalf("unexpected error on first start: %v", err)
	}
	if err := mgr.StartConversation("alice", "mara", "goal2", "success2"); err != conversation.ErrAlreadyInConversation {
		t.Fatalf("expected ErrAlreadyInConversation, got %v", err)
	}
}

func TestStartConversationRejectsUnknownNPC(t *testing.T) {
	mgr, _ := setupManager(t)

	if err := mgr.StartConversation("alice", "ghost", "goal", "success"); err != conversation.ErrNPCNotFound {
		t.Fatalf("expected ErrNPCNotFound, got %v", err)
	}
}

func TestApplyEventMessageAppendsToSession(t *testing.T) {
	mgr, _ := setupManager(t)
	if err := mgr.StartConversation("alice", "mara", "goal", "success"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mgr.ApplyEvent(conversation.Event{
		Kind:        conversation.EventMessage,
		CharacterID: "alice",
		Message:     conversation.Message{Speaker: conversation.SpeakerCharacter, Text: "hello"},
	})

	session, ok := mgr.Active("alice")
	if !ok {
		t.Fatalf("expected alice's session to still be active")
	}
	if len(session.Messages) != 1 || session.Messages[0].Text != "hello" {
		t.Fatalf("expected the message to be appended, got %+v", session.Messages)
	}
}

func TestApplyEventClosedClearsBothSides(t *testing.T) {
	mgr, world := setupManager(t)
	if err := mgr.StartConversation("alice", "mara", "goal", "success"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	session, _ := mgr.Active("alice")

	mgr.ApplyEvent(conversation.Event{Kind: conversation.EventClosed, CharacterID: "alice", Session: session})

	if _, ok := mgr.Active("alice"); ok {
		t.Fatalf("expected the session to be removed from the registry after closing")
	}
	c, _ := world.Character("alice")
	if c.CurrentAction != nil {
		t.Fatalf("expected alice's talk action to be force-completed, got %+v", c.CurrentAction)
	}
	if c.Conversation.Active {
		t.Fatalf("expected alice's conversation ref to be cleared")
	}
	npc, _ := world.NPC("mara")
	if npc.IsInConversation {
		t.Fatalf("expected mara's in-conversation flag to be cleared")
	}
}

func TestApplyEventPostProcessedUpdatesNPCDynamicState(t *testing.T) {
	mgr, world := setupManager(t)

	mgr.ApplyEvent(conversation.Event{
		Kind:        conversation.EventPostProcessed,
		CharacterID: "mara", // post-process events are keyed by NPC ID
		PostProcess: &conversation.PostProcessResult{
			AffinityChange: 15,
			UpdatedFacts:   []string{"likes tea"},
			Mood:           "happy",
		},
	})

	npc, _ := world.NPC("mara")
	if npc.Affinity != 15 {
		t.Fatalf("expected affinity to move to 15, got %v", npc.Affinity)
	}
	if npc.Mood != worldstate.MoodHappy {
		t.Fatalf("expected mood to update to happy, got %v", npc.Mood)
	}
	if len(npc.Facts) != 1 || npc.Facts[0] != "likes tea" {
		t.Fatalf("expected the new fact to be merged in, got %+v", npc.Facts)
	}
	if npc.ConversationCt != 1 {
		t.Fatalf("expected the conversation counter to increment, got %v", npc.ConversationCt)
	}
}

// TestRunExecutorWithZeroIntervalDrivesSessionToClose exercises the actual
// async alternating-utterance loop (runExecutor), not just ApplyEvent in
// isolation: with turnInterval 0 the executor runs to completion without
// sleeping in real time, closing the session once the character's line
// reports the goal achieved.
func TestRunExecutorWithZeroIntervalDrivesSessionToClose(t *testing.T) {
	world := worldstate.New(testLogger())
	world.AddCharacter(&worldstate.Character{
		ID: "alice", Name: "Alice", CurrentMapID: "town", CurrentNodeID: "n1",
	})
	world.AddNPC(&worldstate.NPC{ID: "mara", MapID: "town", NodeID: "n2", Mood: worldstate.MoodNeutral})

	m := gridmap.NewMap("town", 10, 10, "#000", "n1")
	m.Nodes["n1"] = &gridmap.Node{ID: "n1", X: 0, Y: 0, Type: gridmap.NodeWaypoint, ConnectedTo: map[string]struct{}{}}
	m.Nodes["n2"] = &gridmap.Node{ID: "n2", X: 1, Y: 0, Type: gridmap.NodeWaypoint, ConnectedTo: map[string]struct{}{}}
	maps := gridmap.NewWorld()
	maps.Add(m)

	exec := action.New(testLogger(), world, maps, action.DefaultConfigs(), action.Callbacks{})
	client := &scriptedLLM{goalOnTurn: 2}
	mgr := conversation.New(testLogger(), world, exec, client, 8, 0)
	store := &fakeConvStore{}
	mgr.SetStore(store, func() int { return 3 })

	if err := mgr.StartConversation("alice", "mara", "say hello", "mara says hello back"); err != nil {
		t.Fatalf("unexpected error starting conversation: %v", err)
	}

	deadline := time.After(2 * time.Second)
	var closedEvent *conversation.Event
	for closedEvent == nil {
		select {
		case ev := <-mgr.Events():
			mgr.ApplyEvent(ev)
			if ev.Kind == conversation.EventClosed {
				evCopy := ev
				closedEvent = &evCopy
			}
		case <-deadline:
			t.Fatalf("executor did not close the session in time")
		}
	}

	if !closedEvent.Session.GoalAchieved {
		t.Fatalf("expected the session to end with the goal achieved, got %+v", closedEvent.Session)
	}
	if closedEvent.Session.Aborted {
		t.Fatalf("expected the session not to be marked aborted when the goal was achieved")
	}
	// turn 0: character + npc lines; turn 1: character's goal-achieving line
	// breaks the loop before the npc replies.
	if len(closedEvent.Session.Messages) != 3 {
		t.Fatalf("expected 3 messages (char, npc, char), got %d: %+v", len(closedEvent.Session.Messages), closedEvent.Session.Messages)
	}

	// Drain the post-process event too, so the store write is observed.
	select {
	case ev := <-mgr.Events():
		if ev.Kind != conversation.EventPostProcessed {
			t.Fatalf("expected a post-process event next, got %+v", ev)
		}
		mgr.ApplyEvent(ev)
	case <-time.After(2 * time.Second):
		t.Fatalf("post-process event never arrived")
	}

	if len(store.summaries) != 1 || store.summaries[0].Summary != "they exchanged greetings" {
		t.Fatalf("expected the post-processor's summary to be persisted, got %+v", store.summaries)
	}
}
