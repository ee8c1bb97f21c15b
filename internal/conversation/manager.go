package conversation

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fvdveen/townlife/internal/action"
	"github.com/fvdveen/townlife/internal/llm"
	"github.com/fvdveen/townlife/internal/logging"
	"github.com/fvdveen/townlife/internal/worldstate"
)

var (
	ErrAlreadyInConversation    = errors.New("conversation: character already has an active session")
	ErrNPCNotFound              = errors.New("conversation: npc not found")
	ErrNPCAlreadyInConversation = errors.New("conversation: npc already in a conversation")
)

// EventKind discriminates the async executor's output, per spec.md S5: the
// executor never touches WorldState directly, it only posts events the
// engine's tick loop drains and applies.
type EventKind string

const (
	EventMessage       EventKind = "message"
	EventClosed        EventKind = "closed"
	EventPostProcessed EventKind = "postProcessed"
)

// Event is one item the async conversation executor posts back to the
// engine's bounded result queue.
type Event struct {
	Kind        EventKind
	CharacterID string
	Message     Message          // EventMessage
	Session     *Session         // EventClosed
	PostProcess *PostProcessResult // EventPostProcessed
}

// Manager is the conversation subsystem's session registry (component C8).
type Manager struct {
	log      *slog.Logger
	world    *worldstate.WorldState
	executor *action.Executor
	client   llm.Client

	sessions map[string]*Session // characterID -> active session
	events   chan Event

	turnInterval time.Duration

	store      Store
	currentDay CurrentDayFn
}

// New constructs a Manager. turnInterval is the pacing delay between
// alternating utterances (spec.md S4.8) — 0 disables the delay, which tests
// rely on to exercise runExecutor without sleeping in real time.
func New(log *slog.Logger, world *worldstate.WorldState, executor *action.Executor, client llm.Client, queueSize int, turnInterval time.Duration) *Manager {
	return &Manager{
		log:          log,
		world:        world,
		executor:     executor,
		client:       client,
		sessions:     make(map[string]*Session),
		events:       make(chan Event, queueSize),
		turnInterval: turnInterval,
	}
}

// Events exposes the channel the engine drains every tick.
func (m *Manager) Events() <-chan Event { return m.events }

// Active reports whether characterID currently has an open session.
func (m *Manager) Active(characterID string) (*Session, bool) {
	s, ok := m.sessions[characterID]
	return s, ok
}

// StartConversation validates and opens a new session, per spec.md S4.8:
// the character must have no active session, and the NPC must exist and not
// already be in a conversation. On success it marks both sides busy — the
// character's current action becomes "talk" (never auto-completes) and the
// NPC's IsInConversation flag is set — and launches the async alternating-
// utterance executor.
func (m *Manager) StartConversation(characterID, npcID, goal, successCriteria string) error {
	if _, ok := m.sessions[characterID]; ok {
		return ErrAlreadyInConversation
	}
	npc, ok := m.world.NPC(npcID)
	if !ok {
		return ErrNPCNotFound
	}
	if npc.IsInConversation {
		return ErrNPCAlreadyInConversation
	}

	c, ok := m.world.Character(characterID)
	if !ok {
		return errors.New("conversation: character not found")
	}

	ok2, reason := m.executor.StartAction(characterID, action.ActionTalk, "", npcID, 0, "conversation: "+goal, action.StartOptions{})
	if !ok2 {
		return errors.New("conversation: cannot start talk action: " + reason)
	}
	if err := m.world.SetNPCInConversation(npcID, true); err != nil {
		m.executor.ForceComplete(characterID)
		return err
	}
	_ = m.world.SetCharacterConversation(characterID, true, npcID)

	session := &Session{
		ID:          uuid.New().String(),
		CharacterID: characterID,
		NPCID:       npcID,
		Goal:        goal,
		Success:     successCriteria,
		StartedAt:   time.Now(),
	}
	m.sessions[characterID] = session

	// Snapshot the fields the async executor needs, so it never reads
	// WorldState from outside the tick goroutine (spec.md S5).
	participants := participantContext{
		characterName: c.Name,
		personality:   profileDescription(c.Profile),
		npcName:       npcID,
		npcFacts:      append([]string(nil), npc.Facts...),
		npcMood:       string(npc.Mood),
	}

	logging.ForCharacter(m.log, characterID).Info("conversation_start", slog.String("npc_id", npcID), slog.String("goal", goal))

	go m.runExecutor(session, participants)

	return nil
}

func profileDescription(p *worldstate.Profile) string {
	if p == nil {
		return ""
	}
	return p.Personality
}

// ApplyEvent is called from the engine's tick loop to fold one drained
// event into the session registry and WorldState.
func (m *Manager) ApplyEvent(ev Event) {
	// EventPostProcessed arrives after closeSession has already removed the
	// session from the registry, and is keyed by NPC ID rather than
	// character ID, so it's handled before the session lookup below.
	if ev.Kind == EventPostProcessed {
		m.applyPostProcess(ev.CharacterID, ev.PostProcess)
		return
	}

	session, ok := m.sessions[ev.CharacterID]
	if !ok {
		return
	}

	switch ev.Kind {
	case EventMessage:
		session.Messages = append(session.Messages, ev.Message)
	case EventClosed:
		m.closeSession(session)
		go m.postprocess(session)
	}
}

// applyPostProcess folds the post-processor's NPC-facing updates into
// WorldState; called from the tick thread only (spec.md S5).
func (m *Manager) applyPostProcess(npcID string, r *PostProcessResult) {
	npc, ok := m.world.NPC(npcID)
	if !ok {
		return
	}
	npc.Affinity = clampAffinity(npc.Affinity + float64(r.AffinityChange))
	if r.Mood != "" {
		npc.Mood = worldstate.NPCMood(r.Mood)
	}
	npc.Facts = mergeFacts(npc.Facts, r.UpdatedFacts)
	npc.ConversationCt++
	npc.LastConversation = time.Now().UnixMilli()

	m.log.Info("conversation_postprocessed",
		slog.String("npc_id", npcID),
		slog.Int("affinity_change", r.AffinityChange),
		slog.String("mood", r.Mood),
	)
}

func clampAffinity(v float64) float64 {
	if v < -100 {
		return -100
	}
	if v > 100 {
		return 100
	}
	return v
}

func mergeFacts(existing, added []string) []string {
	seen := make(map[string]struct{}, len(existing))
	out := append([]string(nil), existing...)
	for _, f := range existing {
		seen[f] = struct{}{}
	}
	for _, f := range added {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// closeSession tears down the WorldState-visible conversation flags; called
// from the tick thread only (spec.md S5).
func (m *Manager) closeSession(session *Session) {
	delete(m.sessions, session.CharacterID)
	m.executor.ForceComplete(session.CharacterID)
	_ = m.world.SetNPCInConversation(session.NPCID, false)
	_ = m.world.SetCharacterConversation(session.CharacterID, false, "")

	logging.ForCharacter(m.log, session.CharacterID).Info("conversation_end",
		slog.String("npc_id", session.NPCID),
		slog.Bool("goal_achieved", session.GoalAchieved),
		slog.Bool("aborted", session.Aborted),
		slog.Int("turns", session.CurrentTurn()),
	)
}
