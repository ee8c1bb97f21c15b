// Package store implements the StateStore (spec.md S4.9, component C9):
// durable persistence for everything that must survive a restart. Two
// implementations satisfy the same interface — an in-memory store for tests
// and a SQLite-backed store (via jmoiron/sqlx + modernc.org/sqlite,
// following the teacher pack's persistence layer) for production.
package store

import (
	"context"
	"encoding/json"

	"github.com/fvdveen/townlife/internal/action"
	"github.com/fvdveen/townlife/internal/memory"
	"github.com/fvdveen/townlife/internal/schedule"
	"github.com/fvdveen/townlife/internal/worldstate"
)

// CharacterRecord is the persisted projection of worldstate.Character —
// only the fields spec.md S3 marks as surviving a restart.
type CharacterRecord struct {
	ID            string
	Name          string
	Sprite        json.RawMessage
	Money         float64
	Satiety       float64
	Energy        float64
	Hygiene       float64
	Mood          float64
	Bladder       float64
	CurrentMapID  string
	CurrentNodeID string
	PositionX     float64
	PositionY     float64
	Direction     string
	Employment    *worldstate.Employment
	Profile       *worldstate.Profile
}

// NPCDynamicRecord is the persisted dynamic half of an NPC's state; its
// static profile (name, sprite, home map) lives in config, not the store.
type NPCDynamicRecord struct {
	ID               string
	Affinity         float64
	Mood             string
	Facts            []string
	ConversationCt   int
	LastConversation int64
}

// WorldMeta is the handful of top-level facts a restart needs to resume
// exactly where the simulation left off (spec.md S4.9/S4.10).
type WorldMeta struct {
	CurrentMapID    string
	ServerStartTime int64 // unix millis
	Hour, Minute    int
	Day             int
}

// Store is the full StateStore capability the engine depends on. It also
// satisfies schedule.Store and conversation.Store structurally, so the
// schedule manager and conversation post-processor can be constructed
// against the same concrete value without this package importing theirs.
type Store interface {
	// --- snapshot / meta ---
	HasWorldState(ctx context.Context) (bool, error)
	LoadMeta(ctx context.Context) (WorldMeta, error)
	SaveMeta(ctx context.Context, meta WorldMeta) error

	// --- characters ---
	SaveCharacters(ctx context.Context, characters []CharacterRecord) error
	LoadCharacters(ctx context.Context) ([]CharacterRecord, error)

	// --- schedules / history (schedule.Store) ---
	SaveSchedule(ctx context.Context, characterID string, day int, entries []schedule.Entry) error
	LoadSchedule(ctx context.Context, characterID string, day int) ([]schedule.Entry, error)
	AppendActionHistory(ctx context.Context, characterID string, day int, entry action.HistoryEntry) error
	LoadActionHistory(ctx context.Context, characterID string, day int) ([]action.HistoryEntry, error)

	// --- NPC dynamic state / conversation summaries ---
	SaveNPCDynamic(ctx context.Context, rec NPCDynamicRecord) error
	LoadNPCDynamics(ctx context.Context) ([]NPCDynamicRecord, error)
	SaveConversationSummary(ctx context.Context, entry memory.ConversationSummaryEntry) error
	RecentConversationSummaries(ctx context.Context, characterID string, limit int) ([]memory.ConversationSummaryEntry, error)

	// --- mid-term memories ---
	SaveMidTermMemory(ctx context.Context, m memory.MidTermMemory) error
	ActiveMidTermMemories(ctx context.Context, characterID string, currentDay int) ([]memory.MidTermMemory, error)
	PurgeExpiredMidTermMemories(ctx context.Context, currentDay int) (int64, error)

	Close() error
}
