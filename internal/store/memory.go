package store

import (
	"context"
	"sync"

	"github.com/fvdveen/townlife/internal/action"
	"github.com/fvdveen/townlife/internal/memory"
	"github.com/fvdveen/townlife/internal/schedule"
)

// MemoryStore is an in-process Store, used by tests and as a fallback when
// no durable store path is configured. Schedule, history and summary slices
// are copied on write or read; character and NPC records are stored by
// value, so their pointer and slice fields (Sprite, Employment, Profile,
// Facts) stay shared with the caller.
type MemoryStore struct {
	mu sync.Mutex

	hasState bool
	meta     WorldMeta

	characters map[string]CharacterRecord
	npcs       map[string]NPCDynamicRecord

	schedules map[dayKey][]schedule.Entry
	history   map[dayKey][]action.HistoryEntry

	summaries map[string][]memory.ConversationSummaryEntry // characterID
	memories  map[string][]memory.MidTermMemory             // characterID
}

type dayKey struct {
	characterID string
	day         int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		characters: make(map[string]CharacterRecord),
		npcs:       make(map[string]NPCDynamicRecord),
		schedules:  make(map[dayKey][]schedule.Entry),
		history:    make(map[dayKey][]action.HistoryEntry),
		summaries:  make(map[string][]memory.ConversationSummaryEntry),
		memories:   make(map[string][]memory.MidTermMemory),
	}
}

func (s *MemoryStore) HasWorldState(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasState, nil
}

func (s *MemoryStore) LoadMeta(ctx context.Context) (WorldMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta, nil
}

func (s *MemoryStore) SaveMeta(ctx context.Context, meta WorldMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = meta
	return nil
}

func (s *MemoryStore) SaveCharacters(ctx context.Context, characters []CharacterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range characters {
		s.characters[c.ID] = c
	}
	s.hasState = true
	return nil
}

func (s *MemoryStore) LoadCharacters(ctx context.Context) ([]CharacterRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CharacterRecord, 0, len(s.characters))
	for _, c := range s.characters {
		out = append(out, c)
	}
	return out, nil
}

func (s *MemoryStore) SaveSchedule(ctx context.Context, characterID string, day int, entries []schedule.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := append([]schedule.Entry(nil), entries...)
	s.schedules[dayKey{characterID, day}] = cp
	return nil
}

func (s *MemoryStore) LoadSchedule(ctx context.Context, characterID string, day int) ([]schedule.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schedule.Entry(nil), s.schedules[dayKey{characterID, day}]...), nil
}

func (s *MemoryStore) AppendActionHistory(ctx context.Context, characterID string, day int, entry action.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := dayKey{characterID, day}
	s.history[key] = append(s.history[key], entry)
	return nil
}

func (s *MemoryStore) LoadActionHistory(ctx context.Context, characterID string, day int) ([]action.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]action.HistoryEntry(nil), s.history[dayKey{characterID, day}]...), nil
}

func (s *MemoryStore) SaveNPCDynamic(ctx context.Context, rec NPCDynamicRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.npcs[rec.ID] = rec
	return nil
}

func (s *MemoryStore) LoadNPCDynamics(ctx context.Context) ([]NPCDynamicRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]NPCDynamicRecord, 0, len(s.npcs))
	for _, n := range s.npcs {
		out = append(out, n)
	}
	return out, nil
}

func (s *MemoryStore) SaveConversationSummary(ctx context.Context, entry memory.ConversationSummaryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[entry.CharacterID] = append(s.summaries[entry.CharacterID], entry)
	return nil
}

func (s *MemoryStore) RecentConversationSummaries(ctx context.Context, characterID string, limit int) ([]memory.ConversationSummaryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.summaries[characterID]
	if limit <= 0 || limit >= len(all) {
		return append([]memory.ConversationSummaryEntry(nil), all...), nil
	}
	return append([]memory.ConversationSummaryEntry(nil), all[len(all)-limit:]...), nil
}

func (s *MemoryStore) SaveMidTermMemory(ctx context.Context, m memory.MidTermMemory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories[m.CharacterID] = append(s.memories[m.CharacterID], m)
	return nil
}

func (s *MemoryStore) ActiveMidTermMemories(ctx context.Context, characterID string, currentDay int) ([]memory.MidTermMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []memory.MidTermMemory
	for _, m := range s.memories[characterID] {
		if m.Active(currentDay) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *MemoryStore) PurgeExpiredMidTermMemories(ctx context.Context, currentDay int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var purged int64
	for cid, ms := range s.memories {
		kept := ms[:0:0]
		for _, m := range ms {
			if m.Active(currentDay) {
				kept = append(kept, m)
			} else {
				purged++
			}
		}
		s.memories[cid] = kept
	}
	return purged, nil
}

func (s *MemoryStore) Close() error { return nil }
