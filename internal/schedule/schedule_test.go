package schedule_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/fvdveen/townlife/internal/action"
	"github.com/fvdveen/townlife/internal/schedule"
)

type fakeStore struct {
	schedules map[string][]schedule.Entry
	history   map[string][]action.HistoryEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{schedules: map[string][]schedule.Entry{}, history: map[string][]action.HistoryEntry{}}
}

func key(characterID string, day int) string {
	return characterID + "|" + string(rune('0'+day))
}

func (s *fakeStore) SaveSchedule(ctx context.Context, characterID string, day int, entries []schedule.Entry) error {
	s.schedules[key(characterID, day)] = entries
	return nil
}

func (s *fakeStore) LoadSchedule(ctx context.Context, characterID string, day int) ([]schedule.Entry, error) {
	return s.schedules[key(characterID, day)], nil
}

func (s *fakeStore) AppendActionHistory(ctx context.Context, characterID string, day int, entry action.HistoryEntry) error {
	s.history[key(characterID, day)] = append(s.history[key(characterID, day)], entry)
	return nil
}

func (s *fakeStore) LoadActionHistory(ctx context.Context, characterID string, day int) ([]action.HistoryEntry, error) {
	return s.history[key(characterID, day)], nil
}

type fakeDefaults struct{}

func (fakeDefaults) DefaultSchedule(characterID string) []schedule.Entry {
	return []schedule.Entry{
		{Time: "08:00", Activity: "eat", Location: "cafe"},
		{Time: "09:00", Activity: "work", Location: "office"},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduleFallsBackToDefaultsWhenStoreEmpty(t *testing.T) {
	store := newFakeStore()
	m := schedule.New(testLogger(), store, fakeDefaults{})

	entries := m.Schedule(context.Background(), "alice", 1)
	if len(entries) != 2 || entries[0].Activity != "eat" {
		t.Fatalf("expected the default schedule, got %+v", entries)
	}
}

func TestScheduleCachesAfterFirstRead(t *testing.T) {
	store := newFakeStore()
	m := schedule.New(testLogger(), store, fakeDefaults{})

	first := m.Schedule(context.Background(), "alice", 1)
	store.schedules[key("alice", 1)] = []schedule.Entry{{Time: "23:00", Activity: "sleep"}}

	second := m.Schedule(context.Background(), "alice", 1)
	if len(second) != len(first) {
		t.Fatalf("expected the cached schedule to be returned unchanged, got %+v", second)
	}
}

func TestApplyScheduleUpdateAdd(t *testing.T) {
	store := newFakeStore()
	m := schedule.New(testLogger(), store, fakeDefaults{})

	m.ApplyScheduleUpdate(context.Background(), "alice", 1, schedule.Update{
		Op:    schedule.OpAdd,
		Entry: schedule.Entry{Time: "08:30", Activity: "shower", Location: "bath"},
	})

	entries := m.Schedule(context.Background(), "alice", 1)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries after adding one, got %d: %+v", len(entries), entries)
	}
	if entries[1].Activity != "shower" {
		t.Fatalf("expected the new entry sorted into time order, got %+v", entries)
	}
	if persisted := store.schedules[key("alice", 1)]; len(persisted) != 3 {
		t.Fatalf("expected the update to be written through to the store, got %+v", persisted)
	}
}

func TestApplyScheduleUpdateRemoveMiss(t *testing.T) {
	store := newFakeStore()
	m := schedule.New(testLogger(), store, fakeDefaults{})

	m.ApplyScheduleUpdate(context.Background(), "alice", 1, schedule.Update{
		Op:    schedule.OpRemove,
		Entry: schedule.Entry{Time: "11:11", Activity: "does-not-exist"},
	})

	entries := m.Schedule(context.Background(), "alice", 1)
	if len(entries) != 2 {
		t.Fatalf("expected a no-op remove to leave the schedule untouched, got %+v", entries)
	}
}

func TestRecordAndLoadActionHistory(t *testing.T) {
	store := newFakeStore()
	m := schedule.New(testLogger(), store, fakeDefaults{})

	m.RecordActionHistory(context.Background(), "alice", 1, action.HistoryEntry{
		CharacterID: "alice", ActionID: "eat", Time: "08:05",
	})

	h := m.History(context.Background(), "alice", 1)
	if len(h) != 1 || h[0].ActionID != "eat" {
		t.Fatalf("expected one recorded history entry, got %+v", h)
	}
}

func TestClearAllDropsCaches(t *testing.T) {
	store := newFakeStore()
	m := schedule.New(testLogger(), store, fakeDefaults{})

	m.Schedule(context.Background(), "alice", 1)
	m.ClearAll()

	store.schedules[key("alice", 1)] = []schedule.Entry{{Time: "07:00", Activity: "run"}}
	entries := m.Schedule(context.Background(), "alice", 1)
	if len(entries) != 1 || entries[0].Activity != "run" {
		t.Fatalf("expected ClearAll to evict the cache so the store value is re-read, got %+v", entries)
	}
}
