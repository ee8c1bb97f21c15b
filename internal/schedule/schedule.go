// Package schedule implements the ScheduleManager (spec.md S4.6, component
// C6): per-character-per-day schedule and action history caches, write-
// through to the durable store.
package schedule

import (
	"context"
	"log/slog"
	"sort"

	"github.com/fvdveen/townlife/internal/action"
)

// Entry is one schedule item: a planned activity at a time of day.
type Entry struct {
	Time     string // "HH:MM"
	Activity string
	Location string // canonical facility/node hint for the behavior decider
}

// UpdateOp is the tagged operation applyScheduleUpdate accepts.
type UpdateOp string

const (
	OpAdd    UpdateOp = "add"
	OpRemove UpdateOp = "remove"
	OpModify UpdateOp = "modify"
)

// Update describes one schedule mutation.
type Update struct {
	Op    UpdateOp
	Entry Entry
}

// dayKey identifies a (characterId, day) cache slot.
type dayKey struct {
	characterID string
	day         int
}

// Store is the subset of the durable StateStore the schedule manager
// write-throughs to; defined here (rather than importing internal/store
// directly) to avoid a dependency cycle, satisfied by store.SQLStore and
// store.MemoryStore.
type Store interface {
	SaveSchedule(ctx context.Context, characterID string, day int, entries []Entry) error
	LoadSchedule(ctx context.Context, characterID string, day int) ([]Entry, error)
	AppendActionHistory(ctx context.Context, characterID string, day int, entry action.HistoryEntry) error
	LoadActionHistory(ctx context.Context, characterID string, day int) ([]action.HistoryEntry, error)
}

// DefaultProvider supplies the static per-character default schedule used
// when neither the cache nor the store has an entry for a day.
type DefaultProvider interface {
	DefaultSchedule(characterID string) []Entry
}

type Manager struct {
	log      *slog.Logger
	store    Store
	defaults DefaultProvider

	schedules map[dayKey][]Entry
	history   map[dayKey][]action.HistoryEntry
}

func New(log *slog.Logger, store Store, defaults DefaultProvider) *Manager {
	return &Manager{
		log:       log,
		store:     store,
		defaults:  defaults,
		schedules: make(map[dayKey][]Entry),
		history:   make(map[dayKey][]action.HistoryEntry),
	}
}

// Schedule returns today's schedule for a character: cache -> durable store
// -> per-character defaults, per spec.md S4.6's read order.
func (m *Manager) Schedule(ctx context.Context, characterID string, day int) []Entry {
	key := dayKey{characterID, day}
	if s, ok := m.schedules[key]; ok {
		return s
	}
	if s, err := m.store.LoadSchedule(ctx, characterID, day); err == nil && len(s) > 0 {
		m.schedules[key] = s
		return s
	}
	defaults := m.defaults.DefaultSchedule(characterID)
	m.schedules[key] = defaults
	return defaults
}

// ApplyScheduleUpdate handles add/remove/modify per spec.md S4.6.
func (m *Manager) ApplyScheduleUpdate(ctx context.Context, characterID string, day int, upd Update) {
	key := dayKey{characterID, day}
	entries := append([]Entry(nil), m.Schedule(ctx, characterID, day)...)

	switch upd.Op {
	case OpAdd:
		entries = append(entries, upd.Entry)
		sortEntries(entries)
	case OpRemove:
		found := false
		out := entries[:0:0]
		for _, e := range entries {
			if !found && e.Time == upd.Entry.Time && e.Activity == upd.Entry.Activity {
				found = true
				continue
			}
			out = append(out, e)
		}
		if !found {
			m.log.Info("schedule_remove_miss", slog.String("character_id", characterID), slog.String("time", upd.Entry.Time))
			return
		}
		entries = out
	case OpModify:
		replaced := false
		for i, e := range entries {
			if e.Time == upd.Entry.Time {
				entries[i] = upd.Entry
				replaced = true
				break
			}
		}
		if !replaced {
			entries = append(entries, upd.Entry)
			sortEntries(entries)
		}
	}

	m.schedules[key] = entries
	if err := m.store.SaveSchedule(ctx, characterID, day, entries); err != nil {
		m.log.Warn("schedule_write_through_failed", slog.String("character_id", characterID), slog.Any("err", err))
	}
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Time < entries[j].Time })
}

// History returns the cached action history for a (character, day),
// loading from the store on first access.
func (m *Manager) History(ctx context.Context, characterID string, day int) []action.HistoryEntry {
	key := dayKey{characterID, day}
	if h, ok := m.history[key]; ok {
		return h
	}
	h, err := m.store.LoadActionHistory(ctx, characterID, day)
	if err != nil {
		h = nil
	}
	m.history[key] = h
	return h
}

// RecordActionHistory appends a row at wall-clock time and updates the
// cache; write-through is best-effort (spec.md S4.6).
func (m *Manager) RecordActionHistory(ctx context.Context, characterID string, day int, entry action.HistoryEntry) {
	key := dayKey{characterID, day}
	m.history[key] = append(m.history[key], entry)
	if err := m.store.AppendActionHistory(ctx, characterID, day, entry); err != nil {
		m.log.Warn("history_write_through_failed", slog.String("character_id", characterID), slog.Any("err", err))
	}
}

// ClearDay evicts the cache for a (character, day) pair. The engine's day
// rollover uses ClearAll instead.
func (m *Manager) ClearDay(characterID string, day int) {
	key := dayKey{characterID, day}
	delete(m.schedules, key)
	delete(m.history, key)
}

// ClearAll drops every cached schedule/history, used on day rollover for
// the whole population (spec.md S4.10).
func (m *Manager) ClearAll() {
	m.schedules = make(map[dayKey][]Entry)
	m.history = make(map[dayKey][]action.HistoryEntry)
}
