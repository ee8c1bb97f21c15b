package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/fvdveen/townlife/internal/action"
	"github.com/fvdveen/townlife/internal/memory"
	"github.com/fvdveen/townlife/internal/schedule"
	"github.com/fvdveen/townlife/internal/worldstate"
)

// SQLStore is the durable StateStore backed by SQLite (modernc.org/sqlite,
// no cgo), wrapped with sqlx as the teacher pack's sibling persistence
// layer does (spec.md S4.9's restart-survival requirement).
type SQLStore struct {
	conn *sqlx.DB
	log  *slog.Logger
}

// OpenSQL opens (creating if absent) a SQLite database at path and runs
// migrations.
func OpenSQL(path string) (*SQLStore, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	s := &SQLStore{conn: conn, log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// SetLogger wires a real logger after construction, mirroring
// conversation.Manager.SetStore's late-wiring pattern — the logger isn't
// available yet when cmd/server opens the database.
func (s *SQLStore) SetLogger(log *slog.Logger) { s.log = log }

func (s *SQLStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS characters (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		sprite_json TEXT NOT NULL DEFAULT '{}',
		money REAL NOT NULL,
		satiety REAL NOT NULL,
		energy REAL NOT NULL,
		hygiene REAL NOT NULL,
		mood REAL NOT NULL,
		bladder REAL NOT NULL,
		current_map_id TEXT NOT NULL,
		current_node_id TEXT NOT NULL,
		pos_x REAL NOT NULL,
		pos_y REAL NOT NULL,
		direction TEXT NOT NULL,
		employment_json TEXT NOT NULL DEFAULT '{}',
		profile_json TEXT NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS schedules (
		character_id TEXT NOT NULL,
		day INTEGER NOT NULL,
		entries_json TEXT NOT NULL,
		PRIMARY KEY (character_id, day)
	);

	CREATE TABLE IF NOT EXISTS action_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		character_id TEXT NOT NULL,
		day INTEGER NOT NULL,
		time TEXT NOT NULL,
		action_id TEXT NOT NULL,
		target TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL,
		reason TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS npc_dynamic (
		id TEXT PRIMARY KEY,
		affinity REAL NOT NULL,
		mood TEXT NOT NULL,
		facts_json TEXT NOT NULL DEFAULT '[]',
		conversation_ct INTEGER NOT NULL,
		last_conversation INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversation_summaries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		character_id TEXT NOT NULL,
		npc_id TEXT NOT NULL,
		day INTEGER NOT NULL,
		time TEXT NOT NULL,
		summary TEXT NOT NULL,
		topics_json TEXT NOT NULL DEFAULT '[]',
		goal_achieved INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS mid_term_memories (
		id TEXT PRIMARY KEY,
		character_id TEXT NOT NULL,
		content TEXT NOT NULL,
		importance TEXT NOT NULL,
		created_day INTEGER NOT NULL,
		expires_day INTEGER NOT NULL,
		source_npc_id TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_action_history_char_day ON action_history(character_id, day);
	CREATE INDEX IF NOT EXISTS idx_summaries_char ON conversation_summaries(character_id, id);
	CREATE INDEX IF NOT EXISTS idx_memories_char ON mid_term_memories(character_id, expires_day);
	`
	_, err := s.conn.Exec(schema)
	return err
}

func (s *SQLStore) Close() error { return s.conn.Close() }

func (s *SQLStore) HasWorldState(ctx context.Context) (bool, error) {
	var count int
	if err := s.conn.GetContext(ctx, &count, "SELECT COUNT(*) FROM characters"); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SQLStore) LoadMeta(ctx context.Context) (WorldMeta, error) {
	rows := map[string]string{}
	var kv []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := s.conn.SelectContext(ctx, &kv, "SELECT key, value FROM world_meta"); err != nil {
		return WorldMeta{}, err
	}
	for _, r := range kv {
		rows[r.Key] = r.Value
	}
	var meta WorldMeta
	meta.CurrentMapID = rows["current_map_id"]
	fmt.Sscanf(rows["server_start_time"], "%d", &meta.ServerStartTime)
	fmt.Sscanf(rows["hour"], "%d", &meta.Hour)
	fmt.Sscanf(rows["minute"], "%d", &meta.Minute)
	fmt.Sscanf(rows["day"], "%d", &meta.Day)
	return meta, nil
}

func (s *SQLStore) SaveMeta(ctx context.Context, meta WorldMeta) error {
	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	kv := map[string]any{
		"current_map_id":    meta.CurrentMapID,
		"server_start_time": meta.ServerStartTime,
		"hour":              meta.Hour,
		"minute":            meta.Minute,
		"day":               meta.Day,
	}
	for k, v := range kv {
		if _, err := tx.Exec("INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)", k, fmt.Sprint(v)); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.log.Info("world_meta_saved",
		slog.String("current_map_id", meta.CurrentMapID),
		slog.String("running_since", humanize.Time(time.UnixMilli(meta.ServerStartTime))),
	)
	return nil
}

func (s *SQLStore) SaveCharacters(ctx context.Context, characters []CharacterRecord) error {
	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO characters
		(id, name, sprite_json, money, satiety, energy, hygiene, mood, bladder,
		 current_map_id, current_node_id, pos_x, pos_y, direction, employment_json, profile_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, sprite_json=excluded.sprite_json, money=excluded.money,
			satiety=excluded.satiety, energy=excluded.energy, hygiene=excluded.hygiene,
			mood=excluded.mood, bladder=excluded.bladder, current_map_id=excluded.current_map_id,
			current_node_id=excluded.current_node_id, pos_x=excluded.pos_x, pos_y=excluded.pos_y,
			direction=excluded.direction, employment_json=excluded.employment_json,
			profile_json=excluded.profile_json`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range characters {
		spriteJSON := string(c.Sprite)
		if spriteJSON == "" {
			spriteJSON = "{}"
		}
		employmentJSON, err := marshalEmployment(c.Employment)
		if err != nil {
			return err
		}
		profileJSON, err := json.Marshal(c.Profile)
		if err != nil {
			return err
		}

		_, err = stmt.Exec(
			c.ID, c.Name, spriteJSON, round2(c.Money), round2(c.Satiety), round2(c.Energy),
			round2(c.Hygiene), round2(c.Mood), round2(c.Bladder), c.CurrentMapID, c.CurrentNodeID,
			c.PositionX, c.PositionY, c.Direction, employmentJSON, string(profileJSON),
		)
		if err != nil {
			return fmt.Errorf("store: insert character %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.log.Info("characters_saved", slog.String("count", humanize.Comma(int64(len(characters)))))
	return nil
}

// marshalEmployment builds the employment blob with sjson rather than a
// plain json.Marshal, so a future partial update (e.g. a wage change) can
// patch a single path without re-serializing the whole struct.
func marshalEmployment(e *worldstate.Employment) (string, error) {
	doc := "{}"
	if e == nil {
		return doc, nil
	}
	return sjson.Set(doc, "jobId", e.JobID)
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

type characterRow struct {
	ID             string  `db:"id"`
	Name           string  `db:"name"`
	SpriteJSON     string  `db:"sprite_json"`
	Money          float64 `db:"money"`
	Satiety        float64 `db:"satiety"`
	Energy         float64 `db:"energy"`
	Hygiene        float64 `db:"hygiene"`
	Mood           float64 `db:"mood"`
	Bladder        float64 `db:"bladder"`
	CurrentMapID   string  `db:"current_map_id"`
	CurrentNodeID  string  `db:"current_node_id"`
	PositionX      float64 `db:"pos_x"`
	PositionY      float64 `db:"pos_y"`
	Direction      string  `db:"direction"`
	EmploymentJSON string  `db:"employment_json"`
	ProfileJSON    string  `db:"profile_json"`
}

func (s *SQLStore) LoadCharacters(ctx context.Context) ([]CharacterRecord, error) {
	var rows []characterRow
	if err := s.conn.SelectContext(ctx, &rows, "SELECT * FROM characters"); err != nil {
		return nil, err
	}

	out := make([]CharacterRecord, 0, len(rows))
	for _, r := range rows {
		rec := CharacterRecord{
			ID: r.ID, Name: r.Name, Sprite: json.RawMessage(r.SpriteJSON),
			Money: r.Money, Satiety: r.Satiety, Energy: r.Energy, Hygiene: r.Hygiene,
			Mood: r.Mood, Bladder: r.Bladder,
			CurrentMapID: r.CurrentMapID, CurrentNodeID: r.CurrentNodeID,
			PositionX: r.PositionX, PositionY: r.PositionY, Direction: r.Direction,
		}
		if jobID := gjson.Get(r.EmploymentJSON, "jobId"); jobID.Exists() && jobID.String() != "" {
			rec.Employment = &worldstate.Employment{JobID: jobID.String()}
		}
		var profile worldstate.Profile
		if json.Unmarshal([]byte(r.ProfileJSON), &profile) == nil && profile.Personality != "" {
			rec.Profile = &profile
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *SQLStore) SaveSchedule(ctx context.Context, characterID string, day int, entries []schedule.Entry) error {
	b, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO schedules (character_id, day, entries_json) VALUES (?, ?, ?)
		 ON CONFLICT(character_id, day) DO UPDATE SET entries_json=excluded.entries_json`,
		characterID, day, string(b))
	return err
}

func (s *SQLStore) LoadSchedule(ctx context.Context, characterID string, day int) ([]schedule.Entry, error) {
	var raw string
	err := s.conn.GetContext(ctx, &raw, "SELECT entries_json FROM schedules WHERE character_id = ? AND day = ?", characterID, day)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []schedule.Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *SQLStore) AppendActionHistory(ctx context.Context, characterID string, day int, entry action.HistoryEntry) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO action_history (character_id, day, time, action_id, target, duration_minutes, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		characterID, day, entry.Time, entry.ActionID, entry.Target, entry.DurationMinutes, entry.Reason)
	return err
}

func (s *SQLStore) LoadActionHistory(ctx context.Context, characterID string, day int) ([]action.HistoryEntry, error) {
	var rows []action.HistoryEntry
	err := s.conn.SelectContext(ctx, &rows,
		`SELECT time, action_id as actionid, target, duration_minutes as durationminutes, reason
		 FROM action_history WHERE character_id = ? AND day = ? ORDER BY id ASC`,
		characterID, day)
	return rows, err
}

func (s *SQLStore) SaveNPCDynamic(ctx context.Context, rec NPCDynamicRecord) error {
	factsJSON, err := json.Marshal(rec.Facts)
	if err != nil {
		return err
	}
	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO npc_dynamic (id, affinity, mood, facts_json, conversation_ct, last_conversation)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET affinity=excluded.affinity, mood=excluded.mood,
			facts_json=excluded.facts_json, conversation_ct=excluded.conversation_ct,
			last_conversation=excluded.last_conversation`,
		rec.ID, round2(rec.Affinity), rec.Mood, string(factsJSON), rec.ConversationCt, rec.LastConversation)
	return err
}

func (s *SQLStore) LoadNPCDynamics(ctx context.Context) ([]NPCDynamicRecord, error) {
	type row struct {
		ID               string  `db:"id"`
		Affinity         float64 `db:"affinity"`
		Mood             string  `db:"mood"`
		FactsJSON        string  `db:"facts_json"`
		ConversationCt   int     `db:"conversation_ct"`
		LastConversation int64   `db:"last_conversation"`
	}
	var rows []row
	if err := s.conn.SelectContext(ctx, &rows, "SELECT * FROM npc_dynamic"); err != nil {
		return nil, err
	}
	out := make([]NPCDynamicRecord, 0, len(rows))
	for _, r := range rows {
		var facts []string
		json.Unmarshal([]byte(r.FactsJSON), &facts)
		out = append(out, NPCDynamicRecord{
			ID: r.ID, Affinity: r.Affinity, Mood: r.Mood, Facts: facts,
			ConversationCt: r.ConversationCt, LastConversation: r.LastConversation,
		})
	}
	return out, nil
}

func (s *SQLStore) SaveConversationSummary(ctx context.Context, entry memory.ConversationSummaryEntry) error {
	topicsJSON, err := json.Marshal(entry.TopicsDiscussed)
	if err != nil {
		return err
	}
	goalAchieved := 0
	if entry.GoalAchieved {
		goalAchieved = 1
	}
	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO conversation_summaries (character_id, npc_id, day, time, summary, topics_json, goal_achieved)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.CharacterID, entry.NPCID, entry.Day, entry.Time, entry.Summary, string(topicsJSON), goalAchieved)
	return err
}

func (s *SQLStore) RecentConversationSummaries(ctx context.Context, characterID string, limit int) ([]memory.ConversationSummaryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	type row struct {
		CharacterID  string `db:"character_id"`
		NPCID        string `db:"npc_id"`
		Day          int    `db:"day"`
		Time         string `db:"time"`
		Summary      string `db:"summary"`
		TopicsJSON   string `db:"topics_json"`
		GoalAchieved int    `db:"goal_achieved"`
	}
	var rows []row
	err := s.conn.SelectContext(ctx, &rows,
		`SELECT character_id, npc_id, day, time, summary, topics_json, goal_achieved
		 FROM conversation_summaries WHERE character_id = ? ORDER BY id DESC LIMIT ?`,
		characterID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]memory.ConversationSummaryEntry, 0, len(rows))
	for _, r := range rows {
		var topics []string
		json.Unmarshal([]byte(r.TopicsJSON), &topics)
		out = append(out, memory.ConversationSummaryEntry{
			CharacterID: r.CharacterID, NPCID: r.NPCID, Day: r.Day, Time: r.Time,
			Summary: r.Summary, TopicsDiscussed: topics, GoalAchieved: r.GoalAchieved != 0,
		})
	}
	return out, nil
}

func (s *SQLStore) SaveMidTermMemory(ctx context.Context, m memory.MidTermMemory) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO mid_term_memories (id, character_id, content, importance, created_day, expires_day, source_npc_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET content=excluded.content, importance=excluded.importance,
			expires_day=excluded.expires_day`,
		m.ID, m.CharacterID, m.Content, string(m.Importance), m.CreatedDay, m.ExpiresDay, m.SourceNPCID)
	return err
}

func (s *SQLStore) ActiveMidTermMemories(ctx context.Context, characterID string, currentDay int) ([]memory.MidTermMemory, error) {
	type row struct {
		ID          string `db:"id"`
		CharacterID string `db:"character_id"`
		Content     string `db:"content"`
		Importance  string `db:"importance"`
		CreatedDay  int    `db:"created_day"`
		ExpiresDay  int    `db:"expires_day"`
		SourceNPCID string `db:"source_npc_id"`
	}
	var rows []row
	err := s.conn.SelectContext(ctx, &rows,
		`SELECT * FROM mid_term_memories WHERE character_id = ? AND expires_day >= ?`,
		characterID, currentDay)
	if err != nil {
		return nil, err
	}
	out := make([]memory.MidTermMemory, 0, len(rows))
	for _, r := range rows {
		out = append(out, memory.MidTermMemory{
			ID: r.ID, CharacterID: r.CharacterID, Content: r.Content,
			Importance: memory.Importance(r.Importance), CreatedDay: r.CreatedDay,
			ExpiresDay: r.ExpiresDay, SourceNPCID: r.SourceNPCID,
		})
	}
	return out, nil
}

func (s *SQLStore) PurgeExpiredMidTermMemories(ctx context.Context, currentDay int) (int64, error) {
	result, err := s.conn.ExecContext(ctx, "DELETE FROM mid_term_memories WHERE expires_day < ?", currentDay)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
