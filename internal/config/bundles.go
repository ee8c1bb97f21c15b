// Package config loads the static JSON bundles that seed the simulation —
// map geometry, character/NPC rosters and world timing — following the
// teacher's simulation_loader conventions (spec.md S3/S6).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fvdveen/townlife/internal/action"
	"github.com/fvdveen/townlife/internal/decay"
	"github.com/fvdveen/townlife/internal/gridmap"
	"github.com/fvdveen/townlife/internal/schedule"
	"github.com/fvdveen/townlife/internal/worldstate"
)

// MapBundle is the on-disk shape of one map's static data.
type MapBundle struct {
	ID              string             `json:"id"`
	Width           int                `json:"width"`
	Height          int                `json:"height"`
	BackgroundColor string             `json:"backgroundColor"`
	SpawnNodeID     string             `json:"spawnNodeId"`
	Nodes           []NodeBundle       `json:"nodes"`
	Obstacles       []ObstacleBundle   `json:"obstacles"`
	Facilities      []FacilityBundle   `json:"facilities"`
}

type NodeBundle struct {
	ID          string   `json:"id"`
	X           float64  `json:"x"`
	Y           float64  `json:"y"`
	Type        string   `json:"type"`
	ConnectedTo []string `json:"connectedTo"`
	Label       string   `json:"label"`
	LeadsToMap  string   `json:"leadsToMap"`
	LeadsToNode string   `json:"leadsToNode"`
}

type ObstacleBundle struct {
	Type       string   `json:"type"`
	MinX       int      `json:"minX"`
	MinY       int      `json:"minY"`
	MaxX       int      `json:"maxX"`
	MaxY       int      `json:"maxY"`
	WallSides  []string `json:"wallSides"`
	DoorSide   string   `json:"doorSide"`
	DoorAt     int      `json:"doorAt"`
	FacilityID string   `json:"facilityId"`
}

type JobBundle struct {
	JobID      string  `json:"jobId"`
	Title      string  `json:"title"`
	HourlyWage float64 `json:"hourlyWage"`
	WorkStart  int     `json:"workStart"`
	WorkEnd    int     `json:"workEnd"`
}

type FacilityBundle struct {
	ID    string     `json:"id"`
	Tags  []string   `json:"tags"`
	Owner string     `json:"owner"`
	Cost  *int       `json:"cost"`
	Job   *JobBundle `json:"job"`
}

// ToMap converts a loaded MapBundle into a gridmap.Map.
func (b MapBundle) ToMap() *gridmap.Map {
	m := gridmap.NewMap(b.ID, b.Width, b.Height, b.BackgroundColor, b.SpawnNodeID)

	for _, n := range b.Nodes {
		node := &gridmap.Node{
			ID:          n.ID,
			X:           n.X,
			Y:           n.Y,
			Type:        gridmap.NodeType(n.Type),
			ConnectedTo: make(map[string]struct{}, len(n.ConnectedTo)),
			Label:       n.Label,
		}
		for _, c := range n.ConnectedTo {
			node.ConnectedTo[c] = struct{}{}
		}
		if n.LeadsToMap != "" {
			node.LeadsTo = &gridmap.Leads{MapID: n.LeadsToMap, NodeID: n.LeadsToNode}
		}
		m.Nodes[node.ID] = node
	}

	for _, o := range b.Obstacles {
		obstacle := gridmap.Obstacle{
			Type:       gridmap.ObstacleType(o.Type),
			Bounds:     gridmap.TileBounds{MinX: o.MinX, MinY: o.MinY, MaxX: o.MaxX, MaxY: o.MaxY},
			FacilityID: o.FacilityID,
		}
		if len(o.WallSides) > 0 {
			obstacle.WallSides = make(map[string]struct{}, len(o.WallSides))
			for _, s := range o.WallSides {
				obstacle.WallSides[s] = struct{}{}
			}
		}
		if o.DoorSide != "" {
			obstacle.Door = &gridmap.Door{Side: o.DoorSide, At: o.DoorAt}
		}
		m.Obstacles = append(m.Obstacles, obstacle)
	}

	for _, f := range b.Facilities {
		facility := &gridmap.Facility{ID: f.ID, Owner: f.Owner, Cost: f.Cost}
		facility.Tags = make(map[string]struct{}, len(f.Tags))
		for _, t := range f.Tags {
			facility.Tags[t] = struct{}{}
		}
		if f.Job != nil {
			facility.Job = &gridmap.Job{
				JobID: f.Job.JobID, Title: f.Job.Title, HourlyWage: f.Job.HourlyWage,
				WorkStart: f.Job.WorkStart, WorkEnd: f.Job.WorkEnd,
			}
		}
		m.Facilities[facility.ID] = facility
	}

	return m
}

// CharacterBundle is the on-disk shape of one character's roster entry,
// including its per-character default schedule (spec.md S4.6's last-resort
// read-order tier).
type CharacterBundle struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Sprite          json.RawMessage    `json:"sprite"`
	StartMapID      string             `json:"startMapId"`
	StartNodeID     string             `json:"startNodeId"`
	StartMoney      float64            `json:"startMoney"`
	EmploymentJobID string             `json:"employmentJobId"`
	Personality     string             `json:"personality"`
	Tendencies      []string           `json:"tendencies"`
	CustomPrompt    string             `json:"customPrompt"`
	DefaultSchedule []schedule.Entry   `json:"defaultSchedule"`
}

// NPCBundle is the on-disk shape of one NPC's roster entry.
type NPCBundle struct {
	ID     string          `json:"id"`
	MapID  string          `json:"mapId"`
	NodeID string          `json:"nodeId"`
	Sprite json.RawMessage `json:"sprite"`
	Facts  []string        `json:"facts"`
}

// WorldConfigBundle carries the grid/timing/decay knobs spec.md S3 leaves
// to configuration rather than hardcoding.
type WorldConfigBundle struct {
	Timezone       string       `json:"timezone"`
	MovementSpeed  float64      `json:"movementSpeed"` // pixels/sec
	DecayRates     decay.Rates  `json:"decayRates"`
	StartMapID     string       `json:"startMapId"`
	SaveIntervalS  int          `json:"saveIntervalSeconds"`
	TickIntervalMs int          `json:"tickIntervalMs"`
	TurnIntervalMs int          `json:"turnIntervalMs"` // conversation pacing, spec.md S4.8
}

// Roster is the fully loaded static configuration the engine boots from.
type Roster struct {
	Maps       *gridmap.World
	Characters []CharacterBundle
	NPCs       []NPCBundle
	World      WorldConfigBundle
}

// Load reads maps.json, characters.json, npcs.json and world.json from dir.
func Load(dir string) (*Roster, error) {
	var maps []MapBundle
	if err := readJSON(filepath.Join(dir, "maps.json"), &maps); err != nil {
		return nil, fmt.Errorf("config: load maps: %w", err)
	}
	world := gridmap.NewWorld()
	for _, mb := range maps {
		world.Add(mb.ToMap())
	}

	var characters []CharacterBundle
	if err := readJSON(filepath.Join(dir, "characters.json"), &characters); err != nil {
		return nil, fmt.Errorf("config: load characters: %w", err)
	}

	var npcs []NPCBundle
	if err := readJSON(filepath.Join(dir, "npcs.json"), &npcs); err != nil {
		return nil, fmt.Errorf("config: load npcs: %w", err)
	}

	var worldCfg WorldConfigBundle
	if err := readJSON(filepath.Join(dir, "world.json"), &worldCfg); err != nil {
		return nil, fmt.Errorf("config: load world config: %w", err)
	}

	return &Roster{Maps: world, Characters: characters, NPCs: npcs, World: worldCfg}, nil
}

func readJSON(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// ActionConfigs returns the action taxonomy; a future bundle file could
// override defaults, but none does yet so this just forwards to the
// package default (spec.md S4.4).
func ActionConfigs() map[string]action.Config {
	return action.DefaultConfigs()
}

// defaultScheduleProvider adapts the loaded roster to schedule.DefaultProvider.
type defaultScheduleProvider struct {
	byCharacter map[string][]schedule.Entry
}

func NewDefaultScheduleProvider(characters []CharacterBundle) schedule.DefaultProvider {
	p := &defaultScheduleProvider{byCharacter: make(map[string][]schedule.Entry, len(characters))}
	for _, c := range characters {
		p.byCharacter[c.ID] = c.DefaultSchedule
	}
	return p
}

func (p *defaultScheduleProvider) DefaultSchedule(characterID string) []schedule.Entry {
	return p.byCharacter[characterID]
}

// NewCharacter builds the runtime worldstate.Character for a freshly booted
// (never-persisted) roster entry.
func NewCharacter(b CharacterBundle) *worldstate.Character {
	c := &worldstate.Character{
		ID: b.ID, Name: b.Name, Sprite: b.Sprite,
		Money: b.StartMoney, Satiety: 100, Energy: 100, Hygiene: 100, Mood: 50, Bladder: 100,
		CurrentMapID: b.StartMapID, CurrentNodeID: b.StartNodeID,
	}
	if b.EmploymentJobID != "" {
		c.Employment = &worldstate.Employment{JobID: b.EmploymentJobID}
	}
	if b.Personality != "" || len(b.Tendencies) > 0 || b.CustomPrompt != "" {
		c.Profile = &worldstate.Profile{
			Personality:  b.Personality,
			Tendencies:   b.Tendencies,
			CustomPrompt: b.CustomPrompt,
		}
	}
	return c
}

// NewNPC builds the runtime worldstate.NPC for a freshly booted NPC.
func NewNPC(b NPCBundle) *worldstate.NPC {
	return &worldstate.NPC{
		ID: b.ID, MapID: b.MapID, NodeID: b.NodeID,
		Affinity: 0, Mood: worldstate.MoodNeutral, Facts: append([]string(nil), b.Facts...),
	}
}
