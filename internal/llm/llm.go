// Package llm defines the LLMClient capability the simulation core
// consumes (spec.md S6): generateObject(prompt, schema) returning an object
// validated against a JSON Schema, plus availability/timeout semantics. The
// spec never prescribes prompt wording — only schemas — so this package
// carries the schemas for character-utterance, NPC-utterance, behavior-
// intent, conversation-extraction and schedule-update, per spec.md S6.
package llm

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned by GenerateObject when the client has no
// usable credentials/connection (spec.md S7).
var ErrUnavailable = errors.New("llm: client unavailable")

// ErrSchemaMismatch marks a response that parsed as JSON but failed
// validation against the declared schema — distinct from a syntax error so
// callers can decide whether to retry (spec.md S7).
type ErrSchemaMismatch struct {
	Errors []string
}

func (e *ErrSchemaMismatch) Error() string {
	if len(e.Errors) == 0 {
		return "llm: schema mismatch"
	}
	return "llm: schema mismatch: " + e.Errors[0]
}

// Schema is a JSON Schema document (draft-07 compatible, as consumed by
// gojsonschema and by the OpenAI Responses API's json_schema format).
type Schema struct {
	Name   string
	Schema map[string]any
}

// Options configures one GenerateObject call.
type Options struct {
	System  string
	Timeout time.Duration // 0 uses the client's configured default
}

// Client is the capability the simulation core consumes; the spec refers to
// it only through this interface (spec.md S1).
type Client interface {
	// GenerateObject queries the model for a structured response matching
	// schema, validates it, and unmarshals into out (a pointer).
	GenerateObject(ctx context.Context, prompt string, schema Schema, opts Options, out any) error
	IsAvailable() bool
}

// --- Schemas (spec.md S6) ---

// CharacterUtteranceSchema is returned for a character's line in a
// conversation turn.
var CharacterUtteranceSchema = Schema{
	Name: "character_utterance",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"utterance":    map[string]any{"type": "string"},
			"goalAchieved": map[string]any{"type": "boolean"},
		},
		"required":             []any{"utterance", "goalAchieved"},
		"additionalProperties": false,
	},
}

// NPCUtteranceSchema is returned for an NPC's line in a conversation turn.
var NPCUtteranceSchema = Schema{
	Name: "npc_utterance",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"utterance": map[string]any{"type": "string"},
		},
		"required":             []any{"utterance"},
		"additionalProperties": false,
	},
}

// BehaviorIntentSchema is returned by the behavior decider's LLM call
// (spec.md S4.7); Kind selects which of the optional fields apply.
var BehaviorIntentSchema = Schema{
	Name: "behavior_intent",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"kind":       map[string]any{"type": "string", "enum": []any{"idle", "moveToNode", "moveToMap", "startAction", "startConversation"}},
			"reason":     map[string]any{"type": "string"},
			"mapId":      map[string]any{"type": "string"},
			"nodeId":     map[string]any{"type": "string"},
			"actionId":   map[string]any{"type": "string"},
			"durationMin": map[string]any{"type": "integer"},
			"facilityId": map[string]any{"type": "string"},
			"npcId":      map[string]any{"type": "string"},
			"goal":       map[string]any{"type": "string"},
			"successCriteria": map[string]any{"type": "string"},
		},
		"required":             []any{"kind", "reason"},
		"additionalProperties": false,
	},
}

// ConversationExtractionSchema is returned by the post-processor's single
// LLM call on conversation close (spec.md S4.8).
var ConversationExtractionSchema = Schema{
	Name: "conversation_extraction",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary":         map[string]any{"type": "string"},
			"affinityChange":  map[string]any{"type": "integer", "minimum": -20, "maximum": 20},
			"updatedFacts":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"mood":            map[string]any{"type": "string", "enum": []any{"happy", "neutral", "sad", "angry", "excited"}},
			"topicsDiscussed": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"memories": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"content":    map[string]any{"type": "string"},
						"importance": map[string]any{"type": "string", "enum": []any{"low", "medium", "high"}},
					},
					"required": []any{"content", "importance"},
				},
			},
		},
		"required":             []any{"summary", "affinityChange", "updatedFacts", "mood", "topicsDiscussed", "memories"},
		"additionalProperties": false,
	},
}

// ScheduleUpdateSchema is returned when the behavior decider revises a
// schedule in response to an event (spec.md S6).
var ScheduleUpdateSchema = Schema{
	Name: "schedule_update",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"op":       map[string]any{"type": "string", "enum": []any{"add", "remove", "modify"}},
			"time":     map[string]any{"type": "string"},
			"activity": map[string]any{"type": "string"},
			"location": map[string]any{"type": "string"},
		},
		"required":             []any{"op", "time", "activity"},
		"additionalProperties": false,
	},
}
