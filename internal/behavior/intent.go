// Package behavior implements the BehaviorDecider (spec.md S4.7, component
// C7): turns "idle character needs a decision" into an Intent via LLM, with
// a rules fallback.
package behavior

// IntentKind is the tagged union discriminator for Intent, per spec.md S9
// ("model as a tagged variant").
type IntentKind string

const (
	IntentIdle              IntentKind = "idle"
	IntentMoveToNode        IntentKind = "moveToNode"
	IntentMoveToMap         IntentKind = "moveToMap"
	IntentStartAction       IntentKind = "startAction"
	IntentStartConversation IntentKind = "startConversation"
)

// Goal is the conversation objective carried by a startConversation intent.
type Goal struct {
	Goal            string
	SuccessCriteria string
}

// Intent is the BehaviorDecider's output (spec.md S4.7); only the fields
// relevant to Kind are populated.
type Intent struct {
	Kind IntentKind

	Reason string

	// moveToNode / moveToMap
	MapID  string
	NodeID string

	// startAction
	ActionID        string
	DurationMinutes int
	FacilityID      string

	// startConversation
	NPCID string
	Goal  Goal
}
