package events

// capabilityMatrix lists the event types each known agent adapter emits.
// Projections for event types outside an agent's set are suppressed so chat
// channels never show lifecycle noise the agent cannot actually produce.
var capabilityMatrix = map[string]map[Type]bool{
	"claude": {
		TypeSessionStart:        true,
		TypeSessionEnd:          true,
		TypeSessionNotification: true,
		TypeSessionIdle:         true,
		TypeToolActivity:        true,
		TypeThinkingStart:       true,
		TypeThinkingStop:        true,
		TypePermissionRequest:   true,
		TypeTaskCompleted:       true,
		TypePromptSubmit:        true,
		TypeToolFailure:         true,
		TypeTeammateIdle:        true,
	},
	"codex": {
		TypeSessionIdle:  true,
		TypeToolActivity: true,
	},
	"opencode": {
		TypeSessionStart:        true,
		TypeSessionEnd:          true,
		TypeSessionNotification: true,
		TypeSessionIdle:         true,
		TypeSessionError:        true,
	},
	"gemini": {
		TypeSessionStart:        true,
		TypeSessionEnd:          true,
		TypeSessionNotification: true,
		TypeSessionIdle:         true,
	},
}

// Supports reports whether the given agent type emits the given event type.
// Unknown agent types are treated as fully capable so new adapters work
// before the matrix learns about them.
func Supports(agentType string, t Type) bool {
	caps, ok := capabilityMatrix[agentType]
	if !ok {
		return true
	}
	return caps[t]
}
