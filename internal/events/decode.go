package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// envelope is the discriminator read before decoding a concrete variant.
type envelope struct {
	Type        Type   `json:"type"`
	ProjectName string `json:"projectName"`
	AgentType   string `json:"agentType"`
	InstanceID  string `json:"instanceId"`
}

// DecodeError is returned for payloads that fail schema gating. The hook
// server maps it to a 400 response.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return e.Reason }

func decodeErrf(format string, args ...any) error {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

// Decode parses a raw hook payload into its concrete event variant.
// The payload must be a JSON object with a known "type" and a non-empty
// "projectName"; anything else yields a DecodeError.
func Decode(body []byte) (Event, error) {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, decodeErrf("payload must be a JSON object")
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, decodeErrf("invalid JSON: %v", err)
	}
	if strings.TrimSpace(env.ProjectName) == "" {
		return nil, decodeErrf("projectName is required")
	}

	meta := Meta{
		ProjectName: env.ProjectName,
		AgentType:   env.AgentType,
		InstanceID:  env.InstanceID,
	}

	var ev Event
	switch env.Type {
	case TypeSessionStart:
		ev = &SessionStart{M: meta}
	case TypeSessionEnd:
		ev = &SessionEnd{M: meta}
	case TypeSessionNotification:
		ev = &SessionNotification{M: meta}
	case TypeSessionIdle:
		ev = &SessionIdle{M: meta}
	case TypeSessionError:
		ev = &SessionError{M: meta}
	case TypeThinkingStart:
		ev = &ThinkingStart{M: meta}
	case TypeThinkingStop:
		ev = &ThinkingStop{M: meta}
	case TypeToolActivity:
		ev = &ToolActivity{M: meta}
	case TypeToolFailure:
		ev = &ToolFailure{M: meta}
	case TypePromptSubmit:
		ev = &PromptSubmit{M: meta}
	case TypeTaskCompleted:
		ev = &TaskCompleted{M: meta}
	case TypePermissionRequest:
		ev = &PermissionRequest{M: meta}
	case TypeTeammateIdle:
		ev = &TeammateIdle{M: meta}
	default:
		return nil, decodeErrf("unknown event type %q", env.Type)
	}

	// Variant fields. The envelope fields are excluded from the variant
	// structs (json:"-") so a second pass is safe.
	if err := json.Unmarshal(body, ev); err != nil {
		return nil, decodeErrf("invalid %s payload: %v", env.Type, err)
	}
	return ev, nil
}
