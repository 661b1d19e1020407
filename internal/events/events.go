// Package events defines the typed lifecycle events posted by agent-side
// hook scripts, the JSON decoding that turns a wire payload into a concrete
// variant, and the per-agent capability matrix used to suppress projections
// for events an agent never emits.
package events

// Type identifies an event variant on the wire.
type Type string

const (
	TypeSessionStart        Type = "session.start"
	TypeSessionEnd          Type = "session.end"
	TypeSessionNotification Type = "session.notification"
	TypeSessionIdle         Type = "session.idle"
	TypeSessionError        Type = "session.error"
	TypeThinkingStart       Type = "thinking.start"
	TypeThinkingStop        Type = "thinking.stop"
	TypeToolActivity        Type = "tool.activity"
	TypeToolFailure         Type = "tool.failure"
	TypePromptSubmit        Type = "prompt.submit"
	TypeTaskCompleted       Type = "task.completed"
	TypePermissionRequest   Type = "permission.request"
	TypeTeammateIdle        Type = "teammate.idle"
)

// Meta carries the routing fields every event shares.
type Meta struct {
	ProjectName string `json:"projectName"`
	AgentType   string `json:"agentType"`
	InstanceID  string `json:"instanceId,omitempty"`
}

// InstanceKey returns the tracker/updater key component for this event:
// the explicit instance ID when present, otherwise the agent type.
func (m Meta) InstanceKey() string {
	if m.InstanceID != "" {
		return m.InstanceID
	}
	return m.AgentType
}

// Event is the closed set of hook event variants. Every variant embeds Meta.
type Event interface {
	Kind() Type
	Meta() Meta
}

// Usage holds the token and cost totals reported at the end of a turn.
type Usage struct {
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	TotalCostUSD float64 `json:"totalCostUsd"`
}

// PromptOption is one selectable answer in a structured prompt.
type PromptOption struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// PromptQuestion is a structured interactive question the agent wants the
// user to answer, rendered as platform buttons.
type PromptQuestion struct {
	Question    string         `json:"question"`
	Header      string         `json:"header,omitempty"`
	Options     []PromptOption `json:"options"`
	MultiSelect bool           `json:"multiSelect,omitempty"`
}

// SessionStart reports an agent session coming up.
// Source "startup" marks a daemon-triggered warmup that stays invisible.
type SessionStart struct {
	M      Meta   `json:"-"`
	Source string `json:"source,omitempty"`
	Model  string `json:"model,omitempty"`
}

// SessionEnd reports an agent session going away.
type SessionEnd struct {
	M      Meta   `json:"-"`
	Reason string `json:"reason,omitempty"`
}

// SessionNotification is a passthrough notification from the agent,
// e.g. a permission prompt or an idle nudge.
type SessionNotification struct {
	M                Meta   `json:"-"`
	NotificationType string `json:"notificationType,omitempty"`
	Text             string `json:"text,omitempty"`
	PromptText       string `json:"promptText,omitempty"`
}

// SessionIdle closes a turn: the agent finished and produced its response.
type SessionIdle struct {
	M                Meta             `json:"-"`
	Text             string           `json:"text,omitempty"`
	IntermediateText string           `json:"intermediateText,omitempty"`
	Thinking         string           `json:"thinking,omitempty"`
	TurnText         string           `json:"turnText,omitempty"`
	Usage            Usage            `json:"usage,omitempty"`
	PromptQuestions  []PromptQuestion `json:"promptQuestions,omitempty"`
	PromptText       string           `json:"promptText,omitempty"`
	PlanFilePath     string           `json:"planFilePath,omitempty"`
}

// SessionError reports a fatal turn error.
type SessionError struct {
	M    Meta   `json:"-"`
	Text string `json:"text,omitempty"`
}

// ThinkingStart marks the beginning of a reasoning phase.
type ThinkingStart struct {
	M Meta `json:"-"`
}

// ThinkingStop marks the end of a reasoning phase.
type ThinkingStop struct {
	M Meta `json:"-"`
}

// ToolActivity carries one pre-formatted tool-use line.
type ToolActivity struct {
	M    Meta   `json:"-"`
	Text string `json:"text,omitempty"`
}

// ToolFailure reports a failed tool invocation.
type ToolFailure struct {
	M        Meta   `json:"-"`
	ToolName string `json:"toolName,omitempty"`
	Error    string `json:"error,omitempty"`
}

// PromptSubmit echoes the prompt the user submitted inside the agent TUI.
type PromptSubmit struct {
	M    Meta   `json:"-"`
	Text string `json:"text,omitempty"`
}

// TaskCompleted reports a finished background task.
type TaskCompleted struct {
	M           Meta   `json:"-"`
	TaskSubject string `json:"taskSubject,omitempty"`
	Teammate    string `json:"teammate,omitempty"`
}

// PermissionRequest reports the agent waiting on a tool permission.
type PermissionRequest struct {
	M        Meta   `json:"-"`
	ToolName string `json:"toolName,omitempty"`
	Input    string `json:"input,omitempty"`
}

// TeammateIdle reports a teammate agent going idle.
type TeammateIdle struct {
	M            Meta   `json:"-"`
	TeammateName string `json:"teammateName,omitempty"`
	TeamName     string `json:"teamName,omitempty"`
}

func (e *SessionStart) Kind() Type        { return TypeSessionStart }
func (e *SessionEnd) Kind() Type          { return TypeSessionEnd }
func (e *SessionNotification) Kind() Type { return TypeSessionNotification }
func (e *SessionIdle) Kind() Type         { return TypeSessionIdle }
func (e *SessionError) Kind() Type        { return TypeSessionError }
func (e *ThinkingStart) Kind() Type       { return TypeThinkingStart }
func (e *ThinkingStop) Kind() Type        { return TypeThinkingStop }
func (e *ToolActivity) Kind() Type        { return TypeToolActivity }
func (e *ToolFailure) Kind() Type         { return TypeToolFailure }
func (e *PromptSubmit) Kind() Type        { return TypePromptSubmit }
func (e *TaskCompleted) Kind() Type       { return TypeTaskCompleted }
func (e *PermissionRequest) Kind() Type   { return TypePermissionRequest }
func (e *TeammateIdle) Kind() Type        { return TypeTeammateIdle }

func (e *SessionStart) Meta() Meta        { return e.M }
func (e *SessionEnd) Meta() Meta          { return e.M }
func (e *SessionNotification) Meta() Meta { return e.M }
func (e *SessionIdle) Meta() Meta         { return e.M }
func (e *SessionError) Meta() Meta        { return e.M }
func (e *ThinkingStart) Meta() Meta       { return e.M }
func (e *ThinkingStop) Meta() Meta        { return e.M }
func (e *ToolActivity) Meta() Meta        { return e.M }
func (e *ToolFailure) Meta() Meta         { return e.M }
func (e *PromptSubmit) Meta() Meta        { return e.M }
func (e *TaskCompleted) Meta() Meta       { return e.M }
func (e *PermissionRequest) Meta() Meta   { return e.M }
func (e *TeammateIdle) Meta() Meta        { return e.M }

// PrimaryText returns the main human-readable text of an event, if any.
func PrimaryText(e Event) string {
	switch ev := e.(type) {
	case *SessionNotification:
		return ev.Text
	case *SessionIdle:
		return ev.Text
	case *SessionError:
		return ev.Text
	case *ToolActivity:
		return ev.Text
	case *PromptSubmit:
		return ev.Text
	}
	return ""
}

// IsActivity reports whether this event type represents agent activity that
// should lazily create a pending turn and an anchor message when none exists.
func IsActivity(t Type) bool {
	switch t {
	case TypeThinkingStart, TypeToolActivity, TypeSessionIdle, TypeSessionStart:
		return true
	}
	return false
}

// IsTerminal reports whether this event type closes a turn and should clear
// every outstanding timer for its key.
func IsTerminal(t Type) bool {
	return t == TypeSessionIdle || t == TypeSessionError
}
