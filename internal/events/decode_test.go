package events

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeVariants(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		check func(t *testing.T, ev Event)
	}{
		{
			name: "session idle with usage",
			body: `{"type":"session.idle","projectName":"proj","agentType":"claude",
				"text":"Fixed.","usage":{"inputTokens":120,"outputTokens":80,"totalCostUsd":0.01}}`,
			check: func(t *testing.T, ev Event) {
				idle, ok := ev.(*SessionIdle)
				if !ok {
					t.Fatalf("type = %T", ev)
				}
				if idle.Text != "Fixed." || idle.Usage.InputTokens != 120 || idle.Usage.TotalCostUSD != 0.01 {
					t.Errorf("idle = %+v", idle)
				}
			},
		},
		{
			name: "tool activity",
			body: `{"type":"tool.activity","projectName":"proj","agentType":"codex","instanceId":"i-1","text":"📖 Read(` + "`a.go`" + `)"}`,
			check: func(t *testing.T, ev Event) {
				ta, ok := ev.(*ToolActivity)
				if !ok {
					t.Fatalf("type = %T", ev)
				}
				if ta.M.InstanceID != "i-1" || !strings.Contains(ta.Text, "Read") {
					t.Errorf("activity = %+v", ta)
				}
			},
		},
		{
			name: "session start with source",
			body: `{"type":"session.start","projectName":"proj","agentType":"claude","source":"startup","model":"m-1"}`,
			check: func(t *testing.T, ev Event) {
				ss := ev.(*SessionStart)
				if ss.Source != "startup" || ss.Model != "m-1" {
					t.Errorf("start = %+v", ss)
				}
			},
		},
		{
			name: "prompt questions",
			body: `{"type":"session.idle","projectName":"proj","agentType":"claude",
				"promptQuestions":[{"question":"Deploy?","options":[{"label":"Yes"},{"label":"No","description":"abort"}]}]}`,
			check: func(t *testing.T, ev Event) {
				idle := ev.(*SessionIdle)
				if len(idle.PromptQuestions) != 1 || len(idle.PromptQuestions[0].Options) != 2 {
					t.Errorf("questions = %+v", idle.PromptQuestions)
				}
			},
		},
		{
			name: "permission request",
			body: `{"type":"permission.request","projectName":"proj","agentType":"claude","toolName":"Bash","input":"rm -rf"}`,
			check: func(t *testing.T, ev Event) {
				pr := ev.(*PermissionRequest)
				if pr.ToolName != "Bash" || pr.Input != "rm -rf" {
					t.Errorf("permission = %+v", pr)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode([]byte(tt.body))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			tt.check(t, ev)
		})
	}
}

func TestDecodeRejections(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "not json at all"},
		{"json array", `[1,2,3]`},
		{"json string", `"hello"`},
		{"empty body", ""},
		{"missing project", `{"type":"session.idle","agentType":"claude"}`},
		{"blank project", `{"type":"session.idle","projectName":"   ","agentType":"claude"}`},
		{"unknown type", `{"type":"session.unknown","projectName":"proj","agentType":"claude"}`},
		{"missing type", `{"projectName":"proj","agentType":"claude"}`},
		{"truncated", `{"type":"session.idle","projectName":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Errorf("error type = %T, want *DecodeError", err)
			}
		})
	}
}

func TestMetaInstanceKey(t *testing.T) {
	m := Meta{AgentType: "claude"}
	if got := m.InstanceKey(); got != "claude" {
		t.Errorf("InstanceKey = %q, want agent type fallback", got)
	}
	m.InstanceID = "i-1"
	if got := m.InstanceKey(); got != "i-1" {
		t.Errorf("InstanceKey = %q, want explicit ID", got)
	}
}

func TestIsActivityAndTerminal(t *testing.T) {
	activity := []Type{TypeThinkingStart, TypeToolActivity, TypeSessionIdle, TypeSessionStart}
	for _, typ := range activity {
		if !IsActivity(typ) {
			t.Errorf("IsActivity(%s) = false", typ)
		}
	}
	for _, typ := range []Type{TypeSessionNotification, TypeSessionError, TypePromptSubmit} {
		if IsActivity(typ) {
			t.Errorf("IsActivity(%s) = true, must not auto-create turns", typ)
		}
	}

	if !IsTerminal(TypeSessionIdle) || !IsTerminal(TypeSessionError) {
		t.Error("idle and error are terminal")
	}
	if IsTerminal(TypeSessionEnd) {
		t.Error("session.end is not terminal")
	}
}
