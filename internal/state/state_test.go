package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

const fixture = `{
  "projects": {
    "webapp": {
      "projectName": "webapp",
      "projectPath": "/home/dev/webapp",
      "tmuxSession": "discode-webapp",
      "instances": {
        "i-claude": {"instanceId": "i-claude", "agentType": "claude", "channelId": "ch-claude", "tmuxWindow": "0"},
        "i-codex":  {"instanceId": "i-codex",  "agentType": "codex",  "channelId": "ch-codex",  "tmuxWindow": "1"}
      }
    }
  }
}`

func loadFixture(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte(fixture), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestLoadMissingFileYieldsEmptyStore(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if names := s.ProjectNames(); len(names) != 0 {
		t.Errorf("projects = %v, want none", names)
	}
}

func TestLoadCorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("corrupt state file should fail loudly")
	}
}

func TestProjectReturnsSnapshot(t *testing.T) {
	s := loadFixture(t)
	p, ok := s.Project("webapp")
	if !ok {
		t.Fatal("project missing")
	}
	p.Instances["i-claude"].ChannelID = "mutated"

	again, _ := s.Project("webapp")
	if again.Instances["i-claude"].ChannelID != "ch-claude" {
		t.Error("mutating the snapshot must not affect the store")
	}
}

func TestResolveChannel(t *testing.T) {
	s := loadFixture(t)

	project, agent, instance, ok := s.ResolveChannel("ch-codex")
	if !ok || project != "webapp" || agent != "codex" || instance != "i-codex" {
		t.Errorf("ResolveChannel = (%q, %q, %q, %v)", project, agent, instance, ok)
	}
	if _, _, _, ok := s.ResolveChannel("ch-unknown"); ok {
		t.Error("unknown channel must not resolve")
	}
}

func TestResolveInstance(t *testing.T) {
	s := loadFixture(t)

	tests := []struct {
		name       string
		agentType  string
		instanceID string
		wantID     string
		wantOK     bool
	}{
		{"by explicit id", "claude", "i-claude", "i-claude", true},
		{"explicit id wins over agent type", "codex", "i-claude", "i-claude", true},
		{"by agent type", "codex", "", "i-codex", true},
		{"unknown explicit id", "claude", "i-ghost", "", false},
		{"unknown agent falls back to any", "gemini", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, ok := s.ResolveInstance("webapp", tt.agentType, tt.instanceID)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if tt.wantID != "" && inst.InstanceID != tt.wantID {
				t.Errorf("instance = %q, want %q", inst.InstanceID, tt.wantID)
			}
		})
	}

	if _, ok := s.ResolveInstance("ghost", "claude", ""); ok {
		t.Error("unknown project must not resolve")
	}
}

func TestTouchLastActivePersists(t *testing.T) {
	s := loadFixture(t)
	s.TouchLastActive("webapp")

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	var sf struct {
		Projects map[string]struct {
			LastActive string `json:"lastActive"`
		} `json:"projects"`
	}
	if err := json.Unmarshal(data, &sf); err != nil {
		t.Fatal(err)
	}
	if sf.Projects["webapp"].LastActive == "" || sf.Projects["webapp"].LastActive == "0001-01-01T00:00:00Z" {
		t.Errorf("lastActive not persisted: %q", sf.Projects["webapp"].LastActive)
	}
}

func TestReloadPicksUpChanges(t *testing.T) {
	s := loadFixture(t)

	updated := `{"projects":{"newproj":{"projectName":"newproj","projectPath":"/p","instances":{}}}}`
	if err := os.WriteFile(s.Path(), []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Reload(); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Project("webapp"); ok {
		t.Error("old project should be gone after reload")
	}
	if _, ok := s.Project("newproj"); !ok {
		t.Error("new project should be visible after reload")
	}
}
