package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Hook.Host != "127.0.0.1" || cfg.Hook.Port != DefaultHookPort {
		t.Errorf("hook defaults = %s:%d", cfg.Hook.Host, cfg.Hook.Port)
	}
	if cfg.Stream.MinEditMs != 1000 || cfg.Stream.DebounceMs != 500 {
		t.Errorf("stream defaults = %+v", cfg.Stream)
	}
	if cfg.MaintenanceSchedule != "*/10 * * * *" {
		t.Errorf("maintenance schedule = %q", cfg.MaintenanceSchedule)
	}
	if !strings.HasSuffix(cfg.StateFile, filepath.Join(".discode", "state.json")) {
		t.Errorf("state file = %q", cfg.StateFile)
	}
	if !strings.HasSuffix(cfg.TokenFile(), filepath.Join(".discode", ".hook-token")) {
		t.Errorf("token file = %q", cfg.TokenFile())
	}
}

func TestLoadJSON5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		// comments are allowed
		platform: "discord",
		hook: { port: 9999 },
		projection: { post_usage: true },
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Platform != "discord" || cfg.Hook.Port != 9999 || !cfg.Projection.PostUsage {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DISCODE_PLATFORM", "discord")
	t.Setenv("DISCODE_DISCORD_TOKEN", "tok-d")
	t.Setenv("DISCODE_PORT", "12345")
	t.Setenv("DISCODE_STREAM_MIN_EDIT_MS", "250")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Platform != "discord" || cfg.Discord.Token != "tok-d" {
		t.Errorf("platform/token = %q/%q", cfg.Platform, cfg.Discord.Token)
	}
	if cfg.Hook.Port != 12345 {
		t.Errorf("port = %d", cfg.Hook.Port)
	}
	if cfg.Stream.MinEditMs != 250 {
		t.Errorf("min edit = %d", cfg.Stream.MinEditMs)
	}
}

func TestLegacyEnvPrefixLowerPrecedence(t *testing.T) {
	t.Setenv("AGENT_DISCORD_SLACK_BOT_TOKEN", "legacy")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Slack.BotToken != "legacy" {
		t.Errorf("legacy prefix not honored: %q", cfg.Slack.BotToken)
	}

	t.Setenv("DISCODE_SLACK_BOT_TOKEN", "canonical")
	cfg, err = Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Slack.BotToken != "canonical" {
		t.Errorf("canonical prefix must win: %q", cfg.Slack.BotToken)
	}
}

func TestPlatformInferredFromTokens(t *testing.T) {
	t.Setenv("DISCODE_DISCORD_TOKEN", "tok-d")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Platform != "discord" {
		t.Errorf("platform = %q, want discord inferred from token", cfg.Platform)
	}
}

func TestSubmitDebounceFloor(t *testing.T) {
	t.Setenv("DISCODE_SUBMIT_DEBOUNCE_MS", "10")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Submit.DebounceMs != 50 {
		t.Errorf("debounce = %d, want raised to 50", cfg.Submit.DebounceMs)
	}
}

func TestAgentEnv(t *testing.T) {
	env := AgentEnv("proj", "claude", "i-1", 18470, "tok", false)
	want := []string{
		"DISCODE_PROJECT=proj",
		"DISCODE_AGENT=claude",
		"DISCODE_INSTANCE=i-1",
		"DISCODE_PORT=18470",
		"DISCODE_HOSTNAME=127.0.0.1",
		"DISCODE_HOOK_TOKEN=tok",
	}
	if len(env) != len(want) {
		t.Fatalf("env = %v", env)
	}
	for i := range want {
		if env[i] != want[i] {
			t.Errorf("env[%d] = %q, want %q", i, env[i], want[i])
		}
	}

	containerEnv := AgentEnv("proj", "claude", "i-1", 18470, "tok", true)
	found := false
	for _, kv := range containerEnv {
		if kv == "DISCODE_HOSTNAME=host.docker.internal" {
			found = true
		}
	}
	if !found {
		t.Error("container instances must see the docker host alias")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := ExpandHome("~/x"); got != filepath.Join(home, "x") {
		t.Errorf("ExpandHome(~/x) = %q", got)
	}
	if got := ExpandHome("/abs/x"); got != "/abs/x" {
		t.Errorf("ExpandHome(/abs/x) = %q", got)
	}
}
