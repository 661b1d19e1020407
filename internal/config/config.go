// Package config loads the daemon configuration: a JSON5 file under
// ~/.discode plus environment overrides for secrets and tuning knobs.
// A single Config value is constructed at startup and passed down; no
// package reads the environment after that.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// DefaultHookPort is the hook ingestion server port.
const DefaultHookPort = 18470

// envPrefix is the canonical environment prefix. legacyPrefix is recognized
// with lower precedence for installations that predate the rename.
const (
	envPrefix    = "DISCODE_"
	legacyPrefix = "AGENT_DISCORD_"
)

// Config is the root daemon configuration.
type Config struct {
	// Platform selects the chat backend: "slack" or "discord".
	Platform string `json:"platform"`

	Hook       HookConfig       `json:"hook,omitempty"`
	Slack      SlackConfig      `json:"slack,omitempty"`
	Discord    DiscordConfig    `json:"discord,omitempty"`
	Projection ProjectionConfig `json:"projection,omitempty"`
	Stream     StreamConfig     `json:"stream,omitempty"`
	Submit     SubmitConfig     `json:"submit,omitempty"`
	Tracing    TracingConfig    `json:"tracing,omitempty"`

	// MaintenanceSchedule is a cron expression for the periodic sweeper
	// (file-cache pruning, stale bucket eviction). Default: every 10 min.
	MaintenanceSchedule string `json:"maintenance_schedule,omitempty"`

	// StateFile is the project registry path (default ~/.discode/state.json).
	StateFile string `json:"state_file,omitempty"`

	// HomeDir is the daemon's own directory (default ~/.discode).
	HomeDir string `json:"home_dir,omitempty"`
}

// HookConfig configures the hook ingestion HTTP server.
type HookConfig struct {
	Host string `json:"host,omitempty"` // default 127.0.0.1
	Port int    `json:"port,omitempty"` // default 18470
}

// SlackConfig holds Slack credentials. Tokens come from env only.
type SlackConfig struct {
	BotToken string `json:"-"` // DISCODE_SLACK_BOT_TOKEN
	AppToken string `json:"-"` // DISCODE_SLACK_APP_TOKEN
}

// DiscordConfig holds the Discord bot token. From env only.
type DiscordConfig struct {
	Token string `json:"-"` // DISCODE_DISCORD_TOKEN
}

// ProjectionConfig opts turn-end extras in or out.
type ProjectionConfig struct {
	PostIntermediateText bool `json:"post_intermediate_text,omitempty"`
	PostThinking         bool `json:"post_thinking,omitempty"`
	PostUsage            bool `json:"post_usage,omitempty"`
}

// StreamConfig tunes the streaming activity updater.
type StreamConfig struct {
	// MinEditMs is the minimum interval between message edits.
	// Overridable via DISCODE_STREAM_MIN_EDIT_MS. Default 1000.
	MinEditMs int `json:"min_edit_ms,omitempty"`
	// DebounceMs coalesces appends before an edit. Default 500.
	DebounceMs int `json:"debounce_ms,omitempty"`
}

// SubmitConfig tunes keystroke delivery to terminal runtimes.
type SubmitConfig struct {
	// DebounceMs is the pause between typing a message and pressing Enter.
	// Overridable via DISCODE_SUBMIT_DEBOUNCE_MS. Default 0; values below
	// 50 are raised to 50 when set.
	DebounceMs int `json:"debounce_ms,omitempty"`
}

// TracingConfig configures the optional OTLP trace exporter.
type TracingConfig struct {
	Enabled  bool   `json:"enabled,omitempty"`
	Endpoint string `json:"endpoint,omitempty"` // e.g. localhost:4318
}

// Load reads the config file (JSON5) and applies env overrides.
// A missing file yields defaults; env still applies.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := lookup("SLACK_BOT_TOKEN"); v != "" {
		c.Slack.BotToken = v
	}
	if v := lookup("SLACK_APP_TOKEN"); v != "" {
		c.Slack.AppToken = v
	}
	if v := lookup("DISCORD_TOKEN"); v != "" {
		c.Discord.Token = v
	}
	if v := lookup("PLATFORM"); v != "" {
		c.Platform = v
	}
	if v := lookup("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Hook.Port = port
		}
	}
	if v := lookup("HOSTNAME"); v != "" {
		c.Hook.Host = v
	}
	if v := lookup("STREAM_MIN_EDIT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Stream.MinEditMs = ms
		}
	}
	if v := lookup("SUBMIT_DEBOUNCE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Submit.DebounceMs = ms
		}
	}
	if v := lookup("STATE_FILE"); v != "" {
		c.StateFile = v
	}
}

func (c *Config) applyDefaults() {
	if c.HomeDir == "" {
		c.HomeDir = filepath.Join(homeDir(), ".discode")
	} else {
		c.HomeDir = ExpandHome(c.HomeDir)
	}
	if c.Platform == "" {
		if c.Discord.Token != "" && c.Slack.BotToken == "" {
			c.Platform = "discord"
		} else {
			c.Platform = "slack"
		}
	}
	if c.Hook.Host == "" {
		c.Hook.Host = "127.0.0.1"
	}
	if c.Hook.Port == 0 {
		c.Hook.Port = DefaultHookPort
	}
	if c.Stream.MinEditMs == 0 {
		c.Stream.MinEditMs = 1000
	}
	if c.Stream.DebounceMs == 0 {
		c.Stream.DebounceMs = 500
	}
	if c.Submit.DebounceMs > 0 && c.Submit.DebounceMs < 50 {
		c.Submit.DebounceMs = 50
	}
	if c.MaintenanceSchedule == "" {
		c.MaintenanceSchedule = "*/10 * * * *"
	}
	if c.StateFile == "" {
		c.StateFile = filepath.Join(c.HomeDir, "state.json")
	} else {
		c.StateFile = ExpandHome(c.StateFile)
	}
}

// TokenFile is where the per-start hook auth token lives.
func (c *Config) TokenFile() string {
	return filepath.Join(c.HomeDir, ".hook-token")
}

// AgentEnv builds the environment passed to a launched agent so its hook
// scripts can reach the daemon. Container instances see the Docker host
// alias instead of loopback.
func AgentEnv(project, agentType, instanceID string, port int, token string, container bool) []string {
	hostname := "127.0.0.1"
	if container {
		hostname = "host.docker.internal"
	}
	return []string{
		"DISCODE_PROJECT=" + project,
		"DISCODE_AGENT=" + agentType,
		"DISCODE_INSTANCE=" + instanceID,
		"DISCODE_PORT=" + strconv.Itoa(port),
		"DISCODE_HOSTNAME=" + hostname,
		"DISCODE_HOOK_TOKEN=" + token,
	}
}

// lookup reads an env var under the canonical prefix, falling back to the
// legacy prefix.
func lookup(suffix string) string {
	if v := os.Getenv(envPrefix + suffix); v != "" {
		return v
	}
	return os.Getenv(legacyPrefix + suffix)
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if path == "~" {
		return homeDir()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
