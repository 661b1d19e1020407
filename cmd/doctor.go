package cmd

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/discode-ai/discode/internal/config"
	"github.com/discode-ai/discode/internal/state"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("discode doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, defaults apply)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Printf("  Platform: %s", cfg.Platform)
	switch cfg.Platform {
	case "slack":
		if cfg.Slack.BotToken == "" || cfg.Slack.AppToken == "" {
			fmt.Print(" (MISSING DISCODE_SLACK_BOT_TOKEN / DISCODE_SLACK_APP_TOKEN)")
		}
	case "discord":
		if cfg.Discord.Token == "" {
			fmt.Print(" (MISSING DISCODE_DISCORD_TOKEN)")
		}
	default:
		fmt.Print(" (UNKNOWN — expected slack or discord)")
	}
	fmt.Println()

	fmt.Printf("  State:    %s", cfg.StateFile)
	store, err := state.Load(cfg.StateFile)
	if err != nil {
		fmt.Printf(" (LOAD ERROR: %s)\n", err)
	} else {
		fmt.Printf(" (%d projects)\n", len(store.ProjectNames()))
	}

	fmt.Printf("  tmux:     ")
	if path, err := exec.LookPath("tmux"); err != nil {
		fmt.Println("not found (tmux runtimes unavailable)")
	} else {
		fmt.Println(path)
	}

	// A running daemon answers /health without auth.
	url := fmt.Sprintf("http://%s:%d/health", cfg.Hook.Host, cfg.Hook.Port)
	fmt.Printf("  Daemon:   %s", url)
	httpClient := &http.Client{Timeout: 2 * time.Second}
	resp, err := httpClient.Get(url)
	if err != nil {
		fmt.Println(" (not running)")
	} else {
		resp.Body.Close()
		fmt.Printf(" (%s)\n", resp.Status)
	}
}
