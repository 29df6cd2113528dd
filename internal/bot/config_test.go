package bot

import (
	"testing"
)

func setManagerEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LAVAFLOW_NODE_HOST", "audio.example.com")
	t.Setenv("LAVAFLOW_NODE_PASSWORD", "pw")
}

func TestLoadConfig_WithValidToken(t *testing.T) {
	setManagerEnv(t)
	t.Setenv("DISCORD_TOKEN", "test-token-123")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DiscordToken != "test-token-123" {
		t.Errorf("expected token %q, got %q", "test-token-123", cfg.DiscordToken)
	}
	if cfg.Manager == nil || len(cfg.Manager.Nodes) != 1 {
		t.Fatal("expected one node from the environment")
	}
	if cfg.Manager.Nodes[0].Host != "audio.example.com" {
		t.Errorf("expected node host %q, got %q", "audio.example.com", cfg.Manager.Nodes[0].Host)
	}
}

func TestLoadConfig_WithEmptyToken(t *testing.T) {
	setManagerEnv(t)
	t.Setenv("DISCORD_TOKEN", "")

	_, err := LoadConfig()
	if err == nil {
		t.Error("expected error for missing token, got nil")
	}
}

func TestLoadConfig_WithoutNodeHost(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "test-token-123")
	t.Setenv("LAVAFLOW_NODE_HOST", "")

	_, err := LoadConfig()
	if err == nil {
		t.Error("expected error for missing node host, got nil")
	}
}
