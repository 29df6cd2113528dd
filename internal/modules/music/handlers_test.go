package music

import (
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"

	"github.com/lavaflow/lavaflow/internal/bot"
	"github.com/lavaflow/lavaflow/lavaflow"
	"github.com/lavaflow/lavaflow/lavalink"
)

func testModule(t *testing.T) *Module {
	t.Helper()
	manager, err := lavaflow.NewManager(lavaflow.ManagerOptions{
		ClientID: 12345,
		Send:     func(snowflake.ID, lavaflow.VoicePayload) {},
		Nodes:    []lavaflow.NodeOptions{{Host: "localhost", Password: "pw"}},
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	m := &Module{}
	if err := m.Init(bot.ModuleDependencies{Manager: manager}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return m
}

func commandInteraction(name string, options ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:    discordgo.InteractionApplicationCommand,
			GuildID: "100",
			Data: discordgo.ApplicationCommandInteractionData{
				Name:    name,
				Options: options,
			},
		},
	}
}

func TestModule_InitRequiresManager(t *testing.T) {
	m := &Module{}
	if err := m.Init(bot.ModuleDependencies{}); err == nil {
		t.Error("expected error without a manager")
	}
}

func TestModule_EveryCommandHasAHandler(t *testing.T) {
	m := testModule(t)

	handlers := m.CommandHandlers()
	commands := m.Commands()

	for _, cmd := range commands {
		if _, ok := handlers[cmd.Name]; !ok {
			t.Errorf("command %q has no handler", cmd.Name)
		}
	}
	if len(handlers) != len(commands) {
		t.Errorf("handlers = %d, commands = %d, want matching sets", len(handlers), len(commands))
	}
}

func TestHandlers_RespondWithoutPlayer(t *testing.T) {
	m := testModule(t)

	tests := []struct {
		name    string
		handler bot.InteractionHandler
	}{
		{"skip", m.handleSkip},
		{"previous", m.handlePrevious},
		{"pause", m.handlePause},
		{"queue", m.handleQueue},
		{"disconnect", m.handleDisconnect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &bot.MockResponder{}
			if err := tt.handler(nil, commandInteraction(tt.name), r); err != nil {
				t.Fatalf("handler error = %v", err)
			}
			if r.LastResponse == nil {
				t.Fatal("no response recorded")
			}
			embeds := r.LastResponse.Data.Embeds
			if len(embeds) != 1 || embeds[0].Title != "Error" {
				t.Errorf("response = %+v, want an error embed", r.LastResponse.Data)
			}
		})
	}
}

func TestOptionHelpers(t *testing.T) {
	i := commandInteraction("play",
		&discordgo.ApplicationCommandInteractionDataOption{
			Name: "query", Type: discordgo.ApplicationCommandOptionString, Value: "resonance",
		},
		&discordgo.ApplicationCommandInteractionDataOption{
			Name: "amount", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(3),
		},
		&discordgo.ApplicationCommandInteractionDataOption{
			Name: "enabled", Type: discordgo.ApplicationCommandOptionBoolean, Value: true,
		},
	)

	if got := stringOption(i, "query"); got != "resonance" {
		t.Errorf("stringOption() = %q, want resonance", got)
	}
	if got := stringOption(i, "missing"); got != "" {
		t.Errorf("stringOption(missing) = %q, want empty", got)
	}
	if got := intOption(i, "amount", 1); got != 3 {
		t.Errorf("intOption() = %d, want 3", got)
	}
	if got := intOption(i, "missing", 1); got != 1 {
		t.Errorf("intOption(missing) = %d, want the fallback", got)
	}
	if got := boolOption(i, "enabled", false); !got {
		t.Error("boolOption() = false, want true")
	}
}

func TestTrackLine(t *testing.T) {
	tests := []struct {
		name  string
		track lavaflow.Track
		want  string
	}{
		{
			name:  "title only",
			track: lavaflow.Track{Title: "Resonance"},
			want:  "**Resonance**",
		},
		{
			name:  "linked with author",
			track: lavaflow.Track{Title: "Resonance", Author: "Home", URI: "https://youtu.be/abc"},
			want:  "[**Resonance**](https://youtu.be/abc) by Home",
		},
		{
			name:  "identifier fallback",
			track: lavaflow.Track{Identifier: "abc"},
			want:  "**abc**",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := trackLine(tt.track); got != tt.want {
				t.Errorf("trackLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatQueue(t *testing.T) {
	if got := formatQueue(nil, nil, 0); got != "The queue is empty." {
		t.Errorf("formatQueue(empty) = %q", got)
	}

	current := &lavaflow.Track{Title: "Now"}
	upcoming := make([]lavaflow.Track, 12)
	for n := range upcoming {
		upcoming[n] = lavaflow.Track{Title: "Track"}
	}

	got := formatQueue(current, upcoming, 36*lavalink.Minute)
	if want := "Now: **Now**\n"; got[:len(want)] != want {
		t.Errorf("formatQueue() = %q, want it to open with %q", got, want)
	}
	if !strings.Contains(got, "... and 2 more") {
		t.Errorf("formatQueue() = %q, want the overflow line", got)
	}
	if !strings.Contains(got, "Total duration: 36:00") {
		t.Errorf("formatQueue() = %q, want the total duration", got)
	}
}
