package bot

import (
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
)

// stubModule is a minimal Module implementation for tests.
type stubModule struct {
	name     string
	commands []*discordgo.ApplicationCommand
	handlers map[string]InteractionHandler
	initErr  error
}

func (m *stubModule) Name() string { return m.name }

func (m *stubModule) Commands() []*discordgo.ApplicationCommand { return m.commands }

func (m *stubModule) CommandHandlers() map[string]InteractionHandler { return m.handlers }

func (m *stubModule) EventHandlers() []EventHandler { return nil }

func (m *stubModule) Init(deps ModuleDependencies) error { return m.initErr }

func (m *stubModule) Shutdown() error { return nil }

func TestNewBot(t *testing.T) {
	cfg := &Config{
		DiscordToken: "test-token",
	}

	b := NewBot(cfg)

	if b == nil {
		t.Fatal("expected bot to be created, got nil")
	}
	if b.config != cfg {
		t.Error("expected config to be stored")
	}
}

func TestRegister_AddsToRegistry(t *testing.T) {
	ResetRegistry()
	t.Cleanup(ResetRegistry)

	Register(&stubModule{name: "one"})
	Register(&stubModule{name: "two"})

	mods := Modules()
	if len(mods) != 2 {
		t.Fatalf("expected 2 modules, got %d", len(mods))
	}
	if mods[0].Name() != "one" || mods[1].Name() != "two" {
		t.Errorf("expected registration order preserved, got %q, %q", mods[0].Name(), mods[1].Name())
	}
}

func TestBot_LoadModules_InitializesModules(t *testing.T) {
	cfg := &Config{DiscordToken: "test-token"}
	b := NewBot(cfg)

	initCalled := false
	trackingMod := &trackingStubModule{
		stubModule: stubModule{name: "tracking"},
		initCalled: &initCalled,
	}
	b.modules = []Module{trackingMod}

	err := b.initModules()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !initCalled {
		t.Error("expected Init to be called")
	}
}

func TestBot_InitModules_PassesDependencies(t *testing.T) {
	cfg := &Config{DiscordToken: "test-token"}
	b := NewBot(cfg)

	var got ModuleDependencies
	mod := &capturingStubModule{stubModule: stubModule{name: "capture"}, deps: &got}
	b.modules = []Module{mod}

	if err := b.initModules(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Config != cfg {
		t.Error("expected the bot config passed through")
	}
}

func TestBot_LoadModules_ReturnsInitError(t *testing.T) {
	cfg := &Config{DiscordToken: "test-token"}
	b := NewBot(cfg)

	expectedErr := errors.New("init failed")
	mod := &stubModule{
		name:    "failing",
		initErr: expectedErr,
	}
	b.modules = []Module{mod}

	err := b.initModules()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
}

func TestBot_BuildHandlerMap(t *testing.T) {
	cfg := &Config{DiscordToken: "test-token"}
	b := NewBot(cfg)

	handler := func(s *discordgo.Session, i *discordgo.InteractionCreate, r Responder) error {
		return nil
	}

	mod := &stubModule{
		name: "test",
		handlers: map[string]InteractionHandler{
			"ping": handler,
		},
	}
	b.modules = []Module{mod}

	b.buildHandlerMap()

	if _, ok := b.handlers["ping"]; !ok {
		t.Error("expected ping handler to be registered")
	}
}

func TestBot_BuildHandlerMap_MultipleModules(t *testing.T) {
	cfg := &Config{DiscordToken: "test-token"}
	b := NewBot(cfg)

	handler1 := func(s *discordgo.Session, i *discordgo.InteractionCreate, r Responder) error {
		return nil
	}
	handler2 := func(s *discordgo.Session, i *discordgo.InteractionCreate, r Responder) error {
		return nil
	}

	mod1 := &stubModule{
		name: "mod1",
		handlers: map[string]InteractionHandler{
			"cmd1": handler1,
		},
	}
	mod2 := &stubModule{
		name: "mod2",
		handlers: map[string]InteractionHandler{
			"cmd2": handler2,
		},
	}
	b.modules = []Module{mod1, mod2}

	b.buildHandlerMap()

	if len(b.handlers) != 2 {
		t.Errorf("expected 2 handlers, got %d", len(b.handlers))
	}
}

func TestBot_CollectCommands(t *testing.T) {
	cfg := &Config{DiscordToken: "test-token"}
	b := NewBot(cfg)

	cmd := &discordgo.ApplicationCommand{
		Name:        "ping",
		Description: "Ping command",
	}

	mod := &stubModule{
		name:     "test",
		commands: []*discordgo.ApplicationCommand{cmd},
	}
	b.modules = []Module{mod}

	commands := b.collectCommands()

	if len(commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(commands))
	}
	if commands[0].Name != "ping" {
		t.Errorf("expected command name %q, got %q", "ping", commands[0].Name)
	}
}

// trackingStubModule is a stub that tracks if Init was called
type trackingStubModule struct {
	stubModule
	initCalled *bool
}

func (m *trackingStubModule) Init(deps ModuleDependencies) error {
	*m.initCalled = true
	return m.stubModule.Init(deps)
}

// capturingStubModule records the dependencies Init received.
type capturingStubModule struct {
	stubModule
	deps *ModuleDependencies
}

func (m *capturingStubModule) Init(deps ModuleDependencies) error {
	*m.deps = deps
	return m.stubModule.Init(deps)
}
