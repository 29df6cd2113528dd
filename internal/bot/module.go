package bot

import (
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/lavaflow/lavaflow/lavaflow"
)

// InteractionHandler handles a Discord interaction and returns a response.
type InteractionHandler func(s *discordgo.Session, i *discordgo.InteractionCreate, r Responder) error

// EventHandler is a generic handler for any Discord event.
// It should be a function matching one of discordgo's handler signatures,
// e.g., func(s *discordgo.Session, m *discordgo.MessageCreate)
type EventHandler any

// ModuleDependencies provides dependencies that modules may need during
// initialization. Session and Manager are live by the time Init runs.
type ModuleDependencies struct {
	Config  *Config
	Session *discordgo.Session
	Manager *lavaflow.Manager
}

// Module defines the interface that all bot modules must implement.
type Module interface {
	// Name returns the unique identifier for this module.
	Name() string

	// Commands returns the slash commands that this module provides.
	Commands() []*discordgo.ApplicationCommand

	// CommandHandlers returns a map of command names to their handlers.
	CommandHandlers() map[string]InteractionHandler

	// EventHandlers returns event handlers for this module.
	// Each handler should match a discordgo handler signature.
	EventHandlers() []EventHandler

	// Init initializes the module with the provided dependencies.
	Init(deps ModuleDependencies) error

	// Shutdown gracefully shuts down the module.
	Shutdown() error
}

var (
	registryMu sync.Mutex
	registry   []Module
)

// Register adds a module to the global registry. Modules call this from
// their init function so a blank import is enough to enable them.
func Register(mod Module) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, mod)
}

// Modules returns all registered modules.
func Modules() []Module {
	registryMu.Lock()
	defer registryMu.Unlock()
	out := make([]Module, len(registry))
	copy(out, registry)
	return out
}

// ResetRegistry clears the global registry. Only for tests.
func ResetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = nil
}
