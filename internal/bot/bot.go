package bot

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/json"
	"github.com/disgoorg/snowflake/v2"

	"github.com/lavaflow/lavaflow/lavaflow"
)

// Bot manages the Discord session, the audio manager and module
// coordination.
type Bot struct {
	config   *Config
	session  *discordgo.Session
	manager  *lavaflow.Manager
	modules  []Module
	handlers map[string]InteractionHandler
}

// NewBot creates a new Bot instance with the given configuration.
func NewBot(cfg *Config) *Bot {
	return &Bot{
		config:   cfg,
		modules:  make([]Module, 0),
		handlers: make(map[string]InteractionHandler),
	}
}

// LoadModules loads modules from the global registry.
func (b *Bot) LoadModules() {
	b.modules = Modules()
}

// Manager exposes the audio manager, available after Start.
func (b *Bot) Manager() *lavaflow.Manager {
	return b.manager
}

// Start connects to Discord, brings up the audio manager and registers
// commands.
func (b *Bot) Start(ctx context.Context) error {
	session, err := discordgo.New("Bot " + b.config.DiscordToken)
	if err != nil {
		return fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Identify.Intents |= discordgo.IntentGuildVoiceStates
	b.session = session

	b.session.AddHandler(b.handleInteraction)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	if err := b.startManager(ctx); err != nil {
		return fmt.Errorf("failed to start audio manager: %w", err)
	}

	if err := b.initModules(); err != nil {
		return fmt.Errorf("failed to initialize modules: %w", err)
	}

	b.buildHandlerMap()
	b.registerEventHandlers()

	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	slog.Info("started bot",
		"user_id", b.session.State.User.ID,
		"username", b.session.State.User.Username,
	)

	return nil
}

// startManager builds the audio manager on top of the open session. The
// client id falls back to the session's own user when not configured.
func (b *Bot) startManager(ctx context.Context) error {
	options := *b.config.Manager
	if options.ClientID == 0 {
		id, err := snowflake.Parse(b.session.State.User.ID)
		if err != nil {
			return fmt.Errorf("failed to parse bot user id: %w", err)
		}
		options.ClientID = id
	}
	options.Send = b.sendVoicePayload

	manager, err := lavaflow.NewManager(options)
	if err != nil {
		return err
	}
	b.manager = manager

	// The manager only sees voice packets we forward from the gateway.
	b.session.AddHandler(b.onVoiceServerUpdate)
	b.session.AddHandler(b.onVoiceStateUpdate)

	return manager.Init(ctx)
}

// Stop gracefully shuts down the bot.
func (b *Bot) Stop(ctx context.Context) error {
	for _, mod := range b.modules {
		if err := mod.Shutdown(); err != nil {
			slog.Warn("failed to shutdown module", "module", mod.Name(), "error", err)
		}
	}

	if b.manager != nil {
		if err := b.manager.Shutdown(ctx); err != nil {
			slog.Warn("failed to shutdown audio manager", "error", err)
		}
	}

	if b.session != nil {
		return b.session.Close()
	}

	return nil
}

// sendVoicePayload delivers the manager's voice intents through the
// gateway. An empty channel id leaves the voice channel.
func (b *Bot) sendVoicePayload(guildID snowflake.ID, payload lavaflow.VoicePayload) {
	channelID := ""
	if payload.Data.ChannelID != nil {
		channelID = payload.Data.ChannelID.String()
	}
	err := b.session.ChannelVoiceJoinManual(guildID.String(), channelID, payload.Data.SelfMute, payload.Data.SelfDeaf)
	if err != nil {
		slog.Error("failed to send voice state update", "guild_id", guildID, "error", err)
	}
}

// gatewayVoiceState mirrors the gateway's VOICE_STATE_UPDATE payload.
// discordgo models a left channel as an empty string, the manager expects
// null.
type gatewayVoiceState struct {
	GuildID   string  `json:"guild_id"`
	UserID    string  `json:"user_id"`
	SessionID string  `json:"session_id"`
	ChannelID *string `json:"channel_id"`
}

func (b *Bot) onVoiceServerUpdate(_ *discordgo.Session, e *discordgo.VoiceServerUpdate) {
	b.forwardVoicePacket("VOICE_SERVER_UPDATE", e)
}

func (b *Bot) onVoiceStateUpdate(_ *discordgo.Session, e *discordgo.VoiceStateUpdate) {
	var channelID *string
	if e.ChannelID != "" {
		channelID = &e.ChannelID
	}
	b.forwardVoicePacket("VOICE_STATE_UPDATE", gatewayVoiceState{
		GuildID:   e.GuildID,
		UserID:    e.UserID,
		SessionID: e.SessionID,
		ChannelID: channelID,
	})
}

func (b *Bot) forwardVoicePacket(kind string, payload any) {
	inner, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal voice packet", "type", kind, "error", err)
		return
	}
	packet, err := json.Marshal(struct {
		T string          `json:"t"`
		D json.RawMessage `json:"d"`
	}{T: kind, D: inner})
	if err != nil {
		slog.Error("failed to marshal voice envelope", "type", kind, "error", err)
		return
	}
	if err := b.manager.UpdateVoiceState(context.Background(), packet); err != nil {
		slog.Warn("failed to apply voice packet", "type", kind, "error", err)
	}
}

// initModules initializes all loaded modules.
func (b *Bot) initModules() error {
	deps := ModuleDependencies{
		Config:  b.config,
		Session: b.session,
		Manager: b.manager,
	}

	for _, mod := range b.modules {
		if err := mod.Init(deps); err != nil {
			return fmt.Errorf("failed to initialize %s module: %w", mod.Name(), err)
		}
		slog.Debug("initialized module", "module", mod.Name())
	}

	moduleNames := make([]string, len(b.modules))
	for i, mod := range b.modules {
		moduleNames[i] = mod.Name()
	}
	slog.Info("initialized modules", "modules", moduleNames)

	return nil
}

// buildHandlerMap builds the command name to handler mapping.
func (b *Bot) buildHandlerMap() {
	for _, mod := range b.modules {
		maps.Copy(b.handlers, mod.CommandHandlers())
	}
}

// registerEventHandlers registers all module event handlers with the session.
func (b *Bot) registerEventHandlers() {
	for _, mod := range b.modules {
		for _, handler := range mod.EventHandlers() {
			b.session.AddHandler(handler)
		}
	}
}

// collectCommands gathers all commands from loaded modules.
func (b *Bot) collectCommands() []*discordgo.ApplicationCommand {
	var commands []*discordgo.ApplicationCommand
	for _, mod := range b.modules {
		commands = append(commands, mod.Commands()...)
	}
	return commands
}

// registerCommands registers all module commands with Discord.
func (b *Bot) registerCommands() error {
	commands := b.collectCommands()

	for _, cmd := range commands {
		_, err := b.session.ApplicationCommandCreate(
			b.session.State.User.ID,
			"", // Empty string registers commands globally
			cmd,
		)
		if err != nil {
			return fmt.Errorf("failed to register command %s: %w", cmd.Name, err)
		}
		slog.Debug("registered command", "command", cmd.Name)
	}

	return nil
}

// Embed colors for responses.
const (
	colorYellow = 0xFFFF00
	colorRed    = 0xFF0000
)

// handleInteraction routes incoming interactions to the appropriate handler.
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	cmdName := i.ApplicationCommandData().Name
	handler, ok := b.handlers[cmdName]
	if !ok {
		slog.Warn("found no handler for command", "command", cmdName)
		b.respondWithEmbed(s, i, "Unknown Command", "This command is not recognized.", colorYellow)
		return
	}

	responder := NewDiscordResponder(s, i.Interaction)
	if err := handler(s, i, responder); err != nil {
		slog.Error("failed to handle command", "command", cmdName, "error", err)
		b.respondWithEmbed(s, i, "Error", "An error occurred while processing your command.",
			colorRed)
	}
}

// respondWithEmbed sends an embed response to an interaction.
func (b *Bot) respondWithEmbed(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	title, description string,
	color int,
) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{
				{
					Title:       title,
					Description: description,
					Color:       color,
				},
			},
		},
	})
	if err != nil {
		slog.Error("failed to send embed response", "error", err)
	}
}
