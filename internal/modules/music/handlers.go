package music

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"

	"github.com/lavaflow/lavaflow/internal/bot"
	"github.com/lavaflow/lavaflow/lavaflow"
	"github.com/lavaflow/lavaflow/lavalink"
)

// Embed colors for responses.
const (
	colorSuccess = 0x08C404
	colorError   = 0xE74C3C
)

// queuePageSize bounds the /queue listing.
const queuePageSize = 10

var errNoPlayer = errors.New("no active player")

func respondEmbed(r bot.Responder, title, description string, color int) error {
	return r.Respond(&discordgo.InteractionResponse{
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
}

func respondError(r bot.Responder, description string) error {
	return respondEmbed(r, "Error", description, colorError)
}

func stringOption(i *discordgo.InteractionCreate, name string) string {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name {
			return opt.StringValue()
		}
	}
	return ""
}

func intOption(i *discordgo.InteractionCreate, name string, fallback int) int {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name {
			return int(opt.IntValue())
		}
	}
	return fallback
}

func boolOption(i *discordgo.InteractionCreate, name string, fallback bool) bool {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name {
			return opt.BoolValue()
		}
	}
	return fallback
}

// trackLine renders a track as a one-line markdown reference.
func trackLine(track lavaflow.Track) string {
	title := track.Title
	if title == "" {
		title = track.Identifier
	}
	line := fmt.Sprintf("**%s**", title)
	if track.URI != "" {
		line = fmt.Sprintf("[**%s**](%s)", title, track.URI)
	}
	if track.Author != "" {
		line += " by " + track.Author
	}
	return line
}

// guildPlayer resolves the invoking guild's player.
func (m *Module) guildPlayer(i *discordgo.InteractionCreate) (*lavaflow.Player, error) {
	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse guild id: %w", err)
	}
	player := m.manager.ExistingPlayer(guildID)
	if player == nil {
		return nil, errNoPlayer
	}
	return player, nil
}

func (m *Module) handlePlay(s *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	if i.Member == nil || i.Member.User == nil {
		return respondError(r, "This command only works in a server.")
	}
	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return fmt.Errorf("failed to parse guild id: %w", err)
	}
	userID, err := snowflake.Parse(i.Member.User.ID)
	if err != nil {
		return fmt.Errorf("failed to parse user id: %w", err)
	}

	voiceState, err := s.State.VoiceState(i.GuildID, i.Member.User.ID)
	if err != nil || voiceState.ChannelID == "" {
		return respondError(r, "Join a voice channel first.")
	}
	voiceChannelID, err := snowflake.Parse(voiceState.ChannelID)
	if err != nil {
		return fmt.Errorf("failed to parse voice channel id: %w", err)
	}
	textChannelID, _ := snowflake.Parse(i.ChannelID)

	query := stringOption(i, "query")
	if query == "" {
		return respondError(r, "A query is required.")
	}

	// Searching hits the node, so acknowledge before resolving.
	if err := r.Defer(); err != nil {
		return err
	}

	ctx := context.Background()
	requester := &lavaflow.Requester{
		ID:        userID,
		Username:  i.Member.User.Username,
		AvatarURL: i.Member.User.AvatarURL(""),
	}
	result, err := m.manager.Search(ctx, query, requester)
	if err != nil {
		return err
	}

	var tracks []lavaflow.Track
	var description string
	switch {
	case result.Playlist != nil:
		tracks = result.Playlist.Tracks
		description = fmt.Sprintf("Queued playlist **%s** with %d tracks.", result.Playlist.Name, len(tracks))
	case len(result.Tracks) > 0:
		tracks = result.Tracks[:1]
		description = "Queued " + trackLine(tracks[0]) + "."
	default:
		return r.Followup(&discordgo.MessageEmbed{
			Title:       "No Results",
			Description: "Nothing found for that query.",
			Color:       colorError,
		})
	}

	player := m.manager.ExistingPlayer(guildID)
	if player == nil {
		player, err = m.manager.CreatePlayer(ctx, lavaflow.PlayerOptions{
			GuildID:        guildID,
			VoiceChannelID: voiceChannelID,
			TextChannelID:  textChannelID,
			SelfDeaf:       true,
		})
		if err != nil {
			return err
		}
		if err := player.Connect(ctx); err != nil {
			return err
		}
	}

	if err := player.Queue().Add(ctx, tracks, nil); err != nil {
		return err
	}
	if !player.Playing() {
		if err := player.Play(ctx, nil, lavaflow.PlayOptions{}); err != nil {
			return err
		}
	}

	return r.Followup(&discordgo.MessageEmbed{
		Title:       "Queued",
		Description: description,
		Color:       colorSuccess,
	})
}

func (m *Module) handleSkip(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	player, err := m.guildPlayer(i)
	if err != nil {
		return respondError(r, "Nothing is playing in this server.")
	}
	amount := intOption(i, "amount", 1)
	if err := player.Stop(context.Background(), amount); err != nil {
		return err
	}
	if amount > 1 {
		return respondEmbed(r, "Skipped", fmt.Sprintf("Skipped %d tracks.", amount), colorSuccess)
	}
	return respondEmbed(r, "Skipped", "Skipped the current track.", colorSuccess)
}

func (m *Module) handlePrevious(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	player, err := m.guildPlayer(i)
	if err != nil {
		return respondError(r, "Nothing is playing in this server.")
	}
	if err := player.Previous(context.Background()); err != nil {
		if lavaflow.IsCode(err, lavaflow.ErrNoPreviousTrack) {
			return respondError(r, "There is no previous track.")
		}
		return err
	}
	return respondEmbed(r, "Previous", "Playing the previous track again.", colorSuccess)
}

func (m *Module) handlePause(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	player, err := m.guildPlayer(i)
	if err != nil {
		return respondError(r, "Nothing is playing in this server.")
	}
	if err := player.Pause(context.Background(), true); err != nil {
		return err
	}
	return respondEmbed(r, "Paused", "Playback paused.", colorSuccess)
}

func (m *Module) handleResume(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	player, err := m.guildPlayer(i)
	if err != nil {
		return respondError(r, "Nothing is playing in this server.")
	}
	if err := player.Pause(context.Background(), false); err != nil {
		return err
	}
	return respondEmbed(r, "Resumed", "Playback resumed.", colorSuccess)
}

func (m *Module) handleStop(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	player, err := m.guildPlayer(i)
	if err != nil {
		return respondError(r, "Nothing is playing in this server.")
	}
	ctx := context.Background()
	if err := player.Queue().Clear(ctx); err != nil {
		return err
	}
	if err := player.Stop(ctx, 1); err != nil {
		return err
	}
	return respondEmbed(r, "Stopped", "Playback stopped and queue cleared.", colorSuccess)
}

func (m *Module) handleSeek(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	player, err := m.guildPlayer(i)
	if err != nil {
		return respondError(r, "Nothing is playing in this server.")
	}
	position := lavalink.Duration(intOption(i, "position", 0)) * lavalink.Second
	if err := player.Seek(context.Background(), position); err != nil {
		if lavaflow.IsCode(err, lavaflow.ErrNoCurrentTrack) {
			return respondError(r, "There is no track to seek in.")
		}
		return err
	}
	return respondEmbed(r, "Seek", fmt.Sprintf("Jumped to %s.", position), colorSuccess)
}

func (m *Module) handleVolume(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	player, err := m.guildPlayer(i)
	if err != nil {
		return respondError(r, "Nothing is playing in this server.")
	}
	level := intOption(i, "level", 100)
	if err := player.SetVolume(context.Background(), level); err != nil {
		if lavaflow.IsCode(err, lavaflow.ErrInvalidArgument) {
			return respondError(r, "Volume must be between 0 and 1000.")
		}
		return err
	}
	return respondEmbed(r, "Volume", fmt.Sprintf("Volume set to %d.", level), colorSuccess)
}

func (m *Module) handleLoop(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	player, err := m.guildPlayer(i)
	if err != nil {
		return respondError(r, "Nothing is playing in this server.")
	}
	mode := stringOption(i, "mode")
	switch mode {
	case "track":
		player.SetTrackRepeat(true)
	case "queue":
		player.SetQueueRepeat(true)
	case "off":
		player.SetTrackRepeat(false)
		player.SetQueueRepeat(false)
	default:
		return respondError(r, "Unknown repeat mode.")
	}
	return respondEmbed(r, "Loop", fmt.Sprintf("Repeat mode set to %s.", mode), colorSuccess)
}

func (m *Module) handleShuffle(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	player, err := m.guildPlayer(i)
	if err != nil {
		return respondError(r, "Nothing is playing in this server.")
	}
	if err := player.Queue().Shuffle(context.Background()); err != nil {
		return err
	}
	return respondEmbed(r, "Shuffled", "Shuffled the upcoming tracks.", colorSuccess)
}

func (m *Module) handleQueue(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	player, err := m.guildPlayer(i)
	if err != nil {
		return respondError(r, "Nothing is playing in this server.")
	}
	ctx := context.Background()
	current, err := player.Queue().Current(ctx)
	if err != nil {
		return err
	}
	upcoming, err := player.Queue().Tracks(ctx)
	if err != nil {
		return err
	}
	duration, err := player.Queue().Duration(ctx)
	if err != nil {
		return err
	}
	return respondEmbed(r, "Queue", formatQueue(current, upcoming, duration), colorSuccess)
}

func (m *Module) handleNowPlaying(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	player, err := m.guildPlayer(i)
	if err != nil {
		return respondError(r, "Nothing is playing in this server.")
	}
	current, err := player.Queue().Current(context.Background())
	if err != nil {
		return err
	}
	if current == nil {
		return respondError(r, "Nothing is playing right now.")
	}
	description := fmt.Sprintf("%s\n%s / %s", trackLine(*current), player.Position(), current.Duration)
	if player.Paused() {
		description += " (paused)"
	}
	return respondEmbed(r, "Now Playing", description, colorSuccess)
}

func (m *Module) handleAutoplay(s *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	player, err := m.guildPlayer(i)
	if err != nil {
		return respondError(r, "Nothing is playing in this server.")
	}
	enabled := boolOption(i, "enabled", false)

	var botUser *lavaflow.Requester
	if s != nil && s.State != nil && s.State.User != nil {
		if id, err := snowflake.Parse(s.State.User.ID); err == nil {
			botUser = &lavaflow.Requester{ID: id, Username: s.State.User.Username}
		}
	}
	if err := player.SetAutoplay(enabled, botUser, 3); err != nil {
		return err
	}
	if enabled {
		return respondEmbed(r, "Autoplay", "Autoplay enabled.", colorSuccess)
	}
	return respondEmbed(r, "Autoplay", "Autoplay disabled.", colorSuccess)
}

func (m *Module) handleDisconnect(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	player, err := m.guildPlayer(i)
	if err != nil {
		return respondError(r, "Nothing is playing in this server.")
	}
	if err := player.Destroy(context.Background(), true); err != nil {
		return err
	}
	return respondEmbed(r, "Disconnected", "Left the voice channel.", colorSuccess)
}

// formatQueue renders the current track and the first page of upcoming
// tracks.
func formatQueue(current *lavaflow.Track, upcoming []lavaflow.Track, duration lavalink.Duration) string {
	if current == nil && len(upcoming) == 0 {
		return "The queue is empty."
	}

	var b strings.Builder
	if current != nil {
		fmt.Fprintf(&b, "Now: %s\n", trackLine(*current))
	}
	for n, track := range upcoming {
		if n == queuePageSize {
			fmt.Fprintf(&b, "... and %d more\n", len(upcoming)-queuePageSize)
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", n+1, trackLine(track))
	}
	fmt.Fprintf(&b, "\nTotal duration: %s", duration)
	return b.String()
}
