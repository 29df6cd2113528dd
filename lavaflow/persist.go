package lavaflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disgoorg/json"
	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/sync/errgroup"

	"github.com/lavaflow/lavaflow/lavalink"
)

const (
	// persistConcurrency caps parallel player writes during shutdown.
	persistConcurrency = 16
	// persistDrainTimeout bounds the whole persist-all pass.
	persistDrainTimeout = 2 * time.Second
	// orphanSweepInterval is how often stale player files are removed.
	orphanSweepInterval = 5 * time.Minute
)

// playerFile is the on-disk snapshot of one player, written on shutdown
// and replayed on a resumed node session. Back-references (manager,
// filters) are deliberately absent; the filter payload itself is kept.
type playerFile struct {
	GuildID        snowflake.ID       `json:"guildId"`
	NodeIdentifier string             `json:"node"`
	VoiceChannelID snowflake.ID       `json:"voiceChannelId"`
	TextChannelID  snowflake.ID       `json:"textChannelId"`
	SelfDeaf       bool               `json:"selfDeaf"`
	SelfMute       bool               `json:"selfMute"`
	Volume         int                `json:"volume"`
	Position       lavalink.Duration  `json:"position"`
	Paused         bool               `json:"paused"`
	Playing        bool               `json:"playing"`
	TrackRepeat    bool               `json:"trackRepeat"`
	QueueRepeat    bool               `json:"queueRepeat"`
	Autoplay       bool               `json:"autoplay"`
	AutoplayTries  int                `json:"autoplayTries"`
	BotUser        *Requester         `json:"botUser,omitempty"`
	Voice          lavalink.VoiceState `json:"voice"`
	Filters        lavalink.Filters   `json:"filters"`
	Current        *Track             `json:"current"`
	Upcoming       []Track            `json:"upcoming"`
	Previous       []Track            `json:"previous"`
}

func (m *Manager) playersDir() string {
	return filepath.Join(m.options.StateDir, "players")
}

func (m *Manager) playerFilePath(guildID snowflake.ID) string {
	return filepath.Join(m.playersDir(), fmt.Sprintf("%s.json", guildID))
}

// PersistAll writes every non-disconnected player to one file per guild.
// Writes run in parallel with bounded concurrency and an overall drain
// deadline; a failed guild is skipped, the first error is returned after
// every player was attempted.
func (m *Manager) PersistAll(ctx context.Context) error {
	players := m.Players()
	if len(players) == 0 {
		return nil
	}
	if err := os.MkdirAll(m.playersDir(), 0o755); err != nil {
		return wrapError(ErrInvalidConfig, err, "failed to create players directory")
	}

	ctx, cancel := context.WithTimeout(ctx, persistDrainTimeout)
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(persistConcurrency)
	for _, player := range players {
		if player.State() == PlayerStateDisconnected {
			continue
		}
		player := player
		group.Go(func() error {
			if err := m.persistPlayer(ctx, player); err != nil {
				m.logger.Warn("failed to persist player",
					slog.String("guild_id", player.GuildID().String()),
					slog.Any("err", err),
				)
				return err
			}
			return nil
		})
	}
	return group.Wait()
}

func (m *Manager) persistPlayer(ctx context.Context, player *Player) error {
	current, err := player.queue.Current(ctx)
	if err != nil {
		return err
	}
	upcoming, err := player.queue.Tracks(ctx)
	if err != nil {
		return err
	}
	previous, err := player.queue.Previous(ctx)
	if err != nil {
		return err
	}

	player.mu.Lock()
	botUser, _ := player.data[DataKeyBotUser].(*Requester)
	file := playerFile{
		GuildID:        player.guildID,
		VoiceChannelID: player.voiceChannelID,
		TextChannelID:  player.textChannelID,
		SelfDeaf:       player.selfDeaf,
		SelfMute:       player.selfMute,
		Volume:         player.volume,
		Position:       player.position,
		Paused:         player.paused,
		Playing:        player.playing,
		TrackRepeat:    player.trackRepeat,
		QueueRepeat:    player.queueRepeat || player.dynamicRepeat,
		Autoplay:       player.autoplay,
		AutoplayTries:  player.autoplayTries,
		BotUser:        botUser,
		Voice:          player.voice,
		Current:        current,
		Upcoming:       upcoming,
		Previous:       previous,
	}
	if player.node != nil {
		file.NodeIdentifier = player.node.Identifier()
	}
	player.mu.Unlock()

	file.Filters = player.filters.Current()

	data, err := json.Marshal(file)
	if err != nil {
		return err
	}
	return writeFileAtomic(m.playerFilePath(file.GuildID), data)
}

// restorePlayers replays persisted player files after a node session
// resumed. Files for other nodes stay untouched. Each successful restore
// deletes its file.
func (m *Manager) restorePlayers(node *Node) {
	entries, err := os.ReadDir(m.playersDir())
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		m.logger.Warn("failed to list player files", slog.Any("err", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sessionID, err := node.requireSession()
	if err != nil {
		m.logger.Warn("restore without session", slog.Any("err", err))
		return
	}
	nodePlayers, err := node.Rest().GetPlayers(ctx, sessionID)
	if err != nil {
		m.logger.Warn("failed to fetch node players for restore", slog.Any("err", err))
		nodePlayers = nil
	}
	remoteByGuild := make(map[snowflake.ID]lavalink.Player, len(nodePlayers))
	for _, remote := range nodePlayers {
		remoteByGuild[remote.GuildID] = remote
	}

	restored := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(m.playersDir(), entry.Name())
		file, err := readPlayerFile(path)
		if err != nil {
			m.logger.Warn("skipping corrupt player file", slog.String("file", entry.Name()), slog.Any("err", err))
			continue
		}
		if file.NodeIdentifier != node.Identifier() {
			continue
		}

		if err := m.restorePlayer(ctx, node, *file, remoteByGuild); err != nil {
			m.logger.Warn("failed to restore player",
				slog.String("guild_id", file.GuildID.String()),
				slog.Any("err", err),
			)
			continue
		}
		if err := os.Remove(path); err != nil {
			m.logger.Warn("failed to delete restored player file", slog.Any("err", err))
		}
		restored++
	}

	m.logger.Info("player restore complete", slog.Int("restored", restored))
	m.Events.RestoreComplete.Emit(RestoreCompleteEvent{Node: node, Restored: restored})
}

func readPlayerFile(path string) (*playerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file playerFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

func (m *Manager) restorePlayer(ctx context.Context, node *Node, file playerFile, remote map[snowflake.ID]lavalink.Player) error {
	player, err := m.CreatePlayer(ctx, PlayerOptions{
		GuildID:        file.GuildID,
		VoiceChannelID: file.VoiceChannelID,
		TextChannelID:  file.TextChannelID,
		SelfDeaf:       file.SelfDeaf,
		SelfMute:       file.SelfMute,
		Volume:         file.Volume,
		NodeIdentifier: node.Identifier(),
	})
	if err != nil {
		return err
	}
	player.setNode(node)

	if err := player.queue.SetCurrent(ctx, file.Current); err != nil {
		return err
	}
	if len(file.Upcoming) > 0 {
		offset := 0
		if err := player.queue.Add(ctx, file.Upcoming, &offset); err != nil {
			return err
		}
	}
	if err := player.queue.SetPrevious(ctx, file.Previous); err != nil {
		return err
	}

	player.mu.Lock()
	player.voice = file.Voice
	player.trackRepeat = file.TrackRepeat
	player.queueRepeat = file.QueueRepeat
	player.autoplay = file.Autoplay
	if file.AutoplayTries > 0 {
		player.autoplayTries = file.AutoplayTries
	}
	if file.BotUser != nil {
		player.data[DataKeyBotUser] = file.BotUser
	}
	player.paused = file.Paused
	player.position = file.Position
	if player.voice.Complete() {
		player.state = PlayerStateConnected
	}
	voiceComplete := player.voice.Complete()
	voice := player.voice
	player.mu.Unlock()

	if voiceComplete {
		if err := player.update(ctx, lavalink.WithVoice(voice)); err != nil {
			m.logger.Warn("failed to resend voice state on restore", slog.Any("err", err))
		}
	}

	player.filters.mu.Lock()
	player.filters.filters = file.Filters
	player.filters.mu.Unlock()
	if hasFilters(file.Filters) {
		if err := player.filters.Apply(ctx); err != nil {
			m.logger.Warn("failed to re-apply filters on restore", slog.Any("err", err))
		}
	}

	// Reconcile against what the node still plays: adopt its state when
	// the track survived the outage, otherwise advance as if it finished.
	remotePlayer, stillKnown := remote[file.GuildID]
	switch {
	case file.Current != nil && stillKnown && remotePlayer.Track != nil && remotePlayer.Track.Encoded == file.Current.Encoded:
		player.mu.Lock()
		player.playing = true
		player.paused = remotePlayer.Paused
		player.position = remotePlayer.State.Position
		player.mu.Unlock()
	case file.Current != nil:
		player.handleTrackEnd(ctx, lavalink.TrackEndReasonFinished)
	}

	m.Events.PlayerRestored.Emit(PlayerRestoredEvent{Player: player, Node: node})
	return nil
}

func hasFilters(f lavalink.Filters) bool {
	return f.Volume != nil || f.Equalizer != nil || f.Karaoke != nil ||
		f.Timescale != nil || f.Tremolo != nil || f.Vibrato != nil ||
		f.Rotation != nil || f.Distortion != nil || f.ChannelMix != nil ||
		f.LowPass != nil || len(f.PluginFilters) > 0
}

// sweepOrphans periodically removes player files that no longer belong
// to an active player, left behind by restores that never happened.
func (m *Manager) sweepOrphans() {
	ticker := time.NewTicker(orphanSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.sweepStop:
			return
		case <-ticker.C:
		}

		entries, err := os.ReadDir(m.playersDir())
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			guildID, err := snowflake.Parse(strings.TrimSuffix(entry.Name(), ".json"))
			if err != nil {
				continue
			}
			if m.ExistingPlayer(guildID) != nil {
				continue
			}
			path := filepath.Join(m.playersDir(), entry.Name())
			if err := os.Remove(path); err != nil {
				m.logger.Warn("failed to remove orphaned player file", slog.Any("err", err))
			} else {
				m.logger.Debug("removed orphaned player file", slog.String("file", entry.Name()))
			}
		}
	}
}
