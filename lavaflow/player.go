package lavaflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/lavaflow/lavaflow/lavalink"
)

// PlayerState is the connection lifecycle state of a player.
type PlayerState string

const (
	PlayerStateDisconnected  PlayerState = "disconnected"
	PlayerStateConnecting    PlayerState = "connecting"
	PlayerStateConnected     PlayerState = "connected"
	PlayerStateDisconnecting PlayerState = "disconnecting"
	PlayerStateDestroying    PlayerState = "destroying"
)

// Reserved keys in the player's free-form data map.
const (
	// DataKeyBotUser holds the *Requester autoplay recommendations are
	// attributed to.
	DataKeyBotUser = "Internal_BotUser"
	// DataKeySkipFlag suppresses the previous-track re-append on the track
	// end that follows a Previous call.
	DataKeySkipFlag = "skipFlag"
)

// PlayerOptions configures a new player.
type PlayerOptions struct {
	GuildID        snowflake.ID
	VoiceChannelID snowflake.ID
	TextChannelID  snowflake.ID
	SelfDeaf       bool
	SelfMute       bool
	// Volume defaults to 100. NodeIdentifier pins the player to a node;
	// empty means routed by the manager's policy.
	Volume         int
	NodeIdentifier string
}

// PlayerSnapshot is a shallow copy of a player's observable state, used
// as the before-image in state update events.
type PlayerSnapshot struct {
	GuildID        snowflake.ID
	VoiceChannelID snowflake.ID
	TextChannelID  snowflake.ID
	NodeIdentifier string
	State          PlayerState
	Playing        bool
	Paused         bool
	Volume         int
	Position       lavalink.Duration
	TrackRepeat    bool
	QueueRepeat    bool
	DynamicRepeat  bool
	Autoplay       bool
}

// Player is the per-guild playback state machine. All commands are
// serialized through one mutex, so REST writes for a guild never overlap
// and state updates are observed in mutation order.
type Player struct {
	manager *Manager
	guildID snowflake.ID
	queue   Queue
	filters *Filters
	logger  *slog.Logger

	mu             sync.Mutex
	node           *Node
	voiceChannelID snowflake.ID
	textChannelID  snowflake.ID
	selfDeaf       bool
	selfMute       bool
	state          PlayerState
	playing        bool
	paused         bool
	volume         int
	position       lavalink.Duration
	ping           int
	voice          lavalink.VoiceState

	trackRepeat     bool
	queueRepeat     bool
	dynamicRepeat   bool
	dynamicInterval time.Duration
	dynamicStop     chan struct{}

	autoplay      bool
	autoplayTries int

	data map[string]any

	snapMu   sync.Mutex
	lastSnap PlayerSnapshot
}

func newPlayer(manager *Manager, node *Node, queue Queue, options PlayerOptions) *Player {
	if options.Volume <= 0 {
		options.Volume = 100
	}
	player := &Player{
		manager:        manager,
		guildID:        options.GuildID,
		queue:          queue,
		logger:         manager.logger.With(slog.String("guild_id", options.GuildID.String())),
		node:           node,
		voiceChannelID: options.VoiceChannelID,
		textChannelID:  options.TextChannelID,
		selfDeaf:       options.SelfDeaf,
		selfMute:       options.SelfMute,
		state:          PlayerStateDisconnected,
		volume:         options.Volume,
		autoplayTries:  3,
		data:           map[string]any{},
	}
	player.filters = newFilters(player)
	player.lastSnap = player.snapshotFields()
	queue.OnChange(player.queueChanged)
	return player
}

// queueChanged emits the QueueChange state update for a queue mutation.
// Queue mutations issued from inside a player operation run with p.mu
// held; the cached snapshot serves as the before-image there.
func (p *Player) queueChanged(action QueueAction) {
	var old PlayerSnapshot
	if p.mu.TryLock() {
		old = p.snapshotLocked()
		p.mu.Unlock()
	} else {
		p.snapMu.Lock()
		old = p.lastSnap
		p.snapMu.Unlock()
	}
	p.emitStateUpdate(old, StateChange{Type: ChangeQueue, Detail: string(action)})
}

func (p *Player) GuildID() snowflake.ID { return p.guildID }
func (p *Player) Queue() Queue          { return p.queue }
func (p *Player) Filters() *Filters     { return p.filters }

func (p *Player) Node() *Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.node
}

func (p *Player) State() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *Player) Position() lavalink.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *Player) Ping() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ping
}

func (p *Player) VoiceChannelID() snowflake.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.voiceChannelID
}

func (p *Player) TextChannelID() snowflake.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.textChannelID
}

func (p *Player) TrackRepeat() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trackRepeat
}

func (p *Player) QueueRepeat() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queueRepeat
}

func (p *Player) DynamicRepeat() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dynamicRepeat
}

func (p *Player) Autoplay() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.autoplay
}

// Data returns the value stored under key in the free-form data map.
func (p *Player) Data(key string) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	value, ok := p.data[key]
	return value, ok
}

// SetData stores a value in the free-form data map; nil deletes the key.
func (p *Player) SetData(key string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if value == nil {
		delete(p.data, key)
		return
	}
	p.data[key] = value
}

// Snapshot captures the player's observable state.
func (p *Player) Snapshot() PlayerSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Player) snapshotLocked() PlayerSnapshot {
	snap := p.snapshotFields()
	p.snapMu.Lock()
	p.lastSnap = snap
	p.snapMu.Unlock()
	return snap
}

func (p *Player) snapshotFields() PlayerSnapshot {
	nodeID := ""
	if p.node != nil {
		nodeID = p.node.Identifier()
	}
	return PlayerSnapshot{
		GuildID:        p.guildID,
		VoiceChannelID: p.voiceChannelID,
		TextChannelID:  p.textChannelID,
		NodeIdentifier: nodeID,
		State:          p.state,
		Playing:        p.playing,
		Paused:         p.paused,
		Volume:         p.volume,
		Position:       p.position,
		TrackRepeat:    p.trackRepeat,
		QueueRepeat:    p.queueRepeat,
		DynamicRepeat:  p.dynamicRepeat,
		Autoplay:       p.autoplay,
	}
}

func (p *Player) emitStateUpdate(old PlayerSnapshot, change StateChange) {
	p.manager.Events.PlayerStateUpdate.Emit(PlayerStateUpdateEvent{
		OldPlayer: old,
		Player:    p,
		Change:    change,
	})
}

// update issues a serialized player update against the player's node.
// Caller holds p.mu.
func (p *Player) updateLocked(ctx context.Context, opts ...lavalink.PlayerUpdateOpt) error {
	if p.node == nil {
		return newError(ErrNodeNotFound, "player %s has no node", p.guildID)
	}
	sessionID, err := p.node.requireSession()
	if err != nil {
		return err
	}
	var update lavalink.PlayerUpdate
	update.Apply(opts)
	_, err = p.node.rest.UpdatePlayer(ctx, sessionID, p.guildID, update)
	return err
}

// update issues a serialized player update, taking the command mutex.
func (p *Player) update(ctx context.Context, opts ...lavalink.PlayerUpdateOpt) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.updateLocked(ctx, opts...)
}

// Connect asks the host gateway to join the configured voice channel.
func (p *Player) Connect(ctx context.Context) error {
	p.mu.Lock()
	if p.voiceChannelID == 0 {
		p.mu.Unlock()
		return newError(ErrVoiceChannelMissing, "player %s has no voice channel configured", p.guildID)
	}
	old := p.snapshotLocked()
	p.state = PlayerStateConnecting
	channelID := p.voiceChannelID
	payload := joinPayload(p.guildID, &channelID, p.selfMute, p.selfDeaf)
	p.state = PlayerStateConnected
	p.mu.Unlock()

	p.manager.options.Send(p.guildID, payload)
	p.emitStateUpdate(old, StateChange{Type: ChangeConnection, Detail: "connect"})
	return nil
}

// Disconnect leaves the voice channel but keeps the player alive.
func (p *Player) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	old := p.snapshotLocked()
	p.state = PlayerStateDisconnecting

	if p.playing && !p.paused {
		if err := p.updateLocked(ctx, lavalink.WithPaused(true)); err != nil {
			p.logger.Warn("failed to pause on disconnect", slog.Any("err", err))
		} else {
			p.paused = true
		}
	}

	oldChannelID := p.voiceChannelID
	p.voiceChannelID = 0
	p.state = PlayerStateDisconnected
	payload := joinPayload(p.guildID, nil, p.selfMute, p.selfDeaf)
	p.mu.Unlock()

	p.manager.options.Send(p.guildID, payload)
	p.emitStateUpdate(old, StateChange{Type: ChangeConnection, Detail: "disconnect"})
	p.manager.Events.PlayerDisconnect.Emit(PlayerDisconnectEvent{Player: p, OldChannelID: oldChannelID})
	return nil
}

// Destroy tears the player down: optionally leaves the voice channel,
// removes the node-side player, closes the queue and deregisters from the
// manager. The player must not be used afterwards.
func (p *Player) Destroy(ctx context.Context, disconnect bool) error {
	p.mu.Lock()
	if p.state == PlayerStateDestroying {
		p.mu.Unlock()
		return nil
	}
	old := p.snapshotLocked()
	p.state = PlayerStateDestroying
	p.stopDynamicLocked()

	var payload *VoicePayload
	if disconnect && p.voiceChannelID != 0 {
		p.voiceChannelID = 0
		leave := joinPayload(p.guildID, nil, p.selfMute, p.selfDeaf)
		payload = &leave
	}

	if p.node != nil {
		if sessionID, err := p.node.requireSession(); err == nil {
			if err := p.node.rest.DestroyPlayer(ctx, sessionID, p.guildID); err != nil {
				p.logger.Warn("failed to destroy node-side player", slog.Any("err", err))
			}
		}
	}
	p.playing = false
	p.mu.Unlock()

	if payload != nil {
		p.manager.options.Send(p.guildID, *payload)
	}
	if err := p.queue.Close(ctx); err != nil {
		p.logger.Warn("failed to close queue", slog.Any("err", err))
	}
	p.manager.removePlayer(p.guildID)

	p.emitStateUpdate(old, StateChange{Type: ChangePlayerDestroy})
	p.manager.Events.PlayerDestroy.Emit(PlayerDestroyEvent{Player: p})
	return nil
}

// PlayOptions tune a single Play call.
type PlayOptions struct {
	StartTime lavalink.Duration
	EndTime   lavalink.Duration
	NoReplace bool
	Paused    bool
}

// Play starts the given track, or the queue's current track when track is
// nil.
func (p *Player) Play(ctx context.Context, track *Track, options PlayOptions) error {
	p.mu.Lock()
	old := p.snapshotLocked()

	if track != nil {
		if err := p.queue.SetCurrent(ctx, track); err != nil {
			p.mu.Unlock()
			return err
		}
	}
	current, err := p.queue.Current(ctx)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if current == nil {
		p.mu.Unlock()
		return newError(ErrNoCurrentTrack, "player %s has no track to play", p.guildID)
	}

	opts := []lavalink.PlayerUpdateOpt{
		lavalink.WithEncodedTrack(current.Encoded),
		lavalink.WithNoReplace(options.NoReplace),
	}
	if options.StartTime > 0 {
		opts = append(opts, lavalink.WithPosition(options.StartTime))
	}
	if options.EndTime > 0 {
		opts = append(opts, lavalink.WithEndTime(options.EndTime))
	}
	if options.Paused {
		opts = append(opts, lavalink.WithPaused(true))
	}
	if err := p.updateLocked(ctx, opts...); err != nil {
		p.mu.Unlock()
		return err
	}

	p.playing = true
	p.paused = options.Paused
	p.position = options.StartTime
	p.mu.Unlock()

	p.emitStateUpdate(old, StateChange{Type: ChangeTrack, Detail: "start"})
	return nil
}

// Pause sets the paused flag. Requesting the current state is a no-op and
// issues no REST call.
func (p *Player) Pause(ctx context.Context, paused bool) error {
	p.mu.Lock()
	if p.paused == paused {
		p.mu.Unlock()
		return nil
	}
	old := p.snapshotLocked()
	if err := p.updateLocked(ctx, lavalink.WithPaused(paused)); err != nil {
		p.mu.Unlock()
		return err
	}
	p.paused = paused
	p.mu.Unlock()

	p.emitStateUpdate(old, StateChange{Type: ChangePause})
	return nil
}

// Seek moves the playback position, clamped to the current track's length.
func (p *Player) Seek(ctx context.Context, position lavalink.Duration) error {
	p.mu.Lock()
	current, err := p.queue.Current(ctx)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if current == nil {
		p.mu.Unlock()
		return newError(ErrNoCurrentTrack, "player %s has no track to seek", p.guildID)
	}
	if position < 0 {
		position = 0
	}
	if current.Duration > 0 && position > current.Duration {
		position = current.Duration
	}

	old := p.snapshotLocked()
	if err := p.updateLocked(ctx, lavalink.WithPosition(position)); err != nil {
		p.mu.Unlock()
		return err
	}
	p.position = position
	p.mu.Unlock()

	p.emitStateUpdate(old, StateChange{Type: ChangeTrack, Detail: "timeUpdate"})
	return nil
}

// Stop ends the current track. An amount above one additionally drops the
// first amount-1 upcoming tracks, so the amount-th track plays next once
// the node reports the stop.
func (p *Player) Stop(ctx context.Context, amount int) error {
	if amount < 1 {
		amount = 1
	}
	p.mu.Lock()
	old := p.snapshotLocked()

	if amount > 1 {
		size, err := p.queue.Size(ctx)
		if err != nil {
			p.mu.Unlock()
			return err
		}
		drop := amount - 1
		if drop > size {
			drop = size
		}
		if drop > 0 {
			if _, err := p.queue.Remove(ctx, 0, drop); err != nil {
				p.mu.Unlock()
				return err
			}
		}
	}

	if err := p.updateLocked(ctx, lavalink.WithNullTrack()); err != nil {
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()

	p.emitStateUpdate(old, StateChange{Type: ChangeTrack, Detail: "end"})
	return nil
}

// Previous plays the most recent track from the previous stack. The
// outgoing current track returns to the front of the queue; the skip flag
// keeps the track-end handler from also pushing it onto previous.
func (p *Player) Previous(ctx context.Context) error {
	p.mu.Lock()
	old := p.snapshotLocked()

	previous, err := p.queue.PopPrevious(ctx)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if previous == nil {
		p.mu.Unlock()
		return newError(ErrNoPreviousTrack, "player %s has no previous track", p.guildID)
	}

	current, err := p.queue.Current(ctx)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if current != nil {
		if err := p.queue.EnqueueFront(ctx, *current); err != nil {
			p.mu.Unlock()
			return err
		}
	}
	if err := p.queue.SetCurrent(ctx, previous); err != nil {
		p.mu.Unlock()
		return err
	}
	p.data[DataKeySkipFlag] = true

	if err := p.updateLocked(ctx, lavalink.WithEncodedTrack(previous.Encoded)); err != nil {
		p.mu.Unlock()
		return err
	}
	p.playing = true
	p.paused = false
	p.position = 0
	p.mu.Unlock()

	p.emitStateUpdate(old, StateChange{Type: ChangeTrack, Detail: "previous"})
	return nil
}

// SetVolume sets the playback volume in the range 0..1000.
func (p *Player) SetVolume(ctx context.Context, volume int) error {
	if volume < 0 || volume > 1000 {
		return newError(ErrInvalidArgument, "volume %d out of range [0, 1000]", volume)
	}
	p.mu.Lock()
	old := p.snapshotLocked()
	if err := p.updateLocked(ctx, lavalink.WithVolume(volume)); err != nil {
		p.mu.Unlock()
		return err
	}
	p.volume = volume
	p.mu.Unlock()

	p.emitStateUpdate(old, StateChange{Type: ChangeVolume})
	return nil
}

// SetTrackRepeat replays the current track on every track end. Enabling
// clears the other repeat modes.
func (p *Player) SetTrackRepeat(enabled bool) {
	p.mu.Lock()
	old := p.snapshotLocked()
	p.trackRepeat = enabled
	if enabled {
		p.queueRepeat = false
		p.stopDynamicLocked()
	}
	p.mu.Unlock()

	p.emitStateUpdate(old, StateChange{Type: ChangeRepeat, Detail: "track"})
}

// SetQueueRepeat re-appends finished tracks to the queue tail. Enabling
// clears the other repeat modes.
func (p *Player) SetQueueRepeat(enabled bool) {
	p.mu.Lock()
	old := p.snapshotLocked()
	p.queueRepeat = enabled
	if enabled {
		p.trackRepeat = false
		p.stopDynamicLocked()
	}
	p.mu.Unlock()

	p.emitStateUpdate(old, StateChange{Type: ChangeRepeat, Detail: "queue"})
}

// SetDynamicRepeat is queue repeat plus a periodic reshuffle. Enabling
// requires more than one upcoming track.
func (p *Player) SetDynamicRepeat(ctx context.Context, enabled bool, interval time.Duration) error {
	p.mu.Lock()
	old := p.snapshotLocked()

	if enabled {
		size, err := p.queue.Size(ctx)
		if err != nil {
			p.mu.Unlock()
			return err
		}
		if size <= 1 {
			p.mu.Unlock()
			return newError(ErrInvalidState, "dynamic repeat needs more than one upcoming track")
		}
		if interval <= 0 {
			interval = time.Minute
		}
		p.trackRepeat = false
		p.queueRepeat = false
		p.stopDynamicLocked()
		p.dynamicRepeat = true
		p.dynamicInterval = interval
		stop := make(chan struct{})
		p.dynamicStop = stop
		go p.dynamicLoop(interval, stop)
	} else {
		p.dynamicRepeat = false
		p.stopDynamicLocked()
	}
	p.mu.Unlock()

	p.emitStateUpdate(old, StateChange{Type: ChangeRepeat, Detail: "dynamic"})
	return nil
}

func (p *Player) dynamicLoop(interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := p.queue.Shuffle(ctx); err != nil {
				p.logger.Warn("dynamic repeat reshuffle failed", slog.Any("err", err))
			}
			cancel()
		}
	}
}

// stopDynamicLocked cancels a running reshuffle loop. Caller holds p.mu.
func (p *Player) stopDynamicLocked() {
	if p.dynamicStop != nil {
		close(p.dynamicStop)
		p.dynamicStop = nil
	}
	p.dynamicRepeat = false
}

// restartDynamicLocked replaces the reshuffle timer while keeping the
// mode enabled. Node migration clears the old timer but the repeat
// flags survive the move. Caller holds p.mu.
func (p *Player) restartDynamicLocked() {
	if !p.dynamicRepeat {
		return
	}
	if p.dynamicStop != nil {
		close(p.dynamicStop)
	}
	stop := make(chan struct{})
	p.dynamicStop = stop
	go p.dynamicLoop(p.dynamicInterval, stop)
}

// SetAutoplay toggles recommendation-driven queue refills. The bot user is
// required when enabling; recommended tracks are attributed to it.
func (p *Player) SetAutoplay(enabled bool, botUser *Requester, tries int) error {
	p.mu.Lock()
	old := p.snapshotLocked()

	if enabled {
		if botUser == nil {
			p.mu.Unlock()
			return newError(ErrInvalidArgument, "autoplay requires a bot user")
		}
		if tries <= 0 {
			tries = 3
		}
		p.autoplay = true
		p.autoplayTries = tries
		p.data[DataKeyBotUser] = botUser
	} else {
		p.autoplay = false
		delete(p.data, DataKeyBotUser)
	}
	p.mu.Unlock()

	p.emitStateUpdate(old, StateChange{Type: ChangeAutoplay})
	return nil
}

// MoveNode transfers the player to another node without leaving the voice
// channel. The full playback state is replayed against the target node.
func (p *Player) MoveNode(ctx context.Context, identifier string) error {
	target := p.manager.NodeByIdentifier(identifier)
	if target == nil {
		return newError(ErrNodeNotFound, "node %q not found", identifier)
	}

	p.mu.Lock()
	old := p.snapshotLocked()

	if !p.voice.Complete() {
		p.mu.Unlock()
		return newError(ErrVoiceStateIncomplete, "player %s is missing voice credentials", p.guildID)
	}
	if p.node == target {
		p.mu.Unlock()
		return nil
	}

	if p.node != nil {
		if sessionID, err := p.node.requireSession(); err == nil {
			if err := p.node.rest.DestroyPlayer(ctx, sessionID, p.guildID); err != nil {
				p.logger.Warn("failed to destroy player on old node", slog.Any("err", err))
			}
		}
	}
	oldNode := p.node
	p.node = target

	current, err := p.queue.Current(ctx)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	opts := []lavalink.PlayerUpdateOpt{
		lavalink.WithPaused(p.paused),
		lavalink.WithVolume(p.volume),
		lavalink.WithVoice(p.voice),
	}
	if current != nil {
		opts = append(opts,
			lavalink.WithEncodedTrack(current.Encoded),
			lavalink.WithPosition(p.position),
		)
	}
	if err := p.updateLocked(ctx, opts...); err != nil {
		p.node = oldNode
		p.mu.Unlock()
		return err
	}
	p.restartDynamicLocked()
	p.mu.Unlock()

	if err := p.filters.Apply(ctx); err != nil {
		p.logger.Warn("failed to re-apply filters after node move", slog.Any("err", err))
	}

	p.emitStateUpdate(old, StateChange{Type: ChangeConnection, Detail: "moveNode"})
	return nil
}

// SwitchGuild moves this player's queue and settings onto a player in a
// different guild, then destroys this player. With force set, an existing
// player in the target guild is destroyed first.
func (p *Player) SwitchGuild(ctx context.Context, options PlayerOptions, force bool) (*Player, error) {
	if options.GuildID == 0 || options.GuildID == p.guildID {
		return nil, newError(ErrInvalidArgument, "switch guild needs a different target guild")
	}
	if existing := p.manager.ExistingPlayer(options.GuildID); existing != nil {
		if !force {
			return nil, newError(ErrInvalidState, "guild %s already has a player", options.GuildID)
		}
		if err := existing.Destroy(ctx, true); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	options.Volume = p.volume
	nodeID := ""
	if p.node != nil {
		nodeID = p.node.Identifier()
	}
	if options.NodeIdentifier == "" {
		options.NodeIdentifier = nodeID
	}
	trackRepeat, queueRepeat := p.trackRepeat, p.queueRepeat
	autoplay, tries := p.autoplay, p.autoplayTries
	botUser, _ := p.data[DataKeyBotUser].(*Requester)
	p.mu.Unlock()

	current, err := p.queue.Current(ctx)
	if err != nil {
		return nil, err
	}
	upcoming, err := p.queue.Tracks(ctx)
	if err != nil {
		return nil, err
	}
	previous, err := p.queue.Previous(ctx)
	if err != nil {
		return nil, err
	}

	target, err := p.manager.CreatePlayer(ctx, options)
	if err != nil {
		return nil, err
	}
	if err := target.queue.SetCurrent(ctx, current); err != nil {
		return nil, err
	}
	if len(upcoming) > 0 {
		offset := 0
		if err := target.queue.Add(ctx, upcoming, &offset); err != nil {
			return nil, err
		}
	}
	if err := target.queue.SetPrevious(ctx, previous); err != nil {
		return nil, err
	}
	target.SetTrackRepeat(trackRepeat)
	target.SetQueueRepeat(queueRepeat)
	if autoplay && botUser != nil {
		if err := target.SetAutoplay(true, botUser, tries); err != nil {
			return nil, err
		}
	}

	if err := p.Destroy(ctx, true); err != nil {
		return nil, err
	}
	return target, nil
}

// GetCurrentLyrics fetches lyrics for the playing track. Requires the
// node's lyrics plugin.
func (p *Player) GetCurrentLyrics(ctx context.Context, skipTrackSource bool) (*lavalink.Lyrics, error) {
	node := p.Node()
	if node == nil {
		return nil, newError(ErrNodeNotFound, "player %s has no node", p.guildID)
	}
	if !node.HasPlugin("lavalyrics-plugin") {
		return nil, newError(ErrLyricsPluginMissing, "node %q has no lyrics plugin", node.Identifier())
	}
	sessionID, err := node.requireSession()
	if err != nil {
		return nil, err
	}
	lyrics, err := node.rest.GetLyrics(ctx, sessionID, p.guildID, skipTrackSource)
	if err != nil {
		p.manager.Events.LyricsNotFound.Emit(LyricsNotFoundEvent{Player: p})
		return nil, err
	}
	p.manager.Events.LyricsFound.Emit(LyricsFoundEvent{Player: p, Lyrics: *lyrics})
	return lyrics, nil
}

func (p *Player) sponsorBlockNode() (*Node, string, error) {
	node := p.Node()
	if node == nil {
		return nil, "", newError(ErrNodeNotFound, "player %s has no node", p.guildID)
	}
	if !node.HasPlugin("sponsorblock-plugin") {
		return nil, "", newError(ErrSponsorBlockMissing, "node %q has no sponsorblock plugin", node.Identifier())
	}
	sessionID, err := node.requireSession()
	if err != nil {
		return nil, "", err
	}
	return node, sessionID, nil
}

func (p *Player) GetSponsorBlock(ctx context.Context) ([]string, error) {
	node, sessionID, err := p.sponsorBlockNode()
	if err != nil {
		return nil, err
	}
	return node.rest.GetSponsorBlockCategories(ctx, sessionID, p.guildID)
}

func (p *Player) SetSponsorBlock(ctx context.Context, categories []string) error {
	node, sessionID, err := p.sponsorBlockNode()
	if err != nil {
		return err
	}
	return node.rest.SetSponsorBlockCategories(ctx, sessionID, p.guildID, categories)
}

func (p *Player) DeleteSponsorBlock(ctx context.Context) error {
	node, sessionID, err := p.sponsorBlockNode()
	if err != nil {
		return err
	}
	return node.rest.DeleteSponsorBlockCategories(ctx, sessionID, p.guildID)
}

// handlePlayerUpdate applies a node-pushed position frame.
func (p *Player) handlePlayerUpdate(state lavalink.PlayerState) {
	p.mu.Lock()
	old := p.snapshotLocked()
	p.position = state.Position
	p.ping = state.Ping
	p.mu.Unlock()

	p.emitStateUpdate(old, StateChange{Type: ChangeTrack, Detail: "timeUpdate"})
}

// handleVoiceServerUpdate stores gateway voice credentials and forwards
// them to the node.
func (p *Player) handleVoiceServerUpdate(ctx context.Context, token string, endpoint string) error {
	p.mu.Lock()
	p.voice.Token = token
	p.voice.Endpoint = endpoint
	if !p.voice.Complete() {
		p.mu.Unlock()
		return nil
	}
	voice := p.voice
	err := p.updateLocked(ctx, lavalink.WithVoice(voice))
	p.mu.Unlock()
	return err
}

// handleVoiceStateUpdate tracks the bot's own voice channel membership.
// A nil channel means the bot was disconnected and the player destroys
// itself.
func (p *Player) handleVoiceStateUpdate(ctx context.Context, sessionID string, channelID *snowflake.ID) error {
	p.mu.Lock()
	p.voice.SessionID = sessionID
	oldChannelID := p.voiceChannelID

	if channelID == nil {
		p.mu.Unlock()
		p.manager.Events.PlayerDisconnect.Emit(PlayerDisconnectEvent{Player: p, OldChannelID: oldChannelID})
		return p.Destroy(ctx, false)
	}

	moved := oldChannelID != 0 && oldChannelID != *channelID
	p.voiceChannelID = *channelID
	old := p.snapshotLocked()
	var err error
	if p.voice.Complete() {
		err = p.updateLocked(ctx, lavalink.WithVoice(p.voice))
	}
	p.mu.Unlock()

	if moved {
		p.emitStateUpdate(old, StateChange{Type: ChangeChannel})
		p.manager.Events.PlayerMove.Emit(PlayerMoveEvent{Player: p, OldChannelID: oldChannelID, NewChannelID: *channelID})
	}
	return err
}

// setNode reassigns the node reference, used by restore.
func (p *Player) setNode(node *Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.node = node
}

// joinPayload builds the op 4 voice state payload sent through the host
// gateway. A nil channel id leaves the channel.
func joinPayload(guildID snowflake.ID, channelID *snowflake.ID, selfMute bool, selfDeaf bool) VoicePayload {
	return VoicePayload{
		Op: 4,
		Data: VoicePayloadData{
			GuildID:   guildID,
			ChannelID: channelID,
			SelfMute:  selfMute,
			SelfDeaf:  selfDeaf,
		},
	}
}
