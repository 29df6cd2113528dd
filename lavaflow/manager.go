package lavaflow

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/disgoorg/json"
	"github.com/disgoorg/snowflake/v2"
)

// VoicePayload is the op 4 voice state update the manager asks the host
// to send over its gateway socket.
type VoicePayload struct {
	Op   int              `json:"op"`
	Data VoicePayloadData `json:"d"`
}

type VoicePayloadData struct {
	GuildID   snowflake.ID  `json:"guild_id"`
	ChannelID *snowflake.ID `json:"channel_id"`
	SelfMute  bool          `json:"self_mute"`
	SelfDeaf  bool          `json:"self_deaf"`
}

// Manager owns the node pool and the player registry. It is the only
// owner of both: players and nodes hold non-owning references back.
type Manager struct {
	options ManagerOptions
	logger  *slog.Logger

	// Events is the manager's subscription hub.
	Events Events

	mu        sync.Mutex
	nodes     map[string]*Node
	players   map[snowflake.ID]*Player
	initiated bool

	sessions     sessionIDStore
	recommenders []Recommender
	randFloat    func() float64

	sweepStop chan struct{}
}

// NewManager validates the options and builds a manager. Nodes are not
// connected until Init.
func NewManager(options ManagerOptions) (*Manager, error) {
	options = options.withDefaults()
	if err := options.validate(); err != nil {
		return nil, err
	}

	var sessions sessionIDStore
	if options.StateStorage == StateStorageMemory {
		sessions = newMemorySessionStore()
	} else {
		store, err := newSessionStore(options.StateDir)
		if err != nil {
			return nil, err
		}
		sessions = store
	}

	m := &Manager{
		options:      options,
		logger:       options.Logger,
		nodes:        map[string]*Node{},
		players:      map[snowflake.ID]*Player{},
		sessions:     sessions,
		recommenders: newRecommenders(options),
		sweepStop:    make(chan struct{}),
	}
	return m, nil
}

// Options returns the manager's effective configuration.
func (m *Manager) Options() ManagerOptions {
	return m.options
}

// Init loads plugins, creates the configured nodes and connects them.
// Individual node connect failures are left to the reconnect machinery;
// Init only fails on configuration or plugin errors.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	if m.initiated {
		m.mu.Unlock()
		return newError(ErrInvalidState, "manager is already initiated")
	}
	m.initiated = true
	m.mu.Unlock()

	for _, plugin := range m.options.Plugins {
		if err := plugin.Load(m); err != nil {
			return wrapError(ErrPluginLoadFailed, err, "failed to load plugin %q", plugin.Name())
		}
		m.logger.Info("plugin loaded", slog.String("plugin", plugin.Name()))
	}

	for _, nodeOptions := range m.options.Nodes {
		node, err := m.AddNode(ctx, nodeOptions)
		if err != nil {
			return err
		}
		if err := node.Connect(ctx); err != nil {
			m.logger.Warn("initial node connect failed",
				slog.String("node", node.Identifier()),
				slog.Any("err", err),
			)
			go node.reconnectLoop()
		}
	}

	if m.options.StateStorage != StateStorageMemory {
		go m.sweepOrphans()
	}
	return nil
}

func (m *Manager) requireInitiated() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initiated {
		return newError(ErrManagerNotInitiated, "manager is not initiated")
	}
	return nil
}

// AddNode registers a node in the pool without connecting it.
func (m *Manager) AddNode(ctx context.Context, options NodeOptions) (*Node, error) {
	options = options.withDefaults()
	m.mu.Lock()
	if _, exists := m.nodes[options.Identifier]; exists {
		m.mu.Unlock()
		return nil, newError(ErrInvalidConfig, "node %q already exists", options.Identifier)
	}
	node := newNode(m, options)
	m.nodes[options.Identifier] = node
	m.mu.Unlock()

	m.Events.NodeCreate.Emit(NodeCreateEvent{Node: node})
	return node, nil
}

// NodeByIdentifier returns the node with the identifier, or nil.
func (m *Manager) NodeByIdentifier(identifier string) *Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nodes[identifier]
}

// Nodes returns a snapshot of the node pool.
func (m *Manager) Nodes() []*Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	nodes := make([]*Node, 0, len(m.nodes))
	for _, node := range m.nodes {
		nodes = append(nodes, node)
	}
	return nodes
}

// removeNode drops a destroyed node from the pool and asks its players
// to self-destroy.
func (m *Manager) removeNode(node *Node) {
	m.mu.Lock()
	delete(m.nodes, node.Identifier())
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	for _, player := range m.Players() {
		if player.Node() == node {
			if err := player.Destroy(ctx, true); err != nil {
				m.logger.Warn("failed to destroy player of removed node",
					slog.String("guild_id", player.GuildID().String()),
					slog.Any("err", err),
				)
			}
		}
	}
}

// UseableNode picks a node for a new player following the configured
// routing policy.
func (m *Manager) UseableNode() (*Node, error) {
	var connected []*Node
	for _, node := range m.Nodes() {
		if node.Connected() {
			connected = append(connected, node)
		}
	}
	if len(connected) == 0 {
		return nil, newError(ErrNoUseableNode, "no connected node available")
	}

	if m.options.UsePriority {
		if node := m.pickByPriority(connected); node != nil {
			return node, nil
		}
		// No node carries a positive priority; fall through to the
		// selector policy.
	}

	switch m.options.UseNode {
	case NodeSelectorLeastLoad:
		best := connected[0]
		for _, node := range connected[1:] {
			if node.penalty() < best.penalty() {
				best = node
			}
		}
		return best, nil
	default: // NodeSelectorLeastPlayers
		best := connected[0]
		bestCount := nodePlayers(best)
		for _, node := range connected[1:] {
			if count := nodePlayers(node); count < bestCount {
				best, bestCount = node, count
			}
		}
		return best, nil
	}
}

func nodePlayers(node *Node) int {
	if stats := node.Stats(); stats != nil {
		return stats.Players
	}
	return node.playerCount()
}

// pickByPriority runs a weighted random draw over nodes with a positive
// priority, weight proportional to priority.
func (m *Manager) pickByPriority(nodes []*Node) *Node {
	total := 0
	for _, node := range nodes {
		if node.Options().Priority > 0 {
			total += node.Options().Priority
		}
	}
	if total == 0 {
		return nil
	}

	roll := m.randFloat64() * float64(total)
	for _, node := range nodes {
		priority := node.Options().Priority
		if priority <= 0 {
			continue
		}
		roll -= float64(priority)
		if roll < 0 {
			return node
		}
	}
	return nodes[len(nodes)-1]
}

func (m *Manager) randFloat64() float64 {
	if m.randFloat != nil {
		return m.randFloat()
	}
	return rand.Float64()
}

// CreatePlayer creates and registers a player for the guild. A player
// already registered for the guild is returned as-is.
func (m *Manager) CreatePlayer(ctx context.Context, options PlayerOptions) (*Player, error) {
	if err := m.requireInitiated(); err != nil {
		return nil, err
	}
	if options.GuildID == 0 {
		return nil, newError(ErrInvalidArgument, "guild id is required")
	}

	m.mu.Lock()
	if existing, ok := m.players[options.GuildID]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.mu.Unlock()

	var node *Node
	if options.NodeIdentifier != "" {
		node = m.NodeByIdentifier(options.NodeIdentifier)
		if node == nil {
			return nil, newError(ErrNodeNotFound, "node %q not found", options.NodeIdentifier)
		}
	} else {
		useable, err := m.UseableNode()
		if err != nil {
			return nil, err
		}
		node = useable
	}

	queue, err := NewQueue(m.options.StateStorage, options.GuildID, m.options)
	if err != nil {
		return nil, err
	}
	player := newPlayer(m, node, queue, options)

	m.mu.Lock()
	if existing, ok := m.players[options.GuildID]; ok {
		m.mu.Unlock()
		_ = queue.Close(ctx)
		return existing, nil
	}
	m.players[options.GuildID] = player
	m.mu.Unlock()

	m.Events.PlayerCreate.Emit(PlayerCreateEvent{Player: player})
	player.emitStateUpdate(player.Snapshot(), StateChange{Type: ChangePlayerCreate})
	return player, nil
}

// ExistingPlayer returns the guild's player, or nil.
func (m *Manager) ExistingPlayer(guildID snowflake.ID) *Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.players[guildID]
}

// Players returns a snapshot of the player registry.
func (m *Manager) Players() []*Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	players := make([]*Player, 0, len(m.players))
	for _, player := range m.players {
		players = append(players, player)
	}
	return players
}

func (m *Manager) removePlayer(guildID snowflake.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.players, guildID)
}

// voiceEnvelope accepts either the gateway envelope {t, d} or the inner
// payload directly.
type voiceEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d"`
}

type voiceServerUpdate struct {
	Token    string       `json:"token"`
	GuildID  snowflake.ID `json:"guild_id"`
	Endpoint string       `json:"endpoint"`
}

type voiceStateUpdate struct {
	GuildID   snowflake.ID  `json:"guild_id"`
	UserID    snowflake.ID  `json:"user_id"`
	SessionID string        `json:"session_id"`
	ChannelID *snowflake.ID `json:"channel_id"`
}

// UpdateVoiceState is the gateway fan-in: the host forwards every voice
// related packet here, either as the full envelope or the inner payload.
// Packets for guilds without a player, or voice states of other users,
// are ignored.
func (m *Manager) UpdateVoiceState(ctx context.Context, packet []byte) error {
	var envelope voiceEnvelope
	inner := packet
	if err := json.Unmarshal(packet, &envelope); err == nil && len(envelope.D) > 0 {
		inner = envelope.D
	}

	var probe struct {
		Token     string  `json:"token"`
		SessionID *string `json:"session_id"`
	}
	if err := json.Unmarshal(inner, &probe); err != nil {
		return wrapError(ErrInvalidArgument, err, "malformed voice packet")
	}

	switch {
	case envelope.T == "VOICE_SERVER_UPDATE" || (envelope.T == "" && probe.Token != ""):
		var update voiceServerUpdate
		if err := json.Unmarshal(inner, &update); err != nil {
			return wrapError(ErrInvalidArgument, err, "malformed voice server update")
		}
		player := m.ExistingPlayer(update.GuildID)
		if player == nil {
			return nil
		}
		return player.handleVoiceServerUpdate(ctx, update.Token, update.Endpoint)

	case envelope.T == "VOICE_STATE_UPDATE" || (envelope.T == "" && probe.SessionID != nil):
		var update voiceStateUpdate
		if err := json.Unmarshal(inner, &update); err != nil {
			return wrapError(ErrInvalidArgument, err, "malformed voice state update")
		}
		if update.UserID != m.options.ClientID {
			return nil
		}
		player := m.ExistingPlayer(update.GuildID)
		if player == nil {
			return nil
		}
		return player.handleVoiceStateUpdate(ctx, update.SessionID, update.ChannelID)
	}
	return nil
}

// DecodeTracks resolves encoded track blobs through any useable node.
func (m *Manager) DecodeTracks(ctx context.Context, encoded []string) ([]Track, error) {
	node, err := m.UseableNode()
	if err != nil {
		return nil, err
	}
	raw, err := node.Rest().DecodeTracks(ctx, encoded)
	if err != nil {
		return nil, err
	}
	return BuildTracks(raw, nil, m.options.TrackPartial), nil
}

// DecodeTrack resolves one encoded track blob through any useable node.
func (m *Manager) DecodeTrack(ctx context.Context, encoded string) (*Track, error) {
	node, err := m.UseableNode()
	if err != nil {
		return nil, err
	}
	raw, err := node.Rest().DecodeTrack(ctx, encoded)
	if err != nil {
		return nil, err
	}
	track, err := BuildTrack(*raw, nil, m.options.TrackPartial)
	if err != nil {
		return nil, err
	}
	return &track, nil
}

// Shutdown persists every active player and destroys all nodes. Returns
// the first persistence error after attempting every player.
func (m *Manager) Shutdown(ctx context.Context) error {
	close(m.sweepStop)

	err := m.PersistAll(ctx)

	for _, player := range m.Players() {
		player.mu.Lock()
		player.stopDynamicLocked()
		player.mu.Unlock()
	}
	for _, node := range m.Nodes() {
		node.Destroy()
	}
	return err
}
