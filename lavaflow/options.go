package lavaflow

import (
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/disgoorg/snowflake/v2"
)

// SearchPlatform selects the identifier prefix used for plain-text searches.
type SearchPlatform string

const (
	PlatformYouTube      SearchPlatform = "youtube"
	PlatformYouTubeMusic SearchPlatform = "youtube music"
	PlatformSoundCloud   SearchPlatform = "soundcloud"
	PlatformSpotify      SearchPlatform = "spotify"
	PlatformDeezer       SearchPlatform = "deezer"
	PlatformTidal        SearchPlatform = "tidal"
	PlatformAppleMusic   SearchPlatform = "apple music"
	PlatformBandcamp     SearchPlatform = "bandcamp"
	PlatformVKMusic      SearchPlatform = "vkmusic"
	PlatformQobuz        SearchPlatform = "qobuz"
	PlatformJiosaavn     SearchPlatform = "jiosaavn"
)

// Prefix returns the load identifier prefix for the platform.
func (p SearchPlatform) Prefix() string {
	switch p {
	case PlatformYouTube:
		return "ytsearch"
	case PlatformYouTubeMusic:
		return "ytmsearch"
	case PlatformSoundCloud:
		return "scsearch"
	case PlatformSpotify:
		return "spsearch"
	case PlatformDeezer:
		return "dzsearch"
	case PlatformTidal:
		return "tdsearch"
	case PlatformAppleMusic:
		return "amsearch"
	case PlatformBandcamp:
		return "bcsearch"
	case PlatformVKMusic:
		return "vksearch"
	case PlatformQobuz:
		return "qbsearch"
	case PlatformJiosaavn:
		return "jssearch"
	default:
		return "ytsearch"
	}
}

// SourceManager returns the source manager name the node advertises for the
// platform in /v4/info.
func (p SearchPlatform) SourceManager() string {
	switch p {
	case PlatformYouTube, PlatformYouTubeMusic:
		return "youtube"
	case PlatformSoundCloud:
		return "soundcloud"
	case PlatformSpotify:
		return "spotify"
	case PlatformDeezer:
		return "deezer"
	case PlatformTidal:
		return "tidal"
	case PlatformAppleMusic:
		return "applemusic"
	case PlatformBandcamp:
		return "bandcamp"
	case PlatformVKMusic:
		return "vkmusic"
	case PlatformQobuz:
		return "qobuz"
	case PlatformJiosaavn:
		return "jiosaavn"
	default:
		return string(p)
	}
}

// NodeSelector chooses how useable nodes are ranked.
type NodeSelector string

const (
	// NodeSelectorLeastLoad picks the connected node with the lowest CPU
	// load per core.
	NodeSelectorLeastLoad NodeSelector = "leastLoad"
	// NodeSelectorLeastPlayers picks the connected node with the fewest
	// players.
	NodeSelectorLeastPlayers NodeSelector = "leastPlayers"
)

// StateStorageKind selects the queue and player-state persistence backend.
type StateStorageKind string

const (
	StateStorageMemory StateStorageKind = "memory"
	StateStorageJSON   StateStorageKind = "json"
	StateStorageRedis  StateStorageKind = "redis"
)

// NodeOptions configures a single audio node connection.
type NodeOptions struct {
	// Identifier must be unique across the pool. Defaults to Host.
	Identifier string `env:"IDENTIFIER"`
	Host       string `env:"HOST,notEmpty"`
	Port       int    `env:"PORT" envDefault:"2333"`
	Password   string `env:"PASSWORD" envDefault:"youshallnotpass"`
	UseSSL     bool   `env:"SECURE"`
	// Priority weights node selection when the manager runs in priority
	// mode. Nodes with priority 0 are never picked by weighted routing.
	Priority int `env:"PRIORITY"`
	// RetryAmount bounds consecutive reconnect attempts before the node
	// destroys itself. RetryDelay is the pause between attempts.
	RetryAmount int           `env:"RETRY_AMOUNT" envDefault:"5"`
	RetryDelay  time.Duration `env:"RETRY_DELAY" envDefault:"30s"`
	// Resume asks the node to keep players alive across short disconnects.
	Resume        bool          `env:"RESUME"`
	ResumeTimeout time.Duration `env:"RESUME_TIMEOUT" envDefault:"60s"`
	// RequestTimeout bounds every REST call against this node.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
}

func (o NodeOptions) withDefaults() NodeOptions {
	if o.Identifier == "" {
		o.Identifier = o.Host
	}
	if o.Port == 0 {
		o.Port = 2333
	}
	if o.RetryAmount == 0 {
		o.RetryAmount = 5
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = 30 * time.Second
	}
	if o.ResumeTimeout == 0 {
		o.ResumeTimeout = 60 * time.Second
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = 10 * time.Second
	}
	return o
}

// SendFunc delivers an outbound gateway payload to the host application,
// which owns the gateway socket.
type SendFunc func(guildID snowflake.ID, payload VoicePayload)

// Plugin extends the manager at initiation time.
type Plugin interface {
	Name() string
	Load(manager *Manager) error
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Nodes seeds the node pool.
	Nodes []NodeOptions
	// ClientID and ClientName identify this client to the nodes.
	ClientID   snowflake.ID
	ClientName string
	// Send delivers outbound voice payloads to the host gateway. Required.
	Send SendFunc
	// Plugins are loaded during Init in order.
	Plugins []Plugin

	// PlayNextOnEnd advances the queue automatically when a track ends.
	PlayNextOnEnd *bool
	// DefaultSearchPlatform prefixes plain-text queries.
	DefaultSearchPlatform SearchPlatform
	// AutoplaySearchPlatforms orders the recommendation sources tried on
	// queue exhaustion with autoplay enabled.
	AutoplaySearchPlatforms []SearchPlatform
	// LastFmAPIKey enables the Last.fm recommendation fallback.
	LastFmAPIKey string
	// MaxPreviousTracks bounds the per-player previous stack.
	MaxPreviousTracks int
	// NormalizeYouTubeTitles strips marketing noise from YouTube titles.
	NormalizeYouTubeTitles bool
	// TrackPartial narrows which track fields are retained. The encoded
	// blob is always kept.
	TrackPartial []TrackField

	// UsePriority enables priority-weighted node routing.
	UsePriority bool
	// UseNode picks the routing policy when priority mode is off.
	UseNode NodeSelector

	// StateStorage selects queue and player persistence.
	StateStorage StateStorageKind
	// StateDir is the root directory for session and player state files.
	StateDir string
	// RedisAddr and friends configure the redis state backend.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (o ManagerOptions) withDefaults() ManagerOptions {
	if o.ClientName == "" {
		o.ClientName = "lavaflow"
	}
	if o.PlayNextOnEnd == nil {
		playNext := true
		o.PlayNextOnEnd = &playNext
	}
	if o.DefaultSearchPlatform == "" {
		o.DefaultSearchPlatform = PlatformYouTube
	}
	if o.MaxPreviousTracks <= 0 {
		o.MaxPreviousTracks = 20
	}
	if o.UseNode == "" {
		o.UseNode = NodeSelectorLeastPlayers
	}
	if o.StateStorage == "" {
		o.StateStorage = StateStorageMemory
	}
	if o.StateDir == "" {
		o.StateDir = "sessionData"
	}
	if o.RedisPrefix == "" {
		o.RedisPrefix = "lavaflow"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func (o ManagerOptions) validate() error {
	if o.ClientID == 0 {
		return newError(ErrInvalidConfig, "client id is required")
	}
	if o.Send == nil {
		return newError(ErrInvalidConfig, "send callback is required")
	}
	if len(o.Nodes) == 0 {
		return newError(ErrInvalidConfig, "at least one node is required")
	}
	seen := map[string]bool{}
	for _, node := range o.Nodes {
		node = node.withDefaults()
		if node.Host == "" {
			return newError(ErrInvalidConfig, "node host is required")
		}
		if seen[node.Identifier] {
			return newError(ErrInvalidConfig, "duplicate node identifier %q", node.Identifier)
		}
		seen[node.Identifier] = true
	}
	return nil
}

// envOptions mirrors the environment layout used to configure a single-node
// deployment without code.
type envOptions struct {
	Node         NodeOptions `envPrefix:"LAVAFLOW_NODE_"`
	ClientID     int64       `env:"LAVAFLOW_CLIENT_ID"`
	ClientName   string      `env:"LAVAFLOW_CLIENT_NAME"`
	StateStorage string      `env:"LAVAFLOW_STATE_STORAGE"`
	StateDir     string      `env:"LAVAFLOW_STATE_DIR"`
	RedisAddr    string      `env:"LAVAFLOW_REDIS_ADDR"`
	RedisPass    string      `env:"LAVAFLOW_REDIS_PASSWORD"`
	LastFmAPIKey string      `env:"LAVAFLOW_LASTFM_API_KEY"`
}

// LoadManagerOptionsFromEnv builds ManagerOptions for a single-node setup
// from LAVAFLOW_* environment variables. The Send callback must still be
// set by the caller.
func LoadManagerOptionsFromEnv() (*ManagerOptions, error) {
	cfg := envOptions{}
	if err := env.Parse(&cfg); err != nil {
		return nil, wrapError(ErrInvalidConfig, err, "failed to parse environment")
	}

	options := ManagerOptions{
		Nodes:         []NodeOptions{cfg.Node},
		ClientID:      snowflake.ID(cfg.ClientID),
		ClientName:    cfg.ClientName,
		StateStorage:  StateStorageKind(cfg.StateStorage),
		StateDir:      cfg.StateDir,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPass,
		LastFmAPIKey:  cfg.LastFmAPIKey,
	}
	return &options, nil
}
