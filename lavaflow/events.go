package lavaflow

import (
	"sync"

	"github.com/disgoorg/snowflake/v2"

	"github.com/lavaflow/lavaflow/lavalink"
)

// Emitter delivers events of one type to any number of subscribers.
// Subscribers run synchronously in subscription order; a single player's
// state updates are therefore observed in mutation order.
type Emitter[T any] struct {
	mu       sync.RWMutex
	handlers []func(T)
}

// Subscribe registers a handler. Handlers cannot be removed; scope their
// lifetime with a closed-over flag if needed.
func (e *Emitter[T]) Subscribe(handler func(T)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
}

// Emit calls every subscribed handler with the event.
func (e *Emitter[T]) Emit(event T) {
	e.mu.RLock()
	handlers := e.handlers
	e.mu.RUnlock()
	for _, handler := range handlers {
		handler(event)
	}
}

// Events is the manager's event hub. The set of events is closed; each
// field carries one event name from the public contract.
type Events struct {
	Debug Emitter[DebugEvent]

	NodeCreate     Emitter[NodeCreateEvent]
	NodeConnect    Emitter[NodeConnectEvent]
	NodeReconnect  Emitter[NodeReconnectEvent]
	NodeDisconnect Emitter[NodeDisconnectEvent]
	NodeDestroy    Emitter[NodeDestroyEvent]
	NodeError      Emitter[NodeErrorEvent]
	NodeRaw        Emitter[NodeRawEvent]

	PlayerCreate      Emitter[PlayerCreateEvent]
	PlayerDestroy     Emitter[PlayerDestroyEvent]
	PlayerDisconnect  Emitter[PlayerDisconnectEvent]
	PlayerMove        Emitter[PlayerMoveEvent]
	PlayerRestored    Emitter[PlayerRestoredEvent]
	PlayerStateUpdate Emitter[PlayerStateUpdateEvent]

	QueueEnd   Emitter[QueueEndEvent]
	TrackStart Emitter[TrackStartEvent]
	TrackEnd   Emitter[TrackEndEvent]
	TrackStuck Emitter[TrackStuckEvent]
	TrackError Emitter[TrackErrorEvent]

	SocketClosed   Emitter[SocketClosedEvent]
	SegmentsLoaded Emitter[SegmentsLoadedEvent]
	SegmentSkipped Emitter[SegmentSkippedEvent]
	ChaptersLoaded Emitter[ChaptersLoadedEvent]
	ChapterStarted Emitter[ChapterStartedEvent]

	RestoreComplete Emitter[RestoreCompleteEvent]
	LyricsFound     Emitter[LyricsFoundEvent]
	LyricsLine      Emitter[LyricsLineEvent]
	LyricsNotFound  Emitter[LyricsNotFoundEvent]
}

type DebugEvent struct {
	Message string
}

type NodeCreateEvent struct {
	Node *Node
}

type NodeConnectEvent struct {
	Node    *Node
	Resumed bool
}

type NodeReconnectEvent struct {
	Node    *Node
	Attempt int
}

type NodeDisconnectEvent struct {
	Node   *Node
	Code   int
	Reason string
}

type NodeDestroyEvent struct {
	Node *Node
}

type NodeErrorEvent struct {
	Node *Node
	Err  error
}

// NodeRawEvent carries every frame received from a node, before demuxing.
type NodeRawEvent struct {
	Node *Node
	Data []byte
}

type PlayerCreateEvent struct {
	Player *Player
}

type PlayerDestroyEvent struct {
	Player *Player
}

type PlayerDisconnectEvent struct {
	Player       *Player
	OldChannelID snowflake.ID
}

type PlayerMoveEvent struct {
	Player       *Player
	OldChannelID snowflake.ID
	NewChannelID snowflake.ID
}

type PlayerRestoredEvent struct {
	Player *Player
	Node   *Node
}

// PlayerStateUpdateEvent is emitted exactly once per successful
// state-mutating player operation. OldPlayer is a shallow snapshot taken
// before the mutation.
type PlayerStateUpdateEvent struct {
	OldPlayer PlayerSnapshot
	Player    *Player
	Change    StateChange
}

type QueueEndEvent struct {
	Player *Player
	Track  *Track
}

type TrackStartEvent struct {
	Player *Player
	Track  Track
}

type TrackEndEvent struct {
	Player *Player
	Track  *Track
	Reason lavalink.TrackEndReason
}

type TrackStuckEvent struct {
	Player    *Player
	Track     *Track
	Threshold lavalink.Duration
}

type TrackErrorEvent struct {
	Player    *Player
	Track     *Track
	Exception lavalink.Exception
}

type SocketClosedEvent struct {
	Player   *Player
	Code     int
	Reason   string
	ByRemote bool
}

type SegmentsLoadedEvent struct {
	Player   *Player
	Segments []lavalink.Segment
}

type SegmentSkippedEvent struct {
	Player  *Player
	Segment lavalink.Segment
}

type ChaptersLoadedEvent struct {
	Player   *Player
	Chapters []lavalink.Chapter
}

type ChapterStartedEvent struct {
	Player  *Player
	Chapter lavalink.Chapter
}

type RestoreCompleteEvent struct {
	Node     *Node
	Restored int
}

type LyricsFoundEvent struct {
	Player *Player
	Lyrics lavalink.Lyrics
}

type LyricsLineEvent struct {
	Player *Player
	Line   lavalink.LyricsLine
}

type LyricsNotFoundEvent struct {
	Player *Player
}

// ChangeType names the kind of mutation behind a PlayerStateUpdateEvent.
type ChangeType string

const (
	ChangeAutoplay      ChangeType = "AutoplayChange"
	ChangeConnection    ChangeType = "ConnectionChange"
	ChangeRepeat        ChangeType = "RepeatChange"
	ChangePause         ChangeType = "PauseChange"
	ChangeQueue         ChangeType = "QueueChange"
	ChangeTrack         ChangeType = "TrackChange"
	ChangeVolume        ChangeType = "VolumeChange"
	ChangeChannel       ChangeType = "ChannelChange"
	ChangePlayerCreate  ChangeType = "PlayerCreate"
	ChangePlayerDestroy ChangeType = "PlayerDestroy"
	ChangeFilter        ChangeType = "FilterChange"
)

// StateChange describes one player mutation. Detail narrows the change for
// the types that carry a subtype: RepeatChange {dynamic, track, queue},
// TrackChange {start, end, previous, timeUpdate, autoPlay} and QueueChange
// {add, remove, clear, shuffle, roundRobin, userBlock, autoPlayAdd}.
type StateChange struct {
	Type   ChangeType
	Detail string
}
