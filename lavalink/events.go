package lavalink

import (
	"fmt"

	"github.com/disgoorg/json"
	"github.com/disgoorg/snowflake/v2"
)

// EventType discriminates `op: event` frames.
type EventType string

const (
	EventTypeTrackStart      EventType = "TrackStartEvent"
	EventTypeTrackEnd        EventType = "TrackEndEvent"
	EventTypeTrackException  EventType = "TrackExceptionEvent"
	EventTypeTrackStuck      EventType = "TrackStuckEvent"
	EventTypeWebSocketClosed EventType = "WebSocketClosedEvent"
	EventTypeSegmentsLoaded  EventType = "SegmentsLoaded"
	EventTypeSegmentSkipped  EventType = "SegmentSkipped"
	EventTypeChaptersLoaded  EventType = "ChaptersLoaded"
	EventTypeChapterStarted  EventType = "ChapterStarted"
)

// Event is a player lifecycle event relayed over the WebSocket.
type Event interface {
	Message
	Type() EventType
	GuildID() snowflake.ID
}

// TrackEndReason explains why a track stopped playing.
type TrackEndReason string

const (
	TrackEndReasonFinished   TrackEndReason = "finished"
	TrackEndReasonLoadFailed TrackEndReason = "loadFailed"
	TrackEndReasonStopped    TrackEndReason = "stopped"
	TrackEndReasonReplaced   TrackEndReason = "replaced"
	TrackEndReasonCleanup    TrackEndReason = "cleanup"
)

// MayStartNext reports whether the player is allowed to start another track
// after a track ended for this reason.
func (r TrackEndReason) MayStartNext() bool {
	switch r {
	case TrackEndReasonFinished, TrackEndReasonLoadFailed:
		return true
	default:
		return false
	}
}

type TrackStartEvent struct {
	EventGuildID snowflake.ID `json:"guildId"`
	Track        Track        `json:"track"`
}

func (TrackStartEvent) Op() Op                  { return OpEvent }
func (TrackStartEvent) Type() EventType         { return EventTypeTrackStart }
func (e TrackStartEvent) GuildID() snowflake.ID { return e.EventGuildID }

type TrackEndEvent struct {
	EventGuildID snowflake.ID   `json:"guildId"`
	Track        Track          `json:"track"`
	Reason       TrackEndReason `json:"reason"`
}

func (TrackEndEvent) Op() Op                  { return OpEvent }
func (TrackEndEvent) Type() EventType         { return EventTypeTrackEnd }
func (e TrackEndEvent) GuildID() snowflake.ID { return e.EventGuildID }

type TrackExceptionEvent struct {
	EventGuildID snowflake.ID `json:"guildId"`
	Track        Track        `json:"track"`
	Exception    Exception    `json:"exception"`
}

func (TrackExceptionEvent) Op() Op                  { return OpEvent }
func (TrackExceptionEvent) Type() EventType         { return EventTypeTrackException }
func (e TrackExceptionEvent) GuildID() snowflake.ID { return e.EventGuildID }

type TrackStuckEvent struct {
	EventGuildID snowflake.ID `json:"guildId"`
	Track        Track        `json:"track"`
	Threshold    Duration     `json:"thresholdMs"`
}

func (TrackStuckEvent) Op() Op                  { return OpEvent }
func (TrackStuckEvent) Type() EventType         { return EventTypeTrackStuck }
func (e TrackStuckEvent) GuildID() snowflake.ID { return e.EventGuildID }

// WebSocketClosedEvent reports that the voice gateway connection between the
// node and the chat platform closed. 4xxx codes indicate an error.
type WebSocketClosedEvent struct {
	EventGuildID snowflake.ID `json:"guildId"`
	Code         int          `json:"code"`
	Reason       string       `json:"reason"`
	ByRemote     bool         `json:"byRemote"`
}

func (WebSocketClosedEvent) Op() Op                  { return OpEvent }
func (WebSocketClosedEvent) Type() EventType         { return EventTypeWebSocketClosed }
func (e WebSocketClosedEvent) GuildID() snowflake.ID { return e.EventGuildID }

// Segment is a skippable section reported by the sponsorblock plugin.
type Segment struct {
	Category string   `json:"category"`
	Start    Duration `json:"start"`
	End      Duration `json:"end"`
}

// Chapter is a named section reported by the sponsorblock plugin.
type Chapter struct {
	Name     string   `json:"name"`
	Start    Duration `json:"start"`
	End      Duration `json:"end"`
	Duration Duration `json:"duration"`
}

type SegmentsLoadedEvent struct {
	EventGuildID snowflake.ID `json:"guildId"`
	Segments     []Segment    `json:"segments"`
}

func (SegmentsLoadedEvent) Op() Op                  { return OpEvent }
func (SegmentsLoadedEvent) Type() EventType         { return EventTypeSegmentsLoaded }
func (e SegmentsLoadedEvent) GuildID() snowflake.ID { return e.EventGuildID }

type SegmentSkippedEvent struct {
	EventGuildID snowflake.ID `json:"guildId"`
	Segment      Segment      `json:"segment"`
}

func (SegmentSkippedEvent) Op() Op                  { return OpEvent }
func (SegmentSkippedEvent) Type() EventType         { return EventTypeSegmentSkipped }
func (e SegmentSkippedEvent) GuildID() snowflake.ID { return e.EventGuildID }

type ChaptersLoadedEvent struct {
	EventGuildID snowflake.ID `json:"guildId"`
	Chapters     []Chapter    `json:"chapters"`
}

func (ChaptersLoadedEvent) Op() Op                  { return OpEvent }
func (ChaptersLoadedEvent) Type() EventType         { return EventTypeChaptersLoaded }
func (e ChaptersLoadedEvent) GuildID() snowflake.ID { return e.EventGuildID }

type ChapterStartedEvent struct {
	EventGuildID snowflake.ID `json:"guildId"`
	Chapter      Chapter      `json:"chapter"`
}

func (ChapterStartedEvent) Op() Op                  { return OpEvent }
func (ChapterStartedEvent) Type() EventType         { return EventTypeChapterStarted }
func (e ChapterStartedEvent) GuildID() snowflake.ID { return e.EventGuildID }

// UnmarshalEvent decodes an `op: event` frame into its typed event.
func UnmarshalEvent(data []byte) (Event, error) {
	var envelope struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}

	var (
		event Event
		err   error
	)
	switch envelope.Type {
	case EventTypeTrackStart:
		var e TrackStartEvent
		err, event = json.Unmarshal(data, &e), e
	case EventTypeTrackEnd:
		var e TrackEndEvent
		err, event = json.Unmarshal(data, &e), e
	case EventTypeTrackException:
		var e TrackExceptionEvent
		err, event = json.Unmarshal(data, &e), e
	case EventTypeTrackStuck:
		var e TrackStuckEvent
		err, event = json.Unmarshal(data, &e), e
	case EventTypeWebSocketClosed:
		var e WebSocketClosedEvent
		err, event = json.Unmarshal(data, &e), e
	case EventTypeSegmentsLoaded:
		var e SegmentsLoadedEvent
		err, event = json.Unmarshal(data, &e), e
	case EventTypeSegmentSkipped:
		var e SegmentSkippedEvent
		err, event = json.Unmarshal(data, &e), e
	case EventTypeChaptersLoaded:
		var e ChaptersLoadedEvent
		err, event = json.Unmarshal(data, &e), e
	case EventTypeChapterStarted:
		var e ChapterStartedEvent
		err, event = json.Unmarshal(data, &e), e
	default:
		return nil, fmt.Errorf("unknown event type: %s", envelope.Type)
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}
