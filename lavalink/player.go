package lavalink

import (
	"github.com/disgoorg/json"
	"github.com/disgoorg/snowflake/v2"
)

// Player is the node-side snapshot of a guild player as returned by
// GET /v4/sessions/{sessionId}/players.
type Player struct {
	GuildID snowflake.ID `json:"guildId"`
	Track   *Track       `json:"track"`
	Volume  int          `json:"volume"`
	Paused  bool         `json:"paused"`
	State   PlayerState  `json:"state"`
	Voice   VoiceState   `json:"voice"`
	Filters Filters      `json:"filters"`
}

// VoiceState carries the gateway credentials the node needs to join a voice
// channel on our behalf.
type VoiceState struct {
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
	SessionID string `json:"sessionId"`
}

// Complete reports whether all three credentials are present.
func (s VoiceState) Complete() bool {
	return s.Token != "" && s.Endpoint != "" && s.SessionID != ""
}

// PlayerUpdate is the PATCH body for /v4/sessions/{sessionId}/players/{guildId}.
// All fields are optional; absent fields leave the node-side value untouched.
type PlayerUpdate struct {
	Track     *PlayerUpdateTrack `json:"track,omitempty"`
	Position  *Duration          `json:"position,omitempty"`
	EndTime   *Duration          `json:"endTime,omitempty"`
	Volume    *int               `json:"volume,omitempty"`
	Paused    *bool              `json:"paused,omitempty"`
	Filters   *Filters           `json:"filters,omitempty"`
	Voice     *VoiceState        `json:"voice,omitempty"`
	NoReplace bool               `json:"-"`
}

// PlayerUpdateTrack selects the track to play. Encoded distinguishes
// "absent" (keep playing) from an explicit null (stop the current track).
type PlayerUpdateTrack struct {
	Encoded    *json.Nullable[string] `json:"encoded,omitempty"`
	Identifier *string                `json:"identifier,omitempty"`
	UserData   any                    `json:"userData,omitempty"`
}

// PlayerUpdateOpt mutates a PlayerUpdate under construction.
type PlayerUpdateOpt func(update *PlayerUpdate)

// Apply applies the given options to the update.
func (u *PlayerUpdate) Apply(opts []PlayerUpdateOpt) {
	for _, opt := range opts {
		opt(u)
	}
}

func WithTrack(track PlayerUpdateTrack) PlayerUpdateOpt {
	return func(update *PlayerUpdate) {
		update.Track = &track
	}
}

// WithEncodedTrack replaces the playing track with the given encoded blob.
func WithEncodedTrack(encodedTrack string) PlayerUpdateOpt {
	return WithTrack(PlayerUpdateTrack{
		Encoded: json.NewNullablePtr(encodedTrack),
	})
}

// WithNullTrack stops the currently playing track.
func WithNullTrack() PlayerUpdateOpt {
	return WithTrack(PlayerUpdateTrack{
		Encoded: json.NullPtr[string](),
	})
}

// WithTrackIdentifier asks the node to resolve and play the identifier.
func WithTrackIdentifier(identifier string) PlayerUpdateOpt {
	return WithTrack(PlayerUpdateTrack{
		Identifier: &identifier,
	})
}

// WithTrackUserData attaches opaque user data to the track selection.
func WithTrackUserData(userData any) PlayerUpdateOpt {
	return func(update *PlayerUpdate) {
		if update.Track == nil {
			update.Track = &PlayerUpdateTrack{}
		}
		update.Track.UserData = userData
	}
}

func WithPosition(position Duration) PlayerUpdateOpt {
	return func(update *PlayerUpdate) {
		update.Position = &position
	}
}

func WithEndTime(endTime Duration) PlayerUpdateOpt {
	return func(update *PlayerUpdate) {
		update.EndTime = &endTime
	}
}

func WithVolume(volume int) PlayerUpdateOpt {
	return func(update *PlayerUpdate) {
		update.Volume = &volume
	}
}

func WithPaused(paused bool) PlayerUpdateOpt {
	return func(update *PlayerUpdate) {
		update.Paused = &paused
	}
}

func WithFilters(filters Filters) PlayerUpdateOpt {
	return func(update *PlayerUpdate) {
		update.Filters = &filters
	}
}

func WithVoice(voice VoiceState) PlayerUpdateOpt {
	return func(update *PlayerUpdate) {
		update.Voice = &voice
	}
}

// WithNoReplace suppresses replacing a track that is already playing.
func WithNoReplace(noReplace bool) PlayerUpdateOpt {
	return func(update *PlayerUpdate) {
		update.NoReplace = noReplace
	}
}

// SessionUpdate is the PATCH body for /v4/sessions/{sessionId}.
type SessionUpdate struct {
	Resuming *bool `json:"resuming,omitempty"`
	Timeout  *int  `json:"timeout,omitempty"`
}

// Session is the response to a session update.
type Session struct {
	Resuming bool `json:"resuming"`
	Timeout  int  `json:"timeout"`
}
