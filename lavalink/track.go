package lavalink

import (
	"github.com/disgoorg/json"
)

// Track is a playable track as returned by the node. The encoded blob is
// the only field guaranteed to round-trip losslessly through the node.
type Track struct {
	Encoded    string          `json:"encoded"`
	Info       TrackInfo       `json:"info"`
	PluginInfo json.RawMessage `json:"pluginInfo,omitempty"`
	UserData   json.RawMessage `json:"userData,omitempty"`
}

// WithUserData returns a copy of the track with the given user data attached.
func (t Track) WithUserData(userData any) (Track, error) {
	data, err := json.Marshal(userData)
	if err != nil {
		return t, err
	}
	t.UserData = data
	return t, nil
}

// UnmarshalUserData decodes the track's user data into v.
func (t Track) UnmarshalUserData(v any) error {
	if t.UserData == nil {
		return nil
	}
	return json.Unmarshal(t.UserData, v)
}

// TrackInfo describes a track.
type TrackInfo struct {
	Identifier string   `json:"identifier"`
	Author     string   `json:"author"`
	Length     Duration `json:"length"`
	IsSeekable bool     `json:"isSeekable"`
	IsStream   bool     `json:"isStream"`
	Position   Duration `json:"position"`
	Title      string   `json:"title"`
	ISRC       *string  `json:"isrc,omitempty"`
	URI        *string  `json:"uri,omitempty"`
	ArtworkURL *string  `json:"artworkUrl,omitempty"`
	SourceName string   `json:"sourceName"`
}

// Playlist is a named collection of tracks returned by a playlist load.
type Playlist struct {
	Info       PlaylistInfo    `json:"info"`
	PluginInfo json.RawMessage `json:"pluginInfo,omitempty"`
	Tracks     []Track         `json:"tracks"`
}

// PlaylistInfo describes a playlist.
type PlaylistInfo struct {
	Name          string `json:"name"`
	SelectedTrack int    `json:"selectedTrack"`
}

// Severity indicates how recoverable a node-side exception is.
type Severity string

const (
	SeverityCommon     Severity = "common"
	SeveritySuspicious Severity = "suspicious"
	SeverityFault      Severity = "fault"
)

// Exception is an error reported by the node.
type Exception struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Cause    string   `json:"cause"`
}

func (e Exception) Error() string {
	return e.Message
}
