package lavaflow

import (
	"fmt"
	"strings"

	"github.com/disgoorg/json"
	"github.com/disgoorg/snowflake/v2"

	"github.com/lavaflow/lavaflow/lavalink"
)

// TrackField names a retainable track attribute for partial-track
// configuration.
type TrackField string

const (
	TrackFieldTitle      TrackField = "title"
	TrackFieldIdentifier TrackField = "identifier"
	TrackFieldAuthor     TrackField = "author"
	TrackFieldDuration   TrackField = "duration"
	TrackFieldISRC       TrackField = "isrc"
	TrackFieldURI        TrackField = "uri"
	TrackFieldArtwork    TrackField = "artworkUrl"
	TrackFieldSourceName TrackField = "sourceName"
	TrackFieldRequester  TrackField = "requester"
	TrackFieldPluginInfo TrackField = "pluginInfo"
)

// Requester references the user who queued a track. The ID drives
// user-block shuffling; the rest is display data.
type Requester struct {
	ID        snowflake.ID `json:"id"`
	Username  string       `json:"username,omitempty"`
	AvatarURL string       `json:"avatarUrl,omitempty"`
}

// Track is the library's view of a playable track. It is immutable after
// build except for CustomData, which is caller-owned.
type Track struct {
	// Encoded is the node's opaque track blob. Always retained.
	Encoded    string            `json:"encoded"`
	Title      string            `json:"title,omitempty"`
	Identifier string            `json:"identifier,omitempty"`
	Author     string            `json:"author,omitempty"`
	Duration   lavalink.Duration `json:"duration,omitempty"`
	ISRC       string            `json:"isrc,omitempty"`
	IsSeekable bool              `json:"isSeekable,omitempty"`
	IsStream   bool              `json:"isStream,omitempty"`
	URI        string            `json:"uri,omitempty"`
	ArtworkURL string            `json:"artworkUrl,omitempty"`
	Thumbnail  string            `json:"thumbnail,omitempty"`
	SourceName string            `json:"sourceName,omitempty"`
	PluginInfo json.RawMessage   `json:"pluginInfo,omitempty"`
	CustomData map[string]any    `json:"customData,omitempty"`
	Requester  *Requester        `json:"requester,omitempty"`
}

// RequesterID returns the requester's user id, or 0 when unset.
func (t Track) RequesterID() snowflake.ID {
	if t.Requester == nil {
		return 0
	}
	return t.Requester.ID
}

// sourceNames normalizes the closed set of node source manager names.
var sourceNames = map[string]string{
	"youtube":    "youtube",
	"ytsearch":   "youtube",
	"soundcloud": "soundcloud",
	"spotify":    "spotify",
	"deezer":     "deezer",
	"tidal":      "tidal",
	"applemusic": "applemusic",
	"bandcamp":   "bandcamp",
	"vkmusic":    "vkmusic",
	"qobuz":      "qobuz",
	"jiosaavn":   "jiosaavn",
	"twitch":     "twitch",
	"http":       "http",
	"local":      "local",
}

func normalizeSourceName(name string) string {
	if normalized, ok := sourceNames[strings.ToLower(name)]; ok {
		return normalized
	}
	return strings.ToLower(name)
}

// youtubeThumbnail derives the well-known thumbnail URL for a YouTube
// video identifier.
func youtubeThumbnail(identifier string) string {
	if identifier == "" {
		return ""
	}
	return fmt.Sprintf("https://img.youtube.com/vi/%s/mqdefault.jpg", identifier)
}

// BuildTrack converts a raw node track into the library's track model,
// applying the partial-field configuration. The encoded blob is always
// retained regardless of partials.
func BuildTrack(raw lavalink.Track, requester *Requester, partial []TrackField) (Track, error) {
	if raw.Encoded == "" {
		return Track{}, newError(ErrTrackBuildFailed, "track payload has no encoded blob")
	}

	track := Track{
		Encoded:    raw.Encoded,
		Title:      raw.Info.Title,
		Identifier: raw.Info.Identifier,
		Author:     raw.Info.Author,
		Duration:   raw.Info.Length,
		IsSeekable: raw.Info.IsSeekable,
		IsStream:   raw.Info.IsStream,
		SourceName: normalizeSourceName(raw.Info.SourceName),
		PluginInfo: raw.PluginInfo,
		Requester:  requester,
	}
	if raw.Info.ISRC != nil {
		track.ISRC = *raw.Info.ISRC
	}
	if raw.Info.URI != nil {
		track.URI = *raw.Info.URI
	}
	if raw.Info.ArtworkURL != nil {
		track.ArtworkURL = *raw.Info.ArtworkURL
	}
	if track.SourceName == "youtube" {
		track.Thumbnail = youtubeThumbnail(track.Identifier)
	}

	if len(partial) > 0 {
		track = track.narrow(partial)
	}
	return track, nil
}

// BuildTracks converts a raw track list, skipping tracks that fail to build.
func BuildTracks(raw []lavalink.Track, requester *Requester, partial []TrackField) []Track {
	tracks := make([]Track, 0, len(raw))
	for _, r := range raw {
		track, err := BuildTrack(r, requester, partial)
		if err != nil {
			continue
		}
		tracks = append(tracks, track)
	}
	return tracks
}

func (t Track) narrow(partial []TrackField) Track {
	keep := make(map[TrackField]bool, len(partial))
	for _, field := range partial {
		keep[field] = true
	}

	narrowed := Track{
		Encoded:    t.Encoded,
		CustomData: t.CustomData,
	}
	if keep[TrackFieldTitle] {
		narrowed.Title = t.Title
	}
	if keep[TrackFieldIdentifier] {
		narrowed.Identifier = t.Identifier
		narrowed.Thumbnail = t.Thumbnail
	}
	if keep[TrackFieldAuthor] {
		narrowed.Author = t.Author
	}
	if keep[TrackFieldDuration] {
		narrowed.Duration = t.Duration
		narrowed.IsSeekable = t.IsSeekable
		narrowed.IsStream = t.IsStream
	}
	if keep[TrackFieldISRC] {
		narrowed.ISRC = t.ISRC
	}
	if keep[TrackFieldURI] {
		narrowed.URI = t.URI
	}
	if keep[TrackFieldArtwork] {
		narrowed.ArtworkURL = t.ArtworkURL
	}
	if keep[TrackFieldSourceName] {
		narrowed.SourceName = t.SourceName
	}
	if keep[TrackFieldRequester] {
		narrowed.Requester = t.Requester
	}
	if keep[TrackFieldPluginInfo] {
		narrowed.PluginInfo = t.PluginInfo
	}
	return narrowed
}
