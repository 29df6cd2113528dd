package lavalink

import (
	"github.com/disgoorg/json"
)

// Lyrics is the response of the lavalyrics plugin. Either Text holds the
// full lyrics or Lines holds timestamped lines; never both.
type Lyrics struct {
	SourceName string          `json:"sourceName"`
	Provider   string          `json:"provider"`
	Text       *string         `json:"text"`
	Lines      []LyricsLine    `json:"lines"`
	Plugin     json.RawMessage `json:"plugin,omitempty"`
}

// LyricsLine is a single timestamped lyrics line.
type LyricsLine struct {
	Timestamp Duration        `json:"timestamp"`
	Duration  *Duration       `json:"duration"`
	Line      string          `json:"line"`
	Plugin    json.RawMessage `json:"plugin,omitempty"`
}
