package lavalink

import (
	"fmt"

	"github.com/disgoorg/json"
)

// LoadType discriminates the result of a /v4/loadtracks call.
type LoadType string

const (
	LoadTypeTrack    LoadType = "track"
	LoadTypePlaylist LoadType = "playlist"
	LoadTypeSearch   LoadType = "search"
	LoadTypeEmpty    LoadType = "empty"
	LoadTypeError    LoadType = "error"
)

// LoadResultData is one of Track, Playlist, Search, Empty or Exception,
// depending on the result's LoadType.
type LoadResultData interface {
	loadResultData()
}

func (Track) loadResultData()     {}
func (Playlist) loadResultData()  {}
func (Search) loadResultData()    {}
func (Empty) loadResultData()     {}
func (Exception) loadResultData() {}

// Search is the track list returned for a search identifier.
type Search []Track

// Empty is returned when the identifier matched nothing.
type Empty struct{}

// LoadResult is the decoded response of /v4/loadtracks.
type LoadResult struct {
	LoadType LoadType       `json:"loadType"`
	Data     LoadResultData `json:"data"`
}

func (r *LoadResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		LoadType LoadType        `json:"loadType"`
		Data     json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.LoadType = raw.LoadType

	switch raw.LoadType {
	case LoadTypeTrack:
		var track Track
		if err := json.Unmarshal(raw.Data, &track); err != nil {
			return err
		}
		r.Data = track
	case LoadTypePlaylist:
		var playlist Playlist
		if err := json.Unmarshal(raw.Data, &playlist); err != nil {
			return err
		}
		r.Data = playlist
	case LoadTypeSearch:
		var search Search
		if err := json.Unmarshal(raw.Data, &search); err != nil {
			return err
		}
		r.Data = search
	case LoadTypeEmpty:
		r.Data = Empty{}
	case LoadTypeError:
		var exception Exception
		if err := json.Unmarshal(raw.Data, &exception); err != nil {
			return err
		}
		r.Data = exception
	default:
		return fmt.Errorf("unknown load type: %s", raw.LoadType)
	}
	return nil
}

// Tracks flattens the result into a plain track list regardless of load type.
func (r LoadResult) Tracks() []Track {
	switch data := r.Data.(type) {
	case Track:
		return []Track{data}
	case Playlist:
		return data.Tracks
	case Search:
		return data
	default:
		return nil
	}
}
