package lavaflow

import (
	"context"
	"strings"
	"testing"

	"github.com/lavaflow/lavaflow/lavalink"
)

func TestNormalizeTrackTitle(t *testing.T) {
	tests := []struct {
		name       string
		title      string
		author     string
		wantTitle  string
		wantAuthor string
	}{
		{
			name:       "artist dash title with noise",
			title:      "Rick Astley - Never Gonna Give You Up (Official Music Video)",
			author:     "RickAstleyVEVO",
			wantTitle:  "Never Gonna Give You Up",
			wantAuthor: "Rick Astley",
		},
		{
			name:       "square bracket noise",
			title:      "Resonance [Official Audio]",
			author:     "HOME",
			wantTitle:  "Resonance",
			wantAuthor: "HOME",
		},
		{
			name:       "meaningful brackets survive",
			title:      "One (Live at Wembley)",
			author:     "Metallica",
			wantTitle:  "One (Live at Wembley)",
			wantAuthor: "Metallica",
		},
		{
			name:       "unbalanced bracket trimmed",
			title:      "Song Name (feat. Someone",
			author:     "Channel",
			wantTitle:  "Song Name feat. Someone",
			wantAuthor: "Channel",
		},
		{
			name:       "multiple noisy segments",
			title:      "Artist - Song [4K] (Official Video)",
			author:     "Channel",
			wantTitle:  "Song",
			wantAuthor: "Artist",
		},
		{
			name:       "entirely noisy title left alone",
			title:      "(Official Video)",
			author:     "Channel",
			wantTitle:  "(Official Video)",
			wantAuthor: "Channel",
		},
		{
			name:       "dash without both sides stays",
			title:      "- Untitled",
			author:     "Channel",
			wantTitle:  "- Untitled",
			wantAuthor: "Channel",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			track := Track{Title: tt.title, Author: tt.author}
			normalizeTrackTitle(&track)
			if track.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", track.Title, tt.wantTitle)
			}
			if track.Author != tt.wantAuthor {
				t.Errorf("Author = %q, want %q", track.Author, tt.wantAuthor)
			}
		})
	}
}

func TestSearch_IdentifierBuilding(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		platform SearchPlatform
		wantPath string
	}{
		{
			name:     "plain text gets the default prefix",
			query:    "never gonna give you up",
			platform: PlatformYouTube,
			wantPath: "/v4/loadtracks?identifier=ytsearch%3Anever+gonna+give+you+up",
		},
		{
			name:     "soundcloud prefix",
			query:    "resonance",
			platform: PlatformSoundCloud,
			wantPath: "/v4/loadtracks?identifier=scsearch%3Aresonance",
		},
		{
			name:     "urls pass through untouched",
			query:    "https://youtu.be/dQw4w9WgXcQ",
			platform: PlatformYouTube,
			wantPath: "/v4/loadtracks?identifier=https%3A%2F%2Fyoutu.be%2FdQw4w9WgXcQ",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHarness(t)
			if _, err := h.manager.SearchWithPlatform(context.Background(), tt.query, tt.platform, nil); err != nil {
				t.Fatalf("SearchWithPlatform() error = %v", err)
			}
			calls := h.restCalls()
			if len(calls) != 1 || calls[0].Path != tt.wantPath {
				t.Errorf("recorded calls = %v, want one to %s", calls, tt.wantPath)
			}
		})
	}
}

func TestSearch_BuildsTracksWithRequester(t *testing.T) {
	h := newTestHarness(t)
	h.setLoadTracksBody(`{"loadType":"search","data":[
		{"encoded":"blob1","info":{"identifier":"dQw4w9WgXcQ","author":"RickAstleyVEVO","length":212000,"isSeekable":true,"isStream":false,"position":0,"title":"Never Gonna Give You Up","uri":"https://youtu.be/dQw4w9WgXcQ","sourceName":"youtube"}},
		{"encoded":"blob2","info":{"identifier":"x2","author":"HOME","length":200000,"isSeekable":true,"isStream":false,"position":0,"title":"Resonance","sourceName":"soundcloud"}}
	]}`)

	requester := &Requester{ID: 7, Username: "dj"}
	result, err := h.manager.Search(context.Background(), "anything", requester)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.LoadType != lavalink.LoadTypeSearch {
		t.Errorf("LoadType = %s, want search", result.LoadType)
	}
	if len(result.Tracks) != 2 {
		t.Fatalf("Tracks = %d, want 2", len(result.Tracks))
	}
	first := result.Tracks[0]
	if first.Requester == nil || first.Requester.ID != 7 {
		t.Errorf("Requester = %v, want id 7", first.Requester)
	}
	if first.Duration != 212000 {
		t.Errorf("Duration = %d, want 212000", first.Duration)
	}
	if !strings.Contains(first.Thumbnail, "dQw4w9WgXcQ") {
		t.Errorf("Thumbnail = %q, want derived from the video id", first.Thumbnail)
	}
	if second := result.Tracks[1]; second.Thumbnail != "" {
		t.Errorf("Thumbnail = %q, want empty for non-youtube sources", second.Thumbnail)
	}
}

func TestSearch_Playlist(t *testing.T) {
	h := newTestHarness(t)
	h.setLoadTracksBody(`{"loadType":"playlist","data":{
		"info":{"name":"Road Trip","selectedTrack":1},
		"pluginInfo":{},
		"tracks":[
			{"encoded":"p1","info":{"identifier":"a","author":"x","length":1000,"isSeekable":true,"isStream":false,"position":0,"title":"A","sourceName":"youtube"}},
			{"encoded":"p2","info":{"identifier":"b","author":"y","length":1000,"isSeekable":true,"isStream":false,"position":0,"title":"B","sourceName":"youtube"}}
		]}}`)

	result, err := h.manager.Search(context.Background(), "https://example.com/playlist", nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Playlist == nil {
		t.Fatal("Playlist = nil")
	}
	if result.Playlist.Name != "Road Trip" || result.Playlist.SelectedTrack != 1 {
		t.Errorf("Playlist = %+v, want name and selected track", result.Playlist)
	}
	if len(result.Tracks) != 2 || len(result.Playlist.Tracks) != 2 {
		t.Errorf("Tracks = %d/%d, want 2/2", len(result.Tracks), len(result.Playlist.Tracks))
	}
}

func TestSearch_ErrorResult(t *testing.T) {
	h := newTestHarness(t)
	h.setLoadTracksBody(`{"loadType":"error","data":{"message":"video unavailable","severity":"common","cause":"..."}}`)

	result, err := h.manager.Search(context.Background(), "gone", nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Exception == nil || result.Exception.Message != "video unavailable" {
		t.Errorf("Exception = %v, want the node's message", result.Exception)
	}
	if len(result.Tracks) != 0 {
		t.Errorf("Tracks = %d, want 0", len(result.Tracks))
	}
}

func TestSearch_NormalizesYouTubeTitles(t *testing.T) {
	h := newTestHarnessWith(t, func(o *ManagerOptions) {
		o.NormalizeYouTubeTitles = true
	})
	h.setLoadTracksBody(`{"loadType":"search","data":[
		{"encoded":"n1","info":{"identifier":"a","author":"ArtistVEVO","length":1000,"isSeekable":true,"isStream":false,"position":0,"title":"Artist - Song (Official Video)","sourceName":"youtube"}},
		{"encoded":"n2","info":{"identifier":"b","author":"Someone","length":1000,"isSeekable":true,"isStream":false,"position":0,"title":"Other - Tune (Official Video)","sourceName":"soundcloud"}}
	]}`)

	result, err := h.manager.Search(context.Background(), "anything", nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if got := result.Tracks[0]; got.Title != "Song" || got.Author != "Artist" {
		t.Errorf("youtube track = %q by %q, want normalized", got.Title, got.Author)
	}
	if got := result.Tracks[1]; got.Title != "Other - Tune (Official Video)" {
		t.Errorf("soundcloud track = %q, want untouched", got.Title)
	}
}
