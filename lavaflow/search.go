package lavaflow

import (
	"context"
	"strings"

	"github.com/lavaflow/lavaflow/lavalink"
)

// SearchResult is the library-level view of a load result: built tracks
// plus playlist metadata when the identifier resolved to one.
type SearchResult struct {
	LoadType  lavalink.LoadType
	Tracks    []Track
	Playlist  *PlaylistData
	Exception *lavalink.Exception
}

// PlaylistData describes a resolved playlist.
type PlaylistData struct {
	Name          string
	SelectedTrack int
	Tracks        []Track
}

// Search resolves a query through any useable node using the default
// search platform.
func (m *Manager) Search(ctx context.Context, query string, requester *Requester) (*SearchResult, error) {
	return m.SearchWithPlatform(ctx, query, m.options.DefaultSearchPlatform, requester)
}

// SearchWithPlatform resolves a query through any useable node. Plain
// text queries get the platform's search prefix; http(s) URLs pass
// through untouched.
func (m *Manager) SearchWithPlatform(ctx context.Context, query string, platform SearchPlatform, requester *Requester) (*SearchResult, error) {
	node, err := m.UseableNode()
	if err != nil {
		return nil, err
	}
	return m.searchOnNode(ctx, node, query, platform, requester)
}

func (m *Manager) searchOnNode(ctx context.Context, node *Node, query string, platform SearchPlatform, requester *Requester) (*SearchResult, error) {
	identifier := query
	if !strings.HasPrefix(query, "http://") && !strings.HasPrefix(query, "https://") {
		identifier = platform.Prefix() + ":" + query
	}

	loaded, err := node.Rest().LoadTracks(ctx, identifier)
	if err != nil {
		return nil, err
	}

	result := &SearchResult{LoadType: loaded.LoadType}
	switch data := loaded.Data.(type) {
	case lavalink.Track:
		result.Tracks = BuildTracks([]lavalink.Track{data}, requester, m.options.TrackPartial)
	case lavalink.Search:
		result.Tracks = BuildTracks(data, requester, m.options.TrackPartial)
	case lavalink.Playlist:
		tracks := BuildTracks(data.Tracks, requester, m.options.TrackPartial)
		result.Tracks = tracks
		result.Playlist = &PlaylistData{
			Name:          data.Info.Name,
			SelectedTrack: data.Info.SelectedTrack,
			Tracks:        tracks,
		}
	case lavalink.Exception:
		result.Exception = &data
	}

	if m.options.NormalizeYouTubeTitles {
		for i := range result.Tracks {
			if result.Tracks[i].SourceName == "youtube" {
				normalizeTrackTitle(&result.Tracks[i])
			}
		}
	}
	return result, nil
}

// titleBlocklist holds the marketing noise stripped from YouTube titles.
// Matching is case-insensitive and only applies to bracketed segments.
var titleBlocklist = []string{
	"official video",
	"official music video",
	"official audio",
	"official lyric video",
	"lyric video",
	"lyrics",
	"music video",
	"visualizer",
	"audio",
	"hd",
	"hq",
	"4k",
	"mv",
	"m/v",
	"remastered",
	"full version",
	"free download",
	"out now",
}

// normalizeTrackTitle rewrites a YouTube track's title in place: noisy
// bracketed segments are dropped, unbalanced brackets are trimmed, and an
// "Artist - Title" pattern fills the author when it matches the channel.
func normalizeTrackTitle(track *Track) {
	title := stripNoisyBrackets(track.Title)
	title = balanceBrackets(title)
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return
	}

	if artist, rest, ok := strings.Cut(title, " - "); ok && artist != "" && rest != "" {
		track.Author = strings.TrimSpace(artist)
		title = strings.TrimSpace(rest)
	}
	track.Title = title
}

// stripNoisyBrackets removes (…) and […] segments whose content is on the
// blocklist.
func stripNoisyBrackets(title string) string {
	var out strings.Builder
	for i := 0; i < len(title); {
		open := title[i]
		if open != '(' && open != '[' {
			out.WriteByte(open)
			i++
			continue
		}
		closing := byte(')')
		if open == '[' {
			closing = ']'
		}
		end := strings.IndexByte(title[i+1:], closing)
		if end < 0 {
			out.WriteString(title[i:])
			break
		}
		content := title[i+1 : i+1+end]
		if !isNoisy(content) {
			out.WriteString(title[i : i+end+2])
		}
		i += end + 2
	}
	return out.String()
}

func isNoisy(content string) bool {
	lowered := strings.ToLower(strings.TrimSpace(content))
	for _, blocked := range titleBlocklist {
		if lowered == blocked || strings.Contains(lowered, blocked) {
			return true
		}
	}
	return false
}

// balanceBrackets drops unmatched brackets left behind by stripping.
func balanceBrackets(title string) string {
	var out []byte
	var stack []int
	for i := 0; i < len(title); i++ {
		c := title[i]
		switch c {
		case '(', '[':
			stack = append(stack, len(out))
			out = append(out, c)
		case ')', ']':
			if len(stack) == 0 {
				continue
			}
			stack = stack[:len(stack)-1]
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	// Unclosed openers are removed back to front so indexes stay valid.
	for i := len(stack) - 1; i >= 0; i-- {
		pos := stack[i]
		out = append(out[:pos], out[pos+1:]...)
	}
	return strings.TrimSpace(string(out))
}
