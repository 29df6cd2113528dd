package lavaflow

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"regexp"
	"strings"
)

// youtubeRecommender fabricates a related-videos playlist URL from the
// seed video id. The RD list is YouTube's autogenerated mix for a video;
// a random index past the seed itself picks a varied entry.
type youtubeRecommender struct{}

var _ Recommender = (*youtubeRecommender)(nil)

func (r *youtubeRecommender) Platform() SearchPlatform {
	return PlatformYouTube
}

func (r *youtubeRecommender) Recommend(ctx context.Context, player *Player, seed Track) ([]Track, error) {
	node := player.Node()
	if node == nil {
		return nil, newError(ErrNodeNotFound, "player %s has no node", player.GuildID())
	}
	if seed.Identifier == "" {
		return nil, nil
	}

	index := rand.Intn(23) + 2 // 2..24
	identifier := fmt.Sprintf("https://www.youtube.com/watch?v=%s&list=RD%s&index=%d", seed.Identifier, seed.Identifier, index)
	result, err := node.Rest().LoadTracks(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return BuildTracks(result.Tracks(), nil, player.manager.options.TrackPartial), nil
}

// soundcloudRecommender scrapes the recommended section of the seed
// track's page and resolves the found track URLs through the node.
type soundcloudRecommender struct {
	httpClient *http.Client
}

var _ Recommender = (*soundcloudRecommender)(nil)

// soundcloudTrackRe matches the track anchors inside the recommended
// section's <article itemprop> blocks.
var soundcloudTrackRe = regexp.MustCompile(`<article itemprop="track"[^>]*>\s*<h2[^>]*>\s*<a itemprop="url" href="(/[^"]+)"`)

func (r *soundcloudRecommender) Platform() SearchPlatform {
	return PlatformSoundCloud
}

func (r *soundcloudRecommender) Recommend(ctx context.Context, player *Player, seed Track) ([]Track, error) {
	node := player.Node()
	if node == nil {
		return nil, newError(ErrNodeNotFound, "player %s has no node", player.GuildID())
	}
	if seed.URI == "" || !strings.Contains(seed.URI, "soundcloud.com") {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, seed.URI+"/recommended", nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, newError(ErrRESTRequestFailed, "soundcloud recommended page returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	matches := soundcloudTrackRe.FindAllStringSubmatch(string(body), 10)
	var tracks []Track
	for _, match := range matches {
		result, err := node.Rest().LoadTracks(ctx, "https://soundcloud.com"+match[1])
		if err != nil {
			continue
		}
		built := BuildTracks(result.Tracks(), nil, player.manager.options.TrackPartial)
		if len(built) > 0 {
			tracks = append(tracks, built[0])
		}
		if len(tracks) >= 5 {
			break
		}
	}
	return tracks, nil
}
