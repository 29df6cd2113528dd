package lavaflow

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"net/url"

	"github.com/disgoorg/json"
)

const lastFmAPIURL = "https://ws.audioscrobbler.com/2.0/"

// lastFmRecommender is the terminal fallback of the autoplay chain. It
// asks Last.fm for similar tracks and resolves the pick through the
// node's default search platform, so it works regardless of which source
// managers the node carries.
type lastFmRecommender struct {
	httpClient *http.Client
	apiKey     string
}

var _ Recommender = (*lastFmRecommender)(nil)

func (r *lastFmRecommender) Platform() SearchPlatform {
	return PlatformYouTube
}

type lastFmTrack struct {
	Name   string `json:"name"`
	Artist struct {
		Name string `json:"name"`
	} `json:"artist"`
}

func (r *lastFmRecommender) call(ctx context.Context, params url.Values, result any) error {
	params.Set("api_key", r.apiKey)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lastFmAPIURL+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return newError(ErrRESTRequestFailed, "last.fm returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, result)
}

func (r *lastFmRecommender) similarTracks(ctx context.Context, artist string, title string) ([]lastFmTrack, error) {
	params := url.Values{}
	params.Set("method", "track.getSimilar")
	params.Set("artist", artist)
	params.Set("track", title)
	params.Set("limit", "10")

	var response struct {
		SimilarTracks struct {
			Track []lastFmTrack `json:"track"`
		} `json:"similartracks"`
	}
	if err := r.call(ctx, params, &response); err != nil {
		return nil, err
	}
	return response.SimilarTracks.Track, nil
}

func (r *lastFmRecommender) topTracks(ctx context.Context, artist string) ([]lastFmTrack, error) {
	params := url.Values{}
	params.Set("method", "artist.getTopTracks")
	params.Set("artist", artist)
	params.Set("limit", "10")

	var response struct {
		TopTracks struct {
			Track []lastFmTrack `json:"track"`
		} `json:"toptracks"`
	}
	if err := r.call(ctx, params, &response); err != nil {
		return nil, err
	}
	return response.TopTracks.Track, nil
}

// findArtist recovers an artist for a bare title via track search.
func (r *lastFmRecommender) findArtist(ctx context.Context, title string) (string, error) {
	params := url.Values{}
	params.Set("method", "track.search")
	params.Set("track", title)
	params.Set("limit", "1")

	var response struct {
		Results struct {
			TrackMatches struct {
				Track []struct {
					Artist string `json:"artist"`
				} `json:"track"`
			} `json:"trackmatches"`
		} `json:"results"`
	}
	if err := r.call(ctx, params, &response); err != nil {
		return "", err
	}
	if len(response.Results.TrackMatches.Track) == 0 {
		return "", nil
	}
	return response.Results.TrackMatches.Track[0].Artist, nil
}

func (r *lastFmRecommender) Recommend(ctx context.Context, player *Player, seed Track) ([]Track, error) {
	artist := seed.Author
	title := seed.Title
	if title == "" {
		return nil, nil
	}
	if artist == "" {
		recovered, err := r.findArtist(ctx, title)
		if err != nil {
			return nil, err
		}
		artist = recovered
	}
	if artist == "" {
		return nil, nil
	}

	candidates, err := r.similarTracks(ctx, artist, title)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		candidates, err = r.topTracks(ctx, artist)
		if err != nil {
			return nil, err
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	pick := candidates[rand.Intn(len(candidates))]
	query := pick.Artist.Name + " - " + pick.Name
	result, err := player.manager.Search(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	if len(result.Tracks) == 0 {
		return nil, nil
	}
	return result.Tracks[:1], nil
}
