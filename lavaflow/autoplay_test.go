package lavaflow

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestSpotifyTOTP(t *testing.T) {
	secret := spotifyTOTPSecret()
	tests := []struct {
		name string
		unix int64
		want string
	}{
		{name: "epoch", unix: 0, want: "882614"},
		{name: "mid period", unix: 1710000000, want: "982719"},
		{name: "period boundary", unix: 1735689600, want: "785966"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := spotifyTOTP(secret, time.Unix(tt.unix, 0)); got != tt.want {
				t.Errorf("spotifyTOTP(%d) = %s, want %s", tt.unix, got, tt.want)
			}
		})
	}

	// Codes are stable within one 30 second period.
	if spotifyTOTP(secret, time.Unix(1710000000, 0)) != spotifyTOTP(secret, time.Unix(1710000029, 0)) {
		t.Error("codes differ inside one period")
	}
}

func TestSpotifyTrackID(t *testing.T) {
	tests := []struct {
		name  string
		track Track
		want  string
	}{
		{
			name:  "spotify source uses the identifier",
			track: Track{SourceName: "spotify", Identifier: "4cOdK2wGLETKBW3PvgPWqT"},
			want:  "4cOdK2wGLETKBW3PvgPWqT",
		},
		{
			name:  "uri with query string",
			track: Track{SourceName: "http", URI: "https://open.spotify.com/track/abc123?si=xyz"},
			want:  "abc123",
		},
		{
			name:  "uri with trailing path",
			track: Track{URI: "https://open.spotify.com/track/abc123/extra"},
			want:  "abc123",
		},
		{
			name:  "non spotify track",
			track: Track{SourceName: "youtube", Identifier: "dQw4w9WgXcQ", URI: "https://youtu.be/dQw4w9WgXcQ"},
			want:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := spotifyTrackID(tt.track); got != tt.want {
				t.Errorf("spotifyTrackID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDropSeed(t *testing.T) {
	seed := Track{URI: "https://youtu.be/seed"}
	tracks := []Track{
		{URI: "https://youtu.be/a"},
		{URI: "https://youtu.be/seed"},
		{URI: "https://youtu.be/b"},
	}

	filtered := dropSeed(tracks, seed)
	if len(filtered) != 2 || filtered[0].URI != "https://youtu.be/a" || filtered[1].URI != "https://youtu.be/b" {
		t.Errorf("dropSeed() = %v, want the seed removed", filtered)
	}

	// Without a seed URI there is nothing to match on.
	all := dropSeed(tracks, Track{})
	if len(all) != 3 {
		t.Errorf("dropSeed() with empty seed = %d tracks, want 3", len(all))
	}
}

func TestRecommend_ChainFallsThrough(t *testing.T) {
	h := newTestHarness(t)
	player := h.newPlayer(100)

	failing := &stubRecommender{platform: PlatformYouTube, err: errors.New("quota exceeded")}
	working := &stubRecommender{platform: PlatformSoundCloud, tracks: []Track{testTrack("sc", 0)}}
	h.manager.recommenders = []Recommender{failing, working}

	track, err := h.manager.recommend(context.Background(), player, testTrack("seed", 1))
	if err != nil {
		t.Fatalf("recommend() error = %v", err)
	}
	if track == nil || track.Identifier != "sc" {
		t.Fatalf("recommend() = %v, want the soundcloud pick", track)
	}
	if failing.calls != 1 || working.calls != 1 {
		t.Errorf("calls = %d/%d, want both sources consulted", failing.calls, working.calls)
	}
}

func TestRecommend_SkipsUnadvertisedSources(t *testing.T) {
	h := newTestHarness(t)
	player := h.newPlayer(100)

	// The harness node advertises youtube, soundcloud and spotify only.
	deezer := &stubRecommender{platform: PlatformDeezer, tracks: []Track{testTrack("dz", 0)}}
	h.manager.recommenders = []Recommender{deezer}

	track, err := h.manager.recommend(context.Background(), player, testTrack("seed", 1))
	if err != nil {
		t.Fatalf("recommend() error = %v", err)
	}
	if track != nil {
		t.Errorf("recommend() = %v, want nil from an unadvertised source", track)
	}
	if deezer.calls != 0 {
		t.Errorf("calls = %d, want the source never consulted", deezer.calls)
	}
}

func TestRecommend_DropsSeedFromResults(t *testing.T) {
	h := newTestHarness(t)
	player := h.newPlayer(100)

	seed := testTrack("seed", 1)
	seed.URI = "https://youtu.be/seed"
	other := testTrack("other", 0)
	other.URI = "https://youtu.be/other"
	echo := seed

	stub := &stubRecommender{platform: PlatformYouTube, tracks: []Track{echo, other}}
	h.manager.recommenders = []Recommender{stub}

	track, err := h.manager.recommend(context.Background(), player, seed)
	if err != nil {
		t.Fatalf("recommend() error = %v", err)
	}
	if track == nil || track.Identifier != "other" {
		t.Errorf("recommend() = %v, want the seed filtered out", track)
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestRecommend_LastFmBypassesSourceGating(t *testing.T) {
	h := newTestHarness(t)
	player := h.newPlayer(100)

	// A node without any advertised source still consults the Last.fm
	// fallback, which resolves through search rather than a source plugin.
	h.node.mu.Lock()
	h.node.info.SourceManagers = nil
	h.node.mu.Unlock()

	requests := 0
	client := &http.Client{Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
		requests++
		return nil, errors.New("offline")
	})}
	gated := &stubRecommender{platform: PlatformYouTube, tracks: []Track{testTrack("yt", 0)}}
	lastFm := &lastFmRecommender{httpClient: client, apiKey: "key"}
	h.manager.recommenders = []Recommender{gated, lastFm}

	seed := testTrack("seed", 1)
	seed.Author = "Artist"

	track, err := h.manager.recommend(context.Background(), player, seed)
	if err != nil {
		t.Fatalf("recommend() error = %v", err)
	}
	if track != nil {
		t.Errorf("recommend() = %v, want nil with every source down", track)
	}
	if gated.calls != 0 {
		t.Errorf("gated source calls = %d, want 0 without the advertised source", gated.calls)
	}
	if requests == 0 {
		t.Error("last.fm was never consulted")
	}
}
