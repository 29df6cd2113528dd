package lavaflow

import (
	"context"
	"math/rand"
	"net/http"
	"time"
)

// Recommender suggests follow-up tracks for a finished seed track.
// Implementations are best-effort; an error or empty result moves the
// chain to the next source.
type Recommender interface {
	// Platform names the source this recommender draws from; it is only
	// consulted when the player's node advertises the matching source
	// manager.
	Platform() SearchPlatform
	Recommend(ctx context.Context, player *Player, seed Track) ([]Track, error)
}

// autoplayHTTPTimeout bounds the direct HTTP calls recommenders make to
// external services (Spotify, Last.fm, page scrapes).
const autoplayHTTPTimeout = 10 * time.Second

func newRecommenders(options ManagerOptions) []Recommender {
	httpClient := &http.Client{Timeout: autoplayHTTPTimeout}

	platforms := options.AutoplaySearchPlatforms
	if len(platforms) == 0 {
		platforms = []SearchPlatform{PlatformYouTube}
	}

	var recommenders []Recommender
	for _, platform := range platforms {
		switch platform {
		case PlatformYouTube, PlatformYouTubeMusic:
			recommenders = append(recommenders, &youtubeRecommender{})
		case PlatformSoundCloud:
			recommenders = append(recommenders, &soundcloudRecommender{httpClient: httpClient})
		case PlatformSpotify:
			recommenders = append(recommenders, &spotifyRecommender{httpClient: httpClient})
		case PlatformDeezer:
			recommenders = append(recommenders, &probeRecommender{platform: platform, scheme: "dzrec"})
		case PlatformTidal:
			recommenders = append(recommenders, &probeRecommender{platform: platform, scheme: "tdrec"})
		case PlatformVKMusic:
			recommenders = append(recommenders, &probeRecommender{platform: platform, scheme: "vkrec"})
		case PlatformQobuz:
			recommenders = append(recommenders, &probeRecommender{platform: platform, scheme: "qbrec"})
		}
	}
	if options.LastFmAPIKey != "" {
		recommenders = append(recommenders, &lastFmRecommender{
			httpClient: httpClient,
			apiKey:     options.LastFmAPIKey,
		})
	}
	return recommenders
}

// recommend walks the recommender chain and returns one follow-up track,
// or nil when every source came up empty. Sources the node does not
// advertise are skipped; per-source failures fall through silently.
func (m *Manager) recommend(ctx context.Context, player *Player, seed Track) (*Track, error) {
	node := player.Node()
	if node == nil {
		return nil, newError(ErrNodeNotFound, "player %s has no node", player.GuildID())
	}

	botUser, _ := player.Data(DataKeyBotUser)
	requester, _ := botUser.(*Requester)

	for _, recommender := range m.recommenders {
		platform := recommender.Platform()
		// The Last.fm fallback resolves through the default search
		// platform and has no source manager of its own.
		if _, isLastFm := recommender.(*lastFmRecommender); !isLastFm {
			if !node.HasSourceManager(platform.SourceManager()) {
				continue
			}
		}

		tracks, err := recommender.Recommend(ctx, player, seed)
		if err != nil {
			m.logger.Debug("autoplay source failed", "platform", string(platform), "err", err)
			continue
		}
		tracks = dropSeed(tracks, seed)
		if len(tracks) == 0 {
			continue
		}

		track := tracks[rand.Intn(len(tracks))]
		if requester != nil {
			track.Requester = requester
		}
		return &track, nil
	}
	return nil, nil
}

// dropSeed removes the seed track itself from a recommendation list,
// matching by URI.
func dropSeed(tracks []Track, seed Track) []Track {
	if seed.URI == "" {
		return tracks
	}
	filtered := tracks[:0]
	for _, track := range tracks {
		if track.URI == seed.URI {
			continue
		}
		filtered = append(filtered, track)
	}
	return filtered
}

// probeRecommender loads `<scheme>:<identifier>` against the node, the
// probe form shared by the deezer, tidal, vkmusic and qobuz plugins.
type probeRecommender struct {
	platform SearchPlatform
	scheme   string
}

var _ Recommender = (*probeRecommender)(nil)

func (r *probeRecommender) Platform() SearchPlatform {
	return r.platform
}

func (r *probeRecommender) Recommend(ctx context.Context, player *Player, seed Track) ([]Track, error) {
	node := player.Node()
	if node == nil {
		return nil, newError(ErrNodeNotFound, "player %s has no node", player.GuildID())
	}
	if seed.Identifier == "" {
		return nil, nil
	}

	result, err := node.Rest().LoadTracks(ctx, r.scheme+":"+seed.Identifier)
	if err != nil {
		return nil, err
	}
	return BuildTracks(result.Tracks(), nil, player.manager.options.TrackPartial), nil
}
