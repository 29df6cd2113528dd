package lavaflow

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/disgoorg/json"
)

// spotifySecretSource is the obfuscated byte array shipped in the web
// player's bundle; spotifyTOTPSecret applies the bundle's own transform
// to recover the shared TOTP secret. Best effort and replaceable: when
// Spotify rotates it, the recommender fails and the chain moves on.
var spotifySecretSource = []byte{
	53, 53, 48, 55, 49, 52, 53, 56, 53, 51, 52, 56, 55, 52, 57, 57,
	53, 57, 50, 50, 52, 56, 54, 51, 48, 51, 50, 57, 51, 52, 55,
}

func spotifyTOTPSecret() []byte {
	secret := make([]byte, len(spotifySecretSource))
	for i, b := range spotifySecretSource {
		secret[i] = b ^ byte((i%33)+9)
	}
	return secret
}

// spotifyTOTP derives the 6-digit HMAC-SHA1 one-time code for the given
// time with a 30 second period.
func spotifyTOTP(secret []byte, now time.Time) string {
	counter := uint64(now.Unix() / 30)
	message := make([]byte, 8)
	binary.BigEndian.PutUint64(message, counter)

	mac := hmac.New(sha1.New, secret)
	mac.Write(message)
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	code := (uint32(sum[offset]&0x7f)<<24 |
		uint32(sum[offset+1])<<16 |
		uint32(sum[offset+2])<<8 |
		uint32(sum[offset+3])) % 1_000_000
	return fmt.Sprintf("%06d", code)
}

// spotifyRecommender drives Spotify's recommendations endpoint with a
// bearer token minted through the web player's anonymous token flow.
type spotifyRecommender struct {
	httpClient *http.Client

	// now is overridable for deterministic token tests.
	now func() time.Time
}

var _ Recommender = (*spotifyRecommender)(nil)

func (r *spotifyRecommender) Platform() SearchPlatform {
	return PlatformSpotify
}

func (r *spotifyRecommender) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

func (r *spotifyRecommender) accessToken(ctx context.Context) (string, error) {
	now := r.clock()
	code := spotifyTOTP(spotifyTOTPSecret(), now)

	query := url.Values{}
	query.Set("reason", "transport")
	query.Set("productType", "embed")
	query.Set("totp", code)
	query.Set("totpVer", "5")
	query.Set("ts", fmt.Sprintf("%d", now.UnixMilli()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://open.spotify.com/get_access_token?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", newError(ErrRESTRequestFailed, "spotify token endpoint returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var token struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(body, &token); err != nil {
		return "", err
	}
	if token.AccessToken == "" {
		return "", newError(ErrRESTRequestFailed, "spotify token response carried no token")
	}
	return token.AccessToken, nil
}

func (r *spotifyRecommender) Recommend(ctx context.Context, player *Player, seed Track) ([]Track, error) {
	node := player.Node()
	if node == nil {
		return nil, newError(ErrNodeNotFound, "player %s has no node", player.GuildID())
	}
	seedID := spotifyTrackID(seed)
	if seedID == "" {
		return nil, nil
	}

	token, err := r.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://api.spotify.com/v1/recommendations?seed_tracks="+url.QueryEscape(seedID)+"&limit=10", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, newError(ErrRESTRequestFailed, "spotify recommendations returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var recommendations struct {
		Tracks []struct {
			ID string `json:"id"`
		} `json:"tracks"`
	}
	if err := json.Unmarshal(body, &recommendations); err != nil {
		return nil, err
	}

	var tracks []Track
	for _, recommended := range recommendations.Tracks {
		if recommended.ID == "" {
			continue
		}
		result, err := node.Rest().LoadTracks(ctx, "https://open.spotify.com/track/"+recommended.ID)
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

// spotifyTrackID extracts the track id from a spotify track, either from
// the identifier or the open.spotify.com URI.
func spotifyTrackID(track Track) string {
	if track.SourceName == "spotify" && track.Identifier != "" {
		return track.Identifier
	}
	const marker = "open.spotify.com/track/"
	if idx := strings.Index(track.URI, marker); idx >= 0 {
		id := track.URI[idx+len(marker):]
		if cut := strings.IndexAny(id, "?/"); cut >= 0 {
			id = id[:cut]
		}
		return id
	}
	return ""
}
