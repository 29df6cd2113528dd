package lavaflow

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/disgoorg/json"
	"github.com/disgoorg/snowflake/v2"

	"github.com/lavaflow/lavaflow/lavalink"
)

// restError is the JSON error body nodes return for 4xx/5xx responses.
type restError struct {
	Timestamp lavalink.Timestamp `json:"timestamp"`
	Status    int                `json:"status"`
	Error     string             `json:"error"`
	Message   string             `json:"message"`
	Path      string             `json:"path"`
}

// RestClient issues authenticated HTTP calls against a single node's v4
// REST API. Every call is bounded by the node's request timeout through
// the http client, plus whatever deadline the caller's context carries.
type RestClient struct {
	httpClient *http.Client
	baseURL    string
	password   string
	logger     *slog.Logger
}

func newRestClient(options NodeOptions, logger *slog.Logger) *RestClient {
	scheme := "http"
	if options.UseSSL {
		scheme = "https"
	}
	return &RestClient{
		httpClient: &http.Client{Timeout: options.RequestTimeout},
		baseURL:    fmt.Sprintf("%s://%s:%d", scheme, options.Host, options.Port),
		password:   options.Password,
		logger:     logger,
	}
}

// do runs one request. A nil body sends no payload; a nil result discards
// the response body. Non-2xx responses are decoded into the node's error
// shape when possible.
func (c *RestClient) do(ctx context.Context, method string, path string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return wrapError(ErrRESTRequestFailed, err, "failed to encode request body")
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return wrapError(ErrRESTRequestFailed, err, "failed to build request")
	}
	req.Header.Set("Authorization", c.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return wrapError(ErrRESTRequestFailed, err, "%s %s failed", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return wrapError(ErrRESTRequestFailed, err, "failed to read response body")
	}

	c.logger.Debug("rest call", slog.String("method", method), slog.String("path", path), slog.Int("status", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return newError(ErrRESTUnauthorized, "%s %s rejected with status %d", method, path, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		var nodeErr restError
		if err := json.Unmarshal(data, &nodeErr); err == nil && nodeErr.Message != "" {
			return newError(ErrRESTRequestFailed, "%s %s returned %d: %s", method, path, resp.StatusCode, nodeErr.Message)
		}
		return newError(ErrRESTRequestFailed, "%s %s returned %d", method, path, resp.StatusCode)
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return wrapError(ErrRESTRequestFailed, err, "failed to decode %s %s response", method, path)
	}
	return nil
}

// LoadTracks resolves an identifier (URL or prefixed search query).
func (c *RestClient) LoadTracks(ctx context.Context, identifier string) (*lavalink.LoadResult, error) {
	var result lavalink.LoadResult
	if err := c.do(ctx, http.MethodGet, "/v4/loadtracks?identifier="+url.QueryEscape(identifier), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *RestClient) DecodeTrack(ctx context.Context, encoded string) (*lavalink.Track, error) {
	var track lavalink.Track
	if err := c.do(ctx, http.MethodGet, "/v4/decodetrack?encodedTrack="+url.QueryEscape(encoded), nil, &track); err != nil {
		return nil, err
	}
	return &track, nil
}

func (c *RestClient) DecodeTracks(ctx context.Context, encoded []string) ([]lavalink.Track, error) {
	var tracks []lavalink.Track
	if err := c.do(ctx, http.MethodPost, "/v4/decodetracks", encoded, &tracks); err != nil {
		return nil, err
	}
	return tracks, nil
}

func (c *RestClient) GetPlayers(ctx context.Context, sessionID string) ([]lavalink.Player, error) {
	var players []lavalink.Player
	if err := c.do(ctx, http.MethodGet, "/v4/sessions/"+sessionID+"/players", nil, &players); err != nil {
		return nil, err
	}
	return players, nil
}

func (c *RestClient) GetPlayer(ctx context.Context, sessionID string, guildID snowflake.ID) (*lavalink.Player, error) {
	var player lavalink.Player
	if err := c.do(ctx, http.MethodGet, c.playerPath(sessionID, guildID), nil, &player); err != nil {
		return nil, err
	}
	return &player, nil
}

// UpdatePlayer applies a partial player update. NoReplace travels as a
// query parameter, not in the body.
func (c *RestClient) UpdatePlayer(ctx context.Context, sessionID string, guildID snowflake.ID, update lavalink.PlayerUpdate) (*lavalink.Player, error) {
	path := c.playerPath(sessionID, guildID) + "?noReplace=" + strconv.FormatBool(update.NoReplace)
	var player lavalink.Player
	if err := c.do(ctx, http.MethodPatch, path, update, &player); err != nil {
		return nil, err
	}
	return &player, nil
}

func (c *RestClient) DestroyPlayer(ctx context.Context, sessionID string, guildID snowflake.ID) error {
	return c.do(ctx, http.MethodDelete, c.playerPath(sessionID, guildID), nil, nil)
}

func (c *RestClient) UpdateSession(ctx context.Context, sessionID string, update lavalink.SessionUpdate) (*lavalink.Session, error) {
	var session lavalink.Session
	if err := c.do(ctx, http.MethodPatch, "/v4/sessions/"+sessionID, update, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *RestClient) Info(ctx context.Context) (*lavalink.Info, error) {
	var info lavalink.Info
	if err := c.do(ctx, http.MethodGet, "/v4/info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *RestClient) Stats(ctx context.Context) (*lavalink.Stats, error) {
	var stats lavalink.Stats
	if err := c.do(ctx, http.MethodGet, "/v4/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Version returns the node's version string, served as plain text.
func (c *RestClient) Version(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/version", nil)
	if err != nil {
		return "", wrapError(ErrRESTRequestFailed, err, "failed to build request")
	}
	req.Header.Set("Authorization", c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", wrapError(ErrRESTRequestFailed, err, "GET /version failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", newError(ErrRESTRequestFailed, "GET /version returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", wrapError(ErrRESTRequestFailed, err, "failed to read version")
	}
	return string(data), nil
}

func (c *RestClient) GetSponsorBlockCategories(ctx context.Context, sessionID string, guildID snowflake.ID) ([]string, error) {
	var categories []string
	if err := c.do(ctx, http.MethodGet, c.playerPath(sessionID, guildID)+"/sponsorblock/categories", nil, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

func (c *RestClient) SetSponsorBlockCategories(ctx context.Context, sessionID string, guildID snowflake.ID, categories []string) error {
	return c.do(ctx, http.MethodPut, c.playerPath(sessionID, guildID)+"/sponsorblock/categories", categories, nil)
}

func (c *RestClient) DeleteSponsorBlockCategories(ctx context.Context, sessionID string, guildID snowflake.ID) error {
	return c.do(ctx, http.MethodDelete, c.playerPath(sessionID, guildID)+"/sponsorblock/categories", nil, nil)
}

// GetLyrics fetches lyrics for the playing track via the lyrics plugin.
func (c *RestClient) GetLyrics(ctx context.Context, sessionID string, guildID snowflake.ID, skipTrackSource bool) (*lavalink.Lyrics, error) {
	path := c.playerPath(sessionID, guildID) + "/track/lyrics?skipTrackSource=" + strconv.FormatBool(skipTrackSource)
	var lyrics lavalink.Lyrics
	if err := c.do(ctx, http.MethodGet, path, nil, &lyrics); err != nil {
		return nil, err
	}
	return &lyrics, nil
}

func (c *RestClient) playerPath(sessionID string, guildID snowflake.ID) string {
	return fmt.Sprintf("/v4/sessions/%s/players/%s", sessionID, guildID)
}
