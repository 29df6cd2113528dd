package lavaflow

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/lavaflow/lavaflow/lavalink"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testRestClient points a rest client at the given httptest server.
func testRestClient(t *testing.T, server *httptest.Server) *RestClient {
	t.Helper()
	host, portStr, err := net.SplitHostPort(server.Listener.Addr().String())
	if err != nil {
		t.Fatalf("SplitHostPort() error = %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return newRestClient(NodeOptions{
		Identifier:     "test",
		Host:           host,
		Port:           port,
		Password:       "hunter2",
		RequestTimeout: 5 * time.Second,
	}, testLogger())
}

func TestRestClient_LoadTracks(t *testing.T) {
	var gotAuth, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.RequestURI()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"loadType":"search","data":[{"encoded":"a","info":{}}]}`))
	}))
	defer server.Close()

	client := testRestClient(t, server)
	result, err := client.LoadTracks(context.Background(), "ytsearch:never gonna")
	if err != nil {
		t.Fatalf("LoadTracks() error = %v", err)
	}
	if gotAuth != "hunter2" {
		t.Errorf("Authorization = %q, want hunter2", gotAuth)
	}
	if want := "/v4/loadtracks?identifier=ytsearch%3Anever+gonna"; gotPath != want {
		t.Errorf("path = %q, want %q", gotPath, want)
	}
	if len(result.Tracks()) != 1 {
		t.Errorf("Tracks() returned %d tracks, want 1", len(result.Tracks()))
	}
}

func TestRestClient_UpdatePlayerNoReplaceQuery(t *testing.T) {
	var gotQuery, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"guildId":"123","volume":100}`))
	}))
	defer server.Close()

	client := testRestClient(t, server)
	var update lavalink.PlayerUpdate
	update.Apply([]lavalink.PlayerUpdateOpt{lavalink.WithEncodedTrack("blob"), lavalink.WithNoReplace(true)})
	player, err := client.UpdatePlayer(context.Background(), "sess", 123, update)
	if err != nil {
		t.Fatalf("UpdatePlayer() error = %v", err)
	}
	if gotMethod != http.MethodPatch {
		t.Errorf("method = %s, want PATCH", gotMethod)
	}
	if gotQuery != "noReplace=true" {
		t.Errorf("query = %q, want noReplace=true", gotQuery)
	}
	if player.GuildID != 123 {
		t.Errorf("GuildID = %s, want 123", player.GuildID)
	}
}

func TestRestClient_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := testRestClient(t, server)
	if _, err := client.Info(context.Background()); !IsCode(err, ErrRESTUnauthorized) {
		t.Fatalf("Info() error = %v, want %s", err, ErrRESTUnauthorized)
	}
}

func TestRestClient_NodeErrorMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"timestamp":1710000000000,"status":400,"error":"Bad Request","message":"guild not found","path":"/v4/sessions/s/players/1"}`))
	}))
	defer server.Close()

	client := testRestClient(t, server)
	_, err := client.GetPlayer(context.Background(), "s", 1)
	if !IsCode(err, ErrRESTRequestFailed) {
		t.Fatalf("GetPlayer() error = %v, want %s", err, ErrRESTRequestFailed)
	}
	if got := err.Error(); !strings.Contains(got, "guild not found") {
		t.Errorf("error = %q, want node message included", got)
	}
}

func TestRestClient_Version(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/version" {
			t.Errorf("path = %s, want /version", r.URL.Path)
		}
		_, _ = w.Write([]byte("4.0.8"))
	}))
	defer server.Close()

	client := testRestClient(t, server)
	version, err := client.Version(context.Background())
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if version != "4.0.8" {
		t.Errorf("Version() = %q, want 4.0.8", version)
	}
}

func TestRestClient_DestroyPlayerNoContent(t *testing.T) {
	var gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := testRestClient(t, server)
	if err := client.DestroyPlayer(context.Background(), "sess", 42); err != nil {
		t.Fatalf("DestroyPlayer() error = %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("method = %s, want DELETE", gotMethod)
	}
}
