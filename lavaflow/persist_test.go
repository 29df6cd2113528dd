package lavaflow

import (
	"context"
	"os"
	"testing"

	"github.com/lavaflow/lavaflow/lavalink"
)

func TestPersistAll_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	h := newTestHarnessWith(t, func(o *ManagerOptions) { o.StateDir = dir })
	ctx := context.Background()

	player := h.newPlayer(100)
	if err := player.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	_ = player.queue.Add(ctx, []Track{testTrack("a", 1), testTrack("b", 1), testTrack("c", 2)}, nil)
	_ = player.queue.AddPrevious(ctx, testTrack("p", 1))
	player.SetTrackRepeat(true)
	if err := player.SetAutoplay(true, &Requester{ID: 9}, 4); err != nil {
		t.Fatalf("SetAutoplay() error = %v", err)
	}
	player.mu.Lock()
	player.voice = lavalink.VoiceState{Token: "tok", Endpoint: "ep", SessionID: "vs"}
	player.mu.Unlock()

	if err := h.manager.PersistAll(ctx); err != nil {
		t.Fatalf("PersistAll() error = %v", err)
	}

	file, err := readPlayerFile(h.manager.playerFilePath(100))
	if err != nil {
		t.Fatalf("readPlayerFile() error = %v", err)
	}
	if file.GuildID != 100 || file.NodeIdentifier != "test" {
		t.Errorf("file = guild %s on %q, want 100 on test", file.GuildID, file.NodeIdentifier)
	}
	if file.Current == nil || file.Current.Identifier != "a" {
		t.Errorf("Current = %v, want track a", file.Current)
	}
	if len(file.Upcoming) != 2 || file.Upcoming[0].Identifier != "b" || file.Upcoming[1].Identifier != "c" {
		t.Errorf("Upcoming = %v, want [b c]", file.Upcoming)
	}
	if len(file.Previous) != 1 || file.Previous[0].Identifier != "p" {
		t.Errorf("Previous = %v, want [p]", file.Previous)
	}
	if !file.TrackRepeat || !file.Autoplay || file.AutoplayTries != 4 {
		t.Errorf("flags = repeat %v autoplay %v tries %d", file.TrackRepeat, file.Autoplay, file.AutoplayTries)
	}
	if file.BotUser == nil || file.BotUser.ID != 9 {
		t.Errorf("BotUser = %v, want id 9", file.BotUser)
	}
	if file.Voice.Token != "tok" || file.Voice.SessionID != "vs" {
		t.Errorf("Voice = %+v, want the stored credentials", file.Voice)
	}
}

func TestPersistAll_SkipsDisconnectedPlayers(t *testing.T) {
	dir := t.TempDir()
	h := newTestHarnessWith(t, func(o *ManagerOptions) { o.StateDir = dir })
	h.newPlayer(100) // never connected

	if err := h.manager.PersistAll(context.Background()); err != nil {
		t.Fatalf("PersistAll() error = %v", err)
	}
	if _, err := os.Stat(h.manager.playerFilePath(100)); !os.IsNotExist(err) {
		t.Errorf("Stat() error = %v, want a missing file for a disconnected player", err)
	}
}

// persistFixture writes one connected player's state under dir and tears
// the first harness down, leaving the file for a restore.
func persistFixture(t *testing.T, dir string) {
	t.Helper()
	h := newTestHarnessWith(t, func(o *ManagerOptions) { o.StateDir = dir })
	ctx := context.Background()

	player := h.newPlayer(100)
	if err := player.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	_ = player.queue.Add(ctx, []Track{testTrack("a", 1), testTrack("b", 1), testTrack("c", 1)}, nil)
	player.mu.Lock()
	player.voice = lavalink.VoiceState{Token: "tok", Endpoint: "ep", SessionID: "vs"}
	player.mu.Unlock()

	if err := h.manager.PersistAll(ctx); err != nil {
		t.Fatalf("PersistAll() error = %v", err)
	}
}

func TestRestorePlayers_AdvancesWhenNodeForgot(t *testing.T) {
	dir := t.TempDir()
	persistFixture(t, dir)

	h := newTestHarnessWith(t, func(o *ManagerOptions) { o.StateDir = dir })

	var restored []PlayerRestoredEvent
	var complete []RestoreCompleteEvent
	h.manager.Events.PlayerRestored.Subscribe(func(e PlayerRestoredEvent) { restored = append(restored, e) })
	h.manager.Events.RestoreComplete.Subscribe(func(e RestoreCompleteEvent) { complete = append(complete, e) })

	h.manager.restorePlayers(h.node)

	if len(restored) != 1 || len(complete) != 1 || complete[0].Restored != 1 {
		t.Fatalf("events = %d restored / %v, want one of each", len(restored), complete)
	}
	player := h.manager.ExistingPlayer(100)
	if player == nil {
		t.Fatal("player not recreated")
	}
	// The node no longer knows the guild, so the persisted current track
	// counts as finished and the queue advances.
	current, _ := player.queue.Current(context.Background())
	if current == nil || current.Identifier != "b" {
		t.Errorf("Current() = %v, want track b after advancing", current)
	}
	previous, _ := player.queue.Previous(context.Background())
	if len(previous) == 0 || previous[0].Identifier != "a" {
		t.Errorf("Previous() = %v, want track a on top", previous)
	}
	if _, err := os.Stat(h.manager.playerFilePath(100)); !os.IsNotExist(err) {
		t.Errorf("Stat() error = %v, want the player file deleted", err)
	}
}

func TestRestorePlayers_AdoptsSurvivingTrack(t *testing.T) {
	dir := t.TempDir()
	persistFixture(t, dir)

	h := newTestHarnessWith(t, func(o *ManagerOptions) { o.StateDir = dir })
	h.setPlayersBody(`[{
		"guildId":"100",
		"track":{"encoded":"enc-a","info":{"identifier":"a","author":"x","length":180000,"isSeekable":true,"isStream":false,"position":0,"title":"title-a","sourceName":"youtube"}},
		"volume":100,
		"paused":true,
		"state":{"time":0,"position":42000,"connected":true,"ping":1},
		"voice":{"token":"tok","endpoint":"ep","sessionId":"vs"}
	}]`)

	h.manager.restorePlayers(h.node)

	player := h.manager.ExistingPlayer(100)
	if player == nil {
		t.Fatal("player not recreated")
	}
	current, _ := player.queue.Current(context.Background())
	if current == nil || current.Identifier != "a" {
		t.Errorf("Current() = %v, want the surviving track kept", current)
	}
	if !player.Playing() || !player.Paused() {
		t.Errorf("Playing/Paused = %v/%v, want the node's state adopted", player.Playing(), player.Paused())
	}
	if got := player.Position(); got != 42*lavalink.Second {
		t.Errorf("Position() = %d, want 42s", got)
	}
}

func TestRestorePlayers_IgnoresOtherNodesFiles(t *testing.T) {
	dir := t.TempDir()
	persistFixture(t, dir)

	h := newTestHarnessWith(t, func(o *ManagerOptions) { o.StateDir = dir })
	other := h.addConnectedNode("other", 0)

	h.manager.restorePlayers(other)

	if h.manager.ExistingPlayer(100) != nil {
		t.Error("player restored on a node that never owned it")
	}
	if _, err := os.Stat(h.manager.playerFilePath(100)); err != nil {
		t.Errorf("Stat() error = %v, want the file left for its own node", err)
	}
}
