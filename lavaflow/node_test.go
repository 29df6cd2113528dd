package lavaflow

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/disgoorg/snowflake/v2"
)

// wsNodeServer is a fake node exposing the websocket endpoint plus the
// REST routes touched during the connect handshake.
type wsNodeServer struct {
	server *httptest.Server

	mu             sync.Mutex
	handshake      http.Header
	sessionPatches []string
	frames         [][]byte
}

func newWSNodeServer(t *testing.T) *wsNodeServer {
	t.Helper()
	s := &wsNodeServer{}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/v4/websocket", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.handshake = r.Header.Clone()
		frames := make([][]byte, len(s.frames))
		copy(frames, s.frames)
		s.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
		// Keep the socket open; the client closes it on destroy.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("/v4/sessions/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.sessionPatches = append(s.sessionPatches, string(body))
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"resuming":true,"timeout":60}`))
	})
	mux.HandleFunc("/v4/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"version":{"semver":"4.0.8"},"sourceManagers":["youtube"],"plugins":[]}`))
	})

	s.server = httptest.NewServer(mux)
	t.Cleanup(s.server.Close)
	return s
}

func (s *wsNodeServer) pushFrame(frame string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, []byte(frame))
}

func (s *wsNodeServer) headers() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handshake
}

func (s *wsNodeServer) patches() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	patches := make([]string, len(s.sessionPatches))
	copy(patches, s.sessionPatches)
	return patches
}

func (s *wsNodeServer) nodeOptions() NodeOptions {
	host, portStr, _ := net.SplitHostPort(strings.TrimPrefix(s.server.URL, "http://"))
	port, _ := strconv.Atoi(portStr)
	return NodeOptions{
		Identifier:     "ws",
		Host:           host,
		Port:           port,
		Password:       "pw",
		RetryAmount:    1,
		RetryDelay:     time.Millisecond,
		RequestTimeout: 5 * time.Second,
	}
}

func newWSManager(t *testing.T, options NodeOptions) (*Manager, *Node) {
	t.Helper()
	manager, err := NewManager(ManagerOptions{
		Nodes:    []NodeOptions{options},
		ClientID: 12345,
		Send:     func(snowflake.ID, VoicePayload) {},
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	manager.initiated = true
	node, err := manager.AddNode(context.Background(), options)
	if err != nil {
		t.Fatalf("AddNode() error = %v", err)
	}
	return manager, node
}

func TestNode_ConnectHandshake(t *testing.T) {
	server := newWSNodeServer(t)
	server.pushFrame(`{"op":"ready","resumed":false,"sessionId":"ws-sess"}`)

	options := server.nodeOptions()
	options.Resume = true
	manager, node := newWSManager(t, options)
	_ = manager.sessions.Set("ws", "old-sess")

	connected := make(chan NodeConnectEvent, 1)
	manager.Events.NodeConnect.Subscribe(func(e NodeConnectEvent) { connected <- e })

	if err := node.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(node.Destroy)

	select {
	case event := <-connected:
		if event.Resumed {
			t.Error("Resumed = true, want false")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the connect event")
	}

	headers := server.headers()
	if got := headers.Get("Authorization"); got != "pw" {
		t.Errorf("Authorization = %q, want pw", got)
	}
	if got := headers.Get("User-Id"); got != "12345" {
		t.Errorf("User-Id = %q, want 12345", got)
	}
	if got := headers.Get("Client-Name"); !strings.HasPrefix(got, "lavaflow/") {
		t.Errorf("Client-Name = %q, want lavaflow/<version>", got)
	}
	if got := headers.Get("Session-Id"); got != "old-sess" {
		t.Errorf("Session-Id = %q, want the stored session offered", got)
	}

	if got := node.SessionID(); got != "ws-sess" {
		t.Errorf("SessionID() = %q, want ws-sess", got)
	}
	if !node.Connected() {
		t.Error("Connected() = false")
	}
	if got := manager.sessions.Get("ws"); got != "ws-sess" {
		t.Errorf("stored session = %q, want ws-sess", got)
	}

	patches := server.patches()
	if len(patches) != 1 || !strings.Contains(patches[0], `"resuming":true`) {
		t.Errorf("session patches = %v, want one enabling resuming", patches)
	}
	if info := node.Info(); info == nil || !node.HasSourceManager("youtube") {
		t.Errorf("Info() = %v, want the advertised sources", info)
	}
}

func TestNode_ConnectUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	host, portStr, _ := net.SplitHostPort(strings.TrimPrefix(server.URL, "http://"))
	port, _ := strconv.Atoi(portStr)
	_, node := newWSManager(t, NodeOptions{
		Identifier: "ws", Host: host, Port: port, Password: "wrong",
		RetryAmount: 1, RetryDelay: time.Millisecond,
	})

	if err := node.Connect(context.Background()); !IsCode(err, ErrRESTUnauthorized) {
		t.Errorf("Connect() error = %v, want %s", err, ErrRESTUnauthorized)
	}
	if node.Status() != NodeStatusDisconnected {
		t.Errorf("Status() = %s, want disconnected", node.Status())
	}
}

func TestNode_ConnectDestroyed(t *testing.T) {
	server := newWSNodeServer(t)
	_, node := newWSManager(t, server.nodeOptions())
	node.Destroy()

	if err := node.Connect(context.Background()); !IsCode(err, ErrInvalidState) {
		t.Errorf("Connect() error = %v, want %s", err, ErrInvalidState)
	}
}

func TestNode_MalformedFrameEmitsNodeError(t *testing.T) {
	server := newWSNodeServer(t)
	server.pushFrame(`{"op":"ready","resumed":false,"sessionId":"ws-sess"}`)
	server.pushFrame(`{"op":`)
	server.pushFrame(`{"op":"stats","players":3,"playingPlayers":1,"uptime":5000}`)

	manager, node := newWSManager(t, server.nodeOptions())

	nodeErrs := make(chan NodeErrorEvent, 1)
	manager.Events.NodeError.Subscribe(func(e NodeErrorEvent) { nodeErrs <- e })

	if err := node.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(node.Destroy)

	select {
	case event := <-nodeErrs:
		if !IsCode(event.Err, ErrNodeProtocolError) {
			t.Errorf("NodeError = %v, want %s", event.Err, ErrNodeProtocolError)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the protocol error")
	}

	// The loop keeps reading past the bad frame.
	deadline := time.Now().Add(5 * time.Second)
	for node.Stats() == nil {
		if time.Now().After(deadline) {
			t.Fatal("stats frame after the bad one never landed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := node.Stats().Players; got != 3 {
		t.Errorf("Stats().Players = %d, want 3", got)
	}
}

func TestNode_ReconnectExhausted(t *testing.T) {
	// A listener that is closed right away yields a port nothing accepts on.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	host, portStr, _ := net.SplitHostPort(listener.Addr().String())
	port, _ := strconv.Atoi(portStr)
	_ = listener.Close()

	manager, node := newWSManager(t, NodeOptions{
		Identifier:     "gone",
		Host:           host,
		Port:           port,
		Password:       "pw",
		RetryAmount:    2,
		RetryDelay:     time.Millisecond,
		RequestTimeout: time.Second,
	})

	var attempts []int
	var lastErr error
	destroyed := false
	manager.Events.NodeReconnect.Subscribe(func(e NodeReconnectEvent) { attempts = append(attempts, e.Attempt) })
	manager.Events.NodeError.Subscribe(func(e NodeErrorEvent) { lastErr = e.Err })
	manager.Events.NodeDestroy.Subscribe(func(NodeDestroyEvent) { destroyed = true })

	node.reconnectLoop()

	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("reconnect attempts = %v, want [1 2]", attempts)
	}
	if !IsCode(lastErr, ErrNodeReconnectExhausted) {
		t.Errorf("NodeError = %v, want %s", lastErr, ErrNodeReconnectExhausted)
	}
	if !destroyed {
		t.Error("NodeDestroy never fired")
	}
	if manager.NodeByIdentifier("gone") != nil {
		t.Error("node still registered after exhausting reconnects")
	}
	if node.Status() != NodeStatusDestroyed {
		t.Errorf("Status() = %s, want destroyed", node.Status())
	}
}
