package lavaflow

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lavaflow/lavaflow/lavalink"
)

// NodeStatus is the lifecycle state of a node connection.
type NodeStatus string

const (
	NodeStatusIdle         NodeStatus = "idle"
	NodeStatusConnecting   NodeStatus = "connecting"
	NodeStatusConnected    NodeStatus = "connected"
	NodeStatusReconnecting NodeStatus = "reconnecting"
	NodeStatusDisconnected NodeStatus = "disconnected"
	NodeStatusDestroyed    NodeStatus = "destroyed"
)

// Node is one audio node connection: a read-only websocket for pushed
// state plus a REST client for commands. A node is owned by exactly one
// manager.
type Node struct {
	manager *Manager
	options NodeOptions
	rest    *RestClient
	logger  *slog.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	status    NodeStatus
	sessionID string
	resumed   bool
	stats     *lavalink.Stats
	info      *lavalink.Info

	closeOnce sync.Once
	closed    chan struct{}
}

func newNode(manager *Manager, options NodeOptions) *Node {
	options = options.withDefaults()
	logger := manager.logger.With(slog.String("node", options.Identifier))
	return &Node{
		manager: manager,
		options: options,
		rest:    newRestClient(options, logger),
		logger:  logger,
		status:  NodeStatusIdle,
		closed:  make(chan struct{}),
	}
}

func (n *Node) Identifier() string {
	return n.options.Identifier
}

func (n *Node) Options() NodeOptions {
	return n.options
}

// Rest exposes the node's REST client for direct API access.
func (n *Node) Rest() *RestClient {
	return n.rest
}

func (n *Node) Status() NodeStatus {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.status
}

func (n *Node) Connected() bool {
	return n.Status() == NodeStatusConnected
}

// SessionID returns the session id from the latest ready frame, or "".
func (n *Node) SessionID() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sessionID
}

// Stats returns the latest stats frame, or nil before the first one.
func (n *Node) Stats() *lavalink.Stats {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stats
}

// Info returns the node's /v4/info payload, fetched after connect.
func (n *Node) Info() *lavalink.Info {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.info
}

// HasPlugin reports whether the node advertises the named plugin.
func (n *Node) HasPlugin(name string) bool {
	info := n.Info()
	return info != nil && info.HasPlugin(name)
}

// HasSourceManager reports whether the node advertises the named source.
func (n *Node) HasSourceManager(name string) bool {
	info := n.Info()
	return info != nil && info.HasSourceManager(name)
}

func (n *Node) wsURL() string {
	scheme := "ws"
	if n.options.UseSSL {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d/v4/websocket", scheme, n.options.Host, n.options.Port)
}

// Connect opens the websocket. A stored session id from a previous run is
// offered for resuming; the node confirms through the ready frame.
func (n *Node) Connect(ctx context.Context) error {
	n.mu.Lock()
	if n.status == NodeStatusDestroyed {
		n.mu.Unlock()
		return newError(ErrInvalidState, "node %q is destroyed", n.options.Identifier)
	}
	if n.conn != nil {
		n.mu.Unlock()
		return newError(ErrInvalidState, "node %q is already connected", n.options.Identifier)
	}
	n.status = NodeStatusConnecting
	n.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", n.options.Password)
	header.Set("User-Id", n.manager.options.ClientID.String())
	header.Set("Client-Name", fmt.Sprintf("%s/%s", n.manager.options.ClientName, Version))
	if sessionID := n.manager.sessions.Get(n.options.Identifier); sessionID != "" {
		header.Set("Session-Id", sessionID)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, n.wsURL(), header)
	if err != nil {
		n.mu.Lock()
		n.status = NodeStatusDisconnected
		n.mu.Unlock()
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return wrapError(ErrRESTUnauthorized, err, "node %q rejected the password", n.options.Identifier)
		}
		return wrapError(ErrNodeConnectFailed, err, "failed to connect to node %q", n.options.Identifier)
	}

	n.mu.Lock()
	n.conn = conn
	n.mu.Unlock()

	go n.readLoop(conn)
	return nil
}

func (n *Node) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			n.handleDisconnect(err)
			return
		}
		n.manager.Events.NodeRaw.Emit(NodeRawEvent{Node: n, Data: data})

		message, err := lavalink.UnmarshalMessage(data)
		if err != nil {
			n.logger.Warn("dropping malformed frame", slog.Any("err", err))
			n.manager.Events.NodeError.Emit(NodeErrorEvent{
				Node: n,
				Err:  wrapError(ErrNodeProtocolError, err, "malformed frame"),
			})
			continue
		}
		n.handleMessage(message)
	}
}

func (n *Node) handleMessage(message lavalink.Message) {
	switch m := message.(type) {
	case lavalink.ReadyMessage:
		n.handleReady(m)
	case lavalink.StatsMessage:
		stats := lavalink.Stats(m)
		n.mu.Lock()
		n.stats = &stats
		n.mu.Unlock()
	case lavalink.PlayerUpdateMessage:
		if player := n.manager.ExistingPlayer(m.GuildID); player != nil {
			player.handlePlayerUpdate(m.State)
		}
	case lavalink.Event:
		n.manager.handleNodeEvent(n, m)
	}
}

func (n *Node) handleReady(ready lavalink.ReadyMessage) {
	n.mu.Lock()
	n.status = NodeStatusConnected
	n.sessionID = ready.SessionID
	n.resumed = ready.Resumed
	n.mu.Unlock()

	n.logger.Info("node ready",
		slog.String("session_id", ready.SessionID),
		slog.Bool("resumed", ready.Resumed),
	)

	if err := n.manager.sessions.Set(n.options.Identifier, ready.SessionID); err != nil {
		n.logger.Warn("failed to persist session id", slog.Any("err", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.options.RequestTimeout)
	defer cancel()

	if n.options.Resume {
		resuming := true
		timeout := int(n.options.ResumeTimeout.Seconds())
		if _, err := n.rest.UpdateSession(ctx, ready.SessionID, lavalink.SessionUpdate{
			Resuming: &resuming,
			Timeout:  &timeout,
		}); err != nil {
			n.logger.Warn("failed to enable resuming", slog.Any("err", err))
		}
	}

	info, err := n.rest.Info(ctx)
	if err != nil {
		n.logger.Warn("failed to fetch node info", slog.Any("err", err))
	} else {
		n.mu.Lock()
		n.info = info
		n.mu.Unlock()
	}

	if ready.Resumed {
		go n.manager.restorePlayers(n)
	}

	n.manager.Events.NodeConnect.Emit(NodeConnectEvent{Node: n, Resumed: ready.Resumed})
}

func (n *Node) handleDisconnect(err error) {
	n.mu.Lock()
	destroyed := n.status == NodeStatusDestroyed
	n.conn = nil
	if !destroyed {
		n.status = NodeStatusDisconnected
	}
	n.mu.Unlock()
	if destroyed {
		return
	}

	code := -1
	reason := err.Error()
	if closeErr, ok := err.(*websocket.CloseError); ok {
		code = closeErr.Code
		reason = closeErr.Text
	}
	n.logger.Warn("node disconnected", slog.Int("code", code), slog.String("reason", reason))
	n.manager.Events.NodeDisconnect.Emit(NodeDisconnectEvent{Node: n, Code: code, Reason: reason})

	go n.reconnectLoop()
}

// reconnectLoop retries the connection up to RetryAmount times with
// RetryDelay between attempts. Exhausting the attempts destroys the node.
func (n *Node) reconnectLoop() {
	n.mu.Lock()
	if n.status == NodeStatusDestroyed || n.status == NodeStatusReconnecting {
		n.mu.Unlock()
		return
	}
	n.status = NodeStatusReconnecting
	n.mu.Unlock()

	for attempt := 1; attempt <= n.options.RetryAmount; attempt++ {
		select {
		case <-n.closed:
			return
		case <-time.After(n.options.RetryDelay):
		}
		if n.Status() == NodeStatusDestroyed {
			return
		}

		n.manager.Events.NodeReconnect.Emit(NodeReconnectEvent{Node: n, Attempt: attempt})
		n.logger.Info("reconnecting", slog.Int("attempt", attempt), slog.Int("max", n.options.RetryAmount))

		n.mu.Lock()
		n.status = NodeStatusConnecting
		n.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), n.options.RequestTimeout)
		err := n.Connect(ctx)
		cancel()
		if err == nil {
			return
		}
		n.logger.Warn("reconnect attempt failed", slog.Int("attempt", attempt), slog.Any("err", err))

		n.mu.Lock()
		n.status = NodeStatusReconnecting
		n.mu.Unlock()
	}

	err := newError(ErrNodeReconnectExhausted, "Unable to connect after %d attempts.", n.options.RetryAmount)
	n.manager.Events.NodeError.Emit(NodeErrorEvent{Node: n, Err: err})
	n.Destroy()
}

// Destroy closes the websocket with a normal closure and removes the node
// from its manager. Destroyed nodes never reconnect.
func (n *Node) Destroy() {
	n.closeOnce.Do(func() {
		n.mu.Lock()
		n.status = NodeStatusDestroyed
		conn := n.conn
		n.conn = nil
		n.mu.Unlock()
		close(n.closed)

		if conn != nil {
			message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "destroy")
			_ = conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
			_ = conn.Close()
		}

		n.manager.removeNode(n)
		n.manager.Events.NodeDestroy.Emit(NodeDestroyEvent{Node: n})
	})
}

// requireSession returns the current session id or an error when the node
// has not completed a handshake yet.
func (n *Node) requireSession() (string, error) {
	sessionID := n.SessionID()
	if sessionID == "" {
		return "", newError(ErrNodeSessionMissing, "node %q has no active session", n.options.Identifier)
	}
	return sessionID, nil
}

// penalty ranks the node for least-load routing. Lower is better;
// unconnected nodes rank last.
func (n *Node) penalty() float64 {
	if !n.Connected() {
		return float64(1 << 30)
	}
	stats := n.Stats()
	if stats == nil {
		return 0
	}
	return stats.SystemLoadPercent()
}

// playerCount counts this node's players for least-players routing.
func (n *Node) playerCount() int {
	count := 0
	for _, player := range n.manager.Players() {
		if player.Node() == n {
			count++
		}
	}
	return count
}
