// Package lavaflow orchestrates guild players against remote Lavalink v4
// audio nodes: it owns the node pool and websocket lifecycles, routes
// players to nodes, mirrors playback state pushed by the nodes, and
// persists enough state to survive restarts. The host application keeps
// the chat gateway socket and exchanges voice payloads with the manager
// through callbacks.
package lavaflow

// Version is reported to nodes in the Client-Name handshake header.
const Version = "1.0.0"
