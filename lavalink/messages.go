package lavalink

import (
	"fmt"

	"github.com/disgoorg/json"
	"github.com/disgoorg/snowflake/v2"
)

// Op identifies a WebSocket frame kind.
type Op string

const (
	OpReady        Op = "ready"
	OpStats        Op = "stats"
	OpPlayerUpdate Op = "playerUpdate"
	OpEvent        Op = "event"
)

// Message is a single decoded WebSocket frame.
type Message interface {
	Op() Op
}

// ReadyMessage is sent by the node once the WebSocket handshake completed.
type ReadyMessage struct {
	Resumed   bool   `json:"resumed"`
	SessionID string `json:"sessionId"`
}

func (ReadyMessage) Op() Op { return OpReady }

// PlayerUpdateMessage carries the periodic player position report.
type PlayerUpdateMessage struct {
	GuildID snowflake.ID `json:"guildId"`
	State   PlayerState  `json:"state"`
}

func (PlayerUpdateMessage) Op() Op { return OpPlayerUpdate }

// PlayerState is the node-side view of a player.
type PlayerState struct {
	Time      Timestamp `json:"time"`
	Position  Duration  `json:"position"`
	Connected bool      `json:"connected"`
	Ping      int       `json:"ping"`
}

// StatsMessage carries node statistics; it shares its shape with Stats.
type StatsMessage Stats

func (StatsMessage) Op() Op { return OpStats }

// UnmarshalMessage decodes a raw WebSocket frame into its typed message.
func UnmarshalMessage(data []byte) (Message, error) {
	var envelope struct {
		Op Op `json:"op"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}

	switch envelope.Op {
	case OpReady:
		var message ReadyMessage
		if err := json.Unmarshal(data, &message); err != nil {
			return nil, err
		}
		return message, nil
	case OpStats:
		var message StatsMessage
		if err := json.Unmarshal(data, &message); err != nil {
			return nil, err
		}
		return message, nil
	case OpPlayerUpdate:
		var message PlayerUpdateMessage
		if err := json.Unmarshal(data, &message); err != nil {
			return nil, err
		}
		return message, nil
	case OpEvent:
		return UnmarshalEvent(data)
	default:
		return nil, fmt.Errorf("unknown op: %s", envelope.Op)
	}
}
