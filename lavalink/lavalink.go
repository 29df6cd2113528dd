// Package lavalink contains the wire types spoken by a Lavalink v4 node:
// tracks, WebSocket messages, REST payloads, filters and statistics.
// It performs no I/O; the client runtime lives in package lavaflow.
package lavalink

import (
	"fmt"
	"strconv"
	"time"
)

// Duration is a millisecond duration as transmitted by the node.
type Duration int64

// Duration units.
const (
	Millisecond Duration = 1
	Second               = 60 * Millisecond * 1000 / 60
	Minute               = 60 * Second
	Hour                 = 60 * Minute
	Day                  = 24 * Hour
)

// Milliseconds returns the duration as an integer millisecond count.
func (d Duration) Milliseconds() int64 {
	return int64(d)
}

// ToTime converts the duration to a time.Duration.
func (d Duration) ToTime() time.Duration {
	return time.Duration(d) * time.Millisecond
}

// DurationFrom converts a time.Duration to a wire Duration.
func DurationFrom(d time.Duration) Duration {
	return Duration(d.Milliseconds())
}

func (d Duration) String() string {
	if d < 0 {
		return "LIVE"
	}
	hours := d / Hour
	minutes := d % Hour / Minute
	seconds := d % Minute / Second
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// Timestamp is a Unix millisecond timestamp as transmitted by the node.
type Timestamp int64

// Time converts the timestamp to a time.Time.
func (t Timestamp) Time() time.Time {
	return time.UnixMilli(int64(t))
}

func (t Timestamp) String() string {
	return strconv.FormatInt(int64(t), 10)
}

// Now returns the current time as a wire Timestamp.
func Now() Timestamp {
	return Timestamp(time.Now().UnixMilli())
}
