package lavaflow

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable machine-readable error identifier. Every code maps
// to a numeric identifier in a fixed per-component range.
type ErrorCode string

const (
	// General: 1000-1099.
	ErrInvalidConfig   ErrorCode = "LF_INVALID_CONFIG"
	ErrInvalidArgument ErrorCode = "LF_INVALID_ARGUMENT"
	ErrInvalidState    ErrorCode = "LF_INVALID_STATE"
	ErrNotAvailable    ErrorCode = "LF_NOT_AVAILABLE"

	// Manager: 1100-1199.
	ErrManagerNotInitiated ErrorCode = "LF_MANAGER_NOT_INITIATED"
	ErrNoUseableNode       ErrorCode = "LF_NO_USEABLE_NODE"
	ErrPlayerNotFound      ErrorCode = "LF_PLAYER_NOT_FOUND"
	ErrNodeNotFound        ErrorCode = "LF_NODE_NOT_FOUND"

	// Node: 1200-1299.
	ErrNodeConnectFailed      ErrorCode = "LF_NODE_CONNECT_FAILED"
	ErrNodeReconnectExhausted ErrorCode = "LF_NODE_RECONNECT_EXHAUSTED"
	ErrNodeProtocolError      ErrorCode = "LF_NODE_PROTOCOL_ERROR"
	ErrNodeSessionMissing     ErrorCode = "LF_NODE_SESSION_MISSING"

	// Player: 1300-1399.
	ErrNoCurrentTrack       ErrorCode = "LF_NO_CURRENT_TRACK"
	ErrNoPreviousTrack      ErrorCode = "LF_NO_PREVIOUS_TRACK"
	ErrVoiceChannelMissing  ErrorCode = "LF_VOICE_CHANNEL_MISSING"
	ErrVoiceStateIncomplete ErrorCode = "LF_VOICE_STATE_INCOMPLETE"
	ErrRepeatConflict       ErrorCode = "LF_REPEAT_CONFLICT"

	// Queue: 1400-1499.
	ErrQueueEmpty ErrorCode = "LF_QUEUE_EMPTY"
	ErrOutOfRange ErrorCode = "LF_OUT_OF_RANGE"

	// Filters: 1500-1599.
	ErrInvalidFilter ErrorCode = "LF_INVALID_FILTER"

	// REST: 1600-1699.
	ErrRESTRequestFailed ErrorCode = "LF_REST_REQUEST_FAILED"
	ErrRESTUnauthorized  ErrorCode = "LF_REST_UNAUTHORIZED"

	// Utils: 1700-1799.
	ErrTrackBuildFailed ErrorCode = "LF_TRACK_BUILD_FAILED"

	// Plugins: 1800-1899.
	ErrSponsorBlockMissing ErrorCode = "LF_SPONSORBLOCK_MISSING"
	ErrLyricsPluginMissing ErrorCode = "LF_LYRICS_PLUGIN_MISSING"
	ErrPluginLoadFailed    ErrorCode = "LF_PLUGIN_LOAD_FAILED"
)

var errorNums = map[ErrorCode]int{
	ErrInvalidConfig:   1000,
	ErrInvalidArgument: 1001,
	ErrInvalidState:    1002,
	ErrNotAvailable:    1003,

	ErrManagerNotInitiated: 1100,
	ErrNoUseableNode:       1101,
	ErrPlayerNotFound:      1102,
	ErrNodeNotFound:        1103,

	ErrNodeConnectFailed:      1200,
	ErrNodeReconnectExhausted: 1201,
	ErrNodeProtocolError:      1202,
	ErrNodeSessionMissing:     1203,

	ErrNoCurrentTrack:       1300,
	ErrNoPreviousTrack:      1301,
	ErrVoiceChannelMissing:  1302,
	ErrVoiceStateIncomplete: 1303,
	ErrRepeatConflict:       1304,

	ErrQueueEmpty: 1400,
	ErrOutOfRange: 1401,

	ErrInvalidFilter: 1500,

	ErrRESTRequestFailed: 1600,
	ErrRESTUnauthorized:  1601,

	ErrTrackBuildFailed: 1700,

	ErrSponsorBlockMissing: 1800,
	ErrLyricsPluginMissing: 1801,
	ErrPluginLoadFailed:    1802,
}

// Num returns the stable numeric identifier of the code, or 0 for unknown
// codes.
func (c ErrorCode) Num() int {
	return errorNums[c]
}

// Error is the error type returned by all lavaflow operations.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%d): %s: %s", e.Code, e.Code.Num(), e.Message, e.Err)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Code.Num(), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors by code so callers can use errors.Is with a bare
// &Error{Code: …} target.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

func newError(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

func wrapError(code ErrorCode, err error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// CodeOf extracts the ErrorCode from err, or "" if err is not a lavaflow
// error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
