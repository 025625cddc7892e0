package rtstore

import "encoding/json"

// Wire messages for the websocket sync transport between the panel server
// (which hosts the store) and remote consumers (the agent, other panels).
// The transport authenticates the socket once at upgrade time; every
// operation on the socket then runs under that identity.

// Client operation types
const (
	OpSubscribe = "subscribe"
	OpGet       = "get"
	OpSet       = "set"
	OpUpdate    = "update"
	OpCreate    = "create"
)

// Server message types
const (
	MsgEvent  = "event"
	MsgResult = "result"
	MsgError  = "error"
)

// ClientMessage is an operation sent by a sync client.
type ClientMessage struct {
	// Type is one of the Op* constants
	Type string `json:"type"`

	// Seq correlates the server's result/error reply with this request
	Seq int64 `json:"seq"`

	// Path is the store path the operation targets
	Path string `json:"path"`

	// Value carries the payload for set/update/create
	Value json.RawMessage `json:"value,omitempty"`
}

// ServerMessage is a reply or push from the sync server.
type ServerMessage struct {
	// Type is one of the Msg* constants
	Type string `json:"type"`

	// Seq echoes the request sequence for result/error; 0 for pushed events
	Seq int64 `json:"seq,omitempty"`

	// Path and Value carry event payloads and get results
	Path  string `json:"path,omitempty"`
	Value any    `json:"value,omitempty"`

	// Timestamp is the store write stamp for events (epoch millis)
	Timestamp int64 `json:"timestamp,omitempty"`

	// Error holds the failure reason for error replies
	Error string `json:"error,omitempty"`
}
