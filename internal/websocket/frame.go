package websocket

import "encoding/json"

// Frame actions sent by subscribers.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// Frame is the single message shape on the realtime connection. Clients send
// Action+Topic; the hub sends Topic+Data.
type Frame struct {
	Action string          `json:"action,omitempty"`
	Topic  string          `json:"topic"`
	Data   json.RawMessage `json:"data,omitempty"`
}
