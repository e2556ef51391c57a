package realtime

import (
	"encoding/json"
	"strings"
)

// Event names on the wire.
const (
	EventConnected        = "connected"
	EventJoin             = "join"
	EventLeave            = "leave"
	EventJoined           = "joined"
	EventLeft             = "left"
	EventError            = "error"
	EventPredictionResult = "prediction_result"
)

// Message is one JSON frame in either direction.
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// roomPayload accepts both spellings browsers send the correlation id with.
type roomPayload struct {
	SessionID      string `json:"sessionId"`
	SessionIDSnake string `json:"session_id"`
}

func (p roomPayload) room() string {
	if s := strings.TrimSpace(p.SessionID); s != "" {
		return s
	}
	return strings.TrimSpace(p.SessionIDSnake)
}

func encode(event string, data interface{}) ([]byte, error) {
	return json.Marshal(Message{Event: event, Data: data})
}

func errorFrame(msg string) []byte {
	b, _ := encode(EventError, map[string]string{"message": msg})
	return b
}
