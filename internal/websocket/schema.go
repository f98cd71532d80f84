package websocket

import "time"

// Actions (client to server).

type Action string

const (
	ActionPing     Action = "ping"
	ActionSnapshot Action = "snapshot"
)

// RequestPayload is the single client message shape. Action selects the
// behavior; unused fields stay empty.
type RequestPayload struct {
	Action Action `json:"action"`
	CaseID string `json:"case_id,omitempty"`
}

// Events (server to client).

type Event string

const (
	EventError    Event = "error"
	EventPong     Event = "pong"
	EventSessions Event = "sessions"
)

// SessionTick is one active session's countdown entry.
type SessionTick struct {
	SessionID        string    `json:"session_id"`
	CaseID           string    `json:"case_id"`
	ExpiresAt        time.Time `json:"expires_at"`
	RemainingSeconds int64     `json:"remaining_seconds"`
}

// SessionsResponse is the periodic countdown snapshot.
type SessionsResponse struct {
	Event    Event         `json:"event"`
	Sessions []SessionTick `json:"sessions"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
