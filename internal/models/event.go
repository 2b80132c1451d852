package models

import (
	"encoding/json"
	"time"
)

// Event types carried over the realtime channel.
const (
	EventActivity  = "activity"
	EventHeartbeat = "heartbeat"
	EventStatus    = "status"
	EventPresence  = "presence"
	EventTyping    = "typing"

	EventCallInvite    = "call_invite"
	EventCallAccept    = "call_accept"
	EventCallReject    = "call_reject"
	EventCallCancel    = "call_cancel"
	EventCallHangup    = "call_hangup"
	EventCallConnected = "call_connected"
	EventCallOffer     = "call_offer"
	EventCallAnswer    = "call_answer"
	EventCallCandidate = "call_candidate"
	EventCallQuality   = "call_quality"
	EventCallReset     = "call_reset"
	EventCallEnded     = "call_ended"

	EventError  = "error"
	EventSystem = "system"
)

// Event is the envelope for everything on the websocket channel.
// UserID is always overwritten server-side with the authenticated
// sender; clients cannot speak for other users.
type Event struct {
	Type           string          `json:"type"`
	UserID         int             `json:"user_id,omitempty"`
	TargetID       int             `json:"target_id,omitempty"`
	ConversationID int             `json:"conversation_id,omitempty"`
	CallID         string          `json:"call_id,omitempty"`
	Status         Status          `json:"status,omitempty"`
	CallState      CallState       `json:"call_state,omitempty"`
	Typing         bool            `json:"typing,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Quality        int             `json:"quality,omitempty"`
	RTTMillis      int             `json:"rtt_ms,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	DurationMillis int64           `json:"duration_ms,omitempty"`
	Content        string          `json:"content,omitempty"`
	Timestamp      time.Time       `json:"timestamp,omitempty"`
}
