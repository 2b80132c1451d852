package models

import "time"

type CallState string

const (
	CallStateOutgoing     CallState = "outgoing"
	CallStateIncoming     CallState = "incoming"
	CallStateConnecting   CallState = "connecting"
	CallStateConnected    CallState = "connected"
	CallStateReconnecting CallState = "reconnecting"
	CallStateEnded        CallState = "ended"
)

type CallRole string

const (
	RolePolite   CallRole = "polite"
	RoleImpolite CallRole = "impolite"
)

type EndReason string

const (
	EndReasonDeclined   EndReason = "declined"
	EndReasonCanceled   EndReason = "canceled"
	EndReasonHangup     EndReason = "hangup"
	EndReasonNetwork    EndReason = "network"
	EndReasonSuperseded EndReason = "superseded"
	EndReasonReset      EndReason = "reset"
)

type QualitySample struct {
	Level     int       `json:"level"` // 1 (worst) to 4 (best)
	RTTMillis int       `json:"rtt_ms"`
	SampledAt time.Time `json:"sampled_at"`
}

type CallSession struct {
	CallID      string         `json:"call_id"`
	InitiatorID int            `json:"initiator_id"`
	RecipientID int            `json:"recipient_id"`
	State       CallState      `json:"state"`
	StartedAt   time.Time      `json:"started_at"`
	ConnectedAt time.Time      `json:"connected_at,omitempty"`
	EndedAt     time.Time      `json:"ended_at,omitempty"`
	EndReason   EndReason      `json:"end_reason,omitempty"`
	LastQuality *QualitySample `json:"last_quality,omitempty"`
}

func (s *CallSession) Terminal() bool {
	return s.State == CallStateEnded
}

func (s *CallSession) Participant(userID int) bool {
	return userID == s.InitiatorID || userID == s.RecipientID
}

// Peer returns the other party of the session.
func (s *CallSession) Peer(userID int) int {
	if userID == s.InitiatorID {
		return s.RecipientID
	}
	return s.InitiatorID
}

// StateFor maps the session state to the given participant's
// perspective: the pre-accept phase is "outgoing" for the initiator and
// "incoming" for the recipient.
func (s *CallSession) StateFor(userID int) CallState {
	if s.State == CallStateOutgoing && userID == s.RecipientID {
		return CallStateIncoming
	}
	return s.State
}

// Duration is the connected time of the call, zero if it never
// connected.
func (s *CallSession) Duration() time.Duration {
	if s.ConnectedAt.IsZero() {
		return 0
	}
	end := s.EndedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.ConnectedAt)
}
