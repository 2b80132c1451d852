package models

import "time"

type Status string

const (
	StatusOnline    Status = "online"
	StatusAway      Status = "away"
	StatusDND       Status = "dnd"
	StatusInvisible Status = "invisible"
	StatusOffline   Status = "offline"
)

// Settable reports whether a user may explicitly set this status.
// "offline" is derived from connection state, never set directly.
func (s Status) Settable() bool {
	switch s {
	case StatusOnline, StatusAway, StatusDND, StatusInvisible:
		return true
	}
	return false
}

type PresenceRecord struct {
	UserID         int       `json:"user_id"`
	Status         Status    `json:"status"`
	LastActivityAt time.Time `json:"last_activity_at"`
	LastSeenAt     time.Time `json:"last_seen_at"`
}

// VisibleStatus is the view of a user's presence after visibility
// filtering. LastSeen is nil whenever the viewer is not permitted to
// observe the target.
type VisibleStatus struct {
	UserID   int        `json:"user_id"`
	Status   Status     `json:"status"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

type PresenceEvent struct {
	UserID    int       `json:"user_id"`
	OldStatus Status    `json:"old_status"`
	NewStatus Status    `json:"new_status"`
	Timestamp time.Time `json:"timestamp"`
}

type VisibilityList struct {
	OwnerID int   `json:"owner_id"`
	Viewers []int `json:"viewers"`
}

type StatusUpdateRequest struct {
	Status Status `json:"status"`
}

type BatchStatusRequest struct {
	UserIDs []int `json:"user_ids"`
}

type VisibilityUpdateRequest struct {
	Viewers []int `json:"viewers"`
}
