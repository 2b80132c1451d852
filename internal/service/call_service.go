package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chatrtc/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidState marks a signaling event that does not apply to
	// the session's current state. Late and duplicate network events
	// land here; callers drop them silently.
	ErrInvalidState = errors.New("call event does not apply to session state")

	ErrSessionNotFound = errors.New("call session not found")

	// ErrUserBusy rejects an initiation while either party already has
	// a non-terminal session with someone else.
	ErrUserBusy = errors.New("user already has an active call")
)

// AssignRoles deterministically splits a pair into the polite and the
// impolite negotiation peer. Both ends compute the identical assignment
// from the pair alone, with no coordination round-trip: the smaller
// user ID is polite.
func AssignRoles(a, b int) (polite, impolite int) {
	if a < b {
		return a, b
	}
	return b, a
}

// RoleOf returns the negotiation role of userID within the (userID,
// otherID) pair.
func RoleOf(userID, otherID int) models.CallRole {
	polite, _ := AssignRoles(userID, otherID)
	if userID == polite {
		return models.RolePolite
	}
	return models.RoleImpolite
}

// CallService is the authoritative registry of call sessions and their
// lifecycle. Sessions are created only after the signaling gate
// authorizes the pair; creation happens under the registry lock so an
// unauthorized or conflicting session is never observable. A user has
// at most one non-terminal session at a time.
type CallService interface {
	// Initiate runs the authorization gate and admits a new outgoing
	// session. On glare (the recipient has a simultaneous outgoing
	// session to the caller) the attempts converge deterministically:
	// a polite caller adopts the existing session and no new one is
	// created; an impolite caller supersedes it. The superseded
	// session, if any, is returned alongside.
	Initiate(ctx context.Context, callerID, recipientID int) (session, superseded *models.CallSession, err error)
	Accept(callID string, userID int) (*models.CallSession, error)
	Reject(callID string, userID int) (*models.CallSession, error)
	Cancel(callID string, userID int) (*models.CallSession, error)
	Hangup(callID string, userID int) (*models.CallSession, error)
	// MarkConnected records media-path establishment.
	MarkConnected(callID string, userID int) (*models.CallSession, error)

	// HandleOffer applies the glare rule to a renegotiation offer and
	// reports whether it should be relayed: a conflicting offer from
	// the polite peer is ignored, one from the impolite peer wins.
	HandleOffer(callID string, fromUserID int) (bool, error)
	HandleAnswer(callID string, fromUserID int) error
	// AllowSignal guards opaque payload relay (ICE candidates).
	AllowSignal(callID string, userID int) error

	// ReportQuality records an advisory sample and applies the quality
	// threshold rule between connected and reconnecting.
	ReportQuality(callID string, userID int, level, rttMillis int) (*models.CallSession, error)

	// Reset discards any session the user participates in, terminal or
	// not, and returns the ones that were still live.
	Reset(userID int) []*models.CallSession

	Session(callID string) (*models.CallSession, bool)
	ActiveSessionFor(userID int) (*models.CallSession, bool)

	// SubscribeEnded registers an observer for sessions ended by the
	// background grace sweep. Must be called before Start.
	SubscribeEnded(fn func(*models.CallSession))
	Start()
	Stop()
}

type callEntry struct {
	session           models.CallSession
	pendingOfferFrom  int
	reconnectingSince time.Time
}

type callService struct {
	mu       sync.Mutex
	sessions map[string]*callEntry
	byUser   map[int]string // userID -> callID of the non-terminal session

	gate           SignalGate
	reconnectGrace time.Duration
	qualityFloor   int

	onEnded []func(*models.CallSession)
	done    chan struct{}
	logger  *zerolog.Logger
}

type CallPolicy struct {
	ReconnectGrace time.Duration
	// QualityFloor is the highest quality level (1-4) that still counts
	// as unusable: samples at or below it trip connected into
	// reconnecting.
	QualityFloor int
}

func NewCallService(gate SignalGate, policy CallPolicy, logger *zerolog.Logger) CallService {
	return &callService{
		sessions:       make(map[string]*callEntry),
		byUser:         make(map[int]string),
		gate:           gate,
		reconnectGrace: policy.ReconnectGrace,
		qualityFloor:   policy.QualityFloor,
		done:           make(chan struct{}),
		logger:         logger,
	}
}

func (s *callService) Initiate(ctx context.Context, callerID, recipientID int) (*models.CallSession, *models.CallSession, error) {
	authz, err := s.gate.CanSignalCall(ctx, callerID, recipientID)
	if err != nil {
		return nil, nil, err
	}
	if !authz.Allowed {
		return nil, nil, &AuthorizationDeniedError{Reason: authz.Reason}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var superseded *models.CallSession
	if existingID, ok := s.byUser[callerID]; ok {
		existing := s.sessions[existingID]
		if existing.session.Peer(callerID) != recipientID {
			return nil, nil, ErrUserBusy
		}
		if existing.session.InitiatorID == callerID {
			// Duplicate invite for an attempt already in flight.
			return nil, nil, ErrInvalidState
		}
		if existing.session.State != models.CallStateOutgoing {
			// The pair already progressed past ringing.
			return nil, nil, ErrUserBusy
		}
		// Glare: both sides initiated at once. The polite caller rolls
		// its attempt back and adopts the peer's session; the impolite
		// caller's offer supersedes it.
		if polite, _ := AssignRoles(callerID, recipientID); callerID == polite {
			session := existing.session
			return &session, nil, nil
		}
		s.endLocked(existing, models.EndReasonSuperseded)
		session := existing.session
		superseded = &session
	} else if otherID, ok := s.byUser[recipientID]; ok && s.sessions[otherID].session.Peer(recipientID) != callerID {
		return nil, nil, ErrUserBusy
	}

	entry := &callEntry{session: models.CallSession{
		CallID:      uuid.NewString(),
		InitiatorID: callerID,
		RecipientID: recipientID,
		State:       models.CallStateOutgoing,
		StartedAt:   time.Now(),
	}}
	s.sessions[entry.session.CallID] = entry
	s.byUser[callerID] = entry.session.CallID
	s.byUser[recipientID] = entry.session.CallID

	session := entry.session
	return &session, superseded, nil
}

func (s *callService) Accept(callID string, userID int) (*models.CallSession, error) {
	return s.transition(callID, func(entry *callEntry) error {
		if userID != entry.session.RecipientID || entry.session.State != models.CallStateOutgoing {
			return ErrInvalidState
		}
		entry.session.State = models.CallStateConnecting
		return nil
	})
}

func (s *callService) Reject(callID string, userID int) (*models.CallSession, error) {
	return s.transition(callID, func(entry *callEntry) error {
		if userID != entry.session.RecipientID || entry.session.State != models.CallStateOutgoing {
			return ErrInvalidState
		}
		s.endLocked(entry, models.EndReasonDeclined)
		return nil
	})
}

func (s *callService) Cancel(callID string, userID int) (*models.CallSession, error) {
	return s.transition(callID, func(entry *callEntry) error {
		if userID != entry.session.InitiatorID || entry.session.State != models.CallStateOutgoing {
			return ErrInvalidState
		}
		s.endLocked(entry, models.EndReasonCanceled)
		return nil
	})
}

func (s *callService) Hangup(callID string, userID int) (*models.CallSession, error) {
	return s.transition(callID, func(entry *callEntry) error {
		if !entry.session.Participant(userID) || entry.session.Terminal() {
			return ErrInvalidState
		}
		s.endLocked(entry, models.EndReasonHangup)
		return nil
	})
}

func (s *callService) MarkConnected(callID string, userID int) (*models.CallSession, error) {
	return s.transition(callID, func(entry *callEntry) error {
		if !entry.session.Participant(userID) {
			return ErrInvalidState
		}
		switch entry.session.State {
		case models.CallStateConnecting, models.CallStateReconnecting:
			entry.session.State = models.CallStateConnected
			entry.reconnectingSince = time.Time{}
			if entry.session.ConnectedAt.IsZero() {
				entry.session.ConnectedAt = time.Now()
			}
			return nil
		default:
			return ErrInvalidState
		}
	})
}

func (s *callService) HandleOffer(callID string, fromUserID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[callID]
	if !ok {
		return false, ErrSessionNotFound
	}
	if !entry.session.Participant(fromUserID) || entry.session.Terminal() {
		return false, ErrInvalidState
	}

	if entry.pendingOfferFrom != 0 && entry.pendingOfferFrom != fromUserID {
		// Conflicting simultaneous offers. The impolite peer's offer
		// wins; the polite peer's is dropped and the polite side rolls
		// back when the winning offer reaches it.
		if RoleOf(fromUserID, entry.session.Peer(fromUserID)) == models.RolePolite {
			return false, nil
		}
	}
	entry.pendingOfferFrom = fromUserID
	return true, nil
}

func (s *callService) HandleAnswer(callID string, fromUserID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[callID]
	if !ok {
		return ErrSessionNotFound
	}
	if !entry.session.Participant(fromUserID) || entry.session.Terminal() {
		return ErrInvalidState
	}
	entry.pendingOfferFrom = 0
	return nil
}

func (s *callService) AllowSignal(callID string, userID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[callID]
	if !ok {
		return ErrSessionNotFound
	}
	if !entry.session.Participant(userID) || entry.session.Terminal() {
		return ErrInvalidState
	}
	return nil
}

func (s *callService) ReportQuality(callID string, userID int, level, rttMillis int) (*models.CallSession, error) {
	return s.transition(callID, func(entry *callEntry) error {
		if !entry.session.Participant(userID) {
			return ErrInvalidState
		}
		switch entry.session.State {
		case models.CallStateConnected, models.CallStateReconnecting:
		default:
			return ErrInvalidState
		}

		entry.session.LastQuality = &models.QualitySample{
			Level:     level,
			RTTMillis: rttMillis,
			SampledAt: time.Now(),
		}

		if entry.session.State == models.CallStateConnected && level <= s.qualityFloor {
			entry.session.State = models.CallStateReconnecting
			entry.reconnectingSince = time.Now()
		} else if entry.session.State == models.CallStateReconnecting && level > s.qualityFloor {
			entry.session.State = models.CallStateConnected
			entry.reconnectingSince = time.Time{}
		}
		return nil
	})
}

func (s *callService) Reset(userID int) []*models.CallSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ended []*models.CallSession
	if callID, ok := s.byUser[userID]; ok {
		entry := s.sessions[callID]
		s.endLocked(entry, models.EndReasonReset)
		session := entry.session
		ended = append(ended, &session)
	}
	return ended
}

func (s *callService) Session(callID string) (*models.CallSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[callID]
	if !ok {
		return nil, false
	}
	session := entry.session
	return &session, true
}

func (s *callService) ActiveSessionFor(userID int) (*models.CallSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	callID, ok := s.byUser[userID]
	if !ok {
		return nil, false
	}
	session := s.sessions[callID].session
	return &session, true
}

func (s *callService) SubscribeEnded(fn func(*models.CallSession)) {
	s.onEnded = append(s.onEnded, fn)
}

func (s *callService) Start() {
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweepGrace()
			case <-s.done:
				return
			}
		}
	}()
}

func (s *callService) Stop() {
	close(s.done)
}

// sweepGrace ends sessions stuck in reconnecting past the grace period
// and drops terminal sessions from the registry.
func (s *callService) sweepGrace() {
	now := time.Now()
	var expired []*models.CallSession

	s.mu.Lock()
	for callID, entry := range s.sessions {
		if entry.session.State == models.CallStateReconnecting &&
			now.Sub(entry.reconnectingSince) >= s.reconnectGrace {
			s.endLocked(entry, models.EndReasonNetwork)
			session := entry.session
			expired = append(expired, &session)
		}
		if entry.session.Terminal() {
			delete(s.sessions, callID)
		}
	}
	s.mu.Unlock()

	for _, session := range expired {
		for _, fn := range s.onEnded {
			fn(session)
		}
	}
}

func (s *callService) transition(callID string, apply func(*callEntry) error) (*models.CallSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[callID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if err := apply(entry); err != nil {
		return nil, err
	}
	session := entry.session
	return &session, nil
}

// endLocked moves a session to its terminal state and frees both
// participants for a fresh attempt. The registry entry itself is kept
// until the sweep so late events resolve to ErrInvalidState instead of
// ErrSessionNotFound.
func (s *callService) endLocked(entry *callEntry, reason models.EndReason) {
	if entry.session.Terminal() {
		return
	}
	entry.session.State = models.CallStateEnded
	entry.session.EndReason = reason
	entry.session.EndedAt = time.Now()
	entry.pendingOfferFrom = 0

	if s.byUser[entry.session.InitiatorID] == entry.session.CallID {
		delete(s.byUser, entry.session.InitiatorID)
	}
	if s.byUser[entry.session.RecipientID] == entry.session.CallID {
		delete(s.byUser, entry.session.RecipientID)
	}
}
