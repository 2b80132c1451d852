package websocket

import (
	"context"
	"errors"
	"time"

	"github.com/chatrtc/internal/models"
	"github.com/chatrtc/internal/service"
	"github.com/rs/zerolog"
)

type inboundEvent struct {
	client *Client
	event  *models.Event
}

// Hub owns the client map and serializes all coordination traffic:
// presence signals, typing indicators and call signaling all pass
// through its single goroutine.
type Hub struct {
	Clients      map[int]*Client
	Register     chan *Client
	Unregister   chan *Client
	Inbound      chan *inboundEvent
	ShutdownChan chan struct{}

	presenceEvents chan models.PresenceEvent
	endedCalls     chan *models.CallSession

	Presence service.PresenceService
	Typing   service.TypingService
	Calls    service.CallService
	Logger   *zerolog.Logger
}

func NewHub(
	presence service.PresenceService,
	typing service.TypingService,
	calls service.CallService,
	logger *zerolog.Logger,
) *Hub {
	h := &Hub{
		Clients:        make(map[int]*Client),
		Register:       make(chan *Client),
		Unregister:     make(chan *Client),
		Inbound:        make(chan *inboundEvent),
		ShutdownChan:   make(chan struct{}),
		presenceEvents: make(chan models.PresenceEvent, 64),
		endedCalls:     make(chan *models.CallSession, 64),
		Presence:       presence,
		Typing:         typing,
		Calls:          calls,
		Logger:         logger,
	}

	// Sweep goroutines publish through these channels so the hub
	// goroutine stays the only writer of the client map. Dropping under
	// backpressure is fine, both signals are advisory.
	presence.Subscribe(func(event models.PresenceEvent) {
		select {
		case h.presenceEvents <- event:
		default:
			h.Logger.Warn().Int("user_id", event.UserID).Msg("Presence event dropped, hub backlogged")
		}
	})
	calls.SubscribeEnded(func(session *models.CallSession) {
		select {
		case h.endedCalls <- session:
		default:
			h.Logger.Warn().Str("call_id", session.CallID).Msg("Call end event dropped, hub backlogged")
		}
	})

	return h
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.handleRegister(client)
		case client := <-h.Unregister:
			h.handleUnregister(client)
		case in := <-h.Inbound:
			h.handleEvent(in.client, in.event)
		case event := <-h.presenceEvents:
			h.handlePresenceEvent(event)
		case session := <-h.endedCalls:
			h.notifyCallEnded(session)
		case <-h.ShutdownChan:
			h.handleShutdown()
			return
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	if old, ok := h.Clients[client.UserID]; ok {
		// Reconnect: the fresh channel replaces the stale one. Any
		// in-progress call is untouched, the session is channel-agnostic.
		close(old.Send)
		old.Conn.Close()
	}
	h.Clients[client.UserID] = client
	h.Presence.Connect(client.UserID)
}

func (h *Hub) handleUnregister(client *Client) {
	if current, ok := h.Clients[client.UserID]; ok && current == client {
		delete(h.Clients, client.UserID)
		close(client.Send)
		h.Presence.Disconnect(client.UserID)
	}
}

func (h *Hub) handleEvent(client *Client, event *models.Event) {
	switch event.Type {
	case models.EventActivity:
		h.Presence.RecordActivity(client.UserID)
	case models.EventHeartbeat:
		h.Presence.Heartbeat(client.UserID)
	case models.EventStatus:
		if err := h.Presence.SetStatus(client.UserID, event.Status); err != nil {
			h.sendError(client.UserID, "", "invalid_status")
		}
	case models.EventTyping:
		h.handleTyping(client, event)
	case models.EventCallInvite:
		h.handleCallInvite(client, event)
	case models.EventCallAccept:
		h.handleCallAccept(client, event)
	case models.EventCallReject:
		h.handleCallTerminal(client, event, h.Calls.Reject)
	case models.EventCallCancel:
		h.handleCallTerminal(client, event, h.Calls.Cancel)
	case models.EventCallHangup:
		h.handleCallTerminal(client, event, h.Calls.Hangup)
	case models.EventCallConnected:
		h.handleCallConnected(client, event)
	case models.EventCallOffer:
		h.handleCallOffer(client, event)
	case models.EventCallAnswer:
		h.handleCallAnswer(client, event)
	case models.EventCallCandidate:
		h.handleCallCandidate(client, event)
	case models.EventCallQuality:
		h.handleCallQuality(client, event)
	case models.EventCallReset:
		h.handleCallReset(client)
	default:
		h.Logger.Debug().Str("type", event.Type).Int("user_id", client.UserID).Msg("Unknown event type")
	}
}

func (h *Hub) handleTyping(client *Client, event *models.Event) {
	h.Typing.RecordTyping(event.ConversationID, client.UserID, event.Typing)

	// Direct conversations carry the peer; fan the indicator out to
	// them when they are connected.
	if event.TargetID != 0 {
		h.send(event.TargetID, &models.Event{
			Type:           models.EventTyping,
			UserID:         client.UserID,
			ConversationID: event.ConversationID,
			Typing:         event.Typing,
			Timestamp:      time.Now(),
		})
	}
}

func (h *Hub) handleCallInvite(client *Client, event *models.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session, superseded, err := h.Calls.Initiate(ctx, client.UserID, event.TargetID)
	if err != nil {
		var denied *service.AuthorizationDeniedError
		switch {
		case errors.As(err, &denied):
			// Expected, user-visible; nothing reaches the recipient.
			h.sendError(client.UserID, "", string(denied.Reason))
		case errors.Is(err, service.ErrUserBusy):
			h.sendError(client.UserID, "", "busy")
		case errors.Is(err, service.ErrInvalidState):
			h.Logger.Debug().Int("user_id", client.UserID).Msg("Duplicate call invite dropped")
		default:
			h.Logger.Error().Err(err).Int("user_id", client.UserID).Msg("Call initiation failed")
			h.sendError(client.UserID, "", "unavailable")
		}
		return
	}

	if superseded != nil {
		h.notifyCallEnded(superseded)
	}

	if session.InitiatorID == client.UserID {
		h.send(session.RecipientID, &models.Event{
			Type:      models.EventCallInvite,
			UserID:    client.UserID,
			CallID:    session.CallID,
			Payload:   event.Payload,
			Timestamp: time.Now(),
		})
		return
	}

	// Glare: the caller was the polite peer and its attempt rolled
	// back. Present the surviving session to it as incoming.
	h.send(client.UserID, &models.Event{
		Type:      models.EventCallInvite,
		UserID:    session.InitiatorID,
		CallID:    session.CallID,
		Timestamp: time.Now(),
	})
}

func (h *Hub) handleCallAccept(client *Client, event *models.Event) {
	session, err := h.Calls.Accept(event.CallID, client.UserID)
	if err != nil {
		h.dropLateEvent(client, event, err)
		return
	}
	h.send(session.InitiatorID, &models.Event{
		Type:      models.EventCallAccept,
		UserID:    client.UserID,
		CallID:    session.CallID,
		Payload:   event.Payload,
		Timestamp: time.Now(),
	})
}

func (h *Hub) handleCallTerminal(client *Client, event *models.Event, apply func(string, int) (*models.CallSession, error)) {
	session, err := apply(event.CallID, client.UserID)
	if err != nil {
		h.dropLateEvent(client, event, err)
		return
	}
	h.notifyCallEndedTo(session.Peer(client.UserID), session)
}

func (h *Hub) handleCallConnected(client *Client, event *models.Event) {
	session, err := h.Calls.MarkConnected(event.CallID, client.UserID)
	if err != nil {
		h.dropLateEvent(client, event, err)
		return
	}
	h.send(session.Peer(client.UserID), &models.Event{
		Type:      models.EventCallConnected,
		UserID:    client.UserID,
		CallID:    session.CallID,
		CallState: session.State,
		Timestamp: time.Now(),
	})
}

func (h *Hub) handleCallOffer(client *Client, event *models.Event) {
	relay, err := h.Calls.HandleOffer(event.CallID, client.UserID)
	if err != nil {
		h.dropLateEvent(client, event, err)
		return
	}
	if !relay {
		h.Logger.Debug().Str("call_id", event.CallID).Int("user_id", client.UserID).Msg("Glare offer from polite peer ignored")
		return
	}
	h.relaySignal(client, event)
}

func (h *Hub) handleCallAnswer(client *Client, event *models.Event) {
	if err := h.Calls.HandleAnswer(event.CallID, client.UserID); err != nil {
		h.dropLateEvent(client, event, err)
		return
	}
	h.relaySignal(client, event)
}

func (h *Hub) handleCallCandidate(client *Client, event *models.Event) {
	if err := h.Calls.AllowSignal(event.CallID, client.UserID); err != nil {
		h.dropLateEvent(client, event, err)
		return
	}
	h.relaySignal(client, event)
}

func (h *Hub) handleCallQuality(client *Client, event *models.Event) {
	session, err := h.Calls.ReportQuality(event.CallID, client.UserID, event.Quality, event.RTTMillis)
	if err != nil {
		h.dropLateEvent(client, event, err)
		return
	}
	h.send(session.Peer(client.UserID), &models.Event{
		Type:      models.EventCallQuality,
		UserID:    client.UserID,
		CallID:    session.CallID,
		CallState: session.State,
		Quality:   event.Quality,
		RTTMillis: event.RTTMillis,
		Timestamp: time.Now(),
	})
}

func (h *Hub) handleCallReset(client *Client) {
	for _, session := range h.Calls.Reset(client.UserID) {
		h.notifyCallEndedTo(session.Peer(client.UserID), session)
	}
}

// relaySignal forwards an opaque signaling payload to the session peer.
func (h *Hub) relaySignal(client *Client, event *models.Event) {
	session, ok := h.Calls.Session(event.CallID)
	if !ok {
		return
	}
	h.send(session.Peer(client.UserID), &models.Event{
		Type:      event.Type,
		UserID:    client.UserID,
		CallID:    event.CallID,
		Payload:   event.Payload,
		Timestamp: time.Now(),
	})
}

func (h *Hub) notifyCallEnded(session *models.CallSession) {
	h.notifyCallEndedTo(session.InitiatorID, session)
	h.notifyCallEndedTo(session.RecipientID, session)
}

func (h *Hub) notifyCallEndedTo(userID int, session *models.CallSession) {
	h.send(userID, &models.Event{
		Type:           models.EventCallEnded,
		CallID:         session.CallID,
		Reason:         string(session.EndReason),
		DurationMillis: session.Duration().Milliseconds(),
		Timestamp:      time.Now(),
	})
}

// handlePresenceEvent fans a status change out to connected observers
// permitted by the target's visibility list. Denied observers get
// nothing at all, not even an offline placeholder, so the event's
// timing leaks nothing.
func (h *Hub) handlePresenceEvent(event models.PresenceEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for userID := range h.Clients {
		if userID == event.UserID {
			continue
		}
		if !h.Presence.CanObserve(ctx, event.UserID, userID) {
			continue
		}
		h.send(userID, &models.Event{
			Type:      models.EventPresence,
			UserID:    event.UserID,
			Status:    event.NewStatus,
			Timestamp: event.Timestamp,
		})
	}
}

func (h *Hub) dropLateEvent(client *Client, event *models.Event, err error) {
	if errors.Is(err, service.ErrInvalidState) || errors.Is(err, service.ErrSessionNotFound) {
		h.Logger.Debug().
			Str("type", event.Type).
			Str("call_id", event.CallID).
			Int("user_id", client.UserID).
			Msg("Late call event dropped")
		return
	}
	h.Logger.Error().Err(err).Str("type", event.Type).Int("user_id", client.UserID).Msg("Call event failed")
}

func (h *Hub) sendError(userID int, callID, reason string) {
	h.send(userID, &models.Event{
		Type:      models.EventError,
		CallID:    callID,
		Reason:    reason,
		Timestamp: time.Now(),
	})
}

func (h *Hub) send(userID int, event *models.Event) {
	client, ok := h.Clients[userID]
	if !ok {
		return
	}
	select {
	case client.Send <- event:
	default:
		// Same cleanup as an unregister: the disconnect stamps
		// lastSeenAt now instead of waiting for the heartbeat monitor.
		close(client.Send)
		delete(h.Clients, client.UserID)
		h.Presence.Disconnect(client.UserID)
	}
}

func (h *Hub) handleShutdown() {
	for _, client := range h.Clients {
		close(client.Send)
		shutdownEvent := &models.Event{
			Type:      models.EventSystem,
			Content:   "Server is shutting down",
			Timestamp: time.Now(),
		}
		client.Conn.WriteJSON(shutdownEvent)
		client.Conn.Close()
		h.Presence.Disconnect(client.UserID)
	}
}

func (h *Hub) Shutdown() {
	close(h.ShutdownChan)
}
