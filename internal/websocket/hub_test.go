package websocket

import (
	"context"
	"testing"

	"github.com/chatrtc/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPresence struct {
	connects    []int
	disconnects []int
}

func (s *stubPresence) Connect(userID int)        { s.connects = append(s.connects, userID) }
func (s *stubPresence) Disconnect(userID int)     { s.disconnects = append(s.disconnects, userID) }
func (s *stubPresence) RecordActivity(userID int) {}
func (s *stubPresence) Heartbeat(userID int)      {}
func (s *stubPresence) SetStatus(userID int, status models.Status) error {
	return nil
}
func (s *stubPresence) OwnRecord(userID int) *models.PresenceRecord {
	return &models.PresenceRecord{UserID: userID, Status: models.StatusOnline}
}
func (s *stubPresence) VisibleStatus(ctx context.Context, targetID, viewerID int) *models.VisibleStatus {
	return &models.VisibleStatus{UserID: targetID, Status: models.StatusOnline}
}
func (s *stubPresence) BatchVisibleStatus(ctx context.Context, targetIDs []int, viewerID int) []*models.VisibleStatus {
	return nil
}
func (s *stubPresence) CanObserve(ctx context.Context, targetID, viewerID int) bool { return true }
func (s *stubPresence) SetVisibility(ctx context.Context, ownerID int, viewers []int) error {
	return nil
}
func (s *stubPresence) Visibility(ctx context.Context, ownerID int) ([]int, error) { return nil, nil }
func (s *stubPresence) Subscribe(fn func(models.PresenceEvent))                    {}
func (s *stubPresence) Start()                                                     {}
func (s *stubPresence) Stop()                                                      {}

type stubTyping struct{}

func (stubTyping) RecordTyping(conversationID, userID int, typing bool) {}
func (stubTyping) TypingUsers(conversationID int) []int                 { return nil }
func (stubTyping) Start()                                               {}
func (stubTyping) Stop()                                                {}

type stubCalls struct{}

func (stubCalls) Initiate(ctx context.Context, callerID, recipientID int) (*models.CallSession, *models.CallSession, error) {
	return nil, nil, nil
}
func (stubCalls) Accept(callID string, userID int) (*models.CallSession, error)  { return nil, nil }
func (stubCalls) Reject(callID string, userID int) (*models.CallSession, error)  { return nil, nil }
func (stubCalls) Cancel(callID string, userID int) (*models.CallSession, error)  { return nil, nil }
func (stubCalls) Hangup(callID string, userID int) (*models.CallSession, error)  { return nil, nil }
func (stubCalls) MarkConnected(callID string, userID int) (*models.CallSession, error) {
	return nil, nil
}
func (stubCalls) HandleOffer(callID string, fromUserID int) (bool, error) { return false, nil }
func (stubCalls) HandleAnswer(callID string, fromUserID int) error        { return nil }
func (stubCalls) AllowSignal(callID string, userID int) error             { return nil }
func (stubCalls) ReportQuality(callID string, userID int, level, rttMillis int) (*models.CallSession, error) {
	return nil, nil
}
func (stubCalls) Reset(userID int) []*models.CallSession                  { return nil }
func (stubCalls) Session(callID string) (*models.CallSession, bool)       { return nil, false }
func (stubCalls) ActiveSessionFor(userID int) (*models.CallSession, bool) { return nil, false }
func (stubCalls) SubscribeEnded(fn func(*models.CallSession))             {}
func (stubCalls) Start()                                                  {}
func (stubCalls) Stop()                                                   {}

func newTestHub(t *testing.T) (*Hub, *stubPresence) {
	t.Helper()
	logger := zerolog.Nop()
	presence := &stubPresence{}
	return NewHub(presence, stubTyping{}, stubCalls{}, &logger), presence
}

func TestHubSendDeliversToConnectedClient(t *testing.T) {
	t.Parallel()
	hub, _ := newTestHub(t)
	client := NewClient(hub, nil, 7)
	hub.Clients[7] = client

	hub.send(7, &models.Event{Type: models.EventSystem})

	require.Len(t, client.Send, 1)
	assert.Contains(t, hub.Clients, 7)
}

func TestHubSendDropsSlowClientAndStampsPresence(t *testing.T) {
	t.Parallel()
	hub, presence := newTestHub(t)
	client := NewClient(hub, nil, 7)
	hub.Clients[7] = client

	// A consumer that never drains its channel. Once the buffer is
	// full the next send must evict the client and record the
	// disconnect, so the user does not linger as online until the
	// heartbeat monitor notices.
	for i := 0; i < cap(client.Send); i++ {
		client.Send <- &models.Event{Type: models.EventSystem}
	}
	hub.send(7, &models.Event{Type: models.EventSystem})

	assert.NotContains(t, hub.Clients, 7)
	assert.Equal(t, []int{7}, presence.disconnects)

	// The channel was closed, so a pump draining it terminates.
	_, open := <-client.Send
	assert.True(t, open, "buffered events still drain")
}

func TestHubSendToUnknownUserIsNoOp(t *testing.T) {
	t.Parallel()
	hub, presence := newTestHub(t)

	hub.send(42, &models.Event{Type: models.EventSystem})

	assert.Empty(t, presence.disconnects)
}
