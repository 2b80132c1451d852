package service

import (
	"context"
	"testing"
	"time"

	"github.com/chatrtc/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type allowAllGate struct{}

func (allowAllGate) CanSignalCall(ctx context.Context, userID, recipientID int) (Authorization, error) {
	return Authorization{Allowed: true}, nil
}

type denyGate struct{ reason DenyReason }

func (g denyGate) CanSignalCall(ctx context.Context, userID, recipientID int) (Authorization, error) {
	return Authorization{Allowed: false, Reason: g.reason}, nil
}

func newTestCalls(gate SignalGate) *callService {
	logger := zerolog.Nop()
	return NewCallService(gate, CallPolicy{
		ReconnectGrace: 30 * time.Millisecond,
		QualityFloor:   1,
	}, &logger).(*callService)
}

func TestAssignRolesSymmetry(t *testing.T) {
	t.Parallel()

	politeAB, impoliteAB := AssignRoles(1, 2)
	politeBA, impoliteBA := AssignRoles(2, 1)

	assert.Equal(t, politeAB, politeBA, "role assignment must not depend on evaluation side")
	assert.Equal(t, impoliteAB, impoliteBA)
	assert.NotEqual(t, politeAB, impoliteAB)

	assert.Equal(t, models.RolePolite, RoleOf(1, 2))
	assert.Equal(t, models.RoleImpolite, RoleOf(2, 1))
}

func TestCallLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestCalls(allowAllGate{})

	session, superseded, err := s.Initiate(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Nil(t, superseded)
	assert.Equal(t, models.CallStateOutgoing, session.State)
	assert.Equal(t, models.CallStateOutgoing, session.StateFor(1))
	assert.Equal(t, models.CallStateIncoming, session.StateFor(2))

	session, err = s.Accept(session.CallID, 2)
	require.NoError(t, err)
	assert.Equal(t, models.CallStateConnecting, session.State)

	session, err = s.MarkConnected(session.CallID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.CallStateConnected, session.State)
	assert.False(t, session.ConnectedAt.IsZero(), "call start must be recorded for duration accounting")

	session, err = s.Hangup(session.CallID, 2)
	require.NoError(t, err)
	assert.Equal(t, models.CallStateEnded, session.State)
	assert.Equal(t, models.EndReasonHangup, session.EndReason)

	_, active := s.ActiveSessionFor(1)
	assert.False(t, active, "terminal session frees both participants")
}

func TestCallRejectAndCancel(t *testing.T) {
	t.Parallel()
	s := newTestCalls(allowAllGate{})

	session, _, err := s.Initiate(context.Background(), 1, 2)
	require.NoError(t, err)

	// Only the recipient may reject, only the initiator may cancel.
	_, err = s.Reject(session.CallID, 1)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = s.Cancel(session.CallID, 2)
	assert.ErrorIs(t, err, ErrInvalidState)

	session, err = s.Reject(session.CallID, 2)
	require.NoError(t, err)
	assert.Equal(t, models.EndReasonDeclined, session.EndReason)

	session, _, err = s.Initiate(context.Background(), 1, 2)
	require.NoError(t, err, "a new attempt starts a fresh session, never resumes an ended one")
	session, err = s.Cancel(session.CallID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.EndReasonCanceled, session.EndReason)
}

func TestCallInitiateDenied(t *testing.T) {
	t.Parallel()
	s := newTestCalls(denyGate{reason: DenyNotFriends})

	_, _, err := s.Initiate(context.Background(), 1, 2)
	var denied *AuthorizationDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, DenyNotFriends, denied.Reason)

	_, active := s.ActiveSessionFor(1)
	assert.False(t, active, "no session may exist for a denied attempt")
}

func TestCallGlareConvergesToOneSession(t *testing.T) {
	t.Parallel()

	// Impolite first, polite second: the polite caller rolls back and
	// adopts the existing session.
	s := newTestCalls(allowAllGate{})
	first, _, err := s.Initiate(context.Background(), 2, 1) // 2 is impolite
	require.NoError(t, err)

	adopted, superseded, err := s.Initiate(context.Background(), 1, 2) // 1 is polite
	require.NoError(t, err)
	assert.Nil(t, superseded)
	assert.Equal(t, first.CallID, adopted.CallID)
	assert.Equal(t, 2, adopted.InitiatorID)
	assert.Equal(t, models.CallStateIncoming, adopted.StateFor(1))

	// Polite first, impolite second: the impolite offer supersedes.
	s2 := newTestCalls(allowAllGate{})
	politeAttempt, _, err := s2.Initiate(context.Background(), 1, 2)
	require.NoError(t, err)

	winning, superseded, err := s2.Initiate(context.Background(), 2, 1)
	require.NoError(t, err)
	require.NotNil(t, superseded)
	assert.Equal(t, politeAttempt.CallID, superseded.CallID)
	assert.Equal(t, models.EndReasonSuperseded, superseded.EndReason)
	assert.NotEqual(t, politeAttempt.CallID, winning.CallID)
	assert.Equal(t, 2, winning.InitiatorID)

	// Either way exactly one live session remains for the pair.
	active1, ok := s2.ActiveSessionFor(1)
	require.True(t, ok)
	active2, ok := s2.ActiveSessionFor(2)
	require.True(t, ok)
	assert.Equal(t, active1.CallID, active2.CallID)
	assert.Equal(t, winning.CallID, active1.CallID)
}

func TestCallBusyWithThirdParty(t *testing.T) {
	t.Parallel()
	s := newTestCalls(allowAllGate{})

	_, _, err := s.Initiate(context.Background(), 1, 2)
	require.NoError(t, err)

	_, _, err = s.Initiate(context.Background(), 1, 3)
	assert.ErrorIs(t, err, ErrUserBusy)

	_, _, err = s.Initiate(context.Background(), 3, 2)
	assert.ErrorIs(t, err, ErrUserBusy)
}

func TestCallDuplicateInviteDropped(t *testing.T) {
	t.Parallel()
	s := newTestCalls(allowAllGate{})

	_, _, err := s.Initiate(context.Background(), 1, 2)
	require.NoError(t, err)

	_, _, err = s.Initiate(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCallLateEventsDropSilently(t *testing.T) {
	t.Parallel()
	s := newTestCalls(allowAllGate{})

	session, _, err := s.Initiate(context.Background(), 1, 2)
	require.NoError(t, err)
	_, err = s.Reject(session.CallID, 2)
	require.NoError(t, err)

	// An accept for a call already ended is a late network event.
	_, err = s.Accept(session.CallID, 2)
	assert.ErrorIs(t, err, ErrInvalidState)
	err = s.AllowSignal(session.CallID, 1)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = s.Accept("no-such-call", 2)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCallOfferGlareRule(t *testing.T) {
	t.Parallel()
	s := newTestCalls(allowAllGate{})

	session, _, err := s.Initiate(context.Background(), 1, 2)
	require.NoError(t, err)
	_, err = s.Accept(session.CallID, 2)
	require.NoError(t, err)

	relay, err := s.HandleOffer(session.CallID, 1)
	require.NoError(t, err)
	assert.True(t, relay)

	// Conflicting offer from the impolite peer wins over the pending one.
	relay, err = s.HandleOffer(session.CallID, 2)
	require.NoError(t, err)
	assert.True(t, relay)

	// Now the polite peer's conflicting offer is ignored.
	relay, err = s.HandleOffer(session.CallID, 1)
	require.NoError(t, err)
	assert.False(t, relay)

	// The answer settles negotiation; a fresh offer goes through again.
	require.NoError(t, s.HandleAnswer(session.CallID, 1))
	relay, err = s.HandleOffer(session.CallID, 1)
	require.NoError(t, err)
	assert.True(t, relay)
}

func TestCallQualityThreshold(t *testing.T) {
	t.Parallel()
	s := newTestCalls(allowAllGate{})

	session, _, err := s.Initiate(context.Background(), 1, 2)
	require.NoError(t, err)
	_, err = s.Accept(session.CallID, 2)
	require.NoError(t, err)
	_, err = s.MarkConnected(session.CallID, 1)
	require.NoError(t, err)

	// A good sample is advisory only.
	session, err = s.ReportQuality(session.CallID, 1, 4, 20)
	require.NoError(t, err)
	assert.Equal(t, models.CallStateConnected, session.State)
	require.NotNil(t, session.LastQuality)
	assert.Equal(t, 4, session.LastQuality.Level)

	session, err = s.ReportQuality(session.CallID, 1, 1, 900)
	require.NoError(t, err)
	assert.Equal(t, models.CallStateReconnecting, session.State)

	session, err = s.ReportQuality(session.CallID, 2, 3, 80)
	require.NoError(t, err)
	assert.Equal(t, models.CallStateConnected, session.State, "recovered quality restores connected")
}

func TestCallReconnectGraceExpires(t *testing.T) {
	t.Parallel()
	s := newTestCalls(allowAllGate{})

	var ended []*models.CallSession
	s.SubscribeEnded(func(session *models.CallSession) { ended = append(ended, session) })

	session, _, err := s.Initiate(context.Background(), 1, 2)
	require.NoError(t, err)
	_, err = s.Accept(session.CallID, 2)
	require.NoError(t, err)
	_, err = s.MarkConnected(session.CallID, 1)
	require.NoError(t, err)
	_, err = s.ReportQuality(session.CallID, 1, 1, 900)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond) // past the 30ms grace
	s.sweepGrace()

	require.Len(t, ended, 1)
	assert.Equal(t, models.EndReasonNetwork, ended[0].EndReason)
	_, active := s.ActiveSessionFor(1)
	assert.False(t, active)
}

func TestCallReset(t *testing.T) {
	t.Parallel()
	s := newTestCalls(allowAllGate{})

	session, _, err := s.Initiate(context.Background(), 1, 2)
	require.NoError(t, err)

	ended := s.Reset(1)
	require.Len(t, ended, 1)
	assert.Equal(t, session.CallID, ended[0].CallID)
	assert.Equal(t, models.EndReasonReset, ended[0].EndReason)

	assert.Empty(t, s.Reset(1), "reset with no live session is a no-op")

	_, _, err = s.Initiate(context.Background(), 1, 2)
	require.NoError(t, err, "both parties are free after a reset")
}
