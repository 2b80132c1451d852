package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSocialGraph struct {
	friends bool
	blocked bool

	friendsErr error
	blockedErr error

	friendCalls int
	blockCalls  int
}

func (f *fakeSocialGraph) AreFriends(ctx context.Context, userID, otherID int) (bool, error) {
	f.friendCalls++
	return f.friends, f.friendsErr
}

func (f *fakeSocialGraph) IsBlockedBidirectional(ctx context.Context, userID, otherID int) (bool, error) {
	f.blockCalls++
	return f.blocked, f.blockedErr
}

func newTestGate(graph SocialGraph) SignalGate {
	logger := zerolog.Nop()
	return NewSignalGate(graph, &logger)
}

func TestGateDeniesNonFriendsWithoutBlockLookup(t *testing.T) {
	t.Parallel()

	// Blocked is true here on purpose: the predicate must never be
	// consulted for non-friends, so the answer stays not_friends.
	graph := &fakeSocialGraph{friends: false, blocked: true}
	gate := newTestGate(graph)

	authz, err := gate.CanSignalCall(context.Background(), 1, 2)
	require.NoError(t, err)

	assert.False(t, authz.Allowed)
	assert.Equal(t, DenyNotFriends, authz.Reason)
	assert.Equal(t, 1, graph.friendCalls)
	assert.Equal(t, 0, graph.blockCalls, "block relation must not be evaluated for non-friends")
}

func TestGateDeniesBlockedFriends(t *testing.T) {
	t.Parallel()

	graph := &fakeSocialGraph{friends: true, blocked: true}
	gate := newTestGate(graph)

	authz, err := gate.CanSignalCall(context.Background(), 1, 2)
	require.NoError(t, err)

	assert.False(t, authz.Allowed)
	assert.Equal(t, DenyBlocked, authz.Reason)
	assert.Equal(t, 1, graph.blockCalls)
}

func TestGateAuthorizesFriendsNotBlocked(t *testing.T) {
	t.Parallel()

	graph := &fakeSocialGraph{friends: true, blocked: false}
	gate := newTestGate(graph)

	authz, err := gate.CanSignalCall(context.Background(), 1, 2)
	require.NoError(t, err)

	assert.True(t, authz.Allowed)
	assert.Empty(t, authz.Reason)
}

func TestGatePropagatesLookupErrors(t *testing.T) {
	t.Parallel()

	lookupErr := errors.New("db down")
	gate := newTestGate(&fakeSocialGraph{friendsErr: lookupErr})

	_, err := gate.CanSignalCall(context.Background(), 1, 2)
	assert.ErrorIs(t, err, lookupErr)
}
