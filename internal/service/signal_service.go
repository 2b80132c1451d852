package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// SocialGraph is the capability set the gate needs from the external
// friend/block services. repository.SocialRepository satisfies it.
type SocialGraph interface {
	AreFriends(ctx context.Context, userID, otherID int) (bool, error)
	IsBlockedBidirectional(ctx context.Context, userID, otherID int) (bool, error)
}

type DenyReason string

const (
	DenyNotFriends DenyReason = "not_friends"
	DenyBlocked    DenyReason = "blocked"
)

type Authorization struct {
	Allowed bool
	Reason  DenyReason
}

// AuthorizationDeniedError carries a denial out of the call service.
// It is an expected condition, surfaced to the caller, never logged as
// a failure.
type AuthorizationDeniedError struct {
	Reason DenyReason
}

func (e *AuthorizationDeniedError) Error() string {
	return fmt.Sprintf("call signaling denied: %s", e.Reason)
}

// SignalGate decides whether two users may exchange call-signaling
// messages. It is a pure predicate over the social graph and must be
// re-evaluated on every call attempt.
type SignalGate interface {
	CanSignalCall(ctx context.Context, userID, recipientID int) (Authorization, error)
}

type signalGate struct {
	graph  SocialGraph
	logger *zerolog.Logger
}

func NewSignalGate(graph SocialGraph, logger *zerolog.Logger) SignalGate {
	return &signalGate{graph: graph, logger: logger}
}

// CanSignalCall checks friendship before blocks, and short-circuits on
// non-friends without evaluating the block relation at all, so a
// non-friend never learns whether they are blocked.
func (g *signalGate) CanSignalCall(ctx context.Context, userID, recipientID int) (Authorization, error) {
	friends, err := g.graph.AreFriends(ctx, userID, recipientID)
	if err != nil {
		return Authorization{}, fmt.Errorf("friendship lookup: %w", err)
	}
	if !friends {
		return Authorization{Allowed: false, Reason: DenyNotFriends}, nil
	}

	blocked, err := g.graph.IsBlockedBidirectional(ctx, userID, recipientID)
	if err != nil {
		return Authorization{}, fmt.Errorf("block lookup: %w", err)
	}
	if blocked {
		return Authorization{Allowed: false, Reason: DenyBlocked}, nil
	}

	return Authorization{Allowed: true}, nil
}
