package service

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TypingService tracks who is actively typing per conversation. State
// is process-local and purely ephemeral; entries expire after a fixed
// idle window. Operations never block and never fail.
type TypingService interface {
	// RecordTyping upserts a fresh entry when typing is true and
	// removes the entry unconditionally when false. Callers are
	// expected to re-send a started signal every few seconds while the
	// user keeps typing.
	RecordTyping(conversationID, userID int, typing bool)
	// TypingUsers lists the users with a live entry for the
	// conversation. Staleness is re-checked at read time, so a lagging
	// sweep never produces a stale read.
	TypingUsers(conversationID int) []int
	Start()
	Stop()
}

type typingKey struct {
	conversationID int
	userID         int
}

type typingService struct {
	mu      sync.Mutex
	entries map[typingKey]time.Time

	ttl        time.Duration
	sweepEvery time.Duration

	done   chan struct{}
	logger *zerolog.Logger
}

func NewTypingService(ttl, sweepEvery time.Duration, logger *zerolog.Logger) TypingService {
	return &typingService{
		entries:    make(map[typingKey]time.Time),
		ttl:        ttl,
		sweepEvery: sweepEvery,
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (s *typingService) RecordTyping(conversationID, userID int, typing bool) {
	key := typingKey{conversationID: conversationID, userID: userID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if typing {
		s.entries[key] = time.Now()
	} else {
		delete(s.entries, key)
	}
}

func (s *typingService) TypingUsers(conversationID int) []int {
	cutoff := time.Now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	var users []int
	for key, startedAt := range s.entries {
		if key.conversationID == conversationID && startedAt.After(cutoff) {
			users = append(users, key.userID)
		}
	}
	return users
}

func (s *typingService) Start() {
	go func() {
		ticker := time.NewTicker(s.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.done:
				return
			}
		}
	}()
}

func (s *typingService) Stop() {
	close(s.done)
}

// sweep is coarse housekeeping against unbounded growth; reads do not
// depend on it for correctness.
func (s *typingService) sweep() {
	cutoff := time.Now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, startedAt := range s.entries {
		if !startedAt.After(cutoff) {
			delete(s.entries, key)
		}
	}
}
