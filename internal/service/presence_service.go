package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chatrtc/internal/models"
	"github.com/chatrtc/internal/repository"
	"github.com/rs/zerolog"
)

var ErrInvalidStatus = errors.New("status cannot be set explicitly")

// How many heartbeat intervals may lapse before a silent channel is
// treated as gone.
const missedHeartbeats = 2

// PresenceService tracks per-user liveness. The live state lives in
// memory and is mutated only here; snapshots of last-known status and
// lastSeenAt are persisted through the repository so they survive
// disconnects and restarts. Lookup failures on the read path are
// swallowed and reported as offline, presence being non-critical.
type PresenceService interface {
	// Connect marks the user's liveness channel open.
	Connect(userID int)
	// Disconnect marks the channel closed and stamps lastSeenAt.
	Disconnect(userID int)
	// RecordActivity handles a qualifying client activity event. It
	// refreshes the auto-away timer and restores online after an
	// automatic away transition, but never overrides a user-set status.
	RecordActivity(userID int)
	Heartbeat(userID int)
	// SetStatus applies an explicit, user-initiated status. Explicit
	// statuses are never auto-restored by activity.
	SetStatus(userID int, status models.Status) error

	// OwnRecord returns the user's true internal state, including
	// invisible.
	OwnRecord(userID int) *models.PresenceRecord
	VisibleStatus(ctx context.Context, targetID, viewerID int) *models.VisibleStatus
	BatchVisibleStatus(ctx context.Context, targetIDs []int, viewerID int) []*models.VisibleStatus
	CanObserve(ctx context.Context, targetID, viewerID int) bool

	SetVisibility(ctx context.Context, ownerID int, viewers []int) error
	Visibility(ctx context.Context, ownerID int) ([]int, error)

	// Subscribe registers a status-change observer. Must be called
	// before Start.
	Subscribe(fn func(models.PresenceEvent))
	Start()
	Stop()
}

type presenceEntry struct {
	status        models.Status
	autoAway      bool
	connected     bool
	lastActivity  time.Time
	lastSeen      time.Time
	lastHeartbeat time.Time
}

type presenceService struct {
	mu      sync.Mutex
	entries map[int]*presenceEntry

	repo    repository.PresenceRepository
	visRepo repository.VisibilityRepository

	awayAfter      time.Duration
	heartbeatEvery time.Duration
	sweepEvery     time.Duration
	openVisibility bool

	subscribers []func(models.PresenceEvent)
	done        chan struct{}
	logger      *zerolog.Logger
}

type PresencePolicy struct {
	AwayAfter         time.Duration
	HeartbeatInterval time.Duration
	SweepInterval     time.Duration
	// OpenVisibility makes an empty visibility list mean "visible to
	// everyone" instead of "visible to no one".
	OpenVisibility bool
}

func NewPresenceService(
	repo repository.PresenceRepository,
	visRepo repository.VisibilityRepository,
	policy PresencePolicy,
	logger *zerolog.Logger,
) PresenceService {
	return &presenceService{
		entries:        make(map[int]*presenceEntry),
		repo:           repo,
		visRepo:        visRepo,
		awayAfter:      policy.AwayAfter,
		heartbeatEvery: policy.HeartbeatInterval,
		sweepEvery:     policy.SweepInterval,
		openVisibility: policy.OpenVisibility,
		done:           make(chan struct{}),
		logger:         logger,
	}
}

func (s *presenceService) Connect(userID int) {
	now := time.Now()

	// First connection since startup: the snapshot carries the
	// last-known explicit status across restarts, so an invisible or
	// dnd user does not silently come back as publicly online.
	var snapshot *models.PresenceRecord
	s.mu.Lock()
	known := s.entries[userID] != nil
	s.mu.Unlock()
	if !known {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		snapshot, _ = s.repo.Load(ctx, userID) // absence and failure both mean a clean start
		cancel()
	}

	s.mu.Lock()
	entry := s.entries[userID]
	if entry == nil {
		entry = &presenceEntry{status: models.StatusOnline}
		if snapshot != nil {
			entry.lastSeen = snapshot.LastSeenAt
			// away is not restored: an auto-away tag does not survive
			// the snapshot, and a stale away that activity can never
			// clear would be worse than resetting to online.
			if snapshot.Status.Settable() && snapshot.Status != models.StatusAway {
				entry.status = snapshot.Status
			}
		}
		s.entries[userID] = entry
	}
	old := s.effectiveStatusLocked(entry)
	entry.connected = true
	entry.lastHeartbeat = now
	entry.lastActivity = now
	if entry.status == models.StatusAway && entry.autoAway {
		entry.status = models.StatusOnline
		entry.autoAway = false
	}
	events := s.changeLocked(userID, entry, old, now)
	s.mu.Unlock()

	s.emit(events)
	s.persist(userID)
}

func (s *presenceService) Disconnect(userID int) {
	now := time.Now()

	s.mu.Lock()
	entry := s.entries[userID]
	if entry == nil {
		s.mu.Unlock()
		return
	}
	old := s.effectiveStatusLocked(entry)
	entry.connected = false
	entry.lastSeen = now
	events := s.changeLocked(userID, entry, old, now)
	s.mu.Unlock()

	s.emit(events)
	s.persist(userID)
}

func (s *presenceService) RecordActivity(userID int) {
	now := time.Now()

	s.mu.Lock()
	entry := s.entries[userID]
	if entry == nil {
		entry = &presenceEntry{status: models.StatusOnline, connected: true, lastHeartbeat: now}
		s.entries[userID] = entry
	}
	old := s.effectiveStatusLocked(entry)
	entry.lastActivity = now
	if entry.status == models.StatusAway && entry.autoAway {
		entry.status = models.StatusOnline
		entry.autoAway = false
	}
	events := s.changeLocked(userID, entry, old, now)
	s.mu.Unlock()

	s.emit(events)
}

func (s *presenceService) Heartbeat(userID int) {
	now := time.Now()

	s.mu.Lock()
	entry := s.entries[userID]
	if entry == nil {
		entry = &presenceEntry{status: models.StatusOnline}
		s.entries[userID] = entry
	}
	old := s.effectiveStatusLocked(entry)
	entry.connected = true
	entry.lastHeartbeat = now
	events := s.changeLocked(userID, entry, old, now)
	s.mu.Unlock()

	s.emit(events)
}

func (s *presenceService) SetStatus(userID int, status models.Status) error {
	if !status.Settable() {
		return ErrInvalidStatus
	}
	now := time.Now()

	s.mu.Lock()
	entry := s.entries[userID]
	if entry == nil {
		entry = &presenceEntry{connected: true, lastHeartbeat: now, lastActivity: now}
		s.entries[userID] = entry
	}
	old := s.effectiveStatusLocked(entry)
	entry.status = status
	entry.autoAway = false
	if status != models.StatusOnline {
		entry.lastSeen = now
	}
	events := s.changeLocked(userID, entry, old, now)
	s.mu.Unlock()

	s.emit(events)
	s.persist(userID)
	return nil
}

func (s *presenceService) OwnRecord(userID int) *models.PresenceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entries[userID]
	if entry == nil {
		return &models.PresenceRecord{UserID: userID, Status: models.StatusOffline}
	}
	return &models.PresenceRecord{
		UserID:         userID,
		Status:         entry.status,
		LastActivityAt: entry.lastActivity,
		LastSeenAt:     entry.lastSeen,
	}
}

// CanObserve resolves the allow-list rule: the viewer must be on the
// target's visibility list, or the list must be empty while the open
// policy is in effect. Self-observation is always allowed. List lookup
// failures deny, never error.
func (s *presenceService) CanObserve(ctx context.Context, targetID, viewerID int) bool {
	if targetID == viewerID {
		return true
	}
	viewers, err := s.visRepo.Viewers(ctx, targetID)
	if err != nil {
		return false
	}
	if len(viewers) == 0 {
		return s.openVisibility
	}
	for _, id := range viewers {
		if id == viewerID {
			return true
		}
	}
	return false
}

func (s *presenceService) VisibleStatus(ctx context.Context, targetID, viewerID int) *models.VisibleStatus {
	if !s.CanObserve(ctx, targetID, viewerID) {
		// Denied viewers get the placeholder and no lastSeen.
		return &models.VisibleStatus{UserID: targetID, Status: models.StatusOffline}
	}

	s.mu.Lock()
	entry := s.entries[targetID]
	var status, trueStatus models.Status
	var lastSeen time.Time
	if entry != nil {
		status = s.effectiveStatusLocked(entry)
		trueStatus = entry.status
		lastSeen = entry.lastSeen
	}
	s.mu.Unlock()

	if entry == nil {
		// No live state; fall back to the snapshot, offline either way.
		status = models.StatusOffline
		if snapshot, err := s.repo.Load(ctx, targetID); err == nil && snapshot != nil {
			lastSeen = snapshot.LastSeenAt
		}
	}

	vs := &models.VisibleStatus{UserID: targetID, Status: status}
	if targetID == viewerID && entry != nil {
		// Owners see their true state even while invisible.
		vs.Status = trueStatus
	}
	if !lastSeen.IsZero() {
		vs.LastSeen = &lastSeen
	}
	return vs
}

// BatchVisibleStatus applies the per-target rule independently for each
// target; there is no cross-target short-circuiting.
func (s *presenceService) BatchVisibleStatus(ctx context.Context, targetIDs []int, viewerID int) []*models.VisibleStatus {
	out := make([]*models.VisibleStatus, 0, len(targetIDs))
	for _, targetID := range targetIDs {
		out = append(out, s.VisibleStatus(ctx, targetID, viewerID))
	}
	return out
}

func (s *presenceService) SetVisibility(ctx context.Context, ownerID int, viewers []int) error {
	return s.visRepo.Replace(ctx, ownerID, viewers)
}

func (s *presenceService) Visibility(ctx context.Context, ownerID int) ([]int, error) {
	return s.visRepo.Viewers(ctx, ownerID)
}

func (s *presenceService) Subscribe(fn func(models.PresenceEvent)) {
	s.subscribers = append(s.subscribers, fn)
}

func (s *presenceService) Start() {
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

func (s *presenceService) Stop() {
	close(s.done)
}

// sweep runs the auto-away timer and the heartbeat liveness monitor.
// It holds the lock only to collect transitions; notifications and
// persistence happen outside it.
func (s *presenceService) sweep() {
	now := time.Now()
	var events []models.PresenceEvent
	var changed []int

	s.mu.Lock()
	for userID, entry := range s.entries {
		old := s.effectiveStatusLocked(entry)

		if entry.connected && now.Sub(entry.lastHeartbeat) >= time.Duration(missedHeartbeats)*s.heartbeatEvery {
			entry.connected = false
			entry.lastSeen = now
		} else if entry.connected && entry.status == models.StatusOnline && now.Sub(entry.lastActivity) >= s.awayAfter {
			entry.status = models.StatusAway
			entry.autoAway = true
			entry.lastSeen = now
		}

		if evs := s.changeLocked(userID, entry, old, now); len(evs) > 0 {
			events = append(events, evs...)
			changed = append(changed, userID)
		}
	}
	s.mu.Unlock()

	s.emit(events)
	for _, userID := range changed {
		s.persist(userID)
	}
}

// effectiveStatusLocked is the externally observable status before
// visibility filtering: offline when the channel is gone, offline when
// invisible.
func (s *presenceService) effectiveStatusLocked(entry *presenceEntry) models.Status {
	if !entry.connected || entry.status == models.StatusInvisible {
		return models.StatusOffline
	}
	return entry.status
}

func (s *presenceService) changeLocked(userID int, entry *presenceEntry, old models.Status, now time.Time) []models.PresenceEvent {
	current := s.effectiveStatusLocked(entry)
	if current == old {
		return nil
	}
	return []models.PresenceEvent{{
		UserID:    userID,
		OldStatus: old,
		NewStatus: current,
		Timestamp: now,
	}}
}

func (s *presenceService) emit(events []models.PresenceEvent) {
	for _, event := range events {
		for _, fn := range s.subscribers {
			fn(event)
		}
	}
}

func (s *presenceService) persist(userID int) {
	record := s.OwnRecord(userID)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.repo.Save(ctx, record); err != nil {
		s.logger.Debug().Err(err).Int("user_id", userID).Msg("Presence snapshot save failed")
	}
}
