package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"splitter/internal/amqp"
	"splitter/internal/cache"
	"splitter/internal/core"
	"splitter/internal/log"
)

var ErrSessionNotFound = errors.New("split session not found")

// SettlementPublisher announces computed plans. *amqp.Client satisfies it.
type SettlementPublisher interface {
	PublishSettlement(ctx context.Context, msg *amqp.SettlementMessage) error
	IsClosed() bool
}

// SplitService keeps in-progress split sessions by ID and drives them
// through the core transitions. Sessions live in the cache only.
type SplitService struct {
	mu        sync.Mutex
	sessions  cache.Cache[core.Session]
	publisher SettlementPublisher
	tolerance float64
	logger    *log.Logger
	newID     func() string
}

func NewSplitService(sessions cache.Cache[core.Session], publisher SettlementPublisher, tolerance float64, logger *log.Logger) *SplitService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &SplitService{
		sessions:  sessions,
		publisher: publisher,
		tolerance: tolerance,
		logger:    logger.WithComponent(log.ComponentSplit),
		newID:     uuid.NewString,
	}
}

// Create derives the average and stores a fresh session.
func (s *SplitService) Create(ctx context.Context, count int, total float64) (string, core.Session, error) {
	session, err := core.NewSession(count, total)
	if err != nil {
		return "", core.Session{}, fmt.Errorf("create split: %w", err)
	}

	id := s.newID()
	s.mu.Lock()
	s.sessions.Set(id, session)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Split created",
		log.NewFields().WithSplit(id, count, total, session.Average).WithOperation(log.OpCreate).ToSlice()...)
	return id, session, nil
}

// Get returns the session stored under id.
func (s *SplitService) Get(ctx context.Context, id string) (core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(id)
}

// Resplit re-derives the average for an existing session, discarding its
// contributions and plan. A validation error leaves the session as it was.
func (s *SplitService) Resplit(ctx context.Context, id string, count int, total float64) (core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.load(id)
	if err != nil {
		return core.Session{}, err
	}
	next, err := session.Split(count, total)
	if err != nil {
		return session, fmt.Errorf("resplit %s: %w", id, err)
	}
	s.sessions.Set(id, next)

	s.logger.InfoContext(ctx, "Split parameters replaced",
		log.NewFields().WithSplit(id, count, total, next.Average).WithOperation(log.OpResplit).ToSlice()...)
	return next, nil
}

// RecordContribution stores raw (leniently parsed) for participant index.
func (s *SplitService) RecordContribution(ctx context.Context, id string, index int, raw string) (core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.load(id)
	if err != nil {
		return core.Session{}, err
	}
	next, err := session.RecordContribution(index, raw)
	if err != nil {
		return session, fmt.Errorf("record contribution for %s: %w", id, err)
	}
	s.sessions.Set(id, next)

	s.logger.DebugContext(ctx, "Contribution recorded",
		log.FieldSessionID, id,
		log.FieldIndex, index,
		"amount", next.Contributions[index])
	return next, nil
}

// Settle recomputes the plan and publishes it when a publisher is set.
// Publishing failures are logged; the computed plan is still returned.
func (s *SplitService) Settle(ctx context.Context, id string) (core.Session, error) {
	s.mu.Lock()
	session, err := s.load(id)
	if err != nil {
		s.mu.Unlock()
		return core.Session{}, err
	}
	next := session.ComputeSettlement(s.tolerance)
	s.sessions.Set(id, next)
	s.mu.Unlock()

	log.NewStructuredLogger(s.logger).LogSettlement(ctx, id,
		next.Request.ParticipantCount, next.Request.TotalAmount, next.Average,
		len(next.Plan.Transfers), len(next.Plan.Residuals))

	if err := s.publish(ctx, id, next); err != nil {
		log.NewStructuredLogger(s.logger).LogError(ctx, "Failed to publish settlement", err, log.OpPublish,
			log.NewFields().WithSplit(id, next.Request.ParticipantCount, next.Request.TotalAmount, next.Average))
	}
	return next, nil
}

// Delete forgets a session. Unknown IDs are not an error.
func (s *SplitService) Delete(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions.Delete(id)
}

// Active returns the number of sessions currently held.
func (s *SplitService) Active() int {
	return s.sessions.Size()
}

// Publishing reports whether settlements are announced to a broker.
func (s *SplitService) Publishing() bool {
	return s.publisher != nil
}

// PublisherHealthy reports whether the configured publisher can still reach
// the broker. It is false when no publisher is set.
func (s *SplitService) PublisherHealthy() bool {
	return s.publisher != nil && !s.publisher.IsClosed()
}

func (s *SplitService) load(id string) (core.Session, error) {
	session, ok := s.sessions.Get(id)
	if !ok {
		return core.Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return session, nil
}

func (s *SplitService) publish(ctx context.Context, id string, session core.Session) error {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "Settlement publisher not configured, skipping event")
		return nil
	}
	return s.publisher.PublishSettlement(ctx, amqp.NewSettlementMessage(id, session))
}

// Close releases the publisher if it holds a connection.
func (s *SplitService) Close() error {
	if c, ok := s.publisher.(interface{ Close() error }); ok && c != nil {
		if err := c.Close(); err != nil {
			return fmt.Errorf("close publisher: %w", err)
		}
	}
	return nil
}
