package core

import (
	"errors"
	"fmt"
)

const (
	// DefaultTolerance is the balance below which a participant counts as settled.
	DefaultTolerance = 1e-9

	// MaxParticipants bounds a split so one request cannot allocate
	// unbounded contribution and plan slices.
	MaxParticipants = 1000
)

const (
	StateUninitialized State = iota
	StateParametersSet
	StateContributionsEntered
	StateSettlementComputed
)

type (
	// State is the lifecycle position of a split session.
	State int

	// SplitRequest is what the user asks to split: a total among N people.
	SplitRequest struct {
		ParticipantCount int
		TotalAmount      float64
	}

	// Session is the whole state of one split. Every transition returns a
	// new Session and leaves the receiver untouched.
	Session struct {
		Request       SplitRequest
		Average       float64
		Contributions []float64
		Plan          Plan
		State         State
	}
)

var (
	ErrNonPositiveCount    = errors.New("participant count must be greater than 0")
	ErrNonPositiveTotal    = errors.New("total amount must be greater than 0")
	ErrTooManyParticipants = fmt.Errorf("participant count must be at most %d", MaxParticipants)
	ErrIndexOutOfRange     = errors.New("participant index out of range")
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateParametersSet:
		return "parameters_set"
	case StateContributionsEntered:
		return "contributions_entered"
	case StateSettlementComputed:
		return "settlement_computed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (r SplitRequest) Validate() error {
	if r.ParticipantCount <= 0 {
		return ErrNonPositiveCount
	}
	if r.ParticipantCount > MaxParticipants {
		return ErrTooManyParticipants
	}
	if r.TotalAmount <= 0 {
		return ErrNonPositiveTotal
	}
	return nil
}

// DeriveAverage returns total/count, or a validation error.
func DeriveAverage(count int, total float64) (float64, error) {
	r := SplitRequest{ParticipantCount: count, TotalAmount: total}
	if err := r.Validate(); err != nil {
		return 0, err
	}
	return r.TotalAmount / float64(r.ParticipantCount), nil
}

// NewSession starts a split with zero contributions and an empty plan.
func NewSession(count int, total float64) (Session, error) {
	avg, err := DeriveAverage(count, total)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Request:       SplitRequest{ParticipantCount: count, TotalAmount: total},
		Average:       avg,
		Contributions: make([]float64, count),
		Plan:          emptyPlan(count),
		State:         StateParametersSet,
	}, nil
}

// Split re-derives the average, discarding contributions and plan. On a
// validation error the receiver is returned unchanged.
func (s Session) Split(count int, total float64) (Session, error) {
	next, err := NewSession(count, total)
	if err != nil {
		return s, err
	}
	return next, nil
}

// RecordContribution stores the leniently parsed raw value at index.
func (s Session) RecordContribution(index int, raw string) (Session, error) {
	if index < 0 || index >= len(s.Contributions) {
		return s, fmt.Errorf("%w: %d (participants: %d)", ErrIndexOutOfRange, index, len(s.Contributions))
	}
	next := s.clone()
	next.Contributions[index] = ParseContribution(raw)
	if next.State == StateParametersSet {
		next.State = StateContributionsEntered
	}
	return next, nil
}

// ComputeSettlement regenerates the plan from the current contributions.
func (s Session) ComputeSettlement(tolerance float64) Session {
	if s.State == StateUninitialized {
		return s
	}
	next := s.clone()
	next.Plan = Settle(next.Contributions, next.Average, tolerance)
	next.State = StateSettlementComputed
	return next
}

// Initialized reports whether a valid split has been derived.
func (s Session) Initialized() bool {
	return s.State != StateUninitialized
}

// AverageBanner is the headline shown once the average is known.
func (s Session) AverageBanner() string {
	return AverageBanner(s.Average)
}

// AverageBanner formats the per-person share headline.
func AverageBanner(average float64) string {
	return fmt.Sprintf(msgAverage, FormatAmount(average))
}

func (s Session) clone() Session {
	next := s
	next.Contributions = append([]float64(nil), s.Contributions...)
	next.Plan = s.Plan.clone()
	return next
}
