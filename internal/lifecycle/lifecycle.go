// Package lifecycle encodes the legal order status graph.
//
//	PENDING -> PREPARING -> READY -> SERVED -> COMPLETED
//	PENDING, PREPARING, READY -> CANCELLED
//
// Everything here is pure; the store uses it to guard writes and the board
// uses it to interpret what a poll returned.
package lifecycle

import (
	"fmt"

	apperr "orderboard/internal/xpkg/errors"
	"orderboard/pkg/models"
)

var allowedTransitions = map[models.Status][]models.Status{
	models.StatusPending:   {models.StatusPreparing, models.StatusCancelled},
	models.StatusPreparing: {models.StatusReady, models.StatusCancelled},
	models.StatusReady:     {models.StatusServed, models.StatusCancelled},
	models.StatusServed:    {models.StatusCompleted},
	models.StatusCompleted: nil,
	models.StatusCancelled: nil,
}

// InvalidTransitionError carries the status the order was in when the change was refused.
type InvalidTransitionError struct {
	From models.Status
	To   models.Status
}

func (e *InvalidTransitionError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("invalid status transition to %s", e.To)
	}
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == apperr.ErrInvalidTransition
}

// AlreadyApplied reports whether the refusal only means the order is already in the target status.
func (e *InvalidTransitionError) AlreadyApplied() bool {
	return e.From != "" && e.From == e.To
}

// CanTransition reports whether from -> to is a single legal edge.
func CanTransition(from, to models.Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Validate returns an *InvalidTransitionError unless from -> to is a legal edge.
func Validate(from, to models.Status) error {
	if !from.Valid() || !to.Valid() || !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// Next lists the statuses reachable in one step.
func Next(from models.Status) []models.Status {
	next := allowedTransitions[from]
	out := make([]models.Status, len(next))
	copy(out, next)
	return out
}

func IsTerminal(s models.Status) bool {
	return s == models.StatusCompleted || s == models.StatusCancelled
}

// Reachable reports whether to lies strictly ahead of from along legal edges.
func Reachable(from, to models.Status) bool {
	if from == to {
		return false
	}
	seen := map[models.Status]bool{from: true}
	queue := []models.Status{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range allowedTransitions[cur] {
			if n == to {
				return true
			}
			if !seen[n] {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}
	return false
}

type Observation int

const (
	// Same status as held locally.
	Same Observation = iota
	// Forward means the observed status is ahead of the held one.
	Forward
	// Regressive means the observed status is behind the held one, a stale read.
	Regressive
	// Divergent means neither status can reach the other, e.g. SERVED vs CANCELLED.
	Divergent
)

func (o Observation) String() string {
	switch o {
	case Same:
		return "same"
	case Forward:
		return "forward"
	case Regressive:
		return "regressive"
	default:
		return "divergent"
	}
}

// Classify compares a freshly observed status with the one held locally.
func Classify(held, observed models.Status) Observation {
	switch {
	case held == observed:
		return Same
	case Reachable(held, observed):
		return Forward
	case Reachable(observed, held):
		return Regressive
	default:
		return Divergent
	}
}

// Walk validates an observed status sequence step by step. Repeated
// statuses are allowed since polls may observe the same status many times.
func Walk(statuses ...models.Status) error {
	for i := 1; i < len(statuses); i++ {
		prev, cur := statuses[i-1], statuses[i]
		if prev == cur {
			continue
		}
		if err := Validate(prev, cur); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}
