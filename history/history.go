// Package history records what happened to goals.
//
// A behavior server writes one Record per goal after the goal
// finishes.  Storage implementations live in subpackages.
package history

import (
	"context"
	"errors"
	"time"
)

// Record is a finished goal as stored in a Store.
type Record struct {
	Id       string    `json:"id"`
	Behavior string    `json:"behavior"`
	Args     []float64 `json:"args,omitempty"`

	// State is the goal's terminal state ("Succeeded",
	// "Preempted", or "Rejected").
	State string `json:"state"`

	// Error is the reason for a non-success state (if any).
	Error string `json:"error,omitempty"`

	// Frames is the number of keyframes published.
	Frames int `json:"frames"`

	// Clamps is the number of positions that were clamped.
	Clamps int `json:"clamps,omitempty"`

	Received time.Time `json:"received"`
	Finished time.Time `json:"finished"`
}

// NotFound is returned by Store.Get for an unknown goal id.
var NotFound = errors.New("goal not found")

// Store is a persistence interface for goal records.
type Store interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error

	// Write adds or replaces the record with the given id.
	Write(ctx context.Context, r *Record) error

	// Get finds the record for the given goal id.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns up to limit records, most recently received
	// first.  A limit that isn't positive means no limit.
	List(ctx context.Context, limit int) ([]*Record, error)
}

// Noop is a Store that stores nothing.
type Noop struct {
}

func (s *Noop) Open(ctx context.Context) error {
	return nil
}

func (s *Noop) Close(ctx context.Context) error {
	return nil
}

func (s *Noop) Write(ctx context.Context, r *Record) error {
	return nil
}

func (s *Noop) Get(ctx context.Context, id string) (*Record, error) {
	return nil, NotFound
}

func (s *Noop) List(ctx context.Context, limit int) ([]*Record, error) {
	return nil, nil
}
