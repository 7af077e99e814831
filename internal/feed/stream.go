// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package feed

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrClosed is returned by Emit after the stream has terminated.
var ErrClosed = errors.New("feed: stream already terminated")

// State is the lifecycle state of a Stream.
type State int

const (
	StateOpen State = iota
	StateCompleted
	StateErrored
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// =============================================================================
// STREAM
// =============================================================================

// Stream is a push-based sequence of T. It is safe for concurrent use.
type Stream[T any] struct {
	mu     sync.Mutex
	queue  []T
	state  State
	err    error
	signal chan struct{} // closed and replaced on every change
	done   chan struct{} // closed once on termination
}

// New creates an open stream.
func New[T any]() *Stream[T] {
	return &Stream[T]{
		signal: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Emit queues a value for consumers.
func (s *Stream[T]) Emit(v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return ErrClosed
	}
	s.queue = append(s.queue, v)
	s.notifyLocked()
	return nil
}

// Complete terminates the stream successfully. Later calls are no-ops.
func (s *Stream[T]) Complete() {
	s.terminate(StateCompleted, nil)
}

// Fail terminates the stream with err. Later calls are no-ops.
func (s *Stream[T]) Fail(err error) {
	if err == nil {
		err = errors.New("feed: stream failed")
	}
	s.terminate(StateErrored, err)
}

func (s *Stream[T]) terminate(state State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return
	}
	s.state = state
	s.err = err
	s.notifyLocked()
	close(s.done)
}

func (s *Stream[T]) notifyLocked() {
	close(s.signal)
	s.signal = make(chan struct{})
}

// Next returns the next queued value, blocking until one is available.
// Queued values are drained before the terminal state is reported:
// io.EOF after completion, the failure error after Fail.
func (s *Stream[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			v := s.queue[0]
			s.queue[0] = zero
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return v, nil
		}
		switch s.state {
		case StateCompleted:
			s.mu.Unlock()
			return zero, io.EOF
		case StateErrored:
			err := s.err
			s.mu.Unlock()
			return zero, err
		}
		wait := s.signal
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-wait:
		}
	}
}

// State returns the current lifecycle state.
func (s *Stream[T]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure error, or nil if the stream is open or completed.
func (s *Stream[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed when the stream terminates.
func (s *Stream[T]) Done() <-chan struct{} {
	return s.done
}

// =============================================================================
// CONSUMER HELPERS
// =============================================================================

// Collect drains the stream and returns every value. On failure it returns
// the values received before the error together with the error.
func (s *Stream[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	for {
		v, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}

// Last drains the stream and returns the final value. ok is false when the
// stream completed without emitting anything.
func (s *Stream[T]) Last(ctx context.Context) (last T, ok bool, err error) {
	for {
		v, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return last, ok, nil
		}
		if err != nil {
			return last, ok, err
		}
		last, ok = v, true
	}
}

// Chan adapts the stream to a channel pair in the style of a goroutine
// producer: values arrive on the first channel, and the terminal error
// (nil on completion) on the second once the first is closed.
func (s *Stream[T]) Chan(ctx context.Context) (<-chan T, <-chan error) {
	values := make(chan T)
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		defer close(values)
		for {
			v, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				errc <- nil
				return
			}
			if err != nil {
				errc <- err
				return
			}
			select {
			case values <- v:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()
	return values, errc
}
