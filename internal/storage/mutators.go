// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"fmt"

	"github.com/jeranaias/threadline/internal/model"
)

// Mutator computes a thread's new list from its current one. It receives a
// private copy and may modify it freely. Returning an error aborts the change.
type Mutator func(msgs []model.Message) ([]model.Message, error)

// Chain applies mutators in order as one atomic change.
func Chain(ms ...Mutator) Mutator {
	return func(msgs []model.Message) ([]model.Message, error) {
		var err error
		for _, m := range ms {
			if msgs, err = m(msgs); err != nil {
				return nil, err
			}
		}
		return msgs, nil
	}
}

// Append adds msg at the end of the list.
func Append(msg model.Message) Mutator {
	return func(msgs []model.Message) ([]model.Message, error) {
		return append(msgs, msg.Clone()), nil
	}
}

// UpsertConfirmed stores a server-confirmed message. It replaces the entry
// with the same id, or else takes the slot of the first optimistic entry
// with the same prompt signature, or else appends. Every other optimistic
// entry with that signature is dropped in the same step.
func UpsertConfirmed(msg model.Message) Mutator {
	return func(msgs []model.Message) ([]model.Message, error) {
		msg = msg.Clone()
		msg.Optimistic = false
		sig, hasSig := msg.PromptSignature()
		idx := model.IndexOf(msgs, msg.ID)

		out := make([]model.Message, 0, len(msgs)+1)
		placed := false
		for i, m := range msgs {
			if i == idx {
				out = append(out, msg)
				placed = true
				continue
			}
			if hasSig && m.Optimistic {
				if s, ok := m.PromptSignature(); ok && s == sig {
					if idx < 0 && !placed {
						out = append(out, msg)
						placed = true
					}
					continue
				}
			}
			out = append(out, m)
		}
		if !placed {
			out = append(out, msg)
		}
		return out, nil
	}
}

// RemoveOptimistic drops every optimistic entry of the thread.
func RemoveOptimistic() Mutator {
	return func(msgs []model.Message) ([]model.Message, error) {
		out := msgs[:0]
		for _, m := range msgs {
			if !m.Optimistic {
				out = append(out, m)
			}
		}
		return out, nil
	}
}

// RemoveByID drops the entry with the given id, if present.
func RemoveByID(id string) Mutator {
	return func(msgs []model.Message) ([]model.Message, error) {
		if idx := model.IndexOf(msgs, id); idx >= 0 {
			msgs = append(msgs[:idx], msgs[idx+1:]...)
		}
		return msgs, nil
	}
}

// ReplaceAll swaps the list for an authoritative history, keeping optimistic
// entries whose prompt signature the history does not contain yet so that
// in-flight sends survive a refetch.
func ReplaceAll(authoritative []model.Message) Mutator {
	return func(msgs []model.Message) ([]model.Message, error) {
		out := make([]model.Message, 0, len(authoritative))
		for _, m := range authoritative {
			m = m.Clone()
			m.Optimistic = false
			out = append(out, m)
		}
		for _, m := range msgs {
			if !m.Optimistic {
				continue
			}
			if sig, ok := m.PromptSignature(); ok && model.HasSignature(out, sig) {
				continue
			}
			out = append(out, m)
		}
		return out, nil
	}
}

// AppendValue adds v to the values of the message with the given id.
func AppendValue(messageID string, v model.MessageValue) Mutator {
	return func(msgs []model.Message) ([]model.Message, error) {
		idx := model.IndexOf(msgs, messageID)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
		}
		msgs[idx].Values = append(msgs[idx].Values, v.Clone())
		return msgs, nil
	}
}

// RemoveValue drops the value with valueID from the message with messageID.
// Missing messages or values are not an error.
func RemoveValue(messageID, valueID string) Mutator {
	return func(msgs []model.Message) ([]model.Message, error) {
		idx := model.IndexOf(msgs, messageID)
		if idx < 0 {
			return msgs, nil
		}
		if vi := msgs[idx].ValueIndex(valueID); vi >= 0 {
			values := msgs[idx].Values
			msgs[idx].Values = append(values[:vi], values[vi+1:]...)
		}
		return msgs, nil
	}
}
