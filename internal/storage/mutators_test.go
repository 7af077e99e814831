// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/threadline/internal/model"
)

func promptValue(text string) model.MessageValue {
	return model.MessageValue{
		ID:    "v-" + text,
		Name:  "prompt",
		Type:  model.TypeInput,
		Value: json.RawMessage(`[{"text":"` + text + `"}]`),
	}
}

func optimistic(id, text string) model.Message {
	return model.Message{ID: id, Optimistic: true, Values: []model.MessageValue{promptValue(text)}}
}

func confirmed(id, text string) model.Message {
	return model.Message{ID: id, Values: []model.MessageValue{promptValue(text)}}
}

func ids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestUpsertConfirmed_DropsOptimisticWithSameSignature(t *testing.T) {
	msgs := []model.Message{optimistic("temp-1", "Hi")}

	out, err := UpsertConfirmed(confirmed("real-1", "Hi"))(msgs)
	require.NoError(t, err)
	assert.Equal(t, []string{"real-1"}, ids(out))
	assert.False(t, out[0].Optimistic)
}

func TestUpsertConfirmed_TakesOptimisticSlot(t *testing.T) {
	msgs := []model.Message{
		confirmed("old", "before"),
		optimistic("temp-1", "Hi"),
		optimistic("temp-2", "other"),
	}

	out, err := UpsertConfirmed(confirmed("real-1", "Hi"))(msgs)
	require.NoError(t, err)
	assert.Equal(t, []string{"old", "real-1", "temp-2"}, ids(out))
}

func TestUpsertConfirmed_ReplacesByID(t *testing.T) {
	first := confirmed("real-1", "Hi")
	refined := confirmed("real-1", "Hi")
	refined.Values = append(refined.Values, model.MessageValue{ID: "r", Name: "response", Type: model.TypeOutput})

	msgs := []model.Message{first, confirmed("real-2", "next")}
	out, err := UpsertConfirmed(refined)(msgs)
	require.NoError(t, err)
	assert.Equal(t, []string{"real-1", "real-2"}, ids(out))
	assert.Len(t, out[0].Values, 2)
}

func TestUpsertConfirmed_AppendsWithoutSignature(t *testing.T) {
	msgs := []model.Message{optimistic("temp-1", "Hi")}

	out, err := UpsertConfirmed(model.Message{ID: "real-1"})(msgs)
	require.NoError(t, err)
	assert.Equal(t, []string{"temp-1", "real-1"}, ids(out), "no prompt yet, nothing to dedupe")
}

func TestUpsertConfirmed_NeverRevertsToOptimistic(t *testing.T) {
	in := confirmed("real-1", "Hi")
	in.Optimistic = true

	out, err := UpsertConfirmed(in)(nil)
	require.NoError(t, err)
	assert.False(t, out[0].Optimistic)
}

func TestRemoveOptimistic(t *testing.T) {
	msgs := []model.Message{optimistic("temp-1", "a"), confirmed("real-1", "b"), optimistic("temp-2", "c")}

	out, err := RemoveOptimistic()(msgs)
	require.NoError(t, err)
	assert.Equal(t, []string{"real-1"}, ids(out))
}

func TestRemoveByID(t *testing.T) {
	msgs := []model.Message{optimistic("temp-1", "a"), optimistic("temp-2", "b")}

	out, err := RemoveByID("temp-1")(msgs)
	require.NoError(t, err)
	assert.Equal(t, []string{"temp-2"}, ids(out))

	out, err = RemoveByID("missing")(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"temp-2"}, ids(out))
}

func TestReplaceAll_PreservesInFlightOptimistic(t *testing.T) {
	cached := []model.Message{
		confirmed("real-1", "a"),
		optimistic("temp-2", "b"), // confirmed by the refetch
		optimistic("temp-3", "c"), // still in flight
	}
	history := []model.Message{confirmed("real-1", "a"), confirmed("real-2", "b")}

	out, err := ReplaceAll(history)(cached)
	require.NoError(t, err)
	assert.Equal(t, []string{"real-1", "real-2", "temp-3"}, ids(out))
	assert.True(t, out[2].Optimistic)
}

func TestAppendAndRemoveValue(t *testing.T) {
	msgs := []model.Message{confirmed("real-1", "a")}
	v := model.MessageValue{ID: "temp-v", Name: "_user", Type: model.TypeInput}

	out, err := AppendValue("real-1", v)(msgs)
	require.NoError(t, err)
	require.Len(t, out[0].Values, 2)

	out, err = RemoveValue("real-1", "temp-v")(out)
	require.NoError(t, err)
	assert.Len(t, out[0].Values, 1)
}

func TestAppendValue_MissingMessage(t *testing.T) {
	_, err := AppendValue("nope", model.MessageValue{})(nil)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestChain(t *testing.T) {
	out, err := Chain(
		Append(optimistic("temp-1", "a")),
		Append(confirmed("real-1", "b")),
		RemoveOptimistic(),
	)(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"real-1"}, ids(out))

	_, err = Chain(Append(confirmed("x", "y")), AppendValue("missing", model.MessageValue{}))(nil)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}
