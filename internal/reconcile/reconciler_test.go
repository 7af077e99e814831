// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/threadline/internal/cloud"
	"github.com/jeranaias/threadline/internal/model"
	"github.com/jeranaias/threadline/internal/schema"
	"github.com/jeranaias/threadline/internal/storage"
	"github.com/jeranaias/threadline/internal/telemetry"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// fakeTransport replays scripted chunks as cumulative progress ticks.
type fakeTransport struct {
	mu sync.Mutex

	chunks []string
	err    error
	block  bool
	onTick func(i int)

	lists   map[string][]model.Message
	listErr map[string]error

	created   []cloud.CreateMessageRequest
	added     []cloud.AddValueRequest
	messageID string
}

func (f *fakeTransport) StreamMessage(ctx context.Context, req cloud.CreateMessageRequest, onProgress cloud.ProgressFunc) error {
	f.mu.Lock()
	f.created = append(f.created, req)
	f.mu.Unlock()
	return f.play(ctx, onProgress)
}

func (f *fakeTransport) StreamValue(ctx context.Context, messageID string, req cloud.AddValueRequest, onProgress cloud.ProgressFunc) error {
	f.mu.Lock()
	f.added = append(f.added, req)
	f.messageID = messageID
	f.mu.Unlock()
	return f.play(ctx, onProgress)
}

func (f *fakeTransport) ListMessages(ctx context.Context, threadID string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listErr[threadID]; err != nil {
		return nil, err
	}
	return f.lists[threadID], nil
}

func (f *fakeTransport) play(ctx context.Context, onProgress cloud.ProgressFunc) error {
	var acc string
	for i, c := range f.chunks {
		acc += c
		if err := onProgress(acc); err != nil {
			return err
		}
		if f.onTick != nil {
			f.onTick(i)
		}
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

const (
	t0 = "2024-05-01T10:00:00Z"
	t1 = "2024-05-01T10:00:01Z"
)

func value(id, name, typ, createdAt string, v any, ch map[string]int) map[string]any {
	if ch == nil {
		ch = map[string]int{}
	}
	return map[string]any{
		"id": id, "name": name, "type": typ, "value": v, "channels": ch,
		"createdAt": createdAt, "createdBy": "alice",
	}
}

func promptValue(id, text string) map[string]any {
	return value(id, "prompt", "Input", t0, []map[string]string{{"text": text}}, nil)
}

func responseValue(id, text string) map[string]any {
	return value(id, "response", "Output", t1, text, nil)
}

func messageJSON(t *testing.T, id string, values ...map[string]any) string {
	t.Helper()
	if values == nil {
		values = []map[string]any{}
	}
	b, err := json.Marshal(map[string]any{
		"id": id, "createdAt": t0, "createdBy": "alice", "values": values,
	})
	require.NoError(t, err)
	return string(b)
}

func confirmed(id, prompt string) model.Message {
	at, _ := time.Parse(time.RFC3339, t0)
	v := model.NewInputValue(model.ValuePrompt, json.RawMessage(`[{"text":"`+prompt+`"}]`), nil, "alice", at)
	v.ID = id + "-prompt"
	return model.Message{ID: id, CreatedAt: at, CreatedBy: "alice", Values: []model.MessageValue{v}}
}

func newTestReconciler(tr Transport, cfg Config, opts ...Option) (*Reconciler, *storage.Store) {
	store := storage.NewStore()
	if cfg.User == "" {
		cfg.User = "alice"
	}
	return New(tr, store, cfg, opts...), store
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// =============================================================================
// SEND TESTS
// =============================================================================

func TestSendMessage_ConfirmsAndDropsPlaceholder(t *testing.T) {
	frame1 := messageJSON(t, "m1", promptValue("v1", "hello"))
	frame2 := messageJSON(t, "m1", promptValue("v1", "hello"), responseValue("v2", "hi there"))

	tr := &fakeTransport{chunks: []string{
		"data: " + frame1[:20],
		frame1[20:] + "\n\n",
		"data: " + frame2 + "\n\n",
	}}
	r, store := newTestReconciler(tr, Config{})

	var duringPartial []model.Message
	tr.onTick = func(i int) {
		if i == 0 {
			duringPartial = store.Get("t1")
		}
	}

	msgs, err := r.SendMessage(testContext(t), "t1", "hello", nil).Collect(testContext(t))
	require.NoError(t, err)

	require.Len(t, duringPartial, 1)
	assert.True(t, duringPartial[0].Optimistic, "placeholder is visible before the first frame")

	require.Len(t, msgs, 2)
	assert.Len(t, msgs[0].Values, 1)
	assert.Len(t, msgs[1].Values, 2)

	cached := store.Get("t1")
	require.Len(t, cached, 1)
	assert.Equal(t, "m1", cached[0].ID)
	assert.False(t, cached[0].Optimistic)
	assert.Len(t, cached[0].Values, 2)

	require.Len(t, tr.created, 1)
	assert.Equal(t, "t1", tr.created[0].MessageThreadID)
	require.Len(t, tr.created[0].Values, 1)
	assert.Equal(t, "prompt", tr.created[0].Values[0].Name)
}

func TestSendMessage_SkipsRepeatedFrame(t *testing.T) {
	frame1 := messageJSON(t, "m1", promptValue("v1", "hello"))
	tr := &fakeTransport{chunks: []string{"data: " + frame1, "\n\n", ": keep-alive\n\n"}}
	r, _ := newTestReconciler(tr, Config{})

	msgs, err := r.SendMessage(testContext(t), "t1", "hello", nil).Collect(testContext(t))
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestSendMessage_KeepsUnrelatedMessages(t *testing.T) {
	tr := &fakeTransport{chunks: []string{"data: " + messageJSON(t, "m2", promptValue("v1", "second")) + "\n\n"}}
	r, store := newTestReconciler(tr, Config{})
	_, err := store.Upsert("t1", storage.Append(confirmed("m1", "first")))
	require.NoError(t, err)

	_, err = r.SendMessage(testContext(t), "t1", "second", nil).Collect(testContext(t))
	require.NoError(t, err)

	cached := store.Get("t1")
	require.Len(t, cached, 2)
	assert.Equal(t, "m1", cached[0].ID)
	assert.Equal(t, "m2", cached[1].ID)
	assert.Empty(t, model.Optimistic(cached))
}

func TestSendMessage_WithFiles(t *testing.T) {
	tr := &fakeTransport{err: errors.New("offline")}
	r, _ := newTestReconciler(tr, Config{})

	files := []model.FileRef{{ID: "f1", Name: "report.pdf"}}
	_, err := r.SendMessage(testContext(t), "t1", "see attached", files).Collect(testContext(t))
	require.Error(t, err)

	require.Len(t, tr.created, 1)
	vals := tr.created[0].Values
	require.Len(t, vals, 2)
	assert.Equal(t, "files", vals[0].Name)
	assert.JSONEq(t, `[{"id":"f1","name":"report.pdf"}]`, string(vals[0].Value))
	assert.Equal(t, "prompt", vals[1].Name)
}

func TestSendMessage_FailureRollsBack(t *testing.T) {
	invalid := `{"id":"m1","createdBy":"alice"}`
	tests := []struct {
		name     string
		tr       *fakeTransport
		kind     Kind
		sentinel error
	}{
		{
			name: "transport error",
			tr:   &fakeTransport{err: errors.New("connection reset")},
			kind: KindTransport,
		},
		{
			name:     "schema failure",
			tr:       &fakeTransport{chunks: []string{"data: " + invalid + "\n\n"}},
			kind:     KindValidation,
			sentinel: schema.ErrInvalidPayload,
		},
		{
			name:     "empty stream",
			tr:       &fakeTransport{chunks: []string{`data: {"id":"m1",`}},
			kind:     KindEmptyStream,
			sentinel: ErrNoValidMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, store := newTestReconciler(tt.tr, Config{})
			_, err := store.Upsert("t1", storage.Append(confirmed("m0", "earlier")))
			require.NoError(t, err)

			stream := r.SendMessage(testContext(t), "t1", "hello", nil)
			_, err = stream.Collect(testContext(t))
			require.Error(t, err)

			assert.True(t, IsKind(err, tt.kind), "got %v", err)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}

			var opErr *OpError
			require.True(t, errors.As(err, &opErr))
			assert.Equal(t, OpSend, opErr.Op)
			assert.Equal(t, "t1", opErr.ThreadID)

			cached := store.Get("t1")
			require.Len(t, cached, 1, "rollback happens before the failure is reported")
			assert.Equal(t, "m0", cached[0].ID)
		})
	}
}

func TestSendMessage_RollbackScope(t *testing.T) {
	tests := []struct {
		name      string
		scope     RollbackScope
		remaining int
	}{
		{"thread scope clears every placeholder", RollbackThread, 0},
		{"operation scope clears its own placeholder", RollbackOperation, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTransport{err: errors.New("boom")}
			r, store := newTestReconciler(tr, Config{RollbackScope: tt.scope})
			other := model.NewOptimisticMessage("alice", "in flight elsewhere", nil)
			_, err := store.Upsert("t1", storage.Append(other))
			require.NoError(t, err)

			_, err = r.SendMessage(testContext(t), "t1", "hello", nil).Collect(testContext(t))
			require.Error(t, err)

			cached := store.Get("t1")
			assert.Len(t, cached, tt.remaining)
			if tt.remaining == 1 {
				assert.Equal(t, other.ID, cached[0].ID)
			}
		})
	}
}

func TestSendMessage_ValidationAfterFramesKeepsConfirmed(t *testing.T) {
	good := messageJSON(t, "m1", promptValue("v1", "hello"))
	tr := &fakeTransport{chunks: []string{
		"data: " + good + "\n\n",
		`data: {"id":"m1","createdBy":"alice"}` + "\n\n",
	}}
	r, store := newTestReconciler(tr, Config{})

	msgs, err := r.SendMessage(testContext(t), "t1", "hello", nil).Collect(testContext(t))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindValidation))
	assert.Len(t, msgs, 1, "frames before the failure were delivered")

	cached := store.Get("t1")
	require.Len(t, cached, 1)
	assert.Equal(t, "m1", cached[0].ID)
}

func TestSendMessage_Timeout(t *testing.T) {
	tr := &fakeTransport{block: true}
	r, store := newTestReconciler(tr, Config{StreamTimeout: 20 * time.Millisecond})

	_, err := r.SendMessage(testContext(t), "t1", "hello", nil).Collect(testContext(t))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTransport))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, store.Get("t1"))
}

func TestSendMessage_InvalidThreadID(t *testing.T) {
	r, store := newTestReconciler(&fakeTransport{}, Config{})

	_, err := r.SendMessage(testContext(t), "../etc", "hello", nil).Collect(testContext(t))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindRequest))
	assert.ErrorIs(t, err, storage.ErrInvalidThreadID)
	assert.Empty(t, store.Threads())
}

func TestSendMessage_Metrics(t *testing.T) {
	m, err := telemetry.New("test", nil)
	require.NoError(t, err)

	good := messageJSON(t, "m1", promptValue("v1", "hello"))
	tr := &fakeTransport{chunks: []string{"data: {", "\"id\":1", "\n\n", "data: " + good + "\n\n"}}
	r, _ := newTestReconciler(tr, Config{}, WithMetrics(m))

	_, err = r.SendMessage(testContext(t), "t1", "hello", nil).Collect(testContext(t))
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesDecoded.WithLabelValues(OpSend)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.IncompleteTicks.WithLabelValues(OpSend)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OptimisticDropped))
}

// =============================================================================
// ADD INPUT TESTS
// =============================================================================

func seedFormMessage(t *testing.T, store *storage.Store) model.Message {
	t.Helper()
	at, _ := time.Parse(time.RFC3339, t0)
	msg := model.Message{
		ID: "m1", CreatedAt: at, CreatedBy: "assistant",
		Values: []model.MessageValue{
			{ID: "a", Name: "_user", Type: model.TypeOutput, Value: json.RawMessage(`{"message":"pick"}`),
				Channels: map[string]int{"form": 1}, CreatedAt: at},
			{ID: "b", Name: "response", Type: model.TypeOutput, Value: json.RawMessage(`"ok"`),
				Channels: map[string]int{"form": 2, "step": 1}, CreatedAt: at},
		},
	}
	_, err := store.Upsert("t1", storage.Append(msg))
	require.NoError(t, err)
	return msg
}

func TestAddInputToMessage_Success(t *testing.T) {
	final := messageJSON(t, "m1",
		value("a", "_user", "Output", t0, map[string]any{"message": "pick"}, map[string]int{"form": 1}),
		value("c", "_user", "Input", t1, map[string]any{"choice": 2}, map[string]int{"form": 2, "step": 1}),
	)
	tr := &fakeTransport{chunks: []string{"data: " + final[:10], final[10:] + "\n\n"}}
	r, store := newTestReconciler(tr, Config{})
	seedFormMessage(t, store)

	var duringPartial []model.Message
	tr.onTick = func(i int) {
		if i == 0 {
			duringPartial = store.Get("t1")
		}
	}

	got, err := r.AddInputToMessage(testContext(t), "t1", "m1", "_user", json.RawMessage(`{"choice":2}`), nil)
	require.NoError(t, err)

	require.Len(t, duringPartial, 1)
	require.Len(t, duringPartial[0].Values, 3, "input is appended optimistically")
	pending := duringPartial[0].Values[2]
	assert.Equal(t, model.TypeInput, pending.Type)
	assert.Equal(t, "alice", pending.CreatedBy)

	require.Len(t, tr.added, 1)
	assert.Equal(t, "m1", tr.messageID)
	assert.Equal(t, map[string]int{"form": 2, "step": 1}, tr.added[0].Channels, "channels are merged from the cached values")
	assert.Equal(t, model.TypeInput, tr.added[0].Type)

	assert.Equal(t, "m1", got.ID)
	require.Len(t, got.Values, 2)
	cached := store.Get("t1")
	require.Len(t, cached, 1)
	assert.Equal(t, []string{"a", "c"}, []string{cached[0].Values[0].ID, cached[0].Values[1].ID})
}

func TestAddInputToMessage_ExplicitChannels(t *testing.T) {
	final := messageJSON(t, "m1")
	tr := &fakeTransport{chunks: []string{final}}
	r, store := newTestReconciler(tr, Config{})
	seedFormMessage(t, store)

	_, err := r.AddInputToMessage(testContext(t), "t1", "m1", "answer", nil, map[string]int{"x": 7})
	require.NoError(t, err)
	require.Len(t, tr.added, 1)
	assert.Equal(t, map[string]int{"x": 7}, tr.added[0].Channels)
	assert.Equal(t, "null", string(tr.added[0].Value))
}

func TestAddInputToMessage_FailureStripsValue(t *testing.T) {
	tests := []struct {
		name string
		tr   *fakeTransport
		kind Kind
	}{
		{"transport error", &fakeTransport{err: errors.New("reset")}, KindTransport},
		{"empty stream", &fakeTransport{chunks: []string{"data: {"}}, KindEmptyStream},
		{"schema failure", &fakeTransport{chunks: []string{`{"id":""}`}}, KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, store := newTestReconciler(tt.tr, Config{})
			seed := seedFormMessage(t, store)

			_, err := r.AddInputToMessage(testContext(t), "t1", "m1", "_user", json.RawMessage(`1`), nil)
			require.Error(t, err)
			assert.True(t, IsKind(err, tt.kind), "got %v", err)

			cached := store.Get("t1")
			require.Len(t, cached, 1)
			assert.Len(t, cached[0].Values, len(seed.Values))
		})
	}
}

func TestAddInputToMessage_UnknownMessage(t *testing.T) {
	tr := &fakeTransport{}
	r, store := newTestReconciler(tr, Config{})
	seedFormMessage(t, store)

	_, err := r.AddInputToMessage(testContext(t), "t1", "missing", "_user", nil, nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindRequest))
	assert.ErrorIs(t, err, storage.ErrMessageNotFound)
	assert.Empty(t, tr.added)
}

// =============================================================================
// REFRESH TESTS
// =============================================================================

func TestRefresh_ReplacesAndKeepsInFlight(t *testing.T) {
	tr := &fakeTransport{lists: map[string][]model.Message{
		"t1": {confirmed("m2", "hello"), confirmed("m1", "first")},
	}}
	r, store := newTestReconciler(tr, Config{})

	_, err := store.Upsert("t1", storage.Chain(
		storage.Append(confirmed("stale", "gone")),
		storage.Append(model.NewOptimisticMessage("alice", "hello", nil)),
		storage.Append(model.NewOptimisticMessage("alice", "pending", nil)),
	))
	require.NoError(t, err)

	msgs, err := r.Refresh(testContext(t), "t1")
	require.NoError(t, err)

	require.Len(t, msgs, 3)
	assert.Equal(t, "m1", msgs[0].ID, "history is stored oldest first")
	assert.Equal(t, "m2", msgs[1].ID)
	assert.True(t, msgs[2].Optimistic)
	sig, _ := msgs[2].PromptSignature()
	assert.Equal(t, `[{"text":"pending"}]`, sig)
	assert.Equal(t, msgs, store.Get("t1"))
}

func TestRefresh_ErrorLeavesCache(t *testing.T) {
	tr := &fakeTransport{listErr: map[string]error{"t1": &cloud.APIError{Status: 500, Message: "down"}}}
	r, store := newTestReconciler(tr, Config{})
	_, err := store.Upsert("t1", storage.Append(confirmed("m1", "first")))
	require.NoError(t, err)

	_, err = r.Refresh(testContext(t), "t1")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTransport))
	assert.Len(t, store.Get("t1"), 1)
}

func TestRefreshThreads(t *testing.T) {
	tr := &fakeTransport{lists: map[string][]model.Message{
		"a": {confirmed("a1", "x")},
		"b": {confirmed("b2", "y"), confirmed("b1", "z")},
		"c": nil,
	}}
	r, store := newTestReconciler(tr, Config{RefreshConcurrency: 2})

	require.NoError(t, r.RefreshThreads(testContext(t), "a", "b", "c"))
	assert.Len(t, store.Get("a"), 1)
	assert.Len(t, store.Get("b"), 2)
	assert.True(t, store.Has("c"))
	assert.Empty(t, store.Get("c"))

	tr.listErr = map[string]error{"b": cloud.ErrNotFound}
	err := r.RefreshThreads(testContext(t), "a", "b")
	require.Error(t, err)
	assert.ErrorIs(t, err, cloud.ErrNotFound)
}

func TestRenderHelpers(t *testing.T) {
	frame1 := messageJSON(t, "m1", promptValue("v1", "hello"), responseValue("v2", "hi"))
	tr := &fakeTransport{chunks: []string{frame1}}
	r, _ := newTestReconciler(tr, Config{})

	_, err := r.SendMessage(testContext(t), "t1", "hello", nil).Collect(testContext(t))
	require.NoError(t, err)

	assert.Len(t, r.Messages("t1"), 1)
	bubbles := r.Bubbles("t1")
	require.Len(t, bubbles, 2)
	assert.Equal(t, "hello", bubbles[0].Text())
	assert.Equal(t, "hi", bubbles[1].Text())
}
