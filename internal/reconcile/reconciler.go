// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jeranaias/threadline/internal/bubble"
	"github.com/jeranaias/threadline/internal/channels"
	"github.com/jeranaias/threadline/internal/cloud"
	"github.com/jeranaias/threadline/internal/feed"
	"github.com/jeranaias/threadline/internal/frame"
	"github.com/jeranaias/threadline/internal/logging"
	"github.com/jeranaias/threadline/internal/model"
	"github.com/jeranaias/threadline/internal/storage"
	"github.com/jeranaias/threadline/internal/telemetry"
)

// Transport is the subset of the message API the reconciler needs.
// *cloud.Client satisfies it.
type Transport interface {
	StreamMessage(ctx context.Context, req cloud.CreateMessageRequest, onProgress cloud.ProgressFunc) error
	StreamValue(ctx context.Context, messageID string, req cloud.AddValueRequest, onProgress cloud.ProgressFunc) error
	ListMessages(ctx context.Context, threadID string) ([]model.Message, error)
}

// RollbackScope selects what a failed send removes from the cache.
type RollbackScope string

const (
	// RollbackThread removes every optimistic entry of the thread.
	RollbackThread RollbackScope = "thread"

	// RollbackOperation removes only the failed send's own placeholder.
	RollbackOperation RollbackScope = "operation"
)

// DefaultRefreshConcurrency bounds RefreshThreads when unset.
const DefaultRefreshConcurrency = 4

// Config holds reconciler settings.
type Config struct {
	// User is recorded as createdBy on optimistic entries.
	User string

	// RollbackScope defaults to RollbackThread.
	RollbackScope RollbackScope

	// StreamTimeout bounds each streaming call. Zero means no bound
	// beyond the caller's context.
	StreamTimeout time.Duration

	// RefreshConcurrency bounds RefreshThreads.
	RefreshConcurrency int
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Reconciler) { r.log = logging.OrNop(l) }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithDecoder replaces the default frame decoder.
func WithDecoder(d *frame.Decoder) Option {
	return func(r *Reconciler) {
		if d != nil {
			r.decoder = d
		}
	}
}

// =============================================================================
// RECONCILER
// =============================================================================

// Reconciler drives optimistic sends and applies their streamed results to
// a Store. It is safe for concurrent use; concurrent operations on the same
// thread each apply their changes to the latest cached list.
type Reconciler struct {
	transport Transport
	store     *storage.Store
	decoder   *frame.Decoder
	cfg       Config
	log       *logging.Logger
	metrics   *telemetry.Metrics
}

// New creates a reconciler.
func New(t Transport, store *storage.Store, cfg Config, opts ...Option) *Reconciler {
	if cfg.RollbackScope == "" {
		cfg.RollbackScope = RollbackThread
	}
	if cfg.RefreshConcurrency <= 0 {
		cfg.RefreshConcurrency = DefaultRefreshConcurrency
	}
	r := &Reconciler{
		transport: t,
		store:     store,
		decoder:   frame.NewDecoder(nil),
		cfg:       cfg,
		log:       logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Messages returns the cached messages of a thread, oldest first.
func (r *Reconciler) Messages(threadID string) []model.Message {
	return r.store.Get(threadID)
}

// Bubbles renders the cached thread.
func (r *Reconciler) Bubbles(threadID string) []model.Bubble {
	return bubble.BuildThread(r.store.Get(threadID))
}

// =============================================================================
// SEND
// =============================================================================

// SendMessage posts a new user message. The returned stream yields every
// confirmed message snapshot in decode order, then completes. On failure
// the optimistic state is rolled back before the stream reports an
// *OpError.
func (r *Reconciler) SendMessage(ctx context.Context, threadID, content string, files []model.FileRef) *feed.Stream[model.Message] {
	out := feed.New[model.Message]()

	if err := storage.ValidateThreadID(threadID); err != nil {
		out.Fail(newOpError(OpSend, threadID, KindRequest, err))
		return out
	}
	r.warm(ctx, threadID)

	placeholder := model.NewOptimisticMessage(r.cfg.User, content, files)
	placeholder.MessageThreadID = threadID
	if _, err := r.store.Upsert(threadID, storage.Append(placeholder)); err != nil {
		out.Fail(newOpError(OpSend, threadID, KindRequest, err))
		return out
	}

	go r.runSend(ctx, threadID, placeholder, out)
	return out
}

func (r *Reconciler) runSend(ctx context.Context, threadID string, placeholder model.Message, out *feed.Stream[model.Message]) {
	ctx, cancel := r.streamContext(ctx)
	defer cancel()

	start := time.Now()
	log := r.log.With("op", OpSend, "thread_id", threadID, "temp_id", placeholder.ID)
	dec := r.newTick(OpSend)

	req := cloud.NewCreateMessageRequest(threadID, placeholder)
	err := r.transport.StreamMessage(ctx, req, func(buf string) error {
		msg, ok, err := dec.next(buf)
		if err != nil || !ok {
			return err
		}
		if err := r.confirm(threadID, msg); err != nil {
			return err
		}
		return out.Emit(msg)
	})
	if err == nil && dec.frames == 0 {
		err = ErrNoValidMessage
	}

	if err != nil {
		kind := classify(err)
		r.rollbackSend(threadID, placeholder.ID)
		r.metrics.ObserveRollback(OpSend, string(kind))
		r.metrics.ObserveStream(OpSend, string(kind), time.Since(start))
		log.Warn("send failed", "kind", kind, "frames", dec.frames, "error", err)
		out.Fail(newOpError(OpSend, threadID, kind, err))
		return
	}

	r.metrics.ObserveStream(OpSend, telemetry.OutcomeOK, time.Since(start))
	log.Debug("send completed", "frames", dec.frames, "duration", time.Since(start))
	out.Complete()
}

func (r *Reconciler) rollbackSend(threadID, tempID string) {
	m := storage.RemoveOptimistic()
	if r.cfg.RollbackScope == RollbackOperation {
		m = storage.RemoveByID(tempID)
	}
	if _, err := r.store.Upsert(threadID, m); err != nil {
		r.log.Error("rollback failed", "thread_id", threadID, "error", err)
	}
}

// confirm upserts a decoded message and counts the placeholders it replaced.
func (r *Reconciler) confirm(threadID string, msg model.Message) error {
	dropped := 0
	_, err := r.store.Upsert(threadID, func(cur []model.Message) ([]model.Message, error) {
		before := len(model.Optimistic(cur))
		next, err := storage.UpsertConfirmed(msg)(cur)
		if err != nil {
			return nil, err
		}
		dropped = before - len(model.Optimistic(next))
		return next, nil
	})
	if err == nil {
		r.metrics.ObserveOptimisticDropped(dropped)
	}
	return err
}

// =============================================================================
// ADD INPUT
// =============================================================================

// AddInputToMessage appends an Input value to an existing message and
// resolves to the last message snapshot the server streams back. A nil
// channels map is computed by merging the channels of every value already
// on the cached message. On failure the optimistic value is removed again.
func (r *Reconciler) AddInputToMessage(ctx context.Context, threadID, messageID, name string, value json.RawMessage, chans map[string]int) (model.Message, error) {
	if err := storage.ValidateThreadID(threadID); err != nil {
		return model.Message{}, newOpError(OpAddInput, threadID, KindRequest, err)
	}
	r.warm(ctx, threadID)

	cached, ok := r.findMessage(threadID, messageID)
	if !ok {
		err := fmt.Errorf("%w: %s", storage.ErrMessageNotFound, messageID)
		return model.Message{}, newOpError(OpAddInput, threadID, KindRequest, err)
	}
	if chans == nil {
		chans = channels.Fold(cached.Values)
	}
	if len(value) == 0 {
		value = json.RawMessage("null")
	}

	pending := model.NewInputValue(name, value, chans, r.cfg.User, time.Now().UTC())
	if _, err := r.store.Upsert(threadID, storage.AppendValue(messageID, pending)); err != nil {
		return model.Message{}, newOpError(OpAddInput, threadID, KindRequest, err)
	}

	ctx, cancel := r.streamContext(ctx)
	defer cancel()

	start := time.Now()
	dec := r.newTick(OpAddInput)
	var last model.Message

	req := cloud.AddValueRequest{
		MessageThreadID: threadID,
		Name:            name,
		Type:            model.TypeInput,
		Value:           value,
		Channels:        pending.Channels,
	}
	err := r.transport.StreamValue(ctx, messageID, req, func(buf string) error {
		msg, ok, err := dec.next(buf)
		if err != nil || !ok {
			return err
		}
		if err := r.confirm(threadID, msg); err != nil {
			return err
		}
		last = msg
		return nil
	})
	if err == nil && dec.frames == 0 {
		err = ErrNoValidMessage
	}

	if err != nil {
		kind := classify(err)
		if _, rerr := r.store.Upsert(threadID, storage.RemoveValue(messageID, pending.ID)); rerr != nil {
			r.log.Error("rollback failed", "thread_id", threadID, "message_id", messageID, "error", rerr)
		}
		r.metrics.ObserveRollback(OpAddInput, string(kind))
		r.metrics.ObserveStream(OpAddInput, string(kind), time.Since(start))
		r.log.Warn("add input failed", "thread_id", threadID, "message_id", messageID,
			"kind", kind, "error", err)
		return model.Message{}, newOpError(OpAddInput, threadID, kind, err)
	}

	r.metrics.ObserveStream(OpAddInput, telemetry.OutcomeOK, time.Since(start))
	return last, nil
}

func (r *Reconciler) findMessage(threadID, messageID string) (model.Message, bool) {
	msgs := r.store.Get(threadID)
	if idx := model.IndexOf(msgs, messageID); idx >= 0 {
		return msgs[idx], true
	}
	return model.Message{}, false
}

// =============================================================================
// HELPERS
// =============================================================================

// warm loads a persisted snapshot into the cache if the thread is not cached.
func (r *Reconciler) warm(ctx context.Context, threadID string) {
	if r.store.Has(threadID) {
		return
	}
	if _, err := r.store.Load(ctx, threadID); err != nil && !errors.Is(err, storage.ErrThreadNotFound) {
		r.log.Warn("snapshot load failed", "thread_id", threadID, "error", err)
	}
}

func (r *Reconciler) streamContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.StreamTimeout > 0 {
		return context.WithTimeout(ctx, r.cfg.StreamTimeout)
	}
	return context.WithCancel(ctx)
}

// tick tracks decoding state for one streaming response.
type tick struct {
	r      *Reconciler
	op     string
	last   string
	frames int
}

func (r *Reconciler) newTick(op string) *tick {
	return &tick{r: r, op: op}
}

// next decodes the newest frame of buf. ok is false when the trailing frame
// is incomplete or identical to the one already applied.
func (t *tick) next(buf string) (model.Message, bool, error) {
	payload, found := frame.LastPayload(buf)
	if !found {
		t.r.metrics.ObserveIncomplete(t.op)
		return model.Message{}, false, nil
	}
	if payload == t.last {
		return model.Message{}, false, nil
	}

	msg, err := t.r.decoder.Decode(buf)
	if err != nil {
		t.r.metrics.ObserveValidationFailure(t.op)
		return model.Message{}, false, err
	}
	if msg == nil {
		t.r.metrics.ObserveIncomplete(t.op)
		return model.Message{}, false, nil
	}

	t.last = payload
	t.frames++
	t.r.metrics.ObserveFrame(t.op)
	return *msg, true, nil
}
