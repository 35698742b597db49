package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/promptpilot-hq/promptpilot/pkg/events"
	"github.com/promptpilot-hq/promptpilot/pkg/generator"
	"github.com/promptpilot-hq/promptpilot/pkg/logger"
	"github.com/promptpilot-hq/promptpilot/pkg/metrics"
	"github.com/promptpilot-hq/promptpilot/pkg/models"
)

// GenerationRequest asks for prompt discovery on one message. Manual marks a
// user-initiated request, which may override an existing schedule; automatic
// requests never do.
type GenerationRequest struct {
	Message models.ChatMessage
	History generator.History
	Manual  bool
}

// trackedState is one message's retry machine. The cancel func is the owned
// cancellation token; timer is the owned retry timer. At most one of each is
// live per message, enforced by overwriting or clearing before installing a
// new one.
type trackedState struct {
	state models.RetryState
	req   GenerationRequest
	ctx   context.Context
	cancel context.CancelFunc
	timer *time.Timer
}

// Orchestrator owns one retry state machine per message under tracking.
// Success and no-prompts outcomes leave no record; failed and cancelled
// states are retained until a manual restart overwrites them. Message ids are
// scoped to the active conversation, so a conversation switch must call
// CancelAll before ids can collide with the newly loaded conversation.
type Orchestrator struct {
	invoker  *generator.Invoker
	sessions SessionStarter
	store    MessageStore
	notifier Notifier
	bus      *events.Bus
	delays   []time.Duration
	logger   logger.Logger

	mu     sync.Mutex
	states map[string]*trackedState
}

// New creates an orchestrator. delays is the fixed backoff table; its length
// is the retry cap.
func New(invoker *generator.Invoker, sessions SessionStarter, store MessageStore, notifier Notifier, delays []time.Duration, log logger.Logger) *Orchestrator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Orchestrator{
		invoker:  invoker,
		sessions: sessions,
		store:    store,
		notifier: notifier,
		bus:      events.NewBus(64),
		delays:   delays,
		logger:   log,
		states:   make(map[string]*trackedState),
	}
}

// MaxRetries returns the retry cap derived from the delay table.
func (o *Orchestrator) MaxRetries() int {
	return len(o.delays)
}

// RequestGeneration starts prompt discovery for a message. It returns once
// the first attempt has settled or a retry has been scheduled.
//
// If the message text already carries inline prompt markers the request is
// treated as an immediate success without calling the upstream. While a
// tracked state is running or scheduled, an automatic request is a no-op and
// a manual one silently cancels the schedule and starts fresh. A terminal
// failed or cancelled state is only restarted manually.
func (o *Orchestrator) RequestGeneration(req GenerationRequest) {
	id := req.Message.ID

	// Existing markers mean an earlier run already succeeded
	if generator.HasInlineMarkers(req.Message.Text) {
		o.logger.DebugWithScope(logger.Orchestrator, "Message %s already has prompt markers, skipping generation", id)
		o.handOff(context.Background(), id)
		return
	}

	o.mu.Lock()
	if existing, ok := o.states[id]; ok {
		if !req.Manual {
			o.mu.Unlock()
			o.logger.DebugWithScope(logger.Orchestrator, "Message %s already tracked (%s), ignoring automatic request", id, existing.state.Status)
			return
		}
		o.cancelLocked(existing, true)
		delete(o.states, id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ts := &trackedState{
		state: models.RetryState{
			MessageID:  id,
			Status:     models.RetryRunning,
			MaxRetries: len(o.delays),
			AttemptID:  uuid.NewString(),
		},
		req:    req,
		ctx:    ctx,
		cancel: cancel,
	}
	o.states[id] = ts
	metrics.TrackedStates.Set(float64(len(o.states)))
	o.mu.Unlock()

	o.bus.Publish(id, string(models.RetryRunning))
	o.attempt(ts)
}

// Cancel stops retries for one message. The state is retained as cancelled
// until a manual restart. silent suppresses the user notification.
func (o *Orchestrator) Cancel(messageID string, silent bool) bool {
	o.mu.Lock()
	ts, ok := o.states[messageID]
	if !ok || ts.state.Status.Terminal() {
		o.mu.Unlock()
		return false
	}
	o.cancelLocked(ts, false)
	o.mu.Unlock()

	metrics.Cancellations.WithLabelValues("single").Inc()
	o.bus.Publish(messageID, string(models.RetryCancelled))
	if !silent {
		o.notifier.Info("Prompt discovery cancelled for message %s", messageID)
	}
	return true
}

// CancelAll cancels every tracked state and clears the table. Used when the
// active conversation changes and message ids are about to be reused.
func (o *Orchestrator) CancelAll() {
	o.mu.Lock()
	cleared := make([]string, 0, len(o.states))
	for id, ts := range o.states {
		o.cancelLocked(ts, true)
		cleared = append(cleared, id)
	}
	o.states = make(map[string]*trackedState)
	metrics.TrackedStates.Set(0)
	o.mu.Unlock()

	for _, id := range cleared {
		metrics.Cancellations.WithLabelValues("bulk").Inc()
		o.bus.Publish(id, "")
	}
	o.logger.InfoWithScope(logger.Orchestrator, "Cleared %d tracked retry states", len(cleared))
}

// State returns a snapshot of the tracked retry state for a message.
func (o *Orchestrator) State(messageID string) (models.RetryState, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ts, ok := o.states[messageID]
	if !ok {
		return models.RetryState{}, false
	}
	return ts.state, true
}

// States returns snapshots of every tracked state, for the ops surface.
func (o *Orchestrator) States() []models.RetryState {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]models.RetryState, 0, len(o.states))
	for _, ts := range o.states {
		out = append(out, ts.state)
	}
	return out
}

// Subscribe registers a state-change subscriber and returns an unsubscribe
// function. Delivery is fire-and-forget.
func (o *Orchestrator) Subscribe(fn events.Subscriber) func() {
	return o.bus.Subscribe(fn)
}

// cancelLocked triggers the token and clears the timer. Caller holds o.mu.
func (o *Orchestrator) cancelLocked(ts *trackedState, discard bool) {
	ts.cancel()
	if ts.timer != nil {
		ts.timer.Stop()
		ts.timer = nil
	}
	ts.state.NextRetryAt = time.Time{}
	if !discard {
		ts.state.Status = models.RetryCancelled
	}
}

// attempt runs one generation attempt for ts. It is called with no locks
// held; every upstream interaction is a suspension point and the cancellation
// token is re-checked after each one.
func (o *Orchestrator) attempt(ts *trackedState) {
	if ts.ctx.Err() != nil {
		return
	}

	id := ts.req.Message.ID
	metrics.AttemptsStarted.Inc()
	o.logger.InfoWithScope(logger.Orchestrator, "Attempt %d/%d for message %s (attempt id %s)",
		ts.state.RetryCount+1, ts.state.MaxRetries+1, id, ts.state.AttemptID)

	start := time.Now()
	result, err := o.invoker.Generate(ts.ctx, ts.req.Message, ts.req.History)
	if err != nil {
		// Cancellation observed mid-attempt: no classification, no side effects
		return
	}
	metrics.AttemptDuration.Observe(time.Since(start).Seconds())
	metrics.AttemptOutcomes.WithLabelValues(string(result.Status)).Inc()

	switch result.Status {
	case models.AttemptSuccess:
		o.finishSuccess(ts, result)
	case models.AttemptNoPrompts:
		o.logger.InfoWithScope(logger.Orchestrator, "No prompts found in message %s", id)
		o.untrack(ts)
	case models.AttemptError:
		o.handleError(ts, result.ErrorType, result.ErrorMessage)
	}
}

// finishSuccess persists the suggestions, hands off to the session starter
// and removes the tracked state. A hand-off failure after the text mutation
// is logged but not reverted.
func (o *Orchestrator) finishSuccess(ts *trackedState, result models.AttemptResult) {
	id := ts.req.Message.ID

	if ts.ctx.Err() != nil {
		return
	}
	if o.store == nil {
		o.handleError(ts, models.ErrTypeContextUnavailable, "no message store attached")
		return
	}
	if err := o.store.ApplyPrompts(id, result.Suggestions); err != nil {
		o.handleError(ts, models.ErrTypeInsertionFailed, err.Error())
		return
	}
	if ts.ctx.Err() != nil {
		return
	}

	o.store.SaveSoon()
	if ts.ctx.Err() != nil {
		return
	}

	o.logger.InfoWithScope(logger.Orchestrator, "Message %s: %d suggestion(s) inserted", id, len(result.Suggestions))
	o.handOff(ts.ctx, id)
	o.untrack(ts)
}

// handOff starts an image-generation session unless one already exists.
func (o *Orchestrator) handOff(ctx context.Context, messageID string) {
	if o.sessions == nil {
		return
	}
	if o.sessions.HasSession(messageID) {
		metrics.SessionHandoffs.WithLabelValues("skipped").Inc()
		return
	}
	if err := o.sessions.StartSession(ctx, messageID); err != nil {
		// Best effort: the inserted prompts stay in place
		metrics.SessionHandoffs.WithLabelValues("error").Inc()
		o.logger.ErrorWithScope(logger.Orchestrator, "Session hand-off failed for message %s: %v", messageID, err)
		return
	}
	metrics.SessionHandoffs.WithLabelValues("success").Inc()
}

// handleError schedules a retry or enters the terminal failed state.
func (o *Orchestrator) handleError(ts *trackedState, errType, errMsg string) {
	id := ts.req.Message.ID
	metrics.AttemptErrors.WithLabelValues(errType).Inc()

	o.mu.Lock()
	if o.states[id] != ts || ts.state.Status != models.RetryRunning || ts.ctx.Err() != nil {
		o.mu.Unlock()
		return
	}

	ts.state.LastErrType = errType
	ts.state.LastErrMsg = errMsg

	if ts.state.RetryCount >= ts.state.MaxRetries {
		ts.state.Status = models.RetryFailed
		if ts.timer != nil {
			ts.timer.Stop()
			ts.timer = nil
		}
		ts.state.NextRetryAt = time.Time{}
		o.mu.Unlock()

		metrics.MaxRetriesReached.Inc()
		o.logger.ErrorWithScope(logger.Orchestrator, "Message %s failed after %d retries: %s (%s)",
			id, ts.state.MaxRetries, errMsg, errType)
		o.notifier.Warning("Prompt discovery for message %s gave up after %d attempts: %s",
			id, ts.state.MaxRetries+1, errMsg)
		o.bus.Publish(id, string(models.RetryFailed))
		return
	}

	delay := o.delayFor(ts.state.RetryCount)
	ts.state.Status = models.RetryScheduled
	ts.state.NextRetryAt = time.Now().Add(delay)
	if ts.timer != nil {
		ts.timer.Stop()
	}
	ts.timer = time.AfterFunc(delay, func() { o.fireRetry(ts) })
	o.mu.Unlock()

	metrics.RetriesScheduled.Inc()
	o.logger.NoticeWithScope(logger.Orchestrator, "Message %s attempt failed (%s), retry %d/%d in %v",
		id, errType, ts.state.RetryCount+1, ts.state.MaxRetries, delay)
	o.notifier.Info("Prompt discovery attempt %d failed, retrying in %d seconds",
		ts.state.RetryCount+1, int(delay/time.Second))
	o.bus.Publish(id, string(models.RetryScheduled))
}

// fireRetry transitions scheduled -> running when the timer fires. A timer
// racing a cancel or a manual restart finds the state moved on and does
// nothing.
func (o *Orchestrator) fireRetry(ts *trackedState) {
	id := ts.req.Message.ID

	o.mu.Lock()
	if o.states[id] != ts || ts.state.Status != models.RetryScheduled || ts.ctx.Err() != nil {
		o.mu.Unlock()
		return
	}
	ts.state.Status = models.RetryRunning
	ts.state.RetryCount++
	ts.state.NextRetryAt = time.Time{}
	ts.timer = nil
	ts.state.AttemptID = uuid.NewString()
	o.mu.Unlock()

	metrics.RetriesExecuted.Inc()
	o.bus.Publish(id, string(models.RetryRunning))
	o.attempt(ts)
}

// untrack removes a state after a terminal success or no-prompts outcome.
func (o *Orchestrator) untrack(ts *trackedState) {
	id := ts.req.Message.ID

	o.mu.Lock()
	removed := o.states[id] == ts
	if removed {
		if ts.timer != nil {
			ts.timer.Stop()
			ts.timer = nil
		}
		delete(o.states, id)
		metrics.TrackedStates.Set(float64(len(o.states)))
	}
	o.mu.Unlock()

	if removed {
		o.bus.Publish(id, "")
	}
}

// delayFor reads the backoff table, reusing the last entry past the end.
func (o *Orchestrator) delayFor(retryCount int) time.Duration {
	if retryCount >= len(o.delays) {
		return o.delays[len(o.delays)-1]
	}
	return o.delays[retryCount]
}

// Close cancels everything and shuts the event bus down.
func (o *Orchestrator) Close() {
	o.CancelAll()
	o.bus.Close()
}
