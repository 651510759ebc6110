package queue

import (
	"context"
	"time"

	"github.com/erikbeerepoot/bramble/internal/config"
	"github.com/erikbeerepoot/bramble/internal/errors"
	"github.com/erikbeerepoot/bramble/internal/hub"
	"github.com/erikbeerepoot/bramble/internal/logger"
	"github.com/erikbeerepoot/bramble/internal/metrics"
)

const (
	defaultRetryDelay   = 30 * time.Second
	defaultPollInterval = time.Second
)

// WorkerOptions configures a Worker. Zero values select defaults.
type WorkerOptions struct {
	Clock   func() time.Time
	Metrics metrics.MetricsCollector
	Logger  logger.ILogger
	Errors  *errors.ErrorHandler
}

// Worker sends due tasks to the hub one at a time
type Worker struct {
	store      *Store
	sender     hub.Sender
	maxRetries int
	retryDelay time.Duration
	poll       time.Duration
	now        func() time.Time
	metrics    metrics.MetricsCollector
	log        logger.ILogger
	errors     *errors.ErrorHandler
	wake       chan struct{}
}

// NewWorker creates a worker draining store through sender
func NewWorker(store *Store, sender hub.Sender, settings config.QueueSettings, opts WorkerOptions) *Worker {
	w := &Worker{
		store:      store,
		sender:     sender,
		maxRetries: settings.MaxRetries,
		retryDelay: settings.RetryDelay,
		poll:       settings.PollInterval,
		now:        opts.Clock,
		metrics:    opts.Metrics,
		log:        opts.Logger,
		errors:     opts.Errors,
		wake:       make(chan struct{}, 1),
	}
	if w.maxRetries < 0 {
		w.maxRetries = 0
	}
	if w.retryDelay <= 0 {
		w.retryDelay = defaultRetryDelay
	}
	if w.poll <= 0 {
		w.poll = defaultPollInterval
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.metrics == nil {
		w.metrics = metrics.NewNullMetrics()
	}
	if w.log == nil {
		w.log = logger.NewComponentLogger("queue")
	}
	if w.errors == nil {
		w.errors = errors.NewErrorHandler(nil)
	}
	return w
}

// Submit enqueues command and wakes the worker
func (w *Worker) Submit(command string) (Task, error) {
	task, err := w.store.Enqueue(command)
	if err != nil {
		return Task{}, err
	}
	w.log.LogDebug("📥 Queued task %s: %s", task.ID, command)
	select {
	case w.wake <- struct{}{}:
	default:
	}
	return task, nil
}

// Start runs the worker loop until ctx is cancelled
func (w *Worker) Start(ctx context.Context) {
	if n, err := w.store.ResetRunning(); err != nil {
		w.log.LogError("Failed to reset interrupted tasks: %v", err)
	} else if n > 0 {
		w.log.LogWarn("Requeued %d tasks interrupted by shutdown", n)
	}

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	w.log.LogInfo("📤 Task queue worker started (max retries: %d, retry delay: %v)", w.maxRetries, w.retryDelay)

	for {
		w.ProcessDue(ctx)
		select {
		case <-ctx.Done():
			w.log.LogDebug("📤 Task queue worker stopped")
			return
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

// ProcessDue attempts every task that is due and returns how many were attempted
func (w *Worker) ProcessDue(ctx context.Context) int {
	tasks, err := w.store.Due(w.now())
	if err != nil {
		w.log.LogError("Failed to load due tasks: %v", err)
		return 0
	}
	attempted := 0
	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		w.attempt(ctx, task)
		attempted++
	}
	return attempted
}

func (w *Worker) attempt(ctx context.Context, task Task) {
	task.State = StateRunning
	task.Attempts++
	if err := w.store.Update(task); err != nil {
		w.log.LogError("Failed to mark task %s running: %v", task.ID, err)
		return
	}

	resp, err := w.sender.Send(ctx, task.Command, 0)
	switch {
	case err == nil:
		w.complete(&task, resp)
	case ctx.Err() != nil:
		// Shutdown: leave it pending for the next start
		task.State = StatePending
		task.Attempts--
	case errors.IsRecoverable(err) && task.Attempts <= w.maxRetries:
		task.State = StatePending
		task.LastError = err.Error()
		task.NextAttemptAt = w.now().Add(w.retryDelay)
		w.log.LogWarn("Task %s attempt %d failed, retrying in %v: %v", task.ID, task.Attempts, w.retryDelay, err)
	default:
		task.State = StateFailed
		task.LastError = err.Error()
		w.errors.Handle(ctx, errors.NewQueueError("send "+task.Command, err, task.ID))
	}

	if task.State.Done() {
		w.metrics.IncrementTaskOutcome(string(task.State))
	}
	if err := w.store.Update(task); err != nil {
		w.log.LogError("Failed to save task %s: %v", task.ID, err)
	}
}

// complete records a response. Anything but a QUEUED acknowledgment is kept
// as a warning so the caller can inspect what the hub said.
func (w *Worker) complete(task *Task, resp hub.Response) {
	task.Result = append([]string(nil), resp...)
	ack, err := hub.InterpretQueued(resp)
	if err != nil {
		task.State = StateWarning
		task.LastError = err.Error()
		w.log.LogWarn("Task %s got an unexpected response: %v", task.ID, err)
		return
	}
	position := ack.Position
	task.State = StateSucceeded
	task.Position = &position
	task.LastError = ""
	w.log.LogInfo("✅ Task %s queued at hub position %d: %s", task.ID, position, task.Command)
}
