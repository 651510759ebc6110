// Package hub implements the command/response engine and the handling of
// unsolicited pushes received from the irrigation hub.
package hub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erikbeerepoot/bramble/internal/errors"
	"github.com/erikbeerepoot/bramble/internal/logger"
	"github.com/erikbeerepoot/bramble/internal/metrics"
	"github.com/erikbeerepoot/bramble/internal/protocol"
)

const (
	defaultCommandTimeout = 5 * time.Second
	responseBufferSize    = 64
)

// Link is the write side of the serial transport
type Link interface {
	WriteLine(line string) error
	IsConnected() bool
}

// CommandObserver is notified of every finished command
type CommandObserver interface {
	CommandSucceeded(verb string, duration time.Duration)
	CommandTimedOut(verb string)
}

// Response is the ordered set of lines collected for one command.
// It is never empty when returned without error.
type Response []string

// First returns the first line, or "" for an empty response
func (r Response) First() string {
	if len(r) == 0 {
		return ""
	}
	return r[0]
}

// Last returns the final line, or "" for an empty response
func (r Response) Last() string {
	if len(r) == 0 {
		return ""
	}
	return r[len(r)-1]
}

// EngineOptions configures an Engine. Zero values select defaults.
type EngineOptions struct {
	DefaultTimeout time.Duration
	Quiet          QuietPeriodPolicy
	Metrics        metrics.MetricsCollector
	Observer       CommandObserver
	Logger         logger.ILogger
}

// Engine serializes commands to the hub and collects their responses.
//
// Execution flow for one Send:
//
//	wait for turn (FIFO) → drain stale lines → write → collect until the
//	verb's predicate matches, the quiet period passes, or the timeout hits → release
type Engine struct {
	link     Link
	lock     fifoLock
	lines    chan protocol.ResponseLine
	timeout  time.Duration
	quiet    QuietPeriodPolicy
	metrics  metrics.MetricsCollector
	observer CommandObserver
	log      logger.ILogger

	collecting atomic.Bool
}

// NewEngine creates an engine writing commands to link
func NewEngine(link Link, opts EngineOptions) *Engine {
	e := &Engine{
		link:     link,
		lines:    make(chan protocol.ResponseLine, responseBufferSize),
		timeout:  opts.DefaultTimeout,
		quiet:    opts.Quiet,
		metrics:  opts.Metrics,
		observer: opts.Observer,
		log:      opts.Logger,
	}
	if e.timeout <= 0 {
		e.timeout = defaultCommandTimeout
	}
	if e.metrics == nil {
		e.metrics = metrics.NewNullMetrics()
	}
	if e.log == nil {
		e.log = logger.NewComponentLogger("engine")
	}
	return e
}

// Deliver hands a response line to the outstanding command. Called from the
// reader goroutine; never blocks.
func (e *Engine) Deliver(line protocol.ResponseLine) {
	select {
	case e.lines <- line:
	default:
		if e.collecting.Load() {
			e.log.LogWarn("Response buffer full, dropping line: %s", line.Text)
		} else {
			e.log.LogWarn("No command waiting, dropping line: %s", line.Text)
		}
	}
}

// Send writes command and waits for its response. A timeout of zero uses the
// engine default. Only one command is outstanding at a time; concurrent
// callers are served in submission order.
func (e *Engine) Send(ctx context.Context, command string, timeout time.Duration) (Response, error) {
	if timeout <= 0 {
		timeout = e.timeout
	}
	verb := protocol.Verb(command)

	if !e.link.IsConnected() {
		e.metrics.IncrementCommandErrors()
		return nil, errors.NewTransportError("send", errors.ErrNotConnected, "")
	}

	if err := e.lock.Lock(ctx); err != nil {
		return nil, err
	}
	defer e.lock.Unlock()

	e.drainStale()

	e.collecting.Store(true)
	defer e.collecting.Store(false)

	start := time.Now()
	e.metrics.IncrementCommands()
	if err := e.link.WriteLine(command); err != nil {
		e.metrics.IncrementCommandErrors()
		return nil, err
	}
	logger.LogDebug("Sent: %s", command)

	resp, err := e.collect(ctx, command, timeout)
	switch {
	case errors.IsTimeout(err):
		e.metrics.IncrementCommandTimeouts()
		if e.observer != nil {
			e.observer.CommandTimedOut(verb)
		}
		e.log.LogWarn("⏱️ No response for %s within %s", command, timeout)
	case err != nil:
		e.metrics.IncrementCommandErrors()
	default:
		elapsed := time.Since(start)
		e.metrics.ObserveCommandDuration(elapsed)
		if e.observer != nil {
			e.observer.CommandSucceeded(verb, elapsed)
		}
	}
	return resp, err
}

func (e *Engine) collect(ctx context.Context, command string, timeout time.Duration) (Response, error) {
	complete := CompletionFor(command)
	collected := make([]protocol.ResponseLine, 0, 4)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	// quiet is armed once the first line arrives and re-armed on every line
	quiet := time.NewTimer(time.Hour)
	quiet.Stop()
	defer quiet.Stop()

	for {
		select {
		case line := <-e.lines:
			collected = append(collected, line)
			if complete != nil && complete(collected) {
				return texts(collected), nil
			}
			if !quiet.Stop() {
				select {
				case <-quiet.C:
				default:
				}
			}
			quiet.Reset(e.quiet.period())

		case <-quiet.C:
			logger.LogTrace("Quiet period ended %s after %d lines", command, len(collected))
			return texts(collected), nil

		case <-deadline.C:
			if len(collected) == 0 {
				return nil, errors.NewTimeoutError(command, timeout)
			}
			return texts(collected), nil

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// drainStale discards lines left over from an earlier, abandoned command
func (e *Engine) drainStale() {
	for {
		select {
		case line := <-e.lines:
			e.log.LogDebug("Cleared stale line before new command: %s", line.Text)
		default:
			return
		}
	}
}

func texts(lines []protocol.ResponseLine) Response {
	out := make(Response, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	return out
}

// fifoLock is a mutex that grants ownership in request order
type fifoLock struct {
	mu      sync.Mutex
	held    bool
	waiters []chan struct{}
}

// Lock blocks until the caller owns the lock or ctx is done
func (l *fifoLock) Lock(ctx context.Context) error {
	l.mu.Lock()
	if !l.held {
		l.held = true
		l.mu.Unlock()
		return nil
	}
	turn := make(chan struct{})
	l.waiters = append(l.waiters, turn)
	l.mu.Unlock()

	select {
	case <-turn:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		for i, w := range l.waiters {
			if w == turn {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				l.mu.Unlock()
				return ctx.Err()
			}
		}
		l.mu.Unlock()
		// Ownership was handed over concurrently; pass it on
		l.Unlock()
		return ctx.Err()
	}
}

// Unlock hands ownership to the oldest waiter, if any
func (l *fifoLock) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.waiters) > 0 {
		next := l.waiters[0]
		l.waiters = l.waiters[1:]
		close(next)
		return
	}
	l.held = false
}
