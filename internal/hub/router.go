package hub

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/erikbeerepoot/bramble/internal/errors"
	"github.com/erikbeerepoot/bramble/internal/logger"
	"github.com/erikbeerepoot/bramble/internal/metrics"
	"github.com/erikbeerepoot/bramble/internal/protocol"
)

// ResponseSink receives lines belonging to the outstanding command
type ResponseSink interface {
	Deliver(line protocol.ResponseLine)
}

// SampleHandler receives live per-field samples
type SampleHandler interface {
	Add(sample protocol.SensorSample)
}

// BatchHandler receives bulk upload fragments
type BatchHandler interface {
	Start(msg protocol.BatchStart)
	Record(msg protocol.BatchRecord)
	Complete(msg protocol.BatchComplete)
}

// StatusHandler receives node health reports
type StatusHandler interface {
	HandleStatus(report protocol.NodeStatusReport)
}

// RouterDeps are the destinations of a Router. Any handler may be nil, in
// which case those pushes are dropped.
type RouterDeps struct {
	Responses ResponseSink
	Samples   SampleHandler
	Batches   BatchHandler
	Status    StatusHandler
	Link      LineWriter
	Clock     func() time.Time
	Metrics   metrics.MetricsCollector
	Logger    logger.ILogger
}

// Router classifies every received line and sends it to exactly one
// destination: the datetime responder, a push handler, or the engine.
type Router struct {
	deps RouterDeps
}

// NewRouter creates a router
func NewRouter(deps RouterDeps) *Router {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNullMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewComponentLogger("router")
	}
	return &Router{deps: deps}
}

// HandleLine is the transport's line handler. A failure handling one line
// never stops the reader.
func (r *Router) HandleLine(line string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.deps.Logger.LogError("Error handling line %q: %v", line, rec)
		}
	}()

	msg, err := protocol.Decode(line)
	if err != nil {
		var protoErr *errors.ProtocolError
		if stderrors.As(err, &protoErr) {
			r.deps.Metrics.IncrementMalformedLines()
		}
		r.deps.Logger.LogWarn("Dropping malformed line: %v", err)
		return
	}

	switch m := msg.(type) {
	case protocol.DateTimeQuery:
		r.replyDateTime()
	case protocol.SensorSample:
		if r.deps.Samples != nil {
			r.deps.Samples.Add(m)
		}
	case protocol.BatchStart:
		if r.deps.Batches != nil {
			r.deps.Batches.Start(m)
		}
	case protocol.BatchRecord:
		if r.deps.Batches != nil {
			r.deps.Batches.Record(m)
		}
	case protocol.BatchComplete:
		if r.deps.Batches != nil {
			r.deps.Batches.Complete(m)
		}
	case protocol.NodeStatusReport:
		if r.deps.Status != nil {
			r.deps.Status.HandleStatus(m)
		}
	case protocol.ResponseLine:
		if r.deps.Responses != nil {
			r.deps.Responses.Deliver(m)
		}
	default:
		panic(fmt.Sprintf("unhandled message type %T", msg))
	}
}

func (r *Router) replyDateTime() {
	reply := protocol.FormatDateTime(r.deps.Clock())
	if r.deps.Link == nil {
		return
	}
	if err := r.deps.Link.WriteLine(reply); err != nil {
		r.deps.Logger.LogError("Failed to answer datetime query: %v", err)
		return
	}
	r.deps.Logger.LogInfo("🕐 Responded to datetime query: %s", reply)
}
