package serial

import (
	"bytes"
	stderrors "errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erikbeerepoot/bramble/internal/config"
	"github.com/erikbeerepoot/bramble/internal/errors"
	"github.com/erikbeerepoot/bramble/internal/logger"
)

const (
	defaultIdlePoll      = 10 * time.Millisecond
	defaultErrorBackoff  = 100 * time.Millisecond
	defaultJoinTimeout   = 2 * time.Second
	defaultMaxLineLength = 4096
	readBufferSize       = 256
)

// LineHandler receives every complete, trimmed, non-empty line
type LineHandler func(line string)

// Transport owns the serial port: one background reader that frames lines,
// one write path shared by every caller.
type Transport struct {
	settings config.SerialSettings
	open     Opener
	log      logger.ILogger

	IdlePoll      time.Duration
	ErrorBackoff  time.Duration
	JoinTimeout   time.Duration
	MaxLineLength int

	mu        sync.RWMutex
	port      Port
	connected bool
	handler   LineHandler
	stopCh    chan struct{}
	doneCh    chan struct{}

	writeMu      sync.Mutex
	lastActivity atomic.Int64
}

// NewTransport creates a transport that opens its port with open on Connect
func NewTransport(settings config.SerialSettings, open Opener, log logger.ILogger) *Transport {
	if log == nil {
		log = logger.NewComponentLogger("serial")
	}
	return &Transport{
		settings:      settings,
		open:          open,
		log:           log,
		IdlePoll:      defaultIdlePoll,
		ErrorBackoff:  defaultErrorBackoff,
		JoinTimeout:   defaultJoinTimeout,
		MaxLineLength: defaultMaxLineLength,
	}
}

// SetLineHandler installs the consumer of received lines. Safe to call at any time.
func (t *Transport) SetLineHandler(h LineHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// PortName returns the configured device path
func (t *Transport) PortName() string {
	return t.settings.Port
}

// Connect opens the port and starts the reader. Failure is a startup error
// and is not retried here.
func (t *Transport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return nil
	}

	port, err := t.open(t.settings)
	if err != nil {
		return errors.NewTransportError("open", err, t.settings.Port)
	}

	t.port = port
	t.connected = true
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})

	go t.readLoop(port, t.stopCh, t.doneCh)

	t.log.LogInfo("🔌 Connected to hub on %s @ %d baud", t.settings.Port, t.settings.Baud)
	return nil
}

// Disconnect stops the reader, waits a bounded time for it and closes the port.
// Safe to call repeatedly.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return
	}
	t.connected = false
	port, stopCh, doneCh := t.port, t.stopCh, t.doneCh
	t.port = nil
	t.mu.Unlock()

	close(stopCh)
	if err := port.Close(); err != nil {
		t.log.LogWarn("Error closing %s: %v", t.settings.Port, err)
	}

	select {
	case <-doneCh:
	case <-time.After(t.JoinTimeout):
		t.log.LogWarn("Serial reader did not stop within %s", t.JoinTimeout)
	}
	t.log.LogInfo("Disconnected from hub")
}

// IsConnected reports whether the port is open
func (t *Transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// LastActivity returns when the last line was received (zero if never)
func (t *Transport) LastActivity() time.Time {
	ns := t.lastActivity.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// WriteLine writes line plus a newline and drains it to the wire
func (t *Transport) WriteLine(line string) error {
	t.mu.RLock()
	port, connected := t.port, t.connected
	t.mu.RUnlock()

	if !connected || port == nil {
		return errors.NewTransportError("write", errors.ErrNotConnected, t.settings.Port)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := port.Write([]byte(strings.TrimSpace(line) + "\n")); err != nil {
		t.log.LogError("Failed to write to %s: %v", t.settings.Port, err)
		return errors.NewTransportError("write", err, t.settings.Port)
	}
	if d, ok := port.(drainer); ok {
		if err := d.Drain(); err != nil {
			t.log.LogError("Failed to flush %s: %v", t.settings.Port, err)
			return errors.NewTransportError("flush", err, t.settings.Port)
		}
	}
	logger.LogTrace("→ hub: %s", line)
	return nil
}

func (t *Transport) readLoop(port Port, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	buf := make([]byte, readBufferSize)
	var framer lineFramer

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		n, err := port.Read(buf)
		if n > 0 {
			t.emitLines(&framer, buf[:n])
			continue
		}

		if err != nil && !stderrors.Is(err, io.EOF) {
			select {
			case <-stopCh:
				return
			default:
			}
			t.log.LogError("Error in read loop: %v", err)
			t.sleep(stopCh, t.ErrorBackoff)
			continue
		}
		t.sleep(stopCh, t.IdlePoll)
	}
}

// lineFramer holds the bytes of an unfinished line. While discarding is set
// the current line overflowed MaxLineLength and is dropped up to its newline.
type lineFramer struct {
	pending    []byte
	discarding bool
}

// emitLines appends chunk and dispatches every complete line
func (t *Transport) emitLines(f *lineFramer, chunk []byte) {
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if f.discarding {
			if i < 0 {
				return
			}
			f.discarding = false
			chunk = chunk[i+1:]
			continue
		}
		if i < 0 {
			f.pending = append(f.pending, chunk...)
			break
		}
		raw := append(f.pending, chunk[:i]...)
		f.pending = nil
		chunk = chunk[i+1:]

		line := strings.TrimSpace(strings.ToValidUTF8(string(raw), ""))
		if line == "" {
			continue
		}
		t.lastActivity.Store(time.Now().UnixNano())
		t.dispatch(line)
	}

	if len(f.pending) > t.MaxLineLength {
		t.log.LogWarn("Discarding %d bytes without newline", len(f.pending))
		f.pending = nil
		f.discarding = true
		return
	}
	// Compact so the backing array does not grow without bound
	f.pending = append([]byte(nil), f.pending...)
}

func (t *Transport) dispatch(line string) {
	defer func() {
		if r := recover(); r != nil {
			t.log.LogError("Line handler panicked on %q: %v", line, r)
		}
	}()

	t.mu.RLock()
	h := t.handler
	t.mu.RUnlock()

	logger.LogTrace("← hub: %s", line)
	if h != nil {
		h(line)
	}
}

func (t *Transport) sleep(stopCh <-chan struct{}, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-stopCh:
	case <-timer.C:
	}
}
