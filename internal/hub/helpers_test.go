package hub

import (
	"sync"
	"time"

	"github.com/erikbeerepoot/bramble/internal/logger"
	"github.com/erikbeerepoot/bramble/internal/models"
)

// fakeLink stands in for the serial transport. Replies returned by script are
// fed back through the router from a separate goroutine, like the reader would.
type fakeLink struct {
	mu        sync.Mutex
	connected bool
	writes    []string
	writeErr  error
	script    func(command string) []string
	gap       time.Duration
	router    *Router
}

func newFakeLink() *fakeLink {
	return &fakeLink{connected: true, gap: 10 * time.Millisecond}
}

func (l *fakeLink) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *fakeLink) WriteLine(line string) error {
	l.mu.Lock()
	if l.writeErr != nil {
		err := l.writeErr
		l.mu.Unlock()
		return err
	}
	l.writes = append(l.writes, line)
	script, router, gap := l.script, l.router, l.gap
	l.mu.Unlock()

	if script == nil || router == nil {
		return nil
	}
	replies := script(line)
	go func() {
		for _, r := range replies {
			time.Sleep(gap)
			router.HandleLine(r)
		}
	}()
	return nil
}

func (l *fakeLink) Writes() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.writes...)
}

// fakeStore records inserted batches
type fakeStore struct {
	mu         sync.Mutex
	batches    [][]models.SensorReading
	duplicates int
	err        error
}

func (s *fakeStore) InsertBatch(readings []models.SensorReading) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, 0, s.err
	}
	s.batches = append(s.batches, append([]models.SensorReading(nil), readings...))
	return len(readings) - s.duplicates, s.duplicates, nil
}

func (s *fakeStore) Batches() [][]models.SensorReading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches
}

type staticResolver map[uint16]uint64

func (r staticResolver) DeviceID(addr uint16) uint64 {
	if id, ok := r[addr]; ok {
		return id
	}
	return uint64(addr)
}

type readingCollector struct {
	mu       sync.Mutex
	readings []models.SensorReading
}

func (c *readingCollector) Add(r models.SensorReading) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readings = append(c.readings, r)
}

func (c *readingCollector) ObserveReading(r models.SensorReading) { c.Add(r) }

func (c *readingCollector) Readings() []models.SensorReading {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.SensorReading(nil), c.readings...)
}

// testHub wires an engine, router and batch receiver around a fakeLink
type testHub struct {
	link   *fakeLink
	engine *Engine
	router *Router
	batch  *BatchReceiver
	store  *fakeStore
	log    *logger.MockLogger
}

func newTestHub(opts EngineOptions) *testHub {
	log := logger.NewMockLogger()
	link := newFakeLink()
	if opts.Logger == nil {
		opts.Logger = log
	}
	engine := NewEngine(link, opts)
	store := &fakeStore{}
	batch := NewBatchReceiver(BatchReceiverDeps{
		Store:   store,
		Devices: staticResolver{},
		Link:    link,
		Logger:  log,
	})
	router := NewRouter(RouterDeps{
		Responses: engine,
		Batches:   batch,
		Link:      link,
		Logger:    log,
	})
	link.router = router
	return &testHub{link: link, engine: engine, router: router, batch: batch, store: store, log: log}
}
