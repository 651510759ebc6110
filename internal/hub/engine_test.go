package hub

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/erikbeerepoot/bramble/internal/errors"
	"github.com/erikbeerepoot/bramble/internal/metrics"
	"github.com/erikbeerepoot/bramble/internal/protocol"
)

func TestSendNodeListCompletesOnPredicate(t *testing.T) {
	h := newTestHub(EngineOptions{})
	h.link.gap = 30 * time.Millisecond
	h.link.script = func(string) []string {
		return []string{"NODE_LIST 2", "NODE 3 0 SENSOR 1 12", "NODE 4 0 SENSOR 0 5"}
	}

	start := time.Now()
	resp, err := h.engine.Send(context.Background(), "LIST_NODES", 5*time.Second)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(resp) != 3 {
		t.Fatalf("Expected 3 lines, got %v", resp)
	}
	if elapsed >= DefaultQuietPeriod {
		t.Errorf("Expected completion by predicate, took %s", elapsed)
	}
}

func TestSendZeroCountNodeList(t *testing.T) {
	h := newTestHub(EngineOptions{})
	h.link.script = func(string) []string { return []string{"NODE_LIST 0"} }

	start := time.Now()
	resp, err := h.engine.Send(context.Background(), "LIST_NODES", 5*time.Second)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(resp) != 1 || resp.First() != "NODE_LIST 0" {
		t.Errorf("Expected single header line, got %v", resp)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("Expected immediate completion, took %s", elapsed)
	}
}

func TestSendGetQueuePredicate(t *testing.T) {
	h := newTestHub(EngineOptions{})
	h.link.script = func(string) []string {
		return []string{"QUEUE 3 2", "UPDATE 1 SET_SCHEDULE 40", "UPDATE 2 SET_WAKE_INTERVAL 12"}
	}

	start := time.Now()
	resp, err := h.engine.Send(context.Background(), "GET_QUEUE 3", 5*time.Second)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(resp) != 3 {
		t.Errorf("Expected 3 lines, got %v", resp)
	}
	if elapsed := time.Since(start); elapsed >= DefaultQuietPeriod {
		t.Errorf("Expected completion by predicate, took %s", elapsed)
	}
}

func TestSendTimeoutWithoutResponse(t *testing.T) {
	pm := metrics.NewPrometheusMetrics()
	h := newTestHub(EngineOptions{Metrics: pm})

	start := time.Now()
	_, err := h.engine.Send(context.Background(), "PING", 200*time.Millisecond)
	elapsed := time.Since(start)

	if !errors.IsTimeout(err) {
		t.Fatalf("Expected TimeoutError, got %v", err)
	}
	if elapsed < 190*time.Millisecond || elapsed > 400*time.Millisecond {
		t.Errorf("Expected ~200ms, took %s", elapsed)
	}
	if stats := pm.GetStats(); stats.CommandTimeoutsTotal != 1 {
		t.Errorf("Expected 1 timeout counted, got %d", stats.CommandTimeoutsTotal)
	}
}

func TestSendQuietPeriodFallback(t *testing.T) {
	h := newTestHub(EngineOptions{Quiet: QuietPeriodPolicy{Period: 50 * time.Millisecond}})
	h.link.script = func(string) []string { return []string{"PONG"} }

	start := time.Now()
	resp, err := h.engine.Send(context.Background(), "PING", 2*time.Second)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if resp.First() != "PONG" {
		t.Errorf("Expected PONG, got %v", resp)
	}
	if elapsed < 50*time.Millisecond || elapsed > time.Second {
		t.Errorf("Expected quiet period completion, took %s", elapsed)
	}
}

func TestSendMutatingErrorEndsOnQuietPeriod(t *testing.T) {
	h := newTestHub(EngineOptions{Quiet: QuietPeriodPolicy{Period: 50 * time.Millisecond}})
	h.link.script = func(string) []string { return []string{"ERROR Unknown node 9"} }

	start := time.Now()
	resp, err := h.engine.Send(context.Background(), "SET_WAKE_INTERVAL 9 60", 2*time.Second)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if resp.First() != "ERROR Unknown node 9" {
		t.Errorf("Unexpected response %v", resp)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Expected quiet period to end the response, took %s", elapsed)
	}
}

func TestSendTimeoutWithPartialResponse(t *testing.T) {
	h := newTestHub(EngineOptions{Quiet: QuietPeriodPolicy{Period: time.Second}})
	h.link.script = func(string) []string { return []string{"NODE_LIST 3", "NODE 3 0 SENSOR 1 12"} }

	resp, err := h.engine.Send(context.Background(), "LIST_NODES", 200*time.Millisecond)
	if err != nil {
		t.Fatalf("Expected partial response, got error %v", err)
	}
	if len(resp) != 2 {
		t.Errorf("Expected 2 collected lines, got %v", resp)
	}
}

func TestSendNotConnected(t *testing.T) {
	h := newTestHub(EngineOptions{})
	h.link.connected = false

	_, err := h.engine.Send(context.Background(), "LIST_NODES", time.Second)
	if !errors.IsNotConnected(err) {
		t.Fatalf("Expected not connected error, got %v", err)
	}
	if len(h.link.Writes()) != 0 {
		t.Error("Nothing should be written while disconnected")
	}
}

func TestSendWriteFailure(t *testing.T) {
	h := newTestHub(EngineOptions{})
	h.link.writeErr = errors.NewTransportError("write", stderrors.New("EIO"), "/dev/fake")

	_, err := h.engine.Send(context.Background(), "LIST_NODES", time.Second)
	var transportErr *errors.TransportError
	if !stderrors.As(err, &transportErr) {
		t.Fatalf("Expected TransportError, got %v", err)
	}
}

func TestSendContextCancelled(t *testing.T) {
	h := newTestHub(EngineOptions{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := h.engine.Send(ctx, "PING", 5*time.Second)
	if !stderrors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected context deadline, got %v", err)
	}
}

func TestSendDrainsStaleLines(t *testing.T) {
	h := newTestHub(EngineOptions{Quiet: QuietPeriodPolicy{Period: 30 * time.Millisecond}})

	// A late line from an abandoned command, delivered while nothing is waiting
	h.router.HandleLine("NODE 7 0 SENSOR 1 99")
	h.link.script = func(string) []string { return []string{"PONG"} }

	resp, err := h.engine.Send(context.Background(), "PING", time.Second)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(resp) != 1 || resp.First() != "PONG" {
		t.Errorf("Expected stale line discarded, got %v", resp)
	}
}

func TestSendExclusivity(t *testing.T) {
	h := newTestHub(EngineOptions{})
	h.link.script = func(command string) []string {
		fields := strings.Fields(command)
		return []string{fmt.Sprintf("QUEUED SET_SCHEDULE %s 1", fields[1])}
	}

	const callers = 5
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 1; i <= callers; i++ {
		wg.Add(1)
		go func(addr int) {
			defer wg.Done()
			resp, err := h.engine.Send(context.Background(), fmt.Sprintf("SET_SCHEDULE %d 0 6 0 60 127 0", addr), 2*time.Second)
			if err != nil {
				errs <- err
				return
			}
			ack, err := protocol.ParseQueued(resp.Last())
			if err != nil {
				errs <- err
				return
			}
			if int(ack.Address) != addr {
				errs <- fmt.Errorf("caller %d received response for %d", addr, ack.Address)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if n := len(h.link.Writes()); n != callers {
		t.Errorf("Expected %d writes, got %d", callers, n)
	}
}

func TestFIFOLockOrder(t *testing.T) {
	var l fifoLock
	if err := l.Lock(context.Background()); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := l.Lock(context.Background()); err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			l.Unlock()
		}(i)
		waitForWaiters(t, &l, i+1)
	}

	l.Unlock()
	wg.Wait()

	for i, n := range order {
		if n != i {
			t.Fatalf("Expected FIFO order, got %v", order)
		}
	}
}

func TestFIFOLockCancelledWaiter(t *testing.T) {
	var l fifoLock
	_ = l.Lock(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Lock(ctx) }()
	waitForWaiters(t, &l, 1)
	cancel()

	if err := <-done; !stderrors.Is(err, context.Canceled) {
		t.Fatalf("Expected cancellation, got %v", err)
	}
	l.Unlock()

	// Lock must be free again
	ctx2, cancel2 := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel2()
	if err := l.Lock(ctx2); err != nil {
		t.Fatalf("Lock should be available: %v", err)
	}
}

func waitForWaiters(t *testing.T, l *fifoLock, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		got := len(l.waiters)
		l.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %d waiters", n)
}
