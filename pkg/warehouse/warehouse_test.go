package warehouse

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rubiojr/logsearch/pkg/core"
	"github.com/rubiojr/logsearch/pkg/query/querytest"
	"github.com/rubiojr/logsearch/pkg/realtime"
	"github.com/rubiojr/logsearch/pkg/search"
)

type mockIndex struct {
	mu          sync.Mutex
	optimized   int
	checkpoints int
	failWith    error
}

func (m *mockIndex) Optimize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.optimized++
	return nil
}

func (m *mockIndex) WALCheckpoint() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints++
	return m.failWith
}

func (m *mockIndex) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.optimized, m.checkpoints
}

func TestWarehouseLifecycle(t *testing.T) {
	w := NewWarehouse(Config{}, nil, nil)
	if w.IsRunning() {
		t.Fatal("New warehouse should not be running")
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Error("Expected error starting a running warehouse")
	}
	w.Stop()
	w.Stop()
	if w.IsRunning() {
		t.Error("Warehouse should be stopped")
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	w.Stop()
}

func TestWarehouseOptimizes(t *testing.T) {
	idx := &mockIndex{}
	w := NewWarehouse(Config{OptimizeInterval: 10 * time.Millisecond}, idx, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n, _ := idx.counts(); n >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	w.Stop()

	optimized, checkpoints := idx.counts()
	if optimized < 2 || checkpoints < 2 {
		t.Errorf("Expected repeated maintenance, got %d optimizations and %d checkpoints", optimized, checkpoints)
	}
}

func TestOptimizeStopsOnCheckpointError(t *testing.T) {
	idx := &mockIndex{failWith: fmt.Errorf("database is locked")}
	w := NewWarehouse(Config{}, idx, nil)
	if err := w.Optimize(); err == nil {
		t.Fatal("Expected checkpoint error")
	}
	if optimized, _ := idx.counts(); optimized != 0 {
		t.Errorf("Optimize should not run after a failed checkpoint, ran %d times", optimized)
	}

	if err := NewWarehouse(Config{}, nil, nil).Optimize(); err != nil {
		t.Errorf("Optimize without an index should be a no-op, got %v", err)
	}
}

func TestWarehouseRunsFollower(t *testing.T) {
	client := querytest.NewMemoryClient(core.LogRecord{
		ID:             "r1",
		LogTime:        time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		SequenceNumber: 1,
		Message:        "first",
	})
	engine := search.NewEngine(client, search.Config{})
	hub := realtime.NewHub(4)
	_, events := hub.Register()
	follower := realtime.NewFollower(engine, hub, 10*time.Millisecond)

	w := NewWarehouse(Config{}, nil, follower)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for follower.LastSequence() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	client.Add(core.CollectionService, core.LogRecord{
		ID:             "r2",
		LogTime:        time.Date(2024, 3, 1, 10, 0, 1, 0, time.UTC),
		SequenceNumber: 2,
		Message:        "second",
	})

	select {
	case ev := <-events:
		if len(ev.Records) != 1 || ev.Records[0].ID != "r2" {
			t.Errorf("Unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for follower broadcast")
	}
}
