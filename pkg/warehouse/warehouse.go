// Package warehouse runs the background jobs of a serving index: the live
// follower feeding realtime listeners and periodic maintenance of the
// embedded index.
package warehouse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rubiojr/logsearch/pkg/log"
	"github.com/rubiojr/logsearch/pkg/realtime"
)

// Maintainer is an index that can be optimized in place.
type Maintainer interface {
	Optimize() error
	WALCheckpoint() error
}

type Config struct {
	// OptimizeInterval is how often the index is optimized. Zero disables
	// maintenance.
	OptimizeInterval time.Duration
}

type Warehouse struct {
	config         Config
	index          Maintainer
	follower       *realtime.Follower
	optimizeTicker *time.Ticker
	stopCh         chan struct{}
	ctx            context.Context
	ctxCancel      context.CancelFunc
	mu             sync.RWMutex
	wg             sync.WaitGroup
	running        bool
	logger         *log.Logger
}

// NewWarehouse creates a warehouse. index and follower are optional; a nil
// index disables maintenance, as remote engines maintain themselves.
func NewWarehouse(config Config, index Maintainer, follower *realtime.Follower) *Warehouse {
	return &Warehouse{
		config:   config,
		index:    index,
		follower: follower,
		logger:   log.ForService("warehouse"),
	}
}

func (w *Warehouse) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("warehouse is already running")
	}

	w.ctx, w.ctxCancel = context.WithCancel(ctx)
	w.stopCh = make(chan struct{})
	w.running = true

	if w.follower != nil {
		w.wg.Add(1)
		go w.runFollower(w.ctx)
	}

	if w.index != nil && w.config.OptimizeInterval > 0 {
		w.optimizeTicker = time.NewTicker(w.config.OptimizeInterval)
		w.wg.Add(1)
		go w.runOptimization(w.ctx, w.optimizeTicker, w.stopCh)
	}

	w.logger.Infof("Warehouse started (follower: %v, optimize interval: %v)",
		w.follower != nil, w.config.OptimizeInterval)
	return nil
}

func (w *Warehouse) runFollower(ctx context.Context) {
	defer w.wg.Done()
	if err := w.follower.Run(ctx); err != nil {
		w.logger.Errorf("Follower stopped: %v", err)
	}
}

func (w *Warehouse) runOptimization(ctx context.Context, ticker *time.Ticker, stopCh <-chan struct{}) {
	defer w.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debugf("Optimization context cancelled")
			return
		case <-stopCh:
			w.logger.Debugf("Optimization stop signal received")
			return
		case <-ticker.C:
			if err := w.Optimize(); err != nil {
				w.logger.Errorf("Index optimization failed: %v", err)
			}
		}
	}
}

// Optimize checkpoints the WAL and runs the query planner optimization.
func (w *Warehouse) Optimize() error {
	if w.index == nil {
		return nil
	}
	w.logger.Debugf("Running index optimization")
	start := time.Now()
	if err := w.index.WALCheckpoint(); err != nil {
		return fmt.Errorf("checkpointing WAL: %w", err)
	}
	if err := w.index.Optimize(); err != nil {
		return fmt.Errorf("optimizing: %w", err)
	}
	w.logger.Debugf("Index optimization done in %v", time.Since(start))
	return nil
}

// SetOptimizeInterval changes the maintenance interval of a running
// warehouse. Maintenance cannot be enabled after Start if it was disabled.
func (w *Warehouse) SetOptimizeInterval(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.config.OptimizeInterval = d
	if w.optimizeTicker != nil && d > 0 {
		w.optimizeTicker.Reset(d)
	}
}

func (w *Warehouse) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	w.logger.Infof("Stopping warehouse...")
	if w.ctxCancel != nil {
		w.ctxCancel()
	}
	close(w.stopCh)
	w.running = false

	w.wg.Wait()
	w.logger.Infof("Warehouse stopped")
}

func (w *Warehouse) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}
