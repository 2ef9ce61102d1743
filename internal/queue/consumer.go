package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abcretail/order-service/internal/config"
	"github.com/abcretail/order-service/internal/obs"
)

// HandlerFunc processes one message delivery. A nil return acknowledges
// the message; an error abandons it so the redelivery policy (visibility
// timeout, dequeue budget, poison routing) governs recovery. Handlers must
// tolerate being invoked more than once for the same message.
type HandlerFunc func(ctx context.Context, m Message) error

// Consumer runs a pool of workers draining one queue, scaling the pool
// between configured bounds based on backlog.
type Consumer struct {
	cfg    config.Config
	name   string
	q      *Queue
	handle HandlerFunc
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	workerCancels []context.CancelFunc

	inflight  atomic.Int64
	processed atomic.Uint64
	failed    atomic.Uint64
}

// NewConsumer constructs a Consumer for the given queue and handler.
func NewConsumer(cfg config.Config, name string, q *Queue, handle HandlerFunc) *Consumer {
	return &Consumer{cfg: cfg, name: name, q: q, handle: handle}
}

// Start begins processing and autoscaling in the background.
func (c *Consumer) Start(parent context.Context) {
	c.ctx, c.cancel = context.WithCancel(parent)
	c.addWorkers(c.cfg.InitialWorkerCount)
	go c.scaler()
}

// Stop cancels background routines and stops workers.
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	for _, cancel := range c.workerCancels {
		cancel()
	}
	c.workerCancels = nil
	c.mu.Unlock()
}

// scaler adjusts worker count based on backlog and configuration.
func (c *Consumer) scaler() {
	t := time.NewTicker(c.cfg.ScaleInterval)
	defer t.Stop()
	idleTicks := 0
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
			backlog := c.q.Len()
			if c.cfg.QueueHighWatermark > 0 && backlog > c.cfg.QueueHighWatermark {
				obs.Logger.Warn("queue backlog exceeds high watermark",
					"consumer", c.name, "backlog_size", backlog,
					"high_watermark", c.cfg.QueueHighWatermark)
			}
			wc := c.WorkerCount()
			if backlog > wc*c.cfg.ScaleUpBacklogPerWorker && wc < c.cfg.WorkerMax {
				c.addWorkers(1)
				idleTicks = 0
				continue
			}
			if backlog == 0 {
				idleTicks++
				if idleTicks >= c.cfg.ScaleDownIdleTicks && wc > c.cfg.WorkerMin {
					c.removeWorkers(1)
					idleTicks = 0
				}
			} else {
				idleTicks = 0
			}
		}
	}
}

// addWorkers spawns n workers.
func (c *Consumer) addWorkers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < n; i++ {
		wctx, cancel := context.WithCancel(c.ctx)
		c.workerCancels = append(c.workerCancels, cancel)
		go c.worker(wctx)
	}
	obs.Logger.Info("workers scaled", "consumer", c.name, "worker_count", len(c.workerCancels))
}

// removeWorkers stops up to n workers.
func (c *Consumer) removeWorkers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > len(c.workerCancels) {
		n = len(c.workerCancels)
	}
	for i := 0; i < n; i++ {
		cancel := c.workerCancels[len(c.workerCancels)-1]
		c.workerCancels = c.workerCancels[:len(c.workerCancels)-1]
		cancel()
	}
	obs.Logger.Info("workers scaled", "consumer", c.name, "worker_count", len(c.workerCancels))
}

// worker leases one message at a time and settles the lease by the
// handler outcome. Handler errors are never discarded silently: the
// message is abandoned for redelivery and the failure is logged.
func (c *Consumer) worker(ctx context.Context) {
	for {
		m, ok := c.q.Dequeue(ctx)
		if !ok {
			return
		}
		c.inflight.Add(1)
		err := c.handle(ctx, m)
		if err != nil {
			c.failed.Add(1)
			obs.Logger.Error("message_failed",
				"consumer", c.name,
				"queue", c.q.Name(),
				"message_id", m.ID,
				"dequeue_count", m.DequeueCount,
				"error", err,
			)
			c.q.Abandon(m.ID, m.Receipt)
		} else {
			c.processed.Add(1)
			c.q.Delete(m.ID, m.Receipt)
		}
		c.inflight.Add(-1)
	}
}

// WorkerCount returns the current number of workers.
func (c *Consumer) WorkerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.workerCancels)
}

// Stats returns processed and failed delivery counts.
func (c *Consumer) Stats() (processed, failed uint64) {
	return c.processed.Load(), c.failed.Load()
}

// DrainUntil blocks until the queue is empty and no handler is running,
// or ctx is done.
func (c *Consumer) DrainUntil(ctx context.Context) bool {
	for {
		if c.q.Len() == 0 && c.inflight.Load() == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}
