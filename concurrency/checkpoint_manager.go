package concurrency

import (
	"log"
	"sync"
	"time"
)

// Checkpointer is the part of the log that the checkpoint manager drives.
type Checkpointer interface {
	Checkpoint() error
	Truncate() error
}

// CheckpointManager takes a checkpoint and truncates the log on every tick until it is stopped.
type CheckpointManager struct {
	logManager Checkpointer
	interval   time.Duration

	// lock serializes checkpoints taken by the ticker and by TakeCheckpoint
	lock sync.Mutex

	// mu guards running
	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func NewCheckpointManager(logManager Checkpointer, interval time.Duration) *CheckpointManager {
	return &CheckpointManager{
		logManager: logManager,
		interval:   interval,
	}
}

// TakeCheckpoint flushes every dirty page, records running transactions and then drops the part of the log that is
// not needed by them.
func (c *CheckpointManager) TakeCheckpoint() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.logManager.Checkpoint(); err != nil {
		return err
	}
	return c.logManager.Truncate()
}

// Start runs checkpoints in background. Errors are logged and the next tick tries again. Calling Start on a running
// manager does nothing.
func (c *CheckpointManager) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})

	stop, done := c.stop, c.done
	go func() {
		defer close(done)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := c.TakeCheckpoint(); err != nil {
					log.Printf("checkpoint failed: %v\n", err)
				}
			}
		}
	}()
}

// Stop waits for a running checkpoint to finish and stops the background loop.
func (c *CheckpointManager) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false

	close(c.stop)
	<-c.done
}

func (c *CheckpointManager) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
