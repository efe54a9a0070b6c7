// Package persist binds in-process values to durable keys.
//
// A Cell holds the current value in memory and mirrors every Set to its
// backend as a full JSON overwrite. Writes are applied by a single writer
// goroutine per cell, so they reach the backend in the order they were
// made, while callers never wait on storage.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robertmeta/readlist/logger"
)

// ErrNotFound is returned by a Backend when the key holds no value.
var ErrNotFound = errors.New("key not found")

// ErrClosed is reported when a write is attempted on a closed cell.
var ErrClosed = errors.New("cell is closed")

// Backend is the get/set-by-key contract of the durable substrate.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

const (
	defaultQueueSize    = 128
	defaultWriteTimeout = 5 * time.Second
)

// Option configures a Cell.
type Option func(*options)

type options struct {
	queueSize    int
	writeTimeout time.Duration
}

// WithQueueSize bounds the number of writes that may be pending before Set
// starts to wait for the writer.
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithWriteTimeout bounds each backend write.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// writeOp is either a payload to store or, when data is nil, a flush
// barrier whose done channel receives the pending error.
type writeOp struct {
	data []byte
	done chan error
}

// Cell is a typed value bound to one backend key.
type Cell[T any] struct {
	backend Backend
	key     string
	def     T
	log     logger.Logger
	timeout time.Duration

	mu     sync.RWMutex
	value  T
	loaded bool
	closed bool

	queue   chan writeOp
	stopped chan struct{}

	errMu    sync.Mutex
	writeErr error
}

// New creates a cell holding def until Load finds a stored value.
func New[T any](backend Backend, key string, def T, log logger.Logger, opts ...Option) *Cell[T] {
	o := options{queueSize: defaultQueueSize, writeTimeout: defaultWriteTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = logger.Nop()
	}

	c := &Cell[T]{
		backend: backend,
		key:     key,
		def:     def,
		log:     log,
		timeout: o.writeTimeout,
		value:   def,
		queue:   make(chan writeOp, o.queueSize),
		stopped: make(chan struct{}),
	}
	go c.run()
	return c
}

// Key returns the durable key of the cell.
func (c *Cell[T]) Key() string {
	return c.key
}

// Load reads the stored value once. A missing key keeps the default and
// writes nothing; a payload that isn't valid JSON for T is logged and
// replaced by the default. Only backend failures are returned.
func (c *Cell[T]) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded {
		return nil
	}

	data, err := c.backend.Get(ctx, c.key)
	switch {
	case errors.Is(err, ErrNotFound):
		c.value = c.def
		c.log.Debug("no stored value, using default", logger.String("key", c.key))
	case err != nil:
		return fmt.Errorf("failed to load %s: %w", c.key, err)
	default:
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			c.log.Warn("stored value is corrupt, using default",
				logger.String("key", c.key),
				logger.Error(err))
			c.value = c.def
		} else {
			c.value = v
		}
	}

	c.loaded = true
	return nil
}

// Loaded reports whether the initial load has completed.
func (c *Cell[T]) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Value returns the current in-memory value.
func (c *Cell[T]) Value() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set replaces the in-memory value and queues its persistence.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = v

	if c.closed {
		c.log.Error("write after close dropped", logger.String("key", c.key))
		c.recordErr(ErrClosed)
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		c.log.Error("failed to encode value", logger.String("key", c.key), logger.Error(err))
		c.recordErr(fmt.Errorf("failed to encode %s: %w", c.key, err))
		return
	}

	// Enqueued under mu so queue order matches the order of Set calls.
	c.queue <- writeOp{data: data}
}

// Flush blocks until every write queued before the call has been applied,
// and returns the first write error seen since the previous Flush.
func (c *Cell[T]) Flush(ctx context.Context) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return c.takeErr()
	}
	done := make(chan error, 1)
	c.queue <- writeOp{done: done}
	c.mu.RUnlock()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes pending writes and stops the writer. Later Sets only
// update memory.
func (c *Cell[T]) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()

	select {
	case <-c.stopped:
		return c.takeErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Cell[T]) run() {
	defer close(c.stopped)

	for op := range c.queue {
		if op.done != nil {
			op.done <- c.takeErr()
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		err := c.backend.Set(ctx, c.key, op.data)
		cancel()

		if err != nil {
			c.log.Error("failed to persist value", logger.String("key", c.key), logger.Error(err))
			c.recordErr(fmt.Errorf("failed to persist %s: %w", c.key, err))
		}
	}
}

func (c *Cell[T]) recordErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.writeErr == nil {
		c.writeErr = err
	}
}

func (c *Cell[T]) takeErr() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	err := c.writeErr
	c.writeErr = nil
	return err
}
