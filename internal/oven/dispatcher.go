package oven

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Sender transmits a command payload to the cloud and blocks until the
// cloud acknowledges it or the context ends.
type Sender interface {
	Send(ctx context.Context, deviceID string, command string, payload any) error
}

// DispatcherConfig tunes a device's command pipeline.
type DispatcherConfig struct {
	// AckTimeout bounds the wait for a cloud acknowledgement.
	AckTimeout time.Duration

	// QueueSize is the FIFO depth behind the in-flight command.
	QueueSize int
}

// Dispatcher serialises commands to a single oven.
//
// At most one command is in flight per device; further submissions queue
// FIFO behind it. Commands are validated against the current snapshot
// before transmission, and there is no automatic retry.
//
// Thread Safety:
//   - Submit and Close are safe for concurrent use.
type Dispatcher struct {
	deviceID string
	cache    *StateCache
	sender   Sender
	cfg      DispatcherConfig

	queue chan submission

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type submission struct {
	ctx   context.Context
	cmd   Command
	reply chan error
}

// NewDispatcher creates and starts the command worker for one device.
func NewDispatcher(deviceID string, cache *StateCache, sender Sender, cfg DispatcherConfig) *Dispatcher {
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 10 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}

	d := &Dispatcher{
		deviceID: deviceID,
		cache:    cache,
		sender:   sender,
		cfg:      cfg,
		queue:    make(chan submission, cfg.QueueSize),
		closed:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// Submit validates and sends a command, blocking until the cloud
// acknowledges it, the context ends, or the ack window expires.
//
// Returns:
//   - nil on acknowledgement
//   - ErrValidation (wrapped) when the command fails validation; nothing
//     is transmitted in that case
//   - ErrQueueFull when the device's queue is at capacity
//   - ErrCommandTimeout when no acknowledgement arrives in time
//   - ErrDispatcherClosed after Close
func (d *Dispatcher) Submit(ctx context.Context, cmd Command) error {
	// Fail fast before queueing. The worker validates again against the
	// snapshot current at transmission time.
	if err := cmd.Validate(d.cache.Current()); err != nil {
		return err
	}

	sub := submission{
		ctx:   ctx,
		cmd:   cmd,
		reply: make(chan error, 1),
	}

	select {
	case <-d.closed:
		return ErrDispatcherClosed
	case d.queue <- sub:
	default:
		return ErrQueueFull
	}

	select {
	case err := <-sub.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-d.closed:
		return ErrDispatcherClosed
	}
}

// DeviceID returns the device this dispatcher serves.
func (d *Dispatcher) DeviceID() string {
	return d.deviceID
}

// Pending returns the number of queued commands (excluding in-flight).
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Close stops the worker. Queued commands receive ErrDispatcherClosed.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.closed)
	})
	d.wg.Wait()
}

// run is the single worker goroutine; its serial loop is what guarantees
// at most one in-flight command per device.
func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case <-d.closed:
			d.drain()
			return
		case sub := <-d.queue:
			sub.reply <- d.process(sub)
		}
	}
}

// drain fails any commands still queued at shutdown.
func (d *Dispatcher) drain() {
	for {
		select {
		case sub := <-d.queue:
			sub.reply <- ErrDispatcherClosed
		default:
			return
		}
	}
}

// process validates and transmits one command.
func (d *Dispatcher) process(sub submission) error {
	if err := sub.ctx.Err(); err != nil {
		return err
	}

	// State may have moved while the command sat in the queue.
	if err := sub.cmd.Validate(d.cache.Current()); err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(sub.ctx, d.cfg.AckTimeout)
	defer cancel()

	err := d.sender.Send(sendCtx, d.deviceID, string(sub.cmd.Type), sub.cmd.WirePayload(d.deviceID))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s after %v", ErrCommandTimeout, sub.cmd.Type, d.cfg.AckTimeout)
		}
		return err
	}

	return nil
}
