package messaging

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Dispatcher forwards OTP messages to a [Sender] from a background worker.
// Enqueueing never blocks the request path; when the buffer is full the
// message is dropped and counted.
type Dispatcher struct {
	sender    Sender
	logger    Logger
	ch        chan Message
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closeOnce sync.Once
}

func NewDispatcher(sender Sender, logger Logger, bufferSize int) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 64
	}

	d := &Dispatcher{
		sender: sender,
		logger: logger,
		ch:     make(chan Message, bufferSize),
		done:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case msg := <-d.ch:
			d.deliver(msg)
		case <-d.done:
			for {
				select {
				case msg := <-d.ch:
					d.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.sender.SendOTP(ctx, msg); err != nil && d.logger != nil {
		d.logger.Error("otp_delivery_failed", map[string]any{
			"channel":     string(msg.Channel),
			"destination": msg.Destination,
			"error":       err.Error(),
		})
	}
}

// Enqueue hands a message to the background worker without blocking.
func (d *Dispatcher) Enqueue(msg Message) {
	if d == nil {
		return
	}

	select {
	case d.ch <- msg:
	case <-d.done:
	default:
		d.dropped.Add(1)
		if d.logger != nil {
			d.logger.Error("otp_delivery_dropped", map[string]any{
				"channel": string(msg.Channel),
			})
		}
	}
}

// Dropped reports how many messages were discarded due to a full buffer.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Close drains the buffer and stops the worker.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
	})
	d.wg.Wait()
}
