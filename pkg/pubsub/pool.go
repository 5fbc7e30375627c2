package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// -----------------------------------------------------------------------------
// Channel pool
// -----------------------------------------------------------------------------

var (
	errPoolClosed = errors.New("channel pool closed")
	errConnClosed = errors.New("amqp connection closed")
)

// ChannelPool keeps a bounded number of publishing channels alive.
// Invariant: len(permits) == channels idle + borrowed <= capacity.
// When confirm is set every channel is put in confirm mode once, on creation.
type ChannelPool struct {
	conn     *amqp.Connection
	idle     chan *amqp.Channel
	permits  chan struct{}
	capacity int
	confirm  bool

	closed  atomic.Bool
	newChMu sync.Mutex
	// idleMu orders sends on idle against close(idle).
	idleMu sync.Mutex
}

func NewChannelPool(conn *amqp.Connection, capacity int, confirm bool) *ChannelPool {
	if capacity <= 0 {
		capacity = 16
	}
	return &ChannelPool{
		conn:     conn,
		idle:     make(chan *amqp.Channel, capacity),
		permits:  make(chan struct{}, capacity),
		capacity: capacity,
		confirm:  confirm,
	}
}

// Borrow hands out an idle channel, opens a new one while under capacity,
// or waits for a return until ctx is done.
func (cp *ChannelPool) Borrow(ctx context.Context, retryDelayMs int) (*amqp.Channel, error) {
	delay := time.Duration(retryDelayMs) * time.Millisecond
	if delay <= 0 {
		delay = 50 * time.Millisecond
	}

	for {
		if cp.closed.Load() {
			return nil, errPoolClosed
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case ch, ok := <-cp.idle:
			if !ok {
				return nil, errPoolClosed
			}
			if !ch.IsClosed() {
				return ch, nil
			}
			// stale: replace under the same permit
			nch, err := cp.open()
			if err != nil {
				cp.release()
				if errors.Is(err, errConnClosed) {
					return nil, err
				}
				continue
			}
			return nch, nil

		default:
			if cp.conn.IsClosed() {
				return nil, errConnClosed
			}
			select {
			case cp.permits <- struct{}{}:
				nch, err := cp.open()
				if err != nil {
					cp.release()
					if errors.Is(err, errConnClosed) {
						return nil, err
					}
					time.Sleep(delay)
					continue
				}
				return nch, nil

			case <-ctx.Done():
				return nil, ctx.Err()

			case <-time.After(delay):
			}
		}
	}
}

// Return gives a borrowed channel back. Broken channels are closed and their
// permit released.
func (cp *ChannelPool) Return(ch *amqp.Channel) {
	if ch == nil {
		return
	}
	cp.idleMu.Lock()
	if !cp.closed.Load() && !ch.IsClosed() {
		select {
		case cp.idle <- ch:
			cp.idleMu.Unlock()
			return
		default:
		}
	}
	cp.idleMu.Unlock()
	_ = SafeClose(ch)
	cp.release()
}

func (cp *ChannelPool) Close() {
	cp.idleMu.Lock()
	if cp.closed.Swap(true) {
		cp.idleMu.Unlock()
		return
	}
	close(cp.idle)
	cp.idleMu.Unlock()
	for ch := range cp.idle {
		_ = SafeClose(ch)
		cp.release()
	}
}

func (cp *ChannelPool) release() {
	select {
	case <-cp.permits:
	default:
	}
}

func (cp *ChannelPool) open() (*amqp.Channel, error) {
	cp.newChMu.Lock()
	defer cp.newChMu.Unlock()
	if cp.conn.IsClosed() {
		return nil, errConnClosed
	}
	ch, err := cp.conn.Channel()
	if err != nil {
		return nil, err
	}
	if cp.confirm {
		if err := ch.Confirm(false); err != nil {
			_ = SafeClose(ch)
			return nil, fmt.Errorf("confirm mode: %w", err)
		}
	}
	return ch, nil
}
