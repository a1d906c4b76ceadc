package notifier

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/flare/internal/metrics"
)

// Sender delivers messages over one channel (email, chat webhook, SMS
// gateway). Implementations must be safe for concurrent use.
type Sender interface {
	// Name returns the channel id this sender serves.
	Name() string
	// Send delivers one message. Failures are reported but never retried
	// by the dispatcher.
	Send(ctx context.Context, d Delivery) error
	// Close releases any resources held by the sender.
	Close() error
}

// dispatchTimeout bounds how long one delivery may take.
const dispatchTimeout = 30 * time.Second

// Dispatcher routes deliveries to senders by channel id. Dispatch runs
// asynchronously and never propagates failures back to the caller; the
// alert write has already happened by the time anything is sent.
type Dispatcher struct {
	mu          sync.RWMutex
	senders     map[string]Sender
	rateLimiter *RateLimiter
	logger      *zap.Logger
	wg          sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the default rate limit.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return NewDispatcherWithRateLimit(DefaultRateLimitConfig(), logger)
}

// NewDispatcherWithRateLimit creates a dispatcher with a custom rate limit.
func NewDispatcherWithRateLimit(config RateLimitConfig, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		senders:     make(map[string]Sender),
		rateLimiter: NewRateLimiter(config),
		logger:      logger,
	}
}

// Register adds a sender under its channel id, replacing any earlier one.
func (d *Dispatcher) Register(s Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.senders[s.Name()] = s
}

// Unregister removes the sender for a channel id.
func (d *Dispatcher) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.senders, name)
}

// Get returns the sender for a channel id.
func (d *Dispatcher) Get(name string) (Sender, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.senders[name]
	return s, ok
}

// Dispatch sends each delivery on its own goroutine. Deliveries with no
// registered sender or refused by the rate limiter are logged and dropped.
func (d *Dispatcher) Dispatch(deliveries []Delivery) {
	for _, delivery := range deliveries {
		sender, ok := d.Get(delivery.ChannelID)
		if !ok {
			d.logger.Warn("no sender for channel",
				zap.String("channel", delivery.ChannelID))
			continue
		}
		if !d.rateLimiter.Allow() {
			d.logger.Warn("notification rate limited",
				zap.String("channel", delivery.ChannelID),
				zap.Int64("dropped", d.rateLimiter.Dropped()))
			continue
		}

		d.wg.Add(1)
		go func(s Sender, dv Delivery) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
			defer cancel()
			if err := s.Send(ctx, dv); err != nil {
				metrics.NotificationsFailed.WithLabelValues(dv.ChannelID).Inc()
				d.logger.Error("notification send failed",
					zap.String("channel", dv.ChannelID),
					zap.Strings("recipients", dv.Recipients),
					zap.Error(err))
			}
		}(sender, delivery)
	}
}

// Wait blocks until all in-flight deliveries finish. Intended for shutdown
// and tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close waits for in-flight deliveries and closes every sender.
func (d *Dispatcher) Close() error {
	d.wg.Wait()
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for _, s := range d.senders {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
