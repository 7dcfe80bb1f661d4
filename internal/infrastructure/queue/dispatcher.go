package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/api/metrics"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/ports"
)

const (
	defaultWorkers  = 4
	channelBuffer   = 256
	deliveryTimeout = 30 * time.Second
)

// Dispatcher delivers notifications off the request path. Notifications are
// sharded by recipient so messages to one address keep their order.
type Dispatcher struct {
	workers  []chan domain.Notification
	notifier ports.Notifier
	log      zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, notifier ports.Notifier, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers:  make([]chan domain.Notification, numWorkers),
		notifier: notifier,
		log:      log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan domain.Notification, channelBuffer)
	}
	return d
}

// Start launches the workers. ctx supplies the values (trace, logger) for
// deliveries; Shutdown drains what is already queued.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Enqueue never blocks: when the worker's buffer is full the notification
// is dropped and counted. The state change it describes is already committed.
func (d *Dispatcher) Enqueue(n domain.Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(n, "dispatcher closed")
		return
	}
	idx := d.shardIndex(n.Email)
	select {
	case d.workers[idx] <- n:
		metrics.NotificationQueueDepth.WithLabelValues(strconv.Itoa(idx)).Inc()
	default:
		d.drop(n, "queue full")
	}
}

// Shutdown stops accepting notifications and waits for queued ones to be
// delivered or for ctx to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, ch := range d.workers {
			close(ch)
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan domain.Notification) {
	defer d.wg.Done()
	depth := metrics.NotificationQueueDepth.WithLabelValues(strconv.Itoa(id))
	for n := range ch {
		depth.Dec()
		d.deliver(ctx, id, n)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, worker int, n domain.Notification) {
	// Queued notifications are still delivered after ctx is cancelled so that
	// Shutdown can drain; deliveryTimeout bounds each one.
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
	defer cancel()

	start := time.Now()
	err := d.notifier.Notify(dctx, n)
	metrics.NotificationDeliveryDuration.WithLabelValues(string(n.Kind)).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(string(n.Kind), "failed").Inc()
		d.log.Error().Err(err).
			Str("kind", string(n.Kind)).
			Str("email", n.Email).
			Int("worker_id", worker).
			Msg("notification delivery failed")
		return
	}
	metrics.NotificationsTotal.WithLabelValues(string(n.Kind), "sent").Inc()
}

func (d *Dispatcher) drop(n domain.Notification, reason string) {
	metrics.NotificationsTotal.WithLabelValues(string(n.Kind), "dropped").Inc()
	d.log.Warn().
		Str("kind", string(n.Kind)).
		Str("email", n.Email).
		Str("reason", reason).
		Msg("notification dropped")
}
