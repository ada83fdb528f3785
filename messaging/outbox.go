package messaging

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"taskadmin/config"
	"taskadmin/metrics"
	"taskadmin/store"
)

const (
	drainBatch    = 50
	maxRetries    = 10
	sentRetention = 7 * 24 * time.Hour
	purgeEvery    = time.Hour
)

type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Outbox is the slice of *store.DB the drainer needs.
type Outbox interface {
	ListPendingOutbox(limit, maxRetries int) ([]*store.OutboxMessage, error)
	AckOutbox(id int64) error
	IncrementOutboxRetries(id int64) error
	PurgeSentOutbox(before time.Time) (int64, error)
}

// OutboxDrainer periodically sends pending outbox messages. Publishing goes
// through a circuit breaker so a dead broker costs one failure per drain
// instead of one per message.
type OutboxDrainer struct {
	db        Outbox
	pub       Publisher
	interval  time.Duration
	breaker   *gobreaker.CircuitBreaker
	metrics   *metrics.Metrics
	log       logrus.FieldLogger
	lastPurge time.Time

	stopChan chan struct{}
	done     chan struct{}
	once     sync.Once
}

func NewOutboxDrainer(db Outbox, pub Publisher, cfg *config.MessagingConfig, m *metrics.Metrics, log logrus.FieldLogger) *OutboxDrainer {
	interval := cfg.OutboxDrainInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	d := &OutboxDrainer{
		db:       db,
		pub:      pub,
		interval: interval,
		metrics:  m,
		log:      log,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "outbox-publish",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Infof("circuit breaker %s: %s -> %s", name, from, to)
		},
	})
	return d
}

func (d *OutboxDrainer) Start() {
	go d.run()
}

// Stop ends the drain loop and waits for it to exit.
func (d *OutboxDrainer) Stop() {
	d.once.Do(func() { close(d.stopChan) })
	<-d.done
}

func (d *OutboxDrainer) run() {
	defer close(d.done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopChan:
			return
		case <-ticker.C:
			d.Drain()
			d.purge()
		}
	}
}

// Drain publishes one batch of pending messages. It stops early when the
// breaker opens.
func (d *OutboxDrainer) Drain() int {
	msgs, err := d.db.ListPendingOutbox(drainBatch, maxRetries)
	if err != nil {
		d.log.Warnf("list pending: %v", err)
		return 0
	}
	sent := 0
	for _, msg := range msgs {
		_, err := d.breaker.Execute(func() (any, error) {
			return nil, d.pub.Publish(msg.Topic, msg.Payload)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			d.metrics.OutboxResult("rejected")
			return sent
		}
		if err != nil {
			d.log.Warnf("publish %s to %s failed: %v", msg.MsgType, msg.Topic, err)
			d.metrics.OutboxResult("failed")
			d.db.IncrementOutboxRetries(msg.ID)
			continue
		}
		if err := d.db.AckOutbox(msg.ID); err != nil {
			d.log.Warnf("ack %d: %v", msg.ID, err)
		}
		d.metrics.OutboxResult("sent")
		sent++
	}
	return sent
}

func (d *OutboxDrainer) purge() {
	if time.Since(d.lastPurge) < purgeEvery {
		return
	}
	d.lastPurge = time.Now()
	n, err := d.db.PurgeSentOutbox(time.Now().Add(-sentRetention))
	if err != nil {
		d.log.Warnf("purge sent: %v", err)
		return
	}
	if n > 0 {
		d.log.Debugf("purged %d sent messages", n)
	}
}
