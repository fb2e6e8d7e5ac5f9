// Package consumer reads RAD jobs from an AMQP queue and submits them to the
// worker service.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/okian/radworker/internal/domain/dedupe"
	"github.com/okian/radworker/internal/domain/model"
	"github.com/okian/radworker/pkg/logger"
	"github.com/okian/radworker/pkg/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Outcomes recorded on amqp_deliveries_total.
const (
	OutcomeAccepted  = "accepted"
	OutcomeRejected  = "rejected"
	OutcomeRequeued  = "requeued"
	OutcomeDuplicate = "duplicate"
)

const defaultPrefetch = 16

// Submitter receives decoded jobs.
type Submitter interface {
	Enqueue(ctx context.Context, job model.Job, identity string) (string, error)
}

// Channel is the subset of *amqp.Channel the consumer uses.
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// Recorder receives the outcome of every delivery.
type Recorder interface {
	RecordAMQPDelivery(outcome string)
}

// Consumer turns queue messages into job submissions. Each message is acked
// once its unit has been dispatched, not when the unit finishes.
type Consumer struct {
	ch        Channel
	queue     string
	submitter Submitter
	name      string
	prefetch  int

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	// Redelivered message ids already dispatched
	deduper dedupe.Deduper

	recorder Recorder
	logger   logger.Logger
}

// New creates a consumer of queue on ch.
func New(ch Channel, queue string, submitter Submitter, opts ...Option) *Consumer {
	c := &Consumer{
		ch:        ch,
		queue:     queue,
		submitter: submitter,
		name:      "amqp-consumer",
		prefetch:  defaultPrefetch,
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		deduper:   dedupe.NewInMemoryDeduper(),
		recorder:  metrics.Default(),
		logger:    nil,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named(c.name)
	}
	return c
}

// Run declares the queue and consumes it until ctx is canceled, Shutdown is
// called, or the broker closes the deliveries channel.
func (c *Consumer) Run(ctx context.Context) error {
	defer close(c.done)

	deliveries, err := c.setup()
	if err != nil {
		return err
	}
	c.logger.Info(ctx, "consumer started", logger.String("queue", c.queue), logger.Int("prefetch", c.prefetch))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.shutdown:
			return nil
		case d, ok := <-deliveries:
			if !ok {
				c.logger.Warn(ctx, "deliveries channel closed", logger.String("queue", c.queue))
				return ErrChannelClosed
			}
			c.handle(ctx, d)
		}
	}
}

// Shutdown stops the loop and waits for it to exit.
func (c *Consumer) Shutdown(ctx context.Context) error {
	select {
	case <-c.shutdown:
	default:
		close(c.shutdown)
	}

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		c.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (c *Consumer) setup() (<-chan amqp.Delivery, error) {
	if _, err := c.ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("%w: declare %s: %w", ErrSetup, c.queue, err)
	}
	if err := c.ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("%w: set qos: %w", ErrSetup, err)
	}
	deliveries, err := c.ch.Consume(c.queue, c.name, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: consume %s: %w", ErrSetup, c.queue, err)
	}
	return deliveries, nil
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var job model.Job
	if err := json.Unmarshal(d.Body, &job); err != nil {
		c.logger.Error(ctx, "failed to decode job", logger.Error(err), logger.Int("bytes", len(d.Body)))
		c.settle(ctx, d.Nack(false, false), OutcomeRejected)
		return
	}

	if d.MessageId != "" && c.deduper.SeenAndRecord(ctx, d.MessageId) {
		c.logger.Info(ctx, "duplicate delivery, skipping", logger.String("message_id", d.MessageId))
		c.settle(ctx, d.Ack(false), OutcomeDuplicate)
		return
	}

	unit, err := c.submitter.Enqueue(ctx, job, identity(d.Headers))
	if err != nil {
		if d.MessageId != "" {
			c.deduper.Unrecord(ctx, d.MessageId)
		}
		c.logger.Warn(ctx, "job not accepted, requeueing", logger.Error(err))
		c.settle(ctx, d.Nack(false, true), OutcomeRequeued)
		return
	}

	c.logger.Debug(ctx, "job dispatched", logger.String("unit", unit))
	c.settle(ctx, d.Ack(false), OutcomeAccepted)
}

func (c *Consumer) settle(ctx context.Context, err error, outcome string) {
	c.recorder.RecordAMQPDelivery(outcome)
	if err != nil {
		c.logger.Error(ctx, "failed to settle delivery", logger.String("outcome", outcome), logger.Error(err))
	}
}

// identity reads the identity header, which publishers send as a string or
// as raw bytes.
func identity(headers amqp.Table) string {
	switch v := headers[model.IdentityHeader].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}
