package consumer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/radworker/internal/adapters/mq/consumer"
	"github.com/okian/radworker/internal/domain/dedupe"
	"github.com/okian/radworker/internal/domain/model"
	"github.com/okian/radworker/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type mockChannel struct {
	deliveries chan amqp.Delivery
	declared   string
	prefetch   int
	consumeErr error
}

func (m *mockChannel) Qos(prefetchCount, _ int, _ bool) error {
	m.prefetch = prefetchCount
	return nil
}

func (m *mockChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	m.declared = name
	return amqp.Queue{Name: name}, nil
}

func (m *mockChannel) Consume(_, _ string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	if m.consumeErr != nil {
		return nil, m.consumeErr
	}
	return m.deliveries, nil
}

type settlement struct {
	tag     uint64
	ack     bool
	requeue bool
}

type mockAcknowledger struct {
	mu      sync.Mutex
	settled []settlement
}

func (m *mockAcknowledger) Ack(tag uint64, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settled = append(m.settled, settlement{tag: tag, ack: true})
	return nil
}

func (m *mockAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settled = append(m.settled, settlement{tag: tag, requeue: requeue})
	return nil
}

func (m *mockAcknowledger) Reject(tag uint64, requeue bool) error {
	return m.Nack(tag, false, requeue)
}

func (m *mockAcknowledger) snapshot() []settlement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]settlement(nil), m.settled...)
}

type mockSubmitter struct {
	mu         sync.Mutex
	accounts   []string
	identities []string
	err        error
}

func (m *mockSubmitter) Enqueue(_ context.Context, job model.Job, identity string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.accounts = append(m.accounts, job.Account)
	m.identities = append(m.identities, identity)
	return "unit-1", nil
}

type mockRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (m *mockRecorder) RecordAMQPDelivery(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *mockRecorder) snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.outcomes...)
}

func TestConsumer(t *testing.T) {
	convey.Convey("Given a consumer on a mocked channel", t, func() {
		ch := &mockChannel{deliveries: make(chan amqp.Delivery, 4)}
		ack := &mockAcknowledger{}
		sub := &mockSubmitter{}
		rec := &mockRecorder{}
		c := consumer.New(ch, "rad.jobs", sub, consumer.WithRecorder(rec), consumer.WithPrefetch(2))

		delivery := func(tag uint64, body string, headers amqp.Table) amqp.Delivery {
			return amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, Body: []byte(body), Headers: headers}
		}

		convey.Convey("When the broker delivers good and bad messages and then closes", func() {
			ch.deliveries <- delivery(1, `{"account":"A1","data":{"total":0}}`, amqp.Table{"x-rh-identity": "aWQ="})
			ch.deliveries <- delivery(2, `{not json`, nil)
			ch.deliveries <- delivery(3, `{"account":"A2"}`, amqp.Table{"x-rh-identity": []byte("Ynl0ZXM=")})
			close(ch.deliveries)

			err := c.Run(context.Background())

			convey.Convey("Then Run should report the closed channel", func() {
				convey.So(errors.Is(err, consumer.ErrChannelClosed), convey.ShouldBeTrue)
				convey.So(ch.declared, convey.ShouldEqual, "rad.jobs")
				convey.So(ch.prefetch, convey.ShouldEqual, 2)
			})

			convey.Convey("And good jobs should be submitted with their identity and acked", func() {
				convey.So(sub.accounts, convey.ShouldResemble, []string{"A1", "A2"})
				convey.So(sub.identities, convey.ShouldResemble, []string{"aWQ=", "Ynl0ZXM="})
				convey.So(ack.snapshot(), convey.ShouldResemble, []settlement{
					{tag: 1, ack: true},
					{tag: 2, ack: false, requeue: false},
					{tag: 3, ack: true},
				})
			})

			convey.Convey("And every outcome should be recorded", func() {
				convey.So(rec.snapshot(), convey.ShouldResemble, []string{
					consumer.OutcomeAccepted, consumer.OutcomeRejected, consumer.OutcomeAccepted,
				})
			})
		})

		convey.Convey("When the service refuses a job", func() {
			sub.err = errors.New("service not started")
			ch.deliveries <- delivery(7, `{"account":"A1"}`, nil)
			close(ch.deliveries)

			_ = c.Run(context.Background())

			convey.Convey("Then the message should be requeued", func() {
				convey.So(ack.snapshot(), convey.ShouldResemble, []settlement{{tag: 7, requeue: true}})
				convey.So(rec.snapshot(), convey.ShouldResemble, []string{consumer.OutcomeRequeued})
			})
		})

		convey.Convey("When a dispatched message is redelivered", func() {
			redelivered := func(tag uint64) amqp.Delivery {
				d := delivery(tag, `{"account":"A1"}`, nil)
				d.MessageId = "msg-1"
				return d
			}
			ch.deliveries <- redelivered(1)
			ch.deliveries <- redelivered(2)
			close(ch.deliveries)

			_ = c.Run(context.Background())

			convey.Convey("Then the copy is acked without a second submission", func() {
				convey.So(sub.accounts, convey.ShouldResemble, []string{"A1"})
				convey.So(ack.snapshot(), convey.ShouldResemble, []settlement{{tag: 1, ack: true}, {tag: 2, ack: true}})
				convey.So(rec.snapshot(), convey.ShouldResemble, []string{consumer.OutcomeAccepted, consumer.OutcomeDuplicate})
			})
		})

		convey.Convey("When a message with an id is refused", func() {
			sub.err = errors.New("service not started")
			seen := dedupe.NewInMemoryDeduper()
			c := consumer.New(ch, "rad.jobs", sub, consumer.WithRecorder(rec), consumer.WithDeduper(seen))
			d := delivery(1, `{"account":"A1"}`, nil)
			d.MessageId = "msg-9"
			ch.deliveries <- d
			close(ch.deliveries)
			_ = c.Run(context.Background())

			convey.Convey("Then its id is forgotten so the redelivery is submitted", func() {
				convey.So(rec.snapshot(), convey.ShouldResemble, []string{consumer.OutcomeRequeued})
				convey.So(seen.Size(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When consuming cannot start", func() {
			ch.consumeErr = errors.New("access refused")
			err := c.Run(context.Background())

			convey.Convey("Then Run should fail with a setup error", func() {
				convey.So(errors.Is(err, consumer.ErrSetup), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the consumer is shut down while idle", func() {
			errCh := make(chan error, 1)
			go func() { errCh <- c.Run(context.Background()) }()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := c.Shutdown(ctx)

			convey.Convey("Then the loop should exit cleanly", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(<-errCh, convey.ShouldBeNil)
			})
		})
	})
}
