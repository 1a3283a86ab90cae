package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"campusride/internal/config"
)

const connectAttempts = 5

// SMSJob is the message consumed by the SMS gateway worker.
type SMSJob struct {
	Phone    string    `json:"phone"`
	Message  string    `json:"message"`
	QueuedAt time.Time `json:"queued_at"`
}

// channel is the subset of *amqp.Channel used for publishing.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// SMSPublisher queues text messages on a durable RabbitMQ queue.
type SMSPublisher struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    channel
	queue string
	log   logrus.FieldLogger
}

// Dial connects to the broker, retrying with a growing delay, and declares
// the SMS queue.
func Dial(cfg config.RabbitMQConfig, log logrus.FieldLogger) (*SMSPublisher, error) {
	var conn *amqp.Connection
	var err error

	for i := 1; i <= connectAttempts; i++ {
		conn, err = amqp.Dial(cfg.URL)
		if err == nil {
			break
		}
		log.WithError(err).WithField("attempt", i).Warn("rabbitmq not ready, retrying")
		time.Sleep(time.Duration(i) * 2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ after retries: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		cfg.SMSQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", cfg.SMSQueue, err)
	}

	log.WithField("queue", cfg.SMSQueue).Info("connected to RabbitMQ")
	return &SMSPublisher{conn: conn, ch: ch, queue: cfg.SMSQueue, log: log}, nil
}

func newSMSPublisher(ch channel, queue string, log logrus.FieldLogger) *SMSPublisher {
	return &SMSPublisher{ch: ch, queue: queue, log: log}
}

// SendSMS publishes a persistent SMS job to the default exchange.
func (p *SMSPublisher) SendSMS(ctx context.Context, phone, message string) error {
	body, err := json.Marshal(SMSJob{Phone: phone, Message: message, QueuedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal sms job: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.PublishWithContext(ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	); err != nil {
		return fmt.Errorf("failed to publish sms job: %w", err)
	}

	p.log.WithField("queue", p.queue).Debug("sms job queued")
	return nil
}

// Close closes the channel and the connection.
func (p *SMSPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.log.Info("rabbitmq connection closed")
}

// LogSender writes messages to the log instead of delivering them. It is
// used when no broker is configured.
type LogSender struct {
	log logrus.FieldLogger
}

func NewLogSender(log logrus.FieldLogger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) SendSMS(ctx context.Context, phone, message string) error {
	s.log.WithFields(logrus.Fields{"phone": phone, "message": message}).Info("sms (not delivered)")
	return nil
}
