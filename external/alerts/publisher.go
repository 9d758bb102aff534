// Package alerts publishes operational alerts to a RabbitMQ queue consumed
// by the on-call tooling. Its main use is surfacing consent emails that
// failed to send, since those failures are deliberately swallowed by the
// request path.
package alerts

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kindred-inc/kindred-api/schema"
)

type Publisher interface {
	PublishNotificationFailure(ctx context.Context, record *schema.ConsentRecord, sendErr error) error
	Close() error
}

type Alert struct {
	Kind      string    `json:"kind"`
	ConsentID string    `json:"consent_id"`
	StudentID string    `json:"student_id"`
	SchoolID  string    `json:"school_id"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"ts"`
}

type AMQPPublisher struct {
	conn      *amqp.Connection
	ch        *amqp.Channel
	queueName string
}

func NewAMQPPublisher(amqpURL, queueName string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	// queue declaration is idempotent
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPPublisher{
		conn:      conn,
		ch:        ch,
		queueName: queueName,
	}, nil
}

func (p *AMQPPublisher) PublishNotificationFailure(ctx context.Context, record *schema.ConsentRecord, sendErr error) error {
	body, err := json.Marshal(Alert{
		Kind:      "notification_failure",
		ConsentID: record.ID,
		StudentID: record.StudentID,
		SchoolID:  record.SchoolID,
		Error:     sendErr.Error(),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	return p.ch.PublishWithContext(
		ctx,
		"",          // default exchange
		p.queueName, // routing key == queue name
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func (p *AMQPPublisher) Close() error {
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			return err
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
