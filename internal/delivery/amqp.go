// internal/delivery/amqp.go
package delivery

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/unclebandit/dripleopard-backend/internal/model"
)

// AMQPDispatcher publishes delivery jobs to a durable broker queue so a
// separate worker binary can consume them.
type AMQPDispatcher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	log     *logrus.Entry
}

// NewAMQPDispatcher connects to the broker and declares the queue.
func NewAMQPDispatcher(url, queueName string, log *logrus.Entry) (*AMQPDispatcher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	log.WithField("queue", queueName).Info("✅ connected to message broker")
	return &AMQPDispatcher{conn: conn, channel: ch, queue: queueName, log: log}, nil
}

func (d *AMQPDispatcher) Dispatch(job model.DeliveryJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal delivery job: %w", err)
	}

	return d.channel.Publish(
		"",
		d.queue,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			MessageId:   job.MessageID,
			Body:        body,
		},
	)
}

// Close releases the channel and connection.
func (d *AMQPDispatcher) Close() {
	if err := d.channel.Close(); err != nil {
		d.log.WithError(err).Warn("⚠️ failed to close broker channel")
	}
	if err := d.conn.Close(); err != nil {
		d.log.WithError(err).Warn("⚠️ failed to close broker connection")
	}
}
