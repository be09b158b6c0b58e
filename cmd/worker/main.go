// cmd/worker/main.go
package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/unclebandit/dripleopard-backend/internal/config"
	"github.com/unclebandit/dripleopard-backend/internal/db"
	"github.com/unclebandit/dripleopard-backend/internal/delivery"
	"github.com/unclebandit/dripleopard-backend/internal/logger"
	"github.com/unclebandit/dripleopard-backend/internal/model"
	"github.com/unclebandit/dripleopard-backend/internal/repository"
)

// maxRedeliveries bounds broker requeues per message before it is dropped.
const maxRedeliveries = 3

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("❌ failed to load configuration")
	}

	baseLog := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	log := baseLog.WithField("service", "worker")

	if cfg.AMQPURL == "" {
		log.Fatal("❌ AMQP_URL must be set for the worker")
	}

	// Connect to RabbitMQ
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		log.WithError(err).Fatal("❌ failed to connect to RabbitMQ")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.WithError(err).Fatal("❌ failed to open a channel")
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		cfg.QueueName, // name
		true,          // durable
		false,         // delete when unused
		false,         // exclusive
		false,         // no-wait
		nil,           // arguments
	)
	if err != nil {
		log.WithError(err).Fatal("❌ failed to declare queue")
	}

	msgs, err := ch.Consume(
		q.Name,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		log.WithError(err).Fatal("❌ failed to register consumer")
	}

	sender := delivery.NewMockSender(0.9, time.Now().UnixNano(), log)
	reporter := &delivery.HTTPReporter{
		BaseURL: cfg.ServerURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
	worker := delivery.NewWorker(sender, reporter, log)

	// Same Postgres as the server's state store carries the delivery log.
	if cfg.StoreBackend == config.BackendPostgres {
		dbConn, err := db.Connect(cfg.DatabaseURL(), log)
		if err != nil {
			log.WithError(err).Fatal("❌ failed to connect to database")
		}
		defer dbConn.Close()
		worker.WithRecorder(&repository.DeliveryLogRepository{DB: dbConn})
	}

	forever := make(chan bool)

	go consumeDeliveries(msgs, worker, log)

	log.Info("📨 worker running, waiting for delivery jobs")
	<-forever
}

// consumeDeliveries drains the broker queue: unmarshal, process, ack. A
// failed job is requeued until its redelivery budget is spent, then acked
// away so a poison message cannot wedge the queue.
func consumeDeliveries(msgs <-chan amqp.Delivery, worker *delivery.Worker, log *logrus.Entry) {
	for d := range msgs {
		var job model.DeliveryJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			log.WithError(err).Warn("⚠️ invalid job payload")
			d.Ack(false)
			continue
		}

		if err := worker.ProcessJob(job); err != nil {
			if retryCount(d.Headers) < maxRedeliveries {
				d.Nack(false, true) // requeue
				continue
			}
			log.WithField("message_id", job.MessageID).Error("❌ job dropped after max retries")
		}

		d.Ack(false)
	}
}

// retryCount reads the x-retry-count header; brokers differ on the integer
// width they hand back.
func retryCount(headers amqp.Table) int {
	switch v := headers["x-retry-count"].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	}
	return 0
}
