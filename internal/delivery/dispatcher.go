// internal/delivery/dispatcher.go
package delivery

import (
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/dripleopard-backend/internal/model"
	"github.com/unclebandit/dripleopard-backend/internal/queue"
)

// Dispatcher hands delivery jobs to whatever transport is configured.
type Dispatcher interface {
	Dispatch(job model.DeliveryJob) error
}

// QueueDispatcher publishes jobs onto the in-process queue for deployments
// that run without a broker.
type QueueDispatcher struct {
	Queue queue.Queue
	Topic string
}

func (d *QueueDispatcher) Dispatch(job model.DeliveryJob) error {
	return d.Queue.Publish(d.Topic, job)
}

// StartDeliverySubscriber attaches a worker to the in-process queue so jobs
// published by the stage action are processed within the same binary.
func StartDeliverySubscriber(q queue.Queue, topic string, w *Worker, log *logrus.Entry) {
	err := q.Subscribe(topic, func(payload any) error {
		job, ok := payload.(model.DeliveryJob)
		if !ok {
			log.Warn("⚠️ invalid payload type, expected delivery job")
			return nil
		}
		return w.ProcessJob(job)
	})
	if err != nil {
		log.WithError(err).WithField("topic", topic).Warn("⚠️ failed to start delivery subscriber")
	}
}
