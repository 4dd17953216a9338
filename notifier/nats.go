package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/eun2chd/allround/metrics"
	"github.com/eun2chd/allround/model"
)

// SubjectPrefix is followed by the event type, e.g. contests.notification.insert.
const SubjectPrefix = "contests.notification"

// NATSPublisher broadcasts notification events on core NATS.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: SubjectPrefix}
}

// NotificationMessage is the structure sent to NATS.
type NotificationMessage struct {
	Event     model.NotificationEvent `json:"event"`
	Timestamp time.Time               `json:"timestamp"`
	Source    string                  `json:"source"`
	Version   string                  `json:"version"`
}

func (np *NATSPublisher) PublishNotification(_ context.Context, ev model.NotificationEvent) error {
	data, err := json.Marshal(NotificationMessage{
		Event:     ev,
		Timestamp: time.Now(),
		Source:    "allround-crawler",
		Version:   "1.0",
	})
	if err != nil {
		return err
	}

	subject := np.prefix + "." + string(ev.Type)
	err = np.conn.Publish(subject, data)
	metrics.NatsMessagesPublished.WithLabelValues(subject, metrics.StatusLabel(err)).Inc()
	return err
}
