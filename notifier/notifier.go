// Package notifier turns a run's insert/update counts into notification
// events and fans each event out to subscribers.
package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/eun2chd/allround/logger"
	"github.com/eun2chd/allround/metrics"
	"github.com/eun2chd/allround/model"
)

// EventStore persists events and their per-subscriber delivery rows.
type EventStore interface {
	CreateNotification(ctx context.Context, ev *model.NotificationEvent) error
	SubscriberIDs(ctx context.Context, role string) ([]string, error)
	InsertDeliveries(ctx context.Context, rows []model.NotificationDelivery) error
}

// Publisher broadcasts created events on a message bus.
type Publisher interface {
	PublishNotification(ctx context.Context, ev model.NotificationEvent) error
}

type Notifier struct {
	store     EventStore
	publisher Publisher
	role      string
	log       logger.Logger
	now       func() time.Time
}

// New builds a notifier. publisher may be nil.
func New(store EventStore, publisher Publisher, role string, log logger.Logger) *Notifier {
	return &Notifier{store: store, publisher: publisher, role: role, log: log, now: time.Now}
}

func InsertMessage(source string, n int) string {
	return fmt.Sprintf("%s 공모전의 %d개의 데이터가 새로 추가되었어요", source, n)
}

func UpdateMessage(source string, n int) string {
	return fmt.Sprintf("%s 공모전의 %d개의 데이터가 새로 업데이트 했어요", source, n)
}

// Notify runs after the upsert has been committed. It never returns an
// error: a failure to record or deliver an event is logged and the
// remaining work continues. The events that were stored are returned.
func (n *Notifier) Notify(ctx context.Context, source string, inserted, updated int) []model.NotificationEvent {
	var created []model.NotificationEvent

	if inserted > 0 {
		if ev, ok := n.emit(ctx, model.NotificationInsert, source, inserted, InsertMessage(source, inserted)); ok {
			created = append(created, ev)
		}
	}
	if updated > 0 {
		if ev, ok := n.emit(ctx, model.NotificationUpdate, source, updated, UpdateMessage(source, updated)); ok {
			created = append(created, ev)
		}
	}
	return created
}

func (n *Notifier) emit(ctx context.Context, typ model.NotificationType, source string, count int, msg string) (model.NotificationEvent, bool) {
	ev := model.NotificationEvent{
		Type:      typ,
		Source:    source,
		Count:     count,
		Message:   msg,
		CreatedAt: n.now().UTC().Truncate(time.Millisecond),
	}
	if err := n.store.CreateNotification(ctx, &ev); err != nil {
		n.log.Error("Failed to create notification",
			logger.String("source", source),
			logger.String("type", string(typ)),
			logger.Error(err),
		)
		return ev, false
	}
	metrics.NotificationsCreatedTotal.WithLabelValues(source, string(typ)).Inc()

	delivered, err := n.fanOut(ctx, ev.ID)
	metrics.NotificationFanoutTotal.WithLabelValues(metrics.StatusLabel(err)).Inc()
	if err != nil {
		n.log.Error("Notification fan-out failed",
			logger.String("notification_id", ev.ID),
			logger.Error(err),
		)
	} else {
		n.log.Info("Notification dispatched",
			logger.String("notification_id", ev.ID),
			logger.String("type", string(typ)),
			logger.Int("count", count),
			logger.Int("subscribers", delivered),
		)
	}

	if n.publisher != nil {
		if err := n.publisher.PublishNotification(ctx, ev); err != nil {
			n.log.Warn("Failed to publish notification",
				logger.String("notification_id", ev.ID),
				logger.Error(err),
			)
		}
	}
	return ev, true
}

// fanOut creates one unread, undeleted delivery row per eligible subscriber.
func (n *Notifier) fanOut(ctx context.Context, notificationID string) (int, error) {
	users, err := n.store.SubscriberIDs(ctx, n.role)
	if err != nil {
		return 0, fmt.Errorf("list subscribers: %w", err)
	}
	if len(users) == 0 {
		return 0, nil
	}
	rows := make([]model.NotificationDelivery, len(users))
	for i, u := range users {
		rows[i] = model.NotificationDelivery{UserID: u, NotificationID: notificationID}
	}
	if err := n.store.InsertDeliveries(ctx, rows); err != nil {
		return 0, fmt.Errorf("insert deliveries: %w", err)
	}
	return len(rows), nil
}
