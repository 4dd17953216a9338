package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/eun2chd/allround/model"
)

// ErrNotificationNotFound is returned when a user has no delivery row for
// the notification.
var ErrNotificationNotFound = errors.New("notification not found")

// CreateNotification inserts ev and sets its ID.
func (s *Store) CreateNotification(ctx context.Context, ev *model.NotificationEvent) error {
	ev.ID = primitive.NewObjectID().Hex()

	start := time.Now()
	_, err := s.db.Collection(NotificationsCollection).InsertOne(ctx, ev)
	observe("insert", NotificationsCollection, start, err)
	if err != nil {
		ev.ID = ""
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// SubscriberIDs lists the ids of every profile with the given role.
func (s *Store) SubscriberIDs(ctx context.Context, role string) ([]string, error) {
	start := time.Now()
	cursor, err := s.db.Collection(ProfilesCollection).Find(ctx,
		bson.M{"role": role}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		observe("find", ProfilesCollection, start, err)
		return nil, fmt.Errorf("find profiles: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID bson.RawValue `bson:"_id"`
	}
	err = cursor.All(ctx, &rows)
	observe("find", ProfilesCollection, start, err)
	if err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		if id := idString(r.ID); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// idString accepts both string and ObjectID profile keys.
func idString(v bson.RawValue) string {
	if oid, ok := v.ObjectIDOK(); ok {
		return oid.Hex()
	}
	if s, ok := v.StringValueOK(); ok {
		return s
	}
	return ""
}

// InsertDeliveries writes the per-user rows for a notification in one batch.
func (s *Store) InsertDeliveries(ctx context.Context, rows []model.NotificationDelivery) error {
	if len(rows) == 0 {
		return nil
	}
	docs := make([]interface{}, len(rows))
	for i := range rows {
		docs[i] = rows[i]
	}

	start := time.Now()
	_, err := s.db.Collection(DeliveriesCollection).InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	observe("insert_many", DeliveriesCollection, start, err)
	if err != nil {
		return fmt.Errorf("insert deliveries: %w", err)
	}
	return nil
}

// ListUserNotifications returns a user's undeleted notifications, newest
// first, at most limit of them. The unread count covers every undeleted
// delivery, not just the returned page.
func (s *Store) ListUserNotifications(ctx context.Context, userID string, limit int) ([]model.UserNotification, int, error) {
	start := time.Now()
	cursor, err := s.db.Collection(DeliveriesCollection).Find(ctx,
		bson.M{"user_id": userID, "deleted": false})
	if err != nil {
		observe("find", DeliveriesCollection, start, err)
		return nil, 0, fmt.Errorf("find deliveries: %w", err)
	}
	var deliveries []model.NotificationDelivery
	err = cursor.All(ctx, &deliveries)
	_ = cursor.Close(ctx)
	observe("find", DeliveriesCollection, start, err)
	if err != nil {
		return nil, 0, fmt.Errorf("decode deliveries: %w", err)
	}

	out := []model.UserNotification{}
	if len(deliveries) == 0 {
		return out, 0, nil
	}

	unread := 0
	readByID := make(map[string]bool, len(deliveries))
	ids := make([]string, 0, len(deliveries))
	for _, d := range deliveries {
		readByID[d.NotificationID] = d.Read
		ids = append(ids, d.NotificationID)
		if !d.Read {
			unread++
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	start = time.Now()
	cursor, err = s.db.Collection(NotificationsCollection).Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		observe("find", NotificationsCollection, start, err)
		return nil, 0, fmt.Errorf("find notifications: %w", err)
	}
	defer cursor.Close(ctx)

	var events []model.NotificationEvent
	err = cursor.All(ctx, &events)
	observe("find", NotificationsCollection, start, err)
	if err != nil {
		return nil, 0, fmt.Errorf("decode notifications: %w", err)
	}

	for _, ev := range events {
		out = append(out, model.UserNotification{
			ID:        ev.ID,
			Type:      ev.Type,
			Source:    ev.Source,
			Count:     ev.Count,
			Message:   ev.Message,
			CreatedAt: ev.CreatedAt,
			Read:      readByID[ev.ID],
		})
	}
	return out, unread, nil
}

// MarkRead flags one delivery as read.
func (s *Store) MarkRead(ctx context.Context, userID, notificationID string) error {
	return s.setDeliveryFlag(ctx, userID, notificationID, "read")
}

// MarkDeleted hides one delivery from the user's list. The event itself stays.
func (s *Store) MarkDeleted(ctx context.Context, userID, notificationID string) error {
	return s.setDeliveryFlag(ctx, userID, notificationID, "deleted")
}

func (s *Store) setDeliveryFlag(ctx context.Context, userID, notificationID, field string) error {
	start := time.Now()
	res, err := s.db.Collection(DeliveriesCollection).UpdateOne(ctx,
		bson.M{"user_id": userID, "notification_id": notificationID},
		bson.M{"$set": bson.M{field: true}},
	)
	observe("update", DeliveriesCollection, start, err)
	if err != nil {
		return fmt.Errorf("mark %s: %w", field, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead flags every undeleted delivery of the user as read.
func (s *Store) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.setAllDeliveryFlags(ctx, userID, "read")
}

// MarkAllDeleted hides every undeleted delivery of the user.
func (s *Store) MarkAllDeleted(ctx context.Context, userID string) (int64, error) {
	return s.setAllDeliveryFlags(ctx, userID, "deleted")
}

func (s *Store) setAllDeliveryFlags(ctx context.Context, userID, field string) (int64, error) {
	start := time.Now()
	res, err := s.db.Collection(DeliveriesCollection).UpdateMany(ctx,
		bson.M{"user_id": userID, "deleted": false},
		bson.M{"$set": bson.M{field: true}},
	)
	observe("update_many", DeliveriesCollection, start, err)
	if err != nil {
		return 0, fmt.Errorf("mark all %s: %w", field, err)
	}
	return res.ModifiedCount, nil
}
