package model

import "time"

type NotificationType string

const (
	NotificationInsert NotificationType = "insert"
	NotificationUpdate NotificationType = "update"
)

type NotificationEvent struct {
	ID        string           `json:"id" bson:"_id,omitempty"`
	Type      NotificationType `json:"type" bson:"type"`
	Source    string           `json:"source" bson:"source"`
	Count     int              `json:"count" bson:"count"`
	Message   string           `json:"message" bson:"message"`
	CreatedAt time.Time        `json:"created_at" bson:"created_at"`
}

// NotificationDelivery is the per-subscriber state row created by fan-out.
type NotificationDelivery struct {
	UserID         string `json:"user_id" bson:"user_id"`
	NotificationID string `json:"notification_id" bson:"notification_id"`
	Read           bool   `json:"read" bson:"read"`
	Deleted        bool   `json:"deleted" bson:"deleted"`
}

// UserNotification is a delivery joined with its event, as shown to a subscriber.
type UserNotification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Source    string           `json:"source"`
	Count     int              `json:"count"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"created_at"`
	Read      bool             `json:"read"`
}
