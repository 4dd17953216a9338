package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/eun2chd/allround/model"
	"github.com/eun2chd/allround/store"
)

func ns(coll string) string { return "allround." + coll }

func TestFindProvenance(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("returns stored timestamps by id", func(mt *mtest.T) {
		created := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(store.ContestsCollection), mtest.FirstBatch,
			bson.D{
				{Key: "id", Value: "101"},
				{Key: "created_at", Value: primitive.NewDateTimeFromTime(created)},
				{Key: "first_seen_at", Value: primitive.NewDateTimeFromTime(created)},
			},
			bson.D{
				{Key: "id", Value: "102"},
				{Key: "created_at", Value: primitive.NewDateTimeFromTime(created)},
			},
		))

		got, err := store.New(mt.DB).FindProvenance(context.Background(), "위비티", []string{"101", "102", "103"})
		require.NoError(mt, err)
		require.Len(mt, got, 2)
		require.NotNil(mt, got["101"].CreatedAt)
		assert.True(mt, created.Equal(*got["101"].CreatedAt))
		assert.NotNil(mt, got["101"].FirstSeenAt)
		assert.Nil(mt, got["102"].FirstSeenAt)
	})

	mt.Run("empty id list skips the query", func(mt *mtest.T) {
		got, err := store.New(mt.DB).FindProvenance(context.Background(), "S", nil)
		require.NoError(mt, err)
		assert.Empty(mt, got)
	})

	mt.Run("command error is returned", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code: 2, Name: "BadValue", Message: "bad query",
		}))
		_, err := store.New(mt.DB).FindProvenance(context.Background(), "S", []string{"1"})
		require.Error(mt, err)
	})
}

func TestCountBySource(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("counts rows", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(store.ContestsCollection), mtest.FirstBatch,
			bson.D{{Key: "n", Value: int32(42)}}))

		n, err := store.New(mt.DB).CountBySource(context.Background(), "요즘것들")
		require.NoError(mt, err)
		assert.EqualValues(mt, 42, n)
	})
}

func TestUpsertContests(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	records := []model.ContestRecord{
		{Source: "S", ID: "1", Title: "a"},
		{Source: "S", ID: "2", Title: "b"},
	}

	mt.Run("success", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: int32(2)},
			bson.E{Key: "nModified", Value: int32(1)},
		))
		require.NoError(mt, store.New(mt.DB).UpsertContests(context.Background(), records))
	})

	mt.Run("write error fails the call", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index: 0, Code: 11000, Message: "duplicate key error",
		}))
		err := store.New(mt.DB).UpsertContests(context.Background(), records)
		require.Error(mt, err)
		assert.Contains(mt, err.Error(), "upsert contests")
	})

	mt.Run("nothing to write", func(mt *mtest.T) {
		require.NoError(mt, store.New(mt.DB).UpsertContests(context.Background(), nil))
	})
}

func TestCursor(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("missing row starts at page one", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(store.CrawlStateCollection), mtest.FirstBatch))
		page, err := store.New(mt.DB).ReadCursor(context.Background(), "위비티")
		require.NoError(mt, err)
		assert.Equal(mt, 1, page)
	})

	mt.Run("stored page is returned", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(store.CrawlStateCollection), mtest.FirstBatch,
			bson.D{{Key: "source", Value: "위비티"}, {Key: "next_page", Value: int32(7)}}))
		page, err := store.New(mt.DB).ReadCursor(context.Background(), "위비티")
		require.NoError(mt, err)
		assert.Equal(mt, 7, page)
	})

	mt.Run("read error is returned", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code: 13, Name: "Unauthorized", Message: "not authorized",
		}))
		_, err := store.New(mt.DB).ReadCursor(context.Background(), "위비티")
		require.Error(mt, err)
	})

	mt.Run("write upserts", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: int32(1)}))
		require.NoError(mt, store.New(mt.DB).WriteCursor(context.Background(), "위비티", 9, time.Now()))
	})
}

func TestNotifications(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("create assigns an id", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		ev := &model.NotificationEvent{Type: model.NotificationInsert, Source: "S", Count: 3}
		require.NoError(mt, store.New(mt.DB).CreateNotification(context.Background(), ev))
		assert.Len(mt, ev.ID, 24)
	})

	mt.Run("subscriber ids accept string and object keys", func(mt *mtest.T) {
		oid := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(store.ProfilesCollection), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "user-1"}},
			bson.D{{Key: "_id", Value: oid}},
		))
		ids, err := store.New(mt.DB).SubscriberIDs(context.Background(), "member")
		require.NoError(mt, err)
		assert.Equal(mt, []string{"user-1", oid.Hex()}, ids)
	})

	mt.Run("deliveries insert in one batch", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		err := store.New(mt.DB).InsertDeliveries(context.Background(), []model.NotificationDelivery{
			{UserID: "u1", NotificationID: "n1"},
			{UserID: "u2", NotificationID: "n1"},
		})
		require.NoError(mt, err)
	})

	mt.Run("list joins deliveries with events", func(mt *mtest.T) {
		created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns(store.DeliveriesCollection), mtest.FirstBatch,
				bson.D{{Key: "user_id", Value: "u1"}, {Key: "notification_id", Value: "n1"}, {Key: "read", Value: true}, {Key: "deleted", Value: false}},
				bson.D{{Key: "user_id", Value: "u1"}, {Key: "notification_id", Value: "n2"}, {Key: "read", Value: false}, {Key: "deleted", Value: false}},
			),
			mtest.CreateCursorResponse(0, ns(store.NotificationsCollection), mtest.FirstBatch,
				bson.D{{Key: "_id", Value: "n2"}, {Key: "type", Value: "update"}, {Key: "source", Value: "S"}, {Key: "count", Value: int32(4)}, {Key: "created_at", Value: primitive.NewDateTimeFromTime(created)}},
				bson.D{{Key: "_id", Value: "n1"}, {Key: "type", Value: "insert"}, {Key: "source", Value: "S"}, {Key: "count", Value: int32(2)}, {Key: "created_at", Value: primitive.NewDateTimeFromTime(created)}},
			),
		)
		got, unread, err := store.New(mt.DB).ListUserNotifications(context.Background(), "u1", 20)
		require.NoError(mt, err)
		assert.Equal(mt, 1, unread)
		require.Len(mt, got, 2)
		assert.Equal(mt, "n2", got[0].ID)
		assert.False(mt, got[0].Read)
		assert.Equal(mt, 4, got[0].Count)
		assert.True(mt, got[1].Read)
	})

	mt.Run("unread count covers rows beyond the limit", func(mt *mtest.T) {
		created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		var rows []bson.D
		for i := 1; i <= 4; i++ {
			rows = append(rows, bson.D{
				{Key: "user_id", Value: "u1"},
				{Key: "notification_id", Value: fmt.Sprintf("n%d", i)},
				{Key: "read", Value: i == 4},
				{Key: "deleted", Value: false},
			})
		}
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns(store.DeliveriesCollection), mtest.FirstBatch, rows...),
			mtest.CreateCursorResponse(0, ns(store.NotificationsCollection), mtest.FirstBatch,
				bson.D{{Key: "_id", Value: "n4"}, {Key: "type", Value: "insert"}, {Key: "created_at", Value: primitive.NewDateTimeFromTime(created)}},
				bson.D{{Key: "_id", Value: "n3"}, {Key: "type", Value: "insert"}, {Key: "created_at", Value: primitive.NewDateTimeFromTime(created)}},
			),
		)
		got, unread, err := store.New(mt.DB).ListUserNotifications(context.Background(), "u1", 2)
		require.NoError(mt, err)
		assert.Len(mt, got, 2)
		assert.Equal(mt, 3, unread)
	})

	mt.Run("no deliveries", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(store.DeliveriesCollection), mtest.FirstBatch))
		got, unread, err := store.New(mt.DB).ListUserNotifications(context.Background(), "u1", 50)
		require.NoError(mt, err)
		assert.Empty(mt, got)
		assert.Zero(mt, unread)
	})

	mt.Run("mark all read", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: int32(3)},
			bson.E{Key: "nModified", Value: int32(3)},
		))
		n, err := store.New(mt.DB).MarkAllRead(context.Background(), "u1")
		require.NoError(mt, err)
		assert.EqualValues(mt, 3, n)
	})

	mt.Run("mark all deleted surfaces write errors", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad update"}))
		_, err := store.New(mt.DB).MarkAllDeleted(context.Background(), "u1")
		require.Error(mt, err)
	})

	mt.Run("mark read on unknown delivery", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: int32(0)}))
		err := store.New(mt.DB).MarkRead(context.Background(), "u1", "missing")
		require.ErrorIs(mt, err, store.ErrNotificationNotFound)
	})

	mt.Run("mark deleted", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: int32(1)},
			bson.E{Key: "nModified", Value: int32(1)},
		))
		require.NoError(mt, store.New(mt.DB).MarkDeleted(context.Background(), "u1", "n1"))
	})
}
