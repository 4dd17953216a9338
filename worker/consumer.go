package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/eun2chd/allround/logger"
	"github.com/eun2chd/allround/metrics"
	"github.com/eun2chd/allround/model"
	"github.com/eun2chd/allround/notifier"
)

const (
	resultConsumerName = "crawl-result-audit"
	fetchBatch         = 10
	fetchWait          = 2 * time.Second
)

// Connect dials NATS with unlimited reconnects and logs connection changes.
func Connect(url, name string, log logger.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("Reconnected to NATS", logger.String("url", nc.ConnectedUrl()))
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS connection lost", logger.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// Auditor logs crawl results and notification events as they cross the bus.
type Auditor struct {
	log logger.Logger
}

func NewAuditor(log logger.Logger) *Auditor {
	return &Auditor{log: log}
}

// Start attaches a durable pull consumer to the result subject and a plain
// subscription to notification events. Results are fetched until ctx is done.
func (a *Auditor) Start(ctx context.Context, nc *nats.Conn, js nats.JetStreamContext) ([]*nats.Subscription, error) {
	resultSub, err := js.PullSubscribe(ResultSubject, resultConsumerName,
		nats.BindStream(StreamName),
		nats.AckExplicit(),
		nats.MaxDeliver(3),
		nats.AckWait(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe results: %w", err)
	}

	notifySub, err := nc.Subscribe(notifier.SubjectPrefix+".>", func(msg *nats.Msg) {
		metrics.NatsMessagesReceived.WithLabelValues(msg.Subject, "received").Inc()
		_ = a.HandleNotification(msg.Data)
	})
	if err != nil {
		_ = resultSub.Unsubscribe()
		return nil, fmt.Errorf("subscribe notifications: %w", err)
	}

	go a.fetchResults(ctx, resultSub)

	a.log.Info("Auditor subscribed",
		logger.String("results", ResultSubject),
		logger.String("notifications", notifier.SubjectPrefix+".>"),
	)
	return []*nats.Subscription{resultSub, notifySub}, nil
}

func (a *Auditor) fetchResults(ctx context.Context, sub *nats.Subscription) {
	for ctx.Err() == nil {
		msgs, err := sub.Fetch(fetchBatch, nats.MaxWait(fetchWait))
		switch {
		case errors.Is(err, nats.ErrTimeout):
			continue
		case errors.Is(err, nats.ErrBadSubscription), errors.Is(err, nats.ErrConnectionClosed):
			return
		case err != nil:
			a.log.Warn("Fetch crawl results failed", logger.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(fetchWait):
			}
			continue
		}

		for _, msg := range msgs {
			metrics.NatsMessagesReceived.WithLabelValues(ResultSubject, "received").Inc()
			if err := a.HandleResult(msg.Data); err != nil {
				_ = msg.Term()
				continue
			}
			_ = msg.Ack()
		}
	}
}

func (a *Auditor) HandleResult(data []byte) error {
	var res model.CrawlResult
	if err := json.Unmarshal(data, &res); err != nil {
		a.log.Error("Failed to decode crawl result", logger.Error(err))
		return err
	}

	fields := []logger.Field{
		logger.String("source", res.Source),
		logger.String("mode", string(res.Mode)),
		logger.String("request_id", res.RequestID),
		logger.Int("pages", res.Pages),
		logger.Int("total", res.Total),
		logger.Int("inserted", res.Inserted),
		logger.Int("updated", res.Updated),
	}
	if res.NextPage != nil {
		fields = append(fields, logger.Int("next_page", *res.NextPage))
	}
	if !res.Success {
		a.log.Warn("Crawl failed", append(fields, logger.String("error", res.Error))...)
		return nil
	}
	a.log.Info("Crawl finished", fields...)
	return nil
}

func (a *Auditor) HandleNotification(data []byte) error {
	var msg notifier.NotificationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		a.log.Error("Failed to decode notification", logger.Error(err))
		return err
	}
	a.log.Info("Notification",
		logger.String("id", msg.Event.ID),
		logger.String("type", string(msg.Event.Type)),
		logger.String("source", msg.Event.Source),
		logger.Int("count", msg.Event.Count),
		logger.String("message", msg.Event.Message),
	)
	return nil
}
