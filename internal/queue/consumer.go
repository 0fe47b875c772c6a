package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facegate/internal/models"
)

// AccessHandler processes one access event. A returned error naks the
// message so it is redelivered.
type AccessHandler func(ctx context.Context, ev models.AccessEvent) error

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

func accessConsumerConfig(name string, deliverNew bool) jetstream.ConsumerConfig {
	cfg := jetstream.ConsumerConfig{
		Name:          name,
		Durable:       name,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		FilterSubject: AccessSubjectBase + ".>",
	}
	if deliverNew {
		// Live broadcast only cares about events from now on.
		cfg.DeliverPolicy = jetstream.DeliverNewPolicy
		cfg.AckWait = 10 * time.Second
		cfg.MaxDeliver = 1
	}
	return cfg
}

// ConsumeAccessEvents starts a fetch loop on the durable consumer name. The
// worker uses it to persist every event; the API uses it with deliverNew to
// feed the websocket hub.
func (c *Consumer) ConsumeAccessEvents(ctx context.Context, name string, handler AccessHandler, deliverNew bool) error {
	stream, err := c.js.Stream(ctx, AccessStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", AccessStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, accessConsumerConfig(name, deliverNew))
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", name, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch access events", "consumer", name, "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				handleMessage(ctx, name, msg, handler)
			}
		}
	}()

	slog.Info("access event consumer started", "consumer", name)
	return nil
}

func handleMessage(ctx context.Context, name string, msg jetstream.Msg, handler AccessHandler) {
	var ev models.AccessEvent
	if err := json.Unmarshal(msg.Data(), &ev); err != nil {
		// Redelivery cannot fix a malformed payload.
		slog.Error("unmarshal access event", "consumer", name, "subject", msg.Subject(), "error", err)
		_ = msg.Term()
		return
	}

	if err := handler(ctx, ev); err != nil {
		slog.Error("process access event", "consumer", name, "event_id", ev.ID, "error", err)
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()
}

func (c *Consumer) Close() {
	c.nc.Close()
}
