package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facegate/internal/models"
)

// fakeMsg implements the parts of jetstream.Msg the consumer touches.
type fakeMsg struct {
	jetstream.Msg
	data  []byte
	acked string
}

func (m *fakeMsg) Data() []byte    { return m.data }
func (m *fakeMsg) Subject() string { return "access.granted" }
func (m *fakeMsg) Ack() error      { m.acked = "ack"; return nil }
func (m *fakeMsg) Nak() error      { m.acked = "nak"; return nil }
func (m *fakeMsg) Term() error     { m.acked = "term"; return nil }

func TestAccessSubject(t *testing.T) {
	tests := map[models.Outcome]string{
		models.OutcomeGranted:       "access.granted",
		models.OutcomeDeniedExpired: "access.denied_expired",
		models.OutcomeDeniedNoMatch: "access.denied_no_match",
		models.OutcomeRejected:      "access.rejected",
	}
	for o, want := range tests {
		assert.Equal(t, want, AccessSubject(o), "AccessSubject(%q)", o)
	}
}

func TestAccessStreamCoversAllSubjects(t *testing.T) {
	cfg := accessStreamConfig()
	assert.Equal(t, AccessStreamName, cfg.Name)
	assert.Equal(t, []string{"access.>"}, cfg.Subjects)
	assert.NotZero(t, cfg.Duplicates, "publishes are deduplicated by event id, the window must be set")
}

func TestAccessConsumerConfig(t *testing.T) {
	durable := accessConsumerConfig("access-recorder", false)
	assert.Equal(t, jetstream.DeliverAllPolicy, durable.DeliverPolicy)
	assert.Greater(t, durable.MaxDeliver, 1)

	live := accessConsumerConfig("api-ws", true)
	assert.Equal(t, jetstream.DeliverNewPolicy, live.DeliverPolicy)
	assert.Equal(t, "api-ws", live.Durable)
}

func TestHandleMessage(t *testing.T) {
	clientID := uuid.New()
	ev := models.AccessEvent{
		ID: uuid.New(), ClientID: &clientID, ClientName: "Alice",
		Outcome: models.OutcomeGranted, Confidence: 91.2,
		DecidedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	t.Run("ack on success", func(t *testing.T) {
		msg := &fakeMsg{data: payload}
		var got models.AccessEvent
		handleMessage(context.Background(), "test", msg, func(_ context.Context, e models.AccessEvent) error {
			got = e
			return nil
		})
		assert.Equal(t, "ack", msg.acked)
		assert.Equal(t, ev.ID, got.ID)
		assert.Equal(t, "Alice", got.ClientName)
		require.NotNil(t, got.ClientID)
		assert.Equal(t, clientID, *got.ClientID)
		assert.True(t, got.DecidedAt.Equal(ev.DecidedAt))
	})

	t.Run("nak on handler error", func(t *testing.T) {
		msg := &fakeMsg{data: payload}
		handleMessage(context.Background(), "test", msg, func(context.Context, models.AccessEvent) error {
			return errors.New("database is down")
		})
		assert.Equal(t, "nak", msg.acked)
	})

	t.Run("term on malformed payload", func(t *testing.T) {
		msg := &fakeMsg{data: []byte("{not json")}
		called := false
		handleMessage(context.Background(), "test", msg, func(context.Context, models.AccessEvent) error {
			called = true
			return nil
		})
		assert.Equal(t, "term", msg.acked)
		assert.False(t, called)
	})
}
