package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"recruit-pipeline/domain"
)

type ackRecorder struct {
	acked    int
	nacked   int
	requeued bool
}

func (a *ackRecorder) Ack(uint64, bool) error {
	a.acked++
	return nil
}

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked++
	a.requeued = requeue
	return nil
}

func (a *ackRecorder) Reject(uint64, bool) error { return nil }

func TestNewPublishing(t *testing.T) {
	at := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	event := domain.OutboxEvent{
		EventID:    "9b1f",
		Type:       domain.ActionRebateTriggered,
		PipelineID: 4,
		Payload:    []byte(`{"reason":"left"}`),
		CreatedAt:  at,
	}

	msg, err := newPublishing(event)
	require.NoError(t, err)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "9b1f", msg.MessageId)
	assert.Equal(t, string(domain.ActionRebateTriggered), msg.Type)
	assert.Equal(t, at, msg.Timestamp)

	var decoded domain.OutboxEvent
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, event.EventID, decoded.EventID)
	assert.JSONEq(t, `{"reason":"left"}`, string(decoded.Payload))
}

func TestDeliverAcknowledgement(t *testing.T) {
	body, err := json.Marshal(domain.OutboxEvent{EventID: "e-1", PipelineID: 2})
	require.NoError(t, err)

	tests := []struct {
		name        string
		body        []byte
		redelivered bool
		handlerErr  error
		acked       int
		nacked      int
		requeued    bool
	}{
		{name: "handled", body: body, acked: 1},
		{name: "malformed", body: []byte("{"), nacked: 1},
		{name: "failed first time", body: body, handlerErr: errors.New("hub down"), nacked: 1, requeued: true},
		{name: "failed again", body: body, redelivered: true, handlerErr: errors.New("hub down"), nacked: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &ackRecorder{}
			r := &RabbitMQ{logger: zap.NewNop()}
			var got []string

			r.deliver(context.Background(), amqp.Delivery{
				Acknowledger: ack,
				Body:         tt.body,
				Redelivered:  tt.redelivered,
			}, func(_ context.Context, e domain.OutboxEvent) error {
				got = append(got, e.EventID)
				return tt.handlerErr
			})

			assert.Equal(t, tt.acked, ack.acked)
			assert.Equal(t, tt.nacked, ack.nacked)
			assert.Equal(t, tt.requeued, ack.requeued)
			if tt.name != "malformed" {
				assert.Equal(t, []string{"e-1"}, got)
			}
		})
	}
}
