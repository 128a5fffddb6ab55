package brokermessage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderboard/pkg/logger"
	"orderboard/pkg/models"
	"orderboard/pkg/rabbitmq"
)

type published struct {
	exchange, key string
	body          []byte
}

type fakeBroker struct {
	sent   []published
	err    error
	closed bool
}

func (f *fakeBroker) Publish(_ context.Context, exchange, key string, body []byte) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange, key, body})
	return nil
}

func (f *fakeBroker) Close() error {
	f.closed = true
	return nil
}

func TestPublishStatusUpdate(t *testing.T) {
	fb := &fakeBroker{}
	p := New(fb, logger.NewNop())

	msg := models.StatusUpdateMessage{
		TenantID:  "t1",
		OrderID:   "a",
		OldStatus: models.StatusPreparing,
		NewStatus: models.StatusReady,
		ChangedBy: "chef",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, p.PublishStatusUpdate(context.Background(), msg))
	require.Len(t, fb.sent, 1)
	assert.Equal(t, rabbitmq.StatusExchange, fb.sent[0].exchange)
	assert.Equal(t, "order.status.ready", fb.sent[0].key)

	var got models.StatusUpdateMessage
	require.NoError(t, json.Unmarshal(fb.sent[0].body, &got))
	assert.Equal(t, msg, got)

	require.NoError(t, p.Close())
	assert.True(t, fb.closed)
}

func TestPublishStatusUpdate_BrokerError(t *testing.T) {
	boom := errors.New("channel closed")
	p := New(&fakeBroker{err: boom}, logger.NewNop())
	err := p.PublishStatusUpdate(context.Background(), models.StatusUpdateMessage{NewStatus: models.StatusReady})
	assert.ErrorIs(t, err, boom)
}
