package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	fail   bool
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("broker down")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestProducerFlushesOnClose(t *testing.T) {
	w := &recordingWriter{}
	p := newProducer(w, 8, nil)
	p.Start(context.Background())

	p.Publish("order.created", []byte("o-1"), []byte(`{"a":1}`), kafka.Header{Key: "x-event-type", Value: []byte("OrderCreated")})
	p.Publish("trade.proposed", []byte("t-1"), []byte(`{"b":2}`))
	p.Close()
	p.WaitClosed()

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "order.created", w.msgs[0].Topic)
	assert.Equal(t, []byte("o-1"), w.msgs[0].Key)
	assert.Equal(t, "x-event-type", w.msgs[0].Headers[0].Key)
	assert.Equal(t, "trade.proposed", w.msgs[1].Topic)
	assert.True(t, w.closed)
}

func TestProducerPublishAfterCloseIsDropped(t *testing.T) {
	w := &recordingWriter{}
	p := newProducer(w, 1, nil)
	p.Start(context.Background())
	p.Close()
	p.Close() // idempotent

	assert.NotPanics(t, func() { p.Publish("order.created", nil, []byte("x")) })
	p.WaitClosed()
	assert.Empty(t, w.msgs)
}

func TestProducerKeepsGoingAfterWriteError(t *testing.T) {
	w := &recordingWriter{fail: true}
	p := newProducer(w, 4, nil)
	p.Start(context.Background())

	p.Publish("order.created", nil, []byte("lost"))
	p.Close()
	p.WaitClosed()

	assert.Empty(t, w.msgs)
	assert.True(t, w.closed)
}

func TestUnwrapPayload(t *testing.T) {
	type payload struct {
		OrderID string `json:"order_id"`
	}
	got, err := UnwrapPayload[payload]([]byte(`{"order_id":"o-9"}`))
	require.NoError(t, err)
	assert.Equal(t, "o-9", got.OrderID)

	_, err = UnwrapPayload[payload]([]byte(`{`))
	assert.ErrorContains(t, err, "decode payload")
}
