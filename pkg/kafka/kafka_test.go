package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader serves queued messages, then blocks until the context ends.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	fetchErrs []error
	committed []int64
	drained   chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{queue: msgs, drained: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	select {
	case <-r.drained:
	default:
		close(r.drained)
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func runConsumer(t *testing.T, r *fakeReader, handler MessageHandler) *Consumer {
	t.Helper()
	c := newConsumer(r, "bm25.index.reload", handler)
	c.fetchDelay = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	select {
	case <-r.drained:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not drain the queue")
	}
	cancel()
	require.NoError(t, <-done)
	return c
}

func TestConsumerCommitsHandledMessages(t *testing.T) {
	r := newFakeReader(
		kafka.Message{Offset: 1, Key: []byte("a"), Value: []byte("ok")},
		kafka.Message{Offset: 2, Key: []byte("b"), Value: []byte("fail")},
		kafka.Message{Offset: 3, Key: []byte("c"), Value: []byte("ok")},
	)
	var seen []string
	c := runConsumer(t, r, func(_ context.Context, key, value []byte) error {
		seen = append(seen, string(key))
		if string(value) == "fail" {
			return errors.New("reload failed")
		}
		return nil
	})

	assert.Equal(t, []string{"a", "b", "c"}, seen)
	assert.Equal(t, []int64{1, 3}, r.committed)
	processed, failed := c.Counts()
	assert.Equal(t, int64(2), processed)
	assert.Equal(t, int64(1), failed)
}

func TestConsumerSurvivesFetchErrors(t *testing.T) {
	r := newFakeReader(kafka.Message{Offset: 7, Value: []byte("{}")})
	r.fetchErrs = []error{errors.New("broker unavailable"), errors.New("broker unavailable")}

	calls := 0
	c := runConsumer(t, r, func(context.Context, []byte, []byte) error {
		calls++
		return nil
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, []int64{7}, r.committed)
	assert.NoError(t, c.Ping(context.Background()), "a later fetch succeeded")
}

func TestConsumerPingReportsFetchFailure(t *testing.T) {
	r := newFakeReader()
	r.fetchErrs = []error{errors.New("broker unavailable")}
	c := runConsumer(t, r, func(context.Context, []byte, []byte) error { return nil })
	assert.ErrorContains(t, c.Ping(context.Background()), "broker unavailable")
}

func TestDecodeJSON(t *testing.T) {
	type note struct {
		Path string `json:"path"`
	}
	n, err := DecodeJSON[note]([]byte(`{"path":"/data/corpus.bm25"}`))
	require.NoError(t, err)
	assert.Equal(t, "/data/corpus.bm25", n.Path)

	_, err = DecodeJSON[note]([]byte(`{"path":`))
	assert.ErrorContains(t, err, "decode message")
}

type fakeWriter struct {
	failures int
	written  []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.failures > 0 {
		w.failures--
		return errors.New("leader not available")
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestProducerRetriesTransientFailures(t *testing.T) {
	w := &fakeWriter{failures: 2}
	p := newProducer(w, "bm25.index.reload")
	p.retry.Initial = time.Millisecond

	err := p.Publish(context.Background(), Event{Key: "corpus", Value: map[string]int{"documents": 3}})
	require.NoError(t, err)
	require.Len(t, w.written, 1)
	assert.Equal(t, "corpus", string(w.written[0].Key))
	assert.JSONEq(t, `{"documents":3}`, string(w.written[0].Value))
	require.Len(t, w.written[0].Headers, 1)
	assert.Equal(t, "application/json", string(w.written[0].Headers[0].Value))
}

func TestProducerGivesUp(t *testing.T) {
	w := &fakeWriter{failures: 10}
	p := newProducer(w, "bm25.index.reload")
	p.retry.Initial = time.Millisecond

	err := p.Publish(context.Background(), Event{Key: "corpus", Value: 1})
	assert.ErrorContains(t, err, "publish to bm25.index.reload")
	assert.Empty(t, w.written)
}

func TestProducerRejectsUnencodableValue(t *testing.T) {
	p := newProducer(&fakeWriter{}, "t")
	err := p.Publish(context.Background(), Event{Value: make(chan int)})
	assert.ErrorContains(t, err, "encode event")
}
