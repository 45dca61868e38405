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
	"go.uber.org/zap/zaptest"
)

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) offsets(partition int) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int64
	for _, m := range r.committed {
		if m.Partition == partition {
			out = append(out, m.Offset)
		}
	}
	return out
}

func TestConsumer_RetriesFailedMessageBeforeCommittingLaterOnes(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{
		{Partition: 0, Offset: 9},
		{Partition: 0, Offset: 10},
		{Partition: 1, Offset: 4},
		{Partition: 0, Offset: 11},
	}}
	c := newConsumer(r, 3, zaptest.NewLogger(t))
	c.minBackoff, c.maxBackoff = time.Millisecond, 5*time.Millisecond

	var (
		mu       sync.Mutex
		attempts = map[int64]int{}
		order    []int64
	)
	h := func(_ context.Context, m kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		attempts[m.Offset]++
		if m.Partition == 0 && m.Offset == 9 && attempts[9] < 3 {
			return errors.New("redis unavailable")
		}
		if m.Partition == 0 {
			order = append(order, m.Offset)
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Start(ctx, h) }()

	require.Eventually(t, func() bool {
		return len(r.offsets(0)) == 3 && len(r.offsets(1)) == 1
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-errc)

	assert.Equal(t, []int64{9, 10, 11}, r.offsets(0))
	assert.Equal(t, []int64{9, 10, 11}, order)
	assert.Equal(t, 3, attempts[9])
	assert.True(t, r.closed)
}

func TestConsumer_StopsRetryingOnShutdownWithoutCommitting(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Partition: 0, Offset: 1}}}
	c := newConsumer(r, 1, zaptest.NewLogger(t))
	c.minBackoff, c.maxBackoff = time.Millisecond, time.Millisecond

	called := make(chan struct{}, 1)
	h := func(context.Context, kafka.Message) error {
		select {
		case called <- struct{}{}:
		default:
		}
		return errors.New("always failing")
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Start(ctx, h) }()

	<-called
	cancel()
	require.NoError(t, <-errc)
	assert.Empty(t, r.offsets(0))
}
