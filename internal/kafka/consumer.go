package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler must return nil only when the message was processed and its
// offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

// reader is the part of *kafka.Reader the consumer drives.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r          reader
	workers    int
	minBackoff time.Duration
	maxBackoff time.Duration
	log        *zap.Logger
}

func NewConsumer(brokers []string, group, topic string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(r, workers, log.With(zap.String("topic", topic), zap.String("group", group)))
}

func newConsumer(r reader, workers int, log *zap.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, minBackoff: 200 * time.Millisecond, maxBackoff: 10 * time.Second, log: log}
}

// Start fetches until ctx is cancelled. Each partition is pinned to one
// worker, so offsets are committed in order, and a failing message is retried
// with backoff until it succeeds: committing a later offset would skip it.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	lanes := make([]chan kafka.Message, c.workers)
	done := make(chan struct{}, c.workers)
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 128)
		go func(id int, lane <-chan kafka.Message) {
			defer func() { done <- struct{}{} }()
			c.work(ctx, id, lane, h)
		}(i, lanes[i])
	}
	defer func() {
		for _, l := range lanes {
			close(l)
		}
		for range lanes {
			<-done
		}
	}()

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case lanes[m.Partition%c.workers] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) work(ctx context.Context, id int, lane <-chan kafka.Message, h Handler) {
	for m := range lane {
		if !c.handle(ctx, id, m, h) {
			continue // shutting down; leave the rest uncommitted
		}
		if err := c.r.CommitMessages(ctx, m); err != nil {
			c.log.Warn("commit", zap.Int("worker", id), zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

// handle reports false only when ctx ended before h succeeded.
func (c *Consumer) handle(ctx context.Context, id int, m kafka.Message, h Handler) bool {
	backoff := c.minBackoff
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return false
		}
		err := h(ctx, m)
		if err == nil {
			return true
		}
		c.log.Warn("handler error, retrying",
			zap.Int("worker", id), zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset),
			zap.Int("attempt", attempt), zap.Duration("backoff", backoff), zap.Error(err))

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
}
