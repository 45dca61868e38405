package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Producer struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
	log     *zap.Logger

	mu     sync.RWMutex // guards closed and the inbox close
	closed bool
}

func NewProducer(brokers []string, topic string, buf int, log *zap.Logger) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 50 * time.Millisecond,
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
		log:     log.With(zap.String("topic", topic)),
	}
}

// Start runs the writer loop until ctx is cancelled or Close is called,
// flushing whatever is still queued before it exits.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				for {
					select {
					case m, ok := <-p.inbox:
						if !ok {
							p.closeWriter()
							return
						}
						p.write(m)
					default:
						p.closeWriter()
						return
					}
				}
			case m, ok := <-p.inbox:
				if !ok {
					p.closeWriter()
					return
				}
				p.write(m)
			}
		}
	}()
}

func (p *Producer) write(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.w.WriteMessages(ctx, m); err != nil {
		p.log.Error("kafka write", zap.ByteString("key", m.Key), zap.Error(err))
	}
}

func (p *Producer) closeWriter() {
	if err := p.w.Close(); err != nil {
		p.log.Warn("kafka writer close", zap.Error(err))
	}
}

// Publish queues a message. It does not block on the network; when the inbox
// is full the message is dropped and logged.
func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) {
	m := kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.log.Error("kafka producer closed, event dropped", zap.ByteString("key", key))
		return
	}
	select {
	case p.inbox <- m:
	default:
		p.log.Error("kafka inbox full, event dropped", zap.ByteString("key", key))
	}
}

// Close closes the inbox so the loop flushes what is left and exits. Publish
// calls racing with or following Close drop their event instead of panicking.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.inbox)
}

// WaitClosed blocks until the loop has exited.
func (p *Producer) WaitClosed() { <-p.closeCh }
