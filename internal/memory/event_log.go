package memory

import (
	"context"
	"sync"
)

// EventLog remembers processed provider event ids for the life of the process.
type EventLog struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewEventLog() *EventLog {
	return &EventLog{seen: make(map[string]struct{})}
}

func (l *EventLog) Seen(_ context.Context, eventID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[eventID]
	return ok, nil
}

func (l *EventLog) Mark(_ context.Context, eventID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen[eventID] = struct{}{}
	return nil
}
