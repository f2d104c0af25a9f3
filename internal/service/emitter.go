package service

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// EventEmitter publishes service events such as "report:completed".
// Services receive this interface so they can be tested with MockEmitter.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// EventReportCompleted is emitted after every report run, with the
// *domain.ReportResult as data.
const EventReportCompleted = "report:completed"

// LogEmitter writes events to a zap logger.
type LogEmitter struct {
	Logger *zap.Logger
}

func (e LogEmitter) Emit(_ context.Context, event string, data any) {
	e.Logger.Info("event", zap.String("event", event), zap.Any("data", data))
}

// MockEmitter records all emitted events. It is safe for concurrent use.
type MockEmitter struct {
	mu     sync.Mutex
	events []EmittedEvent
}

// EmittedEvent holds a single recorded emission.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, EmittedEvent{Event: event, Data: data})
}

// Events returns a copy of the recorded events.
func (m *MockEmitter) Events() []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmittedEvent(nil), m.events...)
}
