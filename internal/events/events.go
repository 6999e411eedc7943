package events

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types published after a save attempt.
const (
	DetailsSaved      = "employee.details_saved"
	DetailsSaveFailed = "employee.details_save_failed"
	ProfileSaved      = "employee.profile_saved"
	ProfileSaveFailed = "employee.profile_save_failed"
	PasswordUpdated   = "employee.password_updated"
)

// Event represents a lightweight domain event.
type Event struct {
	ID        string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// SaveOutcome is the payload of every save event.
type SaveOutcome struct {
	EmployeeID string `json:"employee_id"`
	Form       string `json:"form"`
	Error      string `json:"error,omitempty"`
	Body       any    `json:"body,omitempty"`
}

// New builds an event with a fresh id and a JSON payload.
func New(eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Payload:   data,
		CreatedAt: time.Now(),
	}, nil
}

// Decode unmarshals the payload into out.
func (e Event) Decode(out any) error {
	return json.Unmarshal(e.Payload, out)
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	async       sync.WaitGroup
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for the given event types.
func (b *EventBus) Subscribe(handler EventHandler, eventTypes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range eventTypes {
		b.subscribers[t] = append(b.subscribers[t], handler)
	}
}

// SubscribeAsync registers a handler that runs in its own goroutine, so a
// slow subscriber does not hold up Publish. Its errors go to onError, which
// may be nil.
func (b *EventBus) SubscribeAsync(handler EventHandler, onError func(Event, error), eventTypes ...string) {
	b.Subscribe(func(event Event) error {
		b.async.Add(1)
		go func() {
			defer b.async.Done()
			if err := handler(event); err != nil && onError != nil {
				onError(event, err)
			}
		}()
		return nil
	}, eventTypes...)
}

// Wait blocks until every running async handler has returned.
func (b *EventBus) Wait() {
	b.async.Wait()
}

// Publish runs every subscriber of the event type and joins their errors.
// A failing handler does not stop the others.
func (b *EventBus) Publish(event Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	var errs []error
	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishJSON wraps payload in a new event and publishes it.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	ev, err := New(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(ev)
}
