package hotwire

import (
	"context"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Lifecycle event types emitted to observers.
const (
	EventTypeRegistered  = "com.hotwire.module.registered"
	EventTypeInitialized = "com.hotwire.module.initialized"
	EventTypeStarted     = "com.hotwire.module.started"
	EventTypeStopped     = "com.hotwire.module.stopped"
	EventTypeCrashed     = "com.hotwire.module.crashed"
	EventTypeFailed      = "com.hotwire.module.failed"

	eventSource = "hotwire"
)

type (
	// Observer receives lifecycle events of modules. Errors returned by OnEvent are logged and
	// otherwise ignored.
	Observer interface {
		OnEvent(ctx context.Context, event cloudevents.Event) error
		ObserverID() string
	}
	// ObserverFunc adapts a function to an Observer.
	ObserverFunc struct {
		ID string
		Fn func(ctx context.Context, event cloudevents.Event) error
	}
	// ModuleEvent is the payload of every lifecycle event.
	ModuleEvent struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		Path    string `json:"path,omitempty"`
		State   string `json:"state"`
		Error   string `json:"error,omitempty"`
	}
	observers struct {
		mu   sync.RWMutex
		list []Observer
	}
)

func (o ObserverFunc) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return o.Fn(ctx, event)
}

func (o ObserverFunc) ObserverID() string {
	return o.ID
}

// NewEvent builds a CloudEvent for a module transition.
func NewEvent(eventType string, m *Module) cloudevents.Event {
	e := cloudevents.NewEvent()
	e.SetID(eventID())
	e.SetSource(eventSource)
	e.SetType(eventType)
	e.SetTime(time.Now())
	e.SetSpecVersion(cloudevents.VersionV1)
	e.SetSubject(m.name)
	data := ModuleEvent{Name: m.name, Version: m.version.String(), Path: m.path, State: m.State().String()}
	if err := m.Err(); err != nil {
		data.Error = err.Error()
	}
	_ = e.SetData(cloudevents.ApplicationJSON, data)
	return e
}

func eventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

func (o *observers) add(ob Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, x := range o.list {
		if x.ObserverID() == ob.ObserverID() {
			return
		}
	}
	o.list = append(o.list, ob)
}

func (o *observers) remove(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, x := range o.list {
		if x.ObserverID() == id {
			o.list = append(o.list[:i], o.list[i+1:]...)
			return
		}
	}
}

func (o *observers) snapshot() []Observer {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if len(o.list) == 0 {
		return nil
	}
	return append([]Observer(nil), o.list...)
}
