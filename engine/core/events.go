package core

import "sync"

// System internal event codes.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// Keyboard key pressed. Data.Key holds the key code.
	EVENT_CODE_KEY_PRESSED SystemEventCode = 0x02

	// Keyboard key released. Data.Key holds the key code.
	EVENT_CODE_KEY_RELEASED SystemEventCode = 0x03

	// Framebuffer resized. Data.Width and Data.Height hold the new size.
	EVENT_CODE_RESIZED SystemEventCode = 0x08

	// A watched shader binary changed on disk. Data.Path names it.
	EVENT_CODE_SHADER_CHANGED SystemEventCode = 0x09

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

type EventContext struct {
	Key    KeyCode
	Width  uint32
	Height uint32
	Path   string
}

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, data EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

// EventBus dispatches events synchronously on the caller's goroutine.
type EventBus struct {
	mu         sync.RWMutex
	registered map[SystemEventCode][]registeredEvent
}

func NewEventBus() *EventBus {
	return &EventBus{
		registered: make(map[SystemEventCode][]registeredEvent),
	}
}

// Register returns false when the listener is already registered for code.
func (eb *EventBus) Register(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for _, e := range eb.registered[code] {
		if e.listener == listener {
			LogWarn("listener already registered for event code %d", code)
			return false
		}
	}
	eb.registered[code] = append(eb.registered[code], registeredEvent{listener: listener, callback: onEvent})
	return true
}

func (eb *EventBus) Unregister(code SystemEventCode, listener interface{}) bool {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	events := eb.registered[code]
	for i, e := range events {
		if e.listener == listener {
			eb.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

// Fire stops at the first listener that reports the event handled.
func (eb *EventBus) Fire(code SystemEventCode, sender interface{}, data EventContext) bool {
	eb.mu.RLock()
	events := append([]registeredEvent(nil), eb.registered[code]...)
	eb.mu.RUnlock()
	for _, e := range events {
		if e.callback(code, sender, data) {
			return true
		}
	}
	return false
}
