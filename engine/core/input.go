package core

import "sync"

type KeyCode uint16

// Key codes follow the ASCII letters so glfw keys map directly.
const (
	KEY_SPACE  KeyCode = 0x20
	KEY_A      KeyCode = 0x41
	KEY_D      KeyCode = 0x44
	KEY_E      KeyCode = 0x45
	KEY_Q      KeyCode = 0x51
	KEY_S      KeyCode = 0x53
	KEY_W      KeyCode = 0x57
	KEY_ESCAPE KeyCode = 0x100
	KEY_LEFT   KeyCode = 0x101
	KEY_RIGHT  KeyCode = 0x102
	KEY_UP     KeyCode = 0x103
	KEY_DOWN   KeyCode = 0x104
	KEY_SHIFT  KeyCode = 0x105
	KEY_F1     KeyCode = 0x110
	KEY_F2     KeyCode = 0x111
	KEY_F3     KeyCode = 0x112

	KEYS_MAX_KEYS KeyCode = 0x120
)

type KeyboardState struct {
	Keys [KEYS_MAX_KEYS]bool
}

// InputState holds the current and previous keyboard state. Platform
// callbacks write it, the camera controller reads it once per frame.
type InputState struct {
	mu       sync.RWMutex
	current  KeyboardState
	previous KeyboardState
	events   *EventBus
}

// NewInputState fires key events on bus when it is not nil.
func NewInputState(bus *EventBus) *InputState {
	return &InputState{events: bus}
}

// Update copies the current state into the previous one.
func (is *InputState) Update() {
	is.mu.Lock()
	is.previous = is.current
	is.mu.Unlock()
}

func (is *InputState) IsKeyDown(key KeyCode) bool {
	if key >= KEYS_MAX_KEYS {
		return false
	}
	is.mu.RLock()
	defer is.mu.RUnlock()
	return is.current.Keys[key]
}

func (is *InputState) WasKeyDown(key KeyCode) bool {
	if key >= KEYS_MAX_KEYS {
		return false
	}
	is.mu.RLock()
	defer is.mu.RUnlock()
	return is.previous.Keys[key]
}

// ProcessKey records a key transition and fires the matching event.
func (is *InputState) ProcessKey(key KeyCode, pressed bool) {
	if key >= KEYS_MAX_KEYS {
		return
	}
	is.mu.Lock()
	changed := is.current.Keys[key] != pressed
	is.current.Keys[key] = pressed
	is.mu.Unlock()

	if !changed || is.events == nil {
		return
	}
	code := EVENT_CODE_KEY_RELEASED
	if pressed {
		code = EVENT_CODE_KEY_PRESSED
	}
	is.events.Fire(code, is, EventContext{Key: key})
}
