package ws

import (
	"sync"
	"time"

	"github.com/socialink/realtime-platform/pkg/metrics"
)

// DefaultTypingIdle is how long a typing indicator stays authoritative
// without a refresh.
const DefaultTypingIdle = 2 * time.Second

type typingKey struct {
	conversationID string
	userID         string
}

// TypingTracker holds the ephemeral set of currently-typing users. Each
// (conversation, user) pair owns one timer that is reset on every typing
// event, so memory is bounded by users typing right now.
type TypingTracker struct {
	mu      sync.Mutex
	timers  map[typingKey]*time.Timer
	idle    time.Duration
	expired func(conversationID, userID string)
}

// NewTypingTracker creates a tracker. expired is invoked (on a timer
// goroutine) when a typing indicator lapses without an explicit stop.
func NewTypingTracker(idle time.Duration, expired func(conversationID, userID string)) *TypingTracker {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &TypingTracker{
		timers:  make(map[typingKey]*time.Timer),
		idle:    idle,
		expired: expired,
	}
}

// Set records a typing state change. typing(true) starts or resets the idle
// timer; typing(false) clears the entry.
func (t *TypingTracker) Set(conversationID, userID string, isTyping bool) {
	key := typingKey{conversationID, userID}
	t.mu.Lock()
	defer t.mu.Unlock()

	if !isTyping {
		t.stopLocked(key)
		return
	}

	if timer, ok := t.timers[key]; ok {
		timer.Reset(t.idle)
		return
	}
	t.timers[key] = time.AfterFunc(t.idle, func() {
		t.mu.Lock()
		delete(t.timers, key)
		t.mu.Unlock()
		metrics.TypingExpirations.Inc()
		t.expired(conversationID, userID)
	})
}

// Clear removes the typing entry, reporting whether the user was typing.
// Called when the typer sends a message, which supersedes the indicator.
func (t *TypingTracker) Clear(conversationID, userID string) bool {
	key := typingKey{conversationID, userID}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.timers[key]; !ok {
		return false
	}
	t.stopLocked(key)
	return true
}

// ClearUser removes every typing entry for the user, returning the affected
// conversation IDs. Called on disconnect.
func (t *TypingTracker) ClearUser(userID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var conversations []string
	for key := range t.timers {
		if key.userID == userID {
			t.stopLocked(key)
			conversations = append(conversations, key.conversationID)
		}
	}
	return conversations
}

// IsTyping reports whether the user currently has a live typing indicator.
func (t *TypingTracker) IsTyping(conversationID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[typingKey{conversationID, userID}]
	return ok
}

func (t *TypingTracker) stopLocked(key typingKey) {
	if timer, ok := t.timers[key]; ok {
		timer.Stop()
		delete(t.timers, key)
	}
}
