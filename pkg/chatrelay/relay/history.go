package relay

import (
	"errors"
	"time"
)

// ErrEmptyHistory is returned by PopLast when there is nothing to remove.
var ErrEmptyHistory = errors.New("history is empty")

// Append adds a turn, evicting the oldest one when the limit is exceeded.
func (c *Conversation) Append(turn Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = append(c.history, turn)
	if len(c.history) > c.limit {
		c.history = c.history[len(c.history)-c.limit:]
	}
	c.lastActiveAt = time.Now()
}

// PopLast removes and returns the most recent turn.
func (c *Conversation) PopLast() (Turn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.history) == 0 {
		return Turn{}, ErrEmptyHistory
	}
	last := c.history[len(c.history)-1]
	c.history = c.history[:len(c.history)-1]
	c.lastActiveAt = time.Now()
	return last, nil
}

// DropOldest removes the oldest turn and reports whether one was removed.
func (c *Conversation) DropOldest() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.history) == 0 {
		return false
	}
	c.history = c.history[1:]
	return true
}

// Reset clears the history and the active prompt. The token budget is kept.
func (c *Conversation) Reset() {
	c.mu.Lock()
	c.history = nil
	c.prompt = ""
	c.hasPrompt = false
	c.lastActiveAt = time.Now()
	c.mu.Unlock()
}

// Len returns the number of turns in the history.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.history)
}

// History returns a copy of the turns, oldest first.
func (c *Conversation) History() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Turn, len(c.history))
	copy(out, c.history)
	return out
}

// BuildRequestMessages returns the messages for a completion request: the
// effective system prompt (the active prompt, or defaultPersona when none is
// set) followed by the whole history. The prompt turn is omitted when the
// effective prompt is empty.
func (c *Conversation) BuildRequestMessages(defaultPersona string) []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	prompt := defaultPersona
	if c.hasPrompt {
		prompt = c.prompt
	}

	msgs := make([]Turn, 0, len(c.history)+1)
	if prompt != "" {
		msgs = append(msgs, SystemTurn(prompt))
	}
	return append(msgs, c.history...)
}
