// session.go keeps one isolated conversation state per chat. Each chat owns
// its history, its active prompt and its premium token budget.
package relay

import (
	"sort"
	"sync"
	"time"
)

// DefaultHistoryLimit is the default maximum number of turns kept per conversation.
const DefaultHistoryLimit = 30

// Role identifies who a turn is attributed to on the wire.
type Role string

const (
	RoleUser   Role = "user"
	RoleSystem Role = "system"
)

// Turn is one entry in a conversation history.
type Turn struct {
	Role    Role
	Content Content
}

// UserTurn builds a user turn.
func UserTurn(c Content) Turn { return Turn{Role: RoleUser, Content: c} }

// SystemTurn builds a system turn from text.
func SystemTurn(text string) Turn { return Turn{Role: RoleSystem, Content: TextContent(text)} }

// Conversation is the state kept for one chat.
type Conversation struct {
	// ID is the conversation identifier (the platform chat id).
	ID string

	history []Turn
	limit   int

	// prompt overrides the default persona when hasPrompt is set.
	prompt    string
	hasPrompt bool

	tokens int64

	CreatedAt    time.Time
	lastActiveAt time.Time

	mu sync.RWMutex
}

func newConversation(id string, limit int) *Conversation {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	now := time.Now()
	return &Conversation{
		ID:           id,
		limit:        limit,
		CreatedAt:    now,
		lastActiveAt: now,
	}
}

// Tokens returns the remaining premium token allowance.
func (c *Conversation) Tokens() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

// Prompt returns the active prompt and whether one is set.
func (c *Conversation) Prompt() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prompt, c.hasPrompt
}

// SetPrompt replaces the active prompt.
func (c *Conversation) SetPrompt(prompt string) {
	c.mu.Lock()
	c.prompt = prompt
	c.hasPrompt = true
	c.mu.Unlock()
}

// LastActive returns when the conversation was last mutated.
func (c *Conversation) LastActive() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActiveAt
}

// SessionStore holds every conversation seen since startup, keyed by
// conversation id. Conversations are created lazily and never removed.
type SessionStore struct {
	conversations map[string]*Conversation
	historyLimit  int
	mu            sync.RWMutex
}

// NewSessionStore creates an empty store. historyLimit <= 0 uses DefaultHistoryLimit.
func NewSessionStore(historyLimit int) *SessionStore {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &SessionStore{
		conversations: make(map[string]*Conversation),
		historyLimit:  historyLimit,
	}
}

// GetOrCreate returns the conversation for id, creating an empty one on first access.
func (ss *SessionStore) GetOrCreate(id string) *Conversation {
	ss.mu.RLock()
	if conv, ok := ss.conversations[id]; ok {
		ss.mu.RUnlock()
		return conv
	}
	ss.mu.RUnlock()

	ss.mu.Lock()
	defer ss.mu.Unlock()

	// Double-check after acquiring the write lock.
	if conv, ok := ss.conversations[id]; ok {
		return conv
	}
	conv := newConversation(id, ss.historyLimit)
	ss.conversations[id] = conv
	return conv
}

// Count returns the number of known conversations.
func (ss *SessionStore) Count() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.conversations)
}

// ConversationStats is a read-only view of one conversation.
type ConversationStats struct {
	ID         string
	Turns      int
	Tokens     int64
	HasPrompt  bool
	LastActive time.Time
}

// Snapshot returns stats for every conversation, sorted by id.
func (ss *SessionStore) Snapshot() []ConversationStats {
	ss.mu.RLock()
	convs := make([]*Conversation, 0, len(ss.conversations))
	for _, c := range ss.conversations {
		convs = append(convs, c)
	}
	ss.mu.RUnlock()

	stats := make([]ConversationStats, 0, len(convs))
	for _, c := range convs {
		c.mu.RLock()
		stats = append(stats, ConversationStats{
			ID:         c.ID,
			Turns:      len(c.history),
			Tokens:     c.tokens,
			HasPrompt:  c.hasPrompt,
			LastActive: c.lastActiveAt,
		})
		c.mu.RUnlock()
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].ID < stats[j].ID })
	return stats
}
