package relay

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/channels"
)

// fakeBackend scripts completion and image results.
type fakeBackend struct {
	mu sync.Mutex

	// completeFn decides the result of each completion call.
	completeFn func(req CompletionRequest) (*CompletionResponse, error)
	requests   []CompletionRequest

	drawErr   error
	fetchErr  error
	image     []byte
	drawCalls int
}

func (f *fakeBackend) Complete(_ context.Context, req CompletionRequest) (*CompletionResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	fn := f.completeFn
	f.mu.Unlock()

	if fn == nil {
		return &CompletionResponse{Text: "ok", TokensUsed: 10}, nil
	}
	return fn(req)
}

func (f *fakeBackend) Draw(_ context.Context, req ImageRequest) (*ImageResponse, error) {
	f.mu.Lock()
	f.drawCalls++
	f.mu.Unlock()
	if f.drawErr != nil {
		return nil, f.drawErr
	}
	return &ImageResponse{URL: "https://images.example/1", RevisedPrompt: "revised " + req.Prompt}, nil
}

func (f *fakeBackend) Fetch(context.Context, string) ([]byte, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.image, nil
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// fakeOutbound records everything the relay sends.
type fakeOutbound struct {
	mu       sync.Mutex
	sent     []*channels.OutgoingMessage
	media    []*channels.MediaMessage
	added    int
	removed  int
	noMedia  bool
	mediaErr error
}

func (f *fakeOutbound) Send(_ context.Context, _, _ string, msg *channels.OutgoingMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeOutbound) SendMedia(_ context.Context, _, _ string, media *channels.MediaMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.noMedia {
		return channels.ErrMediaNotSupported
	}
	if f.mediaErr != nil {
		return f.mediaErr
	}
	f.media = append(f.media, media)
	return nil
}

func (f *fakeOutbound) AddReaction(context.Context, string, string, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added++
	return nil
}

func (f *fakeOutbound) RemoveReaction(context.Context, string, string, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed++
	return nil
}

func (f *fakeOutbound) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.Content
	}
	return out
}

func (f *fakeOutbound) last() string {
	t := f.texts()
	if len(t) == 0 {
		return ""
	}
	return t[len(t)-1]
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Status.Schedule = ""
	return cfg
}

func newTestRelay(cfg *Config, backend *fakeBackend) (*Relay, *fakeOutbound) {
	out := &fakeOutbound{}
	return newRelay(cfg, out, backend, slog.New(slog.DiscardHandler)), out
}

func chatMessage(content string) *channels.IncomingMessage {
	return &channels.IncomingMessage{
		ID:       "m1",
		Channel:  "discord",
		ChatID:   "c1",
		ChatName: "bot-chat",
		From:     "u1",
		FromName: "alice",
		Content:  content,
	}
}
