package relay

import (
	"context"
	"strings"
	"testing"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/channels"
)

func TestParseCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text     string
		wantKind CommandKind
		wantArg  string
	}{
		{"!help", CmdHelp, ""},
		{"  !h  ", CmdHelp, ""},
		{"!restart", CmdRestart, ""},
		{"!hist", CmdHistory, ""},
		{"!ping", CmdPing, ""},
		{"!usage", CmdUsage, ""},
		{"!paid $5", CmdPaid, "$5"},
		{"!reroll", CmdReroll, ""},
		{"!reprompt You are a pirate", CmdReprompt, "You are a pirate"},
		{"!gaslight\tYou are a cat", CmdReprompt, "You are a cat"},
		{"!draw a red fox", CmdDraw, "a red fox"},
		{"!bio I like chess", CmdBio, "I like chess"},
		{"!HELP", CmdPlain, "!HELP"},
		{"!helpme", CmdPlain, "!helpme"},
		{"what does !reroll do?", CmdPlain, "what does !reroll do?"},
		{"", CmdPlain, ""},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			got := ParseCommand(tt.text)
			if got.Kind != tt.wantKind || got.Arg != tt.wantArg {
				t.Errorf("ParseCommand(%q) = %+v, want kind %d arg %q", tt.text, got, tt.wantKind, tt.wantArg)
			}
		})
	}
}

func TestParsePaidAmount(t *testing.T) {
	t.Parallel()

	valid := map[string]float64{"5": 5, "$5": 5, "0": 0, "$120": 120}
	for in, want := range valid {
		got, err := ParsePaidAmount(in)
		if err != nil || got != want {
			t.Errorf("ParsePaidAmount(%q) = %v, %v; want %v", in, got, err, want)
		}
	}

	for _, in := range []string{"", "abc", "-5", "5.50", "$", "$$5", "5$", "99999999999999999999", "1000001", "$1000000000000000"} {
		if _, err := ParsePaidAmount(in); err == nil {
			t.Errorf("ParsePaidAmount(%q) should fail", in)
		}
	}
}

func TestPaidRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"!paid abc", "!paid", "!paid 1000000000000000", "!paid $1000001"} {
		t.Run(text, func(t *testing.T) {
			t.Parallel()
			r, out := newTestRelay(testConfig(), &fakeBackend{})

			r.HandleMessage(context.Background(), chatMessage(text))

			if tokens := r.sessions.GetOrCreate("c1").Tokens(); tokens != 0 {
				t.Errorf("Tokens() = %d, want 0", tokens)
			}
			if !strings.HasPrefix(out.last(), "Usage: `!paid") {
				t.Errorf("reply = %q, want usage", out.last())
			}
		})
	}
}

func TestRestartKeepsBudget(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	r, out := newTestRelay(testConfig(), backend)
	ctx := context.Background()

	r.HandleMessage(ctx, chatMessage("!paid $1"))
	r.HandleMessage(ctx, chatMessage("!reprompt be terse"))
	r.HandleMessage(ctx, chatMessage("hello"))

	conv := r.sessions.GetOrCreate("c1")
	funded := conv.Tokens()
	if funded == 0 {
		t.Fatal("conversation should be funded")
	}

	r.HandleMessage(ctx, chatMessage("!restart"))
	if out.last() != "Chat history cleared" {
		t.Errorf("restart reply = %q", out.last())
	}
	if conv.Len() != 0 {
		t.Error("history should be empty after restart")
	}
	if _, ok := conv.Prompt(); ok {
		t.Error("prompt should be cleared after restart")
	}

	r.HandleMessage(ctx, chatMessage("!usage"))
	if !strings.Contains(out.last(), r.budget.Describe(conv)) || conv.Tokens() != funded {
		t.Errorf("usage after restart = %q, tokens %d want %d", out.last(), conv.Tokens(), funded)
	}
}

func TestRerollEmptyHistory(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	r, out := newTestRelay(testConfig(), backend)

	res := r.HandleMessage(context.Background(), chatMessage("!reroll"))

	if out.last() != "Nothing to reroll yet." {
		t.Errorf("reply = %q", out.last())
	}
	if backend.calls() != 0 {
		t.Error("reroll on empty history must not call the remote service")
	}
	if res.State != StateReplied {
		t.Errorf("State = %s", res.State)
	}
}

func TestRerollReplacesLastReply(t *testing.T) {
	t.Parallel()

	n := 0
	backend := &fakeBackend{completeFn: func(CompletionRequest) (*CompletionResponse, error) {
		n++
		if n == 1 {
			return &CompletionResponse{Text: "first"}, nil
		}
		return &CompletionResponse{Text: "second"}, nil
	}}
	r, _ := newTestRelay(testConfig(), backend)
	ctx := context.Background()

	r.HandleMessage(ctx, chatMessage("tell me a joke"))
	r.HandleMessage(ctx, chatMessage("!reroll"))

	hist := r.sessions.GetOrCreate("c1").History()
	if len(hist) != 2 {
		t.Fatalf("history has %d turns, want 2", len(hist))
	}
	if hist[0].Content.Text != "@alice: tell me a joke" || hist[1].Content.Text != "second" {
		t.Errorf("history = %+v", hist)
	}
	// The rerolled request must not carry the discarded reply.
	last := backend.requests[1].Messages
	if got := last[len(last)-1].Content.Text; got != "@alice: tell me a joke" {
		t.Errorf("rerolled request ends with %q", got)
	}
}

func TestReprompt(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	r, _ := newTestRelay(testConfig(), backend)

	r.HandleMessage(context.Background(), chatMessage("!gaslight You are a pirate"))

	conv := r.sessions.GetOrCreate("c1")
	if p, ok := conv.Prompt(); !ok || p != "You are a pirate" {
		t.Errorf("Prompt() = %q, %v", p, ok)
	}
	req := backend.requests[0]
	if req.Messages[0].Content.Text != "You are a pirate" {
		t.Errorf("request prompt = %q", req.Messages[0].Content.Text)
	}
	if got := req.Messages[1]; got.Role != RoleSystem || got.Content.Text != "New prompt: You are a pirate" {
		t.Errorf("directive turn = %+v", got)
	}
}

func TestBio(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	r, out := newTestRelay(testConfig(), backend)

	r.HandleMessage(context.Background(), chatMessage("!bio I live in Manchester"))

	if out.last() != "Got it. I'll remember that about @alice." {
		t.Errorf("reply = %q", out.last())
	}
	hist := r.sessions.GetOrCreate("c1").History()
	if len(hist) != 1 || !strings.Contains(hist[0].Content.Text, "'@alice': I live in Manchester]") {
		t.Errorf("history = %+v", hist)
	}
	if backend.calls() != 0 {
		t.Error("bio must not call the remote service")
	}
}

func TestMissingArgumentUsage(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"!reprompt", "!gaslight", "!draw", "!bio"} {
		t.Run(text, func(t *testing.T) {
			t.Parallel()
			backend := &fakeBackend{}
			r, out := newTestRelay(testConfig(), backend)

			r.HandleMessage(context.Background(), chatMessage(text))

			if !strings.HasPrefix(out.last(), "Usage:") {
				t.Errorf("reply = %q", out.last())
			}
			if r.sessions.GetOrCreate("c1").Len() != 0 || backend.calls() != 0 || backend.drawCalls != 0 {
				t.Error("usage errors must not change state or call the remote service")
			}
		})
	}
}

func TestSimpleReplies(t *testing.T) {
	t.Parallel()

	r, out := newTestRelay(testConfig(), &fakeBackend{})
	ctx := context.Background()

	r.HandleMessage(ctx, chatMessage("!ping"))
	if out.last() != "Pong!" {
		t.Errorf("ping reply = %q", out.last())
	}

	r.HandleMessage(ctx, chatMessage("!help"))
	if !strings.Contains(out.last(), "#bot-chat") || !strings.Contains(out.last(), "!reroll") {
		t.Errorf("help reply = %q", out.last())
	}

	before := len(out.texts())
	if res := r.HandleMessage(ctx, chatMessage("!hist")); res.State != StateIdle {
		t.Errorf("!hist State = %s", res.State)
	}
	if len(out.texts()) != before {
		t.Error("!hist must not reply")
	}
}

func TestPlainMessageWithImages(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	r, _ := newTestRelay(testConfig(), backend)
	msg := chatMessage("what is this?")
	msg.Attachments = []channels.Attachment{
		{URL: "https://cdn.example/a.png", MimeType: "image/png", IsImage: true},
		{URL: "https://cdn.example/notes.txt", MimeType: "text/plain"},
	}

	r.HandleMessage(context.Background(), msg)

	turn := r.sessions.GetOrCreate("c1").History()[0]
	if !turn.Content.IsMultimodal() || len(turn.Content.Parts) != 2 {
		t.Fatalf("user turn = %+v", turn)
	}
	if turn.Content.Parts[0].Text != "@alice: what is this?" || turn.Content.Parts[1].URL != "https://cdn.example/a.png" {
		t.Errorf("parts = %+v", turn.Content.Parts)
	}
}

func TestMessageFilter(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	r, out := newTestRelay(testConfig(), backend)

	other := chatMessage("hello")
	other.ChatName = "general"
	empty := chatMessage("   ")
	r.HandleMessage(context.Background(), other)
	r.HandleMessage(context.Background(), empty)

	if len(out.texts()) != 0 || backend.calls() != 0 || r.sessions.Count() != 0 {
		t.Error("filtered messages must be ignored entirely")
	}
}
