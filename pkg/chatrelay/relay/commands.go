// commands.go classifies inbound text into chat commands and applies them to
// the conversation before, or instead of, a completion request.
package relay

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/channels"
)

// CommandKind identifies a chat command.
type CommandKind int

const (
	CmdPlain CommandKind = iota
	CmdHelp
	CmdRestart
	CmdHistory
	CmdPing
	CmdUsage
	CmdPaid
	CmdReroll
	CmdReprompt
	CmdDraw
	CmdBio
)

// commandTable maps the first token of a message to its command.
var commandTable = map[string]CommandKind{
	"!help":     CmdHelp,
	"!h":        CmdHelp,
	"!restart":  CmdRestart,
	"!hist":     CmdHistory,
	"!ping":     CmdPing,
	"!usage":    CmdUsage,
	"!paid":     CmdPaid,
	"!reroll":   CmdReroll,
	"!reprompt": CmdReprompt,
	"!gaslight": CmdReprompt,
	"!draw":     CmdDraw,
	"!bio":      CmdBio,
}

// usageText is the corrective reply for commands missing their argument.
var usageText = map[CommandKind]string{
	CmdPaid:     "Usage: `!paid <dollars>`, for example `!paid 5` or `!paid $5`.",
	CmdReprompt: "Usage: `!reprompt <new prompt>`",
	CmdDraw:     "Usage: `!draw <description of the image>`",
	CmdBio:      "Usage: `!bio <something about you>`",
}

// MaxPaidAmount is the largest dollar amount a single !paid accepts.
const MaxPaidAmount = 1_000_000

// paidPattern accepts a non-negative whole dollar amount, optionally $-prefixed.
var paidPattern = regexp.MustCompile(`^\$?(\d+)$`)

// Command is a parsed message.
type Command struct {
	Kind CommandKind

	// Name is the matched command token, empty for plain messages.
	Name string

	// Arg is the text after the command token, or the whole text for plain messages.
	Arg string
}

// ParseCommand classifies trimmed text. The first whitespace-delimited token
// must match a command exactly (case-sensitive); anything else is plain.
func ParseCommand(text string) Command {
	trimmed := strings.TrimSpace(text)

	name, rest := trimmed, ""
	if i := strings.IndexFunc(trimmed, unicode.IsSpace); i >= 0 {
		name, rest = trimmed[:i], trimmed[i:]
	}

	kind, ok := commandTable[name]
	if !ok {
		return Command{Kind: CmdPlain, Arg: trimmed}
	}
	return Command{Kind: kind, Name: name, Arg: strings.TrimSpace(rest)}
}

// ParsePaidAmount validates a !paid argument and returns the dollar amount.
func ParsePaidAmount(arg string) (float64, error) {
	m := paidPattern.FindStringSubmatch(strings.TrimSpace(arg))
	if m == nil {
		return 0, fmt.Errorf("invalid amount %q", arg)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", arg, err)
	}
	if n > MaxPaidAmount {
		return 0, fmt.Errorf("amount %d exceeds %d", n, MaxPaidAmount)
	}
	return float64(n), nil
}

// HelpText lists the available commands.
func HelpText(channelName string) string {
	return fmt.Sprintf(`How to use this bot

Post in the channel #%s. The bot will respond to each message.

There are some special commands as well:
!reprompt (!gaslight) - gives the bot a new prompt to follow. Example: `+"`!reprompt You are a 1930s radio announcer who always speaks in hyperbole and loves alliteration.`"+`
!bio - gives the bot some information about you. Example: `+"`!bio I am a forensic accountant who lives in Manchester, UK.`"+`
!reroll - has the bot come up with a new answer to the last prompt.
!draw - generates an image. Example: `+"`!draw a lighthouse in a storm, oil painting`"+`
!usage - shows which model is in use and the premium tokens left.
!paid - adds premium tokens for this channel. Example: `+"`!paid $5`"+`
!restart - resets the chat history for this channel.
!ping - checks that the bot is alive.
!help (!h) - shows this message`, channelName)
}

// bioTurn builds the system turn recording what a user said about themselves.
func bioTurn(displayName, text string) Turn {
	return SystemTurn(fmt.Sprintf("[You can tell users apart by the '@' in front of their usernames, "+
		"which appear at the start of each of their messages. "+
		"Here is what you know about the user known as '@%s': %s]", displayName, text))
}

// dispatch executes exactly one command branch for msg.
func (r *Relay) dispatch(ctx context.Context, conv *Conversation, msg *channels.IncomingMessage) Result {
	cmd := ParseCommand(msg.Content)
	logger := loggerFrom(ctx, r.logger)

	if usage, needsArg := usageText[cmd.Kind]; needsArg && cmd.Arg == "" {
		return r.reply(ctx, msg, usage)
	}

	switch cmd.Kind {
	case CmdHelp:
		return r.reply(ctx, msg, HelpText(r.cfg.ChannelName))

	case CmdRestart:
		conv.Reset()
		logger.Info("conversation restarted")
		return r.reply(ctx, msg, "Chat history cleared")

	case CmdHistory:
		prompt, custom := conv.Prompt()
		turns := conv.History()
		logger.Info("conversation history", "turns", len(turns), "custom_prompt", custom, "prompt", prompt)
		for i, t := range turns {
			logger.Info("history turn", "index", i, "role", string(t.Role), "content", t.Content.String())
		}
		return Result{State: StateIdle}

	case CmdPing:
		return r.reply(ctx, msg, "Pong!")

	case CmdUsage:
		return r.reply(ctx, msg, r.budget.Describe(conv))

	case CmdPaid:
		dollars, err := ParsePaidAmount(cmd.Arg)
		if err != nil {
			return r.reply(ctx, msg, usageText[CmdPaid])
		}
		desc := r.budget.Fund(conv, dollars)
		logger.Info("conversation funded", "dollars", dollars, "tokens", conv.Tokens())
		return r.reply(ctx, msg, desc)

	case CmdReroll:
		if _, err := conv.PopLast(); errors.Is(err, ErrEmptyHistory) {
			return r.reply(ctx, msg, "Nothing to reroll yet.")
		}
		return r.orch.Complete(ctx, conv, msg, nil)

	case CmdReprompt:
		conv.SetPrompt(cmd.Arg)
		turn := SystemTurn("New prompt: " + cmd.Arg)
		return r.orch.Complete(ctx, conv, msg, &turn)

	case CmdDraw:
		return r.orch.Draw(ctx, conv, msg, cmd.Arg)

	case CmdBio:
		conv.Append(bioTurn(msg.FromName, cmd.Arg))
		return r.reply(ctx, msg, fmt.Sprintf("Got it. I'll remember that about @%s.", msg.FromName))

	default:
		text := fmt.Sprintf("@%s: %s", msg.FromName, cmd.Arg)
		turn := UserTurn(Assemble(text, msg.ImageURLs()))
		return r.orch.Complete(ctx, conv, msg, &turn)
	}
}

func (r *Relay) reply(ctx context.Context, msg *channels.IncomingMessage, text string) Result {
	r.orch.Reply(ctx, msg, text)
	return Result{State: StateReplied, Reply: text}
}
