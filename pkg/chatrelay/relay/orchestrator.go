// orchestrator.go drives one completion or image request from the
// conversation state to the outbound reply, including the shrink-and-retry
// loop for oversized requests.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/channels"
)

// Outbound delivers replies to a channel. *channels.Manager implements it.
type Outbound interface {
	Send(ctx context.Context, channel, chatID string, msg *channels.OutgoingMessage) error
	SendMedia(ctx context.Context, channel, chatID string, media *channels.MediaMessage) error
	AddReaction(ctx context.Context, channel, chatID, messageID, emoji string) error
	RemoveReaction(ctx context.Context, channel, chatID, messageID, emoji string) error
}

// State is the lifecycle position of one event.
type State int

const (
	StateIdle State = iota
	StateAssembling
	StatePending
	StateRetrying
	StateReplied
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAssembling:
		return "assembling"
	case StatePending:
		return "pending"
	case StateRetrying:
		return "retrying"
	case StateReplied:
		return "replied"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Outcome is what the orchestrator does with a remote call result.
type Outcome int

const (
	OutcomeReplied Outcome = iota
	OutcomeShrink
	OutcomeFatal
)

// outcomeOf maps a completion error to the next step. Only oversized or
// malformed requests are worth shrinking; everything else ends the event.
func outcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeReplied
	case KindOf(err) == ErrorInvalidRequest:
		return OutcomeShrink
	default:
		return OutcomeFatal
	}
}

// Result describes how an event ended.
type Result struct {
	State   State
	Retries int
	Reply   string
	Err     error
}

// Orchestrator turns conversation state into remote calls and replies.
type Orchestrator struct {
	completer Completer
	painter   Painter
	out       Outbound
	budget    *Budget

	persona         string
	messageLimit    int
	maxOutputTokens int
	reaction        string
	timeout         time.Duration
	image           ImageConfig

	logger *slog.Logger
}

// NewOrchestrator creates an orchestrator from the configuration.
func NewOrchestrator(cfg *Config, completer Completer, painter Painter, out Outbound, budget *Budget, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		completer:       completer,
		painter:         painter,
		out:             out,
		budget:          budget,
		persona:         cfg.PersonaPrompt(),
		messageLimit:    cfg.MessageLimit,
		maxOutputTokens: cfg.Models.MaxOutputTokens,
		reaction:        cfg.ProgressReaction,
		timeout:         cfg.RequestTimeout,
		image:           cfg.Image,
		logger:          logger.With("component", "orchestrator"),
	}
}

// Complete appends turn (when non-nil) and requests a completion for the
// conversation. Oversized requests shrink the history from the oldest end
// and are resubmitted until they succeed or the history is empty.
func (o *Orchestrator) Complete(ctx context.Context, conv *Conversation, msg *channels.IncomingMessage, turn *Turn) Result {
	logger := loggerFrom(ctx, o.logger)

	if turn != nil {
		conv.Append(*turn)
	}

	o.addProgress(ctx, msg)
	defer o.removeProgress(ctx, msg)

	res := Result{State: StatePending}
	for {
		tier := o.budget.EngineFor(conv)
		req := CompletionRequest{
			Engine:          tier,
			Model:           o.budget.Model(tier),
			Messages:        conv.BuildRequestMessages(o.persona),
			MaxOutputTokens: o.maxOutputTokens,
		}

		resp, err := o.call(ctx, req)

		switch outcomeOf(err) {
		case OutcomeReplied:
			conv.Append(SystemTurn(resp.Text))
			exhausted := false
			if tier == TierPremium && resp.Metered() {
				exhausted = o.budget.Charge(conv, resp.TokensUsed)
			}

			logger.Info("completion replied",
				"model", req.Model,
				"tokens", resp.TokensUsed,
				"retries", res.Retries,
			)
			o.flush(ctx, msg, resp.Text, "")
			if exhausted {
				o.flush(ctx, msg, o.budget.ExhaustedNotice(), "")
			}

			res.State = StateReplied
			res.Reply = resp.Text
			return res

		case OutcomeShrink:
			if !conv.DropOldest() {
				logger.Warn("request still too large with empty history", "error", err)
				return o.fail(ctx, msg, res, err)
			}
			res.Retries++
			res.State = StateRetrying
			logger.Info("request rejected, dropped oldest turn", "remaining", conv.Len(), "retry", res.Retries)

		case OutcomeFatal:
			return o.fail(ctx, msg, res, err)
		}
	}
}

// Draw generates an image for prompt and sends it as an attachment captioned
// with the revised prompt. History records only a summary of the prompt.
func (o *Orchestrator) Draw(ctx context.Context, conv *Conversation, msg *channels.IncomingMessage, prompt string) Result {
	logger := loggerFrom(ctx, o.logger)

	o.addProgress(ctx, msg)
	defer o.removeProgress(ctx, msg)

	res := Result{State: StatePending}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	img, err := o.painter.Draw(callCtx, ImageRequest{
		Prompt:  prompt,
		Model:   o.image.Model,
		Size:    o.image.Size,
		Quality: o.image.Quality,
		Count:   o.image.Count,
	})
	if err != nil {
		return o.fail(ctx, msg, res, err)
	}

	conv.Append(SystemTurn(fmt.Sprintf("[Generated an image for the prompt: %s]", img.RevisedPrompt)))

	data, err := o.painter.Fetch(callCtx, img.URL)
	if err != nil {
		return o.fail(ctx, msg, res, err)
	}

	mt := mimetype.Detect(data)
	media := &channels.MediaMessage{
		Data:     data,
		MimeType: mt.String(),
		Filename: "image" + mt.Extension(),
		Caption:  img.RevisedPrompt,
		ReplyTo:  msg.ID,
	}
	if err := o.out.SendMedia(ctx, msg.Channel, msg.ChatID, media); err != nil {
		if !errors.Is(err, channels.ErrMediaNotSupported) {
			logger.Warn("failed to send image, replying with the link", "error", err)
		}
		o.flush(ctx, msg, img.RevisedPrompt+"\n"+img.URL, msg.ID)
	} else {
		logger.Info("image sent", "bytes", len(data), "mime", mt.String())
	}

	res.State = StateReplied
	res.Reply = img.RevisedPrompt
	return res
}

// Reply sends text as a reply to msg.
func (o *Orchestrator) Reply(ctx context.Context, msg *channels.IncomingMessage, text string) {
	o.flush(ctx, msg, text, msg.ID)
}

// call runs one completion with the per-request timeout.
func (o *Orchestrator) call(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := o.completer.Complete(callCtx, req)
	if err != nil {
		return nil, classifyError(err)
	}
	return resp, nil
}

// fail reports err to the user and marks the event failed. History is left
// as it is.
func (o *Orchestrator) fail(ctx context.Context, msg *channels.IncomingMessage, res Result, err error) Result {
	ce := classifyError(err)
	loggerFrom(ctx, o.logger).Warn("request failed", "kind", ce.Kind.String(), "error", err)

	o.flush(ctx, msg, fmt.Sprintf("Oops, there was an OpenAI error: `%s`", ce.Error()), msg.ID)
	res.State = StateFailed
	res.Err = ce
	return res
}

// flush sends text in chunks of at most messageLimit characters.
func (o *Orchestrator) flush(ctx context.Context, msg *channels.IncomingMessage, text, replyTo string) {
	for _, chunk := range SplitMessage(text, o.messageLimit) {
		out := &channels.OutgoingMessage{Content: chunk, ReplyTo: replyTo}
		if err := o.out.Send(ctx, msg.Channel, msg.ChatID, out); err != nil {
			loggerFrom(ctx, o.logger).Error("failed to send reply", "error", err)
			return
		}
	}
}

func (o *Orchestrator) addProgress(ctx context.Context, msg *channels.IncomingMessage) {
	if o.reaction == "" || msg.ID == "" {
		return
	}
	if err := o.out.AddReaction(ctx, msg.Channel, msg.ChatID, msg.ID, o.reaction); err != nil {
		loggerFrom(ctx, o.logger).Debug("failed to add progress reaction", "error", err)
	}
}

func (o *Orchestrator) removeProgress(ctx context.Context, msg *channels.IncomingMessage) {
	if o.reaction == "" || msg.ID == "" {
		return
	}
	// The event context may already be cancelled during shutdown.
	ctx = context.WithoutCancel(ctx)
	if err := o.out.RemoveReaction(ctx, msg.Channel, msg.ChatID, msg.ID, o.reaction); err != nil {
		loggerFrom(ctx, o.logger).Debug("failed to remove progress reaction", "error", err)
	}
}

type loggerKey struct{}

// withLogger attaches an event-scoped logger to ctx.
func withLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// loggerFrom returns the event-scoped logger, or fallback.
func loggerFrom(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return fallback
}
