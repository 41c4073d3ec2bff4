package relay

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/channels"
)

// Backend is the remote service used for completions and images.
type Backend interface {
	Completer
	Painter
}

// Relay connects the channel manager to the conversation core.
type Relay struct {
	cfg *Config

	sessions *SessionStore
	budget   *Budget
	orch     *Orchestrator
	queue    *laneQueue
	status   *StatusReporter

	// channelMgr supplies inbound events and delivers replies.
	channelMgr *channels.Manager

	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	loopWg sync.WaitGroup
}

// New creates a relay bound to the channel manager and backend.
func New(cfg *Config, channelMgr *channels.Manager, backend Backend, logger *slog.Logger) *Relay {
	r := newRelay(cfg, channelMgr, backend, logger)
	r.channelMgr = channelMgr
	r.status = NewStatusReporter(cfg.Status.Schedule, r.sessions, channelMgr.HealthAll, r.logger)
	return r
}

func newRelay(cfg *Config, out Outbound, backend Backend, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "relay")

	budget := cfg.NewBudget()
	r := &Relay{
		cfg:      cfg,
		sessions: NewSessionStore(cfg.HistoryLimit),
		budget:   budget,
		orch:     NewOrchestrator(cfg, backend, backend, out, budget, logger),
		logger:   logger,
	}
	r.queue = newLaneQueue(cfg.QueueSize, logger, func(msg *channels.IncomingMessage) {
		r.HandleMessage(r.ctx, msg)
	})
	return r
}

// Sessions exposes the conversation store.
func (r *Relay) Sessions() *SessionStore { return r.sessions }

// Start connects the channels and begins processing messages.
func (r *Relay) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	if err := r.channelMgr.Start(r.ctx); err != nil {
		return fmt.Errorf("starting channels: %w", err)
	}
	if r.status != nil {
		if err := r.status.Start(); err != nil {
			r.logger.Warn("status reporter disabled", "error", err)
		}
	}

	r.loopWg.Add(1)
	go func() {
		defer r.loopWg.Done()
		r.messageLoop(r.channelMgr.Messages())
	}()

	r.logger.Info("relay started",
		"channel_name", r.cfg.ChannelName,
		"standard_model", r.cfg.Models.Standard,
		"premium_model", r.cfg.Models.Premium,
	)
	return nil
}

// Stop cancels in-flight work, waits for conversation lanes to drain and
// disconnects the channels.
func (r *Relay) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.status != nil {
		r.status.Stop()
	}
	r.channelMgr.Stop()
	r.loopWg.Wait()
	r.queue.Wait()
	r.logger.Info("relay stopped")
}

// messageLoop dispatches every inbound event to its conversation lane.
func (r *Relay) messageLoop(inbound <-chan *channels.IncomingMessage) {
	for {
		select {
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			r.queue.Enqueue(msg.ChatID, msg)
		case <-r.ctx.Done():
			return
		}
	}
}

// Accepts reports whether msg is addressed to the relay.
func (r *Relay) Accepts(msg *channels.IncomingMessage) bool {
	if msg.ChatName != r.cfg.ChannelName {
		return false
	}
	return strings.TrimSpace(msg.Content) != "" || len(msg.ImageURLs()) > 0
}

// HandleMessage processes one inbound event synchronously. Events outside
// the configured channel, or without text or images, are ignored.
func (r *Relay) HandleMessage(ctx context.Context, msg *channels.IncomingMessage) (res Result) {
	if !r.Accepts(msg) {
		return Result{State: StateIdle}
	}

	logger := r.logger.With(
		"trace_id", uuid.NewString(),
		"channel", msg.Channel,
		"chat_id", msg.ChatID,
		"msg_id", msg.ID,
		"from", msg.FromName,
	)

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic while handling message", "panic", rec, "stack", string(debug.Stack()))
			res = Result{State: StateFailed, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	ctx = withLogger(ctx, logger)
	conv := r.sessions.GetOrCreate(msg.ChatID)

	res = r.dispatch(ctx, conv, msg)
	logger.Debug("message handled", "state", res.State.String(), "retries", res.Retries)
	return res
}
