package relay

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/channels"
	"github.com/robfig/cron/v3"
)

// StatusReport summarizes the relay state at one point in time.
type StatusReport struct {
	Conversations int
	Funded        int
	PremiumTokens int64
	Channels      map[string]channels.HealthStatus
}

// StatusReporter periodically logs a StatusReport.
type StatusReporter struct {
	schedule string
	sessions *SessionStore
	health   func() map[string]channels.HealthStatus
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewStatusReporter creates a reporter. An empty schedule disables it.
// health may be nil.
func NewStatusReporter(schedule string, sessions *SessionStore, health func() map[string]channels.HealthStatus, logger *slog.Logger) *StatusReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusReporter{
		schedule: schedule,
		sessions: sessions,
		health:   health,
		logger:   logger.With("component", "status"),
	}
}

// Start registers the report on the schedule and starts the cron runner.
func (s *StatusReporter) Start() error {
	if s.schedule == "" {
		return nil
	}

	s.cron = cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))
	if _, err := s.cron.AddFunc(s.schedule, s.log); err != nil {
		return fmt.Errorf("invalid status schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.logger.Info("status reporter started", "schedule", s.schedule)
	return nil
}

// Stop halts the cron runner, waiting briefly for a running report.
func (s *StatusReporter) Stop() {
	if s.cron == nil {
		return
	}
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		s.logger.Warn("status reporter stop timed out")
	}
}

// Report gathers the current status.
func (s *StatusReporter) Report() StatusReport {
	report := StatusReport{}
	for _, st := range s.sessions.Snapshot() {
		report.Conversations++
		if st.Tokens > 0 {
			report.Funded++
			report.PremiumTokens += st.Tokens
		}
	}
	if s.health != nil {
		report.Channels = s.health()
	}
	return report
}

func (s *StatusReporter) log() {
	r := s.Report()
	attrs := []any{
		"conversations", r.Conversations,
		"funded", r.Funded,
		"premium_tokens", r.PremiumTokens,
	}
	for name, h := range r.Channels {
		attrs = append(attrs, name+"_connected", h.Connected, name+"_errors", h.ErrorCount)
	}
	s.logger.Info("relay status", attrs...)
}
