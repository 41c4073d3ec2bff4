package relay

import (
	"log/slog"
	"testing"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/channels"
)

func TestStatusReport(t *testing.T) {
	t.Parallel()

	store := NewSessionStore(10)
	budget := &Budget{PricePer1K: DefaultPricePer1K}
	budget.Fund(store.GetOrCreate("a"), 0.045)
	store.GetOrCreate("b")

	health := func() map[string]channels.HealthStatus {
		return map[string]channels.HealthStatus{"discord": {Connected: true}}
	}
	r := NewStatusReporter("", store, health, slog.New(slog.DiscardHandler))

	got := r.Report()
	if got.Conversations != 2 || got.Funded != 1 || got.PremiumTokens != 1000 {
		t.Errorf("Report() = %+v", got)
	}
	if !got.Channels["discord"].Connected {
		t.Error("channel health missing from report")
	}
}

func TestStatusReporterSchedule(t *testing.T) {
	t.Parallel()

	store := NewSessionStore(10)
	logger := slog.New(slog.DiscardHandler)

	disabled := NewStatusReporter("", store, nil, logger)
	if err := disabled.Start(); err != nil {
		t.Errorf("empty schedule should be a no-op, got %v", err)
	}
	disabled.Stop()

	bad := NewStatusReporter("not a schedule", store, nil, logger)
	if err := bad.Start(); err == nil {
		t.Error("expected error for an invalid schedule")
	}

	good := NewStatusReporter("@every 1h", store, nil, logger)
	if err := good.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	good.Stop()
}
