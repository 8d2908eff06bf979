package scanner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"stock-analyzer/internal/notification"
)

// DefaultSchedule runs after the US close on weekdays.
const DefaultSchedule = "30 16 * * 1-5"

// Observer receives scan and alert outcomes. The metrics package provides
// the Prometheus implementation.
type Observer interface {
	ScanCompleted(d time.Duration, actions []string)
	AlertSent(err error)
}

// Scheduler runs periodic scans over a watch list and alerts on every
// opportunity found.
type Scheduler struct {
	scanner  *Scanner
	symbols  []string
	notifier notification.Notifier
	cron     *cron.Cron
	log      *slog.Logger
	timeout  time.Duration

	mu          sync.Mutex
	obs         Observer
	subscribers []func(Report)
}

// NewScheduler creates a scheduler. A nil notifier disables alerts.
func NewScheduler(s *Scanner, symbols []string, n notification.Notifier, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		scanner:  s,
		symbols:  symbols,
		notifier: n,
		cron:     cron.New(),
		log:      logger.With("component", "scheduler"),
		timeout:  30 * time.Minute,
	}
}

// SetObserver installs o for subsequent scans.
func (sc *Scheduler) SetObserver(o Observer) {
	sc.mu.Lock()
	sc.obs = o
	sc.mu.Unlock()
}

// Subscribe registers fn to receive every completed report.
func (sc *Scheduler) Subscribe(fn func(Report)) {
	sc.mu.Lock()
	sc.subscribers = append(sc.subscribers, fn)
	sc.mu.Unlock()
}

// Start registers the scan under a standard five-field cron spec and
// starts the cron runner. An empty spec uses DefaultSchedule.
func (sc *Scheduler) Start(spec string) error {
	if spec == "" {
		spec = DefaultSchedule
	}
	_, err := sc.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sc.timeout)
		defer cancel()
		sc.RunOnce(ctx)
	})
	if err != nil {
		return err
	}

	sc.cron.Start()
	sc.log.Info("scan scheduler started", "schedule", spec, "symbols", len(sc.symbols))
	return nil
}

// Stop halts the cron runner and waits for a running scan to finish.
func (sc *Scheduler) Stop() {
	<-sc.cron.Stop().Done()
	sc.log.Info("scan scheduler stopped")
}

// RunOnce performs one scan, sends alerts and notifies subscribers.
func (sc *Scheduler) RunOnce(ctx context.Context) Report {
	sc.log.Info("scan started", "symbols", len(sc.symbols))
	r := sc.scanner.Scan(ctx, sc.symbols)

	sc.mu.Lock()
	obs := sc.obs
	subs := append([]func(Report){}, sc.subscribers...)
	sc.mu.Unlock()

	if obs != nil {
		obs.ScanCompleted(r.Duration, r.Actions())
	}
	sc.alert(ctx, r, obs)
	for _, fn := range subs {
		fn(r)
	}

	sc.log.Info("scan completed",
		"analyzed", r.Analyzed,
		"buys", len(r.Buys),
		"sells", len(r.Sells),
		"duration", r.Duration,
	)
	return r
}

func (sc *Scheduler) alert(ctx context.Context, r Report, obs Observer) {
	if sc.notifier == nil {
		return
	}
	bySymbol := make(map[string]Analysis, len(r.Analyses))
	for _, a := range r.Analyses {
		bySymbol[a.Symbol] = a
	}

	opps := append(append([]Opportunity{}, r.Buys...), r.Sells...)
	for _, o := range opps {
		a := bySymbol[o.Symbol]
		err := sc.notifier.Send(ctx, notification.SignalAlert(o.Symbol, a.Decision, r.Timestamp))
		if err != nil {
			sc.log.Error("alert failed", "symbol", o.Symbol, "err", err)
		}
		if obs != nil {
			obs.AlertSent(err)
		}
	}
}
