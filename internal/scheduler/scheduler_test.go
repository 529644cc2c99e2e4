package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"hyperliquid-trading-bot/config"
	"hyperliquid-trading-bot/internal/events"
	"hyperliquid-trading-bot/internal/strategy"
)

// stubStrategy returns a fixed signal and counts how often it runs.
type stubStrategy struct {
	name  string
	sig   *strategy.Signal
	err   error
	panic bool
	runs  int64
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Generate(ctx context.Context, coin string) (*strategy.Signal, error) {
	atomic.AddInt64(&s.runs, 1)
	if s.panic {
		panic("indicator blew up")
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.sig == nil {
		return nil, nil
	}
	out := *s.sig
	out.Coin = coin
	out.Timestamp = time.Now()
	return &out, nil
}

func (s *stubStrategy) runCount() int64 { return atomic.LoadInt64(&s.runs) }

func buySignal(source string) *strategy.Signal {
	return &strategy.Signal{Action: strategy.ActionBuy, Strength: 0.9, Source: source}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Scheduler.CheckIntervals = map[string]int{
		"fast": 300,
		"slow": 3600,
	}
	return cfg
}

func newTestScheduler(cfg *config.Config) *Scheduler {
	return New(cfg, events.NewBus(), zerolog.Nop())
}

func drain(s *Scheduler) []*strategy.Signal {
	var out []*strategy.Signal
	for {
		select {
		case sig := <-s.Signals():
			out = append(out, sig)
		default:
			return out
		}
	}
}

func TestRunDueHonorsPerStrategyIntervals(t *testing.T) {
	s := newTestScheduler(testConfig())
	fast := &stubStrategy{name: "fast", sig: buySignal("fast")}
	slow := &stubStrategy{name: "slow", sig: buySignal("slow")}
	s.Register(fast, []string{"BTC"})
	s.Register(slow, []string{"BTC"})

	start := time.Now()
	for _, offset := range []time.Duration{0, 300 * time.Second, 600 * time.Second} {
		s.runDue(start.Add(offset))
	}
	s.wg.Wait()

	if got := fast.runCount(); got != 3 {
		t.Errorf("fast strategy ran %d times over [0s, 300s, 600s], want 3", got)
	}
	// slow's first tick stamps lastRun; 600s later it is still inside its
	// 3600s interval.
	if got := slow.runCount(); got != 1 {
		t.Errorf("slow strategy ran %d times over [0s, 300s, 600s], want 1", got)
	}
}

func TestRunDueDoesNotRedispatchWithinInterval(t *testing.T) {
	s := newTestScheduler(testConfig())
	fast := &stubStrategy{name: "fast", sig: buySignal("fast")}
	s.Register(fast, []string{"BTC"})

	start := time.Now()
	s.runDue(start)
	s.runDue(start.Add(time.Second))
	s.runDue(start.Add(2 * time.Second))
	s.wg.Wait()

	if got := fast.runCount(); got != 1 {
		t.Errorf("strategy ran %d times within one interval, want 1", got)
	}
}

func TestRunDueDispatchesPerCoin(t *testing.T) {
	s := newTestScheduler(testConfig())
	fast := &stubStrategy{name: "fast", sig: buySignal("fast")}
	s.Register(fast, []string{"BTC", "ETH", "SOL"})

	s.runDue(time.Now())
	s.wg.Wait()

	if got := fast.runCount(); got != 3 {
		t.Errorf("strategy ran %d times for 3 coins, want 3", got)
	}
	sigs := drain(s)
	coins := make(map[string]bool)
	for _, sig := range sigs {
		coins[sig.Coin] = true
	}
	if len(coins) != 3 {
		t.Errorf("queued signals cover %d coins, want 3", len(coins))
	}
}

func TestFailingStrategyDoesNotBlockOthers(t *testing.T) {
	s := newTestScheduler(testConfig())
	broken := &stubStrategy{name: "fast", err: errors.New("feed down")}
	healthy := &stubStrategy{name: "slow", sig: buySignal("slow")}
	s.Register(broken, []string{"BTC"})
	s.Register(healthy, []string{"BTC"})

	s.runDue(time.Now())
	s.wg.Wait()

	if got := healthy.runCount(); got != 1 {
		t.Errorf("healthy strategy ran %d times alongside a failing one, want 1", got)
	}
	if sigs := drain(s); len(sigs) != 1 {
		t.Errorf("queued %d signals, want 1 from the healthy strategy", len(sigs))
	}
}

func TestPanickingStrategyIsIsolated(t *testing.T) {
	s := newTestScheduler(testConfig())
	bomber := &stubStrategy{name: "fast", panic: true}
	healthy := &stubStrategy{name: "slow", sig: buySignal("slow")}
	s.Register(bomber, []string{"BTC"})
	s.Register(healthy, []string{"BTC"})

	s.runDue(time.Now())
	s.wg.Wait() // must not crash the test binary

	if sigs := drain(s); len(sigs) != 1 {
		t.Errorf("queued %d signals, want 1 from the healthy strategy", len(sigs))
	}
}

func TestNilSignalIsSkipped(t *testing.T) {
	s := newTestScheduler(testConfig())
	quiet := &stubStrategy{name: "fast"}
	s.Register(quiet, []string{"BTC"})

	s.runDue(time.Now())
	s.wg.Wait()

	if sigs := drain(s); len(sigs) != 0 {
		t.Errorf("queued %d signals from a no-opinion strategy, want 0", len(sigs))
	}
}

func TestMalformedSignalIsDiscarded(t *testing.T) {
	s := newTestScheduler(testConfig())
	bad := &stubStrategy{name: "fast", sig: &strategy.Signal{
		Action:   strategy.ActionBuy,
		Strength: 1.5, // out of range
		Source:   "fast",
	}}
	s.Register(bad, []string{"BTC"})

	s.runDue(time.Now())
	s.wg.Wait()

	if sigs := drain(s); len(sigs) != 0 {
		t.Errorf("queued %d malformed signals, want 0", len(sigs))
	}
}

func TestDisabledStrategyIsSkipped(t *testing.T) {
	s := newTestScheduler(testConfig())
	fast := &stubStrategy{name: "fast", sig: buySignal("fast")}
	s.Register(fast, []string{"BTC"})

	s.SetStrategyEnabled("fast", false)
	s.runDue(time.Now())
	s.wg.Wait()

	if got := fast.runCount(); got != 0 {
		t.Errorf("disabled strategy ran %d times, want 0", got)
	}

	s.SetStrategyEnabled("fast", true)
	s.runDue(time.Now().Add(400 * time.Second))
	s.wg.Wait()

	if got := fast.runCount(); got != 1 {
		t.Errorf("re-enabled strategy ran %d times, want 1", got)
	}
}

func TestEnqueueDropsOldestWhenFull(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduler.SignalQueueSize = 2
	s := newTestScheduler(cfg)

	for _, coin := range []string{"BTC", "ETH", "SOL"} {
		sig := buySignal("fast")
		sig.Coin = coin
		sig.Timestamp = time.Now()
		s.enqueue(sig)
	}

	sigs := drain(s)
	if len(sigs) != 2 {
		t.Fatalf("queue holds %d signals, want capacity 2", len(sigs))
	}
	if sigs[0].Coin != "ETH" || sigs[1].Coin != "SOL" {
		t.Errorf("queue holds [%s, %s], want the newest two [ETH, SOL]", sigs[0].Coin, sigs[1].Coin)
	}
	if got := s.Dropped(); got != 1 {
		t.Errorf("dropped counter = %d, want 1", got)
	}
}

func TestHoldSignalsAreNotQueued(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduler.SignalQueueSize = 2
	s := newTestScheduler(cfg)
	buy := &stubStrategy{name: "slow", sig: buySignal("slow")}
	hold := &stubStrategy{name: "fast", sig: &strategy.Signal{
		Action: strategy.ActionHold,
		Source: "fast",
	}}
	s.Register(buy, []string{"BTC"})
	s.Register(hold, []string{"ETH", "SOL"})

	s.runDue(time.Now())
	s.wg.Wait()

	sigs := drain(s)
	if len(sigs) != 1 || sigs[0].Action != strategy.ActionBuy {
		t.Fatalf("queue holds %d signals, want only the BUY", len(sigs))
	}
	// With HOLD filtered out, a full minute of quiet markets cannot evict
	// the one actionable signal.
	if got := s.Dropped(); got != 0 {
		t.Errorf("dropped counter = %d, want 0", got)
	}
}

func TestStatusReflectsSchedule(t *testing.T) {
	s := newTestScheduler(testConfig())
	fast := &stubStrategy{name: "fast", sig: buySignal("fast")}
	s.Register(fast, []string{"BTC", "ETH"})

	status := s.Status()
	if len(status) != 2 {
		t.Fatalf("status has %d entries, want 2", len(status))
	}
	for _, st := range status {
		if st.Strategy != "fast" {
			t.Errorf("strategy = %q, want fast", st.Strategy)
		}
		if st.Interval != "5m0s" {
			t.Errorf("interval = %q, want 5m0s", st.Interval)
		}
		if !st.Enabled {
			t.Error("freshly registered strategy should be enabled")
		}
		if !st.LastRun.IsZero() {
			t.Error("lastRun should be zero before the first dispatch")
		}
	}
}

func TestStartStopIdempotent(t *testing.T) {
	s := newTestScheduler(testConfig())
	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
}

func TestRestartAfterStop(t *testing.T) {
	s := newTestScheduler(testConfig())
	s.Start()
	s.Stop()
	s.Start()

	select {
	case <-s.stopChan:
		t.Fatal("restarted scheduler must run on a fresh stop channel")
	default:
	}

	s.Stop()
	s.Stop()
}
