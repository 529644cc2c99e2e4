// Package scheduler runs each (strategy, coin) pair on its own check
// interval. A single base ticker drives the whole table; entries that are
// due get their lastRun stamped first and are then dispatched concurrently,
// so one slow or panicking generator never stalls the others.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"hyperliquid-trading-bot/config"
	"hyperliquid-trading-bot/internal/events"
	"hyperliquid-trading-bot/internal/strategy"
)

const generateTimeout = 10 * time.Second

// entry is one scheduled (strategy, coin) pair.
type entry struct {
	strat    strategy.Strategy
	coin     string
	interval time.Duration
	lastRun  time.Time
}

// EntryStatus is a read-only snapshot of a scheduled pair, served by the API.
type EntryStatus struct {
	Strategy string    `json:"strategy"`
	Coin     string    `json:"coin"`
	Interval string    `json:"interval"`
	LastRun  time.Time `json:"last_run"`
	Enabled  bool      `json:"enabled"`
}

// Scheduler owns the check-interval table and the bounded signal queue.
type Scheduler struct {
	cfg    *config.Config
	logger zerolog.Logger
	bus    *events.Bus

	mu       sync.RWMutex
	entries  []*entry
	disabled map[string]bool // by strategy name

	queue   chan *strategy.Signal
	dropped uint64

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool

	now func() time.Time
}

// New creates a scheduler with an empty table. Register pairs before Start.
func New(cfg *config.Config, bus *events.Bus, logger zerolog.Logger) *Scheduler {
	queueSize := cfg.Scheduler.SignalQueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Scheduler{
		cfg:      cfg,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		bus:      bus,
		disabled: make(map[string]bool),
		queue:    make(chan *strategy.Signal, queueSize),
		now:      time.Now,
	}
}

// Register adds one (strategy, coin) entry per coin. The check interval is
// keyed by the strategy's name; unknown names fall back to a safe default.
func (s *Scheduler) Register(strat strategy.Strategy, coins []string) {
	interval := s.cfg.CheckInterval(strat.Name())

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, coin := range coins {
		s.entries = append(s.entries, &entry{
			strat:    strat,
			coin:     coin,
			interval: interval,
		})
	}
	s.logger.Info().
		Str("strategy", strat.Name()).
		Dur("interval", interval).
		Int("coins", len(coins)).
		Msg("Strategy registered")
}

// Signals returns the queue the order gate consumes from.
func (s *Scheduler) Signals() <-chan *strategy.Signal {
	return s.queue
}

// Dropped returns how many queued signals were evicted to make room.
func (s *Scheduler) Dropped() uint64 {
	return atomic.LoadUint64(&s.dropped)
}

// SetStrategyEnabled toggles every entry of the named strategy. Disabled
// strategies stay in the table but are skipped at dispatch time.
func (s *Scheduler) SetStrategyEnabled(name string, enabled bool) {
	s.mu.Lock()
	s.disabled[name] = !enabled
	s.mu.Unlock()

	s.logger.Info().Str("strategy", name).Bool("enabled", enabled).Msg("Strategy toggled")
	s.bus.Publish(events.Event{
		Type: events.EventStrategyToggled,
		Data: map[string]interface{}{"strategy": name, "enabled": enabled},
	})
}

// Status snapshots the schedule table for the API.
func (s *Scheduler) Status() []EntryStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]EntryStatus, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, EntryStatus{
			Strategy: e.strat.Name(),
			Coin:     e.coin,
			Interval: e.interval.String(),
			LastRun:  e.lastRun,
			Enabled:  !s.disabled[e.strat.Name()],
		})
	}
	return out
}

// Start launches the base tick loop. A stopped scheduler can be started
// again; each run gets a fresh stop channel.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	stop := s.stopChan
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(stop)
	s.logger.Info().Int("entries", len(s.entries)).Msg("Scheduler started")
}

// Stop halts the tick loop and waits for in-flight dispatches to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop := s.stopChan
	s.mu.Unlock()

	close(stop)
	s.wg.Wait()
	s.logger.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) loop(stop <-chan struct{}) {
	defer s.wg.Done()

	base := time.Duration(s.cfg.Scheduler.BaseTickSeconds) * time.Second
	if base <= 0 {
		base = time.Second
	}
	ticker := time.NewTicker(base)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.runDue(s.now())
		}
	}
}

// runDue stamps and dispatches every entry whose interval has elapsed.
// lastRun moves forward before Generate runs, so a run that outlives its
// own interval delays the next one rather than doubling up immediately.
func (s *Scheduler) runDue(now time.Time) {
	s.mu.Lock()
	var due []*entry
	for _, e := range s.entries {
		if s.disabled[e.strat.Name()] {
			continue
		}
		if now.Sub(e.lastRun) >= e.interval {
			e.lastRun = now
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		s.wg.Add(1)
		go s.dispatch(e)
	}
}

func (s *Scheduler) dispatch(e *entry) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("strategy", e.strat.Name()).
				Str("coin", e.coin).
				Interface("panic", r).
				Msg("Strategy panicked")
			s.bus.PublishError("scheduler", fmt.Sprintf("%s panic on %s: %v", e.strat.Name(), e.coin, r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), generateTimeout)
	defer cancel()

	sig, err := e.strat.Generate(ctx, e.coin)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("strategy", e.strat.Name()).
			Str("coin", e.coin).
			Msg("Strategy failed")
		s.bus.PublishError("scheduler", err.Error())
		return
	}
	if sig == nil {
		return
	}
	if err := sig.Validate(); err != nil {
		s.logger.Warn().
			Err(err).
			Str("strategy", e.strat.Name()).
			Str("coin", e.coin).
			Msg("Discarding malformed signal")
		return
	}

	s.logger.Debug().
		Str("coin", sig.Coin).
		Str("action", string(sig.Action)).
		Float64("strength", sig.Strength).
		Str("source", sig.Source).
		Msg("Signal generated")
	s.bus.PublishSignal(sig.Coin, string(sig.Action), sig.Source, sig.Strength, sig.Metadata)

	// HOLD signals stay in the event history only; the queue carries
	// actionable work for the gate.
	if sig.Action == strategy.ActionHold {
		return
	}

	s.enqueue(sig)
}

// enqueue delivers the signal to the bounded queue, evicting the oldest
// queued signal when full. Newest-wins keeps the gate working on fresh
// market state under bursts.
func (s *Scheduler) enqueue(sig *strategy.Signal) {
	for {
		select {
		case s.queue <- sig:
			return
		default:
		}

		select {
		case old := <-s.queue:
			atomic.AddUint64(&s.dropped, 1)
			s.logger.Warn().
				Str("coin", old.Coin).
				Str("source", old.Source).
				Msg("Signal queue full, dropping oldest")
			s.bus.Publish(events.Event{
				Type: events.EventSignalDropped,
				Data: map[string]interface{}{
					"coin":   old.Coin,
					"action": string(old.Action),
					"source": old.Source,
				},
			})
		default:
			// A consumer raced us to the eviction; retry the send.
		}
	}
}
