package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"hyperliquid-trading-bot/config"
	"hyperliquid-trading-bot/internal/circuit"
	"hyperliquid-trading-bot/internal/events"
	"hyperliquid-trading-bot/internal/exchange"
	"hyperliquid-trading-bot/internal/position"
	"hyperliquid-trading-bot/internal/strategy"
)

type gateFixture struct {
	gate    *Gate
	book    *position.Book
	breaker *circuit.Breaker
	client  *exchange.PaperClient
	cfg     *config.Config
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	cfg := config.Default()
	bus := events.NewBus()
	book := position.NewBook(cfg.Trading.MaxPositions)
	client := exchange.NewPaperClient(10_000)
	manager := position.NewManager(cfg, book, client, bus, nil, zerolog.Nop())
	breaker := circuit.New(cfg.Breaker, bus, zerolog.Nop())
	gate := NewGate(cfg, book, manager, client, breaker, bus, zerolog.Nop())
	return &gateFixture{gate: gate, book: book, breaker: breaker, client: client, cfg: cfg}
}

func signal(coin string, action strategy.Action, strength float64) *strategy.Signal {
	return &strategy.Signal{
		Coin:      coin,
		Action:    action,
		Strength:  strength,
		Timestamp: time.Now(),
		Source:    "rsi_5m",
	}
}

func TestSubmitRejectsHold(t *testing.T) {
	f := newGateFixture(t)
	res := f.gate.Submit(context.Background(), signal("BTC", strategy.ActionHold, 0))
	if res.Admitted || res.Reason != RejectHold {
		t.Errorf("result = %+v, want HOLD rejection", res)
	}
}

func TestSubmitRejectsWeakSignal(t *testing.T) {
	f := newGateFixture(t)
	res := f.gate.Submit(context.Background(), signal("BTC", strategy.ActionBuy, 0.5))
	if res.Admitted || res.Reason != RejectWeakSignal {
		t.Errorf("result = %+v, want weak-signal rejection below 0.75", res)
	}
}

func TestSubmitAdmitsStrongBuy(t *testing.T) {
	f := newGateFixture(t)
	res := f.gate.Submit(context.Background(), signal("BTC", strategy.ActionBuy, 0.9))
	if !res.Admitted {
		t.Fatalf("result = %+v, want admission", res)
	}
	if res.Position == nil || res.Position.Side != position.SideLong {
		t.Fatalf("position = %+v, want a LONG", res.Position)
	}
	if got, ok := f.book.Get("BTC"); !ok || got.Status != position.StatusOpen {
		t.Error("admitted position should be OPEN in the book")
	}
	if res.Position.StopLossPrice >= res.Position.EntryPrice {
		t.Error("long stop-loss must sit below entry")
	}
}

func TestSubmitAdmitsSellAsShort(t *testing.T) {
	f := newGateFixture(t)
	res := f.gate.Submit(context.Background(), signal("ETH", strategy.ActionSell, 0.9))
	if !res.Admitted {
		t.Fatalf("result = %+v, want admission", res)
	}
	if res.Position.Side != position.SideShort {
		t.Errorf("side = %v, want SHORT", res.Position.Side)
	}
	if res.Position.StopLossPrice <= res.Position.EntryPrice {
		t.Error("short stop-loss must sit above entry")
	}
}

func TestSubmitRejectsDuplicateCoin(t *testing.T) {
	f := newGateFixture(t)
	if res := f.gate.Submit(context.Background(), signal("BTC", strategy.ActionBuy, 0.9)); !res.Admitted {
		t.Fatalf("first submit rejected: %+v", res)
	}
	res := f.gate.Submit(context.Background(), signal("BTC", strategy.ActionBuy, 0.9))
	if res.Admitted || res.Reason != RejectDuplicate {
		t.Errorf("result = %+v, want duplicate rejection", res)
	}
}

func TestSubmitRejectsAtMaxPositions(t *testing.T) {
	f := newGateFixtureWithCap(t, 2)

	coins := []string{"BTC", "ETH"}
	for _, coin := range coins {
		if res := f.gate.Submit(context.Background(), signal(coin, strategy.ActionBuy, 0.9)); !res.Admitted {
			t.Fatalf("submit %s rejected: %+v", coin, res)
		}
	}
	res := f.gate.Submit(context.Background(), signal("SOL", strategy.ActionBuy, 0.9))
	if res.Admitted || res.Reason != RejectMaxPositions {
		t.Errorf("result = %+v, want max-positions rejection", res)
	}
}

func newGateFixtureWithCap(t *testing.T, cap int) *gateFixture {
	t.Helper()
	cfg := config.Default()
	cfg.Trading.MaxPositions = cap
	bus := events.NewBus()
	book := position.NewBook(cap)
	client := exchange.NewPaperClient(10_000)
	manager := position.NewManager(cfg, book, client, bus, nil, zerolog.Nop())
	gate := NewGate(cfg, book, manager, client, nil, bus, zerolog.Nop())
	return &gateFixture{gate: gate, book: book, client: client, cfg: cfg}
}

func TestSubmitRejectsDuringCooldown(t *testing.T) {
	f := newGateFixture(t)
	closedAt := time.Now()
	f.book.Settle("BTC", closedAt)

	f.gate.now = func() time.Time { return closedAt.Add(60 * time.Second) }
	res := f.gate.Submit(context.Background(), signal("BTC", strategy.ActionBuy, 0.9))
	if res.Admitted || res.Reason != RejectCooldown {
		t.Errorf("result = %+v, want cooldown rejection 60s after close", res)
	}

	f.gate.now = func() time.Time { return closedAt.Add(301 * time.Second) }
	res = f.gate.Submit(context.Background(), signal("BTC", strategy.ActionBuy, 0.9))
	if !res.Admitted {
		t.Errorf("result = %+v, want admission after the 300s cooldown", res)
	}
}

func TestSubmitRejectsWhenBreakerOpen(t *testing.T) {
	f := newGateFixture(t)
	for i := 0; i < f.cfg.Breaker.MaxConsecutiveLosses; i++ {
		f.breaker.RecordTrade(-1)
	}

	res := f.gate.Submit(context.Background(), signal("BTC", strategy.ActionBuy, 0.9))
	if res.Admitted || res.Reason != RejectBreaker {
		t.Errorf("result = %+v, want breaker rejection", res)
	}
}

func TestSubmitRejectsWhenHalted(t *testing.T) {
	f := newGateFixture(t)
	f.gate.SetHalted(true)

	res := f.gate.Submit(context.Background(), signal("BTC", strategy.ActionBuy, 0.9))
	if res.Admitted || res.Reason != RejectHalted {
		t.Errorf("result = %+v, want halted rejection", res)
	}

	f.gate.SetHalted(false)
	if res := f.gate.Submit(context.Background(), signal("BTC", strategy.ActionBuy, 0.9)); !res.Admitted {
		t.Errorf("result = %+v, want admission after unhalt", res)
	}
}

func TestSubmitRejectsInsufficientBalance(t *testing.T) {
	cfg := config.Default()
	cfg.Trading.PositionSizeUSD = 50_000 // far beyond the paper balance
	bus := events.NewBus()
	book := position.NewBook(cfg.Trading.MaxPositions)
	client := exchange.NewPaperClient(100)
	manager := position.NewManager(cfg, book, client, bus, nil, zerolog.Nop())
	gate := NewGate(cfg, book, manager, client, nil, bus, zerolog.Nop())

	res := gate.Submit(context.Background(), signal("BTC", strategy.ActionBuy, 0.9))
	if res.Admitted || res.Reason != RejectBalance {
		t.Errorf("result = %+v, want balance rejection", res)
	}
	// The reservation must be released so a funded retry can succeed.
	if book.Count() != 0 {
		t.Errorf("book holds %d slots after a failed order, want 0", book.Count())
	}
}

func TestConcurrentSameCoinSingleAdmission(t *testing.T) {
	f := newGateFixture(t)

	const racers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res := f.gate.Submit(context.Background(), signal("BTC", strategy.ActionBuy, 0.9)); res.Admitted {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 1 {
		t.Errorf("%d concurrent submits admitted, want exactly 1", admitted)
	}
	if f.book.Count() != 1 {
		t.Errorf("book holds %d positions, want 1", f.book.Count())
	}
}

func TestRestartAfterStopConsumesQueue(t *testing.T) {
	f := newGateFixture(t)
	signals := make(chan *strategy.Signal, 1)

	f.gate.Start(signals)
	f.gate.Stop()
	f.gate.Start(signals)

	select {
	case <-f.gate.stopChan:
		t.Fatal("restarted gate must run on a fresh stop channel")
	default:
	}

	// The restarted consumer loop must still drain the queue.
	signals <- signal("BTC", strategy.ActionHold, 0)
	deadline := time.Now().Add(time.Second)
	for len(signals) > 0 {
		if time.Now().After(deadline) {
			t.Fatal("restarted gate is not consuming signals")
		}
		time.Sleep(5 * time.Millisecond)
	}

	f.gate.Stop()
	f.gate.Stop()
}
