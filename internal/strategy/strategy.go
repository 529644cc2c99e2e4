// Package strategy defines the signal generator contract and the built-in
// indicator-based generators. A generator is a pure read: it fetches market
// data, computes an opinion for one coin, and holds no position state.
package strategy

import (
	"context"
)

// Strategy is the contract every signal generator implements. Generate
// returns nil with no error when the generator has no opinion (for example
// not enough data). Errors are transient fetch failures; the scheduler logs
// them and moves on, the next scheduled check retries naturally.
type Strategy interface {
	// Name uniquely identifies the generator, e.g. "rsi_5m".
	Name() string

	// Generate produces a recommendation for coin.
	Generate(ctx context.Context, coin string) (*Signal, error)
}
