package strategy

import (
	"fmt"
	"time"
)

// Action is a trading action recommendation.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Signal is the universal recommendation format every generator produces.
// Immutable once created; the order gate consumes it exactly once and the
// state sink keeps it only for history.
type Signal struct {
	Coin      string                 `json:"coin"`
	Action    Action                 `json:"action"`
	Strength  float64                `json:"strength"` // 0.0 to 1.0
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`             // generator name, e.g. "rsi_5m"
	Metadata  map[string]interface{} `json:"metadata,omitempty"` // indicator values, diagnostic only
}

// Validate enforces the signal contract at the gate boundary. A generator
// that breaks it has a programming bug; its signal is dropped, not traded.
func (s *Signal) Validate() error {
	if s.Coin == "" {
		return fmt.Errorf("signal: empty coin")
	}
	if s.Source == "" {
		return fmt.Errorf("signal: empty source")
	}
	switch s.Action {
	case ActionBuy, ActionSell:
		if s.Strength <= 0 || s.Strength > 1 {
			return fmt.Errorf("signal: %s strength must be in (0, 1], got %f", s.Action, s.Strength)
		}
	case ActionHold:
		if s.Strength != 0 {
			return fmt.Errorf("signal: HOLD strength must be 0, got %f", s.Strength)
		}
	default:
		return fmt.Errorf("signal: invalid action %q", s.Action)
	}
	return nil
}

// IsActionable reports whether the signal is strong enough to act on.
func (s *Signal) IsActionable(minStrength float64) bool {
	return (s.Action == ActionBuy || s.Action == ActionSell) && s.Strength >= minStrength
}

func (s *Signal) String() string {
	return fmt.Sprintf("%s: %s %s (strength: %.2f)", s.Source, s.Action, s.Coin, s.Strength)
}
