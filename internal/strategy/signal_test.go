package strategy

import (
	"testing"
	"time"
)

func validSignal() *Signal {
	return &Signal{
		Coin:      "BTC",
		Action:    ActionBuy,
		Strength:  0.8,
		Timestamp: time.Now(),
		Source:    "rsi_5m",
	}
}

func TestSignalValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Signal)
		wantErr bool
	}{
		{"valid buy", func(s *Signal) {}, false},
		{"valid sell", func(s *Signal) { s.Action = ActionSell }, false},
		{"valid hold", func(s *Signal) { s.Action = ActionHold; s.Strength = 0 }, false},
		{"empty coin", func(s *Signal) { s.Coin = "" }, true},
		{"empty source", func(s *Signal) { s.Source = "" }, true},
		{"unknown action", func(s *Signal) { s.Action = "SHORT" }, true},
		{"buy with zero strength", func(s *Signal) { s.Strength = 0 }, true},
		{"buy with strength above one", func(s *Signal) { s.Strength = 1.2 }, true},
		{"buy with negative strength", func(s *Signal) { s.Strength = -0.1 }, true},
		{"hold with nonzero strength", func(s *Signal) { s.Action = ActionHold; s.Strength = 0.5 }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := validSignal()
			tc.mutate(s)
			err := s.Validate()
			if tc.wantErr && err == nil {
				t.Errorf("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestSignalIsActionable(t *testing.T) {
	s := validSignal()
	if !s.IsActionable(0.75) {
		t.Error("strength 0.8 should clear a 0.75 bar")
	}
	if s.IsActionable(0.9) {
		t.Error("strength 0.8 should not clear a 0.9 bar")
	}

	hold := &Signal{Coin: "BTC", Action: ActionHold, Source: "x"}
	if hold.IsActionable(0) {
		t.Error("HOLD is never actionable")
	}
}
