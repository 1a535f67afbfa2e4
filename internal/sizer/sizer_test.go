package sizer

import (
	"math"
	"testing"
)

func approx(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func TestSizeDeepTenTwentyStaysWithinBounds(t *testing.T) {
	t.Parallel()
	s := New(Config{KellyFraction: 0.5, MinBetPct: 0.03, MaxBetPct: 0.15})

	bet := s.Size(100, 0.10, 0.20, 0.60)
	// profitPerDollar = 1.0, breakEven(unused, winRate supplied)=n/a
	// kelly = 0.6 - 0.4/1.0 = 0.2; half-kelly = 0.10 -> within bounds
	if !approx(bet.Kelly, 0.20, 1e-9) {
		t.Fatalf("expected kelly 0.20, got %v", bet.Kelly)
	}
	if !approx(bet.Pct, 0.10, 1e-9) {
		t.Fatalf("expected pct 0.10, got %v", bet.Pct)
	}
	if !approx(bet.Amount, 10, 1e-9) {
		t.Fatalf("expected amount 10, got %v", bet.Amount)
	}
}

func TestSizeDefaultsWinRateToBreakEvenPlusFive(t *testing.T) {
	t.Parallel()
	s := New(Config{KellyFraction: 0.5, MinBetPct: 0.03, MaxBetPct: 0.15})

	// entry 0.10, exit 0.20 -> profitPerDollar = 1.0, breakEven = 1/(1+1) = 0.5
	// winRate defaults to 0.55, kelly = 0.55 - 0.45/1.0 = 0.10, half-kelly = 0.05
	bet := s.Size(100, 0.10, 0.20, 0)
	if !approx(bet.Kelly, 0.10, 1e-9) {
		t.Fatalf("expected default-winrate kelly 0.10, got %v", bet.Kelly)
	}
	if !approx(bet.Pct, 0.05, 1e-9) {
		t.Fatalf("expected pct 0.05, got %v", bet.Pct)
	}
}

func TestSizeClampsToMaxWhenKellyLarge(t *testing.T) {
	t.Parallel()
	s := New(Config{KellyFraction: 0.5, MinBetPct: 0.03, MaxBetPct: 0.15})

	// entry 0.20, exit 0.21: thin profitPerDollar (0.05) pushes the default
	// win-rate estimate (breakEven + 5%) just over break-even, and the
	// resulting Kelly fraction comfortably clears the 15% ceiling.
	bet := s.Size(100, 0.20, 0.21, 0)
	if !approx(bet.Pct, 0.15, 1e-9) {
		t.Fatalf("expected pct clamped to max 0.15, got %v", bet.Pct)
	}
}

func TestSizeReturnsZeroOnNegativeKelly(t *testing.T) {
	t.Parallel()
	s := New(Config{KellyFraction: 0.5, MinBetPct: 0.03, MaxBetPct: 0.15})

	// supplied win rate far below break-even forces a non-positive kelly
	bet := s.Size(100, 0.50, 0.55, 0.10)
	if bet.Amount != 0 {
		t.Fatalf("expected zero amount for negative kelly, got %+v", bet)
	}
	if bet.Confidence != "none" {
		t.Fatalf("expected confidence none, got %s", bet.Confidence)
	}
}

func TestSizeFixedStakeBypassesKelly(t *testing.T) {
	t.Parallel()
	s := New(Config{KellyFraction: 0.5, MinBetPct: 0.03, MaxBetPct: 0.15, FixedStake: 2.5})

	bet := s.Size(100, 0.10, 0.20, 0)
	if bet.Amount != 2.5 {
		t.Fatalf("expected fixed stake 2.5, got %v", bet.Amount)
	}
}
