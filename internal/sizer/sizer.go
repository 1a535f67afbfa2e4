// Package sizer turns an entry/exit price pair into a recommended stake
// using fractional Kelly, bounded to a fixed slice of bankroll.
package sizer

import "fmt"

// BetSize is the recommendation handed back to the caller.
type BetSize struct {
	Amount     float64
	Pct        float64
	Kelly      float64
	Confidence string
	Rationale  string
}

// Config tunes the sizer. FixedStake, when > 0, bypasses Kelly entirely —
// used by test/paper runs that want deterministic stakes.
type Config struct {
	KellyFraction float64
	MinBetPct     float64
	MaxBetPct     float64
	FixedStake    float64
}

// Sizer computes stakes for candidate entries.
type Sizer struct {
	cfg Config
}

// New builds a Sizer from cfg.
func New(cfg Config) *Sizer {
	return &Sizer{cfg: cfg}
}

// calculateKelly implements Kelly % = W - (1-W)/R.
func calculateKelly(winRate, winLossRatio float64) float64 {
	if winLossRatio <= 0 {
		return 0
	}
	return winRate - (1-winRate)/winLossRatio
}

// Size recommends a stake for an entry at entryPrice targeting exitPrice,
// against the given bankroll. winRate is optional: pass 0 to fall back to
// break-even + 5% edge, mirroring a conservative default estimate.
func (s *Sizer) Size(bankroll, entryPrice, exitPrice, winRate float64) BetSize {
	if s.cfg.FixedStake > 0 {
		return BetSize{
			Amount:     s.cfg.FixedStake,
			Pct:        s.cfg.FixedStake / bankroll,
			Confidence: "fixed",
			Rationale:  fmt.Sprintf("fixed test stake %.2f", s.cfg.FixedStake),
		}
	}

	if entryPrice <= 0 {
		return BetSize{Rationale: "invalid entry price"}
	}

	profitPerDollar := (exitPrice - entryPrice) / entryPrice
	const loss = 1.0
	winLossRatio := profitPerDollar / loss

	if winRate <= 0 {
		breakEven := loss / (loss + profitPerDollar)
		winRate = breakEven + 0.05
	}

	kelly := calculateKelly(winRate, winLossRatio)
	if kelly <= 0 {
		return BetSize{
			Kelly:      kelly,
			Confidence: "none",
			Rationale:  fmt.Sprintf("negative kelly (%.1f%%), math doesn't support this bet", kelly*100),
		}
	}

	betPct := kelly * s.cfg.KellyFraction
	clamped := betPct
	if clamped < s.cfg.MinBetPct {
		clamped = s.cfg.MinBetPct
	}
	if clamped > s.cfg.MaxBetPct {
		clamped = s.cfg.MaxBetPct
	}

	confidence := "low"
	switch {
	case kelly >= 0.20:
		confidence = "high"
	case kelly >= 0.10:
		confidence = "medium"
	}

	rationale := fmt.Sprintf("kelly=%.1f%%, fraction=%.2f, adjusted=%.1f%%", kelly*100, s.cfg.KellyFraction, clamped*100)
	if clamped != betPct {
		rationale += fmt.Sprintf(" (clamped from %.1f%%)", betPct*100)
	}

	return BetSize{
		Amount:     bankroll * clamped,
		Pct:        clamped,
		Kelly:      kelly,
		Confidence: confidence,
		Rationale:  rationale,
	}
}
