// Package vault implements the profit-protection bankroll supplement: a
// portion of every winning trade's P&L is swept into a vault that is never
// risked again, with an emergency withdrawal valve if the active bankroll
// gets too thin relative to total equity.
package vault

import "log/slog"

// Config tunes deposit rate and the emergency withdrawal valve.
type Config struct {
	Enabled                    bool
	DepositRate                float64
	EmergencyWithdrawThreshold float64

	// SnapshotPath, if set, is where bankroll/vault/peak state is persisted
	// after every processed trade and restored from on New. A blank path
	// disables snapshotting (bankroll state resets to Initial on restart).
	SnapshotPath string
}

// Result reports how a single trade moved money between bankroll and vault.
type Result struct {
	PnL           float64
	IsWin         bool
	BankrollDelta float64
	VaultDeposit  float64
	NewBankroll   float64
	NewVault      float64
}

// Bankroll tracks the active trading balance plus the protected vault.
type Bankroll struct {
	cfg          Config
	logger       *slog.Logger
	initial      float64
	bankroll     float64
	vaultBal     float64
	peakEquity   float64
	peakBankroll float64
}

// New creates a Bankroll seeded with initial capital, restoring bankroll,
// vault, and peak-equity state from cfg.SnapshotPath if a snapshot exists —
// otherwise it starts fresh at initial. A failed restore is logged and
// falls back to starting fresh rather than refusing to start: a missing or
// corrupt snapshot is recoverable, unlike a Store outage.
func New(initial float64, cfg Config, logger *slog.Logger) *Bankroll {
	b := &Bankroll{
		cfg:          cfg,
		logger:       logger.With("component", "vault"),
		initial:      initial,
		bankroll:     initial,
		peakEquity:   initial,
		peakBankroll: initial,
	}

	snap, ok, err := loadSnapshot(cfg.SnapshotPath)
	if err != nil {
		b.logger.Warn("failed to restore vault snapshot, starting fresh", "error", err, "path", cfg.SnapshotPath)
		return b
	}
	if !ok {
		return b
	}

	b.bankroll = snap.Bankroll
	b.vaultBal = snap.Vault
	b.peakEquity = snap.PeakEquity
	b.peakBankroll = snap.PeakBankroll
	b.logger.Info("restored vault snapshot",
		"bankroll", b.bankroll, "vault", b.vaultBal, "peak_equity", b.peakEquity, "path", cfg.SnapshotPath)
	return b
}

// TotalEquity is bankroll + vault.
func (b *Bankroll) TotalEquity() float64 { return b.bankroll + b.vaultBal }

// Available is the currently at-risk balance Sizer should size against.
func (b *Bankroll) Available() float64 { return b.bankroll }

// TotalReturn is equity gain/loss relative to initial capital.
func (b *Bankroll) TotalReturn() float64 {
	if b.initial <= 0 {
		return 0
	}
	return (b.TotalEquity() - b.initial) / b.initial
}

// ProcessTrade applies a closed trade's P&L: winners deposit a slice of
// profit into the vault, losers are absorbed entirely by the active
// bankroll. When vault sweeping is disabled, winnings stay in bankroll.
func (b *Bankroll) ProcessTrade(pnl float64, isWin bool) Result {
	var deposit float64

	if isWin && pnl > 0 && b.cfg.Enabled {
		deposit = pnl * b.cfg.DepositRate
		b.vaultBal += deposit
		b.bankroll += pnl - deposit
		b.logger.Debug("profit deposited", "pnl", pnl, "vault_deposit", deposit)
	} else {
		b.bankroll += pnl
		if pnl < 0 {
			b.logger.Debug("loss applied", "pnl", pnl, "new_bankroll", b.bankroll)
		}
	}

	if b.TotalEquity() > b.peakEquity {
		b.peakEquity = b.TotalEquity()
	}
	if b.bankroll > b.peakBankroll {
		b.peakBankroll = b.bankroll
	}

	b.checkEmergency()
	b.persist()

	bankrollDelta := pnl
	if isWin && pnl > 0 && b.cfg.Enabled {
		bankrollDelta = pnl - deposit
	}

	return Result{
		PnL:           pnl,
		IsWin:         isWin,
		BankrollDelta: bankrollDelta,
		VaultDeposit:  deposit,
		NewBankroll:   b.bankroll,
		NewVault:      b.vaultBal,
	}
}

// checkEmergency withdraws from the vault if the active bankroll has
// fallen below EmergencyWithdrawThreshold of total equity.
func (b *Bankroll) checkEmergency() {
	if !b.cfg.Enabled || b.TotalEquity() <= 0 {
		return
	}

	ratio := b.bankroll / b.TotalEquity()
	if ratio >= b.cfg.EmergencyWithdrawThreshold || b.vaultBal <= 0 {
		return
	}

	targetBankroll := b.TotalEquity() * b.cfg.EmergencyWithdrawThreshold
	withdrawal := targetBankroll - b.bankroll
	if withdrawal > b.vaultBal {
		withdrawal = b.vaultBal
	}
	if withdrawal <= 0 {
		return
	}

	b.vaultBal -= withdrawal
	b.bankroll += withdrawal
	b.logger.Warn("emergency withdrawal",
		"withdrawal", withdrawal, "new_bankroll", b.bankroll, "new_vault", b.vaultBal,
		"bankroll_ratio", ratio, "threshold", b.cfg.EmergencyWithdrawThreshold)
}

// persist writes the current bankroll/vault/peak state to SnapshotPath so a
// restart resumes from here instead of re-seeding at Initial. Failures are
// logged, not fatal: losing one snapshot write only costs the most recent
// trade's worth of restart fidelity.
func (b *Bankroll) persist() {
	if b.cfg.SnapshotPath == "" {
		return
	}
	err := saveSnapshot(b.cfg.SnapshotPath, state{
		Bankroll:     b.bankroll,
		Vault:        b.vaultBal,
		PeakEquity:   b.peakEquity,
		PeakBankroll: b.peakBankroll,
	})
	if err != nil {
		b.logger.Error("failed to persist vault snapshot", "error", err, "path", b.cfg.SnapshotPath)
	}
}
