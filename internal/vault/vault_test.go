package vault

import (
	"log/slog"
	"math"
	"path/filepath"
	"testing"
)

func approx(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, nil))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestProcessTradeWinDepositsToVault(t *testing.T) {
	t.Parallel()
	b := New(100, Config{Enabled: true, DepositRate: 0.20, EmergencyWithdrawThreshold: 0.20}, testLogger())

	res := b.ProcessTrade(10, true)
	if !approx(res.VaultDeposit, 2, 1e-9) {
		t.Fatalf("expected vault deposit 2, got %v", res.VaultDeposit)
	}
	if !approx(res.NewBankroll, 108, 1e-9) {
		t.Fatalf("expected new bankroll 108, got %v", res.NewBankroll)
	}
	if !approx(b.TotalEquity(), 110, 1e-9) {
		t.Fatalf("expected total equity 110, got %v", b.TotalEquity())
	}
}

func TestProcessTradeLossHitsBankrollOnly(t *testing.T) {
	t.Parallel()
	b := New(100, Config{Enabled: true, DepositRate: 0.20, EmergencyWithdrawThreshold: 0.20}, testLogger())

	b.ProcessTrade(10, true) // seed the vault with 2
	res := b.ProcessTrade(-5, false)
	if res.VaultDeposit != 0 {
		t.Fatalf("expected no vault deposit on loss, got %v", res.VaultDeposit)
	}
	if !approx(res.NewBankroll, 103, 1e-9) {
		t.Fatalf("expected bankroll 103 after loss, got %v", res.NewBankroll)
	}
	if !approx(res.NewVault, 2, 1e-9) {
		t.Fatalf("expected vault untouched at 2, got %v", res.NewVault)
	}
}

func TestEmergencyWithdrawalRefillsThinBankroll(t *testing.T) {
	t.Parallel()
	b := New(100, Config{Enabled: true, DepositRate: 0.50, EmergencyWithdrawThreshold: 0.20}, testLogger())

	b.ProcessTrade(100, true) // bankroll=150, vault=50, equity=200, ratio=0.75
	res := b.ProcessTrade(-140, false) // pre-emergency: bankroll=10, equity=60, ratio=0.167 < 0.20

	if !approx(res.NewVault, 48, 1e-9) {
		t.Fatalf("expected vault drawn down to 48, got %v", res.NewVault)
	}
	if !approx(res.NewBankroll, 12, 1e-9) {
		t.Fatalf("expected emergency withdrawal to bring bankroll to 12, got %v", res.NewBankroll)
	}
	if !approx(b.TotalEquity(), 60, 1e-9) {
		t.Fatalf("expected total equity unchanged by an internal transfer, got %v", b.TotalEquity())
	}
}

func TestProcessTradeDisabledVaultKeepsAllProfitInBankroll(t *testing.T) {
	t.Parallel()
	b := New(100, Config{Enabled: false, DepositRate: 0.20, EmergencyWithdrawThreshold: 0.20}, testLogger())

	res := b.ProcessTrade(10, true)
	if res.VaultDeposit != 0 {
		t.Fatalf("expected no vault deposit when disabled, got %v", res.VaultDeposit)
	}
	if !approx(res.NewBankroll, 110, 1e-9) {
		t.Fatalf("expected bankroll 110 when vault disabled, got %v", res.NewBankroll)
	}
}

// TestSnapshotSurvivesRestart simulates a daemon restart: a fresh Bankroll
// built with the same SnapshotPath must resume from the prior instance's
// state rather than re-seeding at Initial.
func TestSnapshotSurvivesRestart(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "vault_state.json")
	cfg := Config{Enabled: true, DepositRate: 0.20, EmergencyWithdrawThreshold: 0.20, SnapshotPath: path}

	first := New(100, cfg, testLogger())
	first.ProcessTrade(10, true) // bankroll=108, vault=2

	second := New(100, cfg, testLogger())
	if !approx(second.Available(), first.Available(), 1e-9) {
		t.Fatalf("expected restored bankroll %v, got %v", first.Available(), second.Available())
	}
	if !approx(second.TotalEquity(), first.TotalEquity(), 1e-9) {
		t.Fatalf("expected restored equity %v, got %v", first.TotalEquity(), second.TotalEquity())
	}
}

func TestSnapshotMissingStartsFresh(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	b := New(100, Config{Enabled: true, SnapshotPath: path}, testLogger())
	if b.Available() != 100 {
		t.Fatalf("expected fresh bankroll 100 with no snapshot on disk, got %v", b.Available())
	}
}
