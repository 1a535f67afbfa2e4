package store

import (
	"path/filepath"
	"testing"
	"time"

	"quarterbinary/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAndLoadStrategies(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	cfg := types.StrategyConfig{ID: "deep_10_20", Tier: "deep", EntryThreshold: 0.10, ExitThreshold: 0.20, Direction: types.DirectionNormal, Enabled: true}
	if err := s.UpsertStrategy(cfg); err != nil {
		t.Fatalf("UpsertStrategy: %v", err)
	}

	strategies, err := s.LoadStrategies()
	if err != nil {
		t.Fatalf("LoadStrategies: %v", err)
	}
	if len(strategies) != 1 {
		t.Fatalf("expected 1 strategy, got %d", len(strategies))
	}
	if strategies[0].Status != types.StrategyActive {
		t.Fatalf("expected status active, got %s", strategies[0].Status)
	}

	// Re-upsert must not clobber a status advanced out-of-band (e.g. by an operator).
	_, err = s.db.Exec(`UPDATE strategies SET status = 'champion' WHERE id = ?`, cfg.ID)
	if err != nil {
		t.Fatalf("manual status update: %v", err)
	}
	if err := s.UpsertStrategy(cfg); err != nil {
		t.Fatalf("UpsertStrategy (second): %v", err)
	}
	strategies, err = s.LoadStrategies()
	if err != nil {
		t.Fatalf("LoadStrategies: %v", err)
	}
	if string(strategies[0].Status) != "champion" {
		t.Fatalf("expected persisted status to survive re-upsert, got %s", strategies[0].Status)
	}
}

func TestOpenAndCloseTrade(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	cfg := types.StrategyConfig{ID: "deep_10_20", EntryThreshold: 0.10, ExitThreshold: 0.20, Direction: types.DirectionNormal, Enabled: true}
	if err := s.UpsertStrategy(cfg); err != nil {
		t.Fatalf("UpsertStrategy: %v", err)
	}

	now := time.Now().UTC()
	tr := &types.Trade{
		StrategyID: cfg.ID, ConditionID: "cond-1", Asset: "BTC", Side: types.SideYES,
		EntryPrice: 0.09, EntryTime: now, Shares: 100 / 0.09, TimeRemainingAtEntry: 600,
		HourOfDay: now.Hour(), DayOfWeek: int(now.Weekday()), IsPaper: true,
	}
	if err := s.OpenTrade(tr); err != nil {
		t.Fatalf("OpenTrade: %v", err)
	}
	if tr.ID == 0 {
		t.Fatalf("expected trade to get an assigned ID")
	}

	open, err := s.LoadOpenTrades()
	if err != nil {
		t.Fatalf("LoadOpenTrades: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open trade, got %d", len(open))
	}

	has, err := s.HasAnyTrade(types.Key{StrategyID: cfg.ID, ConditionID: "cond-1"})
	if err != nil {
		t.Fatalf("HasAnyTrade: %v", err)
	}
	if !has {
		t.Fatalf("expected HasAnyTrade true after open")
	}

	tr.Close(0.21, now.Add(10*time.Minute), types.ExitTakeProfit)
	if err := s.CloseTrade(tr); err != nil {
		t.Fatalf("CloseTrade: %v", err)
	}

	open, err = s.LoadOpenTrades()
	if err != nil {
		t.Fatalf("LoadOpenTrades after close: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected 0 open trades after close, got %d", len(open))
	}

	strategies, err := s.LoadStrategies()
	if err != nil {
		t.Fatalf("LoadStrategies: %v", err)
	}
	if strategies[0].TotalTrades != 1 || strategies[0].Wins != 1 {
		t.Fatalf("expected perf cache updated, got %+v", strategies[0])
	}
}

func TestAppendPrice(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	p := types.PriceUpdate{ConditionID: "cond-1", Asset: "BTC", YesPrice: 0.4, NoPrice: 0.6, ObservedAt: time.Now()}
	if err := s.AppendPrice(p); err != nil {
		t.Fatalf("AppendPrice: %v", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM prices`).Scan(&count); err != nil {
		t.Fatalf("count prices: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 price row, got %d", count)
	}
}
