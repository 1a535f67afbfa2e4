package executor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"quarterbinary/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPaperExecutorAlwaysSucceeds(t *testing.T) {
	t.Parallel()
	p := NewPaper(testLogger())

	ref, err := p.Buy(context.Background(), types.SideYES, "yes-tok", 0.09, 111.1)
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if ref.ID == "" {
		t.Fatalf("expected non-empty synthetic order ref")
	}

	ref2, err := p.Sell(context.Background(), types.SideYES, "yes-tok", 0.21, 111.1)
	if err != nil {
		t.Fatalf("Sell: %v", err)
	}
	if ref2.ID == ref.ID {
		t.Fatalf("expected distinct order refs across calls")
	}

	if err := p.Cancel(context.Background(), ref); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
}

func TestLiveExecutorDerivesAddressAndSubmits(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/order" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(orderResponse{OrderID: "order-123"})
	}))
	defer srv.Close()

	// A well-formed (but not real-funds) test private key.
	const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	live, err := NewLive(srv.URL, testKey, testLogger())
	if err != nil {
		t.Fatalf("NewLive: %v", err)
	}
	if live.Address().Hex() == "" {
		t.Fatalf("expected derived address")
	}

	ref, err := live.Buy(context.Background(), types.SideYES, "yes-tok", 0.09, 100)
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if ref.ID != "order-123" {
		t.Fatalf("expected order id from venue response, got %s", ref.ID)
	}
}
