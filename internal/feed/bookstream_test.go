package feed

import (
	"io"
	"log/slog"
	"testing"
)

func newTestBookStream() *BookStream {
	return NewBookStream("wss://example.invalid/ws", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBookStreamDispatchUpdatesQuote(t *testing.T) {
	b := newTestBookStream()

	if _, _, ok := b.BestBidAsk("tok-yes"); ok {
		t.Fatalf("expected no quote before any event")
	}

	b.dispatch([]byte(`{"event_type":"book","asset_id":"tok-yes","bids":[{"price":"0.41"}],"asks":[{"price":"0.43"}]}`))

	bid, ask, ok := b.BestBidAsk("tok-yes")
	if !ok {
		t.Fatalf("expected quote after book event")
	}
	if bid != 0.41 || ask != 0.43 {
		t.Fatalf("bid/ask = %v/%v, want 0.41/0.43", bid, ask)
	}
}

func TestBookStreamIgnoresMalformedEvents(t *testing.T) {
	b := newTestBookStream()

	b.dispatch([]byte(`not json`))
	b.dispatch([]byte(`{"event_type":"price_change","asset_id":"tok-yes"}`))
	b.dispatch([]byte(`{"event_type":"book","asset_id":"tok-yes","bids":[],"asks":[]}`))

	if _, _, ok := b.BestBidAsk("tok-yes"); ok {
		t.Fatalf("expected no quote from malformed/irrelevant events")
	}
}

func TestBookStreamBestBidAskEmptyTokenID(t *testing.T) {
	b := newTestBookStream()
	if _, _, ok := b.BestBidAsk(""); ok {
		t.Fatalf("expected false for empty token id")
	}
}
