package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	bookPingInterval     = 50 * time.Second
	bookReadTimeout      = 90 * time.Second
	bookMaxReconnectWait = 30 * time.Second
	bookWriteTimeout     = 10 * time.Second
)

// bookLevel is one side of a top-of-book snapshot as the venue reports it.
type bookLevel struct {
	Price string `json:"price"`
}

// bookEvent is the subset of the venue's public market-channel payload
// BookStream understands: a full top-of-book snapshot for one token.
type bookEvent struct {
	EventType string      `json:"event_type"`
	AssetID   string      `json:"asset_id"`
	Bids      []bookLevel `json:"bids"`
	Asks      []bookLevel `json:"asks"`
}

// BookStream is an optional supplementary freshness source: a websocket
// connection to the venue's public market channel that keeps a live
// bid/ask mirror per token, filling the gap between the feed's polling
// ticks. Only top-of-book is tracked; the decision loop never needs
// depth beyond the best level.
type BookStream struct {
	url    string
	logger *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	subMu      sync.Mutex
	subscribed map[string]bool

	quoteMu sync.RWMutex
	bids    map[string]float64
	asks    map[string]float64
}

// NewBookStream builds a BookStream pointed at the venue's public market
// websocket channel. Run must be called to start the connection loop.
func NewBookStream(wsURL string, logger *slog.Logger) *BookStream {
	return &BookStream{
		url:        wsURL,
		logger:     logger.With("component", "bookstream"),
		subscribed: make(map[string]bool),
		bids:       make(map[string]float64),
		asks:       make(map[string]float64),
	}
}

// BestBidAsk returns the freshest known bid/ask for a token, if any has
// arrived since the stream connected.
func (b *BookStream) BestBidAsk(tokenID string) (bid, ask float64, ok bool) {
	if tokenID == "" {
		return 0, 0, false
	}
	b.quoteMu.RLock()
	defer b.quoteMu.RUnlock()
	bid, bidOK := b.bids[tokenID]
	ask, askOK := b.asks[tokenID]
	return bid, ask, bidOK && askOK
}

// Subscribe adds token ids to the live subscription, re-sending on the
// current connection and replaying on every future reconnect.
func (b *BookStream) Subscribe(ctx context.Context, tokenIDs []string) error {
	b.subMu.Lock()
	for _, id := range tokenIDs {
		if id != "" {
			b.subscribed[id] = true
		}
	}
	b.subMu.Unlock()
	return b.sendSubscription()
}

// Run connects and maintains the websocket connection with exponential
// backoff (1s doubling to 30s). Blocks until ctx is cancelled.
func (b *BookStream) Run(ctx context.Context) {
	backoff := time.Second

	for {
		err := b.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}

		b.logger.Warn("book stream disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > bookMaxReconnectWait {
			backoff = bookMaxReconnectWait
		}
	}
}

func (b *BookStream) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	b.connMu.Lock()
	b.conn = conn
	b.connMu.Unlock()

	defer func() {
		b.connMu.Lock()
		conn.Close()
		b.conn = nil
		b.connMu.Unlock()

		// Drop streamed quotes so polled values take over until the next
		// connection delivers fresh snapshots.
		b.quoteMu.Lock()
		b.bids = make(map[string]float64)
		b.asks = make(map[string]float64)
		b.quoteMu.Unlock()
	}()

	if err := b.sendSubscription(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	b.logger.Info("book stream connected")

	pingCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go b.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(bookReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		b.dispatch(msg)
	}
}

func (b *BookStream) sendSubscription() error {
	b.subMu.Lock()
	ids := make([]string, 0, len(b.subscribed))
	for id := range b.subscribed {
		ids = append(ids, id)
	}
	b.subMu.Unlock()
	if len(ids) == 0 {
		return nil
	}

	msg := struct {
		Type     string   `json:"type"`
		AssetIDs []string `json:"assets_ids"`
	}{Type: "market", AssetIDs: ids}
	return b.writeJSON(msg)
}

func (b *BookStream) dispatch(data []byte) {
	var evt bookEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return
	}
	if evt.EventType != "book" || evt.AssetID == "" {
		return
	}
	if len(evt.Bids) == 0 || len(evt.Asks) == 0 {
		return
	}
	bid, bidErr := strconv.ParseFloat(evt.Bids[0].Price, 64)
	ask, askErr := strconv.ParseFloat(evt.Asks[0].Price, 64)
	if bidErr != nil || askErr != nil {
		return
	}

	b.quoteMu.Lock()
	b.bids[evt.AssetID] = bid
	b.asks[evt.AssetID] = ask
	b.quoteMu.Unlock()
}

func (b *BookStream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(bookPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.writeMessage(websocket.TextMessage, []byte("PING")); err != nil {
				b.logger.Warn("book stream ping failed", "error", err)
				return
			}
		}
	}
}

func (b *BookStream) writeJSON(v any) error {
	b.connMu.Lock()
	defer b.connMu.Unlock()
	if b.conn == nil {
		return fmt.Errorf("book stream: not connected")
	}
	b.conn.SetWriteDeadline(time.Now().Add(bookWriteTimeout))
	return b.conn.WriteJSON(v)
}

func (b *BookStream) writeMessage(msgType int, data []byte) error {
	b.connMu.Lock()
	defer b.connMu.Unlock()
	if b.conn == nil {
		return fmt.Errorf("book stream: not connected")
	}
	b.conn.SetWriteDeadline(time.Now().Add(bookWriteTimeout))
	return b.conn.WriteMessage(msgType, data)
}
