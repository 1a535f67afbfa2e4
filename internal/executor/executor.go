// Package executor implements the OrderExecutor capability: placing buy
// and sell intents on a venue and returning an opaque order reference.
// The core only ever talks to this interface; venue-specific signing and
// nonce handling are out of scope and live behind LiveExecutor's minimal
// stub.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"quarterbinary/pkg/types"
)

// OrderRef is the opaque reference returned by a successful order call.
type OrderRef struct {
	ID        string
	Timestamp time.Time
}

// OrderExecutor places and cancels orders on a venue. Implementations may
// be synchronous (paper) or asynchronous over HTTP (live).
type OrderExecutor interface {
	Buy(ctx context.Context, side types.Side, tokenID string, limitPrice, size float64) (OrderRef, error)
	Sell(ctx context.Context, side types.Side, tokenID string, limitPrice, size float64) (OrderRef, error)
	Cancel(ctx context.Context, ref OrderRef) error
}

// PaperExecutor always succeeds and returns a synthetic reference. P&L
// accounting happens in pkg/types.Trade, so the paper adapter only needs
// to hand back a reference.
type PaperExecutor struct {
	mu     sync.Mutex
	logger *slog.Logger
	fills  int
}

// NewPaper builds a PaperExecutor.
func NewPaper(logger *slog.Logger) *PaperExecutor {
	return &PaperExecutor{logger: logger.With("component", "executor.paper")}
}

func (p *PaperExecutor) Buy(ctx context.Context, side types.Side, tokenID string, limitPrice, size float64) (OrderRef, error) {
	return p.synthesize("buy", side, tokenID, limitPrice, size)
}

func (p *PaperExecutor) Sell(ctx context.Context, side types.Side, tokenID string, limitPrice, size float64) (OrderRef, error) {
	return p.synthesize("sell", side, tokenID, limitPrice, size)
}

func (p *PaperExecutor) Cancel(ctx context.Context, ref OrderRef) error {
	p.logger.Debug("paper cancel", "order_id", ref.ID)
	return nil
}

func (p *PaperExecutor) synthesize(action string, side types.Side, tokenID string, limitPrice, size float64) (OrderRef, error) {
	p.mu.Lock()
	p.fills++
	p.mu.Unlock()

	ref := OrderRef{ID: "paper-" + uuid.NewString(), Timestamp: time.Now()}
	p.logger.Debug("paper fill", "action", action, "side", side, "token_id", tokenID,
		"limit_price", limitPrice, "size", size, "order_id", ref.ID)
	return ref, nil
}

// LiveExecutor places real orders against a venue's CLOB REST API. Order
// signing (EIP-712, nonces) is explicitly out of scope for the core — this
// stub only derives and exposes the signer address, and submits
// pre-signed-equivalent limit order requests to a venue endpoint that is
// assumed to handle authentication via an out-of-core sidecar.
type LiveExecutor struct {
	http    *resty.Client
	address common.Address
	logger  *slog.Logger
}

// NewLive builds a LiveExecutor. privateKeyHex is used only to derive the
// signer address surfaced in logs and order payloads; no signing of
// typed data happens in the core.
func NewLive(baseURL, privateKeyHex string, logger *slog.Logger) (*LiveExecutor, error) {
	key, err := crypto.HexToECDSA(trimHexPrefix(privateKeyHex))
	if err != nil {
		return nil, fmt.Errorf("executor: parse private key: %w", err)
	}

	address := crypto.PubkeyToAddress(key.PublicKey)

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(1)

	return &LiveExecutor{
		http:    client,
		address: address,
		logger:  logger.With("component", "executor.live", "address", address.Hex()),
	}, nil
}

// Address returns the signer's derived address.
func (l *LiveExecutor) Address() common.Address { return l.address }

func (l *LiveExecutor) Buy(ctx context.Context, side types.Side, tokenID string, limitPrice, size float64) (OrderRef, error) {
	return l.submit(ctx, "BUY", tokenID, limitPrice, size)
}

func (l *LiveExecutor) Sell(ctx context.Context, side types.Side, tokenID string, limitPrice, size float64) (OrderRef, error) {
	return l.submit(ctx, "SELL", tokenID, limitPrice, size)
}

func (l *LiveExecutor) Cancel(ctx context.Context, ref OrderRef) error {
	resp, err := l.http.R().SetContext(ctx).Delete("/order/" + ref.ID)
	if err != nil {
		return fmt.Errorf("executor: cancel %s: %w", ref.ID, err)
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("executor: cancel %s: venue status %d", ref.ID, resp.StatusCode())
	}
	return nil
}

type orderRequest struct {
	Maker   string  `json:"maker"`
	TokenID string  `json:"token_id"`
	Side    string  `json:"side"`
	Price   float64 `json:"price"`
	Size    float64 `json:"size"`
}

type orderResponse struct {
	OrderID string `json:"orderID"`
}

func (l *LiveExecutor) submit(ctx context.Context, side, tokenID string, limitPrice, size float64) (OrderRef, error) {
	var out orderResponse
	resp, err := l.http.R().
		SetContext(ctx).
		SetBody(orderRequest{Maker: l.address.Hex(), TokenID: tokenID, Side: side, Price: limitPrice, Size: size}).
		SetResult(&out).
		Post("/order")
	if err != nil {
		return OrderRef{}, fmt.Errorf("executor: submit %s order: %w", side, err)
	}
	if resp.StatusCode() >= 300 {
		return OrderRef{}, fmt.Errorf("executor: submit %s order: venue status %d", side, resp.StatusCode())
	}

	l.logger.Info("order submitted", "side", side, "token_id", tokenID, "price", limitPrice, "size", size, "order_id", out.OrderID)
	return OrderRef{ID: out.OrderID, Timestamp: time.Now()}, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[:2] == "0x" {
		return s[2:]
	}
	return s
}
