// ABOUTME: HTTP middleware requiring an ATXP micropayment before a tool call runs
// ABOUTME: Answers 402 with the accepted payment terms when the X-PAYMENT receipt is missing or unusable

package atxp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/2389/agentmcp/internal/metrics"
	"github.com/2389/agentmcp/internal/payment"
)

// PaymentHeader carries the receipt token.
const PaymentHeader = "X-PAYMENT"

// ReceiptHeader echoes the accepted receipt ID on paid responses.
const ReceiptHeader = "X-PAYMENT-RECEIPT"

// Scheme identifies ATXP in payment terms.
const Scheme = "atxp"

const maxBodySize = 1 << 20

// Accept is one payment option offered in a 402 response.
type Accept struct {
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Resource    string `json:"resource"`
	Tool        string `json:"tool"`
}

// PaymentRequired is the 402 response body.
type PaymentRequired struct {
	Error   string   `json:"error"`
	Accepts []Accept `json:"accepts"`
}

// Config configures a Paywall.
type Config struct {
	Destination string
	Network     string
	Verifier    *ReceiptVerifier
	// Settler is optional. Without one receipts are only verified.
	Settler Settler
	Ledger  *Ledger
	// Price defaults to the payment price table.
	Price func(tool string) float64
	// Chargeable reports whether tool must be paid for. Calls naming any
	// other tool pass through unpaid. Nil charges every named tool.
	Chargeable func(tool string) bool
	Logger     *slog.Logger
}

// Paywall guards tool-call handlers behind per-call payment.
type Paywall struct {
	destination string
	network     string
	verifier    *ReceiptVerifier
	settler     Settler
	ledger      *Ledger
	price       func(string) float64
	chargeable  func(string) bool
	logger      *slog.Logger
}

// New creates a Paywall.
func New(cfg Config) (*Paywall, error) {
	if cfg.Destination == "" {
		return nil, errors.New("payment destination is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("receipt verifier is required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("replay ledger is required")
	}

	price := cfg.Price
	if price == nil {
		price = payment.Price
	}
	chargeable := cfg.Chargeable
	if chargeable == nil {
		chargeable = func(string) bool { return true }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Paywall{
		destination: cfg.Destination,
		network:     cfg.Network,
		verifier:    cfg.Verifier,
		settler:     cfg.Settler,
		ledger:      cfg.Ledger,
		price:       price,
		chargeable:  chargeable,
		logger:      logger.With("component", "atxp"),
	}, nil
}

type receiptContextKey struct{}

// ReceiptFromContext returns the receipt that paid for the request, if any.
func ReceiptFromContext(ctx context.Context) (*Receipt, bool) {
	r, ok := ctx.Value(receiptContextKey{}).(*Receipt)
	return r, ok
}

// Wrap returns next guarded by the paywall. Bodies that are not a JSON
// object naming a chargeable tool pass through unpaid so next can answer
// them itself.
func (p *Paywall) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		if len(body) > maxBodySize {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		tool := toolName(body)
		if tool == "" || !p.chargeable(tool) {
			next.ServeHTTP(w, r)
			return
		}

		receipt, err := p.authorize(r.Context(), tool, r.Header.Get(PaymentHeader))
		if err != nil {
			p.logger.Info("payment rejected", "tool", tool, "reason", err)
			p.paymentRequired(w, r, tool, err)
			return
		}

		p.logger.Info("payment accepted",
			"tool", tool,
			"receipt_id", receipt.ID,
			"payer", receipt.Payer,
			"amount", receipt.Amount,
		)
		w.Header().Set(ReceiptHeader, receipt.ID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), receiptContextKey{}, receipt)))
	})
}

// authorize verifies, redeems and settles the receipt for tool.
func (p *Paywall) authorize(ctx context.Context, tool, token string) (*Receipt, error) {
	if token == "" {
		return nil, p.reject("missing", ErrMissingPayment)
	}

	receipt, err := p.verifier.Verify(token)
	if err != nil {
		if errors.Is(err, ErrExpiredReceipt) {
			return nil, p.reject("expired", err)
		}
		return nil, p.reject("invalid", err)
	}

	if receipt.Destination != p.destination {
		return nil, p.reject("mismatch", ErrWrongDestination)
	}
	if receipt.Tool != tool {
		return nil, p.reject("mismatch", ErrWrongTool)
	}
	if price := p.price(tool); receipt.Amount < price {
		return nil, p.reject("insufficient", fmt.Errorf("%w: paid %.3f, price %.3f", ErrInsufficientAmount, receipt.Amount, price))
	}

	if !p.ledger.Redeem(receipt.ID) {
		return nil, p.reject("replayed", ErrReplayedReceipt)
	}

	if p.settler != nil {
		start := time.Now()
		if err := p.settler.Settle(ctx, receipt, token); err != nil {
			// Unsettled receipts may be presented again.
			p.ledger.Forget(receipt.ID)
			p.logger.Warn("settlement failed", "receipt_id", receipt.ID, "error", err, "elapsed", time.Since(start))
			if !errors.Is(err, ErrSettlement) {
				err = fmt.Errorf("%w: %v", ErrSettlement, err)
			}
			return nil, p.reject("settle_failed", err)
		}
	}

	metrics.ATXPReceipts.WithLabelValues("accepted").Inc()
	return receipt, nil
}

func (p *Paywall) reject(result string, err error) error {
	metrics.ATXPReceipts.WithLabelValues(result).Inc()
	return err
}

// Terms returns the payment option for tool at resource.
func (p *Paywall) Terms(tool, resource string) Accept {
	return Accept{
		Scheme:      Scheme,
		Network:     p.network,
		Destination: p.destination,
		Amount:      fmt.Sprintf("%.3f", p.price(tool)),
		Currency:    "USD",
		Resource:    resource,
		Tool:        tool,
	}
}

func (p *Paywall) paymentRequired(w http.ResponseWriter, r *http.Request, tool string, err error) {
	resp := PaymentRequired{
		Error:   paymentMessage(err),
		Accepts: []Accept{p.Terms(tool, r.URL.Path)},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		p.logger.Warn("failed to encode 402 response", "error", err)
	}
}

// paymentMessage keeps verifier internals out of client responses.
func paymentMessage(err error) string {
	for _, known := range []error{
		ErrMissingPayment,
		ErrExpiredReceipt,
		ErrWrongDestination,
		ErrWrongTool,
		ErrInsufficientAmount,
		ErrReplayedReceipt,
		ErrSettlement,
	} {
		if errors.Is(err, known) {
			return "Payment required: " + known.Error()
		}
	}
	return "Payment required: " + ErrInvalidReceipt.Error()
}

// toolName reads the tool from a call body, preferring "tool" over "name".
func toolName(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, key := range []string{"tool", "name"} {
		if v := gjson.GetBytes(body, key); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
