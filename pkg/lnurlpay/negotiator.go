// Package lnurlpay implements the LNURL-pay negotiation state machine:
// phase 1 returns payment metadata and limits for a username, phase 2
// validates an amount, binds a description hash and requests a Lightning
// invoice from the issuance collaborator.
package lnurlpay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"

	"github.com/galoymoney/lnurlp-server/internal/metrics"
	"github.com/galoymoney/lnurlp-server/pkg/zapstore"
)

const payRequestTag = "payRequest"

// zapNoteWriteTimeout bounds the background zap note write, which is
// detached from the request lifetime.
const zapNoteWriteTimeout = 5 * time.Second

// ErrWalletNotFound is the single outcome a WalletResolver reports for any
// failed resolution, whether the user is unknown or the directory is
// unreachable. The two are only distinguished in logs.
var ErrWalletNotFound = errors.New("no default wallet for username")

// WalletRef is a resolved default wallet. Resolved fresh per request, never
// cached here.
type WalletRef struct {
	WalletID string
}

// IssuedInvoice is the invoice the issuance collaborator created.
type IssuedInvoice struct {
	PaymentRequest string
	PaymentHash    string
}

// CallerInfo carries the client-identifying headers of the incoming request
// so resolution can forward them to the directory.
type CallerInfo struct {
	RealIP       string
	ForwardedFor string
}

// WalletResolver resolves a username to its default wallet.
//
// Implementations collapse every failure mode to ErrWalletNotFound.
type WalletResolver interface {
	ResolveDefaultWallet(ctx context.Context, username string, caller CallerInfo) (WalletRef, error)
}

// InvoiceIssuer creates an invoice on behalf of a recipient wallet.
// Validation rejections come back as a ProtocolError with
// CategoryIssuanceRejected; anything else is treated as unexpected.
type InvoiceIssuer interface {
	CreateInvoice(ctx context.Context, walletID string, amountSats int64, descriptionHash string) (*IssuedInvoice, error)
}

// PayRequest is a phase-1 request.
type PayRequest struct {
	Username string
	Hostname string
	// Callback is the URL the payer wallet must re-invoke with an amount,
	// already shaped for the deployment variant by the HTTP layer.
	Callback string
	Caller   CallerInfo
}

// InvoiceRequest is a phase-2 request. Amount and Nostr hold the raw query
// values so the negotiator can reject repeated parameters.
type InvoiceRequest struct {
	Username string
	Hostname string
	Amount   []string
	Nostr    []string
	Caller   CallerInfo
}

// PayParams is the phase-1 response body.
type PayParams struct {
	Callback        string `json:"callback"`
	MinSendable     int64  `json:"minSendable"`
	MaxSendable     int64  `json:"maxSendable"`
	EncodedMetadata string `json:"metadata"`
	Tag             string `json:"tag"`
	AllowsNostr     bool   `json:"allowsNostr,omitempty"`
	NostrPubkey     string `json:"nostrPubkey,omitempty"`
}

// InvoiceResponse is the phase-2 success body. Routes is always present and
// always empty; this protocol surface carries no route hints.
type InvoiceResponse struct {
	PR     string     `json:"pr"`
	Routes []struct{} `json:"routes"`
}

// Config contains the negotiator's protocol settings. A non-empty
// NostrPubkey enables zap support.
type Config struct {
	MinSendable int64
	MaxSendable int64
	NostrPubkey string
}

func (c Config) nostrEnabled() bool {
	return c.NostrPubkey != ""
}

// Negotiator defines the two phases of the LNURL-pay exchange.
type Negotiator interface {
	PayParams(ctx context.Context, req *PayRequest) (*PayParams, error)
	Invoice(ctx context.Context, req *InvoiceRequest) (*InvoiceResponse, error)
}

type negotiator struct {
	resolver WalletResolver
	issuer   InvoiceIssuer
	notes    zapstore.Store // nil when zap support is disabled
	cfg      Config
	logger   *zap.Logger
}

// New creates the negotiator. notes may be nil when zap support is
// disabled; it is only written to when cfg.NostrPubkey is set and the
// client supplied a zap request.
func New(resolver WalletResolver, issuer InvoiceIssuer, notes zapstore.Store, cfg Config, logger *zap.Logger) Negotiator {
	return &negotiator{
		resolver: resolver,
		issuer:   issuer,
		notes:    notes,
		cfg:      cfg,
		logger:   logger,
	}
}

// PayParams handles phase 1: it proves the recipient exists and returns the
// callback, limits and canonical metadata the payer wallet needs.
func (n *negotiator) PayParams(ctx context.Context, req *PayRequest) (*PayParams, error) {
	if _, err := n.resolver.ResolveDefaultWallet(ctx, req.Username, req.Caller); err != nil {
		return nil, UserNotFoundError(req.Username, err)
	}

	params := &PayParams{
		Callback:        req.Callback,
		MinSendable:     n.cfg.MinSendable,
		MaxSendable:     n.cfg.MaxSendable,
		EncodedMetadata: Metadata(req.Username, req.Hostname),
		Tag:             payRequestTag,
	}
	if n.cfg.nostrEnabled() {
		params.AllowsNostr = true
		params.NostrPubkey = n.cfg.NostrPubkey
	}
	return params, nil
}

// Invoice handles phase 2: amount validation, preimage selection, invoice
// issuance, and the fire-and-forget zap note write.
func (n *negotiator) Invoice(ctx context.Context, req *InvoiceRequest) (*InvoiceResponse, error) {
	wallet, err := n.resolver.ResolveDefaultWallet(ctx, req.Username, req.Caller)
	if err != nil {
		return nil, UserNotFoundError(req.Username, err)
	}

	// Repeated amount or nostr parameters are malformed input, not a
	// retryable condition.
	if len(req.Amount) > 1 || len(req.Nostr) > 1 {
		return nil, InvalidRequestError(errors.New("repeated query parameter"))
	}

	amountSats, err := parseAmountSats(first(req.Amount))
	if err != nil {
		return nil, err
	}

	rawNostr := first(req.Nostr)
	zapMode := n.cfg.nostrEnabled() && rawNostr != ""

	// Exactly one preimage is hashed per request: the raw zap request when
	// zap mode is active, the canonical metadata otherwise.
	var descriptionHash string
	if zapMode {
		descriptionHash = DescriptionHash(rawNostr)
	} else {
		descriptionHash = DescriptionHash(Metadata(req.Username, req.Hostname))
	}

	start := time.Now()
	invoice, err := n.issuer.CreateInvoice(ctx, wallet.WalletID, amountSats, descriptionHash)
	metrics.InvoiceCreateDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		var protoErr *ProtocolError
		if errors.As(err, &protoErr) {
			return nil, err
		}
		return nil, UnexpectedError(err)
	}

	// The invoice is already committed to the payer; the note write must
	// not delay or fail the response.
	if zapMode && n.notes != nil {
		n.storeZapNote(invoice.PaymentHash, rawNostr)
	}

	return &InvoiceResponse{
		PR:     invoice.PaymentRequest,
		Routes: []struct{}{},
	}, nil
}

// parseAmountSats demotes a raw millisatoshi query value to whole satoshis.
// The wire unit is nominally millisatoshi but only whole-satoshi amounts
// are accepted: silent rounding would charge the payer a different amount
// than they authorized.
func parseAmountSats(raw string) (int64, error) {
	msats, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, MalformedAmountError(fmt.Errorf("amount %q is not an integer millisatoshi value", raw))
	}
	sats := msats / 1000
	if strconv.FormatInt(sats*1000, 10) != raw {
		return 0, MalformedAmountError(fmt.Errorf("amount %q is not a whole number of sats", raw))
	}
	return sats, nil
}

// storeZapNote dispatches the ephemeral write as an un-joined background
// operation with its own deadline. Failures are logged, never surfaced.
func (n *negotiator) storeZapNote(paymentHash, raw string) {
	fields := []zap.Field{zap.String("payment_hash", paymentHash)}
	// Parsed only to enrich the log line; the raw string is what gets
	// hashed and stored, and a payload go-nostr cannot parse is stored
	// all the same.
	var event nostr.Event
	if err := json.Unmarshal([]byte(raw), &event); err == nil {
		fields = append(fields, zap.String("zap_event_id", event.ID), zap.Int("zap_event_kind", event.Kind))
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), zapNoteWriteTimeout)
		defer cancel()

		if err := n.notes.Save(ctx, paymentHash, raw); err != nil {
			metrics.ZapNotesStored.WithLabelValues("error").Inc()
			n.logger.Error("Failed to store zap request", append(fields, zap.Error(err))...)
			return
		}
		metrics.ZapNotesStored.WithLabelValues("ok").Inc()
		n.logger.Debug("Stored zap request", fields...)
	}()
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
