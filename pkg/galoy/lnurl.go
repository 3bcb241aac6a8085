package galoy

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/galoymoney/lnurlp-server/internal/metrics"
	"github.com/galoymoney/lnurlp-server/pkg/lnurlpay"
)

// Resolver adapts the Client to the negotiator's WalletResolver capability.
// Any transport or directory error, and any response without a wallet id,
// collapses to lnurlpay.ErrWalletNotFound; the causes are only told apart
// in logs and metrics.
type Resolver struct {
	client   *Client
	currency WalletCurrency
	logger   *zap.Logger
}

// NewResolver creates a wallet resolver for a fixed settlement currency.
func NewResolver(client *Client, currency WalletCurrency, logger *zap.Logger) *Resolver {
	return &Resolver{
		client:   client,
		currency: currency,
		logger:   logger,
	}
}

// ResolveDefaultWallet resolves the username's default wallet, forwarding
// the caller identity so the directory's abuse protection sees the original
// client rather than this server.
func (r *Resolver) ResolveDefaultWallet(ctx context.Context, username string, caller lnurlpay.CallerInfo) (lnurlpay.WalletRef, error) {
	ctx = WithClientIP(ctx, ClientIP{
		RealIP:       caller.RealIP,
		ForwardedFor: caller.ForwardedFor,
	})

	wallet, err := r.client.AccountDefaultWallet(ctx, username, r.currency)
	if err != nil {
		metrics.WalletResolutions.WithLabelValues("error").Inc()
		r.logger.Warn("Account directory lookup failed",
			zap.String("username", username),
			zap.Error(err),
		)
		return lnurlpay.WalletRef{}, lnurlpay.ErrWalletNotFound
	}
	if wallet == nil || wallet.ID == "" {
		metrics.WalletResolutions.WithLabelValues("not_found").Inc()
		r.logger.Info("No default wallet for username",
			zap.String("username", username),
			zap.String("currency", string(r.currency)),
		)
		return lnurlpay.WalletRef{}, lnurlpay.ErrWalletNotFound
	}

	metrics.WalletResolutions.WithLabelValues("ok").Inc()
	return lnurlpay.WalletRef{WalletID: wallet.ID}, nil
}

// Issuer adapts the Client to the negotiator's InvoiceIssuer capability.
type Issuer struct {
	client *Client
}

// NewIssuer creates an invoice issuer backed by the wallet backend.
func NewIssuer(client *Client) *Issuer {
	return &Issuer{client: client}
}

// CreateInvoice requests an invoice for the recipient wallet. Backend
// validation rejections surface as an issuance-rejected protocol error
// carrying the first upstream message; transport failures pass through for
// the negotiator to classify as unexpected.
func (i *Issuer) CreateInvoice(ctx context.Context, walletID string, amountSats int64, descriptionHash string) (*lnurlpay.IssuedInvoice, error) {
	invoice, err := i.client.LnInvoiceCreateOnBehalfOfRecipient(ctx, walletID, amountSats, descriptionHash)
	if err != nil {
		var invErr *InvoiceError
		if errors.As(err, &invErr) {
			return nil, lnurlpay.IssuanceRejectedError(invErr.FirstMessage(), err)
		}
		return nil, fmt.Errorf("invoice creation request failed: %w", err)
	}

	return &lnurlpay.IssuedInvoice{
		PaymentRequest: invoice.PaymentRequest,
		PaymentHash:    invoice.PaymentHash,
	}, nil
}
