package lnurlpay

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// logNegotiator wraps a Negotiator with logging of both protocol phases.
type logNegotiator struct {
	next   Negotiator
	logger *zap.Logger
}

// NewLog creates a logging decorator for the Negotiator.
func NewLog(next Negotiator, logger *zap.Logger) Negotiator {
	return &logNegotiator{
		next:   next,
		logger: logger,
	}
}

func (ln *logNegotiator) PayParams(ctx context.Context, req *PayRequest) (params *PayParams, err error) {
	start := time.Now()

	defer func() {
		duration := time.Since(start)
		if err != nil {
			ln.logger.Warn("PayParams failed",
				zap.String("username", req.Username),
				zap.Stringer("category", CategoryOf(err)),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
			return
		}
		ln.logger.Info("PayParams served",
			zap.String("username", req.Username),
			zap.String("hostname", req.Hostname),
			zap.Bool("allows_nostr", params.AllowsNostr),
			zap.Duration("duration", duration),
		)
	}()

	return ln.next.PayParams(ctx, req)
}

func (ln *logNegotiator) Invoice(ctx context.Context, req *InvoiceRequest) (resp *InvoiceResponse, err error) {
	start := time.Now()

	defer func() {
		duration := time.Since(start)
		if err != nil {
			ln.logger.Warn("Invoice negotiation failed",
				zap.String("username", req.Username),
				zap.Stringer("category", CategoryOf(err)),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
			return
		}
		ln.logger.Info("Invoice issued",
			zap.String("username", req.Username),
			zap.Bool("zap", len(req.Nostr) == 1 && req.Nostr[0] != ""),
			zap.Duration("duration", duration),
		)
	}()

	return ln.next.Invoice(ctx, req)
}
