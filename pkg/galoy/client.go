// Package galoy implements the client for the wallet backend GraphQL API.
// The backend plays two collaborator roles for the LNURL-pay server: the
// account directory (default wallet lookup by username) and the invoice
// issuance service (invoice creation on behalf of a recipient wallet).
package galoy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// WalletCurrency is the settlement currency of a wallet in the account
// directory.
type WalletCurrency string

// CurrencyBTC is the only settlement currency this deployment resolves
// default wallets for.
const CurrencyBTC WalletCurrency = "BTC"

const (
	accountDefaultWalletQuery = `query accountDefaultWallet($username: Username!, $walletCurrency: WalletCurrency!) {
  accountDefaultWallet(username: $username, walletCurrency: $walletCurrency) {
    id
    walletCurrency
  }
}`

	lnInvoiceCreateOnBehalfOfRecipientMutation = `mutation lnInvoiceCreateOnBehalfOfRecipient($walletId: WalletId!, $amount: SatAmount!, $descriptionHash: Hex32Bytes!) {
  mutationData: lnInvoiceCreateOnBehalfOfRecipient(
    input: {recipientWalletId: $walletId, amount: $amount, descriptionHash: $descriptionHash}
  ) {
    errors {
      message
    }
    invoice {
      paymentRequest
      paymentHash
    }
  }
}`
)

// Client talks to the wallet backend over GraphQL-on-HTTP. It holds a single
// http.Client and is safe for concurrent use by many in-flight requests.
type Client struct {
	cfg        *Config
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a new wallet backend client.
func New(cfg *Config, opts ...Option) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	s := applyOptions(opts)

	httpClient := s.httpClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     s.logger,
	}, nil
}

// AccountDefaultWallet resolves the default wallet of a username for the
// given settlement currency. A nil wallet with a nil error means the
// directory knows no such account.
func (c *Client) AccountDefaultWallet(ctx context.Context, username string, currency WalletCurrency) (*Wallet, error) {
	var data struct {
		AccountDefaultWallet *struct {
			ID             string `json:"id"`
			WalletCurrency string `json:"walletCurrency"`
		} `json:"accountDefaultWallet"`
	}

	err := c.do(ctx, accountDefaultWalletQuery, map[string]any{
		"username":       username,
		"walletCurrency": string(currency),
	}, &data)
	if err != nil {
		return nil, err
	}

	if data.AccountDefaultWallet == nil {
		return nil, nil
	}
	return &Wallet{
		ID:       data.AccountDefaultWallet.ID,
		Currency: WalletCurrency(data.AccountDefaultWallet.WalletCurrency),
	}, nil
}

// LnInvoiceCreateOnBehalfOfRecipient asks the backend to create a Lightning
// invoice for the recipient wallet, committing to the given description
// hash. Validation failures reported by the backend, and responses carrying
// no invoice, are returned as *InvoiceError.
func (c *Client) LnInvoiceCreateOnBehalfOfRecipient(ctx context.Context, walletID string, amountSats int64, descriptionHash string) (*Invoice, error) {
	var data struct {
		MutationData *struct {
			Errors []struct {
				Message string `json:"message"`
			} `json:"errors"`
			Invoice *struct {
				PaymentRequest string `json:"paymentRequest"`
				PaymentHash    string `json:"paymentHash"`
			} `json:"invoice"`
		} `json:"mutationData"`
	}

	err := c.do(ctx, lnInvoiceCreateOnBehalfOfRecipientMutation, map[string]any{
		"walletId":        walletID,
		"amount":          amountSats,
		"descriptionHash": descriptionHash,
	}, &data)
	if err != nil {
		return nil, err
	}

	if data.MutationData == nil {
		return nil, &InvoiceError{}
	}
	if len(data.MutationData.Errors) > 0 || data.MutationData.Invoice == nil {
		invErr := &InvoiceError{}
		for _, e := range data.MutationData.Errors {
			invErr.Messages = append(invErr.Messages, e.Message)
		}
		return nil, invErr
	}

	return &Invoice{
		PaymentRequest: data.MutationData.Invoice.PaymentRequest,
		PaymentHash:    data.MutationData.Invoice.PaymentHash,
	}, nil
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

// do executes a single GraphQL operation and decodes its data object into
// out. Client-identifying headers stored in ctx via WithClientIP are
// forwarded so that the backend's rate limiting sees the original caller.
func (c *Client) do(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if caller, ok := clientIPFromContext(ctx); ok {
		if caller.RealIP != "" {
			req.Header.Set(headerRealIP, caller.RealIP)
		}
		if caller.ForwardedFor != "" {
			req.Header.Set(headerForwardedFor, caller.ForwardedFor)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("GraphQL request failed",
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return fmt.Errorf("graphql request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("GraphQL request completed",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		// Drain a little for the error message; GraphQL errors normally
		// come back as 200 with an errors list.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("graphql endpoint returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var gqlResp graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gqlResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		return fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}

	if out != nil && len(gqlResp.Data) > 0 {
		if err := json.Unmarshal(gqlResp.Data, out); err != nil {
			return fmt.Errorf("failed to decode data: %w", err)
		}
	}
	return nil
}
