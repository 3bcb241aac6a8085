package galoy

import "strings"

// Wallet is a wallet record from the account directory.
type Wallet struct {
	ID       string
	Currency WalletCurrency
}

// Invoice is a Lightning invoice issued by the backend on behalf of a
// recipient wallet.
type Invoice struct {
	PaymentRequest string
	PaymentHash    string
}

// InvoiceError carries the validation error list the backend returned from
// invoice creation. An empty Messages slice means the response carried
// neither an invoice nor an explanation.
type InvoiceError struct {
	Messages []string
}

func (e *InvoiceError) Error() string {
	if len(e.Messages) == 0 {
		return "invoice creation returned no invoice"
	}
	return "invoice creation rejected: " + strings.Join(e.Messages, "; ")
}

// FirstMessage returns the first upstream error message, or the empty string.
func (e *InvoiceError) FirstMessage() string {
	if len(e.Messages) == 0 {
		return ""
	}
	return e.Messages[0]
}
