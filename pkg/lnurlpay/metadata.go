package lnurlpay

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Metadata returns the canonical LNURL-pay metadata for a recipient: a JSON
// array of (mimeType, text) pairs with text/plain first and text/identifier
// second. The exact bytes are the description-hash preimage on the non-zap
// path, so the serialization must be byte-stable across both protocol
// phases: phase 2 rebuilds this string and any divergence makes wallets
// that verify the hash reject the invoice.
func Metadata(username, hostname string) string {
	pairs := [][]string{
		{"text/plain", fmt.Sprintf("Payment to %s", username)},
		{"text/identifier", fmt.Sprintf("%s@%s", username, hostname)},
	}

	// A plain json.Marshal would escape &, < and > to \u0026 etc., which
	// would change the hash preimage for usernames containing them.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(pairs); err != nil {
		// Encoding a [][]string cannot fail.
		panic(err)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// DescriptionHash returns the hex-encoded SHA-256 digest committed into the
// invoice, binding it to the given preimage.
func DescriptionHash(preimage string) string {
	sum := sha256.Sum256([]byte(preimage))
	return hex.EncodeToString(sum[:])
}
