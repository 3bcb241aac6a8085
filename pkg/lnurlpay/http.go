package lnurlpay

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/fiatjaf/go-lnurl"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/galoymoney/lnurlp-server/internal/metrics"
	"github.com/galoymoney/lnurlp-server/pkg/config"
)

const (
	phaseParams  = "params"
	phaseInvoice = "invoice"
)

// HTTP exposes the negotiator over the LNURL-pay endpoint. Protocol
// failures are always HTTP 200 with {"status":"ERROR","reason":…}; LNURL
// clients distinguish outcomes by payload shape, not status code.
type HTTP struct {
	negotiator Negotiator
	variant    config.CallbackVariant
	logger     *zap.Logger
}

// RegisterRoutes mounts the LNURL-pay routes for the configured callback
// variant on the given chi router, under both /lnurlp and the
// /.well-known/lnurlp path that Lightning addresses resolve to.
func RegisterRoutes(r chi.Router, n Negotiator, variant config.CallbackVariant, logger *zap.Logger) {
	h := &HTTP{
		negotiator: n,
		variant:    variant,
		logger:     logger,
	}

	for _, prefix := range []string{"/lnurlp", "/.well-known/lnurlp"} {
		r.Route(prefix, func(r chi.Router) {
			r.Get("/{username}", h.handlePay)
			if variant == config.VariantCallback {
				r.Get("/{username}/callback", h.handleInvoice)
			}
		})
	}
}

// handlePay serves GET /lnurlp/{username}. In the combined variant it
// dispatches to phase 2 when an amount parameter is present; in the
// callback variant it always serves phase 1.
func (h *HTTP) handlePay(w http.ResponseWriter, r *http.Request) {
	if h.variant == config.VariantCombined && hasAmount(r.URL.Query()) {
		h.handleInvoice(w, r)
		return
	}

	req := &PayRequest{
		Username: pathUsername(r),
		Hostname: requestHostname(r),
		Callback: callbackURL(r, h.variant),
		Caller:   callerInfo(r),
	}

	params, err := h.negotiator.PayParams(r.Context(), req)
	if err != nil {
		h.writeError(w, phaseParams, err)
		return
	}
	metrics.RequestsTotal.WithLabelValues(phaseParams, "ok").Inc()
	h.writeJSON(w, params)
}

// handleInvoice serves phase 2. Whatever goes wrong, the request always
// terminates with exactly one response body.
func (h *HTTP) handleInvoice(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("Panic during invoice negotiation", zap.Any("panic", rec))
			h.writeError(w, phaseInvoice, UnexpectedError(fmt.Errorf("%v", rec)))
		}
	}()

	query := r.URL.Query()
	req := &InvoiceRequest{
		Username: pathUsername(r),
		Hostname: requestHostname(r),
		Amount:   query["amount"],
		Nostr:    query["nostr"],
		Caller:   callerInfo(r),
	}

	resp, err := h.negotiator.Invoice(r.Context(), req)
	if err != nil {
		h.writeError(w, phaseInvoice, err)
		return
	}
	metrics.RequestsTotal.WithLabelValues(phaseInvoice, "ok").Inc()
	h.writeJSON(w, resp)
}

func (h *HTTP) writeError(w http.ResponseWriter, phase string, err error) {
	category := CategoryOf(err)
	metrics.RequestsTotal.WithLabelValues(phase, category.String()).Inc()
	h.logger.Info("LNURL-pay request rejected",
		zap.String("phase", phase),
		zap.Stringer("category", category),
		zap.Error(err),
	)
	h.writeJSON(w, lnurl.ErrorResponse(Reason(err)))
}

// writeJSON writes the body with HTML escaping off, so the canonical
// metadata string crosses the wire byte-identical to the hash preimage.
func (h *HTTP) writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// hasAmount reports whether the request is a phase-2 call. A single empty
// amount value still means phase 1; a repeated amount parameter must reach
// the negotiator so it can be rejected as malformed.
func hasAmount(query url.Values) bool {
	values := query["amount"]
	if len(values) > 1 {
		return true
	}
	return len(values) == 1 && values[0] != ""
}

// pathUsername returns the username path segment with percent-encoding
// undone. chi matches on the escaped path, so the raw param still carries
// the encoding.
func pathUsername(r *http.Request) string {
	username := chi.URLParam(r, "username")
	if decoded, err := url.PathUnescape(username); err == nil {
		return decoded
	}
	return username
}

func callerInfo(r *http.Request) CallerInfo {
	return CallerInfo{
		RealIP:       r.Header.Get("x-real-ip"),
		ForwardedFor: r.Header.Get("x-forwarded-for"),
	}
}

// requestURL reconstructs the externally visible URL of the request,
// honoring forwarding headers set by the ingress.
func requestURL(r *http.Request) url.URL {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
	}
}

// callbackURL is the phase-1 callback for the deployment variant: the
// literal request URL in the combined shape, or that URL with /callback
// appended in the split shape.
func callbackURL(r *http.Request, variant config.CallbackVariant) string {
	u := requestURL(r)
	if variant == config.VariantCallback {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/callback"
	}
	return u.String()
}

// requestHostname is the host the request was addressed to, without the
// port. It becomes part of the text/identifier metadata entry.
func requestHostname(r *http.Request) string {
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	if hostname, _, err := net.SplitHostPort(host); err == nil {
		return hostname
	}
	return host
}
