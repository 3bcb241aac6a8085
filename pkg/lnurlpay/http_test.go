package lnurlpay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/galoymoney/lnurlp-server/pkg/config"
)

type fakeNegotiator struct {
	payParamsFn func(ctx context.Context, req *PayRequest) (*PayParams, error)
	invoiceFn   func(ctx context.Context, req *InvoiceRequest) (*InvoiceResponse, error)
}

func (f *fakeNegotiator) PayParams(ctx context.Context, req *PayRequest) (*PayParams, error) {
	return f.payParamsFn(ctx, req)
}

func (f *fakeNegotiator) Invoice(ctx context.Context, req *InvoiceRequest) (*InvoiceResponse, error) {
	return f.invoiceFn(ctx, req)
}

func newTestRouter(n Negotiator, variant config.CallbackVariant) http.Handler {
	r := chi.NewRouter()
	RegisterRoutes(r, n, variant, zap.NewNop())
	return r
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response JSON: %v", err)
	}
	return body
}

func TestHandlePay_ServesPayParams(t *testing.T) {
	var captured *PayRequest
	n := &fakeNegotiator{
		payParamsFn: func(_ context.Context, req *PayRequest) (*PayParams, error) {
			captured = req
			return &PayParams{
				Callback:        req.Callback,
				MinSendable:     1000,
				MaxSendable:     100_000_000_000,
				EncodedMetadata: Metadata(req.Username, req.Hostname),
				Tag:             "payRequest",
			}, nil
		},
	}
	handler := newTestRouter(n, config.VariantCombined)

	req := httptest.NewRequest(http.MethodGet, "http://wallet.example.com/lnurlp/alice", nil)
	req.Header.Set("x-real-ip", "203.0.113.7")
	req.Header.Set("x-forwarded-for", "203.0.113.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if captured == nil {
		t.Fatal("PayParams was never called")
	}
	if captured.Username != "alice" {
		t.Fatalf("expected username alice, got %q", captured.Username)
	}
	if captured.Hostname != "wallet.example.com" {
		t.Fatalf("expected hostname wallet.example.com, got %q", captured.Hostname)
	}
	if captured.Callback != "http://wallet.example.com/lnurlp/alice" {
		t.Fatalf("expected callback to echo the request URL, got %q", captured.Callback)
	}
	if captured.Caller.RealIP != "203.0.113.7" {
		t.Fatalf("x-real-ip not forwarded, got %q", captured.Caller.RealIP)
	}
	if captured.Caller.ForwardedFor != "203.0.113.7, 10.0.0.1" {
		t.Fatalf("x-forwarded-for not forwarded, got %q", captured.Caller.ForwardedFor)
	}

	body := decodeBody(t, rec)
	if body["tag"] != "payRequest" {
		t.Fatalf("expected tag payRequest, got %v", body["tag"])
	}
}

func TestHandlePay_CombinedVariantDispatchesOnAmount(t *testing.T) {
	var captured *InvoiceRequest
	n := &fakeNegotiator{
		payParamsFn: func(context.Context, *PayRequest) (*PayParams, error) {
			t.Fatal("PayParams called for a phase-2 request")
			return nil, nil
		},
		invoiceFn: func(_ context.Context, req *InvoiceRequest) (*InvoiceResponse, error) {
			captured = req
			return &InvoiceResponse{PR: "lnbc1invoice", Routes: []struct{}{}}, nil
		},
	}
	handler := newTestRouter(n, config.VariantCombined)

	req := httptest.NewRequest(http.MethodGet, "/lnurlp/alice?amount=5000&nostr=%7B%7D", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if captured == nil {
		t.Fatal("Invoice was never called")
	}
	if len(captured.Amount) != 1 || captured.Amount[0] != "5000" {
		t.Fatalf("unexpected amount values %v", captured.Amount)
	}
	if len(captured.Nostr) != 1 || captured.Nostr[0] != "{}" {
		t.Fatalf("unexpected nostr values %v", captured.Nostr)
	}

	body := decodeBody(t, rec)
	if body["pr"] != "lnbc1invoice" {
		t.Fatalf("expected pr in body, got %v", body)
	}
	routes, ok := body["routes"].([]any)
	if !ok || len(routes) != 0 {
		t.Fatalf("expected empty routes array, got %v", body["routes"])
	}
}

func TestHandlePay_EmptyAmountStaysPhaseOne(t *testing.T) {
	payParamsCalled := false
	n := &fakeNegotiator{
		payParamsFn: func(_ context.Context, req *PayRequest) (*PayParams, error) {
			payParamsCalled = true
			return &PayParams{Tag: "payRequest"}, nil
		},
		invoiceFn: func(context.Context, *InvoiceRequest) (*InvoiceResponse, error) {
			t.Fatal("Invoice called for an empty amount")
			return nil, nil
		},
	}
	handler := newTestRouter(n, config.VariantCombined)

	req := httptest.NewRequest(http.MethodGet, "/lnurlp/alice?amount=", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !payParamsCalled {
		t.Fatal("PayParams was never called")
	}
}

func TestHandlePay_RepeatedAmountIsPhaseTwo(t *testing.T) {
	var captured *InvoiceRequest
	n := &fakeNegotiator{
		invoiceFn: func(_ context.Context, req *InvoiceRequest) (*InvoiceResponse, error) {
			captured = req
			return nil, InvalidRequestError(errors.New("repeated query parameter"))
		},
	}
	handler := newTestRouter(n, config.VariantCombined)

	req := httptest.NewRequest(http.MethodGet, "/lnurlp/alice?amount=5000&amount=6000", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if captured == nil || len(captured.Amount) != 2 {
		t.Fatalf("expected both amount values to reach the negotiator, got %v", captured)
	}

	body := decodeBody(t, rec)
	if body["status"] != "ERROR" {
		t.Fatalf("expected ERROR status, got %v", body)
	}
	if body["reason"] != "Invalid request" {
		t.Fatalf("expected reason %q, got %v", "Invalid request", body["reason"])
	}
}

func TestHandlePay_ProtocolErrorsAreHTTP200(t *testing.T) {
	n := &fakeNegotiator{
		payParamsFn: func(_ context.Context, req *PayRequest) (*PayParams, error) {
			return nil, UserNotFoundError(req.Username, ErrWalletNotFound)
		},
	}
	handler := newTestRouter(n, config.VariantCombined)

	req := httptest.NewRequest(http.MethodGet, "/lnurlp/nobody", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ERROR" {
		t.Fatalf("expected ERROR status, got %v", body)
	}
	if body["reason"] != "Couldn't find user 'nobody'." {
		t.Fatalf("unexpected reason %v", body["reason"])
	}
}

func TestHandleInvoice_PanicStillAnswers(t *testing.T) {
	n := &fakeNegotiator{
		invoiceFn: func(context.Context, *InvoiceRequest) (*InvoiceResponse, error) {
			panic("wallet id was nil")
		},
	}
	handler := newTestRouter(n, config.VariantCombined)

	req := httptest.NewRequest(http.MethodGet, "/lnurlp/alice?amount=5000", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ERROR" {
		t.Fatalf("expected ERROR status after panic, got %v", body)
	}
}

func TestCallbackVariant_SplitRoutes(t *testing.T) {
	var payCallback string
	invoiceCalled := false
	n := &fakeNegotiator{
		payParamsFn: func(_ context.Context, req *PayRequest) (*PayParams, error) {
			payCallback = req.Callback
			return &PayParams{Callback: req.Callback, Tag: "payRequest"}, nil
		},
		invoiceFn: func(_ context.Context, req *InvoiceRequest) (*InvoiceResponse, error) {
			invoiceCalled = true
			return &InvoiceResponse{PR: "lnbc1invoice", Routes: []struct{}{}}, nil
		},
	}
	handler := newTestRouter(n, config.VariantCallback)

	req := httptest.NewRequest(http.MethodGet, "http://wallet.example.com/lnurlp/alice", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if payCallback != "http://wallet.example.com/lnurlp/alice/callback" {
		t.Fatalf("expected /callback suffix, got %q", payCallback)
	}

	req = httptest.NewRequest(http.MethodGet, "/lnurlp/alice/callback?amount=5000", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !invoiceCalled {
		t.Fatal("callback route never reached the negotiator")
	}
}

func TestCallbackVariant_PhaseOneIgnoresAmount(t *testing.T) {
	payParamsCalled := false
	n := &fakeNegotiator{
		payParamsFn: func(context.Context, *PayRequest) (*PayParams, error) {
			payParamsCalled = true
			return &PayParams{Tag: "payRequest"}, nil
		},
		invoiceFn: func(context.Context, *InvoiceRequest) (*InvoiceResponse, error) {
			t.Fatal("Invoice called on the base route in the split variant")
			return nil, nil
		},
	}
	handler := newTestRouter(n, config.VariantCallback)

	req := httptest.NewRequest(http.MethodGet, "/lnurlp/alice?amount=5000", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !payParamsCalled {
		t.Fatal("PayParams was never called")
	}
}

func TestWellKnownAlias(t *testing.T) {
	n := &fakeNegotiator{
		payParamsFn: func(_ context.Context, req *PayRequest) (*PayParams, error) {
			return &PayParams{Callback: req.Callback, Tag: "payRequest"}, nil
		},
	}
	handler := newTestRouter(n, config.VariantCombined)

	req := httptest.NewRequest(http.MethodGet, "http://wallet.example.com/.well-known/lnurlp/alice", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["callback"] != "http://wallet.example.com/.well-known/lnurlp/alice" {
		t.Fatalf("unexpected callback %v", body["callback"])
	}
}

func TestRequestURL_HonorsForwardingHeaders(t *testing.T) {
	var captured *PayRequest
	n := &fakeNegotiator{
		payParamsFn: func(_ context.Context, req *PayRequest) (*PayParams, error) {
			captured = req
			return &PayParams{Tag: "payRequest"}, nil
		},
	}
	handler := newTestRouter(n, config.VariantCombined)

	req := httptest.NewRequest(http.MethodGet, "http://internal:8080/lnurlp/alice", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "pay.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if captured == nil {
		t.Fatal("PayParams was never called")
	}
	if captured.Callback != "https://pay.example.com/lnurlp/alice" {
		t.Fatalf("expected forwarded callback, got %q", captured.Callback)
	}
	if captured.Hostname != "pay.example.com" {
		t.Fatalf("expected forwarded hostname, got %q", captured.Hostname)
	}
}

func TestHandlePay_DecodesEscapedUsername(t *testing.T) {
	var payUsername, invoiceUsername string
	n := &fakeNegotiator{
		payParamsFn: func(_ context.Context, req *PayRequest) (*PayParams, error) {
			payUsername = req.Username
			return &PayParams{Tag: "payRequest"}, nil
		},
		invoiceFn: func(_ context.Context, req *InvoiceRequest) (*InvoiceResponse, error) {
			invoiceUsername = req.Username
			return &InvoiceResponse{PR: "lnbc1invoice", Routes: []struct{}{}}, nil
		},
	}
	handler := newTestRouter(n, config.VariantCombined)

	req := httptest.NewRequest(http.MethodGet, "http://wallet.example.com/lnurlp/a%26b", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if payUsername != "a&b" {
		t.Fatalf("expected decoded username a&b, got %q", payUsername)
	}

	req = httptest.NewRequest(http.MethodGet, "/lnurlp/a%26b?amount=5000", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if invoiceUsername != "a&b" {
		t.Fatalf("expected decoded username a&b in phase 2, got %q", invoiceUsername)
	}
}

func TestWriteJSON_DoesNotEscapeMetadata(t *testing.T) {
	n := &fakeNegotiator{
		payParamsFn: func(_ context.Context, req *PayRequest) (*PayParams, error) {
			return &PayParams{
				EncodedMetadata: Metadata(req.Username, req.Hostname),
				Tag:             "payRequest",
			}, nil
		},
	}
	handler := newTestRouter(n, config.VariantCombined)

	req := httptest.NewRequest(http.MethodGet, "http://wallet.example.com/lnurlp/a%26b", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `Payment to a&b`) {
		t.Fatalf("expected raw & in metadata on the wire, got %s", body)
	}
	if strings.Contains(body, `\u0026`) {
		t.Fatalf("metadata was HTML-escaped on the wire: %s", body)
	}
}
