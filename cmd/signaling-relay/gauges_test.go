package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/Jayvir101/Signaling-Server/internal/exchange"
	"github.com/Jayvir101/Signaling-Server/internal/mailbox"
	"github.com/Jayvir101/Signaling-Server/internal/metrics"
	"github.com/Jayvir101/Signaling-Server/internal/ratelimit"
)

func TestRuntimeGaugesAreScraped(t *testing.T) {
	store := mailbox.NewMemoryStore(mailbox.MemoryConfig{})
	key := mailbox.Key{Namespace: mailbox.NamespaceSession, ID: "cam1"}
	if err := store.PutOffer(context.Background(), key, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}); err != nil {
		t.Fatalf("PutOffer: %v", err)
	}
	ex := exchange.New(exchange.Config{Store: store})
	limiter := ratelimit.New(ratelimit.Config{PerSecond: 1, Burst: 1, MaxClients: 10})
	limiter.Allow("192.0.2.1")

	m := metrics.New()
	m.Inc(metrics.OfferStored)

	rr := httptest.NewRecorder()
	metrics.PrometheusHandler(m, runtimeGauges(ex, store, limiter, nil)...).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`signaling_relay_events_total{event="offer_stored"} 1`,
		"signaling_relay_pending_waits 0",
		"signaling_relay_sessions 1",
		"signaling_relay_rate_limit_clients 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in:\n%s", want, body)
		}
	}
	if strings.Contains(body, "signaling_relay_event_subscribers") {
		t.Errorf("event subscriber gauge exported without a hub:\n%s", body)
	}
}
