package main

import (
	"context"
	"time"

	"github.com/Jayvir101/Signaling-Server/internal/events"
	"github.com/Jayvir101/Signaling-Server/internal/exchange"
	"github.com/Jayvir101/Signaling-Server/internal/mailbox"
	"github.com/Jayvir101/Signaling-Server/internal/metrics"
	"github.com/Jayvir101/Signaling-Server/internal/ratelimit"
)

const (
	gaugeReadTimeout = 2 * time.Second
	storeLenUnknown  = -1
)

// runtimeGauges samples live state on each scrape. Nil components are skipped.
func runtimeGauges(ex *exchange.Exchange, store mailbox.Store, limiter *ratelimit.ClientLimiter, hub *events.Hub) []metrics.Gauge {
	gauges := []metrics.Gauge{
		{
			Name: "signaling_relay_pending_waits",
			Help: "Long-poll requests currently parked.",
			Read: func() float64 { return float64(ex.PendingWaits()) },
		},
	}
	if store != nil {
		gauges = append(gauges, metrics.Gauge{
			Name: "signaling_relay_sessions",
			Help: "Sessions holding an offer or queued candidates; -1 when the store could not be read.",
			Read: func() float64 {
				ctx, cancel := context.WithTimeout(context.Background(), gaugeReadTimeout)
				defer cancel()
				n, err := store.Len(ctx)
				if err != nil {
					return storeLenUnknown
				}
				return float64(n)
			},
		})
	}
	if limiter != nil {
		gauges = append(gauges, metrics.Gauge{
			Name: "signaling_relay_rate_limit_clients",
			Help: "Client addresses tracked by the rate limiter.",
			Read: func() float64 { return float64(limiter.Len()) },
		})
	}
	if hub != nil {
		gauges = append(gauges, metrics.Gauge{
			Name: "signaling_relay_event_subscribers",
			Help: "Connected debug event subscribers.",
			Read: func() float64 { return float64(hub.Clients()) },
		})
	}
	return gauges
}
