// Package signaling is the HTTP surface of the relay: it decodes viewer and
// media peer requests, applies the publisher allow-list and per-client rate
// limit, and maps exchange outcomes onto JSON responses.
package signaling
