package exchange

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/Jayvir101/Signaling-Server/internal/mailbox"
	"github.com/Jayvir101/Signaling-Server/internal/metrics"
)

// SubmitICE queues c for the other side of the session. Candidates flow
// independently of the offer/answer state.
func (e *Exchange) SubmitICE(ctx context.Context, key mailbox.Key, dir mailbox.Direction, c webrtc.ICECandidateInit) error {
	if err := e.store.EnqueueICE(ctx, key, dir, c); err != nil {
		e.observeStoreError(key, err)
		return err
	}
	e.emit(metrics.ICEQueued, key)
	return nil
}

// NextICE returns the oldest queued candidate in dir without blocking.
func (e *Exchange) NextICE(ctx context.Context, key mailbox.Key, dir mailbox.Direction) (webrtc.ICECandidateInit, bool, error) {
	c, ok, err := e.store.DequeueICE(ctx, key, dir)
	if err != nil {
		e.observeStoreError(key, err)
		return webrtc.ICECandidateInit{}, false, err
	}
	if ok {
		e.emit(metrics.ICEDelivered, key)
	}
	return c, ok, nil
}
