package exchange

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/Jayvir101/Signaling-Server/internal/longpoll"
	"github.com/Jayvir101/Signaling-Server/internal/mailbox"
	"github.com/Jayvir101/Signaling-Server/internal/metrics"
)

// SubmitOffer stores offer for key, wakes a media peer waiting for it, and
// blocks until the matching answer arrives.
//
// The answer wait is registered in the same critical section that stores the
// offer, so an answer can never arrive before the viewer is listening for it.
func (e *Exchange) SubmitOffer(ctx context.Context, key mailbox.Key, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	res, err := e.coord.Wait(ctx, slotKey(key, longpoll.SlotAnswer), e.timeout, func(tx longpoll.Tx) (webrtc.SessionDescription, bool, error) {
		if err := e.store.PutOffer(ctx, key, offer); err != nil {
			return webrtc.SessionDescription{}, false, err
		}
		peerWoken := tx.Resolve(slotKey(key, longpoll.SlotOffer), offer)
		e.emit(metrics.OfferStored, key)
		if peerWoken {
			e.emit(metrics.OfferDelivered, key)
		}
		e.log.Debug("offer stored", "session", key.String(), "peer_waiting", peerWoken)
		return webrtc.SessionDescription{}, false, nil
	})
	if errors.Is(err, longpoll.ErrAlreadyWaiting) {
		e.drop(metrics.DropReasonAlreadyWaiting, key, err)
		return webrtc.SessionDescription{}, err
	}
	if err != nil {
		e.observeStoreError(key, err)
		return webrtc.SessionDescription{}, err
	}

	switch res.Outcome {
	case longpoll.OutcomeResolved:
		return res.Value, nil
	case longpoll.OutcomeSuperseded:
		e.emit(metrics.WaitSuperseded, key)
		return webrtc.SessionDescription{}, ErrSuperseded
	case longpoll.OutcomeCancelled:
		e.metrics.Inc(metrics.WaitCancelled)
		e.abandonOffer(key, offer)
		return webrtc.SessionDescription{}, ctx.Err()
	default:
		e.emit(metrics.AnswerTimeout, key)
		e.log.Warn("no answer before deadline", "session", key.String(), "timeout", e.timeout)
		e.abandonOffer(key, offer)
		return webrtc.SessionDescription{}, ErrAnswerTimeout
	}
}

func (e *Exchange) abandonOffer(key mailbox.Key, offer webrtc.SessionDescription) {
	if !e.clearStale {
		return
	}
	// The request context may already be done.
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	err := e.coord.Update(func(tx longpoll.Tx) error {
		// A viewer parked on the answer slot owns the stored offer, even when
		// it resubmitted identical SDP.
		if tx.Waiting(slotKey(key, longpoll.SlotAnswer)) {
			return nil
		}
		return e.store.ClearOffer(ctx, key, offer.SDP)
	})
	if err != nil {
		e.log.Error("clear abandoned offer", "session", key.String(), "err", err)
	}
}

// WaitOffer returns the pending offer for key.
//
// In the session namespace it long-polls, and the offer stays stored until an
// answer is posted, so a retrying media peer sees it again. In the publish
// namespace it never blocks and the offer is consumed by the read.
//
// ok is false when the wait ended without an offer.
func (e *Exchange) WaitOffer(ctx context.Context, key mailbox.Key) (offer webrtc.SessionDescription, ok bool, err error) {
	if key.Namespace == mailbox.NamespacePublish {
		offer, ok, err = e.store.TakeOffer(ctx, key)
		if err != nil {
			e.observeStoreError(key, err)
			return webrtc.SessionDescription{}, false, err
		}
		if ok {
			e.emit(metrics.OfferDelivered, key)
		}
		return offer, ok, nil
	}

	var fastPath bool
	res, err := e.coord.Wait(ctx, slotKey(key, longpoll.SlotOffer), e.timeout, func(longpoll.Tx) (webrtc.SessionDescription, bool, error) {
		offer, found, err := e.store.PeekOffer(ctx, key)
		fastPath = found
		return offer, found, err
	})
	if errors.Is(err, longpoll.ErrAlreadyWaiting) {
		e.drop(metrics.DropReasonAlreadyWaiting, key, err)
		return webrtc.SessionDescription{}, false, err
	}
	if err != nil {
		e.observeStoreError(key, err)
		return webrtc.SessionDescription{}, false, err
	}

	switch res.Outcome {
	case longpoll.OutcomeResolved:
		// A parked waiter is counted by SubmitOffer when it wakes us.
		if fastPath {
			e.emit(metrics.OfferDelivered, key)
		}
		return res.Value, true, nil
	case longpoll.OutcomeSuperseded:
		e.emit(metrics.WaitSuperseded, key)
	case longpoll.OutcomeCancelled:
		e.metrics.Inc(metrics.WaitCancelled)
	default:
		e.metrics.Inc(metrics.WaitTimedOut)
	}
	return webrtc.SessionDescription{}, false, nil
}

// PostAnswer clears the stored offer for key and hands answer to the viewer
// waiting on it. The answer is not stored: delivered is false when nobody was
// waiting, and the answer is gone.
func (e *Exchange) PostAnswer(ctx context.Context, key mailbox.Key, answer webrtc.SessionDescription) (delivered bool, err error) {
	err = e.coord.Update(func(tx longpoll.Tx) error {
		if err := e.store.ClearOffer(ctx, key, ""); err != nil {
			return err
		}
		delivered = tx.Resolve(slotKey(key, longpoll.SlotAnswer), answer)
		return nil
	})
	if err != nil {
		e.observeStoreError(key, err)
		return false, err
	}
	if delivered {
		e.emit(metrics.AnswerDelivered, key)
	} else {
		e.emit(metrics.AnswerDropped, key)
		e.log.Info("answer dropped, no viewer waiting", "session", key.String())
	}
	return delivered, nil
}
