package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v3/vnet"
	"github.com/pion/webrtc/v4"
)

// TestWebRTCNegotiationThroughRelay connects two pion peers on a virtual
// network using only the relay's HTTP endpoints for signaling.
func TestWebRTCNegotiationThroughRelay(t *testing.T) {
	const (
		cidr     = "10.0.0.0/24"
		viewerIP = "10.0.0.1"
		peerIP   = "10.0.0.2"
	)

	tr := newTestRelay(t, relayOptions{timeout: 10 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)

	router, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          cidr,
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	t.Cleanup(func() {
		_ = router.Stop()
	})

	viewerNet, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{viewerIP}})
	if err != nil {
		t.Fatalf("new viewer net: %v", err)
	}
	peerNet, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{peerIP}})
	if err != nil {
		t.Fatalf("new peer net: %v", err)
	}
	if err := router.AddNet(viewerNet); err != nil {
		t.Fatalf("add viewer net: %v", err)
	}
	if err := router.AddNet(peerNet); err != nil {
		t.Fatalf("add peer net: %v", err)
	}
	if err := router.Start(); err != nil {
		t.Fatalf("start router: %v", err)
	}

	viewerAPI, err := newVNetAPI(viewerNet)
	if err != nil {
		t.Fatalf("viewer api: %v", err)
	}
	peerAPI, err := newVNetAPI(peerNet)
	if err != nil {
		t.Fatalf("peer api: %v", err)
	}

	viewer, err := viewerAPI.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("new viewer pc: %v", err)
	}
	t.Cleanup(func() { _ = viewer.Close() })
	peer, err := peerAPI.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("new peer pc: %v", err)
	}
	t.Cleanup(func() { _ = peer.Close() })

	// Each side trickles its candidates through the relay.
	viewer.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if err := postJSON(ctx, tr.url+"/ice-candidate/cam1", candidateFromPion(c.ToJSON()), nil); err != nil && ctx.Err() == nil {
			t.Errorf("viewer trickle: %v", err)
		}
	})
	peer.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if err := postJSON(ctx, tr.url+"/backend/ice-candidate/cam1", candidateFromPion(c.ToJSON()), nil); err != nil && ctx.Err() == nil {
			t.Errorf("peer trickle: %v", err)
		}
	})

	received := make(chan string, 1)
	peer.OnDataChannel(func(dc *webrtc.DataChannel) {
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			select {
			case received <- string(msg.Data):
			default:
			}
		})
	})

	dc, err := viewer.CreateDataChannel("relay-test", nil)
	if err != nil {
		t.Fatalf("create datachannel: %v", err)
	}
	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })

	// Media peer: long-poll for the offer, answer it, then pull viewer
	// candidates.
	peerErr := make(chan error, 1)
	go func() {
		var offer SDP
		if err := getJSON(ctx, tr.url+"/backend/wait-offer/cam1", &offer); err != nil {
			peerErr <- fmt.Errorf("wait-offer: %w", err)
			return
		}
		desc, err := offer.ToPion(webrtc.SDPTypeOffer)
		if err != nil {
			peerErr <- err
			return
		}
		if err := peer.SetRemoteDescription(desc); err != nil {
			peerErr <- fmt.Errorf("set remote offer: %w", err)
			return
		}
		answer, err := peer.CreateAnswer(nil)
		if err != nil {
			peerErr <- fmt.Errorf("create answer: %w", err)
			return
		}
		if err := peer.SetLocalDescription(answer); err != nil {
			peerErr <- fmt.Errorf("set local answer: %w", err)
			return
		}
		var ack answerResponse
		if err := postJSON(ctx, tr.url+"/backend/answer/cam1", sdpFromPion(answer), &ack); err != nil {
			peerErr <- fmt.Errorf("post answer: %w", err)
			return
		}
		if !ack.Delivered {
			peerErr <- fmt.Errorf("answer not delivered")
			return
		}
		peerErr <- nil
		pollCandidates(ctx, tr.url+"/backend/wait-ice/cam1", peer)
	}()

	// The media peer is parked before the viewer offers.
	tr.waitPending(t, 1)

	offer, err := viewer.CreateOffer(nil)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if err := viewer.SetLocalDescription(offer); err != nil {
		t.Fatalf("set local offer: %v", err)
	}

	var answer SDP
	if err := postJSON(ctx, tr.url+"/offer/cam1", sdpFromPion(offer), &answer); err != nil {
		t.Fatalf("post offer: %v", err)
	}
	if err := <-peerErr; err != nil {
		t.Fatalf("media peer: %v", err)
	}
	answerDesc, err := answer.ToPion(webrtc.SDPTypeAnswer)
	if err != nil {
		t.Fatalf("answer from relay: %v", err)
	}
	if err := viewer.SetRemoteDescription(answerDesc); err != nil {
		t.Fatalf("set remote answer: %v", err)
	}
	go pollCandidates(ctx, tr.url+"/ice-candidate/cam1", viewer)

	select {
	case <-opened:
	case <-ctx.Done():
		t.Fatalf("datachannel did not open: viewer=%s peer=%s", viewer.ConnectionState(), peer.ConnectionState())
	}
	if err := dc.SendText("hello through the relay"); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case got := <-received:
		if got != "hello through the relay" {
			t.Fatalf("received %q", got)
		}
	case <-ctx.Done():
		t.Fatal("message not received")
	}
}

func newVNetAPI(n *vnet.Net) (*webrtc.API, error) {
	se := webrtc.SettingEngine{}
	se.SetNet(n)

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	return webrtc.NewAPI(
		webrtc.WithSettingEngine(se),
		webrtc.WithMediaEngine(mediaEngine),
	), nil
}

// pollCandidates drains a candidate endpoint into pc until ctx is done.
func pollCandidates(ctx context.Context, url string, pc *webrtc.PeerConnection) {
	for ctx.Err() == nil {
		var c *Candidate
		if err := getJSON(ctx, url, &c); err != nil || c == nil {
			select {
			case <-ctx.Done():
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}
		init, err := c.ToPion()
		if err != nil {
			continue
		}
		_ = pc.AddICECandidate(init)
	}
}

func postJSON(ctx context.Context, url string, body, into any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(req, into)
}

func getJSON(ctx context.Context, url string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return doJSON(req, into)
}

func doJSON(req *http.Request, into any) error {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if into == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(into)
}
