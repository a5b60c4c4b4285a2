package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/pion/webrtc/v4"
)

var errBadBody = errors.New("malformed request body")

// SDP is the wire form of an RTCSessionDescription.
type SDP struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func sdpFromPion(desc webrtc.SessionDescription) SDP {
	return SDP{Type: desc.Type.String(), SDP: desc.SDP}
}

// ToPion validates s as a description of type want.
func (s SDP) ToPion(want webrtc.SDPType) (webrtc.SessionDescription, error) {
	if s.SDP == "" {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: missing sdp", errBadBody)
	}
	if webrtc.NewSDPType(s.Type) != want {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: sdp type must be %q, got %q", errBadBody, want.String(), s.Type)
	}
	return webrtc.SessionDescription{Type: want, SDP: s.SDP}, nil
}

// Candidate is the wire form of an RTCIceCandidateInit. An empty candidate
// string is the end-of-candidates marker and is relayed like any other.
type Candidate struct {
	Candidate        *string `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func candidateFromPion(init webrtc.ICECandidateInit) Candidate {
	c := init.Candidate
	return Candidate{
		Candidate:        &c,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}

func (c Candidate) ToPion() (webrtc.ICECandidateInit, error) {
	if c.Candidate == nil {
		return webrtc.ICECandidateInit{}, fmt.Errorf("%w: missing candidate", errBadBody)
	}
	return webrtc.ICECandidateInit{
		Candidate:        *c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}, nil
}

type statusResponse struct {
	Status string `json:"status"`
}

type answerResponse struct {
	Status    string `json:"status"`
	Delivered bool   `json:"delivered"`
}

type httpErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// decodeBody reads exactly one JSON value. Unknown fields are tolerated since
// browsers serialize extra members on some objects.
func decodeBody(r io.Reader, v any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("%w: unexpected trailing data", errBadBody)
	}
	return nil
}
