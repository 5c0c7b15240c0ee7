package domain

import "encoding/json"

// SignalKind identifies a WebRTC call-setup payload.
type SignalKind string

const (
	SignalOffer        SignalKind = "Offer"
	SignalAnswer       SignalKind = "Answer"
	SignalReject       SignalKind = "Reject"
	SignalIceCandidate SignalKind = "IceCandidate"
)

func (k SignalKind) Valid() bool {
	switch k {
	case SignalOffer, SignalAnswer, SignalReject, SignalIceCandidate:
		return true
	}
	return false
}

// Signal is relayed once and never stored. Payload is the opaque SDP blob
// or ICE descriptor produced by the calling peer.
type Signal struct {
	Kind      SignalKind
	From      string
	To        string
	ServiceID string
	Payload   json.RawMessage
}
