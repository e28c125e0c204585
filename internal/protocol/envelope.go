package protocol

import (
	"fmt"

	"github.com/sunnyswag/RTCStartupDemo/internal/callerr"
)

// MessageType identifies the negotiation step an Envelope carries.
type MessageType int

const (
	MessageTypeOffer     MessageType = 1
	MessageTypeAnswer    MessageType = 2
	MessageTypeCandidate MessageType = 3
	MessageTypeHangup    MessageType = 4
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeOffer:
		return "offer"
	case MessageTypeAnswer:
		return "answer"
	case MessageTypeCandidate:
		return "candidate"
	case MessageTypeHangup:
		return "hangup"
	default:
		return fmt.Sprintf("msgType(%d)", int(t))
	}
}

// CandidateInfo is one ICE candidate in the shape the room peers exchange.
type CandidateInfo struct {
	MLineIndex int    `json:"label" msgpack:"label"`
	Mid        string `json:"id" msgpack:"id"`
	Candidate  string `json:"candidate" msgpack:"candidate"`
}

// Envelope is the unit broadcast to the other members of a room.
type Envelope struct {
	SenderID  string         `json:"senderId" msgpack:"senderId"`
	Type      MessageType    `json:"msgType" msgpack:"msgType"`
	SDP       string         `json:"sdp,omitempty" msgpack:"sdp,omitempty"`
	Candidate *CandidateInfo `json:"candidate,omitempty" msgpack:"candidate,omitempty"`
}

// Validate checks that the fields present match the message type.
func (e *Envelope) Validate() error {
	if e == nil {
		return callerr.WrapError("validate envelope", callerr.ErrMalformedEnvelope, "missing envelope")
	}
	if e.SenderID == "" {
		return callerr.WrapError("validate envelope", callerr.ErrMalformedEnvelope, "missing senderId")
	}

	switch e.Type {
	case MessageTypeOffer, MessageTypeAnswer:
		if e.SDP == "" {
			return callerr.WrapError("validate envelope", callerr.ErrMalformedEnvelope, e.Type.String()+" without sdp")
		}
		if e.Candidate != nil {
			return callerr.WrapError("validate envelope", callerr.ErrMalformedEnvelope, e.Type.String()+" with candidate")
		}
	case MessageTypeCandidate:
		if e.Candidate == nil || e.Candidate.Candidate == "" {
			return callerr.WrapError("validate envelope", callerr.ErrMalformedEnvelope, "candidate without candidate")
		}
		if e.SDP != "" {
			return callerr.WrapError("validate envelope", callerr.ErrMalformedEnvelope, "candidate with sdp")
		}
	case MessageTypeHangup:
		if e.SDP != "" || e.Candidate != nil {
			return callerr.WrapError("validate envelope", callerr.ErrMalformedEnvelope, "hangup with payload")
		}
	default:
		return callerr.WrapError("validate envelope", callerr.ErrMalformedEnvelope, e.Type.String())
	}
	return nil
}

func NewOffer(sender, sdp string) *Envelope {
	return &Envelope{SenderID: sender, Type: MessageTypeOffer, SDP: sdp}
}

func NewAnswer(sender, sdp string) *Envelope {
	return &Envelope{SenderID: sender, Type: MessageTypeAnswer, SDP: sdp}
}

func NewCandidate(sender string, c CandidateInfo) *Envelope {
	return &Envelope{SenderID: sender, Type: MessageTypeCandidate, Candidate: &c}
}

func NewHangup(sender string) *Envelope {
	return &Envelope{SenderID: sender, Type: MessageTypeHangup}
}
