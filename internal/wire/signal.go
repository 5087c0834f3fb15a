package wire

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Canvas/internal/domain"
	"github.com/pion/webrtc/v4"
)

// SignalData is the conventional negotiation payload participants put in a
// signal envelope. The relay never looks inside it.
type SignalData struct {
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

func (s SignalData) Valid() bool {
	return s.SDP != nil || s.Candidate != nil
}

// EncodeSignal addresses data to one author, or to everyone when to is empty.
func EncodeSignal(from, to domain.AuthorID, data SignalData) ([]byte, error) {
	if !data.Valid() {
		return nil, fmt.Errorf("encode signal: %w: neither sdp nor candidate", ErrMalformedMessage)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode signal: %w", err)
	}
	return json.Marshal(Envelope{Type: TypeSignal, AuthorID: from, To: to, Data: raw})
}

// DecodeSignal reads a negotiation payload from a signal envelope.
func DecodeSignal(env Envelope) (SignalData, error) {
	var data SignalData
	if err := env.Decode(&data); err != nil {
		return SignalData{}, err
	}
	if !data.Valid() {
		return SignalData{}, fmt.Errorf("%w: empty signal payload", ErrMalformedMessage)
	}
	return data, nil
}
