package wire

import (
	"github.com/BaSui01/fedflow/types"
)

// CurrentVersion is the only envelope version this package reads and writes.
const CurrentVersion = 1

// DoneSentinel is the reserved body of a done envelope.
const DoneSentinel = "DONE"

// Kind tags what an envelope carries.
type Kind string

const (
	KindFragment  Kind = "fragment"
	KindBroadcast Kind = "broadcast"
	KindDone      Kind = "done"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindFragment, KindBroadcast, KindDone:
		return true
	default:
		return false
	}
}

// Envelope is the unit that crosses the relay.
type Envelope struct {
	Version int    `json:"v"`
	Kind    Kind   `json:"kind"`
	From    string `json:"from"`
	Body    any    `json:"body,omitempty"`
}

// Fragment builds a client-to-coordinator envelope.
func Fragment(from string, body any) Envelope {
	return Envelope{Version: CurrentVersion, Kind: KindFragment, From: from, Body: body}
}

// Broadcast builds a coordinator-to-clients envelope.
func Broadcast(from string, body any) Envelope {
	return Envelope{Version: CurrentVersion, Kind: KindBroadcast, From: from, Body: body}
}

// Done builds the completion marker for from.
func Done(from string) Envelope {
	return Envelope{Version: CurrentVersion, Kind: KindDone, From: from, Body: DoneSentinel}
}

// IsDone reports whether e is a completion marker.
func (e Envelope) IsDone() bool {
	return e.Kind == KindDone
}

// Validate checks the envelope header and the sentinel body.
func (e Envelope) Validate() error {
	if e.Version != CurrentVersion {
		return types.Errorf(types.ErrDecodeFailure, "unsupported envelope version %d", e.Version)
	}
	if !e.Kind.Valid() {
		return types.Errorf(types.ErrDecodeFailure, "unknown envelope kind %q", e.Kind)
	}
	if e.From == "" {
		return types.NewError(types.ErrDecodeFailure, "envelope has no sender")
	}
	if e.Kind == KindDone {
		if s, ok := e.Body.(string); !ok || s != DoneSentinel {
			return types.NewError(types.ErrDecodeFailure, "done envelope must carry the DONE sentinel")
		}
	}
	return nil
}

// Encode validates and encodes e with c.
func Encode(c Codec, e Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	data, err := c.Marshal(e)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "encode envelope").WithCause(err)
	}
	return data, nil
}

// Decode parses data with c and validates the result.
// Every failure carries types.ErrDecodeFailure.
func Decode(c Codec, data []byte) (Envelope, error) {
	var e Envelope
	if len(data) == 0 {
		return e, types.NewError(types.ErrDecodeFailure, "empty payload")
	}
	if err := c.Unmarshal(data, &e); err != nil {
		return Envelope{}, types.NewError(types.ErrDecodeFailure, "malformed payload").WithCause(err)
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}
