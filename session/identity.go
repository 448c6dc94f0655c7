package session

import (
	"github.com/samber/lo"

	"github.com/BaSui01/fedflow/types"
)

// ParticipantIdentity is delivered once by the hosting platform.
// Peers may or may not contain ID itself.
type ParticipantIdentity struct {
	ID          string   `json:"id"`
	Coordinator bool     `json:"coordinator"`
	Peers       []string `json:"peers"`
}

// Clients returns the peers other than this participant, in order, without duplicates.
func (p ParticipantIdentity) Clients() []string {
	return lo.Without(lo.Uniq(lo.Compact(p.Peers)), p.ID)
}

// BarrierSize is the number of completion markers the coordinator waits for:
// one per client plus its own.
func (p ParticipantIdentity) BarrierSize() int {
	return len(p.Clients()) + 1
}

// Role returns "coordinator" or "client".
func (p ParticipantIdentity) Role() string {
	if p.Coordinator {
		return "coordinator"
	}
	return "client"
}

// Validate checks the identity before it is recorded.
func (p ParticipantIdentity) Validate() error {
	if p.ID == "" {
		return types.NewError(types.ErrInvalidRequest, "participant id is required")
	}
	return nil
}

func (p ParticipantIdentity) clone() ParticipantIdentity {
	p.Peers = append([]string(nil), p.Peers...)
	return p
}
