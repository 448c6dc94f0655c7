package session

import "fmt"

// Phase is the current step of a participant's round.
type Phase int

const (
	PhaseInitializing Phase = iota
	PhaseLocalIngest
	PhaseLocalTransform
	PhaseEmit
	PhaseFinalizing
	PhaseTerminal
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseInitializing:   "initializing",
	PhaseLocalIngest:    "local_ingest",
	PhaseLocalTransform: "local_transform",
	PhaseEmit:           "emit",
	PhaseFinalizing:     "finalizing",
	PhaseTerminal:       "terminal",
	PhaseFailed:         "failed",
}

// String returns the snake_case phase name.
func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// IsTerminal reports whether no further transition can happen.
func (p Phase) IsTerminal() bool {
	return p == PhaseTerminal || p == PhaseFailed
}

// baseline is the progress reported on entering the phase.
func (p Phase) baseline() float64 {
	switch p {
	case PhaseInitializing:
		return 0
	case PhaseLocalIngest:
		return 0.1
	case PhaseLocalTransform:
		return 0.3
	case PhaseEmit:
		return 0.8
	case PhaseFinalizing:
		return 0.9
	case PhaseTerminal:
		return 1
	case PhaseFailed:
		return 0
	}
	return 0
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePhase is the inverse of Phase.String.
func ParsePhase(s string) (Phase, error) {
	for i, name := range phaseNames {
		if name == s {
			return Phase(i), nil
		}
	}
	return 0, fmt.Errorf("session: unknown phase %q", s)
}
