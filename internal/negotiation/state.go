package negotiation

import "fmt"

// State is the negotiation progress of one CallSession.
type State int

const (
	StateIdle State = iota
	StateOffering
	StateAwaitingAnswer
	StateAnsweringRemote
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOffering:
		return "offering"
	case StateAwaitingAnswer:
		return "awaiting-answer"
	case StateAnsweringRemote:
		return "answering"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// InCall reports whether a call is being set up or is up.
func (s State) InCall() bool {
	return s != StateIdle && s != StateClosed
}

// DescriptionKind tells offers from answers.
type DescriptionKind int

const (
	KindOffer DescriptionKind = iota
	KindAnswer
)

func (k DescriptionKind) String() string {
	if k == KindAnswer {
		return "answer"
	}
	return "offer"
}

// GlarePolicy decides what happens when both sides offer at once.
type GlarePolicy int

const (
	// GlareNone applies the remote offer to the existing session and lets the
	// media engine decide.
	GlareNone GlarePolicy = iota
	// GlareLexicographic makes the lexicographically smaller identity the offerer.
	GlareLexicographic
)

func (g GlarePolicy) String() string {
	if g == GlareLexicographic {
		return "lexicographic"
	}
	return "none"
}

func ParseGlarePolicy(s string) (GlarePolicy, error) {
	switch s {
	case "", "none":
		return GlareNone, nil
	case "lexicographic":
		return GlareLexicographic, nil
	default:
		return GlareNone, fmt.Errorf("unknown glare policy %q", s)
	}
}
