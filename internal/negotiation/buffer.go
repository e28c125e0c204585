package negotiation

import "github.com/sunnyswag/RTCStartupDemo/internal/protocol"

// CandidateBuffer holds remote candidates that arrive before the remote
// description is applied. It is drained once and never refilled.
type CandidateBuffer struct {
	pending []protocol.CandidateInfo
	drained bool
}

// EnqueueInbound appends c. It returns false once the buffer has been drained.
func (b *CandidateBuffer) EnqueueInbound(c protocol.CandidateInfo) bool {
	if b.drained {
		return false
	}
	b.pending = append(b.pending, c)
	return true
}

// DrainInbound returns the buffered candidates in arrival order. Every later
// call returns nil.
func (b *CandidateBuffer) DrainInbound() []protocol.CandidateInfo {
	if b.drained {
		return nil
	}
	b.drained = true
	out := b.pending
	b.pending = nil
	return out
}

// Clear discards buffered candidates.
func (b *CandidateBuffer) Clear() {
	b.pending = nil
}

func (b *CandidateBuffer) Len() int {
	return len(b.pending)
}
