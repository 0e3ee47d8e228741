// Package history keeps the bounded conversation context sent to the
// language model.
package history

import (
	"sync"

	"github.com/MrWong99/tapvox/pkg/provider/llm"
)

// MinPairs is the smallest accepted capacity: the priming pair plus one
// exchange.
const MinPairs = 2

// History is an ordered list of chat turns. The first two entries are the
// priming pair and are never evicted. The total length never exceeds
// 2 × maxPairs. It is safe for concurrent use.
type History struct {
	mu       sync.Mutex
	msgs     []llm.Message
	maxPairs int
}

// New returns a History primed with instruction as a user turn and ack as
// the assistant reply. maxPairs below [MinPairs] is raised to MinPairs.
func New(instruction, ack string, maxPairs int) *History {
	maxPairs = max(maxPairs, MinPairs)
	msgs := make([]llm.Message, 0, 2*maxPairs)
	msgs = append(msgs,
		llm.Message{Role: llm.RoleUser, Content: instruction},
		llm.Message{Role: llm.RoleAssistant, Content: ack},
	)
	return &History{msgs: msgs, maxPairs: maxPairs}
}

// Append adds a turn and evicts the oldest turn groups after the priming
// pair until the cap holds. A group is a user turn plus the assistant reply
// that directly follows it, if any. The turn just appended is never evicted.
func (h *History) Append(role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.msgs = append(h.msgs, llm.Message{Role: role, Content: content})
	limit := 2 * h.maxPairs
	for len(h.msgs) > limit {
		n := groupLen(h.msgs[2 : len(h.msgs)-1])
		if n == 0 {
			break
		}
		h.msgs = append(h.msgs[:2], h.msgs[2+n:]...)
	}
}

// groupLen returns the length of the leading turn group of msgs.
func groupLen(msgs []llm.Message) int {
	switch {
	case len(msgs) == 0:
		return 0
	case len(msgs) >= 2 && msgs[0].Role == llm.RoleUser && msgs[1].Role == llm.RoleAssistant:
		return 2
	default:
		return 1
	}
}

// Snapshot returns a copy of all turns in order.
func (h *History) Snapshot() []llm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]llm.Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

// Len returns the number of turns, including the priming pair.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}

// MaxPairs returns the configured capacity in turn pairs.
func (h *History) MaxPairs() int { return h.maxPairs }
