// Package correlate computes the question/answer correlation map for a
// conversation log: a stable 1-based number per user message, a cyclic
// color per number, and FIFO reply-to links binding each assistant reply
// to the oldest unanswered user message.
//
// Compute is a pure projection of its inputs. Callers re-invoke it
// whenever the log or the pending set changes; for identical inputs it
// always yields an identical map.
package correlate

import (
	"sort"

	"github.com/electromart/chatlink/chat"
)

// DefaultPaletteSize is the number of distinct correlation colors cycled
// through before repeating.
const DefaultPaletteSize = 8

// Record is the derived correlation state for a single message key.
type Record struct {
	// Number is the 1-based correlation number, assigned in order of
	// user-message appearance. Zero means unnumbered (an unlinked
	// assistant message).
	Number int

	// Color is the cyclic palette index: (Number-1) mod palette size.
	Color int

	// IsPending marks a number assigned to a message that is tracked as
	// in-flight but not yet present in the log.
	IsPending bool

	// IsUser reports whether the record belongs to a user message.
	IsUser bool

	// ReplyTo links an assistant reply to the user message it answered.
	// Zero value when unlinked.
	ReplyTo chat.MessageKey

	// HasReplyTo reports whether ReplyTo is meaningful.
	HasReplyTo bool
}

// Map holds correlation records keyed by message identity.
type Map map[chat.MessageKey]Record

// Options tunes correlation computation.
type Options struct {
	// PaletteSize overrides DefaultPaletteSize when > 0.
	PaletteSize int

	// ExcludeAgents lists assistant agent tags that never consume a FIFO
	// slot (reconnection banners, cancellation notices, ...). When nil,
	// only chat.SystemAgent is excluded.
	ExcludeAgents []string
}

func (o Options) palette() int {
	if o.PaletteSize > 0 {
		return o.PaletteSize
	}
	return DefaultPaletteSize
}

func (o Options) excluded() map[string]bool {
	set := make(map[string]bool, len(o.ExcludeAgents)+1)
	if len(o.ExcludeAgents) == 0 {
		set[chat.SystemAgent] = true
		return set
	}
	for _, tag := range o.ExcludeAgents {
		set[tag] = true
	}
	return set
}

type unanswered struct {
	key    chat.MessageKey
	number int
}

// Compute derives the correlation map from the ordered log and the
// pending set. The log must be in append order; pending entries absent
// from the log receive trailing numbers ordered by submission time.
func Compute(log []chat.Message, pending []chat.PendingEntry, opts Options) Map {
	palette := opts.palette()
	excluded := opts.excluded()

	out := make(Map, len(log)+len(pending))

	// Numbering pass: every user message gets the next sequential number.
	next := 0
	for _, m := range log {
		if m.Role != chat.RoleUser {
			continue
		}
		next++
		out[m.Key()] = Record{
			Number: next,
			Color:  (next - 1) % palette,
			IsUser: true,
		}
	}

	// Matching pass: user messages push onto the unanswered queue,
	// assistant replies (minus excluded notice tags) pop the oldest.
	var queue []unanswered
	for _, m := range log {
		switch m.Role {
		case chat.RoleUser:
			queue = append(queue, unanswered{key: m.Key(), number: out[m.Key()].Number})
		case chat.RoleAssistant:
			if excluded[m.Agent] {
				continue
			}
			if len(queue) == 0 {
				// No unanswered question: the reply stays unlinked.
				continue
			}
			oldest := queue[0]
			queue = queue[1:]
			out[m.Key()] = Record{
				Number:     oldest.number,
				Color:      (oldest.number - 1) % palette,
				ReplyTo:    oldest.key,
				HasReplyTo: true,
			}
		}
	}

	// Pending pass: tracked messages not yet in the log continue the
	// sequence so an unacknowledged send still shows a stable number.
	inLog := make(map[string]bool, len(log))
	for _, m := range log {
		if m.ID != "" {
			inLog[m.ID] = true
		}
	}

	trailing := make([]chat.PendingEntry, 0, len(pending))
	for _, p := range pending {
		if p.MessageID == "" || inLog[p.MessageID] {
			continue
		}
		trailing = append(trailing, p)
	}
	sort.Slice(trailing, func(i, j int) bool {
		if trailing[i].SentAt.Equal(trailing[j].SentAt) {
			return trailing[i].MessageID < trailing[j].MessageID
		}
		return trailing[i].SentAt.Before(trailing[j].SentAt)
	})
	for _, p := range trailing {
		next++
		out[chat.KeyForID(p.MessageID)] = Record{
			Number:    next,
			Color:     (next - 1) % palette,
			IsPending: true,
			IsUser:    true,
		}
	}

	return out
}
