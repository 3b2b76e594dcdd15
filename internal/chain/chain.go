// Package chain derives conversational structure from an ordered transcript:
// positional adjacency between messages, and solution/feedback pairs linking
// an assistant's proposed fix to the user reply that judges it.
package chain

import (
	"sort"

	"github.com/hale-dev/chainfill/internal/transcript"
)

// Links holds the relationship fields back-filled onto one message. Pointer
// fields are nil when the relationship does not exist (first message has no
// previous, a trailing solution has no feedback) rather than empty strings,
// so absent and empty cannot be confused downstream.
type Links struct {
	PreviousMessageID *string
	NextMessageID     *string
	RelatedSolutionID *string
	FeedbackMessageID *string
	IsSolutionAttempt bool
}

// Pair couples a solution attempt with the user feedback that followed it.
type Pair struct {
	Solution transcript.Message
	Feedback transcript.Message
}

// SolutionFlagger decides whether an assistant message proposes a fix. The
// classifier lives elsewhere; the builder only needs the verdict.
type SolutionFlagger func(m transcript.Message) bool

// Builder computes Links and Pairs for a session's messages.
type Builder struct {
	flag SolutionFlagger
}

func NewBuilder(flag SolutionFlagger) *Builder {
	return &Builder{flag: flag}
}

// Build returns per-message links keyed by message ID, plus the
// solution/feedback pairs found. Messages are ordered by sequence index
// before linking. Feedback for a solution is the nearest subsequent user
// message; when several solutions precede the same user reply, each points
// to that reply, and the reply points back to the latest of them.
func (b *Builder) Build(messages []transcript.Message) (map[string]*Links, []Pair) {
	ordered := make([]transcript.Message, len(messages))
	copy(ordered, messages)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SequenceIndex < ordered[j].SequenceIndex
	})

	links := make(map[string]*Links, len(ordered))
	for _, m := range ordered {
		links[m.ID] = &Links{}
	}

	for i, m := range ordered {
		if i > 0 {
			links[m.ID].PreviousMessageID = strPtr(ordered[i-1].ID)
		}
		if i < len(ordered)-1 {
			links[m.ID].NextMessageID = strPtr(ordered[i+1].ID)
		}
	}

	var pairs []Pair
	for i, m := range ordered {
		if m.Role != transcript.RoleAssistant || !b.flag(m) {
			continue
		}
		links[m.ID].IsSolutionAttempt = true

		feedback, ok := nextUserMessage(ordered, i+1)
		if !ok {
			continue
		}
		links[m.ID].FeedbackMessageID = strPtr(feedback.ID)
		links[feedback.ID].RelatedSolutionID = strPtr(m.ID)
		pairs = append(pairs, Pair{Solution: m, Feedback: feedback})
	}

	return links, pairs
}

func nextUserMessage(ordered []transcript.Message, from int) (transcript.Message, bool) {
	for i := from; i < len(ordered); i++ {
		if ordered[i].Role == transcript.RoleUser {
			return ordered[i], true
		}
	}
	return transcript.Message{}, false
}

func strPtr(s string) *string {
	return &s
}
