// Package transcript reads completed session transcripts into typed,
// ordered message sequences.
package transcript

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSummary   Role = "summary"
)

// Message is a single turn in a completed session transcript.
// Immutable once read: back-fill only ever attaches metadata to it.
type Message struct {
	ID            string
	SessionID     string
	Role          Role
	Content       string
	SequenceIndex int
	Timestamp     time.Time

	// ToolsUsed lists the names of tools invoked for this message, taken
	// from tool_use content blocks. Feeds technical-domain classification.
	ToolsUsed []string
}
