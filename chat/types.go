package chat

import (
	"fmt"
	"time"
)

// Command tags control lines. Plain chat carries CommandNone.
type Command string

const (
	CommandNone Command = ""
	CommandJoin Command = "join"
	CommandQuit Command = "quit"
)

// MessageID is the index of a message in the Session's message arena.
type MessageID int

// ConversationID is the index of a conversation in the Session's conversation arena.
type ConversationID int

const (
	// NoMessage marks an unset message reference.
	NoMessage MessageID = -1
	// NoConversation marks a message that belongs to no conversation (control lines).
	NoConversation ConversationID = -1
)

// User is a chat participant identified by a case-sensitive nickname.
type User struct {
	Nick string `json:"nick"`
}

// Message is a single chat utterance or control event.
type Message struct {
	ID           MessageID      `json:"id"`
	Timestamp    time.Time      `json:"ts"`
	Text         string         `json:"text"`
	Command      Command        `json:"command,omitempty"`
	Author       string         `json:"author"`
	InResponseTo MessageID      `json:"in_response_to"`
	Conversation ConversationID `json:"conversation"`
}

// IsControl reports whether the message came from a join/quit line.
func (m Message) IsControl() bool { return m.Command != CommandNone }

// String renders the message the way it appears in the source log.
func (m Message) String() string {
	if m.IsControl() {
		return fmt.Sprintf("%s --- %s %s %s", m.Timestamp.Format(time.DateTime), m.Command, m.Author, m.Text)
	}
	return fmt.Sprintf("%s <%s> %s", m.Timestamp.Format(time.DateTime), m.Author, m.Text)
}

// Conversation is an ordered run of messages believed to be one exchange.
type Conversation struct {
	ID       ConversationID `json:"id"`
	Messages []MessageID    `json:"messages"`
	Closed   bool           `json:"closed"`
}

// IndexEntry lists the conversations a word occurs in, in first-seen order.
type IndexEntry struct {
	Word          string           `json:"word"`
	Conversations []ConversationID `json:"conversations"`
}

// History is the final object graph of an import run.
type History struct {
	Users         []User         `json:"users"`
	Messages      []Message      `json:"messages"`
	Conversations []Conversation `json:"conversations"`
	Index         []IndexEntry   `json:"index"`
}

// Empty reports whether the run produced no messages at all.
func (h *History) Empty() bool { return len(h.Messages) == 0 }

// Date is the calendar day an archive covers.
type Date struct {
	Year  int
	Month int
	Day   int
}

// At combines the date with a wall-clock time of day. Log times carry no zone;
// they are stored as UTC wall-clock values.
func (d Date) At(hour, min, sec int) time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, hour, min, sec, 0, time.UTC)
}

func (d Date) String() string { return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day) }
