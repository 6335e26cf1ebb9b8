package chat

import "strings"

// Outcome describes what Session.Feed did with one line.
type Outcome int

const (
	// OutcomeDropped means the line matched no known shape.
	OutcomeDropped Outcome = iota
	// OutcomeDiscarded means a chat line had no text and was not stored.
	OutcomeDiscarded
	// OutcomeControl means a join/quit line was recorded.
	OutcomeControl
	// OutcomeOpened means a chat message started a new conversation.
	OutcomeOpened
	// OutcomeAppended means a chat message joined an active conversation.
	OutcomeAppended
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDropped:
		return "dropped"
	case OutcomeDiscarded:
		return "discarded"
	case OutcomeControl:
		return "control"
	case OutcomeOpened:
		return "opened"
	case OutcomeAppended:
		return "appended"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of Session counters.
type Stats struct {
	Users         int
	Messages      int
	Conversations int
	Active        int
	Closed        int
	Online        int
	Unanswered    int
	Words         int
	Discarded     int
}

// Session is the state of one import run: the message and conversation
// arenas, presence, the unanswered pool and the word index.
// It is not safe for concurrent use.
type Session struct {
	users         *Registry
	messages      []Message
	conversations []Conversation
	index         *Index

	online     map[string]struct{}
	active     []ConversationID
	unanswered []MessageID

	closed    int
	discarded int
}

// NewSession returns an empty session.
func NewSession(opts IndexOptions) *Session {
	return &Session{
		users:  NewRegistry(),
		index:  NewIndex(opts),
		online: make(map[string]struct{}),
	}
}

// Users exposes the run's user registry.
func (s *Session) Users() *Registry { return s.users }

// Feed parses one line of the archive for date and applies it.
func (s *Session) Feed(date Date, line string) Outcome {
	msg, ok := ParseLine(s.users, date, line)
	if !ok {
		return OutcomeDropped
	}
	return s.Apply(msg)
}

// Apply threads a parsed message into the session. Messages must arrive in
// log order.
func (s *Session) Apply(msg Message) Outcome {
	// ParseLine registers authors; do the same for callers building messages directly.
	s.users.FindOrCreate(msg.Author)

	switch msg.Command {
	case CommandQuit:
		s.record(msg)
		s.quit(msg.Author)
		return OutcomeControl
	case CommandJoin:
		// Presence comes from chat activity only; a join is just logged.
		s.record(msg)
		return OutcomeControl
	}

	if msg.Text == "" {
		s.discarded++
		return OutcomeDiscarded
	}

	msg.InResponseTo = s.takeAnswered(msg.Text)
	conv, found := s.findConversation(msg)

	outcome := OutcomeAppended
	if !found {
		conv = ConversationID(len(s.conversations))
		s.conversations = append(s.conversations, Conversation{ID: conv})
		s.active = append(s.active, conv)
		outcome = OutcomeOpened
	}
	msg.Conversation = conv
	id := s.record(msg)
	s.conversations[conv].Messages = append(s.conversations[conv].Messages, id)

	s.online[msg.Author] = struct{}{}
	s.unanswered = append(s.unanswered, id)
	s.index.Add(conv, msg.Text)
	return outcome
}

func (s *Session) record(msg Message) MessageID {
	msg.ID = MessageID(len(s.messages))
	if msg.Command != CommandNone {
		msg.InResponseTo = NoMessage
		msg.Conversation = NoConversation
	}
	s.messages = append(s.messages, msg)
	return msg.ID
}

// takeAnswered links text to the first unanswered message whose author is
// named in it and removes that message from the pool.
func (s *Session) takeAnswered(text string) MessageID {
	for i, id := range s.unanswered {
		if strings.Contains(text, s.messages[id].Author) {
			s.unanswered = append(s.unanswered[:i], s.unanswered[i+1:]...)
			return id
		}
	}
	return NoMessage
}

// findConversation returns the first active conversation with a message that
// msg answers, that shares msg's author, or that mentions msg's author.
func (s *Session) findConversation(msg Message) (ConversationID, bool) {
	for _, cid := range s.active {
		for _, mid := range s.conversations[cid].Messages {
			prior := s.messages[mid]
			if mid == msg.InResponseTo ||
				prior.Author == msg.Author ||
				strings.Contains(prior.Text, msg.Author) {
				return cid, true
			}
		}
	}
	return NoConversation, false
}

// quit takes nick offline and closes every active conversation left without
// an online participant. Quitting an offline nick only re-checks conversations.
func (s *Session) quit(nick string) {
	delete(s.online, nick)

	kept := s.active[:0]
	for _, cid := range s.active {
		if s.hasOnlineParticipant(cid) {
			kept = append(kept, cid)
			continue
		}
		s.close(cid)
	}
	s.active = kept
}

func (s *Session) hasOnlineParticipant(cid ConversationID) bool {
	for _, mid := range s.conversations[cid].Messages {
		if _, ok := s.online[s.messages[mid].Author]; ok {
			return true
		}
	}
	return false
}

func (s *Session) close(cid ConversationID) {
	s.conversations[cid].Closed = true
	s.closed++

	members := make(map[MessageID]struct{}, len(s.conversations[cid].Messages))
	for _, mid := range s.conversations[cid].Messages {
		members[mid] = struct{}{}
	}
	pool := s.unanswered[:0]
	for _, mid := range s.unanswered {
		if _, ok := members[mid]; !ok {
			pool = append(pool, mid)
		}
	}
	s.unanswered = pool
}

// Message returns the message with the given id.
func (s *Session) Message(id MessageID) (Message, bool) {
	if id < 0 || int(id) >= len(s.messages) {
		return Message{}, false
	}
	return s.messages[id], true
}

// Conversation returns a copy of the conversation with the given id.
func (s *Session) Conversation(id ConversationID) (Conversation, bool) {
	if id < 0 || int(id) >= len(s.conversations) {
		return Conversation{}, false
	}
	return cloneConversation(s.conversations[id]), true
}

// Active returns the ids of conversations that are still open, in opening order.
func (s *Session) Active() []ConversationID {
	out := make([]ConversationID, len(s.active))
	copy(out, s.active)
	return out
}

// Unanswered returns the ids of messages that may still be answered, oldest first.
func (s *Session) Unanswered() []MessageID {
	out := make([]MessageID, len(s.unanswered))
	copy(out, s.unanswered)
	return out
}

// Online reports whether nick is currently considered present.
func (s *Session) Online(nick string) bool {
	_, ok := s.online[nick]
	return ok
}

// Index exposes the word index.
func (s *Session) Index() *Index { return s.index }

// Stats returns the current counters.
func (s *Session) Stats() Stats {
	return Stats{
		Users:         s.users.Len(),
		Messages:      len(s.messages),
		Conversations: len(s.conversations),
		Active:        len(s.active),
		Closed:        s.closed,
		Online:        len(s.online),
		Unanswered:    len(s.unanswered),
		Words:         s.index.Len(),
		Discarded:     s.discarded,
	}
}

// History returns the accumulated object graph. Conversations are listed in
// opening order whether closed or still active.
func (s *Session) History() *History {
	h := &History{
		Users:         s.users.Users(),
		Messages:      make([]Message, len(s.messages)),
		Conversations: make([]Conversation, 0, len(s.conversations)),
		Index:         s.index.Entries(),
	}
	copy(h.Messages, s.messages)
	for _, c := range s.conversations {
		h.Conversations = append(h.Conversations, cloneConversation(c))
	}
	return h
}

func cloneConversation(c Conversation) Conversation {
	msgs := make([]MessageID, len(c.Messages))
	copy(msgs, c.Messages)
	c.Messages = msgs
	return c
}
