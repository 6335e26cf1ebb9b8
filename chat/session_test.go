package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = Date{2015, 1, 1}

func feedAll(t *testing.T, s *Session, lines ...string) []Outcome {
	t.Helper()
	out := make([]Outcome, 0, len(lines))
	for _, l := range lines {
		out = append(out, s.Feed(day, l))
	}
	return out
}

func TestSessionPresenceClosesConversation(t *testing.T) {
	s := NewSession(IndexOptions{})
	outcomes := feedAll(t, s,
		"10:00:00 <alice> anyone around?",
		"10:00:05 <bob> alice: yes",
	)
	assert.Equal(t, []Outcome{OutcomeOpened, OutcomeAppended}, outcomes)
	require.Equal(t, []ConversationID{0}, s.Active())
	assert.True(t, s.Online("alice"))
	assert.True(t, s.Online("bob"))

	s.Feed(day, "10:01:00 --- quit: alice (Quit: bye)")
	assert.False(t, s.Online("alice"))
	assert.Equal(t, []ConversationID{0}, s.Active(), "bob is still online")

	s.Feed(day, "10:02:00 --- quit: bob (Remote host closed the connection)")
	assert.Empty(t, s.Active())
	conv, ok := s.Conversation(0)
	require.True(t, ok)
	assert.True(t, conv.Closed)
	assert.Equal(t, 1, s.Stats().Closed)
}

func TestSessionQuitOfSoleMemberClosesAndDrainsPool(t *testing.T) {
	s := NewSession(IndexOptions{})
	feedAll(t, s,
		"00:00:00 <pjb> Cons Ignucius.",
		"00:00:01 <pjb> still here",
	)
	require.Len(t, s.Unanswered(), 2)

	out := s.Feed(Date{2015, 1, 1}, "00:00:00 --- quit: pjb reason")
	assert.Equal(t, OutcomeControl, out)
	assert.Empty(t, s.Active())
	assert.Empty(t, s.Unanswered(), "closed conversation's messages leave the pool")

	h := s.History()
	require.Len(t, h.Conversations, 1)
	assert.True(t, h.Conversations[0].Closed)
	require.Len(t, h.Messages, 3)
	assert.Equal(t, CommandQuit, h.Messages[2].Command)
	assert.Equal(t, "reason", h.Messages[2].Text)
	assert.Equal(t, NoConversation, h.Messages[2].Conversation)
}

func TestSessionResponseLinking(t *testing.T) {
	s := NewSession(IndexOptions{})
	feedAll(t, s,
		"09:00:00 <dave> anybody know loop?",
		"09:00:10 <eve> hi dave",
	)
	dave, _ := s.Message(0)
	eve, _ := s.Message(1)

	assert.Equal(t, MessageID(0), eve.InResponseTo)
	assert.Equal(t, dave.Conversation, eve.Conversation)
	assert.Equal(t, []MessageID{1}, s.Unanswered(), "dave's message was answered")
}

func TestSessionResponseLinkIsSingleUse(t *testing.T) {
	s := NewSession(IndexOptions{})
	feedAll(t, s,
		"09:00:00 <dave> anybody know loop?",
		"09:00:10 <eve> hi dave",
		"09:00:20 <carol> dave: me too",
	)
	carol, ok := s.Message(2)
	require.True(t, ok)
	assert.Equal(t, NoMessage, carol.InResponseTo, "dave's message may only be answered once")
	assert.Equal(t, ConversationID(1), carol.Conversation)
	assert.Equal(t, []ConversationID{0, 1}, s.Active())
}

func TestSessionResponseLinkFirstMatchWins(t *testing.T) {
	s := NewSession(IndexOptions{})
	feedAll(t, s,
		"09:00:00 <dave> first",
		"09:00:01 <zoe> second",
		"09:00:02 <dave> third",
		"09:00:03 <kim> zoe and dave",
	)
	kim, _ := s.Message(3)
	assert.Equal(t, MessageID(0), kim.InResponseTo, "oldest unanswered message wins")
	assert.Equal(t, []MessageID{1, 2, 3}, s.Unanswered())
}

func TestSessionConversationAssignment(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  []ConversationID
	}{
		{
			name:  "same author joins existing conversation",
			lines: []string{"01:00:00 <ann> one", "01:00:01 <ann> two"},
			want:  []ConversationID{0, 0},
		},
		{
			name:  "unrelated authors open separate conversations",
			lines: []string{"01:00:00 <ann> one", "01:00:01 <ben> two"},
			want:  []ConversationID{0, 1},
		},
		{
			name:  "prior message mentioning the new author",
			lines: []string{"01:00:00 <ann> where is ben", "01:00:01 <ben> right here"},
			want:  []ConversationID{0, 0},
		},
		{
			name: "first active conversation wins",
			lines: []string{
				"01:00:00 <ann> one",
				"01:00:01 <ben> two",
				"01:00:02 <cid> hello ann and ben",
			},
			want: []ConversationID{0, 1, 0},
		},
		{
			name:  "short nick matches inside unrelated words",
			lines: []string{"01:00:00 <ann> what a day", "01:00:01 <a> hmm"},
			want:  []ConversationID{0, 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(IndexOptions{})
			feedAll(t, s, tt.lines...)
			h := s.History()
			got := make([]ConversationID, 0, len(h.Messages))
			for _, m := range h.Messages {
				got = append(got, m.Conversation)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSessionClosedConversationIsNotReused(t *testing.T) {
	s := NewSession(IndexOptions{})
	feedAll(t, s,
		"01:00:00 <ann> one",
		"01:00:01 --- quit: ann gone",
		"01:00:02 <ann> back again",
	)
	h := s.History()
	require.Len(t, h.Conversations, 2)
	assert.True(t, h.Conversations[0].Closed)
	assert.False(t, h.Conversations[1].Closed)
	assert.Equal(t, []MessageID{2}, h.Conversations[1].Messages)
}

func TestSessionJoinDoesNotSetPresence(t *testing.T) {
	s := NewSession(IndexOptions{})
	out := s.Feed(day, "08:00:00 --- join: bob (~bob@host) joined #lisp")
	assert.Equal(t, OutcomeControl, out)
	assert.False(t, s.Online("bob"))
	assert.Empty(t, s.Active())
	assert.Equal(t, 1, s.Stats().Messages)
}

func TestSessionQuitOfOfflineUserIsNoop(t *testing.T) {
	s := NewSession(IndexOptions{})
	feedAll(t, s, "01:00:00 <ann> hello")
	s.Feed(day, "01:00:01 --- quit: ghost bye")
	assert.Equal(t, []ConversationID{0}, s.Active())
	assert.True(t, s.Online("ann"))
}

func TestSessionDiscardsEmptyMessages(t *testing.T) {
	s := NewSession(IndexOptions{})
	outcomes := feedAll(t, s,
		"01:00:00 <ann> ",
		"01:00:01 --- log: started lisp/15.01.01",
	)
	assert.Equal(t, []Outcome{OutcomeDiscarded, OutcomeDropped}, outcomes)
	st := s.Stats()
	assert.Zero(t, st.Messages)
	assert.Zero(t, st.Conversations)
	assert.Equal(t, 1, st.Discarded)
	assert.Equal(t, 1, st.Users, "parsing still registers the author")
	assert.False(t, s.Online("ann"))
	assert.True(t, s.History().Empty())
}

func TestSessionPreservesOrder(t *testing.T) {
	s := NewSession(IndexOptions{})
	lines := []string{
		"01:00:00 <ann> one",
		"garbage",
		"01:00:01 --- join: ben joined",
		"01:00:02 <ben> ",
		"01:00:03 <ben> two",
		"01:00:04 --- quit: ann bye",
		"01:00:05 <cid> three",
	}
	feedAll(t, s, lines...)
	h := s.History()

	var texts []string
	for i, m := range h.Messages {
		assert.Equal(t, MessageID(i), m.ID)
		if i > 0 {
			assert.False(t, m.Timestamp.Before(h.Messages[i-1].Timestamp))
		}
		texts = append(texts, m.Text)
	}
	assert.Equal(t, []string{"one", "joined", "two", "bye", "three"}, texts)
}

func TestSessionIndexesConversationWords(t *testing.T) {
	s := NewSession(IndexOptions{})
	feedAll(t, s,
		"01:00:00 <ann> The macro expands twice",
		"01:00:01 <ben> unrelated closure question",
		"01:00:02 <ann> the MACRO expander",
		"01:00:03 <cid> the and of",
	)
	ix := s.Index()
	assert.Equal(t, []ConversationID{0}, ix.Lookup("macro"))
	assert.Equal(t, []ConversationID{1}, ix.Lookup("closure"))
	assert.Empty(t, ix.Lookup("the"))

	h := s.History()
	words := make([]string, 0, len(h.Index))
	for _, e := range h.Index {
		words = append(words, e.Word)
	}
	assert.Equal(t, []string{"macro", "expands", "twice", "unrelated", "closure", "question", "expander"}, words)
	assert.Equal(t, 3, len(h.Conversations), "stopword-only message still opens a conversation")
}

func TestSessionHistoryIsSnapshot(t *testing.T) {
	s := NewSession(IndexOptions{})
	feedAll(t, s, "01:00:00 <ann> hello world")
	h := s.History()
	h.Conversations[0].Messages[0] = 42
	h.Messages[0].Text = "changed"

	conv, _ := s.Conversation(0)
	msg, _ := s.Message(0)
	assert.Equal(t, []MessageID{0}, conv.Messages)
	assert.Equal(t, "hello world", msg.Text)
}

func TestSessionApplyRegistersAuthor(t *testing.T) {
	s := NewSession(IndexOptions{})
	out := s.Apply(Message{Timestamp: day.At(1, 0, 0), Author: "zed", Text: "direct"})
	assert.Equal(t, OutcomeOpened, out)
	_, ok := s.Users().Lookup("zed")
	assert.True(t, ok)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "opened", OutcomeOpened.String())
	assert.Equal(t, "unknown", Outcome(99).String())
}
