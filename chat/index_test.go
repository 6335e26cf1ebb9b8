package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"Cons Ignucius.", []string{"Cons", "Ignucius"}},
		{"  (defun foo (x) x)  ", []string{"defun", "foo", "x", "x"}},
		{"don't-panic!!!", []string{"don", "t", "panic"}},
		{"tab\tand\nnewline", []string{"tab", "and", "newline"}},
		{"ünïcode wörds", []string{"ünïcode", "wörds"}},
		{"...", nil},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := Tokenize(tt.text)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenizeIdempotent(t *testing.T) {
	texts := []string{
		"hi dave, how's SBCL 2.0 doing?",
		"<<<>>> multiple;;;separators___here",
		"plain",
	}
	for _, text := range texts {
		assert.Equal(t, Tokenize(text), Tokenize(text))
	}
}

func TestIsStopword(t *testing.T) {
	for _, w := range []string{"the", "The", "and", "don", "t", "you're"} {
		assert.True(t, IsStopword(w), w)
	}
	for _, w := range []string{"lisp", "macro", "defun", ""} {
		assert.False(t, IsStopword(w), w)
	}
}

func TestIndexStopwordsOnlyAddsNothing(t *testing.T) {
	ix := NewIndex(IndexOptions{})
	added := ix.Add(0, "The and of, to IS it's!")
	assert.Zero(t, added)
	assert.Zero(t, ix.Len())
	assert.Empty(t, ix.Entries())
}

func TestIndexDeduplicatesPerConversation(t *testing.T) {
	ix := NewIndex(IndexOptions{})
	ix.Add(0, "macro macro Macro")
	ix.Add(1, "a macro here")
	ix.Add(0, "another macro")

	assert.Equal(t, []ConversationID{0, 1}, ix.Lookup("macro"))
	assert.Equal(t, []ConversationID{0, 1}, ix.Lookup("MACRO"), "lookup folds case like Add")
	assert.Equal(t, []IndexEntry{
		{Word: "macro", Conversations: []ConversationID{0, 1}},
		{Word: "another", Conversations: []ConversationID{0}},
	}, ix.Entries())
}

func TestIndexCaseSensitive(t *testing.T) {
	ix := NewIndex(IndexOptions{CaseSensitive: true})
	ix.Add(0, "Lisp lisp")
	ix.Add(1, "LISP The")

	assert.Equal(t, 3, ix.Len())
	assert.Equal(t, []ConversationID{0}, ix.Lookup("Lisp"))
	assert.Equal(t, []ConversationID{1}, ix.Lookup("LISP"))
	assert.Empty(t, ix.Lookup("lISP"))
}

func TestIndexLookupReturnsCopy(t *testing.T) {
	ix := NewIndex(IndexOptions{})
	ix.Add(3, "closure")
	got := ix.Lookup("closure")
	got[0] = 99
	assert.Equal(t, []ConversationID{3}, ix.Lookup("closure"))
}
