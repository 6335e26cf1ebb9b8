package chat

import (
	"strings"
	"unicode"
)

// asciiPunctuation is the set of characters that, together with whitespace,
// separate tokens.
const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// Tokenize splits text on runs of whitespace and ASCII punctuation.
// Empty tokens never appear in the result.
func Tokenize(text string) []string {
	return strings.FieldsFunc(text, isSeparator)
}

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || (r < unicode.MaxASCII && strings.ContainsRune(asciiPunctuation, r))
}

// IndexOptions controls how words are keyed.
type IndexOptions struct {
	// CaseSensitive keeps tokens as written. By default tokens are lower-cased.
	CaseSensitive bool
}

// Index maps words to the conversations containing them. Each conversation is
// listed at most once per word, in the order it first used the word.
type Index struct {
	opts  IndexOptions
	words map[string][]ConversationID
	seen  map[string]map[ConversationID]struct{}
	order []string
}

// NewIndex returns an empty index.
func NewIndex(opts IndexOptions) *Index {
	return &Index{
		opts:  opts,
		words: make(map[string][]ConversationID),
		seen:  make(map[string]map[ConversationID]struct{}),
	}
}

// Add tokenizes text and links every non-stopword token to conv.
// It returns the number of words seen for the first time.
func (ix *Index) Add(conv ConversationID, text string) int {
	added := 0
	for _, tok := range Tokenize(text) {
		if IsStopword(tok) {
			continue
		}
		w := ix.key(tok)
		convs, ok := ix.seen[w]
		if !ok {
			convs = make(map[ConversationID]struct{}, 1)
			ix.seen[w] = convs
			ix.order = append(ix.order, w)
			added++
		}
		if _, dup := convs[conv]; dup {
			continue
		}
		convs[conv] = struct{}{}
		ix.words[w] = append(ix.words[w], conv)
	}
	return added
}

// Lookup returns the conversations for word, keyed the same way Add keys tokens.
func (ix *Index) Lookup(word string) []ConversationID {
	convs := ix.words[ix.key(word)]
	out := make([]ConversationID, len(convs))
	copy(out, convs)
	return out
}

// Len returns the number of distinct words.
func (ix *Index) Len() int { return len(ix.order) }

// Entries returns the index in first-insertion word order.
func (ix *Index) Entries() []IndexEntry {
	out := make([]IndexEntry, 0, len(ix.order))
	for _, w := range ix.order {
		convs := make([]ConversationID, len(ix.words[w]))
		copy(convs, ix.words[w])
		out = append(out, IndexEntry{Word: w, Conversations: convs})
	}
	return out
}

func (ix *Index) key(tok string) string {
	if ix.opts.CaseSensitive {
		return tok
	}
	return strings.ToLower(tok)
}
