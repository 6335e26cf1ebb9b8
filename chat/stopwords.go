package chat

import (
	_ "embed"
	"strings"
	"sync"
)

//go:embed stopwords.txt
var stopwordList string

// stopwords is parsed once per process and only read afterwards.
var stopwords = sync.OnceValue(func() map[string]struct{} {
	set := make(map[string]struct{}, 200)
	for _, w := range strings.Split(stopwordList, "\n") {
		w = strings.TrimSpace(w)
		if w == "" || strings.HasPrefix(w, "#") {
			continue
		}
		set[w] = struct{}{}
	}
	return set
})

// IsStopword reports whether word is excluded from the index. The check is
// case-insensitive.
func IsStopword(word string) bool {
	_, ok := stopwords()[strings.ToLower(word)]
	return ok
}
