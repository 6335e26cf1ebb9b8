// Package localstore is an embedded Badger sink for import runs, used when no
// Postgres database is available.
//
// Every run lives under its own key prefix:
//
//	run/<id>/meta            archive.Run
//	run/<id>/user/<nick>     chat.User
//	run/<id>/msg/<seq>       chat.Message    (seq zero-padded to 10 digits)
//	run/<id>/conv/<seq>      chat.Conversation
//	run/<id>/word/<word>     index entry with its first-seen position
//	run/<id>/done            written after everything else
//
// A run without its done marker is treated as absent.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/onnwee/irc-tender/archive"
	"github.com/onnwee/irc-tender/chat"
)

// ErrRunNotFound is returned for unknown or unfinished runs.
var ErrRunNotFound = errors.New("run not found")

// Store wraps a Badger database.
type Store struct {
	db  *badger.DB
	dir string
}

// Open opens (or creates) a store in dir.
func Open(dir string) (*Store, error) {
	return open(badger.DefaultOptions(dir), dir)
}

// OpenInMemory opens a store that lives only as long as the process.
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true), "")
}

func open(opts badger.Options, dir string) (*Store, error) {
	db, err := badger.Open(opts.WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &Store{db: db, dir: dir}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// wordRecord keeps the index order, which key order alone would lose.
type wordRecord struct {
	Position      int                   `json:"position"`
	Conversations []chat.ConversationID `json:"conversations"`
}

func runPrefix(id uuid.UUID) string { return "run/" + id.String() + "/" }

func metaKey(id uuid.UUID) []byte { return []byte(runPrefix(id) + "meta") }
func doneKey(id uuid.UUID) []byte { return []byte(runPrefix(id) + "done") }
func userKey(id uuid.UUID, nick string) []byte {
	return []byte(runPrefix(id) + "user/" + nick)
}
func msgKey(id uuid.UUID, seq chat.MessageID) []byte {
	return []byte(fmt.Sprintf("%smsg/%010d", runPrefix(id), seq))
}
func convKey(id uuid.UUID, seq chat.ConversationID) []byte {
	return []byte(fmt.Sprintf("%sconv/%010d", runPrefix(id), seq))
}
func wordKey(id uuid.UUID, word string) []byte {
	return []byte(runPrefix(id) + "word/" + word)
}

// Save writes run and h. The batch is flushed before the done marker is set,
// so a crash mid-save leaves a run that Load and Runs ignore.
func (s *Store) Save(ctx context.Context, run archive.Run, h *chat.History) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	set := func(key []byte, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		return wb.Set(key, data)
	}

	if err := set(metaKey(run.ID), run); err != nil {
		return err
	}
	for _, u := range h.Users {
		if err := set(userKey(run.ID, u.Nick), u); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, m := range h.Messages {
		if err := set(msgKey(run.ID, m.ID), m); err != nil {
			return err
		}
	}
	for _, c := range h.Conversations {
		if err := set(convKey(run.ID, c.ID), c); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for i, e := range h.Index {
		if err := set(wordKey(run.ID, e.Word), wordRecord{Position: i, Conversations: e.Conversations}); err != nil {
			return err
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush run %s: %w", run.ID, err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(doneKey(run.ID), []byte(time.Now().UTC().Format(time.RFC3339)))
	})
}

// Load reads a finished run back into a history.
func (s *Store) Load(id uuid.UUID) (archive.Run, *chat.History, error) {
	var run archive.Run
	h := &chat.History{}
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(doneKey(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrRunNotFound
			}
			return err
		}
		if err := getJSON(txn, metaKey(id), &run); err != nil {
			return err
		}

		prefix := runPrefix(id)
		if err := scan(txn, prefix+"user/", func(_ string, val []byte) error {
			var u chat.User
			if err := json.Unmarshal(val, &u); err != nil {
				return err
			}
			h.Users = append(h.Users, u)
			return nil
		}); err != nil {
			return err
		}
		if err := scan(txn, prefix+"msg/", func(_ string, val []byte) error {
			var m chat.Message
			if err := json.Unmarshal(val, &m); err != nil {
				return err
			}
			h.Messages = append(h.Messages, m)
			return nil
		}); err != nil {
			return err
		}
		if err := scan(txn, prefix+"conv/", func(_ string, val []byte) error {
			var c chat.Conversation
			if err := json.Unmarshal(val, &c); err != nil {
				return err
			}
			h.Conversations = append(h.Conversations, c)
			return nil
		}); err != nil {
			return err
		}

		var words []wordRecord
		var names []string
		if err := scan(txn, prefix+"word/", func(suffix string, val []byte) error {
			var w wordRecord
			if err := json.Unmarshal(val, &w); err != nil {
				return err
			}
			words = append(words, w)
			names = append(names, suffix)
			return nil
		}); err != nil {
			return err
		}
		h.Index = make([]chat.IndexEntry, len(words))
		for i, w := range words {
			if w.Position < 0 || w.Position >= len(words) {
				return fmt.Errorf("word %q has position %d out of range", names[i], w.Position)
			}
			h.Index[w.Position] = chat.IndexEntry{Word: names[i], Conversations: w.Conversations}
		}
		return nil
	})
	if err != nil {
		return archive.Run{}, nil, err
	}
	return run, h, nil
}

// Search returns the conversations of run id that contain word.
func (s *Store) Search(id uuid.UUID, word string) ([]chat.ConversationID, error) {
	var w wordRecord
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(doneKey(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrRunNotFound
			}
			return err
		}
		err := getJSON(txn, wordKey(id, word), &w)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if w.Conversations == nil {
		return []chat.ConversationID{}, nil
	}
	return w.Conversations, nil
}

// Conversation loads one conversation of run id and its messages in
// conversation order. ok is false when the conversation does not exist.
func (s *Store) Conversation(id uuid.UUID, seq chat.ConversationID) (conv chat.Conversation, msgs []chat.Message, ok bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(doneKey(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrRunNotFound
			}
			return err
		}
		if err := getJSON(txn, convKey(id, seq), &conv); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		ok = true
		for _, mid := range conv.Messages {
			var m chat.Message
			if err := getJSON(txn, msgKey(id, mid), &m); err != nil {
				return fmt.Errorf("message %d of conversation %d: %w", mid, seq, err)
			}
			msgs = append(msgs, m)
		}
		return nil
	})
	if err != nil || !ok {
		return chat.Conversation{}, nil, false, err
	}
	return conv, msgs, true, nil
}

// Runs lists finished runs, newest first.
func (s *Store) Runs() ([]archive.Run, error) {
	var runs []archive.Run
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte("run/")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			if !strings.HasSuffix(key, "/done") {
				continue
			}
			id, err := uuid.Parse(strings.TrimSuffix(strings.TrimPrefix(key, "run/"), "/done"))
			if err != nil {
				continue
			}
			var run archive.Run
			if err := getJSON(txn, metaKey(id), &run); err != nil {
				return err
			}
			runs = append(runs, run)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return runs, nil
}

// PruneIncomplete drops the keys of runs that never received a done marker.
// It returns how many runs were removed.
func (s *Store) PruneIncomplete() (int, error) {
	meta := map[uuid.UUID]bool{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte("run/")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			rest := strings.TrimPrefix(string(it.Item().Key()), "run/")
			idPart, kind, ok := strings.Cut(rest, "/")
			if !ok {
				continue
			}
			id, err := uuid.Parse(idPart)
			if err != nil {
				continue
			}
			if kind == "done" {
				meta[id] = true
			} else if _, seen := meta[id]; !seen {
				meta[id] = false
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	pruned := 0
	for id, done := range meta {
		if done {
			continue
		}
		if err := s.db.DropPrefix([]byte(runPrefix(id))); err != nil {
			return pruned, fmt.Errorf("drop run %s: %w", id, err)
		}
		slog.Info("pruned unfinished run", slog.String("component", "localstore"), slog.String("run_id", id.String()))
		pruned++
	}
	return pruned, nil
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

// scan calls fn for every key under prefix, in key order, with the key
// suffix after prefix.
func scan(txn *badger.Txn, prefix string, fn func(suffix string, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		suffix := strings.TrimPrefix(string(item.Key()), prefix)
		if err := item.Value(func(val []byte) error { return fn(suffix, val) }); err != nil {
			return err
		}
	}
	return nil
}
