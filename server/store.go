package server

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/onnwee/irc-tender/archive"
	"github.com/onnwee/irc-tender/chat"
	"github.com/onnwee/irc-tender/db"
	"github.com/onnwee/irc-tender/localstore"
)

// Store is the read side of a sink.
type Store interface {
	Ping(ctx context.Context) error
	Runs(ctx context.Context, limit int) ([]archive.Run, error)
	LatestRunID(ctx context.Context) (uuid.UUID, error)
	Search(ctx context.Context, runID uuid.UUID, word string) ([]chat.ConversationID, error)
	Conversation(ctx context.Context, runID uuid.UUID, seq chat.ConversationID) (chat.Conversation, []chat.Message, bool, error)
}

// PostgresStore serves runs written by db.Save.
func PostgresStore(conn *sql.DB) Store { return pgStore{conn} }

type pgStore struct{ db *sql.DB }

func (s pgStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s pgStore) Runs(ctx context.Context, limit int) ([]archive.Run, error) {
	return db.ListRuns(ctx, s.db, limit)
}

func (s pgStore) LatestRunID(ctx context.Context) (uuid.UUID, error) {
	id, err := db.LatestRunID(ctx, s.db)
	if errors.Is(err, db.ErrNoRuns) {
		return uuid.Nil, errNoRuns
	}
	return id, err
}

func (s pgStore) Search(ctx context.Context, runID uuid.UUID, word string) ([]chat.ConversationID, error) {
	return db.SearchWord(ctx, s.db, runID, word)
}

func (s pgStore) Conversation(ctx context.Context, runID uuid.UUID, seq chat.ConversationID) (chat.Conversation, []chat.Message, bool, error) {
	return db.ConversationMessages(ctx, s.db, runID, seq)
}

// BadgerStore serves runs written by localstore.Store.Save.
func BadgerStore(ls *localstore.Store) Store { return badgerStore{ls} }

type badgerStore struct{ ls *localstore.Store }

func (s badgerStore) Ping(context.Context) error {
	_, err := s.ls.Runs()
	return err
}

func (s badgerStore) Runs(_ context.Context, limit int) ([]archive.Run, error) {
	runs, err := s.ls.Runs()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s badgerStore) LatestRunID(ctx context.Context) (uuid.UUID, error) {
	runs, err := s.Runs(ctx, 1)
	if err != nil {
		return uuid.Nil, err
	}
	if len(runs) == 0 {
		return uuid.Nil, errNoRuns
	}
	return runs[0].ID, nil
}

func (s badgerStore) Search(_ context.Context, runID uuid.UUID, word string) ([]chat.ConversationID, error) {
	convs, err := s.ls.Search(runID, word)
	if errors.Is(err, localstore.ErrRunNotFound) {
		return nil, errRunNotFound
	}
	return convs, err
}

func (s badgerStore) Conversation(_ context.Context, runID uuid.UUID, seq chat.ConversationID) (chat.Conversation, []chat.Message, bool, error) {
	conv, msgs, ok, err := s.ls.Conversation(runID, seq)
	if errors.Is(err, localstore.ErrRunNotFound) {
		return chat.Conversation{}, nil, false, errRunNotFound
	}
	return conv, msgs, ok, err
}
