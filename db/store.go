package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/irc-tender/archive"
	"github.com/onnwee/irc-tender/chat"
)

// ErrNoRuns is returned when a query needs a run and none has been imported.
var ErrNoRuns = errors.New("no import runs recorded")

// Save writes run and its history in a single transaction. Nothing is
// visible to readers unless every row lands.
func Save(ctx context.Context, db *sql.DB, run archive.Run, h *chat.History) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO import_runs (id, base_url, started_at, finished_at, archives, failed) VALUES ($1,$2,$3,$4,$5,$6)`,
		run.ID, run.BaseURL, run.StartedAt, nullTime(run.FinishedAt), run.Archives, run.Failed); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if err = insertUsers(ctx, tx, h.Users); err != nil {
		return err
	}
	if err = insertConversations(ctx, tx, run.ID, h.Conversations); err != nil {
		return err
	}
	if err = insertMessages(ctx, tx, run.ID, h.Messages); err != nil {
		return err
	}
	if err = insertIndex(ctx, tx, run.ID, h.Index); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertUsers(ctx context.Context, tx *sql.Tx, users []chat.User) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO users (nick) VALUES ($1) ON CONFLICT (nick) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare users: %w", err)
	}
	defer stmt.Close()
	for _, u := range users {
		if _, err := stmt.ExecContext(ctx, u.Nick); err != nil {
			return fmt.Errorf("insert user %q: %w", u.Nick, err)
		}
	}
	return nil
}

func insertConversations(ctx context.Context, tx *sql.Tx, runID uuid.UUID, convs []chat.Conversation) error {
	convStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO conversations (run_id, seq, closed, message_count) VALUES ($1,$2,$3,$4)`)
	if err != nil {
		return fmt.Errorf("prepare conversations: %w", err)
	}
	defer convStmt.Close()
	memberStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO conversation_messages (run_id, conversation_seq, position, message_seq) VALUES ($1,$2,$3,$4)`)
	if err != nil {
		return fmt.Errorf("prepare conversation members: %w", err)
	}
	defer memberStmt.Close()

	for _, c := range convs {
		if _, err := convStmt.ExecContext(ctx, runID, int(c.ID), c.Closed, len(c.Messages)); err != nil {
			return fmt.Errorf("insert conversation %d: %w", c.ID, err)
		}
		for pos, mid := range c.Messages {
			if _, err := memberStmt.ExecContext(ctx, runID, int(c.ID), pos, int(mid)); err != nil {
				return fmt.Errorf("insert conversation %d member %d: %w", c.ID, mid, err)
			}
		}
	}
	return nil
}

func insertMessages(ctx context.Context, tx *sql.Tx, runID uuid.UUID, msgs []chat.Message) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO messages (run_id, seq, ts, text, command, user_nick, in_response_to, conversation_seq) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`)
	if err != nil {
		return fmt.Errorf("prepare messages: %w", err)
	}
	defer stmt.Close()
	for _, m := range msgs {
		if _, err := stmt.ExecContext(ctx, runID, int(m.ID), m.Timestamp, m.Text, string(m.Command), m.Author,
			nullSeq(int(m.InResponseTo)), nullSeq(int(m.Conversation))); err != nil {
			return fmt.Errorf("insert message %d: %w", m.ID, err)
		}
	}
	return nil
}

func insertIndex(ctx context.Context, tx *sql.Tx, runID uuid.UUID, entries []chat.IndexEntry) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO index_words (run_id, word, position, conversation_seq) VALUES ($1,$2,$3,$4)`)
	if err != nil {
		return fmt.Errorf("prepare index: %w", err)
	}
	defer stmt.Close()
	for _, e := range entries {
		for pos, cid := range e.Conversations {
			if _, err := stmt.ExecContext(ctx, runID, e.Word, pos, int(cid)); err != nil {
				return fmt.Errorf("insert index word %q: %w", e.Word, err)
			}
		}
	}
	return nil
}

// nullSeq maps the -1 "no reference" sentinel to SQL NULL.
func nullSeq(v int) sql.NullInt64 {
	if v < 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(v), Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// ListRuns returns up to limit runs, newest first.
func ListRuns(ctx context.Context, db *sql.DB, limit int) ([]archive.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, base_url, started_at, finished_at, archives, failed FROM import_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []archive.Run
	for rows.Next() {
		var r archive.Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.BaseURL, &r.StartedAt, &finished, &r.Archives, &r.Failed); err != nil {
			return nil, err
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestRunID returns the id of the most recently started run.
func LatestRunID(ctx context.Context, db *sql.DB) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.QueryRowContext(ctx, `SELECT id FROM import_runs ORDER BY started_at DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, ErrNoRuns
	}
	return id, err
}

// SearchWord returns the conversations word occurs in for a run, in the
// order the index recorded them.
func SearchWord(ctx context.Context, db *sql.DB, runID uuid.UUID, word string) ([]chat.ConversationID, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT conversation_seq FROM index_words WHERE run_id=$1 AND word=$2 ORDER BY position`, runID, word)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []chat.ConversationID{}
	for rows.Next() {
		var seq int
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		out = append(out, chat.ConversationID(seq))
	}
	return out, rows.Err()
}

// ConversationMessages loads one conversation of a run with its messages in
// conversation order. ok is false when the conversation does not exist.
func ConversationMessages(ctx context.Context, db *sql.DB, runID uuid.UUID, seq chat.ConversationID) (conv chat.Conversation, msgs []chat.Message, ok bool, err error) {
	err = db.QueryRowContext(ctx,
		`SELECT seq, closed FROM conversations WHERE run_id=$1 AND seq=$2`, runID, int(seq)).Scan(&conv.ID, &conv.Closed)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Conversation{}, nil, false, nil
	}
	if err != nil {
		return chat.Conversation{}, nil, false, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT m.seq, m.ts, m.text, m.command, m.user_nick, m.in_response_to, m.conversation_seq
		FROM conversation_messages cm
		JOIN messages m ON m.run_id = cm.run_id AND m.seq = cm.message_seq
		WHERE cm.run_id=$1 AND cm.conversation_seq=$2
		ORDER BY cm.position`, runID, int(seq))
	if err != nil {
		return chat.Conversation{}, nil, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			m           chat.Message
			command     string
			resp, convq sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.Timestamp, &m.Text, &command, &m.Author, &resp, &convq); err != nil {
			return chat.Conversation{}, nil, false, err
		}
		m.Command = chat.Command(command)
		m.InResponseTo = chat.NoMessage
		if resp.Valid {
			m.InResponseTo = chat.MessageID(resp.Int64)
		}
		m.Conversation = chat.NoConversation
		if convq.Valid {
			m.Conversation = chat.ConversationID(convq.Int64)
		}
		conv.Messages = append(conv.Messages, m.ID)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return chat.Conversation{}, nil, false, err
	}
	return conv, msgs, true, nil
}
