package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/onnwee/irc-tender/archive"
	"github.com/onnwee/irc-tender/chat"
	"github.com/onnwee/irc-tender/telemetry"
)

var (
	errNoRuns      = errors.New("no runs imported yet")
	errRunNotFound = errors.New("run not found")
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	store Store
	opts  Options
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(store Store, opts Options) *Handlers {
	return &Handlers{store: store, opts: opts}
}

type runsResponse struct {
	Runs []archive.Run `json:"runs"`
}

// HandleRuns lists recent runs, newest first. ?limit= caps the list (default 20).
func (h *Handlers) HandleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := parseIntQuery(r, "limit", 20)
	if limit < 1 || limit > 500 {
		http.Error(w, "limit must be between 1 and 500", http.StatusBadRequest)
		return
	}
	runs, err := h.store.Runs(r.Context(), limit)
	if err != nil {
		h.internalError(w, r, "list runs", err)
		return
	}
	if runs == nil {
		runs = []archive.Run{}
	}
	writeJSON(w, http.StatusOK, runsResponse{Runs: runs})
}

type searchResponse struct {
	RunID         uuid.UUID             `json:"run_id"`
	Word          string                `json:"word"`
	Conversations []chat.ConversationID `json:"conversations"`
}

// HandleSearch returns the conversations of a run containing ?q=<word>.
// ?run= selects the run; the latest run is used when it is absent.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	word := strings.TrimSpace(r.URL.Query().Get("q"))
	if word == "" {
		http.Error(w, "missing q", http.StatusBadRequest)
		return
	}
	if toks := chat.Tokenize(word); len(toks) != 1 || toks[0] != word {
		http.Error(w, "q must be a single word", http.StatusBadRequest)
		return
	}
	if !h.opts.CaseSensitive {
		word = strings.ToLower(word)
	}

	runID, ok := h.resolveRun(w, r)
	if !ok {
		return
	}
	convs, err := h.store.Search(r.Context(), runID, word)
	if err != nil {
		h.storeError(w, r, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{RunID: runID, Word: word, Conversations: convs})
}

type conversationResponse struct {
	RunID        uuid.UUID         `json:"run_id"`
	Conversation chat.Conversation `json:"conversation"`
	Messages     []chat.Message    `json:"messages"`
}

// HandleConversation serves /conversations/<seq>[?run=<uuid>].
func (h *Handlers) HandleConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, "/conversations/")
	seq, err := strconv.Atoi(raw)
	if err != nil || seq < 0 || strings.Contains(raw, "/") {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}

	runID, ok := h.resolveRun(w, r)
	if !ok {
		return
	}
	conv, msgs, found, err := h.store.Conversation(r.Context(), runID, chat.ConversationID(seq))
	if err != nil {
		h.storeError(w, r, "load conversation", err)
		return
	}
	if !found {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	writeJSON(w, http.StatusOK, conversationResponse{RunID: runID, Conversation: conv, Messages: msgs})
}

// resolveRun reads ?run= or falls back to the latest run. It writes the error
// response itself and reports false when the request cannot proceed.
func (h *Handlers) resolveRun(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if v := r.URL.Query().Get("run"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			http.Error(w, "invalid run id", http.StatusBadRequest)
			return uuid.Nil, false
		}
		return id, true
	}
	id, err := h.store.LatestRunID(r.Context())
	if err != nil {
		h.storeError(w, r, "latest run", err)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handlers) storeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, errNoRuns), errors.Is(err, errRunNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		h.internalError(w, r, op, err)
	}
}

func (h *Handlers) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	telemetry.LoggerWithCorr(r.Context()).Error("store query failed",
		slog.String("component", "http"), slog.String("op", op), slog.Any("error", err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}
