// Package chat reconstructs conversations from archived IRC channel logs.
//
// It provides three layers that are driven line by line, in log order:
//   - ParseLine: turns one "HH:MM:SS" prefixed log line into a Message
//     (a chat line or a join/quit control line) and resolves its author in
//     the run's user Registry.
//   - Session: the mutable state of one import run. It tracks who is online,
//     which conversations are still active, and which messages may still be
//     answered, and it threads each accepted message into a conversation.
//   - Index: the inverted word index from tokens to the conversations that
//     contain them, updated by the Session for every threaded message.
//
// A Session has a single writer. Callers that fetch archives concurrently must
// still feed lines to it strictly in archive order and line order.
//
// Messages and conversations reference each other through integer handles
// (MessageID, ConversationID) into arenas owned by the Session, so History can
// be persisted or inspected without walking pointer cycles.
package chat
