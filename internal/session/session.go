// Package session provides durable per-user conversation history plus the
// session-scoped auxiliary data used for flow bookkeeping.
//
// A session is the ordered sequence of turns a user has exchanged with the
// assistant, stored oldest-first, which is the only ordering guarantee the
// model needs. Sessions are created implicitly on first interaction and never
// destroyed; growth is bounded by the caller through [Store.Truncate].
//
// # Concurrency
//
// Store is safe for concurrent use across users. Turns for the same user
// must be serialized by the caller (the dispatcher holds a per-user lock
// across load → generate → append), otherwise two concurrent turns could
// both read stale history.
package session

import (
	"github.com/firebase/genkit/go/ai"
)

// State is one user's session: ordered conversation turns plus auxiliary
// key-value data. It is a snapshot; mutating it does not touch storage.
type State struct {
	UserID   int64
	Messages []*ai.Message
	Aux      map[string]string
}

// Empty reports whether the session has no recorded turns.
func (s *State) Empty() bool {
	return len(s.Messages) == 0
}
