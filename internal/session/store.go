package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/agrisight/agrisight/internal/database"
	"github.com/agrisight/agrisight/internal/log"
)

// Store persists session state in an embedded SQLite database. Turn content
// is Genkit's []*ai.Part serialized as JSON, one row per turn with a
// per-user sequence number assigned inside the append transaction.
type Store struct {
	db     *sql.DB
	logger log.Logger
}

// Open opens (creating if necessary) the session database at path and
// applies pending migrations.
func Open(path string, logger log.Logger) (*Store, error) {
	db, err := database.Open(path)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("session store opened", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Load returns the user's full session state, oldest turn first. A user
// with no history gets an empty state, not an error.
func (s *Store) Load(ctx context.Context, userID int64) (*State, error) {
	state := &State{UserID: userID, Aux: make(map[string]string)}

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM turns WHERE user_id = ? ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		var parts []*ai.Part
		if err := json.Unmarshal([]byte(content), &parts); err != nil {
			return nil, fmt.Errorf("decoding turn content: %w", err)
		}
		state.Messages = append(state.Messages, &ai.Message{
			Role:    ai.Role(role),
			Content: parts,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turns: %w", err)
	}

	auxRows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM aux WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying aux data: %w", err)
	}
	defer func() { _ = auxRows.Close() }()

	for auxRows.Next() {
		var k, v string
		if err := auxRows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning aux row: %w", err)
		}
		state.Aux[k] = v
	}
	if err := auxRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating aux rows: %w", err)
	}

	return state, nil
}

// Append durably appends msgs to the user's session in one transaction.
// Sequence numbers are assigned under the transaction, so a crash can never
// leave a partially appended batch visible.
func (s *Store) Append(ctx context.Context, userID int64, msgs []*ai.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var maxSeq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM turns WHERE user_id = ?`, userID,
	).Scan(&maxSeq); err != nil {
		return fmt.Errorf("reading max sequence: %w", err)
	}

	now := time.Now().Unix()
	for i, msg := range msgs {
		for j, part := range msg.Content {
			if part == nil {
				return fmt.Errorf("message %d has nil content at index %d", i, j)
			}
		}

		contentJSON, err := json.Marshal(msg.Content)
		if err != nil {
			return fmt.Errorf("encoding message %d: %w", i, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO turns (id, user_id, seq, role, content, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), userID, maxSeq+int64(i)+1, string(msg.Role), string(contentJSON), now,
		); err != nil {
			return fmt.Errorf("inserting message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}

	s.logger.Debug("appended turns", "user_id", userID, "count", len(msgs))
	return nil
}

// Aux returns the session-scoped value for key, reporting presence
// explicitly so callers can distinguish "absent" from "empty".
func (s *Store) Aux(ctx context.Context, userID int64, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM aux WHERE user_id = ? AND key = ?`, userID, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading aux %q: %w", key, err)
	}
	return value, true, nil
}

// SetAux durably upserts a session-scoped key-value pair.
func (s *Store) SetAux(ctx context.Context, userID int64, key, value string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO aux (user_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, key) DO UPDATE SET value = excluded.value`,
		userID, key, value,
	); err != nil {
		return fmt.Errorf("writing aux %q: %w", key, err)
	}
	return nil
}

// ClearAux removes a session-scoped key. Clearing an absent key is not an
// error.
func (s *Store) ClearAux(ctx context.Context, userID int64, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM aux WHERE user_id = ? AND key = ?`, userID, key,
	); err != nil {
		return fmt.Errorf("clearing aux %q: %w", key, err)
	}
	return nil
}

// ClearAuxPrefix removes every session-scoped key starting with prefix.
// Flows use this to drop all of their bookkeeping in one call.
func (s *Store) ClearAuxPrefix(ctx context.Context, userID int64, prefix string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM aux WHERE user_id = ? AND key LIKE ? || '%'`, userID, prefix,
	); err != nil {
		return fmt.Errorf("clearing aux prefix %q: %w", prefix, err)
	}
	return nil
}

// Truncate drops the user's oldest turns so at most keep remain.
// keep <= 0 is a no-op: truncation is a policy decision owned by the
// caller, not the store.
func (s *Store) Truncate(ctx context.Context, userID int64, keep int) error {
	if keep <= 0 {
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM turns WHERE user_id = ? AND seq <= (
		    SELECT COALESCE(MAX(seq), 0) - ? FROM turns WHERE user_id = ?
		)`, userID, keep, userID)
	if err != nil {
		return fmt.Errorf("truncating history: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Debug("truncated history", "user_id", userID, "dropped", n, "keep", keep)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing session database: %w", err)
	}
	return nil
}
