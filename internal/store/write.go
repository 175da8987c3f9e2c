package store

import (
	"context"
	"fmt"

	"github.com/roach88/redworker/internal/worker"
)

var _ worker.Journal = (*Store)(nil)

// Record implements worker.Journal.
func (s *Store) Record(ev worker.Event) error {
	return s.WriteEvent(context.Background(), ev)
}

// WriteEvent appends one worker event. The session row is created on the
// session's first event; a session_start event also stores its detail as
// the session config.
//
// Uses ON CONFLICT DO NOTHING for idempotency - an event already stored
// under the same (session, seq) is silently ignored.
func (s *Store) WriteEvent(ctx context.Context, ev worker.Event) error {
	if ev.Session == "" {
		return fmt.Errorf("write event: empty session id")
	}
	if ev.Seq == 0 {
		return fmt.Errorf("write event: seq must be positive")
	}

	detailJSON, detailHash, err := marshalDetail(ev.Detail)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write event: begin: %w", err)
	}
	defer tx.Rollback()

	config := "{}"
	if ev.Kind == worker.EventSessionStart {
		config = detailJSON
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, started_seq, config)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, ev.Session, ev.Seq, config); err != nil {
		return fmt.Errorf("write event: session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO events
		(session_id, seq, kind, channel, surface, stream, serial, message, detail, detail_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		ev.Session,
		ev.Seq,
		string(ev.Kind),
		ev.Channel,
		ev.Surface,
		ev.Stream,
		ev.Serial,
		ev.Message,
		detailJSON,
		detailHash,
	); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write event: commit: %w", err)
	}
	return nil
}

// DeleteSession removes a session and its events.
func (s *Store) DeleteSession(ctx context.Context, session string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete session: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE session_id = ?`, session); err != nil {
		return fmt.Errorf("delete session events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, session); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return tx.Commit()
}
