package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/redworker/internal/worker"
)

// Session is a journaled worker session.
type Session struct {
	ID         string
	StartedSeq uint64
	Config     map[string]any
	Events     int
}

// EventFilter narrows ReadEvents. Zero fields match everything.
type EventFilter struct {
	Kinds   []worker.EventKind
	Channel string
	// AfterSeq skips events with seq <= AfterSeq.
	AfterSeq uint64
	Limit    int
}

// ReadSessions returns every session ordered by id.
//
// Returns an empty slice (not nil) when the journal is empty.
func (s *Store) ReadSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.started_seq, s.config, COUNT(e.seq)
		FROM sessions s
		LEFT JOIN events e ON e.session_id = s.id
		GROUP BY s.id
		ORDER BY s.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		var config string
		if err := rows.Scan(&sess.ID, &sess.StartedSeq, &config, &sess.Events); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if sess.Config, err = unmarshalDetail(config); err != nil {
			return nil, fmt.Errorf("session %s: %w", sess.ID, err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// LatestSession returns the id of the most recently created session.
// Returns sql.ErrNoRows if the journal is empty.
func (s *Store) LatestSession(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM sessions ORDER BY rowid DESC LIMIT 1
	`).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ReadEvents returns the events of a session in seq order.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadEvents(ctx context.Context, session string, filter EventFilter) ([]worker.Event, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT session_id, seq, kind, channel, surface, stream, serial, message, detail
		FROM events
		WHERE session_id = ? AND seq > ?`)
	args := []any{session, filter.AfterSeq}

	if len(filter.Kinds) > 0 {
		sb.WriteString(" AND kind IN (")
		for i, k := range filter.Kinds {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("?")
			args = append(args, string(k))
		}
		sb.WriteString(")")
	}
	if filter.Channel != "" {
		sb.WriteString(" AND channel = ?")
		args = append(args, filter.Channel)
	}
	sb.WriteString(" ORDER BY seq ASC")
	if filter.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []worker.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// ReadEvent retrieves a single event.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadEvent(ctx context.Context, session string, seq uint64) (worker.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, seq, kind, channel, surface, stream, serial, message, detail
		FROM events
		WHERE session_id = ? AND seq = ?
	`, session, seq)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return worker.Event{}, sql.ErrNoRows
	}
	return ev, err
}

// DetailHash returns the stored digest of an event's detail, empty when the
// event has none.
func (s *Store) DetailHash(ctx context.Context, session string, seq uint64) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `
		SELECT detail_hash FROM events WHERE session_id = ? AND seq = ?
	`, session, seq).Scan(&hash)
	return hash, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (worker.Event, error) {
	var ev worker.Event
	var kind, detail string
	err := row.Scan(
		&ev.Session,
		&ev.Seq,
		&kind,
		&ev.Channel,
		&ev.Surface,
		&ev.Stream,
		&ev.Serial,
		&ev.Message,
		&detail,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ev, err
		}
		return ev, fmt.Errorf("scan event: %w", err)
	}
	ev.Kind = worker.EventKind(kind)
	if ev.Detail, err = unmarshalDetail(detail); err != nil {
		return ev, fmt.Errorf("event %d: %w", ev.Seq, err)
	}
	return ev, nil
}
