package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"goalkeeper/internal/domain"
)

// Journal is the append-only log of goal changes.
type Journal struct {
	DB *sql.DB
}

// Filter narrows Latest. Cursor is an event id; only older events are returned.
type Filter struct {
	Kind   string
	GoalID string
	Limit  int
	Cursor int64
}

const defaultLimit = 50

func (j Journal) Append(ctx context.Context, c domain.Change) error {
	data, err := json.Marshal(c.Goal)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = j.DB.ExecContext(ctx, `INSERT INTO events(seq,ts,kind,goal_id,payload_json) VALUES (?,?,?,?,?)`,
		c.Seq, c.TS, string(c.Kind), c.GoalID, string(data))
	if err != nil {
		return fmt.Errorf("append event %d: %w", c.Seq, err)
	}
	return nil
}

// Listener adapts the journal into a store listener. Append failures are
// logged and never reach the store.
func (j Journal) Listener(ctx context.Context, log zerolog.Logger, timeout time.Duration) func(domain.Change) {
	return func(c domain.Change) {
		actx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := j.Append(actx, c); err != nil {
			log.Error().Err(err).Int64("seq", c.Seq).Str("kind", string(c.Kind)).Msg("journal append failed")
		}
	}
}

// Latest returns events newest first.
func (j Journal) Latest(ctx context.Context, f Filter) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, f.Kind)
	}
	if f.GoalID != "" {
		clauses = append(clauses, "goal_id=?")
		args = append(args, f.GoalID)
	}
	if f.Cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Cursor)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	query := fmt.Sprintf(`SELECT id,seq,ts,kind,goal_id,payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`,
		strings.Join(clauses, " AND "))
	args = append(args, limit)
	return j.query(ctx, query, args...)
}

// After returns events with ids greater than cursor, oldest first.
func (j Journal) After(ctx context.Context, cursor int64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return j.query(ctx, `SELECT id,seq,ts,kind,goal_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
}

// Counts returns the number of journaled events per kind.
func (j Journal) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := j.DB.QueryContext(ctx, `SELECT kind,n FROM event_counts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

func (j Journal) query(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := j.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.Seq, &e.TS, &e.Kind, &e.GoalID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
