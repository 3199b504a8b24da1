package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/zenith/hydra/internal/island"
)

// TransitionRow is one journaled island state change. FromState is empty
// for a registration and ToState is empty for a removal.
type TransitionRow struct {
	IslandID  string
	ExecType  string
	FromState string
	ToState   string
	Error     string
	At        time.Time
}

// RowFromTransition converts a registry transition into a journal row.
func RowFromTransition(t island.Transition) TransitionRow {
	return TransitionRow{
		IslandID:  t.ID,
		ExecType:  string(t.ExecType),
		FromState: string(t.From),
		ToState:   string(t.To),
		Error:     t.Error,
		At:        t.At.UTC(),
	}
}

type JournalRepo struct {
	db *DB
}

func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

// Append writes a batch of rows in a single transaction.
func (r *JournalRepo) Append(ctx context.Context, rows []TransitionRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(
			`INSERT INTO island_transitions (island_id, exec_type, from_state, to_state, error, at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			row.IslandID, row.ExecType, row.FromState, row.ToState, row.Error, row.At,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("journal insert: %w", err)
	}

	return tx.Commit(ctx)
}

// History returns the newest transitions of one island, newest first.
func (r *JournalRepo) History(ctx context.Context, islandID string, limit int) ([]TransitionRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx,
		`SELECT island_id, exec_type, from_state, to_state, error, at
		 FROM island_transitions WHERE island_id = $1
		 ORDER BY at DESC, id DESC LIMIT $2`,
		islandID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("journal history: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[TransitionRow])
	if err != nil {
		return nil, fmt.Errorf("journal history scan: %w", err)
	}
	return out, nil
}

// Prune deletes rows older than before and reports how many went.
func (r *JournalRepo) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM island_transitions WHERE at < $1`, before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("journal prune: %w", err)
	}
	return tag.RowsAffected(), nil
}
