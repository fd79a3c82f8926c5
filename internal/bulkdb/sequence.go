package bulkdb

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Sequence hands out primary keys reserved under a table lock, so callers
// can know the ids of rows before they are inserted.
type Sequence struct {
	next int64
	used bool
}

// NextVal returns the next reserved id.
func (s *Sequence) NextVal() int64 {
	v := s.next
	s.next++
	s.used = true
	return v
}

// WithSequenceLock locks table in EXCLUSIVE mode, reads the current value of
// its id sequence, and lets fn allocate ids in memory. The sequence is
// written back afterwards so later inserts continue from the right place.
// The lock is released when the surrounding transaction ends.
func WithSequenceLock(ctx context.Context, tx pgx.Tx, table string, fn func(seq *Sequence) error) error {
	sequence := table + "_id_seq"
	if _, err := tx.Exec(ctx, fmt.Sprintf("LOCK TABLE %s IN EXCLUSIVE MODE", table)); err != nil {
		return fmt.Errorf("bulkdb: lock %s: %w", table, err)
	}
	var start int64
	if err := tx.QueryRow(ctx, fmt.Sprintf("SELECT nextval('%s')", sequence)).Scan(&start); err != nil {
		return fmt.Errorf("bulkdb: read %s: %w", sequence, err)
	}
	seq := &Sequence{next: start}
	if err := fn(seq); err != nil {
		return err
	}
	// is_called=false so the next nextval() returns exactly seq.next
	if _, err := tx.Exec(ctx, fmt.Sprintf("SELECT setval('%s', $1, false)", sequence), seq.next); err != nil {
		return fmt.Errorf("bulkdb: store %s: %w", sequence, err)
	}
	return nil
}
