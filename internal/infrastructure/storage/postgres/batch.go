package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// BatchInserter streams rows through the COPY protocol. Batch appends go
// this way once they carry more than a handful of entries.
type BatchInserter struct {
	txManager *TxManager
}

// NewBatchInserter creates the inserter.
func NewBatchInserter(txManager *TxManager) *BatchInserter {
	return &BatchInserter{txManager: txManager}
}

// CopyFromSlice copies rows into table. Each row must line up with columns.
// COPY cannot be retried halfway, so a transaction must already be open in
// the context.
func (b *BatchInserter) CopyFromSlice(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	current := b.txManager.GetTx(ctx)
	if current == nil {
		return 0, fmt.Errorf("copy into %s: no transaction in context", table)
	}
	return current.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
}
