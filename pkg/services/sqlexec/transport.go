/*
2021 © Postgres.ai
*/

package sqlexec

import (
	"context"
)

// Transport delivers statements to a database.
type Transport interface {
	// Exec runs a single statement.
	Exec(ctx context.Context, stmt Statement) (*Result, error)

	// ExecBatch runs statements in order as one atomic unit:
	// either all of them are applied or none is.
	ExecBatch(ctx context.Context, stmts []Statement) ([]*Result, error)

	// Close releases transport resources.
	Close() error
}
