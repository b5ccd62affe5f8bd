/*
2019 © Postgres.ai
*/

package sqlexec

import (
	"context"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"

	"gitlab.com/postgres-ai/database-lab/v2/pkg/log"

	"gitlab.com/postgres-ai/chegar/pkg/util/text"
)

// Pool defaults.
const (
	defaultMaxConnIdleTime   = 5 * time.Minute
	defaultHealthCheckPeriod = time.Minute

	maxLoggedStatementLength = 200
)

// PostgresTransport runs statements through a pgx connection pool.
type PostgresTransport struct {
	pool *pgxpool.Pool
}

// NewPostgresTransport connects a pool to the database described by dsn.
func NewPostgresTransport(ctx context.Context, dsn string, maxConns int32) (*PostgresTransport, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse the database DSN")
	}

	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	poolCfg.MaxConnIdleTime = defaultMaxConnIdleTime
	poolCfg.HealthCheckPeriod = defaultHealthCheckPeriod

	pool, err := pgxpool.ConnectConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to the database")
	}

	return &PostgresTransport{pool: pool}, nil
}

// Exec runs a single statement.
func (t *PostgresTransport) Exec(ctx context.Context, stmt Statement) (*Result, error) {
	return runStatement(ctx, t.pool, stmt)
}

// ExecBatch runs statements inside one transaction.
func (t *PostgresTransport) ExecBatch(ctx context.Context, stmts []Statement) ([]*Result, error) {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return nil, clarifyQueryError(errors.Wrap(err, "failed to begin a transaction"))
	}

	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			log.Err("Failed to roll back a transaction:", err)
		}
	}()

	results := make([]*Result, 0, len(stmts))

	for _, stmt := range stmts {
		res, err := runStatement(ctx, tx, stmt)
		if err != nil {
			return nil, err
		}

		results = append(results, res)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, clarifyQueryError(errors.Wrap(err, "failed to commit a transaction"))
	}

	return results, nil
}

// Close closes all pool connections.
func (t *PostgresTransport) Close() error {
	t.pool.Close()
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

func runStatement(ctx context.Context, db querier, stmt Statement) (*Result, error) {
	logged, _ := text.CutText(stmt.SQL, maxLoggedStatementLength, "...")
	log.Dbg("DB query:", logged)

	rows, err := db.Query(ctx, stmt.SQL, stmt.Params...)
	if err != nil {
		return nil, clarifyQueryError(err)
	}
	defer rows.Close()

	result := &Result{Rows: []Row{}}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, clarifyQueryError(err)
		}

		fields := rows.FieldDescriptions()
		row := make(Row, len(fields))

		for i, field := range fields {
			row[string(field.Name)] = values[i]
		}

		result.Rows = append(result.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, clarifyQueryError(err)
	}

	result.RowsAffected = rows.CommandTag().RowsAffected()

	return result, nil
}

// clarifyQueryError converts server errors into DatabaseError keeping the SQLSTATE code.
func clarifyQueryError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &DatabaseError{Message: pgErr.Message, Code: pgErr.Code, Err: err}
	}

	return err
}
