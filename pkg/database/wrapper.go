package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Params holds named statement parameters. Keys match the :name
// placeholders in the SQL text.
type Params = map[string]any

// Row is one result row rendered to text, keyed by column name.
// NULL columns are present with an empty value.
type Row map[string]string

// Database executes named statements against a pool or a transaction.
// It is safe for concurrent use when backed by a pool; a transactional
// Database must not be shared across goroutines.
type Database struct {
	ext    sqlx.ExtContext
	pool   *sqlx.DB
	logger *zap.SugaredLogger
}

// New wraps an sqlx pool. A nil logger disables statement logging.
func New(db *sqlx.DB, logger *zap.SugaredLogger) *Database {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Database{ext: db, pool: db, logger: logger}
}

// Execute runs a mutation and returns the number of affected rows.
func (d *Database) Execute(ctx context.Context, query string, params Params) (int64, error) {
	start := time.Now()
	res, err := sqlx.NamedExecContext(ctx, d.ext, query, nonNil(params))
	if err != nil {
		d.logger.Debugw("sql exec failed", "sql", query, "err", err)
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	d.logger.Debugw("sql exec", "sql", query, "rows", n, "duration_ms", millis(start))
	return n, nil
}

// Query runs a select and returns every row rendered to text.
// An empty result is an empty, non-nil slice.
func (d *Database) Query(ctx context.Context, query string, params Params) ([]Row, error) {
	start := time.Now()
	rows, err := sqlx.NamedQueryContext(ctx, d.ext, query, nonNil(params))
	if err != nil {
		d.logger.Debugw("sql query failed", "sql", query, "err", err)
		return nil, err
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		raw := map[string]any{}
		if err := rows.MapScan(raw); err != nil {
			return nil, err
		}
		row := make(Row, len(raw))
		for col, v := range raw {
			row[col] = Text(v)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	d.logger.Debugw("sql query", "sql", query, "rows", len(out), "duration_ms", millis(start))
	return out, nil
}

// GetStrValue returns the first column of the first row, or nil when
// the query yields no row or a NULL.
func (d *Database) GetStrValue(ctx context.Context, query string, params Params) (*string, error) {
	start := time.Now()
	rows, err := sqlx.NamedQueryContext(ctx, d.ext, query, nonNil(params))
	if err != nil {
		d.logger.Debugw("sql scalar failed", "sql", query, "err", err)
		return nil, err
	}
	defer rows.Close()

	var out *string
	if rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if v != nil {
			s := Text(v)
			out = &s
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	d.logger.Debugw("sql scalar", "sql", query, "found", out != nil, "duration_ms", millis(start))
	return out, nil
}

// WithTx runs fn with a Database bound to a single transaction. The
// transaction commits when fn returns nil and rolls back on error or panic;
// panics are re-raised. Called on a transactional Database, fn joins the
// surrounding transaction.
func (d *Database) WithTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx *Database) error) (err error) {
	if d.pool == nil {
		return fn(ctx, d)
	}
	tx, err := d.pool.BeginTxx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				d.logger.Warnw("rollback failed", "err", rbErr)
			}
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, &Database{ext: tx, logger: d.logger})
	return err
}

// Text renders a scanned column value the way rows are exposed to
// hydration code.
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

func nonNil(p Params) Params {
	if p == nil {
		return Params{}
	}
	return p
}

func millis(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
