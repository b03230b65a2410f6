package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/query"
)

type GatewayConfig struct {
	QueryTimeout time.Duration
	Logger       *slog.Logger
}

// Gateway executes gated, read-only statements on pooled connections.
type Gateway struct {
	db           *sql.DB
	queryTimeout time.Duration
	logger       *slog.Logger
}

func NewGateway(db *sql.DB, cfg GatewayConfig) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Gateway{db: db, queryTimeout: cfg.QueryTimeout, logger: logger}
}

func (g *Gateway) ExecuteSelect(ctx context.Context, sqlText string, params ...any) (query.Result, error) {
	if !query.IsSelectQuery(sqlText) {
		return query.Result{}, g.reject(ctx, sqlText)
	}
	return g.run(ctx, query.StripTrailingSemicolons(sqlText), params)
}

// Analyze runs EXPLAIN ANALYZE over a select statement and returns the plan rows.
func (g *Gateway) Analyze(ctx context.Context, sqlText string) (query.Result, error) {
	inner := query.StripTrailingSemicolons(sqlText)
	if !query.IsSelectQuery(inner) || strings.HasPrefix(strings.ToLower(inner), "explain") {
		return query.Result{}, g.reject(ctx, sqlText)
	}
	return g.run(ctx, "EXPLAIN ANALYZE "+inner, nil)
}

func (g *Gateway) Ping(ctx context.Context) error {
	return g.db.PingContext(ctx)
}

func (g *Gateway) reject(ctx context.Context, sqlText string) error {
	observability.IncrementSQLRejected()
	g.logger.WarnContext(ctx, "sql_rejected", slog.String("sql", sqlText))
	return &query.ValidationError{SQL: sqlText}
}

func (g *Gateway) run(ctx context.Context, sqlText string, params []any) (query.Result, error) {
	if g.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.queryTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := g.execute(ctx, sqlText, params)
	elapsed := time.Since(start)
	observability.ObserveSQLExecution(elapsed, err)
	if err != nil {
		g.logger.ErrorContext(ctx, "sql_execution_failed",
			slog.String("sql", sqlText),
			slog.String("error", err.Error()),
		)
		return query.Result{}, &query.ExecutionError{SQL: sqlText, Err: err}
	}
	result.Duration = elapsed
	g.logger.DebugContext(ctx, "sql_executed",
		slog.String("sql", sqlText),
		slog.Int("rows", len(result.Rows)),
		slog.String("duration", elapsed.String()),
	)
	return result, nil
}

func (g *Gateway) execute(ctx context.Context, sqlText string, params []any) (result query.Result, err error) {
	conn, err := g.db.Conn(ctx)
	if err != nil {
		return query.Result{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return query.Result{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err = scanRows(ctx, tx, sqlText, params)
	if err != nil {
		return query.Result{}, err
	}
	if err = tx.Commit(); err != nil {
		return query.Result{}, fmt.Errorf("commit transaction: %w", err)
	}
	return result, nil
}

func scanRows(ctx context.Context, tx *sql.Tx, sqlText string, params []any) (query.Result, error) {
	rows, err := tx.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return query.Result{}, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([]query.Row, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, fmt.Errorf("scan row: %w", err)
		}
		row := make(query.Row, len(columns))
		for i, column := range columns {
			row[column] = normalizeValue(values[i])
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	return query.Result{Columns: columns, Rows: resultRows}, nil
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	default:
		return typed
	}
}
