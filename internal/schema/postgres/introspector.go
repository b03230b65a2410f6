package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/askdb/askdb/internal/schema"
)

// columnsQuery attributes key constraints through key_column_usage, which
// names the constrained column; constraint_column_usage would name the
// referenced column of a foreign key.
const columnsQuery = `
SELECT
	t.table_name,
	c.column_name,
	c.data_type,
	c.is_nullable,
	c.column_default,
	c.character_maximum_length,
	(
		SELECT string_agg(DISTINCT owned.constraint_type, ', ' ORDER BY owned.constraint_type)
		FROM (
			SELECT tc.constraint_type
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON kcu.constraint_name = tc.constraint_name
				AND kcu.constraint_schema = tc.constraint_schema
			WHERE tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE', 'FOREIGN KEY')
				AND kcu.table_schema = t.table_schema
				AND kcu.table_name = t.table_name
				AND kcu.column_name = c.column_name
			UNION ALL
			SELECT tc.constraint_type
			FROM information_schema.table_constraints tc
			JOIN information_schema.constraint_column_usage ccu
				ON ccu.constraint_name = tc.constraint_name
				AND ccu.constraint_schema = tc.constraint_schema
			WHERE tc.constraint_type = 'CHECK'
				AND tc.table_schema = t.table_schema
				AND tc.table_name = t.table_name
				AND ccu.column_name = c.column_name
		) owned
	) AS constraints
FROM information_schema.tables t
JOIN information_schema.columns c
	ON t.table_name = c.table_name
	AND t.table_schema = c.table_schema
WHERE t.table_schema = $1
	AND t.table_type = 'BASE TABLE'
ORDER BY t.table_name, c.ordinal_position`

const foreignKeysQuery = `
SELECT
	tc.table_name,
	kcu.column_name,
	ccu.table_name AS foreign_table_name,
	ccu.column_name AS foreign_column_name
FROM information_schema.table_constraints AS tc
JOIN information_schema.key_column_usage AS kcu
	ON tc.constraint_name = kcu.constraint_name
	AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage AS ccu
	ON ccu.constraint_name = tc.constraint_name
	AND ccu.constraint_schema = tc.constraint_schema
WHERE tc.constraint_type = 'FOREIGN KEY'
	AND tc.table_schema = $1
ORDER BY tc.table_name, kcu.ordinal_position`

// Connector opens a dedicated database handle for one introspection pass.
type Connector func(ctx context.Context) (*sql.DB, error)

// ConnectDSN returns a Connector that opens a single-connection handle on dsn.
func ConnectDSN(dsn string) Connector {
	return func(ctx context.Context) (*sql.DB, error) {
		if dsn == "" {
			return nil, fmt.Errorf("database dsn is required")
		}
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(1)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		return db, nil
	}
}

// Introspector reads table metadata from information_schema. Each call opens
// and closes its own connection.
type Introspector struct {
	connect Connector
}

func NewIntrospector(connect Connector) *Introspector {
	return &Introspector{connect: connect}
}

func (i *Introspector) GetSchema(ctx context.Context, schemaName string) (schema.Document, error) {
	schemaName = schema.NormalizeName(schemaName)

	db, err := i.connect(ctx)
	if err != nil {
		return nil, &schema.IntrospectionError{Schema: schemaName, Stage: "connect", Err: err}
	}
	defer func() { _ = db.Close() }()

	doc, err := readColumns(ctx, db, schemaName)
	if err != nil {
		return nil, &schema.IntrospectionError{Schema: schemaName, Stage: "columns", Err: err}
	}
	if err := readForeignKeys(ctx, db, schemaName, doc); err != nil {
		return nil, &schema.IntrospectionError{Schema: schemaName, Stage: "foreign_keys", Err: err}
	}
	return doc, nil
}

func readColumns(ctx context.Context, db *sql.DB, schemaName string) (schema.Document, error) {
	rows, err := db.QueryContext(ctx, columnsQuery, schemaName)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	doc := schema.Document{}
	for rows.Next() {
		var (
			tableName   string
			columnName  string
			dataType    string
			isNullable  string
			defaultExpr sql.NullString
			maxLength   sql.NullInt64
			constraints sql.NullString
		)
		if err := rows.Scan(&tableName, &columnName, &dataType, &isNullable, &defaultExpr, &maxLength, &constraints); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}

		table, ok := doc[tableName]
		if !ok {
			table = schema.Table{
				Columns:       map[string]schema.ColumnDef{},
				Relationships: []schema.ForeignKeyRef{},
			}
		}

		column := schema.ColumnDef{
			Type:        dataType,
			Required:    isNullable == "NO",
			Constraints: splitConstraints(constraints.String),
		}
		if defaultExpr.Valid {
			value := defaultExpr.String
			column.Default = &value
		}
		if maxLength.Valid {
			value := int(maxLength.Int64)
			column.MaxLength = &value
		}

		if _, seen := table.Columns[columnName]; !seen {
			table.ColumnOrder = append(table.ColumnOrder, columnName)
		}
		table.Columns[columnName] = column
		doc[tableName] = table
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return doc, nil
}

func readForeignKeys(ctx context.Context, db *sql.DB, schemaName string, doc schema.Document) error {
	rows, err := db.QueryContext(ctx, foreignKeysQuery, schemaName)
	if err != nil {
		return fmt.Errorf("query foreign keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var tableName, columnName, foreignTable, foreignColumn string
		if err := rows.Scan(&tableName, &columnName, &foreignTable, &foreignColumn); err != nil {
			return fmt.Errorf("scan foreign key: %w", err)
		}
		table, ok := doc[tableName]
		if !ok {
			continue
		}
		table.Relationships = append(table.Relationships, schema.ForeignKeyRef{
			FromColumn: columnName,
			ToTable:    foreignTable,
			ToColumn:   foreignColumn,
		})
		doc[tableName] = table
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate foreign keys: %w", err)
	}
	return nil
}

// splitConstraints turns an aggregated constraint list into a set, keeping
// first-seen order.
func splitConstraints(raw string) []string {
	out := []string{}
	seen := map[string]struct{}{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, ok := seen[part]; ok {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return out
}
