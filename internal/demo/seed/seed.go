// Package seed loads a small commerce dataset into PostgreSQL so the question
// pipeline has something to answer against.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
)

type Summary struct {
	Customers int64
	Products  int64
	Orders    int64
}

type Seeder struct {
	db        *sql.DB
	cfg       Config
	log       *slog.Logger
	generator *Generator
}

func NewSeeder(db *sql.DB, cfg Config, logger *slog.Logger) (*Seeder, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	if strings.TrimSpace(cfg.Schema) == "" {
		return nil, fmt.Errorf("schema is required")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be > 0")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Seeder{db: db, cfg: cfg, log: logger, generator: NewGenerator(cfg.Seed)}, nil
}

// Run creates the demo tables and inserts the generated rows in one
// transaction. Rows whose id already exists are left untouched.
func (s *Seeder) Run(ctx context.Context) (summary Summary, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Summary{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range s.ddl() {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return Summary{}, fmt.Errorf("apply demo ddl: %w", err)
		}
	}

	customers := s.generator.Customers(s.cfg.Customers)
	customerRows := make([][]any, 0, len(customers))
	for _, c := range customers {
		customerRows = append(customerRows, []any{c.ID, c.Name, c.Email, c.Country, c.SignedUpAt})
	}
	if summary.Customers, err = s.insert(ctx, tx, "customers", []string{"id", "name", "email", "country", "signed_up_at"}, customerRows); err != nil {
		return Summary{}, err
	}

	products := s.generator.Products(s.cfg.Products)
	productRows := make([][]any, 0, len(products))
	for _, p := range products {
		productRows = append(productRows, []any{p.ID, p.Name, p.Category, p.Price})
	}
	if summary.Products, err = s.insert(ctx, tx, "products", []string{"id", "name", "category", "price"}, productRows); err != nil {
		return Summary{}, err
	}

	orders := s.generator.Orders(s.cfg.Orders, s.cfg.Customers)
	orderRows := make([][]any, 0, len(orders))
	for _, o := range orders {
		orderRows = append(orderRows, []any{o.ID, o.CustomerID, o.ProductID, o.Quantity, o.Amount, o.Status, o.OrderedAt})
	}
	if summary.Orders, err = s.insert(ctx, tx, "orders", []string{"id", "customer_id", "product_id", "quantity", "amount", "status", "ordered_at"}, orderRows); err != nil {
		return Summary{}, err
	}

	if err = tx.Commit(); err != nil {
		return Summary{}, fmt.Errorf("commit transaction: %w", err)
	}
	s.log.InfoContext(ctx, "demo dataset loaded",
		slog.String("schema", s.cfg.Schema),
		slog.Int64("customers", summary.Customers),
		slog.Int64("products", summary.Products),
		slog.Int64("orders", summary.Orders),
	)
	return summary, nil
}

func (s *Seeder) table(name string) string {
	return pgx.Identifier{s.cfg.Schema, name}.Sanitize()
}

func (s *Seeder) ddl() []string {
	var stmts []string
	if s.cfg.Reset {
		stmts = append(stmts, fmt.Sprintf("DROP TABLE IF EXISTS %s, %s, %s", s.table("orders"), s.table("products"), s.table("customers")))
	}
	return append(stmts,
		"CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{s.cfg.Schema}.Sanitize(),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id integer PRIMARY KEY,
	name text NOT NULL,
	email varchar(255) NOT NULL UNIQUE,
	country char(2) NOT NULL,
	signed_up_at timestamptz NOT NULL
)`, s.table("customers")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id integer PRIMARY KEY,
	name text NOT NULL,
	category text NOT NULL,
	price numeric(10,2) NOT NULL
)`, s.table("products")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id integer PRIMARY KEY,
	customer_id integer NOT NULL REFERENCES %s(id),
	product_id integer NOT NULL REFERENCES %s(id),
	quantity integer NOT NULL,
	amount numeric(12,2) NOT NULL,
	status varchar(20) NOT NULL DEFAULT 'pending',
	ordered_at timestamptz NOT NULL
)`, s.table("orders"), s.table("customers"), s.table("products")),
	)
}

func (s *Seeder) insert(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (int64, error) {
	var inserted int64
	for start := 0; start < len(rows); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(rows))
		stmt, args := buildInsert(s.table(table), columns, rows[start:end])
		result, err := tx.ExecContext(ctx, stmt, args...)
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", table, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", table, err)
		}
		inserted += affected
	}
	return inserted, nil
}

func buildInsert(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	args := make([]any, 0, len(rows)*len(columns))
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j, value := range row {
			if j > 0 {
				b.WriteString(", ")
			}
			args = append(args, value)
			fmt.Fprintf(&b, "$%d", len(args))
		}
		b.WriteByte(')')
	}
	b.WriteString(" ON CONFLICT (id) DO NOTHING")
	return b.String(), args
}
