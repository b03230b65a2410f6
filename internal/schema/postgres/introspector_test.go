package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/askdb/askdb/internal/schema"
)

func TestGetSchemaMergesColumnsAndForeignKeys(t *testing.T) {
	db, mock := newSQLMock(t)
	introspector := NewIntrospector(func(context.Context) (*sql.DB, error) { return db, nil })

	mock.ExpectQuery(regexp.QuoteMeta("AND kcu.column_name = c.column_name")).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "is_nullable", "column_default", "character_maximum_length", "constraints"}).
			AddRow("customer", "id", "integer", "NO", "nextval('customer_id_seq'::regclass)", nil, "PRIMARY KEY, PRIMARY KEY").
			AddRow("customer", "name", "character varying", "YES", nil, int64(120), nil).
			AddRow("orders", "id", "integer", "NO", nil, nil, "PRIMARY KEY").
			AddRow("orders", "customer_id", "integer", "NO", nil, nil, "FOREIGN KEY"))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE tc.constraint_type = 'FOREIGN KEY'")).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "foreign_table_name", "foreign_column_name"}).
			AddRow("orders", "customer_id", "customer", "id").
			AddRow("archived", "customer_id", "customer", "id"))
	mock.ExpectClose()

	doc, err := introspector.GetSchema(context.Background(), "")
	if err != nil {
		t.Fatalf("GetSchema() error = %v", err)
	}

	if len(doc) != 2 {
		t.Fatalf("tables = %#v", doc.TableNames())
	}
	customer := doc["customer"]
	id := customer.Columns["id"]
	if !id.Required || id.Type != "integer" {
		t.Fatalf("customer.id = %#v", id)
	}
	if len(id.Constraints) != 1 || id.Constraints[0] != "PRIMARY KEY" {
		t.Fatalf("customer.id constraints = %#v", id.Constraints)
	}
	if id.Default == nil || *id.Default != "nextval('customer_id_seq'::regclass)" {
		t.Fatalf("customer.id default = %v", id.Default)
	}
	name := customer.Columns["name"]
	if name.Required || name.Default != nil || name.MaxLength == nil || *name.MaxLength != 120 {
		t.Fatalf("customer.name = %#v", name)
	}
	if len(name.Constraints) != 0 {
		t.Fatalf("customer.name constraints = %#v", name.Constraints)
	}
	if len(customer.ColumnOrder) != 2 || customer.ColumnOrder[0] != "id" {
		t.Fatalf("ColumnOrder = %#v", customer.ColumnOrder)
	}
	if len(customer.Relationships) != 0 {
		t.Fatalf("customer relationships = %#v", customer.Relationships)
	}

	orders := doc["orders"]
	if len(orders.Relationships) != 1 {
		t.Fatalf("orders relationships = %#v", orders.Relationships)
	}
	want := schema.ForeignKeyRef{FromColumn: "customer_id", ToTable: "customer", ToColumn: "id"}
	if orders.Relationships[0] != want {
		t.Fatalf("relationship = %#v", orders.Relationships[0])
	}
	assertSQLMock(t, mock)
}

func TestGetSchemaWrapsConnectFailure(t *testing.T) {
	cause := errors.New("connection refused")
	introspector := NewIntrospector(func(context.Context) (*sql.DB, error) { return nil, cause })

	_, err := introspector.GetSchema(context.Background(), "sales")
	var introspectionErr *schema.IntrospectionError
	if !errors.As(err, &introspectionErr) {
		t.Fatalf("GetSchema() error = %v", err)
	}
	if introspectionErr.Schema != "sales" || introspectionErr.Stage != "connect" {
		t.Fatalf("IntrospectionError = %#v", introspectionErr)
	}
	if !errors.Is(err, cause) {
		t.Fatal("IntrospectionError should wrap the cause")
	}
}

func TestGetSchemaClosesConnectionOnQueryFailure(t *testing.T) {
	db, mock := newSQLMock(t)
	introspector := NewIntrospector(func(context.Context) (*sql.DB, error) { return db, nil })

	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.tables t")).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "is_nullable", "column_default", "character_maximum_length", "constraints"}).
			AddRow("customer", "id", "integer", "NO", nil, nil, nil))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE tc.constraint_type = 'FOREIGN KEY'")).
		WithArgs("public").
		WillReturnError(errors.New("permission denied"))
	mock.ExpectClose()

	doc, err := introspector.GetSchema(context.Background(), "public")
	var introspectionErr *schema.IntrospectionError
	if !errors.As(err, &introspectionErr) || introspectionErr.Stage != "foreign_keys" {
		t.Fatalf("GetSchema() error = %v", err)
	}
	if doc != nil {
		t.Fatalf("partial document returned: %#v", doc)
	}
	assertSQLMock(t, mock)
}

func TestColumnsQueryAttributesKeysToConstrainedColumn(t *testing.T) {
	keyPart, checkPart, ok := strings.Cut(columnsQuery, "UNION ALL")
	if !ok {
		t.Fatal("columns query should combine key and check constraints")
	}
	for _, want := range []string{
		"JOIN information_schema.key_column_usage kcu",
		"'PRIMARY KEY', 'UNIQUE', 'FOREIGN KEY'",
		"AND kcu.table_name = t.table_name",
		"AND kcu.column_name = c.column_name",
	} {
		if !strings.Contains(keyPart, want) {
			t.Fatalf("key constraint lookup missing %q", want)
		}
	}
	if strings.Contains(keyPart, "constraint_column_usage") {
		t.Fatal("key constraints must not be matched through constraint_column_usage")
	}
	if !strings.Contains(checkPart, "tc.constraint_type = 'CHECK'") {
		t.Fatal("constraint_column_usage should only serve CHECK constraints")
	}
}

func TestSplitConstraints(t *testing.T) {
	got := splitConstraints("UNIQUE, PRIMARY KEY, UNIQUE,")
	if len(got) != 2 || got[0] != "UNIQUE" || got[1] != "PRIMARY KEY" {
		t.Fatalf("splitConstraints() = %#v", got)
	}
	if got := splitConstraints(""); got == nil || len(got) != 0 {
		t.Fatalf("splitConstraints(\"\") = %#v", got)
	}
}

func TestConnectDSNRequiresDSN(t *testing.T) {
	if _, err := ConnectDSN("")(context.Background()); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
