//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func postgresDSN(t *testing.T) string {
	t.Helper()
	if dsn := strings.TrimSpace(os.Getenv("ASKDB_TEST_POSTGRES_DSN")); dsn != "" {
		return dsn
	}
	if os.Getenv("ASKDB_TEST_CONTAINERS") != "1" {
		t.Skip("set ASKDB_TEST_POSTGRES_DSN or ASKDB_TEST_CONTAINERS=1")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("askdb"),
		tcpostgres.WithUsername("askdb"),
		tcpostgres.WithPassword("askdb"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("container connection string: %v", err)
	}
	return dsn
}

func TestIntrospectorAgainstPostgres(t *testing.T) {
	dsn := postgresDSN(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	for _, stmt := range []string{
		`DROP SCHEMA IF EXISTS introspect_test CASCADE`,
		`CREATE SCHEMA introspect_test`,
		`CREATE TABLE introspect_test.customer (id serial PRIMARY KEY, email varchar(120) UNIQUE, name text NOT NULL)`,
		`CREATE TABLE introspect_test.orders (id integer PRIMARY KEY, customer_id integer NOT NULL REFERENCES introspect_test.customer(id), total numeric DEFAULT 0)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seed %q error = %v", stmt, err)
		}
	}
	defer func() { _, _ = db.ExecContext(context.Background(), `DROP SCHEMA IF EXISTS introspect_test CASCADE`) }()

	doc, err := NewIntrospector(ConnectDSN(dsn)).GetSchema(ctx, "introspect_test")
	if err != nil {
		t.Fatalf("GetSchema() error = %v", err)
	}
	if strings.Join(doc.TableNames(), ",") != "customer,orders" {
		t.Fatalf("tables = %v", doc.TableNames())
	}

	customer := doc["customer"]
	if strings.Join(customer.ColumnOrder, ",") != "id,email,name" {
		t.Fatalf("customer column order = %v", customer.ColumnOrder)
	}
	email := customer.Columns["email"]
	if email.Required || email.MaxLength == nil || *email.MaxLength != 120 {
		t.Fatalf("customer.email = %#v", email)
	}
	if len(email.Constraints) != 1 || email.Constraints[0] != "UNIQUE" {
		t.Fatalf("customer.email constraints = %#v", email.Constraints)
	}
	if id := customer.Columns["id"]; id.Default == nil || !strings.HasPrefix(*id.Default, "nextval(") {
		t.Fatalf("customer.id default = %v", id.Default)
	}

	orders := doc["orders"]
	if len(orders.Relationships) != 1 {
		t.Fatalf("orders relationships = %#v", orders.Relationships)
	}
	ref := orders.Relationships[0]
	if ref.FromColumn != "customer_id" || ref.ToTable != "customer" || ref.ToColumn != "id" {
		t.Fatalf("orders relationship = %#v", ref)
	}
	customerID := orders.Columns["customer_id"]
	if !customerID.Required {
		t.Fatal("orders.customer_id should be required")
	}
	if strings.Join(customerID.Constraints, ",") != "FOREIGN KEY" {
		t.Fatalf("orders.customer_id constraints = %#v", customerID.Constraints)
	}
	if got := orders.Columns["id"].Constraints; strings.Join(got, ",") != "PRIMARY KEY" {
		t.Fatalf("orders.id constraints = %#v", got)
	}
	if got := customer.Columns["id"].Constraints; strings.Join(got, ",") != "PRIMARY KEY" {
		t.Fatalf("customer.id constraints = %#v", got)
	}
}
