// Package schema models the table, column and relationship metadata used to
// ground SQL synthesis.
package schema

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

const DefaultName = "public"

type ColumnDef struct {
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	Constraints []string `json:"constraints"`
	Default     *string  `json:"default,omitempty"`
	MaxLength   *int     `json:"max_length,omitempty"`
}

type ForeignKeyRef struct {
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
}

type Table struct {
	Columns       map[string]ColumnDef `json:"columns"`
	Relationships []ForeignKeyRef      `json:"relationships"`
	// ColumnOrder lists column names by ordinal position. Encoding follows it
	// when present.
	ColumnOrder []string `json:"-"`
}

// Document maps table names to their metadata.
type Document map[string]Table

type Introspector interface {
	GetSchema(ctx context.Context, schemaName string) (Document, error)
}

// IntrospectionError reports a failed metadata read. No partial document
// accompanies it.
type IntrospectionError struct {
	Schema string
	Stage  string
	Err    error
}

func (e *IntrospectionError) Error() string {
	return fmt.Sprintf("schema extraction error (%s, %s): %v", e.Schema, e.Stage, e.Err)
}

func (e *IntrospectionError) Unwrap() error {
	return e.Err
}

func NormalizeName(schemaName string) string {
	if schemaName == "" {
		return DefaultName
	}
	return schemaName
}

// TableNames returns the document's tables in lexical order.
func (d Document) TableNames() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for name, table := range d {
		out[name] = table.Clone()
	}
	return out
}

func (t Table) Clone() Table {
	out := Table{
		Columns:       make(map[string]ColumnDef, len(t.Columns)),
		Relationships: append([]ForeignKeyRef(nil), t.Relationships...),
		ColumnOrder:   append([]string(nil), t.ColumnOrder...),
	}
	for name, column := range t.Columns {
		out.Columns[name] = column.Clone()
	}
	if out.Relationships == nil {
		out.Relationships = []ForeignKeyRef{}
	}
	return out
}

func (c ColumnDef) Clone() ColumnDef {
	out := c
	out.Constraints = append([]string(nil), c.Constraints...)
	if out.Constraints == nil {
		out.Constraints = []string{}
	}
	if c.Default != nil {
		value := *c.Default
		out.Default = &value
	}
	if c.MaxLength != nil {
		value := *c.MaxLength
		out.MaxLength = &value
	}
	return out
}

// Render encodes the document as indented JSON for prompts and snapshots.
func (d Document) Render() (string, error) {
	if d == nil {
		d = Document{}
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode schema: %w", err)
	}
	return string(data), nil
}

func (t Table) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"columns":{`)
	for i, name := range t.orderedColumns() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(t.Columns[name])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteString(`},"relationships":`)
	relationships := t.Relationships
	if relationships == nil {
		relationships = []ForeignKeyRef{}
	}
	rel, err := json.Marshal(relationships)
	if err != nil {
		return nil, err
	}
	buf.Write(rel)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (t Table) orderedColumns() []string {
	seen := make(map[string]struct{}, len(t.Columns))
	names := make([]string, 0, len(t.Columns))
	for _, name := range t.ColumnOrder {
		if _, ok := t.Columns[name]; !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	var rest []string
	for name := range t.Columns {
		if _, ok := seen[name]; !ok {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}
