package nl2sql

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/askdb/askdb/internal/schema"
)

type recordingModel struct {
	prompts []string
	reply   string
	err     error
}

func (m *recordingModel) Complete(_ context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	return m.reply, m.err
}

func customerSchema() schema.Document {
	return schema.Document{
		"customer": {
			Columns: map[string]schema.ColumnDef{
				"id":   {Type: "integer", Required: true, Constraints: []string{"PRIMARY KEY"}},
				"name": {Type: "text", Constraints: []string{}},
			},
			ColumnOrder:   []string{"id", "name"},
			Relationships: []schema.ForeignKeyRef{},
		},
	}
}

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name       string
		completion string
		want       string
		resolved   bool
	}{
		{name: "single fenced block", completion: "```sql\nSELECT 1\n```", want: "SELECT 1", resolved: true},
		{name: "multi line block", completion: "Here you go:\n```sql\nSELECT id,\n    name\nFROM customer\nLIMIT 5;\n```\nEnjoy", want: "SELECT id, name FROM customer LIMIT 5;", resolved: true},
		{name: "first block wins", completion: "```sql\nSELECT 1\n```\n```sql\nSELECT 2\n```", want: "SELECT 1", resolved: true},
		{name: "crlf block", completion: "```sql\r\nSELECT 3\r\n```", want: "SELECT 3", resolved: true},
		{name: "bare select", completion: "  select count(*)\n from customer  ", want: "select count(*) from customer", resolved: true},
		{name: "no context sentinel", completion: "NO_CONTEXT", resolved: false},
		{name: "prose", completion: "I cannot answer that from the schema.", resolved: false},
		{name: "mutation in block", completion: "```sql\nDELETE FROM customer\n```", resolved: false},
		{name: "empty", completion: "", resolved: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractSQL(tc.completion)
			sql, ok := got.SQL()
			if ok != tc.resolved {
				t.Fatalf("ExtractSQL() resolved = %v, want %v", ok, tc.resolved)
			}
			if ok && sql != tc.want {
				t.Fatalf("ExtractSQL() = %q, want %q", sql, tc.want)
			}
		})
	}
}

func TestExtractSQLIsIdempotent(t *testing.T) {
	first, _ := ExtractSQL("```sql\nSELECT id\nFROM customer\n```").SQL()
	second, _ := ExtractSQL(first).SQL()
	if first != second {
		t.Fatalf("ExtractSQL not idempotent: %q then %q", first, second)
	}
}

func TestUnresolvableIsNotALiteralSQLString(t *testing.T) {
	if Unresolvable.Resolved() {
		t.Fatal("Unresolvable.Resolved() = true")
	}
	literal := Synthesized("NO_CONTEXT")
	if !literal.Resolved() {
		t.Fatal("a synthesized statement must stay resolved whatever its text")
	}
	if Unresolvable.String() != NoContextToken {
		t.Fatalf("Unresolvable.String() = %q", Unresolvable.String())
	}
}

func TestSynthesizeBuildsSchemaGroundedPrompt(t *testing.T) {
	model := &recordingModel{reply: "```sql\nSELECT COUNT(*)\nFROM customer;\n```"}
	synth := NewSynthesizer(model, nil)

	result, err := synth.Synthesize(context.Background(), "  how many customers are in the database?  ", customerSchema())
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	sql, ok := result.SQL()
	if !ok || sql != "SELECT COUNT(*) FROM customer;" {
		t.Fatalf("Synthesize() = %q, %v", sql, ok)
	}
	if !strings.HasPrefix(strings.ToLower(sql), "select") {
		t.Fatalf("sql = %q", sql)
	}

	if len(model.prompts) != 1 {
		t.Fatalf("model calls = %d", len(model.prompts))
	}
	p := model.prompts[0]
	for _, want := range []string{
		"<|system|>:",
		"senior PostgreSQL analyst",
		"1. BASIC SYNTAX:",
		"7. SORTING AND GROUPING:",
		"- DO NOT RETURN EXPLANATIONS",
		"return NO_CONTEXT",
		"```sql",
		`"customer"`,
		"<|user|>\nhow many customers are in the database?\n",
	} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p)
		}
	}
}

func TestSynthesizeDeclinedIsNotAnError(t *testing.T) {
	synth := NewSynthesizer(&recordingModel{reply: "NO_CONTEXT"}, nil)
	result, err := synth.Synthesize(context.Background(), "what is the weather?", customerSchema())
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if result.Resolved() {
		t.Fatalf("Synthesize() = %v, want Unresolvable", result)
	}
}

func TestSynthesizeModelFailureIsGenerationError(t *testing.T) {
	cause := errors.New("rate limited")
	synth := NewSynthesizer(&recordingModel{err: cause}, nil)
	_, err := synth.Synthesize(context.Background(), "q", customerSchema())
	var genErr *GenerationError
	if !errors.As(err, &genErr) || !errors.Is(err, cause) {
		t.Fatalf("Synthesize() error = %v", err)
	}
}

type staticSchemas struct {
	doc       schema.Document
	err       error
	requested []string
}

func (s *staticSchemas) GetSchema(_ context.Context, name string) (schema.Document, error) {
	s.requested = append(s.requested, name)
	return s.doc, s.err
}

func TestSchemaTranslator(t *testing.T) {
	schemas := &staticSchemas{doc: customerSchema()}
	translator := &SchemaTranslator{
		Schemas:     schemas,
		Synthesizer: NewSynthesizer(&recordingModel{reply: "```sql\nSELECT name FROM customer\n```"}, nil),
	}

	result, err := translator.Translate(context.Background(), Request{NaturalLanguage: "list customer names"})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if result.SQL != "SELECT name FROM customer" || result.Schema != "public" {
		t.Fatalf("Translate() = %#v", result)
	}
	if len(schemas.requested) != 1 || schemas.requested[0] != "public" {
		t.Fatalf("schemas requested = %#v", schemas.requested)
	}
}

func TestSchemaTranslatorErrors(t *testing.T) {
	translator := &SchemaTranslator{
		Schemas:     &staticSchemas{doc: customerSchema()},
		Synthesizer: NewSynthesizer(&recordingModel{reply: "NO_CONTEXT"}, nil),
	}
	if _, err := translator.Translate(context.Background(), Request{NaturalLanguage: "x"}); !errors.Is(err, ErrUnresolvable) {
		t.Fatalf("Translate() error = %v", err)
	}
	if _, err := translator.Translate(context.Background(), Request{}); err == nil {
		t.Fatal("expected error for empty question")
	}

	schemaErr := &schema.IntrospectionError{Schema: "public", Stage: "connect", Err: errors.New("down")}
	translator.Schemas = &staticSchemas{err: schemaErr}
	if _, err := translator.Translate(context.Background(), Request{NaturalLanguage: "x"}); !errors.Is(err, schemaErr) {
		t.Fatalf("Translate() error = %v", err)
	}
}
