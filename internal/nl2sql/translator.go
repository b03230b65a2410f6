package nl2sql

import (
	"context"
	"errors"
	"strings"

	"github.com/askdb/askdb/internal/schema"
)

var ErrUnresolvable = errors.New("failed to generate a valid SQL query")

type Request struct {
	NaturalLanguage string `json:"natural_language"`
	SchemaName      string `json:"schema,omitempty"`
}

type Result struct {
	SQL    string `json:"sql"`
	Schema string `json:"schema"`
}

// Translator turns a question into SQL without executing it.
type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

// SchemaTranslator grounds synthesis in the live schema.
type SchemaTranslator struct {
	Schemas       schema.Introspector
	Synthesizer   *Synthesizer
	DefaultSchema string
}

func (t *SchemaTranslator) Translate(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.NaturalLanguage) == "" {
		return Result{}, errors.New("natural_language is required")
	}
	schemaName := req.SchemaName
	if schemaName == "" {
		schemaName = schema.NormalizeName(t.DefaultSchema)
	}

	doc, err := t.Schemas.GetSchema(ctx, schemaName)
	if err != nil {
		return Result{}, err
	}
	synthesis, err := t.Synthesizer.Synthesize(ctx, req.NaturalLanguage, doc)
	if err != nil {
		return Result{}, err
	}
	sql, ok := synthesis.SQL()
	if !ok {
		return Result{}, ErrUnresolvable
	}
	return Result{SQL: sql, Schema: schemaName}, nil
}
