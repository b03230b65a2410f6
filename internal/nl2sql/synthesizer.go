package nl2sql

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/schema"
)

var fencedSQL = regexp.MustCompile("(?s)```sql\r?\n(.*?)\r?\n```")

// Synthesis is the outcome of one synthesis attempt: either a statement or
// the signal that the question cannot be answered from the schema.
type Synthesis struct {
	sql      string
	resolved bool
}

func Synthesized(sql string) Synthesis {
	return Synthesis{sql: sql, resolved: true}
}

// Unresolvable reports that no query could be grounded in the schema.
var Unresolvable = Synthesis{}

func (s Synthesis) Resolved() bool {
	return s.resolved
}

func (s Synthesis) SQL() (string, bool) {
	return s.sql, s.resolved
}

func (s Synthesis) String() string {
	if !s.resolved {
		return NoContextToken
	}
	return s.sql
}

// GenerationError reports that the model could not be consulted. It is
// distinct from Unresolvable, which is a normal answer.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate sql: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

type Synthesizer struct {
	model  llm.Completer
	logger *slog.Logger
}

func NewSynthesizer(model llm.Completer, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Synthesizer{model: model, logger: logger}
}

func (s *Synthesizer) Synthesize(ctx context.Context, question string, doc schema.Document) (Synthesis, error) {
	rendered, err := doc.Render()
	if err != nil {
		return Unresolvable, &GenerationError{Err: err}
	}
	text, err := synthesisTemplate.Render(map[string]string{
		"schema":   rendered,
		"question": strings.TrimSpace(question),
	})
	if err != nil {
		return Unresolvable, &GenerationError{Err: err}
	}

	reply, err := s.model.Complete(ctx, text)
	if err != nil {
		return Unresolvable, &GenerationError{Err: err}
	}

	result := ExtractSQL(reply)
	if sql, ok := result.SQL(); ok {
		s.logger.InfoContext(ctx, "sql_synthesized", slog.String("sql", sql))
	} else {
		s.logger.WarnContext(ctx, "sql_unresolvable", slog.String("reply", reply))
	}
	return result, nil
}

// ExtractSQL pulls the first fenced sql block out of a completion, or takes
// the whole completion when there is none, and collapses it to one line.
// Anything that does not start with SELECT is Unresolvable.
func ExtractSQL(completion string) Synthesis {
	candidate := completion
	if match := fencedSQL.FindStringSubmatch(completion); match != nil {
		candidate = strings.TrimSpace(match[1])
	}

	sql := collapseLines(candidate)
	if !strings.HasPrefix(strings.ToLower(sql), "select") {
		return Unresolvable
	}
	return Synthesized(sql)
}

func collapseLines(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, " ")
}
