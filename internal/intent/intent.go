// Package intent labels a question as small talk or a request for data.
package intent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/prompt"
)

type Label string

const (
	SQLRequest        Label = "sql_request"
	CasualInteraction Label = "casual_interaction"
)

var classifyTemplate = prompt.New("classify", `<|system|>
You are an assistant specialized in determining whether a query is a data request or a casual interaction with the user. Your task is to analyze the query and return one of the following fixed responses to classify the query:
If the query is a data request (e.g., "What's the most expensive product?", "How many sales did we have today?", etc.), return: "sql_request"
If the query is a casual interaction, such as a greeting or thank you (e.g., "hi", "thanks", "good afternoon", etc.), return: "casual_interaction"

Important: Only return "sql_request" or "casual_interaction" and nothing else. Do not provide explanations or additional context. Simply classify the query according to the examples above.

<|user|>
{question}

<|assistant|>
`, []string{"question"}, nil)

// ClassificationError reports that the model could not be consulted.
type ClassificationError struct {
	Err error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify question: %v", e.Err)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}

type Classifier struct {
	model  llm.Completer
	logger *slog.Logger
}

func NewClassifier(model llm.Completer, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Classifier{model: model, logger: logger}
}

// Classify asks the model for a label. Any answer other than the two known
// labels is treated as a data request.
func (c *Classifier) Classify(ctx context.Context, question string) (Label, error) {
	text, err := classifyTemplate.Render(map[string]string{"question": strings.TrimSpace(question)})
	if err != nil {
		return "", &ClassificationError{Err: err}
	}
	reply, err := c.model.Complete(ctx, text)
	if err != nil {
		return "", &ClassificationError{Err: err}
	}

	label, ok := ParseLabel(reply)
	if !ok {
		c.logger.WarnContext(ctx, "intent_label_unrecognized",
			slog.String("reply", reply),
			slog.String("fallback", string(SQLRequest)),
		)
	}
	return label, nil
}

// ParseLabel normalizes a model reply. ok is false when the reply matched
// neither label and the sql_request fallback was applied.
func ParseLabel(reply string) (Label, bool) {
	normalized := strings.ToLower(strings.TrimSpace(reply))
	normalized = strings.Trim(normalized, "\"'`.! \t\r\n")
	switch Label(normalized) {
	case CasualInteraction:
		return CasualInteraction, true
	case SQLRequest:
		return SQLRequest, true
	default:
		return SQLRequest, false
	}
}
