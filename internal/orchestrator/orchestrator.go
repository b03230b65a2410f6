// Package orchestrator sequences one question through classification,
// synthesis, execution, explanation and recording.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/askdb/askdb/internal/conversation"
	"github.com/askdb/askdb/internal/intent"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/query"
	"github.com/askdb/askdb/internal/schema"
)

type State string

const (
	StateStart            State = "START"
	StateClassifying      State = "CLASSIFYING"
	StateCasualResponding State = "CASUAL_RESPONDING"
	StateSQLSynthesizing  State = "SQL_SYNTHESIZING"
	StateExecuting        State = "EXECUTING"
	StateExplaining       State = "EXPLAINING"
	StateRecording        State = "RECORDING"
	StateDone             State = "DONE"
	StateError            State = "ERROR"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

const (
	casualHistoryWindow = 10
	rejectedPrefix      = "the generated query was rejected: "
	processingPrefix    = "Error processing query: "
)

var ErrEmptyQuery = errors.New("query must not be empty")

type Question struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Outcome is the envelope returned for every question.
type Outcome struct {
	Status   string         `json:"status"`
	Response map[string]any `json:"response"`
}

func (o Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

func (o Outcome) Message() string {
	message, _ := o.Response["message"].(string)
	return message
}

type Classifier interface {
	Classify(ctx context.Context, question string) (intent.Label, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, question string, doc schema.Document) (nl2sql.Synthesis, error)
}

type Responder interface {
	Explain(ctx context.Context, question, sql string, result query.Result) (string, error)
	RespondCasually(ctx context.Context, history []conversation.Message, question string) (string, error)
}

type ConversationStore interface {
	CreateConversation() string
	AddTurn(ctx context.Context, conversationID, userContent, assistantContent string) error
	GetConversationHistory(ctx context.Context, conversationID string, lastN int) ([]conversation.Message, error)
}

type cacheClearer interface {
	ClearCache(schemaNames ...string)
}

type Dependencies struct {
	Schemas     schema.Introspector
	Classifier  Classifier
	Synthesizer Synthesizer
	Executor    query.Executor
	Analyzer    query.Analyzer
	Responder   Responder
	Store       ConversationStore
	SchemaName  string
	Logger      *slog.Logger
}

type Orchestrator struct {
	deps       Dependencies
	schemaName string
	logger     *slog.Logger
}

func New(deps Dependencies) (*Orchestrator, error) {
	switch {
	case deps.Schemas == nil:
		return nil, errors.New("schema introspector is required")
	case deps.Classifier == nil:
		return nil, errors.New("intent classifier is required")
	case deps.Synthesizer == nil:
		return nil, errors.New("sql synthesizer is required")
	case deps.Executor == nil:
		return nil, errors.New("query executor is required")
	case deps.Responder == nil:
		return nil, errors.New("insight responder is required")
	case deps.Store == nil:
		return nil, errors.New("conversation store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Orchestrator{
		deps:       deps,
		schemaName: schema.NormalizeName(deps.SchemaName),
		logger:     logger,
	}, nil
}

// turn carries the values produced while a question moves through the states.
type turn struct {
	question       string
	conversationID string
	label          intent.Label
	sql            string
	result         query.Result
	answer         string
	err            error
	answered       bool
}

// Ask never returns a Go error. Every failure is folded into an error Outcome.
func (o *Orchestrator) Ask(ctx context.Context, q Question) Outcome {
	question := strings.TrimSpace(q.Query)
	if question == "" {
		return errorOutcome(ErrEmptyQuery.Error())
	}

	t := &turn{question: question, conversationID: strings.TrimSpace(q.ConversationID)}
	state := StateStart
	for state != StateDone && state != StateError {
		next := o.step(ctx, state, t)
		o.logger.DebugContext(ctx, "orchestrator_transition",
			slog.String("conversation_id", t.conversationID),
			slog.String("from", string(state)),
			slog.String("to", string(next)),
		)
		state = next
	}

	outcome := o.finish(ctx, state, t)
	label := string(t.label)
	if label == "" {
		label = "unknown"
	}
	observability.ObserveQuestion(label, outcome.Status)
	return outcome
}

func (o *Orchestrator) step(ctx context.Context, state State, t *turn) State {
	switch state {
	case StateStart:
		if t.conversationID == "" {
			t.conversationID = o.deps.Store.CreateConversation()
		}
		return StateClassifying

	case StateClassifying:
		label, err := o.deps.Classifier.Classify(ctx, t.question)
		if err != nil {
			t.err = err
			return StateError
		}
		t.label = label
		if label == intent.CasualInteraction {
			return StateCasualResponding
		}
		return StateSQLSynthesizing

	case StateCasualResponding:
		history, err := o.deps.Store.GetConversationHistory(ctx, t.conversationID, casualHistoryWindow)
		if err != nil {
			o.logger.WarnContext(ctx, "conversation_history_unavailable",
				slog.String("conversation_id", t.conversationID),
				slog.String("error", err.Error()),
			)
			history = nil
		}
		answer, err := o.deps.Responder.RespondCasually(ctx, history, t.question)
		if err != nil {
			t.err = err
			return StateError
		}
		t.answer = answer
		t.answered = true
		return StateRecording

	case StateSQLSynthesizing:
		doc, err := o.deps.Schemas.GetSchema(ctx, o.schemaName)
		if err != nil {
			t.err = err
			return StateError
		}
		synthesis, err := o.deps.Synthesizer.Synthesize(ctx, t.question, doc)
		if err != nil {
			t.err = err
			return StateError
		}
		sql, ok := synthesis.SQL()
		if !ok {
			t.err = nl2sql.ErrUnresolvable
			return StateError
		}
		t.sql = sql
		return StateExecuting

	case StateExecuting:
		result, err := o.deps.Executor.ExecuteSelect(ctx, t.sql)
		if err != nil {
			t.err = err
			return StateError
		}
		t.result = result
		return StateExplaining

	case StateExplaining:
		answer, err := o.deps.Responder.Explain(ctx, t.question, t.sql, t.result)
		if err != nil {
			t.err = err
			return StateError
		}
		t.answer = answer
		t.answered = true
		return StateRecording

	case StateRecording:
		if err := o.deps.Store.AddTurn(ctx, t.conversationID, t.question, t.answer); err != nil {
			observability.IncrementConversationStoreError(storeOp(err))
			t.err = err
			return StateError
		}
		return StateDone
	}

	t.err = fmt.Errorf("unknown state %q", state)
	return StateError
}

func (o *Orchestrator) finish(ctx context.Context, state State, t *turn) Outcome {
	if state == StateDone {
		return Outcome{Status: StatusSuccess, Response: t.response()}
	}

	attrs := []any{
		slog.String("conversation_id", t.conversationID),
		slog.String("error", t.err.Error()),
	}
	if t.sql != "" {
		attrs = append(attrs, slog.String("sql", t.sql))
	}
	o.logger.ErrorContext(ctx, "question_failed", attrs...)

	var storeErr *conversation.StoreError
	if t.answered && errors.As(t.err, &storeErr) {
		// The answer is surfaced even though the turn was not persisted.
		response := t.response()
		response["message"] = processingPrefix + t.err.Error()
		return Outcome{Status: StatusError, Response: response}
	}
	return errorOutcome(failureMessage(t.err))
}

func (t *turn) response() map[string]any {
	response := map[string]any{
		"final_answer":    t.answer,
		"sql_query":       nil,
		"query_result":    nil,
		"conversation_id": t.conversationID,
	}
	if t.sql != "" {
		response["sql_query"] = t.sql
		response["query_result"] = t.result.Payload()
	}
	return response
}

func failureMessage(err error) string {
	var validationErr *query.ValidationError
	switch {
	case errors.Is(err, nl2sql.ErrUnresolvable):
		return err.Error()
	case errors.As(err, &validationErr):
		return rejectedPrefix + err.Error()
	default:
		return processingPrefix + err.Error()
	}
}

func errorOutcome(message string) Outcome {
	return Outcome{Status: StatusError, Response: map[string]any{"message": message}}
}

func storeOp(err error) string {
	var storeErr *conversation.StoreError
	if errors.As(err, &storeErr) && storeErr.Op != "" {
		return storeErr.Op
	}
	return "write"
}

// History returns the stored messages of a conversation. lastN <= 0 returns all.
func (o *Orchestrator) History(ctx context.Context, conversationID string, lastN int) ([]conversation.Message, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, errors.New("conversation id is required")
	}
	return o.deps.Store.GetConversationHistory(ctx, conversationID, lastN)
}

// Schema returns the document for schemaName, or the configured schema when
// empty. refresh drops any cached copy first.
func (o *Orchestrator) Schema(ctx context.Context, schemaName string, refresh bool) (schema.Document, error) {
	name := o.schemaName
	if strings.TrimSpace(schemaName) != "" {
		name = schema.NormalizeName(schemaName)
	}
	if refresh {
		if clearer, ok := o.deps.Schemas.(cacheClearer); ok {
			clearer.ClearCache(name)
		}
	}
	return o.deps.Schemas.GetSchema(ctx, name)
}

var ErrAnalyzeUnavailable = errors.New("query analysis is not configured")

// Analyze runs EXPLAIN ANALYZE for a read-only statement.
func (o *Orchestrator) Analyze(ctx context.Context, sqlText string) (query.Result, error) {
	if o.deps.Analyzer == nil {
		return query.Result{}, ErrAnalyzeUnavailable
	}
	return o.deps.Analyzer.Analyze(ctx, sqlText)
}
