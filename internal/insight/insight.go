// Package insight turns query results and small talk into assistant replies.
package insight

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/askdb/askdb/internal/conversation"
	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/prompt"
	"github.com/askdb/askdb/internal/query"
)

// CasualHistoryWindow is how many past messages ground a casual reply.
const CasualHistoryWindow = 10

var explainTemplate = prompt.New("explain_result", `<|context|>
<user query> {question}
<sql query> {sql}
<result query>
{result}

<|system|>
You received a question, the SQL that answered it and the query result. You are an expert data analyst with extensive experience in extracting insight and providing strategic recommendations.
Your main task is to analyze the provided data comprehensively and generate actionable insights in a human-friendly response.
Use the query result to explain any key patterns, trends, and insights that can be derived from the data.

<|example|>
{example}
<|end_example|>

<|assistant|>
`, []string{"question", "sql", "result", "example"}, map[string]string{
	"example": fewShotExample,
})

const fewShotExample = `<user> What are the main factors driving the drop in our Sales Revenue this week?
<result query> sales_revenue	percentage_down	sales_date_time
9.7M	4%	2025-02-22
11M	12%	2025-02-18
<assistant>
Sales revenue has decreased by 4%, with a total of 9.7M in revenue this week, down from 11M the previous week (a decrease of 1.3M). Key contributing factors include:

1. A 12% drop in sales revenue from 11M to 9.7M over the past week, signaling a decline in overall sales performance.
2. A reduction in user engagement, particularly from paid ads. The number of users driven by paid ads decreased by 17%, from 250k to 147k, leading to a loss of 138k in revenue.

Recommendations:
- Investigate the effectiveness of your paid ad campaigns and consider optimizing targeting to regain lost users.
- Analyze customer behavior and purchase patterns to identify other potential causes of the decline.
- Reevaluate pricing or promotional strategies to stimulate sales and increase revenue.
- Consider alternative marketing strategies to diversify your revenue streams.

In conclusion, the drop in sales revenue seems to be linked to both a decrease in user acquisition through paid ads and broader sales performance trends. Adjusting your marketing and sales strategies could help mitigate the decline.`

var casualTemplate = prompt.New("casual_reply", `<|context|>
{context}

<|user|>
{question}

<|role|>
Your main function is to answer questions about the business data in this database and to extract insight from it. When a user asks for data, they get a query result and an explanation; for everything else you keep the conversation friendly and helpful.

<|system|>
Your name is {assistant_name}. If this is your first message with the user, introduce yourself and explain that you can answer questions about their data in plain language.
Respond in a friendly, conversational tone to the user query based on the provided context.

<|assistant|>
`, []string{"context", "question", "assistant_name"}, map[string]string{
	"assistant_name": "askdb",
})

type Synthesizer struct {
	model         llm.Completer
	assistantName string
}

func NewSynthesizer(model llm.Completer, assistantName string) *Synthesizer {
	return &Synthesizer{model: model, assistantName: strings.TrimSpace(assistantName)}
}

// Explain narrates a query result for the question that produced it.
func (s *Synthesizer) Explain(ctx context.Context, question, sql string, result query.Result) (string, error) {
	text, err := explainTemplate.Render(map[string]string{
		"question": strings.TrimSpace(question),
		"sql":      sql,
		"result":   FormatResult(result),
	})
	if err != nil {
		return "", err
	}
	return s.complete(ctx, text)
}

// RespondCasually answers small talk using the most recent history.
func (s *Synthesizer) RespondCasually(ctx context.Context, history []conversation.Message, question string) (string, error) {
	values := map[string]string{
		"context":  FormatHistory(history, CasualHistoryWindow),
		"question": strings.TrimSpace(question),
	}
	if s.assistantName != "" {
		values["assistant_name"] = s.assistantName
	}
	text, err := casualTemplate.Render(values)
	if err != nil {
		return "", err
	}
	return s.complete(ctx, text)
}

func (s *Synthesizer) complete(ctx context.Context, text string) (string, error) {
	reply, err := s.model.Complete(ctx, text)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

// FormatResult renders rows as tab-delimited text with a header line.
func FormatResult(result query.Result) string {
	if result.Empty() {
		return query.NoResultsMessage
	}
	columns := result.Columns
	if len(columns) == 0 {
		for key := range result.Rows[0] {
			columns = append(columns, key)
		}
		sort.Strings(columns)
	}

	var b strings.Builder
	b.WriteString(strings.Join(columns, "\t"))
	for _, row := range result.Rows {
		b.WriteByte('\n')
		for i, column := range columns {
			if i > 0 {
				b.WriteByte('\t')
			}
			b.WriteString(formatValue(row[column]))
		}
	}
	return b.String()
}

// FormatHistory renders the last n messages as "<role> content" lines.
func FormatHistory(history []conversation.Message, n int) string {
	if n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	lines := make([]string, 0, len(history))
	for _, message := range history {
		lines = append(lines, fmt.Sprintf("<%s> %s", message.Role, message.Content))
	}
	return strings.Join(lines, "\n")
}

func formatValue(value any) string {
	if value == nil {
		return "NULL"
	}
	text := fmt.Sprint(value)
	text = strings.ReplaceAll(text, "\t", " ")
	return strings.ReplaceAll(text, "\n", " ")
}
