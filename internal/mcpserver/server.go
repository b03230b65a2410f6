// Package mcpserver exposes the question pipeline as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/askdb/askdb/internal/conversation"
	"github.com/askdb/askdb/internal/orchestrator"
	"github.com/askdb/askdb/internal/schema"
)

type Assistant interface {
	Ask(ctx context.Context, q orchestrator.Question) orchestrator.Outcome
	History(ctx context.Context, conversationID string, lastN int) ([]conversation.Message, error)
	Schema(ctx context.Context, schemaName string, refresh bool) (schema.Document, error)
}

type AskArgs struct {
	Query          string `json:"query" jsonschema:"required,description=Question about the data in natural language"`
	ConversationID string `json:"conversation_id,omitempty" jsonschema:"description=Identifier returned by an earlier answer to continue that conversation"`
}

type SchemaArgs struct {
	Schema  string `json:"schema,omitempty" jsonschema:"description=Schema name. Defaults to the configured schema"`
	Refresh bool   `json:"refresh,omitempty" jsonschema:"description=Reload the schema from the database instead of the cache"`
}

type HistoryArgs struct {
	ConversationID string `json:"conversation_id" jsonschema:"required,description=Conversation identifier"`
	LastN          int    `json:"last_n,omitempty" jsonschema:"description=Only return the most recent N messages"`
}

func New(assistant Assistant, version string) *server.MCPServer {
	s := server.NewMCPServer("askdb", version, server.WithToolCapabilities(false))
	Register(s, assistant)
	return s
}

func Register(s *server.MCPServer, assistant Assistant) {
	s.AddTool(mcp.NewTool("ask",
		mcp.WithDescription(`Answer a question about the connected PostgreSQL database.

Questions that need data are translated to a read-only SELECT, executed and
explained. Greetings and small talk get a conversational reply. The result
carries final_answer, sql_query, query_result and conversation_id.`),
		mcp.WithInputSchema[AskArgs](),
	), askHandler(assistant))

	s.AddTool(mcp.NewTool("get_schema",
		mcp.WithDescription("Return the tables, columns, constraints and foreign keys of a schema as JSON."),
		mcp.WithInputSchema[SchemaArgs](),
	), schemaHandler(assistant))

	s.AddTool(mcp.NewTool("conversation_history",
		mcp.WithDescription("Return the stored messages of a conversation in order."),
		mcp.WithInputSchema[HistoryArgs](),
	), historyHandler(assistant))
}

func askHandler(assistant Assistant) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args AskArgs
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		if strings.TrimSpace(args.Query) == "" {
			return mcp.NewToolResultError(orchestrator.ErrEmptyQuery.Error()), nil
		}

		outcome := assistant.Ask(ctx, orchestrator.Question{Query: args.Query, ConversationID: args.ConversationID})
		if !outcome.Succeeded() {
			message := outcome.Message()
			if answer, ok := outcome.Response["final_answer"].(string); ok && answer != "" {
				message = answer + "\n\n(" + message + ")"
			}
			return mcp.NewToolResultError(message), nil
		}
		return jsonResult(outcome.Response)
	}
}

func schemaHandler(assistant Assistant) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args SchemaArgs
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		doc, err := assistant.Schema(ctx, args.Schema, args.Refresh)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("load schema: %v", err)), nil
		}
		rendered, err := doc.Render()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(rendered), nil
	}
}

func historyHandler(assistant Assistant) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args HistoryArgs
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		if args.LastN < 0 {
			return mcp.NewToolResultError("last_n must be >= 0"), nil
		}
		messages, err := assistant.History(ctx, args.ConversationID, args.LastN)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("read history: %v", err)), nil
		}
		if messages == nil {
			messages = []conversation.Message{}
		}
		return jsonResult(map[string]any{
			"conversation_id": args.ConversationID,
			"messages":        messages,
		})
	}
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
