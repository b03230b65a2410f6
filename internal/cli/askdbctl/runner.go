// Package askdbctl implements the askdb command-line client.
package askdbctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// requestError marks failures that happened after the command line was
// accepted. They exit with 1, usage problems with 2.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

type client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
	stdout  io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	c := &client{stdout: stdout}
	root := newRootCommand(c, defaults)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		_, _ = fmt.Fprintln(stderr, reqErr.Error())
		return 1
	}
	_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
	_, _ = fmt.Fprint(stderr, root.UsageString())
	return 2
}

func newRootCommand(c *client, defaults Options) *cobra.Command {
	root := &cobra.Command{
		Use:           "askdbctl",
		Short:         "Ask questions about a PostgreSQL database through the askdb API",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			c.baseURL = strings.TrimRight(c.baseURL, "/")
			c.http = defaults.HTTPClient
			if c.http == nil {
				c.http = &http.Client{Timeout: c.timeout}
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("a command is required")
			}
			return fmt.Errorf("unknown command %q", args[0])
		},
		Args: cobra.ArbitraryArgs,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	flags := root.PersistentFlags()
	flags.StringVar(&c.baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "askdb API base URL")
	flags.StringVar(&c.apiKey, "api-key", defaults.APIKey, "API key for authenticated requests")
	flags.DurationVar(&c.timeout, "timeout", durationOr(defaults.Timeout, 120*time.Second), "HTTP timeout (e.g. 30s)")

	root.AddCommand(
		simpleGet(c, "health", "Check that the API process is up", "/v1/health"),
		simpleGet(c, "ready", "Check database and cache connectivity", "/v1/ready"),
		newAskCommand(c),
		newHistoryCommand(c),
		newSchemaCommand(c),
		newAnalyzeCommand(c),
		newTranslateCommand(c),
	)
	return root
}

func simpleGet(c *client, use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.call(cmd.Context(), http.MethodGet, path, nil)
		},
	}
}

func newAskCommand(c *client) *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question in natural language",
		Example: `  askdbctl ask "how many customers signed up last month?"
  askdbctl ask "and the month before?" --conversation-id 3f2a...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd.Context(), http.MethodPost, "/v1/query", map[string]any{
				"query":           args[0],
				"conversation_id": conversationID,
			})
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation-id", "", "continue an existing conversation")
	return cmd
}

func newHistoryCommand(c *client) *cobra.Command {
	var last int
	cmd := &cobra.Command{
		Use:   "history <conversation-id>",
		Short: "Show the messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if last < 0 {
				return errors.New("--last must be >= 0")
			}
			path := "/v1/conversations/" + url.PathEscape(args[0])
			if last > 0 {
				path += "?last_n=" + strconv.Itoa(last)
			}
			return c.call(cmd.Context(), http.MethodGet, path, nil)
		},
	}
	cmd.Flags().IntVar(&last, "last", 0, "only show the most recent N messages")
	return cmd
}

func newSchemaCommand(c *client) *cobra.Command {
	var schemaName string
	var refresh bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the introspected schema document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			query := url.Values{}
			if strings.TrimSpace(schemaName) != "" {
				query.Set("schema", strings.TrimSpace(schemaName))
			}
			if refresh {
				query.Set("refresh", "true")
			}
			path := "/v1/schema"
			if encoded := query.Encode(); encoded != "" {
				path += "?" + encoded
			}
			return c.call(cmd.Context(), http.MethodGet, path, nil)
		},
	}
	cmd.Flags().StringVar(&schemaName, "schema", "", "schema name (defaults to the server setting)")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "drop the server's cached copy first")
	return cmd
}

func newAnalyzeCommand(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <sql>",
		Short: "Run EXPLAIN ANALYZE for a read-only statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd.Context(), http.MethodPost, "/v1/query/analyze", map[string]any{"sql": args[0]})
		},
	}
}

func newTranslateCommand(c *client) *cobra.Command {
	var schemaName string
	cmd := &cobra.Command{
		Use:   "translate <question>",
		Short: "Generate SQL for a question without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]any{"natural_language": args[0]}
			if strings.TrimSpace(schemaName) != "" {
				payload["schema"] = strings.TrimSpace(schemaName)
			}
			return c.call(cmd.Context(), http.MethodPost, "/v1/query/translate", payload)
		},
	}
	cmd.Flags().StringVar(&schemaName, "schema", "", "schema name (defaults to the server setting)")
	return cmd
}

func (c *client) call(ctx context.Context, method, path string, payload any) error {
	code, responseBody, err := c.doRequest(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return &requestError{err: fmt.Errorf("request failed: %w", err)}
	}
	if code >= 400 {
		return &requestError{err: fmt.Errorf("http %d: %s", code, strings.TrimSpace(string(responseBody)))}
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(c.stdout, pretty)
		return nil
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(c.stdout, string(responseBody))
	}
	return nil
}

func (c *client) doRequest(ctx context.Context, method, url string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(c.apiKey))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
