package tabqueryctl

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

// requestError marks failures talking to the API, as opposed to usage errors.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }

func (e *requestError) Unwrap() error { return e.err }

// Run executes one tabqueryctl invocation and returns the process exit code:
// 0 on success, 1 when the request fails and 2 for usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	root := NewCommand(defaults)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintln(stderr, err.Error())
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return 1
	}
	return 2
}

func NewCommand(defaults Options) *cobra.Command {
	c := &client{}

	root := &cobra.Command{
		Use:           "tabqueryctl",
		Short:         "Inspect datasets and ask questions through the tabquery API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Usage()
			return errors.New("a command is required")
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&c.baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "tabquery API base URL")
	flags.StringVar(&c.apiKey, "api-key", defaults.APIKey, "API key for authenticated requests")
	flags.DurationVar(&c.timeout, "timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 30s)")
	c.httpClient = defaults.HTTPClient

	var limit int
	var datasetFilter string

	datasets := &cobra.Command{
		Use:   "datasets",
		Short: "List datasets, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.call(cmd, http.MethodGet, "/v1/datasets"+limitQuery(limit), nil)
		},
	}
	datasets.Flags().IntVar(&limit, "limit", 0, "maximum number of datasets")

	queries := &cobra.Command{
		Use:   "queries <dataset-id>",
		Short: "List the questions asked of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd, http.MethodGet, "/v1/datasets/"+url.PathEscape(args[0])+"/queries"+limitQuery(limit), nil)
		},
	}
	queries.Flags().IntVar(&limit, "limit", 0, "maximum number of queries")

	integrity := &cobra.Command{
		Use:   "integrity-run",
		Short: "Verify the stored table files of one or all recent datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := "/v1/integrity/run"
			if id := strings.TrimSpace(datasetFilter); id != "" {
				path += "?dataset_id=" + url.QueryEscape(id)
			}
			return c.call(cmd, http.MethodPost, path, nil)
		},
	}
	integrity.Flags().StringVar(&datasetFilter, "dataset", "", "restrict the check to one dataset")

	root.AddCommand(
		&cobra.Command{
			Use:   "health",
			Short: "GET /v1/health",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.call(cmd, http.MethodGet, "/v1/health", nil)
			},
		},
		&cobra.Command{
			Use:   "ready",
			Short: "GET /v1/ready",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.call(cmd, http.MethodGet, "/v1/ready", nil)
			},
		},
		datasets,
		&cobra.Command{
			Use:   "dataset <dataset-id>",
			Short: "Show one dataset",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.call(cmd, http.MethodGet, "/v1/datasets/"+url.PathEscape(args[0]), nil)
			},
		},
		&cobra.Command{
			Use:   "schema <dataset-id>",
			Short: "Show the tables and columns of a dataset",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.call(cmd, http.MethodGet, "/v1/datasets/"+url.PathEscape(args[0])+"/schema", nil)
			},
		},
		&cobra.Command{
			Use:   "delete <dataset-id>",
			Short: "Delete a dataset and its stored files",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.call(cmd, http.MethodDelete, "/v1/datasets/"+url.PathEscape(args[0]), nil)
			},
		},
		&cobra.Command{
			Use:   "ask <dataset-id> <question...>",
			Short: "Ask a question about a dataset",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				body := map[string]string{"question": strings.Join(args[1:], " ")}
				return c.call(cmd, http.MethodPost, "/v1/datasets/"+url.PathEscape(args[0])+"/questions", body)
			},
		},
		queries,
		&cobra.Command{
			Use:   "query <query-id>",
			Short: "Show a recorded query",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.call(cmd, http.MethodGet, "/v1/queries/"+url.PathEscape(args[0]), nil)
			},
		},
		integrity,
		&cobra.Command{
			Use:   "retention-run",
			Short: "Delete datasets older than the configured retention age",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.call(cmd, http.MethodPost, "/v1/retention/run", nil)
			},
		},
	)
	return root
}

type client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

func (c *client) call(cmd *cobra.Command, method, path string, payload any) error {
	httpClient := c.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: c.timeout}
	}
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	code, responseBody, err := doRequest(cmd.Context(), httpClient, method, endpoint, c.apiKey, payload)
	if err != nil {
		return &requestError{err: fmt.Errorf("request failed: %w", err)}
	}
	if code >= 400 {
		return &requestError{err: fmt.Errorf("http %d: %s", code, strings.TrimSpace(string(responseBody)))}
	}

	stdout := cmd.OutOrStdout()
	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return nil
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return nil
}

func doRequest(ctx context.Context, client *http.Client, method, url, apiKey string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
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

func limitQuery(limit int) string {
	if limit <= 0 {
		return ""
	}
	return "?limit=" + strconv.Itoa(limit)
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
