package sqlassistctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
}

type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("sqlassistctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:3000"), "sqlassist API base URL")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 90*time.Second), "HTTP timeout (e.g. 90s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 2 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}
	c := &apiClient{http: client, baseURL: strings.TrimRight(*baseURL, "/")}

	command := strings.TrimSpace(fs.Arg(0))
	input := strings.Join(fs.Args()[1:], " ")

	var err error
	switch command {
	case "generate":
		var sqlText string
		if sqlText, err = c.generate(ctx, input); err == nil {
			_, _ = fmt.Fprintln(stdout, sqlText)
		}
	case "execute":
		if input == "-" {
			input, err = readAll(defaults.Stdin)
			if err != nil {
				break
			}
		}
		var result []byte
		if result, err = c.execute(ctx, input); err == nil {
			writeBody(stdout, result)
		}
	case "ask":
		var sqlText string
		if sqlText, err = c.generate(ctx, input); err != nil {
			break
		}
		_, _ = fmt.Fprintf(stderr, "-- %s\n", strings.ReplaceAll(sqlText, "\n", "\n-- "))
		var result []byte
		if result, err = c.execute(ctx, sqlText); err == nil {
			writeBody(stdout, result)
		}
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	if err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		return 1
	}
	return 0
}

type apiClient struct {
	http    *http.Client
	baseURL string
}

func (c *apiClient) generate(ctx context.Context, prompt string) (string, error) {
	body, err := c.post(ctx, "/generate_sql", map[string]string{"prompt": prompt})
	if err != nil {
		return "", err
	}
	var resp struct {
		SQL string `json:"sql"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	return resp.SQL, nil
}

func (c *apiClient) execute(ctx context.Context, query string) ([]byte, error) {
	return c.post(ctx, "/execute_sql", map[string]string{"query": query})
}

func (c *apiClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &exitError{code: 1, msg: fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}
	return body, nil
}

func readAll(r io.Reader) (string, error) {
	if r == nil {
		return "", &exitError{code: 2, msg: "stdin is not available"}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func writeBody(w io.Writer, body []byte) {
	if pretty, ok := prettyJSON(body); ok {
		_, _ = fmt.Fprintln(w, pretty)
		return
	}
	if len(body) > 0 {
		_, _ = fmt.Fprintln(w, string(body))
	}
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

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: sqlassistctl [flags] <command> <text>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  generate <prompt>   POST /generate_sql and print the SQL")
	_, _ = fmt.Fprintln(w, "  execute <sql|->     POST /execute_sql (- reads the query from stdin)")
	_, _ = fmt.Fprintln(w, "  ask <prompt>        generate, then execute the result")
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
