package sqlassistctl

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type fakeAPI struct {
	generated string
	status    int
	paths     []string
	queries   []string
	prompts   []string
}

func (f *fakeAPI) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.paths = append(f.paths, r.Method+" "+r.URL.Path)
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		if f.status != 0 {
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(`{"error":"Failed to execute SQL."}`))
			return
		}
		switch r.URL.Path {
		case "/generate_sql":
			f.prompts = append(f.prompts, body["prompt"])
			_ = json.NewEncoder(w).Encode(map[string]string{"sql": f.generated})
		case "/execute_sql":
			f.queries = append(f.queries, body["query"])
			_, _ = w.Write([]byte(`{"result":[{"n":1}]}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunGenerateCommand(t *testing.T) {
	api := &fakeAPI{generated: "SELECT * FROM users;"}
	srv := api.server(t)

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "generate", "list", "all", "users"}, Options{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Timeout: 2 * time.Second,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if len(api.prompts) != 1 || api.prompts[0] != "list all users" {
		t.Fatalf("prompts = %q", api.prompts)
	}
	if strings.TrimSpace(stdout.String()) != "SELECT * FROM users;" {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunExecuteReadsStdin(t *testing.T) {
	api := &fakeAPI{}
	srv := api.server(t)

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "execute", "-"}, Options{
		Stdin:  strings.NewReader("USE shop;\nSELECT 1 AS n;"),
		Stdout: &stdout,
	})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if len(api.queries) != 1 || api.queries[0] != "USE shop;\nSELECT 1 AS n;" {
		t.Fatalf("queries = %q", api.queries)
	}
	if !strings.Contains(stdout.String(), `"n": 1`) {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunAskGeneratesThenExecutes(t *testing.T) {
	api := &fakeAPI{generated: "SELECT 1 AS n;"}
	srv := api.server(t)

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL + "/", "ask", "one"}, Options{Stdout: &stdout, Stderr: &stderr})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	want := []string{"POST /generate_sql", "POST /execute_sql"}
	if strings.Join(api.paths, ",") != strings.Join(want, ",") {
		t.Fatalf("paths = %q", api.paths)
	}
	if api.queries[0] != "SELECT 1 AS n;" {
		t.Fatalf("executed = %q", api.queries[0])
	}
	if !strings.Contains(stderr.String(), "-- SELECT 1 AS n;") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRunReturnsErrorOnHTTPFailure(t *testing.T) {
	api := &fakeAPI{status: http.StatusInternalServerError}
	srv := api.server(t)

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "execute", "SELEC 1"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "http 500") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRunReturnsErrorWhenServerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	code := Run(context.Background(), []string{"-base-url", url, "generate", "x"}, Options{})
	if code != 1 {
		t.Fatalf("exit code = %d", code)
	}
}

func TestRunUsageErrors(t *testing.T) {
	cases := [][]string{
		{"unknown", "x"},
		{"generate"},
		{},
		{"-bogus-flag", "generate", "x"},
	}
	for _, args := range cases {
		var stderr bytes.Buffer
		code := Run(context.Background(), args, Options{Stderr: &stderr})
		if code != 2 {
			t.Fatalf("Run(%q) exit code = %d", args, code)
		}
		if stderr.Len() == 0 {
			t.Fatalf("Run(%q) expected usage output", args)
		}
	}
}

func TestRunExecuteStdinUnavailable(t *testing.T) {
	code := Run(context.Background(), []string{"-base-url", "http://127.0.0.1:1", "execute", "-"}, Options{})
	if code != 2 {
		t.Fatalf("exit code = %d", code)
	}
}
