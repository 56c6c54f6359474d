package cli

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const loginHTML = `<html><head><title>Sign in</title></head><body>
<form method="post" action="/login">
  <input id="username" name="username">
  <input id="password" name="password" type="password">
  <button type="submit">Log in</button>
</form>
%s
</body></html>`

const projectsHTML = `<html><head><title>Projects</title></head><body>
<div class="project">Alpha</div>
<div class="project">Beta</div>
</body></html>`

// newAppServer serves a login form guarding a project list.
func newAppServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, loginHTML, "")
	})
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("username") != "admin" || r.PostForm.Get("password") != "secret" {
			fmt.Fprintf(w, loginHTML, `<p id="error">Invalid credentials</p>`)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "admin", Path: "/"})
		http.Redirect(w, r, "/projects", http.StatusSeeOther)
	})
	mux.HandleFunc("GET /projects", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("session"); err != nil {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		fmt.Fprint(w, projectsHTML)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

const suiteYAML = `scenarios:
  - name: login works
    tags: [smoke]
    steps:
      - action: navigate
        value: /login
      - action: type
        target: {selector: "#username"}
        value: "${admin.username}"
      - action: type
        target: {selector: "#password"}
        value: "${admin.password}"
      - action: click
        target: {selector: "button", text: "Log in"}
        expect:
          kind: url-contains
          value: /projects
      - action: wait-for
        expect:
          kind: element-visible
          target: {selector: ".project", text: "Alpha"}
  - name: missing element times out
    steps:
      - action: navigate
        value: /login
      - action: wait-for
        expect:
          kind: element-exists
          target: {selector: ".dashboard"}
          timeout: 0s
`

const configYAML = `base_url: %s
driver: %s
fixtures_dir: fixtures
timing:
  timeout: 2s
  poll: 10ms
  max_poll: 50ms
store:
  path: data/history.db
  keep: 10
log:
  level: error
`

// suiteEnv is a temporary project: config, fixtures and scenarios.
type suiteEnv struct {
	dir       string
	config    string
	scenarios string
	history   string
}

func newSuiteEnv(t *testing.T, baseURL string) *suiteEnv {
	return newSuiteEnvWithDriver(t, baseURL, "http")
}

func newSuiteEnvWithDriver(t *testing.T, baseURL, driver string) *suiteEnv {
	t.Helper()
	dir := t.TempDir()
	env := &suiteEnv{
		dir:       dir,
		config:    filepath.Join(dir, "uirun.yaml"),
		scenarios: filepath.Join(dir, "scenarios"),
		history:   filepath.Join(dir, "data", "history.db"),
	}

	require.NoError(t, os.MkdirAll(env.scenarios, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "fixtures"), 0o755))
	writeFile(t, env.config, fmt.Sprintf(configYAML, baseURL, driver))
	writeFile(t, filepath.Join(dir, "fixtures", "admin.json"), `{"username": "admin", "password": "secret"}`)
	writeFile(t, filepath.Join(env.scenarios, "suite.yaml"), suiteYAML)
	return env
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// execute runs cmd with args and returns stdout and the error.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// lockedBuffer is a bytes.Buffer safe for a writer and a polling reader.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
