package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/atikulmunna/sitekeeper/internal/accesslog"
	"github.com/atikulmunna/sitekeeper/internal/render"
)

var accessLine = regexp.MustCompile(`^.+ GMT[+-]\d{4} \(.+\):[A-Z]+ /\S*$`)

// setupTestServer starts the site with a temp log file and a public dir
// holding help.html.
func setupTestServer(t *testing.T, cfg Config) (*httptest.Server, *accesslog.Logger) {
	t.Helper()

	dir := t.TempDir()
	public := filepath.Join(dir, "public")
	if err := os.MkdirAll(public, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(public, "help.html"), []byte("<h1>Help Page</h1>"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg.Public = public

	return startServer(t, cfg, filepath.Join(dir, "server.log"), mustRenderer(t))
}

func startServer(t *testing.T, cfg Config, logPath string, r *render.Renderer) (*httptest.Server, *accesslog.Logger) {
	t.Helper()
	access := accesslog.New(logPath, io.Discard)
	t.Cleanup(access.Close)

	ts := httptest.NewServer(New(cfg, r, access).Handler())
	t.Cleanup(ts.Close)
	return ts, access
}

// readLog drains the access logger and returns the lines on disk.
func readLog(t *testing.T, access *accesslog.Logger) []string {
	t.Helper()
	access.Flush()

	raw, err := os.ReadFile(access.Path())
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")
}

func mustRenderer(t *testing.T) *render.Renderer {
	t.Helper()
	r, err := render.Default()
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading %s: %v", url, err)
	}
	return resp.StatusCode, html.UnescapeString(string(body))
}

func TestHomePage(t *testing.T) {
	ts, _ := setupTestServer(t, DefaultConfig())

	status, body := get(t, ts.URL+"/")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	for _, want := range []string{"Home Page", welcomeMessage} {
		if !strings.Contains(body, want) {
			t.Errorf("expected body to contain %q, got:\n%s", want, body)
		}
	}
}

func TestAboutPage(t *testing.T) {
	ts, _ := setupTestServer(t, DefaultConfig())

	status, body := get(t, ts.URL+"/about")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if !strings.Contains(body, "About Page") {
		t.Errorf("expected About Page title, got:\n%s", body)
	}
	if strings.Contains(body, welcomeMessage) {
		t.Errorf("about page should not carry a welcome message:\n%s", body)
	}
}

func TestBadEndpoint(t *testing.T) {
	ts, _ := setupTestServer(t, DefaultConfig())

	resp, err := http.Get(ts.URL + "/bad")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("expected JSON content type, got %q", ct)
	}

	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(got) != 1 || got["errorMessage"] != "Bad Request: Unable to Handle Request." {
		t.Errorf("unexpected payload %v", got)
	}
}

func TestUnmatchedPathsShowMaintenance(t *testing.T) {
	ts, _ := setupTestServer(t, DefaultConfig())

	// help.html exists in the public dir, but maintenance runs first.
	for _, path := range []string{"/nonexistent", "/public/logo.png", "/help.html", "/about/", "/bad/extra"} {
		status, body := get(t, ts.URL+path)
		if status != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, status)
		}
		if !strings.Contains(body, "Pardon Our Dust") {
			t.Errorf("%s: expected maintenance page, got:\n%s", path, body)
		}
		if strings.Contains(body, "Help Page") {
			t.Errorf("%s: static file leaked past maintenance", path)
		}
	}
}

func TestNonGetMethodsShowMaintenance(t *testing.T) {
	ts, _ := setupTestServer(t, DefaultConfig())

	resp, err := http.Post(ts.URL+"/", "text/plain", strings.NewReader("x"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte("Pardon Our Dust")) {
		t.Errorf("expected maintenance page for POST /, got %d:\n%s", resp.StatusCode, body)
	}
}

func TestStaticFilesWithoutMaintenance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Maintenance = false
	ts, _ := setupTestServer(t, cfg)

	status, body := get(t, ts.URL+"/help.html")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if !strings.Contains(body, "Help Page") {
		t.Errorf("expected static help page, got:\n%s", body)
	}

	status, _ = get(t, ts.URL+"/missing.png")
	if status != http.StatusNotFound {
		t.Errorf("expected 404 for a missing asset, got %d", status)
	}

	// Routes still take precedence over static files.
	status, body = get(t, ts.URL+"/")
	if status != http.StatusOK || !strings.Contains(body, "Home Page") {
		t.Errorf("expected home page, got %d", status)
	}
}

func TestStaticIndexServedInPlace(t *testing.T) {
	public := t.TempDir()
	if err := os.WriteFile(filepath.Join(public, "index.html"), []byte("<h1>Index File</h1>"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.Maintenance = false
	cfg.Public = public
	ts, _ := startServer(t, cfg, filepath.Join(t.TempDir(), "server.log"), mustRenderer(t))

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err := client.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d (Location %q)", resp.StatusCode, resp.Header.Get("Location"))
	}
	if string(body) != "<h1>Index File</h1>" {
		t.Errorf("unexpected body %q", body)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected text/html, got %q", ct)
	}
}

func TestStageOrder(t *testing.T) {
	s := New(DefaultConfig(), mustRenderer(t), nil)

	var names []string
	for _, st := range s.Stages() {
		names = append(names, st.Name)
	}
	if got := strings.Join(names, ","); got != "maintenance,static" {
		t.Errorf("unexpected stage order %q", got)
	}
}

func TestStaticName(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"/help.html", "help.html", true},
		{"/css/site.css", "css/site.css", true},
		{"/../go.mod", "go.mod", true},
		{"/", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := staticName(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("staticName(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestAccessLogPerRequest(t *testing.T) {
	ts, access := setupTestServer(t, DefaultConfig())

	get(t, ts.URL+"/")
	get(t, ts.URL+"/about?x=1")
	get(t, ts.URL+"/nowhere")

	lines := readLog(t, access)
	wantSuffixes := []string{":GET /", ":GET /about?x=1", ":GET /nowhere"}
	if len(lines) != len(wantSuffixes) {
		t.Fatalf("expected %d lines, got %d: %q", len(wantSuffixes), len(lines), lines)
	}
	for i, suffix := range wantSuffixes {
		if !strings.HasSuffix(lines[i], suffix) {
			t.Errorf("line %d: expected suffix %q, got %q", i, suffix, lines[i])
		}
	}
}

func TestConcurrentRequestsLogOneLineEach(t *testing.T) {
	ts, access := setupTestServer(t, DefaultConfig())

	const n = 50
	paths := []string{"/", "/about", "/bad", "/elsewhere"}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := http.Get(ts.URL + paths[i%len(paths)])
			if err != nil {
				t.Errorf("request %d: %v", i, err)
				return
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}(i)
	}
	wg.Wait()

	lines := readLog(t, access)
	if len(lines) != n {
		t.Fatalf("expected %d lines, got %d", n, len(lines))
	}
	for _, line := range lines {
		if !accessLine.MatchString(line) {
			t.Errorf("malformed access line %q", line)
		}
	}
}

func TestLogFailureDoesNotChangeResponse(t *testing.T) {
	healthy, _ := setupTestServer(t, DefaultConfig())

	cfg := DefaultConfig()
	cfg.Public = t.TempDir()
	broken, _ := startServer(t, cfg, filepath.Join(t.TempDir(), "missing", "server.log"), mustRenderer(t))

	for _, path := range []string{"/", "/about", "/bad", "/elsewhere"} {
		wantStatus, wantBody := get(t, healthy.URL+path)
		gotStatus, gotBody := get(t, broken.URL+path)
		if gotStatus != wantStatus {
			t.Errorf("%s: status %d with broken log, %d without", path, gotStatus, wantStatus)
		}
		if gotBody != wantBody {
			t.Errorf("%s: body differs with broken log:\n%s\nvs\n%s", path, gotBody, wantBody)
		}
	}
}

func TestMissingTemplateFailsRequest(t *testing.T) {
	// A view set without home/maintenance pages.
	r, err := render.New(fstest.MapFS{
		"about.html": {Data: []byte(`<title>{{.pageTitle}}</title>`)},
	})
	if err != nil {
		t.Fatal(err)
	}
	ts, _ := startServer(t, DefaultConfig(), filepath.Join(t.TempDir(), "server.log"), r)

	status, _ := get(t, ts.URL+"/")
	if status != http.StatusInternalServerError {
		t.Errorf("expected 500 for a missing template, got %d", status)
	}

	status, body := get(t, ts.URL+"/about")
	if status != http.StatusOK || !strings.Contains(body, "About Page") {
		t.Errorf("expected about page to still render, got %d:\n%s", status, body)
	}
}

func TestRequestIDHeader(t *testing.T) {
	ts, _ := setupTestServer(t, DefaultConfig())

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.Header.Get(requestIDHeader) == "" {
		t.Error("expected a generated request id")
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/about", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get(requestIDHeader); got != "abc-123" {
		t.Errorf("expected propagated request id, got %q", got)
	}
}

func TestServeAnnouncesStartup(t *testing.T) {
	s := New(Config{Port: 4321}, mustRenderer(t), nil)
	out := &lockedBuffer{}
	s.stdout = out

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go s.Serve(ln)
	defer ln.Close()

	url := fmt.Sprintf("http://%s/bad", ln.Addr())
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if got := out.String(); got != "Server is up on Port 4321.\n" {
		t.Errorf("unexpected startup line %q", got)
	}
}

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
