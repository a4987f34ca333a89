//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

const e2eCatalog = `{"products":[
  {"id":"sw1","title":"Navy Wool Sweater","price":80,"inStock":true,"subcategory":"sweaters","color":"navy","material":"wool","size":"M","occasions":["work"]},
  {"id":"sw2","title":"Brown Wool Sweater","price":120,"inStock":true,"subcategory":"sweaters","color":"brown","material":"wool","size":"L","occasions":["casual"]},
  {"id":"bt1","title":"Brown Leather Boots","price":210,"inStock":true,"subcategory":"boots","color":"brown","material":"leather","size":"L","occasions":["outdoor"]}
]}`

// fakeLLM is an OpenAI-compatible chat completions endpoint that answers
// every request with the configured content.
type fakeLLM struct {
	srv *httptest.Server

	mu       sync.Mutex
	content  string
	status   int
	requests int
}

func newFakeLLM(t *testing.T) *fakeLLM {
	t.Helper()
	f := &fakeLLM{status: http.StatusOK}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeLLM) respond(content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content = content
	f.status = http.StatusOK
}

func (f *fakeLLM) fail(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

func (f *fakeLLM) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests++
	content, status := f.content, f.status
	f.mu.Unlock()

	if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
		fmt.Fprint(w, `{"error":{"message":"upstream unavailable","type":"server_error"}}`)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-e2e",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   "e2e-model",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
}

// shopfilterServer manages a running shopfilter server process.
type shopfilterServer struct {
	cmd         *exec.Cmd
	dataDir     string
	catalogPath string
	address     string
	apiKey      string
	logFile     string
	llm         *fakeLLM
}

// startShopfilter launches the binary against a catalog file and a fake
// LLM, and waits for it to become healthy. extraEnv is appended last.
func startShopfilter(t *testing.T, extraEnv ...string) *shopfilterServer {
	t.Helper()
	requireShopfilter(t)

	dataDir := t.TempDir()
	catalogPath := filepath.Join(dataDir, "catalog.json")
	if err := os.WriteFile(catalogPath, []byte(e2eCatalog), 0644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	llm := newFakeLLM(t)
	apiKey := "e2e-test-api-key"
	port := freePort(t)
	logFile := filepath.Join(dataDir, "shopfilter.log")

	cmd := exec.Command(shopfilterBin)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("SHOPFILTER_PORT=%d", port),
		"SHOPFILTER_CATALOG_SOURCE=file",
		"SHOPFILTER_CATALOG_PATH="+catalogPath,
		"SHOPFILTER_API_KEY="+apiKey,
		"SHOPFILTER_CONFIG_PATH="+filepath.Join(dataDir, "nonexistent.yaml"),
		"SHOPFILTER_LLM_BASE_URL="+llm.srv.URL+"/",
		"SHOPFILTER_LOG_FORMAT=json",
		"OPENAI_API_KEY=e2e-fake-key",
	)
	cmd.Env = append(cmd.Env, extraEnv...)

	lf, err := os.Create(logFile)
	if err != nil {
		t.Fatalf("create log file: %v", err)
	}
	cmd.Stdout = lf
	cmd.Stderr = lf

	if err := cmd.Start(); err != nil {
		lf.Close()
		t.Fatalf("start shopfilter: %v", err)
	}

	s := &shopfilterServer{
		cmd:         cmd,
		dataDir:     dataDir,
		catalogPath: catalogPath,
		address:     fmt.Sprintf("127.0.0.1:%d", port),
		apiKey:      apiKey,
		logFile:     logFile,
		llm:         llm,
	}

	t.Cleanup(func() {
		s.stop()
		lf.Close()
	})

	if err := s.waitHealthy(10 * time.Second); err != nil {
		t.Fatalf("shopfilter not healthy: %v\n%s", err, s.logs())
	}
	return s
}

func (s *shopfilterServer) stop() {
	if s.cmd != nil && s.cmd.Process != nil && s.cmd.ProcessState == nil {
		_ = s.cmd.Process.Signal(os.Interrupt)
		_ = s.cmd.Wait()
	}
}

func (s *shopfilterServer) baseURL() string {
	return fmt.Sprintf("http://%s", s.address)
}

func (s *shopfilterServer) waitHealthy(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	url := s.baseURL() + "/api/v1/health"

	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("shopfilter not healthy after %s", timeout)
}

func (s *shopfilterServer) logs() string {
	data, _ := os.ReadFile(s.logFile)
	return string(data)
}

// do sends an authenticated request and returns the status and body.
func (s *shopfilterServer) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.baseURL()+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

// doJSON is do plus a status check and decode into out.
func (s *shopfilterServer) doJSON(t *testing.T, method, path string, body any, wantStatus int, out any) {
	t.Helper()
	status, data := s.do(t, method, path, body)
	if status != wantStatus {
		t.Fatalf("%s %s: status %d, want %d: %s", method, path, status, wantStatus, data)
	}
	if out == nil {
		return
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("%s %s: decode: %v: %s", method, path, err, data)
	}
}

// waitFor polls cond until it returns true or timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
