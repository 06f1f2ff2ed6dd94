package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/romangod6/site-mapper/config"
	"github.com/romangod6/site-mapper/internal/generator"
	"github.com/romangod6/site-mapper/internal/models"
	"github.com/romangod6/site-mapper/internal/storage"
	"github.com/romangod6/site-mapper/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeRunner records requests and persists completed runs the way the generator does.
type fakeRunner struct {
	store    storage.Store
	requests []generator.Request
	err      error
	output   string
}

func (f *fakeRunner) Run(ctx context.Context, req generator.Request) (*models.GenerationRun, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}

	domain := req.Domain
	if domain == "" {
		domain = "example.com"
	}
	run := models.NewGenerationRun(domain+"/", "/srv/www", f.output, false)
	run.FileCount = 2
	run.Finish(nil)
	if err := f.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func newTestServer(t *testing.T) (*Server, storage.Store, *fakeRunner) {
	t.Helper()
	store, err := storage.Open("sqlite3", filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	runner := &fakeRunner{store: store, output: filepath.Join(t.TempDir(), "sitemap.xml")}
	return NewServer(0, store, runner), store, runner
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := do(s, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "healthy") {
		t.Errorf("Unexpected health response %d %s", w.Code, w.Body.String())
	}
}

func TestCreateRun(t *testing.T) {
	s, _, runner := newTestServer(t)

	w := do(s, http.MethodPost, "/api/runs", `{"domain":"docs.example.org","liveCheck":true}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var run models.GenerationRun
	if err := json.Unmarshal(w.Body.Bytes(), &run); err != nil {
		t.Fatal(err)
	}
	if run.Domain != "docs.example.org/" || run.Status != models.RunCompleted {
		t.Errorf("Unexpected run %+v", run)
	}
	if len(runner.requests) != 1 || runner.requests[0].LiveCheck == nil || !*runner.requests[0].LiveCheck {
		t.Errorf("Request not forwarded: %+v", runner.requests)
	}

	// An empty body runs with the configured settings.
	w = do(s, http.MethodPost, "/api/runs", "")
	if w.Code != http.StatusCreated {
		t.Errorf("Expected 201 for an empty body, got %d: %s", w.Code, w.Body.String())
	}

	w = do(s, http.MethodPost, "/api/runs", `{"domain":`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed JSON, got %d", w.Code)
	}
}

func TestCreateRun_Errors(t *testing.T) {
	s, _, runner := newTestServer(t)

	runner.err = fmt.Errorf("%w: /nope", config.ErrRootMissing)
	w := do(s, http.MethodPost, "/api/runs", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a precondition failure, got %d", w.Code)
	}

	runner.err = errors.New("disk full")
	w = do(s, http.MethodPost, "/api/runs", `{}`)
	if w.Code != http.StatusInternalServerError || !strings.Contains(w.Body.String(), "disk full") {
		t.Errorf("Expected 500 with the error, got %d %s", w.Code, w.Body.String())
	}
}

func TestCreateRun_OutputCannotBeChosen(t *testing.T) {
	s, _, runner := newTestServer(t)

	w := do(s, http.MethodPost, "/api/runs", `{"domain":"example.com","output":"/etc/passwd"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if got := runner.requests[0].Output; got != "" {
		t.Errorf("Output override leaked through the API: %q", got)
	}
}

func TestCreateRun_RootOutsideConfiguredRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("<html></html>"), 0644); err != nil {
		t.Fatal(err)
	}
	rules := filepath.Join(t.TempDir(), "blackList.json")
	if err := os.WriteFile(rules, []byte(`{}`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{}
	cfg.Sitemap.Domain = "example.com"
	cfg.Sitemap.Root = root
	cfg.Sitemap.Output = filepath.Join(t.TempDir(), "sitemap.xml")
	cfg.Crawler.Blacklist = rules

	store, err := storage.Open("sqlite3", filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	s := NewServer(0, store, generator.New(cfg, store, utils.Discard()))

	w := do(s, http.MethodPost, "/api/runs", `{"root":"`+filepath.ToSlash(t.TempDir())+`"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a root outside the configured one, got %d: %s", w.Code, w.Body.String())
	}
	if _, err := os.Stat(cfg.Sitemap.Output); !os.IsNotExist(err) {
		t.Error("Rejected run wrote a sitemap")
	}

	w = do(s, http.MethodPost, "/api/runs", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 for the configured root, got %d: %s", w.Code, w.Body.String())
	}
	w = do(s, http.MethodGet, "/sitemap.xml", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "<loc>https://example.com/</loc>") {
		t.Errorf("Unexpected sitemap response %d %s", w.Code, w.Body.String())
	}
}

func TestListAndGetRuns(t *testing.T) {
	s, store, _ := newTestServer(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		run := models.NewGenerationRun("example.com/", "/srv/www", "/tmp/sitemap.xml", false)
		run.StartedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, run.ID)
	}

	w := do(s, http.MethodGet, "/api/runs?page=1&limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var page struct {
		Data  []models.GenerationRun `json:"data"`
		Page  int                    `json:"page"`
		Limit int                    `json:"limit"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if page.Page != 1 || page.Limit != 2 || len(page.Data) != 2 || page.Data[0].ID != ids[2] {
		t.Errorf("Unexpected page %+v", page)
	}

	w = do(s, http.MethodGet, "/api/runs/"+ids[0].String(), "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), ids[0].String()) {
		t.Errorf("Unexpected run response %d %s", w.Code, w.Body.String())
	}

	if w := do(s, http.MethodGet, "/api/runs/"+uuid.NewString(), ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown run, got %d", w.Code)
	}
	if w := do(s, http.MethodGet, "/api/runs/not-a-uuid", ""); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a bad id, got %d", w.Code)
	}
}

func TestListRuns_Empty(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := do(s, http.MethodGet, "/api/runs", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"data":[]`) {
		t.Errorf("Expected an empty list, got %d %s", w.Code, w.Body.String())
	}
}

func TestGetSitemap(t *testing.T) {
	s, _, runner := newTestServer(t)

	if w := do(s, http.MethodGet, "/sitemap.xml", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 before any run, got %d", w.Code)
	}

	doc := `<?xml version="1.0" encoding="UTF-8"?>` + "\n<urlset></urlset>"
	if err := os.WriteFile(runner.output, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	if w := do(s, http.MethodPost, "/api/runs", ""); w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", w.Code)
	}

	w := do(s, http.MethodGet, "/sitemap.xml", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if w.Body.String() != doc {
		t.Errorf("Unexpected body %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
		t.Errorf("Unexpected content type %q", ct)
	}

	os.Remove(runner.output)
	if w := do(s, http.MethodGet, "/sitemap.xml", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for a missing file, got %d", w.Code)
	}
}
