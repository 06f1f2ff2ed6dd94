package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPProber_Exists(t *testing.T) {
	rt := &statusTransport{statuses: map[string]int{
		"/ok.html":       http.StatusOK,
		"/created.html":  http.StatusCreated,
		"/gone.html":     http.StatusNotFound,
		"/moved.html":    http.StatusMovedPermanently,
		"/error.html":    http.StatusInternalServerError,
		"/ok-again.html": http.StatusOK,
	}}
	p := NewHTTPProber(ProberConfig{UserAgent: "site-mapper-test", Transport: rt, Timeout: time.Second})

	cases := []struct {
		path string
		want bool
	}{
		{"/ok.html", true},
		{"/created.html", false},
		{"/gone.html", false},
		{"/moved.html", false},
		{"/error.html", false},
		{"/refused.html", false}, // transport error
		{"/ok-again.html", true},
	}
	for _, c := range cases {
		if got := p.Exists(context.Background(), "https://example.com"+c.path); got != c.want {
			t.Errorf("Exists(%s): expected %v, got %v", c.path, c.want, got)
		}
	}

	if ua := rt.requests[0].Header.Get("User-Agent"); ua != "site-mapper-test" {
		t.Errorf("Expected configured user agent, got %q", ua)
	}
}

func TestHTTPProber_RateLimitHonoursContext(t *testing.T) {
	rt := &statusTransport{statuses: map[string]int{"/a.html": http.StatusOK}}
	p := NewHTTPProber(ProberConfig{Transport: rt, RateLimit: 0.001})

	// The first probe consumes the only token.
	if !p.Exists(context.Background(), "https://example.com/a.html") {
		t.Fatal("Expected first probe to pass")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if p.Exists(ctx, "https://example.com/a.html") {
		t.Error("Expected throttled probe to give up with the context")
	}
	if len(rt.requests) != 1 {
		t.Errorf("Expected a single request on the wire, got %d", len(rt.requests))
	}
}

func TestHTTPProber_RedirectIsNotLive(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old.html", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new.html", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/found.html", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new.html", http.StatusFound)
	})
	mux.HandleFunc("/new.html", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewHTTPProber(ProberConfig{Timeout: time.Second})

	cases := []struct {
		path string
		want bool
	}{
		{"/new.html", true},
		{"/old.html", false},
		{"/found.html", false},
	}
	for _, c := range cases {
		if got := p.Exists(context.Background(), srv.URL+c.path); got != c.want {
			t.Errorf("Exists(%s): expected %v, got %v", c.path, c.want, got)
		}
	}
}
