package crawler

import (
	"context"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

// Prober decides whether a URL is live on the published domain.
type Prober interface {
	Exists(ctx context.Context, url string) bool
}

type ProberConfig struct {
	UserAgent string
	Timeout   time.Duration
	// RateLimit caps probes per second; zero means no pacing.
	RateLimit float64
	Transport http.RoundTripper
}

// HTTPProber issues one HEAD request per URL and accepts only a 200 answer.
// Redirects are not followed, so a moved page counts as missing.
type HTTPProber struct {
	collector *colly.Collector
	limiter   *rate.Limiter
}

func NewHTTPProber(cfg ProberConfig) *HTTPProber {
	c := colly.NewCollector(colly.AllowURLRevisit())
	c.SetRedirectHandler(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	})
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	if cfg.Timeout > 0 {
		c.SetRequestTimeout(cfg.Timeout)
	}
	if cfg.Transport != nil {
		c.WithTransport(cfg.Transport)
	}

	p := &HTTPProber{collector: c}
	if cfg.RateLimit > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return p
}

// Exists treats transport failures and every non-200 status alike: the page is not there.
func (p *HTTPProber) Exists(ctx context.Context, url string) bool {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return false
		}
	}
	if ctx.Err() != nil {
		return false
	}

	status := 0
	c := p.collector.Clone()
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
	})

	if err := c.Head(url); err != nil {
		return false
	}
	return status == http.StatusOK
}
