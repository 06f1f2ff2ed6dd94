package generator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/romangod6/site-mapper/config"
	"github.com/romangod6/site-mapper/internal/blacklist"
	"github.com/romangod6/site-mapper/internal/crawler"
	"github.com/romangod6/site-mapper/internal/models"
	"github.com/romangod6/site-mapper/internal/sitemap"
	"github.com/romangod6/site-mapper/internal/storage"
	"github.com/romangod6/site-mapper/internal/utils"
)

// ErrPathNotAllowed rejects a root or output override that leaves the
// configured root directory or output directory.
var ErrPathNotAllowed = errors.New("path is outside the configured directory")

// Request overrides the configured sitemap settings for a single run.
// Zero values keep the configuration. Root must stay inside the configured
// root and Output inside the configured output directory.
type Request struct {
	Domain    string `json:"domain"`
	Root      string `json:"root"`
	Output    string `json:"output"`
	LiveCheck *bool  `json:"liveCheck"`
}

// Generator runs crawl -> build -> write and records each run in the store.
// Runs are serialized so that scheduled and on-demand runs never write the
// same output concurrently.
type Generator struct {
	cfg    *config.Config
	store  storage.Store
	logger *utils.Logger
	prober crawler.Prober

	mu sync.Mutex
}

type Option func(*Generator)

// WithProber replaces the HTTP liveness prober built from the configuration.
func WithProber(p crawler.Prober) Option {
	return func(g *Generator) { g.prober = p }
}

// New builds a generator. store may be nil, in which case runs are not recorded;
// a nil logger makes every run open its own run logger.
func New(cfg *config.Config, store storage.Store, logger *utils.Logger, options ...Option) *Generator {
	g := &Generator{
		cfg:    cfg,
		store:  store,
		logger: logger,
	}
	for _, o := range options {
		o(g)
	}
	return g
}

func (g *Generator) resolve(req Request) (config.Config, error) {
	cfg := *g.cfg
	if req.Domain != "" {
		cfg.Sitemap.Domain = req.Domain
	}
	if req.Root != "" {
		if !within(g.cfg.Sitemap.Root, req.Root) {
			return cfg, fmt.Errorf("%w: root %s", ErrPathNotAllowed, req.Root)
		}
		cfg.Sitemap.Root = req.Root
	}
	if req.Output != "" {
		if !within(filepath.Dir(g.cfg.Sitemap.Output), req.Output) || filepath.Ext(req.Output) != ".xml" {
			return cfg, fmt.Errorf("%w: output %s", ErrPathNotAllowed, req.Output)
		}
		cfg.Sitemap.Output = req.Output
	}
	if req.LiveCheck != nil {
		cfg.Sitemap.LiveCheck = *req.LiveCheck
	}
	return cfg, nil
}

// within reports whether target is base or lies below it, after cleaning both.
func within(base, target string) bool {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return false
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absBase, absTarget)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Run generates one sitemap. Precondition failures (domain, root, output
// directory, rule file) return an error before anything is written or recorded.
// Later failures are returned together with the failed run record.
func (g *Generator) Run(ctx context.Context, req Request) (*models.GenerationRun, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cfg, err := g.resolve(req)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rules, err := blacklist.Load(cfg.Crawler.Blacklist)
	if err != nil {
		return nil, err
	}

	logger := g.logger
	if logger == nil {
		logger, err = utils.NewRunLogger(cfg.Sitemap.Domain, cfg.Logging.Dir, cfg.Sitemap.Quiet)
		if err != nil {
			return nil, err
		}
		defer logger.Close()
	}

	// Run records outlive a cancelled crawl.
	recordCtx := context.WithoutCancel(ctx)

	run := models.NewGenerationRun(crawler.NormalizeDomain(cfg.Sitemap.Domain), cfg.Sitemap.Root, cfg.Sitemap.Output, cfg.Sitemap.LiveCheck)
	if g.store != nil {
		if err := g.store.CreateRun(recordCtx, run); err != nil {
			return nil, fmt.Errorf("failed to record run: %w", err)
		}
	}

	logger.LogInfo("Starting sitemap generation for %s from %s", run.Domain, run.Root)
	runErr := g.generate(ctx, &cfg, rules, logger, run)
	run.Finish(runErr)

	if runErr != nil {
		logger.LogError("Sitemap generation failed for %s: %v", run.Domain, runErr)
	} else {
		logger.LogInfo("Sitemap generation completed for %s: %d urls written to %s", run.Domain, run.FileCount, run.Output)
	}

	if g.store != nil {
		if err := g.store.UpdateRun(recordCtx, run); err != nil {
			logger.LogError("Failed to update run %s: %v", run.ID, err)
		}
	}

	return run, runErr
}

func (g *Generator) generate(ctx context.Context, cfg *config.Config, rules *blacklist.RuleSet, logger *utils.Logger, run *models.GenerationRun) error {
	var options []crawler.Option
	if cfg.Sitemap.LiveCheck {
		prober := g.prober
		if prober == nil {
			prober = crawler.NewHTTPProber(crawler.ProberConfig{
				UserAgent: cfg.Live.UserAgent,
				Timeout:   cfg.GetProbeTimeout(),
				RateLimit: cfg.Live.RateLimit,
			})
		}
		options = append(options, crawler.WithProber(prober))
	}

	c := crawler.New(crawler.Options{
		Root:          cfg.Sitemap.Root,
		Domain:        cfg.Sitemap.Domain,
		Quiet:         cfg.Sitemap.Quiet,
		LiveCheck:     cfg.Sitemap.LiveCheck,
		RespectRobots: cfg.Crawler.RespectRobots,
		SkipNoIndex:   cfg.Crawler.SkipNoIndex,
	}, rules, logger, options...)

	res, err := c.Crawl(ctx)
	if err != nil {
		return fmt.Errorf("failed to crawl %s: %w", cfg.Sitemap.Root, err)
	}

	run.FileCount = len(res.Entries)
	run.LivenessSkipped = res.LivenessSkipped()
	run.Skipped = make(map[string]int, len(res.Skipped))
	for reason, n := range res.Skipped {
		run.Skipped[string(reason)] = n
	}

	builder := sitemap.NewBuilder(cfg.Sitemap.Domain, cfg.Sitemap.Output, res.Paths(), res.LastMod())
	if _, err := builder.Write(); err != nil {
		return err
	}
	return nil
}
