package crawler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/romangod6/site-mapper/internal/blacklist"
	"github.com/romangod6/site-mapper/internal/utils"
	"github.com/spf13/afero"
	"github.com/temoto/robotstxt"
)

const indexFile = "index.html"

// Characters allowed in a published path (RFC 3986 section 3.3 and the query/fragment delimiters).
var rfc3986Path = regexp.MustCompile(`^[A-Za-z0-9\-._~:/?#\[\]@!$&'()*+,;=]*$`)

// SkipReason says why a candidate never made it into the result.
type SkipReason string

const (
	SkipFolderPattern SkipReason = "folder_pattern"
	SkipFilePattern   SkipReason = "file_pattern"
	SkipFileName      SkipReason = "file_name"
	SkipExtension     SkipReason = "extension"
	SkipInvalidPath   SkipReason = "rfc3986"
	SkipRobots        SkipReason = "robots"
	SkipNoIndex       SkipReason = "noindex"
	SkipLiveness      SkipReason = "liveness"
	SkipUnreadable    SkipReason = "unreadable"
)

type Options struct {
	Root          string
	Domain        string
	Quiet         bool
	LiveCheck     bool
	RespectRobots bool
	SkipNoIndex   bool
	// RobotsAgent selects the robots.txt group; "*" when empty.
	RobotsAgent string
}

// Entry is one published path, relative to the crawl root with forward slashes.
// The root index.html is the empty path.
type Entry struct {
	Path         string `json:"path"`
	LastModified string `json:"lastModified"`
}

type Result struct {
	Entries []Entry
	Skipped map[SkipReason]int
}

func (r *Result) Paths() []string {
	paths := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		paths[i] = e.Path
	}
	return paths
}

// LastMod maps each path to its timestamp. The root index is also filed under
// ".", the key the sitemap uses for the domain root.
func (r *Result) LastMod() map[string]string {
	lastMod := make(map[string]string, len(r.Entries)+1)
	for _, e := range r.Entries {
		lastMod[e.Path] = e.LastModified
		if e.Path == "" {
			lastMod["."] = e.LastModified
		}
	}
	return lastMod
}

// LivenessSkipped is the number of files dropped because the live domain did not answer 200.
func (r *Result) LivenessSkipped() int {
	return r.Skipped[SkipLiveness]
}

func (r *Result) SkippedTotal() int {
	total := 0
	for _, n := range r.Skipped {
		total += n
	}
	return total
}

type LocalCrawler struct {
	opts   Options
	rules  *blacklist.RuleSet
	logger *utils.Logger
	fs     afero.Fs
	prober Prober
}

type Option func(*LocalCrawler)

func WithFs(fs afero.Fs) Option {
	return func(c *LocalCrawler) { c.fs = fs }
}

func WithProber(p Prober) Option {
	return func(c *LocalCrawler) { c.prober = p }
}

func New(opts Options, rules *blacklist.RuleSet, logger *utils.Logger, options ...Option) *LocalCrawler {
	opts.Domain = NormalizeDomain(opts.Domain)
	if opts.RobotsAgent == "" {
		opts.RobotsAgent = "*"
	}
	if logger == nil {
		logger = utils.NewLogger(os.Stdout, opts.Quiet)
	}

	c := &LocalCrawler{
		opts:   opts,
		rules:  rules,
		logger: logger,
		fs:     afero.NewOsFs(),
	}
	for _, o := range options {
		o(c)
	}
	if c.opts.LiveCheck && c.prober == nil {
		c.prober = NewHTTPProber(ProberConfig{})
	}
	return c
}

// NormalizeDomain ensures the domain ends with a slash.
func NormalizeDomain(domain string) string {
	if !strings.HasSuffix(domain, "/") {
		domain += "/"
	}
	return domain
}

// ValidPath reports whether every character of p is allowed in a URL path.
func ValidPath(p string) bool {
	return rfc3986Path.MatchString(p)
}

// FormatTimestamp renders t in UTC as ISO-8601 with a numeric offset.
// Fractional seconds appear only when present, at microsecond precision.
func FormatTimestamp(t time.Time) string {
	t = t.UTC().Truncate(time.Microsecond)
	if t.Nanosecond() == 0 {
		return t.Format("2006-01-02T15:04:05-07:00")
	}
	return t.Format("2006-01-02T15:04:05.000000-07:00")
}

// Crawl walks the root top-down and returns the accepted files in visit order:
// the files of a directory, then its subdirectories, each sorted by name.
func (c *LocalCrawler) Crawl(ctx context.Context) (*Result, error) {
	info, err := c.fs.Stat(c.opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root %s: %w", c.opts.Root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", c.opts.Root)
	}

	res := &Result{
		Entries: make([]Entry, 0),
		Skipped: make(map[SkipReason]int),
	}

	robots := c.loadRobots()

	if err := c.walk(ctx, "", res, robots); err != nil {
		return nil, err
	}

	c.logger.LogInfo("Found %d files", len(res.Entries))
	return res, nil
}

func (c *LocalCrawler) walk(ctx context.Context, rel string, res *Result, robots *robotstxt.Group) error {
	dir := filepath.Join(c.opts.Root, filepath.FromSlash(rel))

	infos, err := afero.ReadDir(c.fs, dir)
	if err != nil {
		if rel == "" {
			return fmt.Errorf("failed to read root %s: %w", dir, err)
		}
		c.logger.LogError("Skipping %s because it could not be read: %v", rel, err)
		res.Skipped[SkipUnreadable]++
		return nil
	}

	var dirs []string
	for _, fi := range infos {
		name := fi.Name()

		if fi.IsDir() {
			// Pruned folders are never descended into.
			if c.rules.MatchFolder(name) {
				res.Skipped[SkipFolderPattern]++
				continue
			}
			dirs = append(dirs, name)
			continue
		}

		if c.rules.MatchFile(name) {
			res.Skipped[SkipFilePattern]++
			continue
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		entry, reason := c.visit(ctx, rel, fi, robots)
		if reason != "" {
			res.Skipped[reason]++
			continue
		}
		res.Entries = append(res.Entries, entry)
	}

	for _, d := range dirs {
		if err := c.walk(ctx, joinRel(rel, d), res, robots); err != nil {
			return err
		}
	}
	return nil
}

func (c *LocalCrawler) visit(ctx context.Context, rel string, fi os.FileInfo, robots *robotstxt.Group) (Entry, SkipReason) {
	name := fi.Name()

	if c.rules.HasName(name) {
		c.logger.LogInfo("Skipping %s because it is in the blacklist", name)
		return Entry{}, SkipFileName
	}

	if ext, ok := c.rules.HasExtension(name); ok {
		c.logger.LogInfo("Skipping %s because it is a %s file", name, ext)
		return Entry{}, SkipExtension
	}

	effective := name
	if name == indexFile {
		effective = ""
	}

	// A directory index publishes as the directory itself: "blog/index.html" is "blog".
	relPath := joinRel(rel, effective)

	if !ValidPath(relPath) {
		c.logger.LogInfo("Skipping %s because it does not meet RFC 3986", relPath)
		return Entry{}, SkipInvalidPath
	}

	if robots != nil && !robots.Test("/"+relPath) {
		c.logger.LogInfo("Skipping %s because robots.txt disallows it", relPath)
		return Entry{}, SkipRobots
	}

	full := filepath.Join(c.opts.Root, filepath.FromSlash(rel), name)

	if c.opts.SkipNoIndex && isHTML(name) {
		noindex, err := hasNoIndex(c.fs, full)
		if err != nil {
			c.logger.LogError("Could not inspect %s for noindex: %v", relPath, err)
		} else if noindex {
			c.logger.LogInfo("Skipping %s because it is marked noindex", relPath)
			return Entry{}, SkipNoIndex
		}
	}

	if c.opts.LiveCheck {
		url := "https://" + c.opts.Domain + relPath
		c.logger.LogNotice("Checking %s", url)
		if !c.prober.Exists(ctx, url) {
			c.logger.LogInfo("Skipping %s because it does not exist on the domain", relPath)
			return Entry{}, SkipLiveness
		}
	}

	return Entry{
		Path:         relPath,
		LastModified: FormatTimestamp(fi.ModTime()),
	}, ""
}

func (c *LocalCrawler) loadRobots() *robotstxt.Group {
	if !c.opts.RespectRobots {
		return nil
	}

	data, err := afero.ReadFile(c.fs, filepath.Join(c.opts.Root, "robots.txt"))
	if err != nil {
		c.logger.LogDebug("No robots.txt under %s", c.opts.Root)
		return nil
	}

	robots, err := robotstxt.FromBytes(data)
	if err != nil {
		c.logger.LogError("Ignoring unparsable robots.txt: %v", err)
		return nil
	}
	return robots.FindGroup(c.opts.RobotsAgent)
}

func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	if name == "" {
		return dir
	}
	return dir + "/" + name
}
