package sitemap

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/romangod6/site-mapper/internal/models"
)

const (
	rootKey      = "."
	rootPriority = "1.0"
	maxPriority  = 0.8
	minPriority  = 0.01

	generatorComment = "<!-- Sitemap Generated by Local SiteMap Generator -->"
	signatureComment = "<!-- Signed by Local SiteMap Generator (SH) -->"
	generatedLayout  = "2006-01-02 15:04:05"
)

// Builder turns crawled paths into a sitemap document.
type Builder struct {
	domain  string
	output  string
	paths   []string
	lastMod map[string]string
}

// NewBuilder copies paths with backslashes turned into forward slashes;
// the caller's slice is left untouched.
func NewBuilder(domain, output string, paths []string, lastMod map[string]string) *Builder {
	fixed := make([]string, len(paths))
	for i, p := range paths {
		fixed[i] = strings.ReplaceAll(p, "\\", "/")
	}
	if lastMod == nil {
		lastMod = map[string]string{}
	}
	if !strings.HasSuffix(domain, "/") {
		domain += "/"
	}

	return &Builder{
		domain:  domain,
		output:  output,
		paths:   fixed,
		lastMod: lastMod,
	}
}

// Priority is 0.8 / (depth + 1) rounded to two places, where depth counts the
// slashes in path. Very deep paths bottom out at 0.01.
func Priority(path string) float64 {
	depth := strings.Count(path, "/")
	p := math.Round(maxPriority/float64(depth+1)*100) / 100
	if p < minPriority {
		p = minPriority
	}
	return p
}

func formatPriority(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

type rankedPath struct {
	path     string
	priority float64
}

// Entries returns the sitemap URLs: the domain root first, then every path by
// descending priority, ties broken by ascending path.
func (b *Builder) Entries() []models.URL {
	ranked := make([]rankedPath, 0, len(b.paths))
	seen := make(map[string]bool, len(b.paths))
	for _, p := range b.paths {
		// The empty path is the domain root, which is always emitted below.
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		ranked = append(ranked, rankedPath{path: p, priority: Priority(p)})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].priority != ranked[j].priority {
			return ranked[i].priority > ranked[j].priority
		}
		return ranked[i].path < ranked[j].path
	})

	rootMod, ok := b.lastMod[rootKey]
	if !ok {
		rootMod = b.lastMod[""]
	}

	urls := make([]models.URL, 0, len(ranked)+1)
	urls = append(urls, models.URL{
		Loc:      "https://" + b.domain,
		Priority: rootPriority,
		LastMod:  rootMod,
	})
	for _, r := range ranked {
		urls = append(urls, models.URL{
			Loc:      "https://" + b.domain + r.path,
			Priority: formatPriority(r.priority),
			LastMod:  b.lastMod[r.path],
		})
	}
	return urls
}

// Render produces the document text, stamping generatedAt in its trailing comments.
func (b *Builder) Render(generatedAt time.Time) (string, error) {
	set := models.URLSet{
		XMLNS: models.SitemapNamespace,
		URLs:  b.Entries(),
	}

	body, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode sitemap: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(xml.Header)
	sb.Write(body)
	sb.WriteString("\n" + generatorComment)
	sb.WriteString(fmt.Sprintf("\n<!-- Sitemap Generated at %s -->", generatedAt.Format(generatedLayout)))
	sb.WriteString("\n" + signatureComment)
	return sb.String(), nil
}

// Write renders the sitemap, replaces the output file with it and returns the text.
func (b *Builder) Write() (string, error) {
	doc, err := b.Render(time.Now())
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(b.output, []byte(doc), 0644); err != nil {
		return "", fmt.Errorf("failed to write sitemap %s: %w", b.output, err)
	}
	return doc, nil
}

func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	doc, err := b.Render(time.Now())
	if err != nil {
		return 0, err
	}
	n, err := io.WriteString(w, doc)
	return int64(n), err
}

// Parse reads a sitemap back. Decoding stops at </urlset>, so the trailing
// comments are ignored.
func Parse(r io.Reader) (*models.URLSet, error) {
	var set models.URLSet
	if err := xml.NewDecoder(r).Decode(&set); err != nil {
		return nil, fmt.Errorf("failed to parse sitemap: %w", err)
	}
	return &set, nil
}
