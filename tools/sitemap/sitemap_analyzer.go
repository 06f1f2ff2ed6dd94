package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/romangod6/site-mapper/internal/models"
	"github.com/romangod6/site-mapper/internal/sitemap"
	"github.com/spf13/pflag"
)

func main() {
	samples := pflag.IntP("sample", "n", 0, "Fetch this many URLs and report their title and robots meta")
	pflag.Parse()

	if pflag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: sitemap [--sample N] <sitemap.xml | https://host/sitemap.xml>")
		os.Exit(2)
	}

	set, err := loadSitemap(pflag.Arg(0))
	if err != nil {
		log.Fatalf("Error loading sitemap: %v", err)
	}

	fmt.Printf("Total URLs found: %d\n", len(set.URLs))

	fmt.Println("\n--- Priorities ---")
	analyzePriorities(set.URLs)

	fmt.Println("\n--- Missing lastmod ---")
	analyzeLastMod(set.URLs)

	fmt.Println("\n--- Duplicates ---")
	analyzeDuplicates(set.URLs)

	client := &http.Client{Timeout: 10 * time.Second}
	for i := 0; i < *samples && i < len(set.URLs); i++ {
		loc := set.URLs[i].Loc
		fmt.Printf("\n=== Sample %d/%d: %s ===\n", i+1, *samples, loc)
		if err := analyzePage(client, loc); err != nil {
			log.Printf("Error fetching page: %v", err)
		}
	}
}

func loadSitemap(source string) (*models.URLSet, error) {
	var r io.ReadCloser
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		resp, err := http.Get(source)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status %s", resp.Status)
		}
		r = resp.Body
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, err
		}
		r = f
	}
	defer r.Close()

	return sitemap.Parse(r)
}

func analyzePriorities(urls []models.URL) {
	counts := make(map[string]int)
	for _, u := range urls {
		counts[u.Priority]++
	}

	priorities := make([]string, 0, len(counts))
	for p := range counts {
		priorities = append(priorities, p)
	}
	// Priorities are decimal strings between 0 and 1, so string order is numeric order.
	sort.Sort(sort.Reverse(sort.StringSlice(priorities)))

	for _, p := range priorities {
		fmt.Printf("%6s  %5d  %s\n", p, counts[p], strings.Repeat("#", min(counts[p], 60)))
	}
}

func analyzeLastMod(urls []models.URL) {
	missing := 0
	for _, u := range urls {
		if u.LastMod == "" {
			fmt.Println(u.Loc)
			missing++
		}
	}
	fmt.Printf("%d of %d urls have no lastmod\n", missing, len(urls))
}

func analyzeDuplicates(urls []models.URL) {
	seen := make(map[string]int)
	for _, u := range urls {
		seen[u.Loc]++
	}
	found := false
	for loc, n := range seen {
		if n > 1 {
			fmt.Printf("%s appears %d times\n", loc, n)
			found = true
		}
	}
	if !found {
		fmt.Println("none")
	}
}

func analyzePage(client *http.Client, url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	fmt.Printf("Status: %s\n", resp.Status)
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return err
	}

	fmt.Printf("Title: %s\n", strings.TrimSpace(doc.Find("title").First().Text()))
	doc.Find("meta[name]").Each(func(_ int, s *goquery.Selection) {
		if strings.EqualFold(s.AttrOr("name", ""), "robots") {
			fmt.Printf("Robots: %s\n", s.AttrOr("content", ""))
		}
	})
	if canonical, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok {
		fmt.Printf("Canonical: %s\n", canonical)
	}
	return nil
}
