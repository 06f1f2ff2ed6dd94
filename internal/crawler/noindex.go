package crawler

import (
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/afero"
)

func isHTML(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return true
	}
	return false
}

// hasNoIndex reports whether the page asks robots not to index it.
func hasNoIndex(fs afero.Fs, path string) (bool, error) {
	f, err := fs.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return false, err
	}

	noindex := false
	doc.Find("meta[name]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		name, _ := s.Attr("name")
		if !strings.EqualFold(name, "robots") {
			return true
		}
		content, _ := s.Attr("content")
		for _, directive := range strings.Split(content, ",") {
			if strings.EqualFold(strings.TrimSpace(directive), "noindex") {
				noindex = true
				return false
			}
		}
		return true
	})
	return noindex, nil
}
