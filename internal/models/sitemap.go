// internal/models/sitemap.go
package models

import "encoding/xml"

// SitemapNamespace is the sitemap protocol 0.9 namespace.
const SitemapNamespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

// URLSet represents the structure of an XML sitemap.
type URLSet struct {
	XMLName xml.Name `xml:"urlset"`
	XMLNS   string   `xml:"xmlns,attr"`
	URLs    []URL    `xml:"url"`
}

// URL represents a single URL entry in the sitemap. LastMod is always emitted,
// empty when the path has no recorded timestamp.
type URL struct {
	Loc      string `xml:"loc"`
	Priority string `xml:"priority"`
	LastMod  string `xml:"lastmod"`
}
