package parse

import (
	"encoding/xml"
	"time"

	"github.com/araddon/dateparse"
)

// --- XML Structs for Sitemap Parsing ---

// XMLURL represents a <url> element in a sitemap
type XMLURL struct {
	Loc     string   `xml:"loc"`
	LastMod string   `xml:"lastmod,omitempty"`
	News    *XMLNews `xml:"news,omitempty"`
}

// XMLURLSet represents a <urlset> element in a sitemap
type XMLURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []XMLURL `xml:"url"`
}

// XMLSitemap represents a <sitemap> element in a sitemap index file
type XMLSitemap struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// XMLSitemapIndex represents a <sitemapindex> element
type XMLSitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []XMLSitemap `xml:"sitemap"`
}

// XMLNews represents the <news:news> block the Google News extension nests
// inside a <url> entry. News sitemaps carry the publication date and
// headline alongside the location, so stale entries can be skipped without
// fetching them.
type XMLNews struct {
	Publication     XMLNewsPublication `xml:"publication"`
	PublicationDate string             `xml:"publication_date"`
	Title           string             `xml:"title,omitempty"`
	Keywords        string             `xml:"keywords,omitempty"`
}

// XMLNewsPublication represents the <news:publication> element
type XMLNewsPublication struct {
	Name     string `xml:"name"`
	Language string `xml:"language,omitempty"`
}

// PublishedTime parses the entry's publication date. Returns false when the
// entry is absent or the date does not parse.
func (n *XMLNews) PublishedTime() (time.Time, bool) {
	if n == nil {
		return time.Time{}, false
	}
	return ParseSitemapTime(n.PublicationDate)
}

// ParseSitemapTime parses a <lastmod> or <news:publication_date> value.
// Feeds carry anything from bare dates to full RFC 3339 timestamps, so
// parsing is lenient.
func ParseSitemapTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	ts, err := dateparse.ParseAny(value)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
