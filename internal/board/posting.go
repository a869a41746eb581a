package board

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
)

// Posting is one scraped internship listing. It is created by a board scraper
// and read-only afterwards.
type Posting struct {
	Source   string `json:"source"`
	Title    string `json:"title"`
	Company  string `json:"company"`
	Location string `json:"location"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet,omitempty"`
}

// Query is one search unit: a query string plus a geography hint. An empty
// location means a nation-wide search.
type Query struct {
	Text     string
	Location string
}

// Source extracts posting summaries from one job-board query surface. The
// page-structure assumptions of each board stay behind this interface.
type Source interface {
	Name() string
	Search(ctx context.Context, query Query, limit int) ([]*Posting, error)
}

// ID returns a stable identifier used for deduplication across repeated
// queries: the posting URL when present, otherwise a hash of
// title, company and location.
func (p *Posting) ID() string {
	if url := strings.TrimSpace(p.URL); url != "" {
		return url
	}

	seed := strings.ToLower(strings.Join([]string{p.Title, p.Company, p.Location}, "|"))
	return fmt.Sprintf("%x", sha256.Sum256([]byte(seed)))
}

// Label is a short human-readable identity for logs.
func (p *Posting) Label() string {
	return fmt.Sprintf("%s @ %s", p.Title, p.Company)
}
