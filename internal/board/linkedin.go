package board

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	logutil "internship-matcher/internal/logger"
)

const (
	linkedinName      = "linkedin"
	linkedinSearchURL = "https://www.linkedin.com/jobs-guest/jobs/api/seeMoreJobPostings/search"
	linkedinPageSize  = 25
)

// LinkedIn scrapes the public guest search surface. The guest endpoint
// returns plain result-card HTML without authentication.
type LinkedIn struct {
	client *Client
	logger *zap.Logger
}

func NewLinkedIn(client *Client, logger *zap.Logger) *LinkedIn {
	return &LinkedIn{client: client, logger: logutil.WithBoard(logger, linkedinName)}
}

func (l *LinkedIn) Name() string { return linkedinName }

func (l *LinkedIn) Search(ctx context.Context, query Query, limit int) ([]*Posting, error) {
	var results []*Posting

	for start := 0; len(results) < limit; start += linkedinPageSize {
		params := url.Values{}
		params.Set("keywords", query.Text)
		if query.Location != "" {
			params.Set("location", query.Location)
		}
		params.Set("sortBy", "DD")
		if start > 0 {
			params.Set("start", strconv.Itoa(start))
		}

		body, err := l.client.Fetch(ctx, fmt.Sprintf("%s?%s", linkedinSearchURL, params.Encode()))
		if err != nil {
			if len(results) > 0 {
				// Keep what earlier pages produced.
				l.logger.Debug("linkedin page fetch failed", zap.Int("start", start), zap.Error(err))
				break
			}
			return nil, err
		}

		page, err := parseLinkedInResults(bytes.NewReader(body))
		if err != nil {
			return results, err
		}
		if len(page) == 0 {
			break
		}

		results = append(results, page...)
	}

	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// parseLinkedInResults extracts posting summaries from guest search result
// cards. Cards missing a title or company are skipped.
func parseLinkedInResults(r io.Reader) ([]*Posting, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse linkedin html: %w", err)
	}

	var postings []*Posting
	doc.Find("div.base-card, li div.base-search-card").Each(func(_ int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Find("h3.base-search-card__title").Text())
		company := strings.TrimSpace(s.Find("h4.base-search-card__subtitle").Text())
		if title == "" || company == "" {
			return
		}

		location := strings.TrimSpace(s.Find("span.job-search-card__location").Text())
		jobURL, _ := s.Find("a.base-card__full-link").Attr("href")
		if jobURL == "" {
			jobURL, _ = s.Find("a.base-search-card__full-link").Attr("href")
		}
		if idx := strings.Index(jobURL, "?"); idx != -1 {
			jobURL = jobURL[:idx]
		}

		snippet := strings.TrimSpace(s.Find("div.base-search-card__metadata").Text())

		postings = append(postings, &Posting{
			Source:   linkedinName,
			Title:    title,
			Company:  company,
			Location: location,
			URL:      strings.TrimSpace(jobURL),
			Snippet:  snippet,
		})
	})

	return postings, nil
}
