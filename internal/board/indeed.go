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
	indeedName     = "indeed"
	indeedBaseURL  = "https://www.indeed.com"
	indeedPageSize = 10
)

// Indeed scrapes the rendered search result pages. Indeed sits behind
// Cloudflare, so a challenge page is a normal outcome and surfaces as a
// per-query failure rather than aborting the run.
type Indeed struct {
	client *Client
	logger *zap.Logger
}

func NewIndeed(client *Client, logger *zap.Logger) *Indeed {
	return &Indeed{client: client, logger: logutil.WithBoard(logger, indeedName)}
}

func (i *Indeed) Name() string { return indeedName }

func (i *Indeed) Search(ctx context.Context, query Query, limit int) ([]*Posting, error) {
	var results []*Posting

	for start := 0; len(results) < limit; start += indeedPageSize {
		params := url.Values{}
		params.Set("q", query.Text)
		params.Set("l", query.Location)
		if start > 0 {
			params.Set("start", strconv.Itoa(start))
		}

		body, err := i.client.Fetch(ctx, fmt.Sprintf("%s/jobs?%s", indeedBaseURL, params.Encode()))
		if err != nil {
			if len(results) > 0 {
				i.logger.Debug("indeed page fetch failed", zap.Int("start", start), zap.Error(err))
				break
			}
			return nil, err
		}

		if isChallengedPage(body) {
			return results, fmt.Errorf("indeed: blocked by challenge page")
		}

		page, err := parseIndeedResults(bytes.NewReader(body))
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

func isChallengedPage(body []byte) bool {
	for _, marker := range []string{"Just a moment", "cf-browser-verification", "Additional Verification Required"} {
		if bytes.Contains(body, []byte(marker)) {
			return true
		}
	}
	return false
}

// parseIndeedResults extracts posting summaries from a results page. Indeed
// rotates its card markup, so several selector generations are tried; cards
// missing a title or company are skipped.
func parseIndeedResults(r io.Reader) ([]*Posting, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse indeed html: %w", err)
	}

	cardSelectors := []string{
		"div.job_seen_beacon",
		"div[data-jk]",
		"td.resultContent",
	}

	var postings []*Posting
	for _, selector := range cardSelectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			title := firstText(s,
				"h2.jobTitle span[title]",
				"h2.jobTitle a",
				"h2.jobTitle",
				"a.jcs-JobTitle span",
			)
			company := firstText(s,
				"span.companyName",
				"span[data-testid='company-name']",
				"span.company",
			)
			if title == "" || company == "" {
				return
			}

			location := firstText(s,
				"div.companyLocation",
				"div[data-testid='text-location']",
				"span.location",
			)
			snippet := firstText(s,
				"div.job-snippet",
				"div.job-snippet ul",
			)

			jobURL := ""
			if href, ok := s.Find("a.jcs-JobTitle").Attr("href"); ok {
				jobURL = indeedBaseURL + href
			} else if href, ok := s.Find("h2.jobTitle a").Attr("href"); ok {
				jobURL = indeedBaseURL + href
			} else if jk, ok := s.Attr("data-jk"); ok {
				jobURL = fmt.Sprintf("%s/viewjob?jk=%s", indeedBaseURL, jk)
			}

			postings = append(postings, &Posting{
				Source:   indeedName,
				Title:    title,
				Company:  company,
				Location: location,
				URL:      jobURL,
				Snippet:  snippet,
			})
		})

		if len(postings) > 0 {
			break
		}
	}

	return postings, nil
}

func firstText(s *goquery.Selection, selectors ...string) string {
	for _, selector := range selectors {
		if text := strings.TrimSpace(s.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}
