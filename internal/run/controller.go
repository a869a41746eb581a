// Package run drives the search-expand-evaluate loop: crawl postings for the
// next query, gate them, evaluate the survivors, and keep going until enough
// approvals accumulate or the bounds run out.
package run

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"internship-matcher/internal/board"
	"internship-matcher/internal/llm"
	"internship-matcher/internal/locgate"
)

// Evaluator is the model-backed judgment surface consumed by the controller.
// The configured LLM gateway implements it; tests use stubs.
type Evaluator interface {
	CheckDegree(ctx context.Context, posting *board.Posting, profile *llm.Profile) (*llm.DegreeVerdict, error)
	Evaluate(ctx context.Context, posting *board.Posting, profile *llm.Profile) (*llm.Evaluation, error)
}

// LocationGate is the rule-based pre-filter applied before any model call.
type LocationGate interface {
	Classify(location string) locgate.Verdict
}

// Bounds are the run's stopping parameters. MinApproved is a soft target:
// exhausting queries or evaluations below it is still a normal termination.
type Bounds struct {
	MinApproved int
	MaxEvals    int
	MaxPerQuery int
}

// Approval is one posting the model approved, with its discovery order for
// the stable downstream tie-break.
type Approval struct {
	Posting    *board.Posting
	Evaluation *llm.Evaluation
	Order      int
}

// Summary reports what a run did, including the counts surfaced to the user
// at the end.
type Summary struct {
	QueriesTried     int
	Discovered       int
	Duplicates       int
	LocationRejected int
	DegreeRejected   int
	Evaluated        int
	Approved         int
	Skipped          int
}

type Controller struct {
	sources   []board.Source
	gate      LocationGate
	evaluator Evaluator
	bounds    Bounds
	metro     string
	logger    *zap.Logger
}

func NewController(sources []board.Source, gate LocationGate, evaluator Evaluator, bounds Bounds, metro string, logger *zap.Logger) *Controller {
	return &Controller{
		sources:   sources,
		gate:      gate,
		evaluator: evaluator,
		bounds:    bounds,
		metro:     metro,
		logger:    logger,
	}
}

// Run executes the state machine: Seed, then Crawl / Gate / Evaluate per
// query with a stop check between every unit of work. Postings are processed
// in discovery order within a query and queries in seed order, which fixes
// the ordering for equal-score results downstream.
func (c *Controller) Run(ctx context.Context, profile *llm.Profile) ([]*Approval, *Summary, error) {
	queries := c.seed(profile)
	seen := make(map[string]bool)

	var approvals []*Approval
	summary := &Summary{}
	order := 0

	for _, query := range queries {
		if c.done(summary) || ctx.Err() != nil {
			break
		}

		summary.QueriesTried++
		c.logger.Info("running query",
			zap.String("text", query.Text),
			zap.String("location", displayLocation(query.Location)),
		)

		postings := c.crawl(ctx, query)

		for _, posting := range postings {
			if c.done(summary) || ctx.Err() != nil {
				break
			}

			id := posting.ID()
			if seen[id] {
				summary.Duplicates++
				continue
			}
			seen[id] = true
			summary.Discovered++
			discoveryOrder := order
			order++

			if c.gate.Classify(posting.Location) == locgate.VerdictReject {
				summary.LocationRejected++
				c.logger.Debug("posting rejected by location gate",
					zap.String("posting", posting.Label()),
					zap.String("location", posting.Location),
				)
				continue
			}

			verdict, err := c.evaluator.CheckDegree(ctx, posting, profile)
			if err != nil {
				// The gate is advisory: on failure the posting proceeds to
				// the full evaluation, which remains the final arbiter.
				c.logger.Warn("degree gate failed, treating as eligible",
					zap.String("posting", posting.Label()),
					zap.Error(err),
				)
			} else if !verdict.Eligible {
				summary.DegreeRejected++
				c.logger.Info("posting rejected by degree gate",
					zap.String("posting", posting.Label()),
					zap.String("reason", verdict.Reason),
				)
				continue
			}

			if summary.Evaluated >= c.bounds.MaxEvals {
				break
			}

			evaluation, err := c.evaluator.Evaluate(ctx, posting, profile)
			if err != nil {
				summary.Skipped++
				c.logger.Warn("evaluation failed, skipping posting",
					zap.String("posting", posting.Label()),
					zap.Error(err),
				)
				continue
			}
			summary.Evaluated++

			if !evaluation.Approve {
				c.logger.Debug("posting denied",
					zap.String("posting", posting.Label()),
					zap.Int("score", evaluation.Score),
					zap.String("reason", evaluation.Reason),
				)
				continue
			}

			summary.Approved++
			approvals = append(approvals, &Approval{
				Posting:    posting,
				Evaluation: evaluation,
				Order:      discoveryOrder,
			})

			c.logger.Info("posting approved",
				zap.String("posting", posting.Label()),
				zap.Int("score", evaluation.Score),
				zap.String("priority", evaluation.Priority),
				zap.Int("approved_so_far", summary.Approved),
			)
		}
	}

	return approvals, summary, ctx.Err()
}

// seed builds the query list: the profile's suggested queries plus static
// broad seeds, each searched in the target metro and nation-wide. No query
// carries a "remote" keyword; remote postings arrive through the location
// gate's permissiveness.
func (c *Controller) seed(profile *llm.Profile) []board.Query {
	texts := append([]string{}, profile.SuggestedQueries...)
	texts = append(texts, "internship")

	var queries []board.Query
	seen := make(map[string]bool)
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		for _, location := range []string{c.metro, ""} {
			key := strings.ToLower(text) + "\x00" + strings.ToLower(location)
			if seen[key] {
				continue
			}
			seen[key] = true
			queries = append(queries, board.Query{Text: text, Location: location})
		}
	}

	return queries
}

// crawl fetches the query from every source, keeping discovery order:
// sources in configuration order, postings in page order. A failing source
// is logged and skipped; its postings for this query are lost, not the run.
func (c *Controller) crawl(ctx context.Context, query board.Query) []*board.Posting {
	var postings []*board.Posting
	for _, source := range c.sources {
		found, err := source.Search(ctx, query, c.bounds.MaxPerQuery)
		if err != nil {
			c.logger.Warn("crawl failed, skipping source for this query",
				zap.String("board", source.Name()),
				zap.String("text", query.Text),
				zap.Error(err),
			)
		}
		// A source may return partial results alongside an error.
		postings = append(postings, found...)
	}
	return postings
}

func (c *Controller) done(summary *Summary) bool {
	return summary.Approved >= c.bounds.MinApproved || summary.Evaluated >= c.bounds.MaxEvals
}

func displayLocation(location string) string {
	if location == "" {
		return "nation-wide"
	}
	return location
}
