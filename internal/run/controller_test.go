package run

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"internship-matcher/internal/board"
	"internship-matcher/internal/llm"
	"internship-matcher/internal/locgate"
)

type stubSource struct {
	name     string
	postings []*board.Posting
	queries  []board.Query
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Search(_ context.Context, query board.Query, limit int) ([]*board.Posting, error) {
	s.queries = append(s.queries, query)
	if len(s.postings) > limit {
		return s.postings[:limit], nil
	}
	return s.postings, nil
}

type failingSource struct{}

func (s *failingSource) Name() string { return "broken" }

func (s *failingSource) Search(context.Context, board.Query, int) ([]*board.Posting, error) {
	return nil, errors.New("blocked by challenge page")
}

type stubEvaluator struct {
	degreeRejects map[string]bool
	degreeErr     error
	approve       func(p *board.Posting) *llm.Evaluation
	evalErr       map[string]error

	degreeCalls int
	evalCalls   int
	evaluated   []string
}

func (e *stubEvaluator) CheckDegree(_ context.Context, p *board.Posting, _ *llm.Profile) (*llm.DegreeVerdict, error) {
	e.degreeCalls++
	if e.degreeErr != nil {
		return nil, e.degreeErr
	}
	if e.degreeRejects[p.Title] {
		return &llm.DegreeVerdict{Eligible: false, Reason: "unmet degree requirement"}, nil
	}
	return &llm.DegreeVerdict{Eligible: true}, nil
}

func (e *stubEvaluator) Evaluate(_ context.Context, p *board.Posting, _ *llm.Profile) (*llm.Evaluation, error) {
	e.evalCalls++
	e.evaluated = append(e.evaluated, p.Title)
	if err, ok := e.evalErr[p.Title]; ok {
		return nil, err
	}
	if e.approve != nil {
		return e.approve(p), nil
	}
	return &llm.Evaluation{Approve: false, Score: 10, Priority: "low", Reason: "weak fit"}, nil
}

func passGate() LocationGate { return locgate.New(locgate.DefaultRules()) }

func postings(n int) []*board.Posting {
	items := make([]*board.Posting, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, &board.Posting{
			Title:   fmt.Sprintf("Intern %02d", i),
			Company: "Acme",
			URL:     fmt.Sprintf("https://example.com/%d", i),
		})
	}
	return items
}

func profile() *llm.Profile {
	return &llm.Profile{SuggestedQueries: []string{"software intern"}}
}

func TestRunStopsAtApprovalTarget(t *testing.T) {
	source := &stubSource{name: "stub", postings: postings(20)}
	evaluator := &stubEvaluator{
		approve: func(p *board.Posting) *llm.Evaluation {
			return &llm.Evaluation{Approve: true, Score: 90, Priority: "high", Reason: "fit"}
		},
	}
	controller := NewController([]board.Source{source}, passGate(), evaluator,
		Bounds{MinApproved: 3, MaxEvals: 100, MaxPerQuery: 50}, "Dallas", zap.NewNop())

	approvals, summary, err := controller.Run(context.Background(), profile())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Approved != 3 {
		t.Fatalf("expected exactly 3 approvals, got %d", summary.Approved)
	}
	// The run halts the moment the target is crossed: no further model calls
	// even though postings remain in the batch.
	if evaluator.evalCalls != 3 {
		t.Fatalf("expected 3 evaluations, got %d", evaluator.evalCalls)
	}
	if len(approvals) != 3 {
		t.Fatalf("expected 3 approval records, got %d", len(approvals))
	}
}

func TestRunMaxEvaluationsIsNormalTermination(t *testing.T) {
	source := &stubSource{name: "stub", postings: postings(30)}
	approved := 0
	evaluator := &stubEvaluator{
		approve: func(p *board.Posting) *llm.Evaluation {
			// Approve the first 5 only; the rest are denied.
			if approved < 5 {
				approved++
				return &llm.Evaluation{Approve: true, Score: 80, Priority: "medium", Reason: "fit"}
			}
			return &llm.Evaluation{Approve: false, Score: 20, Priority: "low", Reason: "weak"}
		},
	}
	controller := NewController([]board.Source{source}, passGate(), evaluator,
		Bounds{MinApproved: 8, MaxEvals: 10, MaxPerQuery: 50}, "Dallas", zap.NewNop())

	_, summary, err := controller.Run(context.Background(), profile())
	if err != nil {
		t.Fatalf("exhaustion must not be an error, got %v", err)
	}

	if summary.Evaluated != 10 {
		t.Fatalf("expected evaluations to stop at bound, got %d", summary.Evaluated)
	}
	if summary.Approved != 5 {
		t.Fatalf("expected 5 approvals reported, got %d", summary.Approved)
	}
}

func TestRunDeduplicatesAcrossQueries(t *testing.T) {
	// The same postings come back for every query.
	source := &stubSource{name: "stub", postings: postings(4)}
	evaluator := &stubEvaluator{}
	controller := NewController([]board.Source{source}, passGate(), evaluator,
		Bounds{MinApproved: 8, MaxEvals: 100, MaxPerQuery: 50}, "Dallas", zap.NewNop())

	_, summary, err := controller.Run(context.Background(), profile())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Discovered != 4 {
		t.Fatalf("expected 4 unique postings, got %d", summary.Discovered)
	}
	if summary.Duplicates == 0 {
		t.Fatalf("expected duplicates across repeated queries")
	}
	if evaluator.evalCalls != 4 {
		t.Fatalf("expected each unique posting evaluated once, got %d", evaluator.evalCalls)
	}
}

func TestRunLocationGateBeforeDegreeGate(t *testing.T) {
	source := &stubSource{name: "stub", postings: []*board.Posting{
		{Title: "Out of area", Company: "Acme", Location: "New York, NY", URL: "https://example.com/ny"},
		{Title: "In area", Company: "Acme", Location: "Dallas, TX", URL: "https://example.com/dal"},
	}}
	evaluator := &stubEvaluator{}
	controller := NewController([]board.Source{source}, passGate(), evaluator,
		Bounds{MinApproved: 8, MaxEvals: 100, MaxPerQuery: 50}, "Dallas", zap.NewNop())

	_, summary, err := controller.Run(context.Background(), profile())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.LocationRejected != 1 {
		t.Fatalf("expected 1 location rejection, got %d", summary.LocationRejected)
	}
	// The blocked posting never reaches any model call.
	if evaluator.degreeCalls != 1 {
		t.Fatalf("expected degree gate only for the in-area posting, got %d calls", evaluator.degreeCalls)
	}
}

func TestRunDegreeRejectedNeverEvaluated(t *testing.T) {
	source := &stubSource{name: "stub", postings: []*board.Posting{
		{Title: "Masters only", Company: "Acme", URL: "https://example.com/ms"},
		{Title: "Open to undergrads", Company: "Acme", URL: "https://example.com/bs"},
	}}
	evaluator := &stubEvaluator{degreeRejects: map[string]bool{"Masters only": true}}
	controller := NewController([]board.Source{source}, passGate(), evaluator,
		Bounds{MinApproved: 8, MaxEvals: 100, MaxPerQuery: 50}, "Dallas", zap.NewNop())

	_, summary, err := controller.Run(context.Background(), profile())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.DegreeRejected != 1 {
		t.Fatalf("expected 1 degree rejection, got %d", summary.DegreeRejected)
	}
	for _, title := range evaluator.evaluated {
		if title == "Masters only" {
			t.Fatalf("degree-rejected posting must never reach the evaluator")
		}
	}
}

func TestRunDegreeGateErrorProceedsToEvaluation(t *testing.T) {
	source := &stubSource{name: "stub", postings: postings(1)}
	evaluator := &stubEvaluator{degreeErr: errors.New("schema violation")}
	controller := NewController([]board.Source{source}, passGate(), evaluator,
		Bounds{MinApproved: 8, MaxEvals: 100, MaxPerQuery: 50}, "Dallas", zap.NewNop())

	_, summary, err := controller.Run(context.Background(), profile())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Evaluated != 1 {
		t.Fatalf("expected gate failure to fall through to evaluation, got %d evaluated", summary.Evaluated)
	}
}

func TestRunEvaluationErrorSkipsPosting(t *testing.T) {
	source := &stubSource{name: "stub", postings: postings(3)}
	evaluator := &stubEvaluator{evalErr: map[string]error{"Intern 01": errors.New("service unavailable")}}
	controller := NewController([]board.Source{source}, passGate(), evaluator,
		Bounds{MinApproved: 8, MaxEvals: 100, MaxPerQuery: 50}, "Dallas", zap.NewNop())

	_, summary, err := controller.Run(context.Background(), profile())
	if err != nil {
		t.Fatalf("a single posting's failure must not abort the run: %v", err)
	}

	if summary.Skipped != 1 {
		t.Fatalf("expected 1 skip, got %d", summary.Skipped)
	}
	if summary.Evaluated != 2 {
		t.Fatalf("expected the other postings evaluated, got %d", summary.Evaluated)
	}
}

func TestRunSourceFailureDoesNotAbort(t *testing.T) {
	good := &stubSource{name: "good", postings: postings(2)}
	controller := NewController([]board.Source{&failingSource{}, good}, passGate(), &stubEvaluator{},
		Bounds{MinApproved: 8, MaxEvals: 100, MaxPerQuery: 50}, "Dallas", zap.NewNop())

	_, summary, err := controller.Run(context.Background(), profile())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Evaluated != 2 {
		t.Fatalf("expected postings from the healthy source, got %d evaluated", summary.Evaluated)
	}
}

func TestSeedQueries(t *testing.T) {
	source := &stubSource{name: "stub"}
	controller := NewController([]board.Source{source}, passGate(), &stubEvaluator{},
		Bounds{MinApproved: 8, MaxEvals: 100, MaxPerQuery: 50}, "Dallas", zap.NewNop())

	p := &llm.Profile{SuggestedQueries: []string{"software intern", "data intern", "software intern"}}
	queries := controller.seed(p)

	// Two unique suggestions plus the static broad seed, each metro and nation-wide.
	if len(queries) != 6 {
		t.Fatalf("expected 6 seeded queries, got %d: %+v", len(queries), queries)
	}
	if queries[0].Location != "Dallas" || queries[1].Location != "" {
		t.Fatalf("expected metro before nation-wide per query, got %+v", queries[:2])
	}
	last := queries[len(queries)-2]
	if last.Text != "internship" {
		t.Fatalf("expected static broad seed last, got %+v", last)
	}
	for _, q := range queries {
		if q.Text == "remote" {
			t.Fatalf("seeds must not depend on a remote keyword")
		}
	}
}

func TestRunDiscoveryOrderRecorded(t *testing.T) {
	source := &stubSource{name: "stub", postings: postings(5)}
	evaluator := &stubEvaluator{
		approve: func(p *board.Posting) *llm.Evaluation {
			return &llm.Evaluation{Approve: true, Score: 50, Priority: "medium", Reason: "fit"}
		},
	}
	controller := NewController([]board.Source{source}, passGate(), evaluator,
		Bounds{MinApproved: 5, MaxEvals: 100, MaxPerQuery: 50}, "Dallas", zap.NewNop())

	approvals, _, err := controller.Run(context.Background(), profile())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 1; i < len(approvals); i++ {
		if approvals[i].Order <= approvals[i-1].Order {
			t.Fatalf("expected strictly increasing discovery order, got %d then %d",
				approvals[i-1].Order, approvals[i].Order)
		}
	}
}
