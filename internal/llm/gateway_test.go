package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"internship-matcher/internal/board"
)

type stubGenerator struct {
	response   string
	err        error
	calls      int
	lastPrompt string
}

func (s *stubGenerator) GenerateContent(_ context.Context, prompt string) (string, error) {
	s.calls++
	s.lastPrompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubGenerator) Model() string { return "stub-model" }

type memoryCache struct {
	entries map[string][]byte
	puts    int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (c *memoryCache) Get(key string) ([]byte, bool, error) {
	value, ok := c.entries[key]
	return value, ok, nil
}

func (c *memoryCache) Put(key string, value []byte) error {
	c.entries[key] = value
	c.puts++
	return nil
}

func TestExtractProfile(t *testing.T) {
	stub := &stubGenerator{response: `{
		"domain_weights": {"software engineering": 0.8},
		"skills": [{"name": "Go", "level": "intermediate"}],
		"strength": 7,
		"suggested_queries": ["software engineering intern"],
		"constraints": {"degree_level": "bachelor", "class_year": "junior", "languages": []}
	}`}
	gw := NewGateway(stub, newMemoryCache(), 1, zap.NewNop())

	profile, err := gw.ExtractProfile(context.Background(), "resume text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if profile.Strength != 7 {
		t.Fatalf("expected strength 7, got %d", profile.Strength)
	}
	if len(profile.SuggestedQueries) != 1 {
		t.Fatalf("unexpected queries: %v", profile.SuggestedQueries)
	}
	if profile.Constraints.DegreeLevel != "bachelor" {
		t.Fatalf("unexpected degree level: %q", profile.Constraints.DegreeLevel)
	}
	if !strings.Contains(stub.lastPrompt, "resume text") {
		t.Fatalf("expected resume text in prompt")
	}
}

func TestExtractProfileCacheHit(t *testing.T) {
	stub := &stubGenerator{response: `{
		"domain_weights": {},
		"skills": [],
		"strength": 5,
		"suggested_queries": ["data science intern"],
		"constraints": {}
	}`}
	store := newMemoryCache()
	gw := NewGateway(stub, store, 1, zap.NewNop())

	first, err := gw.ExtractProfile(context.Background(), "same resume")
	if err != nil {
		t.Fatalf("first extract: %v", err)
	}

	second, err := gw.ExtractProfile(context.Background(), "same resume")
	if err != nil {
		t.Fatalf("second extract: %v", err)
	}

	if stub.calls != 1 {
		t.Fatalf("expected exactly one model call, got %d", stub.calls)
	}
	if first.SuggestedQueries[0] != second.SuggestedQueries[0] {
		t.Fatalf("cache hit must return identical result")
	}
}

func TestEvaluateParsesFencedResponse(t *testing.T) {
	stub := &stubGenerator{response: "```json\n" + `{
		"approve": true,
		"score": 85,
		"priority": "High",
		"matched_skills": ["Go"],
		"gaps": ["Kubernetes"],
		"reason": "Strong backend fit."
	}` + "\n```"}
	gw := NewGateway(stub, newMemoryCache(), 1, zap.NewNop())

	eval, err := gw.Evaluate(context.Background(), &board.Posting{Title: "SWE Intern", Company: "Acme"}, &Profile{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !eval.Approve || eval.Score != 85 {
		t.Fatalf("unexpected evaluation: %+v", eval)
	}
	if eval.Priority != "high" {
		t.Fatalf("expected normalized priority, got %q", eval.Priority)
	}
}

func TestEvaluateClampsScore(t *testing.T) {
	stub := &stubGenerator{response: `{"approve": true, "score": 140, "priority": "high", "reason": "x"}`}
	gw := NewGateway(stub, newMemoryCache(), 1, zap.NewNop())

	eval, err := gw.Evaluate(context.Background(), &board.Posting{Title: "SWE Intern"}, &Profile{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eval.Score != 100 {
		t.Fatalf("expected clamped score 100, got %d", eval.Score)
	}
}

func TestEvaluateSchemaViolation(t *testing.T) {
	stub := &stubGenerator{response: `{"decision": "yes"}`}
	gw := NewGateway(stub, newMemoryCache(), 1, zap.NewNop())

	_, err := gw.Evaluate(context.Background(), &board.Posting{Title: "SWE Intern"}, &Profile{})
	if !errors.Is(err, ErrBadResponse) {
		t.Fatalf("expected ErrBadResponse, got %v", err)
	}
}

func TestEvaluateNonJSONResponse(t *testing.T) {
	stub := &stubGenerator{response: "I think this job is a great fit!"}
	gw := NewGateway(stub, newMemoryCache(), 1, zap.NewNop())

	_, err := gw.Evaluate(context.Background(), &board.Posting{Title: "SWE Intern"}, &Profile{})
	if !errors.Is(err, ErrBadResponse) {
		t.Fatalf("expected ErrBadResponse, got %v", err)
	}
}

func TestCheckDegree(t *testing.T) {
	stub := &stubGenerator{response: `{"eligible": false, "reason": "requires a master's degree"}`}
	gw := NewGateway(stub, newMemoryCache(), 1, zap.NewNop())

	posting := &board.Posting{Title: "Research Intern", Snippet: "MS required"}
	profile := &Profile{Constraints: Constraints{DegreeLevel: "bachelor"}}

	verdict, err := gw.CheckDegree(context.Background(), posting, profile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Eligible {
		t.Fatalf("expected early rejection")
	}
	if verdict.Reason == "" {
		t.Fatalf("expected reason to be populated")
	}
}

func TestCheckDegreeCachedPerPosting(t *testing.T) {
	stub := &stubGenerator{response: `{"eligible": true, "reason": ""}`}
	store := newMemoryCache()
	gw := NewGateway(stub, store, 1, zap.NewNop())

	profile := &Profile{Constraints: Constraints{DegreeLevel: "bachelor"}}
	a := &board.Posting{Title: "A", Company: "Acme", URL: "https://example.com/a"}
	b := &board.Posting{Title: "B", Company: "Acme", URL: "https://example.com/b"}

	if _, err := gw.CheckDegree(context.Background(), a, profile); err != nil {
		t.Fatalf("first check: %v", err)
	}
	if _, err := gw.CheckDegree(context.Background(), a, profile); err != nil {
		t.Fatalf("repeat check: %v", err)
	}
	if stub.calls != 1 {
		t.Fatalf("expected repeat check to hit cache, got %d calls", stub.calls)
	}

	if _, err := gw.CheckDegree(context.Background(), b, profile); err != nil {
		t.Fatalf("distinct posting check: %v", err)
	}
	if stub.calls != 2 {
		t.Fatalf("expected distinct posting to miss cache, got %d calls", stub.calls)
	}
}

func TestGenerateRetriesThenFails(t *testing.T) {
	stub := &stubGenerator{err: errors.New("service unavailable")}
	gw := NewGateway(stub, newMemoryCache(), 2, zap.NewNop())

	_, err := gw.Evaluate(context.Background(), &board.Posting{Title: "SWE Intern"}, &Profile{})
	if err == nil {
		t.Fatalf("expected error after retries")
	}
	if stub.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", stub.calls)
	}
}
