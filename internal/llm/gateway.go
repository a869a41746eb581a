// Package llm is the single point of contact with the language-model
// service. Every call goes through a content-addressed cache keyed by the
// prompt version, so reruns with unchanged inputs cost nothing.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	_ "embed"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"internship-matcher/internal/board"
	"internship-matcher/internal/cache"
	"internship-matcher/internal/utils"
)

// PromptVersion participates in every cache key. Bumping it invalidates all
// prior entries without deleting them.
const PromptVersion = "2025-10-06.v1"

// Call kinds. Each kind has its own prompt template and result schema.
const (
	KindProfile    = "profile"
	KindDegreeGate = "degree_gate"
	KindEvaluation = "job_evaluation"
)

// ErrBadResponse marks a model response that could not be parsed into the
// expected schema. It is a per-item failure, never a run failure.
var ErrBadResponse = errors.New("model response does not match expected schema")

const (
	defaultMaxRetries = 3
	retryBase         = time.Second
	maxLogLen         = 200
)

//go:embed prompt_profile.md
var profilePrompt string

//go:embed prompt_degree.md
var degreePrompt string

//go:embed prompt_evaluate.md
var evaluatePrompt string

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Gateway builds prompts, calls the model with bounded retries, validates
// the structured responses, and caches every result.
type Gateway struct {
	generator  contentGenerator
	cache      cache.Cache
	maxRetries int
	logger     *zap.Logger
}

func NewGateway(generator contentGenerator, store cache.Cache, maxRetries int, logger *zap.Logger) *Gateway {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	return &Gateway{
		generator:  generator,
		cache:      store,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// ExtractProfile turns resume text into a structured candidate profile.
// Runs once per pipeline run.
func (g *Gateway) ExtractProfile(ctx context.Context, resumeText string) (*Profile, error) {
	resumeText = strings.TrimSpace(resumeText)
	prompt := strings.ReplaceAll(profilePrompt, "{{RESUME_TEXT}}", resumeText)

	var profile Profile
	err := g.invoke(ctx, KindProfile, resumeText, prompt, []string{"suggested_queries"}, &profile)
	if err != nil {
		return nil, err
	}

	if len(profile.SuggestedQueries) == 0 {
		return nil, fmt.Errorf("%w: profile has no suggested queries", ErrBadResponse)
	}

	return &profile, nil
}

// CheckDegree asks the model whether the posting states a degree requirement
// the profile cannot satisfy. Silence or ambiguity yields eligible.
func (g *Gateway) CheckDegree(ctx context.Context, posting *board.Posting, profile *Profile) (*DegreeVerdict, error) {
	payload, err := degreePayload(posting, profile)
	if err != nil {
		return nil, err
	}

	prompt := strings.ReplaceAll(degreePrompt, "{{JOB_JSON}}", payload.job)
	prompt = strings.ReplaceAll(prompt, "{{CONSTRAINTS_JSON}}", payload.constraints)

	var verdict DegreeVerdict
	if err := g.invoke(ctx, KindDegreeGate, payload.key, prompt, []string{"eligible"}, &verdict); err != nil {
		return nil, err
	}

	return &verdict, nil
}

// Evaluate scores one eligible posting against the profile. Hard rules
// (class-year, degree, language requirements) force a deny regardless of
// score; the score is clamped to [0, 100].
func (g *Gateway) Evaluate(ctx context.Context, posting *board.Posting, profile *Profile) (*Evaluation, error) {
	jobJSON, err := json.Marshal(posting)
	if err != nil {
		return nil, fmt.Errorf("marshal posting payload: %w", err)
	}
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("marshal profile payload: %w", err)
	}

	prompt := strings.ReplaceAll(evaluatePrompt, "{{JOB_JSON}}", string(jobJSON))
	prompt = strings.ReplaceAll(prompt, "{{PROFILE_JSON}}", string(profileJSON))

	payload := strings.Join([]string{posting.ID(), string(profileJSON)}, "\x00")

	var eval Evaluation
	if err := g.invoke(ctx, KindEvaluation, payload, prompt, []string{"approve", "score"}, &eval); err != nil {
		return nil, err
	}

	if eval.Score < 0 {
		eval.Score = 0
	}
	if eval.Score > 100 {
		eval.Score = 100
	}
	eval.Priority = strings.ToLower(strings.TrimSpace(eval.Priority))
	if eval.Priority == "" {
		eval.Priority = "medium"
	}

	return &eval, nil
}

// invoke is the cache-checked model call shared by all kinds. The cached
// form is the validated result, so hits decode without re-validation.
func (g *Gateway) invoke(ctx context.Context, kind, payload, prompt string, required []string, out any) error {
	key := cache.Key(PromptVersion, kind, payload)

	if cached, ok, err := g.cache.Get(key); err == nil && ok {
		if err := json.Unmarshal(cached, out); err == nil {
			g.logger.Debug("cache hit", zap.String("kind", kind), zap.String("key", key))
			return nil
		}
		// A corrupt entry falls through to a fresh call and gets rewritten.
		g.logger.Warn("discarding corrupt cache entry", zap.String("kind", kind), zap.String("key", key))
	} else if err != nil {
		g.logger.Warn("cache read failed", zap.String("kind", kind), zap.Error(err))
	}

	g.logger.Debug("model request",
		zap.String("kind", kind),
		zap.String("llm_model", g.generator.Model()),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, maxLogLen)),
	)

	raw, err := g.generate(ctx, prompt)
	if err != nil {
		return fmt.Errorf("%s call: %w", kind, err)
	}

	g.logger.Debug("model response",
		zap.String("kind", kind),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, maxLogLen)),
	)

	if err := parseResponse(raw, required, out); err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}

	entry, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := g.cache.Put(key, entry); err != nil {
		g.logger.Warn("cache write failed", zap.String("kind", kind), zap.Error(err))
	}

	return nil
}

func (g *Gateway) generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < g.maxRetries; attempt++ {
		if attempt > 0 {
			if err := utils.WaitFor(ctx, utils.Backoff(retryBase, attempt-1)); err != nil {
				return "", err
			}
		}

		raw, err := g.generator.GenerateContent(ctx, prompt)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		g.logger.Debug("model call failed",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", g.maxRetries),
			zap.Error(err),
		)
	}

	return "", fmt.Errorf("after %d attempts: %w", g.maxRetries, lastErr)
}

// parseResponse validates the raw model output against the kind's schema:
// it must be a JSON object (possibly fenced) containing every required key,
// and the values must decode into the typed result.
func parseResponse(raw string, required []string, out any) error {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return fmt.Errorf("%w: %s", ErrBadResponse, err)
	}

	for _, key := range required {
		if _, ok := data[key]; !ok {
			return fmt.Errorf("%w: missing %q", ErrBadResponse, key)
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(data); err != nil {
		return fmt.Errorf("%w: %s", ErrBadResponse, err)
	}

	return nil
}

// extractJSON strips markdown code fences the model tends to wrap around
// its JSON output.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

type degreePayloadParts struct {
	job         string
	constraints string
	key         string
}

func degreePayload(posting *board.Posting, profile *Profile) (*degreePayloadParts, error) {
	jobJSON, err := json.Marshal(map[string]string{
		"title":    posting.Title,
		"company":  posting.Company,
		"snippet":  posting.Snippet,
		"location": posting.Location,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal posting payload: %w", err)
	}

	constraintsJSON, err := json.Marshal(profile.Constraints)
	if err != nil {
		return nil, fmt.Errorf("marshal constraints payload: %w", err)
	}

	return &degreePayloadParts{
		job:         string(jobJSON),
		constraints: string(constraintsJSON),
		key:         strings.Join([]string{posting.ID(), string(constraintsJSON)}, "\x00"),
	}, nil
}
