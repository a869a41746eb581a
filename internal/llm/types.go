package llm

// Skill is one resume skill with the model's proficiency level.
type Skill struct {
	Name  string `json:"name"`
	Level string `json:"level"`
}

// Constraints are the hard requirements the model infers from the resume.
// Requirements the resume phrases as "preferred" are still recorded here and
// treated as mandatory downstream.
type Constraints struct {
	DegreeLevel string   `json:"degree_level,omitempty"`
	ClassYear   string   `json:"class_year,omitempty"`
	Languages   []string `json:"languages,omitempty"`
}

// Profile is the structured candidate profile derived once per run from the
// resume text. Immutable after extraction.
type Profile struct {
	DomainWeights    map[string]float64 `json:"domain_weights"`
	Skills           []Skill            `json:"skills"`
	Strength         int                `json:"strength"`
	SuggestedQueries []string           `json:"suggested_queries"`
	Constraints      Constraints        `json:"constraints"`
}

// DegreeVerdict is the degree gate's outcome for one posting. Eligible is
// the default: only an explicit unmet degree requirement rejects early.
type DegreeVerdict struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

// Evaluation is the full per-posting judgment. If any hard rule fails the
// decision is deny regardless of score.
type Evaluation struct {
	Approve       bool     `json:"approve"`
	Score         int      `json:"score"`
	Priority      string   `json:"priority"`
	MatchedSkills []string `json:"matched_skills,omitempty"`
	Gaps          []string `json:"gaps,omitempty"`
	Reason        string   `json:"reason"`
}
