// Package locgate implements the rule-based location filter. It is the only
// non-LLM gate in the pipeline and is deliberately asymmetric: it rejects a
// posting only when the location text unambiguously names a different,
// non-remote locale. Blocking an in-area or remote posting is unrecoverable,
// while a wrongly passed posting still has to survive the model evaluation.
package locgate

import (
	"regexp"
	"strings"
)

// Verdict is the gate's tri-state outcome. There is no approve state: the
// gate only blocks or defers to the model.
type Verdict int

const (
	// VerdictPass defers the posting to the model: empty, ambiguous,
	// nation-wide, in-area, or remote-like location text.
	VerdictPass Verdict = iota
	// VerdictReject blocks a posting whose location clearly names an
	// out-of-area, non-remote locale.
	VerdictReject
)

func (v Verdict) String() string {
	if v == VerdictReject {
		return "reject"
	}
	return "pass"
}

// Rules configures the gate. Every list is matched case-insensitively
// against the raw location text.
type Rules struct {
	// MetroAliases name the target metro area; any match passes.
	MetroAliases []string
	// RemoteMarkers indicate remote or location-free work; any match passes.
	RemoteMarkers []string
	// NationwideMarkers indicate country-wide postings; any match passes.
	NationwideMarkers []string
	// DenyLocales are locale names whose presence, absent any marker above,
	// rejects the posting.
	DenyLocales []string
	// DenyStateCodes are two-letter state codes rejected when they appear as
	// a ", XX" suffix token (the common "City, XX" board format).
	DenyStateCodes []string
}

// DefaultRules targets the Dallas–Fort Worth metro. The deny list carries
// major US metros and full state names that job boards actually emit;
// anything not on it stays ambiguous and passes through to the model.
func DefaultRules() Rules {
	return Rules{
		MetroAliases: []string{
			"dallas", "fort worth", "plano", "irving", "richardson",
			"frisco", "addison", "arlington", "garland", "mckinney",
			"carrollton", "lewisville", "dfw",
		},
		RemoteMarkers: []string{
			"remote", "anywhere", "work from home", "wfh", "virtual",
			"hybrid", "telecommute", "distributed",
		},
		NationwideMarkers: []string{
			"united states", "usa", "u.s.", "nationwide", "multiple locations",
		},
		DenyLocales: []string{
			"new york", "brooklyn", "san francisco", "palo alto", "mountain view",
			"sunnyvale", "san jose", "menlo park", "los angeles", "san diego",
			"seattle", "bellevue", "redmond", "chicago", "boston", "cambridge",
			"atlanta", "denver", "boulder", "phoenix", "philadelphia",
			"pittsburgh", "portland", "miami", "tampa", "orlando", "charlotte",
			"raleigh", "nashville", "minneapolis", "detroit", "columbus",
			"cincinnati", "cleveland", "st. louis", "kansas city", "salt lake city",
			"las vegas", "washington, dc", "washington, d.c.", "baltimore",
			"california", "new jersey", "massachusetts", "illinois", "georgia",
			"colorado", "oregon", "florida", "pennsylvania", "michigan",
			"minnesota", "virginia", "north carolina", "ohio", "arizona",
		},
		DenyStateCodes: []string{
			"ny", "ca", "wa", "il", "ma", "ga", "co", "or", "fl", "pa",
			"mi", "mn", "va", "nc", "oh", "az", "nj", "md", "dc", "ut", "nv", "mo", "tn",
		},
	}
}

// Gate classifies free-text location strings against a static rule set.
type Gate struct {
	rules Rules
}

func New(rules Rules) *Gate {
	return &Gate{rules: rules}
}

var stateSuffixRe = regexp.MustCompile(`,\s*([A-Za-z]{2})\b`)

// Classify returns the verdict for one location string. It is a pure
// function of the input and the gate's rules.
func (g *Gate) Classify(location string) Verdict {
	text := strings.ToLower(strings.TrimSpace(location))
	if text == "" {
		return VerdictPass
	}

	for _, marker := range g.rules.RemoteMarkers {
		if strings.Contains(text, marker) {
			return VerdictPass
		}
	}
	for _, alias := range g.rules.MetroAliases {
		if strings.Contains(text, alias) {
			return VerdictPass
		}
	}
	for _, marker := range g.rules.NationwideMarkers {
		if strings.Contains(text, marker) {
			return VerdictPass
		}
	}

	for _, locale := range g.rules.DenyLocales {
		if strings.Contains(text, locale) {
			return VerdictReject
		}
	}

	for _, match := range stateSuffixRe.FindAllStringSubmatch(text, -1) {
		code := strings.ToLower(match[1])
		for _, deny := range g.rules.DenyStateCodes {
			if code == deny {
				return VerdictReject
			}
		}
	}

	return VerdictPass
}
