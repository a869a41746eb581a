// Package report persists the approved postings of a run as a timestamped
// CSV file.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"internship-matcher/internal/run"
)

// FilenamePattern yields names that sort lexically by creation time, so the
// presentation layer finds the latest result with a glob.
const FilenamePattern = "internship_results_%s.csv"

var header = []string{
	"score", "priority", "title", "company", "location",
	"source", "url", "matched_skills", "gaps", "reason",
}

var priorityRank = map[string]int{"high": 0, "medium": 1, "low": 2}

// Sort orders approvals for output: score descending, then priority tier,
// then discovery order. The sort is stable by construction since discovery
// order is unique.
func Sort(approvals []*run.Approval) {
	sort.SliceStable(approvals, func(i, j int) bool {
		a, b := approvals[i], approvals[j]
		if a.Evaluation.Score != b.Evaluation.Score {
			return a.Evaluation.Score > b.Evaluation.Score
		}
		if ra, rb := rank(a.Evaluation.Priority), rank(b.Evaluation.Priority); ra != rb {
			return ra < rb
		}
		return a.Order < b.Order
	})
}

// Write sorts the full approved set and writes it to a timestamped CSV in
// dir, returning the file path. The file always carries every approval;
// truncation to a display top-N is the caller's concern.
func Write(dir string, approvals []*run.Approval, now time.Time) (string, error) {
	Sort(approvals)

	name := fmt.Sprintf(FilenamePattern, now.Format("20060102_150405"))
	path := filepath.Join(dir, name)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating results file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return "", err
	}

	for _, approval := range approvals {
		eval := approval.Evaluation
		posting := approval.Posting
		record := []string{
			strconv.Itoa(eval.Score),
			eval.Priority,
			posting.Title,
			posting.Company,
			posting.Location,
			posting.Source,
			posting.URL,
			strings.Join(eval.MatchedSkills, "; "),
			strings.Join(eval.Gaps, "; "),
			eval.Reason,
		}
		if err := writer.Write(record); err != nil {
			return "", err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", err
	}

	return path, nil
}

// rank maps a priority tier to its sort position; unknown tiers sort last.
func rank(priority string) int {
	if r, ok := priorityRank[priority]; ok {
		return r
	}
	return len(priorityRank)
}
