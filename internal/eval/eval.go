// Package eval runs a scripted test set against a live agent session,
// grades the answers, and records the results both in sqlite and as a
// JSON answers file.
package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Case is one graded question. Expected is matched by containment; the
// literal "refusal" expects the agent to decline.
type Case struct {
	ID       int    `json:"id"`
	Q        string `json:"q"`
	Expected string `json:"expected"`
}

// LoadCases reads a JSON test set.
func LoadCases(path string) ([]Case, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read test set: %w", err)
	}
	var cases []Case
	if err := json.Unmarshal(raw, &cases); err != nil {
		return nil, fmt.Errorf("parse test set: %w", err)
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("test set %s is empty", path)
	}
	return cases, nil
}

// Grading statuses.
const (
	StatusPass        = "PASS"
	StatusPassRefusal = "PASS (Refusal)"
	StatusFail        = "FAIL"
	StatusCrash       = "CRASH"
)

var refusalMarkers = []string{"cannot", "sorry", "scope", "unable"}

// Grade scores an answer by case-insensitive containment. When the
// expectation asks for a refusal and allowRefusal is set, any refusal
// marker in the answer passes.
func Grade(expected, actual string, allowRefusal bool) string {
	exp := strings.ToLower(expected)
	act := strings.ToLower(actual)

	if strings.Contains(act, exp) {
		return StatusPass
	}
	if allowRefusal && strings.Contains(exp, "refusal") {
		for _, marker := range refusalMarkers {
			if strings.Contains(act, marker) {
				return StatusPassRefusal
			}
		}
	}
	return StatusFail
}

// Passed reports whether a status counts toward the score.
func Passed(status string) bool {
	return strings.Contains(status, "PASS")
}
