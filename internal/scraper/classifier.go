package scraper

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/sevigo/review-scraper/internal/core"
)

type labelVotes struct {
	All []struct {
		Value json.Number `json:"value"`
	} `json:"all"`
}

// LastRevisionNumber returns the highest revision number of the change, or
// false if it has no revisions.
func LastRevisionNumber(change *core.Change) (int, bool) {
	if len(change.Revisions) == 0 {
		return 0, false
	}
	last, found := 0, false
	for _, rev := range change.Revisions {
		if rev == nil {
			continue
		}
		if !found || rev.Number > last {
			last, found = rev.Number, true
		}
	}
	return last, found
}

// TallyVotes counts the Code-Review votes per value. A vote without a value
// counts as "0".
func TallyVotes(labels map[string]json.RawMessage) (map[string]int, error) {
	counts := make(map[string]int)

	raw, ok := labels[core.CodeReviewLabel]
	if !ok || len(raw) == 0 {
		return counts, nil
	}

	var votes labelVotes
	if err := json.Unmarshal(raw, &votes); err != nil {
		return counts, fmt.Errorf("failed to decode %s label: %w", core.CodeReviewLabel, err)
	}
	for _, v := range votes.All {
		value := v.Value.String()
		if value == "" {
			value = "0"
		}
		counts[value]++
	}
	return counts, nil
}

// Classify writes LastRevision, ReviewsCounts and the positive/negative vote
// totals onto the change. Non-integer vote values are tallied but counted as
// neither positive nor negative. The derived fields are always set; the error
// only reports an undecodable Code-Review label.
func Classify(change *core.Change) error {
	if n, ok := LastRevisionNumber(change); ok {
		change.LastRevision = &n
	} else {
		change.LastRevision = nil
	}

	counts, err := TallyVotes(change.Labels)

	positive, negative := 0, 0
	for value, count := range counts {
		n, convErr := strconv.Atoi(value)
		if convErr != nil {
			continue
		}
		switch {
		case n > 0:
			positive += count
		case n < 0:
			negative += count
		}
	}

	change.ReviewsCounts = counts
	change.PositiveReviewsCounts = positive
	change.NegativeReviewsCounts = negative
	return err
}
