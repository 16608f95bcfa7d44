package scraper

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/review-scraper/internal/core"
)

func labels(codeReview string) map[string]json.RawMessage {
	return map[string]json.RawMessage{core.CodeReviewLabel: json.RawMessage(codeReview)}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		labels       map[string]json.RawMessage
		wantCounts   map[string]int
		wantPositive int
		wantNegative int
		wantVotes    bool
	}{
		{
			name:         "mixed votes",
			labels:       labels(`{"all":[{"value":2},{"value":1},{"value":-1},{"value":0}]}`),
			wantCounts:   map[string]int{"2": 1, "1": 1, "-1": 1, "0": 1},
			wantPositive: 2,
			wantNegative: 1,
			wantVotes:    true,
		},
		{
			name:       "missing value counts as zero",
			labels:     labels(`{"all":[{"_account_id":1000},{"value":0}]}`),
			wantCounts: map[string]int{"0": 2},
		},
		{
			name:       "no code review label",
			labels:     map[string]json.RawMessage{"Verified": json.RawMessage(`{"all":[{"value":1}]}`)},
			wantCounts: map[string]int{},
		},
		{
			name:       "no labels",
			wantCounts: map[string]int{},
		},
		{
			name:         "repeated negative votes",
			labels:       labels(`{"all":[{"value":-2},{"value":-2},{"value":-1}]}`),
			wantCounts:   map[string]int{"-2": 2, "-1": 1},
			wantNegative: 3,
			wantVotes:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change := &core.Change{Labels: tt.labels}
			require.NoError(t, Classify(change))

			assert.Equal(t, tt.wantCounts, change.ReviewsCounts)
			assert.Equal(t, tt.wantPositive, change.PositiveReviewsCounts)
			assert.Equal(t, tt.wantNegative, change.NegativeReviewsCounts)
			assert.Equal(t, tt.wantVotes, core.HasVotes.ShouldStore(change))
		})
	}
}

func TestClassify_MalformedLabel(t *testing.T) {
	change := &core.Change{Labels: labels(`{"all":"nope"}`)}

	assert.Error(t, Classify(change))
	assert.Equal(t, map[string]int{}, change.ReviewsCounts)
	assert.False(t, core.HasVotes.ShouldStore(change))
}

func TestClassify_LastRevision(t *testing.T) {
	empty := &core.Change{}
	require.NoError(t, Classify(empty))
	assert.Nil(t, empty.LastRevision)

	change := newChange(1, map[string]int{"a": 1, "b": 4, "c": 2})
	require.NoError(t, Classify(change))
	require.NotNil(t, change.LastRevision)
	assert.Equal(t, 4, *change.LastRevision)
}
