package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyTransform_Incoming(t *testing.T) {
	tr := DefaultKeyTransform()
	doc := map[string]any{
		"_number": 1,
		"files": map[string]any{
			"src/main.go": map[string]any{"lines_inserted": 3},
			"README":      map[string]any{},
		},
		"messages": []any{
			map[string]any{"tag.name": "autogenerated:ci"},
			"plain.string",
		},
		"subject": "Fix v1.2 regression",
	}

	got := tr.Incoming(doc)

	want := map[string]any{
		"_number": 1,
		"files": map[string]any{
			"src/main__dot__go": map[string]any{"lines_inserted": 3},
			"README":            map[string]any{},
		},
		"messages": []any{
			map[string]any{"tag__dot__name": "autogenerated:ci"},
			"plain.string",
		},
		"subject": "Fix v1.2 regression",
	}
	assert.Equal(t, want, got)

	// input untouched
	_, ok := doc["files"].(map[string]any)["src/main.go"]
	assert.True(t, ok)
}

func TestKeyTransform_RoundTrip(t *testing.T) {
	tr := DefaultKeyTransform()
	docs := []map[string]any{
		{},
		{"a.b.c": map[string]any{"d.e": []any{map[string]any{"f.g": "h.i"}}}},
		{"no_dots": true, "nested": map[string]any{"x": nil}},
	}

	for _, doc := range docs {
		assert.Equal(t, doc, tr.Outgoing(tr.Incoming(doc)))
	}
}

func TestKeyTransform_NonStringKeysStayStrings(t *testing.T) {
	tr := DefaultKeyTransform()
	doc := map[string]any{
		"counts": map[int]any{1: "one", -2: "minus two"},
		"ratios": map[float64]any{1.5: "x"},
	}

	in := tr.Incoming(doc)
	want := map[string]any{
		"counts": map[string]any{"1": "one", "-2": "minus two"},
		"ratios": map[string]any{"1__dot__5": "x"},
	}
	assert.Equal(t, want, in)

	out := tr.Outgoing(in)
	assert.Equal(t, map[string]any{
		"counts": map[string]any{"1": "one", "-2": "minus two"},
		"ratios": map[string]any{"1.5": "x"},
	}, out)
}

func TestKeyTransform_Scalars(t *testing.T) {
	tr := DefaultKeyTransform()
	assert.Equal(t, "a.b", tr.TransformIncoming("a.b"))
	assert.Equal(t, 42, tr.TransformIncoming(42))
	assert.Nil(t, tr.TransformIncoming(nil))
	assert.Nil(t, tr.Incoming(nil))
}

func TestKeyTransform_CustomReplacement(t *testing.T) {
	tr := KeyTransform{Replace: "$", Replacement: "_dollar_"}
	require.NoError(t, tr.Validate())

	in := tr.Incoming(map[string]any{"$set": 1, "a.b": 2})
	assert.Equal(t, map[string]any{"_dollar_set": 1, "a.b": 2}, in)
}

func TestKeyTransform_Validate(t *testing.T) {
	tests := []struct {
		name    string
		tr      KeyTransform
		wantErr bool
	}{
		{"default", DefaultKeyTransform(), false},
		{"empty replace", KeyTransform{Replacement: "x"}, true},
		{"empty replacement", KeyTransform{Replace: "."}, true},
		{"replacement contains replace", KeyTransform{Replace: ".", Replacement: "_._"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tr.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
