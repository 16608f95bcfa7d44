// Package core defines the essential interfaces and data structures that form the
// backbone of the application. These components are designed to be abstract,
// allowing for flexible and decoupled implementations of the application's logic.
package core

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CodeReviewLabel is the label whose votes decide the review outcome.
const CodeReviewLabel = "Code-Review"

// MoreChangesField is the transient pagination marker set by the server on the
// last change of a page. It is never persisted.
const MoreChangesField = "_more_changes"

// Change is one review request as returned by the Gerrit changes endpoint,
// plus the fields derived by the scraper. Attributes without a typed field are
// kept verbatim in Extra so the full server document survives a round trip.
type Change struct {
	Number    int                        `json:"_number"`
	Status    string                     `json:"status,omitempty"`
	Revisions map[string]*Revision       `json:"revisions,omitempty"`
	Labels    map[string]json.RawMessage `json:"labels,omitempty"`

	MoreChanges bool   `json:"_more_changes,omitempty"`
	SortKey     string `json:"_sortkey,omitempty"`

	LastRevision          *int           `json:"last_revision"`
	ReviewsCounts         map[string]int `json:"reviews_counts"`
	PositiveReviewsCounts int            `json:"positive_reviews_counts"`
	NegativeReviewsCounts int            `json:"negative_reviews_counts"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Revision is a single patch set of a change.
type Revision struct {
	Number int                  `json:"_number"`
	Files  map[string]*FileInfo `json:"files,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// FileInfo describes one file of a revision. Diff is set only once the diff
// was fetched successfully.
type FileInfo struct {
	Diff json.RawMessage `json:"diff,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var (
	changeFields = []string{
		"_number", "status", "revisions", "labels", "_more_changes", "_sortkey",
		"last_revision", "reviews_counts", "positive_reviews_counts", "negative_reviews_counts",
	}
	revisionFields = []string{"_number", "files"}
	fileFields     = []string{"diff"}
)

type (
	changeAlias   Change
	revisionAlias Revision
	fileAlias     FileInfo
)

// UnmarshalJSON decodes the typed fields and keeps everything else in Extra.
func (c *Change) UnmarshalJSON(data []byte) error {
	var a changeAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := extraFields(data, changeFields, func(key string) bool {
		switch key {
		case "status":
			return a.Status == ""
		case "revisions":
			return len(a.Revisions) == 0
		case "labels":
			return len(a.Labels) == 0
		}
		return false
	})
	if err != nil {
		return err
	}
	a.Extra = extra
	*c = Change(a)
	return nil
}

// MarshalJSON encodes the typed fields merged with Extra.
func (c Change) MarshalJSON() ([]byte, error) {
	return mergeFields(changeAlias(c), c.Extra)
}

func (r *Revision) UnmarshalJSON(data []byte) error {
	var a revisionAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := extraFields(data, revisionFields, func(key string) bool {
		return key == "files" && len(a.Files) == 0
	})
	if err != nil {
		return err
	}
	a.Extra = extra
	*r = Revision(a)
	return nil
}

func (r Revision) MarshalJSON() ([]byte, error) {
	return mergeFields(revisionAlias(r), r.Extra)
}

func (f *FileInfo) UnmarshalJSON(data []byte) error {
	var a fileAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := extraFields(data, fileFields, nil)
	if err != nil {
		return err
	}
	a.Extra = extra
	*f = FileInfo(a)
	return nil
}

func (f FileInfo) MarshalJSON() ([]byte, error) {
	return mergeFields(fileAlias(f), f.Extra)
}

// StripPaginationMarker removes the transient _more_changes marker.
func (c *Change) StripPaginationMarker() {
	c.MoreChanges = false
	delete(c.Extra, MoreChangesField)
}

// Document returns the change as a generic JSON document. Numbers are kept as
// json.Number so no precision is lost.
func (c *Change) Document() (map[string]any, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal change %d: %w", c.Number, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode change %d document: %w", c.Number, err)
	}
	return doc, nil
}

// extraFields returns the attributes of data that are not in known. A known
// attribute is kept as well when keepEmpty reports that its typed field is
// empty and would be dropped by omitempty, so values like "revisions":{}
// survive a round trip.
func extraFields(data []byte, known []string, keepEmpty func(key string) bool) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		if keepEmpty != nil && keepEmpty(k) {
			continue
		}
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

func mergeFields(typed any, extra map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(typed)
	if err != nil || len(extra) == 0 {
		return data, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := fields[k]; !ok {
			fields[k] = v
		}
	}
	return json.Marshal(fields)
}
