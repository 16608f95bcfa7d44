package storage

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// KeyTransform rewrites document keys for storage engines that reject some
// characters in keys, and restores them when documents are read back.
//
// Keys that are not strings are converted to their string form on the way
// in and are not converted back: an integer key 1 comes out as "1".
type KeyTransform struct {
	Replace     string
	Replacement string
}

// DefaultKeyTransform replaces dots, which document stores use as path
// separators.
func DefaultKeyTransform() KeyTransform {
	return KeyTransform{Replace: ".", Replacement: "__dot__"}
}

// Validate reports whether the transform can be reversed.
func (t KeyTransform) Validate() error {
	if t.Replace == "" || t.Replacement == "" {
		return errors.New("key transform needs both a replace and a replacement string")
	}
	if strings.Contains(t.Replacement, t.Replace) {
		return fmt.Errorf("key transform replacement %q must not contain %q", t.Replacement, t.Replace)
	}
	return nil
}

// TransformKey returns the stored form of key.
func (t KeyTransform) TransformKey(key any) string {
	s := fmt.Sprint(key)
	if t.Replace == "" {
		return s
	}
	return strings.ReplaceAll(s, t.Replace, t.Replacement)
}

// RevertKey returns the original form of a stored key. Keys that were not
// strings stay strings.
func (t KeyTransform) RevertKey(key any) string {
	s := fmt.Sprint(key)
	if t.Replacement == "" {
		return s
	}
	return strings.ReplaceAll(s, t.Replacement, t.Replace)
}

// TransformIncoming returns a copy of doc with every key rewritten for
// storage. Nested mappings and the mappings inside lists are rewritten too.
// doc itself is not modified.
func (t KeyTransform) TransformIncoming(doc any) any {
	return rewriteKeys(doc, func(key any) string {
		if s, ok := key.(string); ok && (t.Replace == "" || !strings.Contains(s, t.Replace)) {
			return s
		}
		return t.TransformKey(key)
	})
}

// TransformOutgoing reverses TransformIncoming. doc itself is not modified.
func (t KeyTransform) TransformOutgoing(doc any) any {
	return rewriteKeys(doc, func(key any) string {
		if s, ok := key.(string); ok && (t.Replacement == "" || !strings.Contains(s, t.Replacement)) {
			return s
		}
		return t.RevertKey(key)
	})
}

// Incoming is TransformIncoming for a top-level document.
func (t KeyTransform) Incoming(doc map[string]any) map[string]any {
	out, _ := t.TransformIncoming(doc).(map[string]any)
	return out
}

// Outgoing is TransformOutgoing for a top-level document.
func (t KeyTransform) Outgoing(doc map[string]any) map[string]any {
	out, _ := t.TransformOutgoing(doc).(map[string]any)
	return out
}

func rewriteKeys(v any, rename func(key any) string) any {
	switch x := v.(type) {
	case nil:
		return nil
	case map[string]any:
		if x == nil {
			return x
		}
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[rename(k)] = rewriteKeys(val, rename)
		}
		return out
	case []any:
		if x == nil {
			return x
		}
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = rewriteKeys(val, rename)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return v
	}
	if rv.IsNil() {
		return map[string]any(nil)
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[rename(iter.Key().Interface())] = rewriteKeys(iter.Value().Interface(), rename)
	}
	return out
}
