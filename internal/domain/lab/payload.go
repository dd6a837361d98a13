package lab

import (
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Node is one vertex of a decoded measurement tree: an object of named
// children, or a scalar leaf. The distinction is explicit rather than
// inferred per use, which keeps flattening free of reflection.
type Node struct {
	Children map[string]Node `json:"-"`
	Value    any             `json:"-"`
}

// Object builds an object node from its children. Object(nil) is the empty
// measurement set.
func Object(children map[string]Node) Node {
	if children == nil {
		children = map[string]Node{}
	}
	return Node{Children: children}
}

// Scalar builds a leaf node.
func Scalar(v any) Node {
	return Node{Value: v}
}

// IsObject reports whether the node is an object (possibly empty).
func (n Node) IsObject() bool {
	return n.Children != nil
}

func (n Node) MarshalJSON() ([]byte, error) {
	if n.Children != nil {
		return json.Marshal(n.Children)
	}
	return json.Marshal(n.Value)
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = nodeFrom(v)
	return nil
}

// nodeFrom converts a decoded JSON value into the variant tree. Anything
// that is not an object is a leaf; arrays stay leaves and are serialized at
// flatten time.
func nodeFrom(v any) Node {
	if m, ok := v.(map[string]any); ok {
		children := make(map[string]Node, len(m))
		for k, c := range m {
			children[k] = nodeFrom(c)
		}
		return Node{Children: children}
	}
	return Node{Value: v}
}

// DecodeEnvelope normalizes the two JSON-borne wire shapes of a results
// submission into the canonical test-id → tree form: a native nested
// object keyed by test id, or the same object serialized as a JSON string.
// Any other shape fails with ErrInvalidPayload.
func DecodeEnvelope(raw any) (map[string]Node, error) {
	switch v := raw.(type) {
	case map[string]any:
		return envelopeFromMap(v), nil
	case string:
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return nil, ErrInvalidPayload
		}
		m, ok := decoded.(map[string]any)
		if !ok {
			return nil, ErrInvalidPayload
		}
		return envelopeFromMap(m), nil
	default:
		return nil, ErrInvalidPayload
	}
}

func envelopeFromMap(m map[string]any) map[string]Node {
	out := make(map[string]Node, len(m))
	for testID, sub := range m {
		out[testID] = CoerceTestPayload(sub)
	}
	return out
}

// DecodeBracketForm reconstructs the canonical form from flat form keys of
// the shape results[<testId>][<section>][<field>] = value, as produced
// when nested structures are posted as form fields. Keys that do not match
// the bracket shape are ignored; a form with no matching keys is an empty
// submission, not an error.
func DecodeBracketForm(form url.Values) map[string]Node {
	out := map[string]Node{}
	for key, vals := range form {
		segments, ok := bracketSegments(key)
		if !ok || len(vals) == 0 {
			continue
		}
		testID := segments[0]
		entry, ok := out[testID]
		if !ok {
			entry = Object(nil)
		}
		insertPath(entry.Children, segments[1:], vals[0])
		out[testID] = entry
	}
	return out
}

// bracketSegments parses results[a][b][c] into [a b c]. At least the test
// id segment is required.
func bracketSegments(key string) ([]string, bool) {
	rest, ok := strings.CutPrefix(key, "results[")
	if !ok {
		return nil, false
	}
	var segments []string
	for {
		end := strings.Index(rest, "]")
		if end < 0 {
			return nil, false
		}
		segments = append(segments, rest[:end])
		rest = rest[end+1:]
		if rest == "" {
			break
		}
		if rest, ok = strings.CutPrefix(rest, "["); !ok {
			return nil, false
		}
	}
	if len(segments) == 0 || segments[0] == "" {
		return nil, false
	}
	return segments, true
}

// insertPath places a leaf at the given path, creating intermediate
// objects. A leaf already present at an intermediate position is replaced
// by an object; the form encoding carries no ordering guarantee so the
// deeper write wins.
func insertPath(children map[string]Node, path []string, value string) {
	if len(path) == 0 {
		return
	}
	head := path[0]
	if len(path) == 1 {
		children[head] = Scalar(value)
		return
	}
	next, ok := children[head]
	if !ok || !next.IsObject() {
		next = Object(nil)
	}
	insertPath(next.Children, path[1:], value)
	children[head] = next
}

// CoerceTestPayload normalizes one test's sub-payload to an object tree.
// A string is decoded as JSON; decode failures and non-object shapes yield
// the empty object, never an error — one unparsable test degrades to "no
// measurements" instead of failing the batch.
func CoerceTestPayload(v any) Node {
	switch t := v.(type) {
	case map[string]any:
		return nodeFrom(t)
	case Node:
		if t.IsObject() {
			return t
		}
		return Object(nil)
	case string:
		var decoded any
		if err := json.Unmarshal([]byte(t), &decoded); err != nil {
			return Object(nil)
		}
		if m, ok := decoded.(map[string]any); ok {
			return nodeFrom(m)
		}
		return Object(nil)
	default:
		return Object(nil)
	}
}

// FlatValue is one flattened reading before schema enrichment.
type FlatValue struct {
	Path  string
	Value string
}

// Flatten walks the tree depth first and emits one entry per leaf, with
// keys joined by dots. Output is sorted by path so regeneration is
// deterministic.
func Flatten(n Node) []FlatValue {
	var out []FlatValue
	flattenInto(n, "", &out)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func flattenInto(n Node, prefix string, out *[]FlatValue) {
	if !n.IsObject() {
		if prefix != "" {
			*out = append(*out, FlatValue{Path: prefix, Value: stringify(n.Value)})
		}
		return
	}
	for key, child := range n.Children {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		flattenInto(child, path, out)
	}
}

// stringify renders a leaf as text. Plain scalars keep their natural form;
// anything else (arrays, mixed content) is serialized as compact JSON
// rather than rejected.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
