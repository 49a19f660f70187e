package domain

import (
	"fmt"

	"dario.cat/mergo"
)

// Context is the structured working memory carried between node
// executions within one execution instance. It holds explicitly keyed
// values (constraints, answers, generated artifacts), never raw
// conversational transcript; continuity flows through these keys.
type Context map[string]any

// Clone returns a copy with nested maps and slices duplicated, so an
// executor can never mutate the durable state through its snapshot.
func (c Context) Clone() Context {
	if c == nil {
		return Context{}
	}
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case Context:
		return map[string]any(t.Clone())
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return v
	}
}

// Merged returns a new context with patch applied on top of c.
// Patch values win on key collision; nested maps are merged.
func (c Context) Merged(patch map[string]any) Context {
	out := c.Clone()
	if len(patch) == 0 {
		return out
	}
	dst := map[string]any(out)
	if err := mergo.Merge(&dst, patch, mergo.WithOverride); err != nil {
		// mergo only fails on non-map destinations, which cannot happen
		// here; keep the contract total anyway.
		for k, v := range patch {
			dst[k] = cloneValue(v)
		}
	}
	return Context(dst)
}

// Lookup resolves a dotted path ("answers.region") through nested maps.
func (c Context) Lookup(path string) (any, bool) {
	var cur any = map[string]any(c)
	start := 0
	for i := 0; i <= len(path); i++ {
		if i != len(path) && path[i] != '.' {
			continue
		}
		key := path[start:i]
		start = i + 1
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Context:
		return map[string]any(t), true
	default:
		return nil, false
	}
}

// SetPath writes value at a dotted path, creating intermediate maps as
// needed. Existing non-map intermediates are replaced.
func (c Context) SetPath(path string, value any) {
	cur := map[string]any(c)
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] != '.' {
			continue
		}
		key := path[start:i]
		start = i + 1
		next, ok := asMap(cur[key])
		if !ok {
			next = map[string]any{}
			cur[key] = next
		}
		cur = next
	}
	cur[path[start:]] = value
}

// String renders a compact debug form.
func (c Context) String() string {
	return fmt.Sprintf("Context(%d keys)", len(c))
}
