package rtstore

import "strings"

// Reader lets a predicate consult data elsewhere in the store (e.g. a rule
// on commands/{id} reading servers/{id}/allowedUsers). Reads through this
// interface are not themselves access-checked.
type Reader interface {
	Raw(path string) any
}

// Request carries everything a predicate may evaluate: the caller identity,
// the data currently at the path, and (for writes) the incoming data.
type Request struct {
	Auth     Auth
	Path     string
	Params   map[string]string
	Existing any
	Incoming any
	Store    Reader
}

// Predicate is a server-evaluated boolean rule gating a read or write at a
// path. A nil predicate denies.
type Predicate func(r *Request) bool

// Rule binds read/write predicates to a path pattern. Pattern segments of
// the form {name} match any single segment and are captured into
// Request.Params.
type Rule struct {
	Pattern string
	Read    Predicate
	Write   Predicate
}

// Ruleset evaluates access predicates. Operations with no matching rule are
// denied; deny is always the default.
type Ruleset struct {
	rules []Rule
}

// NewRuleset builds a ruleset from the given rules. Rule order is match
// order; the first pattern that matches the path (exactly, or as the nearest
// ancestor) decides.
func NewRuleset(rules ...Rule) *Ruleset {
	return &Ruleset{rules: rules}
}

// match tries pattern against path segments. It returns captured params and
// whether the pattern matched the path exactly or as an ancestor prefix.
func match(pattern, path string) (map[string]string, bool) {
	psegs := strings.Split(pattern, "/")
	segs := strings.Split(path, "/")
	if len(segs) < len(psegs) {
		return nil, false
	}
	params := make(map[string]string)
	for i, p := range psegs {
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			params[strings.Trim(p, "{}")] = segs[i]
			continue
		}
		if p != segs[i] {
			return nil, false
		}
	}
	return params, true
}

// CanRead evaluates the read predicate for the path.
func (rs *Ruleset) CanRead(r *Request) bool {
	return rs.eval(r, true)
}

// CanWrite evaluates the write predicate for the path.
func (rs *Ruleset) CanWrite(r *Request) bool {
	return rs.eval(r, false)
}

func (rs *Ruleset) eval(r *Request, read bool) bool {
	for _, rule := range rs.rules {
		params, ok := match(rule.Pattern, r.Path)
		if !ok {
			continue
		}
		pred := rule.Write
		if read {
			pred = rule.Read
		}
		if pred == nil {
			return false
		}
		r.Params = params
		return pred(r)
	}
	return false
}
