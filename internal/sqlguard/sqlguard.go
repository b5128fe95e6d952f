// Package sqlguard decides whether a synthesized statement may run.
//
// The policy is intentionally blunt: forbidden keywords are matched as plain
// substrings anywhere in the text, so a read query that merely mentions one (for
// example a column named created_at) is refused too.
package sqlguard

import (
	"regexp"
	"strings"
)

// Rejection reasons.
const (
	ReasonUnsupported = "unsupported"
	ReasonForbidden   = "forbidden statement kind"
	ReasonShape       = "not a recognizable read query"
)

// DefaultDenylist is always enforced; configured keywords are added to it.
var DefaultDenylist = []string{"insert", "update", "delete", "drop", "alter", "create", "truncate"}

var readShape = regexp.MustCompile(`(?is)^\s*SELECT\s+.+\s+FROM\s+[a-z0-9_]+.*$`)

// Verdict is the outcome of validating one statement.
type Verdict struct {
	Accepted bool
	Reason   string
}

// Validator holds the effective deny list.
type Validator struct {
	Denylist []string
}

// New returns a validator enforcing the default deny list plus extra keywords.
func New(extra ...string) *Validator {
	seen := map[string]struct{}{}
	list := make([]string, 0, len(DefaultDenylist)+len(extra))
	for _, kw := range append(append([]string{}, DefaultDenylist...), extra...) {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		list = append(list, kw)
	}
	return &Validator{Denylist: list}
}

// Validate applies the policy in order: sentinel, deny list, read shape.
func (v *Validator) Validate(sql string) Verdict {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" || strings.EqualFold(trimmed, "UNSUPPORTED") {
		return Verdict{Reason: ReasonUnsupported}
	}
	if v.IsDenied(sql) {
		return Verdict{Reason: ReasonForbidden}
	}
	if !readShape.MatchString(sql) || hasSecondStatement(sql) {
		return Verdict{Reason: ReasonShape}
	}
	return Verdict{Accepted: true}
}

// IsDenied reports whether sql contains any deny-listed keyword, ignoring case.
func (v *Validator) IsDenied(sql string) bool {
	lower := strings.ToLower(sql)
	for _, rule := range v.Denylist {
		if strings.Contains(lower, rule) {
			return true
		}
	}
	return false
}

// hasSecondStatement reports whether a top-level ';' is followed by anything
// other than whitespace. Semicolons inside quoted text and comments are ignored.
func hasSecondStatement(sql string) bool {
	const (
		plain = iota
		single
		double
		line
		block
	)
	state := plain
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch state {
		case single:
			if ch == '\'' {
				state = plain
			}
		case double:
			if ch == '"' {
				state = plain
			}
		case line:
			if ch == '\n' {
				state = plain
			}
		case block:
			if ch == '*' && i+1 < len(sql) && sql[i+1] == '/' {
				state = plain
				i++
			}
		default:
			switch {
			case ch == '\'':
				state = single
			case ch == '"':
				state = double
			case ch == '-' && i+1 < len(sql) && sql[i+1] == '-':
				state = line
				i++
			case ch == '/' && i+1 < len(sql) && sql[i+1] == '*':
				state = block
				i++
			case ch == ';':
				return strings.TrimSpace(sql[i+1:]) != ""
			}
		}
	}
	return false
}
