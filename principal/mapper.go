// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package principal

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	gerrors "github.com/tochemey/dtoken/errors"
)

// ErrNoRuleMatched is returned, wrapped in errors.ErrAccessDenied, when none
// of the configured rules applies to a realm-qualified name.
var ErrNoRuleMatched = errors.New("no rules applied")

// DefaultRules is the rule set used when none is configured
const DefaultRules = "DEFAULT"

// Mapper maps principal names to short names using an ordered rule list.
// A Mapper is immutable and safe for concurrent use.
type Mapper struct {
	rules        []*rule
	defaultRealm string
}

// DefaultMapper returns a Mapper holding only the DEFAULT rule
func DefaultMapper(defaultRealm string) *Mapper {
	mapper, _ := NewMapper(DefaultRules, defaultRealm)
	return mapper
}

// NewMapper parses an auth_to_local rule set. Rules may be separated by
// whitespace or simply concatenated.
func NewMapper(rules, defaultRealm string) (*Mapper, error) {
	mapper := &Mapper{defaultRealm: defaultRealm}
	remaining := strings.TrimSpace(rules)
	if remaining == "" {
		remaining = DefaultRules
	}

	var err error
	for len(remaining) > 0 {
		loc := ruleParser.FindStringSubmatchIndex(remaining)
		if loc == nil {
			return nil, fmt.Errorf("invalid rule: %s", remaining)
		}

		parsed, perr := parseRule(remaining, loc, defaultRealm)
		err = multierr.Append(err, perr)
		if parsed != nil {
			mapper.rules = append(mapper.rules, parsed)
		}

		remaining = strings.TrimSpace(remaining[loc[1]:])
	}

	if err != nil {
		return nil, err
	}
	return mapper, nil
}

func parseRule(input string, loc []int, defaultRealm string) (*rule, error) {
	group := func(i int) (string, bool) {
		if loc[2*i] < 0 {
			return "", false
		}
		return input[loc[2*i]:loc[2*i+1]], true
	}

	raw := strings.TrimSpace(input[loc[0]:loc[1]])
	_, lower := group(8)
	if _, ok := group(1); ok {
		return &rule{isDefault: true, raw: raw, defaultRealm: defaultRealm, toLowerCase: lower}, nil
	}

	count, _ := group(2)
	components, err := strconv.Atoi(count)
	if err != nil {
		return nil, fmt.Errorf("invalid component count in rule %s", raw)
	}

	format, _ := group(3)
	r := &rule{
		components:   components,
		format:       format,
		raw:          raw,
		defaultRealm: defaultRealm,
		toLowerCase:  lower,
	}

	if pattern, ok := group(4); ok {
		r.match, err = regexp.Compile("^(?:" + pattern + ")$")
		if err != nil {
			return nil, fmt.Errorf("invalid match expression in rule %s: %w", raw, err)
		}
	}

	if from, ok := group(5); ok {
		r.from, err = regexp.Compile(from)
		if err != nil {
			return nil, fmt.Errorf("invalid substitution in rule %s: %w", raw, err)
		}
		r.to, _ = group(6)
		r.to = javaToGoReplacement(r.to)
		_, r.global = group(7)
		r.hasSubstitute = true
	}
	return r, nil
}

// javaToGoReplacement rewrites $n group references as ${n} so that a
// reference followed by letters is not read as a named group.
func javaToGoReplacement(to string) string {
	return paramRef.ReplaceAllStringFunc(to, func(ref string) string {
		if len(ref) == 1 {
			return "$$"
		}
		return "${" + ref[1:] + "}"
	})
}

// ShortName maps name to its short form. Names without a realm or instance
// are returned unchanged.
func (m *Mapper) ShortName(name string) (string, error) {
	parsed, err := ParseName(name)
	if err != nil {
		return "", err
	}

	if parsed.Instance == "" && parsed.Realm == "" {
		return parsed.Primary, nil
	}

	params := []string{parsed.Realm, parsed.Primary}
	if parsed.Instance != "" {
		params = append(params, parsed.Instance)
	}

	for _, r := range m.rules {
		short, ok, err := r.apply(params)
		if err != nil {
			return "", err
		}
		if ok {
			return short, nil
		}
	}
	return "", fmt.Errorf("%w: %w to %s", gerrors.ErrAccessDenied, ErrNoRuleMatched, name)
}

// Rules returns the textual rules in evaluation order
func (m *Mapper) Rules() []string {
	out := make([]string, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r.raw)
	}
	return out
}
