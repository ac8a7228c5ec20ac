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
	"fmt"
	"regexp"
	"strconv"
	"strings"

	gerrors "github.com/tochemey/dtoken/errors"
)

var (
	nameParser = regexp.MustCompile(`^([^/@]+)(?:/([^/@]+))?(?:@([^/@]+))?$`)
	ruleParser = regexp.MustCompile(`^\s*(?:(DEFAULT)|RULE:\[(\d*):([^\]]*)\](?:\(([^)]*)\))?(?:s/([^/]*)/([^/]*)/(g)?)?)(/L)?`)
	paramRef   = regexp.MustCompile(`\$(\d*)`)
)

// Name is a parsed principal name.
type Name struct {
	Primary  string
	Instance string
	Realm    string
}

// ParseName splits a principal name into its components.
func ParseName(name string) (*Name, error) {
	match := nameParser.FindStringSubmatch(name)
	if match == nil {
		if strings.Contains(name, "@") {
			return nil, gerrors.NewErrAccessDenied(fmt.Sprintf("malformed principal name %q", name))
		}
		return &Name{Primary: name}, nil
	}
	return &Name{Primary: match[1], Instance: match[2], Realm: match[3]}, nil
}

// String returns the name in primary[/instance][@REALM] form
func (x *Name) String() string {
	var sb strings.Builder
	sb.WriteString(x.Primary)
	if x.Instance != "" {
		sb.WriteByte('/')
		sb.WriteString(x.Instance)
	}
	if x.Realm != "" {
		sb.WriteByte('@')
		sb.WriteString(x.Realm)
	}
	return sb.String()
}

// rule is a single auth_to_local rule
type rule struct {
	isDefault     bool
	components    int
	format        string
	match         *regexp.Regexp
	from          *regexp.Regexp
	to            string
	global        bool
	toLowerCase   bool
	raw           string
	defaultRealm  string
	hasSubstitute bool
}

// apply returns the short name and true when the rule applies to params.
// params[0] is the realm and params[1:] the name components.
func (r *rule) apply(params []string) (string, bool, error) {
	var result string
	switch {
	case r.isDefault:
		if params[0] != r.defaultRealm {
			return "", false, nil
		}
		result = params[1]
	default:
		if len(params)-1 != r.components {
			return "", false, nil
		}

		base, err := replaceParameters(r.format, params)
		if err != nil {
			return "", false, err
		}

		if r.match != nil && !r.match.MatchString(base) {
			return "", false, nil
		}

		result = base
		if r.hasSubstitute {
			result = substitute(base, r.from, r.to, r.global)
		}
	}

	if strings.ContainsAny(result, "/@") {
		return "", false, gerrors.NewErrAccessDenied(fmt.Sprintf("non-simple name %s after rule %s", result, r.raw))
	}

	if r.toLowerCase {
		result = strings.ToLower(result)
	}
	return result, true, nil
}

func replaceParameters(format string, params []string) (string, error) {
	var err error
	replaced := paramRef.ReplaceAllStringFunc(format, func(ref string) string {
		index, convErr := strconv.Atoi(ref[1:])
		if convErr != nil || index < 0 || index >= len(params) {
			err = fmt.Errorf("bad format string %q: index %s out of range", format, ref[1:])
			return ref
		}
		return params[index]
	})
	return replaced, err
}

func substitute(base string, from *regexp.Regexp, to string, global bool) string {
	if global {
		return from.ReplaceAllString(base, to)
	}

	loc := from.FindStringSubmatchIndex(base)
	if loc == nil {
		return base
	}

	dst := from.ExpandString(nil, to, base, loc)
	return base[:loc[0]] + string(dst) + base[loc[1]:]
}
