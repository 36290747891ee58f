// Package filterspec defines the filter specification and matcher used by
// the Filter Projector (see internal/otail/filter) to decide which source
// lines appear in the filtered view.
package filterspec

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/snonux/otail/internal/otail/ferrors"
)

// Kind enumerates the supported filter flavours.
type Kind int

const (
	// Disabled behaves as identity: every source line matches.
	Disabled Kind = iota
	// PlainCI matches case-insensitively on a literal substring.
	PlainCI
	// PlainCS matches case-sensitively on a literal substring.
	PlainCS
	// Regex matches using a compiled regular expression.
	Regex
)

func (k Kind) String() string {
	switch k {
	case Disabled:
		return "disabled"
	case PlainCI:
		return "plain_ci"
	case PlainCS:
		return "plain_cs"
	case Regex:
		return "regex"
	default:
		return "unknown"
	}
}

// Spec is the filter specification. Two specs are equal iff every field
// matches; equality is what drives the Filter Projector's rescan decision.
type Spec struct {
	Kind    Kind
	Pattern string
	Enabled bool
}

// Equal reports whether s and other describe the same filter.
func (s Spec) Equal(other Spec) bool {
	return s.Kind == other.Kind && s.Pattern == other.Pattern && s.Enabled == other.Enabled
}

// DisabledSpec returns the canonical disabled/identity spec.
func DisabledSpec() Spec {
	return Spec{Kind: Disabled, Enabled: false}
}

func (s Spec) String() string {
	return fmt.Sprintf("Spec(kind:%s,pattern:%q,enabled:%t)", s.Kind, s.Pattern, s.Enabled)
}

// Matcher is the compiled form of a Spec, ready to test lines.
//
// Plain-text patterns are matched with strings.Contains. Regex patterns
// that contain no regex metacharacters are detected and special-cased the
// same way, avoiding the cost of the regexp engine for what is effectively
// a literal search.
type Matcher struct {
	spec      Spec
	re        *regexp.Regexp
	isLiteral bool
	literal   string
	literalLC string
}

// isLiteralPattern reports whether pattern contains no regex metacharacters.
func isLiteralPattern(pattern string) bool {
	const metaChars = `.+*?^$[]{}()|\`
	return !strings.ContainsAny(pattern, metaChars)
}

// Compile builds a Matcher for spec. A Regex spec with an invalid pattern
// returns ferrors.ErrFilterCompile wrapping the regexp error; the caller is
// expected to keep using the previously compiled Matcher in that case.
func Compile(spec Spec) (Matcher, error) {
	m := Matcher{spec: spec}

	switch spec.Kind {
	case Disabled:
		return m, nil

	case PlainCI:
		m.literal = spec.Pattern
		m.literalLC = strings.ToLower(spec.Pattern)
		return m, nil

	case PlainCS:
		m.literal = spec.Pattern
		return m, nil

	case Regex:
		if isLiteralPattern(spec.Pattern) {
			m.isLiteral = true
			m.literal = spec.Pattern
			return m, nil
		}
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return Matcher{}, fmt.Errorf("%w: %s", ferrors.ErrFilterCompile, err)
		}
		m.re = re
		return m, nil

	default:
		return Matcher{}, fmt.Errorf("%w: unknown filter kind %v", ferrors.ErrFilterCompile, spec.Kind)
	}
}

// Spec returns the spec this matcher was compiled from.
func (m Matcher) Spec() Spec {
	return m.spec
}

// MatchString reports whether line matches under this spec's rules. A
// disabled spec matches every line (identity projection).
func (m Matcher) MatchString(line string) bool {
	if !m.spec.Enabled {
		return true
	}
	switch m.spec.Kind {
	case Disabled:
		return true
	case PlainCI:
		return strings.Contains(strings.ToLower(line), m.literalLC)
	case PlainCS:
		return strings.Contains(line, m.literal)
	case Regex:
		if m.isLiteral {
			return strings.Contains(line, m.literal)
		}
		return m.re.MatchString(line)
	default:
		return false
	}
}
