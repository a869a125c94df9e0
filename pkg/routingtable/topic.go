package routingtable

import (
	"fmt"
	"strings"
)

const (
	// Separator splits a topic into segments.
	Separator = "."

	// SingleWildcard matches exactly one segment.
	SingleWildcard = "*"

	// MultiWildcard matches one or more trailing segments.
	MultiWildcard = ">"
)

// SegmentKind classifies a topic segment.
type SegmentKind uint8

const (
	// Exact matches an identical literal token.
	Exact SegmentKind = iota
	// Single is the "*" wildcard.
	Single
	// Multi is the ">" wildcard.
	Multi
)

func (k SegmentKind) String() string {
	switch k {
	case Exact:
		return "exact"
	case Single:
		return "single-wildcard"
	case Multi:
		return "multi-wildcard"
	default:
		return "unknown"
	}
}

// Segment is one token of a topic or pattern. Two segments are the same
// trie child iff they are equal with ==.
type Segment struct {
	Kind  SegmentKind
	Token string
}

// Matches reports whether a node reached through s accepts the published
// token at its position.
func (s Segment) Matches(token string) bool {
	switch s.Kind {
	case Single, Multi:
		return true
	default:
		return s.Token == token
	}
}

// IsWildcard reports whether s is "*" or ">".
func (s Segment) IsWildcard() bool {
	return s.Kind != Exact
}

func (s Segment) String() string {
	return s.Token
}

// Pattern is a parsed topic, pattern or query.
type Pattern []Segment

func (p Pattern) String() string {
	tokens := make([]string, len(p))
	for i, s := range p {
		tokens[i] = s.Token
	}
	return strings.Join(tokens, Separator)
}

// HasWildcard reports whether any segment of p is a wildcard.
func (p Pattern) HasWildcard() bool {
	for _, s := range p {
		if s.IsWildcard() {
			return true
		}
	}
	return false
}

// ParsePattern parses a subscription pattern. "*" may appear at any
// position; ">" only as the final token.
func ParsePattern(pattern string) (Pattern, error) {
	p, err := parse(pattern, ErrInvalidPattern)
	if err != nil {
		return nil, err
	}
	for i, s := range p {
		if s.Kind == Multi && i != len(p)-1 {
			return nil, fmt.Errorf("%w: %q: %q must be the last token", ErrInvalidPattern, pattern, MultiWildcard)
		}
	}
	return p, nil
}

// ParseTopic parses a topic meant for publication. Wildcards are rejected.
func ParseTopic(topic string) (Pattern, error) {
	p, err := parse(topic, ErrInvalidTopic)
	if err != nil {
		return nil, err
	}
	if p.HasWildcard() {
		return nil, fmt.Errorf("%w: %q: published topics cannot contain wildcards", ErrInvalidTopic, topic)
	}
	return p, nil
}

// ParseQuery parses a lookup topic. "*" selects every child at its level;
// ">" is rejected.
func ParseQuery(query string) (Pattern, error) {
	p, err := parse(query, ErrInvalidTopic)
	if err != nil {
		return nil, err
	}
	for _, s := range p {
		if s.Kind == Multi {
			return nil, fmt.Errorf("%w: %q: %q is not allowed in a lookup", ErrInvalidTopic, query, MultiWildcard)
		}
	}
	return p, nil
}

// parse splits s and classifies tokens. embedErr is reported for wildcard
// characters embedded in a longer token.
func parse(s string, embedErr error) (Pattern, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	tokens := strings.Split(s, Separator)
	p := make(Pattern, 0, len(tokens))
	for i, tok := range tokens {
		if tok == "" {
			return nil, fmt.Errorf("%w: %q: empty token at position %d", ErrInvalidTopic, s, i)
		}
		switch tok {
		case SingleWildcard:
			p = append(p, Segment{Kind: Single, Token: tok})
			continue
		case MultiWildcard:
			p = append(p, Segment{Kind: Multi, Token: tok})
			continue
		}
		for _, c := range []byte(tok) {
			if c <= ' ' || c > '~' {
				return nil, fmt.Errorf("%w: %q: token %q contains invalid character %q", ErrInvalidTopic, s, tok, c)
			}
			if c == '*' || c == '>' {
				return nil, fmt.Errorf("%w: %q: wildcard embedded in token %q", embedErr, s, tok)
			}
		}
		p = append(p, Segment{Kind: Exact, Token: tok})
	}
	return p, nil
}
