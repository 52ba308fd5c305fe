package schema

import (
	"fmt"
	"strings"
)

// Kind is the value kind of an effect parameter.
type Kind int

const (
	Integer Kind = iota + 1
	Float
	// Element values come from the fixed element set.
	Element
	FreeText
	// ConstrainedChoice values come from a set chosen by the parameter name.
	ConstrainedChoice
)

var kindNames = map[Kind]string{
	Integer:           "integer",
	Float:             "float",
	Element:           "element",
	FreeText:          "free_text",
	ConstrainedChoice: "choice",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText renders the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	s, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("schema: unknown kind %d", int(k))
	}
	return []byte(s), nil
}

// ParseKind converts a kind name.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("schema: unknown parameter kind %q", s)
}

// Param is one parameter of an effect type.
type Param struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
	Hint string `json:"hint,omitempty"`
}

// Side partitions effect types into those authored on player skills and those
// authored on enemy skills.
type Side int

const (
	PlayerSide Side = iota
	EnemySide
)

func (s Side) String() string {
	if s == EnemySide {
		return "enemy"
	}
	return "player"
}

// MarshalText renders the side by name.
func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseSide converts "player" or "enemy".
func ParseSide(s string) (Side, error) {
	switch s {
	case "player":
		return PlayerSide, nil
	case "enemy":
		return EnemySide, nil
	default:
		return 0, fmt.Errorf("schema: unknown side %q", s)
	}
}

// Match is how a classification rule compares against a tag.
type Match int

const (
	// MatchPrefix matches the pattern itself and every tag starting with it.
	MatchPrefix Match = iota
	MatchExact
)

// Rule assigns a side to every tag it matches.
type Rule struct {
	Pattern string
	Match   Match
	Side    Side
}

// Matches reports whether tag satisfies the rule.
func (r Rule) Matches(tag string) bool {
	if r.Match == MatchExact {
		return tag == r.Pattern
	}
	return strings.HasPrefix(tag, r.Pattern)
}

// Entry is the registry definition of one effect type.
type Entry struct {
	Type        string  `json:"effect_type"`
	Description string  `json:"description"`
	Params      []Param `json:"params"`
	// Open entries accept parameters beyond the declared ones.
	Open bool `json:"open,omitempty"`
}
