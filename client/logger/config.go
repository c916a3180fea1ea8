package logger

import (
	"sort"
	"strings"
)

// Config resolves the Level for a namespace.
type Config interface {
	LevelForNamespace(namespace string) Level
}

// ConfigMap maps namespace patterns to levels. Namespace sections are
// separated by colons. In a pattern, "*" matches exactly one section and
// "**" matches any number of sections, including none. The empty pattern
// configures the root level.
type ConfigMap map[string]Level

type pattern struct {
	sections []string
	level    Level

	literals  int
	singles   int
	doubles   int
	rawSource string
}

type patternConfig struct {
	root     Level
	patterns []pattern
}

var _ Config = &patternConfig{}

// NewConfig compiles a ConfigMap. It returns nil for a nil map so the result
// can be passed straight to Logger.WithConfig.
func NewConfig(configMap ConfigMap) Config {
	if configMap == nil {
		return nil
	}

	c := &patternConfig{
		root: LevelDisabled,
	}

	for source, level := range configMap {
		if source == "" {
			c.root = level

			continue
		}

		p := pattern{
			sections:  strings.Split(source, ":"),
			level:     level,
			rawSource: source,
		}

		for _, s := range p.sections {
			switch s {
			case "*":
				p.singles++
			case "**":
				p.doubles++
			default:
				p.literals++
			}
		}

		c.patterns = append(c.patterns, p)
	}

	// Most specific patterns are tried first.
	sort.Slice(c.patterns, func(i, j int) bool {
		a, b := c.patterns[i], c.patterns[j]

		switch {
		case a.literals != b.literals:
			return a.literals > b.literals
		case a.singles != b.singles:
			return a.singles > b.singles
		case a.doubles != b.doubles:
			return a.doubles < b.doubles
		}

		if cmp := compareLiteralPositions(a.sections, b.sections); cmp != 0 {
			return cmp > 0
		}

		return a.rawSource < b.rawSource
	})

	return c
}

// NewConfigFromString parses comma separated "pattern[:level]" entries, for
// example "**:peer:**:debug,**:pion:**:warn,:info". A missing level means
// info. It returns nil for an empty string.
func NewConfigFromString(str string) Config {
	if str == "" {
		return nil
	}

	configMap := ConfigMap{}

	for _, entry := range strings.Split(str, ",") {
		level := LevelInfo

		if i := strings.LastIndex(entry, ":"); i > -1 {
			if parsed, ok := LevelFromString(entry[i+1:]); ok {
				level = parsed
				entry = entry[:i]
			}
		}

		configMap[entry] = level
	}

	return NewConfig(configMap)
}

func (c *patternConfig) LevelForNamespace(namespace string) Level {
	if namespace == "" {
		return c.root
	}

	sections := strings.Split(namespace, ":")

	for _, p := range c.patterns {
		if matchSections(p.sections, sections) {
			return p.level
		}
	}

	return c.root
}

// compareLiteralPositions returns 1 when a has a literal section at the
// first position where only one of them does, -1 when b has, and 0 otherwise.
func compareLiteralPositions(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		aLiteral := a[i] != "*" && a[i] != "**"
		bLiteral := b[i] != "*" && b[i] != "**"

		switch {
		case aLiteral && !bLiteral:
			return 1
		case !aLiteral && bLiteral:
			return -1
		}
	}

	return 0
}

func matchSections(pattern, sections []string) bool {
	if len(pattern) == 0 {
		return len(sections) == 0
	}

	head := pattern[0]

	if head == "**" {
		for skip := 0; skip <= len(sections); skip++ {
			if matchSections(pattern[1:], sections[skip:]) {
				return true
			}
		}

		return false
	}

	if len(sections) == 0 {
		return false
	}

	if head != "*" && head != sections[0] {
		return false
	}

	return matchSections(pattern[1:], sections[1:])
}
