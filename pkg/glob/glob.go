// Package glob matches shell-style globs against input. Only '*' is special;
// it matches any run of characters, including '/'.
package glob

import "strings"

type glob struct {
	eq func(a, b byte) bool
}

// An Option modifies the behavior of a call to Glob.
type Option func(*glob)

// IgnoreCase compares ASCII letters without regard to case.
var IgnoreCase Option = func(g *glob) {
	g.eq = func(a, b byte) bool {
		return lower(a) == lower(b)
	}
}

func lower(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}

// Glob matches input against pattern. It returns true if there is a match.
// Options change comparison behavior.
func Glob(pattern, input string, opts ...Option) bool {
	g := glob{
		eq: func(a, b byte) bool { return a == b },
	}
	for _, o := range opts {
		o(&g)
	}
	i, j := 0, 0
	// Position of the last '*' seen and the input index it is currently
	// expected to absorb up to.
	star, mark := -1, 0
	for j < len(input) {
		switch {
		case i < len(pattern) && pattern[i] == '*':
			star = i
			mark = j
			i++
		case i < len(pattern) && g.eq(pattern[i], input[j]):
			i++
			j++
		case star >= 0:
			i = star + 1
			mark++
			j = mark
		default:
			return false
		}
	}
	for i < len(pattern) && pattern[i] == '*' {
		i++
	}
	return i == len(pattern)
}

// Any returns true if input matches at least one of patterns.
func Any(patterns []string, input string, opts ...Option) bool {
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if Glob(p, input, opts...) {
			return true
		}
	}
	return false
}
