package delivery

import "strings"

// TimeoutExemptions matches handler names that run without a watchdog.
//
// A pattern ending in "." matches every handler in exactly that package, a
// pattern ending in "*" matches the prefix (the package and its
// subpackages), anything else is an exact name.
type TimeoutExemptions struct {
	exact    map[string]struct{}
	packages map[string]struct{}
	prefixes []string
}

// ParseTimeoutExemptions builds a matcher from patterns. Blank patterns are
// ignored.
func ParseTimeoutExemptions(patterns []string) *TimeoutExemptions {
	e := &TimeoutExemptions{
		exact:    make(map[string]struct{}),
		packages: make(map[string]struct{}),
	}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
		case strings.HasSuffix(p, "."):
			e.packages[strings.TrimSuffix(p, ".")] = struct{}{}
		case strings.HasSuffix(p, "*"):
			e.prefixes = append(e.prefixes, strings.TrimSuffix(p, "*"))
		default:
			e.exact[p] = struct{}{}
		}
	}
	return e
}

// Matches reports whether name is exempt. A nil matcher matches nothing.
func (e *TimeoutExemptions) Matches(name string) bool {
	if e == nil {
		return false
	}
	if _, ok := e.exact[name]; ok {
		return true
	}
	if i := strings.LastIndex(name, "."); i > 0 {
		if _, ok := e.packages[name[:i]]; ok {
			return true
		}
	}
	for _, prefix := range e.prefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Empty reports whether the matcher has no patterns.
func (e *TimeoutExemptions) Empty() bool {
	return e == nil || len(e.exact)+len(e.packages)+len(e.prefixes) == 0
}
