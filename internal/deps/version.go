package deps

import (
	"strings"

	"golang.org/x/mod/semver"
)

// Satisfies reports whether the observed version falls inside the declared spec.
//
//	^1.2.3, 1.2.3   >=1.2.3 with the same major (same major.minor below 1.0)
//	~1.2.3          >=1.2.3 with the same major.minor
//	=1.2.3          exactly 1.2.3
//	>=1.2.3         not lower than 1.2.3
//
// Anything it cannot interpret (wildcards, compound ranges, tags, unparseable
// versions) counts as satisfied: a conflict is only reported when provable.
func Satisfies(spec, version string) bool {
	spec = strings.TrimSpace(spec)
	v := canonical(version)
	if spec == "" || spec == "*" || spec == "latest" || v == "" {
		return true
	}
	if strings.ContainsAny(spec, " |<,") || strings.Contains(spec, "*") || strings.Contains(spec, ".x") || strings.Contains(spec, ".X") {
		return true
	}

	op := ""
	for _, prefix := range []string{">=", "^", "~", "="} {
		if strings.HasPrefix(spec, prefix) {
			op = prefix
			spec = strings.TrimSpace(strings.TrimPrefix(spec, prefix))
			break
		}
	}
	base := canonical(spec)
	if base == "" {
		return true
	}

	switch op {
	case "=":
		return semver.Compare(v, base) == 0
	case ">=":
		return semver.Compare(v, base) >= 0
	case "~":
		return semver.Compare(v, base) >= 0 && semver.MajorMinor(v) == semver.MajorMinor(base)
	default:
		if semver.Compare(v, base) < 0 {
			return false
		}
		if semver.Major(base) == "v0" {
			return semver.MajorMinor(v) == semver.MajorMinor(base)
		}
		return semver.Major(v) == semver.Major(base)
	}
}

// canonical turns 1.2.3 or v1.2.3 into a valid semver string, or "" when it cannot
func canonical(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	if !semver.IsValid(s) {
		return ""
	}
	return semver.Canonical(s)
}
