// Package version orders dot-separated tool versions.
//
// The ordering is PVP-like but deliberately not zero-padded: when one version
// runs out of segments while the other still has a numeric segment, the
// longer one is greater, so "1.2.0" sorts after "1.2".
package version

import (
	"sort"
	"strconv"
	"strings"
)

// Compare returns -1, 0 or 1 depending on whether l is less than, equal to
// or greater than r.
func Compare(l, r string) int {
	ls := strings.Split(l, ".")
	rs := strings.Split(r, ".")
	n := len(ls)
	if len(rs) > n {
		n = len(rs)
	}
	for i := 0; i < n; i++ {
		lv, lok := segment(ls, i)
		rv, rok := segment(rs, i)
		switch {
		case !lok && !rok:
			return 0
		case !lok:
			return -1
		case !rok:
			return 1
		case lv < rv:
			return -1
		case lv > rv:
			return 1
		}
	}
	return 0
}

// segment returns the integer at index i, or false when the segment is
// missing or not a non-negative integer.
func segment(parts []string, i int) (uint64, bool) {
	if i >= len(parts) {
		return 0, false
	}
	v, err := strconv.ParseUint(parts[i], 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Less reports whether l orders strictly before r.
func Less(l, r string) bool {
	return Compare(l, r) < 0
}

// Sort orders versions ascending in place.
func Sort(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool {
		return Less(versions[i], versions[j])
	})
}

// Max returns the greatest version, or "" for an empty slice.
func Max(versions []string) string {
	best := ""
	for i, v := range versions {
		if i == 0 || Compare(v, best) > 0 {
			best = v
		}
	}
	return best
}
