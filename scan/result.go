package scan

import "github.com/kvarq/kvarq-go/match"

// Result is what Engine.Scan returns: every hit found, the scan's
// statistics, and whether the scan was cancelled before reaching EOF (in
// which case hits and coverages are valid but partial).
type Result struct {
	Hits      []match.Hit
	Stats     *Stats
	Cancelled bool
}

// HitMultiset counts occurrences of each distinct Hit value. The hit list
// is unordered by design, so equality between two scans is multiset
// equality, not slice equality.
func HitMultiset(hits []match.Hit) map[match.Hit]int {
	out := make(map[match.Hit]int, len(hits))
	for _, h := range hits {
		out[h]++
	}
	return out
}

// EqualMultiset reports whether a and b contain the same hits with the same
// multiplicities, ignoring order.
func EqualMultiset(a, b []match.Hit) bool {
	ma, mb := HitMultiset(a), HitMultiset(b)
	if len(ma) != len(mb) {
		return false
	}
	for h, n := range ma {
		if mb[h] != n {
			return false
		}
	}
	return true
}
