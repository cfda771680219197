package rpm

// Dep is a single versioned capability: "name [op version]".
type Dep struct {
	Name  string
	EVR   string
	Flags Sense
}

// RangesOverlap reports whether the version ranges of two capabilities intersect.
//
// Rules:
//   - different names never overlap
//   - an unversioned side (no comparison bits or empty EVR) overlaps everything
//   - otherwise the three-way EVR comparison is checked against both operators
func RangesOverlap(a, b Dep) bool {
	if a.Name != b.Name {
		return false
	}

	aFlags := a.Flags & SenseMask
	bFlags := b.Flags & SenseMask

	if !aFlags.HasComparison() || !bFlags.HasComparison() {
		return true
	}

	if a.EVR == "" || b.EVR == "" {
		return true
	}

	sense := Compare(a.EVR, b.EVR)

	switch {
	case sense < 0:
		return aFlags&SenseGreater != 0 || bFlags&SenseLess != 0
	case sense > 0:
		return aFlags&SenseLess != 0 || bFlags&SenseGreater != 0
	default:
		return (aFlags&SenseEqual != 0 && bFlags&SenseEqual != 0) ||
			(aFlags&SenseLess != 0 && bFlags&SenseLess != 0) ||
			(aFlags&SenseGreater != 0 && bFlags&SenseGreater != 0)
	}
}

// ProvideOverlaps checks a provided capability against a require, conflict or obsolete
// declaration. The provide side is always treated as an exact "= EVR" point, which is
// how apt-rpm matches provides.
func ProvideOverlaps(provide, dep Dep) bool {
	provide.Flags = SenseEqual

	return RangesOverlap(provide, dep)
}
