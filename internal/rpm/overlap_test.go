package rpm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func dep(name, op, evr string) Dep {
	sense, err := ParseSense(op)
	if err != nil {
		panic(err)
	}

	return Dep{Name: name, EVR: evr, Flags: sense}
}

func TestRangesOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b Dep
		want bool
	}{
		{"different names", dep("foo", "=", "1.0"), dep("bar", "=", "1.0"), false},
		{"existence test on the left", dep("foo", "", ""), dep("foo", "<", "1.0"), true},
		{"existence test on the right", dep("foo", ">", "2.0"), dep("foo", "", ""), true},
		{"empty EVR with flags", dep("foo", ">=", ""), dep("foo", "<", "1.0"), true},
		{"disjoint ranges", dep("foo", ">", "2.0"), dep("foo", "<", "1.0"), false},
		{"touching inclusive ranges", dep("foo", ">=", "1.0"), dep("foo", "<=", "1.0"), true},
		{"touching exclusive ranges", dep("foo", ">", "1.0"), dep("foo", "<", "1.0"), false},
		{"same direction always overlaps", dep("foo", "<", "1.0"), dep("foo", "<", "5.0"), true},
		{"equal points", dep("foo", "=", "1.0-alt1"), dep("foo", "=", "1.0-alt1"), true},
		{"different points", dep("foo", "=", "1.0-alt1"), dep("foo", "=", "1.0-alt2"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RangesOverlap(tt.a, tt.b))
			assert.Equal(t, tt.want, RangesOverlap(tt.b, tt.a), "overlap must be symmetric")
		})
	}
}

func TestProvideOverlaps(t *testing.T) {
	tests := []struct {
		name    string
		provide Dep
		dep     Dep
		want    bool
	}{
		{"older provide inside less-than conflict", dep("foo", "", "1.0-alt1"), dep("foo", "<", "2.0"), true},
		{"same version outside strict less-than", dep("foo", "", "2.0-alt1"), dep("foo", "<", "2.0"), false},
		{"same version inside less-or-equal", dep("foo", "", "2.0-alt1"), dep("foo", "<=", "2.0"), true},
		{"newer provide outside less-than", dep("foo", "", "3.0"), dep("foo", "<", "2.0"), false},
		{"epoch lifts provide out of range", dep("foo", "", "1:0.5"), dep("foo", "<", "2.0"), false},
		{"pre-release is older", dep("foo", "", "1.0~rc1"), dep("foo", "<", "1.0"), true},
		{"greater-or-equal require satisfied", dep("libfoo", "", "1.3"), dep("libfoo", ">=", "1.2"), true},
		{"exact require with other release", dep("libfoo", "", "1.2-alt2"), dep("libfoo", "=", "1.2-alt1"), false},
		{"exact require without release", dep("libfoo", "", "1.2-alt2"), dep("libfoo", "=", "1.2"), true},
		{"disttag mismatch", dep("libfoo", "", "1.0-alt1:p10+1"), dep("libfoo", "=", "1.0-alt1:p10+2"), false},
		{"disttag ignored on one side", dep("libfoo", "", "1.0-alt1:p10+1"), dep("libfoo", "=", "1.0-alt1"), true},
		{"provide flags are ignored", dep("foo", "<", "1.0"), dep("foo", ">", "2.0"), false},
		{"unversioned provide matches any require", dep("foo", "", ""), dep("foo", ">", "2.0"), true},
		{"name mismatch", dep("foo", "", "1.0"), dep("foo-devel", "", ""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProvideOverlaps(tt.provide, tt.dep))
		})
	}
}

func TestProvideOverlaps_UnversionedConflictAbsorbsEveryVersion(t *testing.T) {
	conflict := dep("foo", "", "")

	for _, v := range []string{"", "0", "1.0", "1.0~rc1", "1.0^git1", "3:2.0-alt1", "99:1-alt1:p10+1.1.1.1"} {
		assert.True(t, ProvideOverlaps(dep("foo", "=", v), conflict), "provide version %q", v)
	}

	// Flags without a version string are still an unconditional conflict.
	assert.True(t, ProvideOverlaps(dep("foo", "", "5.0"), Dep{Name: "foo", Flags: SenseLess}))
}
