package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuiltinRegistry(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	r := NewRegistry(nil)

	for _, branch := range []string{"sisyphus", "p10", "p11", "c10f2", "4.1"} {
		got, ok := r.ResolveBranch(branch)
		assert.True(t, ok, branch)
		assert.Equal(t, branch, got)
	}

	_, ok := r.ResolveBranch("p42")
	assert.False(t, ok)

	assert.True(t, r.IsKnownArch("x86_64"))
	assert.True(t, r.IsKnownArch("noarch"))
	assert.True(t, r.IsKnownArch("e2kv6"))
	assert.False(t, r.IsKnownArch("sparc"))
	assert.False(t, r.IsKnownArch("X86_64"))

	assert.Equal(t, []string{"x86_64", "noarch"}, r.DefaultArchs("sisyphus"))
	assert.Equal(t, []string{"riscv64", "noarch"}, r.DefaultArchs("sisyphus_riscv64"))
	assert.Contains(t, r.Archs(), "loongarch64")
	assert.Contains(t, r.Branches(), "icarus")
	assert.Empty(t, r.Aliases())
}

func TestRegistryResolveBranch(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	r := NewRegistry(&Config{
		BranchAliases: map[string]string{
			"unstable": "sisyphus",
			"Stable":   " P11 ",
			"ghost":    "p42",
			"p10":      "p11",
			"":         "sisyphus",
		},
	})

	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{name: "canonical", input: "sisyphus", want: "sisyphus", wantOK: true},
		{name: "case and whitespace", input: "  Sisyphus ", want: "sisyphus", wantOK: true},
		{name: "alias", input: "unstable", want: "sisyphus", wantOK: true},
		{name: "normalized alias", input: "STABLE", want: "p11", wantOK: true},
		{name: "alias to unknown branch is dropped", input: "ghost", wantOK: false},
		{name: "alias cannot shadow a branch", input: "p10", want: "p10", wantOK: true},
		{name: "unknown", input: "nope", wantOK: false},
		{name: "empty", input: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.ResolveBranch(tt.input)
			assert.Equal(t, tt.wantOK, ok)

			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}

	assert.Equal(t, map[string]string{"unstable": "sisyphus", "stable": "p11"}, r.Aliases())
}

func TestRegistryOverrides(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	r := NewRegistry(&Config{
		Branches:      []string{"sisyphus", "p10"},
		ExtraBranches: []string{"Local"},
		Archs:         []string{"x86_64", "aarch64"},
		DefaultArchs:  []string{"aarch64", "sparc"},
		BranchDefaultArchs: map[string][]string{
			"p10":     {"x86_64"},
			"p9":      {"x86_64"},
			"sisyphus": {"sparc"},
		},
	})

	assert.Equal(t, []string{"sisyphus", "p10", "local"}, r.Branches())
	assert.False(t, r.IsKnownBranch("p11"))
	assert.Equal(t, []string{"aarch64", "noarch", "x86_64"}, r.Archs())
	assert.False(t, r.IsKnownArch("i586"))

	assert.Equal(t, []string{"aarch64", "noarch"}, r.DefaultArchs("sisyphus"), "unknown-only override is ignored")
	assert.Equal(t, []string{"x86_64", "noarch"}, r.DefaultArchs("p10"))
	assert.Equal(t, []string{"aarch64", "noarch"}, r.DefaultArchs("local"))

	defaults := r.DefaultArchs("p10")
	defaults[0] = "mutated"
	assert.Equal(t, []string{"x86_64", "noarch"}, r.DefaultArchs("p10"))
}

func TestRegistryWithoutDefaultArchs(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	r := NewRegistry(&Config{Archs: []string{"riscv64"}})

	assert.Equal(t, []string{"noarch"}, r.DefaultArchs("sisyphus"))
	assert.Equal(t, []string{"riscv64", "noarch"}, r.DefaultArchs("sisyphus_riscv64"))
}
