package platform

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// ArchNoarch is the architecture-independent package tag. It is always known.
const ArchNoarch = "noarch"

var (
	builtinBranches = []string{
		"4.0", "4.1", "5.0", "5.1",
		"c6", "c7", "c7.1", "c8", "c8.1", "c9f1", "c9f2", "c10f1", "c10f2",
		"p5", "p6", "p7", "p8", "p9", "p9_mipsel", "p9_e2k", "p10", "p10_e2k", "p11",
		"sisyphus", "sisyphus_mipsel", "sisyphus_riscv64", "sisyphus_e2k", "sisyphus_loongarch64",
		"t6", "t7", "icarus",
	}

	builtinArchs = []string{
		"noarch", "i586", "x86_64", "x86_64-i586", "armh", "aarch64", "ppc64le",
		"riscv64", "loongarch64", "mipsel", "e2k", "e2kv4", "e2kv5", "e2kv6",
	}

	builtinDefaultArchs = []string{"x86_64", "noarch"}

	builtinBranchDefaultArchs = map[string][]string{
		"sisyphus_riscv64":     {"riscv64", "noarch"},
		"sisyphus_mipsel":      {"mipsel", "noarch"},
		"p9_mipsel":            {"mipsel", "noarch"},
		"sisyphus_e2k":         {"e2k", "e2kv4", "e2kv5", "e2kv6", "noarch"},
		"p10_e2k":              {"e2k", "e2kv4", "e2kv5", "e2kv6", "noarch"},
		"p9_e2k":               {"e2k", "e2kv4", "e2kv5", "e2kv6", "noarch"},
		"sisyphus_loongarch64": {"loongarch64", "noarch"},
	}
)

// Registry holds the known branches, architectures and branch aliases.
// It is immutable after construction and safe for concurrent use.
type Registry struct {
	branches           []string
	branchSet          map[string]struct{}
	archSet            map[string]struct{}
	aliases            map[string]string
	defaultArchs       []string
	branchDefaultArchs map[string][]string
}

// NewRegistry builds a registry from cfg layered over the built-in defaults. Aliases that
// name an unknown branch and archs lists naming unknown architectures are skipped with a
// warning. A nil cfg yields the built-in registry.
func NewRegistry(cfg *Config) *Registry {
	if cfg == nil {
		cfg = &Config{}
	}

	branches := builtinBranches
	if len(cfg.Branches) > 0 {
		branches = cfg.Branches
	}

	branches = normalize(append(slices.Clone(branches), cfg.ExtraBranches...))

	archs := builtinArchs
	if len(cfg.Archs) > 0 {
		archs = cfg.Archs
	}

	archs = normalize(append(slices.Clone(archs), ArchNoarch))

	r := &Registry{
		branches:           branches,
		branchSet:          toSet(branches),
		archSet:            toSet(archs),
		aliases:            make(map[string]string),
		branchDefaultArchs: make(map[string][]string),
	}

	r.defaultArchs = r.knownArchs("default", builtinDefaultArchs)
	if len(cfg.DefaultArchs) > 0 {
		if archs := r.knownArchs("default", cfg.DefaultArchs); len(archs) > 0 {
			r.defaultArchs = archs
		}
	}

	if len(r.defaultArchs) == 0 {
		r.defaultArchs = []string{ArchNoarch}
	}

	for branch, archs := range builtinBranchDefaultArchs {
		if r.IsKnownBranch(branch) {
			r.branchDefaultArchs[branch] = r.knownArchs(branch, archs)
		}
	}

	for branch, archs := range cfg.BranchDefaultArchs {
		branch = strings.ToLower(strings.TrimSpace(branch))
		if !r.IsKnownBranch(branch) {
			slog.Warn("Skipping default archs of unknown branch", slog.String("branch", branch))

			continue
		}

		if known := r.knownArchs(branch, archs); len(known) > 0 {
			r.branchDefaultArchs[branch] = known
		}
	}

	for alias, target := range cfg.BranchAliases {
		alias = strings.ToLower(strings.TrimSpace(alias))
		target = strings.ToLower(strings.TrimSpace(target))

		switch {
		case alias == "" || target == "":
			slog.Warn("Skipping branch alias with empty name",
				slog.String("alias", alias),
				slog.String("branch", target))
		case !r.IsKnownBranch(target):
			slog.Warn("Skipping branch alias to unknown branch",
				slog.String("alias", alias),
				slog.String("branch", target))
		case r.IsKnownBranch(alias):
			slog.Warn("Skipping branch alias shadowing a real branch",
				slog.String("alias", alias),
				slog.String("branch", target))
		default:
			r.aliases[alias] = target
		}
	}

	slog.Debug("Platform registry ready",
		slog.Int("branches", len(r.branches)),
		slog.Int("archs", len(r.archSet)),
		slog.Int("aliases", len(r.aliases)))

	return r
}

// ResolveBranch returns the canonical branch name for name, which may be an alias.
// Matching ignores case and surrounding whitespace.
func (r *Registry) ResolveBranch(name string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))

	if r.IsKnownBranch(name) {
		return name, true
	}

	target, ok := r.aliases[name]

	return target, ok
}

// IsKnownBranch reports whether name is a canonical branch name.
func (r *Registry) IsKnownBranch(name string) bool {
	_, ok := r.branchSet[name]

	return ok
}

// IsKnownArch reports whether arch is a recognized architecture tag.
func (r *Registry) IsKnownArch(arch string) bool {
	_, ok := r.archSet[arch]

	return ok
}

// DefaultArchs returns the architectures used when a request for branch names none.
// The result always includes noarch.
func (r *Registry) DefaultArchs(branch string) []string {
	if archs, ok := r.branchDefaultArchs[branch]; ok {
		return slices.Clone(archs)
	}

	return slices.Clone(r.defaultArchs)
}

// Branches returns the canonical branch names in configuration order.
func (r *Registry) Branches() []string {
	return slices.Clone(r.branches)
}

// Archs returns the known architectures, sorted.
func (r *Registry) Archs() []string {
	archs := lo.Keys(r.archSet)
	slices.Sort(archs)

	return archs
}

// Aliases returns a copy of the alias table.
func (r *Registry) Aliases() map[string]string {
	return lo.Assign(r.aliases)
}

// knownArchs drops unknown entries of archs with a warning and adds noarch.
func (r *Registry) knownArchs(scope string, archs []string) []string {
	known, unknown := lo.FilterReject(normalize(archs), func(a string, _ int) bool { return r.IsKnownArch(a) })
	if len(unknown) > 0 {
		slog.Warn("Ignoring unknown default architectures",
			slog.String("scope", scope),
			slog.Any("archs", unknown))
	}

	if len(known) > 0 && !slices.Contains(known, ArchNoarch) {
		known = append(known, ArchNoarch)
	}

	return known
}

func normalize(names []string) []string {
	return lo.Uniq(lo.Compact(lo.Map(names, func(s string, _ int) string {
		return strings.ToLower(strings.TrimSpace(s))
	})))
}

func toSet(names []string) map[string]struct{} {
	return lo.SliceToMap(names, func(s string) (string, struct{}) { return s, struct{}{} })
}
