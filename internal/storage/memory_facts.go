package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/depgraph-io/depgraph/internal/facts"
	"github.com/depgraph-io/depgraph/internal/rpm"
)

var (
	// ErrFixtureInvalid is returned when a facts fixture cannot be parsed or is inconsistent.
	ErrFixtureInvalid = errors.New("invalid facts fixture")
	// ErrFixtureRead is returned when a facts fixture file cannot be read.
	ErrFixtureRead = errors.New("failed to read facts fixture")
)

type (
	// Fixture is the YAML description of one or more branch snapshots.
	//
	// Example:
	//
	//	branches:
	//	  sisyphus:
	//	    acl:
	//	      curl: [alice, "@core"]
	//	    sources:
	//	      - name: curl
	//	        version: 8.4.0
	//	        release: alt1
	//	        requires: ["openssl-devel >= 3.0", zlib-devel]
	//	        binaries:
	//	          - name: curl
	//	            archs: [x86_64, i586]
	//	            requires: [libcurl]
	//	            files:
	//	              - {path: /usr/bin/curl, digest: 1f2e}
	Fixture struct {
		Branches map[string]FixtureBranch `yaml:"branches"`
	}

	// FixtureBranch is one branch snapshot.
	FixtureBranch struct {
		ACL     map[string][]string `yaml:"acl"`
		Sources []FixtureSource     `yaml:"sources"`
	}

	// FixtureSource is a source package with the binaries built from it.
	FixtureSource struct {
		Name      string          `yaml:"name"`
		Epoch     int64           `yaml:"epoch"`
		Version   string          `yaml:"version"`
		Release   string          `yaml:"release"`
		Disttag   string          `yaml:"disttag"`
		Serial    int64           `yaml:"serial"`
		BuildTime time.Time       `yaml:"buildtime"`
		Requires  []string        `yaml:"requires"`
		Binaries  []FixtureBinary `yaml:"binaries"`
	}

	// FixtureBinary is a binary package built for one or more architectures.
	// Every binary implicitly provides "name = version-release".
	FixtureBinary struct {
		Name      string        `yaml:"name"`
		Archs     []string      `yaml:"archs"`
		Requires  []string      `yaml:"requires"`
		Provides  []string      `yaml:"provides"`
		Conflicts []string      `yaml:"conflicts"`
		Obsoletes []string      `yaml:"obsoletes"`
		Files     []FixtureFile `yaml:"files"`
	}

	// FixtureFile is a regular file owned by a binary package.
	FixtureFile struct {
		Path   string `yaml:"path"`
		Digest string `yaml:"digest"`
	}
)

type ownedFile struct {
	facts.File
	digest string
}

// MemoryFacts is an in-memory facts.Store built from a YAML fixture.
// It is used by tests and by depgraphctl when no database is configured.
type MemoryFacts struct {
	packages  map[uint64]facts.Package
	relations map[uint64][]facts.Dependency
	files     map[uint64][]ownedFile
	snapshots map[string]map[uint64]struct{} // branch -> package hashes
	acl       map[string]map[string][]string // branch -> package name -> members
	mutex     sync.RWMutex
}

// LoadFixture reads and parses a YAML fixture file.
func LoadFixture(path string) (*MemoryFacts, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFixtureRead, err)
	}

	return ParseFixture(data)
}

// ParseFixture builds a MemoryFacts from YAML fixture content.
func ParseFixture(data []byte) (*MemoryFacts, error) {
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFixtureInvalid, err)
	}

	return NewMemoryFacts(&fx)
}

// NewMemoryFacts indexes a fixture.
func NewMemoryFacts(fx *Fixture) (*MemoryFacts, error) {
	m := &MemoryFacts{
		packages:  make(map[uint64]facts.Package),
		relations: make(map[uint64][]facts.Dependency),
		files:     make(map[uint64][]ownedFile),
		snapshots: make(map[string]map[uint64]struct{}),
		acl:       make(map[string]map[string][]string),
	}

	branches := lo.Keys(fx.Branches)
	sort.Strings(branches)

	for _, branch := range branches {
		b := fx.Branches[branch]
		m.snapshots[branch] = make(map[uint64]struct{})
		m.acl[branch] = b.ACL

		for _, src := range b.Sources {
			if err := m.addSource(branch, src); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

// PackageHash returns the identity hash of a fixture package. Sources use arch "srpm".
func PackageHash(name, arch string, epoch int64, version, release string) uint64 {
	return xxhash.Sum64String(fmt.Sprintf("%s/%s/%d:%s-%s", name, arch, epoch, version, release))
}

func (m *MemoryFacts) addSource(branch string, src FixtureSource) error {
	if src.Name == "" || src.Version == "" {
		return fmt.Errorf("%w: source package in %s needs name and version", ErrFixtureInvalid, branch)
	}

	srcHash := PackageHash(src.Name, facts.ArchSource, src.Epoch, src.Version, src.Release)
	srpm := fmt.Sprintf("%s-%s-%s.src.rpm", src.Name, src.Version, src.Release)

	m.put(branch, facts.Package{
		Hash:      srcHash,
		Name:      src.Name,
		Epoch:     src.Epoch,
		Version:   src.Version,
		Release:   src.Release,
		Disttag:   src.Disttag,
		Serial:    src.Serial,
		Arch:      facts.ArchSource,
		Source:    true,
		SourceRPM: srpm,
		BuildTime: src.BuildTime,
		Branch:    branch,
	})

	deps, err := parseRelations(facts.KindRequire, src.Requires)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFixtureInvalid, src.Name, err)
	}

	m.relations[srcHash] = deps

	for _, bin := range src.Binaries {
		if bin.Name == "" || len(bin.Archs) == 0 {
			return fmt.Errorf("%w: binary of %s needs name and archs", ErrFixtureInvalid, src.Name)
		}

		deps, err := binaryRelations(bin, src)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrFixtureInvalid, bin.Name, err)
		}

		for _, arch := range bin.Archs {
			h := PackageHash(bin.Name, arch, src.Epoch, src.Version, src.Release)

			m.put(branch, facts.Package{
				Hash:       h,
				Name:       bin.Name,
				Epoch:      src.Epoch,
				Version:    src.Version,
				Release:    src.Release,
				Disttag:    src.Disttag,
				Serial:     src.Serial,
				Arch:       arch,
				SourceRPM:  srpm,
				SourceHash: srcHash,
				BuildTime:  src.BuildTime,
				Branch:     branch,
			})

			m.relations[h] = deps
			m.files[h] = lo.Map(bin.Files, func(f FixtureFile, _ int) ownedFile {
				return ownedFile{
					File:   facts.File{PathHash: xxhash.Sum64String(f.Path), Path: f.Path},
					digest: f.Digest,
				}
			})
		}
	}

	return nil
}

func (m *MemoryFacts) put(branch string, p facts.Package) {
	if existing, ok := m.packages[p.Hash]; ok {
		p.Branch = existing.Branch
	}

	m.packages[p.Hash] = p
	m.snapshots[branch][p.Hash] = struct{}{}
}

func binaryRelations(bin FixtureBinary, src FixtureSource) ([]facts.Dependency, error) {
	var deps []facts.Dependency

	for kind, list := range map[facts.Kind][]string{
		facts.KindRequire:  bin.Requires,
		facts.KindProvide:  bin.Provides,
		facts.KindConflict: bin.Conflicts,
		facts.KindObsolete: bin.Obsoletes,
	} {
		parsed, err := parseRelations(kind, list)
		if err != nil {
			return nil, err
		}

		deps = append(deps, parsed...)
	}

	self := slices.ContainsFunc(deps, func(d facts.Dependency) bool {
		return d.Kind == facts.KindProvide && d.Name == bin.Name
	})
	if !self {
		evr := rpm.EVR{Epoch: src.Epoch, HasEpoch: src.Epoch != 0, Version: src.Version, Release: src.Release}
		deps = append(deps, facts.Dependency{
			Kind:    facts.KindProvide,
			Name:    bin.Name,
			Version: evr.String(),
			Flags:   uint32(rpm.SenseEqual),
		})
	}

	sort.SliceStable(deps, func(i, j int) bool {
		if deps[i].Kind != deps[j].Kind {
			return deps[i].Kind < deps[j].Kind
		}

		return deps[i].Name < deps[j].Name
	})

	return deps, nil
}

// parseRelations parses "name" or "name op version" declarations.
func parseRelations(kind facts.Kind, list []string) ([]facts.Dependency, error) {
	deps := make([]facts.Dependency, 0, len(list))

	for _, decl := range list {
		fields := strings.Fields(decl)

		switch len(fields) {
		case 1:
			deps = append(deps, facts.Dependency{Kind: kind, Name: fields[0]})
		case 3: //nolint:mnd // name, operator, version
			sense, err := rpm.ParseSense(fields[1])
			if err != nil {
				return nil, fmt.Errorf("%q: %w", decl, err)
			}

			deps = append(deps, facts.Dependency{Kind: kind, Name: fields[0], Version: fields[2], Flags: uint32(sense)})
		default:
			return nil, fmt.Errorf("malformed relation %q", decl)
		}
	}

	return deps, nil
}

// inSnapshot returns the snapshot packages matching the predicate, ordered by name then
// hash. Branch is set to the platform queried.
func (m *MemoryFacts) inSnapshot(platform string, keep func(p facts.Package) bool) []facts.Package {
	var out []facts.Package

	for h := range m.snapshots[platform] {
		if p := m.packages[h]; keep(p) {
			p.Branch = platform
			out = append(out, p)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}

		return out[i].Hash < out[j].Hash
	})

	return out
}

func binaryIn(archs []string) func(p facts.Package) bool {
	return func(p facts.Package) bool {
		return !p.Source && !p.IsDebuginfo() && slices.Contains(archs, p.Arch)
	}
}

// LookupPackagesByName implements facts.Store.
func (m *MemoryFacts) LookupPackagesByName(_ context.Context, names []string, platform string) ([]facts.Package, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.inSnapshot(platform, func(p facts.Package) bool {
		return p.Source && slices.Contains(names, p.Name)
	}), nil
}

// BinariesByName implements facts.Store.
func (m *MemoryFacts) BinariesByName(
	_ context.Context,
	names []string,
	platform string,
	archs []string,
) ([]facts.Package, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	arched := binaryIn(archs)

	return m.inSnapshot(platform, func(p facts.Package) bool {
		return arched(p) && slices.Contains(names, p.Name)
	}), nil
}

// PackagesByHash implements facts.Store.
func (m *MemoryFacts) PackagesByHash(_ context.Context, hashes []uint64) ([]facts.Package, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]facts.Package, 0, len(hashes))

	for _, h := range lo.Uniq(hashes) {
		if p, ok := m.packages[h]; ok {
			out = append(out, p)
		}
	}

	return out, nil
}

// BinariesOf implements facts.Store.
func (m *MemoryFacts) BinariesOf(
	_ context.Context,
	sourceHashes []uint64,
	platform string,
	archs []string,
) ([]facts.Package, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	arched := binaryIn(archs)

	return m.inSnapshot(platform, func(p facts.Package) bool {
		return arched(p) && slices.Contains(sourceHashes, p.SourceHash)
	}), nil
}

// RelationsForPackages implements facts.Store.
func (m *MemoryFacts) RelationsForPackages(
	_ context.Context,
	hashes []uint64,
	kinds []facts.Kind,
) ([]facts.Relation, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var out []facts.Relation

	for _, h := range lo.Uniq(hashes) {
		for _, d := range m.relations[h] {
			if slices.Contains(kinds, d.Kind) {
				out = append(out, facts.Relation{PackageHash: h, Dependency: d})
			}
		}
	}

	return out, nil
}

// ProvidersOf implements facts.Store.
func (m *MemoryFacts) ProvidersOf(
	_ context.Context,
	capabilities []string,
	platform string,
	archs []string,
) ([]facts.Match, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.matching(m.inSnapshot(platform, binaryIn(archs)), capabilities, facts.KindProvide), nil
}

// RequirersOf implements facts.Store.
func (m *MemoryFacts) RequirersOf(
	_ context.Context,
	capabilities []string,
	platform string,
	archs []string,
	class facts.Class,
) ([]facts.Match, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	keep := binaryIn(archs)
	if class == facts.ClassSource {
		keep = func(p facts.Package) bool { return p.Source }
	}

	return m.matching(m.inSnapshot(platform, keep), capabilities, facts.KindRequire), nil
}

func (m *MemoryFacts) matching(pkgs []facts.Package, capabilities []string, kind facts.Kind) []facts.Match {
	var out []facts.Match

	for _, p := range pkgs {
		for _, d := range m.relations[p.Hash] {
			if d.Kind == kind && slices.Contains(capabilities, d.Name) {
				out = append(out, facts.Match{Package: p, Dependency: d})
			}
		}
	}

	return out
}

// VersionMetadata implements facts.Store.
func (m *MemoryFacts) VersionMetadata(_ context.Context, hashes []uint64) ([]facts.VersionInfo, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]facts.VersionInfo, 0, len(hashes))

	for _, h := range lo.Uniq(hashes) {
		if p, ok := m.packages[h]; ok {
			out = append(out, facts.VersionInfo{
				Hash:    h,
				Epoch:   p.Epoch,
				Version: p.Version,
				Release: p.Release,
				Disttag: p.Disttag,
			})
		}
	}

	return out, nil
}

// ACLFor implements facts.Store.
func (m *MemoryFacts) ACLFor(_ context.Context, names []string, platform string) (map[string][]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make(map[string][]string, len(names))

	for _, name := range names {
		if members, ok := m.acl[platform][name]; ok {
			out[name] = slices.Clone(members)
		}
	}

	return out, nil
}

// FileConflictCandidates implements facts.Store.
func (m *MemoryFacts) FileConflictCandidates(
	_ context.Context,
	hashes []uint64,
	platform string,
	archs []string,
) ([]facts.ConflictCandidate, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	owners := make(map[uint64][]uint64) // path hash -> packages of the snapshot owning it

	for _, p := range m.inSnapshot(platform, binaryIn(archs)) {
		for _, f := range m.files[p.Hash] {
			owners[f.PathHash] = append(owners[f.PathHash], p.Hash)
		}
	}

	var out []facts.ConflictCandidate

	for _, a := range lo.Uniq(hashes) {
		shared := make(map[uint64][]facts.File)

		var order []uint64

		for _, fa := range m.files[a] {
			for _, b := range owners[fa.PathHash] {
				if b == a || m.digestOf(b, fa.PathHash) == fa.digest {
					continue
				}

				if _, ok := shared[b]; !ok {
					order = append(order, b)
				}

				shared[b] = append(shared[b], fa.File)
			}
		}

		for _, b := range order {
			out = append(out, facts.ConflictCandidate{A: a, B: b, Files: shared[b]})
		}
	}

	return out, nil
}

func (m *MemoryFacts) digestOf(pkg, pathHash uint64) string {
	for _, f := range m.files[pkg] {
		if f.PathHash == pathHash {
			return f.digest
		}
	}

	return ""
}

// HealthCheck implements facts.Store. The in-memory store is always available.
func (m *MemoryFacts) HealthCheck(_ context.Context) error {
	return nil
}

// Compile-time check.
var _ facts.Store = (*MemoryFacts)(nil)
