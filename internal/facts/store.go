package facts

import (
	"context"
)

// Store provides read-only access to repository facts.
//
// Every method is a bulk lookup: it takes the complete batch of names or hashes
// for one step of a computation, so callers make a bounded number of round trips
// regardless of how many packages are involved. Implementations must never build
// query text out of the supplied values.
//
// A platform is a branch name (e.g. "sisyphus", "p10"); the snapshot of a platform is
// the set of packages currently published in that branch.
type Store interface {
	// LookupPackagesByName returns the source packages with the given names in the platform snapshot.
	//
	// Parameters:
	//   - names: Source package names
	//   - platform: Branch name
	//
	// Returns:
	//   - One Package per name found (names absent from the snapshot are simply missing)
	//   - Error if the query fails
	LookupPackagesByName(ctx context.Context, names []string, platform string) ([]Package, error)

	// BinariesByName returns the binary packages of the snapshot with the given names,
	// restricted to archs and excluding *-debuginfo packages.
	BinariesByName(ctx context.Context, names []string, platform string, archs []string) ([]Package, error)

	// PackagesByHash returns packages by hash regardless of platform.
	PackagesByHash(ctx context.Context, hashes []uint64) ([]Package, error)

	// BinariesOf returns the binary packages of the snapshot built from the given sources,
	// restricted to archs and excluding *-debuginfo packages.
	BinariesOf(ctx context.Context, sourceHashes []uint64, platform string, archs []string) ([]Package, error)

	// RelationsForPackages returns the relations of the given kinds declared by the packages.
	RelationsForPackages(ctx context.Context, hashes []uint64, kinds []Kind) ([]Relation, error)

	// ProvidersOf returns the binary packages of the snapshot (arch-filtered, no *-debuginfo)
	// that provide any of the capabilities, paired with the matching provide relation.
	ProvidersOf(ctx context.Context, capabilities []string, platform string, archs []string) ([]Match, error)

	// RequirersOf returns the packages of the given class in the snapshot that require any
	// of the capabilities, paired with the matching require relation. Binary requirers
	// are arch-filtered and exclude *-debuginfo packages.
	RequirersOf(
		ctx context.Context,
		capabilities []string,
		platform string,
		archs []string,
		class Class,
	) ([]Match, error)

	// VersionMetadata returns (epoch, version, release, disttag) for each known hash.
	VersionMetadata(ctx context.Context, hashes []uint64) ([]VersionInfo, error)

	// ACLFor returns the ACL member list per source package name in the platform.
	ACLFor(ctx context.Context, names []string, platform string) (map[string][]string, error)

	// FileConflictCandidates returns, for every given package, the other packages of the
	// snapshot (arch-filtered) that own at least one identical non-directory path with
	// different content. Pair.A is always the given package.
	FileConflictCandidates(
		ctx context.Context,
		hashes []uint64,
		platform string,
		archs []string,
	) ([]ConflictCandidate, error)

	// HealthCheck verifies the backing store is reachable.
	HealthCheck(ctx context.Context) error
}
